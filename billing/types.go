/*
Package billing implements the cooperative's billing reconciliation engine.

PURPOSE:
  Given a farmer and a period, compute what the cooperative owes: milk
  earnings minus feed debt, adjusted by the carry-forward balance from
  prior cycles. The engine produces audit-grade Bill records and keeps
  the carry-forward chain consistent across cycles.

KEY CONCEPTS IN THIS FILE (types.go):
  - MilkTotals: per-session liter and currency sums for a period
  - FeedBalance: purchased vs deducted feed credit
  - Preview: a non-persisted projection of the next bill
  - Bill: the persisted settlement record (snapshot + reconciliation)

CRITICAL INVARIANTS:
  1. CONSERVATION: net_payable = milk_total - feed_deducted + prev_carry
  2. CHAIN: new_carry = prev_carry + (paid - net_payable)
  3. CLAMP: feed deduction never exceeds the available feed credit
  4. SNAPSHOT: UpdatePayment never touches milk/feed snapshot fields

DESIGN PRINCIPLES:
  - Precision: all money and liters are decimal.Decimal, never float
  - Recompute, don't cache: Generate repeats the Preview math against
    live data so a stale preview can't leak into a bill
  - One atomic write: a bill and its running-balance update land in a
    single store transaction or not at all

SEE ALSO:
  - engine.go: Preview/Generate/UpdatePayment orchestration
  - milk.go, feed.go, carryforward.go: the three supporting ledgers
  - store.go: persistence interfaces the engine depends on
*/
package billing

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// STATUS
// =============================================================================

type Status string

const (
	StatusPending Status = "pending"
	StatusPaid    Status = "paid"
)

// =============================================================================
// LEDGER OUTPUTS
// =============================================================================

// MilkTotals is the output of the milk ledger aggregator: independent
// morning/evening sums plus their total, for one farmer and period.
// Amounts are the liters x rate sums recorded on the sessions, not
// recomputed from a rate table.
type MilkTotals struct {
	MorningLiters decimal.Decimal
	MorningAmount decimal.Decimal
	EveningLiters decimal.Decimal
	EveningAmount decimal.Decimal
	TotalLiters   decimal.Decimal
	TotalAmount   decimal.Decimal
}

// FeedBalance is the output of the feed credit ledger.
// Remaining = max(0, Purchased - Deducted); historical over-deduction is
// clamped, never surfaced as negative credit.
type FeedBalance struct {
	Purchased decimal.Decimal
	Deducted  decimal.Decimal
	Remaining decimal.Decimal
}

// =============================================================================
// PREVIEW - projection without persistence
// =============================================================================

// Preview is what an admin sees before generating a bill. No feed
// deduction is assumed yet (that is chosen at generation time), so
// NetPayable = milk total + carry-forward.
type Preview struct {
	FarmerID    string
	PeriodStart time.Time
	PeriodEnd   time.Time

	Milk         MilkTotals
	Feed         FeedBalance
	CarryForward decimal.Decimal
	NetPayable   decimal.Decimal
}

// =============================================================================
// BILL - the persisted settlement record
// =============================================================================

// Bill is one settled billing cycle for a farmer. The milk and feed
// fields are a snapshot of the inputs at generation time; the
// reconciliation fields (paid, adjustment, carry-forward) may later be
// corrected via UpdatePayment.
type Bill struct {
	BillID   string
	OwnerID  string
	FarmerID string

	PeriodStart time.Time
	PeriodEnd   time.Time

	// Milk snapshot
	MorningLiters decimal.Decimal
	MorningAmount decimal.Decimal
	EveningLiters decimal.Decimal
	EveningAmount decimal.Decimal
	MilkLiters    decimal.Decimal
	MilkAmount    decimal.Decimal

	// Feed snapshot
	FeedDeducted       decimal.Decimal
	RemainingFeedAfter decimal.Decimal

	// Reconciliation
	PreviousCarryForward decimal.Decimal
	NetPayable           decimal.Decimal
	ActualPaid           decimal.Decimal
	Adjustment           decimal.Decimal
	NewCarryForward      decimal.Decimal

	Status    Status
	CreatedAt time.Time

	// Seq is assigned by the store, strictly increasing per insert.
	// It breaks ties between bills created at the same timestamp.
	Seq int64
}

// MilkSnapshot returns the fields frozen at generation time. Used by
// tests to assert UpdatePayment leaves them untouched.
func (b Bill) MilkSnapshot() MilkTotals {
	return MilkTotals{
		MorningLiters: b.MorningLiters,
		MorningAmount: b.MorningAmount,
		EveningLiters: b.EveningLiters,
		EveningAmount: b.EveningAmount,
		TotalLiters:   b.MilkLiters,
		TotalAmount:   b.MilkAmount,
	}
}
