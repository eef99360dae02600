/*
engine.go - Billing Reconciliation Engine

PURPOSE:
  Orchestrates the three ledgers (milk, feed, carry-forward) into the two
  billing operations admins actually run:

    PreviewBill   project the next bill without persisting anything
    GenerateBill  settle a cycle: clamp the feed deduction, validate the
                  paid amount against the rounding policy, derive the
                  adjustment and new carry-forward, persist one Bill
    UpdatePayment correct a mis-entered paid amount on an existing bill

RECONCILIATION MATH (GenerateBill):
  deduction  = clamp(requested, 0, feed.remaining)
  netPayable = milkTotal - deduction + previousCarryForward
  adjustment = actualPaid - netPayable        (signed)
  newCarry   = previousCarryForward + adjustment

ROUNDING POLICY:
  Cash settlement cannot carry sub-unit fractions. When netPayable is
  fractional the paid amount must be a whole unit (or exactly equal to
  netPayable); otherwise the call fails with a RoundingError naming the
  floor and ceiling whole-unit amounts. The fractional remainder rolls
  into the carry-forward rather than requiring exact change.

CONCURRENCY:
  GenerateBill and UpdatePayment hold a per-farmer mutex across the whole
  read-compute-write span. See lock.go.

FAILURE MODES:
  Validation errors abort before any write. A farmer with no milk, feed,
  or billing history settles a zero-totals bill; that is not an error.

SEE ALSO:
  - milk.go, feed.go, carryforward.go: the supporting ledgers
  - errors.go: RoundingError and classification helpers
*/
package billing

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/shreyasbagave/Dairy/coop"
	"github.com/shreyasbagave/Dairy/metrics"
)

// =============================================================================
// ENGINE
// =============================================================================

// Engine computes and persists bills. Construct with NewEngine.
type Engine struct {
	Store Store
	Milk  *MilkAggregator
	Feed  *FeedLedger
	Carry *CarryForwardResolver

	// Now and NewID are swappable for tests.
	Now   func() time.Time
	NewID func() string

	locks  *farmerLocks
	logger *zap.Logger
}

// NewEngine wires the engine and its ledgers over one store. A nil
// logger disables logging.
func NewEngine(store Store, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		Store:  store,
		Milk:   NewMilkAggregator(store),
		Feed:   NewFeedLedger(store, store),
		Carry:  NewCarryForwardResolver(store),
		Now:    func() time.Time { return time.Now().UTC() },
		NewID:  uuid.NewString,
		locks:  newFarmerLocks(),
		logger: logger.Named("billing"),
	}
}

// =============================================================================
// PREVIEW
// =============================================================================

// PreviewBill computes the projection an admin reviews before settling a
// cycle. No feed deduction is assumed (that is chosen at generation
// time), so NetPayable = milk total + carry-forward. Side-effect free
// and idempotent.
func (e *Engine) PreviewBill(ctx context.Context, ownerID, farmerID string, start, end time.Time) (*Preview, error) {
	began := time.Now()
	result := metrics.ResultSuccess
	defer func() {
		metrics.ObserveBillPreview(result, time.Since(began))
	}()

	milk, feed, carry, err := e.computeLedgers(ctx, ownerID, farmerID, start, end)
	if err != nil {
		result = metrics.ResultError
		return nil, err
	}

	return &Preview{
		FarmerID:     farmerID,
		PeriodStart:  coop.DateOnly(start),
		PeriodEnd:    coop.DateOnly(end),
		Milk:         milk,
		Feed:         feed,
		CarryForward: carry,
		NetPayable:   milk.TotalAmount.Add(carry),
	}, nil
}

// =============================================================================
// GENERATE
// =============================================================================

// GenerateInput carries the admin's settlement decision for one cycle.
type GenerateInput struct {
	OwnerID  string
	FarmerID string
	Start    time.Time
	End      time.Time

	// FeedDeduction is the requested deduction; it is clamped to
	// [0, remaining feed credit] before use.
	FeedDeduction decimal.Decimal

	// ActualPaid is the amount handed to the farmer.
	ActualPaid decimal.Decimal
}

// GenerateBill settles one billing cycle. It recomputes every ledger
// against live data (a preview may be stale), validates the paid amount,
// and writes the bill together with the farmer's new running
// carry-forward in a single store transaction. The bill is persisted
// with status paid: generation happens at the moment of payment
// collection.
func (e *Engine) GenerateBill(ctx context.Context, in GenerateInput) (*Bill, error) {
	began := time.Now()
	result := metrics.ResultSuccess
	defer func() {
		metrics.ObserveBillGenerate(result, time.Since(began))
	}()

	if in.ActualPaid.IsNegative() {
		result = metrics.ResultError
		return nil, ErrNegativePayment
	}

	unlock := e.locks.Lock(in.FarmerID)
	defer unlock()

	milk, feed, carry, err := e.computeLedgers(ctx, in.OwnerID, in.FarmerID, in.Start, in.End)
	if err != nil {
		result = metrics.ResultError
		return nil, err
	}

	deduction := clampDeduction(in.FeedDeduction, feed.Remaining)
	netPayable := milk.TotalAmount.Sub(deduction).Add(carry)

	if err := validatePaidAmount(netPayable, in.ActualPaid); err != nil {
		result = metrics.ResultError
		return nil, err
	}

	adjustment := in.ActualPaid.Sub(netPayable)
	newCarry := carry.Add(adjustment)

	bill := &Bill{
		BillID:   e.NewID(),
		OwnerID:  in.OwnerID,
		FarmerID: in.FarmerID,

		PeriodStart: coop.DateOnly(in.Start),
		PeriodEnd:   coop.DateOnly(in.End),

		MorningLiters: milk.MorningLiters,
		MorningAmount: milk.MorningAmount,
		EveningLiters: milk.EveningLiters,
		EveningAmount: milk.EveningAmount,
		MilkLiters:    milk.TotalLiters,
		MilkAmount:    milk.TotalAmount,

		FeedDeducted:       deduction,
		RemainingFeedAfter: feed.Remaining.Sub(deduction),

		PreviousCarryForward: carry,
		NetPayable:           netPayable,
		ActualPaid:           in.ActualPaid,
		Adjustment:           adjustment,
		NewCarryForward:      newCarry,

		Status:    StatusPaid,
		CreatedAt: e.Now(),
	}

	if err := e.Store.SaveBill(ctx, bill, newCarry); err != nil {
		result = metrics.ResultError
		return nil, err
	}

	e.logger.Info("bill generated",
		zap.String("bill_id", bill.BillID),
		zap.String("farmer_id", bill.FarmerID),
		zap.String("net_payable", netPayable.String()),
		zap.String("adjustment", adjustment.String()),
		zap.String("new_carry_forward", newCarry.String()),
	)
	return bill, nil
}

// =============================================================================
// PAYMENT CORRECTION
// =============================================================================

// UpdatePayment corrects the paid amount on an existing bill. The
// milk/feed snapshot is immutable, so the rounding policy is re-checked
// against the bill's STORED net payable and the adjustment and new
// carry-forward are recomputed from the stored previous carry-forward.
// The difference between the old and new carry-forward is applied to the
// farmer's running balance.
func (e *Engine) UpdatePayment(ctx context.Context, billID string, actualPaid decimal.Decimal) (*Bill, error) {
	began := time.Now()
	result := metrics.ResultSuccess
	defer func() {
		metrics.ObserveBillPayment(result, time.Since(began))
	}()

	if actualPaid.IsNegative() {
		result = metrics.ResultError
		return nil, ErrNegativePayment
	}

	// First load resolves the farmer so the lock can be taken; the bill
	// is re-read under the lock before anything is derived from it.
	peek, err := e.Store.BillByID(ctx, billID)
	if err != nil {
		result = metrics.ResultError
		return nil, err
	}

	unlock := e.locks.Lock(peek.FarmerID)
	defer unlock()

	bill, err := e.Store.BillByID(ctx, billID)
	if err != nil {
		result = metrics.ResultError
		return nil, err
	}

	if err := validatePaidAmount(bill.NetPayable, actualPaid); err != nil {
		result = metrics.ResultError
		return nil, err
	}

	adjustment := actualPaid.Sub(bill.NetPayable)
	newCarry := bill.PreviousCarryForward.Add(adjustment)
	carryDelta := newCarry.Sub(bill.NewCarryForward)

	bill.ActualPaid = actualPaid
	bill.Adjustment = adjustment
	bill.NewCarryForward = newCarry
	bill.Status = StatusPaid

	if err := e.Store.UpdateBillPayment(ctx, bill, carryDelta); err != nil {
		result = metrics.ResultError
		return nil, err
	}

	e.logger.Info("payment corrected",
		zap.String("bill_id", bill.BillID),
		zap.String("farmer_id", bill.FarmerID),
		zap.String("actual_paid", actualPaid.String()),
		zap.String("carry_delta", carryDelta.String()),
	)
	return bill, nil
}

// =============================================================================
// BALANCE
// =============================================================================

// CarryForward reports a farmer's current running carry-forward, with
// the same legacy-data fallback the engine itself uses.
func (e *Engine) CarryForward(ctx context.Context, farmerID string) (decimal.Decimal, error) {
	return e.Carry.PreviousCarryForward(ctx, farmerID)
}

// =============================================================================
// INTERNALS
// =============================================================================

// computeLedgers runs the three ledgers exactly as both Preview and
// Generate need them. Generate must not reuse preview results: stale
// reads between the two calls would corrupt the chain.
func (e *Engine) computeLedgers(ctx context.Context, ownerID, farmerID string, start, end time.Time) (MilkTotals, FeedBalance, decimal.Decimal, error) {
	milk, err := e.Milk.Aggregate(ctx, ownerID, farmerID, start, end)
	if err != nil {
		return MilkTotals{}, FeedBalance{}, decimal.Zero, err
	}
	feed, err := e.Feed.Balance(ctx, farmerID)
	if err != nil {
		return MilkTotals{}, FeedBalance{}, decimal.Zero, err
	}
	carry, err := e.Carry.PreviousCarryForward(ctx, farmerID)
	if err != nil {
		return MilkTotals{}, FeedBalance{}, decimal.Zero, err
	}
	return milk, feed, carry, nil
}

// clampDeduction bounds a requested feed deduction to [0, remaining].
func clampDeduction(requested, remaining decimal.Decimal) decimal.Decimal {
	if requested.IsNegative() {
		return decimal.Zero
	}
	if requested.GreaterThan(remaining) {
		return remaining
	}
	return requested
}

// validatePaidAmount enforces the whole-unit rounding policy. A
// fractional net payable accepts a whole-unit payment or the exact net
// payable itself; a whole net payable accepts any amount.
func validatePaidAmount(netPayable, paid decimal.Decimal) error {
	if netPayable.IsInteger() {
		return nil
	}
	if paid.Equal(netPayable) || paid.IsInteger() {
		return nil
	}
	return &RoundingError{
		NetPayable: netPayable,
		Paid:       paid,
		Floor:      netPayable.Floor(),
		Ceil:       netPayable.Ceil(),
	}
}
