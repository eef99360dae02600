/*
store.go - Persistence interfaces consumed by the billing engine

PURPOSE:
  The engine reads milk sessions and feed purchases recorded by other
  workflows and writes Bill records plus the per-farmer running
  carry-forward balance. These interfaces are defined here, next to the
  code that depends on them, so the sqlite and memory implementations
  import billing rather than the other way around.

IMPLEMENTATIONS:
  store/sqlite:          production store, single SQL transaction per write
  billing/store (memory): test fixture with the same semantics

ATOMICITY:
  SaveBill and UpdateBillPayment mutate the bill AND the running balance.
  Implementations must apply both in one transaction: a bill without its
  balance update (or vice versa) corrupts every later cycle.
*/
package billing

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/shreyasbagave/Dairy/coop"
)

// =============================================================================
// READ SIDES - records owned by other workflows
// =============================================================================

// MilkSource yields the milk sessions the aggregator sums. Sessions are
// scoped to (owner, farmer) and an inclusive day range.
type MilkSource interface {
	MilkSessionsInRange(ctx context.Context, ownerID, farmerID string, start, end time.Time) ([]coop.MilkSession, error)
}

// FeedSource yields all feed purchases for a farmer. Purchases are
// farmer-global: no owner scoping, matching how the feed workflow
// records them.
type FeedSource interface {
	FeedPurchasesByFarmer(ctx context.Context, farmerID string) ([]coop.FeedPurchase, error)
}

// =============================================================================
// BILL STORE - records owned by the engine
// =============================================================================

// BillStore persists bills and the per-farmer running carry-forward.
type BillStore interface {
	// SaveBill inserts a new bill and sets the farmer's running
	// carry-forward to newCarryForward in the same transaction.
	// Assigns Bill.Seq.
	SaveBill(ctx context.Context, bill *Bill, newCarryForward decimal.Decimal) error

	// UpdateBillPayment overwrites the reconciliation fields
	// (actual_paid_amount, adjustment, new_carry_forward_balance, status)
	// of an existing bill and adds carryDelta to the farmer's running
	// balance, atomically. Snapshot fields are not written.
	UpdateBillPayment(ctx context.Context, bill *Bill, carryDelta decimal.Decimal) error

	// BillByID returns a bill, or ErrBillNotFound.
	BillByID(ctx context.Context, billID string) (*Bill, error)

	// BillsByFarmer returns the farmer's bills newest first
	// (created_at DESC, seq DESC).
	BillsByFarmer(ctx context.Context, farmerID string) ([]Bill, error)

	// DeleteBill removes a bill, or returns ErrBillNotFound. The running
	// balance is deliberately left untouched.
	DeleteBill(ctx context.Context, billID string) error

	// CarryForward reads the farmer's running balance. ok is false when
	// no balance row exists yet (new farmer, or data predating the
	// running-balance table).
	CarryForward(ctx context.Context, farmerID string) (amount decimal.Decimal, ok bool, err error)
}

// Store is the full persistence surface the engine is wired with.
type Store interface {
	MilkSource
	FeedSource
	BillStore
}
