/*
carryforward.go - Carry-Forward Resolver

PURPOSE:
  The carry-forward balance links billing cycles: over/under-payment in
  cycle N rolls into cycle N+1's net payable. The balance lives in an
  explicit per-farmer running-balance row that the store updates in the
  same transaction as every bill write.

WHY A RUNNING BALANCE?
  An earlier design resolved the carry-forward by loading the farmer's
  most recent bill (by creation timestamp) and reading its
  new_carry_forward_balance. That made the balance an implicit linked
  list threaded through timestamps: deleting a bill silently rewired the
  chain, and identical timestamps made "most recent" ambiguous. The
  running balance removes both failure modes; each bill still snapshots
  previous/new carry-forward for audit.

FALLBACK:
  Data created before the balance table existed has bills but no balance
  row. The resolver then falls back to the newest bill (created_at DESC,
  seq DESC - seq breaks timestamp ties deterministically). It never
  writes: previews must stay side-effect free. The row appears with the
  next bill save, which upserts the running balance.
*/
package billing

import (
	"context"

	"github.com/shopspring/decimal"
)

// CarryForwardResolver reads the farmer's running carry-forward balance.
type CarryForwardResolver struct {
	Bills BillStore
}

func NewCarryForwardResolver(bills BillStore) *CarryForwardResolver {
	return &CarryForwardResolver{Bills: bills}
}

// PreviousCarryForward returns the balance to roll into the next bill.
// Farmers with no history resolve to zero. The value is signed: negative
// means the farmer owes the cooperative.
func (r *CarryForwardResolver) PreviousCarryForward(ctx context.Context, farmerID string) (decimal.Decimal, error) {
	amount, ok, err := r.Bills.CarryForward(ctx, farmerID)
	if err != nil {
		return decimal.Zero, err
	}
	if ok {
		return amount, nil
	}

	// No balance row yet: derive from the newest bill.
	bills, err := r.Bills.BillsByFarmer(ctx, farmerID)
	if err != nil {
		return decimal.Zero, err
	}
	if len(bills) == 0 {
		return decimal.Zero, nil
	}
	return bills[0].NewCarryForward, nil
}
