/*
feed.go - Feed Credit Ledger

PURPOSE:
  A farmer buys feed on credit; each billing cycle deducts some of that
  debt from the milk payout. The ledger derives the open balance:

    purchased = sum of price over all feed purchases for the farmer
    deducted  = sum of feed_deducted_this_cycle over all bills ever
                generated for the farmer
    remaining = max(0, purchased - deducted)

  Both sums are farmer-global (no owner scoping) - a farmer's feed
  account is shared across admins.

  The clamp at zero is deliberate: if historical deductions exceed
  purchases, billing sees zero credit rather than a negative balance or
  an error.
*/
package billing

import (
	"context"

	"github.com/shopspring/decimal"
)

// FeedLedger derives a farmer's open feed credit from purchases and
// prior bill deductions.
type FeedLedger struct {
	Purchases FeedSource
	Bills     BillStore
}

func NewFeedLedger(purchases FeedSource, bills BillStore) *FeedLedger {
	return &FeedLedger{Purchases: purchases, Bills: bills}
}

// Balance computes the farmer's feed credit position. A farmer with no
// purchases and no bills yields all zeros.
func (l *FeedLedger) Balance(ctx context.Context, farmerID string) (FeedBalance, error) {
	purchases, err := l.Purchases.FeedPurchasesByFarmer(ctx, farmerID)
	if err != nil {
		return FeedBalance{}, err
	}
	var purchased decimal.Decimal
	for _, p := range purchases {
		purchased = purchased.Add(p.Price)
	}

	bills, err := l.Bills.BillsByFarmer(ctx, farmerID)
	if err != nil {
		return FeedBalance{}, err
	}
	var deducted decimal.Decimal
	for _, b := range bills {
		deducted = deducted.Add(b.FeedDeducted)
	}

	remaining := purchased.Sub(deducted)
	if remaining.IsNegative() {
		remaining = decimal.Zero
	}
	return FeedBalance{Purchased: purchased, Deducted: deducted, Remaining: remaining}, nil
}
