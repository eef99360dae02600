/*
milk.go - Milk Ledger Aggregator

PURPOSE:
  Sums a farmer's milk sessions over a period into per-session liter and
  currency totals. This is the earnings side of a bill.

ALGORITHM:
  Fetch sessions for (owner, farmer, date in [start, end]), partition by
  Morning/Evening, sum quantity and total_cost independently per
  partition. Amounts come from the stored session total_cost (liters x
  rate at collection time), never from a current rate table.

PROPERTIES:
  - Pure aggregation, no side effects, deterministic given stored data
  - Unknown farmer or empty range: all-zero totals, not an error
  - start > end: ErrInvalidPeriod
*/
package billing

import (
	"context"
	"time"

	"github.com/shreyasbagave/Dairy/coop"
)

// MilkAggregator computes period totals from stored milk sessions.
type MilkAggregator struct {
	Source MilkSource
}

func NewMilkAggregator(source MilkSource) *MilkAggregator {
	return &MilkAggregator{Source: source}
}

// Aggregate sums the sessions in [start, end] (inclusive calendar days).
func (a *MilkAggregator) Aggregate(ctx context.Context, ownerID, farmerID string, start, end time.Time) (MilkTotals, error) {
	start = coop.DateOnly(start)
	end = coop.DateOnly(end)
	if start.IsZero() || end.IsZero() || end.Before(start) {
		return MilkTotals{}, ErrInvalidPeriod
	}

	sessions, err := a.Source.MilkSessionsInRange(ctx, ownerID, farmerID, start, end)
	if err != nil {
		return MilkTotals{}, err
	}

	var t MilkTotals
	for _, s := range sessions {
		switch s.Session {
		case coop.SessionMorning:
			t.MorningLiters = t.MorningLiters.Add(s.Liters)
			t.MorningAmount = t.MorningAmount.Add(s.TotalCost)
		case coop.SessionEvening:
			t.EveningLiters = t.EveningLiters.Add(s.Liters)
			t.EveningAmount = t.EveningAmount.Add(s.TotalCost)
		}
	}
	t.TotalLiters = t.MorningLiters.Add(t.EveningLiters)
	t.TotalAmount = t.MorningAmount.Add(t.EveningAmount)
	return t, nil
}
