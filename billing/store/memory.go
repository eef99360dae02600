// Package store provides an in-memory billing.Store implementation
// (for testing/dev). The sqlite store is the production implementation;
// this one mirrors its semantics, including the atomicity of bill +
// running-balance writes.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/shreyasbagave/Dairy/billing"
	"github.com/shreyasbagave/Dairy/coop"
)

// =============================================================================
// MEMORY STORE
// =============================================================================

type Memory struct {
	mu       sync.RWMutex
	milk     []coop.MilkSession
	feed     []coop.FeedPurchase
	bills    map[string]*billing.Bill
	balances map[string]decimal.Decimal
	nextSeq  int64
}

func NewMemory() *Memory {
	return &Memory{
		bills:    make(map[string]*billing.Bill),
		balances: make(map[string]decimal.Decimal),
	}
}

// =============================================================================
// SEEDING - test fixtures write through these
// =============================================================================

// AddMilkSession records a session. No validation; tests construct
// records through coop.NewMilkSession.
func (m *Memory) AddMilkSession(s coop.MilkSession) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.milk = append(m.milk, s)
}

// AddFeedPurchase records a purchase.
func (m *Memory) AddFeedPurchase(p coop.FeedPurchase) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.feed = append(m.feed, p)
}

// =============================================================================
// billing.MilkSource / billing.FeedSource
// =============================================================================

func (m *Memory) MilkSessionsInRange(_ context.Context, ownerID, farmerID string, start, end time.Time) ([]coop.MilkSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []coop.MilkSession
	for _, s := range m.milk {
		if s.OwnerID != ownerID || s.FarmerID != farmerID {
			continue
		}
		d := coop.DateOnly(s.Date)
		if d.Before(start) || d.After(end) {
			continue
		}
		result = append(result, s)
	}
	return result, nil
}

func (m *Memory) FeedPurchasesByFarmer(_ context.Context, farmerID string) ([]coop.FeedPurchase, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []coop.FeedPurchase
	for _, p := range m.feed {
		if p.FarmerID == farmerID {
			result = append(result, p)
		}
	}
	return result, nil
}

// =============================================================================
// billing.BillStore
// =============================================================================

func (m *Memory) SaveBill(_ context.Context, bill *billing.Bill, newCarryForward decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextSeq++
	bill.Seq = m.nextSeq

	cp := *bill
	m.bills[bill.BillID] = &cp
	m.balances[bill.FarmerID] = newCarryForward
	return nil
}

func (m *Memory) UpdateBillPayment(_ context.Context, bill *billing.Bill, carryDelta decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.bills[bill.BillID]
	if !ok {
		return billing.ErrBillNotFound
	}

	// Balance first: pre-balance-table data is seeded from the newest
	// bill (the resolver's fallback rule) before the correction lands.
	current, ok := m.balances[existing.FarmerID]
	if !ok {
		current = m.newestCarryLocked(existing.FarmerID)
	}

	// Only the reconciliation fields move; the snapshot stays put.
	existing.ActualPaid = bill.ActualPaid
	existing.Adjustment = bill.Adjustment
	existing.NewCarryForward = bill.NewCarryForward
	existing.Status = bill.Status

	m.balances[existing.FarmerID] = current.Add(carryDelta)
	return nil
}

// newestCarryLocked returns the newest bill's new carry-forward for the
// farmer, or zero with no history. Callers hold m.mu.
func (m *Memory) newestCarryLocked(farmerID string) decimal.Decimal {
	var newest *billing.Bill
	for _, b := range m.bills {
		if b.FarmerID != farmerID {
			continue
		}
		if newest == nil ||
			b.CreatedAt.After(newest.CreatedAt) ||
			(b.CreatedAt.Equal(newest.CreatedAt) && b.Seq > newest.Seq) {
			newest = b
		}
	}
	if newest == nil {
		return decimal.Zero
	}
	return newest.NewCarryForward
}

func (m *Memory) BillByID(_ context.Context, billID string) (*billing.Bill, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	b, ok := m.bills[billID]
	if !ok {
		return nil, billing.ErrBillNotFound
	}
	cp := *b
	return &cp, nil
}

func (m *Memory) BillsByFarmer(_ context.Context, farmerID string) ([]billing.Bill, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []billing.Bill
	for _, b := range m.bills {
		if b.FarmerID == farmerID {
			result = append(result, *b)
		}
	}
	// Newest first; seq breaks timestamp ties.
	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].Seq > result[j].Seq
	})
	return result, nil
}

func (m *Memory) DeleteBill(_ context.Context, billID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.bills[billID]; !ok {
		return billing.ErrBillNotFound
	}
	delete(m.bills, billID)
	return nil
}

func (m *Memory) CarryForward(_ context.Context, farmerID string) (decimal.Decimal, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	amount, ok := m.balances[farmerID]
	return amount, ok, nil
}

// DropBalance removes a farmer's running-balance row. Tests use it to
// exercise the resolver's newest-bill fallback.
func (m *Memory) DropBalance(farmerID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.balances, farmerID)
}
