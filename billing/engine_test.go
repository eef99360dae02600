package billing_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/shreyasbagave/Dairy/billing"
	"github.com/shreyasbagave/Dairy/billing/store"
	"github.com/shreyasbagave/Dairy/coop"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func march(day int) time.Time {
	return time.Date(2025, time.March, day, 0, 0, 0, 0, time.UTC)
}

// newTestEngine returns an engine over a fresh memory store with
// deterministic ids and a clock that ticks one second per call.
func newTestEngine() (*billing.Engine, *store.Memory) {
	mem := store.NewMemory()
	e := billing.NewEngine(mem, nil)

	ids := 0
	e.NewID = func() string {
		ids++
		return fmt.Sprintf("bill-%d", ids)
	}
	now := time.Date(2025, time.March, 31, 12, 0, 0, 0, time.UTC)
	e.Now = func() time.Time {
		now = now.Add(time.Second)
		return now
	}
	return e, mem
}

func seedMilk(t *testing.T, mem *store.Memory, farmerID string, day int, session coop.Session, liters, rate string) {
	t.Helper()
	m, err := coop.NewMilkSession(
		fmt.Sprintf("log-%s-%d-%s", farmerID, day, session),
		"owner-1", farmerID, march(day), session, dec(liters), dec("4.0"), dec(rate))
	if err != nil {
		t.Fatalf("seed milk: %v", err)
	}
	mem.AddMilkSession(m)
}

func seedFeed(mem *store.Memory, farmerID string, day int, price string) {
	mem.AddFeedPurchase(coop.FeedPurchase{
		ID:       fmt.Sprintf("feed-%s-%d", farmerID, day),
		FarmerID: farmerID,
		Date:     march(day),
		Quantity: dec("1"),
		Price:    dec(price),
	})
}

func generate(t *testing.T, e *billing.Engine, farmerID, deduction, paid string) *billing.Bill {
	t.Helper()
	bill, err := e.GenerateBill(context.Background(), billing.GenerateInput{
		OwnerID:       "owner-1",
		FarmerID:      farmerID,
		Start:         march(1),
		End:           march(31),
		FeedDeduction: dec(deduction),
		ActualPaid:    dec(paid),
	})
	if err != nil {
		t.Fatalf("generate bill: %v", err)
	}
	return bill
}

// =============================================================================
// GENERATION
// =============================================================================

func TestGenerateBill_BasicReconciliation(t *testing.T) {
	// GIVEN: 100L at 10/L (1000 milk), 300 feed credit, no prior history
	// WHEN: Settling with a 200 feed deduction, paying exactly the net
	// THEN: Net = 1000 - 200 = 800, adjustment 0, carry-forward stays 0

	e, mem := newTestEngine()
	seedMilk(t, mem, "f-1", 1, coop.SessionMorning, "60", "10")
	seedMilk(t, mem, "f-1", 1, coop.SessionEvening, "40", "10")
	seedFeed(mem, "f-1", 2, "300")

	bill := generate(t, e, "f-1", "200", "800")

	if !bill.NetPayable.Equal(dec("800")) {
		t.Errorf("expected net payable 800, got %v", bill.NetPayable)
	}
	if !bill.Adjustment.IsZero() {
		t.Errorf("expected zero adjustment, got %v", bill.Adjustment)
	}
	if !bill.NewCarryForward.IsZero() {
		t.Errorf("expected zero carry-forward, got %v", bill.NewCarryForward)
	}
	if !bill.RemainingFeedAfter.Equal(dec("100")) {
		t.Errorf("expected 100 feed remaining, got %v", bill.RemainingFeedAfter)
	}
	if bill.Status != billing.StatusPaid {
		t.Errorf("expected status paid, got %v", bill.Status)
	}
}

func TestGenerateBill_SessionPartition(t *testing.T) {
	// GIVEN: Morning and evening collections at different rates
	// WHEN: Generating a bill
	// THEN: The bill snapshots per-session liters and amounts

	e, mem := newTestEngine()
	seedMilk(t, mem, "f-1", 1, coop.SessionMorning, "10", "10") // 100
	seedMilk(t, mem, "f-1", 1, coop.SessionEvening, "5", "12")  // 60
	seedMilk(t, mem, "f-1", 2, coop.SessionMorning, "10", "10") // 100

	bill := generate(t, e, "f-1", "0", "260")

	if !bill.MorningLiters.Equal(dec("20")) || !bill.MorningAmount.Equal(dec("200")) {
		t.Errorf("morning: got %vL / %v", bill.MorningLiters, bill.MorningAmount)
	}
	if !bill.EveningLiters.Equal(dec("5")) || !bill.EveningAmount.Equal(dec("60")) {
		t.Errorf("evening: got %vL / %v", bill.EveningLiters, bill.EveningAmount)
	}
	if !bill.MilkAmount.Equal(dec("260")) {
		t.Errorf("expected milk amount 260, got %v", bill.MilkAmount)
	}
}

func TestGenerateBill_UnderpaymentCarriesForward(t *testing.T) {
	// GIVEN: Net payable 1200 (milk 1300, feed deduction 100)
	// WHEN: Only 1150 is actually handed over
	// THEN: Adjustment -50 and new carry-forward -50 (coop owes farmer)

	e, mem := newTestEngine()
	seedMilk(t, mem, "f-1", 1, coop.SessionMorning, "130", "10")
	seedFeed(mem, "f-1", 1, "100")

	bill := generate(t, e, "f-1", "100", "1150")

	if !bill.NetPayable.Equal(dec("1200")) {
		t.Fatalf("expected net payable 1200, got %v", bill.NetPayable)
	}
	if !bill.Adjustment.Equal(dec("-50")) {
		t.Errorf("expected adjustment -50, got %v", bill.Adjustment)
	}
	if !bill.NewCarryForward.Equal(dec("-50")) {
		t.Errorf("expected carry-forward -50, got %v", bill.NewCarryForward)
	}
}

func TestGenerateBill_CarryForwardChains(t *testing.T) {
	// GIVEN: A first cycle underpaid by 50
	// WHEN: Settling the next cycle
	// THEN: The 50 owed appears as previous carry-forward, raising net

	e, mem := newTestEngine()
	seedMilk(t, mem, "f-1", 1, coop.SessionMorning, "100", "10")
	first := generate(t, e, "f-1", "0", "950") // net 1000, underpaid

	seedMilk(t, mem, "f-1", 15, coop.SessionEvening, "50", "10")
	second, err := e.GenerateBill(context.Background(), billing.GenerateInput{
		OwnerID:    "owner-1",
		FarmerID:   "f-1",
		Start:      march(15),
		End:        march(31),
		ActualPaid: dec("450"),
	})
	if err != nil {
		t.Fatalf("second bill: %v", err)
	}

	if !second.PreviousCarryForward.Equal(first.NewCarryForward) {
		t.Errorf("chain broken: previous %v, expected %v",
			second.PreviousCarryForward, first.NewCarryForward)
	}
	// milk 500 + carry -50 = net 450
	if !second.NetPayable.Equal(dec("450")) {
		t.Errorf("expected net payable 450, got %v", second.NetPayable)
	}
	if !second.NewCarryForward.IsZero() {
		t.Errorf("expected settled carry-forward, got %v", second.NewCarryForward)
	}
}

func TestGenerateBill_MoneyConservation(t *testing.T) {
	// GIVEN: Any settled bill
	// THEN: actual_paid - adjustment == net_payable and
	//       new_carry == previous_carry + adjustment

	e, mem := newTestEngine()
	seedMilk(t, mem, "f-1", 1, coop.SessionMorning, "87", "11.50")
	seedFeed(mem, "f-1", 2, "140")

	bill := generate(t, e, "f-1", "140", "860")

	if !bill.ActualPaid.Sub(bill.Adjustment).Equal(bill.NetPayable) {
		t.Errorf("conservation violated: paid %v, adjustment %v, net %v",
			bill.ActualPaid, bill.Adjustment, bill.NetPayable)
	}
	if !bill.PreviousCarryForward.Add(bill.Adjustment).Equal(bill.NewCarryForward) {
		t.Errorf("carry chain violated: prev %v, adjustment %v, new %v",
			bill.PreviousCarryForward, bill.Adjustment, bill.NewCarryForward)
	}
}

func TestGenerateBill_InvalidPeriod(t *testing.T) {
	// GIVEN: A period whose end precedes its start
	// THEN: ErrInvalidPeriod, classified as a client error

	e, _ := newTestEngine()
	_, err := e.GenerateBill(context.Background(), billing.GenerateInput{
		OwnerID:  "owner-1",
		FarmerID: "f-1",
		Start:    march(31),
		End:      march(1),
	})
	if !errors.Is(err, billing.ErrInvalidPeriod) {
		t.Fatalf("expected ErrInvalidPeriod, got %v", err)
	}
	if !billing.IsClientError(err) {
		t.Error("expected client error classification")
	}
}

func TestGenerateBill_NegativePaymentRejected(t *testing.T) {
	e, mem := newTestEngine()
	seedMilk(t, mem, "f-1", 1, coop.SessionMorning, "10", "10")

	_, err := e.GenerateBill(context.Background(), billing.GenerateInput{
		OwnerID:    "owner-1",
		FarmerID:   "f-1",
		Start:      march(1),
		End:        march(31),
		ActualPaid: dec("-5"),
	})
	if !errors.Is(err, billing.ErrNegativePayment) {
		t.Fatalf("expected ErrNegativePayment, got %v", err)
	}
}

// =============================================================================
// CONCURRENCY AND WRITE FAILURE
// =============================================================================

func TestGenerateBill_ConcurrentGenerationsChain(t *testing.T) {
	// GIVEN: Many settlements for one farmer racing each other
	// WHEN: Each goroutine generates a bill over the same period
	// THEN: Every persisted bill chains off the one before it and the
	//       running balance matches the newest bill

	e, mem := newTestEngine()

	// The default test id/clock closures are not goroutine-safe.
	var mu sync.Mutex
	ids := 0
	e.NewID = func() string {
		mu.Lock()
		defer mu.Unlock()
		ids++
		return fmt.Sprintf("bill-%d", ids)
	}
	now := time.Date(2025, time.March, 31, 12, 0, 0, 0, time.UTC)
	e.Now = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(time.Second)
		return now
	}

	seedMilk(t, mem, "f-1", 1, coop.SessionMorning, "100", "10")

	const workers = 8
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.GenerateBill(context.Background(), billing.GenerateInput{
				OwnerID:    "owner-1",
				FarmerID:   "f-1",
				Start:      march(1),
				End:        march(31),
				ActualPaid: dec("900"),
			})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent generate: %v", err)
		}
	}

	ctx := context.Background()
	bills, err := mem.BillsByFarmer(ctx, "f-1") // newest first
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(bills) != workers {
		t.Fatalf("expected %d bills, got %d", workers, len(bills))
	}
	if !bills[len(bills)-1].PreviousCarryForward.IsZero() {
		t.Errorf("oldest bill should start the chain at zero, got %v",
			bills[len(bills)-1].PreviousCarryForward)
	}
	for i := len(bills) - 1; i > 0; i-- {
		older, newer := bills[i], bills[i-1]
		if !newer.PreviousCarryForward.Equal(older.NewCarryForward) {
			t.Errorf("chain broken at %s: previous %v, expected %v",
				newer.BillID, newer.PreviousCarryForward, older.NewCarryForward)
		}
	}
	carry, ok, _ := mem.CarryForward(ctx, "f-1")
	if !ok || !carry.Equal(bills[0].NewCarryForward) {
		t.Errorf("running balance %v (ok=%v) does not match newest bill %v",
			carry, ok, bills[0].NewCarryForward)
	}
}

// failingBillStore refuses bill writes; everything else passes through.
type failingBillStore struct {
	*store.Memory
}

var errWriteFailed = errors.New("write failed")

func (f *failingBillStore) SaveBill(context.Context, *billing.Bill, decimal.Decimal) error {
	return errWriteFailed
}

func TestGenerateBill_StoreFailurePersistsNothing(t *testing.T) {
	// GIVEN: A store whose bill write fails
	// WHEN: Generating a bill
	// THEN: The error propagates and neither a bill nor a balance row lands

	mem := store.NewMemory()
	e := billing.NewEngine(&failingBillStore{Memory: mem}, nil)

	m, err := coop.NewMilkSession("log-1", "owner-1", "f-1", march(1),
		coop.SessionMorning, dec("100"), dec("4.0"), dec("10"))
	if err != nil {
		t.Fatalf("seed milk: %v", err)
	}
	mem.AddMilkSession(m)

	_, err = e.GenerateBill(context.Background(), billing.GenerateInput{
		OwnerID:    "owner-1",
		FarmerID:   "f-1",
		Start:      march(1),
		End:        march(31),
		ActualPaid: dec("1000"),
	})
	if !errors.Is(err, errWriteFailed) {
		t.Fatalf("expected the store error, got %v", err)
	}

	ctx := context.Background()
	bills, _ := mem.BillsByFarmer(ctx, "f-1")
	if len(bills) != 0 {
		t.Errorf("failed write persisted %d bills", len(bills))
	}
	if _, ok, _ := mem.CarryForward(ctx, "f-1"); ok {
		t.Error("failed write created a balance row")
	}
}

// =============================================================================
// FEED DEDUCTION CLAMPING
// =============================================================================

func TestGenerateBill_FeedDeductionClampedToRemaining(t *testing.T) {
	// GIVEN: 150 of feed credit outstanding
	// WHEN: The admin asks to deduct 500
	// THEN: Only 150 is deducted and the remaining balance hits zero

	e, mem := newTestEngine()
	seedMilk(t, mem, "f-1", 1, coop.SessionMorning, "100", "10")
	seedFeed(mem, "f-1", 1, "150")

	bill := generate(t, e, "f-1", "500", "850")

	if !bill.FeedDeducted.Equal(dec("150")) {
		t.Errorf("expected deduction clamped to 150, got %v", bill.FeedDeducted)
	}
	if !bill.RemainingFeedAfter.IsZero() {
		t.Errorf("expected zero remaining feed, got %v", bill.RemainingFeedAfter)
	}
	if !bill.NetPayable.Equal(dec("850")) {
		t.Errorf("expected net payable 850, got %v", bill.NetPayable)
	}
}

func TestGenerateBill_NegativeDeductionClampedToZero(t *testing.T) {
	e, mem := newTestEngine()
	seedMilk(t, mem, "f-1", 1, coop.SessionMorning, "100", "10")
	seedFeed(mem, "f-1", 1, "150")

	bill := generate(t, e, "f-1", "-20", "1000")

	if !bill.FeedDeducted.IsZero() {
		t.Errorf("expected zero deduction, got %v", bill.FeedDeducted)
	}
	if !bill.RemainingFeedAfter.Equal(dec("150")) {
		t.Errorf("expected feed balance untouched at 150, got %v", bill.RemainingFeedAfter)
	}
}

func TestGenerateBill_SecondCycleSeesReducedFeedBalance(t *testing.T) {
	// GIVEN: 300 purchased, 200 deducted on the first bill
	// WHEN: Settling a second cycle
	// THEN: Only 100 of credit remains to draw on

	e, mem := newTestEngine()
	seedMilk(t, mem, "f-1", 1, coop.SessionMorning, "100", "10")
	seedFeed(mem, "f-1", 1, "300")
	generate(t, e, "f-1", "200", "800")

	seedMilk(t, mem, "f-1", 20, coop.SessionMorning, "100", "10")
	bill, err := e.GenerateBill(context.Background(), billing.GenerateInput{
		OwnerID:       "owner-1",
		FarmerID:      "f-1",
		Start:         march(20),
		End:           march(31),
		FeedDeduction: dec("500"),
		ActualPaid:    dec("900"),
	})
	if err != nil {
		t.Fatalf("second bill: %v", err)
	}
	if !bill.FeedDeducted.Equal(dec("100")) {
		t.Errorf("expected deduction clamped to 100, got %v", bill.FeedDeducted)
	}
}

// =============================================================================
// ROUNDING POLICY
// =============================================================================

func TestGenerateBill_FractionalPaymentRejected(t *testing.T) {
	// GIVEN: Fractional net payable 1007.50
	// WHEN: Paying a fractional amount that is not the exact net
	// THEN: Rejected with floor/ceil suggestions

	e, mem := newTestEngine()
	seedMilk(t, mem, "f-1", 1, coop.SessionMorning, "100.75", "10")

	_, err := e.GenerateBill(context.Background(), billing.GenerateInput{
		OwnerID:    "owner-1",
		FarmerID:   "f-1",
		Start:      march(1),
		End:        march(31),
		ActualPaid: dec("1007.25"),
	})

	var roundErr *billing.RoundingError
	if !errors.As(err, &roundErr) {
		t.Fatalf("expected RoundingError, got %v", err)
	}
	if !roundErr.Floor.Equal(dec("1007")) || !roundErr.Ceil.Equal(dec("1008")) {
		t.Errorf("expected suggestions 1007/1008, got %v/%v", roundErr.Floor, roundErr.Ceil)
	}
	if !errors.Is(err, billing.ErrFractionalPayment) {
		t.Error("expected RoundingError to unwrap to ErrFractionalPayment")
	}
	if !billing.IsClientError(err) {
		t.Error("expected client error classification")
	}
}

func TestGenerateBill_FractionalNetAcceptsWholePayment(t *testing.T) {
	// Net 1007.50, paid 1007 → accepted, 0.50 carried forward
	e, mem := newTestEngine()
	seedMilk(t, mem, "f-1", 1, coop.SessionMorning, "100.75", "10")

	bill := generate(t, e, "f-1", "0", "1007")

	if !bill.Adjustment.Equal(dec("-0.5")) {
		t.Errorf("expected adjustment -0.5, got %v", bill.Adjustment)
	}
	if !bill.NewCarryForward.Equal(dec("-0.5")) {
		t.Errorf("expected carry-forward -0.5, got %v", bill.NewCarryForward)
	}
}

func TestGenerateBill_FractionalNetAcceptsExactPayment(t *testing.T) {
	e, mem := newTestEngine()
	seedMilk(t, mem, "f-1", 1, coop.SessionMorning, "100.75", "10")

	bill := generate(t, e, "f-1", "0", "1007.5")

	if !bill.Adjustment.IsZero() {
		t.Errorf("expected zero adjustment on exact payment, got %v", bill.Adjustment)
	}
}

func TestGenerateBill_WholeNetAcceptsAnyPayment(t *testing.T) {
	// A whole net payable places no rounding constraint on the payment.
	e, mem := newTestEngine()
	seedMilk(t, mem, "f-1", 1, coop.SessionMorning, "100", "10")

	bill := generate(t, e, "f-1", "0", "999.50")

	if !bill.Adjustment.Equal(dec("-0.5")) {
		t.Errorf("expected adjustment -0.5, got %v", bill.Adjustment)
	}
}

// =============================================================================
// PREVIEW
// =============================================================================

func TestPreviewBill_NoSideEffects(t *testing.T) {
	// GIVEN: Milk and feed on record
	// WHEN: Previewing twice
	// THEN: Identical results, no bill written, no balance row created

	e, mem := newTestEngine()
	seedMilk(t, mem, "f-1", 1, coop.SessionMorning, "100", "10")
	seedFeed(mem, "f-1", 1, "200")

	ctx := context.Background()
	first, err := e.PreviewBill(ctx, "owner-1", "f-1", march(1), march(31))
	if err != nil {
		t.Fatalf("preview: %v", err)
	}
	second, err := e.PreviewBill(ctx, "owner-1", "f-1", march(1), march(31))
	if err != nil {
		t.Fatalf("second preview: %v", err)
	}

	if !first.NetPayable.Equal(second.NetPayable) {
		t.Errorf("preview not idempotent: %v vs %v", first.NetPayable, second.NetPayable)
	}
	bills, _ := mem.BillsByFarmer(ctx, "f-1")
	if len(bills) != 0 {
		t.Errorf("preview wrote %d bills", len(bills))
	}
	if _, ok, _ := mem.CarryForward(ctx, "f-1"); ok {
		t.Error("preview created a balance row")
	}
}

func TestPreviewBill_NetExcludesFeedDeduction(t *testing.T) {
	// Preview assumes no deduction: that choice is made at generation.
	e, mem := newTestEngine()
	seedMilk(t, mem, "f-1", 1, coop.SessionMorning, "100", "10")
	seedFeed(mem, "f-1", 1, "200")

	p, err := e.PreviewBill(context.Background(), "owner-1", "f-1", march(1), march(31))
	if err != nil {
		t.Fatalf("preview: %v", err)
	}
	if !p.NetPayable.Equal(dec("1000")) {
		t.Errorf("expected net payable 1000, got %v", p.NetPayable)
	}
	if !p.Feed.Remaining.Equal(dec("200")) {
		t.Errorf("expected feed remaining 200, got %v", p.Feed.Remaining)
	}
}

func TestPreviewBill_EmptyPeriod(t *testing.T) {
	// No milk in the window: totals are zero, net is just the carry.
	e, _ := newTestEngine()

	p, err := e.PreviewBill(context.Background(), "owner-1", "f-1", march(1), march(31))
	if err != nil {
		t.Fatalf("preview: %v", err)
	}
	if !p.Milk.TotalAmount.IsZero() || !p.NetPayable.IsZero() {
		t.Errorf("expected zero totals, got milk %v net %v", p.Milk.TotalAmount, p.NetPayable)
	}
}

// =============================================================================
// PAYMENT CORRECTION
// =============================================================================

func TestUpdatePayment_AdjustsCarryForward(t *testing.T) {
	// GIVEN: A bill settled exactly (net 1000, paid 1000)
	// WHEN: The payment is corrected down to 950
	// THEN: Adjustment -50, carry-forward -50, running balance follows

	e, mem := newTestEngine()
	seedMilk(t, mem, "f-1", 1, coop.SessionMorning, "100", "10")
	bill := generate(t, e, "f-1", "0", "1000")

	updated, err := e.UpdatePayment(context.Background(), bill.BillID, dec("950"))
	if err != nil {
		t.Fatalf("update payment: %v", err)
	}

	if !updated.Adjustment.Equal(dec("-50")) {
		t.Errorf("expected adjustment -50, got %v", updated.Adjustment)
	}
	if !updated.NewCarryForward.Equal(dec("-50")) {
		t.Errorf("expected carry-forward -50, got %v", updated.NewCarryForward)
	}
	carry, ok, _ := mem.CarryForward(context.Background(), "f-1")
	if !ok || !carry.Equal(dec("-50")) {
		t.Errorf("expected running balance -50, got %v (ok=%v)", carry, ok)
	}
}

func TestUpdatePayment_MilkSnapshotUntouched(t *testing.T) {
	// Correcting a payment must not recompute the milk or feed columns.
	e, mem := newTestEngine()
	seedMilk(t, mem, "f-1", 1, coop.SessionMorning, "100", "10")
	bill := generate(t, e, "f-1", "0", "1000")
	before := bill.MilkSnapshot()

	// New milk arrives after settlement
	seedMilk(t, mem, "f-1", 30, coop.SessionEvening, "500", "10")

	updated, err := e.UpdatePayment(context.Background(), bill.BillID, dec("900"))
	if err != nil {
		t.Fatalf("update payment: %v", err)
	}
	after := updated.MilkSnapshot()

	if !before.TotalAmount.Equal(after.TotalAmount) || !before.TotalLiters.Equal(after.TotalLiters) {
		t.Errorf("snapshot changed: %+v vs %+v", before, after)
	}
	if !updated.NetPayable.Equal(bill.NetPayable) {
		t.Errorf("net payable changed: %v vs %v", updated.NetPayable, bill.NetPayable)
	}
}

func TestUpdatePayment_RoundingEnforced(t *testing.T) {
	e, mem := newTestEngine()
	seedMilk(t, mem, "f-1", 1, coop.SessionMorning, "100.75", "10")
	bill := generate(t, e, "f-1", "0", "1007")

	_, err := e.UpdatePayment(context.Background(), bill.BillID, dec("1007.10"))
	var roundErr *billing.RoundingError
	if !errors.As(err, &roundErr) {
		t.Fatalf("expected RoundingError, got %v", err)
	}
}

func TestUpdatePayment_NotFound(t *testing.T) {
	e, _ := newTestEngine()
	_, err := e.UpdatePayment(context.Background(), "missing", dec("100"))
	if !billing.IsNotFound(err) {
		t.Fatalf("expected not-found, got %v", err)
	}
}

func TestUpdatePayment_LegacyBalanceSeedsFromNewestBill(t *testing.T) {
	// GIVEN: Two bills but no balance row (legacy data), the second with
	//        carry-forward -100
	// WHEN: The FIRST bill's payment is corrected (delta -50)
	// THEN: The balance seeds from the newest bill, landing at -150, not
	//       from the corrected bill or from zero

	e, mem := newTestEngine()
	seedMilk(t, mem, "f-1", 1, coop.SessionMorning, "100", "10")
	first := generate(t, e, "f-1", "0", "950") // net 1000, carry -50

	seedMilk(t, mem, "f-1", 15, coop.SessionEvening, "50", "10")
	_, err := e.GenerateBill(context.Background(), billing.GenerateInput{
		OwnerID:    "owner-1",
		FarmerID:   "f-1",
		Start:      march(15),
		End:        march(31),
		ActualPaid: dec("400"), // net 450, carry -100
	})
	if err != nil {
		t.Fatalf("second bill: %v", err)
	}

	mem.DropBalance("f-1")

	// First bill: stored net 1000, prev carry 0. Paying 900 makes its
	// carry -100, a delta of -50 against the recorded -50.
	if _, err := e.UpdatePayment(context.Background(), first.BillID, dec("900")); err != nil {
		t.Fatalf("update payment: %v", err)
	}

	carry, ok, _ := mem.CarryForward(context.Background(), "f-1")
	if !ok || !carry.Equal(dec("-150")) {
		t.Errorf("expected running balance -150, got %v (ok=%v)", carry, ok)
	}
}

// =============================================================================
// CARRY-FORWARD RESOLUTION
// =============================================================================

func TestCarryForward_FallbackToNewestBill(t *testing.T) {
	// GIVEN: A farmer with bill history but no balance row (legacy data)
	// WHEN: Resolving the carry-forward
	// THEN: The newest bill's carry is used, and nothing is written

	e, mem := newTestEngine()
	seedMilk(t, mem, "f-1", 1, coop.SessionMorning, "100", "10")
	generate(t, e, "f-1", "0", "950") // carry -50

	mem.DropBalance("f-1")

	carry, err := e.CarryForward(context.Background(), "f-1")
	if err != nil {
		t.Fatalf("carry forward: %v", err)
	}
	if !carry.Equal(dec("-50")) {
		t.Errorf("expected fallback carry -50, got %v", carry)
	}
	if _, ok, _ := mem.CarryForward(context.Background(), "f-1"); ok {
		t.Error("read-only fallback recreated the balance row")
	}
}

func TestCarryForward_NoHistoryIsZero(t *testing.T) {
	e, _ := newTestEngine()
	carry, err := e.CarryForward(context.Background(), "new-farmer")
	if err != nil {
		t.Fatalf("carry forward: %v", err)
	}
	if !carry.IsZero() {
		t.Errorf("expected zero for new farmer, got %v", carry)
	}
}
