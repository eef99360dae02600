/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

MONEY:
  All money and liter fields are decimal.Decimal, which marshals to a
  quoted string ("1050.50"). Clients must not round-trip amounts through
  binary floats.

DATES:
  Day-granular fields (periods, log dates) use "2006-01-02". Timestamps
  use RFC3339.

VALIDATION:
  Validation is done in handlers, not in DTOs. DTOs are pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
  - billing/types.go: The domain records these wrap
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/shreyasbagave/Dairy/billing"
	"github.com/shreyasbagave/Dairy/coop"
)

// =============================================================================
// FARMERS
// =============================================================================

// FarmerDTO represents a farmer in API responses.
type FarmerDTO struct {
	FarmerID      string `json:"farmer_id"`
	OwnerID       string `json:"owner_id"`
	Name          string `json:"name"`
	Phone         string `json:"phone"`
	Address       string `json:"address"`
	BankAccountNo string `json:"bank_account_no"`
	BankIFSC      string `json:"bank_ifsc"`
}

// CreateFarmerRequest is the request to register a farmer.
type CreateFarmerRequest struct {
	FarmerID      string `json:"farmer_id"`
	OwnerID       string `json:"owner_id"`
	Name          string `json:"name"`
	Phone         string `json:"phone"`
	Address       string `json:"address"`
	BankAccountNo string `json:"bank_account_no"`
	BankIFSC      string `json:"bank_ifsc"`
}

// UpdateFarmerRequest edits a farmer's registration fields. The farmer
// id itself is immutable.
type UpdateFarmerRequest struct {
	Name          string `json:"name"`
	Phone         string `json:"phone"`
	Address       string `json:"address"`
	BankAccountNo string `json:"bank_account_no"`
	BankIFSC      string `json:"bank_ifsc"`
}

// =============================================================================
// MILK SESSIONS
// =============================================================================

// MilkSessionDTO represents one collection record.
type MilkSessionDTO struct {
	LogID        string          `json:"log_id"`
	OwnerID      string          `json:"owner_id"`
	FarmerID     string          `json:"farmer_id"`
	Date         string          `json:"date"`
	Session      string          `json:"session"`
	Liters       decimal.Decimal `json:"liters"`
	FatPercent   decimal.Decimal `json:"fat_percent"`
	RatePerLiter decimal.Decimal `json:"rate_per_liter"`
	TotalCost    decimal.Decimal `json:"total_cost"`
}

// AddMilkSessionRequest records a collection. TotalCost is computed
// server-side; a client-supplied value is ignored.
type AddMilkSessionRequest struct {
	OwnerID      string          `json:"owner_id"`
	FarmerID     string          `json:"farmer_id"`
	Date         string          `json:"date"`
	Session      string          `json:"session"`
	Liters       decimal.Decimal `json:"liters"`
	FatPercent   decimal.Decimal `json:"fat_percent"`
	RatePerLiter decimal.Decimal `json:"rate_per_liter"`
}

// =============================================================================
// FEED PURCHASES
// =============================================================================

// FeedPurchaseDTO represents one feed credit.
type FeedPurchaseDTO struct {
	ID       string          `json:"id"`
	FarmerID string          `json:"farmer_id"`
	Date     string          `json:"date"`
	Quantity decimal.Decimal `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
}

// AddFeedPurchaseRequest records a feed purchase against a farmer.
type AddFeedPurchaseRequest struct {
	FarmerID string          `json:"farmer_id"`
	Date     string          `json:"date"`
	Quantity decimal.Decimal `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
}

// UpdateFeedPurchaseRequest edits a purchase in place.
type UpdateFeedPurchaseRequest struct {
	Date     string          `json:"date"`
	Quantity decimal.Decimal `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
}

// =============================================================================
// BILLING
// =============================================================================

// PreviewBillRequest asks what a settlement would look like without
// writing anything.
type PreviewBillRequest struct {
	OwnerID     string `json:"owner_id"`
	FarmerID    string `json:"farmer_id"`
	PeriodStart string `json:"period_start"`
	PeriodEnd   string `json:"period_end"`
}

// GenerateBillRequest settles a period: deducts feed, reconciles the
// cash actually handed over, and persists the bill.
type GenerateBillRequest struct {
	OwnerID       string          `json:"owner_id"`
	FarmerID      string          `json:"farmer_id"`
	PeriodStart   string          `json:"period_start"`
	PeriodEnd     string          `json:"period_end"`
	FeedDeduction decimal.Decimal `json:"feed_deduction"`
	ActualPaid    decimal.Decimal `json:"actual_paid"`
}

// UpdatePaymentRequest corrects the paid amount on an existing bill.
type UpdatePaymentRequest struct {
	ActualPaid decimal.Decimal `json:"actual_paid"`
}

// BillPreviewDTO is the dry-run settlement view.
type BillPreviewDTO struct {
	FarmerID      string          `json:"farmer_id"`
	PeriodStart   string          `json:"period_start"`
	PeriodEnd     string          `json:"period_end"`
	MorningLiters decimal.Decimal `json:"morning_liters"`
	MorningAmount decimal.Decimal `json:"morning_amount"`
	EveningLiters decimal.Decimal `json:"evening_liters"`
	EveningAmount decimal.Decimal `json:"evening_amount"`
	TotalLiters   decimal.Decimal `json:"total_liters"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	FeedPurchased decimal.Decimal `json:"feed_purchased"`
	FeedDeducted  decimal.Decimal `json:"feed_deducted"`
	FeedRemaining decimal.Decimal `json:"feed_remaining"`
	CarryForward  decimal.Decimal `json:"carry_forward"`
	NetPayable    decimal.Decimal `json:"net_payable"`
}

// BillDTO represents a persisted bill.
type BillDTO struct {
	BillID               string          `json:"bill_id"`
	OwnerID              string          `json:"owner_id"`
	FarmerID             string          `json:"farmer_id"`
	PeriodStart          string          `json:"period_start"`
	PeriodEnd            string          `json:"period_end"`
	MorningLiters        decimal.Decimal `json:"morning_liters"`
	MorningAmount        decimal.Decimal `json:"morning_amount"`
	EveningLiters        decimal.Decimal `json:"evening_liters"`
	EveningAmount        decimal.Decimal `json:"evening_amount"`
	MilkTotalLiters      decimal.Decimal `json:"milk_total_liters"`
	MilkTotalAmount      decimal.Decimal `json:"milk_total_amount"`
	FeedDeducted         decimal.Decimal `json:"feed_deducted_this_cycle"`
	RemainingFeedAfter   decimal.Decimal `json:"remaining_feed_balance_after"`
	PreviousCarryForward decimal.Decimal `json:"previous_carry_forward"`
	NetPayable           decimal.Decimal `json:"net_payable"`
	ActualPaid           decimal.Decimal `json:"actual_paid_amount"`
	Adjustment           decimal.Decimal `json:"adjustment"`
	NewCarryForward      decimal.Decimal `json:"new_carry_forward_balance"`
	Status               string          `json:"status"`
	CreatedAt            string          `json:"created_at"`
}

// BalanceDTO reports a farmer's running carry-forward.
type BalanceDTO struct {
	FarmerID     string          `json:"farmer_id"`
	CarryForward decimal.Decimal `json:"carry_forward"`
}

// ErrorResponse is the standard error payload.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`

	// Rounding suggestions, present only when a payment is rejected for
	// being fractional against a fractional net payable.
	SuggestedFloor *decimal.Decimal `json:"suggested_floor,omitempty"`
	SuggestedCeil  *decimal.Decimal `json:"suggested_ceil,omitempty"`
}

// =============================================================================
// CONVERTERS
// =============================================================================

func toFarmerDTO(f coop.Farmer) FarmerDTO {
	return FarmerDTO{
		FarmerID:      f.FarmerID,
		OwnerID:       f.OwnerID,
		Name:          f.Name,
		Phone:         f.Phone,
		Address:       f.Address,
		BankAccountNo: f.Bank.AccountNo,
		BankIFSC:      f.Bank.IFSC,
	}
}

func toMilkSessionDTO(m coop.MilkSession) MilkSessionDTO {
	return MilkSessionDTO{
		LogID:        m.LogID,
		OwnerID:      m.OwnerID,
		FarmerID:     m.FarmerID,
		Date:         m.Date.Format("2006-01-02"),
		Session:      string(m.Session),
		Liters:       m.Liters,
		FatPercent:   m.FatPercent,
		RatePerLiter: m.RatePerLiter,
		TotalCost:    m.TotalCost,
	}
}

func toFeedPurchaseDTO(p coop.FeedPurchase) FeedPurchaseDTO {
	return FeedPurchaseDTO{
		ID:       p.ID,
		FarmerID: p.FarmerID,
		Date:     p.Date.Format("2006-01-02"),
		Quantity: p.Quantity,
		Price:    p.Price,
	}
}

func toBillPreviewDTO(p *billing.Preview) BillPreviewDTO {
	return BillPreviewDTO{
		FarmerID:      p.FarmerID,
		PeriodStart:   p.PeriodStart.Format("2006-01-02"),
		PeriodEnd:     p.PeriodEnd.Format("2006-01-02"),
		MorningLiters: p.Milk.MorningLiters,
		MorningAmount: p.Milk.MorningAmount,
		EveningLiters: p.Milk.EveningLiters,
		EveningAmount: p.Milk.EveningAmount,
		TotalLiters:   p.Milk.TotalLiters,
		TotalAmount:   p.Milk.TotalAmount,
		FeedPurchased: p.Feed.Purchased,
		FeedDeducted:  p.Feed.Deducted,
		FeedRemaining: p.Feed.Remaining,
		CarryForward:  p.CarryForward,
		NetPayable:    p.NetPayable,
	}
}

func toBillDTO(b billing.Bill) BillDTO {
	return BillDTO{
		BillID:               b.BillID,
		OwnerID:              b.OwnerID,
		FarmerID:             b.FarmerID,
		PeriodStart:          b.PeriodStart.Format("2006-01-02"),
		PeriodEnd:            b.PeriodEnd.Format("2006-01-02"),
		MorningLiters:        b.MorningLiters,
		MorningAmount:        b.MorningAmount,
		EveningLiters:        b.EveningLiters,
		EveningAmount:        b.EveningAmount,
		MilkTotalLiters:      b.MilkLiters,
		MilkTotalAmount:      b.MilkAmount,
		FeedDeducted:         b.FeedDeducted,
		RemainingFeedAfter:   b.RemainingFeedAfter,
		PreviousCarryForward: b.PreviousCarryForward,
		NetPayable:           b.NetPayable,
		ActualPaid:           b.ActualPaid,
		Adjustment:           b.Adjustment,
		NewCarryForward:      b.NewCarryForward,
		Status:               string(b.Status),
		CreatedAt:            b.CreatedAt.UTC().Format(time.RFC3339),
	}
}
