/*
Package coop defines the cooperative's domain records.

PURPOSE:
  Farmers, milk collection sessions, and feed purchases are the raw
  material of the back office. This package holds their record types and
  the small amount of pure logic attached to them (session parsing,
  total-cost computation, calendar sections). Persistence lives in
  store/sqlite; billing math lives in the billing package.

KEY CONCEPTS:
  - Farmer: registered by an admin (the "owner"), id globally unique
  - MilkSession: one collection event, Morning or Evening, immutable
  - FeedPurchase: a credit to the farmer's feed account, farmer-global
  - Section: thirds of a calendar month used for log filtering

DESIGN PRINCIPLES:
  1. Precision: quantities and currency use decimal.Decimal
  2. Immutability: milk sessions are created and deleted, never edited
  3. Ownership: milk sessions and farmers are scoped to an owner id;
     feed purchases deliberately are not

SEE ALSO:
  - coop/filter.go: Milk session query filters
  - billing/milk.go: Aggregation of sessions into bill totals
  - store/sqlite/sqlite.go: Persistence
*/
package coop

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SESSION - Morning or Evening collection
// =============================================================================

// Session is one of the two daily milk-collection events.
type Session string

const (
	SessionMorning Session = "Morning"
	SessionEvening Session = "Evening"
)

// ParseSession validates a session label.
func ParseSession(s string) (Session, error) {
	switch Session(s) {
	case SessionMorning, SessionEvening:
		return Session(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidSession, s)
}

// =============================================================================
// FARMER
// =============================================================================

// BankDetails holds the payout account for a farmer.
type BankDetails struct {
	AccountNo string
	IFSC      string
}

// Farmer is a member of the cooperative, registered under one owner
// (admin). FarmerID is caller-chosen and globally unique: ids are
// printed on collection cards and must never resolve to two farmers.
type Farmer struct {
	FarmerID string
	OwnerID  string
	Name     string
	Phone    string
	Address  string
	Bank     BankDetails
}

// Validate checks required registration fields.
func (f Farmer) Validate() error {
	switch {
	case f.FarmerID == "":
		return fmt.Errorf("%w: farmer_id", ErrMissingField)
	case f.OwnerID == "":
		return fmt.Errorf("%w: owner_id", ErrMissingField)
	case f.Name == "":
		return fmt.Errorf("%w: name", ErrMissingField)
	case f.Phone == "":
		return fmt.Errorf("%w: phone", ErrMissingField)
	case f.Address == "":
		return fmt.Errorf("%w: address", ErrMissingField)
	case f.Bank.AccountNo == "" || f.Bank.IFSC == "":
		return fmt.Errorf("%w: bank_details", ErrMissingField)
	}
	return nil
}

// =============================================================================
// MILK SESSION
// =============================================================================

// MilkSession is one collection record: a farmer delivered some liters at
// a rate during one session of one day. TotalCost is fixed at creation;
// the record is never updated afterwards.
type MilkSession struct {
	LogID        string
	OwnerID      string
	FarmerID     string
	Date         time.Time
	Session      Session
	Liters       decimal.Decimal
	FatPercent   decimal.Decimal
	RatePerLiter decimal.Decimal
	TotalCost    decimal.Decimal
}

// NewMilkSession builds a session record, computing total cost as
// liters x rate.
func NewMilkSession(logID, ownerID, farmerID string, date time.Time, session Session, liters, fatPercent, rate decimal.Decimal) (MilkSession, error) {
	if ownerID == "" || farmerID == "" {
		return MilkSession{}, fmt.Errorf("%w: owner_id and farmer_id", ErrMissingField)
	}
	if liters.IsNegative() {
		return MilkSession{}, fmt.Errorf("%w: quantity_liters must be >= 0", ErrInvalidQuantity)
	}
	return MilkSession{
		LogID:        logID,
		OwnerID:      ownerID,
		FarmerID:     farmerID,
		Date:         DateOnly(date),
		Session:      session,
		Liters:       liters,
		FatPercent:   fatPercent,
		RatePerLiter: rate,
		TotalCost:    liters.Mul(rate),
	}, nil
}

// =============================================================================
// FEED PURCHASE
// =============================================================================

// FeedPurchase credits the farmer's feed account. Purchases are keyed by
// farmer only; they are not scoped to an owner.
type FeedPurchase struct {
	ID       string
	FarmerID string
	Date     time.Time
	Quantity decimal.Decimal
	Price    decimal.Decimal

	CreatedAt time.Time
}

// Validate checks a purchase before it is stored.
func (p FeedPurchase) Validate() error {
	switch {
	case p.FarmerID == "":
		return fmt.Errorf("%w: farmer_id", ErrMissingField)
	case p.Date.IsZero():
		return fmt.Errorf("%w: date", ErrMissingField)
	case p.Quantity.IsNegative():
		return fmt.Errorf("%w: quantity must be >= 0", ErrInvalidQuantity)
	case p.Price.IsNegative():
		return fmt.Errorf("%w: price must be >= 0", ErrInvalidQuantity)
	}
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

// DateOnly truncates a timestamp to its calendar day in UTC. Milk
// sessions and billing periods are day-granular.
func DateOnly(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrMissingField is returned when a required record field is empty.
	ErrMissingField = errors.New("missing required field")

	// ErrInvalidSession is returned for session labels other than
	// Morning or Evening.
	ErrInvalidSession = errors.New("invalid session")

	// ErrInvalidQuantity is returned for negative quantities or prices.
	ErrInvalidQuantity = errors.New("invalid quantity")

	// ErrDuplicateFarmer is returned when a farmer id is already taken.
	ErrDuplicateFarmer = errors.New("farmer id already exists")

	// ErrFarmerNotFound is returned when a farmer id cannot be resolved
	// for the requesting owner.
	ErrFarmerNotFound = errors.New("farmer not found")

	// ErrMilkLogNotFound is returned when a milk log id cannot be
	// resolved for the requesting owner.
	ErrMilkLogNotFound = errors.New("milk log not found")

	// ErrFeedPurchaseNotFound is returned when a feed purchase id does
	// not exist.
	ErrFeedPurchaseNotFound = errors.New("feed purchase not found")
)
