/*
filter.go - Milk session query filters

PURPOSE:
  Admins and farmers browse milk logs by exact date, session, calendar
  month, or month "section". Sections split a month into thirds - the
  cooperative settles with farmers roughly every ten days, so the
  dashboard groups logs the same way:

    section 1: day 1-10
    section 2: day 11-20
    section 3: day 21-end of month

  The filter itself is a plain value; the store translates it into SQL
  and Matches() gives the reference semantics for tests and the memory
  store.
*/
package coop

import (
	"fmt"
	"time"
)

// =============================================================================
// SECTIONS - thirds of a calendar month
// =============================================================================

type Section string

const (
	SectionAll   Section = "All"
	SectionFirst Section = "1-10"
	SectionMid   Section = "11-20"
	SectionLast  Section = "21-End"
)

// ParseSection accepts the wire spellings of a section, including the
// en-dash variants the dashboard sends.
func ParseSection(s string) (Section, error) {
	switch s {
	case "", "All":
		return SectionAll, nil
	case "1-10", "1–10":
		return SectionFirst, nil
	case "11-20", "11–20":
		return SectionMid, nil
	case "21-End", "21–End":
		return SectionLast, nil
	}
	return "", fmt.Errorf("invalid section %q", s)
}

// DayBounds returns the inclusive day-of-month range for a section.
// hi == 0 means "through the end of the month".
func (s Section) DayBounds() (lo, hi int) {
	switch s {
	case SectionFirst:
		return 1, 10
	case SectionMid:
		return 11, 20
	case SectionLast:
		return 21, 0
	}
	return 1, 0
}

// =============================================================================
// MILK FILTER
// =============================================================================

// MilkFilter narrows a milk session listing. Zero values mean "no
// constraint". OwnerID and FarmerID may be combined (admin viewing one
// farmer) or used alone (admin dashboard, farmer self-view).
type MilkFilter struct {
	OwnerID  string
	FarmerID string

	// Date matches one exact calendar day.
	Date *time.Time

	// Month matches a whole calendar month (any day value is ignored).
	Month *time.Time

	// Session filters Morning/Evening; empty means both.
	Session Session

	// Section filters by day-of-month thirds within whatever other date
	// constraints apply.
	Section Section
}

// Matches reports whether a session satisfies the filter. This is the
// reference implementation; store/sqlite compiles the same predicate to
// SQL.
func (f MilkFilter) Matches(s MilkSession) bool {
	if f.OwnerID != "" && s.OwnerID != f.OwnerID {
		return false
	}
	if f.FarmerID != "" && s.FarmerID != f.FarmerID {
		return false
	}
	if f.Session != "" && f.Session != s.Session {
		return false
	}
	if f.Date != nil && !DateOnly(*f.Date).Equal(DateOnly(s.Date)) {
		return false
	}
	if f.Month != nil {
		m := f.Month.UTC()
		if s.Date.Year() != m.Year() || s.Date.Month() != m.Month() {
			return false
		}
	}
	if f.Section != "" && f.Section != SectionAll {
		lo, hi := f.Section.DayBounds()
		day := s.Date.Day()
		if day < lo {
			return false
		}
		if hi != 0 && day > hi {
			return false
		}
	}
	return true
}
