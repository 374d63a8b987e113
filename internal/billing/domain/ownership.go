package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// OwnershipShare is a partner's fractional ownership of a property over a validity window.
// ValidTo is exclusive; nil means open-ended.
type OwnershipShare struct {
	PropertyID  PropertyID      `json:"property_id"`
	PartnerID   PartnerID       `json:"partner_id"`
	Percentage  decimal.Decimal `json:"percentage"`
	IsMainOwner bool            `json:"is_main_owner"`
	ValidFrom   *time.Time      `json:"valid_from,omitempty"`
	ValidTo     *time.Time      `json:"valid_to,omitempty"`
}

// IsActiveOn reports whether the share applies on the given date
func (s OwnershipShare) IsActiveOn(on time.Time) bool {
	on = Date(on)
	if s.ValidFrom != nil && on.Before(Date(*s.ValidFrom)) {
		return false
	}
	if s.ValidTo != nil && !on.Before(Date(*s.ValidTo)) {
		return false
	}
	return s.Percentage.IsPositive()
}

// OwnershipTable is the set of shares known for one property
type OwnershipTable []OwnershipShare

// ActiveOn returns the shares active on the given date, main owners first
func (t OwnershipTable) ActiveOn(on time.Time) OwnershipTable {
	var main, rest OwnershipTable
	for _, s := range t {
		if !s.IsActiveOn(on) {
			continue
		}
		if s.IsMainOwner {
			main = append(main, s)
		} else {
			rest = append(rest, s)
		}
	}
	return append(main, rest...)
}

// TotalPercentage sums the percentages of all shares in the table
func (t OwnershipTable) TotalPercentage() decimal.Decimal {
	total := decimal.Zero
	for _, s := range t {
		total = total.Add(s.Percentage)
	}
	return total
}
