package domain

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ID type aliases for type safety
type ContractID uuid.UUID
type ContractLineID uuid.UUID
type InstallmentID uuid.UUID
type SpecialPaymentID uuid.UUID
type PartnerID uuid.UUID
type PropertyID uuid.UUID
type UserID uuid.UUID

// String methods for ID types
func (id ContractID) String() string       { return uuid.UUID(id).String() }
func (id ContractLineID) String() string   { return uuid.UUID(id).String() }
func (id InstallmentID) String() string    { return uuid.UUID(id).String() }
func (id SpecialPaymentID) String() string { return uuid.UUID(id).String() }
func (id PartnerID) String() string        { return uuid.UUID(id).String() }
func (id PropertyID) String() string       { return uuid.UUID(id).String() }
func (id UserID) String() string           { return uuid.UUID(id).String() }

// IsZero methods for ID types
func (id ContractID) IsZero() bool       { return uuid.UUID(id) == uuid.Nil }
func (id ContractLineID) IsZero() bool   { return uuid.UUID(id) == uuid.Nil }
func (id InstallmentID) IsZero() bool    { return uuid.UUID(id) == uuid.Nil }
func (id SpecialPaymentID) IsZero() bool { return uuid.UUID(id) == uuid.Nil }
func (id PartnerID) IsZero() bool        { return uuid.UUID(id) == uuid.Nil }
func (id PropertyID) IsZero() bool       { return uuid.UUID(id) == uuid.Nil }
func (id UserID) IsZero() bool           { return uuid.UUID(id) == uuid.Nil }

// Text encoding so IDs travel as canonical UUID strings in JSON
func (id ContractID) MarshalText() ([]byte, error)       { return uuid.UUID(id).MarshalText() }
func (id ContractLineID) MarshalText() ([]byte, error)   { return uuid.UUID(id).MarshalText() }
func (id InstallmentID) MarshalText() ([]byte, error)    { return uuid.UUID(id).MarshalText() }
func (id SpecialPaymentID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }
func (id PartnerID) MarshalText() ([]byte, error)        { return uuid.UUID(id).MarshalText() }
func (id PropertyID) MarshalText() ([]byte, error)       { return uuid.UUID(id).MarshalText() }
func (id UserID) MarshalText() ([]byte, error)           { return uuid.UUID(id).MarshalText() }

func (id *ContractID) UnmarshalText(b []byte) error       { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *ContractLineID) UnmarshalText(b []byte) error   { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *InstallmentID) UnmarshalText(b []byte) error    { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *SpecialPaymentID) UnmarshalText(b []byte) error { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *PartnerID) UnmarshalText(b []byte) error        { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *PropertyID) UnmarshalText(b []byte) error       { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *UserID) UnmarshalText(b []byte) error           { return (*uuid.UUID)(id).UnmarshalText(b) }

func NewContractID() ContractID             { return ContractID(uuid.New()) }
func NewContractLineID() ContractLineID     { return ContractLineID(uuid.New()) }
func NewInstallmentID() InstallmentID       { return InstallmentID(uuid.New()) }
func NewSpecialPaymentID() SpecialPaymentID { return SpecialPaymentID(uuid.New()) }
func NewPartnerID() PartnerID               { return PartnerID(uuid.New()) }
func NewPropertyID() PropertyID             { return PropertyID(uuid.New()) }
func NewUserID() UserID                     { return UserID(uuid.New()) }

// DefaultCurrencyPlaces is the rounding precision used when none is configured.
const DefaultCurrencyPlaces int32 = 2

// Money represents a monetary value with currency
type Money struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
}

// NewMoney creates a new Money value
func NewMoney(amount decimal.Decimal, currency string) Money {
	return Money{Amount: amount, Currency: currency}
}

// Add adds two money values (must be same currency)
func (m Money) Add(other Money) (Money, error) {
	if m.Currency != other.Currency {
		return Money{}, fmt.Errorf("cannot add money with different currencies: %s and %s", m.Currency, other.Currency)
	}
	return Money{Amount: m.Amount.Add(other.Amount), Currency: m.Currency}, nil
}

// Subtract subtracts two money values (must be same currency)
func (m Money) Subtract(other Money) (Money, error) {
	if m.Currency != other.Currency {
		return Money{}, fmt.Errorf("cannot subtract money with different currencies: %s and %s", m.Currency, other.Currency)
	}
	return Money{Amount: m.Amount.Sub(other.Amount), Currency: m.Currency}, nil
}

// WithAmount returns a copy carrying the given amount in the same currency
func (m Money) WithAmount(amount decimal.Decimal) Money {
	return Money{Amount: amount, Currency: m.Currency}
}

// Round rounds the amount half away from zero to the given number of places
func (m Money) Round(places int32) Money {
	return Money{Amount: m.Amount.Round(places), Currency: m.Currency}
}

func (m Money) IsPositive() bool { return m.Amount.IsPositive() }
func (m Money) IsZero() bool     { return m.Amount.IsZero() }

func (m Money) String() string {
	return m.Amount.StringFixed(DefaultCurrencyPlaces) + " " + m.Currency
}
