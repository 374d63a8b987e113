package domain

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// PaymentState represents how much of an installment has been settled
type PaymentState string

const (
	PaymentStateNotPaid PaymentState = "NOT_PAID"
	PaymentStatePartial PaymentState = "PARTIAL"
	PaymentStatePaid    PaymentState = "PAID"
)

// PartnerShare is one owner's part of an installment's income and commission
type PartnerShare struct {
	InstallmentID InstallmentID   `json:"installment_id"`
	PartnerID     PartnerID       `json:"partner_id"`
	Percentage    decimal.Decimal `json:"percentage"`
	Income        decimal.Decimal `json:"income"`
	Commission    decimal.Decimal `json:"commission"`
	InvoiceRef    string          `json:"invoice_ref,omitempty"`
}

// Installment is one scheduled billing event of a contract
type Installment struct {
	ID           InstallmentID   `json:"id"`
	TenantID     string          `json:"tenant_id"`
	ContractID   ContractID      `json:"contract_id"`
	Serial       int             `json:"serial"`
	Date         time.Time       `json:"date"`
	Amount       Money           `json:"amount"`
	Commission   decimal.Decimal `json:"commission"`
	PaymentState PaymentState    `json:"payment_state"`
	PaidAmount   decimal.Decimal `json:"paid_amount"`
	Active       bool            `json:"active"`
	Billed       []PartnerShare  `json:"billed,omitempty"`
	BilledAt     *time.Time      `json:"billed_at,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    *time.Time      `json:"updated_at,omitempty"`
}

// IsInvoiced reports whether invoices were emitted for the installment
func (i Installment) IsInvoiced() bool {
	return len(i.Billed) > 0
}

// IsLocked reports whether the installment is part of settled or invoiced
// history. Locked installments are never deleted or rewritten.
func (i Installment) IsLocked() bool {
	return i.PaymentState != PaymentStateNotPaid || i.IsInvoiced()
}

// Outstanding returns the amount still owed
func (i Installment) Outstanding() decimal.Decimal {
	out := i.Amount.Amount.Sub(i.PaidAmount)
	if out.IsNegative() {
		return decimal.Zero
	}
	return out
}

// WithPayment returns a copy with the payment applied and the state recomputed
func (i Installment) WithPayment(amount decimal.Decimal, at time.Time) (Installment, error) {
	if !amount.IsPositive() {
		return i, NewDomainError("payment amount must be positive")
	}
	if amount.GreaterThan(i.Outstanding()) {
		return i, NewDomainError("payment %s exceeds outstanding %s on installment #%d", amount, i.Outstanding(), i.Serial)
	}
	i.PaidAmount = i.PaidAmount.Add(amount)
	if i.PaidAmount.Equal(i.Amount.Amount) {
		i.PaymentState = PaymentStatePaid
	} else {
		i.PaymentState = PaymentStatePartial
	}
	i.UpdatedAt = &at
	return i, nil
}

// WithActive returns a copy with the suspension flag changed
func (i Installment) WithActive(active bool, at time.Time) Installment {
	i.Active = active
	i.UpdatedAt = &at
	return i
}

// WithBilling returns a copy recording the emitted partner shares
func (i Installment) WithBilling(shares []PartnerShare, at time.Time) Installment {
	i.Billed = append(make([]PartnerShare, 0, len(shares)), shares...)
	i.BilledAt = &at
	i.UpdatedAt = &at
	return i
}

// IsOverdue reports whether the installment is unpaid past its grace period
func (i Installment) IsOverdue(asOf time.Time, graceDays int) bool {
	if i.PaymentState == PaymentStatePaid || !i.Active {
		return false
	}
	return Date(asOf).After(Date(i.Date).AddDate(0, 0, graceDays))
}

// SortInstallments orders installments by date, then serial
func SortInstallments(items []Installment) {
	sort.SliceStable(items, func(a, b int) bool {
		if !items[a].Date.Equal(items[b].Date) {
			return items[a].Date.Before(items[b].Date)
		}
		return items[a].Serial < items[b].Serial
	})
}

// MaxSerial returns the highest serial in items, or 0
func MaxSerial(items []Installment) int {
	max := 0
	for _, i := range items {
		if i.Serial > max {
			max = i.Serial
		}
	}
	return max
}

// PendingBalance counts installments that are not fully paid and sums what they still owe
func PendingBalance(items []Installment) (int, decimal.Decimal) {
	count := 0
	total := decimal.Zero
	for _, i := range items {
		if i.PaymentState == PaymentStatePaid {
			continue
		}
		count++
		total = total.Add(i.Outstanding())
	}
	return count, total
}
