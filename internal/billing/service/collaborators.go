package service

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/zlovtnik/leasebill/internal/billing/domain"
)

// InvoiceRequest asks the ledger for one billable line
type InvoiceRequest struct {
	TenantID           string            `json:"tenant_id"`
	ContractID         domain.ContractID `json:"contract_id"`
	PartnerID          domain.PartnerID  `json:"partner_id"`
	Amount             domain.Money      `json:"amount"`
	DueDate            time.Time         `json:"due_date"`
	Reference          string            `json:"reference"`
	DestinationAccount string            `json:"destination_account,omitempty"`
}

// InvoiceEmitter creates invoices in the external ledger and returns their reference
type InvoiceEmitter interface {
	EmitInvoice(ctx context.Context, req InvoiceRequest) (string, error)
}

// OwnershipProvider returns the ownership shares of a property active on a date
type OwnershipProvider interface {
	ActiveShares(ctx context.Context, tenantID string, propertyID domain.PropertyID, asOf time.Time) (domain.OwnershipTable, error)
}

// Notifier receives audit entries after commit. Delivery failures are the notifier's concern.
type Notifier interface {
	Notify(ctx context.Context, entry domain.AuditEntry)
}

// PropertyReleaser tells property availability that a unit is free again
type PropertyReleaser interface {
	ReleaseProperty(ctx context.Context, tenantID string, propertyID domain.PropertyID, at time.Time) error
}

// LateFeePolicy prices an overdue installment
type LateFeePolicy interface {
	LateFee(c domain.Contract, inst domain.Installment, asOf time.Time) decimal.Decimal
}

// MonthlyInterestPolicy charges interest_rate × days_late / 30 × outstanding,
// with days counted from the installment date
type MonthlyInterestPolicy struct {
	Places int32
}

// LateFee implements LateFeePolicy
func (p MonthlyInterestPolicy) LateFee(c domain.Contract, inst domain.Installment, asOf time.Time) decimal.Decimal {
	days := domain.DaysBetween(inst.Date, asOf)
	if days <= 0 {
		return decimal.Zero
	}
	return c.InterestRate.
		Mul(decimal.NewFromInt(int64(days))).
		Div(decimal.NewFromInt(30)).
		Mul(inst.Outstanding()).
		Round(p.Places)
}

type noopNotifier struct{}

func (noopNotifier) Notify(context.Context, domain.AuditEntry) {}

type noopReleaser struct{}

func (noopReleaser) ReleaseProperty(context.Context, string, domain.PropertyID, time.Time) error {
	return nil
}
