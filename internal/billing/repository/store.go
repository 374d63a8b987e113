// Package repository persists contracts, installments, special payments and
// the audit trail. Writes happen inside a unit of work that holds the
// contract lock until commit.
package repository

import (
	"context"
	"time"

	"github.com/zlovtnik/leasebill/internal/billing/domain"
	"github.com/zlovtnik/leasebill/pkg/fp"
)

// InstallmentFilter narrows a schedule query. Nil fields do not filter.
type InstallmentFilter struct {
	From         *time.Time
	To           *time.Time
	PaymentState *domain.PaymentState
}

// Matches reports whether the installment passes the filter. To is exclusive.
func (f InstallmentFilter) Matches(inst domain.Installment) bool {
	if f.From != nil && inst.Date.Before(domain.Date(*f.From)) {
		return false
	}
	if f.To != nil && !inst.Date.Before(domain.Date(*f.To)) {
		return false
	}
	if f.PaymentState != nil && inst.PaymentState != *f.PaymentState {
		return false
	}
	return true
}

// Tx is the write side of a unit of work on one or more contracts
type Tx interface {
	// LockContract loads a contract and holds its lock until the unit of work ends
	LockContract(ctx context.Context, tenantID string, id domain.ContractID) (domain.Contract, error)
	InsertContract(ctx context.Context, c domain.Contract) error
	// UpdateContract writes c if the stored version is c.Version-1
	UpdateContract(ctx context.Context, c domain.Contract) error

	ListInstallments(ctx context.Context, tenantID string, contractID domain.ContractID) ([]domain.Installment, error)
	InsertInstallments(ctx context.Context, items []domain.Installment) error
	UpdateInstallment(ctx context.Context, inst domain.Installment) error
	DeleteInstallments(ctx context.Context, tenantID string, contractID domain.ContractID, ids []domain.InstallmentID) error

	GetSpecialPayment(ctx context.Context, tenantID string, id domain.SpecialPaymentID) (domain.SpecialPayment, error)
	ListSpecialPayments(ctx context.Context, tenantID string, contractID domain.ContractID) ([]domain.SpecialPayment, error)
	InsertSpecialPayment(ctx context.Context, p domain.SpecialPayment) error
	UpdateSpecialPayment(ctx context.Context, p domain.SpecialPayment) error

	InsertAudit(ctx context.Context, entry domain.AuditEntry) error
}

// Store gives unlocked reads and runs units of work
type Store interface {
	// Within runs fn in one transaction. An error from fn rolls everything back.
	Within(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	GetContract(ctx context.Context, tenantID string, id domain.ContractID) fp.Result[domain.Contract]
	ListContracts(ctx context.Context, tenantID string, states ...domain.ContractState) fp.Result[[]domain.Contract]
	ListInstallments(ctx context.Context, tenantID string, contractID domain.ContractID, filter InstallmentFilter) fp.Result[[]domain.Installment]
	GetSpecialPayment(ctx context.Context, tenantID string, id domain.SpecialPaymentID) fp.Result[domain.SpecialPayment]
	ListSpecialPayments(ctx context.Context, tenantID string, contractID domain.ContractID) fp.Result[[]domain.SpecialPayment]
	ListAudit(ctx context.Context, tenantID string, contractID domain.ContractID) fp.Result[[]domain.AuditEntry]
}
