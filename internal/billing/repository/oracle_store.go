package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/zlovtnik/leasebill/internal/billing/domain"
	"github.com/zlovtnik/leasebill/pkg/fp"
)

// OracleStore persists billing data in Oracle through godror
type OracleStore struct {
	db *sql.DB
}

// NewOracleStore creates a new OracleStore
func NewOracleStore(db *sql.DB) *OracleStore {
	return &OracleStore{db: db}
}

// Within runs fn inside a database transaction
func (s *OracleStore) Within(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf(errFmtBeginTx, err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(ctx, &oracleTx{q: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf(errFmtCommitTx, err)
	}
	return nil
}

// GetContract retrieves a contract with its lines
func (s *OracleStore) GetContract(ctx context.Context, tenantID string, id domain.ContractID) fp.Result[domain.Contract] {
	c, err := selectContract(ctx, s.db, tenantID, id, false)
	if err != nil {
		return fp.Failure[domain.Contract](err)
	}
	return fp.Success(c)
}

// ListContracts retrieves the tenant's contracts, optionally filtered by state
func (s *OracleStore) ListContracts(ctx context.Context, tenantID string, states ...domain.ContractState) fp.Result[[]domain.Contract] {
	items, err := selectContracts(ctx, s.db, tenantID, states)
	if err != nil {
		return fp.Failure[[]domain.Contract](err)
	}
	return fp.Success(items)
}

// ListInstallments retrieves a contract's schedule with the filter applied in SQL
func (s *OracleStore) ListInstallments(ctx context.Context, tenantID string, contractID domain.ContractID, filter InstallmentFilter) fp.Result[[]domain.Installment] {
	items, err := selectInstallments(ctx, s.db, tenantID, contractID, filter)
	if err != nil {
		return fp.Failure[[]domain.Installment](err)
	}
	return fp.Success(items)
}

// GetSpecialPayment retrieves a special payment by ID
func (s *OracleStore) GetSpecialPayment(ctx context.Context, tenantID string, id domain.SpecialPaymentID) fp.Result[domain.SpecialPayment] {
	p, err := selectSpecialPayment(ctx, s.db, tenantID, id)
	if err != nil {
		return fp.Failure[domain.SpecialPayment](err)
	}
	return fp.Success(p)
}

// ListSpecialPayments retrieves the special payments of a contract
func (s *OracleStore) ListSpecialPayments(ctx context.Context, tenantID string, contractID domain.ContractID) fp.Result[[]domain.SpecialPayment] {
	items, err := selectSpecialPayments(ctx, s.db, tenantID, contractID)
	if err != nil {
		return fp.Failure[[]domain.SpecialPayment](err)
	}
	return fp.Success(items)
}

// ListAudit retrieves the audit trail of a contract
func (s *OracleStore) ListAudit(ctx context.Context, tenantID string, contractID domain.ContractID) fp.Result[[]domain.AuditEntry] {
	items, err := selectAudit(ctx, s.db, tenantID, contractID)
	if err != nil {
		return fp.Failure[[]domain.AuditEntry](err)
	}
	return fp.Success(items)
}

type oracleTx struct {
	q querier
}

func (t *oracleTx) LockContract(ctx context.Context, tenantID string, id domain.ContractID) (domain.Contract, error) {
	return selectContract(ctx, t.q, tenantID, id, true)
}

func (t *oracleTx) InsertContract(ctx context.Context, c domain.Contract) error {
	return insertContract(ctx, t.q, c)
}

func (t *oracleTx) UpdateContract(ctx context.Context, c domain.Contract) error {
	return updateContract(ctx, t.q, c)
}

func (t *oracleTx) ListInstallments(ctx context.Context, tenantID string, contractID domain.ContractID) ([]domain.Installment, error) {
	return selectInstallments(ctx, t.q, tenantID, contractID, InstallmentFilter{})
}

func (t *oracleTx) InsertInstallments(ctx context.Context, items []domain.Installment) error {
	return insertInstallments(ctx, t.q, items)
}

func (t *oracleTx) UpdateInstallment(ctx context.Context, inst domain.Installment) error {
	return updateInstallment(ctx, t.q, inst)
}

func (t *oracleTx) DeleteInstallments(ctx context.Context, tenantID string, contractID domain.ContractID, ids []domain.InstallmentID) error {
	return deleteUnlockedInstallments(ctx, t.q, tenantID, contractID, ids)
}

func (t *oracleTx) GetSpecialPayment(ctx context.Context, tenantID string, id domain.SpecialPaymentID) (domain.SpecialPayment, error) {
	return selectSpecialPayment(ctx, t.q, tenantID, id)
}

func (t *oracleTx) ListSpecialPayments(ctx context.Context, tenantID string, contractID domain.ContractID) ([]domain.SpecialPayment, error) {
	return selectSpecialPayments(ctx, t.q, tenantID, contractID)
}

func (t *oracleTx) InsertSpecialPayment(ctx context.Context, p domain.SpecialPayment) error {
	return insertSpecialPayment(ctx, t.q, p)
}

func (t *oracleTx) UpdateSpecialPayment(ctx context.Context, p domain.SpecialPayment) error {
	return updateSpecialPayment(ctx, t.q, p)
}

func (t *oracleTx) InsertAudit(ctx context.Context, entry domain.AuditEntry) error {
	return insertAudit(ctx, t.q, entry)
}
