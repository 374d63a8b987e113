package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/zlovtnik/leasebill/internal/billing/domain"
)

const specialPaymentColumns = `
	id, tenant_id, contract_id, payment_type, amount, currency, payment_date, state,
	description, reference_installment_id, invoice_ref, created_at, updated_at, created_by, updated_by`

func selectSpecialPayment(ctx context.Context, q querier, tenantID string, id domain.SpecialPaymentID) (domain.SpecialPayment, error) {
	query := `SELECT ` + specialPaymentColumns + `
		FROM billing_special_payments
		WHERE tenant_id = :1 AND id = :2`

	p, err := scanSpecialPayment(q.QueryRowContext(ctx, query, tenantID, uuid.UUID(id).String()))
	if errors.Is(err, sql.ErrNoRows) {
		return p, fmt.Errorf("special payment %s: %w", id, ErrNotFound)
	}
	return p, err
}

func selectSpecialPayments(ctx context.Context, q querier, tenantID string, contractID domain.ContractID) ([]domain.SpecialPayment, error) {
	query := `SELECT ` + specialPaymentColumns + `
		FROM billing_special_payments
		WHERE tenant_id = :1 AND contract_id = :2
		ORDER BY payment_date, created_at`

	rows, err := q.QueryContext(ctx, query, tenantID, uuid.UUID(contractID).String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []domain.SpecialPayment
	for rows.Next() {
		p, err := scanSpecialPayment(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, p)
	}
	return items, rows.Err()
}

func insertSpecialPayment(ctx context.Context, q querier, p domain.SpecialPayment) error {
	query := `INSERT INTO billing_special_payments (` + specialPaymentColumns + `) VALUES (` + bindList(1, 15) + `)`

	_, err := q.ExecContext(ctx, query,
		uuid.UUID(p.ID).String(),
		p.TenantID,
		uuid.UUID(p.ContractID).String(),
		string(p.Type),
		p.Amount.Amount.String(),
		p.Amount.Currency,
		p.Date,
		string(p.State),
		nullableString(p.Description),
		nullableUUID(p.ReferenceInstallment),
		nullableString(p.InvoiceRef),
		p.CreatedAt,
		nullableTime(p.UpdatedAt),
		uuid.UUID(p.CreatedBy).String(),
		nullableUUID(p.UpdatedBy),
	)
	if err != nil {
		return fmt.Errorf("insert special payment: %w", err)
	}
	return nil
}

func updateSpecialPayment(ctx context.Context, q querier, p domain.SpecialPayment) error {
	query := `
		UPDATE billing_special_payments SET
			state = :1, invoice_ref = :2, updated_at = :3, updated_by = :4
		WHERE tenant_id = :5 AND id = :6`

	result, err := q.ExecContext(ctx, query,
		string(p.State),
		nullableString(p.InvoiceRef),
		nullableTime(p.UpdatedAt),
		nullableUUID(p.UpdatedBy),
		p.TenantID,
		uuid.UUID(p.ID).String(),
	)
	if err != nil {
		return fmt.Errorf("update special payment %s: %w", p.ID, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf(errFmtRowsAffected, err)
	}
	if affected == 0 {
		return fmt.Errorf("special payment %s: %w", p.ID, ErrNotFound)
	}
	return nil
}

func scanSpecialPayment(row Scanner) (domain.SpecialPayment, error) {
	var p domain.SpecialPayment
	var idStr, contractStr, paymentType, amount, currency, state, createdByStr string
	var description, referenceStr, invoiceRef, updatedByStr sql.NullString
	var updatedAt sql.NullTime

	err := row.Scan(
		&idStr, &p.TenantID, &contractStr, &paymentType, &amount, &currency, &p.Date, &state,
		&description, &referenceStr, &invoiceRef, &p.CreatedAt, &updatedAt, &createdByStr, &updatedByStr,
	)
	if err != nil {
		return p, err
	}

	id, err := parseUUID(idStr, "special payment id")
	if err != nil {
		return p, err
	}
	p.ID = domain.SpecialPaymentID(id)
	contractID, err := parseUUID(contractStr, "contract_id")
	if err != nil {
		return p, err
	}
	p.ContractID = domain.ContractID(contractID)
	createdBy, err := parseUUID(createdByStr, "created_by")
	if err != nil {
		return p, err
	}
	p.CreatedBy = domain.UserID(createdBy)
	if p.ReferenceInstallment, err = parseNullableUUID[domain.InstallmentID](referenceStr, "reference_installment_id"); err != nil {
		return p, err
	}
	if p.UpdatedBy, err = parseNullableUUID[domain.UserID](updatedByStr, "updated_by"); err != nil {
		return p, err
	}

	amt, err := parseDecimal(amount, "amount")
	if err != nil {
		return p, err
	}
	p.Amount = domain.NewMoney(amt, currency)
	p.Type = domain.SpecialPaymentType(paymentType)
	p.State = domain.SpecialPaymentState(state)
	p.Description = stringFromNull(description)
	p.InvoiceRef = stringFromNull(invoiceRef)
	p.UpdatedAt = timeFromNull(updatedAt)
	return p, nil
}
