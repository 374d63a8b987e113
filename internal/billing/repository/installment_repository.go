package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/zlovtnik/leasebill/internal/billing/domain"
)

func selectInstallments(ctx context.Context, q querier, tenantID string, contractID domain.ContractID, filter InstallmentFilter) ([]domain.Installment, error) {
	query := `
		SELECT id, tenant_id, contract_id, serial, due_date, amount, currency, commission,
			payment_state, paid_amount, active, billed_at, created_at, updated_at
		FROM billing_installments
		WHERE tenant_id = :1 AND contract_id = :2`
	args := []interface{}{tenantID, uuid.UUID(contractID).String()}
	if filter.From != nil {
		args = append(args, domain.Date(*filter.From))
		query += fmt.Sprintf(" AND due_date >= :%d", len(args))
	}
	if filter.To != nil {
		args = append(args, domain.Date(*filter.To))
		query += fmt.Sprintf(" AND due_date < :%d", len(args))
	}
	if filter.PaymentState != nil {
		args = append(args, string(*filter.PaymentState))
		query += fmt.Sprintf(" AND payment_state = :%d", len(args))
	}
	query += ` ORDER BY due_date, serial`

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []domain.Installment
	for rows.Next() {
		inst, err := scanInstallment(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, inst)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range items {
		if items[i].BilledAt == nil {
			continue
		}
		shares, err := selectShares(ctx, q, tenantID, items[i].ID)
		if err != nil {
			return nil, err
		}
		items[i].Billed = shares
	}
	return items, nil
}

func scanInstallment(row Scanner) (domain.Installment, error) {
	var inst domain.Installment
	var idStr, contractStr, amount, currency, commission, state, paid string
	var active int
	var billedAt, updatedAt sql.NullTime

	err := row.Scan(
		&idStr, &inst.TenantID, &contractStr, &inst.Serial, &inst.Date, &amount, &currency, &commission,
		&state, &paid, &active, &billedAt, &inst.CreatedAt, &updatedAt,
	)
	if err != nil {
		return inst, err
	}

	id, err := parseUUID(idStr, "installment id")
	if err != nil {
		return inst, err
	}
	inst.ID = domain.InstallmentID(id)
	contractID, err := parseUUID(contractStr, "contract_id")
	if err != nil {
		return inst, err
	}
	inst.ContractID = domain.ContractID(contractID)

	amt, err := parseDecimal(amount, "amount")
	if err != nil {
		return inst, err
	}
	inst.Amount = domain.NewMoney(amt, currency)
	if inst.Commission, err = parseDecimal(commission, "commission"); err != nil {
		return inst, err
	}
	if inst.PaidAmount, err = parseDecimal(paid, "paid_amount"); err != nil {
		return inst, err
	}
	inst.PaymentState = domain.PaymentState(state)
	inst.Active = active == 1
	inst.BilledAt = timeFromNull(billedAt)
	inst.UpdatedAt = timeFromNull(updatedAt)
	return inst, nil
}

func insertInstallments(ctx context.Context, q querier, items []domain.Installment) error {
	query := `
		INSERT INTO billing_installments (
			id, tenant_id, contract_id, serial, due_date, amount, currency, commission,
			payment_state, paid_amount, active, billed_at, created_at
		) VALUES (:1, :2, :3, :4, :5, :6, :7, :8, :9, :10, :11, :12, :13)`

	for _, inst := range items {
		_, err := q.ExecContext(ctx, query,
			uuid.UUID(inst.ID).String(),
			inst.TenantID,
			uuid.UUID(inst.ContractID).String(),
			inst.Serial,
			inst.Date,
			inst.Amount.Amount.String(),
			inst.Amount.Currency,
			inst.Commission.String(),
			string(inst.PaymentState),
			inst.PaidAmount.String(),
			boolToInt(inst.Active),
			nullableTime(inst.BilledAt),
			inst.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert installment #%d: %w", inst.Serial, err)
		}
		if err := insertShares(ctx, q, inst); err != nil {
			return err
		}
	}
	return nil
}

func updateInstallment(ctx context.Context, q querier, inst domain.Installment) error {
	query := `
		UPDATE billing_installments SET
			amount = :1, commission = :2, payment_state = :3, paid_amount = :4,
			active = :5, billed_at = :6, updated_at = :7
		WHERE tenant_id = :8 AND id = :9`

	result, err := q.ExecContext(ctx, query,
		inst.Amount.Amount.String(),
		inst.Commission.String(),
		string(inst.PaymentState),
		inst.PaidAmount.String(),
		boolToInt(inst.Active),
		nullableTime(inst.BilledAt),
		nullableTime(inst.UpdatedAt),
		inst.TenantID,
		uuid.UUID(inst.ID).String(),
	)
	if err != nil {
		return fmt.Errorf("update installment #%d: %w", inst.Serial, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf(errFmtRowsAffected, err)
	}
	if affected == 0 {
		return fmt.Errorf("installment %s: %w", inst.ID, ErrNotFound)
	}

	if _, err := q.ExecContext(ctx,
		`DELETE FROM billing_installment_shares WHERE tenant_id = :1 AND installment_id = :2`,
		inst.TenantID, uuid.UUID(inst.ID).String(),
	); err != nil {
		return fmt.Errorf("clear shares of installment #%d: %w", inst.Serial, err)
	}
	return insertShares(ctx, q, inst)
}

// deleteUnlockedInstallments removes the given installments only if none of
// them is paid, partially paid or invoiced.
func deleteUnlockedInstallments(ctx context.Context, q querier, tenantID string, contractID domain.ContractID, ids []domain.InstallmentID) error {
	if len(ids) == 0 {
		return nil
	}
	args := []interface{}{tenantID, uuid.UUID(contractID).String()}
	for _, id := range ids {
		args = append(args, uuid.UUID(id).String())
	}
	query := `
		DELETE FROM billing_installments
		WHERE tenant_id = :1 AND contract_id = :2
			AND payment_state = 'NOT_PAID' AND billed_at IS NULL
			AND id IN (` + bindList(3, len(ids)) + `)`

	result, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("delete installments: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf(errFmtRowsAffected, err)
	}
	if affected != int64(len(ids)) {
		return fmt.Errorf("deleted %d of %d installments: %w", affected, len(ids), ErrLockedInstallment)
	}
	return nil
}

func selectShares(ctx context.Context, q querier, tenantID string, installmentID domain.InstallmentID) ([]domain.PartnerShare, error) {
	query := `
		SELECT partner_id, percentage, income, commission, invoice_ref
		FROM billing_installment_shares
		WHERE tenant_id = :1 AND installment_id = :2
		ORDER BY share_no`

	rows, err := q.QueryContext(ctx, query, tenantID, uuid.UUID(installmentID).String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var shares []domain.PartnerShare
	for rows.Next() {
		var partnerStr, pct, income, commission string
		var ref sql.NullString
		if err := rows.Scan(&partnerStr, &pct, &income, &commission, &ref); err != nil {
			return nil, err
		}
		partner, err := parseUUID(partnerStr, "partner_id")
		if err != nil {
			return nil, err
		}
		s := domain.PartnerShare{
			InstallmentID: installmentID,
			PartnerID:     domain.PartnerID(partner),
			InvoiceRef:    stringFromNull(ref),
		}
		if s.Percentage, err = parseDecimal(pct, "percentage"); err != nil {
			return nil, err
		}
		if s.Income, err = parseDecimal(income, "income"); err != nil {
			return nil, err
		}
		if s.Commission, err = parseDecimal(commission, "commission"); err != nil {
			return nil, err
		}
		shares = append(shares, s)
	}
	return shares, rows.Err()
}

func insertShares(ctx context.Context, q querier, inst domain.Installment) error {
	query := `
		INSERT INTO billing_installment_shares (
			tenant_id, installment_id, share_no, partner_id, percentage, income, commission, invoice_ref
		) VALUES (:1, :2, :3, :4, :5, :6, :7, :8)`

	for i, s := range inst.Billed {
		_, err := q.ExecContext(ctx, query,
			inst.TenantID,
			uuid.UUID(inst.ID).String(),
			i+1,
			uuid.UUID(s.PartnerID).String(),
			s.Percentage.String(),
			s.Income.String(),
			s.Commission.String(),
			nullableString(s.InvoiceRef),
		)
		if err != nil {
			return fmt.Errorf("insert share %d of installment #%d: %w", i+1, inst.Serial, err)
		}
	}
	return nil
}
