package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/zlovtnik/leasebill/internal/billing/domain"
)

const contractColumns = `
	id, tenant_id, contract_number, property_id, lessee_id, owner_id, state,
	date_from, date_to, rental_fee, currency, commission_pct, commission_base,
	insurance_fee, interest_rate, grace_days, periodicity_months, destination_account,
	suspension_start, suspension_end, cancellation_type, cancellation_date, cancellation_reason, cancelled_from,
	renewed_from, version, created_at, updated_at, created_by, updated_by`

func selectContract(ctx context.Context, q querier, tenantID string, id domain.ContractID, lock bool) (domain.Contract, error) {
	query := `SELECT ` + contractColumns + `
		FROM billing_contracts
		WHERE tenant_id = :1 AND id = :2`
	if lock {
		query += ` FOR UPDATE`
	}

	c, err := scanContract(q.QueryRowContext(ctx, query, tenantID, uuid.UUID(id).String()))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Contract{}, fmt.Errorf("contract %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return domain.Contract{}, err
	}
	lines, err := selectLines(ctx, q, tenantID, id)
	if err != nil {
		return domain.Contract{}, err
	}
	c.Lines = lines
	return c, nil
}

func selectContracts(ctx context.Context, q querier, tenantID string, states []domain.ContractState) ([]domain.Contract, error) {
	query := `SELECT ` + contractColumns + `
		FROM billing_contracts
		WHERE tenant_id = :1`
	args := []interface{}{tenantID}
	if len(states) > 0 {
		query += ` AND state IN (` + bindList(2, len(states)) + `)`
		for _, s := range states {
			args = append(args, string(s))
		}
	}
	query += ` ORDER BY contract_number`

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var contracts []domain.Contract
	for rows.Next() {
		c, err := scanContract(rows)
		if err != nil {
			return nil, err
		}
		contracts = append(contracts, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range contracts {
		lines, err := selectLines(ctx, q, tenantID, contracts[i].ID)
		if err != nil {
			return nil, err
		}
		contracts[i].Lines = lines
	}
	return contracts, nil
}

func insertContract(ctx context.Context, q querier, c domain.Contract) error {
	query := `INSERT INTO billing_contracts (` + contractColumns + `) VALUES (` + bindList(1, 30) + `)`
	if _, err := q.ExecContext(ctx, query, contractArgs(c)...); err != nil {
		return fmt.Errorf("insert contract %s: %w", c.ContractNumber, err)
	}
	return replaceLines(ctx, q, c)
}

func updateContract(ctx context.Context, q querier, c domain.Contract) error {
	query := `
		UPDATE billing_contracts SET
			state = :1, date_to = :2, rental_fee = :3, commission_pct = :4,
			suspension_start = :5, suspension_end = :6,
			cancellation_type = :7, cancellation_date = :8, cancellation_reason = :9,
			cancelled_from = :10, version = :11, updated_at = :12, updated_by = :13
		WHERE tenant_id = :14 AND id = :15 AND version = :16`

	var suspStart, suspEnd sql.NullTime
	if c.Suspension != nil {
		suspStart = sql.NullTime{Time: c.Suspension.Start, Valid: true}
		suspEnd = sql.NullTime{Time: c.Suspension.End, Valid: true}
	}
	var cancelType, cancelReason, cancelledFrom sql.NullString
	var cancelDate sql.NullTime
	if c.Cancellation != nil {
		cancelType = nullableString(string(c.Cancellation.Type))
		cancelDate = sql.NullTime{Time: c.Cancellation.EffectiveDate, Valid: true}
		cancelReason = nullableString(c.Cancellation.Reason)
		cancelledFrom = nullableString(string(c.Cancellation.PriorState))
	}

	result, err := q.ExecContext(ctx, query,
		string(c.State),
		c.DateTo,
		c.RentalFee.Amount.String(),
		c.CommissionPercentage.String(),
		suspStart, suspEnd,
		cancelType, cancelDate, cancelReason, cancelledFrom,
		c.Version,
		nullableTime(c.UpdatedAt),
		nullableUUID(c.UpdatedBy),
		c.TenantID,
		uuid.UUID(c.ID).String(),
		c.Version-1,
	)
	if err != nil {
		return fmt.Errorf("update contract %s: %w", c.ID, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf(errFmtRowsAffected, err)
	}
	if affected == 0 {
		return fmt.Errorf("contract %s version %d: %w", c.ID, c.Version-1, ErrVersionConflict)
	}
	return replaceLines(ctx, q, c)
}

func contractArgs(c domain.Contract) []interface{} {
	var suspStart, suspEnd, cancelDate sql.NullTime
	if c.Suspension != nil {
		suspStart = sql.NullTime{Time: c.Suspension.Start, Valid: true}
		suspEnd = sql.NullTime{Time: c.Suspension.End, Valid: true}
	}
	var cancelType, cancelReason, cancelledFrom sql.NullString
	if c.Cancellation != nil {
		cancelType = nullableString(string(c.Cancellation.Type))
		cancelDate = sql.NullTime{Time: c.Cancellation.EffectiveDate, Valid: true}
		cancelReason = nullableString(c.Cancellation.Reason)
		cancelledFrom = nullableString(string(c.Cancellation.PriorState))
	}
	return []interface{}{
		uuid.UUID(c.ID).String(),
		c.TenantID,
		c.ContractNumber,
		uuid.UUID(c.PropertyID).String(),
		uuid.UUID(c.LesseeID).String(),
		nullableUUID(c.OwnerID),
		string(c.State),
		c.DateFrom,
		c.DateTo,
		c.RentalFee.Amount.String(),
		c.RentalFee.Currency,
		c.CommissionPercentage.String(),
		string(c.CommissionBase),
		c.InsuranceFee.String(),
		c.InterestRate.String(),
		c.GraceDays,
		c.PeriodicityMonths,
		nullableString(c.DestinationAccount),
		suspStart,
		suspEnd,
		cancelType,
		cancelDate,
		cancelReason,
		cancelledFrom,
		nullableUUID(c.RenewedFrom),
		c.Version,
		c.CreatedAt,
		nullableTime(c.UpdatedAt),
		uuid.UUID(c.CreatedBy).String(),
		nullableUUID(c.UpdatedBy),
	}
}

func scanContract(row Scanner) (domain.Contract, error) {
	var c domain.Contract
	var idStr, propertyStr, lesseeStr, createdByStr string
	var ownerStr, renewedStr, updatedByStr, account sql.NullString
	var state, currency, base string
	var fee, commission, insurance, interest string
	var suspStart, suspEnd, cancelDate, updatedAt sql.NullTime
	var cancelType, cancelReason, cancelledFrom sql.NullString

	err := row.Scan(
		&idStr, &c.TenantID, &c.ContractNumber, &propertyStr, &lesseeStr, &ownerStr, &state,
		&c.DateFrom, &c.DateTo, &fee, &currency, &commission, &base,
		&insurance, &interest, &c.GraceDays, &c.PeriodicityMonths, &account,
		&suspStart, &suspEnd, &cancelType, &cancelDate, &cancelReason, &cancelledFrom,
		&renewedStr, &c.Version, &c.CreatedAt, &updatedAt, &createdByStr, &updatedByStr,
	)
	if err != nil {
		return c, err
	}

	id, err := parseUUID(idStr, "contract id")
	if err != nil {
		return c, err
	}
	c.ID = domain.ContractID(id)
	property, err := parseUUID(propertyStr, "property_id")
	if err != nil {
		return c, err
	}
	c.PropertyID = domain.PropertyID(property)
	lessee, err := parseUUID(lesseeStr, "lessee_id")
	if err != nil {
		return c, err
	}
	c.LesseeID = domain.PartnerID(lessee)
	createdBy, err := parseUUID(createdByStr, "created_by")
	if err != nil {
		return c, err
	}
	c.CreatedBy = domain.UserID(createdBy)

	if c.OwnerID, err = parseNullableUUID[domain.PartnerID](ownerStr, "owner_id"); err != nil {
		return c, err
	}
	if c.RenewedFrom, err = parseNullableUUID[domain.ContractID](renewedStr, "renewed_from"); err != nil {
		return c, err
	}
	if c.UpdatedBy, err = parseNullableUUID[domain.UserID](updatedByStr, "updated_by"); err != nil {
		return c, err
	}

	amount, err := parseDecimal(fee, "rental_fee")
	if err != nil {
		return c, err
	}
	c.RentalFee = domain.NewMoney(amount, currency)
	if c.CommissionPercentage, err = parseDecimal(commission, "commission_pct"); err != nil {
		return c, err
	}
	if c.InsuranceFee, err = parseDecimal(insurance, "insurance_fee"); err != nil {
		return c, err
	}
	if c.InterestRate, err = parseDecimal(interest, "interest_rate"); err != nil {
		return c, err
	}

	c.State = domain.ContractState(state)
	c.CommissionBase = domain.CommissionBase(base)
	c.DestinationAccount = stringFromNull(account)
	c.UpdatedAt = timeFromNull(updatedAt)
	if suspStart.Valid && suspEnd.Valid {
		c.Suspension = &domain.Suspension{Start: suspStart.Time, End: suspEnd.Time}
	}
	if cancelDate.Valid {
		c.Cancellation = &domain.Cancellation{
			Type:          domain.CancellationType(stringFromNull(cancelType)),
			EffectiveDate: cancelDate.Time,
			Reason:        stringFromNull(cancelReason),
			PriorState:    domain.ContractState(stringFromNull(cancelledFrom)),
		}
	}
	return c, nil
}

func selectLines(ctx context.Context, q querier, tenantID string, contractID domain.ContractID) ([]domain.ContractLine, error) {
	query := `
		SELECT id, property_id, date_from, date_to, rental_fee, state, termination_reason
		FROM billing_contract_lines
		WHERE tenant_id = :1 AND contract_id = :2
		ORDER BY line_no`

	rows, err := q.QueryContext(ctx, query, tenantID, uuid.UUID(contractID).String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lines []domain.ContractLine
	for rows.Next() {
		var l domain.ContractLine
		var idStr, propertyStr, fee, state string
		var reason sql.NullString
		if err := rows.Scan(&idStr, &propertyStr, &l.DateFrom, &l.DateTo, &fee, &state, &reason); err != nil {
			return nil, err
		}
		id, err := parseUUID(idStr, "line id")
		if err != nil {
			return nil, err
		}
		property, err := parseUUID(propertyStr, "property_id")
		if err != nil {
			return nil, err
		}
		if l.RentalFee, err = parseDecimal(fee, "line rental_fee"); err != nil {
			return nil, err
		}
		l.ID = domain.ContractLineID(id)
		l.PropertyID = domain.PropertyID(property)
		l.State = domain.LineState(state)
		l.TerminationReason = stringFromNull(reason)
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

// replaceLines rewrites the line set of a contract; lines are never removed
// by the domain, so this only changes their values
func replaceLines(ctx context.Context, q querier, c domain.Contract) error {
	if _, err := q.ExecContext(ctx,
		`DELETE FROM billing_contract_lines WHERE tenant_id = :1 AND contract_id = :2`,
		c.TenantID, uuid.UUID(c.ID).String(),
	); err != nil {
		return fmt.Errorf("clear lines of contract %s: %w", c.ID, err)
	}

	query := `
		INSERT INTO billing_contract_lines (
			id, tenant_id, contract_id, line_no, property_id, date_from, date_to,
			rental_fee, state, termination_reason
		) VALUES (:1, :2, :3, :4, :5, :6, :7, :8, :9, :10)`
	for i, l := range c.Lines {
		if _, err := q.ExecContext(ctx, query,
			uuid.UUID(l.ID).String(),
			c.TenantID,
			uuid.UUID(c.ID).String(),
			i+1,
			uuid.UUID(l.PropertyID).String(),
			l.DateFrom,
			l.DateTo,
			l.RentalFee.String(),
			string(l.State),
			nullableString(l.TerminationReason),
		); err != nil {
			return fmt.Errorf("insert line %d of contract %s: %w", i+1, c.ID, err)
		}
	}
	return nil
}
