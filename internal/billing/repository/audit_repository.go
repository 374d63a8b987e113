package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/zlovtnik/leasebill/internal/billing/domain"
)

func insertAudit(ctx context.Context, q querier, entry domain.AuditEntry) error {
	query := `
		INSERT INTO billing_audit_trail (
			id, tenant_id, contract_id, action, operation, user_id, user_name,
			reason, old_values, new_values, created_at
		) VALUES (:1, :2, :3, :4, :5, :6, :7, :8, :9, :10, :11)`

	oldValues, err := marshalValues(entry.OldValues, "OldValues")
	if err != nil {
		return err
	}
	newValues, err := marshalValues(entry.NewValues, "NewValues")
	if err != nil {
		return err
	}

	_, err = q.ExecContext(ctx, query,
		entry.ID,
		entry.TenantID,
		uuid.UUID(entry.ContractID).String(),
		string(entry.Action),
		entry.Operation,
		uuid.UUID(entry.UserID).String(),
		entry.UserName,
		nullableString(entry.Reason),
		oldValues,
		newValues,
		entry.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

func selectAudit(ctx context.Context, q querier, tenantID string, contractID domain.ContractID) ([]domain.AuditEntry, error) {
	query := `
		SELECT id, tenant_id, contract_id, action, operation, user_id, user_name,
			reason, old_values, new_values, created_at
		FROM billing_audit_trail
		WHERE tenant_id = :1 AND contract_id = :2
		ORDER BY created_at`

	rows, err := q.QueryContext(ctx, query, tenantID, uuid.UUID(contractID).String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []domain.AuditEntry
	for rows.Next() {
		var e domain.AuditEntry
		var contractStr, userStr, action string
		var reason, oldValues, newValues sql.NullString
		if err := rows.Scan(
			&e.ID, &e.TenantID, &contractStr, &action, &e.Operation, &userStr, &e.UserName,
			&reason, &oldValues, &newValues, &e.Timestamp,
		); err != nil {
			return nil, err
		}
		cid, err := parseUUID(contractStr, "contract_id")
		if err != nil {
			return nil, err
		}
		uid, err := parseUUID(userStr, "user_id")
		if err != nil {
			return nil, err
		}
		e.ContractID = domain.ContractID(cid)
		e.UserID = domain.UserID(uid)
		e.Action = domain.AuditAction(action)
		e.Reason = stringFromNull(reason)
		if oldValues.Valid {
			if err := json.Unmarshal([]byte(oldValues.String), &e.OldValues); err != nil {
				return nil, fmt.Errorf("unmarshal audit field OldValues: %w", err)
			}
		}
		if newValues.Valid {
			if err := json.Unmarshal([]byte(newValues.String), &e.NewValues); err != nil {
				return nil, fmt.Errorf("unmarshal audit field NewValues: %w", err)
			}
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func marshalValues(values map[string]interface{}, field string) (sql.NullString, error) {
	if values == nil {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(values)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("marshal audit field %s: %w", field, err)
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}
