package domain

import (
	"time"

	"github.com/google/uuid"
)

// Actor is the user performing an operation
type Actor struct {
	UserID     UserID `json:"user_id"`
	Name       string `json:"name"`
	Privileged bool   `json:"privileged"`
}

// SystemActor is used by the background billing run
var SystemActor = Actor{Name: "system", Privileged: true}

// AuditAction represents the type of action in the audit trail
type AuditAction string

const (
	AuditActionCreated        AuditAction = "CREATED"
	AuditActionConfirmed      AuditAction = "CONFIRMED"
	AuditActionActivated      AuditAction = "ACTIVATED"
	AuditActionExpired        AuditAction = "EXPIRED"
	AuditActionAmended        AuditAction = "AMENDED"
	AuditActionPaid           AuditAction = "PAID"
	AuditActionBilled         AuditAction = "BILLED"
	AuditActionLateFee        AuditAction = "LATE_FEE"
	AuditActionSpecialPayment AuditAction = "SPECIAL_PAYMENT"
)

// AuditEntry is one immutable line of a contract's audit trail
type AuditEntry struct {
	ID         string                 `json:"id"`
	TenantID   string                 `json:"tenant_id"`
	ContractID ContractID             `json:"contract_id"`
	Action     AuditAction            `json:"action"`
	Operation  string                 `json:"operation"`
	UserID     UserID                 `json:"user_id"`
	UserName   string                 `json:"user_name"`
	Reason     string                 `json:"reason,omitempty"`
	OldValues  map[string]interface{} `json:"old_values,omitempty"`
	NewValues  map[string]interface{} `json:"new_values,omitempty"`
	Timestamp  time.Time              `json:"timestamp"`
}

// NewAuditEntry creates a new AuditEntry
func NewAuditEntry(tenantID string, contractID ContractID, action AuditAction, operation string, actor Actor, at time.Time) AuditEntry {
	return AuditEntry{
		ID:         uuid.NewString(),
		TenantID:   tenantID,
		ContractID: contractID,
		Action:     action,
		Operation:  operation,
		UserID:     actor.UserID,
		UserName:   actor.Name,
		Timestamp:  at,
	}
}

// WithReason returns a copy with a free-text reason
func (e AuditEntry) WithReason(reason string) AuditEntry {
	e.Reason = reason
	return e
}

// WithChanges returns a copy with old and new values
func (e AuditEntry) WithChanges(oldValues, newValues map[string]interface{}) AuditEntry {
	e.OldValues = copyValues(oldValues)
	e.NewValues = copyValues(newValues)
	return e
}

func copyValues(in map[string]interface{}) map[string]interface{} {
	if in == nil {
		return nil
	}
	out := make(map[string]interface{}, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// Snapshot captures the contract fields amendments change
func (c Contract) Snapshot() map[string]interface{} {
	return map[string]interface{}{
		"state":       string(c.State),
		"date_from":   c.DateFrom.Format("2006-01-02"),
		"date_to":     c.DateTo.Format("2006-01-02"),
		"rental_fee":  c.RentalFee.Amount.String(),
		"periodicity": c.PeriodicityMonths,
	}
}
