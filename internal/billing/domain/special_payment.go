package domain

import "time"

// SpecialPaymentType is the kind of out-of-schedule charge
type SpecialPaymentType string

const (
	SpecialPaymentExtra      SpecialPaymentType = "EXTRA_PAYMENT"
	SpecialPaymentEarly      SpecialPaymentType = "EARLY_PAYMENT"
	SpecialPaymentLateFee    SpecialPaymentType = "LATE_FEE"
	SpecialPaymentAdjustment SpecialPaymentType = "ADJUSTMENT"
	SpecialPaymentAdminFee   SpecialPaymentType = "ADMIN_FEE"
	SpecialPaymentInsurance  SpecialPaymentType = "INSURANCE"
	SpecialPaymentPenalty    SpecialPaymentType = "PENALTY"
	SpecialPaymentOther      SpecialPaymentType = "OTHER"
)

// IsValid checks if the type is known
func (t SpecialPaymentType) IsValid() bool {
	switch t {
	case SpecialPaymentExtra, SpecialPaymentEarly, SpecialPaymentLateFee, SpecialPaymentAdjustment,
		SpecialPaymentAdminFee, SpecialPaymentInsurance, SpecialPaymentPenalty, SpecialPaymentOther:
		return true
	}
	return false
}

// SpecialPaymentState is the lifecycle of a special payment
type SpecialPaymentState string

const (
	SpecialPaymentStateDraft     SpecialPaymentState = "DRAFT"
	SpecialPaymentStateConfirmed SpecialPaymentState = "CONFIRMED"
	SpecialPaymentStateInvoiced  SpecialPaymentState = "INVOICED"
	SpecialPaymentStatePaid      SpecialPaymentState = "PAID"
	SpecialPaymentStateCancelled SpecialPaymentState = "CANCELLED"
)

var specialPaymentTransitions = map[SpecialPaymentState][]SpecialPaymentState{
	SpecialPaymentStateDraft:     {SpecialPaymentStateConfirmed, SpecialPaymentStateCancelled},
	SpecialPaymentStateConfirmed: {SpecialPaymentStateInvoiced, SpecialPaymentStateCancelled},
	SpecialPaymentStateInvoiced:  {SpecialPaymentStatePaid},
}

// CanTransitionTo checks if a transition is valid
func (s SpecialPaymentState) CanTransitionTo(target SpecialPaymentState) bool {
	for _, v := range specialPaymentTransitions[s] {
		if v == target {
			return true
		}
	}
	return false
}

// SpecialPayment is a charge tied to a contract but outside its installment sequence
type SpecialPayment struct {
	ID                   SpecialPaymentID    `json:"id"`
	TenantID             string              `json:"tenant_id"`
	ContractID           ContractID          `json:"contract_id"`
	Type                 SpecialPaymentType  `json:"type"`
	Amount               Money               `json:"amount"`
	Date                 time.Time           `json:"date"`
	State                SpecialPaymentState `json:"state"`
	Description          string              `json:"description,omitempty"`
	ReferenceInstallment *InstallmentID      `json:"reference_installment,omitempty"`
	InvoiceRef           string              `json:"invoice_ref,omitempty"`
	CreatedAt            time.Time           `json:"created_at"`
	UpdatedAt            *time.Time          `json:"updated_at,omitempty"`
	CreatedBy            UserID              `json:"created_by"`
	UpdatedBy            *UserID             `json:"updated_by,omitempty"`
}

// NewSpecialPayment creates a draft special payment
func NewSpecialPayment(
	tenantID string,
	contractID ContractID,
	paymentType SpecialPaymentType,
	amount Money,
	date time.Time,
	createdBy UserID,
	at time.Time,
) SpecialPayment {
	return SpecialPayment{
		ID:         NewSpecialPaymentID(),
		TenantID:   tenantID,
		ContractID: contractID,
		Type:       paymentType,
		Amount:     amount,
		Date:       Date(date),
		State:      SpecialPaymentStateDraft,
		CreatedAt:  at,
		CreatedBy:  createdBy,
	}
}

// WithReference returns a copy linked to the installment that caused it
func (p SpecialPayment) WithReference(id InstallmentID) SpecialPayment {
	p.ReferenceInstallment = &id
	return p
}

// WithDescription returns a copy with a description
func (p SpecialPayment) WithDescription(desc string) SpecialPayment {
	p.Description = desc
	return p
}

// TransitionTo attempts to transition to a new state
func (p SpecialPayment) TransitionTo(state SpecialPaymentState, updatedBy UserID, at time.Time) (SpecialPayment, error) {
	if !p.State.CanTransitionTo(state) {
		return p, NewDomainError("special payment cannot go from %s to %s", p.State, state)
	}
	p.State = state
	p.UpdatedAt = &at
	p.UpdatedBy = &updatedBy
	return p, nil
}

// Invoiced returns a copy in INVOICED state carrying the invoice reference
func (p SpecialPayment) Invoiced(invoiceRef string, updatedBy UserID, at time.Time) (SpecialPayment, error) {
	updated, err := p.TransitionTo(SpecialPaymentStateInvoiced, updatedBy, at)
	if err != nil {
		return p, err
	}
	updated.InvoiceRef = invoiceRef
	return updated, nil
}
