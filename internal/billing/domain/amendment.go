package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// AmendmentKind names an amendment operation
type AmendmentKind string

const (
	AmendmentExtend        AmendmentKind = "extend"
	AmendmentRenew         AmendmentKind = "renew"
	AmendmentModifyAmount  AmendmentKind = "modify_amount"
	AmendmentModifyDates   AmendmentKind = "modify_dates"
	AmendmentCancel        AmendmentKind = "cancel"
	AmendmentSuspend       AmendmentKind = "suspend"
	AmendmentReactivate    AmendmentKind = "reactivate"
	AmendmentTerminateLine AmendmentKind = "terminate_line"
)

// Amendment is one of the closed set of contract operations below.
// Only types in this package implement it.
type Amendment interface {
	Kind() AmendmentKind
	isAmendment()
}

// Extend moves the end date forward
type Extend struct {
	NewEnd time.Time
}

// Renew spawns a draft successor contract
type Renew struct {
	NewEnd       time.Time
	NewRentalFee *decimal.Decimal
}

// ModifyAmount changes the rental fee from an effective date on
type ModifyAmount struct {
	NewFee        decimal.Decimal
	EffectiveDate time.Time
}

// ModifyDates moves the end date in either direction
type ModifyDates struct {
	NewEnd time.Time
}

// Cancel ends the contract early
type Cancel struct {
	EffectiveDate  time.Time
	Type           CancellationType
	Penalty        *decimal.Decimal
	BillPenaltyNow bool
}

// Suspend deactivates the installments falling in [Start, End]
type Suspend struct {
	Start time.Time
	End   time.Time
}

// Reactivate lifts a suspension
type Reactivate struct{}

// TerminateLine ends one property of a multi-property contract
type TerminateLine struct {
	LineID        ContractLineID
	EffectiveDate time.Time
	Reason        string
}

func (Extend) Kind() AmendmentKind        { return AmendmentExtend }
func (Renew) Kind() AmendmentKind         { return AmendmentRenew }
func (ModifyAmount) Kind() AmendmentKind  { return AmendmentModifyAmount }
func (ModifyDates) Kind() AmendmentKind   { return AmendmentModifyDates }
func (Cancel) Kind() AmendmentKind        { return AmendmentCancel }
func (Suspend) Kind() AmendmentKind       { return AmendmentSuspend }
func (Reactivate) Kind() AmendmentKind    { return AmendmentReactivate }
func (TerminateLine) Kind() AmendmentKind { return AmendmentTerminateLine }

func (Extend) isAmendment()        {}
func (Renew) isAmendment()         {}
func (ModifyAmount) isAmendment()  {}
func (ModifyDates) isAmendment()   {}
func (Cancel) isAmendment()        {}
func (Suspend) isAmendment()       {}
func (Reactivate) isAmendment()    {}
func (TerminateLine) isAmendment() {}

// AmendmentRequest is an amendment applied to one contract by one actor
type AmendmentRequest struct {
	ContractID ContractID
	Amendment  Amendment
	Actor      Actor
	Reason     string
}

// AmendmentResult carries the entities an amendment produced or changed
type AmendmentResult struct {
	Contract       Contract        `json:"contract"`
	Renewal        *Contract       `json:"renewal,omitempty"`
	Installments   []Installment   `json:"installments"`
	Deleted        int             `json:"deleted"`
	Generated      int             `json:"generated"`
	SpecialPayment *SpecialPayment `json:"special_payment,omitempty"`
	Audit          AuditEntry      `json:"audit"`
}
