package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ContractState represents the lifecycle state of a contract
type ContractState string

const (
	ContractStateDraft     ContractState = "DRAFT"
	ContractStateConfirmed ContractState = "CONFIRMED"
	ContractStateActive    ContractState = "ACTIVE"
	ContractStateSuspended ContractState = "SUSPENDED"
	ContractStateCancelled ContractState = "CANCELLED"
	ContractStateExpired   ContractState = "EXPIRED"
)

// ValidTransitions defines valid contract state transitions
var ValidTransitions = map[ContractState][]ContractState{
	ContractStateDraft:     {ContractStateConfirmed, ContractStateCancelled},
	ContractStateConfirmed: {ContractStateActive, ContractStateCancelled},
	ContractStateActive:    {ContractStateSuspended, ContractStateCancelled, ContractStateExpired},
	ContractStateSuspended: {ContractStateActive, ContractStateCancelled},
	ContractStateCancelled: {},
	ContractStateExpired:   {},
}

// CanTransitionTo checks if a transition is valid
func (s ContractState) CanTransitionTo(target ContractState) bool {
	for _, v := range ValidTransitions[s] {
		if v == target {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transition is possible
func (s ContractState) IsTerminal() bool {
	return s == ContractStateCancelled || s == ContractStateExpired
}

// CommissionBase selects the amount commission is computed on
type CommissionBase string

const (
	// CommissionBaseGross computes commission on the full installment amount.
	CommissionBaseGross CommissionBase = "GROSS"
	// CommissionBaseNetOfInsurance subtracts the per-period insurance fee first.
	CommissionBaseNetOfInsurance CommissionBase = "NET_OF_INSURANCE"
)

// ValidPeriodicities lists the supported billing periods in months
var ValidPeriodicities = []int{1, 3, 6, 12}

// IsValidPeriodicity reports whether months is a supported billing period
func IsValidPeriodicity(months int) bool {
	for _, p := range ValidPeriodicities {
		if p == months {
			return true
		}
	}
	return false
}

// CancellationType records why a contract was cancelled
type CancellationType string

const (
	CancellationMutual     CancellationType = "MUTUAL"
	CancellationByLessee   CancellationType = "BY_LESSEE"
	CancellationByOwner    CancellationType = "BY_OWNER"
	CancellationNonPayment CancellationType = "NON_PAYMENT"
)

// LineState represents the state of one property inside a contract
type LineState string

const (
	LineStateDraft      LineState = "DRAFT"
	LineStateActive     LineState = "ACTIVE"
	LineStateTerminated LineState = "TERMINATED"
	LineStateCancelled  LineState = "CANCELLED"
)

// ContractLine is one property's participation in a multi-property contract
type ContractLine struct {
	ID                ContractLineID  `json:"id"`
	PropertyID        PropertyID      `json:"property_id"`
	DateFrom          time.Time       `json:"date_from"`
	DateTo            time.Time       `json:"date_to"`
	RentalFee         decimal.Decimal `json:"rental_fee"`
	State             LineState       `json:"state"`
	TerminationReason string          `json:"termination_reason,omitempty"`
}

// IsBillable reports whether the line participates in billing on the given date
func (l ContractLine) IsBillable(on time.Time) bool {
	if l.State != LineStateActive && l.State != LineStateDraft && l.State != LineStateTerminated {
		return false
	}
	on = Date(on)
	return !on.Before(Date(l.DateFrom)) && on.Before(Date(l.DateTo))
}

// Suspension is the window of a contract suspension
type Suspension struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Cancellation records the outcome of a cancel amendment and the state it
// was cancelled from
type Cancellation struct {
	Type          CancellationType `json:"type"`
	EffectiveDate time.Time        `json:"effective_date"`
	Reason        string           `json:"reason,omitempty"`
	PriorState    ContractState    `json:"prior_state,omitempty"`
}

// Contract is the root billing aggregate (immutable value; mutate via With* copies)
type Contract struct {
	ID                   ContractID      `json:"id"`
	TenantID             string          `json:"tenant_id"`
	ContractNumber       string          `json:"contract_number"`
	PropertyID           PropertyID      `json:"property_id"`
	LesseeID             PartnerID       `json:"lessee_id"`
	OwnerID              *PartnerID      `json:"owner_id,omitempty"`
	State                ContractState   `json:"state"`
	DateFrom             time.Time       `json:"date_from"`
	DateTo               time.Time       `json:"date_to"`
	RentalFee            Money           `json:"rental_fee"`
	CommissionPercentage decimal.Decimal `json:"commission_percentage"`
	CommissionBase       CommissionBase  `json:"commission_base"`
	InsuranceFee         decimal.Decimal `json:"insurance_fee"`
	InterestRate         decimal.Decimal `json:"interest_rate"`
	GraceDays            int             `json:"grace_days"`
	PeriodicityMonths    int             `json:"periodicity_months"`
	DestinationAccount   string          `json:"destination_account,omitempty"`
	Lines                []ContractLine  `json:"lines,omitempty"`
	Suspension           *Suspension     `json:"suspension,omitempty"`
	Cancellation         *Cancellation   `json:"cancellation,omitempty"`
	RenewedFrom          *ContractID     `json:"renewed_from,omitempty"`
	Version              int             `json:"version"`
	CreatedAt            time.Time       `json:"created_at"`
	UpdatedAt            *time.Time      `json:"updated_at,omitempty"`
	CreatedBy            UserID          `json:"created_by"`
	UpdatedBy            *UserID         `json:"updated_by,omitempty"`
}

// TermSet is the economic terms the scheduler works from
type TermSet struct {
	Anchor               time.Time
	DateTo               time.Time
	RentalFee            Money
	CommissionPercentage decimal.Decimal
	CommissionBase       CommissionBase
	InsuranceFee         decimal.Decimal
	InterestRate         decimal.Decimal
	GraceDays            int
	PeriodicityMonths    int
}

// Terms extracts the current term set
func (c Contract) Terms() TermSet {
	return TermSet{
		Anchor:               Date(c.DateFrom),
		DateTo:               Date(c.DateTo),
		RentalFee:            c.RentalFee,
		CommissionPercentage: c.CommissionPercentage,
		CommissionBase:       c.CommissionBase,
		InsuranceFee:         c.InsuranceFee,
		InterestRate:         c.InterestRate,
		GraceDays:            c.GraceDays,
		PeriodicityMonths:    c.PeriodicityMonths,
	}
}

// IsMultiProperty reports whether the contract bills through lines
func (c Contract) IsMultiProperty() bool {
	return len(c.Lines) > 0
}

// ActiveLineFeeTotal sums the fees of lines that are neither terminated nor cancelled
func (c Contract) ActiveLineFeeTotal() decimal.Decimal {
	total := decimal.Zero
	for _, l := range c.Lines {
		if l.State == LineStateActive || l.State == LineStateDraft {
			total = total.Add(l.RentalFee)
		}
	}
	return total
}

// TransitionTo attempts to transition to a new state
func (c Contract) TransitionTo(state ContractState, updatedBy UserID, at time.Time) (Contract, error) {
	if !c.State.CanTransitionTo(state) {
		return c, NewDomainError("invalid state transition from %s to %s", c.State, state)
	}
	c.State = state
	return c.touch(updatedBy, at), nil
}

// WithRentalFee returns a copy with updated rental fee; a single active line follows the contract fee
func (c Contract) WithRentalFee(fee decimal.Decimal, updatedBy UserID, at time.Time) Contract {
	c.RentalFee = c.RentalFee.WithAmount(fee)
	if c.IsMultiProperty() {
		c.Lines = rescaleLines(c.Lines, fee)
	}
	return c.touch(updatedBy, at)
}

// WithDateTo returns a copy with an updated end date; open lines follow it
func (c Contract) WithDateTo(dateTo time.Time, updatedBy UserID, at time.Time) Contract {
	oldEnd := Date(c.DateTo)
	c.DateTo = Date(dateTo)
	lines := make([]ContractLine, len(c.Lines))
	for i, l := range c.Lines {
		if (l.State == LineStateActive || l.State == LineStateDraft) && Date(l.DateTo).Equal(oldEnd) {
			l.DateTo = c.DateTo
		}
		if l.DateTo.After(c.DateTo) {
			l.DateTo = c.DateTo
		}
		lines[i] = l
	}
	c.Lines = lines
	return c.touch(updatedBy, at)
}

// WithSuspension returns a copy carrying the given suspension window
func (c Contract) WithSuspension(s *Suspension, updatedBy UserID, at time.Time) Contract {
	c.Suspension = s
	return c.touch(updatedBy, at)
}

// BillsOn reports whether an installment dated on date can still be invoiced
// or charged a late fee. Suspended contracts qualify; the installments in
// the suspension window are inactive and skipped on their own. A cancelled
// contract keeps billing what fell due up to the effective date, unless it
// was cancelled before it was ever activated.
func (c Contract) BillsOn(date time.Time) bool {
	switch c.State {
	case ContractStateActive, ContractStateSuspended, ContractStateExpired:
		return true
	case ContractStateCancelled:
		if c.Cancellation == nil {
			return false
		}
		switch c.Cancellation.PriorState {
		case ContractStateActive, ContractStateSuspended:
			return !Date(date).After(Date(c.Cancellation.EffectiveDate))
		}
	}
	return false
}

// Cancel returns a cancelled copy ending on the effective date
func (c Contract) Cancel(cancellation Cancellation, updatedBy UserID, at time.Time) (Contract, error) {
	wasDraft := c.State == ContractStateDraft
	updated, err := c.TransitionTo(ContractStateCancelled, updatedBy, at)
	if err != nil {
		return c, err
	}
	cancellation.PriorState = c.State
	updated = updated.WithDateTo(cancellation.EffectiveDate, updatedBy, at)
	updated.Cancellation = &cancellation
	lines := make([]ContractLine, len(updated.Lines))
	for i, l := range updated.Lines {
		switch {
		case l.State != LineStateActive && l.State != LineStateDraft:
		case wasDraft:
			l.State = LineStateCancelled
		default:
			// lines that were billed keep their window for past installments
			l.State = LineStateTerminated
			l.TerminationReason = "contract cancelled"
		}
		lines[i] = l
	}
	updated.Lines = lines
	return updated, nil
}

// TerminateLine returns a copy where the given line ended on effective; the contract fee drops by the line fee
func (c Contract) TerminateLine(id ContractLineID, effective time.Time, reason string, updatedBy UserID, at time.Time) (Contract, error) {
	lines := make([]ContractLine, len(c.Lines))
	copy(lines, c.Lines)
	for i, l := range lines {
		if l.ID != id {
			continue
		}
		if l.State != LineStateActive && l.State != LineStateDraft {
			return c, NewDomainError("line %s is already %s", id, l.State)
		}
		l.State = LineStateTerminated
		l.DateTo = Date(effective)
		l.TerminationReason = reason
		lines[i] = l
		c.Lines = lines
		c.RentalFee = c.RentalFee.WithAmount(c.RentalFee.Amount.Sub(l.RentalFee))
		return c.touch(updatedBy, at), nil
	}
	return c, NewDomainError("line %s not found", id)
}

// Renewal builds the draft successor of the contract starting the day after it ends
func (c Contract) Renewal(newEnd time.Time, newFee *decimal.Decimal, createdBy UserID, at time.Time) Contract {
	from := Date(c.DateTo).AddDate(0, 0, 1)
	fee := c.RentalFee
	if newFee != nil {
		fee = fee.WithAmount(*newFee)
	}
	source := c.ID
	renewal := c
	renewal.ID = NewContractID()
	renewal.State = ContractStateDraft
	renewal.DateFrom = from
	renewal.DateTo = Date(newEnd)
	renewal.RentalFee = fee
	renewal.Suspension = nil
	renewal.Cancellation = nil
	renewal.RenewedFrom = &source
	renewal.Version = 1
	renewal.CreatedAt = at
	renewal.CreatedBy = createdBy
	renewal.UpdatedAt = nil
	renewal.UpdatedBy = nil
	renewal.Lines = nil
	for _, l := range c.Lines {
		if l.State != LineStateActive && l.State != LineStateDraft {
			continue
		}
		l.ID = NewContractLineID()
		l.DateFrom = from
		l.DateTo = renewal.DateTo
		l.State = LineStateDraft
		renewal.Lines = append(renewal.Lines, l)
	}
	if newFee != nil && renewal.IsMultiProperty() {
		renewal.Lines = rescaleLines(renewal.Lines, *newFee)
	}
	return renewal
}

func (c Contract) touch(updatedBy UserID, at time.Time) Contract {
	c.UpdatedAt = &at
	c.UpdatedBy = &updatedBy
	return c
}

// rescaleLines distributes a new combined fee over open lines in proportion to their
// current fees, putting the rounding remainder on the last open line.
func rescaleLines(lines []ContractLine, newTotal decimal.Decimal) []ContractLine {
	out := make([]ContractLine, len(lines))
	copy(out, lines)
	open := make([]int, 0, len(out))
	for i, l := range out {
		if l.State == LineStateActive || l.State == LineStateDraft {
			open = append(open, i)
		}
	}
	if len(open) == 0 {
		return out
	}
	openTotal := decimal.Zero
	for _, i := range open {
		openTotal = openTotal.Add(out[i].RentalFee)
	}
	// closed lines are already out of the combined fee
	target := newTotal
	allocated := decimal.Zero
	for n, i := range open {
		if n == len(open)-1 {
			out[i].RentalFee = target.Sub(allocated)
			break
		}
		var fee decimal.Decimal
		if openTotal.IsZero() {
			fee = target.Div(decimal.NewFromInt(int64(len(open)))).Round(DefaultCurrencyPlaces)
		} else {
			fee = target.Mul(out[i].RentalFee).Div(openTotal).Round(DefaultCurrencyPlaces)
		}
		out[i].RentalFee = fee
		allocated = allocated.Add(fee)
	}
	return out
}
