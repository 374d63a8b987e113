package domain

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a contract, installment or payment does not exist
var ErrNotFound = errors.New("not found")

// DomainError represents a domain-level error
type DomainError struct {
	Message string
}

func (e DomainError) Error() string {
	return e.Message
}

// NewDomainError creates a new DomainError
func NewDomainError(format string, args ...interface{}) error {
	return DomainError{
		Message: fmt.Sprintf(format, args...),
	}
}

// ScheduleErrorKind classifies scheduler failures
type ScheduleErrorKind string

const ScheduleInvalidRange ScheduleErrorKind = "INVALID_RANGE"

// ScheduleError is returned by the installment scheduler
type ScheduleError struct {
	Kind ScheduleErrorKind
	From string
	To   string
}

func (e *ScheduleError) Error() string {
	return fmt.Sprintf("schedule: %s [%s, %s)", e.Kind, e.From, e.To)
}

// ProrationErrorKind classifies proration failures
type ProrationErrorKind string

const ProrationNoOwner ProrationErrorKind = "NO_OWNER"

// ProrationError is returned when an installment cannot be split across owners
type ProrationError struct {
	Kind       ProrationErrorKind
	PropertyID PropertyID
}

func (e *ProrationError) Error() string {
	return fmt.Sprintf("proration: %s for property %s", e.Kind, e.PropertyID)
}

// AmendmentErrorKind classifies amendment failures
type AmendmentErrorKind string

const (
	AmendmentPendingBalance  AmendmentErrorKind = "PENDING_BALANCE_BLOCKS_CANCELLATION"
	AmendmentShrinkPastPaid  AmendmentErrorKind = "CANNOT_SHRINK_PAST_PAID_INSTALLMENT"
	AmendmentInvalidState    AmendmentErrorKind = "INVALID_STATE"
	AmendmentInvalidDate     AmendmentErrorKind = "INVALID_DATE"
	AmendmentInvalidAmount   AmendmentErrorKind = "INVALID_AMOUNT"
	AmendmentLineNotFound    AmendmentErrorKind = "LINE_NOT_FOUND"
	AmendmentLockedOperation AmendmentErrorKind = "INSTALLMENT_LOCKED"
)

// AmendmentError is returned when an amendment is refused. PendingCount and
// PendingAmount are set for pending balance refusals, Serial for locked installments.
type AmendmentError struct {
	Kind          AmendmentErrorKind
	Message       string
	PendingCount  int
	PendingAmount decimal.Decimal
	Serial        int
}

func (e *AmendmentError) Error() string {
	switch e.Kind {
	case AmendmentPendingBalance:
		return fmt.Sprintf("amendment: %s (count=%d, amount=%s)", e.Kind, e.PendingCount, e.PendingAmount.String())
	case AmendmentShrinkPastPaid, AmendmentLockedOperation:
		return fmt.Sprintf("amendment: %s (serial=%d)", e.Kind, e.Serial)
	}
	if e.Message == "" {
		return "amendment: " + string(e.Kind)
	}
	return fmt.Sprintf("amendment: %s: %s", e.Kind, e.Message)
}

// NewAmendmentError creates an AmendmentError with a formatted message
func NewAmendmentError(kind AmendmentErrorKind, format string, args ...interface{}) error {
	return &AmendmentError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// PendingBalanceError reports the unpaid installments that block a cancellation
func PendingBalanceError(count int, amount decimal.Decimal) error {
	return &AmendmentError{Kind: AmendmentPendingBalance, PendingCount: count, PendingAmount: amount}
}

// InvoiceEmissionError wraps a failure of the invoicing collaborator
type InvoiceEmissionError struct {
	PartnerID PartnerID
	Reference string
	Err       error
}

func (e *InvoiceEmissionError) Error() string {
	return fmt.Sprintf("emit invoice %q for partner %s: %v", e.Reference, e.PartnerID, e.Err)
}

func (e *InvoiceEmissionError) Unwrap() error {
	return e.Err
}

// IsAmendmentKind reports whether err is an AmendmentError of the given kind
func IsAmendmentKind(err error, kind AmendmentErrorKind) bool {
	var ae *AmendmentError
	return errors.As(err, &ae) && ae.Kind == kind
}
