package service

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/zlovtnik/leasebill/internal/billing/domain"
	"github.com/zlovtnik/leasebill/internal/billing/repository"
	"github.com/zlovtnik/leasebill/pkg/fp"
)

// SpecialPaymentService manages charges that live outside the installment sequence
type SpecialPaymentService struct {
	*core
}

// NewSpecialPaymentService creates a new SpecialPaymentService
func NewSpecialPaymentService(d Deps) *SpecialPaymentService {
	return &SpecialPaymentService{core: newCore(d)}
}

// CreateSpecialPaymentRequest represents a request to record a special payment
type CreateSpecialPaymentRequest struct {
	ContractID           domain.ContractID
	Type                 domain.SpecialPaymentType
	Amount               decimal.Decimal
	Date                 time.Time
	Description          string
	ReferenceInstallment *domain.InstallmentID
}

// Create records a draft special payment. Installments are never touched.
func (s *SpecialPaymentService) Create(ctx context.Context, tenantID string, req CreateSpecialPaymentRequest, actor domain.Actor) fp.Result[domain.SpecialPayment] {
	if !req.Type.IsValid() {
		return fp.Failure[domain.SpecialPayment](domain.NewDomainError("unknown special payment type %q", req.Type))
	}
	if !req.Amount.IsPositive() {
		return fp.Failure[domain.SpecialPayment](domain.NewAmendmentError(domain.AmendmentInvalidAmount, "special payment amount must be positive"))
	}
	if req.Date.IsZero() {
		return fp.Failure[domain.SpecialPayment](domain.NewAmendmentError(domain.AmendmentInvalidDate, "special payment date is required"))
	}

	now := s.now()
	var created domain.SpecialPayment
	var entry domain.AuditEntry
	err := s.store.Within(ctx, func(ctx context.Context, tx repository.Tx) error {
		c, err := tx.LockContract(ctx, tenantID, req.ContractID)
		if err != nil {
			return err
		}
		if c.State == domain.ContractStateCancelled && req.Type != domain.SpecialPaymentPenalty {
			return domain.NewAmendmentError(domain.AmendmentInvalidState, "only penalties can be added to a cancelled contract")
		}
		created = domain.NewSpecialPayment(tenantID, c.ID, req.Type, c.RentalFee.WithAmount(req.Amount.Round(s.places())), req.Date, actor.UserID, now).
			WithDescription(req.Description)
		if req.ReferenceInstallment != nil {
			created = created.WithReference(*req.ReferenceInstallment)
		}
		if err := tx.InsertSpecialPayment(ctx, created); err != nil {
			return err
		}
		entry, err = s.audit(ctx, tx, specialPaymentAudit(created, "create_special_payment", actor, now))
		return err
	})
	if err != nil {
		return fp.Failure[domain.SpecialPayment](err)
	}
	s.publish(ctx, entry)
	return fp.Success(created)
}

// Confirm makes a draft special payment billable
func (s *SpecialPaymentService) Confirm(ctx context.Context, tenantID string, id domain.SpecialPaymentID, actor domain.Actor) fp.Result[domain.SpecialPayment] {
	return s.change(ctx, tenantID, id, "confirm_special_payment", actor, func(_ context.Context, _ domain.Contract, p domain.SpecialPayment, now time.Time) (domain.SpecialPayment, error) {
		return p.TransitionTo(domain.SpecialPaymentStateConfirmed, actor.UserID, now)
	})
}

// GenerateInvoice emits the invoice of a confirmed special payment to the lessee
func (s *SpecialPaymentService) GenerateInvoice(ctx context.Context, tenantID string, id domain.SpecialPaymentID, actor domain.Actor) fp.Result[domain.SpecialPayment] {
	return s.change(ctx, tenantID, id, "invoice_special_payment", actor, func(ctx context.Context, c domain.Contract, p domain.SpecialPayment, now time.Time) (domain.SpecialPayment, error) {
		if !p.State.CanTransitionTo(domain.SpecialPaymentStateInvoiced) {
			return p, domain.NewAmendmentError(domain.AmendmentInvalidState, "cannot invoice a %s special payment", p.State)
		}
		return s.invoiceSpecialPayment(ctx, c, p, actor, now)
	})
}

// MarkPaid settles an invoiced special payment
func (s *SpecialPaymentService) MarkPaid(ctx context.Context, tenantID string, id domain.SpecialPaymentID, actor domain.Actor) fp.Result[domain.SpecialPayment] {
	return s.change(ctx, tenantID, id, "pay_special_payment", actor, func(_ context.Context, _ domain.Contract, p domain.SpecialPayment, now time.Time) (domain.SpecialPayment, error) {
		return p.TransitionTo(domain.SpecialPaymentStatePaid, actor.UserID, now)
	})
}

// Cancel voids a special payment that has not been invoiced
func (s *SpecialPaymentService) Cancel(ctx context.Context, tenantID string, id domain.SpecialPaymentID, actor domain.Actor) fp.Result[domain.SpecialPayment] {
	return s.change(ctx, tenantID, id, "cancel_special_payment", actor, func(_ context.Context, _ domain.Contract, p domain.SpecialPayment, now time.Time) (domain.SpecialPayment, error) {
		return p.TransitionTo(domain.SpecialPaymentStateCancelled, actor.UserID, now)
	})
}

// Get retrieves a special payment by ID
func (s *SpecialPaymentService) Get(ctx context.Context, tenantID string, id domain.SpecialPaymentID) fp.Result[domain.SpecialPayment] {
	return s.store.GetSpecialPayment(ctx, tenantID, id)
}

// List returns the special payments of a contract
func (s *SpecialPaymentService) List(ctx context.Context, tenantID string, contractID domain.ContractID) fp.Result[[]domain.SpecialPayment] {
	return s.store.ListSpecialPayments(ctx, tenantID, contractID)
}

type specialPaymentChange func(ctx context.Context, c domain.Contract, p domain.SpecialPayment, now time.Time) (domain.SpecialPayment, error)

func (s *SpecialPaymentService) change(ctx context.Context, tenantID string, id domain.SpecialPaymentID, operation string, actor domain.Actor, fn specialPaymentChange) fp.Result[domain.SpecialPayment] {
	now := s.now()
	var updated domain.SpecialPayment
	var entry domain.AuditEntry
	err := s.store.Within(ctx, func(ctx context.Context, tx repository.Tx) error {
		p, err := tx.GetSpecialPayment(ctx, tenantID, id)
		if err != nil {
			return err
		}
		c, err := tx.LockContract(ctx, tenantID, p.ContractID)
		if err != nil {
			return err
		}
		if updated, err = fn(ctx, c, p, now); err != nil {
			return err
		}
		if err := tx.UpdateSpecialPayment(ctx, updated); err != nil {
			return err
		}
		entry, err = s.audit(ctx, tx, specialPaymentAudit(updated, operation, actor, now).
			WithChanges(map[string]interface{}{"state": string(p.State)}, specialPaymentValues(updated)))
		return err
	})
	if err != nil {
		return fp.Failure[domain.SpecialPayment](err)
	}
	s.publish(ctx, entry)
	return fp.Success(updated)
}

func specialPaymentAudit(p domain.SpecialPayment, operation string, actor domain.Actor, at time.Time) domain.AuditEntry {
	return domain.NewAuditEntry(p.TenantID, p.ContractID, domain.AuditActionSpecialPayment, operation, actor, at).
		WithChanges(nil, specialPaymentValues(p))
}

func specialPaymentValues(p domain.SpecialPayment) map[string]interface{} {
	values := map[string]interface{}{
		"special_payment_id": p.ID.String(),
		"type":               string(p.Type),
		"amount":             p.Amount.Amount.String(),
		"date":               p.Date.Format(dateFormat),
		"state":              string(p.State),
	}
	if p.InvoiceRef != "" {
		values["invoice_ref"] = p.InvoiceRef
	}
	return values
}
