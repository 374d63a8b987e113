package service

import (
	"context"
	"fmt"
	"time"

	"github.com/zlovtnik/leasebill/internal/billing/domain"
	"github.com/zlovtnik/leasebill/internal/billing/repository"
	"github.com/zlovtnik/leasebill/pkg/fp"
)

// BillingService emits owner invoices for due installments and books late fees
type BillingService struct {
	*core
}

// NewBillingService creates a new BillingService
func NewBillingService(d Deps) *BillingService {
	return &BillingService{core: newCore(d)}
}

// BillingResult summarizes the billing of one contract
type BillingResult struct {
	ContractID   domain.ContractID    `json:"contract_id"`
	Installments []domain.Installment `json:"installments"`
	Invoices     int                  `json:"invoices"`
}

// BillDue invoices every active installment due on or before asOf that has
// not been invoiced yet. Each partner share gets its own invoice. Any
// emission failure rolls back the whole contract.
func (s *BillingService) BillDue(ctx context.Context, tenantID string, id domain.ContractID, asOf time.Time) fp.Result[BillingResult] {
	asOf = domain.Date(asOf)
	now := s.now()
	result := BillingResult{ContractID: id}
	var entry domain.AuditEntry

	err := s.store.Within(ctx, func(ctx context.Context, tx repository.Tx) error {
		c, err := tx.LockContract(ctx, tenantID, id)
		if err != nil {
			return err
		}
		if !acceptsBilling(c.State) {
			return domain.NewAmendmentError(domain.AmendmentInvalidState, "cannot bill a %s contract", c.State)
		}
		items, err := tx.ListInstallments(ctx, tenantID, id)
		if err != nil {
			return err
		}

		var serials []int
		for _, inst := range items {
			if !inst.Active || inst.IsInvoiced() || inst.Date.After(asOf) || !c.BillsOn(inst.Date) {
				continue
			}
			billed, err := s.billInstallment(ctx, c, inst, now)
			if err != nil {
				return err
			}
			if err := tx.UpdateInstallment(ctx, billed); err != nil {
				return err
			}
			result.Installments = append(result.Installments, billed)
			result.Invoices += len(billed.Billed)
			serials = append(serials, billed.Serial)
		}
		if len(serials) == 0 {
			return nil
		}
		entry, err = s.audit(ctx, tx, domain.NewAuditEntry(tenantID, id, domain.AuditActionBilled, "bill_due", domain.SystemActor, now).
			WithChanges(nil, map[string]interface{}{"serials": serials, "invoices": result.Invoices}))
		return err
	})
	if err != nil {
		return fp.Failure[BillingResult](err)
	}
	if result.Invoices > 0 {
		s.publish(ctx, entry)
	}
	return fp.Success(result)
}

func (s *BillingService) billInstallment(ctx context.Context, c domain.Contract, inst domain.Installment, now time.Time) (domain.Installment, error) {
	shares, err := s.shares(ctx, c, inst)
	if err != nil {
		return inst, err
	}
	reference := fmt.Sprintf("%s/%d", c.ContractNumber, inst.Serial)
	for i, share := range shares {
		ref, err := s.invoices.EmitInvoice(ctx, InvoiceRequest{
			TenantID:           c.TenantID,
			ContractID:         c.ID,
			PartnerID:          share.PartnerID,
			Amount:             inst.Amount.WithAmount(share.Income),
			DueDate:            inst.Date,
			Reference:          reference,
			DestinationAccount: c.DestinationAccount,
		})
		if err != nil {
			s.logger.Error("invoice emission failed",
				"contract_id", c.ID.String(),
				"serial", inst.Serial,
				"partner_id", share.PartnerID.String(),
				"emitted", i,
				"error", err,
			)
			return inst, &domain.InvoiceEmissionError{PartnerID: share.PartnerID, Reference: reference, Err: err}
		}
		shares[i].InvoiceRef = ref
	}
	return inst.WithBilling(shares, now), nil
}

// AssessLateFees books one confirmed late fee per installment overdue past
// the contract's grace days. Installments that already carry a late fee are
// skipped. It returns the late fees created.
func (s *BillingService) AssessLateFees(ctx context.Context, tenantID string, id domain.ContractID, asOf time.Time) fp.Result[[]domain.SpecialPayment] {
	asOf = domain.Date(asOf)
	now := s.now()
	var created []domain.SpecialPayment
	var entry domain.AuditEntry

	err := s.store.Within(ctx, func(ctx context.Context, tx repository.Tx) error {
		c, err := tx.LockContract(ctx, tenantID, id)
		if err != nil {
			return err
		}
		if !acceptsBilling(c.State) {
			return nil
		}
		items, err := tx.ListInstallments(ctx, tenantID, id)
		if err != nil {
			return err
		}
		existing, err := tx.ListSpecialPayments(ctx, tenantID, id)
		if err != nil {
			return err
		}
		charged := make(map[domain.InstallmentID]bool)
		for _, p := range existing {
			if p.Type == domain.SpecialPaymentLateFee && p.ReferenceInstallment != nil && p.State != domain.SpecialPaymentStateCancelled {
				charged[*p.ReferenceInstallment] = true
			}
		}

		for _, inst := range items {
			if charged[inst.ID] || !c.BillsOn(inst.Date) || !inst.IsOverdue(asOf, c.GraceDays) {
				continue
			}
			fee := s.lateFees.LateFee(c, inst, asOf)
			if !fee.IsPositive() {
				continue
			}
			p := domain.NewSpecialPayment(tenantID, id, domain.SpecialPaymentLateFee, inst.Amount.WithAmount(fee), asOf, domain.SystemActor.UserID, now).
				WithReference(inst.ID).
				WithDescription(fmt.Sprintf("late fee on installment #%d", inst.Serial))
			if p, err = p.TransitionTo(domain.SpecialPaymentStateConfirmed, domain.SystemActor.UserID, now); err != nil {
				return err
			}
			if err := tx.InsertSpecialPayment(ctx, p); err != nil {
				return err
			}
			created = append(created, p)
		}
		if len(created) == 0 {
			return nil
		}
		fees := make([]map[string]interface{}, 0, len(created))
		for _, p := range created {
			fees = append(fees, specialPaymentValues(p))
		}
		entry, err = s.audit(ctx, tx, domain.NewAuditEntry(tenantID, id, domain.AuditActionLateFee, "assess_late_fees", domain.SystemActor, now).
			WithChanges(nil, map[string]interface{}{"late_fees": fees}))
		return err
	})
	if err != nil {
		return fp.Failure[[]domain.SpecialPayment](err)
	}
	if len(created) > 0 {
		s.publish(ctx, entry)
	}
	return fp.Success(created)
}

// acceptsBilling reports whether a contract in this state may hold billable
// installments; Contract.BillsOn decides per installment
func acceptsBilling(state domain.ContractState) bool {
	switch state {
	case domain.ContractStateActive, domain.ContractStateSuspended,
		domain.ContractStateExpired, domain.ContractStateCancelled:
		return true
	}
	return false
}
