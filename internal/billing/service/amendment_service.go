package service

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/zlovtnik/leasebill/internal/billing/domain"
	"github.com/zlovtnik/leasebill/internal/billing/repository"
	"github.com/zlovtnik/leasebill/internal/billing/schedule"
	"github.com/zlovtnik/leasebill/pkg/fp"
)

// AmendmentService applies amendments to contracts. Every amendment runs in
// one unit of work holding the contract lock, so it is applied entirely or
// not at all.
type AmendmentService struct {
	*core
}

// NewAmendmentService creates a new AmendmentService
func NewAmendmentService(d Deps) *AmendmentService {
	return &AmendmentService{core: newCore(d)}
}

// Apply runs an amendment for an actor
func (s *AmendmentService) Apply(ctx context.Context, tenantID string, req domain.AmendmentRequest) fp.Result[domain.AmendmentResult] {
	if req.Amendment == nil {
		return fp.Failure[domain.AmendmentResult](domain.NewAmendmentError(domain.AmendmentInvalidState, "no amendment given"))
	}

	var result domain.AmendmentResult
	var released []domain.PropertyID
	now := s.now()

	err := s.store.Within(ctx, func(ctx context.Context, tx repository.Tx) error {
		before, err := tx.LockContract(ctx, tenantID, req.ContractID)
		if err != nil {
			return err
		}

		var after domain.Contract
		var change scheduleChange
		switch a := req.Amendment.(type) {
		case domain.Extend:
			after, change, err = s.extend(ctx, tx, before, a.NewEnd, req.Actor, now)
		case domain.Renew:
			var renewal domain.Contract
			renewal, change, err = s.renew(ctx, tx, before, a, req.Actor, now)
			after = before
			result.Renewal = &renewal
		case domain.ModifyAmount:
			after, change, err = s.modifyAmount(ctx, tx, before, a, req.Actor, now)
		case domain.ModifyDates:
			after, change, err = s.modifyDates(ctx, tx, before, a.NewEnd, req.Actor, now)
		case domain.Cancel:
			var penalty *domain.SpecialPayment
			after, change, penalty, err = s.cancel(ctx, tx, before, a, req.Actor, now)
			result.SpecialPayment = penalty
			released = contractProperties(before)
		case domain.Suspend:
			after, change, err = s.suspend(ctx, tx, before, a, req.Actor, now)
		case domain.Reactivate:
			after, change, err = s.reactivate(ctx, tx, before, req.Actor, now)
		case domain.TerminateLine:
			after, change, err = s.terminateLine(ctx, tx, before, a, req.Actor, now)
			if err == nil {
				released = []domain.PropertyID{lineProperty(before, a.LineID)}
			}
		default:
			err = domain.NewAmendmentError(domain.AmendmentInvalidState, "unsupported amendment %T", a)
		}
		if err != nil {
			return err
		}

		newValues := after.Snapshot()
		newValues["deleted"] = change.Deleted
		newValues["rewritten"] = change.Rewritten
		newValues["generated"] = change.Generated
		if result.Renewal != nil {
			newValues["renewal_id"] = result.Renewal.ID.String()
		}
		entry := domain.NewAuditEntry(tenantID, before.ID, domain.AuditActionAmended, string(req.Amendment.Kind()), req.Actor, now).
			WithReason(req.Reason).
			WithChanges(before.Snapshot(), newValues)
		if result.Audit, err = s.audit(ctx, tx, entry); err != nil {
			return err
		}

		installments, err := tx.ListInstallments(ctx, tenantID, after.ID)
		if err != nil {
			return err
		}
		result.Contract = after
		result.Installments = installments
		result.Deleted = change.Deleted
		result.Generated = change.Generated
		return nil
	})
	if err != nil {
		return fp.Failure[domain.AmendmentResult](err)
	}

	s.publish(ctx, result.Audit)
	for _, p := range released {
		if err := s.releaser.ReleaseProperty(ctx, tenantID, p, now); err != nil {
			s.logger.Error("failed to signal property release",
				"contract_id", req.ContractID.String(),
				"property_id", p.String(),
				"error", err,
			)
		}
	}
	return fp.Success(result)
}

func requireState(c domain.Contract, op domain.AmendmentKind, allowed ...domain.ContractState) error {
	for _, s := range allowed {
		if c.State == s {
			return nil
		}
	}
	return domain.NewAmendmentError(domain.AmendmentInvalidState, "%s not allowed on a %s contract", op, c.State)
}

func (s *AmendmentService) extend(ctx context.Context, tx repository.Tx, c domain.Contract, newEnd time.Time, actor domain.Actor, now time.Time) (domain.Contract, scheduleChange, error) {
	if err := requireState(c, domain.AmendmentExtend, domain.ContractStateConfirmed, domain.ContractStateActive); err != nil {
		return c, scheduleChange{}, err
	}
	newEnd = domain.Date(newEnd)
	if !newEnd.After(c.DateTo) {
		return c, scheduleChange{}, domain.NewAmendmentError(domain.AmendmentInvalidDate,
			"new end %s must be after current end %s", newEnd.Format(dateFormat), c.DateTo.Format(dateFormat))
	}
	return s.moveEnd(ctx, tx, c, newEnd, actor, now)
}

func (s *AmendmentService) modifyDates(ctx context.Context, tx repository.Tx, c domain.Contract, newEnd time.Time, actor domain.Actor, now time.Time) (domain.Contract, scheduleChange, error) {
	if err := requireState(c, domain.AmendmentModifyDates, domain.ContractStateConfirmed, domain.ContractStateActive); err != nil {
		return c, scheduleChange{}, err
	}
	newEnd = domain.Date(newEnd)
	if !newEnd.After(c.DateFrom) {
		return c, scheduleChange{}, domain.NewAmendmentError(domain.AmendmentInvalidDate,
			"new end %s must be after start %s", newEnd.Format(dateFormat), c.DateFrom.Format(dateFormat))
	}
	if newEnd.Equal(c.DateTo) {
		return c, scheduleChange{}, domain.NewAmendmentError(domain.AmendmentInvalidDate, "end date is already %s", newEnd.Format(dateFormat))
	}
	if newEnd.Before(c.DateTo) {
		items, err := tx.ListInstallments(ctx, c.TenantID, c.ID)
		if err != nil {
			return c, scheduleChange{}, err
		}
		for _, inst := range items {
			if inst.IsLocked() && !inst.Date.Before(newEnd) {
				return c, scheduleChange{}, &domain.AmendmentError{Kind: domain.AmendmentShrinkPastPaid, Serial: inst.Serial}
			}
		}
	}
	return s.moveEnd(ctx, tx, c, newEnd, actor, now)
}

// moveEnd changes date_to and reschedules from the period holding the earlier of the two ends
func (s *AmendmentService) moveEnd(ctx context.Context, tx repository.Tx, c domain.Contract, newEnd time.Time, actor domain.Actor, now time.Time) (domain.Contract, scheduleChange, error) {
	pivot := c.DateTo
	if newEnd.Before(pivot) {
		pivot = newEnd
	}
	from := schedule.PeriodStart(c.Terms(), pivot)

	updated, err := s.save(ctx, tx, c.WithDateTo(newEnd, actor.UserID, now))
	if err != nil {
		return c, scheduleChange{}, err
	}
	change, err := s.recalculateSchedule(ctx, tx, updated, from)
	return updated, change, err
}

func (s *AmendmentService) renew(ctx context.Context, tx repository.Tx, c domain.Contract, a domain.Renew, actor domain.Actor, now time.Time) (domain.Contract, scheduleChange, error) {
	if err := requireState(c, domain.AmendmentRenew,
		domain.ContractStateConfirmed, domain.ContractStateActive, domain.ContractStateSuspended, domain.ContractStateExpired); err != nil {
		return c, scheduleChange{}, err
	}
	if a.NewRentalFee != nil && !a.NewRentalFee.IsPositive() {
		return c, scheduleChange{}, domain.NewAmendmentError(domain.AmendmentInvalidAmount, "rental fee must be positive")
	}
	renewal := c.Renewal(a.NewEnd, a.NewRentalFee, actor.UserID, now)
	renewal.ContractNumber = renewalNumber(c.ContractNumber, now)
	if !renewal.DateTo.After(renewal.DateFrom) {
		return c, scheduleChange{}, domain.NewAmendmentError(domain.AmendmentInvalidDate,
			"renewal end %s must be after %s", renewal.DateTo.Format(dateFormat), renewal.DateFrom.Format(dateFormat))
	}
	if err := tx.InsertContract(ctx, renewal); err != nil {
		return c, scheduleChange{}, err
	}
	generated, err := s.generate(ctx, tx, renewal, renewal.DateFrom, nil)
	if err != nil {
		return c, scheduleChange{}, err
	}
	created := domain.NewAuditEntry(renewal.TenantID, renewal.ID, domain.AuditActionCreated, string(domain.AmendmentRenew), actor, now).
		WithChanges(nil, renewal.Snapshot())
	if _, err := s.audit(ctx, tx, created); err != nil {
		return c, scheduleChange{}, err
	}
	return renewal, scheduleChange{Generated: generated}, nil
}

func (s *AmendmentService) modifyAmount(ctx context.Context, tx repository.Tx, c domain.Contract, a domain.ModifyAmount, actor domain.Actor, now time.Time) (domain.Contract, scheduleChange, error) {
	if err := requireState(c, domain.AmendmentModifyAmount, domain.ContractStateConfirmed, domain.ContractStateActive); err != nil {
		return c, scheduleChange{}, err
	}
	if !a.NewFee.IsPositive() {
		return c, scheduleChange{}, domain.NewAmendmentError(domain.AmendmentInvalidAmount, "rental fee must be positive")
	}
	effective := domain.Date(a.EffectiveDate)
	if effective.Before(c.DateFrom) || !effective.Before(c.DateTo) {
		return c, scheduleChange{}, domain.NewAmendmentError(domain.AmendmentInvalidDate,
			"effective date %s outside [%s, %s)", effective.Format(dateFormat), c.DateFrom.Format(dateFormat), c.DateTo.Format(dateFormat))
	}

	updated, err := s.save(ctx, tx, c.WithRentalFee(a.NewFee, actor.UserID, now))
	if err != nil {
		return c, scheduleChange{}, err
	}
	change, err := s.recalculateSchedule(ctx, tx, updated, effective)
	return updated, change, err
}

func (s *AmendmentService) cancel(ctx context.Context, tx repository.Tx, c domain.Contract, a domain.Cancel, actor domain.Actor, now time.Time) (domain.Contract, scheduleChange, *domain.SpecialPayment, error) {
	var change scheduleChange
	if !c.State.CanTransitionTo(domain.ContractStateCancelled) {
		return c, change, nil, domain.NewAmendmentError(domain.AmendmentInvalidState, "cannot cancel a %s contract", c.State)
	}
	effective := domain.Date(a.EffectiveDate)
	if effective.Before(c.DateFrom) || effective.After(c.DateTo) {
		return c, change, nil, domain.NewAmendmentError(domain.AmendmentInvalidDate,
			"effective date %s outside [%s, %s]", effective.Format(dateFormat), c.DateFrom.Format(dateFormat), c.DateTo.Format(dateFormat))
	}
	if a.Penalty != nil && a.Penalty.IsNegative() {
		return c, change, nil, domain.NewAmendmentError(domain.AmendmentInvalidAmount, "penalty cannot be negative")
	}

	items, err := tx.ListInstallments(ctx, c.TenantID, c.ID)
	if err != nil {
		return c, change, nil, err
	}
	if count, amount := domain.PendingBalance(items); count > 0 && !actor.Privileged {
		return c, change, nil, domain.PendingBalanceError(count, amount)
	}

	var penalty *domain.SpecialPayment
	if a.Penalty != nil && a.Penalty.IsPositive() {
		p, err := s.penalty(ctx, tx, c, *a.Penalty, effective, a.BillPenaltyNow, actor, now)
		if err != nil {
			return c, change, nil, err
		}
		penalty = &p
	}

	kept, deleted, err := s.discardUnlocked(ctx, tx, c, items, func(inst domain.Installment) bool {
		return inst.Date.After(effective) && !inst.IsLocked()
	})
	if err != nil {
		return c, change, nil, err
	}
	change.Deleted = deleted

	terms := c.Terms()
	for _, inst := range kept {
		if inst.IsLocked() || inst.Date.After(effective) {
			continue
		}
		prorated := s.scheduler.ProrateUntil(terms, inst, effective)
		if prorated.Amount.Amount.Equal(inst.Amount.Amount) {
			continue
		}
		prorated.UpdatedAt = ptrTime(now)
		if err := tx.UpdateInstallment(ctx, prorated); err != nil {
			return c, change, nil, err
		}
		change.Rewritten++
	}

	cancelled, err := c.Cancel(domain.Cancellation{
		Type:          a.Type,
		EffectiveDate: effective,
	}, actor.UserID, now)
	if err != nil {
		return c, change, nil, domain.NewAmendmentError(domain.AmendmentInvalidState, "%v", err)
	}
	updated, err := s.save(ctx, tx, cancelled)
	return updated, change, penalty, err
}

// penalty books the cancellation penalty and, when asked, invoices it to the lessee in the same unit of work
func (s *AmendmentService) penalty(ctx context.Context, tx repository.Tx, c domain.Contract, amount decimal.Decimal, date time.Time, billNow bool, actor domain.Actor, now time.Time) (domain.SpecialPayment, error) {
	p := domain.NewSpecialPayment(c.TenantID, c.ID, domain.SpecialPaymentPenalty, c.RentalFee.WithAmount(amount.Round(s.places())), date, actor.UserID, now).
		WithDescription(fmt.Sprintf("cancellation penalty %s", c.ContractNumber))
	p, err := p.TransitionTo(domain.SpecialPaymentStateConfirmed, actor.UserID, now)
	if err != nil {
		return p, err
	}
	if billNow {
		if p, err = s.invoiceSpecialPayment(ctx, c, p, actor, now); err != nil {
			return p, err
		}
	}
	if err := tx.InsertSpecialPayment(ctx, p); err != nil {
		return p, err
	}
	return p, nil
}

func (s *AmendmentService) suspend(ctx context.Context, tx repository.Tx, c domain.Contract, a domain.Suspend, actor domain.Actor, now time.Time) (domain.Contract, scheduleChange, error) {
	if err := requireState(c, domain.AmendmentSuspend, domain.ContractStateActive); err != nil {
		return c, scheduleChange{}, err
	}
	start, end := domain.Date(a.Start), domain.Date(a.End)
	if end.Before(start) {
		return c, scheduleChange{}, domain.NewAmendmentError(domain.AmendmentInvalidDate,
			"suspension end %s before start %s", end.Format(dateFormat), start.Format(dateFormat))
	}

	items, err := tx.ListInstallments(ctx, c.TenantID, c.ID)
	if err != nil {
		return c, scheduleChange{}, err
	}
	var change scheduleChange
	for _, inst := range items {
		if inst.IsLocked() || !inst.Active || inst.Date.Before(start) || inst.Date.After(end) {
			continue
		}
		if err := tx.UpdateInstallment(ctx, inst.WithActive(false, now)); err != nil {
			return c, change, err
		}
		change.Rewritten++
	}

	suspended, err := c.TransitionTo(domain.ContractStateSuspended, actor.UserID, now)
	if err != nil {
		return c, change, err
	}
	updated, err := s.save(ctx, tx, suspended.WithSuspension(&domain.Suspension{Start: start, End: end}, actor.UserID, now))
	return updated, change, err
}

func (s *AmendmentService) reactivate(ctx context.Context, tx repository.Tx, c domain.Contract, actor domain.Actor, now time.Time) (domain.Contract, scheduleChange, error) {
	if err := requireState(c, domain.AmendmentReactivate, domain.ContractStateSuspended); err != nil {
		return c, scheduleChange{}, err
	}
	items, err := tx.ListInstallments(ctx, c.TenantID, c.ID)
	if err != nil {
		return c, scheduleChange{}, err
	}
	var change scheduleChange
	for _, inst := range items {
		if inst.Active {
			continue
		}
		if err := tx.UpdateInstallment(ctx, inst.WithActive(true, now)); err != nil {
			return c, change, err
		}
		change.Rewritten++
	}

	active, err := c.TransitionTo(domain.ContractStateActive, actor.UserID, now)
	if err != nil {
		return c, change, err
	}
	updated, err := s.save(ctx, tx, active.WithSuspension(nil, actor.UserID, now))
	if err != nil {
		return c, change, err
	}
	if change.Generated, err = s.fillGap(ctx, tx, updated); err != nil {
		return c, change, err
	}
	return updated, change, nil
}

func (s *AmendmentService) terminateLine(ctx context.Context, tx repository.Tx, c domain.Contract, a domain.TerminateLine, actor domain.Actor, now time.Time) (domain.Contract, scheduleChange, error) {
	if err := requireState(c, domain.AmendmentTerminateLine, domain.ContractStateConfirmed, domain.ContractStateActive); err != nil {
		return c, scheduleChange{}, err
	}
	if lineProperty(c, a.LineID).IsZero() {
		return c, scheduleChange{}, domain.NewAmendmentError(domain.AmendmentLineNotFound, "line %s", a.LineID)
	}
	effective := domain.Date(a.EffectiveDate)
	if effective.Before(c.DateFrom) || !effective.Before(c.DateTo) {
		return c, scheduleChange{}, domain.NewAmendmentError(domain.AmendmentInvalidDate,
			"effective date %s outside [%s, %s)", effective.Format(dateFormat), c.DateFrom.Format(dateFormat), c.DateTo.Format(dateFormat))
	}

	terminated, err := c.TerminateLine(a.LineID, effective, a.Reason, actor.UserID, now)
	if err != nil {
		return c, scheduleChange{}, domain.NewAmendmentError(domain.AmendmentInvalidState, "%v", err)
	}
	if !terminated.RentalFee.IsPositive() {
		return c, scheduleChange{}, domain.NewAmendmentError(domain.AmendmentInvalidAmount, "terminating the last line leaves no rent; cancel the contract instead")
	}
	updated, err := s.save(ctx, tx, terminated)
	if err != nil {
		return c, scheduleChange{}, err
	}
	change, err := s.recalculateSchedule(ctx, tx, updated, effective)
	return updated, change, err
}

func contractProperties(c domain.Contract) []domain.PropertyID {
	out := []domain.PropertyID{c.PropertyID}
	seen := map[domain.PropertyID]bool{c.PropertyID: true}
	for _, l := range c.Lines {
		if !seen[l.PropertyID] {
			seen[l.PropertyID] = true
			out = append(out, l.PropertyID)
		}
	}
	return out
}

func lineProperty(c domain.Contract, id domain.ContractLineID) domain.PropertyID {
	for _, l := range c.Lines {
		if l.ID == id {
			return l.PropertyID
		}
	}
	return domain.PropertyID{}
}

const dateFormat = "2006-01-02"

func renewalNumber(number string, at time.Time) string {
	return fmt.Sprintf("%s-R%s", number, at.Format("20060102"))
}
