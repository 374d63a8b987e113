package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/zlovtnik/leasebill/internal/billing/domain"
	"github.com/zlovtnik/leasebill/internal/billing/repository"
	"github.com/zlovtnik/leasebill/pkg/fp"
)

// ContractService handles the contract lifecycle outside of amendments
type ContractService struct {
	*core
}

// NewContractService creates a new ContractService
func NewContractService(d Deps) *ContractService {
	return &ContractService{core: newCore(d)}
}

// CreateContractRequest represents a request to create a contract
type CreateContractRequest struct {
	ContractNumber       string
	PropertyID           domain.PropertyID
	LesseeID             domain.PartnerID
	OwnerID              *domain.PartnerID
	DateFrom             time.Time
	DateTo               time.Time
	RentalFee            decimal.Decimal
	Currency             string
	CommissionPercentage decimal.Decimal
	CommissionBase       domain.CommissionBase
	InsuranceFee         decimal.Decimal
	InterestRate         decimal.Decimal
	GraceDays            int
	PeriodicityMonths    int
	DestinationAccount   string
	Lines                []CreateLineRequest
}

// CreateLineRequest is one property of a multi-property contract.
// Nil dates default to the contract's.
type CreateLineRequest struct {
	PropertyID domain.PropertyID
	RentalFee  decimal.Decimal
	DateFrom   *time.Time
	DateTo     *time.Time
}

func validateCreateContractRequest(req CreateContractRequest) error {
	if strings.TrimSpace(req.ContractNumber) == "" {
		return domain.NewDomainError("contract number is required")
	}
	if req.LesseeID.IsZero() {
		return domain.NewDomainError("lessee is required")
	}
	if req.PropertyID.IsZero() && len(req.Lines) == 0 {
		return domain.NewDomainError("property is required")
	}
	if !domain.Date(req.DateFrom).Before(domain.Date(req.DateTo)) {
		return &domain.ScheduleError{
			Kind: domain.ScheduleInvalidRange,
			From: req.DateFrom.Format(dateFormat),
			To:   req.DateTo.Format(dateFormat),
		}
	}
	if !domain.IsValidPeriodicity(req.PeriodicityMonths) {
		return domain.NewDomainError("unsupported periodicity of %d months", req.PeriodicityMonths)
	}
	if req.CommissionPercentage.IsNegative() || req.CommissionPercentage.GreaterThan(hundredPercent) {
		return domain.NewDomainError("commission percentage must be between 0 and 100")
	}
	if req.InsuranceFee.IsNegative() || req.InterestRate.IsNegative() || req.GraceDays < 0 {
		return domain.NewDomainError("insurance fee, interest rate and grace days cannot be negative")
	}
	if len(req.Lines) == 0 && !req.RentalFee.IsPositive() {
		return domain.NewAmendmentError(domain.AmendmentInvalidAmount, "rental fee must be positive")
	}
	for i, l := range req.Lines {
		if l.PropertyID.IsZero() {
			return domain.NewDomainError("line %d: property is required", i+1)
		}
		if !l.RentalFee.IsPositive() {
			return domain.NewAmendmentError(domain.AmendmentInvalidAmount, "line %d: rental fee must be positive", i+1)
		}
	}
	return nil
}

var hundredPercent = decimal.NewFromInt(100)

// Create creates a draft contract together with its full schedule
func (s *ContractService) Create(ctx context.Context, tenantID string, req CreateContractRequest, actor domain.Actor) fp.Result[domain.Contract] {
	if err := validateCreateContractRequest(req); err != nil {
		return fp.Failure[domain.Contract](err)
	}

	now := s.now()
	base := req.CommissionBase
	if base == "" {
		base = domain.CommissionBaseGross
	}
	currency := req.Currency
	if currency == "" {
		currency = "USD"
	}
	c := domain.Contract{
		ID:                   domain.NewContractID(),
		TenantID:             tenantID,
		ContractNumber:       strings.TrimSpace(req.ContractNumber),
		PropertyID:           req.PropertyID,
		LesseeID:             req.LesseeID,
		OwnerID:              req.OwnerID,
		State:                domain.ContractStateDraft,
		DateFrom:             domain.Date(req.DateFrom),
		DateTo:               domain.Date(req.DateTo),
		RentalFee:            domain.NewMoney(req.RentalFee.Round(s.places()), currency),
		CommissionPercentage: req.CommissionPercentage,
		CommissionBase:       base,
		InsuranceFee:         req.InsuranceFee,
		InterestRate:         req.InterestRate,
		GraceDays:            req.GraceDays,
		PeriodicityMonths:    req.PeriodicityMonths,
		DestinationAccount:   req.DestinationAccount,
		Version:              1,
		CreatedAt:            now,
		CreatedBy:            actor.UserID,
	}
	if len(req.Lines) > 0 {
		total := decimal.Zero
		for _, l := range req.Lines {
			line := domain.ContractLine{
				ID:         domain.NewContractLineID(),
				PropertyID: l.PropertyID,
				DateFrom:   c.DateFrom,
				DateTo:     c.DateTo,
				RentalFee:  l.RentalFee.Round(s.places()),
				State:      domain.LineStateDraft,
			}
			if l.DateFrom != nil {
				line.DateFrom = domain.Date(*l.DateFrom)
			}
			if l.DateTo != nil {
				line.DateTo = domain.Date(*l.DateTo)
			}
			if line.DateFrom.Before(c.DateFrom) || line.DateTo.After(c.DateTo) || !line.DateFrom.Before(line.DateTo) {
				return fp.Failure[domain.Contract](domain.NewAmendmentError(domain.AmendmentInvalidDate,
					"line of property %s must fall within the contract dates", l.PropertyID))
			}
			total = total.Add(line.RentalFee)
			c.Lines = append(c.Lines, line)
		}
		c.RentalFee = c.RentalFee.WithAmount(total)
		if c.PropertyID.IsZero() {
			c.PropertyID = c.Lines[0].PropertyID
		}
	}

	var entry domain.AuditEntry
	err := s.store.Within(ctx, func(ctx context.Context, tx repository.Tx) error {
		if err := tx.InsertContract(ctx, c); err != nil {
			return err
		}
		generated, err := s.generate(ctx, tx, c, c.DateFrom, nil)
		if err != nil {
			return err
		}
		values := c.Snapshot()
		values["generated"] = generated
		entry, err = s.audit(ctx, tx, domain.NewAuditEntry(tenantID, c.ID, domain.AuditActionCreated, "create", actor, now).
			WithChanges(nil, values))
		return err
	})
	if err != nil {
		return fp.Failure[domain.Contract](err)
	}
	s.publish(ctx, entry)
	return fp.Success(c)
}

// Get retrieves a contract by ID
func (s *ContractService) Get(ctx context.Context, tenantID string, id domain.ContractID) fp.Result[domain.Contract] {
	return s.store.GetContract(ctx, tenantID, id)
}

// List retrieves the tenant's contracts, optionally narrowed to some states
func (s *ContractService) List(ctx context.Context, tenantID string, states ...domain.ContractState) fp.Result[[]domain.Contract] {
	return s.store.ListContracts(ctx, tenantID, states...)
}

// ListInstallments returns a contract's schedule ordered by date
func (s *ContractService) ListInstallments(ctx context.Context, tenantID string, id domain.ContractID, filter repository.InstallmentFilter) fp.Result[[]domain.Installment] {
	return s.store.ListInstallments(ctx, tenantID, id, filter)
}

// Audit returns a contract's audit trail
func (s *ContractService) Audit(ctx context.Context, tenantID string, id domain.ContractID) fp.Result[[]domain.AuditEntry] {
	return s.store.ListAudit(ctx, tenantID, id)
}

// Confirm moves a draft contract to confirmed. Draft lines become active.
func (s *ContractService) Confirm(ctx context.Context, tenantID string, id domain.ContractID, actor domain.Actor) fp.Result[domain.Contract] {
	return s.transition(ctx, tenantID, id, domain.ContractStateConfirmed, domain.AuditActionConfirmed, actor)
}

// Activate moves a confirmed contract to active
func (s *ContractService) Activate(ctx context.Context, tenantID string, id domain.ContractID, actor domain.Actor) fp.Result[domain.Contract] {
	return s.transition(ctx, tenantID, id, domain.ContractStateActive, domain.AuditActionActivated, actor)
}

func (s *ContractService) transition(ctx context.Context, tenantID string, id domain.ContractID, target domain.ContractState, action domain.AuditAction, actor domain.Actor) fp.Result[domain.Contract] {
	now := s.now()
	var updated domain.Contract
	var entry domain.AuditEntry
	err := s.store.Within(ctx, func(ctx context.Context, tx repository.Tx) error {
		c, err := tx.LockContract(ctx, tenantID, id)
		if err != nil {
			return err
		}
		next, err := c.TransitionTo(target, actor.UserID, now)
		if err != nil {
			return domain.NewAmendmentError(domain.AmendmentInvalidState, "%v", err)
		}
		if target == domain.ContractStateConfirmed {
			next.Lines = activateLines(next.Lines)
		}
		if updated, err = s.save(ctx, tx, next); err != nil {
			return err
		}
		entry, err = s.audit(ctx, tx, domain.NewAuditEntry(tenantID, id, action, strings.ToLower(string(target)), actor, now).
			WithChanges(map[string]interface{}{"state": string(c.State)}, map[string]interface{}{"state": string(target)}))
		return err
	})
	if err != nil {
		return fp.Failure[domain.Contract](err)
	}
	s.publish(ctx, entry)
	return fp.Success(updated)
}

func activateLines(lines []domain.ContractLine) []domain.ContractLine {
	out := make([]domain.ContractLine, len(lines))
	for i, l := range lines {
		if l.State == domain.LineStateDraft {
			l.State = domain.LineStateActive
		}
		out[i] = l
	}
	return out
}

// Expire moves active contracts whose end date is on or before asOf to expired.
// It returns the number of contracts expired.
func (s *ContractService) Expire(ctx context.Context, tenantID string, asOf time.Time) fp.Result[int] {
	result := s.store.ListContracts(ctx, tenantID, domain.ContractStateActive)
	if fp.IsFailure(result) {
		return fp.Failure[int](fp.GetError(result))
	}
	asOf = domain.Date(asOf)
	expired := 0
	for _, c := range fp.GetValue(result) {
		if c.DateTo.After(asOf) {
			continue
		}
		r := s.transition(ctx, tenantID, c.ID, domain.ContractStateExpired, domain.AuditActionExpired, domain.SystemActor)
		if fp.IsFailure(r) {
			// a concurrent amendment may have moved it first
			if err := fp.GetError(r); !domain.IsAmendmentKind(err, domain.AmendmentInvalidState) {
				return fp.Failure[int](fmt.Errorf("expire contract %s: %w", c.ID, err))
			}
			continue
		}
		expired++
	}
	return fp.Success(expired)
}

// RecordPayment applies a payment to the installment with the given serial
func (s *ContractService) RecordPayment(ctx context.Context, tenantID string, id domain.ContractID, serial int, amount decimal.Decimal, actor domain.Actor) fp.Result[domain.Installment] {
	now := s.now()
	var paid domain.Installment
	var entry domain.AuditEntry
	err := s.store.Within(ctx, func(ctx context.Context, tx repository.Tx) error {
		c, err := tx.LockContract(ctx, tenantID, id)
		if err != nil {
			return err
		}
		if c.State == domain.ContractStateDraft {
			return domain.NewAmendmentError(domain.AmendmentInvalidState, "payments are not accepted on a draft contract")
		}
		items, err := tx.ListInstallments(ctx, tenantID, id)
		if err != nil {
			return err
		}
		inst, ok := findSerial(items, serial)
		if !ok {
			return fmt.Errorf("installment #%d: %w", serial, domain.ErrNotFound)
		}
		if paid, err = inst.WithPayment(amount.Round(s.places()), now); err != nil {
			return err
		}
		if err := tx.UpdateInstallment(ctx, paid); err != nil {
			return err
		}
		entry, err = s.audit(ctx, tx, domain.NewAuditEntry(tenantID, id, domain.AuditActionPaid, "record_payment", actor, now).
			WithChanges(
				map[string]interface{}{"serial": serial, "paid_amount": inst.PaidAmount.String(), "payment_state": string(inst.PaymentState)},
				map[string]interface{}{"serial": serial, "paid_amount": paid.PaidAmount.String(), "payment_state": string(paid.PaymentState)},
			))
		return err
	})
	if err != nil {
		return fp.Failure[domain.Installment](err)
	}
	s.publish(ctx, entry)
	return fp.Success(paid)
}

// Shares previews how an installment splits across owners. Invoiced
// installments return the shares recorded when they were billed.
func (s *ContractService) Shares(ctx context.Context, tenantID string, id domain.ContractID, serial int) fp.Result[[]domain.PartnerShare] {
	cr := s.store.GetContract(ctx, tenantID, id)
	if fp.IsFailure(cr) {
		return fp.Failure[[]domain.PartnerShare](fp.GetError(cr))
	}
	ir := s.store.ListInstallments(ctx, tenantID, id, repository.InstallmentFilter{})
	if fp.IsFailure(ir) {
		return fp.Failure[[]domain.PartnerShare](fp.GetError(ir))
	}
	inst, ok := findSerial(fp.GetValue(ir), serial)
	if !ok {
		return fp.Failure[[]domain.PartnerShare](fmt.Errorf("installment #%d: %w", serial, domain.ErrNotFound))
	}
	if inst.IsInvoiced() {
		return fp.Success(inst.Billed)
	}
	shares, err := s.shares(ctx, fp.GetValue(cr), inst)
	if err != nil {
		return fp.Failure[[]domain.PartnerShare](err)
	}
	return fp.Success(shares)
}

func findSerial(items []domain.Installment, serial int) (domain.Installment, bool) {
	for _, inst := range items {
		if inst.Serial == serial {
			return inst, true
		}
	}
	return domain.Installment{}, false
}

// IsNotFound reports whether err means the requested record does not exist
func IsNotFound(err error) bool {
	return errors.Is(err, domain.ErrNotFound)
}
