package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/zlovtnik/leasebill/internal/billing/domain"
	"github.com/zlovtnik/leasebill/internal/billing/proration"
	"github.com/zlovtnik/leasebill/internal/billing/repository"
	"github.com/zlovtnik/leasebill/internal/billing/schedule"
)

// Deps wires the billing services. Store, Invoices and Ownership are required.
type Deps struct {
	Store     repository.Store
	Scheduler *schedule.Scheduler
	Proration *proration.Engine
	Invoices  InvoiceEmitter
	Ownership OwnershipProvider
	Notifier  Notifier
	Releaser  PropertyReleaser
	LateFees  LateFeePolicy
	Logger    *slog.Logger
	Now       func() time.Time
}

// core holds what every billing service shares: the schedule maintenance
// routines and the audit plumbing.
type core struct {
	store     repository.Store
	scheduler schedule.Scheduler
	proration *proration.Engine
	invoices  InvoiceEmitter
	ownership OwnershipProvider
	notifier  Notifier
	releaser  PropertyReleaser
	lateFees  LateFeePolicy
	logger    *slog.Logger
	now       func() time.Time
}

func newCore(d Deps) *core {
	if d.Store == nil {
		panic("billing store is required")
	}
	if d.Invoices == nil {
		panic("invoice emitter is required")
	}
	if d.Ownership == nil {
		panic("ownership provider is required")
	}
	c := &core{
		store:     d.Store,
		proration: d.Proration,
		invoices:  d.Invoices,
		ownership: d.Ownership,
		notifier:  d.Notifier,
		releaser:  d.Releaser,
		lateFees:  d.LateFees,
		logger:    d.Logger,
		now:       d.Now,
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	c.scheduler = schedule.New(domain.DefaultCurrencyPlaces)
	if d.Scheduler != nil {
		c.scheduler = *d.Scheduler
	}
	if c.proration == nil {
		c.proration = proration.New(proration.Config{Places: domain.DefaultCurrencyPlaces, Logger: c.logger})
	}
	if c.notifier == nil {
		c.notifier = noopNotifier{}
	}
	if c.releaser == nil {
		c.releaser = noopReleaser{}
	}
	if c.lateFees == nil {
		c.lateFees = MonthlyInterestPolicy{Places: domain.DefaultCurrencyPlaces}
	}
	if c.now == nil {
		c.now = func() time.Time { return time.Now().UTC() }
	}
	return c
}

// scheduleChange counts what a schedule maintenance pass did
type scheduleChange struct {
	Deleted   int
	Rewritten int
	Generated int
}

// discardUnlocked is the only place installments get deleted. It refuses
// the whole batch when any selected installment is paid, partially paid or
// invoiced. It returns the installments that remain.
func (k *core) discardUnlocked(ctx context.Context, tx repository.Tx, c domain.Contract, items []domain.Installment, selected func(domain.Installment) bool) ([]domain.Installment, int, error) {
	var ids []domain.InstallmentID
	kept := make([]domain.Installment, 0, len(items))
	for _, inst := range items {
		if !selected(inst) {
			kept = append(kept, inst)
			continue
		}
		if inst.IsLocked() {
			return nil, 0, &domain.AmendmentError{Kind: domain.AmendmentLockedOperation, Serial: inst.Serial}
		}
		ids = append(ids, inst.ID)
	}
	if len(ids) == 0 {
		return kept, 0, nil
	}
	if err := tx.DeleteInstallments(ctx, c.TenantID, c.ID, ids); err != nil {
		return nil, 0, err
	}
	return kept, len(ids), nil
}

// recalculateSchedule brings the schedule from `from` onward in line with the
// contract's current terms. Locked installments stay as they are. Unlocked
// ones dated before the last locked installment are rewritten in place so
// serials keep following dates. The rest are discarded and regenerated up to
// date_to, the last period prorated when date_to falls inside it.
func (k *core) recalculateSchedule(ctx context.Context, tx repository.Tx, c domain.Contract, from time.Time) (scheduleChange, error) {
	var change scheduleChange
	from = domain.Date(from)
	terms := c.Terms()

	items, err := tx.ListInstallments(ctx, c.TenantID, c.ID)
	if err != nil {
		return change, err
	}

	var lastLocked *time.Time
	for _, inst := range items {
		if inst.IsLocked() && (lastLocked == nil || inst.Date.After(*lastLocked)) {
			d := inst.Date
			lastLocked = &d
		}
	}

	for _, inst := range items {
		if inst.IsLocked() || inst.Date.Before(from) || lastLocked == nil || !inst.Date.Before(*lastLocked) {
			continue
		}
		rewritten := k.priced(terms, inst, c.DateTo)
		if rewritten.Amount.Amount.Equal(inst.Amount.Amount) && rewritten.Commission.Equal(inst.Commission) {
			continue
		}
		rewritten.UpdatedAt = ptrTime(k.now())
		if err := tx.UpdateInstallment(ctx, rewritten); err != nil {
			return change, err
		}
		change.Rewritten++
	}

	kept, deleted, err := k.discardUnlocked(ctx, tx, c, items, func(inst domain.Installment) bool {
		if inst.Date.Before(from) {
			return false
		}
		return lastLocked == nil || inst.Date.After(*lastLocked)
	})
	if err != nil {
		return change, err
	}
	change.Deleted = deleted

	start := from
	if lastLocked != nil && !start.After(*lastLocked) {
		start = lastLocked.AddDate(0, 0, 1)
	}
	generated, err := k.generate(ctx, tx, c, start, kept)
	if err != nil {
		return change, err
	}
	change.Generated = generated
	return change, nil
}

// fillGap schedules the periods between the last installment and date_to
// that were never generated.
func (k *core) fillGap(ctx context.Context, tx repository.Tx, c domain.Contract) (int, error) {
	items, err := tx.ListInstallments(ctx, c.TenantID, c.ID)
	if err != nil {
		return 0, err
	}
	start := domain.Date(c.DateFrom)
	if len(items) > 0 {
		start = items[len(items)-1].Date.AddDate(0, 0, 1)
	}
	return k.generate(ctx, tx, c, start, items)
}

// generate inserts the installments of [start, date_to). An empty range is not an error here.
func (k *core) generate(ctx context.Context, tx repository.Tx, c domain.Contract, start time.Time, existing []domain.Installment) (int, error) {
	if !domain.Date(start).Before(domain.Date(c.DateTo)) {
		return 0, nil
	}
	terms := c.Terms()
	items, err := k.scheduler.Generate(terms, start, c.DateTo, existing)
	if err != nil {
		return 0, err
	}
	if len(items) == 0 {
		return 0, nil
	}
	now := k.now()
	for i := range items {
		items[i].TenantID = c.TenantID
		items[i].ContractID = c.ID
		items[i].CreatedAt = now
	}
	last := len(items) - 1
	items[last] = k.priced(terms, items[last], c.DateTo)
	if err := tx.InsertInstallments(ctx, items); err != nil {
		return 0, err
	}
	return len(items), nil
}

// priced recomputes an installment's amount and commission from the terms,
// prorating it when its period runs past end.
func (k *core) priced(terms domain.TermSet, inst domain.Installment, end time.Time) domain.Installment {
	inst.Amount = terms.RentalFee.Round(k.places())
	inst.Commission = k.scheduler.Commission(terms, inst.Amount.Amount)
	return k.scheduler.ProrateUntil(terms, inst, end)
}

func (k *core) places() int32 {
	return k.scheduler.Places()
}

// save bumps the contract version and writes it
func (k *core) save(ctx context.Context, tx repository.Tx, c domain.Contract) (domain.Contract, error) {
	c.Version++
	if err := tx.UpdateContract(ctx, c); err != nil {
		return c, err
	}
	return c, nil
}

// audit records an entry inside the unit of work
func (k *core) audit(ctx context.Context, tx repository.Tx, entry domain.AuditEntry) (domain.AuditEntry, error) {
	if err := tx.InsertAudit(ctx, entry); err != nil {
		return entry, fmt.Errorf("record audit %s: %w", entry.Operation, err)
	}
	return entry, nil
}

// publish posts committed audit entries to the notifier
func (k *core) publish(ctx context.Context, entries ...domain.AuditEntry) {
	for _, e := range entries {
		k.notifier.Notify(ctx, e)
	}
}

// shares prorates an installment across the owners of the contract's properties
func (k *core) shares(ctx context.Context, c domain.Contract, inst domain.Installment) ([]domain.PartnerShare, error) {
	tables := make(map[domain.PropertyID]domain.OwnershipTable)
	properties := []domain.PropertyID{c.PropertyID}
	for _, l := range c.Lines {
		properties = append(properties, l.PropertyID)
	}
	for _, p := range properties {
		if _, ok := tables[p]; ok {
			continue
		}
		table, err := k.ownership.ActiveShares(ctx, c.TenantID, p, inst.Date)
		if err != nil {
			return nil, fmt.Errorf("ownership of property %s: %w", p, err)
		}
		tables[p] = table
	}
	return k.proration.SplitContract(c, inst, tables)
}

// invoiceSpecialPayment bills a confirmed special payment to the lessee
func (k *core) invoiceSpecialPayment(ctx context.Context, c domain.Contract, p domain.SpecialPayment, actor domain.Actor, now time.Time) (domain.SpecialPayment, error) {
	ref := fmt.Sprintf("%s/%s-%s", c.ContractNumber, p.Type, p.ID.String()[:8])
	invoiceRef, err := k.invoices.EmitInvoice(ctx, InvoiceRequest{
		TenantID:           c.TenantID,
		ContractID:         c.ID,
		PartnerID:          c.LesseeID,
		Amount:             p.Amount,
		DueDate:            p.Date,
		Reference:          ref,
		DestinationAccount: c.DestinationAccount,
	})
	if err != nil {
		return p, &domain.InvoiceEmissionError{PartnerID: c.LesseeID, Reference: ref, Err: err}
	}
	return p.Invoiced(invoiceRef, actor.UserID, now)
}

func ptrTime(t time.Time) *time.Time { return &t }
