package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zlovtnik/leasebill/internal/billing/domain"
	"github.com/zlovtnik/leasebill/pkg/fp"
)

func TestBillDue_InvoicesEachPartnerShare(t *testing.T) {
	f := newFixture(t)
	c := f.active(t, f.request("1000", "2024-01-01", "2024-06-01"))

	res := f.billing.BillDue(context.Background(), tenant, c.ID, day("2024-02-15"))
	require.NoError(t, fp.GetError(res))
	result := fp.GetValue(res)

	require.Len(t, result.Installments, 2)
	assert.Equal(t, 4, result.Invoices)
	require.Len(t, f.emitter.requests, 4)
	assert.Equal(t, "LC-0001/1", f.emitter.requests[0].Reference)
	assert.Equal(t, f.ownerA, f.emitter.requests[0].PartnerID)
	assert.Equal(t, "600.00", f.emitter.requests[0].Amount.Amount.StringFixed(2))
	assert.Equal(t, "400.00", f.emitter.requests[1].Amount.Amount.StringFixed(2))

	items := f.schedule(t, c)
	for _, inst := range items[:2] {
		require.True(t, inst.IsInvoiced())
		income, commission := decimal.Zero, decimal.Zero
		for _, s := range inst.Billed {
			assert.NotEmpty(t, s.InvoiceRef)
			income = income.Add(s.Income)
			commission = commission.Add(s.Commission)
		}
		assert.True(t, income.Equal(inst.Amount.Amount), "income %s", income)
		assert.True(t, commission.Equal(inst.Commission), "commission %s", commission)
	}
	assert.False(t, items[2].IsInvoiced())

	again := f.billing.BillDue(context.Background(), tenant, c.ID, day("2024-02-15"))
	require.NoError(t, fp.GetError(again))
	assert.Equal(t, 0, fp.GetValue(again).Invoices)
}

func TestBillDue_LocksInvoicedInstallments(t *testing.T) {
	f := newFixture(t)
	c := f.active(t, f.request("1000", "2024-01-01", "2024-06-01"))
	require.NoError(t, fp.GetError(f.billing.BillDue(context.Background(), tenant, c.ID, day("2024-03-01"))))

	res := f.apply(c, domain.ModifyDates{NewEnd: day("2024-03-01")}, clerk)
	var ae *domain.AmendmentError
	require.True(t, errors.As(fp.GetError(res), &ae))
	assert.Equal(t, domain.AmendmentShrinkPastPaid, ae.Kind)
	assert.Equal(t, 3, ae.Serial)

	require.NoError(t, fp.GetError(f.apply(c, domain.ModifyAmount{NewFee: dec("1500"), EffectiveDate: day("2024-02-01")}, clerk)))
	assert.Equal(t, []string{"1000.00", "1000.00", "1000.00", "1500.00", "1500.00"}, amounts(f.schedule(t, c)))
}

func TestBillDue_EmissionFailureRollsBack(t *testing.T) {
	f := newFixture(t)
	c := f.active(t, f.request("1000", "2024-01-01", "2024-06-01"))
	f.emitter.fail = errors.New("timeout")

	res := f.billing.BillDue(context.Background(), tenant, c.ID, day("2024-02-15"))

	var ie *domain.InvoiceEmissionError
	require.True(t, errors.As(fp.GetError(res), &ie))
	assert.Equal(t, "LC-0001/1", ie.Reference)
	for _, inst := range f.schedule(t, c) {
		assert.False(t, inst.IsInvoiced())
	}
}

func TestBillDue_NoOwner(t *testing.T) {
	f := newFixture(t)
	f.owners.Put(tenant, f.property, nil)
	c := f.active(t, f.request("1000", "2024-01-01", "2024-06-01"))

	res := f.billing.BillDue(context.Background(), tenant, c.ID, day("2024-01-15"))

	var pe *domain.ProrationError
	require.True(t, errors.As(fp.GetError(res), &pe))
	assert.Equal(t, domain.ProrationNoOwner, pe.Kind)
}

func TestBillDue_SkipsSuspendedInstallments(t *testing.T) {
	f := newFixture(t)
	c := f.active(t, f.request("1000", "2024-01-01", "2024-06-01"))
	require.NoError(t, fp.GetError(f.apply(c, domain.Suspend{Start: day("2024-04-01"), End: day("2024-04-30")}, clerk)))

	res := f.billing.BillDue(context.Background(), tenant, c.ID, day("2024-03-15"))
	require.NoError(t, fp.GetError(res))
	assert.Equal(t, []int{1, 2, 3}, serialsOf(fp.GetValue(res).Installments))

	res = f.billing.BillDue(context.Background(), tenant, c.ID, day("2024-05-15"))
	require.NoError(t, fp.GetError(res))
	assert.Equal(t, []int{5}, serialsOf(fp.GetValue(res).Installments))

	items := f.schedule(t, c)
	assert.False(t, items[3].Active)
	assert.False(t, items[3].IsInvoiced())

	require.NoError(t, fp.GetError(f.apply(c, domain.Reactivate{}, clerk)))
	res = f.billing.BillDue(context.Background(), tenant, c.ID, day("2024-05-15"))
	require.NoError(t, fp.GetError(res))
	assert.Equal(t, []int{4}, serialsOf(fp.GetValue(res).Installments))
}

func TestBillDue_CancelledContractBillsUpToEffectiveDate(t *testing.T) {
	f := newFixture(t)
	c := f.active(t, f.request("1000", "2024-01-01", "2024-06-01"))
	f.pay(t, c, 1, 2, 3)
	require.NoError(t, fp.GetError(f.apply(c, domain.Cancel{EffectiveDate: day("2024-04-15"), Type: domain.CancellationNonPayment}, admin)))

	got := fp.GetValue(f.contracts.Get(context.Background(), tenant, c.ID))
	require.NotNil(t, got.Cancellation)
	assert.Equal(t, domain.ContractStateActive, got.Cancellation.PriorState)

	res := f.billing.BillDue(context.Background(), tenant, c.ID, day("2024-06-30"))
	require.NoError(t, fp.GetError(res))
	result := fp.GetValue(res)
	require.Len(t, result.Installments, 1)
	assert.Equal(t, 4, result.Installments[0].Serial)
	assert.Equal(t, "466.67", result.Installments[0].Amount.Amount.StringFixed(2))
	assert.Equal(t, 2, result.Invoices)
}

func TestAssessLateFees_CancelledContract(t *testing.T) {
	f := newFixture(t)
	req := f.request("1000", "2024-01-01", "2024-06-01")
	req.InterestRate = dec("0.02")
	req.GraceDays = 5
	c := f.active(t, req)
	f.pay(t, c, 1, 2, 3)
	require.NoError(t, fp.GetError(f.apply(c, domain.Cancel{EffectiveDate: day("2024-04-15"), Type: domain.CancellationNonPayment}, admin)))

	res := f.billing.AssessLateFees(context.Background(), tenant, c.ID, day("2024-06-30"))
	require.NoError(t, fp.GetError(res))
	fees := fp.GetValue(res)
	require.Len(t, fees, 1)
	assert.Equal(t, "28.00", fees[0].Amount.Amount.StringFixed(2))
}

func TestBillDue_DraftCancellationBillsNothing(t *testing.T) {
	f := newFixture(t)
	created := f.contracts.Create(context.Background(), tenant, f.request("1000", "2024-01-01", "2024-06-01"), clerk)
	require.NoError(t, fp.GetError(created))
	c := fp.GetValue(created)
	require.NoError(t, fp.GetError(f.apply(c, domain.Cancel{EffectiveDate: day("2024-03-01"), Type: domain.CancellationMutual}, admin)))

	res := f.billing.BillDue(context.Background(), tenant, c.ID, day("2024-06-30"))
	require.NoError(t, fp.GetError(res))
	assert.Zero(t, fp.GetValue(res).Invoices)
	assert.Empty(t, f.emitter.requests)
}

func TestAssessLateFees(t *testing.T) {
	f := newFixture(t)
	req := f.request("1000", "2024-01-01", "2024-06-01")
	req.InterestRate = dec("0.02")
	req.GraceDays = 5
	c := f.active(t, req)
	f.pay(t, c, 2)

	res := f.billing.AssessLateFees(context.Background(), tenant, c.ID, day("2024-01-31"))
	require.NoError(t, fp.GetError(res))
	fees := fp.GetValue(res)
	require.Len(t, fees, 1)
	assert.Equal(t, domain.SpecialPaymentLateFee, fees[0].Type)
	assert.Equal(t, domain.SpecialPaymentStateConfirmed, fees[0].State)
	assert.Equal(t, "20.00", fees[0].Amount.Amount.StringFixed(2))

	items := f.schedule(t, c)
	require.NotNil(t, fees[0].ReferenceInstallment)
	assert.Equal(t, items[0].ID, *fees[0].ReferenceInstallment)

	res = f.billing.AssessLateFees(context.Background(), tenant, c.ID, day("2024-02-10"))
	require.NoError(t, fp.GetError(res))
	assert.Empty(t, fp.GetValue(res), "installment #1 already charged, #2 paid")

	assert.Len(t, f.schedule(t, c), 5)
}

func TestBillingRun(t *testing.T) {
	f := newFixture(t)
	c := f.active(t, f.request("1000", "2024-01-01", "2024-06-01"))
	run := NewBillingRun(BillingConfig{Tenants: []string{tenant}, Concurrency: 4}, f.contracts, f.billing, slog.New(slog.NewTextHandler(io.Discard, nil)))

	reports, err := run.Run(context.Background(), day("2024-06-01"))
	require.NoError(t, err)
	require.Len(t, reports, 1)

	report := reports[0]
	assert.Equal(t, 1, report.Expired)
	assert.Equal(t, 1, report.Contracts)
	assert.Equal(t, 5, report.Billed)
	assert.Equal(t, 10, report.Invoices)
	assert.Equal(t, 0, report.Failures)
	assert.Equal(t, 0, report.LateFees)

	got := fp.GetValue(f.contracts.Get(context.Background(), tenant, c.ID))
	assert.Equal(t, domain.ContractStateExpired, got.State)
}

func TestBillingRun_CountsFailures(t *testing.T) {
	f := newFixture(t)
	f.active(t, f.request("1000", "2024-01-01", "2024-06-01"))
	f.emitter.fail = errors.New("down")
	run := NewBillingRun(BillingConfig{Tenants: []string{tenant}}, f.contracts, f.billing, slog.New(slog.NewTextHandler(io.Discard, nil)))

	report, err := run.RunTenant(context.Background(), tenant, day("2024-02-01"))
	require.NoError(t, err)
	assert.Equal(t, 1, report.Failures)
	assert.Equal(t, 0, report.Billed)
}

func TestSpecialPaymentLifecycle(t *testing.T) {
	f := newFixture(t)
	c := f.active(t, f.request("1000", "2024-01-01", "2024-06-01"))
	before := f.schedule(t, c)

	created := f.payments.Create(context.Background(), tenant, CreateSpecialPaymentRequest{
		ContractID:  c.ID,
		Type:        domain.SpecialPaymentAdminFee,
		Amount:      dec("35"),
		Date:        day("2024-02-10"),
		Description: "key replacement",
	}, clerk)
	require.NoError(t, fp.GetError(created))
	p := fp.GetValue(created)
	assert.Equal(t, domain.SpecialPaymentStateDraft, p.State)

	res := f.payments.GenerateInvoice(context.Background(), tenant, p.ID, clerk)
	assert.True(t, domain.IsAmendmentKind(fp.GetError(res), domain.AmendmentInvalidState))

	require.NoError(t, fp.GetError(f.payments.Confirm(context.Background(), tenant, p.ID, clerk)))
	res = f.payments.GenerateInvoice(context.Background(), tenant, p.ID, clerk)
	require.NoError(t, fp.GetError(res))
	assert.Equal(t, domain.SpecialPaymentStateInvoiced, fp.GetValue(res).State)
	require.Len(t, f.emitter.requests, 1)
	assert.Equal(t, f.lessee, f.emitter.requests[0].PartnerID)

	res = f.payments.Cancel(context.Background(), tenant, p.ID, clerk)
	require.Error(t, fp.GetError(res))

	res = f.payments.MarkPaid(context.Background(), tenant, p.ID, clerk)
	require.NoError(t, fp.GetError(res))
	assert.Equal(t, domain.SpecialPaymentStatePaid, fp.GetValue(res).State)

	assert.Equal(t, before, f.schedule(t, c))
}

func TestSpecialPayment_Validation(t *testing.T) {
	f := newFixture(t)
	c := f.active(t, f.request("1000", "2024-01-01", "2024-06-01"))

	res := f.payments.Create(context.Background(), tenant, CreateSpecialPaymentRequest{
		ContractID: c.ID, Type: "BONUS", Amount: dec("10"), Date: day("2024-02-01"),
	}, clerk)
	require.Error(t, fp.GetError(res))

	res = f.payments.Create(context.Background(), tenant, CreateSpecialPaymentRequest{
		ContractID: c.ID, Type: domain.SpecialPaymentExtra, Amount: dec("-1"), Date: day("2024-02-01"),
	}, clerk)
	assert.True(t, domain.IsAmendmentKind(fp.GetError(res), domain.AmendmentInvalidAmount))
}

func serialsOf(items []domain.Installment) []int {
	out := make([]int, len(items))
	for i, inst := range items {
		out[i] = inst.Serial
	}
	return out
}
