package schedule

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zlovtnik/leasebill/internal/billing/domain"
)

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func monthly(fee int64, from, to string) domain.TermSet {
	return domain.TermSet{
		Anchor:               day(from),
		DateTo:               day(to),
		RentalFee:            domain.NewMoney(decimal.NewFromInt(fee), "USD"),
		CommissionPercentage: decimal.NewFromInt(10),
		CommissionBase:       domain.CommissionBaseGross,
		PeriodicityMonths:    1,
	}
}

func TestGenerate_MonthlyFiveInstallments(t *testing.T) {
	terms := monthly(1000, "2024-01-01", "2024-06-01")

	got, err := New(2).Generate(terms, terms.Anchor, terms.DateTo, nil)
	require.NoError(t, err)
	require.Len(t, got, 5)

	for i, inst := range got {
		assert.Equal(t, i+1, inst.Serial)
		assert.Equal(t, day("2024-01-01").AddDate(0, i, 0), inst.Date)
		assert.True(t, inst.Amount.Amount.Equal(decimal.NewFromInt(1000)), "amount %s", inst.Amount.Amount)
		assert.True(t, inst.Commission.Equal(decimal.NewFromInt(100)), "commission %s", inst.Commission)
		assert.Equal(t, domain.PaymentStateNotPaid, inst.PaymentState)
		assert.True(t, inst.Active)
	}
}

func TestGenerate_InvalidRange(t *testing.T) {
	terms := monthly(1000, "2024-01-01", "2024-06-01")

	for _, tc := range []struct{ from, to string }{
		{"2024-06-01", "2024-06-01"},
		{"2024-07-01", "2024-06-01"},
	} {
		_, err := New(2).Generate(terms, day(tc.from), day(tc.to), nil)
		var se *domain.ScheduleError
		require.True(t, errors.As(err, &se), "from=%s to=%s", tc.from, tc.to)
		assert.Equal(t, domain.ScheduleInvalidRange, se.Kind)
	}
}

func TestGenerate_SerialsContinueAfterExisting(t *testing.T) {
	terms := monthly(1200, "2024-01-01", "2024-06-01")
	existing := []domain.Installment{
		{Serial: 1, Date: day("2024-01-01"), PaymentState: domain.PaymentStatePaid},
		{Serial: 2, Date: day("2024-02-01"), PaymentState: domain.PaymentStatePaid},
	}

	got, err := New(2).Generate(terms, day("2024-03-01"), terms.DateTo, existing)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []int{3, 4, 5}, []int{got[0].Serial, got[1].Serial, got[2].Serial})
	assert.Equal(t, day("2024-03-01"), got[0].Date)
}

func TestGenerate_StartsAtNextBoundary(t *testing.T) {
	terms := monthly(1000, "2024-01-01", "2024-06-01")

	got, err := New(2).Generate(terms, day("2024-03-15"), terms.DateTo, nil)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, day("2024-04-01"), got[0].Date)
	assert.Equal(t, day("2024-05-01"), got[1].Date)
}

func TestGenerate_ClampsToMonthEnd(t *testing.T) {
	terms := monthly(500, "2024-01-31", "2024-04-30")

	got, err := New(2).Generate(terms, terms.Anchor, terms.DateTo, nil)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, day("2024-01-31"), got[0].Date)
	assert.Equal(t, day("2024-02-29"), got[1].Date)
	assert.Equal(t, day("2024-03-31"), got[2].Date)
}

func TestGenerate_Quarterly(t *testing.T) {
	terms := monthly(3000, "2024-01-01", "2025-01-01")
	terms.PeriodicityMonths = 3

	got, err := New(2).Generate(terms, terms.Anchor, terms.DateTo, nil)
	require.NoError(t, err)
	require.Len(t, got, 4)
	assert.Equal(t, day("2024-10-01"), got[3].Date)
}

func TestCommission_NetOfInsurance(t *testing.T) {
	terms := monthly(1000, "2024-01-01", "2024-06-01")
	terms.CommissionBase = domain.CommissionBaseNetOfInsurance
	terms.InsuranceFee = decimal.NewFromInt(200)

	got := New(2).Commission(terms, decimal.NewFromInt(1000))
	assert.True(t, got.Equal(decimal.NewFromInt(80)), "commission %s", got)
}

func TestProrateUntil(t *testing.T) {
	terms := monthly(3000, "2024-04-01", "2024-07-01")
	inst := domain.Installment{
		Serial: 1,
		Date:   day("2024-04-01"),
		Amount: terms.RentalFee,
	}

	got := New(2).ProrateUntil(terms, inst, day("2024-04-16"))
	assert.True(t, got.Amount.Amount.Equal(decimal.NewFromInt(1500)), "amount %s", got.Amount.Amount)
	assert.True(t, got.Commission.Equal(decimal.NewFromInt(150)), "commission %s", got.Commission)

	unchanged := New(2).ProrateUntil(terms, inst, day("2024-05-01"))
	assert.True(t, unchanged.Amount.Amount.Equal(decimal.NewFromInt(3000)))
}

func TestBoundaries(t *testing.T) {
	terms := monthly(1000, "2024-01-31", "2024-12-31")

	assert.Equal(t, day("2024-02-29"), PeriodStart(terms, day("2024-03-15")))
	assert.Equal(t, day("2024-03-31"), PeriodStart(terms, day("2024-03-31")))
	assert.Equal(t, day("2024-01-31"), PeriodStart(terms, day("2024-01-01")))
	assert.Equal(t, day("2024-03-31"), NextBoundary(terms, day("2024-02-29")))
	assert.Equal(t, day("2024-04-30"), FirstOnOrAfter(terms, day("2024-04-01")))
}
