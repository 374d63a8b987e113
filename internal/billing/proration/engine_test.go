package proration

import (
	"bytes"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zlovtnik/leasebill/internal/billing/domain"
)

var (
	jan1   = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	propID = domain.NewPropertyID()
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func installment(amount, commission string) domain.Installment {
	return domain.Installment{
		ID:         domain.NewInstallmentID(),
		Serial:     1,
		Date:       jan1,
		Amount:     domain.NewMoney(dec(amount), "USD"),
		Commission: dec(commission),
	}
}

func share(partner domain.PartnerID, pct string) domain.OwnershipShare {
	return domain.OwnershipShare{PropertyID: propID, PartnerID: partner, Percentage: dec(pct)}
}

func sums(shares []domain.PartnerShare) (decimal.Decimal, decimal.Decimal) {
	income, commission := decimal.Zero, decimal.Zero
	for _, s := range shares {
		income = income.Add(s.Income)
		commission = commission.Add(s.Commission)
	}
	return income, commission
}

func TestSplit_SixtyForty(t *testing.T) {
	a, b := domain.NewPartnerID(), domain.NewPartnerID()
	engine := New(Config{Places: 2})

	shares, err := engine.Split(installment("1000", "100"), propID, domain.OwnershipTable{share(a, "60"), share(b, "40")}, nil)
	require.NoError(t, err)
	require.Len(t, shares, 2)

	assert.Equal(t, a, shares[0].PartnerID)
	assert.True(t, shares[0].Income.Equal(dec("600")), "income %s", shares[0].Income)
	assert.True(t, shares[1].Income.Equal(dec("400")), "income %s", shares[1].Income)
	assert.True(t, shares[0].Commission.Equal(dec("60")))
	assert.True(t, shares[1].Commission.Equal(dec("40")))
}

func TestSplit_LastShareAbsorbsRemainder(t *testing.T) {
	owners := domain.OwnershipTable{
		share(domain.NewPartnerID(), "33.3333"),
		share(domain.NewPartnerID(), "33.3333"),
		share(domain.NewPartnerID(), "33.3334"),
	}
	engine := New(Config{Places: 2})

	for _, amount := range []string{"1000", "999.99", "0.01", "1234.57"} {
		inst := installment(amount, "77.77")
		shares, err := engine.Split(inst, propID, owners, nil)
		require.NoError(t, err)

		income, commission := sums(shares)
		assert.True(t, income.Equal(inst.Amount.Amount), "amount %s: income sum %s", amount, income)
		assert.True(t, commission.Equal(inst.Commission), "amount %s: commission sum %s", amount, commission)
	}
}

func TestSplit_EmptyTableUsesDeclaredOwner(t *testing.T) {
	owner := domain.NewPartnerID()

	shares, err := New(Config{Places: 2}).Split(installment("1000", "100"), propID, nil, &owner)
	require.NoError(t, err)
	require.Len(t, shares, 1)
	assert.Equal(t, owner, shares[0].PartnerID)
	assert.True(t, shares[0].Income.Equal(dec("1000")))
	assert.True(t, shares[0].Percentage.Equal(dec("100")))
}

func TestSplit_NoOwner(t *testing.T) {
	_, err := New(Config{Places: 2}).Split(installment("1000", "100"), propID, nil, nil)

	var pe *domain.ProrationError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, domain.ProrationNoOwner, pe.Kind)
	assert.Equal(t, propID, pe.PropertyID)
}

func TestSplit_StaleTableWarnsAndUsesActiveSum(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	a, b := domain.NewPartnerID(), domain.NewPartnerID()

	shares, err := New(Config{Places: 2, Logger: logger}).
		Split(installment("900", "90"), propID, domain.OwnershipTable{share(a, "50"), share(b, "25")}, nil)
	require.NoError(t, err)

	assert.True(t, shares[0].Income.Equal(dec("600")), "income %s", shares[0].Income)
	assert.True(t, shares[1].Income.Equal(dec("300")), "income %s", shares[1].Income)
	assert.Contains(t, buf.String(), "ownership percentages do not sum to 100")
}

func TestSplit_ValidityWindowAndMainOwnerFirst(t *testing.T) {
	main, minor, former := domain.NewPartnerID(), domain.NewPartnerID(), domain.NewPartnerID()
	ended := jan1
	table := domain.OwnershipTable{
		share(minor, "30"),
		{PropertyID: propID, PartnerID: former, Percentage: dec("70"), ValidTo: &ended},
		{PropertyID: propID, PartnerID: main, Percentage: dec("70"), IsMainOwner: true},
	}

	shares, err := New(Config{Places: 2}).Split(installment("1000", "0"), propID, table, nil)
	require.NoError(t, err)
	require.Len(t, shares, 2)
	assert.Equal(t, main, shares[0].PartnerID)
	assert.Equal(t, minor, shares[1].PartnerID)
}

func TestSplitContract_MultiProperty(t *testing.T) {
	p1, p2 := domain.NewPropertyID(), domain.NewPropertyID()
	shared, solo := domain.NewPartnerID(), domain.NewPartnerID()
	end := jan1.AddDate(1, 0, 0)
	contract := domain.Contract{
		PropertyID: p1,
		Lines: []domain.ContractLine{
			{ID: domain.NewContractLineID(), PropertyID: p1, DateFrom: jan1, DateTo: end, RentalFee: dec("600"), State: domain.LineStateActive},
			{ID: domain.NewContractLineID(), PropertyID: p2, DateFrom: jan1, DateTo: end, RentalFee: dec("400"), State: domain.LineStateActive},
		},
	}
	tables := map[domain.PropertyID]domain.OwnershipTable{
		p1: {{PropertyID: p1, PartnerID: shared, Percentage: dec("100")}},
		p2: {
			{PropertyID: p2, PartnerID: shared, Percentage: dec("50")},
			{PropertyID: p2, PartnerID: solo, Percentage: dec("50")},
		},
	}

	inst := installment("1000", "100")
	shares, err := New(Config{Places: 2}).SplitContract(contract, inst, tables)
	require.NoError(t, err)
	require.Len(t, shares, 2)

	assert.Equal(t, shared, shares[0].PartnerID)
	assert.True(t, shares[0].Income.Equal(dec("800")), "income %s", shares[0].Income)
	assert.True(t, shares[1].Income.Equal(dec("200")), "income %s", shares[1].Income)
	assert.True(t, shares[0].Percentage.Equal(dec("80")))

	income, commission := sums(shares)
	assert.True(t, income.Equal(inst.Amount.Amount))
	assert.True(t, commission.Equal(inst.Commission))
}

func TestSplitContract_TerminatedLineOutsideWindow(t *testing.T) {
	p1, p2 := domain.NewPropertyID(), domain.NewPropertyID()
	o1, o2 := domain.NewPartnerID(), domain.NewPartnerID()
	end := jan1.AddDate(1, 0, 0)
	contract := domain.Contract{
		PropertyID: p1,
		Lines: []domain.ContractLine{
			{PropertyID: p1, DateFrom: jan1, DateTo: end, RentalFee: dec("600"), State: domain.LineStateActive},
			{PropertyID: p2, DateFrom: jan1, DateTo: jan1.AddDate(0, 1, 0), RentalFee: dec("400"), State: domain.LineStateTerminated},
		},
	}
	tables := map[domain.PropertyID]domain.OwnershipTable{
		p1: {{PropertyID: p1, PartnerID: o1, Percentage: dec("100")}},
		p2: {{PropertyID: p2, PartnerID: o2, Percentage: dec("100")}},
	}

	inst := installment("600", "60")
	inst.Date = jan1.AddDate(0, 2, 0)
	shares, err := New(Config{Places: 2}).SplitContract(contract, inst, tables)
	require.NoError(t, err)
	require.Len(t, shares, 1)
	assert.Equal(t, o1, shares[0].PartnerID)
	assert.True(t, shares[0].Income.Equal(dec("600")))
}
