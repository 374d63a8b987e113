// Package proration splits installment income and commission across property owners.
package proration

import (
	"log/slog"

	"github.com/shopspring/decimal"
	"github.com/zlovtnik/leasebill/internal/billing/domain"
)

var hundred = decimal.NewFromInt(100)

// Config holds the explicit settings of the engine
type Config struct {
	// Places is the currency rounding precision
	Places int32
	Logger *slog.Logger
}

// Engine computes partner shares
type Engine struct {
	places int32
	logger *slog.Logger
}

// New creates a proration engine
func New(cfg Config) *Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	places := cfg.Places
	if places < 0 {
		places = domain.DefaultCurrencyPlaces
	}
	return &Engine{places: places, logger: logger}
}

// Split divides one installment among the owners active in table at the
// installment date. An empty table assigns everything to declaredOwner.
func (e *Engine) Split(inst domain.Installment, propertyID domain.PropertyID, table domain.OwnershipTable, declaredOwner *domain.PartnerID) ([]domain.PartnerShare, error) {
	return e.split(inst.Amount.Amount, inst.Commission, inst, propertyID, table, declaredOwner)
}

// SplitContract prorates an installment of a contract. Multi-property contracts
// first allocate the installment over the lines billable on its date by line
// fee, then split each part by that property's owners and merge partners.
func (e *Engine) SplitContract(c domain.Contract, inst domain.Installment, tables map[domain.PropertyID]domain.OwnershipTable) ([]domain.PartnerShare, error) {
	var lines []domain.ContractLine
	for _, l := range c.Lines {
		if l.IsBillable(inst.Date) {
			lines = append(lines, l)
		}
	}
	if len(lines) == 0 {
		return e.Split(inst, c.PropertyID, tables[c.PropertyID], c.OwnerID)
	}

	weights := make([]decimal.Decimal, len(lines))
	for i, l := range lines {
		weights[i] = l.RentalFee
	}
	incomes := e.allocate(inst.Amount.Amount, weights)
	commissions := e.allocate(inst.Commission, weights)

	var merged []domain.PartnerShare
	index := make(map[domain.PartnerID]int)
	for i, l := range lines {
		shares, err := e.split(incomes[i], commissions[i], inst, l.PropertyID, tables[l.PropertyID], c.OwnerID)
		if err != nil {
			return nil, err
		}
		for _, s := range shares {
			if at, ok := index[s.PartnerID]; ok {
				merged[at].Income = merged[at].Income.Add(s.Income)
				merged[at].Commission = merged[at].Commission.Add(s.Commission)
				continue
			}
			index[s.PartnerID] = len(merged)
			merged = append(merged, s)
		}
	}

	if !inst.Amount.Amount.IsZero() {
		for i := range merged {
			merged[i].Percentage = merged[i].Income.Mul(hundred).Div(inst.Amount.Amount).Round(4)
		}
	}
	return merged, nil
}

func (e *Engine) split(
	income, commission decimal.Decimal,
	inst domain.Installment,
	propertyID domain.PropertyID,
	table domain.OwnershipTable,
	declaredOwner *domain.PartnerID,
) ([]domain.PartnerShare, error) {
	active := table.ActiveOn(inst.Date)
	if len(active) == 0 {
		if declaredOwner == nil || declaredOwner.IsZero() {
			return nil, &domain.ProrationError{Kind: domain.ProrationNoOwner, PropertyID: propertyID}
		}
		return []domain.PartnerShare{{
			InstallmentID: inst.ID,
			PartnerID:     *declaredOwner,
			Percentage:    hundred,
			Income:        income,
			Commission:    commission,
		}}, nil
	}

	total := active.TotalPercentage()
	if !total.Equal(hundred) {
		e.logger.Warn("ownership percentages do not sum to 100",
			"property_id", propertyID.String(),
			"total", total.String(),
			"installment_serial", inst.Serial,
		)
	}

	weights := make([]decimal.Decimal, len(active))
	for i, s := range active {
		weights[i] = s.Percentage
	}
	incomes := e.allocate(income, weights)
	commissions := e.allocate(commission, weights)

	shares := make([]domain.PartnerShare, len(active))
	for i, s := range active {
		shares[i] = domain.PartnerShare{
			InstallmentID: inst.ID,
			PartnerID:     s.PartnerID,
			Percentage:    s.Percentage.Mul(hundred).Div(total).Round(4),
			Income:        incomes[i],
			Commission:    commissions[i],
		}
	}
	return shares, nil
}

// allocate divides amount by weights, rounding every part but the last,
// which takes the remainder so the parts sum to amount exactly.
func (e *Engine) allocate(amount decimal.Decimal, weights []decimal.Decimal) []decimal.Decimal {
	parts := make([]decimal.Decimal, len(weights))
	if len(weights) == 0 {
		return parts
	}
	total := decimal.Zero
	for _, w := range weights {
		total = total.Add(w)
	}
	allocated := decimal.Zero
	for i, w := range weights {
		if i == len(weights)-1 {
			parts[i] = amount.Sub(allocated)
			break
		}
		var part decimal.Decimal
		if total.IsZero() {
			part = amount.Div(decimal.NewFromInt(int64(len(weights)))).Round(e.places)
		} else {
			part = amount.Mul(w).Div(total).Round(e.places)
		}
		parts[i] = part
		allocated = allocated.Add(part)
	}
	return parts
}
