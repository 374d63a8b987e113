// Package schedule generates the periodic installments of a contract.
package schedule

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/zlovtnik/leasebill/internal/billing/domain"
)

var hundred = decimal.NewFromInt(100)

// Scheduler turns a term set into installments. It holds no state besides
// the rounding precision.
type Scheduler struct {
	places int32
}

// New creates a Scheduler rounding amounts to the given number of decimal places
func New(places int32) Scheduler {
	if places < 0 {
		places = domain.DefaultCurrencyPlaces
	}
	return Scheduler{places: places}
}

// Places returns the rounding precision
func (s Scheduler) Places() int32 {
	return s.places
}

// Generate produces one installment per period boundary d with from <= d < to.
// Boundaries are anchored at terms.Anchor; serials continue after the highest
// serial in existing.
func (s Scheduler) Generate(terms domain.TermSet, from, to time.Time, existing []domain.Installment) ([]domain.Installment, error) {
	from, to = domain.Date(from), domain.Date(to)
	if !from.Before(to) {
		return nil, &domain.ScheduleError{
			Kind: domain.ScheduleInvalidRange,
			From: from.Format("2006-01-02"),
			To:   to.Format("2006-01-02"),
		}
	}

	serial := domain.MaxSerial(existing)
	amount := terms.RentalFee.Round(s.places)
	commission := s.Commission(terms, amount.Amount)

	var out []domain.Installment
	for k := firstIndex(terms, from); ; k++ {
		date := Boundary(terms, k)
		if !date.Before(to) {
			break
		}
		serial++
		out = append(out, domain.Installment{
			ID:           domain.NewInstallmentID(),
			Serial:       serial,
			Date:         date,
			Amount:       amount,
			Commission:   commission,
			PaymentState: domain.PaymentStateNotPaid,
			PaidAmount:   decimal.Zero,
			Active:       true,
		})
	}
	return out, nil
}

// Commission computes the commission owed on an installment amount
func (s Scheduler) Commission(terms domain.TermSet, amount decimal.Decimal) decimal.Decimal {
	base := amount
	if terms.CommissionBase == domain.CommissionBaseNetOfInsurance {
		base = base.Sub(terms.InsuranceFee)
		if base.IsNegative() {
			base = decimal.Zero
		}
	}
	return base.Mul(terms.CommissionPercentage).Div(hundred).Round(s.places)
}

// ProrateUntil scales an installment down to the part of its period before end.
// Installments whose period already ends on or before end are returned unchanged.
func (s Scheduler) ProrateUntil(terms domain.TermSet, inst domain.Installment, end time.Time) domain.Installment {
	end = domain.Date(end)
	start := domain.Date(inst.Date)
	next := NextBoundary(terms, start)
	if !end.Before(next) || !end.After(start) {
		return inst
	}
	full := decimal.NewFromInt(int64(domain.DaysBetween(start, next)))
	used := decimal.NewFromInt(int64(domain.DaysBetween(start, end)))
	amount := terms.RentalFee.Amount.Mul(used).Div(full).Round(s.places)
	inst.Amount = inst.Amount.WithAmount(amount)
	inst.Commission = s.Commission(terms, amount)
	return inst
}

// Boundary returns the k-th period boundary of the term set
func Boundary(terms domain.TermSet, k int) time.Time {
	return domain.AddMonthsClamped(terms.Anchor, k*period(terms))
}

// PeriodStart returns the boundary at or before t
func PeriodStart(terms domain.TermSet, t time.Time) time.Time {
	t = domain.Date(t)
	k := firstIndex(terms, t)
	if Boundary(terms, k).Equal(t) || k == 0 {
		return Boundary(terms, k)
	}
	return Boundary(terms, k-1)
}

// NextBoundary returns the first boundary strictly after t
func NextBoundary(terms domain.TermSet, t time.Time) time.Time {
	t = domain.Date(t)
	k := firstIndex(terms, t)
	b := Boundary(terms, k)
	if b.After(t) {
		return b
	}
	return Boundary(terms, k+1)
}

// FirstOnOrAfter returns the first boundary on or after t
func FirstOnOrAfter(terms domain.TermSet, t time.Time) time.Time {
	return Boundary(terms, firstIndex(terms, t))
}

// firstIndex returns the smallest k >= 0 whose boundary is on or after t
func firstIndex(terms domain.TermSet, t time.Time) int {
	t = domain.Date(t)
	anchor := domain.Date(terms.Anchor)
	if !t.After(anchor) {
		return 0
	}
	p := period(terms)
	months := (t.Year()-anchor.Year())*12 + int(t.Month()-anchor.Month())
	k := months / p
	if k > 0 {
		k--
	}
	for Boundary(terms, k).Before(t) {
		k++
	}
	return k
}

func period(terms domain.TermSet) int {
	if terms.PeriodicityMonths < 1 {
		return 1
	}
	return terms.PeriodicityMonths
}
