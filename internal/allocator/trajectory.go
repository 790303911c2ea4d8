package allocator

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

// Period is one step of a growth trajectory, addressed in months before the
// current month.
type Period struct {
	MonthsAgo int
	Target    float64
	Count     int
}

// PeriodAllocation is the allocation produced for one Period.
type PeriodAllocation struct {
	Period  Period
	Amounts []decimal.Decimal
}

// Total sums the period's amounts.
func (p PeriodAllocation) Total() decimal.Decimal {
	return Sum(p.Amounts)
}

// Average returns the mean amount, zero for an empty period.
func (p PeriodAllocation) Average() decimal.Decimal {
	if len(p.Amounts) == 0 {
		return decimal.Zero
	}
	return p.Total().Div(decimal.NewFromInt(int64(len(p.Amounts))))
}

// AllocateTrajectory runs one allocation per period and returns them in
// chronological order, oldest month first.
func (a *Allocator) AllocateTrajectory(periods []Period, bounds Bounds) ([]PeriodAllocation, error) {
	ordered := append([]Period(nil), periods...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].MonthsAgo > ordered[j].MonthsAgo
	})

	out := make([]PeriodAllocation, 0, len(ordered))
	for _, p := range ordered {
		if p.MonthsAgo < 0 {
			return nil, fmt.Errorf("%w: period %d months ago", ErrInvalidInput, p.MonthsAgo)
		}
		amounts, err := a.Allocate(p.Target, p.Count, bounds)
		if err != nil {
			return nil, fmt.Errorf("period %d months ago: %w", p.MonthsAgo, err)
		}
		out = append(out, PeriodAllocation{Period: p, Amounts: amounts})
	}
	return out, nil
}

// Flatten concatenates period amounts in order.
func Flatten(periods []PeriodAllocation) []decimal.Decimal {
	var n int
	for _, p := range periods {
		n += len(p.Amounts)
	}
	out := make([]decimal.Decimal, 0, n)
	for _, p := range periods {
		out = append(out, p.Amounts...)
	}
	return out
}
