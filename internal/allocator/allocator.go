// Package allocator distributes a target aggregate across a number of
// records so that their sum lands near the target while each record keeps
// plausible variance.
//
// The method is remaining-average: for every record the average still needed
// (remaining target / remaining records) is perturbed by a random factor and
// clamped to the configured bounds. The last record takes whatever remains,
// clamped, so the sum is exact unless clamping interferes. The target is
// therefore soft: divergence is bounded by the clamp range only.
package allocator

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"github.com/shopspring/decimal"
)

// ErrInvalidInput is returned for negative counts, inverted or non-finite
// bounds, non-finite targets or malformed categories.
var ErrInvalidInput = errors.New("allocator: invalid input")

// Default perturbation range applied to the remaining average.
const (
	DefaultSpreadLow  = 0.3
	DefaultSpreadHigh = 1.8
)

// Bounds is the closed range every amount is clamped to.
type Bounds struct {
	Min float64
	Max float64
}

func (b Bounds) validate() error {
	if !finite(b.Min) || !finite(b.Max) || b.Min < 0 || b.Min > b.Max {
		return fmt.Errorf("%w: bounds [%.2f, %.2f]", ErrInvalidInput, b.Min, b.Max)
	}
	return nil
}

func (b Bounds) clamp(v float64) float64 {
	if v < b.Min {
		return b.Min
	}
	if v > b.Max {
		return b.Max
	}
	return v
}

// Category is a weighted size bucket. When categories are configured each
// record's shape comes from a bucket instead of a uniform factor.
type Category struct {
	Name   string
	Weight float64
	Min    float64
	Max    float64
}

// Allocator produces amounts. It is not safe for concurrent use because it
// owns its random source.
type Allocator struct {
	rng        *rand.Rand
	spreadLow  float64
	spreadHigh float64
	categories []Category
	totalW     float64
	mean       float64
}

// Option configures an Allocator.
type Option func(*Allocator) error

// WithCategories switches the allocator to weighted buckets.
func WithCategories(categories []Category) Option {
	return func(a *Allocator) error {
		var total, mean float64
		for i, c := range categories {
			if !finite(c.Weight) || !finite(c.Min) || !finite(c.Max) || c.Weight <= 0 || c.Min <= 0 || c.Min > c.Max {
				return fmt.Errorf("%w: category %d (%s)", ErrInvalidInput, i, c.Name)
			}
			total += c.Weight
			mean += c.Weight * (c.Min + c.Max) / 2
		}
		if len(categories) > 0 {
			a.categories = append([]Category(nil), categories...)
			a.totalW = total
			a.mean = mean / total
		}
		return nil
	}
}

// WithSpread overrides the perturbation range around the remaining average.
func WithSpread(low, high float64) Option {
	return func(a *Allocator) error {
		if !finite(low) || !finite(high) || low <= 0 || low > high {
			return fmt.Errorf("%w: spread [%.2f, %.2f]", ErrInvalidInput, low, high)
		}
		a.spreadLow, a.spreadHigh = low, high
		return nil
	}
}

// New creates an Allocator drawing from rng.
func New(rng *rand.Rand, opts ...Option) (*Allocator, error) {
	if rng == nil {
		return nil, fmt.Errorf("%w: nil random source", ErrInvalidInput)
	}
	a := &Allocator{
		rng:        rng,
		spreadLow:  DefaultSpreadLow,
		spreadHigh: DefaultSpreadHigh,
	}
	for _, opt := range opts {
		if err := opt(a); err != nil {
			return nil, err
		}
	}
	return a, nil
}

// Allocate returns exactly count amounts, each within bounds and rounded to
// cents, whose sum approximates target.
//
// count == 0 yields an empty slice. A target <= 0 yields count copies of
// bounds.Min.
func (a *Allocator) Allocate(target float64, count int, bounds Bounds) ([]decimal.Decimal, error) {
	if count < 0 {
		return nil, fmt.Errorf("%w: negative count %d", ErrInvalidInput, count)
	}
	if err := bounds.validate(); err != nil {
		return nil, err
	}
	if !finite(target) {
		return nil, fmt.Errorf("%w: target %v", ErrInvalidInput, target)
	}

	amounts := make([]decimal.Decimal, 0, count)
	if count == 0 {
		return amounts, nil
	}

	floor := decimal.NewFromFloat(bounds.Min).RoundUp(2)
	if target <= 0 {
		for range count {
			amounts = append(amounts, floor)
		}
		return amounts, nil
	}

	remaining := round(target)
	for i := range count {
		left := count - i
		var v float64
		if left == 1 {
			v = bounds.clamp(remaining.InexactFloat64())
		} else {
			avg := remaining.InexactFloat64() / float64(left)
			v = bounds.clamp(a.sample(avg))
		}

		amount := round(v)
		// clamp again after rounding so Max = 100.004 cannot yield 100.01
		if amount.GreaterThan(decimal.NewFromFloat(bounds.Max)) {
			amount = decimal.NewFromFloat(bounds.Max).RoundDown(2)
		}
		if amount.LessThan(decimal.NewFromFloat(bounds.Min)) {
			amount = decimal.NewFromFloat(bounds.Min).RoundUp(2)
		}

		amounts = append(amounts, amount)
		remaining = remaining.Sub(amount)
	}
	return amounts, nil
}

// sample draws one unclamped amount around avg.
func (a *Allocator) sample(avg float64) float64 {
	if len(a.categories) == 0 {
		return avg * a.uniform(a.spreadLow, a.spreadHigh)
	}
	c := a.pick()
	// scale the bucket draw so the mixture's expectation equals avg
	return a.uniform(c.Min, c.Max) * avg / a.mean
}

func (a *Allocator) pick() Category {
	r := a.rng.Float64() * a.totalW
	for _, c := range a.categories {
		if r < c.Weight {
			return c
		}
		r -= c.Weight
	}
	return a.categories[len(a.categories)-1]
}

func (a *Allocator) uniform(low, high float64) float64 {
	return low + a.rng.Float64()*(high-low)
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func round(v float64) decimal.Decimal {
	return decimal.NewFromFloat(v).Round(2)
}

// Sum adds amounts.
func Sum(amounts []decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, a := range amounts {
		total = total.Add(a)
	}
	return total
}
