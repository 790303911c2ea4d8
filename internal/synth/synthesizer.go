// Package synth turns allocated amounts into complete ERP records: orders
// with tax, discount, cost and margin, plus the parties, catalog items,
// inventory and order lines they reference.
//
// All randomness comes from the *rand.Rand handed to New, so a fixed seed
// reproduces the same records.
package synth

import (
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/shopspring/decimal"

	"github.com/erp/seeder/internal/allocator"
)

// ErrInvalidRatios is returned by New for out-of-range ratios.
var ErrInvalidRatios = errors.New("synth: invalid ratios")

var hundred = decimal.NewFromInt(100)

// StatusWeights weights the order status draw.
type StatusWeights struct {
	Completed float64
	Pending   float64
	Cancelled float64
}

// Ratios holds the financial shape of generated orders.
type Ratios struct {
	TaxRate             decimal.Decimal
	CostRatioMin        float64
	CostRatioMax        float64
	DiscountProbability float64
	DiscountCap         decimal.Decimal
	DiscountMaxFraction float64
	SalesStatus         StatusWeights
	PurchaseStatus      StatusWeights
}

// DefaultRatios mirrors the numbers of a typical small trading company.
func DefaultRatios() Ratios {
	return Ratios{
		TaxRate:             decimal.NewFromFloat(0.15),
		CostRatioMin:        0.58,
		CostRatioMax:        0.70,
		DiscountProbability: 0.25,
		DiscountCap:         decimal.NewFromInt(200),
		DiscountMaxFraction: 0.1,
		SalesStatus:         StatusWeights{Completed: 92, Pending: 6, Cancelled: 2},
		PurchaseStatus:      StatusWeights{Completed: 85, Pending: 15},
	}
}

func (r Ratios) validate() error {
	switch {
	case r.TaxRate.IsNegative():
		return fmt.Errorf("%w: negative tax rate", ErrInvalidRatios)
	case r.CostRatioMin <= 0 || r.CostRatioMin > r.CostRatioMax || r.CostRatioMax > 1:
		return fmt.Errorf("%w: cost ratio [%.2f, %.2f]", ErrInvalidRatios, r.CostRatioMin, r.CostRatioMax)
	case r.DiscountProbability < 0 || r.DiscountProbability > 1:
		return fmt.Errorf("%w: discount probability %.2f", ErrInvalidRatios, r.DiscountProbability)
	case r.DiscountCap.IsNegative() || r.DiscountMaxFraction < 0:
		return fmt.Errorf("%w: negative discount limits", ErrInvalidRatios)
	}
	for name, w := range map[string]StatusWeights{"sales": r.SalesStatus, "purchase": r.PurchaseStatus} {
		if w.Completed < 0 || w.Pending < 0 || w.Cancelled < 0 || w.Completed+w.Pending+w.Cancelled == 0 {
			return fmt.Errorf("%w: %s status weights", ErrInvalidRatios, name)
		}
	}
	return nil
}

// OrderRefs are the references a synthesized order points at.
type OrderRefs struct {
	PartyID     int64
	WarehouseID int64
	At          time.Time
}

// Synthesizer builds records. Not safe for concurrent use.
type Synthesizer struct {
	rng       *rand.Rand
	faker     *gofakeit.Faker
	ratios    Ratios
	lines     *allocator.Allocator
	salesNo   *OrderNumbers
	purchNo   *OrderNumbers
	customers int
	suppliers int
	itemSeq   map[string]int
}

// New creates a Synthesizer drawing from rng. tag distinguishes order
// numbers of different runs; it may be empty.
func New(rng *rand.Rand, ratios Ratios, tag string) (*Synthesizer, error) {
	if rng == nil {
		return nil, fmt.Errorf("%w: nil random source", ErrInvalidRatios)
	}
	if err := ratios.validate(); err != nil {
		return nil, err
	}
	lines, err := allocator.New(rng, allocator.WithSpread(0.5, 1.5))
	if err != nil {
		return nil, err
	}
	return &Synthesizer{
		rng:     rng,
		faker:   gofakeit.New(uint64(rng.Int63())),
		ratios:  ratios,
		lines:   lines,
		salesNo: NewOrderNumbers("SO", tag),
		purchNo: NewOrderNumbers("PO", tag),
		itemSeq: make(map[string]int),
	}, nil
}

// Pricing is the derived money of one order.
type Pricing struct {
	Subtotal decimal.Decimal
	Tax      decimal.Decimal
	Discount decimal.Decimal
	Final    decimal.Decimal
	Cost     decimal.Decimal
	Profit   decimal.Decimal
	Margin   decimal.Decimal // fraction of Final
}

// Price derives tax, discount, cost and margin from a subtotal.
//
// final = subtotal + tax - discount, profit = final - cost and
// margin = profit / final, defined as 0 when final is 0.
func (s *Synthesizer) Price(subtotal decimal.Decimal) Pricing {
	p := Pricing{Subtotal: subtotal.Round(2)}
	p.Tax = p.Subtotal.Mul(s.ratios.TaxRate).Round(2)
	p.Discount = s.discount(p.Subtotal)
	p.Final = p.Subtotal.Add(p.Tax).Sub(p.Discount)

	ratio := uniform(s.rng, s.ratios.CostRatioMin, s.ratios.CostRatioMax)
	p.Cost = p.Subtotal.Mul(decimal.NewFromFloat(ratio)).Round(2)
	p.Profit = p.Final.Sub(p.Cost)
	p.Margin = Margin(p.Profit, p.Final)
	return p
}

func (s *Synthesizer) discount(subtotal decimal.Decimal) decimal.Decimal {
	if s.rng.Float64() >= s.ratios.DiscountProbability {
		return decimal.Zero
	}
	limit := decimal.Min(s.ratios.DiscountCap, subtotal.Mul(decimal.NewFromFloat(s.ratios.DiscountMaxFraction)))
	if !limit.IsPositive() {
		return decimal.Zero
	}
	return limit.Mul(decimal.NewFromFloat(s.rng.Float64())).Round(2)
}

// Margin returns profit/final rounded to 4 places, 0 when final is 0.
func Margin(profit, final decimal.Decimal) decimal.Decimal {
	if final.IsZero() {
		return decimal.Zero
	}
	return profit.DivRound(final, 4)
}

func (s *Synthesizer) status(w StatusWeights) Status {
	return pick(s.rng, []weighted[Status]{
		{StatusCompleted, w.Completed},
		{StatusPending, w.Pending},
		{StatusCancelled, w.Cancelled},
	})
}

// payment derives payment status and paid amount from the order status.
func (s *Synthesizer) payment(status Status, final decimal.Decimal) (PaymentStatus, decimal.Decimal) {
	switch status {
	case StatusCompleted:
		return PaymentPaid, final
	case StatusPending:
		if s.rng.Float64() < 0.5 {
			share := decimal.NewFromFloat(uniform(s.rng, 0.2, 0.8))
			return PaymentPartial, final.Mul(share).Round(2)
		}
	}
	return PaymentUnpaid, decimal.Zero
}

// SalesOrder synthesizes one sales order whose subtotal is amount.
func (s *Synthesizer) SalesOrder(amount decimal.Decimal, refs OrderRefs) SalesOrder {
	p := s.Price(amount)
	status := s.status(s.ratios.SalesStatus)
	payStatus, paid := s.payment(status, p.Final)

	return SalesOrder{
		OrderNo:        s.salesNo.Next(refs.At),
		CustomerID:     refs.PartyID,
		WarehouseID:    refs.WarehouseID,
		OrderDate:      Timestamp(refs.At),
		TotalAmount:    p.Subtotal,
		TaxAmount:      p.Tax,
		DiscountAmount: p.Discount,
		FinalAmount:    p.Final,
		PaidAmount:     paid,
		TotalCost:      p.Cost,
		GrossProfit:    p.Profit,
		ProfitMargin:   p.Margin.Mul(hundred).Round(2),
		Status:         status,
		PaymentStatus:  payStatus,
		Remarks:        s.remark(status),
		CreatedAt:      Timestamp(refs.At),
	}
}

// PurchaseOrder synthesizes one purchase order whose subtotal is amount.
func (s *Synthesizer) PurchaseOrder(amount decimal.Decimal, refs OrderRefs) PurchaseOrder {
	p := s.Price(amount)
	status := s.status(s.ratios.PurchaseStatus)
	payStatus, paid := s.payment(status, p.Final)

	return PurchaseOrder{
		OrderNo:        s.purchNo.Next(refs.At),
		SupplierID:     refs.PartyID,
		WarehouseID:    refs.WarehouseID,
		OrderDate:      Timestamp(refs.At),
		ExpectedDate:   Timestamp(refs.At.AddDate(0, 0, between(s.rng, 3, 14))),
		TotalAmount:    p.Subtotal,
		TaxAmount:      p.Tax,
		DiscountAmount: p.Discount,
		FinalAmount:    p.Final,
		PaidAmount:     paid,
		Status:         status,
		PaymentStatus:  payStatus,
		Remarks:        s.remark(status),
		CreatedAt:      Timestamp(refs.At),
	}
}

func (s *Synthesizer) remark(status Status) string {
	switch status {
	case StatusCancelled:
		return "cancelled by customer"
	case StatusPending:
		return "awaiting fulfilment"
	}
	return ""
}

// Intn exposes the synthesizer's random source for picking references.
func (s *Synthesizer) Intn(n int) int {
	return s.rng.Intn(n)
}
