package synth

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

type creditBand struct {
	kind     string
	min, max int
}

var customerBands = []weighted[creditBand]{
	{creditBand{"retail", 5_000, 20_000}, 40},
	{creditBand{"wholesale", 20_000, 100_000}, 30},
	{creditBand{"enterprise", 100_000, 500_000}, 20},
	{creditBand{"vip", 50_000, 200_000}, 10},
}

var supplierRatings = []weighted[string]{
	{"A+", 20}, {"A", 40}, {"B+", 30}, {"B", 10},
}

// Customers returns n customers with codes continuing from earlier calls
// (CUS001, CUS002, ...).
func (s *Synthesizer) Customers(n int) []Customer {
	out := make([]Customer, 0, n)
	for range n {
		s.customers++
		band := pick(s.rng, customerBands)
		limit := between(s.rng, band.min/1000, band.max/1000) * 1000
		out = append(out, Customer{
			Code:          fmt.Sprintf("CUS%03d", s.customers),
			Name:          s.faker.Company(),
			ContactPerson: s.faker.Name(),
			Phone:         s.faker.Phone(),
			Email:         strings.ToLower(s.faker.Email()),
			Address:       s.address(),
			CustomerType:  band.kind,
			CreditLimit:   decimal.NewFromInt(int64(limit)),
			Status:        "active",
		})
	}
	return out
}

// Suppliers returns n suppliers (SUP001, SUP002, ...).
func (s *Synthesizer) Suppliers(n int) []Supplier {
	out := make([]Supplier, 0, n)
	for range n {
		s.suppliers++
		out = append(out, Supplier{
			Code:          fmt.Sprintf("SUP%03d", s.suppliers),
			Name:          s.faker.Company() + " " + s.faker.CompanySuffix(),
			ContactPerson: s.faker.Name(),
			Phone:         s.faker.Phone(),
			Email:         strings.ToLower(s.faker.Email()),
			Address:       s.address(),
			TaxNumber:     s.taxNumber(),
			Rating:        pick(s.rng, supplierRatings),
			Status:        "active",
		})
	}
	return out
}

func (s *Synthesizer) address() string {
	return fmt.Sprintf("%s, %s", s.faker.Street(), s.faker.City())
}

// taxNumber renders an 18 character unified social credit style number.
func (s *Synthesizer) taxNumber() string {
	var b strings.Builder
	b.WriteString("91")
	for range 16 {
		b.WriteByte(byte('0' + s.rng.Intn(10)))
	}
	return b.String()
}
