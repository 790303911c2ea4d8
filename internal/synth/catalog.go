package synth

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/erp/seeder/internal/allocator"
)

type category struct {
	name       string
	prefix     string
	unit       string
	minPrice   float64
	maxPrice   float64
	stockLevel [2]int
}

var categories = []category{
	{"Electronics", "EL", "pcs", 300, 3000, [2]int{10, 200}},
	{"Office Supplies", "OF", "box", 20, 200, [2]int{30, 500}},
	{"Furniture", "FU", "set", 500, 5000, [2]int{5, 80}},
	{"Appliances", "AP", "unit", 800, 6000, [2]int{5, 100}},
	{"Hardware", "HW", "pcs", 50, 800, [2]int{20, 400}},
	{"Apparel", "AL", "pcs", 80, 600, [2]int{20, 300}},
}

// Items returns n catalog items spread over the built-in categories. Items
// are attributed round-robin to supplierIDs when any are given.
func (s *Synthesizer) Items(n int, supplierIDs []int64) []Item {
	out := make([]Item, 0, n)
	for i := range n {
		c := categories[i%len(categories)]
		s.itemSeq[c.prefix]++

		sale := decimal.NewFromFloat(uniform(s.rng, c.minPrice, c.maxPrice)).Round(0)
		ratio := uniform(s.rng, s.ratios.CostRatioMin, s.ratios.CostRatioMax)
		purchase := sale.Mul(decimal.NewFromFloat(ratio)).Round(2)
		if purchase.GreaterThanOrEqual(sale) {
			purchase = sale.Sub(decimal.NewFromFloat(0.01))
		}

		item := Item{
			Code:          fmt.Sprintf("%s%03d", c.prefix, s.itemSeq[c.prefix]),
			Name:          s.faker.ProductName(),
			Category:      c.name,
			Unit:          c.unit,
			PurchasePrice: purchase,
			SalePrice:     sale,
			MinStock:      c.stockLevel[0],
			MaxStock:      c.stockLevel[1],
			Status:        "active",
		}
		if len(supplierIDs) > 0 {
			item.SupplierID = supplierIDs[i%len(supplierIDs)]
		}
		out = append(out, item)
	}
	return out
}

// Inventory returns one record per (item, warehouse). The warehouse with the
// lowest id is treated as the main warehouse and stocked more heavily.
func (s *Synthesizer) Inventory(items []ItemRef, warehouseIDs []int64, at time.Time) []InventoryRecord {
	ids := append([]int64(nil), warehouseIDs...)
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	out := make([]InventoryRecord, 0, len(items)*len(ids))
	for _, item := range items {
		for w, wid := range ids {
			qty := between(s.rng, 10, 50)
			if w == 0 {
				qty = between(s.rng, 20, 100)
			}
			out = append(out, InventoryRecord{
				ItemID:      item.ID,
				WarehouseID: wid,
				Quantity:    qty,
				UpdatedAt:   Timestamp(at),
			})
		}
	}
	return out
}

var lineCounts = []weighted[int]{{1, 50}, {2, 30}, {3, 15}, {4, 5}}

// splitLines divides subtotal into n line amounts that sum to it.
func (s *Synthesizer) splitLines(subtotal decimal.Decimal, items int) []decimal.Decimal {
	n := min(pick(s.rng, lineCounts), items)
	cents := subtotal.Mul(hundred).IntPart()
	if int64(n) > cents {
		n = int(max(cents, 1))
	}
	amounts, err := s.lines.Allocate(subtotal.InexactFloat64(), n, allocator.Bounds{Min: 0.01, Max: subtotal.InexactFloat64()})
	if err != nil {
		return []decimal.Decimal{subtotal}
	}
	return amounts
}

// lineShape turns a line amount and list price into quantity and unit price.
func lineShape(amount, listPrice decimal.Decimal) (int, decimal.Decimal) {
	qty := int64(1)
	if listPrice.IsPositive() {
		qty = max(1, amount.DivRound(listPrice, 0).IntPart())
	}
	unit := amount.DivRound(decimal.NewFromInt(qty), 2)
	if !unit.IsPositive() {
		unit = decimal.NewFromFloat(0.01)
	}
	return int(qty), unit
}

// SalesLines splits a stored sales order into 1-4 lines over distinct items.
// Line totals match the order subtotal to within a cent per line.
func (s *Synthesizer) SalesLines(order OrderRef, items []ItemRef) []SalesOrderItem {
	if len(items) == 0 || !order.TotalAmount.IsPositive() {
		return nil
	}
	costRatio := order.TotalCost.Div(order.TotalAmount)

	amounts := s.splitLines(order.TotalAmount, len(items))
	perm := s.rng.Perm(len(items))

	out := make([]SalesOrderItem, 0, len(amounts))
	for i, amount := range amounts {
		item := items[perm[i]]
		qty, unit := lineShape(amount, item.SalePrice)
		unitCost := unit.Mul(costRatio).Round(2)
		q := decimal.NewFromInt(int64(qty))

		out = append(out, SalesOrderItem{
			OrderID:           order.ID,
			ItemID:            item.ID,
			Quantity:          qty,
			UnitPrice:         unit,
			UnitCost:          unitCost,
			TotalPrice:        unit.Mul(q),
			TotalCost:         unitCost.Mul(q),
			DeliveredQuantity: s.fulfilled(order.Status, qty),
		})
	}
	return out
}

// PurchaseLines splits a stored purchase order into lines priced at the
// items' purchase prices.
func (s *Synthesizer) PurchaseLines(order OrderRef, items []ItemRef) []PurchaseOrderItem {
	if len(items) == 0 || !order.TotalAmount.IsPositive() {
		return nil
	}
	amounts := s.splitLines(order.TotalAmount, len(items))
	perm := s.rng.Perm(len(items))

	out := make([]PurchaseOrderItem, 0, len(amounts))
	for i, amount := range amounts {
		item := items[perm[i]]
		qty, unit := lineShape(amount, item.PurchasePrice)
		out = append(out, PurchaseOrderItem{
			OrderID:          order.ID,
			ItemID:           item.ID,
			Quantity:         qty,
			UnitPrice:        unit,
			TotalPrice:       unit.Mul(decimal.NewFromInt(int64(qty))),
			ReceivedQuantity: s.fulfilled(order.Status, qty),
		})
	}
	return out
}

// fulfilled returns delivered/received quantity, never above qty.
func (s *Synthesizer) fulfilled(status Status, qty int) int {
	switch status {
	case StatusCompleted:
		return qty
	case StatusPending:
		return s.rng.Intn(qty + 1)
	}
	return 0
}
