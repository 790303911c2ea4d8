package seeder

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/erp/seeder/internal/allocator"
	"github.com/erp/seeder/internal/synth"
	"github.com/erp/seeder/internal/upload"
	"github.com/erp/seeder/internal/verify"
)

// Destination tables.
const (
	TableCustomers          = "customers"
	TableSuppliers          = "suppliers"
	TableItems              = "items"
	TableInventory          = "inventory"
	TableSalesOrders        = "sales_orders"
	TableSalesOrderItems    = "sales_order_items"
	TablePurchaseOrders     = "purchase_orders"
	TablePurchaseOrderItems = "purchase_order_items"
)

// Phase names, also accepted by the plan's skip list.
const (
	PhaseCustomers     = "customers"
	PhaseSuppliers     = "suppliers"
	PhaseItems         = "items"
	PhaseInventory     = "inventory"
	PhaseSales         = "sales"
	PhaseSalesItems    = "sales_items"
	PhasePurchases     = "purchases"
	PhasePurchaseItems = "purchase_items"
	PhaseVerify        = "verify"
)

type phase struct {
	name string
	deps []string
	run  func(ctx context.Context, st *state) error
}

func (r *Runner) phases() []phase {
	return []phase{
		{name: PhaseCustomers, run: r.customers},
		{name: PhaseSuppliers, run: r.suppliers},
		{name: PhaseItems, run: r.items},
		{name: PhaseInventory, deps: []string{PhaseItems}, run: r.inventory},
		{name: PhaseSales, run: r.salesOrders},
		{name: PhaseSalesItems, deps: []string{PhaseItems, PhaseSales}, run: r.salesItems},
		{name: PhasePurchases, run: r.purchaseOrders},
		{name: PhasePurchaseItems, deps: []string{PhaseItems, PhasePurchases}, run: r.purchaseItems},
		{name: PhaseVerify, run: r.verify},
	}
}

func (r *Runner) customers(ctx context.Context, st *state) error {
	_, err := st.upload(ctx, TableCustomers, upload.ModeUpsert, upload.Rows(st.synth.Customers(r.plan.Customers)))
	return err
}

func (r *Runner) suppliers(ctx context.Context, st *state) error {
	_, err := st.upload(ctx, TableSuppliers, upload.ModeUpsert, upload.Rows(st.synth.Suppliers(r.plan.Suppliers)))
	return err
}

func (r *Runner) items(ctx context.Context, st *state) error {
	suppliers, err := st.resolver.Suppliers(ctx)
	if err != nil {
		return err
	}
	_, err = st.upload(ctx, TableItems, upload.ModeUpsert, upload.Rows(st.synth.Items(r.plan.Items, suppliers)))
	return err
}

func (r *Runner) inventory(ctx context.Context, st *state) error {
	items, err := st.resolver.Items(ctx)
	if err != nil {
		return err
	}
	warehouses, err := st.resolver.Warehouses(ctx)
	if err != nil {
		return err
	}
	_, err = st.upload(ctx, TableInventory, upload.ModeUpsert, upload.Rows(st.synth.Inventory(items, warehouses, st.now)))
	return err
}

// salesOrders allocates the sales target, single or per trajectory period,
// and uploads the orders.
func (r *Runner) salesOrders(ctx context.Context, st *state) error {
	customers, err := st.resolver.Customers(ctx)
	if err != nil {
		return err
	}
	warehouses, err := st.resolver.Warehouses(ctx)
	if err != nil {
		return err
	}

	bounds := allocator.Bounds{Min: r.plan.Bounds.Min, Max: r.plan.Bounds.Max}
	var amounts []decimal.Decimal
	var dates []time.Time

	if len(r.plan.Trajectory) > 0 {
		periods := make([]allocator.Period, len(r.plan.Trajectory))
		for i, p := range r.plan.Trajectory {
			periods[i] = allocator.Period{MonthsAgo: p.MonthsAgo, Target: p.Target, Count: p.Count}
		}
		st.periods, err = st.alloc.AllocateTrajectory(periods, bounds)
		if err != nil {
			return err
		}
		for _, pa := range st.periods {
			start, end := synth.MonthWindow(st.now, pa.Period.MonthsAgo)
			cal, err := synth.NewCalendar(st.rng, start, end, synth.NotAfter(st.now))
			if err != nil {
				return err
			}
			amounts = append(amounts, pa.Amounts...)
			dates = append(dates, cal.Dates(len(pa.Amounts))...)
			st.log.Info("period allocated",
				zap.Int("months_ago", pa.Period.MonthsAgo),
				zap.Int("orders", len(pa.Amounts)),
				zap.String("total", pa.Total().StringFixed(2)),
				zap.String("average", pa.Average().StringFixed(2)))
		}
	} else {
		amounts, err = st.alloc.Allocate(r.plan.TargetTotal, r.plan.RecordCount, bounds)
		if err != nil {
			return err
		}
		cal, err := synth.NewCalendar(st.rng, st.start, st.end, synth.NotAfter(st.now))
		if err != nil {
			return err
		}
		dates = cal.Dates(len(amounts))
	}

	st.sum.Generated = allocator.Sum(amounts)
	st.sales = make([]synth.SalesOrder, len(amounts))
	for i, amount := range amounts {
		st.sales[i] = st.synth.SalesOrder(amount, synth.OrderRefs{
			PartyID:     st.pick(customers),
			WarehouseID: st.pick(warehouses),
			At:          dates[i],
		})
	}
	st.log.Info("sales orders generated",
		zap.Int("orders", len(st.sales)),
		zap.String("subtotal", st.sum.Generated.StringFixed(2)))

	st.salesRep, err = st.upload(ctx, TableSalesOrders, upload.ModeAppend, upload.Rows(st.sales))
	return err
}

func (r *Runner) salesItems(ctx context.Context, st *state) error {
	want := deliveredOrders(st.salesRep, len(st.sales), func(i int) string { return st.sales[i].OrderNo })
	if len(want) == 0 {
		st.log.Info("no delivered sales orders, no lines to generate")
		return nil
	}
	items, err := st.resolver.Items(ctx)
	if err != nil {
		return err
	}
	orders, err := st.resolver.SalesOrders(ctx, want)
	if err != nil {
		return err
	}

	var lines []synth.SalesOrderItem
	for _, no := range want {
		if ref, ok := orders[no]; ok {
			lines = append(lines, st.synth.SalesLines(ref, items)...)
		}
	}
	_, err = st.upload(ctx, TableSalesOrderItems, upload.ModeAppend, upload.Rows(lines))
	return err
}

func (r *Runner) purchaseOrders(ctx context.Context, st *state) error {
	pp := r.plan.Purchases
	if pp.RecordCount == 0 {
		st.log.Info("no purchase orders planned")
		return nil
	}
	suppliers, err := st.resolver.Suppliers(ctx)
	if err != nil {
		return err
	}
	warehouses, err := st.resolver.Warehouses(ctx)
	if err != nil {
		return err
	}

	amounts, err := st.alloc.Allocate(pp.TargetTotal, pp.RecordCount, allocator.Bounds{Min: pp.Bounds.Min, Max: pp.Bounds.Max})
	if err != nil {
		return err
	}
	cal, err := synth.NewCalendar(st.rng, st.start, st.end, synth.NotAfter(st.now))
	if err != nil {
		return err
	}
	dates := cal.Dates(len(amounts))

	st.purchases = make([]synth.PurchaseOrder, len(amounts))
	for i, amount := range amounts {
		st.purchases[i] = st.synth.PurchaseOrder(amount, synth.OrderRefs{
			PartyID:     st.pick(suppliers),
			WarehouseID: st.pick(warehouses),
			At:          dates[i],
		})
	}
	st.purchRep, err = st.upload(ctx, TablePurchaseOrders, upload.ModeAppend, upload.Rows(st.purchases))
	return err
}

func (r *Runner) purchaseItems(ctx context.Context, st *state) error {
	want := deliveredOrders(st.purchRep, len(st.purchases), func(i int) string { return st.purchases[i].OrderNo })
	if len(want) == 0 {
		st.log.Info("no delivered purchase orders, no lines to generate")
		return nil
	}
	items, err := st.resolver.Items(ctx)
	if err != nil {
		return err
	}
	orders, err := st.resolver.PurchaseOrders(ctx, want)
	if err != nil {
		return err
	}

	var lines []synth.PurchaseOrderItem
	for _, no := range want {
		if ref, ok := orders[no]; ok {
			lines = append(lines, st.synth.PurchaseLines(ref, items)...)
		}
	}
	_, err = st.upload(ctx, TablePurchaseOrderItems, upload.ModeAppend, upload.Rows(lines))
	return err
}

// verify reads realized revenue back for the run window, or for each
// trajectory month, and reconciles row counts of append-only tables.
func (r *Runner) verify(ctx context.Context, st *state) error {
	tolerance := r.plan.ToleranceFraction
	ratios := Ratios(r.plan)

	var windows []verify.Window
	if len(r.plan.Trajectory) > 0 {
		for _, p := range r.plan.Trajectory {
			start, end := synth.MonthWindow(st.now, p.MonthsAgo)
			windows = append(windows, verify.Window{
				Start:    start,
				End:      end.AddDate(0, 0, -1),
				Expected: expectedRevenue(ratios, p.Target, p.Count),
			})
		}
	} else {
		windows = []verify.Window{{
			Start:    st.start,
			End:      st.end.AddDate(0, 0, -1),
			Expected: expectedRevenue(ratios, r.plan.TargetTotal, r.plan.RecordCount),
		}}
	}

	results, err := st.verifier.VerifyPeriods(ctx, windows, tolerance)
	st.sum.Verification = append(st.sum.Verification, results...)
	if err != nil {
		return err
	}

	if st.baseline == nil {
		return nil
	}
	appended := make(map[string]int)
	for table, n := range st.sum.Succeeded() {
		switch table {
		case TableSalesOrders, TableSalesOrderItems, TablePurchaseOrders, TablePurchaseOrderItems:
			appended[table] = n
		}
	}
	counts, err := st.verifier.ReconcileCounts(ctx, st.baseline, appended)
	if err != nil {
		return fmt.Errorf("reconciling row counts: %w", err)
	}
	st.sum.Verification = append(st.sum.Verification, counts...)
	return nil
}

// expectedRevenue turns a subtotal target into what the sales trend should
// report for it: completed orders only, with tax added and the mean
// discount taken off.
func expectedRevenue(ratios synth.Ratios, target float64, count int) decimal.Decimal {
	w := ratios.SalesStatus
	weights := w.Completed + w.Pending + w.Cancelled
	if target <= 0 || weights <= 0 {
		return decimal.Zero
	}

	subtotal := decimal.NewFromFloat(target)
	gross := subtotal.Add(subtotal.Mul(ratios.TaxRate))
	if count > 0 && ratios.DiscountProbability > 0 {
		n := decimal.NewFromInt(int64(count))
		limit := decimal.Min(ratios.DiscountCap, subtotal.Div(n).Mul(decimal.NewFromFloat(ratios.DiscountMaxFraction)))
		if limit.IsPositive() {
			// discounts are uniform on [0, limit)
			perOrder := limit.Mul(decimal.NewFromFloat(ratios.DiscountProbability / 2))
			gross = gross.Sub(perOrder.Mul(n))
		}
	}
	return gross.Mul(decimal.NewFromFloat(w.Completed / weights)).Round(2)
}

// deliveredOrders lists the order numbers of records the report marks as
// delivered, in generation order.
func deliveredOrders(rep *upload.Report, n int, orderNo func(i int) string) []string {
	if rep == nil {
		return nil
	}
	var out []string
	for i := range n {
		if rep.Delivered(i) {
			out = append(out, orderNo(i))
		}
	}
	return out
}
