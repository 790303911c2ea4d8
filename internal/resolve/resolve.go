// Package resolve re-reads destination rows so that dependent records carry
// the IDs the destination actually assigned.
package resolve

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"go.uber.org/zap"

	"github.com/erp/seeder/internal/client"
	"github.com/erp/seeder/internal/synth"
)

// ErrReadBack is returned when a read-back fails or yields nothing where
// something is required.
var ErrReadBack = errors.New("resolve: read-back failed")

// Entity collection paths.
const (
	EntityItems          = "items"
	EntityWarehouses     = "warehouses"
	EntityCustomers      = "customers"
	EntitySuppliers      = "suppliers"
	EntitySalesOrders    = "sales"
	EntityPurchaseOrders = "purchases"
)

// DefaultPageSize is used when none is configured.
const DefaultPageSize = 100

// maxPages stops a destination that ignores paging from looping forever.
const maxPages = 10000

// Lister fetches one page of an entity collection.
type Lister interface {
	List(ctx context.Context, entity string, page, pageSize int) ([]map[string]any, error)
}

// Resolver reads back destination state.
type Resolver struct {
	lister   Lister
	pageSize int
	logger   *zap.Logger
}

// New creates a Resolver. pageSize < 1 selects DefaultPageSize.
func New(lister Lister, pageSize int, logger *zap.Logger) *Resolver {
	if pageSize < 1 {
		pageSize = DefaultPageSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{lister: lister, pageSize: pageSize, logger: logger}
}

// All pages through entity until a short page.
func (r *Resolver) All(ctx context.Context, entity string) ([]map[string]any, error) {
	var out []map[string]any
	for page := 1; page <= maxPages; page++ {
		rows, err := r.lister.List(ctx, entity, page, r.pageSize)
		if err != nil {
			return nil, fmt.Errorf("%w: %s page %d: %w", ErrReadBack, entity, page, err)
		}
		out = append(out, rows...)
		if len(rows) < r.pageSize {
			break
		}
	}
	r.logger.Debug("read back", zap.String("entity", entity), zap.Int("rows", len(out)))
	return out, nil
}

// IDs returns the sorted ids of entity. An empty result is an error.
func (r *Resolver) IDs(ctx context.Context, entity string) ([]int64, error) {
	rows, err := r.All(ctx, entity)
	if err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(rows))
	for _, row := range rows {
		if id, ok := client.Int64(row, "id"); ok {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: no %s found", ErrReadBack, entity)
	}
	slices.Sort(ids)
	return slices.Compact(ids), nil
}

// Warehouses returns warehouse ids, lowest first.
func (r *Resolver) Warehouses(ctx context.Context) ([]int64, error) {
	return r.IDs(ctx, EntityWarehouses)
}

// Customers returns customer ids.
func (r *Resolver) Customers(ctx context.Context) ([]int64, error) {
	return r.IDs(ctx, EntityCustomers)
}

// Suppliers returns supplier ids.
func (r *Resolver) Suppliers(ctx context.Context) ([]int64, error) {
	return r.IDs(ctx, EntitySuppliers)
}

// Items returns the catalog with prices.
func (r *Resolver) Items(ctx context.Context) ([]synth.ItemRef, error) {
	rows, err := r.All(ctx, EntityItems)
	if err != nil {
		return nil, err
	}
	items := make([]synth.ItemRef, 0, len(rows))
	for _, row := range rows {
		id, ok := client.Int64(row, "id")
		if !ok {
			continue
		}
		items = append(items, synth.ItemRef{
			ID:            id,
			Code:          client.String(row, "code"),
			SalePrice:     client.Decimal(row, "sale_price"),
			PurchasePrice: client.Decimal(row, "purchase_price"),
		})
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: no %s found", ErrReadBack, EntityItems)
	}
	return items, nil
}

// SalesOrders returns the sales orders whose order_no is in want, keyed by
// order number. A nil want returns every order.
func (r *Resolver) SalesOrders(ctx context.Context, want []string) (map[string]synth.OrderRef, error) {
	return r.orders(ctx, EntitySalesOrders, want)
}

// PurchaseOrders is SalesOrders for purchase orders.
func (r *Resolver) PurchaseOrders(ctx context.Context, want []string) (map[string]synth.OrderRef, error) {
	return r.orders(ctx, EntityPurchaseOrders, want)
}

func (r *Resolver) orders(ctx context.Context, entity string, want []string) (map[string]synth.OrderRef, error) {
	rows, err := r.All(ctx, entity)
	if err != nil {
		return nil, err
	}

	var filter map[string]struct{}
	if want != nil {
		filter = make(map[string]struct{}, len(want))
		for _, no := range want {
			filter[no] = struct{}{}
		}
	}

	out := make(map[string]synth.OrderRef)
	for _, row := range rows {
		id, ok := client.Int64(row, "id")
		no := client.String(row, "order_no")
		if !ok || no == "" {
			continue
		}
		if filter != nil {
			if _, keep := filter[no]; !keep {
				continue
			}
		}
		out[no] = synth.OrderRef{
			ID:          id,
			OrderNo:     no,
			TotalAmount: client.Decimal(row, "total_amount"),
			TotalCost:   client.Decimal(row, "total_cost"),
			Status:      synth.Status(client.String(row, "status")),
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: none of the uploaded %s orders found", ErrReadBack, entity)
	}
	if want != nil && len(out) < len(want) {
		r.logger.Warn("some orders were not found on read-back",
			zap.String("entity", entity),
			zap.Int("expected", len(want)),
			zap.Int("found", len(out)))
	}
	return out, nil
}
