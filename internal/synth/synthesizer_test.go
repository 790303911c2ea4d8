package synth

import (
	"encoding/json"
	"math/rand"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSynth(t *testing.T, seed int64, ratios Ratios) *Synthesizer {
	t.Helper()
	s, err := New(rand.New(rand.NewSource(seed)), ratios, "")
	require.NoError(t, err)
	return s
}

var refs = OrderRefs{PartyID: 3, WarehouseID: 1, At: time.Date(2024, 3, 9, 14, 30, 0, 0, time.UTC)}

func TestSalesOrder_Invariants(t *testing.T) {
	s := newTestSynth(t, 1, DefaultRatios())

	for i := range 200 {
		amount := decimal.NewFromFloat(200 + float64(i)*37.5)
		o := s.SalesOrder(amount, refs)

		assert.True(t, o.TotalAmount.Equal(amount))
		assert.True(t, o.FinalAmount.Equal(o.TotalAmount.Add(o.TaxAmount).Sub(o.DiscountAmount)), "final mismatch for %s", o.OrderNo)
		assert.True(t, o.GrossProfit.Equal(o.FinalAmount.Sub(o.TotalCost)))
		assert.False(t, o.DiscountAmount.IsNegative())
		assert.True(t, o.DiscountAmount.LessThanOrEqual(decimal.NewFromInt(200)))

		ratio := o.TotalCost.Div(o.TotalAmount).InexactFloat64()
		assert.GreaterOrEqual(t, ratio, 0.579)
		assert.LessOrEqual(t, ratio, 0.701)

		switch o.Status {
		case StatusCompleted:
			assert.Equal(t, PaymentPaid, o.PaymentStatus)
			assert.True(t, o.PaidAmount.Equal(o.FinalAmount))
		case StatusCancelled:
			assert.True(t, o.PaidAmount.IsZero())
		case StatusPending:
			assert.True(t, o.PaidAmount.LessThan(o.FinalAmount))
		default:
			t.Fatalf("unexpected status %q", o.Status)
		}
	}
}

func TestSalesOrder_FixedRatios(t *testing.T) {
	ratios := DefaultRatios()
	ratios.TaxRate = decimal.Zero
	ratios.DiscountProbability = 0
	ratios.CostRatioMin, ratios.CostRatioMax = 0.6, 0.6
	ratios.SalesStatus = StatusWeights{Completed: 1}
	s := newTestSynth(t, 2, ratios)

	o := s.SalesOrder(decimal.NewFromInt(1000), refs)

	assert.True(t, o.FinalAmount.Equal(decimal.NewFromInt(1000)))
	assert.True(t, o.TotalCost.Equal(decimal.NewFromInt(600)))
	assert.True(t, o.GrossProfit.Equal(decimal.NewFromInt(400)))
	assert.Equal(t, "40", o.ProfitMargin.String())
	assert.Equal(t, StatusCompleted, o.Status)
	assert.Equal(t, "SO-20240309-0001", o.OrderNo)
}

func TestMargin(t *testing.T) {
	tests := []struct {
		name          string
		profit, final float64
		want          string
	}{
		{"zero final", 0, 0, "0"},
		{"negative profit zero final", -10, 0, "0"},
		{"forty percent", 40, 100, "0.4"},
		{"loss", -25, 100, "-0.25"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Margin(decimal.NewFromFloat(tt.profit), decimal.NewFromFloat(tt.final))
			assert.Equal(t, tt.want, got.String())
		})
	}
}

func TestPrice_ZeroSubtotal(t *testing.T) {
	ratios := DefaultRatios()
	ratios.TaxRate = decimal.Zero
	s := newTestSynth(t, 4, ratios)

	p := s.Price(decimal.Zero)
	assert.True(t, p.Final.IsZero())
	assert.True(t, p.Margin.IsZero())
}

func TestStatusDistribution(t *testing.T) {
	s := newTestSynth(t, 5, DefaultRatios())

	counts := map[Status]int{}
	for range 5000 {
		counts[s.SalesOrder(decimal.NewFromInt(500), refs).Status]++
	}
	assert.InDelta(t, 0.92, float64(counts[StatusCompleted])/5000, 0.03)
	assert.InDelta(t, 0.06, float64(counts[StatusPending])/5000, 0.02)
	assert.InDelta(t, 0.02, float64(counts[StatusCancelled])/5000, 0.01)
}

func TestPurchaseOrder(t *testing.T) {
	s := newTestSynth(t, 6, DefaultRatios())

	o := s.PurchaseOrder(decimal.NewFromInt(5000), refs)
	assert.True(t, strings.HasPrefix(o.OrderNo, "PO-20240309-"))
	assert.Equal(t, int64(3), o.SupplierID)
	assert.True(t, o.ExpectedDate.Time().After(o.OrderDate.Time()))
	assert.NotEqual(t, StatusCancelled, o.Status)
	assert.True(t, o.FinalAmount.Equal(o.TotalAmount.Add(o.TaxAmount).Sub(o.DiscountAmount)))
}

func TestNew_RejectsBadRatios(t *testing.T) {
	ratios := DefaultRatios()
	ratios.CostRatioMin = 0.9
	ratios.CostRatioMax = 0.5
	_, err := New(rand.New(rand.NewSource(1)), ratios, "")
	assert.ErrorIs(t, err, ErrInvalidRatios)

	_, err = New(nil, DefaultRatios(), "")
	assert.ErrorIs(t, err, ErrInvalidRatios)
}

func TestDeterministicOutput(t *testing.T) {
	a := newTestSynth(t, 77, DefaultRatios())
	b := newTestSynth(t, 77, DefaultRatios())

	left, err := json.Marshal(a.SalesOrder(decimal.NewFromInt(1234), refs))
	require.NoError(t, err)
	right, err := json.Marshal(b.SalesOrder(decimal.NewFromInt(1234), refs))
	require.NoError(t, err)
	assert.JSONEq(t, string(left), string(right))

	assert.Equal(t, a.Customers(2), b.Customers(2))
}

func TestSalesOrder_WireShape(t *testing.T) {
	s := newTestSynth(t, 8, DefaultRatios())
	data, err := json.Marshal(s.SalesOrder(decimal.NewFromInt(800), refs))
	require.NoError(t, err)

	var row map[string]any
	require.NoError(t, json.Unmarshal(data, &row))
	for _, col := range []string{"order_no", "customer_id", "warehouse_id", "order_date", "total_amount",
		"tax_amount", "discount_amount", "final_amount", "total_cost", "gross_profit", "profit_margin",
		"status", "payment_status"} {
		assert.Contains(t, row, col)
	}
	assert.Equal(t, "2024-03-09 14:30:00", row["order_date"])

	var ts Timestamp
	require.NoError(t, json.Unmarshal([]byte(`"2024-03-09 14:30:00"`), &ts))
	assert.Equal(t, 14, ts.Time().Hour())
	assert.Error(t, json.Unmarshal([]byte(`"yesterday"`), &ts))
}
