package synth

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Status is an order lifecycle state.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusPending   Status = "pending"
	StatusCancelled Status = "cancelled"
)

// PaymentStatus follows the order status.
type PaymentStatus string

const (
	PaymentPaid    PaymentStatus = "paid"
	PaymentPartial PaymentStatus = "partial"
	PaymentUnpaid  PaymentStatus = "unpaid"
)

// TimestampLayout is the wire format for dates with time.
const TimestampLayout = "2006-01-02 15:04:05"

// Timestamp marshals as "YYYY-MM-DD hh:mm:ss" in its own location.
type Timestamp time.Time

// Time returns the underlying time.
func (t Timestamp) Time() time.Time { return time.Time(t) }

// MarshalJSON implements json.Marshaler.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	return []byte(`"` + time.Time(t).Format(TimestampLayout) + `"`), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	parsed, err := time.ParseInLocation(TimestampLayout, s, time.Local)
	if err != nil {
		return fmt.Errorf("synth: parse timestamp %q: %w", s, err)
	}
	*t = Timestamp(parsed)
	return nil
}

// Customer is a sales counterparty.
type Customer struct {
	Code          string          `json:"code"`
	Name          string          `json:"name"`
	ContactPerson string          `json:"contact_person"`
	Phone         string          `json:"phone"`
	Email         string          `json:"email"`
	Address       string          `json:"address"`
	CustomerType  string          `json:"customer_type"`
	CreditLimit   decimal.Decimal `json:"credit_limit"`
	Status        string          `json:"status"`
}

// Supplier is a purchase counterparty.
type Supplier struct {
	Code          string `json:"code"`
	Name          string `json:"name"`
	ContactPerson string `json:"contact_person"`
	Phone         string `json:"phone"`
	Email         string `json:"email"`
	Address       string `json:"address"`
	TaxNumber     string `json:"tax_number"`
	Rating        string `json:"rating"`
	Status        string `json:"status"`
}

// Item is a catalog entry. PurchasePrice is always below SalePrice.
type Item struct {
	Code          string          `json:"code"`
	Name          string          `json:"name"`
	Category      string          `json:"category"`
	Unit          string          `json:"unit"`
	PurchasePrice decimal.Decimal `json:"purchase_price"`
	SalePrice     decimal.Decimal `json:"sale_price"`
	SupplierID    int64           `json:"supplier_id,omitempty"`
	MinStock      int             `json:"min_stock"`
	MaxStock      int             `json:"max_stock"`
	Status        string          `json:"status"`
}

// InventoryRecord is the stock of one item in one warehouse.
type InventoryRecord struct {
	ItemID      int64     `json:"item_id"`
	WarehouseID int64     `json:"warehouse_id"`
	Quantity    int       `json:"quantity"`
	UpdatedAt   Timestamp `json:"updated_at"`
}

// SalesOrder is one customer order. TotalAmount is the subtotal the
// allocator produced.
type SalesOrder struct {
	OrderNo        string          `json:"order_no"`
	CustomerID     int64           `json:"customer_id"`
	WarehouseID    int64           `json:"warehouse_id"`
	OrderDate      Timestamp       `json:"order_date"`
	TotalAmount    decimal.Decimal `json:"total_amount"`
	TaxAmount      decimal.Decimal `json:"tax_amount"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	FinalAmount    decimal.Decimal `json:"final_amount"`
	PaidAmount     decimal.Decimal `json:"paid_amount"`
	TotalCost      decimal.Decimal `json:"total_cost"`
	GrossProfit    decimal.Decimal `json:"gross_profit"`
	ProfitMargin   decimal.Decimal `json:"profit_margin"` // percent
	Status         Status          `json:"status"`
	PaymentStatus  PaymentStatus   `json:"payment_status"`
	Remarks        string          `json:"remarks,omitempty"`
	CreatedAt      Timestamp       `json:"created_at"`
}

// SalesOrderItem is one line of a sales order.
type SalesOrderItem struct {
	OrderID           int64           `json:"order_id"`
	ItemID            int64           `json:"item_id"`
	Quantity          int             `json:"quantity"`
	UnitPrice         decimal.Decimal `json:"unit_price"`
	UnitCost          decimal.Decimal `json:"unit_cost"`
	TotalPrice        decimal.Decimal `json:"total_price"`
	TotalCost         decimal.Decimal `json:"total_cost"`
	DeliveredQuantity int             `json:"delivered_quantity"`
}

// PurchaseOrder is one order placed with a supplier.
type PurchaseOrder struct {
	OrderNo        string          `json:"order_no"`
	SupplierID     int64           `json:"supplier_id"`
	WarehouseID    int64           `json:"warehouse_id"`
	OrderDate      Timestamp       `json:"order_date"`
	ExpectedDate   Timestamp       `json:"expected_date"`
	TotalAmount    decimal.Decimal `json:"total_amount"`
	TaxAmount      decimal.Decimal `json:"tax_amount"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	FinalAmount    decimal.Decimal `json:"final_amount"`
	PaidAmount     decimal.Decimal `json:"paid_amount"`
	Status         Status          `json:"status"`
	PaymentStatus  PaymentStatus   `json:"payment_status"`
	Remarks        string          `json:"remarks,omitempty"`
	CreatedAt      Timestamp       `json:"created_at"`
}

// PurchaseOrderItem is one line of a purchase order.
type PurchaseOrderItem struct {
	OrderID          int64           `json:"order_id"`
	ItemID           int64           `json:"item_id"`
	Quantity         int             `json:"quantity"`
	UnitPrice        decimal.Decimal `json:"unit_price"`
	TotalPrice       decimal.Decimal `json:"total_price"`
	ReceivedQuantity int             `json:"received_quantity"`
}

// Refs identifying destination rows. IDs are assigned by the destination and
// must be re-read before use.

// ItemRef is a resolved catalog item.
type ItemRef struct {
	ID            int64
	Code          string
	SalePrice     decimal.Decimal
	PurchasePrice decimal.Decimal
}

// OrderRef is a resolved order with its stored totals.
type OrderRef struct {
	ID          int64
	OrderNo     string
	TotalAmount decimal.Decimal
	TotalCost   decimal.Decimal
	Status      Status
}
