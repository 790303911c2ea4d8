package sandbox

import (
	"time"

	"github.com/shopspring/decimal"
)

// Table names accepted by the import endpoint.
const (
	TableCustomers          = "customers"
	TableSuppliers          = "suppliers"
	TableItems              = "items"
	TableInventory          = "inventory"
	TableSalesOrders        = "sales_orders"
	TableSalesOrderItems    = "sales_order_items"
	TablePurchaseOrders     = "purchase_orders"
	TablePurchaseOrderItems = "purchase_order_items"
	TableWarehouses         = "warehouses"
)

// User may log in.
type User struct {
	ID           int64  `gorm:"primaryKey"`
	Username     string `gorm:"uniqueIndex;not null"`
	PasswordHash string `gorm:"not null"`
}

// Warehouse is seeded on startup; the seeder never creates warehouses.
type Warehouse struct {
	ID        int64  `gorm:"primaryKey" json:"id"`
	Code      string `gorm:"uniqueIndex;not null" json:"code"`
	Name      string `json:"name"`
	IsDefault bool   `json:"is_default"`
}

type Customer struct {
	ID            int64           `gorm:"primaryKey" json:"id"`
	Code          string          `gorm:"uniqueIndex;not null" json:"code"`
	Name          string          `gorm:"not null" json:"name"`
	ContactPerson string          `json:"contact_person"`
	Phone         string          `json:"phone"`
	Email         string          `json:"email"`
	Address       string          `json:"address"`
	CustomerType  string          `json:"customer_type"`
	CreditLimit   decimal.Decimal `gorm:"type:decimal(15,2)" json:"credit_limit"`
	Status        string          `json:"status"`
}

type Supplier struct {
	ID            int64  `gorm:"primaryKey" json:"id"`
	Code          string `gorm:"uniqueIndex;not null" json:"code"`
	Name          string `gorm:"not null" json:"name"`
	ContactPerson string `json:"contact_person"`
	Phone         string `json:"phone"`
	Email         string `json:"email"`
	Address       string `json:"address"`
	TaxNumber     string `json:"tax_number"`
	Rating        string `json:"rating"`
	Status        string `json:"status"`
}

type Item struct {
	ID            int64           `gorm:"primaryKey" json:"id"`
	Code          string          `gorm:"uniqueIndex;not null" json:"code"`
	Name          string          `gorm:"not null" json:"name"`
	Category      string          `json:"category"`
	Unit          string          `json:"unit"`
	PurchasePrice decimal.Decimal `gorm:"type:decimal(15,2)" json:"purchase_price"`
	SalePrice     decimal.Decimal `gorm:"type:decimal(15,2)" json:"sale_price"`
	SupplierID    int64           `json:"supplier_id"`
	MinStock      int             `json:"min_stock"`
	MaxStock      int             `json:"max_stock"`
	Status        string          `json:"status"`
}

type Inventory struct {
	ID          int64  `gorm:"primaryKey" json:"id"`
	ItemID      int64  `gorm:"uniqueIndex:idx_inventory_item_warehouse;not null" json:"item_id"`
	WarehouseID int64  `gorm:"uniqueIndex:idx_inventory_item_warehouse;not null" json:"warehouse_id"`
	Quantity    int    `gorm:"check:quantity >= 0" json:"quantity"`
	UpdatedAt   string `json:"updated_at"`
}

// TableName keeps the singular table name used on the wire.
func (Inventory) TableName() string { return TableInventory }

// Dates are stored as "YYYY-MM-DD hh:mm:ss" text, which orders correctly.

type SalesOrder struct {
	ID             int64           `gorm:"primaryKey" json:"id"`
	OrderNo        string          `gorm:"uniqueIndex;not null" json:"order_no"`
	CustomerID     int64           `gorm:"index" json:"customer_id"`
	WarehouseID    int64           `json:"warehouse_id"`
	OrderDate      string          `gorm:"index" json:"order_date"`
	TotalAmount    decimal.Decimal `gorm:"type:decimal(15,2)" json:"total_amount"`
	TaxAmount      decimal.Decimal `gorm:"type:decimal(15,2)" json:"tax_amount"`
	DiscountAmount decimal.Decimal `gorm:"type:decimal(15,2)" json:"discount_amount"`
	FinalAmount    decimal.Decimal `gorm:"type:decimal(15,2)" json:"final_amount"`
	PaidAmount     decimal.Decimal `gorm:"type:decimal(15,2)" json:"paid_amount"`
	TotalCost      decimal.Decimal `gorm:"type:decimal(15,2)" json:"total_cost"`
	GrossProfit    decimal.Decimal `gorm:"type:decimal(15,2)" json:"gross_profit"`
	ProfitMargin   decimal.Decimal `gorm:"type:decimal(7,2)" json:"profit_margin"`
	Status         string          `gorm:"index" json:"status"`
	PaymentStatus  string          `json:"payment_status"`
	Remarks        string          `json:"remarks"`
	CreatedAt      string          `json:"created_at"`
}

type SalesOrderItem struct {
	ID                int64           `gorm:"primaryKey" json:"id"`
	OrderID           int64           `gorm:"index;not null" json:"order_id"`
	ItemID            int64           `gorm:"not null" json:"item_id"`
	Quantity          int             `json:"quantity"`
	UnitPrice         decimal.Decimal `gorm:"type:decimal(15,2)" json:"unit_price"`
	UnitCost          decimal.Decimal `gorm:"type:decimal(15,2)" json:"unit_cost"`
	TotalPrice        decimal.Decimal `gorm:"type:decimal(15,2)" json:"total_price"`
	TotalCost         decimal.Decimal `gorm:"type:decimal(15,2)" json:"total_cost"`
	DeliveredQuantity int             `json:"delivered_quantity"`
}

type PurchaseOrder struct {
	ID             int64           `gorm:"primaryKey" json:"id"`
	OrderNo        string          `gorm:"uniqueIndex;not null" json:"order_no"`
	SupplierID     int64           `gorm:"index" json:"supplier_id"`
	WarehouseID    int64           `json:"warehouse_id"`
	OrderDate      string          `gorm:"index" json:"order_date"`
	ExpectedDate   string          `json:"expected_date"`
	TotalAmount    decimal.Decimal `gorm:"type:decimal(15,2)" json:"total_amount"`
	TaxAmount      decimal.Decimal `gorm:"type:decimal(15,2)" json:"tax_amount"`
	DiscountAmount decimal.Decimal `gorm:"type:decimal(15,2)" json:"discount_amount"`
	FinalAmount    decimal.Decimal `gorm:"type:decimal(15,2)" json:"final_amount"`
	PaidAmount     decimal.Decimal `gorm:"type:decimal(15,2)" json:"paid_amount"`
	Status         string          `json:"status"`
	PaymentStatus  string          `json:"payment_status"`
	Remarks        string          `json:"remarks"`
	CreatedAt      string          `json:"created_at"`
}

type PurchaseOrderItem struct {
	ID               int64           `gorm:"primaryKey" json:"id"`
	OrderID          int64           `gorm:"index;not null" json:"order_id"`
	ItemID           int64           `gorm:"not null" json:"item_id"`
	Quantity         int             `json:"quantity"`
	UnitPrice        decimal.Decimal `gorm:"type:decimal(15,2)" json:"unit_price"`
	TotalPrice       decimal.Decimal `gorm:"type:decimal(15,2)" json:"total_price"`
	ReceivedQuantity int             `json:"received_quantity"`
}

// ImportBatch remembers applied batch keys.
type ImportBatch struct {
	BatchID   string `gorm:"primaryKey"`
	Target    string `gorm:"not null"`
	Rows      int
	CreatedAt time.Time
}

// tableSpec describes how rows of one table are decoded and upserted.
type tableSpec struct {
	// rows returns a pointer to an empty slice of the model.
	rows func() any
	// conflict lists the unique columns used by upsert; empty means append
	// only.
	conflict []string
}

var tables = map[string]tableSpec{
	TableCustomers:          {rows: func() any { return &[]Customer{} }, conflict: []string{"code"}},
	TableSuppliers:          {rows: func() any { return &[]Supplier{} }, conflict: []string{"code"}},
	TableItems:              {rows: func() any { return &[]Item{} }, conflict: []string{"code"}},
	TableInventory:          {rows: func() any { return &[]Inventory{} }, conflict: []string{"item_id", "warehouse_id"}},
	TableSalesOrders:        {rows: func() any { return &[]SalesOrder{} }, conflict: []string{"order_no"}},
	TableSalesOrderItems:    {rows: func() any { return &[]SalesOrderItem{} }},
	TablePurchaseOrders:     {rows: func() any { return &[]PurchaseOrder{} }, conflict: []string{"order_no"}},
	TablePurchaseOrderItems: {rows: func() any { return &[]PurchaseOrderItem{} }},
}

func allModels() []any {
	return []any{
		&User{}, &Warehouse{}, &Customer{}, &Supplier{}, &Item{}, &Inventory{},
		&SalesOrder{}, &SalesOrderItem{}, &PurchaseOrder{}, &PurchaseOrderItem{},
		&ImportBatch{},
	}
}
