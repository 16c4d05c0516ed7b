package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	RoleAdmin = "admin"
	RoleSales = "sales"
)

const (
	PurchaseOrderDraft    = "draft"
	PurchaseOrderReceived = "received"
)

// Actor is the authenticated employee performing an operation.
type Actor struct {
	EmployeeID string `json:"employee_id"`
	Username   string `json:"username"`
	Role       string `json:"role"`
	StoreID    string `json:"store_id"`
}

func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin
}

type Product struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Brand     string          `json:"brand"`
	Color     string          `json:"color"`
	Specs     string          `json:"specs"`
	CostPrice decimal.Decimal `json:"cost_price"`
	ProfitBOB decimal.Decimal `json:"profit_bob"`
	Active    bool            `json:"active"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

type ProductCreateRequest struct {
	Name      string          `json:"name" validate:"required,max=160"`
	Brand     string          `json:"brand" validate:"max=80"`
	Color     string          `json:"color" validate:"max=60"`
	Specs     string          `json:"specs" validate:"max=2000"`
	CostPrice decimal.Decimal `json:"cost_price"`
	ProfitBOB decimal.Decimal `json:"profit_bob"`
}

type ProductUpdateRequest struct {
	Name      *string          `json:"name,omitempty" validate:"omitempty,max=160"`
	Brand     *string          `json:"brand,omitempty" validate:"omitempty,max=80"`
	Color     *string          `json:"color,omitempty" validate:"omitempty,max=60"`
	Specs     *string          `json:"specs,omitempty" validate:"omitempty,max=2000"`
	CostPrice *decimal.Decimal `json:"cost_price,omitempty"`
	ProfitBOB *decimal.Decimal `json:"profit_bob,omitempty"`
	Active    *bool            `json:"active,omitempty"`
}

type Store struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Address   string    `json:"address"`
	Phone     string    `json:"phone"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

type StoreCreateRequest struct {
	Name    string `json:"name" validate:"required,max=120"`
	Address string `json:"address" validate:"max=240"`
	Phone   string `json:"phone" validate:"max=40"`
}

type StoreUpdateRequest struct {
	Name    *string `json:"name,omitempty" validate:"omitempty,max=120"`
	Address *string `json:"address,omitempty" validate:"omitempty,max=240"`
	Phone   *string `json:"phone,omitempty" validate:"omitempty,max=40"`
	Active  *bool   `json:"active,omitempty"`
}

type StoreDeleteResponse struct {
	StoreID      string `json:"store_id"`
	UnitsDeleted int    `json:"units_deleted"`
}

// Unit is one physical, individually scan-coded item of stock.
type Unit struct {
	ScanCode  string     `json:"scan_code"`
	ProductID string     `json:"product_id"`
	StoreID   string     `json:"store_id"`
	Sold      bool       `json:"sold"`
	CreatedAt time.Time  `json:"created_at"`
	SoldAt    *time.Time `json:"sold_at,omitempty"`
}

type UnitFilter struct {
	ProductID string
	StoreID   string
	Sold      *bool
	ScanCodes []string
	Limit     int
}

type UnitAssignRequest struct {
	ProductID string   `json:"product_id" validate:"required"`
	StoreID   string   `json:"store_id" validate:"required"`
	ScanCodes []string `json:"scan_codes" validate:"required,min=1,max=500,dive,required,max=64"`
}

type UnitAssignResponse struct {
	Units []Unit `json:"units"`
}

type DeassignResult struct {
	StoreID   string `json:"store_id"`
	ProductID string `json:"product_id"`
	Deleted   int    `json:"deleted"`
	Retained  int    `json:"retained"`
}

type ProductStock struct {
	Product       Product         `json:"product"`
	Available     int             `json:"available"`
	FinalPriceBOB decimal.Decimal `json:"final_price_bob"`
}

type StockListResponse struct {
	StoreID      string          `json:"store_id,omitempty"`
	ExchangeRate decimal.Decimal `json:"exchange_rate"`
	Products     []ProductStock  `json:"products"`
}

type StoreStock struct {
	StoreID   string `json:"store_id"`
	StoreName string `json:"store_name"`
	Available int    `json:"available"`
}

type StockCountResponse struct {
	ProductID string `json:"product_id"`
	StoreID   string `json:"store_id,omitempty"`
	Available int    `json:"available"`
}

type Transfer struct {
	ID                 string         `json:"id"`
	OriginStoreID      string         `json:"origin_store_id"`
	DestinationStoreID string         `json:"destination_store_id"`
	EmployeeID         string         `json:"employee_id"`
	Note               string         `json:"note,omitempty"`
	CreatedAt          time.Time      `json:"created_at"`
	Items              []TransferItem `json:"items"`
}

type TransferItem struct {
	ScanCode  string `json:"scan_code"`
	ProductID string `json:"product_id"`
	Position  int    `json:"position"`
}

type TransferCreateRequest struct {
	OriginStoreID      string   `json:"origin_store_id" validate:"required"`
	DestinationStoreID string   `json:"destination_store_id" validate:"required"`
	ScanCodes          []string `json:"scan_codes" validate:"required,min=1,max=500,dive,required,max=64"`
	Note               string   `json:"note" validate:"max=240"`
}

type Sale struct {
	ID              string          `json:"id"`
	StoreID         string          `json:"store_id"`
	EmployeeID      string          `json:"employee_id"`
	PaymentMethod   string          `json:"payment_method"`
	CustomerName    string          `json:"customer_name,omitempty"`
	CustomerPhone   string          `json:"customer_phone,omitempty"`
	ExchangeRate    decimal.Decimal `json:"exchange_rate"`
	TotalBOB        decimal.Decimal `json:"total_bob"`
	TotalOverridden bool            `json:"total_overridden"`
	ItemCount       int             `json:"item_count"`
	CreatedAt       time.Time       `json:"created_at"`
	Items           []SaleItem      `json:"items"`

	// OverrideTotal is the operator supplied total, applied instead of the computed one.
	OverrideTotal *decimal.Decimal `json:"-"`
}

type SaleItem struct {
	ScanCode     string          `json:"scan_code"`
	ProductID    string          `json:"product_id"`
	Position     int             `json:"position"`
	UnitPriceBOB decimal.Decimal `json:"unit_price_bob"`
	ProfitBOB    decimal.Decimal `json:"profit_bob"`
	DeviceCodes  []string        `json:"device_codes"`
}

type SaleItemRequest struct {
	ScanCode    string   `json:"scan_code" validate:"required,max=64"`
	DeviceCodes []string `json:"device_codes" validate:"max=4,dive,required,max=64"`
}

type SaleCreateRequest struct {
	StoreID          string            `json:"store_id" validate:"required"`
	Items            []SaleItemRequest `json:"items" validate:"required,min=1,max=200,dive"`
	PaymentMethod    string            `json:"payment_method" validate:"required,oneof=cash card qr transfer"`
	CustomerName     string            `json:"customer_name" validate:"max=120"`
	CustomerPhone    string            `json:"customer_phone" validate:"max=40"`
	TotalOverrideBOB *decimal.Decimal  `json:"total_override_bob,omitempty"`
}

// MovementFilter narrows sale and transfer listings.
type MovementFilter struct {
	StoreID string
	From    time.Time
	To      time.Time
	Limit   int
}

type SaleReceipt struct {
	Sale         Sale          `json:"sale"`
	StoreName    string        `json:"store_name"`
	StoreAddress string        `json:"store_address"`
	StorePhone   string        `json:"store_phone"`
	EmployeeName string        `json:"employee_name"`
	Lines        []ReceiptLine `json:"lines"`
}

type ReceiptLine struct {
	ScanCode     string          `json:"scan_code"`
	ProductID    string          `json:"product_id"`
	ProductName  string          `json:"product_name"`
	Brand        string          `json:"brand"`
	Color        string          `json:"color"`
	Specs        string          `json:"specs"`
	DeviceCodes  []string        `json:"device_codes"`
	UnitPriceBOB decimal.Decimal `json:"unit_price_bob"`
}

// SaleReportRow is one sale line as read for reporting. SoldAt keeps the raw stored
// timestamp so that unparsable historical values can be skipped by the aggregator.
type SaleReportRow struct {
	SaleID    string
	SoldAt    string
	TotalBOB  decimal.Decimal
	ProductID string
	Position  int
	ProfitBOB decimal.Decimal
}

type MonthSummary struct {
	Month       int             `json:"month"`
	TotalSales  decimal.Decimal `json:"total_sales"`
	TotalIncome decimal.Decimal `json:"total_income"`
	Units       int             `json:"units"`
}

type TopProduct struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
	Units     int    `json:"units"`
}

type DashboardReport struct {
	Year        int             `json:"year"`
	StoreID     string          `json:"store_id,omitempty"`
	Months      []MonthSummary  `json:"months"`
	TotalSales  decimal.Decimal `json:"total_sales"`
	TotalIncome decimal.Decimal `json:"total_income"`
	UnitsSold   int             `json:"units_sold"`
	SalesCount  int             `json:"sales_count"`
	TopProducts []TopProduct    `json:"top_products"`
	SkippedRows int             `json:"skipped_rows"`
}

type ExchangeRate struct {
	ID        string          `json:"id"`
	Rate      decimal.Decimal `json:"rate"`
	CreatedBy string          `json:"created_by"`
	CreatedAt time.Time       `json:"created_at"`
}

type ExchangeRateCreateRequest struct {
	Rate decimal.Decimal `json:"rate"`
}

type Employee struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	FullName     string    `json:"full_name"`
	PasswordHash string    `json:"-"`
	Role         string    `json:"role"`
	StoreID      string    `json:"store_id"`
	Active       bool      `json:"active"`
	CreatedAt    time.Time `json:"created_at"`
}

type EmployeeCreateRequest struct {
	Username string `json:"username" validate:"required,min=4,max=40"`
	FullName string `json:"full_name" validate:"required,max=120"`
	Password string `json:"password" validate:"required,min=8,max=72"`
	Role     string `json:"role" validate:"required,oneof=admin sales"`
	StoreID  string `json:"store_id" validate:"required"`
}

type EmployeeUpdateRequest struct {
	FullName *string `json:"full_name,omitempty" validate:"omitempty,max=120"`
	Password *string `json:"password,omitempty" validate:"omitempty,min=8,max=72"`
	Role     *string `json:"role,omitempty" validate:"omitempty,oneof=admin sales"`
	StoreID  *string `json:"store_id,omitempty"`
	Active   *bool   `json:"active,omitempty"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	EmployeeID  string `json:"employee_id"`
	Role        string `json:"role"`
	StoreID     string `json:"store_id"`
	ExpiresAt   string `json:"expires_at"`
}

type Supplier struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Phone     string    `json:"phone"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

type SupplierCreateRequest struct {
	Name  string `json:"name" validate:"required,max=120"`
	Phone string `json:"phone" validate:"max=40"`
	Email string `json:"email" validate:"omitempty,email"`
}

type PurchaseOrderItem struct {
	ProductID string          `json:"product_id" validate:"required"`
	Qty       int             `json:"qty" validate:"min=1,max=1000"`
	UnitCost  decimal.Decimal `json:"unit_cost"`
}

type PurchaseOrder struct {
	ID         string              `json:"id"`
	StoreID    string              `json:"store_id"`
	SupplierID string              `json:"supplier_id"`
	Status     string              `json:"status"`
	CreatedBy  string              `json:"created_by"`
	CreatedAt  time.Time           `json:"created_at"`
	ReceivedBy string              `json:"received_by,omitempty"`
	ReceivedAt *time.Time          `json:"received_at,omitempty"`
	Items      []PurchaseOrderItem `json:"items"`
}

type PurchaseOrderCreateRequest struct {
	StoreID    string              `json:"store_id" validate:"required"`
	SupplierID string              `json:"supplier_id" validate:"required"`
	Items      []PurchaseOrderItem `json:"items" validate:"required,min=1,max=100,dive"`
}

// PurchaseOrderReceiveRequest lists the scan codes of the received units per product.
type PurchaseOrderReceiveRequest struct {
	Items []PurchaseOrderReceiveItem `json:"items" validate:"required,min=1,dive"`
}

type PurchaseOrderReceiveItem struct {
	ProductID string   `json:"product_id" validate:"required"`
	ScanCodes []string `json:"scan_codes" validate:"required,min=1,dive,required,max=64"`
}

type PurchaseOrderResponse struct {
	PurchaseOrder PurchaseOrder `json:"purchase_order"`
	Units         []Unit        `json:"units,omitempty"`
}

type AuditLog struct {
	ID         string    `json:"id"`
	StoreID    string    `json:"store_id"`
	ActorID    string    `json:"actor_id"`
	ActorRole  string    `json:"actor_role"`
	Action     string    `json:"action"`
	EntityType string    `json:"entity_type"`
	EntityID   string    `json:"entity_id"`
	Detail     string    `json:"detail"`
	CreatedAt  time.Time `json:"created_at"`
}
