package domain

// Transaction types mirror the Vietnamese labels persisted by the ledger.
const (
	TxTypeStockIn  = "Nhập kho"
	TxTypeStockOut = "Xuất kho"
)

const (
	WorkOrderStatusReceived  = "Tiếp nhận"
	WorkOrderStatusRepairing = "Đang sửa"
	WorkOrderStatusRepaired  = "Đã sửa xong"
	WorkOrderStatusReturned  = "Trả máy"
)

const (
	CashTxIncome  = "income"
	CashTxExpense = "expense"
)

const (
	UserStatusActive   = "active"
	UserStatusInactive = "inactive"
)

const (
	DefaultCustomerName = "Khách vãng lai"
	DefaultSaleNote     = "Bán lẻ tại quầy"
	UncategorizedLabel  = "Chưa phân loại"
	ServiceCategory     = "Dịch vụ"
)

// Part is a stock-keeping unit. Stock maps branch ID to on-hand quantity;
// a missing key means zero. Price is the purchase cost, SellingPrice the
// retail price, both in whole VND.
type Part struct {
	ID             string           `json:"id"`
	Name           string           `json:"name"`
	SKU            string           `json:"sku"`
	Stock          map[string]int64 `json:"stock"`
	Price          int64            `json:"price"`
	SellingPrice   int64            `json:"sellingPrice"`
	Category       string           `json:"category,omitempty"`
	Description    string           `json:"description,omitempty"`
	WarrantyPeriod string           `json:"warrantyPeriod,omitempty"`
	ExpiryDate     string           `json:"expiryDate,omitempty"`
}

// StockAt returns the on-hand quantity at a branch, zero when untracked.
func (p Part) StockAt(branchID string) int64 {
	if p.Stock == nil {
		return 0
	}
	return p.Stock[branchID]
}

// TotalStock sums on-hand quantity across all branches.
func (p Part) TotalStock() int64 {
	var total int64
	for _, qty := range p.Stock {
		total += qty
	}
	return total
}

type PartCreateRequest struct {
	Name           string `json:"name"`
	SKU            string `json:"sku"`
	BranchID       string `json:"branchId"`
	InitialStock   int64  `json:"initialStock"`
	Price          int64  `json:"price"`
	SellingPrice   int64  `json:"sellingPrice"`
	Category       string `json:"category,omitempty"`
	Description    string `json:"description,omitempty"`
	WarrantyPeriod string `json:"warrantyPeriod,omitempty"`
	ExpiryDate     string `json:"expiryDate,omitempty"`
}

type PartUpdateRequest struct {
	Name           *string `json:"name,omitempty"`
	SKU            *string `json:"sku,omitempty"`
	Price          *int64  `json:"price,omitempty"`
	SellingPrice   *int64  `json:"sellingPrice,omitempty"`
	Category       *string `json:"category,omitempty"`
	Description    *string `json:"description,omitempty"`
	WarrantyPeriod *string `json:"warrantyPeriod,omitempty"`
	ExpiryDate     *string `json:"expiryDate,omitempty"`
}

// InventoryTransaction is one ledger row: a single quantity movement of one
// part at one branch. Rows are append-only; sale edits replace whole saleID
// groups rather than mutating rows in place.
type InventoryTransaction struct {
	ID           string `json:"id"`
	Type         string `json:"type"`
	PartID       string `json:"partId"`
	PartName     string `json:"partName"`
	Quantity     int64  `json:"quantity"`
	Date         string `json:"date"`
	Notes        string `json:"notes"`
	UnitPrice    int64  `json:"unitPrice,omitempty"`
	TotalPrice   int64  `json:"totalPrice"`
	BranchID     string `json:"branchId"`
	SaleID       string `json:"saleId,omitempty"`
	TransferID   string `json:"transferId,omitempty"`
	Discount     int64  `json:"discount,omitempty"`
	CustomerID   string `json:"customerId,omitempty"`
	CustomerName string `json:"customerName,omitempty"`
	UserID       string `json:"userId,omitempty"`
	UserName     string `json:"userName,omitempty"`
}

// SignedQuantity is the stock effect of the row: positive for stock-in,
// negative for stock-out.
func (t InventoryTransaction) SignedQuantity() int64 {
	if t.Type == TxTypeStockOut {
		return -t.Quantity
	}
	return t.Quantity
}

type ReceiptItem struct {
	PartID         string `json:"partId,omitempty"`
	PartName       string `json:"partName"`
	SKU            string `json:"sku,omitempty"`
	Quantity       int64  `json:"quantity"`
	PurchasePrice  int64  `json:"purchasePrice"`
	SellingPrice   int64  `json:"sellingPrice"`
	Category       string `json:"category,omitempty"`
	WarrantyPeriod string `json:"warrantyPeriod,omitempty"`
}

type GoodsReceiptRequest struct {
	BranchID   string        `json:"branchId"`
	SupplierID string        `json:"supplierId,omitempty"`
	Items      []ReceiptItem `json:"items"`
	Notes      string        `json:"notes,omitempty"`
}

type GoodsReceiptResponse struct {
	ReceiptID string   `json:"receiptId"`
	Warnings  []string `json:"warnings,omitempty"`
}

type SaleCartItem struct {
	PartID       string `json:"partId"`
	PartName     string `json:"partName,omitempty"`
	SKU          string `json:"sku,omitempty"`
	Quantity     int64  `json:"quantity"`
	SellingPrice int64  `json:"sellingPrice"`
	Stock        int64  `json:"stock,omitempty"`
	Discount     int64  `json:"discount,omitempty"`
}

type RetailSaleRequest struct {
	BranchID      string         `json:"branchId"`
	Items         []SaleCartItem `json:"items"`
	OrderDiscount int64          `json:"orderDiscount"`
	CustomerID    string         `json:"customerId,omitempty"`
	CustomerName  string         `json:"customerName,omitempty"`
	Date          string         `json:"date,omitempty"`
	Notes         string         `json:"notes,omitempty"`
}

type RetailSaleResponse struct {
	SaleID   string `json:"saleId"`
	Subtotal int64  `json:"subtotal"`
	Discount int64  `json:"discount"`
	Total    int64  `json:"total"`
}

// Sale is a reconstructed view of one retail checkout, grouped back from the
// ledger rows sharing a saleID.
type Sale struct {
	ID            string     `json:"id"`
	Date          string     `json:"date"`
	Total         int64      `json:"total"`
	TotalDiscount int64      `json:"totalDiscount"`
	Items         []SaleLine `json:"items"`
	CustomerName  string     `json:"customerName,omitempty"`
	UserName      string     `json:"userName,omitempty"`
	Notes         string     `json:"notes,omitempty"`
}

type SaleLine struct {
	PartName   string `json:"partName"`
	Quantity   int64  `json:"quantity"`
	TotalPrice int64  `json:"totalPrice"`
}

// SuggestionRequest carries the in-progress cart a cashier wants companion
// part suggestions for.
type SuggestionRequest struct {
	BranchID string   `json:"branchId"`
	PartIDs  []string `json:"partIds"`
}

type PartSuggestion struct {
	PartID       string  `json:"partId"`
	PartName     string  `json:"partName"`
	SKU          string  `json:"sku"`
	SellingPrice int64   `json:"sellingPrice"`
	Stock        int64   `json:"stock"`
	Confidence   float64 `json:"confidence"`
	Reason       string  `json:"reason"`
}

type SaleCart struct {
	SaleID        string         `json:"saleId"`
	Items         []SaleCartItem `json:"items"`
	OrderDiscount int64          `json:"orderDiscount"`
	CustomerID    string         `json:"customerId,omitempty"`
	CustomerName  string         `json:"customerName,omitempty"`
	Date          string         `json:"date"`
	Notes         string         `json:"notes,omitempty"`
}

type BranchTransferRequest struct {
	PartID       string `json:"partId"`
	FromBranchID string `json:"fromBranchId"`
	ToBranchID   string `json:"toBranchId"`
	Quantity     int64  `json:"quantity"`
	Notes        string `json:"notes,omitempty"`
}

type BranchTransferResponse struct {
	TransferID string `json:"transferId"`
}

type ManualAdjustmentRequest struct {
	BranchID  string `json:"branchId"`
	PartID    string `json:"partId"`
	Type      string `json:"type"`
	Quantity  int64  `json:"quantity"`
	UnitPrice *int64 `json:"unitPrice,omitempty"`
	Notes     string `json:"notes,omitempty"`
}

type UsedPart struct {
	PartID   string `json:"partId"`
	PartName string `json:"partName"`
	SKU      string `json:"sku"`
	Quantity int64  `json:"quantity"`
	Price    int64  `json:"price"`
}

// WorkOrder is a repair ticket. PartsUsed is informational only: saving or
// completing a work order does not touch part stock or the ledger.
type WorkOrder struct {
	ID               string     `json:"id"`
	CreationDate     string     `json:"creationDate"`
	CustomerName     string     `json:"customerName"`
	CustomerPhone    string     `json:"customerPhone,omitempty"`
	VehicleModel     string     `json:"vehicleModel,omitempty"`
	LicensePlate     string     `json:"licensePlate,omitempty"`
	IssueDescription string     `json:"issueDescription,omitempty"`
	TechnicianName   string     `json:"technicianName,omitempty"`
	Status           string     `json:"status"`
	Total            int64      `json:"total"`
	BranchID         string     `json:"branchId"`
	LaborCost        int64      `json:"laborCost"`
	Discount         int64      `json:"discount,omitempty"`
	ProcessingType   string     `json:"processingType,omitempty"`
	CustomerQuote    int64      `json:"customerQuote,omitempty"`
	PartsUsed        []UsedPart `json:"partsUsed,omitempty"`
	Notes            string     `json:"notes,omitempty"`
}

type Customer struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Phone         string `json:"phone"`
	Vehicle       string `json:"vehicle,omitempty"`
	LicensePlate  string `json:"licensePlate,omitempty"`
	LoyaltyPoints int64  `json:"loyaltyPoints"`
}

type Supplier struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Phone string `json:"phone,omitempty"`
}

type PaymentSource struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Balance   int64  `json:"balance"`
	IsDefault bool   `json:"isDefault,omitempty"`
}

type CashContact struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name"`
}

type CashTransaction struct {
	ID              string      `json:"id"`
	Type            string      `json:"type"`
	Date            string      `json:"date"`
	Amount          int64       `json:"amount"`
	Contact         CashContact `json:"contact"`
	Notes           string      `json:"notes,omitempty"`
	PaymentSourceID string      `json:"paymentSourceId"`
	BranchID        string      `json:"branchId"`
}

type Branch struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type StoreSettings struct {
	Name              string   `json:"name"`
	Address           string   `json:"address,omitempty"`
	Phone             string   `json:"phone,omitempty"`
	BankName          string   `json:"bankName,omitempty"`
	BankAccountNumber string   `json:"bankAccountNumber,omitempty"`
	BankAccountHolder string   `json:"bankAccountHolder,omitempty"`
	Branches          []Branch `json:"branches"`
}

type User struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	LoginPhone    string   `json:"loginPhone"`
	Password      string   `json:"password,omitempty"`
	Email         string   `json:"email,omitempty"`
	Status        string   `json:"status"`
	DepartmentIDs []string `json:"departmentIds"`
	CreationDate  string   `json:"creationDate"`
	Address       string   `json:"address,omitempty"`
}

type Department struct {
	ID          string                `json:"id"`
	Name        string                `json:"name"`
	Description string                `json:"description,omitempty"`
	Permissions map[string]Permission `json:"permissions"`
}

type LoginRequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"accessToken"`
	UserID      string `json:"userId"`
	Name        string `json:"name"`
	ExpiresAt   string `json:"expiresAt"`
}

type Actor struct {
	UserID        string
	Name          string
	DepartmentIDs []string
}

type AuditLog struct {
	ID         string `json:"id"`
	ActorID    string `json:"actorId"`
	ActorName  string `json:"actorName"`
	Action     string `json:"action"`
	EntityType string `json:"entityType"`
	EntityID   string `json:"entityId"`
	Detail     string `json:"detail,omitempty"`
	CreatedAt  string `json:"createdAt"`
}

type CSVImportResult struct {
	Added   int `json:"added"`
	Updated int `json:"updated"`
	Skipped int `json:"skipped"`
}

type DiagnoseRequest struct {
	Symptom       string `json:"symptom"`
	ImageBase64   string `json:"imageBase64,omitempty"`
	ImageMimeType string `json:"imageMimeType,omitempty"`
}

type DiagnoseResponse struct {
	Advice string `json:"advice"`
}

// Branch Query Layer views.

type InventorySummary struct {
	BranchID      string `json:"branchId"`
	TotalQuantity int64  `json:"totalQuantity"`
	TotalValue    int64  `json:"totalValue"`
}

type SlowMovingPart struct {
	Part              Part   `json:"part"`
	LastSoldDate      string `json:"lastSoldDate"`
	DaysSinceLastSale int64  `json:"daysSinceLastSale"`
}

type InventoryReport struct {
	LowStock     []Part           `json:"lowStock"`
	ExpiringSoon []Part           `json:"expiringSoon"`
	SlowMoving   []SlowMovingPart `json:"slowMoving"`
}

type RevenueBucket struct {
	Label   string `json:"label"`
	Revenue int64  `json:"revenue"`
	Cost    int64  `json:"cost"`
	Profit  int64  `json:"profit"`
}

type ProductSales struct {
	PartName string `json:"partName"`
	SKU      string `json:"sku"`
	Quantity int64  `json:"quantity"`
	Revenue  int64  `json:"revenue"`
}

type CategoryRevenue struct {
	Category   string  `json:"category"`
	Revenue    int64   `json:"revenue"`
	Percentage float64 `json:"percentage"`
}

type RevenueReport struct {
	Buckets      []RevenueBucket   `json:"buckets"`
	TotalRevenue int64             `json:"totalRevenue"`
	TotalCost    int64             `json:"totalCost"`
	TotalProfit  int64             `json:"totalProfit"`
	ByProduct    []ProductSales    `json:"byProduct"`
	ByCategory   []CategoryRevenue `json:"byCategory"`
}

type DashboardSummary struct {
	OpenWorkOrders int64 `json:"openWorkOrders"`
	LowStockParts  int64 `json:"lowStockParts"`
	TodayRevenue   int64 `json:"todayRevenue"`
}
