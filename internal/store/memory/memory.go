package memory

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"motocare/backend/internal/cache"
	"motocare/backend/internal/domain"
	"motocare/backend/internal/store"
	"motocare/backend/internal/xid"
)

// Collection names double as persistence keys: each collection is stored as
// one JSON document under "motocare_<name>" when a KV backend is attached.
const (
	colParts            = "parts"
	colTransactions     = "transactions"
	colWorkOrders       = "workOrders"
	colCustomers        = "customers"
	colSuppliers        = "suppliers"
	colPaymentSources   = "paymentSources"
	colCashTransactions = "cashTransactions"
	colUsers            = "users"
	colDepartments      = "departments"
	colSettings         = "storeSettings"

	keyPrefix = "motocare_"
)

type Store struct {
	mu                 sync.RWMutex
	partsByID          map[string]domain.Part
	transactions       []domain.InventoryTransaction
	workOrdersByID     map[string]domain.WorkOrder
	customersByID      map[string]domain.Customer
	suppliersByID      map[string]domain.Supplier
	paymentSourcesByID map[string]domain.PaymentSource
	cashTxsByID        map[string]domain.CashTransaction
	usersByID          map[string]domain.User
	departmentsByID    map[string]domain.Department
	settings           domain.StoreSettings
	auditLogs          []domain.AuditLog
	kv                 cache.KV
}

// seedUsers builds the initial accounts for dev/demo mode. The owner password
// is read from SEED_OWNER_PASSWORD; if unset a hardcoded dev default is used
// with a warning printed to stdout. These credentials are never used in
// production (the backend uses PostgreSQL when DATABASE_URL is set).
func seedUsers() map[string]domain.User {
	ownerPwd := envOr("SEED_OWNER_PASSWORD", "password123")
	if os.Getenv("SEED_OWNER_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_OWNER_PASSWORD to override.")
	}

	today := time.Now().UTC().Format("2006-01-02")
	users := map[string]domain.User{}
	for _, u := range []struct {
		id         string
		name       string
		loginPhone string
		deptID     string
	}{
		{"USR-1", "Chủ Cửa Hàng", "chucuahang", "DEPT-admin"},
		{"USR-2", "Kỹ Thuật Viên A", "kythuatvien", "DEPT-tech"},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(ownerPwd), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("[memory-store] failed to hash seed password for %s: %v", u.loginPhone, err)
		}
		users[u.id] = domain.User{
			ID:            u.id,
			Name:          u.name,
			LoginPhone:    u.loginPhone,
			Password:      string(hash),
			Status:        domain.UserStatusActive,
			DepartmentIDs: []string{u.deptID},
			CreationDate:  today,
		}
	}
	return users
}

func seedDepartments() map[string]domain.Department {
	adminPerms := map[string]domain.Permission{
		"service":     domain.PermissionLeveled(domain.PermissionLevelAll, nil),
		"inventory":   domain.PermissionLeveled(domain.PermissionLevelAll, nil),
		"sales":       domain.PermissionLeveled(domain.PermissionLevelAll, nil),
		"reports":     domain.PermissionLeveled(domain.PermissionLevelAll, nil),
		"customers":   domain.PermissionLeveled(domain.PermissionLevelAll, nil),
		"suppliers":   domain.PermissionLeveled(domain.PermissionLevelAll, nil),
		"cashflow":    domain.PermissionLeveled(domain.PermissionLevelAll, nil),
		"settings":    domain.PermissionLeveled(domain.PermissionLevelAll, nil),
		"aiAssistant": domain.PermissionToggle(true),
		"userManager": domain.PermissionToggle(true),
	}
	techPerms := map[string]domain.Permission{
		"service": domain.PermissionLeveled(domain.PermissionLevelAll, nil),
		"inventory": domain.PermissionLeveled(domain.PermissionLevelRestricted, map[string]bool{
			"view": true, "adjust": true, "transfer": false, "import": false,
		}),
		"sales":       domain.PermissionLeveled(domain.PermissionLevelNone, nil),
		"reports":     domain.PermissionLeveled(domain.PermissionLevelNone, nil),
		"customers":   domain.PermissionLeveled(domain.PermissionLevelRestricted, map[string]bool{"view": true}),
		"suppliers":   domain.PermissionLeveled(domain.PermissionLevelNone, nil),
		"cashflow":    domain.PermissionLeveled(domain.PermissionLevelNone, nil),
		"settings":    domain.PermissionLeveled(domain.PermissionLevelNone, nil),
		"aiAssistant": domain.PermissionToggle(true),
		"userManager": domain.PermissionToggle(false),
	}
	return map[string]domain.Department{
		"DEPT-admin": {ID: "DEPT-admin", Name: "Quản trị", Description: "Toàn quyền hệ thống", Permissions: adminPerms},
		"DEPT-tech":  {ID: "DEPT-tech", Name: "Kỹ thuật", Description: "Sửa chữa và kho hạn chế", Permissions: techPerms},
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func NewSeeded() *Store {
	today := time.Now().UTC().Format("2006-01-02")

	parts := []domain.Part{
		{
			ID: "PART-P001", Name: "Bugi NGK Iridium", SKU: "NGK-CPR8EAIX-9",
			Stock: map[string]int64{"main": 10, "q2": 5},
			Price: 80000, SellingPrice: 110000,
			Category: "Hệ thống điện", WarrantyPeriod: "6 tháng",
		},
		{
			ID: "PART-P002", Name: "Nhớt Motul 300V", SKU: "MOTUL-300V",
			Stock: map[string]int64{"main": 20, "q2": 10},
			Price: 150000, SellingPrice: 220000,
			Category: "Dầu nhớt", ExpiryDate: time.Now().UTC().AddDate(2, 0, 0).Format("2006-01-02"),
		},
		{
			ID: "PART-P003", Name: "Lốp Michelin City Grip", SKU: "MICHELIN-CG",
			Stock: map[string]int64{"main": 8, "q2": 3},
			Price: 450000, SellingPrice: 600000,
			Category: "Lốp xe", WarrantyPeriod: "12 tháng",
		},
	}

	partMap := make(map[string]domain.Part, len(parts))
	txs := make([]domain.InventoryTransaction, 0, len(parts)*2)
	for _, p := range parts {
		partMap[p.ID] = p
		// Seed ledger rows so recomputed stock matches the snapshot.
		for _, branchID := range []string{"main", "q2"} {
			qty := p.Stock[branchID]
			if qty == 0 {
				continue
			}
			txs = append(txs, domain.InventoryTransaction{
				ID:         xid.New("TXN"),
				Type:       domain.TxTypeStockIn,
				PartID:     p.ID,
				PartName:   p.Name,
				Quantity:   qty,
				Date:       today,
				Notes:      "Tồn kho ban đầu",
				UnitPrice:  p.Price,
				TotalPrice: qty * p.Price,
				BranchID:   branchID,
			})
		}
	}

	return &Store{
		partsByID:    partMap,
		transactions: txs,
		workOrdersByID: map[string]domain.WorkOrder{},
		customersByID: map[string]domain.Customer{
			"CUST-C001": {ID: "CUST-C001", Name: "Nguyễn Văn An", Phone: "0901234567", Vehicle: "Honda Air Blade", LicensePlate: "59X1-123.45"},
		},
		suppliersByID: map[string]domain.Supplier{
			"SUP-S001": {ID: "SUP-S001", Name: "Phụ tùng Chợ Lớn", Phone: "0283856789"},
		},
		paymentSourcesByID: map[string]domain.PaymentSource{
			"CASHSRC-cash": {ID: "CASHSRC-cash", Name: "Tiền mặt", Balance: 5000000, IsDefault: true},
			"CASHSRC-bank": {ID: "CASHSRC-bank", Name: "Ngân hàng", Balance: 20000000},
		},
		cashTxsByID:     map[string]domain.CashTransaction{},
		usersByID:       seedUsers(),
		departmentsByID: seedDepartments(),
		settings: domain.StoreSettings{
			Name:    "MotoCare Pro",
			Address: "123 Lý Thường Kiệt, Quận 10, TP.HCM",
			Phone:   "0909123456",
			Branches: []domain.Branch{
				{ID: "main", Name: "Chi nhánh Chính"},
				{ID: "q2", Name: "Chi nhánh Quận 2"},
			},
		},
		auditLogs: make([]domain.AuditLog, 0, 128),
	}
}

// NewFromKV restores a seeded store, overlaying every collection found in the
// KV backend. Missing or malformed collections fall back to the seed defaults
// with a warning. Subsequent writes snapshot the affected collections back.
func NewFromKV(ctx context.Context, kv cache.KV) *Store {
	s := NewSeeded()
	s.kv = kv

	if parts, ok := loadCollection[[]domain.Part](ctx, kv, colParts); ok {
		s.partsByID = make(map[string]domain.Part, len(parts))
		for _, p := range parts {
			s.partsByID[p.ID] = p
		}
	}
	if txs, ok := loadCollection[[]domain.InventoryTransaction](ctx, kv, colTransactions); ok {
		s.transactions = txs
	}
	if orders, ok := loadCollection[[]domain.WorkOrder](ctx, kv, colWorkOrders); ok {
		s.workOrdersByID = make(map[string]domain.WorkOrder, len(orders))
		for _, o := range orders {
			s.workOrdersByID[o.ID] = o
		}
	}
	if customers, ok := loadCollection[[]domain.Customer](ctx, kv, colCustomers); ok {
		s.customersByID = make(map[string]domain.Customer, len(customers))
		for _, c := range customers {
			s.customersByID[c.ID] = c
		}
	}
	if suppliers, ok := loadCollection[[]domain.Supplier](ctx, kv, colSuppliers); ok {
		s.suppliersByID = make(map[string]domain.Supplier, len(suppliers))
		for _, sp := range suppliers {
			s.suppliersByID[sp.ID] = sp
		}
	}
	if sources, ok := loadCollection[[]domain.PaymentSource](ctx, kv, colPaymentSources); ok {
		s.paymentSourcesByID = make(map[string]domain.PaymentSource, len(sources))
		for _, src := range sources {
			s.paymentSourcesByID[src.ID] = src
		}
	}
	if cashTxs, ok := loadCollection[[]domain.CashTransaction](ctx, kv, colCashTransactions); ok {
		s.cashTxsByID = make(map[string]domain.CashTransaction, len(cashTxs))
		for _, tx := range cashTxs {
			s.cashTxsByID[tx.ID] = tx
		}
	}
	if users, ok := loadCollection[[]domain.User](ctx, kv, colUsers); ok {
		s.usersByID = make(map[string]domain.User, len(users))
		for _, u := range users {
			s.usersByID[u.ID] = u
		}
	}
	if depts, ok := loadCollection[[]domain.Department](ctx, kv, colDepartments); ok {
		s.departmentsByID = make(map[string]domain.Department, len(depts))
		for _, d := range depts {
			s.departmentsByID[d.ID] = d
		}
	}
	if settings, ok := loadCollection[domain.StoreSettings](ctx, kv, colSettings); ok {
		s.settings = settings
	}
	return s
}

func loadCollection[T any](ctx context.Context, kv cache.KV, name string) (T, bool) {
	var value T
	data, found, err := kv.Get(ctx, keyPrefix+name)
	if err != nil {
		log.Printf("[memory-store] WARN: load %s failed, using seed defaults: %v", name, err)
		return value, false
	}
	if !found {
		return value, false
	}
	if err := json.Unmarshal(data, &value); err != nil {
		log.Printf("[memory-store] WARN: collection %s is malformed, using seed defaults: %v", name, err)
		return value, false
	}
	return value, true
}

// persistLocked snapshots the named collections. Callers must hold the write
// lock. Failures are logged, never surfaced: the in-memory state stays
// authoritative.
func (s *Store) persistLocked(ctx context.Context, collections ...string) {
	if s.kv == nil {
		return
	}
	for _, name := range collections {
		var value any
		switch name {
		case colParts:
			value = sortedByID(s.partsByID, func(p domain.Part) string { return p.ID })
		case colTransactions:
			value = s.transactions
		case colWorkOrders:
			value = sortedByID(s.workOrdersByID, func(o domain.WorkOrder) string { return o.ID })
		case colCustomers:
			value = sortedByID(s.customersByID, func(c domain.Customer) string { return c.ID })
		case colSuppliers:
			value = sortedByID(s.suppliersByID, func(sp domain.Supplier) string { return sp.ID })
		case colPaymentSources:
			value = sortedByID(s.paymentSourcesByID, func(src domain.PaymentSource) string { return src.ID })
		case colCashTransactions:
			value = sortedByID(s.cashTxsByID, func(tx domain.CashTransaction) string { return tx.ID })
		case colUsers:
			value = sortedByID(s.usersByID, func(u domain.User) string { return u.ID })
		case colDepartments:
			value = sortedByID(s.departmentsByID, func(d domain.Department) string { return d.ID })
		case colSettings:
			value = s.settings
		default:
			continue
		}
		data, err := json.Marshal(value)
		if err != nil {
			log.Printf("[memory-store] WARN: marshal %s failed: %v", name, err)
			continue
		}
		if err := s.kv.Set(ctx, keyPrefix+name, data); err != nil {
			log.Printf("[memory-store] WARN: snapshot %s failed: %v", name, err)
		}
	}
}

func sortedByID[T any](m map[string]T, id func(T) string) []T {
	out := make([]T, 0, len(m))
	for _, v := range m {
		out = append(out, v)
	}
	slices.SortFunc(out, func(a, b T) int { return cmpString(id(a), id(b)) })
	return out
}

func cmpString(a, b string) int {
	return strings.Compare(a, b)
}

func clonePart(p domain.Part) domain.Part {
	out := p
	out.Stock = make(map[string]int64, len(p.Stock))
	for k, v := range p.Stock {
		out.Stock[k] = v
	}
	return out
}

func cloneWorkOrder(o domain.WorkOrder) domain.WorkOrder {
	out := o
	out.PartsUsed = slices.Clone(o.PartsUsed)
	return out
}

func cloneDepartment(d domain.Department) domain.Department {
	out := d
	out.Permissions = make(map[string]domain.Permission, len(d.Permissions))
	for k, p := range d.Permissions {
		if p.Details != nil {
			details := make(map[string]bool, len(p.Details))
			for dk, dv := range p.Details {
				details[dk] = dv
			}
			p.Details = details
		}
		out.Permissions[k] = p
	}
	return out
}

func cloneUser(u domain.User) domain.User {
	out := u
	out.DepartmentIDs = slices.Clone(u.DepartmentIDs)
	return out
}

func cloneSettings(st domain.StoreSettings) domain.StoreSettings {
	out := st
	out.Branches = slices.Clone(st.Branches)
	return out
}

// Parts.

func (s *Store) ListParts(_ context.Context) ([]domain.Part, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	parts := make([]domain.Part, 0, len(s.partsByID))
	for _, p := range s.partsByID {
		parts = append(parts, clonePart(p))
	}
	slices.SortFunc(parts, func(a, b domain.Part) int { return cmpString(a.Name, b.Name) })
	return parts, nil
}

func (s *Store) GetPartByID(_ context.Context, id string) (*domain.Part, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, exists := s.partsByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	out := clonePart(p)
	return &out, nil
}

func (s *Store) GetPartByName(_ context.Context, name string) (*domain.Part, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, p := range s.partsByID {
		if p.Name == name {
			out := clonePart(p)
			return &out, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) GetPartBySKU(_ context.Context, sku string) (*domain.Part, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, p := range s.partsByID {
		if p.SKU == sku {
			out := clonePart(p)
			return &out, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) CreatePart(ctx context.Context, part domain.Part) (*domain.Part, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if part.Name == "" || part.SKU == "" || part.Price < 0 || part.SellingPrice < 0 {
		return nil, store.ErrInvalidTransaction
	}
	if part.ID == "" {
		part.ID = xid.New("PART")
	}
	if _, exists := s.partsByID[part.ID]; exists {
		return nil, store.ErrInvalidTransaction
	}
	if part.Stock == nil {
		part.Stock = map[string]int64{}
	}
	s.partsByID[part.ID] = clonePart(part)
	s.persistLocked(ctx, colParts)
	created := clonePart(part)
	return &created, nil
}

func (s *Store) UpdatePart(ctx context.Context, part domain.Part) (*domain.Part, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if part.Name == "" || part.SKU == "" || part.Price < 0 || part.SellingPrice < 0 {
		return nil, store.ErrInvalidTransaction
	}
	if _, exists := s.partsByID[part.ID]; !exists {
		return nil, store.ErrNotFound
	}
	if part.Stock == nil {
		part.Stock = map[string]int64{}
	}
	s.partsByID[part.ID] = clonePart(part)
	s.persistLocked(ctx, colParts)
	updated := clonePart(part)
	return &updated, nil
}

func (s *Store) DeletePart(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.partsByID[id]; !exists {
		return store.ErrNotFound
	}
	delete(s.partsByID, id)
	s.persistLocked(ctx, colParts)
	return nil
}

func (s *Store) AdjustStock(ctx context.Context, partID string, branchID string, delta int64) (*domain.Part, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, exists := s.partsByID[partID]
	if !exists {
		return nil, store.ErrNotFound
	}
	if branchID == "" {
		return nil, store.ErrInvalidTransaction
	}
	next := p.Stock[branchID] + delta
	if next < 0 {
		return nil, store.ErrInsufficientStock
	}
	p = clonePart(p)
	p.Stock[branchID] = next
	s.partsByID[partID] = p
	s.persistLocked(ctx, colParts)
	out := clonePart(p)
	return &out, nil
}

// Ledger.

func (s *Store) ListTransactions(_ context.Context) ([]domain.InventoryTransaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortTransactions(slices.Clone(s.transactions)), nil
}

func (s *Store) ListTransactionsByBranch(_ context.Context, branchID string) ([]domain.InventoryTransaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.InventoryTransaction, 0, len(s.transactions))
	for _, tx := range s.transactions {
		if tx.BranchID == branchID {
			out = append(out, tx)
		}
	}
	return sortTransactions(out), nil
}

func (s *Store) ListTransactionsBySaleID(_ context.Context, saleID string) ([]domain.InventoryTransaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.InventoryTransaction, 0, 4)
	for _, tx := range s.transactions {
		if tx.SaleID == saleID {
			out = append(out, tx)
		}
	}
	return out, nil
}

func sortTransactions(txs []domain.InventoryTransaction) []domain.InventoryTransaction {
	slices.SortFunc(txs, func(a, b domain.InventoryTransaction) int {
		if a.Date != b.Date {
			return cmpString(b.Date, a.Date)
		}
		return cmpString(b.ID, a.ID)
	})
	return txs
}

func (s *Store) CreateTransactions(ctx context.Context, txs []domain.InventoryTransaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, tx := range txs {
		if tx.PartID == "" || tx.BranchID == "" || tx.Quantity <= 0 {
			return store.ErrInvalidTransaction
		}
		if tx.Type != domain.TxTypeStockIn && tx.Type != domain.TxTypeStockOut {
			return store.ErrInvalidTransaction
		}
	}
	s.transactions = append(s.transactions, txs...)
	s.persistLocked(ctx, colTransactions)
	return nil
}

func (s *Store) DeleteTransactionsBySaleID(ctx context.Context, saleID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.transactions = slices.DeleteFunc(s.transactions, func(tx domain.InventoryTransaction) bool {
		return tx.SaleID == saleID
	})
	s.persistLocked(ctx, colTransactions)
	return nil
}

func (s *Store) StockFromLedger(_ context.Context, partID string, branchID string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var total int64
	for _, tx := range s.transactions {
		if tx.PartID == partID && tx.BranchID == branchID {
			total += tx.SignedQuantity()
		}
	}
	return total, nil
}

// Work orders.

func (s *Store) ListWorkOrders(_ context.Context, branchID string) ([]domain.WorkOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	orders := make([]domain.WorkOrder, 0, len(s.workOrdersByID))
	for _, o := range s.workOrdersByID {
		if branchID != "" && o.BranchID != branchID {
			continue
		}
		orders = append(orders, cloneWorkOrder(o))
	}
	slices.SortFunc(orders, func(a, b domain.WorkOrder) int {
		if a.CreationDate != b.CreationDate {
			return cmpString(b.CreationDate, a.CreationDate)
		}
		return cmpString(b.ID, a.ID)
	})
	return orders, nil
}

func (s *Store) GetWorkOrderByID(_ context.Context, id string) (*domain.WorkOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	o, exists := s.workOrdersByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	out := cloneWorkOrder(o)
	return &out, nil
}

func (s *Store) CreateWorkOrder(ctx context.Context, order domain.WorkOrder) (*domain.WorkOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if order.CustomerName == "" || order.BranchID == "" {
		return nil, store.ErrInvalidTransaction
	}
	if order.ID == "" {
		order.ID = xid.New("WO")
	}
	if _, exists := s.workOrdersByID[order.ID]; exists {
		return nil, store.ErrInvalidTransaction
	}
	s.workOrdersByID[order.ID] = cloneWorkOrder(order)
	s.persistLocked(ctx, colWorkOrders)
	created := cloneWorkOrder(order)
	return &created, nil
}

func (s *Store) UpdateWorkOrder(ctx context.Context, order domain.WorkOrder) (*domain.WorkOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.workOrdersByID[order.ID]; !exists {
		return nil, store.ErrNotFound
	}
	s.workOrdersByID[order.ID] = cloneWorkOrder(order)
	s.persistLocked(ctx, colWorkOrders)
	updated := cloneWorkOrder(order)
	return &updated, nil
}

func (s *Store) DeleteWorkOrder(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.workOrdersByID[id]; !exists {
		return store.ErrNotFound
	}
	delete(s.workOrdersByID, id)
	s.persistLocked(ctx, colWorkOrders)
	return nil
}

// Customers.

func (s *Store) ListCustomers(_ context.Context) ([]domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	customers := make([]domain.Customer, 0, len(s.customersByID))
	for _, c := range s.customersByID {
		customers = append(customers, c)
	}
	slices.SortFunc(customers, func(a, b domain.Customer) int { return cmpString(a.Name, b.Name) })
	return customers, nil
}

func (s *Store) GetCustomerByID(_ context.Context, id string) (*domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, exists := s.customersByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	out := c
	return &out, nil
}

func (s *Store) CreateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if customer.Name == "" {
		return nil, store.ErrInvalidTransaction
	}
	if customer.ID == "" {
		customer.ID = xid.New("CUST")
	}
	if _, exists := s.customersByID[customer.ID]; exists {
		return nil, store.ErrInvalidTransaction
	}
	s.customersByID[customer.ID] = customer
	s.persistLocked(ctx, colCustomers)
	created := customer
	return &created, nil
}

func (s *Store) UpdateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.customersByID[customer.ID]; !exists {
		return nil, store.ErrNotFound
	}
	s.customersByID[customer.ID] = customer
	s.persistLocked(ctx, colCustomers)
	updated := customer
	return &updated, nil
}

func (s *Store) DeleteCustomer(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.customersByID[id]; !exists {
		return store.ErrNotFound
	}
	delete(s.customersByID, id)
	s.persistLocked(ctx, colCustomers)
	return nil
}

// Suppliers.

func (s *Store) ListSuppliers(_ context.Context) ([]domain.Supplier, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	suppliers := make([]domain.Supplier, 0, len(s.suppliersByID))
	for _, sp := range s.suppliersByID {
		suppliers = append(suppliers, sp)
	}
	slices.SortFunc(suppliers, func(a, b domain.Supplier) int { return cmpString(a.Name, b.Name) })
	return suppliers, nil
}

func (s *Store) CreateSupplier(ctx context.Context, supplier domain.Supplier) (*domain.Supplier, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if supplier.Name == "" {
		return nil, store.ErrInvalidTransaction
	}
	if supplier.ID == "" {
		supplier.ID = xid.New("SUP")
	}
	if _, exists := s.suppliersByID[supplier.ID]; exists {
		return nil, store.ErrInvalidTransaction
	}
	s.suppliersByID[supplier.ID] = supplier
	s.persistLocked(ctx, colSuppliers)
	created := supplier
	return &created, nil
}

func (s *Store) UpdateSupplier(ctx context.Context, supplier domain.Supplier) (*domain.Supplier, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.suppliersByID[supplier.ID]; !exists {
		return nil, store.ErrNotFound
	}
	s.suppliersByID[supplier.ID] = supplier
	s.persistLocked(ctx, colSuppliers)
	updated := supplier
	return &updated, nil
}

func (s *Store) DeleteSupplier(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.suppliersByID[id]; !exists {
		return store.ErrNotFound
	}
	delete(s.suppliersByID, id)
	s.persistLocked(ctx, colSuppliers)
	return nil
}

// Payment sources and cashflow.

func (s *Store) ListPaymentSources(_ context.Context) ([]domain.PaymentSource, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sources := make([]domain.PaymentSource, 0, len(s.paymentSourcesByID))
	for _, src := range s.paymentSourcesByID {
		sources = append(sources, src)
	}
	slices.SortFunc(sources, func(a, b domain.PaymentSource) int { return cmpString(a.ID, b.ID) })
	return sources, nil
}

func (s *Store) GetPaymentSourceByID(_ context.Context, id string) (*domain.PaymentSource, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	src, exists := s.paymentSourcesByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	out := src
	return &out, nil
}

func (s *Store) CreatePaymentSource(ctx context.Context, source domain.PaymentSource) (*domain.PaymentSource, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if source.Name == "" {
		return nil, store.ErrInvalidTransaction
	}
	if source.ID == "" {
		source.ID = xid.New("CASHSRC")
	}
	if _, exists := s.paymentSourcesByID[source.ID]; exists {
		return nil, store.ErrInvalidTransaction
	}
	s.paymentSourcesByID[source.ID] = source
	s.persistLocked(ctx, colPaymentSources)
	created := source
	return &created, nil
}

func (s *Store) UpdatePaymentSource(ctx context.Context, source domain.PaymentSource) (*domain.PaymentSource, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.paymentSourcesByID[source.ID]; !exists {
		return nil, store.ErrNotFound
	}
	s.paymentSourcesByID[source.ID] = source
	s.persistLocked(ctx, colPaymentSources)
	updated := source
	return &updated, nil
}

func (s *Store) ListCashTransactions(_ context.Context, branchID string) ([]domain.CashTransaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	txs := make([]domain.CashTransaction, 0, len(s.cashTxsByID))
	for _, tx := range s.cashTxsByID {
		if branchID != "" && tx.BranchID != branchID {
			continue
		}
		txs = append(txs, tx)
	}
	slices.SortFunc(txs, func(a, b domain.CashTransaction) int {
		if a.Date != b.Date {
			return cmpString(b.Date, a.Date)
		}
		return cmpString(b.ID, a.ID)
	})
	return txs, nil
}

// CreateCashTransaction records the entry and applies its amount to the
// payment source balance in the same critical section.
func (s *Store) CreateCashTransaction(ctx context.Context, tx domain.CashTransaction) (*domain.CashTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if tx.Amount <= 0 || tx.BranchID == "" {
		return nil, store.ErrInvalidTransaction
	}
	if tx.Type != domain.CashTxIncome && tx.Type != domain.CashTxExpense {
		return nil, store.ErrInvalidTransaction
	}
	src, exists := s.paymentSourcesByID[tx.PaymentSourceID]
	if !exists {
		return nil, store.ErrNotFound
	}
	if tx.ID == "" {
		tx.ID = xid.New("CASH")
	}
	if _, exists := s.cashTxsByID[tx.ID]; exists {
		return nil, store.ErrInvalidTransaction
	}

	if tx.Type == domain.CashTxIncome {
		src.Balance += tx.Amount
	} else {
		src.Balance -= tx.Amount
	}
	s.paymentSourcesByID[src.ID] = src
	s.cashTxsByID[tx.ID] = tx
	s.persistLocked(ctx, colCashTransactions, colPaymentSources)
	created := tx
	return &created, nil
}

// DeleteCashTransaction removes the entry and reverses its balance effect.
func (s *Store) DeleteCashTransaction(ctx context.Context, id string) (*domain.CashTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, exists := s.cashTxsByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	if src, ok := s.paymentSourcesByID[tx.PaymentSourceID]; ok {
		if tx.Type == domain.CashTxIncome {
			src.Balance -= tx.Amount
		} else {
			src.Balance += tx.Amount
		}
		s.paymentSourcesByID[src.ID] = src
	}
	delete(s.cashTxsByID, id)
	s.persistLocked(ctx, colCashTransactions, colPaymentSources)
	deleted := tx
	return &deleted, nil
}

// Users and departments.

func (s *Store) ListUsers(_ context.Context) ([]domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.User, 0, len(s.usersByID))
	for _, u := range s.usersByID {
		users = append(users, cloneUser(u))
	}
	slices.SortFunc(users, func(a, b domain.User) int { return cmpString(a.Name, b.Name) })
	return users, nil
}

func (s *Store) GetUserByID(_ context.Context, id string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, exists := s.usersByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	out := cloneUser(u)
	return &out, nil
}

// GetUserByLogin matches the login phone first, then falls back to the
// display name. Both lookups are exact.
func (s *Store) GetUserByLogin(_ context.Context, login string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, u := range s.usersByID {
		if u.LoginPhone == login {
			out := cloneUser(u)
			return &out, nil
		}
	}
	for _, u := range s.usersByID {
		if u.Name == login {
			out := cloneUser(u)
			return &out, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) CreateUser(ctx context.Context, user domain.User) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if user.Name == "" || user.LoginPhone == "" || user.Password == "" {
		return nil, store.ErrInvalidTransaction
	}
	for _, existing := range s.usersByID {
		if existing.LoginPhone == user.LoginPhone {
			return nil, store.ErrInvalidTransaction
		}
	}
	if user.ID == "" {
		user.ID = xid.New("USR")
	}
	if user.Status == "" {
		user.Status = domain.UserStatusActive
	}
	s.usersByID[user.ID] = cloneUser(user)
	s.persistLocked(ctx, colUsers)
	created := cloneUser(user)
	return &created, nil
}

func (s *Store) UpdateUser(ctx context.Context, user domain.User) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.usersByID[user.ID]; !exists {
		return nil, store.ErrNotFound
	}
	for id, existing := range s.usersByID {
		if id != user.ID && existing.LoginPhone == user.LoginPhone {
			return nil, store.ErrInvalidTransaction
		}
	}
	s.usersByID[user.ID] = cloneUser(user)
	s.persistLocked(ctx, colUsers)
	updated := cloneUser(user)
	return &updated, nil
}

func (s *Store) DeleteUser(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.usersByID[id]; !exists {
		return store.ErrNotFound
	}
	delete(s.usersByID, id)
	s.persistLocked(ctx, colUsers)
	return nil
}

func (s *Store) ListDepartments(_ context.Context) ([]domain.Department, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	depts := make([]domain.Department, 0, len(s.departmentsByID))
	for _, d := range s.departmentsByID {
		depts = append(depts, cloneDepartment(d))
	}
	slices.SortFunc(depts, func(a, b domain.Department) int { return cmpString(a.Name, b.Name) })
	return depts, nil
}

func (s *Store) GetDepartmentByID(_ context.Context, id string) (*domain.Department, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, exists := s.departmentsByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	out := cloneDepartment(d)
	return &out, nil
}

func (s *Store) CreateDepartment(ctx context.Context, dept domain.Department) (*domain.Department, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if dept.Name == "" {
		return nil, store.ErrInvalidTransaction
	}
	if dept.ID == "" {
		dept.ID = xid.New("DEPT")
	}
	if _, exists := s.departmentsByID[dept.ID]; exists {
		return nil, store.ErrInvalidTransaction
	}
	if dept.Permissions == nil {
		dept.Permissions = map[string]domain.Permission{}
	}
	s.departmentsByID[dept.ID] = cloneDepartment(dept)
	s.persistLocked(ctx, colDepartments)
	created := cloneDepartment(dept)
	return &created, nil
}

func (s *Store) UpdateDepartment(ctx context.Context, dept domain.Department) (*domain.Department, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.departmentsByID[dept.ID]; !exists {
		return nil, store.ErrNotFound
	}
	if dept.Permissions == nil {
		dept.Permissions = map[string]domain.Permission{}
	}
	s.departmentsByID[dept.ID] = cloneDepartment(dept)
	s.persistLocked(ctx, colDepartments)
	updated := cloneDepartment(dept)
	return &updated, nil
}

func (s *Store) DeleteDepartment(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.departmentsByID[id]; !exists {
		return store.ErrNotFound
	}
	for _, u := range s.usersByID {
		if slices.Contains(u.DepartmentIDs, id) {
			return store.ErrInvalidTransaction
		}
	}
	delete(s.departmentsByID, id)
	s.persistLocked(ctx, colDepartments)
	return nil
}

// Settings.

func (s *Store) GetStoreSettings(_ context.Context) (*domain.StoreSettings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := cloneSettings(s.settings)
	return &out, nil
}

func (s *Store) UpdateStoreSettings(ctx context.Context, settings domain.StoreSettings) (*domain.StoreSettings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if settings.Name == "" || len(settings.Branches) == 0 {
		return nil, store.ErrInvalidTransaction
	}
	s.settings = cloneSettings(settings)
	s.persistLocked(ctx, colSettings)
	out := cloneSettings(settings)
	return &out, nil
}

// Audit log.

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = xid.New("AUD")
	}
	if entry.CreatedAt == "" {
		entry.CreatedAt = time.Now().UTC().Format(time.RFC3339)
	}
	s.auditLogs = append(s.auditLogs, entry)
	return nil
}

func (s *Store) ListAuditLogs(_ context.Context, limit int) ([]domain.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	logs := slices.Clone(s.auditLogs)
	slices.SortFunc(logs, func(a, b domain.AuditLog) int {
		if a.CreatedAt != b.CreatedAt {
			return cmpString(b.CreatedAt, a.CreatedAt)
		}
		return cmpString(b.ID, a.ID)
	})
	if limit > 0 && len(logs) > limit {
		logs = logs[:limit]
	}
	return logs, nil
}
