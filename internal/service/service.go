package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"motocare/backend/internal/domain"
	"motocare/backend/internal/recommendation"
	"motocare/backend/internal/store"
	"motocare/backend/internal/xid"
)

var (
	ErrForbidden          = errors.New("forbidden")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

const aiFallbackMessage = "Đã xảy ra lỗi khi kết nối với trợ lý AI. Vui lòng thử lại sau."

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

// DiagnosisAssistant produces repair advice for a symptom description, with
// an optional base64-encoded photo.
type DiagnosisAssistant interface {
	Diagnose(ctx context.Context, symptom string, imageBase64 string, imageMimeType string) (string, error)
}

type Service struct {
	repo        store.Repository
	assistant   DiagnosisAssistant
	suggestions *recommendation.Engine
}

func New(repo store.Repository, assistant DiagnosisAssistant) *Service {
	return &Service{
		repo:        repo,
		assistant:   assistant,
		suggestions: recommendation.NewEngine(),
	}
}

// requirePermission resolves the actor's departments and checks the module
// grant. A missing actor fails closed.
func (s *Service) requirePermission(ctx context.Context, module string, action string) error {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return fmt.Errorf("%w: %s.%s", ErrForbidden, module, action)
	}
	for _, deptID := range actor.DepartmentIDs {
		dept, err := s.repo.GetDepartmentByID(ctx, deptID)
		if err != nil {
			if !errors.Is(err, store.ErrNotFound) {
				log.Printf("[service] WARN: department lookup failed id=%s: %v", deptID, err)
			}
			continue
		}
		if perm, exists := dept.Permissions[module]; exists && perm.Grants(action) {
			return nil
		}
	}
	return fmt.Errorf("%w: %s.%s", ErrForbidden, module, action)
}

func (s *Service) logAudit(ctx context.Context, action string, entityType string, entityID string, detail string) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		actor = domain.Actor{UserID: "system", Name: "system"}
	}

	if err := s.repo.CreateAuditLog(ctx, domain.AuditLog{
		ID:         xid.New("AUD"),
		ActorID:    actor.UserID,
		ActorName:  actor.Name,
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Detail:     detail,
		CreatedAt:  time.Now().UTC().Format(time.RFC3339),
	}); err != nil {
		log.Printf("[audit] WARN: failed to write audit log action=%s entity=%s/%s: %v", action, entityType, entityID, err)
	}
}

func today() string {
	return time.Now().UTC().Format("2006-01-02")
}

func parseDay(value string) (time.Time, error) {
	return time.Parse("2006-01-02", value)
}

// Authenticate matches a login (phone or display name) against the stored
// bcrypt hash. Inactive accounts cannot log in.
func (s *Service) Authenticate(ctx context.Context, login string, password string) (domain.User, error) {
	login = strings.TrimSpace(login)
	if login == "" || password == "" {
		return domain.User{}, ErrInvalidCredentials
	}

	user, err := s.repo.GetUserByLogin(ctx, login)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.User{}, ErrInvalidCredentials
		}
		return domain.User{}, err
	}
	if user.Status != domain.UserStatusActive {
		return domain.User{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		return domain.User{}, ErrInvalidCredentials
	}

	out := *user
	out.Password = ""
	return out, nil
}

// Parts.

func (s *Service) ListParts(ctx context.Context) ([]domain.Part, error) {
	if err := s.requirePermission(ctx, "inventory", "view"); err != nil {
		return nil, err
	}
	return s.repo.ListParts(ctx)
}

func (s *Service) GetPart(ctx context.Context, id string) (domain.Part, error) {
	if err := s.requirePermission(ctx, "inventory", "view"); err != nil {
		return domain.Part{}, err
	}
	part, err := s.repo.GetPartByID(ctx, id)
	if err != nil {
		return domain.Part{}, err
	}
	return *part, nil
}

func (s *Service) CreatePart(ctx context.Context, req domain.PartCreateRequest) (domain.Part, error) {
	if err := s.requirePermission(ctx, "inventory", "adjust"); err != nil {
		return domain.Part{}, err
	}

	req.Name = strings.TrimSpace(req.Name)
	req.SKU = strings.ToUpper(strings.TrimSpace(req.SKU))
	if req.Name == "" || req.SKU == "" || req.Price < 0 || req.SellingPrice < 0 || req.InitialStock < 0 {
		return domain.Part{}, store.ErrInvalidTransaction
	}
	if req.InitialStock > 0 && req.BranchID == "" {
		return domain.Part{}, store.ErrInvalidTransaction
	}
	if _, err := s.repo.GetPartBySKU(ctx, req.SKU); err == nil {
		return domain.Part{}, store.ErrInvalidTransaction
	} else if !errors.Is(err, store.ErrNotFound) {
		return domain.Part{}, err
	}

	part := domain.Part{
		ID:             xid.New("PART"),
		Name:           req.Name,
		SKU:            req.SKU,
		Stock:          map[string]int64{},
		Price:          req.Price,
		SellingPrice:   req.SellingPrice,
		Category:       req.Category,
		Description:    req.Description,
		WarrantyPeriod: req.WarrantyPeriod,
		ExpiryDate:     req.ExpiryDate,
	}
	if req.InitialStock > 0 {
		part.Stock[req.BranchID] = req.InitialStock
	}

	created, err := s.repo.CreatePart(ctx, part)
	if err != nil {
		return domain.Part{}, err
	}

	if req.InitialStock > 0 {
		err := s.repo.CreateTransactions(ctx, []domain.InventoryTransaction{{
			ID:         xid.New("TXN"),
			Type:       domain.TxTypeStockIn,
			PartID:     created.ID,
			PartName:   created.Name,
			Quantity:   req.InitialStock,
			Date:       today(),
			Notes:      "Tồn kho ban đầu",
			UnitPrice:  created.Price,
			TotalPrice: req.InitialStock * created.Price,
			BranchID:   req.BranchID,
		}})
		if err != nil {
			return domain.Part{}, err
		}
	}

	s.logAudit(ctx, "part_create", "part", created.ID, fmt.Sprintf("name=%s,sku=%s,stock=%d", created.Name, created.SKU, req.InitialStock))
	return *created, nil
}

func (s *Service) UpdatePart(ctx context.Context, id string, req domain.PartUpdateRequest) (domain.Part, error) {
	if err := s.requirePermission(ctx, "inventory", "adjust"); err != nil {
		return domain.Part{}, err
	}

	existing, err := s.repo.GetPartByID(ctx, id)
	if err != nil {
		return domain.Part{}, err
	}

	updated := *existing
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return domain.Part{}, store.ErrInvalidTransaction
		}
		updated.Name = name
	}
	if req.SKU != nil {
		sku := strings.ToUpper(strings.TrimSpace(*req.SKU))
		if sku == "" {
			return domain.Part{}, store.ErrInvalidTransaction
		}
		if other, err := s.repo.GetPartBySKU(ctx, sku); err == nil && other.ID != id {
			return domain.Part{}, store.ErrInvalidTransaction
		}
		updated.SKU = sku
	}
	if req.Price != nil {
		if *req.Price < 0 {
			return domain.Part{}, store.ErrInvalidTransaction
		}
		updated.Price = *req.Price
	}
	if req.SellingPrice != nil {
		if *req.SellingPrice < 0 {
			return domain.Part{}, store.ErrInvalidTransaction
		}
		updated.SellingPrice = *req.SellingPrice
	}
	if req.Category != nil {
		updated.Category = *req.Category
	}
	if req.Description != nil {
		updated.Description = *req.Description
	}
	if req.WarrantyPeriod != nil {
		updated.WarrantyPeriod = *req.WarrantyPeriod
	}
	if req.ExpiryDate != nil {
		updated.ExpiryDate = *req.ExpiryDate
	}

	saved, err := s.repo.UpdatePart(ctx, updated)
	if err != nil {
		return domain.Part{}, err
	}

	s.logAudit(ctx, "part_update", "part", saved.ID, fmt.Sprintf("name=%s,price=%d,sellingPrice=%d", saved.Name, saved.Price, saved.SellingPrice))
	return *saved, nil
}

func (s *Service) DeletePart(ctx context.Context, id string) error {
	if err := s.requirePermission(ctx, "inventory", "adjust"); err != nil {
		return err
	}
	if err := s.repo.DeletePart(ctx, id); err != nil {
		return err
	}
	s.logAudit(ctx, "part_delete", "part", id, "")
	return nil
}

// Work orders.

func (s *Service) ListWorkOrders(ctx context.Context, branchID string) ([]domain.WorkOrder, error) {
	if err := s.requirePermission(ctx, "service", "view"); err != nil {
		return nil, err
	}
	return s.repo.ListWorkOrders(ctx, branchID)
}

func validWorkOrderStatus(status string) bool {
	switch status {
	case domain.WorkOrderStatusReceived, domain.WorkOrderStatusRepairing,
		domain.WorkOrderStatusRepaired, domain.WorkOrderStatusReturned:
		return true
	}
	return false
}

// workOrderTotal is labor plus parts minus the order discount. PartsUsed
// quantities are informational and never touch the stock ledger.
func workOrderTotal(order domain.WorkOrder) int64 {
	total := order.LaborCost
	for _, p := range order.PartsUsed {
		total += p.Price * p.Quantity
	}
	total -= order.Discount
	if total < 0 {
		total = 0
	}
	return total
}

func (s *Service) CreateWorkOrder(ctx context.Context, order domain.WorkOrder) (domain.WorkOrder, error) {
	if err := s.requirePermission(ctx, "service", "create"); err != nil {
		return domain.WorkOrder{}, err
	}

	order.CustomerName = strings.TrimSpace(order.CustomerName)
	if order.CustomerName == "" || order.BranchID == "" {
		return domain.WorkOrder{}, store.ErrInvalidTransaction
	}
	if order.Status == "" {
		order.Status = domain.WorkOrderStatusReceived
	}
	if !validWorkOrderStatus(order.Status) {
		return domain.WorkOrder{}, store.ErrInvalidTransaction
	}
	if order.LaborCost < 0 || order.Discount < 0 {
		return domain.WorkOrder{}, store.ErrInvalidTransaction
	}
	for _, p := range order.PartsUsed {
		if p.Quantity <= 0 || p.Price < 0 {
			return domain.WorkOrder{}, store.ErrInvalidTransaction
		}
	}
	if order.CreationDate == "" {
		order.CreationDate = today()
	}
	order.ID = xid.New("WO")
	order.Total = workOrderTotal(order)

	created, err := s.repo.CreateWorkOrder(ctx, order)
	if err != nil {
		return domain.WorkOrder{}, err
	}
	s.logAudit(ctx, "workorder_create", "workorder", created.ID, fmt.Sprintf("customer=%s,status=%s", created.CustomerName, created.Status))
	return *created, nil
}

func (s *Service) UpdateWorkOrder(ctx context.Context, order domain.WorkOrder) (domain.WorkOrder, error) {
	if err := s.requirePermission(ctx, "service", "edit"); err != nil {
		return domain.WorkOrder{}, err
	}

	existing, err := s.repo.GetWorkOrderByID(ctx, order.ID)
	if err != nil {
		return domain.WorkOrder{}, err
	}
	if order.CustomerName == "" {
		order.CustomerName = existing.CustomerName
	}
	if order.BranchID == "" {
		order.BranchID = existing.BranchID
	}
	if order.CreationDate == "" {
		order.CreationDate = existing.CreationDate
	}
	if !validWorkOrderStatus(order.Status) {
		return domain.WorkOrder{}, store.ErrInvalidTransaction
	}
	if order.LaborCost < 0 || order.Discount < 0 {
		return domain.WorkOrder{}, store.ErrInvalidTransaction
	}
	for _, p := range order.PartsUsed {
		if p.Quantity <= 0 || p.Price < 0 {
			return domain.WorkOrder{}, store.ErrInvalidTransaction
		}
	}
	order.Total = workOrderTotal(order)

	saved, err := s.repo.UpdateWorkOrder(ctx, order)
	if err != nil {
		return domain.WorkOrder{}, err
	}
	s.logAudit(ctx, "workorder_update", "workorder", saved.ID, fmt.Sprintf("status=%s,total=%d", saved.Status, saved.Total))
	return *saved, nil
}

func (s *Service) DeleteWorkOrder(ctx context.Context, id string) error {
	if err := s.requirePermission(ctx, "service", "delete"); err != nil {
		return err
	}
	if err := s.repo.DeleteWorkOrder(ctx, id); err != nil {
		return err
	}
	s.logAudit(ctx, "workorder_delete", "workorder", id, "")
	return nil
}

// Customers.

func (s *Service) ListCustomers(ctx context.Context) ([]domain.Customer, error) {
	if err := s.requirePermission(ctx, "customers", "view"); err != nil {
		return nil, err
	}
	return s.repo.ListCustomers(ctx)
}

func (s *Service) CreateCustomer(ctx context.Context, customer domain.Customer) (domain.Customer, error) {
	if err := s.requirePermission(ctx, "customers", "create"); err != nil {
		return domain.Customer{}, err
	}
	customer.Name = strings.TrimSpace(customer.Name)
	if customer.Name == "" {
		return domain.Customer{}, store.ErrInvalidTransaction
	}
	customer.ID = xid.New("CUST")
	created, err := s.repo.CreateCustomer(ctx, customer)
	if err != nil {
		return domain.Customer{}, err
	}
	s.logAudit(ctx, "customer_create", "customer", created.ID, "name="+created.Name)
	return *created, nil
}

func (s *Service) UpdateCustomer(ctx context.Context, customer domain.Customer) (domain.Customer, error) {
	if err := s.requirePermission(ctx, "customers", "edit"); err != nil {
		return domain.Customer{}, err
	}
	if strings.TrimSpace(customer.Name) == "" {
		return domain.Customer{}, store.ErrInvalidTransaction
	}
	saved, err := s.repo.UpdateCustomer(ctx, customer)
	if err != nil {
		return domain.Customer{}, err
	}
	s.logAudit(ctx, "customer_update", "customer", saved.ID, "name="+saved.Name)
	return *saved, nil
}

func (s *Service) DeleteCustomer(ctx context.Context, id string) error {
	if err := s.requirePermission(ctx, "customers", "delete"); err != nil {
		return err
	}
	if err := s.repo.DeleteCustomer(ctx, id); err != nil {
		return err
	}
	s.logAudit(ctx, "customer_delete", "customer", id, "")
	return nil
}

// Suppliers.

func (s *Service) ListSuppliers(ctx context.Context) ([]domain.Supplier, error) {
	if err := s.requirePermission(ctx, "suppliers", "view"); err != nil {
		return nil, err
	}
	return s.repo.ListSuppliers(ctx)
}

func (s *Service) CreateSupplier(ctx context.Context, supplier domain.Supplier) (domain.Supplier, error) {
	if err := s.requirePermission(ctx, "suppliers", "create"); err != nil {
		return domain.Supplier{}, err
	}
	supplier.Name = strings.TrimSpace(supplier.Name)
	if supplier.Name == "" {
		return domain.Supplier{}, store.ErrInvalidTransaction
	}
	supplier.ID = xid.New("SUP")
	created, err := s.repo.CreateSupplier(ctx, supplier)
	if err != nil {
		return domain.Supplier{}, err
	}
	s.logAudit(ctx, "supplier_create", "supplier", created.ID, "name="+created.Name)
	return *created, nil
}

func (s *Service) UpdateSupplier(ctx context.Context, supplier domain.Supplier) (domain.Supplier, error) {
	if err := s.requirePermission(ctx, "suppliers", "edit"); err != nil {
		return domain.Supplier{}, err
	}
	if strings.TrimSpace(supplier.Name) == "" {
		return domain.Supplier{}, store.ErrInvalidTransaction
	}
	saved, err := s.repo.UpdateSupplier(ctx, supplier)
	if err != nil {
		return domain.Supplier{}, err
	}
	s.logAudit(ctx, "supplier_update", "supplier", saved.ID, "name="+saved.Name)
	return *saved, nil
}

func (s *Service) DeleteSupplier(ctx context.Context, id string) error {
	if err := s.requirePermission(ctx, "suppliers", "delete"); err != nil {
		return err
	}
	if err := s.repo.DeleteSupplier(ctx, id); err != nil {
		return err
	}
	s.logAudit(ctx, "supplier_delete", "supplier", id, "")
	return nil
}

// Cashflow.

func (s *Service) ListPaymentSources(ctx context.Context) ([]domain.PaymentSource, error) {
	if err := s.requirePermission(ctx, "cashflow", "view"); err != nil {
		return nil, err
	}
	return s.repo.ListPaymentSources(ctx)
}

func (s *Service) CreatePaymentSource(ctx context.Context, source domain.PaymentSource) (domain.PaymentSource, error) {
	if err := s.requirePermission(ctx, "cashflow", "create"); err != nil {
		return domain.PaymentSource{}, err
	}
	source.Name = strings.TrimSpace(source.Name)
	if source.Name == "" || source.Balance < 0 {
		return domain.PaymentSource{}, store.ErrInvalidTransaction
	}
	source.ID = xid.New("CASHSRC")
	created, err := s.repo.CreatePaymentSource(ctx, source)
	if err != nil {
		return domain.PaymentSource{}, err
	}
	s.logAudit(ctx, "paymentsource_create", "paymentsource", created.ID, "name="+created.Name)
	return *created, nil
}

func (s *Service) ListCashTransactions(ctx context.Context, branchID string) ([]domain.CashTransaction, error) {
	if err := s.requirePermission(ctx, "cashflow", "view"); err != nil {
		return nil, err
	}
	return s.repo.ListCashTransactions(ctx, branchID)
}

func (s *Service) RecordCashTransaction(ctx context.Context, tx domain.CashTransaction) (domain.CashTransaction, error) {
	if err := s.requirePermission(ctx, "cashflow", "create"); err != nil {
		return domain.CashTransaction{}, err
	}
	if tx.Amount <= 0 || tx.BranchID == "" || tx.PaymentSourceID == "" {
		return domain.CashTransaction{}, store.ErrInvalidTransaction
	}
	if tx.Type != domain.CashTxIncome && tx.Type != domain.CashTxExpense {
		return domain.CashTransaction{}, store.ErrInvalidTransaction
	}
	if tx.Date == "" {
		tx.Date = today()
	} else if _, err := parseDay(tx.Date); err != nil {
		return domain.CashTransaction{}, store.ErrInvalidTransaction
	}
	tx.ID = xid.New("CASH")

	created, err := s.repo.CreateCashTransaction(ctx, tx)
	if err != nil {
		return domain.CashTransaction{}, err
	}
	s.logAudit(ctx, "cashtx_create", "cashtx", created.ID, fmt.Sprintf("type=%s,amount=%d", created.Type, created.Amount))
	return *created, nil
}

func (s *Service) DeleteCashTransaction(ctx context.Context, id string) error {
	if err := s.requirePermission(ctx, "cashflow", "delete"); err != nil {
		return err
	}
	deleted, err := s.repo.DeleteCashTransaction(ctx, id)
	if err != nil {
		return err
	}
	s.logAudit(ctx, "cashtx_delete", "cashtx", deleted.ID, fmt.Sprintf("type=%s,amount=%d", deleted.Type, deleted.Amount))
	return nil
}

// Users and departments.

func (s *Service) ListUsers(ctx context.Context) ([]domain.User, error) {
	if err := s.requirePermission(ctx, "userManager", "view"); err != nil {
		return nil, err
	}
	users, err := s.repo.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	for i := range users {
		users[i].Password = ""
	}
	return users, nil
}

func (s *Service) CreateUser(ctx context.Context, user domain.User) (domain.User, error) {
	if err := s.requirePermission(ctx, "userManager", "create"); err != nil {
		return domain.User{}, err
	}
	user.Name = strings.TrimSpace(user.Name)
	user.LoginPhone = strings.TrimSpace(user.LoginPhone)
	if user.Name == "" || user.LoginPhone == "" || user.Password == "" {
		return domain.User{}, store.ErrInvalidTransaction
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(user.Password), bcrypt.DefaultCost)
	if err != nil {
		return domain.User{}, fmt.Errorf("hash password: %w", err)
	}
	user.ID = xid.New("USR")
	user.Password = string(hash)
	if user.Status == "" {
		user.Status = domain.UserStatusActive
	}
	if user.CreationDate == "" {
		user.CreationDate = today()
	}

	created, err := s.repo.CreateUser(ctx, user)
	if err != nil {
		return domain.User{}, err
	}
	s.logAudit(ctx, "user_create", "user", created.ID, "login="+created.LoginPhone)
	out := *created
	out.Password = ""
	return out, nil
}

// UpdateUser keeps the stored hash when the request omits the password.
func (s *Service) UpdateUser(ctx context.Context, user domain.User) (domain.User, error) {
	if err := s.requirePermission(ctx, "userManager", "edit"); err != nil {
		return domain.User{}, err
	}
	existing, err := s.repo.GetUserByID(ctx, user.ID)
	if err != nil {
		return domain.User{}, err
	}
	if user.Name == "" || user.LoginPhone == "" {
		return domain.User{}, store.ErrInvalidTransaction
	}
	if user.Password == "" {
		user.Password = existing.Password
	} else {
		hash, err := bcrypt.GenerateFromPassword([]byte(user.Password), bcrypt.DefaultCost)
		if err != nil {
			return domain.User{}, fmt.Errorf("hash password: %w", err)
		}
		user.Password = string(hash)
	}
	if user.Status == "" {
		user.Status = existing.Status
	}
	if user.CreationDate == "" {
		user.CreationDate = existing.CreationDate
	}

	saved, err := s.repo.UpdateUser(ctx, user)
	if err != nil {
		return domain.User{}, err
	}
	s.logAudit(ctx, "user_update", "user", saved.ID, "login="+saved.LoginPhone)
	out := *saved
	out.Password = ""
	return out, nil
}

func (s *Service) DeleteUser(ctx context.Context, id string) error {
	if err := s.requirePermission(ctx, "userManager", "delete"); err != nil {
		return err
	}
	if actor, ok := ActorFromContext(ctx); ok && actor.UserID == id {
		return store.ErrInvalidTransaction
	}
	if err := s.repo.DeleteUser(ctx, id); err != nil {
		return err
	}
	s.logAudit(ctx, "user_delete", "user", id, "")
	return nil
}

func (s *Service) ListDepartments(ctx context.Context) ([]domain.Department, error) {
	if err := s.requirePermission(ctx, "userManager", "view"); err != nil {
		return nil, err
	}
	return s.repo.ListDepartments(ctx)
}

func (s *Service) CreateDepartment(ctx context.Context, dept domain.Department) (domain.Department, error) {
	if err := s.requirePermission(ctx, "userManager", "create"); err != nil {
		return domain.Department{}, err
	}
	dept.Name = strings.TrimSpace(dept.Name)
	if dept.Name == "" {
		return domain.Department{}, store.ErrInvalidTransaction
	}
	dept.ID = xid.New("DEPT")
	created, err := s.repo.CreateDepartment(ctx, dept)
	if err != nil {
		return domain.Department{}, err
	}
	s.logAudit(ctx, "department_create", "department", created.ID, "name="+created.Name)
	return *created, nil
}

func (s *Service) UpdateDepartment(ctx context.Context, dept domain.Department) (domain.Department, error) {
	if err := s.requirePermission(ctx, "userManager", "edit"); err != nil {
		return domain.Department{}, err
	}
	if strings.TrimSpace(dept.Name) == "" {
		return domain.Department{}, store.ErrInvalidTransaction
	}
	saved, err := s.repo.UpdateDepartment(ctx, dept)
	if err != nil {
		return domain.Department{}, err
	}
	s.logAudit(ctx, "department_update", "department", saved.ID, "name="+saved.Name)
	return *saved, nil
}

func (s *Service) DeleteDepartment(ctx context.Context, id string) error {
	if err := s.requirePermission(ctx, "userManager", "delete"); err != nil {
		return err
	}
	if err := s.repo.DeleteDepartment(ctx, id); err != nil {
		return err
	}
	s.logAudit(ctx, "department_delete", "department", id, "")
	return nil
}

// Settings.

func (s *Service) GetStoreSettings(ctx context.Context) (domain.StoreSettings, error) {
	settings, err := s.repo.GetStoreSettings(ctx)
	if err != nil {
		return domain.StoreSettings{}, err
	}
	return *settings, nil
}

func (s *Service) UpdateStoreSettings(ctx context.Context, settings domain.StoreSettings) (domain.StoreSettings, error) {
	if err := s.requirePermission(ctx, "settings", "edit"); err != nil {
		return domain.StoreSettings{}, err
	}
	settings.Name = strings.TrimSpace(settings.Name)
	if settings.Name == "" || len(settings.Branches) == 0 {
		return domain.StoreSettings{}, store.ErrInvalidTransaction
	}
	seen := map[string]bool{}
	for _, b := range settings.Branches {
		if b.ID == "" || b.Name == "" || seen[b.ID] {
			return domain.StoreSettings{}, store.ErrInvalidTransaction
		}
		seen[b.ID] = true
	}
	saved, err := s.repo.UpdateStoreSettings(ctx, settings)
	if err != nil {
		return domain.StoreSettings{}, err
	}
	s.logAudit(ctx, "settings_update", "settings", "store", "name="+saved.Name)
	return *saved, nil
}

func (s *Service) branchName(ctx context.Context, branchID string) string {
	settings, err := s.repo.GetStoreSettings(ctx)
	if err != nil {
		return branchID
	}
	for _, b := range settings.Branches {
		if b.ID == branchID {
			return b.Name
		}
	}
	return branchID
}

func (s *Service) branchExists(ctx context.Context, branchID string) (bool, error) {
	settings, err := s.repo.GetStoreSettings(ctx)
	if err != nil {
		return false, err
	}
	for _, b := range settings.Branches {
		if b.ID == branchID {
			return true, nil
		}
	}
	return false, nil
}

// Audit trail.

func (s *Service) ListAuditLogs(ctx context.Context, limit int) ([]domain.AuditLog, error) {
	if err := s.requirePermission(ctx, "userManager", "view"); err != nil {
		return nil, err
	}
	if limit < 1 {
		limit = 100
	}
	return s.repo.ListAuditLogs(ctx, limit)
}

// AI assistant.

// Diagnose asks the assistant for repair advice. Connectivity failures are
// absorbed into a fixed user-facing message instead of an error.
func (s *Service) Diagnose(ctx context.Context, req domain.DiagnoseRequest) (domain.DiagnoseResponse, error) {
	if err := s.requirePermission(ctx, "aiAssistant", "use"); err != nil {
		return domain.DiagnoseResponse{}, err
	}
	if strings.TrimSpace(req.Symptom) == "" {
		return domain.DiagnoseResponse{}, store.ErrInvalidTransaction
	}
	if s.assistant == nil {
		return domain.DiagnoseResponse{Advice: aiFallbackMessage}, nil
	}

	advice, err := s.assistant.Diagnose(ctx, req.Symptom, req.ImageBase64, req.ImageMimeType)
	if err != nil {
		log.Printf("[service] WARN: diagnosis request failed: %v", err)
		return domain.DiagnoseResponse{Advice: aiFallbackMessage}, nil
	}
	return domain.DiagnoseResponse{Advice: advice}, nil
}
