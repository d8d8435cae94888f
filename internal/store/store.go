package store

import (
	"context"
	"errors"

	"motocare/backend/internal/domain"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrInsufficientStock  = errors.New("insufficient stock")
	ErrInvalidTransaction = errors.New("invalid transaction")
)

type Repository interface {
	ListParts(ctx context.Context) ([]domain.Part, error)
	GetPartByID(ctx context.Context, id string) (*domain.Part, error)
	GetPartByName(ctx context.Context, name string) (*domain.Part, error)
	GetPartBySKU(ctx context.Context, sku string) (*domain.Part, error)
	CreatePart(ctx context.Context, part domain.Part) (*domain.Part, error)
	UpdatePart(ctx context.Context, part domain.Part) (*domain.Part, error)
	DeletePart(ctx context.Context, id string) error
	AdjustStock(ctx context.Context, partID string, branchID string, delta int64) (*domain.Part, error)
	ListTransactions(ctx context.Context) ([]domain.InventoryTransaction, error)
	ListTransactionsByBranch(ctx context.Context, branchID string) ([]domain.InventoryTransaction, error)
	ListTransactionsBySaleID(ctx context.Context, saleID string) ([]domain.InventoryTransaction, error)
	CreateTransactions(ctx context.Context, txs []domain.InventoryTransaction) error
	DeleteTransactionsBySaleID(ctx context.Context, saleID string) error
	StockFromLedger(ctx context.Context, partID string, branchID string) (int64, error)
	ListWorkOrders(ctx context.Context, branchID string) ([]domain.WorkOrder, error)
	GetWorkOrderByID(ctx context.Context, id string) (*domain.WorkOrder, error)
	CreateWorkOrder(ctx context.Context, order domain.WorkOrder) (*domain.WorkOrder, error)
	UpdateWorkOrder(ctx context.Context, order domain.WorkOrder) (*domain.WorkOrder, error)
	DeleteWorkOrder(ctx context.Context, id string) error
	ListCustomers(ctx context.Context) ([]domain.Customer, error)
	GetCustomerByID(ctx context.Context, id string) (*domain.Customer, error)
	CreateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error)
	UpdateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error)
	DeleteCustomer(ctx context.Context, id string) error
	ListSuppliers(ctx context.Context) ([]domain.Supplier, error)
	CreateSupplier(ctx context.Context, supplier domain.Supplier) (*domain.Supplier, error)
	UpdateSupplier(ctx context.Context, supplier domain.Supplier) (*domain.Supplier, error)
	DeleteSupplier(ctx context.Context, id string) error
	ListPaymentSources(ctx context.Context) ([]domain.PaymentSource, error)
	GetPaymentSourceByID(ctx context.Context, id string) (*domain.PaymentSource, error)
	CreatePaymentSource(ctx context.Context, source domain.PaymentSource) (*domain.PaymentSource, error)
	UpdatePaymentSource(ctx context.Context, source domain.PaymentSource) (*domain.PaymentSource, error)
	ListCashTransactions(ctx context.Context, branchID string) ([]domain.CashTransaction, error)
	CreateCashTransaction(ctx context.Context, tx domain.CashTransaction) (*domain.CashTransaction, error)
	DeleteCashTransaction(ctx context.Context, id string) (*domain.CashTransaction, error)
	ListUsers(ctx context.Context) ([]domain.User, error)
	GetUserByID(ctx context.Context, id string) (*domain.User, error)
	GetUserByLogin(ctx context.Context, login string) (*domain.User, error)
	CreateUser(ctx context.Context, user domain.User) (*domain.User, error)
	UpdateUser(ctx context.Context, user domain.User) (*domain.User, error)
	DeleteUser(ctx context.Context, id string) error
	ListDepartments(ctx context.Context) ([]domain.Department, error)
	GetDepartmentByID(ctx context.Context, id string) (*domain.Department, error)
	CreateDepartment(ctx context.Context, dept domain.Department) (*domain.Department, error)
	UpdateDepartment(ctx context.Context, dept domain.Department) (*domain.Department, error)
	DeleteDepartment(ctx context.Context, id string) error
	GetStoreSettings(ctx context.Context) (*domain.StoreSettings, error)
	UpdateStoreSettings(ctx context.Context, settings domain.StoreSettings) (*domain.StoreSettings, error)
	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	ListAuditLogs(ctx context.Context, limit int) ([]domain.AuditLog, error)
}
