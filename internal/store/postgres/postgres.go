package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"motocare/backend/internal/domain"
	"motocare/backend/internal/store"
	"motocare/backend/internal/xid"
)

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

const partColumns = `id, name, sku, stock, price, selling_price, category, description, warranty_period, expiry_date`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPart(row rowScanner) (*domain.Part, error) {
	var p domain.Part
	var stockJSON []byte
	err := row.Scan(&p.ID, &p.Name, &p.SKU, &stockJSON, &p.Price, &p.SellingPrice,
		&p.Category, &p.Description, &p.WarrantyPeriod, &p.ExpiryDate)
	if err != nil {
		return nil, err
	}
	p.Stock = map[string]int64{}
	if len(stockJSON) > 0 {
		if err := json.Unmarshal(stockJSON, &p.Stock); err != nil {
			return nil, err
		}
	}
	return &p, nil
}

func (s *Store) ListParts(ctx context.Context) ([]domain.Part, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+partColumns+`
		FROM parts
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	parts := make([]domain.Part, 0, 128)
	for rows.Next() {
		p, err := scanPart(rows)
		if err != nil {
			return nil, err
		}
		parts = append(parts, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return parts, nil
}

func (s *Store) getPartWhere(ctx context.Context, where string, arg any) (*domain.Part, error) {
	p, err := scanPart(s.db.QueryRowContext(ctx, `
		SELECT `+partColumns+`
		FROM parts
		WHERE `+where, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return p, nil
}

func (s *Store) GetPartByID(ctx context.Context, id string) (*domain.Part, error) {
	return s.getPartWhere(ctx, "id = $1", id)
}

func (s *Store) GetPartByName(ctx context.Context, name string) (*domain.Part, error) {
	return s.getPartWhere(ctx, "name = $1", name)
}

func (s *Store) GetPartBySKU(ctx context.Context, sku string) (*domain.Part, error) {
	return s.getPartWhere(ctx, "sku = $1", sku)
}

func (s *Store) CreatePart(ctx context.Context, part domain.Part) (*domain.Part, error) {
	if part.Name == "" || part.SKU == "" || part.Price < 0 || part.SellingPrice < 0 {
		return nil, store.ErrInvalidTransaction
	}
	if part.ID == "" {
		part.ID = xid.New("PART")
	}
	if part.Stock == nil {
		part.Stock = map[string]int64{}
	}
	stockJSON, err := json.Marshal(part.Stock)
	if err != nil {
		return nil, err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO parts (id, name, sku, stock, price, selling_price, category, description, warranty_period, expiry_date, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,now(),now())
	`, part.ID, part.Name, part.SKU, stockJSON, part.Price, part.SellingPrice,
		part.Category, part.Description, part.WarrantyPeriod, part.ExpiryDate)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrInvalidTransaction
		}
		return nil, err
	}

	created := part
	return &created, nil
}

func (s *Store) UpdatePart(ctx context.Context, part domain.Part) (*domain.Part, error) {
	if part.Name == "" || part.SKU == "" || part.Price < 0 || part.SellingPrice < 0 {
		return nil, store.ErrInvalidTransaction
	}
	if part.Stock == nil {
		part.Stock = map[string]int64{}
	}
	stockJSON, err := json.Marshal(part.Stock)
	if err != nil {
		return nil, err
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE parts
		SET name = $2, sku = $3, stock = $4, price = $5, selling_price = $6,
		    category = $7, description = $8, warranty_period = $9, expiry_date = $10, updated_at = now()
		WHERE id = $1
	`, part.ID, part.Name, part.SKU, stockJSON, part.Price, part.SellingPrice,
		part.Category, part.Description, part.WarrantyPeriod, part.ExpiryDate)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrInvalidTransaction
		}
		return nil, err
	}
	if err := requireAffected(res); err != nil {
		return nil, err
	}

	updated := part
	return &updated, nil
}

func (s *Store) DeletePart(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM parts WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

// AdjustStock applies the delta to one branch entry of the part's stock map
// inside a serializable transaction, rejecting results below zero.
func (s *Store) AdjustStock(ctx context.Context, partID string, branchID string, delta int64) (*domain.Part, error) {
	if branchID == "" {
		return nil, store.ErrInvalidTransaction
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	part, err := scanPart(tx.QueryRowContext(ctx, `
		SELECT `+partColumns+`
		FROM parts
		WHERE id = $1
		FOR UPDATE
	`, partID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	next := part.Stock[branchID] + delta
	if next < 0 {
		return nil, store.ErrInsufficientStock
	}
	part.Stock[branchID] = next
	stockJSON, err := json.Marshal(part.Stock)
	if err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE parts SET stock = $2, updated_at = now() WHERE id = $1
	`, partID, stockJSON); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return part, nil
}

const txColumns = `id, type, part_id, part_name, quantity, date, notes, unit_price, total_price,
	branch_id, sale_id, transfer_id, discount, customer_id, customer_name, user_id, user_name`

func scanTransaction(row rowScanner) (*domain.InventoryTransaction, error) {
	var t domain.InventoryTransaction
	err := row.Scan(&t.ID, &t.Type, &t.PartID, &t.PartName, &t.Quantity, &t.Date, &t.Notes,
		&t.UnitPrice, &t.TotalPrice, &t.BranchID, &t.SaleID, &t.TransferID, &t.Discount,
		&t.CustomerID, &t.CustomerName, &t.UserID, &t.UserName)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *Store) listTransactionsWhere(ctx context.Context, where string, args ...any) ([]domain.InventoryTransaction, error) {
	query := `SELECT ` + txColumns + ` FROM inventory_transactions`
	if where != "" {
		query += ` WHERE ` + where
	}
	query += ` ORDER BY date DESC, id DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	txs := make([]domain.InventoryTransaction, 0, 128)
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txs = append(txs, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return txs, nil
}

func (s *Store) ListTransactions(ctx context.Context) ([]domain.InventoryTransaction, error) {
	return s.listTransactionsWhere(ctx, "")
}

func (s *Store) ListTransactionsByBranch(ctx context.Context, branchID string) ([]domain.InventoryTransaction, error) {
	return s.listTransactionsWhere(ctx, "branch_id = $1", branchID)
}

func (s *Store) ListTransactionsBySaleID(ctx context.Context, saleID string) ([]domain.InventoryTransaction, error) {
	return s.listTransactionsWhere(ctx, "sale_id = $1", saleID)
}

func (s *Store) CreateTransactions(ctx context.Context, txs []domain.InventoryTransaction) error {
	for _, t := range txs {
		if t.PartID == "" || t.BranchID == "" || t.Quantity <= 0 {
			return store.ErrInvalidTransaction
		}
		if t.Type != domain.TxTypeStockIn && t.Type != domain.TxTypeStockOut {
			return store.ErrInvalidTransaction
		}
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, t := range txs {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO inventory_transactions
				(id, type, part_id, part_name, quantity, date, notes, unit_price, total_price,
				 branch_id, sale_id, transfer_id, discount, customer_id, customer_name, user_id, user_name, created_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,now())
		`, t.ID, t.Type, t.PartID, t.PartName, t.Quantity, t.Date, t.Notes, t.UnitPrice, t.TotalPrice,
			t.BranchID, t.SaleID, t.TransferID, t.Discount, t.CustomerID, t.CustomerName, t.UserID, t.UserName); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *Store) DeleteTransactionsBySaleID(ctx context.Context, saleID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM inventory_transactions WHERE sale_id = $1`, saleID)
	return err
}

func (s *Store) StockFromLedger(ctx context.Context, partID string, branchID string) (int64, error) {
	var total sql.NullInt64
	err := s.db.QueryRowContext(ctx, `
		SELECT SUM(CASE WHEN type = $3 THEN -quantity ELSE quantity END)
		FROM inventory_transactions
		WHERE part_id = $1 AND branch_id = $2
	`, partID, branchID, domain.TxTypeStockOut).Scan(&total)
	if err != nil {
		return 0, err
	}
	return total.Int64, nil
}

const workOrderColumns = `id, creation_date, customer_name, customer_phone, vehicle_model, license_plate,
	issue_description, technician_name, status, total, branch_id, labor_cost, discount,
	processing_type, customer_quote, parts_used, notes`

func scanWorkOrder(row rowScanner) (*domain.WorkOrder, error) {
	var o domain.WorkOrder
	var partsJSON []byte
	err := row.Scan(&o.ID, &o.CreationDate, &o.CustomerName, &o.CustomerPhone, &o.VehicleModel,
		&o.LicensePlate, &o.IssueDescription, &o.TechnicianName, &o.Status, &o.Total, &o.BranchID,
		&o.LaborCost, &o.Discount, &o.ProcessingType, &o.CustomerQuote, &partsJSON, &o.Notes)
	if err != nil {
		return nil, err
	}
	if len(partsJSON) > 0 {
		if err := json.Unmarshal(partsJSON, &o.PartsUsed); err != nil {
			return nil, err
		}
	}
	return &o, nil
}

func (s *Store) ListWorkOrders(ctx context.Context, branchID string) ([]domain.WorkOrder, error) {
	query := `SELECT ` + workOrderColumns + ` FROM work_orders`
	args := []any{}
	if branchID != "" {
		query += ` WHERE branch_id = $1`
		args = append(args, branchID)
	}
	query += ` ORDER BY creation_date DESC, id DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	orders := make([]domain.WorkOrder, 0, 64)
	for rows.Next() {
		o, err := scanWorkOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, *o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return orders, nil
}

func (s *Store) GetWorkOrderByID(ctx context.Context, id string) (*domain.WorkOrder, error) {
	o, err := scanWorkOrder(s.db.QueryRowContext(ctx, `
		SELECT `+workOrderColumns+` FROM work_orders WHERE id = $1
	`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return o, nil
}

func (s *Store) CreateWorkOrder(ctx context.Context, order domain.WorkOrder) (*domain.WorkOrder, error) {
	if order.CustomerName == "" || order.BranchID == "" {
		return nil, store.ErrInvalidTransaction
	}
	if order.ID == "" {
		order.ID = xid.New("WO")
	}
	partsJSON, err := json.Marshal(order.PartsUsed)
	if err != nil {
		return nil, err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO work_orders
			(id, creation_date, customer_name, customer_phone, vehicle_model, license_plate,
			 issue_description, technician_name, status, total, branch_id, labor_cost, discount,
			 processing_type, customer_quote, parts_used, notes, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,now(),now())
	`, order.ID, order.CreationDate, order.CustomerName, order.CustomerPhone, order.VehicleModel,
		order.LicensePlate, order.IssueDescription, order.TechnicianName, order.Status, order.Total,
		order.BranchID, order.LaborCost, order.Discount, order.ProcessingType, order.CustomerQuote,
		partsJSON, order.Notes)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrInvalidTransaction
		}
		return nil, err
	}

	created := order
	return &created, nil
}

func (s *Store) UpdateWorkOrder(ctx context.Context, order domain.WorkOrder) (*domain.WorkOrder, error) {
	partsJSON, err := json.Marshal(order.PartsUsed)
	if err != nil {
		return nil, err
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE work_orders
		SET creation_date = $2, customer_name = $3, customer_phone = $4, vehicle_model = $5,
		    license_plate = $6, issue_description = $7, technician_name = $8, status = $9,
		    total = $10, branch_id = $11, labor_cost = $12, discount = $13,
		    processing_type = $14, customer_quote = $15, parts_used = $16, notes = $17, updated_at = now()
		WHERE id = $1
	`, order.ID, order.CreationDate, order.CustomerName, order.CustomerPhone, order.VehicleModel,
		order.LicensePlate, order.IssueDescription, order.TechnicianName, order.Status, order.Total,
		order.BranchID, order.LaborCost, order.Discount, order.ProcessingType, order.CustomerQuote,
		partsJSON, order.Notes)
	if err != nil {
		return nil, err
	}
	if err := requireAffected(res); err != nil {
		return nil, err
	}

	updated := order
	return &updated, nil
}

func (s *Store) DeleteWorkOrder(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM work_orders WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (s *Store) ListCustomers(ctx context.Context) ([]domain.Customer, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, phone, vehicle, license_plate, loyalty_points
		FROM customers
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	customers := make([]domain.Customer, 0, 64)
	for rows.Next() {
		var c domain.Customer
		if err := rows.Scan(&c.ID, &c.Name, &c.Phone, &c.Vehicle, &c.LicensePlate, &c.LoyaltyPoints); err != nil {
			return nil, err
		}
		customers = append(customers, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return customers, nil
}

func (s *Store) GetCustomerByID(ctx context.Context, id string) (*domain.Customer, error) {
	var c domain.Customer
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, phone, vehicle, license_plate, loyalty_points
		FROM customers
		WHERE id = $1
	`, id).Scan(&c.ID, &c.Name, &c.Phone, &c.Vehicle, &c.LicensePlate, &c.LoyaltyPoints)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

func (s *Store) CreateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error) {
	if customer.Name == "" {
		return nil, store.ErrInvalidTransaction
	}
	if customer.ID == "" {
		customer.ID = xid.New("CUST")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO customers (id, name, phone, vehicle, license_plate, loyalty_points, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,now())
	`, customer.ID, customer.Name, customer.Phone, customer.Vehicle, customer.LicensePlate, customer.LoyaltyPoints)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrInvalidTransaction
		}
		return nil, err
	}
	created := customer
	return &created, nil
}

func (s *Store) UpdateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE customers
		SET name = $2, phone = $3, vehicle = $4, license_plate = $5, loyalty_points = $6
		WHERE id = $1
	`, customer.ID, customer.Name, customer.Phone, customer.Vehicle, customer.LicensePlate, customer.LoyaltyPoints)
	if err != nil {
		return nil, err
	}
	if err := requireAffected(res); err != nil {
		return nil, err
	}
	updated := customer
	return &updated, nil
}

func (s *Store) DeleteCustomer(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM customers WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (s *Store) ListSuppliers(ctx context.Context) ([]domain.Supplier, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, phone FROM suppliers ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	suppliers := make([]domain.Supplier, 0, 32)
	for rows.Next() {
		var sp domain.Supplier
		if err := rows.Scan(&sp.ID, &sp.Name, &sp.Phone); err != nil {
			return nil, err
		}
		suppliers = append(suppliers, sp)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return suppliers, nil
}

func (s *Store) CreateSupplier(ctx context.Context, supplier domain.Supplier) (*domain.Supplier, error) {
	if supplier.Name == "" {
		return nil, store.ErrInvalidTransaction
	}
	if supplier.ID == "" {
		supplier.ID = xid.New("SUP")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO suppliers (id, name, phone, created_at) VALUES ($1,$2,$3,now())
	`, supplier.ID, supplier.Name, supplier.Phone)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrInvalidTransaction
		}
		return nil, err
	}
	created := supplier
	return &created, nil
}

func (s *Store) UpdateSupplier(ctx context.Context, supplier domain.Supplier) (*domain.Supplier, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE suppliers SET name = $2, phone = $3 WHERE id = $1
	`, supplier.ID, supplier.Name, supplier.Phone)
	if err != nil {
		return nil, err
	}
	if err := requireAffected(res); err != nil {
		return nil, err
	}
	updated := supplier
	return &updated, nil
}

func (s *Store) DeleteSupplier(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM suppliers WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (s *Store) ListPaymentSources(ctx context.Context) ([]domain.PaymentSource, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, balance, is_default FROM payment_sources ORDER BY id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sources := make([]domain.PaymentSource, 0, 8)
	for rows.Next() {
		var src domain.PaymentSource
		if err := rows.Scan(&src.ID, &src.Name, &src.Balance, &src.IsDefault); err != nil {
			return nil, err
		}
		sources = append(sources, src)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return sources, nil
}

func (s *Store) GetPaymentSourceByID(ctx context.Context, id string) (*domain.PaymentSource, error) {
	var src domain.PaymentSource
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, balance, is_default FROM payment_sources WHERE id = $1
	`, id).Scan(&src.ID, &src.Name, &src.Balance, &src.IsDefault)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &src, nil
}

func (s *Store) CreatePaymentSource(ctx context.Context, source domain.PaymentSource) (*domain.PaymentSource, error) {
	if source.Name == "" {
		return nil, store.ErrInvalidTransaction
	}
	if source.ID == "" {
		source.ID = xid.New("CASHSRC")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO payment_sources (id, name, balance, is_default, created_at)
		VALUES ($1,$2,$3,$4,now())
	`, source.ID, source.Name, source.Balance, source.IsDefault)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrInvalidTransaction
		}
		return nil, err
	}
	created := source
	return &created, nil
}

func (s *Store) UpdatePaymentSource(ctx context.Context, source domain.PaymentSource) (*domain.PaymentSource, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE payment_sources SET name = $2, balance = $3, is_default = $4 WHERE id = $1
	`, source.ID, source.Name, source.Balance, source.IsDefault)
	if err != nil {
		return nil, err
	}
	if err := requireAffected(res); err != nil {
		return nil, err
	}
	updated := source
	return &updated, nil
}

func (s *Store) ListCashTransactions(ctx context.Context, branchID string) ([]domain.CashTransaction, error) {
	query := `SELECT id, type, date, amount, contact, notes, payment_source_id, branch_id FROM cash_transactions`
	args := []any{}
	if branchID != "" {
		query += ` WHERE branch_id = $1`
		args = append(args, branchID)
	}
	query += ` ORDER BY date DESC, id DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	txs := make([]domain.CashTransaction, 0, 64)
	for rows.Next() {
		var t domain.CashTransaction
		var contactJSON []byte
		if err := rows.Scan(&t.ID, &t.Type, &t.Date, &t.Amount, &contactJSON, &t.Notes, &t.PaymentSourceID, &t.BranchID); err != nil {
			return nil, err
		}
		if len(contactJSON) > 0 {
			if err := json.Unmarshal(contactJSON, &t.Contact); err != nil {
				return nil, err
			}
		}
		txs = append(txs, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return txs, nil
}

// CreateCashTransaction inserts the entry and moves the payment source
// balance in one serializable transaction.
func (s *Store) CreateCashTransaction(ctx context.Context, cashTx domain.CashTransaction) (*domain.CashTransaction, error) {
	if cashTx.Amount <= 0 || cashTx.BranchID == "" {
		return nil, store.ErrInvalidTransaction
	}
	if cashTx.Type != domain.CashTxIncome && cashTx.Type != domain.CashTxExpense {
		return nil, store.ErrInvalidTransaction
	}
	if cashTx.ID == "" {
		cashTx.ID = xid.New("CASH")
	}
	contactJSON, err := json.Marshal(cashTx.Contact)
	if err != nil {
		return nil, err
	}

	delta := cashTx.Amount
	if cashTx.Type == domain.CashTxExpense {
		delta = -cashTx.Amount
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		UPDATE payment_sources SET balance = balance + $2 WHERE id = $1
	`, cashTx.PaymentSourceID, delta)
	if err != nil {
		return nil, err
	}
	if err := requireAffected(res); err != nil {
		return nil, err
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO cash_transactions (id, type, date, amount, contact, notes, payment_source_id, branch_id, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,now())
	`, cashTx.ID, cashTx.Type, cashTx.Date, cashTx.Amount, contactJSON, cashTx.Notes, cashTx.PaymentSourceID, cashTx.BranchID); err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrInvalidTransaction
		}
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	created := cashTx
	return &created, nil
}

func (s *Store) DeleteCashTransaction(ctx context.Context, id string) (*domain.CashTransaction, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var t domain.CashTransaction
	var contactJSON []byte
	err = tx.QueryRowContext(ctx, `
		SELECT id, type, date, amount, contact, notes, payment_source_id, branch_id
		FROM cash_transactions
		WHERE id = $1
		FOR UPDATE
	`, id).Scan(&t.ID, &t.Type, &t.Date, &t.Amount, &contactJSON, &t.Notes, &t.PaymentSourceID, &t.BranchID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if len(contactJSON) > 0 {
		if err := json.Unmarshal(contactJSON, &t.Contact); err != nil {
			return nil, err
		}
	}

	delta := -t.Amount
	if t.Type == domain.CashTxExpense {
		delta = t.Amount
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE payment_sources SET balance = balance + $2 WHERE id = $1
	`, t.PaymentSourceID, delta); err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM cash_transactions WHERE id = $1`, id); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &t, nil
}

const userColumns = `id, name, login_phone, password, email, status, department_ids, creation_date, address`

func scanUser(row rowScanner) (*domain.User, error) {
	var u domain.User
	var deptJSON []byte
	err := row.Scan(&u.ID, &u.Name, &u.LoginPhone, &u.Password, &u.Email, &u.Status,
		&deptJSON, &u.CreationDate, &u.Address)
	if err != nil {
		return nil, err
	}
	if len(deptJSON) > 0 {
		if err := json.Unmarshal(deptJSON, &u.DepartmentIDs); err != nil {
			return nil, err
		}
	}
	return &u, nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.User, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.User, 0, 16)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) GetUserByID(ctx context.Context, id string) (*domain.User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return u, nil
}

// GetUserByLogin matches the login phone first, then the display name.
func (s *Store) GetUserByLogin(ctx context.Context, login string) (*domain.User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE login_phone = $1 OR name = $1
		ORDER BY (login_phone = $1) DESC
		LIMIT 1
	`, login))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return u, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.User) (*domain.User, error) {
	if user.Name == "" || user.LoginPhone == "" || user.Password == "" {
		return nil, store.ErrInvalidTransaction
	}
	if user.ID == "" {
		user.ID = xid.New("USR")
	}
	deptJSON, err := json.Marshal(user.DepartmentIDs)
	if err != nil {
		return nil, err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO users (id, name, login_phone, password, email, status, department_ids, creation_date, address, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,now(),now())
	`, user.ID, user.Name, user.LoginPhone, user.Password, user.Email, user.Status, deptJSON, user.CreationDate, user.Address)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrInvalidTransaction
		}
		return nil, err
	}
	created := user
	return &created, nil
}

func (s *Store) UpdateUser(ctx context.Context, user domain.User) (*domain.User, error) {
	deptJSON, err := json.Marshal(user.DepartmentIDs)
	if err != nil {
		return nil, err
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE users
		SET name = $2, login_phone = $3, password = $4, email = $5, status = $6,
		    department_ids = $7, creation_date = $8, address = $9, updated_at = now()
		WHERE id = $1
	`, user.ID, user.Name, user.LoginPhone, user.Password, user.Email, user.Status, deptJSON, user.CreationDate, user.Address)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrInvalidTransaction
		}
		return nil, err
	}
	if err := requireAffected(res); err != nil {
		return nil, err
	}
	updated := user
	return &updated, nil
}

func (s *Store) DeleteUser(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func scanDepartment(row rowScanner) (*domain.Department, error) {
	var d domain.Department
	var permsJSON []byte
	if err := row.Scan(&d.ID, &d.Name, &d.Description, &permsJSON); err != nil {
		return nil, err
	}
	d.Permissions = map[string]domain.Permission{}
	if len(permsJSON) > 0 {
		if err := json.Unmarshal(permsJSON, &d.Permissions); err != nil {
			return nil, err
		}
	}
	return &d, nil
}

func (s *Store) ListDepartments(ctx context.Context) ([]domain.Department, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, description, permissions FROM departments ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	depts := make([]domain.Department, 0, 8)
	for rows.Next() {
		d, err := scanDepartment(rows)
		if err != nil {
			return nil, err
		}
		depts = append(depts, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return depts, nil
}

func (s *Store) GetDepartmentByID(ctx context.Context, id string) (*domain.Department, error) {
	d, err := scanDepartment(s.db.QueryRowContext(ctx, `
		SELECT id, name, description, permissions FROM departments WHERE id = $1
	`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return d, nil
}

func (s *Store) CreateDepartment(ctx context.Context, dept domain.Department) (*domain.Department, error) {
	if dept.Name == "" {
		return nil, store.ErrInvalidTransaction
	}
	if dept.ID == "" {
		dept.ID = xid.New("DEPT")
	}
	if dept.Permissions == nil {
		dept.Permissions = map[string]domain.Permission{}
	}
	permsJSON, err := json.Marshal(dept.Permissions)
	if err != nil {
		return nil, err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO departments (id, name, description, permissions, created_at)
		VALUES ($1,$2,$3,$4,now())
	`, dept.ID, dept.Name, dept.Description, permsJSON)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrInvalidTransaction
		}
		return nil, err
	}
	created := dept
	return &created, nil
}

func (s *Store) UpdateDepartment(ctx context.Context, dept domain.Department) (*domain.Department, error) {
	if dept.Permissions == nil {
		dept.Permissions = map[string]domain.Permission{}
	}
	permsJSON, err := json.Marshal(dept.Permissions)
	if err != nil {
		return nil, err
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE departments SET name = $2, description = $3, permissions = $4 WHERE id = $1
	`, dept.ID, dept.Name, dept.Description, permsJSON)
	if err != nil {
		return nil, err
	}
	if err := requireAffected(res); err != nil {
		return nil, err
	}
	updated := dept
	return &updated, nil
}

func (s *Store) DeleteDepartment(ctx context.Context, id string) error {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT count(*) FROM users WHERE department_ids @> to_jsonb(ARRAY[$1::text])
	`, id).Scan(&count)
	if err != nil {
		return err
	}
	if count > 0 {
		return store.ErrInvalidTransaction
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM departments WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

// Store settings live in a single row keyed by id 1.

func (s *Store) GetStoreSettings(ctx context.Context) (*domain.StoreSettings, error) {
	var st domain.StoreSettings
	var branchesJSON []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT name, address, phone, bank_name, bank_account_number, bank_account_holder, branches
		FROM store_settings
		WHERE id = 1
	`).Scan(&st.Name, &st.Address, &st.Phone, &st.BankName, &st.BankAccountNumber, &st.BankAccountHolder, &branchesJSON)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if len(branchesJSON) > 0 {
		if err := json.Unmarshal(branchesJSON, &st.Branches); err != nil {
			return nil, err
		}
	}
	return &st, nil
}

func (s *Store) UpdateStoreSettings(ctx context.Context, settings domain.StoreSettings) (*domain.StoreSettings, error) {
	if settings.Name == "" || len(settings.Branches) == 0 {
		return nil, store.ErrInvalidTransaction
	}
	branchesJSON, err := json.Marshal(settings.Branches)
	if err != nil {
		return nil, err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO store_settings (id, name, address, phone, bank_name, bank_account_number, bank_account_holder, branches, updated_at)
		VALUES (1,$1,$2,$3,$4,$5,$6,$7,now())
		ON CONFLICT (id)
		DO UPDATE SET name = EXCLUDED.name, address = EXCLUDED.address, phone = EXCLUDED.phone,
		              bank_name = EXCLUDED.bank_name, bank_account_number = EXCLUDED.bank_account_number,
		              bank_account_holder = EXCLUDED.bank_account_holder, branches = EXCLUDED.branches,
		              updated_at = now()
	`, settings.Name, settings.Address, settings.Phone, settings.BankName, settings.BankAccountNumber,
		settings.BankAccountHolder, branchesJSON)
	if err != nil {
		return nil, err
	}
	saved := settings
	return &saved, nil
}

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	if entry.ID == "" {
		entry.ID = xid.New("AUD")
	}
	if entry.CreatedAt == "" {
		entry.CreatedAt = time.Now().UTC().Format(time.RFC3339)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (id, actor_id, actor_name, action, entity_type, entity_id, detail, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, entry.ID, entry.ActorID, entry.ActorName, entry.Action, entry.EntityType, entry.EntityID, entry.Detail, entry.CreatedAt)
	return err
}

func (s *Store) ListAuditLogs(ctx context.Context, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, actor_id, actor_name, action, entity_type, entity_id, detail, created_at
		FROM audit_logs
		ORDER BY created_at DESC, id DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]domain.AuditLog, 0, limit)
	for rows.Next() {
		var entry domain.AuditLog
		if err := rows.Scan(&entry.ID, &entry.ActorID, &entry.ActorName, &entry.Action,
			&entry.EntityType, &entry.EntityID, &entry.Detail, &entry.CreatedAt); err != nil {
			return nil, err
		}
		logs = append(logs, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return logs, nil
}

func requireAffected(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
