package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"motocare/backend/internal/domain"
	"motocare/backend/internal/store"
	"motocare/backend/internal/xid"
)

// largeReceiptQuantity triggers a non-blocking advisory on goods receipts.
const largeReceiptQuantity = 500

// prorateOrderDiscount splits an order-level discount across line subtotals,
// proportional to each line's share of the cart subtotal. Shares are floored
// and the remainder goes to the last line, so the shares always sum to the
// discount exactly. A zero cart subtotal yields all-zero shares.
func prorateOrderDiscount(orderDiscount int64, subtotals []int64) []int64 {
	shares := make([]int64, len(subtotals))
	if orderDiscount <= 0 || len(subtotals) == 0 {
		return shares
	}

	var cartSubtotal int64
	for _, sub := range subtotals {
		cartSubtotal += sub
	}
	if cartSubtotal <= 0 {
		return shares
	}

	discount := decimal.NewFromInt(orderDiscount)
	total := decimal.NewFromInt(cartSubtotal)
	var assigned int64
	for i, sub := range subtotals {
		if i == len(subtotals)-1 {
			shares[i] = orderDiscount - assigned
			break
		}
		share := discount.Mul(decimal.NewFromInt(sub)).Div(total).Floor().IntPart()
		shares[i] = share
		assigned += share
	}
	return shares
}

func (s *Service) validateSaleItems(ctx context.Context, items []domain.SaleCartItem) ([]domain.Part, error) {
	if len(items) == 0 {
		return nil, store.ErrInvalidTransaction
	}
	parts := make([]domain.Part, len(items))
	for i, item := range items {
		if item.PartID == "" || item.Quantity <= 0 || item.Discount < 0 {
			return nil, store.ErrInvalidTransaction
		}
		part, err := s.repo.GetPartByID(ctx, item.PartID)
		if err != nil {
			return nil, err
		}
		parts[i] = *part
	}
	return parts, nil
}

// revertStockDeltas undoes already-applied adjustments after a mid-sale
// failure. Best effort: a failed revert is logged, not returned.
func (s *Service) revertStockDeltas(ctx context.Context, branchID string, applied map[string]int64) {
	for partID, delta := range applied {
		if _, err := s.repo.AdjustStock(ctx, partID, branchID, -delta); err != nil {
			log.Printf("[service] WARN: failed to revert stock delta part=%s branch=%s delta=%d: %v", partID, branchID, -delta, err)
		}
	}
}

// RecordRetailSale writes one stock-out ledger row per cart line, all tagged
// with a fresh sale ID. Each line carries its own per-item discount plus its
// prorated share of the order discount. Lines that would drive stock below
// zero reject the whole sale.
func (s *Service) RecordRetailSale(ctx context.Context, req domain.RetailSaleRequest) (domain.RetailSaleResponse, error) {
	if err := s.requirePermission(ctx, "sales", "create"); err != nil {
		return domain.RetailSaleResponse{}, err
	}
	if req.BranchID == "" || req.OrderDiscount < 0 {
		return domain.RetailSaleResponse{}, store.ErrInvalidTransaction
	}
	if ok, err := s.branchExists(ctx, req.BranchID); err != nil {
		return domain.RetailSaleResponse{}, err
	} else if !ok {
		return domain.RetailSaleResponse{}, store.ErrInvalidTransaction
	}

	parts, err := s.validateSaleItems(ctx, req.Items)
	if err != nil {
		return domain.RetailSaleResponse{}, err
	}
	for i, item := range req.Items {
		if parts[i].StockAt(req.BranchID) < item.Quantity {
			return domain.RetailSaleResponse{}, store.ErrInsufficientStock
		}
	}

	customerName := strings.TrimSpace(req.CustomerName)
	if req.CustomerID != "" {
		customer, err := s.repo.GetCustomerByID(ctx, req.CustomerID)
		if err != nil {
			return domain.RetailSaleResponse{}, err
		}
		customerName = customer.Name
	}
	if customerName == "" {
		customerName = domain.DefaultCustomerName
	}

	date := req.Date
	if date == "" {
		date = today()
	} else if _, err := parseDay(date); err != nil {
		return domain.RetailSaleResponse{}, store.ErrInvalidTransaction
	}
	notes := req.Notes
	if notes == "" {
		notes = domain.DefaultSaleNote
	}

	subtotals := make([]int64, len(req.Items))
	prices := make([]int64, len(req.Items))
	var cartSubtotal int64
	for i, item := range req.Items {
		price := item.SellingPrice
		if price <= 0 {
			price = parts[i].SellingPrice
		}
		prices[i] = price
		subtotals[i] = price * item.Quantity
		if item.Discount > subtotals[i] {
			return domain.RetailSaleResponse{}, store.ErrInvalidTransaction
		}
		cartSubtotal += subtotals[i]
	}
	shares := prorateOrderDiscount(req.OrderDiscount, subtotals)

	actor, _ := ActorFromContext(ctx)
	saleID := xid.New("SALE")
	txs := make([]domain.InventoryTransaction, len(req.Items))
	var totalDiscount int64
	for i, item := range req.Items {
		lineDiscount := item.Discount + shares[i]
		totalDiscount += lineDiscount
		txs[i] = domain.InventoryTransaction{
			ID:           xid.New("TXN"),
			Type:         domain.TxTypeStockOut,
			PartID:       item.PartID,
			PartName:     parts[i].Name,
			Quantity:     item.Quantity,
			Date:         date,
			Notes:        notes,
			UnitPrice:    prices[i],
			TotalPrice:   subtotals[i] - lineDiscount,
			BranchID:     req.BranchID,
			SaleID:       saleID,
			Discount:     lineDiscount,
			CustomerID:   req.CustomerID,
			CustomerName: customerName,
			UserID:       actor.UserID,
			UserName:     actor.Name,
		}
	}

	applied := map[string]int64{}
	for _, item := range req.Items {
		if _, err := s.repo.AdjustStock(ctx, item.PartID, req.BranchID, -item.Quantity); err != nil {
			s.revertStockDeltas(ctx, req.BranchID, applied)
			return domain.RetailSaleResponse{}, err
		}
		applied[item.PartID] += -item.Quantity
	}
	if err := s.repo.CreateTransactions(ctx, txs); err != nil {
		s.revertStockDeltas(ctx, req.BranchID, applied)
		return domain.RetailSaleResponse{}, err
	}

	s.logAudit(ctx, "sale_create", "sale", saleID, fmt.Sprintf("items=%d,total=%d", len(req.Items), cartSubtotal-totalDiscount))
	return domain.RetailSaleResponse{
		SaleID:   saleID,
		Subtotal: cartSubtotal,
		Discount: totalDiscount,
		Total:    cartSubtotal - totalDiscount,
	}, nil
}

// UpdateRetailSale replaces the sale's ledger rows under the same sale ID and
// applies one net stock delta per part at the requested branch. Quantities
// from the original rows count as already-returned stock, so editing only the
// discount moves no stock at all.
func (s *Service) UpdateRetailSale(ctx context.Context, saleID string, req domain.RetailSaleRequest) (domain.RetailSaleResponse, error) {
	if err := s.requirePermission(ctx, "sales", "edit"); err != nil {
		return domain.RetailSaleResponse{}, err
	}
	existing, err := s.repo.ListTransactionsBySaleID(ctx, saleID)
	if err != nil {
		return domain.RetailSaleResponse{}, err
	}
	if len(existing) == 0 {
		return domain.RetailSaleResponse{}, store.ErrNotFound
	}
	if req.BranchID == "" {
		req.BranchID = existing[0].BranchID
	}
	if req.OrderDiscount < 0 {
		return domain.RetailSaleResponse{}, store.ErrInvalidTransaction
	}

	parts, err := s.validateSaleItems(ctx, req.Items)
	if err != nil {
		return domain.RetailSaleResponse{}, err
	}

	oldQty := map[string]int64{}
	for _, tx := range existing {
		oldQty[tx.PartID] += tx.Quantity
	}
	newQty := map[string]int64{}
	for _, item := range req.Items {
		newQty[item.PartID] += item.Quantity
	}
	for i, item := range req.Items {
		extra := newQty[item.PartID] - oldQty[item.PartID]
		if extra > 0 && parts[i].StockAt(req.BranchID) < extra {
			return domain.RetailSaleResponse{}, store.ErrInsufficientStock
		}
	}

	customerName := strings.TrimSpace(req.CustomerName)
	if req.CustomerID != "" {
		customer, err := s.repo.GetCustomerByID(ctx, req.CustomerID)
		if err != nil {
			return domain.RetailSaleResponse{}, err
		}
		customerName = customer.Name
	}
	if customerName == "" {
		customerName = existing[0].CustomerName
	}
	date := req.Date
	if date == "" {
		date = existing[0].Date
	} else if _, err := parseDay(date); err != nil {
		return domain.RetailSaleResponse{}, store.ErrInvalidTransaction
	}
	notes := req.Notes
	if notes == "" {
		notes = domain.DefaultSaleNote + " (đã chỉnh sửa)"
	}

	subtotals := make([]int64, len(req.Items))
	prices := make([]int64, len(req.Items))
	var cartSubtotal int64
	for i, item := range req.Items {
		price := item.SellingPrice
		if price <= 0 {
			price = parts[i].SellingPrice
		}
		prices[i] = price
		subtotals[i] = price * item.Quantity
		if item.Discount > subtotals[i] {
			return domain.RetailSaleResponse{}, store.ErrInvalidTransaction
		}
		cartSubtotal += subtotals[i]
	}
	shares := prorateOrderDiscount(req.OrderDiscount, subtotals)

	actor, _ := ActorFromContext(ctx)
	txs := make([]domain.InventoryTransaction, len(req.Items))
	var totalDiscount int64
	for i, item := range req.Items {
		lineDiscount := item.Discount + shares[i]
		totalDiscount += lineDiscount
		txs[i] = domain.InventoryTransaction{
			ID:           xid.New("TXN"),
			Type:         domain.TxTypeStockOut,
			PartID:       item.PartID,
			PartName:     parts[i].Name,
			Quantity:     item.Quantity,
			Date:         date,
			Notes:        notes,
			UnitPrice:    prices[i],
			TotalPrice:   subtotals[i] - lineDiscount,
			BranchID:     req.BranchID,
			SaleID:       saleID,
			Discount:     lineDiscount,
			CustomerID:   req.CustomerID,
			CustomerName: customerName,
			UserID:       actor.UserID,
			UserName:     actor.Name,
		}
	}

	deltas := map[string]int64{}
	for partID, qty := range oldQty {
		deltas[partID] += qty
	}
	for partID, qty := range newQty {
		deltas[partID] -= qty
	}

	applied := map[string]int64{}
	for partID, delta := range deltas {
		if delta == 0 {
			continue
		}
		if _, err := s.repo.AdjustStock(ctx, partID, req.BranchID, delta); err != nil {
			s.revertStockDeltas(ctx, req.BranchID, applied)
			return domain.RetailSaleResponse{}, err
		}
		applied[partID] += delta
	}

	if err := s.repo.DeleteTransactionsBySaleID(ctx, saleID); err != nil {
		s.revertStockDeltas(ctx, req.BranchID, applied)
		return domain.RetailSaleResponse{}, err
	}
	if err := s.repo.CreateTransactions(ctx, txs); err != nil {
		s.revertStockDeltas(ctx, req.BranchID, applied)
		if restoreErr := s.repo.CreateTransactions(ctx, existing); restoreErr != nil {
			log.Printf("[service] WARN: failed to restore rows for sale=%s: %v", saleID, restoreErr)
		}
		return domain.RetailSaleResponse{}, err
	}

	s.logAudit(ctx, "sale_update", "sale", saleID, fmt.Sprintf("items=%d,total=%d", len(req.Items), cartSubtotal-totalDiscount))
	return domain.RetailSaleResponse{
		SaleID:   saleID,
		Subtotal: cartSubtotal,
		Discount: totalDiscount,
		Total:    cartSubtotal - totalDiscount,
	}, nil
}

// DeleteRetailSale returns each row's quantity to that row's own branch and
// removes the rows. A sale ID with no rows is a no-op, so retrying a delete
// is safe.
func (s *Service) DeleteRetailSale(ctx context.Context, saleID string) error {
	if err := s.requirePermission(ctx, "sales", "delete"); err != nil {
		return err
	}
	existing, err := s.repo.ListTransactionsBySaleID(ctx, saleID)
	if err != nil {
		return err
	}
	if len(existing) == 0 {
		return nil
	}

	for _, tx := range existing {
		if _, err := s.repo.AdjustStock(ctx, tx.PartID, tx.BranchID, -tx.SignedQuantity()); err != nil {
			return err
		}
	}
	if err := s.repo.DeleteTransactionsBySaleID(ctx, saleID); err != nil {
		return err
	}
	s.logAudit(ctx, "sale_delete", "sale", saleID, fmt.Sprintf("rows=%d", len(existing)))
	return nil
}

// TransferStock moves quantity between branches as a paired stock-out and
// stock-in sharing one transfer ID, both valued at the part's purchase price.
func (s *Service) TransferStock(ctx context.Context, req domain.BranchTransferRequest) (domain.BranchTransferResponse, error) {
	if err := s.requirePermission(ctx, "inventory", "transfer"); err != nil {
		return domain.BranchTransferResponse{}, err
	}
	if req.PartID == "" || req.Quantity <= 0 || req.FromBranchID == req.ToBranchID {
		return domain.BranchTransferResponse{}, store.ErrInvalidTransaction
	}
	for _, branchID := range []string{req.FromBranchID, req.ToBranchID} {
		if ok, err := s.branchExists(ctx, branchID); err != nil {
			return domain.BranchTransferResponse{}, err
		} else if !ok {
			return domain.BranchTransferResponse{}, store.ErrInvalidTransaction
		}
	}

	part, err := s.repo.GetPartByID(ctx, req.PartID)
	if err != nil {
		return domain.BranchTransferResponse{}, err
	}
	if part.StockAt(req.FromBranchID) < req.Quantity {
		return domain.BranchTransferResponse{}, store.ErrInsufficientStock
	}

	outNote := "Chuyển đến " + s.branchName(ctx, req.ToBranchID) + "."
	inNote := "Nhận từ " + s.branchName(ctx, req.FromBranchID) + "."
	if note := strings.TrimSpace(req.Notes); note != "" {
		outNote += " " + note
		inNote += " " + note
	}

	transferID := xid.New("TR")
	date := today()
	total := req.Quantity * part.Price
	txs := []domain.InventoryTransaction{
		{
			ID: xid.New("TXN"), Type: domain.TxTypeStockOut,
			PartID: part.ID, PartName: part.Name, Quantity: req.Quantity,
			Date: date, Notes: outNote, UnitPrice: part.Price, TotalPrice: total,
			BranchID: req.FromBranchID, TransferID: transferID,
		},
		{
			ID: xid.New("TXN"), Type: domain.TxTypeStockIn,
			PartID: part.ID, PartName: part.Name, Quantity: req.Quantity,
			Date: date, Notes: inNote, UnitPrice: part.Price, TotalPrice: total,
			BranchID: req.ToBranchID, TransferID: transferID,
		},
	}

	if _, err := s.repo.AdjustStock(ctx, part.ID, req.FromBranchID, -req.Quantity); err != nil {
		return domain.BranchTransferResponse{}, err
	}
	if _, err := s.repo.AdjustStock(ctx, part.ID, req.ToBranchID, req.Quantity); err != nil {
		s.revertStockDeltas(ctx, req.FromBranchID, map[string]int64{part.ID: -req.Quantity})
		return domain.BranchTransferResponse{}, err
	}
	if err := s.repo.CreateTransactions(ctx, txs); err != nil {
		s.revertStockDeltas(ctx, req.FromBranchID, map[string]int64{part.ID: -req.Quantity})
		s.revertStockDeltas(ctx, req.ToBranchID, map[string]int64{part.ID: req.Quantity})
		return domain.BranchTransferResponse{}, err
	}

	s.logAudit(ctx, "stock_transfer", "part", part.ID, fmt.Sprintf("from=%s,to=%s,qty=%d", req.FromBranchID, req.ToBranchID, req.Quantity))
	return domain.BranchTransferResponse{TransferID: transferID}, nil
}

// AdjustInventory records a manual stock movement. Stock-outs are valued at
// the selling price, stock-ins at the given unit price or, missing that, the
// purchase price.
func (s *Service) AdjustInventory(ctx context.Context, req domain.ManualAdjustmentRequest) (domain.InventoryTransaction, error) {
	if err := s.requirePermission(ctx, "inventory", "adjust"); err != nil {
		return domain.InventoryTransaction{}, err
	}
	if req.PartID == "" || req.BranchID == "" || req.Quantity <= 0 {
		return domain.InventoryTransaction{}, store.ErrInvalidTransaction
	}
	if req.Type != domain.TxTypeStockIn && req.Type != domain.TxTypeStockOut {
		return domain.InventoryTransaction{}, store.ErrInvalidTransaction
	}

	part, err := s.repo.GetPartByID(ctx, req.PartID)
	if err != nil {
		return domain.InventoryTransaction{}, err
	}

	var unitPrice int64
	delta := req.Quantity
	if req.Type == domain.TxTypeStockOut {
		if part.StockAt(req.BranchID) < req.Quantity {
			return domain.InventoryTransaction{}, store.ErrInsufficientStock
		}
		unitPrice = part.SellingPrice
		delta = -req.Quantity
	} else {
		unitPrice = part.Price
		if req.UnitPrice != nil {
			if *req.UnitPrice < 0 {
				return domain.InventoryTransaction{}, store.ErrInvalidTransaction
			}
			unitPrice = *req.UnitPrice
		}
	}

	tx := domain.InventoryTransaction{
		ID:         xid.New("TXN"),
		Type:       req.Type,
		PartID:     part.ID,
		PartName:   part.Name,
		Quantity:   req.Quantity,
		Date:       today(),
		Notes:      req.Notes,
		UnitPrice:  unitPrice,
		TotalPrice: req.Quantity * unitPrice,
		BranchID:   req.BranchID,
	}

	if _, err := s.repo.AdjustStock(ctx, part.ID, req.BranchID, delta); err != nil {
		return domain.InventoryTransaction{}, err
	}
	if err := s.repo.CreateTransactions(ctx, []domain.InventoryTransaction{tx}); err != nil {
		s.revertStockDeltas(ctx, req.BranchID, map[string]int64{part.ID: delta})
		return domain.InventoryTransaction{}, err
	}

	s.logAudit(ctx, "stock_adjust", "part", part.ID, fmt.Sprintf("type=%s,branch=%s,qty=%d", req.Type, req.BranchID, req.Quantity))
	return tx, nil
}

// ReceiveGoods books a supplier delivery: one stock-in row per line under a
// shared receipt ID, with part prices refreshed from the receipt. Unknown
// part names become new parts. Oversized quantities and price deviations
// yield advisory warnings but never block the receipt.
func (s *Service) ReceiveGoods(ctx context.Context, req domain.GoodsReceiptRequest) (domain.GoodsReceiptResponse, error) {
	if err := s.requirePermission(ctx, "inventory", "receive"); err != nil {
		return domain.GoodsReceiptResponse{}, err
	}
	if req.BranchID == "" || len(req.Items) == 0 {
		return domain.GoodsReceiptResponse{}, store.ErrInvalidTransaction
	}
	if ok, err := s.branchExists(ctx, req.BranchID); err != nil {
		return domain.GoodsReceiptResponse{}, err
	} else if !ok {
		return domain.GoodsReceiptResponse{}, store.ErrInvalidTransaction
	}
	if req.SupplierID != "" {
		suppliers, err := s.repo.ListSuppliers(ctx)
		if err != nil {
			return domain.GoodsReceiptResponse{}, err
		}
		if !slices.ContainsFunc(suppliers, func(sp domain.Supplier) bool { return sp.ID == req.SupplierID }) {
			return domain.GoodsReceiptResponse{}, store.ErrNotFound
		}
	}
	for _, item := range req.Items {
		if item.Quantity <= 0 || item.PurchasePrice < 0 || item.SellingPrice < 0 {
			return domain.GoodsReceiptResponse{}, store.ErrInvalidTransaction
		}
		if item.PartID == "" && strings.TrimSpace(item.PartName) == "" {
			return domain.GoodsReceiptResponse{}, store.ErrInvalidTransaction
		}
	}

	receiptID := xid.New("PN")
	note := "Phiếu nhập " + receiptID
	if extra := strings.TrimSpace(req.Notes); extra != "" {
		note += ". " + extra
	}
	date := today()

	var warnings []string
	txs := make([]domain.InventoryTransaction, 0, len(req.Items))
	applied := map[string]int64{}
	type priorPricing struct {
		partID       string
		price        int64
		sellingPrice int64
	}
	var repriced []priorPricing
	revert := func() {
		s.revertStockDeltas(ctx, req.BranchID, applied)
		for _, prior := range repriced {
			part, err := s.repo.GetPartByID(ctx, prior.partID)
			if err != nil {
				log.Printf("[service] WARN: failed to restore prices part=%s: %v", prior.partID, err)
				continue
			}
			part.Price = prior.price
			part.SellingPrice = prior.sellingPrice
			if _, err := s.repo.UpdatePart(ctx, *part); err != nil {
				log.Printf("[service] WARN: failed to restore prices part=%s: %v", prior.partID, err)
			}
		}
	}
	for _, item := range req.Items {
		part, err := s.resolveReceiptPart(ctx, item)
		if err != nil {
			revert()
			return domain.GoodsReceiptResponse{}, err
		}

		if item.Quantity > largeReceiptQuantity {
			warnings = append(warnings, fmt.Sprintf("Số lượng nhập (%d) rất lớn.", item.Quantity))
		}
		if part.Price > 0 && item.PurchasePrice > part.Price+part.Price/10 {
			warnings = append(warnings, fmt.Sprintf("Đơn giá nhập mới (%d) cao hơn 10%% so với giá cũ (%d).", item.PurchasePrice, part.Price))
		} else if part.Price > 0 && item.PurchasePrice < part.Price {
			warnings = append(warnings, fmt.Sprintf("Đơn giá nhập mới (%d) thấp hơn giá cũ (%d).", item.PurchasePrice, part.Price))
		}

		prior := priorPricing{partID: part.ID, price: part.Price, sellingPrice: part.SellingPrice}
		part.Price = item.PurchasePrice
		part.SellingPrice = item.SellingPrice
		if _, err := s.repo.UpdatePart(ctx, *part); err != nil {
			revert()
			return domain.GoodsReceiptResponse{}, err
		}
		repriced = append(repriced, prior)
		if _, err := s.repo.AdjustStock(ctx, part.ID, req.BranchID, item.Quantity); err != nil {
			revert()
			return domain.GoodsReceiptResponse{}, err
		}
		applied[part.ID] += item.Quantity

		txs = append(txs, domain.InventoryTransaction{
			ID:         xid.New("TXN"),
			Type:       domain.TxTypeStockIn,
			PartID:     part.ID,
			PartName:   part.Name,
			Quantity:   item.Quantity,
			Date:       date,
			Notes:      note,
			UnitPrice:  item.PurchasePrice,
			TotalPrice: item.Quantity * item.PurchasePrice,
			BranchID:   req.BranchID,
		})
	}
	if err := s.repo.CreateTransactions(ctx, txs); err != nil {
		revert()
		return domain.GoodsReceiptResponse{}, err
	}

	s.logAudit(ctx, "goods_receipt", "receipt", receiptID, fmt.Sprintf("branch=%s,items=%d", req.BranchID, len(req.Items)))
	return domain.GoodsReceiptResponse{ReceiptID: receiptID, Warnings: warnings}, nil
}

func (s *Service) resolveReceiptPart(ctx context.Context, item domain.ReceiptItem) (*domain.Part, error) {
	if item.PartID != "" {
		return s.repo.GetPartByID(ctx, item.PartID)
	}
	name := strings.TrimSpace(item.PartName)
	part, err := s.repo.GetPartByName(ctx, name)
	if err == nil {
		return part, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	sku := strings.ToUpper(strings.TrimSpace(item.SKU))
	if sku == "" {
		sku = deriveSKU(name)
	}
	if _, err := s.repo.GetPartBySKU(ctx, sku); err == nil {
		sku = skuWithSuffix(sku)
	}
	category := item.Category
	if category == "" {
		category = domain.UncategorizedLabel
	}
	return s.repo.CreatePart(ctx, domain.Part{
		ID:             xid.New("PART"),
		Name:           name,
		SKU:            sku,
		Stock:          map[string]int64{},
		Price:          item.PurchasePrice,
		SellingPrice:   item.SellingPrice,
		Category:       category,
		WarrantyPeriod: item.WarrantyPeriod,
	})
}

// Sales aggregation.

// ListSales reconstructs checkout receipts from the branch's sale-tagged
// stock-out rows. Header fields come from the first row in each group.
// Ordering is date descending, then sale ID descending.
func (s *Service) ListSales(ctx context.Context, branchID string) ([]domain.Sale, error) {
	if err := s.requirePermission(ctx, "sales", "view"); err != nil {
		return nil, err
	}
	txs, err := s.repo.ListTransactionsByBranch(ctx, branchID)
	if err != nil {
		return nil, err
	}

	grouped := map[string][]domain.InventoryTransaction{}
	order := []string{}
	for _, tx := range txs {
		if tx.Type != domain.TxTypeStockOut || tx.SaleID == "" {
			continue
		}
		if _, seen := grouped[tx.SaleID]; !seen {
			order = append(order, tx.SaleID)
		}
		grouped[tx.SaleID] = append(grouped[tx.SaleID], tx)
	}

	sales := make([]domain.Sale, 0, len(order))
	for _, saleID := range order {
		group := grouped[saleID]
		first := group[0]
		sale := domain.Sale{
			ID:           saleID,
			Date:         first.Date,
			CustomerName: first.CustomerName,
			UserName:     first.UserName,
			Notes:        first.Notes,
		}
		for _, tx := range group {
			sale.Total += tx.TotalPrice
			sale.TotalDiscount += tx.Discount
			sale.Items = append(sale.Items, domain.SaleLine{
				PartName:   tx.PartName,
				Quantity:   tx.Quantity,
				TotalPrice: tx.TotalPrice,
			})
		}
		sales = append(sales, sale)
	}

	slices.SortFunc(sales, func(a, b domain.Sale) int {
		if a.Date != b.Date {
			return strings.Compare(b.Date, a.Date)
		}
		return strings.Compare(b.ID, a.ID)
	})
	return sales, nil
}

// GetSaleCart rebuilds an editable cart from a sale's ledger rows. Each
// line's available stock counts the sold quantity as returned and keeps its
// recorded discount; the order discount is whatever the line discounts do
// not already account for, clamped at zero.
func (s *Service) GetSaleCart(ctx context.Context, saleID string) (domain.SaleCart, error) {
	if err := s.requirePermission(ctx, "sales", "view"); err != nil {
		return domain.SaleCart{}, err
	}
	txs, err := s.repo.ListTransactionsBySaleID(ctx, saleID)
	if err != nil {
		return domain.SaleCart{}, err
	}
	if len(txs) == 0 {
		return domain.SaleCart{}, store.ErrNotFound
	}

	first := txs[0]
	cart := domain.SaleCart{
		SaleID:       saleID,
		CustomerID:   first.CustomerID,
		CustomerName: first.CustomerName,
		Date:         first.Date,
		Notes:        first.Notes,
	}

	var subtotal, salePrice, itemDiscounts int64
	for _, tx := range txs {
		stock := int64(0)
		sku := ""
		if part, err := s.repo.GetPartByID(ctx, tx.PartID); err == nil {
			stock = part.StockAt(tx.BranchID)
			sku = part.SKU
		}
		cart.Items = append(cart.Items, domain.SaleCartItem{
			PartID:       tx.PartID,
			PartName:     tx.PartName,
			SKU:          sku,
			Quantity:     tx.Quantity,
			SellingPrice: tx.UnitPrice,
			Stock:        stock + tx.Quantity,
			Discount:     tx.Discount,
		})
		subtotal += tx.UnitPrice * tx.Quantity
		salePrice += tx.TotalPrice
		itemDiscounts += tx.Discount
	}
	cart.OrderDiscount = subtotal - salePrice - itemDiscounts
	if cart.OrderDiscount < 0 {
		cart.OrderDiscount = 0
	}
	return cart, nil
}

// ListTransactions exposes the raw ledger for a branch, newest first.
func (s *Service) ListTransactions(ctx context.Context, branchID string) ([]domain.InventoryTransaction, error) {
	if err := s.requirePermission(ctx, "inventory", "view"); err != nil {
		return nil, err
	}
	if branchID == "" {
		return s.repo.ListTransactions(ctx)
	}
	return s.repo.ListTransactionsByBranch(ctx, branchID)
}

// SuggestSaleItems returns companion parts for an in-progress cart, ranked
// by how often they were sold together with the cart's parts.
func (s *Service) SuggestSaleItems(ctx context.Context, req domain.SuggestionRequest) ([]domain.PartSuggestion, error) {
	if err := s.requirePermission(ctx, "sales", "view"); err != nil {
		return nil, err
	}
	if len(req.PartIDs) == 0 {
		return nil, fmt.Errorf("%w: cần ít nhất một sản phẩm trong giỏ", store.ErrInvalidTransaction)
	}
	known, err := s.branchExists(ctx, req.BranchID)
	if err != nil {
		return nil, err
	}
	if !known {
		return nil, fmt.Errorf("%w: chi nhánh không tồn tại", store.ErrInvalidTransaction)
	}

	txs, err := s.repo.ListTransactions(ctx)
	if err != nil {
		return nil, err
	}
	grouped := map[string]map[string]struct{}{}
	for _, tx := range txs {
		if tx.Type != domain.TxTypeStockOut || tx.SaleID == "" {
			continue
		}
		if grouped[tx.SaleID] == nil {
			grouped[tx.SaleID] = map[string]struct{}{}
		}
		grouped[tx.SaleID][tx.PartID] = struct{}{}
	}
	history := make([][]string, 0, len(grouped))
	for _, ids := range grouped {
		sale := make([]string, 0, len(ids))
		for id := range ids {
			sale = append(sale, id)
		}
		history = append(history, sale)
	}

	parts, err := s.repo.ListParts(ctx)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]domain.Part, len(parts))
	for _, part := range parts {
		byID[part.ID] = part
	}

	return s.suggestions.Suggest(req.PartIDs, history, byID, req.BranchID), nil
}

func deriveSKU(name string) string {
	fields := strings.Fields(name)
	if len(fields) == 0 {
		return strings.ToUpper(name)
	}
	return strings.ToUpper(fields[0])
}

func skuWithSuffix(sku string) string {
	return fmt.Sprintf("%s-%d", sku, time.Now().Unix())
}
