package service

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"motocare/backend/internal/domain"
	"motocare/backend/internal/store"
)

const (
	lowStockThreshold = 5

	// The inventory listing flags parts idle for two months; the inventory
	// report uses a stricter three-month window on actual sales.
	slowMovingListingDays = 60
	slowMovingReportDays  = 90

	expiryWindowDays = 30

	laborProductName = "Dịch vụ sửa chữa"
	laborProductSKU  = "DV-SC"
)

// InventorySummaries totals on-hand quantity and purchase value per branch.
func (s *Service) InventorySummaries(ctx context.Context) ([]domain.InventorySummary, error) {
	if err := s.requirePermission(ctx, "inventory", "view"); err != nil {
		return nil, err
	}
	settings, err := s.repo.GetStoreSettings(ctx)
	if err != nil {
		return nil, err
	}
	parts, err := s.repo.ListParts(ctx)
	if err != nil {
		return nil, err
	}

	summaries := make([]domain.InventorySummary, 0, len(settings.Branches))
	for _, branch := range settings.Branches {
		summary := domain.InventorySummary{BranchID: branch.ID}
		for _, part := range parts {
			qty := part.StockAt(branch.ID)
			summary.TotalQuantity += qty
			summary.TotalValue += qty * part.Price
		}
		summaries = append(summaries, summary)
	}
	return summaries, nil
}

func (s *Service) OutOfStockParts(ctx context.Context, branchID string) ([]domain.Part, error) {
	if err := s.requirePermission(ctx, "inventory", "view"); err != nil {
		return nil, err
	}
	parts, err := s.repo.ListParts(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Part, 0)
	for _, part := range parts {
		if part.StockAt(branchID) == 0 {
			out = append(out, part)
		}
	}
	return out, nil
}

func (s *Service) LowStockParts(ctx context.Context, branchID string) ([]domain.Part, error) {
	if err := s.requirePermission(ctx, "inventory", "view"); err != nil {
		return nil, err
	}
	parts, err := s.repo.ListParts(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Part, 0)
	for _, part := range parts {
		if qty := part.StockAt(branchID); qty > 0 && qty < lowStockThreshold {
			out = append(out, part)
		}
	}
	return out, nil
}

// SlowMovingParts flags in-stock parts whose last ledger activity of any kind
// at the branch is older than the listing window. Parts with no ledger rows
// at the branch are not flagged.
func (s *Service) SlowMovingParts(ctx context.Context, branchID string) ([]domain.SlowMovingPart, error) {
	if err := s.requirePermission(ctx, "inventory", "view"); err != nil {
		return nil, err
	}
	parts, err := s.repo.ListParts(ctx)
	if err != nil {
		return nil, err
	}
	txs, err := s.repo.ListTransactionsByBranch(ctx, branchID)
	if err != nil {
		return nil, err
	}

	lastActivity := map[string]string{}
	for _, tx := range txs {
		if tx.Date > lastActivity[tx.PartID] {
			lastActivity[tx.PartID] = tx.Date
		}
	}

	cutoff := time.Now().UTC().AddDate(0, 0, -slowMovingListingDays)
	out := make([]domain.SlowMovingPart, 0)
	for _, part := range parts {
		if part.StockAt(branchID) <= 0 {
			continue
		}
		last, ok := lastActivity[part.ID]
		if !ok {
			continue
		}
		lastDay, err := parseDay(last)
		if err != nil || !lastDay.Before(cutoff) {
			continue
		}
		out = append(out, domain.SlowMovingPart{
			Part:              part,
			LastSoldDate:      last,
			DaysSinceLastSale: int64(time.Now().UTC().Sub(lastDay).Hours() / 24),
		})
	}
	return out, nil
}

// InventoryReportFor surfaces restock and clearance candidates: low stock at
// any branch, stock expiring within the window, and in-stock parts whose last
// sale at the branch is older than the report window. A part that has never
// sold is not slow-moving.
func (s *Service) InventoryReportFor(ctx context.Context, branchID string) (domain.InventoryReport, error) {
	if err := s.requirePermission(ctx, "reports", "view"); err != nil {
		return domain.InventoryReport{}, err
	}
	parts, err := s.repo.ListParts(ctx)
	if err != nil {
		return domain.InventoryReport{}, err
	}
	txs, err := s.repo.ListTransactionsByBranch(ctx, branchID)
	if err != nil {
		return domain.InventoryReport{}, err
	}

	report := domain.InventoryReport{
		LowStock:     make([]domain.Part, 0),
		ExpiringSoon: make([]domain.Part, 0),
		SlowMoving:   make([]domain.SlowMovingPart, 0),
	}

	now := time.Now().UTC()
	todayStr := now.Format("2006-01-02")
	expiryLimit := now.AddDate(0, 0, expiryWindowDays).Format("2006-01-02")
	for _, part := range parts {
		for _, qty := range part.Stock {
			if qty > 0 && qty < lowStockThreshold {
				report.LowStock = append(report.LowStock, part)
				break
			}
		}
		if part.ExpiryDate != "" && part.TotalStock() > 0 &&
			part.ExpiryDate >= todayStr && part.ExpiryDate <= expiryLimit {
			report.ExpiringSoon = append(report.ExpiringSoon, part)
		}
	}

	lastSale := map[string]string{}
	for _, tx := range txs {
		if tx.Type != domain.TxTypeStockOut {
			continue
		}
		if tx.Date > lastSale[tx.PartID] {
			lastSale[tx.PartID] = tx.Date
		}
	}
	cutoff := now.AddDate(0, 0, -slowMovingReportDays)
	for _, part := range parts {
		if part.StockAt(branchID) <= 0 {
			continue
		}
		last, ok := lastSale[part.ID]
		if !ok {
			continue
		}
		lastDay, err := parseDay(last)
		if err != nil || !lastDay.Before(cutoff) {
			continue
		}
		report.SlowMoving = append(report.SlowMoving, domain.SlowMovingPart{
			Part:              part,
			LastSoldDate:      last,
			DaysSinceLastSale: int64(now.Sub(lastDay).Hours() / 24),
		})
	}
	return report, nil
}

func isoWeekKey(t time.Time) string {
	year, week := t.ISOWeek()
	return fmt.Sprintf("%d-W%02d", year, week)
}

func bucketKey(day time.Time, granularity string) string {
	switch granularity {
	case "week":
		return isoWeekKey(day)
	case "month":
		return day.Format("2006-01")
	default:
		return day.Format("2006-01-02")
	}
}

// RevenueReportFor merges two revenue streams: sale-tagged stock-out rows at
// their recorded total price, and returned work orders valued as stored parts
// prices plus labor. Labor shows up as a zero-cost service product. Costs use
// each part's current purchase price.
func (s *Service) RevenueReportFor(ctx context.Context, branchID string, from string, to string, granularity string) (domain.RevenueReport, error) {
	if err := s.requirePermission(ctx, "reports", "view"); err != nil {
		return domain.RevenueReport{}, err
	}
	switch granularity {
	case "", "day", "week", "month":
	default:
		return domain.RevenueReport{}, store.ErrInvalidTransaction
	}
	if from == "" || to == "" || from > to {
		return domain.RevenueReport{}, store.ErrInvalidTransaction
	}
	if _, err := parseDay(from); err != nil {
		return domain.RevenueReport{}, store.ErrInvalidTransaction
	}
	if _, err := parseDay(to); err != nil {
		return domain.RevenueReport{}, store.ErrInvalidTransaction
	}

	parts, err := s.repo.ListParts(ctx)
	if err != nil {
		return domain.RevenueReport{}, err
	}
	partByID := make(map[string]domain.Part, len(parts))
	for _, p := range parts {
		partByID[p.ID] = p
	}

	buckets := map[string]*domain.RevenueBucket{}
	products := map[string]*domain.ProductSales{}
	categories := map[string]int64{}
	report := domain.RevenueReport{}

	add := func(day time.Time, revenue int64, cost int64, name string, sku string, qty int64, category string) {
		key := bucketKey(day, granularity)
		bucket, ok := buckets[key]
		if !ok {
			bucket = &domain.RevenueBucket{Label: key}
			buckets[key] = bucket
		}
		bucket.Revenue += revenue
		bucket.Cost += cost
		bucket.Profit += revenue - cost

		prodKey := name + "|" + sku
		prod, ok := products[prodKey]
		if !ok {
			prod = &domain.ProductSales{PartName: name, SKU: sku}
			products[prodKey] = prod
		}
		prod.Quantity += qty
		prod.Revenue += revenue

		if category == "" {
			category = domain.UncategorizedLabel
		}
		categories[category] += revenue

		report.TotalRevenue += revenue
		report.TotalCost += cost
		report.TotalProfit += revenue - cost
	}

	txs, err := s.repo.ListTransactionsByBranch(ctx, branchID)
	if err != nil {
		return domain.RevenueReport{}, err
	}
	for _, tx := range txs {
		if tx.Type != domain.TxTypeStockOut || tx.SaleID == "" {
			continue
		}
		if tx.Date < from || tx.Date > to {
			continue
		}
		day, err := parseDay(tx.Date)
		if err != nil {
			continue
		}
		part, known := partByID[tx.PartID]
		var cost int64
		sku := ""
		category := ""
		if known {
			cost = part.Price * tx.Quantity
			sku = part.SKU
			category = part.Category
		}
		add(day, tx.TotalPrice, cost, tx.PartName, sku, tx.Quantity, category)
	}

	orders, err := s.repo.ListWorkOrders(ctx, branchID)
	if err != nil {
		return domain.RevenueReport{}, err
	}
	for _, order := range orders {
		if order.Status != domain.WorkOrderStatusReturned {
			continue
		}
		if order.CreationDate < from || order.CreationDate > to {
			continue
		}
		day, err := parseDay(order.CreationDate)
		if err != nil {
			continue
		}
		for _, used := range order.PartsUsed {
			var cost int64
			category := ""
			if part, known := partByID[used.PartID]; known {
				cost = part.Price * used.Quantity
				category = part.Category
			}
			add(day, used.Price*used.Quantity, cost, used.PartName, used.SKU, used.Quantity, category)
		}
		if order.LaborCost > 0 {
			add(day, order.LaborCost, 0, laborProductName, laborProductSKU, 1, domain.ServiceCategory)
		}
	}

	report.Buckets = make([]domain.RevenueBucket, 0, len(buckets))
	for _, bucket := range buckets {
		report.Buckets = append(report.Buckets, *bucket)
	}
	slices.SortFunc(report.Buckets, func(a, b domain.RevenueBucket) int {
		return strings.Compare(a.Label, b.Label)
	})

	report.ByProduct = make([]domain.ProductSales, 0, len(products))
	for _, prod := range products {
		report.ByProduct = append(report.ByProduct, *prod)
	}
	slices.SortFunc(report.ByProduct, func(a, b domain.ProductSales) int {
		if a.Revenue != b.Revenue {
			if a.Revenue > b.Revenue {
				return -1
			}
			return 1
		}
		return strings.Compare(a.PartName, b.PartName)
	})

	report.ByCategory = make([]domain.CategoryRevenue, 0, len(categories))
	for category, revenue := range categories {
		entry := domain.CategoryRevenue{Category: category, Revenue: revenue}
		if report.TotalRevenue > 0 {
			entry.Percentage = float64(revenue) / float64(report.TotalRevenue) * 100
		}
		report.ByCategory = append(report.ByCategory, entry)
	}
	slices.SortFunc(report.ByCategory, func(a, b domain.CategoryRevenue) int {
		if a.Revenue != b.Revenue {
			if a.Revenue > b.Revenue {
				return -1
			}
			return 1
		}
		return strings.Compare(a.Category, b.Category)
	})

	return report, nil
}

func (s *Service) DashboardSummaryFor(ctx context.Context, branchID string) (domain.DashboardSummary, error) {
	if err := s.requirePermission(ctx, "reports", "view"); err != nil {
		return domain.DashboardSummary{}, err
	}

	var summary domain.DashboardSummary
	orders, err := s.repo.ListWorkOrders(ctx, branchID)
	if err != nil {
		return domain.DashboardSummary{}, err
	}
	for _, order := range orders {
		if order.Status != domain.WorkOrderStatusReturned {
			summary.OpenWorkOrders++
		}
	}

	parts, err := s.repo.ListParts(ctx)
	if err != nil {
		return domain.DashboardSummary{}, err
	}
	for _, part := range parts {
		if qty := part.StockAt(branchID); qty > 0 && qty < lowStockThreshold {
			summary.LowStockParts++
		}
	}

	txs, err := s.repo.ListTransactionsByBranch(ctx, branchID)
	if err != nil {
		return domain.DashboardSummary{}, err
	}
	todayStr := today()
	for _, tx := range txs {
		if tx.Type == domain.TxTypeStockOut && tx.SaleID != "" && tx.Date == todayStr {
			summary.TodayRevenue += tx.TotalPrice
		}
	}
	return summary, nil
}

// VerifyStockLedger recomputes each part's per-branch stock from the full
// ledger and reports mismatches against the stored snapshot.
func (s *Service) VerifyStockLedger(ctx context.Context) ([]string, error) {
	if err := s.requirePermission(ctx, "inventory", "view"); err != nil {
		return nil, err
	}
	settings, err := s.repo.GetStoreSettings(ctx)
	if err != nil {
		return nil, err
	}
	parts, err := s.repo.ListParts(ctx)
	if err != nil {
		return nil, err
	}

	var mismatches []string
	for _, part := range parts {
		for _, branch := range settings.Branches {
			computed, err := s.repo.StockFromLedger(ctx, part.ID, branch.ID)
			if err != nil {
				return nil, err
			}
			if stored := part.StockAt(branch.ID); stored != computed {
				mismatches = append(mismatches, fmt.Sprintf("part=%s branch=%s stored=%d ledger=%d", part.ID, branch.ID, stored, computed))
			}
		}
	}
	return mismatches, nil
}

// ExportRevenueCSV renders the revenue report as a CSV document. kind selects
// the sheet: "summary" (default) emits the time buckets, "products" the
// per-product sales. Returns the document and a suggested filename.
func (s *Service) ExportRevenueCSV(ctx context.Context, kind string, branchID string, from string, to string, granularity string) ([]byte, string, error) {
	report, err := s.RevenueReportFor(ctx, branchID, from, to, granularity)
	if err != nil {
		return nil, "", err
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	var filename string

	switch kind {
	case "", "summary":
		filename = "bao_cao_doanh_thu.csv"
		_ = w.Write([]string{"Thoi gian", "Doanh thu (VND)", "Chi phi (VND)", "Loi nhuan (VND)"})
		for _, bucket := range report.Buckets {
			_ = w.Write([]string{
				bucket.Label,
				strconv.FormatInt(bucket.Revenue, 10),
				strconv.FormatInt(bucket.Cost, 10),
				strconv.FormatInt(bucket.Profit, 10),
			})
		}
	case "products":
		filename = "bao_cao_ban_hang_san_pham.csv"
		_ = w.Write([]string{"Ten san pham", "SKU", "So luong ban", "Doanh thu (VND)"})
		for _, product := range report.ByProduct {
			_ = w.Write([]string{
				product.PartName,
				product.SKU,
				strconv.FormatInt(product.Quantity, 10),
				strconv.FormatInt(product.Revenue, 10),
			})
		}
	default:
		return nil, "", fmt.Errorf("%w: loại báo cáo không hợp lệ", store.ErrInvalidTransaction)
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), filename, nil
}
