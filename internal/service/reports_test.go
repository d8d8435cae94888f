package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"motocare/backend/internal/domain"
	"motocare/backend/internal/store"
	"motocare/backend/internal/store/memory"
	"motocare/backend/internal/xid"
)

func TestLowStockBoundaries(t *testing.T) {
	repo := memory.NewSeeded()
	svc := New(repo, nil)
	ctx := ownerCtx()

	// Seeded q2 stock: P001=5, P002=10, P003=3. Only quantities strictly
	// between zero and the threshold count as low.
	low, err := svc.LowStockParts(ctx, "q2")
	if err != nil {
		t.Fatalf("low stock failed: %v", err)
	}
	if len(low) != 1 || low[0].ID != "PART-P003" {
		t.Fatalf("expected only PART-P003 low at q2, got %v", low)
	}

	if _, err := repo.AdjustStock(context.Background(), "PART-P003", "q2", -3); err != nil {
		t.Fatalf("adjust stock failed: %v", err)
	}
	low, err = svc.LowStockParts(ctx, "q2")
	if err != nil {
		t.Fatalf("low stock failed: %v", err)
	}
	if len(low) != 0 {
		t.Fatalf("expected zero stock to drop out of the low list, got %v", low)
	}

	out, err := svc.OutOfStockParts(ctx, "q2")
	if err != nil {
		t.Fatalf("out of stock failed: %v", err)
	}
	found := false
	for _, p := range out {
		if p.ID == "PART-P003" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected PART-P003 in the out-of-stock list")
	}
}

func TestInventorySummariesPerBranch(t *testing.T) {
	svc := newTestService()

	summaries, err := svc.InventorySummaries(ownerCtx())
	if err != nil {
		t.Fatalf("summaries failed: %v", err)
	}
	if len(summaries) != 2 {
		t.Fatalf("expected one summary per branch, got %d", len(summaries))
	}
	// main: 10+20+8 units, 10*80000 + 20*150000 + 8*450000.
	for _, s := range summaries {
		if s.BranchID != "main" {
			continue
		}
		if s.TotalQuantity != 38 {
			t.Fatalf("expected 38 units at main, got %d", s.TotalQuantity)
		}
		if s.TotalValue != 7400000 {
			t.Fatalf("expected purchase value 7400000 at main, got %d", s.TotalValue)
		}
	}
}

func TestVerifyStockLedgerCleanAfterSales(t *testing.T) {
	svc := newTestService()
	ctx := ownerCtx()

	mismatches, err := svc.VerifyStockLedger(ctx)
	if err != nil {
		t.Fatalf("verify failed: %v", err)
	}
	if len(mismatches) != 0 {
		t.Fatalf("expected seeded store to verify clean, got %v", mismatches)
	}

	resp, err := svc.RecordRetailSale(ctx, domain.RetailSaleRequest{
		BranchID: "main",
		Items:    []domain.SaleCartItem{{PartID: "PART-P001", Quantity: 2}},
	})
	if err != nil {
		t.Fatalf("record sale failed: %v", err)
	}
	if err := svc.DeleteRetailSale(ctx, resp.SaleID); err != nil {
		t.Fatalf("delete sale failed: %v", err)
	}

	mismatches, err = svc.VerifyStockLedger(ctx)
	if err != nil {
		t.Fatalf("verify failed: %v", err)
	}
	if len(mismatches) != 0 {
		t.Fatalf("expected ledger to match after sale and delete, got %v", mismatches)
	}
}

func TestSlowMovingPartsFlagsIdleStock(t *testing.T) {
	repo := memory.NewSeeded()
	svc := New(repo, nil)
	ctx := context.Background()

	oldDate := time.Now().UTC().AddDate(0, 0, -200).Format("2006-01-02")
	part, err := repo.CreatePart(ctx, domain.Part{
		ID: "PART-IDLE", Name: "Ắc quy GS cũ", SKU: "GS-OLD",
		Stock: map[string]int64{"main": 4}, Price: 300000, SellingPrice: 420000,
	})
	if err != nil {
		t.Fatalf("create part failed: %v", err)
	}
	if err := repo.CreateTransactions(ctx, []domain.InventoryTransaction{{
		ID: xid.New("TXN"), Type: domain.TxTypeStockOut,
		PartID: part.ID, PartName: part.Name, Quantity: 1,
		Date: oldDate, UnitPrice: 420000, TotalPrice: 420000, BranchID: "main",
	}}); err != nil {
		t.Fatalf("seed old transaction failed: %v", err)
	}

	slow, err := svc.SlowMovingParts(ownerCtx(), "main")
	if err != nil {
		t.Fatalf("slow moving failed: %v", err)
	}
	if len(slow) != 1 || slow[0].Part.ID != "PART-IDLE" {
		t.Fatalf("expected only the idle part flagged, got %v", slow)
	}
	if slow[0].LastSoldDate != oldDate {
		t.Fatalf("expected last activity %s, got %s", oldDate, slow[0].LastSoldDate)
	}
	if slow[0].DaysSinceLastSale < 199 {
		t.Fatalf("expected roughly 200 idle days, got %d", slow[0].DaysSinceLastSale)
	}

	report, err := svc.InventoryReportFor(ownerCtx(), "main")
	if err != nil {
		t.Fatalf("inventory report failed: %v", err)
	}
	if len(report.SlowMoving) != 1 || report.SlowMoving[0].Part.ID != "PART-IDLE" {
		t.Fatalf("expected the idle part in the report, got %v", report.SlowMoving)
	}
}

func TestInventoryReportNeverSoldExcluded(t *testing.T) {
	svc := newTestService()

	// Seeded parts have stock-in rows only, so nothing qualifies as
	// slow-moving in the report.
	report, err := svc.InventoryReportFor(ownerCtx(), "main")
	if err != nil {
		t.Fatalf("inventory report failed: %v", err)
	}
	if len(report.SlowMoving) != 0 {
		t.Fatalf("expected no slow movers without any sales, got %v", report.SlowMoving)
	}
}

func TestInventoryReportExpiringSoon(t *testing.T) {
	repo := memory.NewSeeded()
	svc := New(repo, nil)

	soon := time.Now().UTC().AddDate(0, 0, 10).Format("2006-01-02")
	if _, err := repo.CreatePart(context.Background(), domain.Part{
		ID: "PART-EXP", Name: "Nhớt cận hạn", SKU: "NHOT-CH",
		Stock: map[string]int64{"main": 2}, Price: 90000, SellingPrice: 120000,
		ExpiryDate: soon,
	}); err != nil {
		t.Fatalf("create part failed: %v", err)
	}

	report, err := svc.InventoryReportFor(ownerCtx(), "main")
	if err != nil {
		t.Fatalf("inventory report failed: %v", err)
	}
	found := false
	for _, p := range report.ExpiringSoon {
		if p.ID == "PART-EXP" {
			found = true
		}
		if p.ID == "PART-P002" {
			t.Fatalf("PART-P002 expires in two years and must not be flagged")
		}
	}
	if !found {
		t.Fatalf("expected the near-expiry part to be flagged")
	}
}

func TestRevenueReportMergesSalesAndWorkOrders(t *testing.T) {
	svc := newTestService()
	ctx := ownerCtx()

	if _, err := svc.RecordRetailSale(ctx, domain.RetailSaleRequest{
		BranchID: "main",
		Items:    []domain.SaleCartItem{{PartID: "PART-P001", Quantity: 2}},
		Date:     "2026-08-10",
	}); err != nil {
		t.Fatalf("record sale failed: %v", err)
	}

	if _, err := svc.CreateWorkOrder(ctx, domain.WorkOrder{
		CustomerName: "Trần Thị Bích",
		BranchID:     "main",
		CreationDate: "2026-08-12",
		Status:       domain.WorkOrderStatusReturned,
		LaborCost:    150000,
		PartsUsed: []domain.UsedPart{
			{PartID: "PART-P002", PartName: "Nhớt Motul 300V", SKU: "MOTUL-300V", Quantity: 1, Price: 220000},
		},
	}); err != nil {
		t.Fatalf("create work order failed: %v", err)
	}

	// An open work order in the window contributes nothing.
	if _, err := svc.CreateWorkOrder(ctx, domain.WorkOrder{
		CustomerName: "Lê Văn Cường",
		BranchID:     "main",
		CreationDate: "2026-08-12",
		Status:       domain.WorkOrderStatusRepairing,
		LaborCost:    999000,
	}); err != nil {
		t.Fatalf("create work order failed: %v", err)
	}

	report, err := svc.RevenueReportFor(ctx, "main", "2026-08-01", "2026-08-31", "day")
	if err != nil {
		t.Fatalf("revenue report failed: %v", err)
	}

	// Sale: 2x110000 revenue, 2x80000 cost. Work order: 220000 part
	// revenue at 150000 cost, plus 150000 zero-cost labor.
	if report.TotalRevenue != 590000 {
		t.Fatalf("expected revenue 590000, got %d", report.TotalRevenue)
	}
	if report.TotalCost != 310000 {
		t.Fatalf("expected cost 310000, got %d", report.TotalCost)
	}
	if report.TotalProfit != 280000 {
		t.Fatalf("expected profit 280000, got %d", report.TotalProfit)
	}

	if len(report.Buckets) != 2 {
		t.Fatalf("expected 2 daily buckets, got %d", len(report.Buckets))
	}
	if report.Buckets[0].Label != "2026-08-10" || report.Buckets[1].Label != "2026-08-12" {
		t.Fatalf("expected ascending bucket labels, got %v", report.Buckets)
	}

	foundLabor := false
	for _, prod := range report.ByProduct {
		if prod.PartName == laborProductName && prod.SKU == laborProductSKU {
			foundLabor = true
			if prod.Revenue != 150000 {
				t.Fatalf("expected labor revenue 150000, got %d", prod.Revenue)
			}
		}
	}
	if !foundLabor {
		t.Fatalf("expected labor as a service product line")
	}

	var percentTotal float64
	for _, cat := range report.ByCategory {
		percentTotal += cat.Percentage
	}
	if percentTotal < 99.9 || percentTotal > 100.1 {
		t.Fatalf("expected category percentages to sum to 100, got %f", percentTotal)
	}
}

func TestRevenueReportMonthlyBuckets(t *testing.T) {
	svc := newTestService()
	ctx := ownerCtx()

	for _, date := range []string{"2026-07-02", "2026-08-15"} {
		if _, err := svc.RecordRetailSale(ctx, domain.RetailSaleRequest{
			BranchID: "main",
			Items:    []domain.SaleCartItem{{PartID: "PART-P001", Quantity: 1}},
			Date:     date,
		}); err != nil {
			t.Fatalf("record sale failed: %v", err)
		}
	}

	report, err := svc.RevenueReportFor(ctx, "main", "2026-07-01", "2026-08-31", "month")
	if err != nil {
		t.Fatalf("revenue report failed: %v", err)
	}
	if len(report.Buckets) != 2 {
		t.Fatalf("expected 2 monthly buckets, got %d", len(report.Buckets))
	}
	if report.Buckets[0].Label != "2026-07" || report.Buckets[1].Label != "2026-08" {
		t.Fatalf("expected 2026-07 and 2026-08, got %v", report.Buckets)
	}
}

func TestRevenueReportValidation(t *testing.T) {
	svc := newTestService()
	ctx := ownerCtx()

	if _, err := svc.RevenueReportFor(ctx, "main", "2026-08-31", "2026-08-01", "day"); err == nil {
		t.Fatalf("expected inverted range to be rejected")
	}
	if _, err := svc.RevenueReportFor(ctx, "main", "2026-08-01", "2026-08-31", "quarter"); err == nil {
		t.Fatalf("expected unknown granularity to be rejected")
	}
}

func TestDashboardSummary(t *testing.T) {
	svc := newTestService()
	ctx := ownerCtx()

	if _, err := svc.CreateWorkOrder(ctx, domain.WorkOrder{
		CustomerName: "Trần Thị Bích",
		BranchID:     "main",
		Status:       domain.WorkOrderStatusRepairing,
	}); err != nil {
		t.Fatalf("create work order failed: %v", err)
	}
	if _, err := svc.CreateWorkOrder(ctx, domain.WorkOrder{
		CustomerName: "Lê Văn Cường",
		BranchID:     "main",
		Status:       domain.WorkOrderStatusReturned,
	}); err != nil {
		t.Fatalf("create work order failed: %v", err)
	}
	if _, err := svc.RecordRetailSale(ctx, domain.RetailSaleRequest{
		BranchID: "main",
		Items:    []domain.SaleCartItem{{PartID: "PART-P001", Quantity: 1}},
	}); err != nil {
		t.Fatalf("record sale failed: %v", err)
	}

	summary, err := svc.DashboardSummaryFor(ctx, "main")
	if err != nil {
		t.Fatalf("dashboard failed: %v", err)
	}
	if summary.OpenWorkOrders != 1 {
		t.Fatalf("expected 1 open work order, got %d", summary.OpenWorkOrders)
	}
	if summary.TodayRevenue != 110000 {
		t.Fatalf("expected today revenue 110000, got %d", summary.TodayRevenue)
	}
}

func TestExportRevenueCSV(t *testing.T) {
	svc := newTestService()
	ctx := ownerCtx()

	_, err := svc.RecordRetailSale(ctx, domain.RetailSaleRequest{
		BranchID: "main",
		Date:     "2026-08-10",
		Items:    []domain.SaleCartItem{{PartID: "PART-P001", Quantity: 1}},
	})
	if err != nil {
		t.Fatalf("record sale: %v", err)
	}

	doc, filename, err := svc.ExportRevenueCSV(ctx, "summary", "main", "2026-08-01", "2026-08-31", "day")
	if err != nil {
		t.Fatalf("export summary: %v", err)
	}
	if filename != "bao_cao_doanh_thu.csv" {
		t.Fatalf("unexpected filename %q", filename)
	}
	lines := strings.Split(strings.TrimSpace(string(doc)), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected header plus one bucket row, got %d lines: %q", len(lines), lines)
	}
	if lines[0] != "Thoi gian,Doanh thu (VND),Chi phi (VND),Loi nhuan (VND)" {
		t.Fatalf("unexpected header %q", lines[0])
	}
	if lines[1] != "2026-08-10,110000,80000,30000" {
		t.Fatalf("unexpected bucket row %q", lines[1])
	}

	doc, filename, err = svc.ExportRevenueCSV(ctx, "products", "main", "2026-08-01", "2026-08-31", "day")
	if err != nil {
		t.Fatalf("export products: %v", err)
	}
	if filename != "bao_cao_ban_hang_san_pham.csv" {
		t.Fatalf("unexpected filename %q", filename)
	}
	lines = strings.Split(strings.TrimSpace(string(doc)), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected header plus one product row, got %d lines: %q", len(lines), lines)
	}
	if lines[1] != "Bugi NGK Iridium,NGK-CPR8EAIX-9,1,110000" {
		t.Fatalf("unexpected product row %q", lines[1])
	}

	if _, _, err := svc.ExportRevenueCSV(ctx, "charts", "main", "2026-08-01", "2026-08-31", "day"); !errors.Is(err, store.ErrInvalidTransaction) {
		t.Fatalf("expected invalid transaction for unknown export type, got %v", err)
	}
}
