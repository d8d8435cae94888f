package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"motocare/backend/internal/domain"
	"motocare/backend/internal/store"
	"motocare/backend/internal/store/memory"
)

func newTestService() *Service {
	return New(memory.NewSeeded(), nil)
}

func ownerCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{
		UserID:        "USR-1",
		Name:          "Chủ Cửa Hàng",
		DepartmentIDs: []string{"DEPT-admin"},
	})
}

func technicianCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{
		UserID:        "USR-2",
		Name:          "Kỹ Thuật Viên A",
		DepartmentIDs: []string{"DEPT-tech"},
	})
}

func TestAuthenticateSeededOwner(t *testing.T) {
	svc := newTestService()

	user, err := svc.Authenticate(context.Background(), "chucuahang", "password123")
	if err != nil {
		t.Fatalf("authenticate failed: %v", err)
	}
	if user.ID != "USR-1" {
		t.Fatalf("expected USR-1, got %s", user.ID)
	}
	if user.Password != "" {
		t.Fatalf("expected password hash to be cleared in response")
	}

	if _, err := svc.Authenticate(context.Background(), "chucuahang", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestAuthenticateByDisplayName(t *testing.T) {
	svc := newTestService()

	user, err := svc.Authenticate(context.Background(), "Chủ Cửa Hàng", "password123")
	if err != nil {
		t.Fatalf("authenticate by name failed: %v", err)
	}
	if user.ID != "USR-1" {
		t.Fatalf("expected USR-1, got %s", user.ID)
	}
}

func TestTechnicianCannotRecordSales(t *testing.T) {
	svc := newTestService()

	_, err := svc.RecordRetailSale(technicianCtx(), domain.RetailSaleRequest{
		BranchID: "main",
		Items:    []domain.SaleCartItem{{PartID: "PART-P001", Quantity: 1}},
	})
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}

func TestTechnicianCanViewPartsButNotTransfer(t *testing.T) {
	svc := newTestService()
	ctx := technicianCtx()

	if _, err := svc.ListParts(ctx); err != nil {
		t.Fatalf("expected technician to list parts: %v", err)
	}

	_, err := svc.TransferStock(ctx, domain.BranchTransferRequest{
		PartID:       "PART-P001",
		FromBranchID: "main",
		ToBranchID:   "q2",
		Quantity:     1,
	})
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden for transfer, got %v", err)
	}
}

func TestCreatePartSeedsInitialStockTransaction(t *testing.T) {
	svc := newTestService()
	ctx := ownerCtx()

	part, err := svc.CreatePart(ctx, domain.PartCreateRequest{
		Name:         "Má phanh Brembo",
		SKU:          "brembo-mp01",
		BranchID:     "main",
		InitialStock: 6,
		Price:        120000,
		SellingPrice: 180000,
	})
	if err != nil {
		t.Fatalf("create part failed: %v", err)
	}
	if part.SKU != "BREMBO-MP01" {
		t.Fatalf("expected SKU uppercased, got %s", part.SKU)
	}
	if part.StockAt("main") != 6 {
		t.Fatalf("expected initial stock 6, got %d", part.StockAt("main"))
	}

	txs, err := svc.ListTransactions(ctx, "main")
	if err != nil {
		t.Fatalf("list transactions failed: %v", err)
	}
	found := false
	for _, tx := range txs {
		if tx.PartID == part.ID && tx.Type == domain.TxTypeStockIn && tx.Notes == "Tồn kho ban đầu" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected an initial stock-in ledger row for the new part")
	}
}

func TestCreatePartRejectsDuplicateSKU(t *testing.T) {
	svc := newTestService()

	_, err := svc.CreatePart(ownerCtx(), domain.PartCreateRequest{
		Name:         "Bugi nhái",
		SKU:          "NGK-CPR8EAIX-9",
		BranchID:     "main",
		Price:        1000,
		SellingPrice: 2000,
	})
	if err == nil {
		t.Fatalf("expected duplicate SKU to be rejected")
	}
}

func TestWorkOrderTotalAndStockIsolation(t *testing.T) {
	svc := newTestService()
	ctx := ownerCtx()

	before, err := svc.GetPart(ctx, "PART-P001")
	if err != nil {
		t.Fatalf("get part failed: %v", err)
	}

	order, err := svc.CreateWorkOrder(ctx, domain.WorkOrder{
		CustomerName: "Trần Thị Bích",
		BranchID:     "main",
		Status:       domain.WorkOrderStatusReceived,
		LaborCost:    200000,
		Discount:     20000,
		PartsUsed: []domain.UsedPart{
			{PartID: "PART-P001", PartName: "Bugi NGK Iridium", SKU: "NGK-CPR8EAIX-9", Quantity: 2, Price: 110000},
		},
	})
	if err != nil {
		t.Fatalf("create work order failed: %v", err)
	}
	if order.Total != 400000 {
		t.Fatalf("expected total 400000 (labor + parts - discount), got %d", order.Total)
	}

	after, err := svc.GetPart(ctx, "PART-P001")
	if err != nil {
		t.Fatalf("get part failed: %v", err)
	}
	if after.StockAt("main") != before.StockAt("main") {
		t.Fatalf("work order parts must not move stock: before %d after %d", before.StockAt("main"), after.StockAt("main"))
	}
}

func TestWorkOrderRejectsUnknownStatus(t *testing.T) {
	svc := newTestService()

	_, err := svc.CreateWorkOrder(ownerCtx(), domain.WorkOrder{
		CustomerName: "Trần Thị Bích",
		BranchID:     "main",
		Status:       "Đã hủy",
	})
	if !errors.Is(err, store.ErrInvalidTransaction) {
		t.Fatalf("expected ErrInvalidTransaction for unknown status, got %v", err)
	}
}

func TestCashTransactionMovesPaymentSourceBalance(t *testing.T) {
	svc := newTestService()
	ctx := ownerCtx()

	created, err := svc.RecordCashTransaction(ctx, domain.CashTransaction{
		Type:            domain.CashTxExpense,
		Date:            "2026-08-01",
		Amount:          500000,
		Contact:         domain.CashContact{Name: "Phụ tùng Chợ Lớn"},
		PaymentSourceID: "CASHSRC-cash",
		BranchID:        "main",
	})
	if err != nil {
		t.Fatalf("record cash transaction failed: %v", err)
	}

	balance := func() int64 {
		sources, err := svc.ListPaymentSources(ctx)
		if err != nil {
			t.Fatalf("list payment sources failed: %v", err)
		}
		for _, src := range sources {
			if src.ID == "CASHSRC-cash" {
				return src.Balance
			}
		}
		t.Fatalf("cash source missing")
		return 0
	}

	if got := balance(); got != 4500000 {
		t.Fatalf("expected balance 4500000 after expense, got %d", got)
	}

	if err := svc.DeleteCashTransaction(ctx, created.ID); err != nil {
		t.Fatalf("delete cash transaction failed: %v", err)
	}
	if got := balance(); got != 5000000 {
		t.Fatalf("expected balance restored to 5000000, got %d", got)
	}
}

func TestUpdateUserKeepsPasswordWhenOmitted(t *testing.T) {
	svc := newTestService()
	ctx := ownerCtx()

	created, err := svc.CreateUser(ctx, domain.User{
		Name:          "Thu Ngân B",
		LoginPhone:    "0911222333",
		Password:      "matkhau456",
		Status:        domain.UserStatusActive,
		DepartmentIDs: []string{"DEPT-tech"},
	})
	if err != nil {
		t.Fatalf("create user failed: %v", err)
	}

	created.Name = "Thu Ngân B2"
	created.Password = ""
	if _, err := svc.UpdateUser(ctx, created); err != nil {
		t.Fatalf("update user failed: %v", err)
	}

	if _, err := svc.Authenticate(context.Background(), "0911222333", "matkhau456"); err != nil {
		t.Fatalf("expected original password to keep working after update: %v", err)
	}
}

func TestDeleteUserRejectsSelf(t *testing.T) {
	svc := newTestService()

	if err := svc.DeleteUser(ownerCtx(), "USR-1"); err == nil {
		t.Fatalf("expected self-delete to be rejected")
	}
}

func TestDeleteDepartmentInUse(t *testing.T) {
	svc := newTestService()

	err := svc.DeleteDepartment(ownerCtx(), "DEPT-tech")
	if !errors.Is(err, store.ErrInvalidTransaction) {
		t.Fatalf("expected ErrInvalidTransaction for department in use, got %v", err)
	}
}

func TestUpdateStoreSettingsValidatesBranches(t *testing.T) {
	svc := newTestService()
	ctx := ownerCtx()

	_, err := svc.UpdateStoreSettings(ctx, domain.StoreSettings{
		Name: "MotoCare Pro",
		Branches: []domain.Branch{
			{ID: "main", Name: "Chi nhánh Chính"},
			{ID: "main", Name: "Trùng mã"},
		},
	})
	if err == nil {
		t.Fatalf("expected duplicate branch ids to be rejected")
	}

	updated, err := svc.UpdateStoreSettings(ctx, domain.StoreSettings{
		Name: "MotoCare Pro",
		Branches: []domain.Branch{
			{ID: "main", Name: "Chi nhánh Chính"},
			{ID: "q7", Name: "Chi nhánh Quận 7"},
		},
	})
	if err != nil {
		t.Fatalf("update settings failed: %v", err)
	}
	if len(updated.Branches) != 2 {
		t.Fatalf("expected 2 branches, got %d", len(updated.Branches))
	}
}

func TestDiagnoseFallsBackWithoutAssistant(t *testing.T) {
	svc := newTestService()

	resp, err := svc.Diagnose(ownerCtx(), domain.DiagnoseRequest{Symptom: "Xe đề không nổ"})
	if err != nil {
		t.Fatalf("diagnose should not error without assistant: %v", err)
	}
	if resp.Advice != aiFallbackMessage {
		t.Fatalf("expected fallback advice, got %q", resp.Advice)
	}
}

func TestAuditLogRecordsMutations(t *testing.T) {
	svc := newTestService()
	ctx := ownerCtx()

	if _, err := svc.CreateSupplier(ctx, domain.Supplier{Name: "Phụ tùng Bình Tân"}); err != nil {
		t.Fatalf("create supplier failed: %v", err)
	}

	logs, err := svc.ListAuditLogs(ctx, 10)
	if err != nil {
		t.Fatalf("list audit logs failed: %v", err)
	}
	found := false
	for _, entry := range logs {
		if entry.EntityType == "supplier" && strings.Contains(entry.Detail, "Phụ tùng Bình Tân") {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected an audit entry for the supplier creation")
	}
}
