package service

import (
	"errors"
	"strings"
	"testing"

	"motocare/backend/internal/domain"
	"motocare/backend/internal/store"
)

func TestImportPartsCSV(t *testing.T) {
	svc := newTestService()
	ctx := ownerCtx()

	csvData := strings.Join([]string{
		"BÁO GIÁ THÁNG 8,,,,,",
		"STT,Tên sản phẩm,Đơn giá nhập,Giá bán,Danh mục sản phẩm,Tồn",
		"1,Bugi NGK Iridium,85.000,115.000,Hệ thống điện,7",
		"2,Ốc titan GR5,12.000,25.000,Phụ kiện,20",
		"3,,9.000,15.000,Phụ kiện,5",
		"4,Lọc gió DNA,abc,60.000,Lọc,3",
		"5,Thiếu cột",
	}, "\n")

	result, err := svc.ImportPartsCSV(ctx, "main", strings.NewReader(csvData))
	if err != nil {
		t.Fatalf("import failed: %v", err)
	}
	if result.Updated != 1 || result.Added != 1 || result.Skipped != 3 {
		t.Fatalf("expected 1 updated, 1 added, 3 skipped, got %+v", result)
	}

	part, err := svc.GetPart(ctx, "PART-P001")
	if err != nil {
		t.Fatalf("get part failed: %v", err)
	}
	if part.Price != 85000 || part.SellingPrice != 115000 {
		t.Fatalf("expected prices 85000/115000 after import, got %d/%d", part.Price, part.SellingPrice)
	}
	if part.StockAt("main") != 17 {
		t.Fatalf("expected stock 10+7 after import, got %d", part.StockAt("main"))
	}

	parts, err := svc.ListParts(ctx)
	if err != nil {
		t.Fatalf("list parts failed: %v", err)
	}
	var created *domain.Part
	for i := range parts {
		if parts[i].Name == "Ốc titan GR5" {
			created = &parts[i]
		}
	}
	if created == nil {
		t.Fatalf("expected new row to create a part")
	}
	if created.Category != domain.UncategorizedLabel {
		t.Fatalf("expected imported part uncategorized, got %q", created.Category)
	}
	if created.StockAt("main") != 20 {
		t.Fatalf("expected imported stock 20, got %d", created.StockAt("main"))
	}

	txs, err := svc.ListTransactions(ctx, "main")
	if err != nil {
		t.Fatalf("list transactions failed: %v", err)
	}
	synthetic := 0
	for _, tx := range txs {
		if tx.Notes == "Nhập kho từ tệp CSV" {
			synthetic++
		}
	}
	if synthetic != 2 {
		t.Fatalf("expected 2 synthetic stock-in rows, got %d", synthetic)
	}
}

func TestImportPartsCSVMissingHeader(t *testing.T) {
	svc := newTestService()

	_, err := svc.ImportPartsCSV(ownerCtx(), "main", strings.NewReader("a,b,c\n1,2,3\n"))
	if !errors.Is(err, store.ErrInvalidTransaction) {
		t.Fatalf("expected ErrInvalidTransaction without header row, got %v", err)
	}
}

func TestImportPartsCSVUnknownBranch(t *testing.T) {
	svc := newTestService()

	_, err := svc.ImportPartsCSV(ownerCtx(), "q9", strings.NewReader(""))
	if !errors.Is(err, store.ErrInvalidTransaction) {
		t.Fatalf("expected ErrInvalidTransaction for unknown branch, got %v", err)
	}
}

func TestParseImportNumber(t *testing.T) {
	cases := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{"1.250.000", 1250000, false},
		{" 85.000 ", 85000, false},
		{"42", 42, false},
		{"", 0, true},
		{"abc", 0, true},
	}
	for _, tc := range cases {
		got, err := parseImportNumber(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("expected error for %q", tc.in)
			}
			continue
		}
		if err != nil {
			t.Fatalf("parse %q failed: %v", tc.in, err)
		}
		if got != tc.want {
			t.Fatalf("parse %q: expected %d, got %d", tc.in, tc.want, got)
		}
	}
}
