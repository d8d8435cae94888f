package service

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"motocare/backend/internal/domain"
	"motocare/backend/internal/store"
	"motocare/backend/internal/xid"
)

// Substrings that identify the header row of an exported price list.
const (
	csvHeaderCategory = "danh mục sản phẩm"
	csvHeaderPrice    = "đơn giá nhập"
)

// ImportPartsCSV loads a supplier price list. Rows after the header row use
// column 1 for the name, 2 for the purchase price, 3 for the selling price
// and 5 for the opening stock; prices may carry '.' thousand separators.
// Rows match existing parts by exact name. Imported stock lands at the given
// branch with a synthetic stock-in row. Short or unparsable rows are counted,
// not fatal.
func (s *Service) ImportPartsCSV(ctx context.Context, branchID string, r io.Reader) (domain.CSVImportResult, error) {
	if err := s.requirePermission(ctx, "inventory", "import"); err != nil {
		return domain.CSVImportResult{}, err
	}
	if branchID == "" {
		return domain.CSVImportResult{}, store.ErrInvalidTransaction
	}
	if ok, err := s.branchExists(ctx, branchID); err != nil {
		return domain.CSVImportResult{}, err
	} else if !ok {
		return domain.CSVImportResult{}, store.ErrInvalidTransaction
	}

	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	rows, err := reader.ReadAll()
	if err != nil {
		return domain.CSVImportResult{}, fmt.Errorf("parse csv: %w", err)
	}

	headerIdx := -1
	for i, row := range rows {
		joined := strings.ToLower(strings.Join(row, ","))
		if strings.Contains(joined, csvHeaderCategory) && strings.Contains(joined, csvHeaderPrice) {
			headerIdx = i
			break
		}
	}
	if headerIdx < 0 {
		return domain.CSVImportResult{}, fmt.Errorf("%w: header row not found", store.ErrInvalidTransaction)
	}

	var result domain.CSVImportResult
	for _, row := range rows[headerIdx+1:] {
		if len(row) < 6 {
			result.Skipped++
			continue
		}
		name := strings.TrimSpace(row[1])
		price, priceErr := parseImportNumber(row[2])
		sellingPrice, sellingErr := parseImportNumber(row[3])
		stock, stockErr := parseImportNumber(row[5])
		if name == "" || priceErr != nil || sellingErr != nil {
			result.Skipped++
			continue
		}
		if stockErr != nil || stock < 0 {
			stock = 0
		}

		existing, err := s.repo.GetPartByName(ctx, name)
		switch {
		case err == nil:
			updated := *existing
			updated.Price = price
			updated.SellingPrice = sellingPrice
			if _, err := s.repo.UpdatePart(ctx, updated); err != nil {
				return result, err
			}
			if err := s.applyImportedStock(ctx, updated, branchID, stock); err != nil {
				return result, err
			}
			result.Updated++
		case errors.Is(err, store.ErrNotFound):
			sku := deriveSKU(name)
			if _, err := s.repo.GetPartBySKU(ctx, sku); err == nil {
				sku = skuWithSuffix(sku)
			}
			created, err := s.repo.CreatePart(ctx, domain.Part{
				ID:           xid.New("PART"),
				Name:         name,
				SKU:          sku,
				Stock:        map[string]int64{},
				Price:        price,
				SellingPrice: sellingPrice,
				Category:     domain.UncategorizedLabel,
			})
			if err != nil {
				return result, err
			}
			if err := s.applyImportedStock(ctx, *created, branchID, stock); err != nil {
				return result, err
			}
			result.Added++
		default:
			return result, err
		}
	}

	s.logAudit(ctx, "parts_import", "part", branchID, fmt.Sprintf("added=%d,updated=%d,skipped=%d", result.Added, result.Updated, result.Skipped))
	return result, nil
}

func (s *Service) applyImportedStock(ctx context.Context, part domain.Part, branchID string, qty int64) error {
	if qty <= 0 {
		return nil
	}
	if _, err := s.repo.AdjustStock(ctx, part.ID, branchID, qty); err != nil {
		return err
	}
	return s.repo.CreateTransactions(ctx, []domain.InventoryTransaction{{
		ID:         xid.New("TXN"),
		Type:       domain.TxTypeStockIn,
		PartID:     part.ID,
		PartName:   part.Name,
		Quantity:   qty,
		Date:       today(),
		Notes:      "Nhập kho từ tệp CSV",
		UnitPrice:  part.Price,
		TotalPrice: qty * part.Price,
		BranchID:   branchID,
	}})
}

// parseImportNumber accepts plain integers with optional '.' thousand
// separators, e.g. "1.250.000".
func parseImportNumber(value string) (int64, error) {
	cleaned := strings.ReplaceAll(strings.TrimSpace(value), ".", "")
	cleaned = strings.ReplaceAll(cleaned, " ", "")
	if cleaned == "" {
		return 0, strconv.ErrSyntax
	}
	return strconv.ParseInt(cleaned, 10, 64)
}
