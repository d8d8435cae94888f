package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"motocare/backend/internal/domain"
	"motocare/backend/internal/service"
	"motocare/backend/internal/store/memory"
)

// newTestAPI builds a full API with an in-memory store, real AuthManager and
// real Service so handler tests exercise the complete request path.
func newTestAPI(t *testing.T) *API {
	t.Helper()

	repo := memory.NewSeeded()
	svc := service.New(repo, nil)
	auth := NewAuthManager("test-secret-key-1234567890abcdef", time.Hour, svc)

	return New(svc, auth, "*")
}

// loginAs authenticates against the seeded users and returns a bearer token.
func loginAs(t *testing.T, api *API, login string, password string) string {
	t.Helper()

	payload, _ := json.Marshal(domain.LoginRequest{Login: login, Password: password})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	api.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("login returned %d (body: %s)", rec.Code, rec.Body.String())
	}

	var resp domain.LoginResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode login response: %v", err)
	}
	if resp.AccessToken == "" {
		t.Fatalf("expected access token in login response")
	}
	return resp.AccessToken
}

func loginAsOwner(t *testing.T, api *API) string {
	return loginAs(t, api, "chucuahang", "password123")
}

func authedRequest(t *testing.T, api *API, method string, path string, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		req.Header.Set("X-CSRF-Token", fetchCSRFToken(t, api))
	}
	rec := httptest.NewRecorder()
	api.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHandleHealth(t *testing.T) {
	api := newTestAPI(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	api.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["ok"] != true {
		t.Fatalf("expected ok:true, got %v", body["ok"])
	}
}

func TestHandleLogin_InvalidCredentials(t *testing.T) {
	api := newTestAPI(t)

	payload, _ := json.Marshal(domain.LoginRequest{Login: "chucuahang", Password: "sai-mat-khau"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	api.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d (body: %s)", rec.Code, rec.Body.String())
	}
}

func TestPartsRequireBearerToken(t *testing.T) {
	api := newTestAPI(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/parts", nil)
	rec := httptest.NewRecorder()
	api.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}
}

func TestListPartsReturnsSeededCatalog(t *testing.T) {
	api := newTestAPI(t)
	token := loginAsOwner(t, api)

	rec := authedRequest(t, api, http.MethodGet, "/api/v1/parts", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	var body struct {
		Parts []domain.Part `json:"parts"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if len(body.Parts) != 3 {
		t.Fatalf("expected 3 seeded parts, got %d", len(body.Parts))
	}
}

func TestGetUnknownPartReturns404(t *testing.T) {
	api := newTestAPI(t)
	token := loginAsOwner(t, api)

	rec := authedRequest(t, api, http.MethodGet, "/api/v1/parts/PART-khong-ton-tai", token, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestNestedPartPathRejected(t *testing.T) {
	api := newTestAPI(t)
	token := loginAsOwner(t, api)

	rec := authedRequest(t, api, http.MethodGet, "/api/v1/parts/PART-P001/extra", token, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for nested path, got %d", rec.Code)
	}
}

func TestRecordSaleEndpoint(t *testing.T) {
	api := newTestAPI(t)
	token := loginAsOwner(t, api)

	rec := authedRequest(t, api, http.MethodPost, "/api/v1/sales", token, domain.RetailSaleRequest{
		BranchID: "main",
		Items:    []domain.SaleCartItem{{PartID: "PART-P001", Quantity: 2}},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	var resp domain.RetailSaleResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.SaleID == "" || resp.Total != 220000 {
		t.Fatalf("unexpected sale response: %+v", resp)
	}

	// Oversell returns a conflict.
	rec = authedRequest(t, api, http.MethodPost, "/api/v1/sales", token, domain.RetailSaleRequest{
		BranchID: "main",
		Items:    []domain.SaleCartItem{{PartID: "PART-P001", Quantity: 100}},
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 on oversell, got %d", rec.Code)
	}
}

func TestSaleLifecycleOverHTTP(t *testing.T) {
	api := newTestAPI(t)
	token := loginAsOwner(t, api)

	rec := authedRequest(t, api, http.MethodPost, "/api/v1/sales", token, domain.RetailSaleRequest{
		BranchID:      "main",
		Items:         []domain.SaleCartItem{{PartID: "PART-P002", Quantity: 1}},
		OrderDiscount: 20000,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	var created domain.RetailSaleResponse
	if err := json.NewDecoder(rec.Body).Decode(&created); err != nil {
		t.Fatalf("decode response: %v", err)
	}

	rec = authedRequest(t, api, http.MethodGet, "/api/v1/sales/"+created.SaleID, token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for cart, got %d", rec.Code)
	}
	var cartBody struct {
		Cart domain.SaleCart `json:"cart"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&cartBody); err != nil {
		t.Fatalf("decode cart: %v", err)
	}
	// The single line absorbed the whole prorated discount, so the
	// reconstructed order discount is zero.
	if cartBody.Cart.OrderDiscount != 0 {
		t.Fatalf("expected reconstructed order discount 0, got %d", cartBody.Cart.OrderDiscount)
	}
	if len(cartBody.Cart.Items) != 1 || cartBody.Cart.Items[0].Discount != 20000 {
		t.Fatalf("expected line discount 20000, got %+v", cartBody.Cart.Items)
	}

	rec = authedRequest(t, api, http.MethodDelete, "/api/v1/sales/"+created.SaleID, token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for delete, got %d", rec.Code)
	}

	rec = authedRequest(t, api, http.MethodGet, "/api/v1/sales/"+created.SaleID, token, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", rec.Code)
	}
}

func TestTechnicianForbiddenFromSales(t *testing.T) {
	api := newTestAPI(t)
	token := loginAs(t, api, "kythuatvien", "password123")

	rec := authedRequest(t, api, http.MethodPost, "/api/v1/sales", token, domain.RetailSaleRequest{
		BranchID: "main",
		Items:    []domain.SaleCartItem{{PartID: "PART-P001", Quantity: 1}},
	})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for technician sale, got %d", rec.Code)
	}
}

func TestRevenueReportValidatesQuery(t *testing.T) {
	api := newTestAPI(t)
	token := loginAsOwner(t, api)

	rec := authedRequest(t, api, http.MethodGet, "/api/v1/reports/revenue?branch=main&from=2026-08-01&to=2026-08-31&granularity=quarter", token, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad granularity, got %d", rec.Code)
	}

	rec = authedRequest(t, api, http.MethodGet, "/api/v1/reports/revenue?branch=main&from=2026-08-01&to=2026-08-31&granularity=month", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}
}

func TestUnknownJSONFieldRejected(t *testing.T) {
	api := newTestAPI(t)
	token := loginAsOwner(t, api)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/sales", bytes.NewReader([]byte(`{"branchId":"main","unexpected":1}`)))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("X-CSRF-Token", fetchCSRFToken(t, api))
	rec := httptest.NewRecorder()
	api.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown field, got %d", rec.Code)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	api := newTestAPI(t)
	token := loginAsOwner(t, api)

	rec := authedRequest(t, api, http.MethodDelete, "/api/v1/parts", token, nil)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
}

func TestCSVImportEndpoint(t *testing.T) {
	api := newTestAPI(t)
	token := loginAsOwner(t, api)

	csvData := "STT,Tên sản phẩm,Đơn giá nhập,Giá bán,Danh mục sản phẩm,Tồn\n" +
		"1,Bugi NGK Iridium,85.000,115.000,Hệ thống điện,2\n"
	req := httptest.NewRequest(http.MethodPost, "/api/v1/parts/import?branch=main", bytes.NewReader([]byte(csvData)))
	req.Header.Set("Content-Type", "text/csv")
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("X-CSRF-Token", fetchCSRFToken(t, api))
	rec := httptest.NewRecorder()
	api.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	var body struct {
		Result domain.CSVImportResult `json:"result"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if body.Result.Updated != 1 {
		t.Fatalf("expected 1 updated part, got %+v", body.Result)
	}
}

func TestRevenueExportEndpoint(t *testing.T) {
	api := newTestAPI(t)
	token := loginAsOwner(t, api)

	sale := domain.RetailSaleRequest{
		BranchID: "main",
		Date:     "2026-08-10",
		Items:    []domain.SaleCartItem{{PartID: "PART-P001", Quantity: 1}},
	}
	if rec := authedRequest(t, api, http.MethodPost, "/api/v1/sales", token, sale); rec.Code != http.StatusCreated {
		t.Fatalf("record sale returned %d (body: %s)", rec.Code, rec.Body.String())
	}

	rec := authedRequest(t, api, http.MethodGet, "/api/v1/reports/revenue/export?branch=main&from=2026-08-01&to=2026-08-31&type=summary", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("export returned %d (body: %s)", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/csv") {
		t.Fatalf("expected text/csv content type, got %q", ct)
	}
	if cd := rec.Header().Get("Content-Disposition"); !strings.Contains(cd, "bao_cao_doanh_thu.csv") {
		t.Fatalf("unexpected content disposition %q", cd)
	}
	if body := rec.Body.String(); !strings.Contains(body, "Thoi gian,Doanh thu (VND)") {
		t.Fatalf("expected CSV header in body, got %q", body)
	}

	rec = authedRequest(t, api, http.MethodGet, "/api/v1/reports/revenue/export?branch=main&from=2026-08-01&to=2026-08-31&type=charts", token, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown export type, got %d", rec.Code)
	}
}

func TestSaleSuggestionsEndpoint(t *testing.T) {
	api := newTestAPI(t)
	token := loginAsOwner(t, api)

	sale := domain.RetailSaleRequest{
		BranchID: "main",
		Items: []domain.SaleCartItem{
			{PartID: "PART-P001", Quantity: 1},
			{PartID: "PART-P002", Quantity: 1},
		},
	}
	if rec := authedRequest(t, api, http.MethodPost, "/api/v1/sales", token, sale); rec.Code != http.StatusCreated {
		t.Fatalf("record sale returned %d (body: %s)", rec.Code, rec.Body.String())
	}

	rec := authedRequest(t, api, http.MethodPost, "/api/v1/sales/suggestions", token, domain.SuggestionRequest{
		BranchID: "main",
		PartIDs:  []string{"PART-P001"},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("suggestions returned %d (body: %s)", rec.Code, rec.Body.String())
	}
	var payload struct {
		Suggestions []domain.PartSuggestion `json:"suggestions"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&payload); err != nil {
		t.Fatalf("decode suggestions: %v", err)
	}
	if len(payload.Suggestions) != 1 || payload.Suggestions[0].PartID != "PART-P002" {
		t.Fatalf("expected PART-P002 suggested, got %+v", payload.Suggestions)
	}

	rec = authedRequest(t, api, http.MethodPost, "/api/v1/sales/suggestions", token, domain.SuggestionRequest{BranchID: "main"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty cart, got %d", rec.Code)
	}
}
