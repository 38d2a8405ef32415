package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"kasirkoperasi/backend/internal/domain"
	"kasirkoperasi/backend/internal/export"
	"kasirkoperasi/backend/internal/service"
	"kasirkoperasi/backend/internal/store/memory"
)

// newTestAPI builds a full API with an in-memory store, real AuthManager and
// real Service so handler tests exercise the complete request path.
func newTestAPI(t *testing.T) *API {
	t.Helper()

	ctx := context.Background()
	repo := memory.New()
	if err := EnsureDefaultUsers(ctx, repo, "admin123", "kasir123"); err != nil {
		t.Fatalf("seed users: %v", err)
	}
	svc := service.New(repo, nil, service.Options{})
	auth := NewAuthManager(ctx, "test-secret-key", time.Hour, "123456", repo)

	return New(svc, auth, "*")
}

// mustHashPassword generates a bcrypt hash of the given password or fails the test.
func mustHashPassword(t *testing.T, plain string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	return string(hash)
}

func doJSON(t *testing.T, api *API, method string, path string, token string, payload any) *httptest.ResponseRecorder {
	t.Helper()

	var body *bytes.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
		body = bytes.NewReader(raw)
	} else {
		body = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	api.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, dest any) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(dest); err != nil {
		t.Fatalf("decode body: %v", err)
	}
}

func seedCapital(t *testing.T, api *API, token string, amount int64) {
	t.Helper()
	rec := doJSON(t, api, http.MethodPost, "/api/v1/cashflow", token, domain.FlowEntryRequest{
		Type:          domain.FlowTypeIncome,
		AmountCents:   amount,
		Description:   "modal awal",
		PaymentMethod: domain.PaymentMethodCash,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("seed capital: expected 201, got %d (body: %s)", rec.Code, rec.Body.String())
	}
}

func receiveStock(t *testing.T, api *API, token string, name string, qty int, cost int64, price int64) domain.StockIntakeResult {
	t.Helper()
	rec := doJSON(t, api, http.MethodPost, "/api/v1/stock/batches", token, domain.StockIntakeRequest{
		ProductName:    name,
		Category:       "sembako",
		Qty:            qty,
		UnitCostCents:  cost,
		SalePriceCents: price,
		PaymentMethod:  domain.PaymentMethodCash,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("intake %s: expected 201, got %d (body: %s)", name, rec.Code, rec.Body.String())
	}
	var result domain.StockIntakeResult
	decodeBody(t, rec, &result)
	return result
}

func TestHandleHealth(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var body map[string]any
	decodeBody(t, rec, &body)
	if body["ok"] != true {
		t.Fatalf("expected ok:true, got %v", body["ok"])
	}
}

func TestHandleLogin_Success(t *testing.T) {
	api := newTestAPI(t)

	rec := doJSON(t, api, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"username": "admin",
		"password": "admin123",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	var body map[string]any
	decodeBody(t, rec, &body)
	if body["access_token"] == "" || body["access_token"] == nil {
		t.Fatalf("expected access_token in response, got %v", body)
	}
	if body["role"] != RoleAdmin {
		t.Fatalf("expected admin role, got %v", body["role"])
	}
}

func TestHandleLogin_InvalidCredentials(t *testing.T) {
	api := newTestAPI(t)

	rec := doJSON(t, api, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"username": "admin",
		"password": "wrongpassword",
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d (body: %s)", rec.Code, rec.Body.String())
	}
}

func TestHandleProducts_RequiresAuth(t *testing.T) {
	api := newTestAPI(t)

	rec := doJSON(t, api, http.MethodGet, "/api/v1/products", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestCashierCannotReceiveStock(t *testing.T) {
	api := newTestAPI(t)
	token := loginAs(t, api, "kasir", "kasir123")

	rec := doJSON(t, api, http.MethodGet, "/api/v1/products", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("cashier should list products, got %d", rec.Code)
	}

	rec = doJSON(t, api, http.MethodPost, "/api/v1/stock/batches", token, domain.StockIntakeRequest{
		ProductName: "Gula", Category: "sembako", Qty: 1, UnitCostCents: 100, SalePriceCents: 200,
	})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for cashier intake, got %d", rec.Code)
	}
}

func TestIntakeAndSaleFlowThroughLedger(t *testing.T) {
	api := newTestAPI(t)
	admin := loginAsAdmin(t, api)
	cashier := loginAs(t, api, "kasir", "kasir123")

	seedCapital(t, api, admin, 500_000)
	intake := receiveStock(t, api, admin, "Beras 5kg", 10, 20_000, 30_000)
	if intake.Expense == nil || intake.Expense.AmountCents != 200_000 {
		t.Fatalf("expected 200000 stock expense, got %+v", intake.Expense)
	}

	rec := doJSON(t, api, http.MethodPost, "/api/v1/transactions", cashier, domain.SaleRequest{
		ID:                "TRX-1",
		PaymentMethod:     domain.PaymentMethodCash,
		CashReceivedCents: 100_000,
		Lines: []domain.SaleLineRequest{
			{ProductID: intake.Product.ID, Qty: 3, UnitPriceCents: 30_000},
		},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("sale: expected 201, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	var sale domain.Sale
	decodeBody(t, rec, &sale)
	if sale.ChangeCents != 10_000 {
		t.Fatalf("expected change 10000, got %d", sale.ChangeCents)
	}
	if sale.CreatedBy != "kasir" {
		t.Fatalf("expected sale to be attributed to kasir, got %q", sale.CreatedBy)
	}

	rec = doJSON(t, api, http.MethodGet, "/api/v1/products/"+intake.Product.ID, cashier, nil)
	var productBody struct {
		Product domain.Product `json:"product"`
	}
	decodeBody(t, rec, &productBody)
	if productBody.Product.Stock != 7 {
		t.Fatalf("expected stock 7 after sale, got %d", productBody.Product.Stock)
	}

	// 500000 capital - 200000 stock + 90000 sale.
	rec = doJSON(t, api, http.MethodGet, "/api/v1/cashflow/balance", cashier, nil)
	var balances map[string]int64
	decodeBody(t, rec, &balances)
	if balances["cash_cents"] != 390_000 {
		t.Fatalf("expected cash balance 390000, got %d", balances["cash_cents"])
	}

	rec = doJSON(t, api, http.MethodGet, "/api/v1/stock/consistency", admin, nil)
	var consistency struct {
		Consistent bool `json:"consistent"`
	}
	decodeBody(t, rec, &consistency)
	if !consistency.Consistent {
		t.Fatalf("expected stock to stay consistent")
	}
}

func TestServiceErrorsMapToStatus(t *testing.T) {
	api := newTestAPI(t)
	admin := loginAsAdmin(t, api)

	seedCapital(t, api, admin, 100_000)
	intake := receiveStock(t, api, admin, "Kopi Sachet", 5, 1_000, 1_500)

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		want   int
	}{
		{
			name:   "oversell",
			method: http.MethodPost,
			path:   "/api/v1/products/" + intake.Product.ID + "/consume",
			body:   map[string]int{"qty": 6},
			want:   http.StatusConflict,
		},
		{
			name:   "insufficient funds",
			method: http.MethodPost,
			path:   "/api/v1/stock/batches",
			body: domain.StockIntakeRequest{
				ProductName: "Minyak 2L", Category: "sembako", Qty: 100, UnitCostCents: 30_000, SalePriceCents: 35_000,
				PaymentMethod: domain.PaymentMethodCash,
			},
			want: http.StatusConflict,
		},
		{
			name:   "unknown batch",
			method: http.MethodPost,
			path:   "/api/v1/stock/batches/batch-missing/restock",
			body:   domain.RestockRequest{AdditionalQty: 1, PaymentMethod: domain.PaymentMethodCash},
			want:   http.StatusNotFound,
		},
		{
			name:   "unknown transaction",
			method: http.MethodGet,
			path:   "/api/v1/transactions/TRX-missing",
			want:   http.StatusNotFound,
		},
		{
			name:   "invalid summary range",
			method: http.MethodGet,
			path:   "/api/v1/cashflow/summary?start=2026-03-10&end=2026-03-01",
			want:   http.StatusBadRequest,
		},
		{
			name:   "unknown field",
			method: http.MethodPost,
			path:   "/api/v1/cashflow",
			body:   map[string]any{"type": "income", "amount_cents": 10, "surprise": true},
			want:   http.StatusBadRequest,
		},
		{
			name:   "bad month",
			method: http.MethodGet,
			path:   "/api/v1/monthly-balances/last?year=2026&month=13",
			want:   http.StatusBadRequest,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := doJSON(t, api, tc.method, tc.path, admin, tc.body)
			if rec.Code != tc.want {
				t.Fatalf("expected %d, got %d (body: %s)", tc.want, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestOverrideRequiresManagerPIN(t *testing.T) {
	api := newTestAPI(t)
	admin := loginAsAdmin(t, api)

	req := domain.StockIntakeRequest{
		ProductName:        "Telur 1kg",
		Category:           "sembako",
		Qty:                10,
		UnitCostCents:      25_000,
		SalePriceCents:     28_000,
		PaymentMethod:      domain.PaymentMethodCash,
		OverrideFundsCheck: true,
		ManagerPIN:         "999999",
	}
	rec := doJSON(t, api, http.MethodPost, "/api/v1/stock/batches", admin, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 with wrong PIN, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	req.ManagerPIN = "123456"
	rec = doJSON(t, api, http.MethodPost, "/api/v1/stock/batches", admin, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 with manager PIN, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, api, http.MethodGet, "/api/v1/cashflow/balance", admin, nil)
	var balances map[string]int64
	decodeBody(t, rec, &balances)
	if balances["cash_cents"] != -250_000 {
		t.Fatalf("expected overdrawn cash -250000, got %d", balances["cash_cents"])
	}
}

func TestDeleteBatchReturnsNoContent(t *testing.T) {
	api := newTestAPI(t)
	admin := loginAsAdmin(t, api)

	seedCapital(t, api, admin, 100_000)
	intake := receiveStock(t, api, admin, "Sabun", 4, 5_000, 7_000)

	rec := doJSON(t, api, http.MethodDelete, "/api/v1/stock/batches/"+intake.Batch.ID+"?refund=true", admin, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, api, http.MethodDelete, "/api/v1/stock/batches/"+intake.Batch.ID+"?refund=maybe", admin, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad refund flag, got %d", rec.Code)
	}
}

func TestSummaryExportIsWorkbook(t *testing.T) {
	api := newTestAPI(t)
	admin := loginAsAdmin(t, api)
	seedCapital(t, api, admin, 100_000)

	today := time.Now().UTC().Format("2006-01-02")
	rec := doJSON(t, api, http.MethodGet, "/api/v1/cashflow/summary?start="+today+"&end="+today, admin, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("summary: expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	var summary domain.CashFlowSummary
	decodeBody(t, rec, &summary)
	if summary.Cash.ClosingCents != 100_000 {
		t.Fatalf("expected closing 100000, got %d", summary.Cash.ClosingCents)
	}

	rec = doJSON(t, api, http.MethodGet, "/api/v1/cashflow/summary.xlsx?start="+today+"&end="+today, admin, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("export: expected 200, got %d", rec.Code)
	}
	if got := rec.Header().Get("Content-Type"); got != export.ContentType {
		t.Fatalf("expected xlsx content type, got %q", got)
	}
	if rec.Body.Len() == 0 {
		t.Fatalf("expected workbook bytes")
	}
}

func TestCreateCashierThroughAPI(t *testing.T) {
	api := newTestAPI(t)
	admin := loginAsAdmin(t, api)

	rec := doJSON(t, api, http.MethodPost, "/api/v1/users/cashiers", admin, domain.CashierCreateRequest{
		Username: "kasirsore",
		Password: "sore1234",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, api, http.MethodGet, "/api/v1/users/cashiers", admin, nil)
	var body struct {
		Cashiers []domain.CashierUser `json:"cashiers"`
	}
	decodeBody(t, rec, &body)
	if len(body.Cashiers) != 2 {
		t.Fatalf("expected 2 cashiers, got %d", len(body.Cashiers))
	}

	loginAs(t, api, "kasirsore", "sore1234")
}

// TestMustHashPassword verifies that the test helper produces valid bcrypt hashes
// (used to confirm test infrastructure is sound).
func TestMustHashPassword(t *testing.T) {
	hash := mustHashPassword(t, "secret")
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte("secret")); err != nil {
		t.Fatalf("hash verification failed: %v", err)
	}
}
