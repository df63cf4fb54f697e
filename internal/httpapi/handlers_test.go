package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"amanteigados/backend/internal/cache"
	"amanteigados/backend/internal/service"
	"amanteigados/backend/internal/store/memory"
)

// newTestAPI builds the full handler over an in-memory store and a real
// service so tests exercise the complete request path.
func newTestAPI(t *testing.T) http.Handler {
	t.Helper()

	repo := memory.NewSeeded()
	merchant := service.Merchant{
		PixKey: "vendas@amanteigados.com",
		Name:   "Amanteigados",
		City:   "Sao Paulo",
	}
	svc := service.New(repo, cache.NoopReportCache{}, 5*time.Second, merchant)
	return New(svc, "*").Handler()
}

func doJSON(t *testing.T, handler http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request: %v", err)
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, dest any) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(dest); err != nil {
		t.Fatalf("decode response: %v (body %q)", err, rec.Body.String())
	}
}

func TestHandleHealth(t *testing.T) {
	handler := newTestAPI(t)

	rec := doJSON(t, handler, http.MethodGet, "/healthz", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var body map[string]any
	decodeBody(t, rec, &body)
	if body["ok"] != true {
		t.Fatalf("expected ok:true, got %v", body["ok"])
	}
}

func TestProductLifecycle(t *testing.T) {
	handler := newTestAPI(t)

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/products", map[string]any{
		"name": "Biscoito Novo", "price": 12.5, "cost": 5, "stock": 8,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d (%s)", rec.Code, rec.Body.String())
	}
	var created struct {
		Product struct {
			ID    string  `json:"id"`
			Price float64 `json:"price"`
			Stock int     `json:"stock"`
		} `json:"product"`
	}
	decodeBody(t, rec, &created)
	if created.Product.ID == "" {
		t.Fatalf("created product has no id")
	}

	rec = doJSON(t, handler, http.MethodPatch, "/api/v1/products/"+created.Product.ID, map[string]any{
		"price": 14.0,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("patch: expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	var patched struct {
		Product struct {
			Price float64 `json:"price"`
			Stock int     `json:"stock"`
		} `json:"product"`
	}
	decodeBody(t, rec, &patched)
	if patched.Product.Price != 14 {
		t.Fatalf("price = %v, want 14", patched.Product.Price)
	}
	if patched.Product.Stock != 8 {
		t.Fatalf("patch changed stock to %d", patched.Product.Stock)
	}

	rec = doJSON(t, handler, http.MethodDelete, "/api/v1/products/"+created.Product.ID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete: expected 200, got %d", rec.Code)
	}

	rec = doJSON(t, handler, http.MethodPatch, "/api/v1/products/"+created.Product.ID, map[string]any{"price": 1.0})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("patch after delete: expected 404, got %d", rec.Code)
	}
}

func TestStockEndpoints(t *testing.T) {
	handler := newTestAPI(t)

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/products/p1/stock", map[string]any{"qty": 4})
	if rec.Code != http.StatusOK {
		t.Fatalf("set stock: expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	var level struct {
		ProductID string `json:"product_id"`
		Stock     int    `json:"stock"`
	}
	decodeBody(t, rec, &level)
	if level.Stock != 4 {
		t.Fatalf("stock = %d, want 4", level.Stock)
	}

	rec = doJSON(t, handler, http.MethodPost, "/api/v1/products/p1/stock/increment", map[string]any{"delta": -10})
	if rec.Code != http.StatusOK {
		t.Fatalf("increment: expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	decodeBody(t, rec, &level)
	if level.Stock != 0 {
		t.Fatalf("clamped stock = %d, want 0", level.Stock)
	}

	rec = doJSON(t, handler, http.MethodPost, "/api/v1/products/p1/stock", map[string]any{"qty": -1})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("negative set: expected 422, got %d", rec.Code)
	}
}

func TestSaleEndpointRejectsOverdraw(t *testing.T) {
	handler := newTestAPI(t)

	// Seed product p1 starts with stock 20.
	rec := doJSON(t, handler, http.MethodPost, "/api/v1/sales", map[string]any{
		"items": []map[string]any{
			{"product_id": "p1", "qty": 21, "unit_price": 10},
		},
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("overdraw: expected 409, got %d (%s)", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, handler, http.MethodPost, "/api/v1/sales", map[string]any{
		"items": []map[string]any{
			{"product_id": "p1", "qty": 2, "unit_price": 10},
		},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("sale: expected 201, got %d (%s)", rec.Code, rec.Body.String())
	}
	var result struct {
		SaleID string  `json:"sale_id"`
		Total  float64 `json:"total"`
	}
	decodeBody(t, rec, &result)
	if result.SaleID == "" || result.Total != 20 {
		t.Fatalf("sale result = %+v", result)
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/sales/"+result.SaleID+"/cogs", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("cogs: expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	var cogs struct {
		SaleID      string  `json:"sale_id"`
		CostOfGoods float64 `json:"cost_of_goods"`
	}
	decodeBody(t, rec, &cogs)
	if cogs.CostOfGoods != 8 {
		t.Fatalf("cost of goods = %v, want 8 (2 units at cost 4)", cogs.CostOfGoods)
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/sales/recent?limit=5", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("recent: expected 200, got %d", rec.Code)
	}

	rec = doJSON(t, handler, http.MethodPost, "/api/v1/sales", map[string]any{"items": []map[string]any{}})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("empty cart: expected 422, got %d", rec.Code)
	}
}

func TestIngredientPurchaseFlow(t *testing.T) {
	handler := newTestAPI(t)

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/ingredients", map[string]any{
		"name": "Farinha", "unit": "kg", "unit_cost": 2.0, "stock_qty": 1.0,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create ingredient: expected 201, got %d (%s)", rec.Code, rec.Body.String())
	}
	var created struct {
		Ingredient struct {
			ID string `json:"id"`
		} `json:"ingredient"`
	}
	decodeBody(t, rec, &created)

	path := fmt.Sprintf("/api/v1/ingredients/%s/purchases", created.Ingredient.ID)
	rec = doJSON(t, handler, http.MethodPost, path, map[string]any{
		"qty": 5.0, "unit_cost": 3.0,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("record purchase: expected 201, got %d (%s)", rec.Code, rec.Body.String())
	}
	var result struct {
		Purchase struct {
			ID    string  `json:"id"`
			Total float64 `json:"total"`
		} `json:"purchase"`
	}
	decodeBody(t, rec, &result)
	if result.Purchase.Total != 15 {
		t.Fatalf("purchase total = %v, want 15", result.Purchase.Total)
	}

	rec = doJSON(t, handler, http.MethodGet, path, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list purchases: expected 200, got %d", rec.Code)
	}
	var listed struct {
		Purchases []struct {
			ID string `json:"id"`
		} `json:"purchases"`
	}
	decodeBody(t, rec, &listed)
	if len(listed.Purchases) != 1 {
		t.Fatalf("expected 1 purchase, got %d", len(listed.Purchases))
	}

	rec = doJSON(t, handler, http.MethodDelete, "/api/v1/ingredients/"+created.Ingredient.ID, nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("delete referenced ingredient: expected 409, got %d", rec.Code)
	}
}

func TestSummaryEndpoint(t *testing.T) {
	handler := newTestAPI(t)

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/sales", map[string]any{
		"items": []map[string]any{
			{"product_id": "p1", "qty": 2, "unit_price": 10},
		},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("sale: expected 201, got %d", rec.Code)
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/reports/summary", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("summary: expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	var summary struct {
		Revenue float64 `json:"revenue"`
		Profit  float64 `json:"profit"`
	}
	decodeBody(t, rec, &summary)
	if summary.Revenue != 20 {
		t.Fatalf("revenue = %v, want 20", summary.Revenue)
	}
	if summary.Profit != 20 {
		t.Fatalf("profit = %v, want 20 with no purchases", summary.Profit)
	}
}

func TestPaymentCodeEndpoint(t *testing.T) {
	handler := newTestAPI(t)

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/payment-code", map[string]any{
		"amount": 15.0, "txid": "pedido-1",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("payment code: expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	var resp struct {
		Payload string `json:"payload"`
	}
	decodeBody(t, rec, &resp)
	if len(resp.Payload) < 20 {
		t.Fatalf("payload too short: %q", resp.Payload)
	}

	rec = doJSON(t, handler, http.MethodPost, "/api/v1/payment-code", map[string]any{"amount": 0})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("zero amount: expected 422, got %d", rec.Code)
	}
}

func TestUnknownFieldRejected(t *testing.T) {
	handler := newTestAPI(t)

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/products", map[string]any{
		"name": "X", "price": 1.0, "bogus": true,
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unknown field: expected 400, got %d", rec.Code)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	handler := newTestAPI(t)

	rec := doJSON(t, handler, http.MethodDelete, "/api/v1/sales", nil)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
}

func TestCORSPreflight(t *testing.T) {
	handler := newTestAPI(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/products", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("preflight: expected 204, got %d", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatalf("missing CORS origin header")
	}
	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Fatalf("missing security headers")
	}
}
