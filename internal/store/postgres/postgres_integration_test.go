package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"amanteigados/backend/internal/domain"
	"amanteigados/backend/internal/store"
)

func newIntegrationStore(t *testing.T) *Store {
	t.Helper()

	databaseURL := os.Getenv("AMANTEIGADOS_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set AMANTEIGADOS_TEST_DATABASE_URL to run postgres integration tests")
	}

	ctx := context.Background()
	s, err := New(ctx, databaseURL)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})
	if err := s.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return s
}

func TestFinalizeSaleIsAtomicUnderPostgres(t *testing.T) {
	s := newIntegrationStore(t)
	ctx := context.Background()

	stamp := time.Now().UnixNano()
	productID := fmt.Sprintf("p-it-%d", stamp)

	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `
			WITH removed AS (
				DELETE FROM sale_items WHERE product_id = $1 RETURNING sale_id
			)
			DELETE FROM sales WHERE id IN (SELECT sale_id FROM removed)
		`, productID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, productID)
	})

	if _, err := s.CreateProduct(ctx, domain.Product{
		ID: productID, Name: "Integration Biscoito", Price: 10, Cost: 4, Stock: 2,
	}); err != nil {
		t.Fatalf("create product: %v", err)
	}

	_, err := s.FinalizeSale(ctx, domain.Sale{
		Total: 30,
		Items: []domain.SaleItem{{ProductID: productID, Qty: 3, UnitPrice: 10}},
	})
	if !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected insufficient stock, got %v", err)
	}

	product, err := s.GetProduct(ctx, productID)
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if product.Stock != 2 {
		t.Fatalf("failed sale moved stock to %d, want 2", product.Stock)
	}

	committed, err := s.FinalizeSale(ctx, domain.Sale{
		Total: 20,
		Items: []domain.SaleItem{{ProductID: productID, Qty: 2, UnitPrice: 10}},
	})
	if err != nil {
		t.Fatalf("finalize sale: %v", err)
	}
	if committed.ID == "" || len(committed.Items) != 1 {
		t.Fatalf("committed sale not defaulted: %+v", committed)
	}

	product, _ = s.GetProduct(ctx, productID)
	if product.Stock != 0 {
		t.Fatalf("stock = %d after sale, want 0", product.Stock)
	}

	cogs, err := s.SaleCostOfGoods(ctx, committed.ID)
	if err != nil {
		t.Fatalf("cost of goods: %v", err)
	}
	if cogs != 8 {
		t.Fatalf("cost of goods = %v, want 8", cogs)
	}
}

func TestRecordPurchaseUpdatesIngredientUnderPostgres(t *testing.T) {
	s := newIntegrationStore(t)
	ctx := context.Background()

	stamp := time.Now().UnixNano()
	ingredientID := fmt.Sprintf("ing-it-%d", stamp)

	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM ingredient_purchases WHERE ingredient_id = $1`, ingredientID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM ingredients WHERE id = $1`, ingredientID)
	})

	if _, err := s.CreateIngredient(ctx, domain.Ingredient{
		ID: ingredientID, Name: "Integration Farinha", Unit: "kg", UnitCost: 2, StockQty: 1,
	}); err != nil {
		t.Fatalf("create ingredient: %v", err)
	}

	recorded, err := s.RecordPurchase(ctx, domain.IngredientPurchase{
		IngredientID: ingredientID,
		Qty:          5,
		UnitCost:     3,
		Total:        15,
	})
	if err != nil {
		t.Fatalf("record purchase: %v", err)
	}
	if recorded.ID == "" || recorded.Date.IsZero() {
		t.Fatalf("purchase not defaulted: %+v", recorded)
	}

	ingredient, err := s.GetIngredient(ctx, ingredientID)
	if err != nil {
		t.Fatalf("get ingredient: %v", err)
	}
	if ingredient.StockQty != 6 {
		t.Fatalf("stock qty = %v, want 6", ingredient.StockQty)
	}
	if ingredient.UnitCost != 3 {
		t.Fatalf("unit cost = %v, want 3 (last purchase price)", ingredient.UnitCost)
	}

	if err := s.DeleteIngredient(ctx, ingredientID); !errors.Is(err, store.ErrReferentialIntegrity) {
		t.Fatalf("expected referential integrity error, got %v", err)
	}
}

func TestIncrementProductStockClampsUnderPostgres(t *testing.T) {
	s := newIntegrationStore(t)
	ctx := context.Background()

	stamp := time.Now().UnixNano()
	productID := fmt.Sprintf("p-clamp-it-%d", stamp)

	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, productID)
	})

	if _, err := s.CreateProduct(ctx, domain.Product{
		ID: productID, Name: "Integration Clamp", Price: 10, Cost: 4, Stock: 5,
	}); err != nil {
		t.Fatalf("create product: %v", err)
	}

	stock, err := s.IncrementProductStock(ctx, productID, -50)
	if err != nil {
		t.Fatalf("increment: %v", err)
	}
	if stock != 0 {
		t.Fatalf("stock = %d, want 0 after clamp", stock)
	}
}
