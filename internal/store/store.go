package store

import (
	"context"
	"errors"

	"amanteigados/backend/internal/domain"
)

var (
	ErrNotFound             = errors.New("not found")
	ErrValidation           = errors.New("invalid input")
	ErrInsufficientStock    = errors.New("insufficient stock")
	ErrReferentialIntegrity = errors.New("referenced by ledger records")
)

// Repository owns all ledger rows. Sales, sale items and ingredient
// purchases are append-only facts; products and ingredients are deletable
// only while nothing in the ledger references them.
//
// Stock mutations come in two distinct flavours: IncrementProductStock and
// IncrementIngredientStock are clamping increments (a decrement below zero
// clamps to zero and is not an error), while FinalizeSale performs a
// checked decrement that fails the whole sale with ErrInsufficientStock.
// Any error that is not one of the sentinels above is a storage failure
// and is propagated to the caller unmodified.
type Repository interface {
	ListProducts(ctx context.Context) ([]domain.Product, error)
	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
	UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	DeleteProduct(ctx context.Context, id string) error
	SetProductStock(ctx context.Context, id string, qty int) error
	IncrementProductStock(ctx context.Context, id string, delta int) (int, error)

	ListIngredients(ctx context.Context) ([]domain.Ingredient, error)
	CreateIngredient(ctx context.Context, ingredient domain.Ingredient) (*domain.Ingredient, error)
	GetIngredient(ctx context.Context, id string) (*domain.Ingredient, error)
	UpdateIngredient(ctx context.Context, ingredient domain.Ingredient) (*domain.Ingredient, error)
	DeleteIngredient(ctx context.Context, id string) error
	SetIngredientStock(ctx context.Context, id string, qty float64) error
	IncrementIngredientStock(ctx context.Context, id string, delta float64) (float64, error)

	FinalizeSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error)
	GetSale(ctx context.Context, id string) (*domain.Sale, error)
	RecentSales(ctx context.Context, limit int) ([]domain.SaleSummary, error)

	RecordPurchase(ctx context.Context, purchase domain.IngredientPurchase) (*domain.IngredientPurchase, error)
	ListPurchases(ctx context.Context, ingredientID string, limit int) ([]domain.IngredientPurchase, error)

	RevenueTotal(ctx context.Context) (float64, error)
	IngredientSpendTotal(ctx context.Context) (float64, error)
	ProductsInventoryValue(ctx context.Context) (float64, error)
	IngredientsInventoryValue(ctx context.Context) (float64, error)
	SaleCostOfGoods(ctx context.Context, saleID string) (float64, error)
}
