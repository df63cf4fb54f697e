package memory

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"amanteigados/backend/internal/domain"
	"amanteigados/backend/internal/store"
	"amanteigados/backend/internal/xid"
)

// Store is an in-memory Repository with the same semantics as the
// Postgres store. Every check-then-write sequence runs under one mutex
// hold, which gives the single-writer isolation the sale and purchase
// paths require.
type Store struct {
	mu          sync.RWMutex
	products    map[string]domain.Product
	ingredients map[string]domain.Ingredient
	sales       map[string]domain.Sale
	saleOrder   []string
	saleItems   map[string][]domain.SaleItem
	purchases   []domain.IngredientPurchase
}

func New() *Store {
	return &Store{
		products:    make(map[string]domain.Product),
		ingredients: make(map[string]domain.Ingredient),
		sales:       make(map[string]domain.Sale),
		saleOrder:   make([]string, 0, 64),
		saleItems:   make(map[string][]domain.SaleItem),
		purchases:   make([]domain.IngredientPurchase, 0, 64),
	}
}

// NewSeeded returns a store preloaded with the three sample products a
// fresh database starts with.
func NewSeeded() *Store {
	s := New()
	for _, p := range []domain.Product{
		{ID: "p1", Name: "Amanteigado Tradicional", Price: 10, Cost: 4, Stock: 20},
		{ID: "p2", Name: "Amanteigado com Goiabada", Price: 10, Cost: 4.5, Stock: 15},
		{ID: "p3", Name: "Amanteigado com Chocolate", Price: 10, Cost: 5, Stock: 18},
	} {
		s.products[p.ID] = p
	}
	return s
}

func (s *Store) ListProducts(_ context.Context) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		products = append(products, p)
	}
	slices.SortFunc(products, func(a, b domain.Product) int {
		return strings.Compare(a.Name, b.Name)
	})
	return products, nil
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if product.ID == "" || product.Name == "" || product.Price < 0 || product.Cost < 0 || product.Stock < 0 {
		return nil, store.ErrValidation
	}
	if _, exists := s.products[product.ID]; exists {
		return nil, store.ErrValidation
	}

	s.products[product.ID] = product
	created := product
	return &created, nil
}

func (s *Store) GetProduct(_ context.Context, id string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	product, exists := s.products[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	copied := product
	return &copied, nil
}

func (s *Store) UpdateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if product.ID == "" || product.Name == "" || product.Price < 0 || product.Cost < 0 {
		return nil, store.ErrValidation
	}
	existing, exists := s.products[product.ID]
	if !exists {
		return nil, store.ErrNotFound
	}

	// Stock is owned by the stock operations, not by field updates.
	product.Stock = existing.Stock
	s.products[product.ID] = product
	updated := product
	return &updated, nil
}

func (s *Store) DeleteProduct(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id == "" {
		return store.ErrValidation
	}
	if _, exists := s.products[id]; !exists {
		return store.ErrNotFound
	}
	for _, items := range s.saleItems {
		for _, item := range items {
			if item.ProductID == id {
				return fmt.Errorf("product %s: %w", id, store.ErrReferentialIntegrity)
			}
		}
	}

	delete(s.products, id)
	return nil
}

func (s *Store) SetProductStock(_ context.Context, id string, qty int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id == "" || qty < 0 {
		return store.ErrValidation
	}
	product, exists := s.products[id]
	if !exists {
		return store.ErrNotFound
	}
	product.Stock = qty
	s.products[id] = product
	return nil
}

func (s *Store) IncrementProductStock(_ context.Context, id string, delta int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id == "" {
		return 0, store.ErrValidation
	}
	product, exists := s.products[id]
	if !exists {
		return 0, store.ErrNotFound
	}
	product.Stock += delta
	if product.Stock < 0 {
		product.Stock = 0
	}
	s.products[id] = product
	return product.Stock, nil
}

func (s *Store) ListIngredients(_ context.Context) ([]domain.Ingredient, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ingredients := make([]domain.Ingredient, 0, len(s.ingredients))
	for _, ing := range s.ingredients {
		ingredients = append(ingredients, ing)
	}
	slices.SortFunc(ingredients, func(a, b domain.Ingredient) int {
		return strings.Compare(a.Name, b.Name)
	})
	return ingredients, nil
}

func (s *Store) CreateIngredient(_ context.Context, ingredient domain.Ingredient) (*domain.Ingredient, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ingredient.ID == "" || ingredient.Name == "" || ingredient.UnitCost < 0 || ingredient.StockQty < 0 {
		return nil, store.ErrValidation
	}
	if _, exists := s.ingredients[ingredient.ID]; exists {
		return nil, store.ErrValidation
	}

	s.ingredients[ingredient.ID] = ingredient
	created := ingredient
	return &created, nil
}

func (s *Store) GetIngredient(_ context.Context, id string) (*domain.Ingredient, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ingredient, exists := s.ingredients[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	copied := ingredient
	return &copied, nil
}

func (s *Store) UpdateIngredient(_ context.Context, ingredient domain.Ingredient) (*domain.Ingredient, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ingredient.ID == "" || ingredient.Name == "" || ingredient.UnitCost < 0 {
		return nil, store.ErrValidation
	}
	existing, exists := s.ingredients[ingredient.ID]
	if !exists {
		return nil, store.ErrNotFound
	}

	ingredient.StockQty = existing.StockQty
	s.ingredients[ingredient.ID] = ingredient
	updated := ingredient
	return &updated, nil
}

func (s *Store) DeleteIngredient(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id == "" {
		return store.ErrValidation
	}
	if _, exists := s.ingredients[id]; !exists {
		return store.ErrNotFound
	}
	for _, purchase := range s.purchases {
		if purchase.IngredientID == id {
			return fmt.Errorf("ingredient %s: %w", id, store.ErrReferentialIntegrity)
		}
	}

	delete(s.ingredients, id)
	return nil
}

func (s *Store) SetIngredientStock(_ context.Context, id string, qty float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id == "" || qty < 0 {
		return store.ErrValidation
	}
	ingredient, exists := s.ingredients[id]
	if !exists {
		return store.ErrNotFound
	}
	ingredient.StockQty = qty
	s.ingredients[id] = ingredient
	return nil
}

func (s *Store) IncrementIngredientStock(_ context.Context, id string, delta float64) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id == "" {
		return 0, store.ErrValidation
	}
	ingredient, exists := s.ingredients[id]
	if !exists {
		return 0, store.ErrNotFound
	}
	ingredient.StockQty += delta
	if ingredient.StockQty < 0 {
		ingredient.StockQty = 0
	}
	s.ingredients[id] = ingredient
	return ingredient.StockQty, nil
}

func (s *Store) FinalizeSale(_ context.Context, sale domain.Sale) (*domain.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(sale.Items) == 0 {
		return nil, store.ErrValidation
	}
	if sale.ID == "" {
		sale.ID = xid.New("s")
	}
	if sale.CreatedAt.IsZero() {
		sale.CreatedAt = time.Now().UTC()
	}
	if _, exists := s.sales[sale.ID]; exists {
		return nil, store.ErrValidation
	}

	// Check phase: nothing is written unless every line is satisfiable.
	required := make(map[string]int, len(sale.Items))
	for _, item := range sale.Items {
		if item.Qty < 1 || item.UnitPrice < 0 {
			return nil, store.ErrValidation
		}
		required[item.ProductID] += item.Qty
	}
	for id, qty := range required {
		product, exists := s.products[id]
		if !exists {
			return nil, fmt.Errorf("product %s: %w", id, store.ErrNotFound)
		}
		if product.Stock < qty {
			return nil, fmt.Errorf("product %s: %w", id, store.ErrInsufficientStock)
		}
	}

	items := make([]domain.SaleItem, len(sale.Items))
	copy(items, sale.Items)
	for i := range items {
		if items[i].ID == "" {
			items[i].ID = xid.New("si")
		}
		items[i].SaleID = sale.ID
	}

	for id, qty := range required {
		product := s.products[id]
		product.Stock -= qty
		s.products[id] = product
	}

	header := sale
	header.Items = nil
	s.sales[sale.ID] = header
	s.saleOrder = append(s.saleOrder, sale.ID)
	s.saleItems[sale.ID] = items

	committed := header
	committed.Items = items
	return &committed, nil
}

func (s *Store) GetSale(_ context.Context, id string) (*domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sale, exists := s.sales[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	copied := sale
	copied.Items = make([]domain.SaleItem, len(s.saleItems[id]))
	copy(copied.Items, s.saleItems[id])
	return &copied, nil
}

func (s *Store) RecentSales(_ context.Context, limit int) ([]domain.SaleSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit < 1 {
		limit = 20
	}

	summaries := make([]domain.SaleSummary, 0, len(s.saleOrder))
	for _, id := range s.saleOrder {
		sale := s.sales[id]
		count := 0
		for _, item := range s.saleItems[id] {
			count += item.Qty
		}
		summaries = append(summaries, domain.SaleSummary{
			ID:        sale.ID,
			CreatedAt: sale.CreatedAt,
			Total:     sale.Total,
			ItemCount: count,
		})
	}
	slices.SortFunc(summaries, func(a, b domain.SaleSummary) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return strings.Compare(b.ID, a.ID)
		}
		if a.CreatedAt.After(b.CreatedAt) {
			return -1
		}
		return 1
	})
	if len(summaries) > limit {
		summaries = summaries[:limit]
	}
	return summaries, nil
}

func (s *Store) RecordPurchase(_ context.Context, purchase domain.IngredientPurchase) (*domain.IngredientPurchase, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if purchase.IngredientID == "" || purchase.Qty <= 0 || purchase.UnitCost < 0 {
		return nil, store.ErrValidation
	}
	if purchase.ID == "" {
		purchase.ID = xid.New("ip")
	}
	if purchase.Date.IsZero() {
		purchase.Date = time.Now().UTC()
	}

	ingredient, exists := s.ingredients[purchase.IngredientID]
	if !exists {
		return nil, fmt.Errorf("ingredient %s: %w", purchase.IngredientID, store.ErrNotFound)
	}

	s.purchases = append(s.purchases, purchase)
	ingredient.StockQty += purchase.Qty
	ingredient.UnitCost = purchase.UnitCost
	s.ingredients[purchase.IngredientID] = ingredient

	recorded := purchase
	return &recorded, nil
}

func (s *Store) ListPurchases(_ context.Context, ingredientID string, limit int) ([]domain.IngredientPurchase, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit < 1 {
		limit = 50
	}

	purchases := make([]domain.IngredientPurchase, 0, len(s.purchases))
	for _, p := range s.purchases {
		if ingredientID != "" && p.IngredientID != ingredientID {
			continue
		}
		purchases = append(purchases, p)
	}
	slices.SortFunc(purchases, func(a, b domain.IngredientPurchase) int {
		if a.Date.Equal(b.Date) {
			return strings.Compare(b.ID, a.ID)
		}
		if a.Date.After(b.Date) {
			return -1
		}
		return 1
	})
	if len(purchases) > limit {
		purchases = purchases[:limit]
	}
	return purchases, nil
}

func (s *Store) RevenueTotal(_ context.Context) (float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	total := 0.0
	for _, sale := range s.sales {
		total += sale.Total
	}
	return total, nil
}

func (s *Store) IngredientSpendTotal(_ context.Context) (float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	total := 0.0
	for _, purchase := range s.purchases {
		total += purchase.Total
	}
	return total, nil
}

func (s *Store) ProductsInventoryValue(_ context.Context) (float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	total := 0.0
	for _, product := range s.products {
		total += float64(product.Stock) * product.Cost
	}
	return total, nil
}

func (s *Store) IngredientsInventoryValue(_ context.Context) (float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	total := 0.0
	for _, ingredient := range s.ingredients {
		total += ingredient.StockQty * ingredient.UnitCost
	}
	return total, nil
}

func (s *Store) SaleCostOfGoods(_ context.Context, saleID string) (float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if saleID == "" {
		return 0, store.ErrValidation
	}
	if _, exists := s.sales[saleID]; !exists {
		return 0, store.ErrNotFound
	}

	total := 0.0
	for _, item := range s.saleItems[saleID] {
		if product, exists := s.products[item.ProductID]; exists {
			total += float64(item.Qty) * product.Cost
		}
	}
	return total, nil
}
