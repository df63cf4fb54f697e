package service

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"amanteigados/backend/internal/cache"
	"amanteigados/backend/internal/domain"
	"amanteigados/backend/internal/pix"
	"amanteigados/backend/internal/store"
	"amanteigados/backend/internal/xid"
)

// Merchant carries the fixed payment-code parameters of the seller.
type Merchant struct {
	PixKey string
	Name   string
	City   string
}

type Service struct {
	repo       store.Repository
	reports    cache.ReportCache
	summaryTTL time.Duration
	merchant   Merchant
}

func New(repo store.Repository, reports cache.ReportCache, summaryTTL time.Duration, merchant Merchant) *Service {
	if summaryTTL <= 0 {
		summaryTTL = 30 * time.Second
	}

	return &Service{
		repo:       repo,
		reports:    reports,
		summaryTTL: summaryTTL,
		merchant:   merchant,
	}
}

func (s *Service) ListProducts(ctx context.Context) ([]domain.Product, error) {
	return s.repo.ListProducts(ctx)
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return domain.Product{}, fmt.Errorf("name must not be empty: %w", store.ErrValidation)
	}
	if req.Price < 0 || req.Cost < 0 || req.Stock < 0 {
		return domain.Product{}, fmt.Errorf("price, cost and stock must not be negative: %w", store.ErrValidation)
	}

	product := domain.Product{
		ID:    xid.New("p"),
		Name:  req.Name,
		Price: req.Price,
		Cost:  req.Cost,
		Stock: req.Stock,
	}

	created, err := s.repo.CreateProduct(ctx, product)
	if err != nil {
		return domain.Product{}, err
	}

	s.invalidateSummary(ctx)
	return *created, nil
}

func (s *Service) UpdateProduct(ctx context.Context, id string, req domain.ProductUpdateRequest) (domain.Product, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Product{}, store.ErrValidation
	}

	existing, err := s.repo.GetProduct(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}

	updated := *existing
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return domain.Product{}, fmt.Errorf("name must not be empty: %w", store.ErrValidation)
		}
		updated.Name = name
	}
	if req.Price != nil {
		if *req.Price < 0 {
			return domain.Product{}, fmt.Errorf("price must not be negative: %w", store.ErrValidation)
		}
		updated.Price = *req.Price
	}
	if req.Cost != nil {
		if *req.Cost < 0 {
			return domain.Product{}, fmt.Errorf("cost must not be negative: %w", store.ErrValidation)
		}
		updated.Cost = *req.Cost
	}

	saved, err := s.repo.UpdateProduct(ctx, updated)
	if err != nil {
		return domain.Product{}, err
	}

	s.invalidateSummary(ctx)
	return *saved, nil
}

func (s *Service) DeleteProduct(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return store.ErrValidation
	}
	if err := s.repo.DeleteProduct(ctx, id); err != nil {
		return err
	}
	s.invalidateSummary(ctx)
	return nil
}

func (s *Service) SetProductStock(ctx context.Context, id string, qty int) (domain.StockLevelResponse, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.StockLevelResponse{}, store.ErrValidation
	}
	if qty < 0 {
		return domain.StockLevelResponse{}, fmt.Errorf("stock must not be negative: %w", store.ErrValidation)
	}
	if err := s.repo.SetProductStock(ctx, id, qty); err != nil {
		return domain.StockLevelResponse{}, err
	}
	s.invalidateSummary(ctx)
	return domain.StockLevelResponse{ProductID: id, Stock: qty}, nil
}

// IncrementProductStock is the clamping increment: a delta that would take
// stock below zero clamps to zero instead of failing.
func (s *Service) IncrementProductStock(ctx context.Context, id string, delta int) (domain.StockLevelResponse, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.StockLevelResponse{}, store.ErrValidation
	}
	stock, err := s.repo.IncrementProductStock(ctx, id, delta)
	if err != nil {
		return domain.StockLevelResponse{}, err
	}
	s.invalidateSummary(ctx)
	return domain.StockLevelResponse{ProductID: id, Stock: stock}, nil
}

func (s *Service) ListIngredients(ctx context.Context) ([]domain.Ingredient, error) {
	return s.repo.ListIngredients(ctx)
}

func (s *Service) CreateIngredient(ctx context.Context, req domain.IngredientCreateRequest) (domain.Ingredient, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.Unit = strings.TrimSpace(req.Unit)
	if req.Name == "" {
		return domain.Ingredient{}, fmt.Errorf("name must not be empty: %w", store.ErrValidation)
	}
	if req.Unit == "" {
		req.Unit = "un"
	}
	if req.UnitCost < 0 || req.StockQty < 0 {
		return domain.Ingredient{}, fmt.Errorf("unit cost and stock must not be negative: %w", store.ErrValidation)
	}

	ingredient := domain.Ingredient{
		ID:       xid.New("ing"),
		Name:     req.Name,
		Unit:     req.Unit,
		UnitCost: req.UnitCost,
		StockQty: req.StockQty,
	}

	created, err := s.repo.CreateIngredient(ctx, ingredient)
	if err != nil {
		return domain.Ingredient{}, err
	}

	s.invalidateSummary(ctx)
	return *created, nil
}

func (s *Service) UpdateIngredient(ctx context.Context, id string, req domain.IngredientUpdateRequest) (domain.Ingredient, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Ingredient{}, store.ErrValidation
	}

	existing, err := s.repo.GetIngredient(ctx, id)
	if err != nil {
		return domain.Ingredient{}, err
	}

	updated := *existing
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return domain.Ingredient{}, fmt.Errorf("name must not be empty: %w", store.ErrValidation)
		}
		updated.Name = name
	}
	if req.Unit != nil {
		unit := strings.TrimSpace(*req.Unit)
		if unit == "" {
			return domain.Ingredient{}, fmt.Errorf("unit must not be empty: %w", store.ErrValidation)
		}
		updated.Unit = unit
	}
	if req.UnitCost != nil {
		if *req.UnitCost < 0 {
			return domain.Ingredient{}, fmt.Errorf("unit cost must not be negative: %w", store.ErrValidation)
		}
		updated.UnitCost = *req.UnitCost
	}

	saved, err := s.repo.UpdateIngredient(ctx, updated)
	if err != nil {
		return domain.Ingredient{}, err
	}

	s.invalidateSummary(ctx)
	return *saved, nil
}

func (s *Service) DeleteIngredient(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return store.ErrValidation
	}
	if err := s.repo.DeleteIngredient(ctx, id); err != nil {
		return err
	}
	s.invalidateSummary(ctx)
	return nil
}

func (s *Service) SetIngredientStock(ctx context.Context, id string, qty float64) (domain.IngredientStockLevelResponse, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.IngredientStockLevelResponse{}, store.ErrValidation
	}
	if qty < 0 {
		return domain.IngredientStockLevelResponse{}, fmt.Errorf("stock must not be negative: %w", store.ErrValidation)
	}
	if err := s.repo.SetIngredientStock(ctx, id, qty); err != nil {
		return domain.IngredientStockLevelResponse{}, err
	}
	s.invalidateSummary(ctx)
	return domain.IngredientStockLevelResponse{IngredientID: id, StockQty: qty}, nil
}

func (s *Service) IncrementIngredientStock(ctx context.Context, id string, delta float64) (domain.IngredientStockLevelResponse, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.IngredientStockLevelResponse{}, store.ErrValidation
	}
	qty, err := s.repo.IncrementIngredientStock(ctx, id, delta)
	if err != nil {
		return domain.IngredientStockLevelResponse{}, err
	}
	s.invalidateSummary(ctx)
	return domain.IngredientStockLevelResponse{IngredientID: id, StockQty: qty}, nil
}

// FinalizeSale turns a cart into one committed sale: header, line items
// and stock decrements land atomically or not at all. The sale id and
// timestamp are generated here so the header is always consistent with
// its lines.
func (s *Service) FinalizeSale(ctx context.Context, req domain.SaleRequest) (domain.SaleResult, error) {
	if len(req.Items) == 0 {
		return domain.SaleResult{}, fmt.Errorf("cart must not be empty: %w", store.ErrValidation)
	}

	total := 0.0
	items := make([]domain.SaleItem, 0, len(req.Items))
	for _, line := range req.Items {
		productID := strings.TrimSpace(line.ProductID)
		if productID == "" {
			return domain.SaleResult{}, fmt.Errorf("line item without product: %w", store.ErrValidation)
		}
		if line.Qty < 1 {
			return domain.SaleResult{}, fmt.Errorf("line quantity must be positive: %w", store.ErrValidation)
		}
		if line.UnitPrice < 0 {
			return domain.SaleResult{}, fmt.Errorf("unit price must not be negative: %w", store.ErrValidation)
		}
		items = append(items, domain.SaleItem{
			ID:        xid.New("si"),
			ProductID: productID,
			Qty:       line.Qty,
			UnitPrice: line.UnitPrice,
		})
		total += float64(line.Qty) * line.UnitPrice
	}

	sale := domain.Sale{
		ID:        xid.New("s"),
		CreatedAt: time.Now().UTC(),
		Total:     total,
		Items:     items,
	}

	committed, err := s.repo.FinalizeSale(ctx, sale)
	if err != nil {
		return domain.SaleResult{}, err
	}

	s.invalidateSummary(ctx)
	return domain.SaleResult{SaleID: committed.ID, Total: committed.Total}, nil
}

// RecordPurchase books a goods receipt: appends the purchase fact,
// increments the ingredient's stock and overwrites its reference unit
// cost with this purchase's price (last-price costing).
func (s *Service) RecordPurchase(ctx context.Context, req domain.PurchaseRequest) (domain.PurchaseResult, error) {
	req.IngredientID = strings.TrimSpace(req.IngredientID)
	if req.IngredientID == "" {
		return domain.PurchaseResult{}, fmt.Errorf("ingredient id required: %w", store.ErrValidation)
	}
	if req.Qty <= 0 {
		return domain.PurchaseResult{}, fmt.Errorf("purchase quantity must be positive: %w", store.ErrValidation)
	}
	if req.UnitCost < 0 {
		return domain.PurchaseResult{}, fmt.Errorf("unit cost must not be negative: %w", store.ErrValidation)
	}

	date := time.Now().UTC()
	if req.Date != nil {
		date = req.Date.UTC()
	}

	purchase := domain.IngredientPurchase{
		ID:           xid.New("ip"),
		IngredientID: req.IngredientID,
		Qty:          req.Qty,
		UnitCost:     req.UnitCost,
		Total:        req.Qty * req.UnitCost,
		Date:         date,
	}

	recorded, err := s.repo.RecordPurchase(ctx, purchase)
	if err != nil {
		return domain.PurchaseResult{}, err
	}

	s.invalidateSummary(ctx)
	return domain.PurchaseResult{Purchase: *recorded}, nil
}

func (s *Service) ListPurchases(ctx context.Context, ingredientID string, limit int) ([]domain.IngredientPurchase, error) {
	if limit < 1 {
		limit = 50
	}
	return s.repo.ListPurchases(ctx, strings.TrimSpace(ingredientID), limit)
}

func (s *Service) RecentSales(ctx context.Context, limit int) ([]domain.SaleSummary, error) {
	if limit < 1 {
		limit = 20
	}
	return s.repo.RecentSales(ctx, limit)
}

func (s *Service) GetSale(ctx context.Context, id string) (domain.Sale, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Sale{}, store.ErrValidation
	}
	sale, err := s.repo.GetSale(ctx, id)
	if err != nil {
		return domain.Sale{}, err
	}
	return *sale, nil
}

// SaleCostOfGoods prices one sale's items at current product cost. It is
// deliberately separate from the cash-basis profit in Summary.
func (s *Service) SaleCostOfGoods(ctx context.Context, saleID string) (float64, error) {
	saleID = strings.TrimSpace(saleID)
	if saleID == "" {
		return 0, store.ErrValidation
	}
	return s.repo.SaleCostOfGoods(ctx, saleID)
}

// Summary computes the reports-screen metric bundle, served from the
// report cache when fresh.
func (s *Service) Summary(ctx context.Context) (domain.LedgerSummary, error) {
	if cached, ok, err := s.reports.GetSummary(ctx); err == nil && ok {
		return *cached, nil
	} else if err != nil {
		log.Printf("[service] WARN: summary cache read failed: %v", err)
	}

	revenue, err := s.repo.RevenueTotal(ctx)
	if err != nil {
		return domain.LedgerSummary{}, err
	}
	spend, err := s.repo.IngredientSpendTotal(ctx)
	if err != nil {
		return domain.LedgerSummary{}, err
	}
	productsValue, err := s.repo.ProductsInventoryValue(ctx)
	if err != nil {
		return domain.LedgerSummary{}, err
	}
	ingredientsValue, err := s.repo.IngredientsInventoryValue(ctx)
	if err != nil {
		return domain.LedgerSummary{}, err
	}

	summary := domain.LedgerSummary{
		Revenue:                   revenue,
		IngredientSpend:           spend,
		ProductsInventoryValue:    productsValue,
		IngredientsInventoryValue: ingredientsValue,
		Profit:                    revenue - spend,
	}

	if err := s.reports.SetSummary(ctx, &summary, s.summaryTTL); err != nil {
		log.Printf("[service] WARN: summary cache write failed: %v", err)
	}

	return summary, nil
}

// PaymentCode encodes a payable code for the checkout screen. Pure with
// respect to the ledger; nothing is written.
func (s *Service) PaymentCode(req domain.PaymentCodeRequest) (domain.PaymentCodeResponse, error) {
	if req.Amount <= 0 {
		return domain.PaymentCodeResponse{}, fmt.Errorf("amount must be positive: %w", store.ErrValidation)
	}
	if s.merchant.PixKey == "" {
		return domain.PaymentCodeResponse{}, fmt.Errorf("merchant payment key not configured: %w", store.ErrValidation)
	}

	payload := pix.Payload(pix.Params{
		Key:          s.merchant.PixKey,
		MerchantName: s.merchant.Name,
		MerchantCity: s.merchant.City,
		Amount:       req.Amount,
		TxID:         strings.TrimSpace(req.TxID),
	})

	return domain.PaymentCodeResponse{Payload: payload}, nil
}

func (s *Service) invalidateSummary(ctx context.Context) {
	if err := s.reports.InvalidateSummary(ctx); err != nil {
		log.Printf("[service] WARN: summary cache invalidation failed: %v", err)
	}
}
