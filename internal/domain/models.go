package domain

import "time"

type Product struct {
	ID    string  `json:"id"`
	Name  string  `json:"name"`
	Price float64 `json:"price"`
	Cost  float64 `json:"cost"`
	Stock int     `json:"stock"`
}

type ProductCreateRequest struct {
	Name  string  `json:"name"`
	Price float64 `json:"price"`
	Cost  float64 `json:"cost"`
	Stock int     `json:"stock"`
}

type ProductUpdateRequest struct {
	Name  *string  `json:"name,omitempty"`
	Price *float64 `json:"price,omitempty"`
	Cost  *float64 `json:"cost,omitempty"`
}

type Ingredient struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Unit     string  `json:"unit"`
	UnitCost float64 `json:"unit_cost"`
	StockQty float64 `json:"stock_qty"`
}

type IngredientCreateRequest struct {
	Name     string  `json:"name"`
	Unit     string  `json:"unit"`
	UnitCost float64 `json:"unit_cost"`
	StockQty float64 `json:"stock_qty"`
}

type IngredientUpdateRequest struct {
	Name     *string  `json:"name,omitempty"`
	Unit     *string  `json:"unit,omitempty"`
	UnitCost *float64 `json:"unit_cost,omitempty"`
}

// Sale is an append-only ledger fact; it is never updated after commit.
type Sale struct {
	ID        string     `json:"id"`
	CreatedAt time.Time  `json:"created_at"`
	Total     float64    `json:"total"`
	Items     []SaleItem `json:"items,omitempty"`
}

type SaleItem struct {
	ID        string  `json:"id"`
	SaleID    string  `json:"sale_id"`
	ProductID string  `json:"product_id"`
	Qty       int     `json:"qty"`
	UnitPrice float64 `json:"unit_price"`
}

// SaleLine is one cart line as submitted by a checkout screen.
type SaleLine struct {
	ProductID string  `json:"product_id"`
	Qty       int     `json:"qty"`
	UnitPrice float64 `json:"unit_price"`
}

type SaleRequest struct {
	Items []SaleLine `json:"items"`
}

type SaleResult struct {
	SaleID string  `json:"sale_id"`
	Total  float64 `json:"total"`
}

type SaleSummary struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	Total     float64   `json:"total"`
	ItemCount int       `json:"item_count"`
}

type IngredientPurchase struct {
	ID           string    `json:"id"`
	IngredientID string    `json:"ingredient_id"`
	Qty          float64   `json:"qty"`
	UnitCost     float64   `json:"unit_cost"`
	Total        float64   `json:"total"`
	Date         time.Time `json:"date"`
}

type PurchaseRequest struct {
	IngredientID string     `json:"ingredient_id"`
	Qty          float64    `json:"qty"`
	UnitCost     float64    `json:"unit_cost"`
	Date         *time.Time `json:"date,omitempty"`
}

type PurchaseResult struct {
	Purchase IngredientPurchase `json:"purchase"`
}

// LedgerSummary is the read-only metric bundle shown on the reports screen.
// Profit is cash-basis: revenue minus ingredient spend, not a per-sale
// cost-of-goods match.
type LedgerSummary struct {
	Revenue                   float64 `json:"revenue"`
	IngredientSpend           float64 `json:"ingredient_spend"`
	ProductsInventoryValue    float64 `json:"products_inventory_value"`
	IngredientsInventoryValue float64 `json:"ingredients_inventory_value"`
	Profit                    float64 `json:"profit"`
}

type StockSetRequest struct {
	Qty int `json:"qty"`
}

type StockDeltaRequest struct {
	Delta int `json:"delta"`
}

type StockLevelResponse struct {
	ProductID string `json:"product_id"`
	Stock     int    `json:"stock"`
}

type IngredientStockSetRequest struct {
	Qty float64 `json:"qty"`
}

type IngredientStockDeltaRequest struct {
	Delta float64 `json:"delta"`
}

type IngredientStockLevelResponse struct {
	IngredientID string  `json:"ingredient_id"`
	StockQty     float64 `json:"stock_qty"`
}

type PaymentCodeRequest struct {
	Amount float64 `json:"amount"`
	TxID   string  `json:"txid,omitempty"`
}

type PaymentCodeResponse struct {
	Payload string `json:"payload"`
}
