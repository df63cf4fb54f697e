package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"amanteigados/backend/internal/domain"
	"amanteigados/backend/internal/store"
	"amanteigados/backend/internal/xid"
)

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Migrate creates the ledger schema if it does not exist and seeds the
// initial sample products on a fresh database.
func (s *Store) Migrate(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS products (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			price DOUBLE PRECISION NOT NULL,
			cost DOUBLE PRECISION NOT NULL,
			stock INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS ingredients (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			unit TEXT NOT NULL,
			unit_cost DOUBLE PRECISION NOT NULL,
			stock_qty DOUBLE PRECISION NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS sales (
			id TEXT PRIMARY KEY,
			created_at TIMESTAMPTZ NOT NULL,
			total DOUBLE PRECISION NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS sale_items (
			id TEXT PRIMARY KEY,
			sale_id TEXT NOT NULL REFERENCES sales(id),
			product_id TEXT NOT NULL REFERENCES products(id),
			qty INTEGER NOT NULL,
			unit_price DOUBLE PRECISION NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS ingredient_purchases (
			id TEXT PRIMARY KEY,
			ingredient_id TEXT NOT NULL REFERENCES ingredients(id),
			qty DOUBLE PRECISION NOT NULL,
			unit_cost DOUBLE PRECISION NOT NULL,
			total DOUBLE PRECISION NOT NULL,
			date TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sale_items_sale_id ON sale_items(sale_id)`,
		`CREATE INDEX IF NOT EXISTS idx_sale_items_product_id ON sale_items(product_id)`,
		`CREATE INDEX IF NOT EXISTS idx_ingredient_purchases_ingredient_id ON ingredient_purchases(ingredient_id)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}

	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM products`).Scan(&count); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	if count > 0 {
		return nil
	}

	seed := []domain.Product{
		{ID: "p1", Name: "Amanteigado Tradicional", Price: 10, Cost: 4, Stock: 20},
		{ID: "p2", Name: "Amanteigado com Goiabada", Price: 10, Cost: 4.5, Stock: 15},
		{ID: "p3", Name: "Amanteigado com Chocolate", Price: 10, Cost: 5, Stock: 18},
	}
	for _, p := range seed {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO products (id, name, price, cost, stock)
			VALUES ($1,$2,$3,$4,$5)
		`, p.ID, p.Name, p.Price, p.Cost, p.Stock)
		if err != nil {
			return fmt.Errorf("migrate seed: %w", err)
		}
	}
	return nil
}

func (s *Store) ListProducts(ctx context.Context) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, price, cost, stock
		FROM products
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 32)
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Price, &p.Cost, &p.Stock); err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return products, nil
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.ID == "" || product.Name == "" || product.Price < 0 || product.Cost < 0 || product.Stock < 0 {
		return nil, store.ErrValidation
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO products (id, name, price, cost, stock)
		VALUES ($1,$2,$3,$4,$5)
	`, product.ID, product.Name, product.Price, product.Cost, product.Stock)
	if err != nil {
		return nil, err
	}

	created := product
	return &created, nil
}

func (s *Store) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	var p domain.Product
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, price, cost, stock
		FROM products
		WHERE id = $1
	`, id).Scan(&p.ID, &p.Name, &p.Price, &p.Cost, &p.Stock)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (s *Store) UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.ID == "" || product.Name == "" || product.Price < 0 || product.Cost < 0 {
		return nil, store.ErrValidation
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE products
		SET name = $2, price = $3, cost = $4
		WHERE id = $1
	`, product.ID, product.Name, product.Price, product.Cost)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}

	return s.GetProduct(ctx, product.ID)
}

func (s *Store) DeleteProduct(ctx context.Context, id string) error {
	if id == "" {
		return store.ErrValidation
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var referenced bool
	err = tx.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM sale_items WHERE product_id = $1)
	`, id).Scan(&referenced)
	if err != nil {
		return err
	}
	if referenced {
		return fmt.Errorf("product %s: %w", id, store.ErrReferentialIntegrity)
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}

	return tx.Commit()
}

func (s *Store) SetProductStock(ctx context.Context, id string, qty int) error {
	if id == "" || qty < 0 {
		return store.ErrValidation
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE products SET stock = $2 WHERE id = $1
	`, id, qty)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

// IncrementProductStock applies a clamping increment: the resulting level
// floors at zero rather than erroring. Returns the stock after the update.
func (s *Store) IncrementProductStock(ctx context.Context, id string, delta int) (int, error) {
	if id == "" {
		return 0, store.ErrValidation
	}

	var stock int
	err := s.db.QueryRowContext(ctx, `
		UPDATE products
		SET stock = GREATEST(0, stock + $2)
		WHERE id = $1
		RETURNING stock
	`, id, delta).Scan(&stock)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, store.ErrNotFound
		}
		return 0, err
	}
	return stock, nil
}

func (s *Store) ListIngredients(ctx context.Context) ([]domain.Ingredient, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, unit, unit_cost, stock_qty
		FROM ingredients
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ingredients := make([]domain.Ingredient, 0, 32)
	for rows.Next() {
		var ing domain.Ingredient
		if err := rows.Scan(&ing.ID, &ing.Name, &ing.Unit, &ing.UnitCost, &ing.StockQty); err != nil {
			return nil, err
		}
		ingredients = append(ingredients, ing)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return ingredients, nil
}

func (s *Store) CreateIngredient(ctx context.Context, ingredient domain.Ingredient) (*domain.Ingredient, error) {
	if ingredient.ID == "" || ingredient.Name == "" || ingredient.UnitCost < 0 || ingredient.StockQty < 0 {
		return nil, store.ErrValidation
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO ingredients (id, name, unit, unit_cost, stock_qty)
		VALUES ($1,$2,$3,$4,$5)
	`, ingredient.ID, ingredient.Name, ingredient.Unit, ingredient.UnitCost, ingredient.StockQty)
	if err != nil {
		return nil, err
	}

	created := ingredient
	return &created, nil
}

func (s *Store) GetIngredient(ctx context.Context, id string) (*domain.Ingredient, error) {
	var ing domain.Ingredient
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, unit, unit_cost, stock_qty
		FROM ingredients
		WHERE id = $1
	`, id).Scan(&ing.ID, &ing.Name, &ing.Unit, &ing.UnitCost, &ing.StockQty)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &ing, nil
}

func (s *Store) UpdateIngredient(ctx context.Context, ingredient domain.Ingredient) (*domain.Ingredient, error) {
	if ingredient.ID == "" || ingredient.Name == "" || ingredient.UnitCost < 0 {
		return nil, store.ErrValidation
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE ingredients
		SET name = $2, unit = $3, unit_cost = $4
		WHERE id = $1
	`, ingredient.ID, ingredient.Name, ingredient.Unit, ingredient.UnitCost)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}

	return s.GetIngredient(ctx, ingredient.ID)
}

func (s *Store) DeleteIngredient(ctx context.Context, id string) error {
	if id == "" {
		return store.ErrValidation
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var referenced bool
	err = tx.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM ingredient_purchases WHERE ingredient_id = $1)
	`, id).Scan(&referenced)
	if err != nil {
		return err
	}
	if referenced {
		return fmt.Errorf("ingredient %s: %w", id, store.ErrReferentialIntegrity)
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM ingredients WHERE id = $1`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}

	return tx.Commit()
}

func (s *Store) SetIngredientStock(ctx context.Context, id string, qty float64) error {
	if id == "" || qty < 0 {
		return store.ErrValidation
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE ingredients SET stock_qty = $2 WHERE id = $1
	`, id, qty)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) IncrementIngredientStock(ctx context.Context, id string, delta float64) (float64, error) {
	if id == "" {
		return 0, store.ErrValidation
	}

	var qty float64
	err := s.db.QueryRowContext(ctx, `
		UPDATE ingredients
		SET stock_qty = GREATEST(0, stock_qty + $2)
		WHERE id = $1
		RETURNING stock_qty
	`, id, delta).Scan(&qty)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, store.ErrNotFound
		}
		return 0, err
	}
	return qty, nil
}

// FinalizeSale commits a complete sale as one serializable transaction.
// Stock rows are locked and re-validated inside the transaction, so two
// racing sales on the same product cannot both pass the check phase.
func (s *Store) FinalizeSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error) {
	if len(sale.Items) == 0 {
		return nil, store.ErrValidation
	}
	if sale.ID == "" {
		sale.ID = xid.New("s")
	}
	if sale.CreatedAt.IsZero() {
		sale.CreatedAt = time.Now().UTC()
	}
	for i := range sale.Items {
		if sale.Items[i].ID == "" {
			sale.Items[i].ID = xid.New("si")
		}
		sale.Items[i].SaleID = sale.ID
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	required := make(map[string]int, len(sale.Items))
	for _, item := range sale.Items {
		if item.Qty < 1 || item.UnitPrice < 0 {
			return nil, store.ErrValidation
		}
		required[item.ProductID] += item.Qty
	}

	ids := make([]string, 0, len(required))
	for id := range required {
		ids = append(ids, id)
	}

	rows, err := tx.QueryContext(ctx, `
		SELECT id, stock
		FROM products
		WHERE id = ANY($1)
		FOR UPDATE
	`, ids)
	if err != nil {
		return nil, err
	}
	stockMap := make(map[string]int, len(ids))
	for rows.Next() {
		var id string
		var stock int
		if err := rows.Scan(&id, &stock); err != nil {
			_ = rows.Close()
			return nil, err
		}
		stockMap[id] = stock
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	_ = rows.Close()

	for id, qty := range required {
		stock, exists := stockMap[id]
		if !exists {
			return nil, fmt.Errorf("product %s: %w", id, store.ErrNotFound)
		}
		if stock < qty {
			return nil, fmt.Errorf("product %s: %w", id, store.ErrInsufficientStock)
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO sales (id, created_at, total)
		VALUES ($1,$2,$3)
	`, sale.ID, sale.CreatedAt, sale.Total)
	if err != nil {
		return nil, err
	}

	for _, item := range sale.Items {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO sale_items (id, sale_id, product_id, qty, unit_price)
			VALUES ($1,$2,$3,$4,$5)
		`, item.ID, sale.ID, item.ProductID, item.Qty, item.UnitPrice)
		if err != nil {
			return nil, err
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE products
			SET stock = stock - $1
			WHERE id = $2
		`, item.Qty, item.ProductID)
		if err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	committed := sale
	return &committed, nil
}

func (s *Store) GetSale(ctx context.Context, id string) (*domain.Sale, error) {
	var sale domain.Sale
	err := s.db.QueryRowContext(ctx, `
		SELECT id, created_at, total
		FROM sales
		WHERE id = $1
	`, id).Scan(&sale.ID, &sale.CreatedAt, &sale.Total)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	sale.CreatedAt = sale.CreatedAt.UTC()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, sale_id, product_id, qty, unit_price
		FROM sale_items
		WHERE sale_id = $1
		ORDER BY id
	`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var item domain.SaleItem
		if err := rows.Scan(&item.ID, &item.SaleID, &item.ProductID, &item.Qty, &item.UnitPrice); err != nil {
			return nil, err
		}
		sale.Items = append(sale.Items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &sale, nil
}

func (s *Store) RecentSales(ctx context.Context, limit int) ([]domain.SaleSummary, error) {
	if limit < 1 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT s.id, s.created_at, s.total, COALESCE(SUM(si.qty), 0)
		FROM sales s
		LEFT JOIN sale_items si ON si.sale_id = s.id
		GROUP BY s.id, s.created_at, s.total
		ORDER BY s.created_at DESC, s.id DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sales := make([]domain.SaleSummary, 0, limit)
	for rows.Next() {
		var sum domain.SaleSummary
		if err := rows.Scan(&sum.ID, &sum.CreatedAt, &sum.Total, &sum.ItemCount); err != nil {
			return nil, err
		}
		sum.CreatedAt = sum.CreatedAt.UTC()
		sales = append(sales, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return sales, nil
}

// RecordPurchase appends a goods-receipt row, increments the ingredient's
// stock and overwrites its reference unit cost with the purchase price
// (last-price costing), all in one transaction.
func (s *Store) RecordPurchase(ctx context.Context, purchase domain.IngredientPurchase) (*domain.IngredientPurchase, error) {
	if purchase.IngredientID == "" || purchase.Qty <= 0 || purchase.UnitCost < 0 {
		return nil, store.ErrValidation
	}
	if purchase.ID == "" {
		purchase.ID = xid.New("ip")
	}
	if purchase.Date.IsZero() {
		purchase.Date = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var currentQty float64
	err = tx.QueryRowContext(ctx, `
		SELECT stock_qty
		FROM ingredients
		WHERE id = $1
		FOR UPDATE
	`, purchase.IngredientID).Scan(&currentQty)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("ingredient %s: %w", purchase.IngredientID, store.ErrNotFound)
		}
		return nil, err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO ingredient_purchases (id, ingredient_id, qty, unit_cost, total, date)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, purchase.ID, purchase.IngredientID, purchase.Qty, purchase.UnitCost, purchase.Total, purchase.Date)
	if err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE ingredients
		SET stock_qty = stock_qty + $1, unit_cost = $2
		WHERE id = $3
	`, purchase.Qty, purchase.UnitCost, purchase.IngredientID)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	recorded := purchase
	return &recorded, nil
}

func (s *Store) ListPurchases(ctx context.Context, ingredientID string, limit int) ([]domain.IngredientPurchase, error) {
	if limit < 1 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, ingredient_id, qty, unit_cost, total, date
		FROM ingredient_purchases
		WHERE ($1 = '' OR ingredient_id = $1)
		ORDER BY date DESC, id DESC
		LIMIT $2
	`, ingredientID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	purchases := make([]domain.IngredientPurchase, 0, limit)
	for rows.Next() {
		var p domain.IngredientPurchase
		if err := rows.Scan(&p.ID, &p.IngredientID, &p.Qty, &p.UnitCost, &p.Total, &p.Date); err != nil {
			return nil, err
		}
		p.Date = p.Date.UTC()
		purchases = append(purchases, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return purchases, nil
}

func (s *Store) RevenueTotal(ctx context.Context) (float64, error) {
	return s.sumQuery(ctx, `SELECT COALESCE(SUM(total), 0) FROM sales`)
}

func (s *Store) IngredientSpendTotal(ctx context.Context) (float64, error) {
	return s.sumQuery(ctx, `SELECT COALESCE(SUM(total), 0) FROM ingredient_purchases`)
}

func (s *Store) ProductsInventoryValue(ctx context.Context) (float64, error) {
	return s.sumQuery(ctx, `SELECT COALESCE(SUM(stock * cost), 0) FROM products`)
}

func (s *Store) IngredientsInventoryValue(ctx context.Context) (float64, error) {
	return s.sumQuery(ctx, `SELECT COALESCE(SUM(stock_qty * unit_cost), 0) FROM ingredients`)
}

// SaleCostOfGoods prices a sale's items at the current product cost. It is
// reported independently of the cash-basis profit figure.
func (s *Store) SaleCostOfGoods(ctx context.Context, saleID string) (float64, error) {
	if saleID == "" {
		return 0, store.ErrValidation
	}

	var exists bool
	if err := s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM sales WHERE id = $1)`, saleID).Scan(&exists); err != nil {
		return 0, err
	}
	if !exists {
		return 0, store.ErrNotFound
	}

	var total float64
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(si.qty * p.cost), 0)
		FROM sale_items si
		JOIN products p ON p.id = si.product_id
		WHERE si.sale_id = $1
	`, saleID).Scan(&total)
	if err != nil {
		return 0, err
	}
	return total, nil
}

func (s *Store) sumQuery(ctx context.Context, query string) (float64, error) {
	var total float64
	if err := s.db.QueryRowContext(ctx, query).Scan(&total); err != nil {
		return 0, err
	}
	return total, nil
}
