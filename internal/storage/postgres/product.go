package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/shopdesk/internal/domain/product"
)

const (
	listProductsSQL = `SELECT id, name, price, stock, status FROM products ORDER BY id`

	getProductByIDSQL = `SELECT id, name, price, stock, status FROM products WHERE id = $1`

	// The WHERE clause makes the decrement conditional; no row back means
	// either a missing product or not enough stock.
	decreaseStockSQL = `UPDATE products SET stock = stock - $2
		WHERE id = $1 AND stock >= $2
		RETURNING stock + $2, stock`

	increaseStockSQL = `UPDATE products SET stock = stock + $2
		WHERE id = $1
		RETURNING stock - $2, stock`

	updateStockSQL = `UPDATE products p SET stock = $2
		FROM (SELECT id, stock FROM products WHERE id = $1 FOR UPDATE) old
		WHERE p.id = old.id
		RETURNING old.stock, p.stock`

	productExistsSQL = `SELECT EXISTS (SELECT 1 FROM products WHERE id = $1)`

	insertProductSQL = `INSERT INTO products (name, price, stock, status)
		VALUES ($1, $2, $3, $4) RETURNING id`
)

var _ product.Repository = (*ProductRepository)(nil)

// ProductRepository implements product.Repository backed by PostgreSQL.
type ProductRepository struct {
	store
}

// NewProductRepository returns a ProductRepository that uses the given pool.
func NewProductRepository(pool *pgxpool.Pool) *ProductRepository {
	return &ProductRepository{store{pool: pool}}
}

// List returns all products ordered by ID.
func (r *ProductRepository) List(ctx context.Context) ([]product.Product, error) {
	rows, err := r.q(ctx).Query(ctx, listProductsSQL)
	if err != nil {
		return nil, fmt.Errorf("listing products: %w", err)
	}
	return pgx.CollectRows(rows, scanProduct)
}

// FindByID returns a single product.
func (r *ProductRepository) FindByID(ctx context.Context, id int64) (*product.Product, error) {
	rows, err := r.q(ctx).Query(ctx, getProductByIDSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting product %d: %w", id, err)
	}

	p, err := pgx.CollectExactlyOneRow(rows, scanProduct)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, product.ErrNotFound
		}
		return nil, fmt.Errorf("getting product %d: %w", id, err)
	}
	return &p, nil
}

// DecreaseStock takes qty units in one conditional statement. It returns
// product.ErrInsufficientStock when the product holds fewer than qty units.
func (r *ProductRepository) DecreaseStock(ctx context.Context, id int64, qty int) (product.StockChange, error) {
	if qty <= 0 {
		return product.StockChange{}, product.ErrInvalidQuantity
	}
	var c product.StockChange
	err := r.q(ctx).QueryRow(ctx, decreaseStockSQL, id, qty).Scan(&c.Before, &c.After)
	if errors.Is(err, pgx.ErrNoRows) {
		return c, r.missingOr(ctx, id, product.ErrInsufficientStock)
	}
	if err != nil {
		return c, fmt.Errorf("decreasing stock of product %d: %w", id, err)
	}
	return c, nil
}

// IncreaseStock adds qty units. Non-positive quantities are rejected.
func (r *ProductRepository) IncreaseStock(ctx context.Context, id int64, qty int) (product.StockChange, error) {
	if qty <= 0 {
		return product.StockChange{}, product.ErrInvalidQuantity
	}
	var c product.StockChange
	err := r.q(ctx).QueryRow(ctx, increaseStockSQL, id, qty).Scan(&c.Before, &c.After)
	if errors.Is(err, pgx.ErrNoRows) {
		return c, product.ErrNotFound
	}
	if err != nil {
		return c, fmt.Errorf("increasing stock of product %d: %w", id, err)
	}
	return c, nil
}

// UpdateStock overwrites the stock level and reports the previous value.
func (r *ProductRepository) UpdateStock(ctx context.Context, id int64, stock int) (product.StockChange, error) {
	if stock < 0 {
		return product.StockChange{}, product.ErrInvalidQuantity
	}
	var c product.StockChange
	err := r.q(ctx).QueryRow(ctx, updateStockSQL, id, stock).Scan(&c.Before, &c.After)
	if errors.Is(err, pgx.ErrNoRows) {
		return c, product.ErrNotFound
	}
	if err != nil {
		return c, fmt.Errorf("updating stock of product %d: %w", id, err)
	}
	return c, nil
}

// Create inserts a catalog item and sets its ID. Only seeding uses it.
func (r *ProductRepository) Create(ctx context.Context, p *product.Product) error {
	err := r.q(ctx).QueryRow(ctx, insertProductSQL, p.Name, p.Price, p.Stock, int16(p.Status)).Scan(&p.ID)
	if err != nil {
		return fmt.Errorf("creating product %q: %w", p.Name, err)
	}
	return nil
}

// missingOr tells a missing product apart from a failed condition.
func (r *ProductRepository) missingOr(ctx context.Context, id int64, condErr error) error {
	var exists bool
	if err := r.q(ctx).QueryRow(ctx, productExistsSQL, id).Scan(&exists); err != nil {
		return fmt.Errorf("checking product %d: %w", id, err)
	}
	if !exists {
		return product.ErrNotFound
	}
	return condErr
}

func scanProduct(row pgx.CollectableRow) (product.Product, error) {
	var (
		p      product.Product
		status int16
	)
	err := row.Scan(&p.ID, &p.Name, &p.Price, &p.Stock, &status)
	p.Status = product.Status(status)
	return p, err
}
