package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/feralbyte/storefront/internal/domain/product"
)

const (
	listProductsSQL = `SELECT id, name, image_url, price, category, description_short, description_long
		FROM products ORDER BY id`

	getProductByIDSQL = `SELECT id, name, image_url, price, category, description_short, description_long
		FROM products WHERE id = $1`

	getProductsByIDsSQL = `SELECT id, name, image_url, price, category, description_short, description_long
		FROM products WHERE id = ANY($1)`

	createProductSQL = `INSERT INTO products (name, image_url, price, category, description_short, description_long)
		VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`

	deleteProductSQL = `DELETE FROM products WHERE id = $1`
)

var _ product.Repository = (*ProductRepository)(nil)

// ProductRepository implements product.Repository backed by PostgreSQL.
type ProductRepository struct {
	pool *pgxpool.Pool
}

// NewProductRepository returns a ProductRepository that uses the given pool.
func NewProductRepository(pool *pgxpool.Pool) *ProductRepository {
	return &ProductRepository{pool: pool}
}

// List returns all products from the catalog ordered by ID.
func (r *ProductRepository) List(ctx context.Context) ([]product.Product, error) {
	rows, err := r.pool.Query(ctx, listProductsSQL)
	if err != nil {
		return nil, fmt.Errorf("listing products: %w", err)
	}
	return pgx.CollectRows(rows, scanProduct)
}

// GetByID returns a single product by its identifier.
func (r *ProductRepository) GetByID(ctx context.Context, id int64) (*product.Product, error) {
	rows, err := r.pool.Query(ctx, getProductByIDSQL, id)
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

// GetByIDs returns products matching any of the given IDs.
func (r *ProductRepository) GetByIDs(ctx context.Context, ids []int64) ([]product.Product, error) {
	rows, err := r.pool.Query(ctx, getProductsByIDsSQL, ids)
	if err != nil {
		return nil, fmt.Errorf("getting products by ids: %w", err)
	}
	return pgx.CollectRows(rows, scanProduct)
}

// Create inserts a new catalog product and fills in its generated ID.
func (r *ProductRepository) Create(ctx context.Context, p *product.Product) error {
	err := r.pool.QueryRow(ctx, createProductSQL,
		p.Name, p.ImageURL, p.Price, p.Category, p.DescriptionShort, p.DescriptionLong,
	).Scan(&p.ID)
	if err != nil {
		return fmt.Errorf("creating product %q: %w", p.Name, err)
	}
	return nil
}

// Delete removes a product. Cart lines referencing it cascade away; the
// delete is rejected while any order item still references it.
func (r *ProductRepository) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, deleteProductSQL, id)
	if err != nil {
		if isForeignKeyViolation(err) {
			return product.ErrInUse
		}
		return fmt.Errorf("deleting product %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return product.ErrNotFound
	}
	return nil
}

func scanProduct(row pgx.CollectableRow) (product.Product, error) {
	var (
		p     product.Product
		price decimal.Decimal
	)
	err := row.Scan(
		&p.ID, &p.Name, &p.ImageURL, &price, &p.Category,
		&p.DescriptionShort, &p.DescriptionLong,
	)
	p.Price = price
	return p, err
}
