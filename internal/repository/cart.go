package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/feralbyte/storefront/internal/domain/cart"
)

const (
	// xmax = 0 distinguishes a fresh insert from a conflict update: an
	// inserted row has no deleting transaction recorded.
	upsertCartItemSQL = `INSERT INTO cart_items (user_id, product_id, quantity)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, product_id)
		DO UPDATE SET quantity = cart_items.quantity + EXCLUDED.quantity
		RETURNING id, quantity, (xmax = 0) AS inserted`

	listCartItemsSQL = `SELECT id, user_id, product_id, quantity
		FROM cart_items WHERE user_id = $1 ORDER BY id`

	deleteCartItemsSQL = `DELETE FROM cart_items WHERE user_id = $1 AND id = ANY($2)`
)

var _ cart.Repository = (*CartRepository)(nil)

// CartRepository implements cart.Repository backed by PostgreSQL.
type CartRepository struct {
	pool *pgxpool.Pool
}

// NewCartRepository returns a CartRepository that uses the given pool.
func NewCartRepository(pool *pgxpool.Pool) *CartRepository {
	return &CartRepository{pool: pool}
}

// Upsert inserts a cart line or merges quantity into the existing line for
// (user, product). The unique index on the pair makes concurrent adds
// serialize on the row instead of both taking the create branch.
func (r *CartRepository) Upsert(ctx context.Context, userID, productID int64, quantity int) (*cart.Item, cart.AddStatus, error) {
	item := cart.Item{
		UserID:    userID,
		ProductID: productID,
	}
	var inserted bool
	err := r.pool.QueryRow(ctx, upsertCartItemSQL, userID, productID, quantity).
		Scan(&item.ID, &item.Quantity, &inserted)
	if err != nil {
		return nil, "", fmt.Errorf("upserting cart item (user %d, product %d): %w", userID, productID, err)
	}

	status := cart.StatusMerged
	if inserted {
		status = cart.StatusCreated
	}
	return &item, status, nil
}

// ListByUser returns a user's cart lines ordered by ID.
func (r *CartRepository) ListByUser(ctx context.Context, userID int64) ([]cart.Item, error) {
	rows, err := r.pool.Query(ctx, listCartItemsSQL, userID)
	if err != nil {
		return nil, fmt.Errorf("listing cart items for user %d: %w", userID, err)
	}
	return pgx.CollectRows(rows, scanCartItem)
}

// DeleteByIDs removes the given cart items belonging to userID. IDs owned
// by other users are silently skipped.
func (r *CartRepository) DeleteByIDs(ctx context.Context, userID int64, ids []int64) (int64, error) {
	tag, err := r.pool.Exec(ctx, deleteCartItemsSQL, userID, ids)
	if err != nil {
		return 0, fmt.Errorf("deleting cart items for user %d: %w", userID, err)
	}
	return tag.RowsAffected(), nil
}

func scanCartItem(row pgx.CollectableRow) (cart.Item, error) {
	var it cart.Item
	err := row.Scan(&it.ID, &it.UserID, &it.ProductID, &it.Quantity)
	return it, err
}
