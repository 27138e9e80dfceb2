package cart

import "context"

// Item is one cart line: a product and how many of it the user wants.
// There is at most one Item per (user, product) pair; adding the same
// product again merges quantities instead of creating a second line.
type Item struct {
	ID        int64
	UserID    int64
	ProductID int64
	Quantity  int
}

// AddStatus reports which branch an add-to-cart operation took.
type AddStatus string

const (
	// StatusCreated means a new cart line was inserted.
	StatusCreated AddStatus = "created"
	// StatusMerged means an existing line's quantity was increased.
	StatusMerged AddStatus = "merged"
)

// Repository defines persistence operations for cart items.
//
// Upsert must be atomic with respect to concurrent calls for the same
// (user, product) pair: two concurrent adds must never produce two lines.
type Repository interface {
	Upsert(ctx context.Context, userID, productID int64, quantity int) (*Item, AddStatus, error)
	ListByUser(ctx context.Context, userID int64) ([]Item, error)
	// DeleteByIDs removes the given items, restricted to those owned by
	// userID. It returns the number of rows actually deleted.
	DeleteByIDs(ctx context.Context, userID int64, ids []int64) (int64, error)
}
