package product

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a requested product does not exist.
var ErrNotFound = errors.New("product not found")

// ErrInUse is returned when a product cannot be deleted because order
// items still reference it. Orders are immutable records; the reference
// wins over the delete.
var ErrInUse = errors.New("product referenced by existing orders")

// Product represents a catalog item available for purchase.
type Product struct {
	ID               int64
	Name             string
	ImageURL         string
	Price            decimal.Decimal
	Category         string
	DescriptionShort string
	DescriptionLong  string
}

// Repository defines catalog operations. The checkout engine only reads;
// Create and Delete exist for the staff-only admin surface.
type Repository interface {
	List(ctx context.Context) ([]Product, error)
	GetByID(ctx context.Context, id int64) (*Product, error)
	GetByIDs(ctx context.Context, ids []int64) ([]Product, error)
	Create(ctx context.Context, p *Product) error
	Delete(ctx context.Context, id int64) error
}
