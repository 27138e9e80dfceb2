package cart

import (
	"context"

	"github.com/go-faster/errors"

	"github.com/feralbyte/storefront/internal/domain/auth"
	"github.com/feralbyte/storefront/internal/domain/product"
)

// ErrInvalidQuantity is returned when an add request carries a quantity
// of zero or less.
var ErrInvalidQuantity = errors.New("quantity must be greater than 0")

// AddRequest is the input for adding a product to a cart.
type AddRequest struct {
	// UserID is the cart owner the caller claims to be. It must match the
	// authenticated requester.
	UserID    int64
	ProductID int64
	Quantity  int
}

// AddResult is the outcome of an add-to-cart operation: the (possibly
// merged) cart line, the resolved product, and which branch was taken.
type AddResult struct {
	Item    *Item
	Product *product.Product
	Status  AddStatus
}

// Line pairs a cart item with its resolved product projection.
type Line struct {
	Item    Item
	Product product.Product
}

// Service implements cart mutation and read logic on top of the item
// repository and the product catalog.
type Service struct {
	items    Repository
	products product.Repository
}

// NewService creates a cart Service.
func NewService(items Repository, products product.Repository) *Service {
	return &Service{items: items, products: products}
}

// Add merges quantity into an existing line for (user, product) or creates
// a new line. The requester must be the claimed cart owner; a mismatch is
// rejected before any write.
func (s *Service) Add(ctx context.Context, requester auth.Identity, req AddRequest) (*AddResult, error) {
	if !auth.Owns(requester, req.UserID) {
		return nil, auth.ErrUnauthorized
	}
	if req.Quantity <= 0 {
		return nil, ErrInvalidQuantity
	}

	// Resolve the product first so a bogus product id fails before the
	// write, and the response can carry the projection.
	p, err := s.products.GetByID(ctx, req.ProductID)
	if err != nil {
		if errors.Is(err, product.ErrNotFound) {
			return nil, err
		}
		return nil, errors.Wrapf(err, "get product %d", req.ProductID)
	}

	item, status, err := s.items.Upsert(ctx, req.UserID, req.ProductID, req.Quantity)
	if err != nil {
		return nil, errors.Wrap(err, "upsert cart item")
	}

	return &AddResult{Item: item, Product: p, Status: status}, nil
}

// List returns the requester's cart lines with resolved products.
func (s *Service) List(ctx context.Context, requester auth.Identity) ([]Line, error) {
	items, err := s.items.ListByUser(ctx, requester.UserID)
	if err != nil {
		return nil, errors.Wrap(err, "list cart items")
	}
	if len(items) == 0 {
		return nil, nil
	}

	ids := make([]int64, len(items))
	for i, it := range items {
		ids[i] = it.ProductID
	}
	fetched, err := s.products.GetByIDs(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(err, "get products")
	}
	byID := make(map[int64]product.Product, len(fetched))
	for _, p := range fetched {
		byID[p.ID] = p
	}

	lines := make([]Line, 0, len(items))
	for _, it := range items {
		p, ok := byID[it.ProductID]
		if !ok {
			// Product deleted after it was added to the cart. Skip the
			// line rather than failing the whole read.
			continue
		}
		lines = append(lines, Line{Item: it, Product: p})
	}
	return lines, nil
}

// MassDelete removes the given cart items. Only items owned by the
// requester are deleted; foreign ids in the set are ignored.
func (s *Service) MassDelete(ctx context.Context, requester auth.Identity, ids []int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	deleted, err := s.items.DeleteByIDs(ctx, requester.UserID, ids)
	if err != nil {
		return 0, errors.Wrap(err, "delete cart items")
	}
	return deleted, nil
}
