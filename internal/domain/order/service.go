package order

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/feralbyte/storefront/internal/domain/auth"
	"github.com/feralbyte/storefront/internal/domain/delivery"
	"github.com/feralbyte/storefront/internal/domain/product"
)

// CheckoutRequest is the tagged checkout payload: a delivery profile, an
// order summary, and (for anonymous checkouts only) an explicit item list.
type CheckoutRequest struct {
	Info         delivery.Info
	Instructions string
	// TotalPrice is accepted as the caller supplies it. The engine treats
	// it as opaque input and does not recompute it from item prices.
	TotalPrice decimal.Decimal
	Items      []ItemInput
	// IdempotencyKey, when set, makes a retried checkout return the order
	// the first attempt created instead of creating another.
	IdempotencyKey string
}

// ItemInput is one (product, quantity) pair from an anonymous checkout.
type ItemInput struct {
	ProductID int64
	Quantity  int
}

// Service is the order assembly engine. It validates checkout input,
// dispatches on the requester kind, and delegates the multi-entity write
// to the repository, which runs it as a single transaction.
type Service struct {
	orders     Repository
	products   product.Repository
	deliveries delivery.Repository
}

// NewService creates an order Service.
func NewService(orders Repository, products product.Repository, deliveries delivery.Repository) *Service {
	return &Service{orders: orders, products: products, deliveries: deliveries}
}

// Checkout converts a cart (or an explicit anonymous item list) plus
// delivery info into a persisted order. The write sequence is atomic: a
// failure at any step leaves no delivery info, order items, order, history
// entry, or cart change behind.
func (s *Service) Checkout(ctx context.Context, requester Requester, req CheckoutRequest) (*Projection, error) {
	switch r := requester.(type) {
	case Authenticated:
		return s.checkoutCart(ctx, r.Identity, req)
	case Anonymous:
		return s.checkoutAnonymous(ctx, r.Email, req)
	default:
		return nil, errors.Errorf("unknown requester type %T", requester)
	}
}

// checkoutCart is the authenticated path: the item snapshot comes from the
// user's stored cart, the order joins their history, and the cart is
// cleared, all inside one transaction.
func (s *Service) checkoutCart(ctx context.Context, identity auth.Identity, req CheckoutRequest) (*Projection, error) {
	// Ownership precondition, checked before any write.
	if err := auth.Authorize(identity, req.Info.UserID); err != nil {
		return nil, err
	}

	if verr := validateCheckout(&req); verr != nil {
		return nil, verr
	}

	// An idempotent replay only resolves to an order this user created.
	// Someone else's key misses here and fails on the unique key row
	// inside the transaction instead of leaking the stored order.
	if req.IdempotencyKey != "" {
		existing, err := s.orders.FindByIdempotencyKey(ctx, req.IdempotencyKey, identity.UserID, "")
		switch {
		case err == nil:
			return s.project(ctx, existing)
		case !errors.Is(err, ErrNotFound):
			return nil, errors.Wrap(err, "idempotency lookup")
		}
	}

	o, err := s.orders.CreateFromCart(ctx, &CartCheckout{
		UserID:         identity.UserID,
		Email:          req.Info.Email,
		Info:           &req.Info,
		Instructions:   req.Instructions,
		TotalPrice:     req.TotalPrice,
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		return nil, errors.Wrap(err, "create order")
	}

	return s.project(ctx, o)
}

// checkoutAnonymous mirrors the authenticated path but takes the item list
// from the request, skips ownership and history, and stores the email on
// the order and every item.
func (s *Service) checkoutAnonymous(ctx context.Context, email string, req CheckoutRequest) (*Projection, error) {
	req.Info.UserID = 0
	req.Info.Email = email

	if verr := validateCheckout(&req); verr != nil {
		return nil, verr
	}

	// Anonymous replays are correlated by email. The same key under a
	// different email is treated as a fresh attempt and rejected on the
	// key row inside the transaction.
	if req.IdempotencyKey != "" {
		existing, err := s.orders.FindByIdempotencyKey(ctx, req.IdempotencyKey, 0, email)
		switch {
		case err == nil:
			return s.project(ctx, existing)
		case !errors.Is(err, ErrNotFound):
			return nil, errors.Wrap(err, "idempotency lookup")
		}
	}

	items, verr := s.materializeItems(ctx, req.Items)
	if verr != nil {
		return nil, verr
	}

	o, err := s.orders.CreateAnonymous(ctx, &AnonymousCheckout{
		Email:          email,
		Info:           &req.Info,
		Items:          items,
		Instructions:   req.Instructions,
		TotalPrice:     req.TotalPrice,
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		return nil, errors.Wrap(err, "create anonymous order")
	}

	return s.project(ctx, o)
}

// materializeItems validates the explicit item list of an anonymous
// checkout. The whole checkout aborts on the first failing item.
func (s *Service) materializeItems(ctx context.Context, inputs []ItemInput) ([]Item, error) {
	items := make([]Item, len(inputs))
	ids := make([]int64, len(inputs))
	for i, in := range inputs {
		if in.Quantity <= 0 {
			return nil, &ValidationError{Fields: map[string]string{
				fmt.Sprintf("items[%d].quantity", i): "quantity must be greater than 0",
			}}
		}
		items[i] = Item{ProductID: in.ProductID, Quantity: in.Quantity}
		ids[i] = in.ProductID
	}
	if len(ids) == 0 {
		return items, nil
	}

	fetched, err := s.products.GetByIDs(ctx, ids)
	if err != nil {
		return nil, &ValidationError{Fields: map[string]string{
			"items": "could not resolve products",
		}}
	}
	known := make(map[int64]struct{}, len(fetched))
	for _, p := range fetched {
		known[p.ID] = struct{}{}
	}
	for i, in := range inputs {
		if _, ok := known[in.ProductID]; !ok {
			return nil, &ValidationError{Fields: map[string]string{
				fmt.Sprintf("items[%d].product_id", i): fmt.Sprintf("product %d not found", in.ProductID),
			}}
		}
	}
	return items, nil
}

// validateCheckout checks the delivery profile and the order summary.
func validateCheckout(req *CheckoutRequest) *ValidationError {
	problems := req.Info.Validate()
	if req.TotalPrice.IsNegative() {
		problems["total_price"] = "total price must not be negative"
	}
	if len(problems) > 0 {
		return &ValidationError{Fields: problems}
	}
	return nil
}

// project resolves an order's item references into current product
// projections and attaches the delivery profile.
func (s *Service) project(ctx context.Context, o *Order) (*Projection, error) {
	proj := &Projection{Order: *o}

	if o.DeliveryInfoID != 0 {
		info, err := s.deliveries.GetByID(ctx, o.DeliveryInfoID)
		if err != nil {
			return nil, errors.Wrapf(err, "resolve delivery info %d", o.DeliveryInfoID)
		}
		proj.DeliveryInfo = info
	}

	if len(o.Items) == 0 {
		return proj, nil
	}

	ids := make([]int64, len(o.Items))
	for i, it := range o.Items {
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

	proj.Items = make([]ItemProjection, 0, len(o.Items))
	for _, it := range o.Items {
		proj.Items = append(proj.Items, ItemProjection{
			OrderItemID: it.ID,
			Product:     byID[it.ProductID],
			Quantity:    it.Quantity,
		})
	}
	return proj, nil
}

// List returns resolved order projections: everything for staff, only the
// requester's own history otherwise.
func (s *Service) List(ctx context.Context, requester auth.Identity) ([]Projection, error) {
	if requester.Staff {
		return s.orders.ListAll(ctx)
	}
	return s.orders.ListByUser(ctx, requester.UserID)
}

// UpdateStatus changes an order's delivery status. Staff only. This is
// the single post-creation mutation orders allow.
func (s *Service) UpdateStatus(ctx context.Context, requester auth.Identity, orderID int64, status string) error {
	if !requester.Staff {
		return auth.ErrForbidden
	}
	if status == "" {
		return &ValidationError{Fields: map[string]string{
			"delivery_status": "this field is required",
		}}
	}
	if err := s.orders.UpdateStatus(ctx, orderID, status); err != nil {
		return errors.Wrapf(err, "update order %d status", orderID)
	}
	return nil
}
