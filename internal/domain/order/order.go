package order

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/feralbyte/storefront/internal/domain/auth"
	"github.com/feralbyte/storefront/internal/domain/delivery"
	"github.com/feralbyte/storefront/internal/domain/product"
)

// StatusProcessing is the delivery status every new order starts in. It is
// the only order field mutated after creation, and only by staff.
const StatusProcessing = "Processing Order"

// ErrNotFound is returned when a requested order does not exist.
var ErrNotFound = errors.New("order not found")

// ValidationError reports malformed or missing fields on a checkout
// request. Nothing is committed when it is returned.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	// Deterministic output: field names in sorted order.
	names := make([]string, 0, len(e.Fields))
	for f := range e.Fields {
		names = append(names, f)
	}
	sort.Strings(names)

	msg := "validation failed"
	for _, f := range names {
		msg += fmt.Sprintf("; %s: %s", f, e.Fields[f])
	}
	return msg
}

// Requester identifies who is checking out: an authenticated user or an
// anonymous visitor correlated only by email.
type Requester interface {
	isRequester()
}

// Authenticated is a requester with a verified identity.
type Authenticated struct {
	auth.Identity
}

func (Authenticated) isRequester() {}

// Anonymous is a requester known only by a submitted email address.
type Anonymous struct {
	Email string
}

func (Anonymous) isRequester() {}

// Order is an immutable record of a completed checkout. UserID is zero for
// anonymous orders; Email is then the correlation key.
type Order struct {
	ID                   int64
	UserID               int64
	Email                string
	Items                []Item
	DeliveryInfoID       int64
	DeliveryInstructions string
	DeliveryStatus       string
	TotalPrice           decimal.Decimal
	DateOrdered          time.Time
}

// Item is one order line, frozen at checkout time.
type Item struct {
	ID        int64
	ProductID int64
	Quantity  int
}

// ItemProjection resolves an order line against the current catalog.
type ItemProjection struct {
	OrderItemID int64
	Product     product.Product
	Quantity    int
}

// Projection is an order with its item and delivery info references
// resolved to current field values.
type Projection struct {
	Order        Order
	Items        []ItemProjection
	DeliveryInfo *delivery.Info
}

// CartCheckout carries everything the repository needs to run the
// authenticated checkout transaction. The cart itself is read inside the
// transaction so the item snapshot and the cart clear cannot diverge.
type CartCheckout struct {
	UserID         int64
	Email          string
	Info           *delivery.Info
	Instructions   string
	TotalPrice     decimal.Decimal
	IdempotencyKey string
}

// AnonymousCheckout carries the anonymous checkout transaction input. The
// item list is explicit since anonymous visitors have no server-side cart.
type AnonymousCheckout struct {
	Email          string
	Info           *delivery.Info
	Items          []Item
	Instructions   string
	TotalPrice     decimal.Decimal
	IdempotencyKey string
}

// Repository defines persistence for orders. The two Create methods are
// all-or-nothing: delivery info, order, order items, history entry, and
// cart cleanup commit together or not at all.
type Repository interface {
	CreateFromCart(ctx context.Context, co *CartCheckout) (*Order, error)
	CreateAnonymous(ctx context.Context, co *AnonymousCheckout) (*Order, error)
	// FindByIdempotencyKey returns the order a previous request with this
	// key created, or ErrNotFound. Keys are scoped to their requester:
	// userID for authenticated checkouts, email for anonymous ones. A key
	// stored under a different requester is not found.
	FindByIdempotencyKey(ctx context.Context, key string, userID int64, email string) (*Order, error)
	ListAll(ctx context.Context) ([]Projection, error)
	ListByUser(ctx context.Context, userID int64) ([]Projection, error)
	UpdateStatus(ctx context.Context, id int64, status string) error
}
