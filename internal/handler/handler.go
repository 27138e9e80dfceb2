// Package handler exposes the storefront API over net/http. Handlers
// decode tagged JSON payloads, delegate to the domain services, and map
// domain errors onto the HTTP error taxonomy.
package handler

import (
	"net/http"

	"github.com/feralbyte/storefront/internal/domain/cart"
	"github.com/feralbyte/storefront/internal/domain/order"
	"github.com/feralbyte/storefront/internal/domain/product"
)

// Handler holds the domain dependencies for all API endpoints.
type Handler struct {
	products product.Repository
	carts    *cart.Service
	orders   *order.Service
	security *SecurityHandler
}

// NewHandler constructs a Handler with the required domain dependencies.
func NewHandler(
	products product.Repository,
	carts *cart.Service,
	orders *order.Service,
	security *SecurityHandler,
) *Handler {
	return &Handler{
		products: products,
		carts:    carts,
		orders:   orders,
		security: security,
	}
}

// Register attaches all API routes to the mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/products", h.ListProducts)
	mux.HandleFunc("GET /api/products/{id}", h.GetProduct)
	mux.HandleFunc("POST /api/products", h.withAuth(h.CreateProduct))
	mux.HandleFunc("DELETE /api/products/{id}", h.withAuth(h.DeleteProduct))

	mux.HandleFunc("GET /api/cart", h.withAuth(h.ListCart))
	mux.HandleFunc("POST /api/cart/items", h.withAuth(h.AddCartItem))
	mux.HandleFunc("POST /api/cart/mass-delete", h.withAuth(h.MassDelete))

	mux.HandleFunc("POST /api/checkout", h.withAuth(h.Checkout))
	mux.HandleFunc("POST /api/checkout/anonymous", h.CheckoutAnonymous)

	mux.HandleFunc("GET /api/orders", h.withAuth(h.ListOrders))
	mux.HandleFunc("PATCH /api/orders/{id}/status", h.withAuth(h.UpdateOrderStatus))
}
