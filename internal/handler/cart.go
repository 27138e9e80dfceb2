package handler

import (
	"net/http"

	"github.com/feralbyte/storefront/internal/domain/cart"
	"github.com/feralbyte/storefront/internal/domain/order"
)

type addCartItemRequest struct {
	User     int64 `json:"user"`
	Product  int64 `json:"product"`
	Quantity int   `json:"quantity"`
}

type cartLineJSON struct {
	CartItemID int64       `json:"cart_item_id"`
	Product    productJSON `json:"product"`
	Quantity   int         `json:"quantity"`
	Status     string      `json:"status,omitempty"`
}

// AddCartItem merges a quantity into the requester's cart line for the
// product, or creates the line. The claimed cart owner must match the
// authenticated requester.
func (h *Handler) AddCartItem(w http.ResponseWriter, r *http.Request) {
	identity, _ := IdentityFrom(r.Context())

	var req addCartItemRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, r, err)
		return
	}

	result, err := h.carts.Add(r.Context(), identity, cart.AddRequest{
		UserID:    req.User,
		ProductID: req.Product,
		Quantity:  req.Quantity,
	})
	if err != nil {
		respondError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, cartLineJSON{
		CartItemID: result.Item.ID,
		Product:    toProductJSON(*result.Product),
		Quantity:   result.Item.Quantity,
		Status:     string(result.Status),
	})
}

// ListCart returns the requester's cart lines with resolved products.
func (h *Handler) ListCart(w http.ResponseWriter, r *http.Request) {
	identity, _ := IdentityFrom(r.Context())

	lines, err := h.carts.List(r.Context(), identity)
	if err != nil {
		respondError(w, r, err)
		return
	}

	out := make([]cartLineJSON, len(lines))
	for i, l := range lines {
		out[i] = cartLineJSON{
			CartItemID: l.Item.ID,
			Product:    toProductJSON(l.Product),
			Quantity:   l.Item.Quantity,
		}
	}
	writeJSON(w, http.StatusOK, out)
}

type massDeleteRequest struct {
	ObjectType string  `json:"object_type"`
	IDs        []int64 `json:"ids"`
}

// MassDelete removes a set of the requester's cart items. Items owned by
// other users are never touched, whatever ids the request names.
func (h *Handler) MassDelete(w http.ResponseWriter, r *http.Request) {
	identity, _ := IdentityFrom(r.Context())

	var req massDeleteRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	if req.ObjectType != "cart" {
		respondError(w, r, &order.ValidationError{Fields: map[string]string{
			"object_type": "unsupported object type",
		}})
		return
	}

	if _, err := h.carts.MassDelete(r.Context(), identity, req.IDs); err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Items successfully deleted"})
}
