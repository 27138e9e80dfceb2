package handler

import (
	"net/http"
)

// ListOrders returns resolved order projections: every order for staff,
// only the requester's own history otherwise.
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	identity, _ := IdentityFrom(r.Context())

	projections, err := h.orders.List(r.Context(), identity)
	if err != nil {
		respondError(w, r, err)
		return
	}

	out := make([]orderJSON, len(projections))
	for i := range projections {
		out[i] = toOrderJSON(&projections[i])
	}
	writeJSON(w, http.StatusOK, out)
}

type updateStatusRequest struct {
	DeliveryStatus string `json:"delivery_status"`
}

// UpdateOrderStatus changes an order's delivery status. Staff only; this
// is the single mutation orders allow after creation.
func (h *Handler) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	identity, _ := IdentityFrom(r.Context())

	id, err := pathID(r)
	if err != nil {
		respondError(w, r, err)
		return
	}

	var req updateStatusRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, r, err)
		return
	}

	if err := h.orders.UpdateStatus(r.Context(), identity, id, req.DeliveryStatus); err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "delivery status updated"})
}
