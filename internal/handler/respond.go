package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/feralbyte/storefront/internal/domain/auth"
	"github.com/feralbyte/storefront/internal/domain/cart"
	"github.com/feralbyte/storefront/internal/domain/order"
	"github.com/feralbyte/storefront/internal/domain/product"
)

// errorBody is the structured error response. Fields is present only for
// validation failures.
type errorBody struct {
	Code    int               `json:"code"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// Best effort: the status code is already written.
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorBody{Code: status, Message: message})
}

// respondError maps domain errors onto the HTTP error taxonomy. Unmapped
// errors are logged and surfaced as an opaque 500; no internal detail
// leaves the process.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *order.ValidationError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, errorBody{
			Code:    http.StatusBadRequest,
			Message: "validation failed",
			Fields:  verr.Fields,
		})
	case errors.Is(err, cart.ErrInvalidQuantity):
		writeJSON(w, http.StatusBadRequest, errorBody{
			Code:    http.StatusBadRequest,
			Message: "validation failed",
			Fields:  map[string]string{"quantity": "quantity must be greater than 0"},
		})
	case errors.Is(err, auth.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, "unauthorized")
	case errors.Is(err, auth.ErrForbidden):
		writeError(w, http.StatusForbidden, "forbidden")
	case errors.Is(err, product.ErrNotFound):
		writeError(w, http.StatusNotFound, "product not found")
	case errors.Is(err, product.ErrInUse):
		writeError(w, http.StatusConflict, "product is referenced by existing orders")
	case errors.Is(err, order.ErrNotFound):
		writeError(w, http.StatusNotFound, "order not found")
	default:
		zctx.From(r.Context()).Error("request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// decodeBody strictly decodes a JSON request body into v.
func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return &order.ValidationError{Fields: map[string]string{
			"body": "malformed JSON payload: " + err.Error(),
		}}
	}
	return nil
}
