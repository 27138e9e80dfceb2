package handler

import (
	"net/http"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/feralbyte/storefront/internal/domain/auth"
	"github.com/feralbyte/storefront/internal/domain/order"
	"github.com/feralbyte/storefront/internal/domain/product"
)

// productJSON is the product projection used across all responses.
type productJSON struct {
	ID               int64           `json:"id"`
	Name             string          `json:"name"`
	ImageURL         string          `json:"image_url"`
	Price            decimal.Decimal `json:"price"`
	Category         string          `json:"category"`
	DescriptionShort string          `json:"description_short"`
	DescriptionLong  string          `json:"description_long"`
}

func toProductJSON(p product.Product) productJSON {
	return productJSON{
		ID:               p.ID,
		Name:             p.Name,
		ImageURL:         p.ImageURL,
		Price:            p.Price,
		Category:         p.Category,
		DescriptionShort: p.DescriptionShort,
		DescriptionLong:  p.DescriptionLong,
	}
}

// ListProducts returns the full catalog ordered by id.
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.products.List(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}

	out := make([]productJSON, len(products))
	for i, p := range products {
		out[i] = toProductJSON(p)
	}
	writeJSON(w, http.StatusOK, out)
}

// GetProduct returns a single catalog product.
func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		respondError(w, r, err)
		return
	}

	p, err := h.products.GetByID(r.Context(), id)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toProductJSON(*p))
}

// CreateProduct adds a catalog product. Staff only.
func (h *Handler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	identity, _ := IdentityFrom(r.Context())
	if !identity.Staff {
		respondError(w, r, auth.ErrForbidden)
		return
	}

	var req productJSON
	if err := decodeBody(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	if req.Name == "" {
		respondError(w, r, &order.ValidationError{Fields: map[string]string{
			"name": "this field is required",
		}})
		return
	}
	if req.Price.IsNegative() {
		respondError(w, r, &order.ValidationError{Fields: map[string]string{
			"price": "price must not be negative",
		}})
		return
	}

	p := product.Product{
		Name:             req.Name,
		ImageURL:         req.ImageURL,
		Price:            req.Price,
		Category:         req.Category,
		DescriptionShort: req.DescriptionShort,
		DescriptionLong:  req.DescriptionLong,
	}
	if err := h.products.Create(r.Context(), &p); err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toProductJSON(p))
}

// DeleteProduct removes a catalog product. Staff only.
func (h *Handler) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	identity, _ := IdentityFrom(r.Context())
	if !identity.Staff {
		respondError(w, r, auth.ErrForbidden)
		return
	}

	id, err := pathID(r)
	if err != nil {
		respondError(w, r, err)
		return
	}

	if err := h.products.Delete(r.Context(), id); err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Successful deletion"})
}

// pathID parses the {id} path segment.
func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, &order.ValidationError{Fields: map[string]string{
			"id": "must be a positive integer",
		}}
	}
	return id, nil
}
