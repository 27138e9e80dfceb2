package handler

import (
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/feralbyte/storefront/internal/domain/delivery"
	"github.com/feralbyte/storefront/internal/domain/order"
	"github.com/feralbyte/storefront/pkg/idempotency"
)

type deliveryInfoJSON struct {
	ID           int64  `json:"id,omitempty"`
	User         int64  `json:"user,omitempty"`
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name"`
	Email        string `json:"email"`
	PhoneNumber  string `json:"phone_number"`
	Address      string `json:"address"`
	City         string `json:"city"`
	Country      string `json:"country"`
	PostCode     string `json:"post_code"`
	DeliveryType string `json:"delivery_type"`
}

type orderSummaryJSON struct {
	DeliveryInstructions string          `json:"delivery_instructions"`
	TotalPrice           decimal.Decimal `json:"total_price"`
}

type checkoutItemJSON struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

// checkoutRequest is the tagged checkout payload. Items is only honored on
// the anonymous endpoint, where no server-side cart exists.
type checkoutRequest struct {
	DeliveryInfo deliveryInfoJSON   `json:"delivery_info"`
	OrderSummary orderSummaryJSON   `json:"order_summary"`
	Items        []checkoutItemJSON `json:"items,omitempty"`
}

type orderItemJSON struct {
	OrderItemID int64       `json:"order_item_id"`
	Product     productJSON `json:"product"`
	Quantity    int         `json:"quantity"`
}

type orderJSON struct {
	ID                   int64             `json:"id"`
	User                 int64             `json:"user,omitempty"`
	Email                string            `json:"email,omitempty"`
	Items                []orderItemJSON   `json:"items"`
	DeliveryInfo         *deliveryInfoJSON `json:"delivery_info,omitempty"`
	DeliveryInstructions string            `json:"delivery_instructions"`
	DeliveryStatus       string            `json:"delivery_status"`
	DateOrdered          time.Time         `json:"date_ordered"`
	TotalPrice           decimal.Decimal   `json:"total_price"`
}

func toDeliveryInfoJSON(info *delivery.Info) *deliveryInfoJSON {
	if info == nil {
		return nil
	}
	return &deliveryInfoJSON{
		ID:           info.ID,
		User:         info.UserID,
		FirstName:    info.FirstName,
		LastName:     info.LastName,
		Email:        info.Email,
		PhoneNumber:  info.PhoneNumber,
		Address:      info.Address,
		City:         info.City,
		Country:      info.Country,
		PostCode:     info.PostCode,
		DeliveryType: info.DeliveryType,
	}
}

func toOrderJSON(p *order.Projection) orderJSON {
	items := make([]orderItemJSON, len(p.Items))
	for i, it := range p.Items {
		items[i] = orderItemJSON{
			OrderItemID: it.OrderItemID,
			Product:     toProductJSON(it.Product),
			Quantity:    it.Quantity,
		}
	}
	return orderJSON{
		ID:                   p.Order.ID,
		User:                 p.Order.UserID,
		Email:                p.Order.Email,
		Items:                items,
		DeliveryInfo:         toDeliveryInfoJSON(p.DeliveryInfo),
		DeliveryInstructions: p.Order.DeliveryInstructions,
		DeliveryStatus:       p.Order.DeliveryStatus,
		DateOrdered:          p.Order.DateOrdered,
		TotalPrice:           p.Order.TotalPrice,
	}
}

func (req *checkoutRequest) toDomain() order.CheckoutRequest {
	items := make([]order.ItemInput, len(req.Items))
	for i, it := range req.Items {
		items[i] = order.ItemInput{ProductID: it.ProductID, Quantity: it.Quantity}
	}
	return order.CheckoutRequest{
		Info: delivery.Info{
			UserID:       req.DeliveryInfo.User,
			FirstName:    req.DeliveryInfo.FirstName,
			LastName:     req.DeliveryInfo.LastName,
			Email:        req.DeliveryInfo.Email,
			PhoneNumber:  req.DeliveryInfo.PhoneNumber,
			Address:      req.DeliveryInfo.Address,
			City:         req.DeliveryInfo.City,
			Country:      req.DeliveryInfo.Country,
			PostCode:     req.DeliveryInfo.PostCode,
			DeliveryType: req.DeliveryInfo.DeliveryType,
		},
		Instructions: req.OrderSummary.DeliveryInstructions,
		TotalPrice:   req.OrderSummary.TotalPrice,
		Items:        items,
	}
}

// Checkout converts the requester's cart plus the submitted delivery info
// into an order. 201 with the assembled projection on success; 400 with a
// field error map on validation failure; 403 on identity mismatch.
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	identity, _ := IdentityFrom(r.Context())

	var req checkoutRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, r, err)
		return
	}

	domainReq := req.toDomain()
	domainReq.Items = nil // the authenticated path always uses the stored cart
	domainReq.IdempotencyKey = idempotency.Key(r)

	proj, err := h.orders.Checkout(r.Context(), order.Authenticated{Identity: identity}, domainReq)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toOrderJSON(proj))
}

// CheckoutAnonymous places an order for a visitor with no account. The
// item list is explicit and the submitted email correlates the order.
func (h *Handler) CheckoutAnonymous(w http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, r, err)
		return
	}

	domainReq := req.toDomain()
	domainReq.IdempotencyKey = idempotency.Key(r)

	_, err := h.orders.Checkout(r.Context(), order.Anonymous{Email: req.DeliveryInfo.Email}, domainReq)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"message": "Order Successful"})
}
