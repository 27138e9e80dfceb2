//go:build integration

package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
	"time"
)

func TestCheckout_NoAuth(t *testing.T) {
	resp := do(t, http.MethodPost, "/api/checkout", "", checkoutRequest{})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
}

func TestCheckout_FromCart(t *testing.T) {
	clearCart(t)
	addToCart(t, 1, 2)
	addToCart(t, 2, 1)

	req := checkoutRequest{
		DeliveryInfo: validDelivery(customerID),
		OrderSummary: orderSummaryRequest{
			DeliveryInstructions: "ring twice",
			TotalPrice:           "244.48",
		},
	}

	resp := do(t, http.MethodPost, "/api/checkout", customerToken, req)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}

	order := decodeJSON[orderResponse](t, resp)
	if order.ID == 0 {
		t.Error("order has no id")
	}
	if order.DeliveryStatus != "Processing Order" {
		t.Errorf("delivery_status: got %q, want %q", order.DeliveryStatus, "Processing Order")
	}
	if order.TotalPrice != "244.48" {
		t.Errorf("total_price: got %q, want %q", order.TotalPrice, "244.48")
	}
	if len(order.Items) != 2 {
		t.Errorf("expected 2 order items, got %d", len(order.Items))
	}
	if order.DeliveryInfo == nil || order.DeliveryInfo.City != "London" {
		t.Error("delivery info not resolved on the projection")
	}

	// The cart clears in the same transaction that creates the order.
	cartResp := do(t, http.MethodGet, "/api/cart", customerToken, nil)
	defer cartResp.Body.Close()
	lines := decodeJSON[[]cartLineResponse](t, cartResp)
	if len(lines) != 0 {
		t.Errorf("cart should be empty after checkout, got %d lines", len(lines))
	}

	// The order joins the customer's history.
	histResp := do(t, http.MethodGet, "/api/orders", customerToken, nil)
	defer histResp.Body.Close()
	history := decodeJSON[[]orderResponse](t, histResp)
	found := false
	for _, h := range history {
		if h.ID == order.ID {
			found = true
			break
		}
	}
	if !found {
		t.Errorf("order %d not present in customer history", order.ID)
	}
}

func TestCheckout_ValidationRollsBackEverything(t *testing.T) {
	clearCart(t)
	addToCart(t, 1, 1)

	req := checkoutRequest{
		DeliveryInfo: deliveryInfoRequest{User: customerID, FirstName: "Ada"},
		OrderSummary: orderSummaryRequest{TotalPrice: "10.00"},
	}

	resp := do(t, http.MethodPost, "/api/checkout", customerToken, req)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}

	errResp := decodeJSON[errorResponse](t, resp)
	if _, ok := errResp.Fields["city"]; !ok {
		t.Error("expected a field error for city")
	}

	// The cart survives a failed checkout untouched.
	cartResp := do(t, http.MethodGet, "/api/cart", customerToken, nil)
	defer cartResp.Body.Close()
	lines := decodeJSON[[]cartLineResponse](t, cartResp)
	if len(lines) != 1 {
		t.Errorf("cart should still have 1 line, got %d", len(lines))
	}
}

func TestCheckout_WrongProfileOwner(t *testing.T) {
	clearCart(t)
	addToCart(t, 1, 1)

	req := checkoutRequest{
		DeliveryInfo: validDelivery(customerID + 100),
		OrderSummary: orderSummaryRequest{TotalPrice: "10.00"},
	}

	resp := do(t, http.MethodPost, "/api/checkout", customerToken, req)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.StatusCode)
	}
}

func TestCheckout_IdempotentRetry(t *testing.T) {
	clearCart(t)
	addToCart(t, 3, 1)

	req := checkoutRequest{
		DeliveryInfo: validDelivery(customerID),
		OrderSummary: orderSummaryRequest{TotalPrice: "34.00"},
	}
	key := fmt.Sprintf("it-%d", time.Now().UnixNano())

	first := doWithKey(t, req, key)
	defer first.Body.Close()
	if first.StatusCode != http.StatusCreated {
		t.Fatalf("first attempt: expected 201, got %d", first.StatusCode)
	}
	firstOrder := decodeJSON[orderResponse](t, first)

	second := doWithKey(t, req, key)
	defer second.Body.Close()
	if second.StatusCode != http.StatusCreated {
		t.Fatalf("retry: expected 201, got %d", second.StatusCode)
	}
	secondOrder := decodeJSON[orderResponse](t, second)

	if firstOrder.ID != secondOrder.ID {
		t.Errorf("retry created a second order: %d vs %d", firstOrder.ID, secondOrder.ID)
	}
}

func doWithKey(t *testing.T, req checkoutRequest, key string) *http.Response {
	t.Helper()

	resp := doRaw(t, http.MethodPost, "/api/checkout", customerToken, req, map[string]string{
		"Idempotency-Key": key,
	})
	return resp
}

func TestCheckout_KeyScopedToRequester(t *testing.T) {
	clearCart(t)
	addToCart(t, 1, 1)

	req := checkoutRequest{
		DeliveryInfo: validDelivery(customerID),
		OrderSummary: orderSummaryRequest{TotalPrice: "89.99"},
	}
	key := fmt.Sprintf("scope-%d", time.Now().UnixNano())

	first := doWithKey(t, req, key)
	defer first.Body.Close()
	if first.StatusCode != http.StatusCreated {
		t.Fatalf("first attempt: expected 201, got %d", first.StatusCode)
	}
	customerOrder := decodeJSON[orderResponse](t, first)

	// Another user replaying the customer's key must not receive the
	// customer's order, the attempt is rejected outright.
	staffReq := checkoutRequest{
		DeliveryInfo: validDelivery(staffID),
		OrderSummary: orderSummaryRequest{TotalPrice: "0.00"},
	}
	replay := doRaw(t, http.MethodPost, "/api/checkout", staffToken, staffReq, map[string]string{
		"Idempotency-Key": key,
	})
	defer replay.Body.Close()

	if replay.StatusCode != http.StatusBadRequest {
		t.Fatalf("foreign replay: expected 400, got %d", replay.StatusCode)
	}
	body := decodeJSON[errorResponse](t, replay)
	if _, ok := body.Fields["idempotency_key"]; !ok {
		t.Errorf("expected idempotency_key field error, got %v", body.Fields)
	}

	// The customer's own retry still resolves to their order.
	retry := doWithKey(t, req, key)
	defer retry.Body.Close()
	if retry.StatusCode != http.StatusCreated {
		t.Fatalf("owner retry: expected 201, got %d", retry.StatusCode)
	}
	retryOrder := decodeJSON[orderResponse](t, retry)
	if retryOrder.ID != customerOrder.ID {
		t.Errorf("owner retry: got order %d, want %d", retryOrder.ID, customerOrder.ID)
	}
}

func TestCheckout_ConcurrentAddNotLost(t *testing.T) {
	clearCart(t)
	addToCart(t, 1, 1)

	// Add a product the checkout snapshot does not contain while the
	// checkout runs. Whatever the interleaving, the line must end up in
	// exactly one place: the order (added before the snapshot) or the
	// cart (added after), never nowhere.
	added := make(chan int, 1)
	go func() {
		resp, err := concurrentAdd(2, 1)
		if err != nil {
			added <- 0
			return
		}
		defer resp.Body.Close()
		added <- resp.StatusCode
	}()

	req := checkoutRequest{
		DeliveryInfo: validDelivery(customerID),
		OrderSummary: orderSummaryRequest{TotalPrice: "154.49"},
	}
	resp := do(t, http.MethodPost, "/api/checkout", customerToken, req)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("checkout: expected 201, got %d", resp.StatusCode)
	}
	order := decodeJSON[orderResponse](t, resp)

	if status := <-added; status != http.StatusCreated {
		t.Fatalf("concurrent add: expected 201, got %d", status)
	}

	inOrder := 0
	for _, it := range order.Items {
		if it.Product.ID == 2 {
			inOrder++
		}
	}

	cartResp := do(t, http.MethodGet, "/api/cart", customerToken, nil)
	defer cartResp.Body.Close()
	lines := decodeJSON[[]cartLineResponse](t, cartResp)
	inCart := 0
	for _, l := range lines {
		if l.Product.ID == 2 {
			inCart++
		}
	}

	if inOrder+inCart != 1 {
		t.Fatalf("product 2 found %d times in order and %d in cart; the concurrent add was lost or duplicated",
			inOrder, inCart)
	}
	clearCart(t)
}

// concurrentAdd posts an add-to-cart from a non-test goroutine, where the
// usual helpers must not be used.
func concurrentAdd(productID int64, quantity int) (*http.Response, error) {
	body, err := json.Marshal(map[string]any{
		"user":     customerID,
		"product":  productID,
		"quantity": quantity,
	})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost,
		baseURL+"/api/cart/items", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Token "+customerToken)
	return httpClient.Do(req)
}

func TestCheckoutAnonymous(t *testing.T) {
	info := validDelivery(0)
	info.Email = "guest@example.com"

	req := checkoutRequest{
		DeliveryInfo: info,
		OrderSummary: orderSummaryRequest{TotalPrice: "89.99"},
		Items:        []checkoutItemRequest{{ProductID: 1, Quantity: 1}},
	}

	resp := do(t, http.MethodPost, "/api/checkout/anonymous", "", req)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}

	body := decodeJSON[map[string]string](t, resp)
	if body["message"] != "Order Successful" {
		t.Errorf("message: got %q, want %q", body["message"], "Order Successful")
	}
}

func TestCheckoutAnonymous_UnknownProduct(t *testing.T) {
	info := validDelivery(0)
	info.Email = "guest@example.com"

	req := checkoutRequest{
		DeliveryInfo: info,
		OrderSummary: orderSummaryRequest{TotalPrice: "10.00"},
		Items:        []checkoutItemRequest{{ProductID: 9999, Quantity: 1}},
	}

	resp := do(t, http.MethodPost, "/api/checkout/anonymous", "", req)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestOrders_StatusUpdate(t *testing.T) {
	clearCart(t)
	addToCart(t, 1, 1)

	req := checkoutRequest{
		DeliveryInfo: validDelivery(customerID),
		OrderSummary: orderSummaryRequest{TotalPrice: "89.99"},
	}
	resp := do(t, http.MethodPost, "/api/checkout", customerToken, req)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("checkout: expected 201, got %d", resp.StatusCode)
	}
	order := decodeJSON[orderResponse](t, resp)

	path := fmt.Sprintf("/api/orders/%d/status", order.ID)

	denied := do(t, http.MethodPatch, path, customerToken, map[string]string{"delivery_status": "Shipped"})
	defer denied.Body.Close()
	if denied.StatusCode != http.StatusForbidden {
		t.Fatalf("customer update: expected 403, got %d", denied.StatusCode)
	}

	updated := do(t, http.MethodPatch, path, staffToken, map[string]string{"delivery_status": "Shipped"})
	defer updated.Body.Close()
	if updated.StatusCode != http.StatusOK {
		t.Fatalf("staff update: expected 200, got %d", updated.StatusCode)
	}

	// Staff sees every order; the updated status shows in the listing.
	listResp := do(t, http.MethodGet, "/api/orders", staffToken, nil)
	defer listResp.Body.Close()
	all := decodeJSON[[]orderResponse](t, listResp)
	for _, o := range all {
		if o.ID == order.ID && o.DeliveryStatus != "Shipped" {
			t.Errorf("delivery_status: got %q, want %q", o.DeliveryStatus, "Shipped")
		}
	}
}
