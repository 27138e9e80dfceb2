//go:build integration

package integration

import (
	"net/http"
	"strconv"
	"testing"
)

func TestListProducts(t *testing.T) {
	resp := doGet(t, "/api/products")
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	products := decodeJSON[[]productResponse](t, resp)
	if len(products) != 5 {
		t.Fatalf("expected 5 products, got %d", len(products))
	}
}

func TestListProducts_Fields(t *testing.T) {
	resp := doGet(t, "/api/products")
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	products := decodeJSON[[]productResponse](t, resp)

	var keyboard *productResponse
	for i := range products {
		if products[i].Name == "Mechanical Keyboard K2" {
			keyboard = &products[i]
			break
		}
	}

	if keyboard == nil {
		t.Fatal("seeded keyboard product not found")
	}
	if keyboard.Price != "89.99" {
		t.Errorf("price: got %q, want %q", keyboard.Price, "89.99")
	}
	if keyboard.Category != "electronics" {
		t.Errorf("category: got %q, want %q", keyboard.Category, "electronics")
	}
	if keyboard.ImageURL == "" {
		t.Error("image_url is empty")
	}
	if keyboard.DescriptionShort == "" {
		t.Error("description_short is empty")
	}
}

func TestGetProduct(t *testing.T) {
	resp := doGet(t, "/api/products/1")
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	product := decodeJSON[productResponse](t, resp)
	if product.ID != 1 {
		t.Errorf("id: got %d, want 1", product.ID)
	}
	if product.Name == "" {
		t.Error("name is empty")
	}
}

func TestGetProduct_NotFound(t *testing.T) {
	resp := doGet(t, "/api/products/9999")
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}

	errResp := decodeJSON[errorResponse](t, resp)
	if errResp.Code != 404 {
		t.Errorf("error code: got %d, want 404", errResp.Code)
	}
}

func TestCreateProduct_StaffOnly(t *testing.T) {
	body := map[string]any{
		"name":              "Integration Test Lamp",
		"image_url":         "https://cdn.example.com/products/lamp.jpg",
		"price":             "19.99",
		"category":          "home",
		"description_short": "A lamp.",
		"description_long":  "A lamp created by the integration suite.",
	}

	resp := do(t, http.MethodPost, "/api/products", customerToken, body)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("customer create: expected 403, got %d", resp.StatusCode)
	}

	staffResp := do(t, http.MethodPost, "/api/products", staffToken, body)
	defer staffResp.Body.Close()
	if staffResp.StatusCode != http.StatusCreated {
		t.Fatalf("staff create: expected 201, got %d", staffResp.StatusCode)
	}

	created := decodeJSON[productResponse](t, staffResp)
	if created.ID == 0 {
		t.Error("created product has no id")
	}

	// Cleanup so the catalog count stays stable for other tests.
	delResp := do(t, http.MethodDelete, "/api/products/"+strconv.FormatInt(created.ID, 10), staffToken, nil)
	defer delResp.Body.Close()
	if delResp.StatusCode != http.StatusOK {
		t.Fatalf("staff delete: expected 200, got %d", delResp.StatusCode)
	}
}
