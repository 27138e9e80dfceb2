package cart

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feralbyte/storefront/internal/domain/auth"
	"github.com/feralbyte/storefront/internal/domain/product"
)

// --- Mock implementations ---

type mockItemRepo struct {
	items      map[int64]*Item // keyed by product id, single test user
	nextID     int64
	deletedIDs []int64
	deleteN    int64
}

func newItemRepo() *mockItemRepo {
	return &mockItemRepo{items: make(map[int64]*Item), nextID: 1}
}

func (m *mockItemRepo) Upsert(_ context.Context, userID, productID int64, quantity int) (*Item, AddStatus, error) {
	if existing, ok := m.items[productID]; ok {
		existing.Quantity += quantity
		cp := *existing
		return &cp, StatusMerged, nil
	}
	item := &Item{ID: m.nextID, UserID: userID, ProductID: productID, Quantity: quantity}
	m.nextID++
	m.items[productID] = item
	cp := *item
	return &cp, StatusCreated, nil
}

func (m *mockItemRepo) ListByUser(_ context.Context, userID int64) ([]Item, error) {
	var out []Item
	for _, it := range m.items {
		if it.UserID == userID {
			out = append(out, *it)
		}
	}
	return out, nil
}

func (m *mockItemRepo) DeleteByIDs(_ context.Context, userID int64, ids []int64) (int64, error) {
	m.deletedIDs = ids
	return m.deleteN, nil
}

type mockProductRepo struct {
	byID map[int64]*product.Product
}

func (m *mockProductRepo) List(_ context.Context) ([]product.Product, error) { return nil, nil }

func (m *mockProductRepo) GetByID(_ context.Context, id int64) (*product.Product, error) {
	p, ok := m.byID[id]
	if !ok {
		return nil, product.ErrNotFound
	}
	return p, nil
}

func (m *mockProductRepo) GetByIDs(_ context.Context, ids []int64) ([]product.Product, error) {
	var found []product.Product
	for _, id := range ids {
		if p, ok := m.byID[id]; ok {
			found = append(found, *p)
		}
	}
	return found, nil
}

func (m *mockProductRepo) Create(_ context.Context, _ *product.Product) error { return nil }
func (m *mockProductRepo) Delete(_ context.Context, _ int64) error            { return nil }

func newProductRepo(products ...product.Product) *mockProductRepo {
	byID := make(map[int64]*product.Product, len(products))
	for i := range products {
		byID[products[i].ID] = &products[i]
	}
	return &mockProductRepo{byID: byID}
}

func testProduct(id int64, name string) product.Product {
	return product.Product{ID: id, Name: name, Price: decimal.NewFromInt(10), Category: "test"}
}

var owner = auth.Identity{UserID: 7, Email: "ada@example.com"}

// --- Tests ---

func TestAdd_CreatesNewLine(t *testing.T) {
	svc := NewService(newItemRepo(), newProductRepo(testProduct(1, "Widget")))

	res, err := svc.Add(context.Background(), owner, AddRequest{UserID: 7, ProductID: 1, Quantity: 2})

	require.NoError(t, err)
	assert.Equal(t, StatusCreated, res.Status)
	assert.Equal(t, 2, res.Item.Quantity)
	assert.Equal(t, "Widget", res.Product.Name)
}

func TestAdd_MergesExistingLine(t *testing.T) {
	svc := NewService(newItemRepo(), newProductRepo(testProduct(1, "Widget")))

	_, err := svc.Add(context.Background(), owner, AddRequest{UserID: 7, ProductID: 1, Quantity: 2})
	require.NoError(t, err)

	res, err := svc.Add(context.Background(), owner, AddRequest{UserID: 7, ProductID: 1, Quantity: 3})
	require.NoError(t, err)
	assert.Equal(t, StatusMerged, res.Status)
	assert.Equal(t, 5, res.Item.Quantity, "quantities merge instead of creating a second line")
}

func TestAdd_OwnershipMismatch(t *testing.T) {
	svc := NewService(newItemRepo(), newProductRepo(testProduct(1, "Widget")))

	_, err := svc.Add(context.Background(), owner, AddRequest{UserID: 99, ProductID: 1, Quantity: 1})
	require.ErrorIs(t, err, auth.ErrUnauthorized)
}

func TestAdd_InvalidQuantity(t *testing.T) {
	svc := NewService(newItemRepo(), newProductRepo(testProduct(1, "Widget")))

	_, err := svc.Add(context.Background(), owner, AddRequest{UserID: 7, ProductID: 1, Quantity: 0})
	require.ErrorIs(t, err, ErrInvalidQuantity)

	_, err = svc.Add(context.Background(), owner, AddRequest{UserID: 7, ProductID: 1, Quantity: -3})
	require.ErrorIs(t, err, ErrInvalidQuantity)
}

func TestAdd_UnknownProduct(t *testing.T) {
	repo := newItemRepo()
	svc := NewService(repo, newProductRepo())

	_, err := svc.Add(context.Background(), owner, AddRequest{UserID: 7, ProductID: 404, Quantity: 1})
	require.ErrorIs(t, err, product.ErrNotFound)
	assert.Empty(t, repo.items, "nothing should be written")
}

func TestList_ResolvesProducts(t *testing.T) {
	repo := newItemRepo()
	svc := NewService(repo, newProductRepo(testProduct(1, "Widget"), testProduct(2, "Gadget")))

	_, err := svc.Add(context.Background(), owner, AddRequest{UserID: 7, ProductID: 1, Quantity: 2})
	require.NoError(t, err)
	_, err = svc.Add(context.Background(), owner, AddRequest{UserID: 7, ProductID: 2, Quantity: 1})
	require.NoError(t, err)

	lines, err := svc.List(context.Background(), owner)
	require.NoError(t, err)
	require.Len(t, lines, 2)
}

func TestList_SkipsDeletedProducts(t *testing.T) {
	repo := newItemRepo()
	products := newProductRepo(testProduct(1, "Widget"), testProduct(2, "Gadget"))
	svc := NewService(repo, products)

	_, err := svc.Add(context.Background(), owner, AddRequest{UserID: 7, ProductID: 1, Quantity: 1})
	require.NoError(t, err)
	_, err = svc.Add(context.Background(), owner, AddRequest{UserID: 7, ProductID: 2, Quantity: 1})
	require.NoError(t, err)

	// Simulate a product deleted after it entered the cart.
	delete(products.byID, 2)

	lines, err := svc.List(context.Background(), owner)
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Equal(t, "Widget", lines[0].Product.Name)
}

func TestList_EmptyCart(t *testing.T) {
	svc := NewService(newItemRepo(), newProductRepo())

	lines, err := svc.List(context.Background(), owner)
	require.NoError(t, err)
	assert.Empty(t, lines)
}

func TestMassDelete_PassesOwnerAndIDs(t *testing.T) {
	repo := newItemRepo()
	repo.deleteN = 2
	svc := NewService(repo, newProductRepo())

	n, err := svc.MassDelete(context.Background(), owner, []int64{3, 4})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.Equal(t, []int64{3, 4}, repo.deletedIDs)
}

func TestMassDelete_EmptyIDs(t *testing.T) {
	repo := newItemRepo()
	svc := NewService(repo, newProductRepo())

	n, err := svc.MassDelete(context.Background(), owner, nil)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Nil(t, repo.deletedIDs, "no repository call for an empty set")
}
