package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/feralbyte/storefront/internal/domain/delivery"
	"github.com/feralbyte/storefront/internal/domain/order"
	"github.com/feralbyte/storefront/internal/domain/product"
)

const (
	insertDeliveryInfoSQL = `INSERT INTO delivery_info
			(user_id, first_name, last_name, email, phone_number, address, city, country, post_code, delivery_type)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id`

	insertOrderSQL = `INSERT INTO orders
			(user_id, email, delivery_info_id, delivery_instructions, total_price)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, delivery_status, date_ordered`

	insertOrderItemSQL = `INSERT INTO order_items (order_id, user_id, email, product_id, quantity)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`

	insertHistorySQL = `INSERT INTO order_history (user_id, order_id) VALUES ($1, $2)`

	insertIdempotencySQL = `INSERT INTO checkout_idempotency (idempotency_key, order_id, user_id, email)
		VALUES ($1, $2, $3, $4)`

	// The cart snapshot is taken FOR UPDATE so a concurrent merge into an
	// existing line blocks until the checkout commits or rolls back.
	lockCartItemsSQL = `SELECT id, product_id, quantity FROM cart_items
		WHERE user_id = $1 ORDER BY id FOR UPDATE`

	// The clear targets the locked snapshot rows by id, never the whole
	// cart: a line inserted concurrently for a product the snapshot did
	// not contain survives the checkout instead of vanishing unordered.
	clearCartSQL = `DELETE FROM cart_items WHERE id = ANY($1)`

	getOrderByIdempotencySQL = `SELECT o.id, COALESCE(o.user_id, 0), o.email, COALESCE(o.delivery_info_id, 0),
			o.delivery_instructions, o.delivery_status, o.total_price, o.date_ordered
		FROM checkout_idempotency ci
		JOIN orders o ON o.id = ci.order_id
		WHERE ci.idempotency_key = $1 AND ci.user_id = $2 AND ci.email = $3`

	listOrderItemsSQL = `SELECT id, order_id, product_id, quantity
		FROM order_items WHERE order_id = ANY($1) ORDER BY id`

	listAllOrdersSQL = `SELECT o.id, COALESCE(o.user_id, 0), o.email, COALESCE(o.delivery_info_id, 0),
			o.delivery_instructions, o.delivery_status, o.total_price, o.date_ordered
		FROM orders o ORDER BY o.id`

	listUserOrdersSQL = `SELECT o.id, COALESCE(o.user_id, 0), o.email, COALESCE(o.delivery_info_id, 0),
			o.delivery_instructions, o.delivery_status, o.total_price, o.date_ordered
		FROM order_history h
		JOIN orders o ON o.id = h.order_id
		WHERE h.user_id = $1 ORDER BY o.id`

	itemProjectionsSQL = `SELECT oi.id, oi.order_id, oi.quantity,
			p.id, p.name, p.image_url, p.price, p.category, p.description_short, p.description_long
		FROM order_items oi
		JOIN products p ON p.id = oi.product_id
		WHERE oi.order_id = ANY($1) ORDER BY oi.id`

	deliveryInfosByIDsSQL = `SELECT id, COALESCE(user_id, 0), first_name, last_name, email,
			phone_number, address, city, country, post_code, delivery_type
		FROM delivery_info WHERE id = ANY($1)`

	updateOrderStatusSQL = `UPDATE orders SET delivery_status = $2 WHERE id = $1`
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL. The
// checkout methods run the whole multi-entity write sequence in a single
// transaction: nothing is observable unless everything committed.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// CreateFromCart runs the authenticated checkout: persist the delivery
// profile, snapshot the user's cart under lock, materialize order items,
// create the order, append it to the user's history, and clear the cart.
// Any failure rolls the whole sequence back.
func (r *OrderRepository) CreateFromCart(ctx context.Context, co *order.CartCheckout) (*order.Order, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin checkout tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	infoID, err := insertDeliveryInfo(ctx, tx, co.Info, co.UserID)
	if err != nil {
		return nil, err
	}

	rows, err := tx.Query(ctx, lockCartItemsSQL, co.UserID)
	if err != nil {
		return nil, fmt.Errorf("locking cart items: %w", err)
	}
	type cartLine struct {
		id        int64
		productID int64
		quantity  int
	}
	cartLines, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (cartLine, error) {
		var l cartLine
		err := row.Scan(&l.id, &l.productID, &l.quantity)
		return l, err
	})
	if err != nil {
		return nil, fmt.Errorf("reading cart items: %w", err)
	}

	o := &order.Order{
		UserID:               co.UserID,
		Email:                co.Email,
		DeliveryInfoID:       infoID,
		DeliveryInstructions: co.Instructions,
		TotalPrice:           co.TotalPrice,
	}
	err = tx.QueryRow(ctx, insertOrderSQL,
		co.UserID, co.Email, infoID, co.Instructions, co.TotalPrice,
	).Scan(&o.ID, &o.DeliveryStatus, &o.DateOrdered)
	if err != nil {
		return nil, fmt.Errorf("creating order: %w", err)
	}

	o.Items = make([]order.Item, len(cartLines))
	lineIDs := make([]int64, len(cartLines))
	for i, line := range cartLines {
		item := order.Item{ProductID: line.productID, Quantity: line.quantity}
		err := tx.QueryRow(ctx, insertOrderItemSQL,
			o.ID, co.UserID, co.Email, item.ProductID, item.Quantity,
		).Scan(&item.ID)
		if err != nil {
			return nil, fmt.Errorf("creating order item (product %d): %w", item.ProductID, err)
		}
		o.Items[i] = item
		lineIDs[i] = line.id
	}

	if _, err := tx.Exec(ctx, insertHistorySQL, co.UserID, o.ID); err != nil {
		return nil, fmt.Errorf("appending order history: %w", err)
	}

	if len(lineIDs) > 0 {
		if _, err := tx.Exec(ctx, clearCartSQL, lineIDs); err != nil {
			return nil, fmt.Errorf("clearing cart: %w", err)
		}
	}

	if co.IdempotencyKey != "" {
		if _, err := tx.Exec(ctx, insertIdempotencySQL, co.IdempotencyKey, o.ID, co.UserID, ""); err != nil {
			if isUniqueViolation(err) {
				// Lost the race on the key: drop this attempt and return
				// what the key's owner created. A key held by a different
				// requester resolves to nothing and is rejected.
				_ = tx.Rollback(ctx)
				return r.replayIdempotentOrder(ctx, co.IdempotencyKey, co.UserID, "")
			}
			return nil, fmt.Errorf("recording idempotency key: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit checkout tx: %w", err)
	}
	return o, nil
}

// CreateAnonymous runs the anonymous checkout: delivery profile, order, and
// the explicit item list, all carrying the visitor's email. No history
// append and no cart to clear.
func (r *OrderRepository) CreateAnonymous(ctx context.Context, co *order.AnonymousCheckout) (*order.Order, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin checkout tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	infoID, err := insertDeliveryInfo(ctx, tx, co.Info, 0)
	if err != nil {
		return nil, err
	}

	o := &order.Order{
		Email:                co.Email,
		DeliveryInfoID:       infoID,
		DeliveryInstructions: co.Instructions,
		TotalPrice:           co.TotalPrice,
	}
	err = tx.QueryRow(ctx, insertOrderSQL,
		nil, co.Email, infoID, co.Instructions, co.TotalPrice,
	).Scan(&o.ID, &o.DeliveryStatus, &o.DateOrdered)
	if err != nil {
		return nil, fmt.Errorf("creating order: %w", err)
	}

	o.Items = make([]order.Item, len(co.Items))
	for i, in := range co.Items {
		item := order.Item{ProductID: in.ProductID, Quantity: in.Quantity}
		err := tx.QueryRow(ctx, insertOrderItemSQL,
			o.ID, nil, co.Email, item.ProductID, item.Quantity,
		).Scan(&item.ID)
		if err != nil {
			return nil, anonymousItemError(err, i, item.ProductID)
		}
		o.Items[i] = item
	}

	if co.IdempotencyKey != "" {
		if _, err := tx.Exec(ctx, insertIdempotencySQL, co.IdempotencyKey, o.ID, 0, co.Email); err != nil {
			if isUniqueViolation(err) {
				_ = tx.Rollback(ctx)
				return r.replayIdempotentOrder(ctx, co.IdempotencyKey, 0, co.Email)
			}
			return nil, fmt.Errorf("recording idempotency key: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit checkout tx: %w", err)
	}
	return o, nil
}

// FindByIdempotencyKey returns the order created by a previous checkout
// that carried the same key under the same requester scope, or
// order.ErrNotFound. A key recorded for another user or email never
// resolves.
func (r *OrderRepository) FindByIdempotencyKey(ctx context.Context, key string, userID int64, email string) (*order.Order, error) {
	rows, err := r.pool.Query(ctx, getOrderByIdempotencySQL, key, userID, email)
	if err != nil {
		return nil, fmt.Errorf("finding order by idempotency key: %w", err)
	}
	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("finding order by idempotency key: %w", err)
	}

	itemRows, err := r.pool.Query(ctx, listOrderItemsSQL, []int64{o.ID})
	if err != nil {
		return nil, fmt.Errorf("loading order items: %w", err)
	}
	o.Items, err = pgx.CollectRows(itemRows, func(row pgx.CollectableRow) (order.Item, error) {
		var (
			it      order.Item
			orderID int64
		)
		err := row.Scan(&it.ID, &orderID, &it.ProductID, &it.Quantity)
		return it, err
	})
	if err != nil {
		return nil, fmt.Errorf("loading order items: %w", err)
	}
	return &o, nil
}

// ListAll returns resolved projections for every order, ordered by id.
func (r *OrderRepository) ListAll(ctx context.Context) ([]order.Projection, error) {
	rows, err := r.pool.Query(ctx, listAllOrdersSQL)
	if err != nil {
		return nil, fmt.Errorf("listing orders: %w", err)
	}
	orders, err := pgx.CollectRows(rows, scanOrder)
	if err != nil {
		return nil, fmt.Errorf("listing orders: %w", err)
	}
	return r.buildProjections(ctx, orders)
}

// ListByUser returns resolved projections for the orders in a user's
// history, ordered by id.
func (r *OrderRepository) ListByUser(ctx context.Context, userID int64) ([]order.Projection, error) {
	rows, err := r.pool.Query(ctx, listUserOrdersSQL, userID)
	if err != nil {
		return nil, fmt.Errorf("listing orders for user %d: %w", userID, err)
	}
	orders, err := pgx.CollectRows(rows, scanOrder)
	if err != nil {
		return nil, fmt.Errorf("listing orders for user %d: %w", userID, err)
	}
	return r.buildProjections(ctx, orders)
}

// UpdateStatus sets an order's delivery status.
func (r *OrderRepository) UpdateStatus(ctx context.Context, id int64, status string) error {
	tag, err := r.pool.Exec(ctx, updateOrderStatusSQL, id, status)
	if err != nil {
		return fmt.Errorf("updating order %d status: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return order.ErrNotFound
	}
	return nil
}

// buildProjections resolves item and delivery info references for a page
// of orders with two batch queries.
func (r *OrderRepository) buildProjections(ctx context.Context, orders []order.Order) ([]order.Projection, error) {
	if len(orders) == 0 {
		return nil, nil
	}

	orderIDs := make([]int64, len(orders))
	infoIDs := make([]int64, 0, len(orders))
	for i, o := range orders {
		orderIDs[i] = o.ID
		if o.DeliveryInfoID != 0 {
			infoIDs = append(infoIDs, o.DeliveryInfoID)
		}
	}

	itemsByOrder, err := r.itemProjections(ctx, orderIDs)
	if err != nil {
		return nil, err
	}

	infosByID := make(map[int64]*delivery.Info)
	if len(infoIDs) > 0 {
		rows, err := r.pool.Query(ctx, deliveryInfosByIDsSQL, infoIDs)
		if err != nil {
			return nil, fmt.Errorf("loading delivery infos: %w", err)
		}
		infos, err := pgx.CollectRows(rows, scanDeliveryInfo)
		if err != nil {
			return nil, fmt.Errorf("loading delivery infos: %w", err)
		}
		for i := range infos {
			infosByID[infos[i].ID] = &infos[i]
		}
	}

	projections := make([]order.Projection, len(orders))
	for i, o := range orders {
		projections[i] = order.Projection{
			Order:        o,
			Items:        itemsByOrder[o.ID],
			DeliveryInfo: infosByID[o.DeliveryInfoID],
		}
	}
	return projections, nil
}

// itemProjections loads order items joined with their current product rows.
func (r *OrderRepository) itemProjections(ctx context.Context, orderIDs []int64) (map[int64][]order.ItemProjection, error) {
	rows, err := r.pool.Query(ctx, itemProjectionsSQL, orderIDs)
	if err != nil {
		return nil, fmt.Errorf("loading order item projections: %w", err)
	}
	defer rows.Close()

	byOrder := make(map[int64][]order.ItemProjection)
	for rows.Next() {
		var (
			ip      order.ItemProjection
			orderID int64
			p       product.Product
		)
		err := rows.Scan(
			&ip.OrderItemID, &orderID, &ip.Quantity,
			&p.ID, &p.Name, &p.ImageURL, &p.Price, &p.Category,
			&p.DescriptionShort, &p.DescriptionLong,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning order item projection: %w", err)
		}
		ip.Product = p
		byOrder[orderID] = append(byOrder[orderID], ip)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("loading order item projections: %w", err)
	}
	return byOrder, nil
}

// insertDeliveryInfo persists a delivery profile inside the checkout
// transaction. A zero userID stores NULL (anonymous checkout).
func insertDeliveryInfo(ctx context.Context, tx pgx.Tx, info *delivery.Info, userID int64) (int64, error) {
	var owner any
	if userID != 0 {
		owner = userID
	}
	var id int64
	err := tx.QueryRow(ctx, insertDeliveryInfoSQL,
		owner, info.FirstName, info.LastName, info.Email, info.PhoneNumber,
		info.Address, info.City, info.Country, info.PostCode, info.DeliveryType,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("creating delivery info: %w", err)
	}
	info.ID = id
	return id, nil
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var o order.Order
	err := row.Scan(
		&o.ID, &o.UserID, &o.Email, &o.DeliveryInfoID,
		&o.DeliveryInstructions, &o.DeliveryStatus, &o.TotalPrice, &o.DateOrdered,
	)
	return o, err
}

func scanDeliveryInfo(row pgx.CollectableRow) (delivery.Info, error) {
	var info delivery.Info
	err := row.Scan(
		&info.ID, &info.UserID, &info.FirstName, &info.LastName, &info.Email,
		&info.PhoneNumber, &info.Address, &info.City, &info.Country,
		&info.PostCode, &info.DeliveryType,
	)
	return info, err
}

// replayIdempotentOrder resolves the order behind a key that lost the
// insert race. When the key belongs to a different requester the stored
// order must not leak; the attempt fails as a validation error instead.
func (r *OrderRepository) replayIdempotentOrder(ctx context.Context, key string, userID int64, email string) (*order.Order, error) {
	o, err := r.FindByIdempotencyKey(ctx, key, userID, email)
	if errors.Is(err, order.ErrNotFound) {
		return nil, &order.ValidationError{Fields: map[string]string{
			"idempotency_key": "key already used",
		}}
	}
	return o, err
}

// anonymousItemError maps a failed order item insert. The product ids of
// an anonymous checkout come straight from the client, so a foreign key
// miss is their validation problem, not an internal fault.
func anonymousItemError(err error, idx int, productID int64) error {
	if isForeignKeyViolation(err) {
		return &order.ValidationError{Fields: map[string]string{
			fmt.Sprintf("items[%d].product_id", idx): fmt.Sprintf("product %d not found", productID),
		}}
	}
	return fmt.Errorf("creating order item (product %d): %w", productID, err)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23503"
}
