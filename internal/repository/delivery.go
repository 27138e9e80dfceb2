package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/feralbyte/storefront/internal/domain/delivery"
)

const getDeliveryInfoSQL = `SELECT id, COALESCE(user_id, 0), first_name, last_name, email,
		phone_number, address, city, country, post_code, delivery_type
	FROM delivery_info WHERE id = $1`

// ErrDeliveryInfoNotFound is returned when a delivery profile id does not
// resolve.
var ErrDeliveryInfoNotFound = errors.New("delivery info not found")

var _ delivery.Repository = (*DeliveryRepository)(nil)

// DeliveryRepository implements delivery.Repository backed by PostgreSQL.
// Profile creation happens inside the checkout transaction (see
// OrderRepository); this type only serves reads.
type DeliveryRepository struct {
	pool *pgxpool.Pool
}

// NewDeliveryRepository returns a DeliveryRepository that uses the given pool.
func NewDeliveryRepository(pool *pgxpool.Pool) *DeliveryRepository {
	return &DeliveryRepository{pool: pool}
}

// GetByID returns a delivery profile.
func (r *DeliveryRepository) GetByID(ctx context.Context, id int64) (*delivery.Info, error) {
	var info delivery.Info
	err := r.pool.QueryRow(ctx, getDeliveryInfoSQL, id).Scan(
		&info.ID, &info.UserID, &info.FirstName, &info.LastName, &info.Email,
		&info.PhoneNumber, &info.Address, &info.City, &info.Country,
		&info.PostCode, &info.DeliveryType,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDeliveryInfoNotFound
		}
		return nil, fmt.Errorf("getting delivery info %d: %w", id, err)
	}
	return &info, nil
}
