package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/feralbyte/storefront/internal/domain/auth"
)

const getTokenByHashSQL = `SELECT t.id, t.token_hash, u.id, u.email, u.staff
	FROM auth_tokens t
	JOIN users u ON u.id = t.user_id
	WHERE t.token_hash = $1 AND t.active = TRUE`

var _ auth.Repository = (*TokenRepository)(nil)

// TokenRepository provides bearer token lookups backed by PostgreSQL.
type TokenRepository struct {
	pool *pgxpool.Pool
}

// NewTokenRepository returns a TokenRepository that uses the given pool.
func NewTokenRepository(pool *pgxpool.Pool) *TokenRepository {
	return &TokenRepository{pool: pool}
}

// FindByHash looks up an active token by its HMAC-SHA256 hash and resolves
// the identity it belongs to.
func (r *TokenRepository) FindByHash(ctx context.Context, hash string) (*auth.TokenInfo, error) {
	var info auth.TokenInfo
	err := r.pool.QueryRow(ctx, getTokenByHashSQL, hash).Scan(
		&info.ID, &info.TokenHash,
		&info.Identity.UserID, &info.Identity.Email, &info.Identity.Staff,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("token not found: %w", err)
		}
		return nil, fmt.Errorf("finding token by hash: %w", err)
	}
	return &info, nil
}
