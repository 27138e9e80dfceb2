package auth

import "context"

// Identity is an authenticated principal resolved from a bearer token.
type Identity struct {
	UserID int64
	Email  string
	Staff  bool
}

// TokenInfo holds the stored data for a validated bearer token.
type TokenInfo struct {
	ID        int64
	TokenHash string
	Identity  Identity
}

// Repository provides lookup of active tokens by their HMAC hash.
type Repository interface {
	FindByHash(ctx context.Context, hash string) (*TokenInfo, error)
}
