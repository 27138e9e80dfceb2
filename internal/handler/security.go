package handler

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"strings"

	"github.com/feralbyte/storefront/internal/domain/auth"
)

// identityKey is the context key for the authenticated identity.
type identityKey struct{}

// IdentityFrom extracts the authenticated identity from the context.
func IdentityFrom(ctx context.Context) (auth.Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(auth.Identity)
	return id, ok
}

// SecurityHandler authenticates requests via HMAC-SHA256 hashed bearer
// tokens. Token issuance is out of scope; this is the consumer side of the
// ownership guard.
type SecurityHandler struct {
	tokens auth.Repository
	pepper []byte
}

// NewSecurityHandler creates a SecurityHandler with the given token
// repository and HMAC pepper.
func NewSecurityHandler(tokens auth.Repository, pepper []byte) *SecurityHandler {
	return &SecurityHandler{
		tokens: tokens,
		pepper: pepper,
	}
}

// Authenticate resolves the Authorization header to an identity. It
// accepts "Token <value>" and "Bearer <value>" schemes.
func (s *SecurityHandler) Authenticate(r *http.Request) (auth.Identity, error) {
	raw := bearerToken(r)
	if raw == "" {
		return auth.Identity{}, auth.ErrUnauthorized
	}

	mac := hmac.New(sha256.New, s.pepper)
	mac.Write([]byte(raw))
	hash := mac.Sum(nil)

	info, err := s.tokens.FindByHash(r.Context(), hex.EncodeToString(hash))
	if err != nil {
		return auth.Identity{}, auth.ErrUnauthorized
	}

	// Constant-time comparison guards against timing side-channels even
	// though the lookup already succeeded.
	storedBytes, err := hex.DecodeString(info.TokenHash)
	if err != nil {
		return auth.Identity{}, auth.ErrUnauthorized
	}
	if subtle.ConstantTimeCompare(hash, storedBytes) != 1 {
		return auth.Identity{}, auth.ErrUnauthorized
	}

	return info.Identity, nil
}

// withAuth wraps an endpoint so it only runs with an authenticated
// identity in the request context.
func (h *Handler) withAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity, err := h.security.Authenticate(r)
		if err != nil {
			respondError(w, r, err)
			return
		}
		ctx := context.WithValue(r.Context(), identityKey{}, identity)
		next(w, r.WithContext(ctx))
	}
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	for _, scheme := range []string{"Token ", "Bearer "} {
		if len(header) > len(scheme) && strings.EqualFold(header[:len(scheme)], scheme) {
			return strings.TrimSpace(header[len(scheme):])
		}
	}
	return ""
}
