// Package idempotency extracts client-supplied idempotency keys from HTTP
// requests. A retried request carrying the same key must observe the
// outcome of the first attempt instead of repeating its effects.
package idempotency

import (
	"net/http"
	"strings"
)

// Header is the canonical idempotency key header name.
const Header = "Idempotency-Key"

// Key returns the trimmed idempotency key of a request, or "" when the
// client did not send one.
func Key(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(Header))
}
