package auth

import "github.com/go-faster/errors"

// Sentinel errors for the ownership guard.
var (
	// ErrUnauthorized means no valid credential accompanied the request.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrForbidden means the credential is valid but does not own the
	// targeted resource.
	ErrForbidden = errors.New("forbidden")
)

// Owns reports whether the requester is the owner identified by ownerID.
func Owns(requester Identity, ownerID int64) bool {
	return requester.UserID == ownerID
}

// Authorize checks that the requester may act on resources owned by the
// claimed user. Ownership is literal: staff get no bypass here, their
// extra visibility applies only to read paths.
func Authorize(requester Identity, ownerID int64) error {
	if !Owns(requester, ownerID) {
		return ErrForbidden
	}
	return nil
}
