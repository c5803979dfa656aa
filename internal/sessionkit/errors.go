package sessionkit

import "errors"

// Rejection taxonomy returned by Manager operations. Callers branch with
// errors.Is; anything outside this set is an infrastructure failure and must
// surface as such, never as an authentication outcome.
var (
	// ErrAccessTokenInvalid indicates a malformed token, a bad signature, or a missing token.
	ErrAccessTokenInvalid = errors.New("session.access.invalid")
	// ErrAccessTokenExpired indicates a well-formed access token past its expiry.
	ErrAccessTokenExpired = errors.New("session.access.expired")
	// ErrAccessTokenRevoked indicates the access token is present on the denylist.
	ErrAccessTokenRevoked = errors.New("session.access.revoked")
	// ErrRefreshTokenInvalidOrExpired conflates not-found, revoked, and expired
	// refresh tokens so external callers cannot tell which case applied.
	ErrRefreshTokenInvalidOrExpired = errors.New("session.refresh.invalid_or_expired")
	// ErrPrincipalInactive indicates the owning principal is deactivated or gone.
	ErrPrincipalInactive = errors.New("session.principal.inactive")
)

// Store-level sentinels wrapped by store implementations.
var (
	// ErrRefreshRecordNotFound indicates no live refresh record matched; a
	// revoked or expired record reports the same sentinel.
	ErrRefreshRecordNotFound = errors.New("refresh_store.not_found")
	// ErrRefreshRecordEmptyHash indicates an empty token hash was supplied.
	ErrRefreshRecordEmptyHash = errors.New("refresh_store.empty_hash")
	// ErrPrincipalNotFound indicates the identity store has no such principal.
	ErrPrincipalNotFound = errors.New("principal_store.not_found")
)

// IsRejection reports whether the error belongs to the rejection taxonomy, as
// opposed to an infrastructure failure.
func IsRejection(err error) bool {
	return errors.Is(err, ErrAccessTokenInvalid) ||
		errors.Is(err, ErrAccessTokenExpired) ||
		errors.Is(err, ErrAccessTokenRevoked) ||
		errors.Is(err, ErrRefreshTokenInvalidOrExpired) ||
		errors.Is(err, ErrPrincipalInactive)
}
