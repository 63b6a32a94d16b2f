// Package auth defines the error taxonomy shared by the auth service and the
// transport layer. The HTTP layer maps these to status codes; invalid
// credentials and invalid tokens are indistinguishable to callers so valid
// accounts cannot be enumerated.
package auth

import "errors"

var (
	// ErrInvalidCredentials covers unknown user, wrong password, and disabled accounts.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrEmailAlreadyRegistered is returned by Register for a duplicate email.
	ErrEmailAlreadyRegistered = errors.New("email already registered")
	// ErrEmailNotVerified is returned by Login when the account email is unverified.
	ErrEmailNotVerified = errors.New("email not verified")
	// ErrInvalidToken covers bad signature, malformed, revoked, and replayed credentials.
	ErrInvalidToken = errors.New("invalid or expired token")
	// ErrTokenExpired is the distinct expiry signal for single-use tokens.
	ErrTokenExpired = errors.New("token expired")
	// ErrSessionNotFound is returned when a credential references a session that no longer exists.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionExpired is returned when the session is past expiry or idle beyond the inactivity timeout.
	ErrSessionExpired = errors.New("session expired")
	// ErrTokenGenerationFailed signals a codec/signing failure; infrastructural, never a caller mistake.
	ErrTokenGenerationFailed = errors.New("token generation failed")
	// ErrValidation wraps input-shape failures (email format, password strength).
	ErrValidation = errors.New("validation error")
)
