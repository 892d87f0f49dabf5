package services

import "errors"

var (
	// ErrInvalidCredentials is returned at login when the username is
	// unknown or the password does not match the stored verifier. The two
	// cases are deliberately indistinguishable.
	ErrInvalidCredentials = errors.New("incorrect username or password")

	// ErrIncorrectPassword is returned when the confirmation password on a
	// password change or account deletion does not match.
	ErrIncorrectPassword = errors.New("incorrect password")

	// ErrIdentityMismatch is returned when the username or email supplied
	// to confirm account deletion does not match the caller's identity.
	ErrIdentityMismatch = errors.New("username or email does not match")

	// ErrNotAuthorized is the single opaque outcome the authorization gate
	// reports for every resolution failure.
	ErrNotAuthorized = errors.New("not authorized")

	// ErrDatabaseForbidden is returned when a user addresses a delegated
	// database they do not own.
	ErrDatabaseForbidden = errors.New("database does not belong to user")
)
