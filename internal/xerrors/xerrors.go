// Package xerrors holds the sentinel errors for request validation, auth,
// market/order lookup failures, and the persistence backpressure/failure
// modes. Callers use errors.Is against these.
package xerrors

import "errors"

var (
	// ErrValidation covers malformed requests or out-of-range fields.
	ErrValidation = errors.New("validation: malformed request")

	// ErrAuth covers bad credentials or an ownership mismatch on cancel.
	ErrAuth = errors.New("auth: invalid credentials or not owner")

	// ErrUnknownMarket is returned when a symbol is absent from the registry.
	ErrUnknownMarket = errors.New("unknown market")

	// ErrNotPending is returned when a cancel target is not resting (never
	// existed, already COMPLETE, or already CANCELLED).
	ErrNotPending = errors.New("order not pending")

	// ErrNotOwner is returned when a cancel is attempted by a non-owning user.
	ErrNotOwner = errors.New("order not owned by requesting user")

	// ErrUsernameTaken is returned by account creation on a duplicate username.
	ErrUsernameTaken = errors.New("username already registered")

	// ErrServiceUnavailable is surfaced on every request once persistence
	// has hit PERSISTENCE_FATAL and ingestion has halted.
	ErrServiceUnavailable = errors.New("service unavailable: persistence halted")
)
