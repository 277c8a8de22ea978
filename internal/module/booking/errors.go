package booking

import "errors"

var (
	// ErrNotFound is returned when the booking does not exist.
	ErrNotFound = errors.New("booking not found")

	// ErrRegistrationNotFound is returned when the event registration does not exist.
	ErrRegistrationNotFound = errors.New("event registration not found")

	// ErrAlreadyCancelled is returned for any transition attempt out of a
	// cancelled state.
	ErrAlreadyCancelled = errors.New("booking is already cancelled")
)
