package payment

import "errors"

var (
	// ErrPaymentNotFound is returned when no payment matches the lookup.
	ErrPaymentNotFound = errors.New("payment not found")

	// ErrInvalidAmount is returned when a payment amount is zero or negative.
	ErrInvalidAmount = errors.New("amount must be positive")

	// ErrMalformedNotification is returned for webhook payloads that cannot
	// be parsed. The only case where the webhook endpoint returns non-200.
	ErrMalformedNotification = errors.New("malformed webhook notification")

	// ErrMissingCredentials is returned when the gateway access token is not
	// configured and reconciliation is impossible.
	ErrMissingCredentials = errors.New("gateway credentials not configured")

	// ErrReconciliation is returned when the authoritative lookup at the
	// gateway failed; the gateway should retry the notification.
	ErrReconciliation = errors.New("gateway reconciliation failed")
)
