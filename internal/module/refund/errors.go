package refund

import "errors"

var (
	// ErrRefundNotFound is returned when no refund matches the lookup.
	ErrRefundNotFound = errors.New("refund not found")

	// ErrNotificationNotFound is returned when no notification matches.
	ErrNotificationNotFound = errors.New("refund notification not found")

	// ErrChecksumMismatch is returned when the declared checksum does not
	// match the uploaded proof bytes.
	ErrChecksumMismatch = errors.New("proof checksum mismatch")

	// ErrEmptyProof is returned when the proof payload decodes to nothing.
	ErrEmptyProof = errors.New("proof evidence is empty")

	// ErrInvalidAmount is returned when the refund amount is not positive.
	ErrInvalidAmount = errors.New("refund amount must be positive")

	// ErrAmountExceedsRemaining is returned when the refund would exceed the
	// payment's remaining refundable amount.
	ErrAmountExceedsRemaining = errors.New("refund amount exceeds remaining payment amount")

	// ErrPaymentNotSettled is returned when refunding a payment that never
	// settled.
	ErrPaymentNotSettled = errors.New("payment has no settled funds to refund")

	// ErrCurrencyMismatch is returned when the requested currency differs
	// from the payment's currency.
	ErrCurrencyMismatch = errors.New("refund currency does not match payment currency")
)
