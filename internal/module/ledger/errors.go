package ledger

import "errors"

var (
	// ErrEmptyBatch is returned when a write contains no entries.
	ErrEmptyBatch = errors.New("ledger batch is empty")

	// ErrUnbalanced is returned when debit and credit totals differ.
	ErrUnbalanced = errors.New("ledger batch does not balance")

	// ErrInvalidAccount is returned for account codes outside the fixed set.
	ErrInvalidAccount = errors.New("unknown account code")

	// ErrInvalidEntryType is returned for entry types other than DEBIT/CREDIT.
	ErrInvalidEntryType = errors.New("invalid entry type")

	// ErrNonPositiveAmount is returned when an entry amount is zero or negative.
	ErrNonPositiveAmount = errors.New("entry amount must be positive")

	// ErrDuplicateTransaction is returned when a transaction id was already
	// posted with different entries.
	ErrDuplicateTransaction = errors.New("transaction id already posted with different entries")
)
