package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// EntryInput is one posting in a write batch.
type EntryInput struct {
	AccountCode AccountCode
	EntryType   EntryType
	Amount      int64
	Description string
	Metadata    map[string]any
}

// Service implements ledger write and balance operations.
type Service struct {
	db     *gorm.DB
	repo   Repository
	logger *zap.Logger
}

// NewService creates a new ledger service.
func NewService(db *gorm.DB, repo Repository, logger *zap.Logger) *Service {
	return &Service{db: db, repo: repo, logger: logger}
}

// Write posts a balanced batch of entries atomically under one transaction id.
// Re-posting an identical batch for the same transaction id is a no-op;
// posting a different batch under an existing transaction id is rejected.
func (s *Service) Write(ctx context.Context, transactionID string, inputs []EntryInput) error {
	if err := ValidateBatch(inputs); err != nil {
		return err
	}
	if transactionID == "" {
		return fmt.Errorf("transaction id is required")
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.writeInTx(ctx, tx, transactionID, inputs)
	})
}

// WriteInTx posts a batch inside a caller-owned transaction. Used by the
// refund processor so the ledger write commits or rolls back with the rest
// of the refund.
func (s *Service) WriteInTx(ctx context.Context, tx *gorm.DB, transactionID string, inputs []EntryInput) error {
	if err := ValidateBatch(inputs); err != nil {
		return err
	}
	if transactionID == "" {
		return fmt.Errorf("transaction id is required")
	}
	return s.writeInTx(ctx, tx, transactionID, inputs)
}

func (s *Service) writeInTx(ctx context.Context, tx *gorm.DB, transactionID string, inputs []EntryInput) error {
	repo := s.repo.WithTx(tx)

	if err := repo.AcquireTransactionLock(ctx, transactionID); err != nil {
		return err
	}

	existing, err := repo.ListByTransactionID(ctx, transactionID)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		if sameBatch(existing, inputs) {
			s.logger.Debug("ledger transaction already posted, skipping",
				zap.String("transaction_id", transactionID),
			)
			return nil
		}
		return ErrDuplicateTransaction
	}

	entries := make([]*Entry, len(inputs))
	for i, in := range inputs {
		var meta datatypes.JSON
		if in.Metadata != nil {
			raw, err := json.Marshal(in.Metadata)
			if err != nil {
				return fmt.Errorf("marshal entry metadata: %w", err)
			}
			meta = datatypes.JSON(raw)
		}
		entries[i] = &Entry{
			TransactionID: transactionID,
			AccountCode:   in.AccountCode,
			EntryType:     in.EntryType,
			Amount:        in.Amount,
			Description:   in.Description,
			Metadata:      meta,
		}
	}

	if err := repo.CreateEntries(ctx, entries); err != nil {
		return err
	}

	s.logger.Info("ledger transaction posted",
		zap.String("transaction_id", transactionID),
		zap.Int("entries", len(entries)),
	)
	return nil
}

// WriteCorrection posts an operator-initiated correction batch. Entries are
// tagged so they can be distinguished from automated postings. The balance
// invariant still applies.
func (s *Service) WriteCorrection(ctx context.Context, transactionID string, inputs []EntryInput) error {
	tagged := make([]EntryInput, len(inputs))
	for i, in := range inputs {
		if !strings.HasSuffix(in.Description, ManualCorrectionSuffix) {
			in.Description += ManualCorrectionSuffix
		}
		tagged[i] = in
	}
	return s.Write(ctx, transactionID, tagged)
}

// GetTransaction returns the entries posted under a transaction id.
func (s *Service) GetTransaction(ctx context.Context, transactionID string) ([]*Entry, error) {
	return s.repo.ListByTransactionID(ctx, transactionID)
}

// Balances returns per-account balances using each account's sign convention.
func (s *Service) Balances(ctx context.Context) ([]*Balance, error) {
	return s.repo.AggregateBalances(ctx)
}

// ValidateBatch checks a batch against the double-entry rules: non-empty,
// known accounts, positive amounts, and matching debit/credit totals.
func ValidateBatch(inputs []EntryInput) error {
	if len(inputs) == 0 {
		return ErrEmptyBatch
	}

	var debits, credits int64
	for _, in := range inputs {
		if !in.AccountCode.Valid() {
			return fmt.Errorf("%w: %s", ErrInvalidAccount, in.AccountCode)
		}
		if !in.EntryType.Valid() {
			return fmt.Errorf("%w: %s", ErrInvalidEntryType, in.EntryType)
		}
		if in.Amount <= 0 {
			return fmt.Errorf("%w: %s %d", ErrNonPositiveAmount, in.AccountCode, in.Amount)
		}
		switch in.EntryType {
		case EntryTypeDebit:
			debits += in.Amount
		case EntryTypeCredit:
			credits += in.Amount
		}
	}

	if debits != credits {
		return fmt.Errorf("%w: debits=%d credits=%d", ErrUnbalanced, debits, credits)
	}
	return nil
}

// sameBatch reports whether existing entries match the incoming batch on
// account, type and amount, ignoring order.
func sameBatch(existing []*Entry, inputs []EntryInput) bool {
	if len(existing) != len(inputs) {
		return false
	}

	key := func(account AccountCode, typ EntryType, amount int64) string {
		return fmt.Sprintf("%s|%s|%d", account, typ, amount)
	}

	a := make([]string, len(existing))
	for i, e := range existing {
		a[i] = key(e.AccountCode, e.EntryType, e.Amount)
	}
	b := make([]string, len(inputs))
	for i, in := range inputs {
		b[i] = key(in.AccountCode, in.EntryType, in.Amount)
	}
	sort.Strings(a)
	sort.Strings(b)

	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
