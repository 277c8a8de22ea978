package ledger

import (
	"context"
	"fmt"

	"gorm.io/gorm"
)

// Repository defines the interface for ledger data access.
type Repository interface {
	CreateEntries(ctx context.Context, entries []*Entry) error
	ListByTransactionID(ctx context.Context, transactionID string) ([]*Entry, error)
	AggregateBalances(ctx context.Context) ([]*Balance, error)

	// AcquireTransactionLock serializes writers of one transaction id for
	// the rest of the surrounding database transaction. Without it two
	// concurrent writers can both see zero existing entries and double-post.
	AcquireTransactionLock(ctx context.Context, transactionID string) error

	// WithTx returns a repository bound to the given transaction so ledger
	// writes can join a caller-owned database transaction.
	WithTx(tx *gorm.DB) Repository
}

type repository struct {
	db *gorm.DB
}

// NewRepository creates a new ledger repository.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	return &repository{db: tx}
}

func (r *repository) AcquireTransactionLock(ctx context.Context, transactionID string) error {
	err := r.db.WithContext(ctx).
		Exec("SELECT pg_advisory_xact_lock(hashtext(?))", transactionID).Error
	if err != nil {
		return fmt.Errorf("lock ledger transaction %s: %w", transactionID, err)
	}
	return nil
}

func (r *repository) CreateEntries(ctx context.Context, entries []*Entry) error {
	if err := r.db.WithContext(ctx).Create(entries).Error; err != nil {
		return fmt.Errorf("create ledger entries: %w", err)
	}
	return nil
}

func (r *repository) ListByTransactionID(ctx context.Context, transactionID string) ([]*Entry, error) {
	var entries []*Entry
	err := r.db.WithContext(ctx).
		Where("transaction_id = ?", transactionID).
		Order("created_at ASC").
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("list ledger entries by transaction: %w", err)
	}
	return entries, nil
}

type balanceRow struct {
	AccountCode AccountCode
	DebitTotal  int64
	CreditTotal int64
	EntryCount  int64
}

func (r *repository) AggregateBalances(ctx context.Context) ([]*Balance, error) {
	var rows []balanceRow
	err := r.db.WithContext(ctx).
		Model(&Entry{}).
		Select(
			"account_code, "+
				"COALESCE(SUM(amount) FILTER (WHERE entry_type = ?), 0) AS debit_total, "+
				"COALESCE(SUM(amount) FILTER (WHERE entry_type = ?), 0) AS credit_total, "+
				"COUNT(*) AS entry_count",
			EntryTypeDebit, EntryTypeCredit,
		).
		Group("account_code").
		Order("account_code ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("aggregate ledger balances: %w", err)
	}

	balances := make([]*Balance, len(rows))
	for i, row := range rows {
		b := &Balance{
			AccountCode: row.AccountCode,
			DebitTotal:  row.DebitTotal,
			CreditTotal: row.CreditTotal,
			EntryCount:  row.EntryCount,
		}
		if row.AccountCode.Class() == ClassCreditNormal {
			b.Balance = row.CreditTotal - row.DebitTotal
		} else {
			b.Balance = row.DebitTotal - row.CreditTotal
		}
		balances[i] = b
	}
	return balances, nil
}
