package ledger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fakeRepo struct {
	entries []*Entry
	locked  []string
}

func (f *fakeRepo) AcquireTransactionLock(_ context.Context, transactionID string) error {
	f.locked = append(f.locked, transactionID)
	return nil
}

func (f *fakeRepo) CreateEntries(_ context.Context, entries []*Entry) error {
	f.entries = append(f.entries, entries...)
	return nil
}

func (f *fakeRepo) ListByTransactionID(_ context.Context, transactionID string) ([]*Entry, error) {
	var out []*Entry
	for _, e := range f.entries {
		if e.TransactionID == transactionID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeRepo) AggregateBalances(_ context.Context) ([]*Balance, error) {
	byAccount := map[AccountCode]*Balance{}
	for _, e := range f.entries {
		b, ok := byAccount[e.AccountCode]
		if !ok {
			b = &Balance{AccountCode: e.AccountCode}
			byAccount[e.AccountCode] = b
		}
		if e.EntryType == EntryTypeDebit {
			b.DebitTotal += e.Amount
		} else {
			b.CreditTotal += e.Amount
		}
		b.EntryCount++
	}
	var out []*Balance
	for _, b := range byAccount {
		if b.AccountCode.Class() == ClassCreditNormal {
			b.Balance = b.CreditTotal - b.DebitTotal
		} else {
			b.Balance = b.DebitTotal - b.CreditTotal
		}
		out = append(out, b)
	}
	return out, nil
}

func (f *fakeRepo) WithTx(_ *gorm.DB) Repository { return f }

func TestValidateBatch(t *testing.T) {
	tests := []struct {
		name    string
		inputs  []EntryInput
		wantErr error
	}{
		{
			name:    "empty batch",
			inputs:  nil,
			wantErr: ErrEmptyBatch,
		},
		{
			name: "balanced pair",
			inputs: []EntryInput{
				{AccountCode: AccountCashBank, EntryType: EntryTypeDebit, Amount: 10000},
				{AccountCode: AccountRevenueGross, EntryType: EntryTypeCredit, Amount: 10000},
			},
		},
		{
			name: "balanced split credit",
			inputs: []EntryInput{
				{AccountCode: AccountCashBank, EntryType: EntryTypeDebit, Amount: 10000},
				{AccountCode: AccountRevenueGross, EntryType: EntryTypeCredit, Amount: 8500},
				{AccountCode: AccountRevenueService, EntryType: EntryTypeCredit, Amount: 1500},
			},
		},
		{
			name: "unbalanced",
			inputs: []EntryInput{
				{AccountCode: AccountCashBank, EntryType: EntryTypeDebit, Amount: 10000},
				{AccountCode: AccountRevenueGross, EntryType: EntryTypeCredit, Amount: 9999},
			},
			wantErr: ErrUnbalanced,
		},
		{
			name: "unknown account",
			inputs: []EntryInput{
				{AccountCode: "PETTY_CASH", EntryType: EntryTypeDebit, Amount: 100},
				{AccountCode: AccountRevenueGross, EntryType: EntryTypeCredit, Amount: 100},
			},
			wantErr: ErrInvalidAccount,
		},
		{
			name: "invalid entry type",
			inputs: []EntryInput{
				{AccountCode: AccountCashBank, EntryType: "TRANSFER", Amount: 100},
				{AccountCode: AccountRevenueGross, EntryType: EntryTypeCredit, Amount: 100},
			},
			wantErr: ErrInvalidEntryType,
		},
		{
			name: "zero amount",
			inputs: []EntryInput{
				{AccountCode: AccountCashBank, EntryType: EntryTypeDebit, Amount: 0},
				{AccountCode: AccountRevenueGross, EntryType: EntryTypeCredit, Amount: 0},
			},
			wantErr: ErrNonPositiveAmount,
		},
		{
			name: "negative amount",
			inputs: []EntryInput{
				{AccountCode: AccountCashBank, EntryType: EntryTypeDebit, Amount: -50},
				{AccountCode: AccountRevenueGross, EntryType: EntryTypeCredit, Amount: -50},
			},
			wantErr: ErrNonPositiveAmount,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateBatch(tt.inputs)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestWriteInTx_IdempotentReplay(t *testing.T) {
	repo := &fakeRepo{}
	svc := NewService(nil, repo, zap.NewNop())

	batch := []EntryInput{
		{AccountCode: AccountCashBank, EntryType: EntryTypeDebit, Amount: 10000, Description: "payment settled"},
		{AccountCode: AccountRevenueGross, EntryType: EntryTypeCredit, Amount: 10000, Description: "payment settled"},
	}

	require.NoError(t, svc.WriteInTx(context.Background(), nil, "pay-123", batch))
	require.Len(t, repo.entries, 2)

	// Same batch again is a no-op, not a duplicate posting.
	require.NoError(t, svc.WriteInTx(context.Background(), nil, "pay-123", batch))
	assert.Len(t, repo.entries, 2)
}

func TestWriteInTx_LocksTransactionBeforeReadingEntries(t *testing.T) {
	repo := &fakeRepo{}
	svc := NewService(nil, repo, zap.NewNop())

	batch := []EntryInput{
		{AccountCode: AccountCashBank, EntryType: EntryTypeDebit, Amount: 7500},
		{AccountCode: AccountRevenueGross, EntryType: EntryTypeCredit, Amount: 7500},
	}
	require.NoError(t, svc.WriteInTx(context.Background(), nil, "pay-777", batch))
	assert.Equal(t, []string{"pay-777"}, repo.locked)

	// Every write attempt takes the lock, replays included.
	require.NoError(t, svc.WriteInTx(context.Background(), nil, "pay-777", batch))
	assert.Equal(t, []string{"pay-777", "pay-777"}, repo.locked)
}

func TestWriteInTx_DifferentBatchSameTransactionRejected(t *testing.T) {
	repo := &fakeRepo{}
	svc := NewService(nil, repo, zap.NewNop())

	first := []EntryInput{
		{AccountCode: AccountCashBank, EntryType: EntryTypeDebit, Amount: 10000},
		{AccountCode: AccountRevenueGross, EntryType: EntryTypeCredit, Amount: 10000},
	}
	require.NoError(t, svc.WriteInTx(context.Background(), nil, "pay-123", first))

	second := []EntryInput{
		{AccountCode: AccountCashBank, EntryType: EntryTypeDebit, Amount: 5000},
		{AccountCode: AccountRevenueGross, EntryType: EntryTypeCredit, Amount: 5000},
	}
	err := svc.WriteInTx(context.Background(), nil, "pay-123", second)
	assert.ErrorIs(t, err, ErrDuplicateTransaction)
	assert.Len(t, repo.entries, 2)
}

func TestWriteInTx_RejectsUnbalancedWithoutPartialWrite(t *testing.T) {
	repo := &fakeRepo{}
	svc := NewService(nil, repo, zap.NewNop())

	err := svc.WriteInTx(context.Background(), nil, "pay-456", []EntryInput{
		{AccountCode: AccountCashBank, EntryType: EntryTypeDebit, Amount: 10000},
		{AccountCode: AccountRevenueGross, EntryType: EntryTypeCredit, Amount: 4000},
	})
	assert.ErrorIs(t, err, ErrUnbalanced)
	assert.Empty(t, repo.entries)
}

func TestBalances_SignConventions(t *testing.T) {
	repo := &fakeRepo{}
	svc := NewService(nil, repo, zap.NewNop())
	ctx := context.Background()

	// A $100 payment: cash in, revenue recognized.
	require.NoError(t, svc.WriteInTx(ctx, nil, "pay-1", []EntryInput{
		{AccountCode: AccountCashBank, EntryType: EntryTypeDebit, Amount: 10000},
		{AccountCode: AccountRevenueGross, EntryType: EntryTypeCredit, Amount: 10000},
	}))
	// A $40 refund reverses part of it.
	require.NoError(t, svc.WriteInTx(ctx, nil, "refund-1", []EntryInput{
		{AccountCode: AccountRevenueGross, EntryType: EntryTypeDebit, Amount: 4000},
		{AccountCode: AccountCashBank, EntryType: EntryTypeCredit, Amount: 4000},
	}))

	balances, err := svc.Balances(ctx)
	require.NoError(t, err)

	byAccount := map[AccountCode]*Balance{}
	for _, b := range balances {
		byAccount[b.AccountCode] = b
	}

	// Cash is debit-normal: 10000 - 4000.
	require.Contains(t, byAccount, AccountCashBank)
	assert.Equal(t, int64(6000), byAccount[AccountCashBank].Balance)

	// Revenue is credit-normal: 10000 - 4000.
	require.Contains(t, byAccount, AccountRevenueGross)
	assert.Equal(t, int64(6000), byAccount[AccountRevenueGross].Balance)
}

func TestWriteCorrection_TagsEntries(t *testing.T) {
	repo := &fakeRepo{}
	svc := NewService(nil, repo, zap.NewNop())

	// WriteCorrection goes through Write, which needs a db handle; exercise
	// the tagging through WriteInTx-equivalent inputs instead.
	inputs := []EntryInput{
		{AccountCode: AccountEquityAdjustment, EntryType: EntryTypeDebit, Amount: 250, Description: "drift fix"},
		{AccountCode: AccountCashBank, EntryType: EntryTypeCredit, Amount: 250, Description: "drift fix"},
	}
	tagged := make([]EntryInput, len(inputs))
	for i, in := range inputs {
		in.Description += ManualCorrectionSuffix
		tagged[i] = in
	}
	require.NoError(t, svc.WriteInTx(context.Background(), nil, "adj-1", tagged))

	entries, err := svc.GetTransaction(context.Background(), "adj-1")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	for _, e := range entries {
		assert.True(t, e.IsManualCorrection())
	}
}
