package refund

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/clinio/server/internal/module/booking"
	"github.com/clinio/server/internal/module/ledger"
	"github.com/clinio/server/internal/module/payment"
	"github.com/clinio/server/internal/utils/metrics"
)

type fakeRepo struct {
	refunds       []*ManualRefund
	notifications map[uuid.UUID]*Notification
	audits        []*AuditLog

	createRefundErr error
	claimDenied     bool
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{notifications: make(map[uuid.UUID]*Notification)}
}

func (r *fakeRepo) CreateRefund(_ context.Context, _ *gorm.DB, refund *ManualRefund) error {
	if r.createRefundErr != nil {
		return r.createRefundErr
	}
	r.refunds = append(r.refunds, refund)
	return nil
}

func (r *fakeRepo) GetRefund(_ context.Context, id uuid.UUID) (*ManualRefund, error) {
	for _, ref := range r.refunds {
		if ref.ID == id {
			return ref, nil
		}
	}
	return nil, ErrRefundNotFound
}

func (r *fakeRepo) ListRefundsByPaymentIDs(_ context.Context, paymentIDs []uuid.UUID) ([]*ManualRefund, error) {
	var out []*ManualRefund
	// Newest first, matching the database ordering.
	for i := len(r.refunds) - 1; i >= 0; i-- {
		for _, pid := range paymentIDs {
			if r.refunds[i].PaymentID == pid {
				out = append(out, r.refunds[i])
			}
		}
	}
	return out, nil
}

func (r *fakeRepo) SumRefundedByPaymentID(_ context.Context, _ *gorm.DB, paymentID uuid.UUID) (int64, error) {
	var total int64
	for _, ref := range r.refunds {
		if ref.PaymentID == paymentID {
			total += ref.Amount
		}
	}
	return total, nil
}

func (r *fakeRepo) CreateNotification(_ context.Context, _ *gorm.DB, n *Notification) error {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	r.notifications[n.ID] = n
	return nil
}

func (r *fakeRepo) GetNotification(_ context.Context, id uuid.UUID) (*Notification, error) {
	n, ok := r.notifications[id]
	if !ok {
		return nil, ErrNotificationNotFound
	}
	// Return a copy, like the real repository reading a fresh row: later
	// updates (e.g. the claim's attempts bump) must not leak into the
	// dispatcher's snapshot.
	c := *n
	return &c, nil
}

func (r *fakeRepo) ListDueNotifications(_ context.Context, now time.Time, maxAttempts, limit int) ([]*Notification, error) {
	var out []*Notification
	for _, n := range r.notifications {
		if n.Status == NotificationPending && !n.ScheduledAt.After(now) && n.Attempts < maxAttempts {
			c := *n
			out = append(out, &c)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (r *fakeRepo) LatestNotificationsByRefundIDs(_ context.Context, refundIDs []uuid.UUID) (map[uuid.UUID]*Notification, error) {
	latest := make(map[uuid.UUID]*Notification)
	for _, n := range r.notifications {
		for _, rid := range refundIDs {
			if n.RefundID == rid {
				latest[rid] = n
			}
		}
	}
	return latest, nil
}

func (r *fakeRepo) ClaimNotification(_ context.Context, id uuid.UUID, prevAttempts int) (bool, error) {
	if r.claimDenied {
		return false, nil
	}
	n, ok := r.notifications[id]
	if !ok || n.Status != NotificationPending || n.Attempts != prevAttempts {
		return false, nil
	}
	n.Attempts++
	return true, nil
}

func (r *fakeRepo) MarkNotificationSent(_ context.Context, id uuid.UUID, at time.Time) error {
	n := r.notifications[id]
	n.Status = NotificationSent
	n.SentAt = &at
	n.LastError = nil
	return nil
}

func (r *fakeRepo) RescheduleNotification(_ context.Context, id uuid.UUID, lastError string, nextAt time.Time) error {
	n := r.notifications[id]
	n.Status = NotificationPending
	n.LastError = &lastError
	n.ScheduledAt = nextAt
	return nil
}

func (r *fakeRepo) MarkNotificationError(_ context.Context, id uuid.UUID, lastError string) error {
	n := r.notifications[id]
	n.Status = NotificationError
	n.LastError = &lastError
	return nil
}

func (r *fakeRepo) CreateAudit(_ context.Context, _ *gorm.DB, entry *AuditLog) error {
	r.audits = append(r.audits, entry)
	return nil
}

type fakePayments struct {
	payments    map[uuid.UUID]*payment.Payment
	lockedReads []uuid.UUID
}

func (r *fakePayments) GetPayment(_ context.Context, id uuid.UUID) (*payment.Payment, error) {
	p, ok := r.payments[id]
	if !ok {
		return nil, payment.ErrPaymentNotFound
	}
	copied := *p
	return &copied, nil
}

func (r *fakePayments) GetPaymentForUpdate(ctx context.Context, _ *gorm.DB, id uuid.UUID) (*payment.Payment, error) {
	r.lockedReads = append(r.lockedReads, id)
	return r.GetPayment(ctx, id)
}

func (r *fakePayments) GetPaymentByGatewayID(_ context.Context, _ string) (*payment.Payment, error) {
	return nil, payment.ErrPaymentNotFound
}

func (r *fakePayments) LatestPaymentForReference(_ context.Context, _ string) (*payment.Payment, error) {
	return nil, payment.ErrPaymentNotFound
}

func (r *fakePayments) CreatePayment(_ context.Context, p *payment.Payment) error {
	r.payments[p.ID] = p
	return nil
}

func (r *fakePayments) UpsertFromReconciliation(_ context.Context, _ *payment.Payment) (bool, error) {
	return false, nil
}

func (r *fakePayments) AddRefundedAmount(_ context.Context, _ *gorm.DB, id uuid.UUID, amount int64) error {
	r.payments[id].RefundedAmount += amount
	return nil
}

func (r *fakePayments) SetStatus(_ context.Context, _ *gorm.DB, id uuid.UUID, status payment.ProviderStatus) error {
	r.payments[id].Status = status
	return nil
}

func (r *fakePayments) CreateWebhookLog(_ context.Context, _ *payment.WebhookLog) error { return nil }

func (r *fakePayments) FinishWebhookLog(_ context.Context, _ uuid.UUID, _ payment.WebhookLogStatus, _ *string) error {
	return nil
}

type fakeBookings struct {
	outcomes map[string]booking.Outcome
}

func (b *fakeBookings) ApplyPaymentOutcome(_ context.Context, reference string, outcome booking.Outcome) error {
	b.outcomes[reference] = outcome
	return nil
}

type fakeStore struct {
	uploads   map[string][]byte
	deleted   []string
	uploadErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{uploads: make(map[string][]byte)}
}

func (s *fakeStore) Upload(_ context.Context, key string, data []byte, _ string) error {
	if s.uploadErr != nil {
		return s.uploadErr
	}
	s.uploads[key] = data
	return nil
}

func (s *fakeStore) Delete(_ context.Context, key string) error {
	s.deleted = append(s.deleted, key)
	return nil
}

func (s *fakeStore) Bucket() string { return "refund-evidence" }

type fakeLedgerRepo struct {
	entries []*ledger.Entry
	locked  []string
}

func (r *fakeLedgerRepo) AcquireTransactionLock(_ context.Context, transactionID string) error {
	r.locked = append(r.locked, transactionID)
	return nil
}

func (r *fakeLedgerRepo) CreateEntries(_ context.Context, entries []*ledger.Entry) error {
	r.entries = append(r.entries, entries...)
	return nil
}

func (r *fakeLedgerRepo) ListByTransactionID(_ context.Context, transactionID string) ([]*ledger.Entry, error) {
	var out []*ledger.Entry
	for _, e := range r.entries {
		if e.TransactionID == transactionID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *fakeLedgerRepo) AggregateBalances(_ context.Context) ([]*ledger.Balance, error) {
	return nil, nil
}

func (r *fakeLedgerRepo) WithTx(_ *gorm.DB) ledger.Repository { return r }

type refundFixture struct {
	svc      *Service
	repo     *fakeRepo
	payments *fakePayments
	bookings *fakeBookings
	ledger   *fakeLedgerRepo
	store    *fakeStore
	now      time.Time
}

func newRefundFixture(t *testing.T) *refundFixture {
	t.Helper()

	f := &refundFixture{
		repo:     newFakeRepo(),
		payments: &fakePayments{payments: make(map[uuid.UUID]*payment.Payment)},
		bookings: &fakeBookings{outcomes: make(map[string]booking.Outcome)},
		ledger:   &fakeLedgerRepo{},
		store:    newFakeStore(),
		now:      time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}

	ledgerSvc := ledger.NewService(nil, f.ledger, zap.NewNop())
	m := metrics.NewWithRegistry("test", prometheus.NewRegistry())

	f.svc = NewService(nil, f.repo, f.payments, f.bookings, ledgerSvc, f.store, m, zap.NewNop())
	f.svc.now = func() time.Time { return f.now }
	f.svc.runTx = func(ctx context.Context, fn func(tx *gorm.DB) error) error {
		return fn(nil)
	}
	return f
}

func (f *refundFixture) seedPayment(status payment.ProviderStatus, amount int64, reference string) *payment.Payment {
	p := &payment.Payment{
		ID:                uuid.New(),
		GatewayPaymentID:  "99887766",
		Status:            status,
		Amount:            amount,
		Currency:          "ARS",
		ExternalReference: reference,
		PayerEmail:        "payer@example.com",
	}
	f.payments.payments[p.ID] = p
	return p
}

func proofRequest(paymentID uuid.UUID, amount int64) *CreateRefundRequest {
	return &CreateRefundRequest{
		PaymentID:     paymentID,
		Amount:        amount,
		Reason:        "duplicate charge",
		ProofBase64:   base64.StdEncoding.EncodeToString([]byte("bank statement bytes")),
		ProofFilename: "statement.pdf",
	}
}

func TestCreate_FullRefund(t *testing.T) {
	f := newRefundFixture(t)
	p := f.seedPayment(payment.ProviderStatusApproved, 10000, "booking-"+uuid.NewString())
	operator := uuid.New()

	req := proofRequest(p.ID, 0) // 0 means refund everything remaining
	req.Notification = &NotificationRequest{
		RecipientEmail: "patient@example.com",
		RecipientName:  "Ana",
	}

	resp, err := f.svc.Create(context.Background(), operator, req)
	require.NoError(t, err)
	require.NotNil(t, resp.Refund)
	require.NotNil(t, resp.NotificationID)

	refund := resp.Refund
	assert.Equal(t, int64(10000), refund.Amount)
	assert.Equal(t, "ARS", refund.Currency)
	assert.Equal(t, operator, refund.ProcessedBy)
	assert.Equal(t, operator, resp.ProcessedBy)

	sum := sha256.Sum256([]byte("bank statement bytes"))
	assert.Equal(t, hex.EncodeToString(sum[:]), refund.ProofChecksum)

	// Evidence stored under the payment's prefix, reported back to the caller.
	require.Len(t, f.store.uploads, 1)
	assert.True(t, strings.HasPrefix(refund.ProofPath, "refund-proofs/"+p.ID.String()+"/"))
	assert.Equal(t, "refund-evidence", resp.Proof.Bucket)
	assert.Equal(t, refund.ProofPath, resp.Proof.Path)
	assert.Equal(t, refund.ProofChecksum, resp.Proof.Checksum)
	assert.Empty(t, f.store.deleted)

	// The payment row was locked inside the transaction.
	assert.Equal(t, []uuid.UUID{p.ID}, f.payments.lockedReads)

	// Balanced ledger batch for the refund.
	entries, err := f.ledger.ListByTransactionID(context.Background(), "refund-"+refund.ID.String())
	require.NoError(t, err)
	require.Len(t, entries, 2)

	// Payment bookkeeping: fully refunded payments flip to refunded.
	assert.Equal(t, int64(10000), f.payments.payments[p.ID].RefundedAmount)
	assert.Equal(t, payment.ProviderStatusRefunded, f.payments.payments[p.ID].Status)

	// Full refund cancels the booking's payment.
	assert.Equal(t, booking.OutcomeCancelled, f.bookings.outcomes[p.ExternalReference])

	// Notification queued and audit trail written.
	n := f.repo.notifications[*resp.NotificationID]
	require.NotNil(t, n)
	assert.Equal(t, NotificationPending, n.Status)
	assert.Equal(t, "patient@example.com", n.RecipientEmail)

	require.Len(t, f.repo.audits, 1)
	assert.Equal(t, AuditRefundCreated, f.repo.audits[0].Action)
}

func TestCreate_PartialRefundKeepsPaymentSettled(t *testing.T) {
	f := newRefundFixture(t)
	p := f.seedPayment(payment.ProviderStatusApproved, 10000, "booking-"+uuid.NewString())

	resp, err := f.svc.Create(context.Background(), uuid.New(), proofRequest(p.ID, 4000))
	require.NoError(t, err)

	assert.Equal(t, int64(4000), resp.Refund.Amount)
	assert.Equal(t, int64(4000), f.payments.payments[p.ID].RefundedAmount)
	assert.Equal(t, payment.ProviderStatusApproved, f.payments.payments[p.ID].Status)
	assert.Empty(t, f.bookings.outcomes)
}

func TestCreate_QueuesNotificationWithoutNotificationFields(t *testing.T) {
	f := newRefundFixture(t)
	p := f.seedPayment(payment.ProviderStatusApproved, 10000, "")

	// No notification overrides at all; the queued email defaults to the
	// payer, with an empty message so the dispatcher renders the fallback.
	resp, err := f.svc.Create(context.Background(), uuid.New(), proofRequest(p.ID, 4000))
	require.NoError(t, err)

	require.NotNil(t, resp.NotificationID)
	require.Len(t, f.repo.notifications, 1)

	n := f.repo.notifications[*resp.NotificationID]
	require.NotNil(t, n)
	assert.Equal(t, NotificationPending, n.Status)
	assert.Equal(t, "payer@example.com", n.RecipientEmail)
	assert.Empty(t, n.Message)
	assert.Equal(t, resp.Refund.ID, n.RefundID)
}

func TestCreate_CarriesMetadataAndCC(t *testing.T) {
	f := newRefundFixture(t)
	p := f.seedPayment(payment.ProviderStatusApproved, 10000, "")

	req := proofRequest(p.ID, 2500)
	req.Metadata = map[string]any{"ticket": "FIN-204"}
	req.Notification = &NotificationRequest{
		RecipientEmail: "patient@example.com",
		CCEmails:       []string{"finance@clinic.example"},
	}

	resp, err := f.svc.Create(context.Background(), uuid.New(), req)
	require.NoError(t, err)

	assert.Contains(t, string(resp.Refund.Metadata), "FIN-204")

	n := f.repo.notifications[*resp.NotificationID]
	require.NotNil(t, n)
	assert.Equal(t, []string{"finance@clinic.example"}, []string(n.CCEmails))
}

func TestCreate_ChecksumMismatchRejectedBeforeUpload(t *testing.T) {
	f := newRefundFixture(t)
	p := f.seedPayment(payment.ProviderStatusApproved, 10000, "")

	req := proofRequest(p.ID, 0)
	req.ProofChecksum = strings.Repeat("ab", 32)

	_, err := f.svc.Create(context.Background(), uuid.New(), req)
	require.ErrorIs(t, err, ErrChecksumMismatch)
	assert.Empty(t, f.store.uploads)
	assert.Empty(t, f.repo.refunds)
}

func TestCreate_ChecksumAcceptsUppercaseHex(t *testing.T) {
	f := newRefundFixture(t)
	p := f.seedPayment(payment.ProviderStatusApproved, 10000, "")

	sum := sha256.Sum256([]byte("bank statement bytes"))
	req := proofRequest(p.ID, 2500)
	req.ProofChecksum = strings.ToUpper(hex.EncodeToString(sum[:]))

	_, err := f.svc.Create(context.Background(), uuid.New(), req)
	require.NoError(t, err)
}

func TestCreate_EmptyProofRejected(t *testing.T) {
	f := newRefundFixture(t)
	p := f.seedPayment(payment.ProviderStatusApproved, 10000, "")

	req := proofRequest(p.ID, 0)
	req.ProofBase64 = ""

	_, err := f.svc.Create(context.Background(), uuid.New(), req)
	require.ErrorIs(t, err, ErrEmptyProof)
}

func TestCreate_AmountExceedsRemaining(t *testing.T) {
	f := newRefundFixture(t)
	p := f.seedPayment(payment.ProviderStatusApproved, 10000, "")
	p.RefundedAmount = 8000

	_, err := f.svc.Create(context.Background(), uuid.New(), proofRequest(p.ID, 5000))
	require.ErrorIs(t, err, ErrAmountExceedsRemaining)
	assert.Empty(t, f.store.uploads)
}

func TestCreate_CurrencyMismatchRejected(t *testing.T) {
	f := newRefundFixture(t)
	p := f.seedPayment(payment.ProviderStatusApproved, 10000, "")

	req := proofRequest(p.ID, 5000)
	req.Currency = "USD"

	_, err := f.svc.Create(context.Background(), uuid.New(), req)
	require.ErrorIs(t, err, ErrCurrencyMismatch)
}

func TestCreate_UnsettledPaymentRejected(t *testing.T) {
	f := newRefundFixture(t)
	p := f.seedPayment(payment.ProviderStatusInProcess, 10000, "")

	_, err := f.svc.Create(context.Background(), uuid.New(), proofRequest(p.ID, 0))
	require.ErrorIs(t, err, ErrPaymentNotSettled)
}

func TestCreate_UnknownPayment(t *testing.T) {
	f := newRefundFixture(t)

	_, err := f.svc.Create(context.Background(), uuid.New(), proofRequest(uuid.New(), 0))
	require.ErrorIs(t, err, payment.ErrPaymentNotFound)
}

func TestCreate_CompensatingDeleteOnCommitFailure(t *testing.T) {
	f := newRefundFixture(t)
	p := f.seedPayment(payment.ProviderStatusApproved, 10000, "booking-"+uuid.NewString())
	f.repo.createRefundErr = errors.New("deadlock detected")

	_, err := f.svc.Create(context.Background(), uuid.New(), proofRequest(p.ID, 0))
	require.Error(t, err)

	// The upload is rolled back so no orphaned evidence remains.
	require.Len(t, f.store.deleted, 1)
	assert.Contains(t, f.store.deleted[0], "refund-proofs/"+p.ID.String())

	// Nothing else committed.
	assert.Empty(t, f.repo.refunds)
	assert.Equal(t, int64(0), f.payments.payments[p.ID].RefundedAmount)
	assert.Empty(t, f.bookings.outcomes)
}

func TestCreate_ConcurrentRefundCaughtInTransaction(t *testing.T) {
	f := newRefundFixture(t)
	p := f.seedPayment(payment.ProviderStatusApproved, 10000, "")

	// A competing refund lands between the initial read and the commit.
	f.svc.runTx = func(ctx context.Context, fn func(tx *gorm.DB) error) error {
		f.repo.refunds = append(f.repo.refunds, &ManualRefund{
			ID:        uuid.New(),
			PaymentID: p.ID,
			Amount:    8000,
		})
		return fn(nil)
	}

	_, err := f.svc.Create(context.Background(), uuid.New(), proofRequest(p.ID, 5000))
	require.ErrorIs(t, err, ErrAmountExceedsRemaining)
	require.Len(t, f.store.deleted, 1)
}

func TestOverview(t *testing.T) {
	f := newRefundFixture(t)
	p := f.seedPayment(payment.ProviderStatusApproved, 10000, "")
	bare := f.seedPayment(payment.ProviderStatusApproved, 5000, "")

	req := proofRequest(p.ID, 0)
	req.Notification = &NotificationRequest{RecipientEmail: "patient@example.com"}
	resp, err := f.svc.Create(context.Background(), uuid.New(), req)
	require.NoError(t, err)

	overview, err := f.svc.Overview(context.Background(), []uuid.UUID{p.ID, bare.ID})
	require.NoError(t, err)
	require.Len(t, overview.Items, 2)

	require.NotNil(t, overview.Items[0].Refund)
	assert.Equal(t, resp.Refund.ID, overview.Items[0].Refund.ID)
	require.NotNil(t, overview.Items[0].Notification)
	assert.Equal(t, NotificationPending, overview.Items[0].Notification.Status)

	assert.Nil(t, overview.Items[1].Refund)
	assert.Nil(t, overview.Items[1].Notification)
}
