package refund

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"mime"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/clinio/server/internal/module/booking"
	"github.com/clinio/server/internal/module/ledger"
	"github.com/clinio/server/internal/module/payment"
	"github.com/clinio/server/internal/utils/metrics"
)

// Service implements the manual refund workflow.
type Service struct {
	db       *gorm.DB
	repo     Repository
	payments payment.Repository
	bookings payment.BookingUpdater
	ledger   *ledger.Service
	store    EvidenceStore
	metrics  *metrics.Metrics
	logger   *zap.Logger
	now      func() time.Time
	runTx    func(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// NewService creates a new refund service.
func NewService(
	db *gorm.DB,
	repo Repository,
	payments payment.Repository,
	bookings payment.BookingUpdater,
	ledgerSvc *ledger.Service,
	store EvidenceStore,
	m *metrics.Metrics,
	logger *zap.Logger,
) *Service {
	s := &Service{
		db:       db,
		repo:     repo,
		payments: payments,
		bookings: bookings,
		ledger:   ledgerSvc,
		store:    store,
		metrics:  m,
		logger:   logger,
		now:      time.Now,
	}
	s.runTx = func(ctx context.Context, fn func(tx *gorm.DB) error) error {
		return s.db.WithContext(ctx).Transaction(fn)
	}
	return s
}

// Create runs the refund saga: validate and checksum the proof, upload it,
// then commit the refund, ledger entries, payment bookkeeping and pending
// notification in one transaction. If the transaction fails after the upload,
// the uploaded file is deleted so no orphaned evidence remains.
func (s *Service) Create(ctx context.Context, operatorID uuid.UUID, req *CreateRefundRequest) (*CreateRefundResponse, error) {
	proof, err := base64.StdEncoding.DecodeString(req.ProofBase64)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid base64", ErrEmptyProof)
	}
	if len(proof) == 0 {
		return nil, ErrEmptyProof
	}

	sum := sha256.Sum256(proof)
	checksum := hex.EncodeToString(sum[:])
	if req.ProofChecksum != "" && !strings.EqualFold(req.ProofChecksum, checksum) {
		return nil, ErrChecksumMismatch
	}

	p, err := s.payments.GetPayment(ctx, req.PaymentID)
	if err != nil {
		return nil, err
	}
	if !p.Status.IsSettled() && p.Status != payment.ProviderStatusRefunded {
		return nil, ErrPaymentNotSettled
	}

	amount := req.Amount
	if amount == 0 {
		amount = p.RemainingAmount()
	}
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	if amount > p.RemainingAmount() {
		return nil, ErrAmountExceedsRemaining
	}

	currency := req.Currency
	if currency == "" {
		currency = p.Currency
	} else if currency != p.Currency {
		return nil, ErrCurrencyMismatch
	}

	uploadedAt := s.now()
	key := EvidenceKey(p.ID, uploadedAt, req.ProofFilename)
	contentType := mime.TypeByExtension(filepath.Ext(req.ProofFilename))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	if err := s.store.Upload(ctx, key, proof, contentType); err != nil {
		s.metrics.RecordRefund("upload_failed")
		return nil, err
	}

	var meta datatypes.JSON
	if req.Metadata != nil {
		raw, err := json.Marshal(req.Metadata)
		if err != nil {
			return nil, fmt.Errorf("encode refund metadata: %w", err)
		}
		meta = datatypes.JSON(raw)
	}

	refund := &ManualRefund{
		ID:            uuid.New(),
		PaymentID:     p.ID,
		Amount:        amount,
		Currency:      currency,
		Reason:        req.Reason,
		ProofBucket:   s.store.Bucket(),
		ProofPath:     key,
		ProofChecksum: checksum,
		Metadata:      meta,
		ProcessedBy:   operatorID,
	}

	var notificationID *uuid.UUID
	err = s.runTx(ctx, func(tx *gorm.DB) error {
		// Re-check the remaining amount under a row lock; a concurrent
		// refund could have landed since the read above, and the lock keeps
		// two in-flight refunds from jointly exceeding the payment.
		locked, err := s.payments.GetPaymentForUpdate(ctx, tx, p.ID)
		if err != nil {
			return err
		}
		refunded, err := s.repo.SumRefundedByPaymentID(ctx, tx, p.ID)
		if err != nil {
			return err
		}
		if amount > locked.Amount-refunded {
			return ErrAmountExceedsRemaining
		}

		if err := s.repo.CreateRefund(ctx, tx, refund); err != nil {
			return err
		}

		if err := s.ledger.WriteInTx(ctx, tx, "refund-"+refund.ID.String(), []ledger.EntryInput{
			{
				AccountCode: ledger.AccountRevenueGross,
				EntryType:   ledger.EntryTypeDebit,
				Amount:      amount,
				Description: "manual refund " + refund.ID.String(),
			},
			{
				AccountCode: ledger.AccountCashBank,
				EntryType:   ledger.EntryTypeCredit,
				Amount:      amount,
				Description: "manual refund " + refund.ID.String(),
			},
		}); err != nil {
			return err
		}

		if err := s.payments.AddRefundedAmount(ctx, tx, p.ID, amount); err != nil {
			return err
		}
		if refunded+amount >= locked.Amount {
			if err := s.payments.SetStatus(ctx, tx, p.ID, payment.ProviderStatusRefunded); err != nil {
				return err
			}
		}

		// A notification row is queued for every refund. Overrides are
		// optional; the recipient falls back to the payer, the body to the
		// dispatcher's rendered template.
		notify := req.Notification
		if notify == nil {
			notify = &NotificationRequest{}
		}
		recipient := notify.RecipientEmail
		if recipient == "" {
			recipient = p.PayerEmail
		}
		n := &Notification{
			RefundID:       refund.ID,
			RecipientEmail: recipient,
			RecipientName:  notify.RecipientName,
			CCEmails:       datatypes.NewJSONSlice(notify.CCEmails),
			Subject:        notify.Subject,
			Message:        notify.Message,
			Status:         NotificationPending,
			ScheduledAt:    uploadedAt,
		}
		if err := s.repo.CreateNotification(ctx, tx, n); err != nil {
			return err
		}
		notificationID = &n.ID

		return s.audit(ctx, tx, refund.ID, AuditRefundCreated, &operatorID, refundAuditDetail{
			Result:    "created",
			Amount:    amount,
			Timestamp: uploadedAt,
		})
	})
	if err != nil {
		// Compensating action: the refund did not commit, so the evidence
		// must not outlive it.
		if delErr := s.store.Delete(ctx, key); delErr != nil {
			s.logger.Error("failed to delete orphaned refund evidence",
				zap.String("key", key),
				zap.Error(delErr),
			)
		}
		s.metrics.RecordRefund("failed")
		return nil, err
	}

	if p.ExternalReference != "" && amount == p.RemainingAmount() {
		// Full refund cancels the underlying booking's payment.
		if err := s.bookings.ApplyPaymentOutcome(ctx, p.ExternalReference, booking.OutcomeCancelled); err != nil {
			s.logger.Error("failed to apply refund outcome to booking",
				zap.String("external_reference", p.ExternalReference),
				zap.Error(err),
			)
		}
	}

	s.metrics.RecordRefund("created")
	s.logger.Info("manual refund processed",
		zap.String("refund_id", refund.ID.String()),
		zap.String("payment_id", p.ID.String()),
		zap.Int64("amount", amount),
		zap.String("processed_by", operatorID.String()),
	)

	return &CreateRefundResponse{
		Refund: refund,
		Proof: ProofInfo{
			Bucket:   refund.ProofBucket,
			Path:     refund.ProofPath,
			Checksum: refund.ProofChecksum,
		},
		ProcessedBy:    operatorID,
		NotificationID: notificationID,
	}, nil
}

// Overview returns refund and latest-notification state for up to 25 payments.
func (s *Service) Overview(ctx context.Context, paymentIDs []uuid.UUID) (*OverviewResponse, error) {
	refunds, err := s.repo.ListRefundsByPaymentIDs(ctx, paymentIDs)
	if err != nil {
		return nil, err
	}

	refundIDs := make([]uuid.UUID, len(refunds))
	byPayment := make(map[uuid.UUID]*ManualRefund, len(refunds))
	for i, ref := range refunds {
		refundIDs[i] = ref.ID
		// Latest refund per payment; list is ordered newest first.
		if _, ok := byPayment[ref.PaymentID]; !ok {
			byPayment[ref.PaymentID] = ref
		}
	}

	var notifications map[uuid.UUID]*Notification
	if len(refundIDs) > 0 {
		notifications, err = s.repo.LatestNotificationsByRefundIDs(ctx, refundIDs)
		if err != nil {
			return nil, err
		}
	}

	items := make([]OverviewItem, len(paymentIDs))
	for i, pid := range paymentIDs {
		item := OverviewItem{PaymentID: pid}
		if ref, ok := byPayment[pid]; ok {
			item.Refund = ref
			item.Notification = notifications[ref.ID]
		}
		items[i] = item
	}
	return &OverviewResponse{Items: items}, nil
}

func (s *Service) audit(ctx context.Context, tx *gorm.DB, refundID uuid.UUID, action AuditAction, actor *uuid.UUID, detail refundAuditDetail) error {
	raw, err := json.Marshal(detail)
	if err != nil {
		return fmt.Errorf("marshal audit detail: %w", err)
	}
	return s.repo.CreateAudit(ctx, tx, &AuditLog{
		RefundID: refundID,
		Action:   action,
		ActorID:  actor,
		Detail:   datatypes.JSON(raw),
	})
}
