package booking

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/clinio/server/internal/module/ledger"
)

// CreditCancellationWindow is how far before the appointment start a
// cancellation must happen to earn a financial credit.
const CreditCancellationWindow = 24 * time.Hour

// PaymentInfo is the slice of a payment record the cancellation rule needs.
type PaymentInfo struct {
	ID       uuid.UUID
	Amount   int64
	Currency string
	Settled  bool
}

// PaymentSource answers payment questions for a booking without importing
// the payment package.
type PaymentSource interface {
	LatestForReference(ctx context.Context, reference string) (*PaymentInfo, error)
}

// Outcome is the internal result of a reconciled payment, applied to the
// booking or registration the payment references.
type Outcome string

const (
	OutcomeConfirmed Outcome = "confirmed"
	OutcomePending   Outcome = "pending"
	OutcomeCancelled Outcome = "cancelled"
)

// Service implements booking status transitions and cancellation.
type Service struct {
	db       *gorm.DB
	repo     Repository
	ledger   *ledger.Service
	payments PaymentSource
	logger   *zap.Logger
	now      func() time.Time
}

// NewService creates a new booking service.
func NewService(db *gorm.DB, repo Repository, ledgerSvc *ledger.Service, payments PaymentSource, logger *zap.Logger) *Service {
	return &Service{
		db:       db,
		repo:     repo,
		ledger:   ledgerSvc,
		payments: payments,
		logger:   logger,
		now:      time.Now,
	}
}

// GetBooking returns a booking by id.
func (s *Service) GetBooking(ctx context.Context, id uuid.UUID) (*Booking, error) {
	return s.repo.GetBooking(ctx, id)
}

// ApplyPaymentOutcome transitions the record behind an external reference
// after a payment reconciliation. References look like "booking-<uuid>" or
// "registration-<uuid>"; a bare uuid is treated as a booking id. Transitions
// are conditional updates, so replays are no-ops, and cancelled records are
// never rewritten.
func (s *Service) ApplyPaymentOutcome(ctx context.Context, reference string, outcome Outcome) error {
	kind, id, err := parseReference(reference)
	if err != nil {
		return err
	}

	var rows int64
	switch kind {
	case referenceBooking:
		switch outcome {
		case OutcomeConfirmed:
			rows, err = s.repo.UpdateBookingStatus(ctx, id, StatusConfirmed, PaymentStatusConfirmed)
		case OutcomePending:
			rows, err = s.repo.UpdateBookingPaymentStatus(ctx, id, PaymentStatusPending)
		case OutcomeCancelled:
			rows, err = s.repo.UpdateBookingPaymentStatus(ctx, id, PaymentStatusCancelled)
		default:
			return fmt.Errorf("unknown payment outcome %q", outcome)
		}
	case referenceRegistration:
		switch outcome {
		case OutcomeConfirmed:
			rows, err = s.repo.UpdateRegistrationStatus(ctx, id, StatusConfirmed, PaymentStatusConfirmed)
		case OutcomePending:
			rows, err = s.repo.UpdateRegistrationPaymentStatus(ctx, id, PaymentStatusPending)
		case OutcomeCancelled:
			rows, err = s.repo.UpdateRegistrationPaymentStatus(ctx, id, PaymentStatusCancelled)
		default:
			return fmt.Errorf("unknown payment outcome %q", outcome)
		}
	}
	if err != nil {
		return err
	}

	if rows == 0 {
		s.logger.Debug("payment outcome already applied",
			zap.String("reference", reference),
			zap.String("outcome", string(outcome)),
		)
	}
	return nil
}

// CancelResult reports what a cancellation produced.
type CancelResult struct {
	Booking         *Booking `json:"booking"`
	FinancialCredit int64    `json:"financial_credit"`
}

// Cancel cancels a booking. If the cancellation happens at least 24 hours
// before the appointment start and the booking has a settled payment, the
// patient earns a financial credit for the full payment amount, posted to
// the ledger as a revenue reversal into a patient-credit liability.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID, byAdmin bool) (*CancelResult, error) {
	b, err := s.repo.GetBooking(ctx, id)
	if err != nil {
		return nil, err
	}
	if b.IsCancelled() {
		return nil, ErrAlreadyCancelled
	}

	credit, err := s.creditFor(ctx, b)
	if err != nil {
		return nil, err
	}

	status := StatusCancelledByPatient
	if byAdmin {
		status = StatusCancelledByAdmin
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rows, err := s.repo.CancelBooking(ctx, tx, id, status, credit)
		if err != nil {
			return err
		}
		if rows == 0 {
			return ErrAlreadyCancelled
		}
		if credit > 0 {
			return s.ledger.WriteInTx(ctx, tx, "booking-cancel-"+id.String(), []ledger.EntryInput{
				{
					AccountCode: ledger.AccountRevenueGross,
					EntryType:   ledger.EntryTypeDebit,
					Amount:      credit,
					Description: "booking cancellation credit " + id.String(),
				},
				{
					AccountCode: ledger.AccountLiabilityProfessional,
					EntryType:   ledger.EntryTypeCredit,
					Amount:      credit,
					Description: "booking cancellation credit " + id.String(),
				},
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	b.Status = status
	b.FinancialCredit = credit
	s.logger.Info("booking cancelled",
		zap.String("booking_id", id.String()),
		zap.String("status", string(status)),
		zap.Int64("financial_credit", credit),
	)
	return &CancelResult{Booking: b, FinancialCredit: credit}, nil
}

// creditFor applies the 24h rule: a settled payment plus enough notice earns
// a credit equal to the payment amount, otherwise nothing.
func (s *Service) creditFor(ctx context.Context, b *Booking) (int64, error) {
	startsAt, err := b.StartsAt()
	if err != nil {
		return 0, err
	}
	if s.now().After(startsAt.Add(-CreditCancellationWindow)) {
		return 0, nil
	}

	info, err := s.payments.LatestForReference(ctx, "booking-"+b.ID.String())
	if err != nil {
		return 0, err
	}
	if info == nil || !info.Settled {
		return 0, nil
	}
	return info.Amount, nil
}

type referenceKind int

const (
	referenceBooking referenceKind = iota
	referenceRegistration
)

func parseReference(reference string) (referenceKind, uuid.UUID, error) {
	raw := reference
	kind := referenceBooking
	switch {
	case strings.HasPrefix(reference, "booking-"):
		raw = strings.TrimPrefix(reference, "booking-")
	case strings.HasPrefix(reference, "registration-"):
		raw = strings.TrimPrefix(reference, "registration-")
		kind = referenceRegistration
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return 0, uuid.Nil, fmt.Errorf("invalid external reference %q: %w", reference, err)
	}
	return kind, id, nil
}
