package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"github.com/clinio/server/internal/module/booking"
	"github.com/clinio/server/internal/module/ledger"
	"github.com/clinio/server/internal/module/payment/gateway"
	"github.com/clinio/server/internal/utils/metrics"
)

// GatewayClient is the slice of the gateway API the service needs.
type GatewayClient interface {
	GetPayment(ctx context.Context, paymentID string) (*gateway.Payment, error)
	CreatePayment(ctx context.Context, req *gateway.CreatePaymentRequest) (*gateway.CreatePaymentResponse, error)
}

// BookingUpdater applies reconciled payment outcomes to the record behind an
// external reference.
type BookingUpdater interface {
	ApplyPaymentOutcome(ctx context.Context, reference string, outcome booking.Outcome) error
}

// LedgerWriter posts balanced ledger batches. Satisfied by *ledger.Service.
type LedgerWriter interface {
	Write(ctx context.Context, transactionID string, inputs []ledger.EntryInput) error
}

// statusOutcomes is the fixed provider-status → internal-outcome table.
var statusOutcomes = map[ProviderStatus]booking.Outcome{
	ProviderStatusApproved:    booking.OutcomeConfirmed,
	ProviderStatusAuthorized:  booking.OutcomeConfirmed,
	ProviderStatusInProcess:   booking.OutcomePending,
	ProviderStatusRejected:    booking.OutcomeCancelled,
	ProviderStatusCancelled:   booking.OutcomeCancelled,
	ProviderStatusRefunded:    booking.OutcomeCancelled,
	ProviderStatusChargedBack: booking.OutcomeCancelled,
}

// Service implements payment operations and webhook reconciliation.
type Service struct {
	repo     Repository
	gateway  GatewayClient
	bookings BookingUpdater
	ledger   LedgerWriter
	metrics  *metrics.Metrics
	logger   *zap.Logger

	webhookSecret string
	hasGateway    bool
}

// NewService creates a new payment service.
func NewService(
	repo Repository,
	gatewayClient GatewayClient,
	bookings BookingUpdater,
	ledgerSvc LedgerWriter,
	m *metrics.Metrics,
	webhookSecret string,
	hasGateway bool,
	logger *zap.Logger,
) *Service {
	return &Service{
		repo:          repo,
		gateway:       gatewayClient,
		bookings:      bookings,
		ledger:        ledgerSvc,
		metrics:       m,
		logger:        logger,
		webhookSecret: webhookSecret,
		hasGateway:    hasGateway,
	}
}

// GetPayment returns a payment by internal id.
func (s *Service) GetPayment(ctx context.Context, id uuid.UUID) (*Payment, error) {
	return s.repo.GetPayment(ctx, id)
}

// GetPaymentByGatewayID returns a payment by the gateway's id.
func (s *Service) GetPaymentByGatewayID(ctx context.Context, gatewayID string) (*Payment, error) {
	return s.repo.GetPaymentByGatewayID(ctx, gatewayID)
}

// LatestForReference implements booking.PaymentSource.
func (s *Service) LatestForReference(ctx context.Context, reference string) (*booking.PaymentInfo, error) {
	p, err := s.repo.LatestPaymentForReference(ctx, reference)
	if err != nil {
		if errors.Is(err, ErrPaymentNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &booking.PaymentInfo{
		ID:       p.ID,
		Amount:   p.Amount,
		Currency: p.Currency,
		Settled:  p.Status.IsSettled(),
	}, nil
}

// CreatePayment creates a payment at the gateway and records it as pending.
func (s *Service) CreatePayment(ctx context.Context, req *CreatePaymentRequest) (*CreatePaymentResponse, error) {
	if req.Amount <= 0 {
		return nil, ErrInvalidAmount
	}
	if !s.hasGateway {
		return nil, ErrMissingCredentials
	}

	currency := req.Currency
	if currency == "" {
		currency = "ARS"
	}

	gwReq := &gateway.CreatePaymentRequest{
		TransactionAmount: float64(req.Amount) / 100,
		Description:       req.Description,
		PaymentMethodID:   "pix",
		ExternalReference: req.ExternalReference,
	}
	gwReq.Payer.Email = req.PayerEmail
	gwReq.Payer.FirstName = req.PayerFirstName
	gwReq.Payer.LastName = req.PayerLastName

	created, err := s.gateway.CreatePayment(ctx, gwReq)
	if err != nil {
		return nil, err
	}

	p := &Payment{
		GatewayPaymentID:  strconv.FormatInt(created.ID, 10),
		Status:            ProviderStatusPending,
		Amount:            req.Amount,
		Currency:          currency,
		ExternalReference: req.ExternalReference,
		PayerEmail:        req.PayerEmail,
	}
	if err := s.repo.CreatePayment(ctx, p); err != nil {
		return nil, err
	}

	s.logger.Info("payment created at gateway",
		zap.String("gateway_payment_id", p.GatewayPaymentID),
		zap.String("external_reference", p.ExternalReference),
		zap.Int64("amount", p.Amount),
	)

	return &CreatePaymentResponse{
		ID:               p.ID,
		GatewayPaymentID: p.GatewayPaymentID,
		Status:           p.Status,
		QRCode:           created.PointOfInteraction.TransactionData.QRCode,
		QRCodeBase64:     created.PointOfInteraction.TransactionData.QRCodeBase64,
		TicketURL:        created.PointOfInteraction.TransactionData.TicketURL,
	}, nil
}

// ProcessNotification runs the webhook pipeline for a parsed notification:
// audit log, authenticity check, reconciliation against the gateway, status
// mapping, conditional persistence, and downstream side effects.
//
// The body has already been parsed by the handler; anything unparseable never
// reaches this method.
func (s *Service) ProcessNotification(ctx context.Context, requestID string, signatureHeader string, rawBody []byte, notification *gateway.WebhookNotification) (*WebhookResult, error) {
	verified, verifyErr := s.verify(requestID, signatureHeader, notification.Data.ID)

	// Audit-first: the delivery is recorded before any processing.
	logRow := &WebhookLog{
		RequestID:        requestID,
		EventType:        notification.Type,
		GatewayPaymentID: notification.Data.ID,
		Status:           WebhookLogReceived,
		Verified:         verified,
		RawPayload:       datatypes.JSON(rawBody),
	}
	if err := s.repo.CreateWebhookLog(ctx, logRow); err != nil {
		return nil, err
	}
	result := &WebhookResult{LogID: logRow.ID, Verified: verified}

	if verifyErr != nil {
		result.Outcome = WebhookLogError
		s.finishLog(ctx, logRow.ID, WebhookLogError, verifyErr)
		s.metrics.RecordWebhook("rejected")
		return result, verifyErr
	}

	if notification.Type != "payment" {
		result.Outcome = WebhookLogIgnored
		s.finishLog(ctx, logRow.ID, WebhookLogIgnored, nil)
		s.metrics.RecordWebhook("ignored")
		s.logger.Info("ignoring non-payment webhook",
			zap.String("type", notification.Type),
			zap.String("request_id", requestID),
		)
		return result, nil
	}

	if !s.hasGateway {
		err := ErrMissingCredentials
		result.Outcome = WebhookLogError
		s.finishLog(ctx, logRow.ID, WebhookLogError, err)
		s.metrics.RecordWebhook("error")
		return result, err
	}

	if err := s.reconcile(ctx, notification.Data.ID); err != nil {
		result.Outcome = WebhookLogError
		s.finishLog(ctx, logRow.ID, WebhookLogError, err)
		if errors.Is(err, ErrReconciliation) {
			s.metrics.RecordWebhook("reconcile_failed")
		} else {
			s.metrics.RecordWebhook("error")
		}
		return result, err
	}

	result.Outcome = WebhookLogSuccess
	s.finishLog(ctx, logRow.ID, WebhookLogSuccess, nil)
	s.metrics.RecordWebhook("success")
	return result, nil
}

// verify checks the webhook signature. A missing secret fails open: the
// event is processed but flagged unverified, because dropping real payment
// confirmations over a config gap is worse than accepting an unsigned one.
func (s *Service) verify(requestID, signatureHeader, dataID string) (bool, error) {
	if s.webhookSecret == "" {
		s.logger.Warn("webhook secret not configured, accepting unverified notification",
			zap.String("request_id", requestID),
		)
		return false, nil
	}

	sig, err := gateway.ParseSignature(signatureHeader)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrMalformedNotification, err)
	}
	if !gateway.VerifySignature(s.webhookSecret, dataID, requestID, sig) {
		return false, fmt.Errorf("%w: signature mismatch", ErrMalformedNotification)
	}
	return true, nil
}

// reconcile fetches the authoritative payment from the gateway and applies
// it. The webhook payload's own status is never trusted; it can be stale or
// replayed out of order.
func (s *Service) reconcile(ctx context.Context, gatewayPaymentID string) error {
	start := time.Now()
	gwPayment, err := s.gateway.GetPayment(ctx, gatewayPaymentID)
	if err != nil {
		if errors.Is(err, gateway.ErrPaymentNotFound) {
			s.metrics.RecordGatewayLookup("not_found", time.Since(start))
			return fmt.Errorf("%w: payment %s unknown at gateway", ErrReconciliation, gatewayPaymentID)
		}
		s.metrics.RecordGatewayLookup("error", time.Since(start))
		return fmt.Errorf("%w: %v", ErrReconciliation, err)
	}
	s.metrics.RecordGatewayLookup("ok", time.Since(start))

	raw, err := json.Marshal(gwPayment)
	if err != nil {
		return fmt.Errorf("encode gateway payment: %w", err)
	}

	status := ProviderStatus(gwPayment.Status)
	p := &Payment{
		GatewayPaymentID:  strconv.FormatInt(gwPayment.ID, 10),
		Status:            status,
		StatusDetail:      gwPayment.StatusDetail,
		Amount:            gwPayment.AmountCents(),
		Currency:          gwPayment.CurrencyID,
		ExternalReference: gwPayment.ExternalReference,
		PayerEmail:        gwPayment.Payer.Email,
		RawPayload:        datatypes.JSON(raw),
	}

	changed, err := s.repo.UpsertFromReconciliation(ctx, p)
	if err != nil {
		return err
	}
	if !changed {
		// The row was already in this state, or a concurrent delivery won
		// the upsert. The side effects below still run against the stored
		// row: booking transitions and ledger writes are idempotent, so a
		// replay repairs any earlier delivery that failed after the payment
		// row committed.
		stored, err := s.repo.GetPaymentByGatewayID(ctx, p.GatewayPaymentID)
		if err != nil {
			return err
		}
		p = stored
		status = p.Status
		s.logger.Debug("payment already in reconciled state",
			zap.String("gateway_payment_id", p.GatewayPaymentID),
			zap.String("status", string(status)),
		)
	}

	outcome, ok := statusOutcomes[status]
	if !ok {
		outcome = booking.OutcomePending
	}
	if p.ExternalReference != "" {
		if err := s.bookings.ApplyPaymentOutcome(ctx, p.ExternalReference, outcome); err != nil {
			return err
		}
	}

	return s.postLedger(ctx, p, status)
}

// postLedger records the financial effect of the new status. Transaction ids
// are derived from the gateway payment id, so replays are no-ops under the
// ledger's idempotency discipline.
func (s *Service) postLedger(ctx context.Context, p *Payment, status ProviderStatus) error {
	switch status {
	case ProviderStatusApproved, ProviderStatusAuthorized:
		return s.ledger.Write(ctx, "payment-"+p.GatewayPaymentID, []ledger.EntryInput{
			{
				AccountCode: ledger.AccountCashBank,
				EntryType:   ledger.EntryTypeDebit,
				Amount:      p.Amount,
				Description: "payment settled " + p.GatewayPaymentID,
			},
			{
				AccountCode: ledger.AccountRevenueGross,
				EntryType:   ledger.EntryTypeCredit,
				Amount:      p.Amount,
				Description: "payment settled " + p.GatewayPaymentID,
			},
		})
	case ProviderStatusChargedBack:
		return s.ledger.Write(ctx, "payment-"+p.GatewayPaymentID+"-chargeback", []ledger.EntryInput{
			{
				AccountCode: ledger.AccountRevenueGross,
				EntryType:   ledger.EntryTypeDebit,
				Amount:      p.Amount,
				Description: "chargeback " + p.GatewayPaymentID,
			},
			{
				AccountCode: ledger.AccountCashBank,
				EntryType:   ledger.EntryTypeCredit,
				Amount:      p.Amount,
				Description: "chargeback " + p.GatewayPaymentID,
			},
		})
	}
	return nil
}

func (s *Service) finishLog(ctx context.Context, id uuid.UUID, status WebhookLogStatus, cause error) {
	var msg *string
	if cause != nil {
		text := cause.Error()
		msg = &text
	}
	if err := s.repo.FinishWebhookLog(ctx, id, status, msg); err != nil {
		s.logger.Error("failed to finish webhook log",
			zap.String("log_id", id.String()),
			zap.Error(err),
		)
	}
}
