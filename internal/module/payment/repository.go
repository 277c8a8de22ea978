package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository defines the interface for payment data access.
type Repository interface {
	GetPayment(ctx context.Context, id uuid.UUID) (*Payment, error)
	GetPaymentByGatewayID(ctx context.Context, gatewayPaymentID string) (*Payment, error)
	LatestPaymentForReference(ctx context.Context, reference string) (*Payment, error)
	CreatePayment(ctx context.Context, payment *Payment) error

	// UpsertFromReconciliation inserts or updates the payment keyed by
	// gateway payment id. The update is conditional: a row already in a
	// terminal state only moves to refund/chargeback states, so replayed or
	// stale webhooks cannot regress it.
	UpsertFromReconciliation(ctx context.Context, payment *Payment) (changed bool, err error)

	// GetPaymentForUpdate loads the payment row with a FOR UPDATE lock so
	// concurrent refund transactions against the same payment serialize.
	GetPaymentForUpdate(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*Payment, error)
	// AddRefundedAmount bumps refunded_amount inside the caller's transaction.
	AddRefundedAmount(ctx context.Context, tx *gorm.DB, id uuid.UUID, amount int64) error
	// SetStatus writes the provider status inside the caller's transaction.
	SetStatus(ctx context.Context, tx *gorm.DB, id uuid.UUID, status ProviderStatus) error

	CreateWebhookLog(ctx context.Context, log *WebhookLog) error
	FinishWebhookLog(ctx context.Context, id uuid.UUID, status WebhookLogStatus, errMsg *string) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository creates a new payment repository.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) GetPayment(ctx context.Context, id uuid.UUID) (*Payment, error) {
	var p Payment
	err := r.db.WithContext(ctx).First(&p, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPaymentNotFound
		}
		return nil, fmt.Errorf("get payment: %w", err)
	}
	return &p, nil
}

func (r *repository) GetPaymentByGatewayID(ctx context.Context, gatewayPaymentID string) (*Payment, error) {
	var p Payment
	err := r.db.WithContext(ctx).First(&p, "gateway_payment_id = ?", gatewayPaymentID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPaymentNotFound
		}
		return nil, fmt.Errorf("get payment by gateway id: %w", err)
	}
	return &p, nil
}

func (r *repository) LatestPaymentForReference(ctx context.Context, reference string) (*Payment, error) {
	var p Payment
	err := r.db.WithContext(ctx).
		Where("external_reference = ?", reference).
		Order("created_at DESC").
		First(&p).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPaymentNotFound
		}
		return nil, fmt.Errorf("latest payment for reference: %w", err)
	}
	return &p, nil
}

func (r *repository) CreatePayment(ctx context.Context, payment *Payment) error {
	if err := r.db.WithContext(ctx).Create(payment).Error; err != nil {
		return fmt.Errorf("create payment: %w", err)
	}
	return nil
}

var regressableStates = []ProviderStatus{
	ProviderStatusRefunded, ProviderStatusChargedBack,
}

func (r *repository) UpsertFromReconciliation(ctx context.Context, payment *Payment) (bool, error) {
	res := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "gateway_payment_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"status":             payment.Status,
			"status_detail":      payment.StatusDetail,
			"amount":             payment.Amount,
			"currency":           payment.Currency,
			"external_reference": payment.ExternalReference,
			"payer_email":        payment.PayerEmail,
			"raw_payload":        payment.RawPayload,
			"updated_at":         time.Now(),
		}),
		Where: clause.Where{Exprs: []clause.Expression{
			// Non-terminal rows take any update; terminal rows only move
			// into refund/chargeback states.
			clause.Expr{
				SQL: "payments.status NOT IN (?,?,?,?,?) OR excluded.status IN (?,?)",
				Vars: []interface{}{
					ProviderStatusApproved, ProviderStatusRejected, ProviderStatusCancelled,
					ProviderStatusRefunded, ProviderStatusChargedBack,
					regressableStates[0], regressableStates[1],
				},
			},
		}},
	}).Create(payment)
	if res.Error != nil {
		return false, fmt.Errorf("upsert payment: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (r *repository) GetPaymentForUpdate(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*Payment, error) {
	db := r.db
	if tx != nil {
		db = tx
	}
	var p Payment
	err := db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&p, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPaymentNotFound
		}
		return nil, fmt.Errorf("lock payment: %w", err)
	}
	return &p, nil
}

func (r *repository) AddRefundedAmount(ctx context.Context, tx *gorm.DB, id uuid.UUID, amount int64) error {
	db := r.db
	if tx != nil {
		db = tx
	}
	err := db.WithContext(ctx).
		Model(&Payment{}).
		Where("id = ?", id).
		Update("refunded_amount", gorm.Expr("refunded_amount + ?", amount)).Error
	if err != nil {
		return fmt.Errorf("add refunded amount: %w", err)
	}
	return nil
}

func (r *repository) SetStatus(ctx context.Context, tx *gorm.DB, id uuid.UUID, status ProviderStatus) error {
	db := r.db
	if tx != nil {
		db = tx
	}
	err := db.WithContext(ctx).
		Model(&Payment{}).
		Where("id = ?", id).
		Update("status", status).Error
	if err != nil {
		return fmt.Errorf("set payment status: %w", err)
	}
	return nil
}

func (r *repository) CreateWebhookLog(ctx context.Context, log *WebhookLog) error {
	if err := r.db.WithContext(ctx).Create(log).Error; err != nil {
		return fmt.Errorf("create webhook log: %w", err)
	}
	return nil
}

func (r *repository) FinishWebhookLog(ctx context.Context, id uuid.UUID, status WebhookLogStatus, errMsg *string) error {
	now := time.Now()
	err := r.db.WithContext(ctx).
		Model(&WebhookLog{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":        status,
			"error_message": errMsg,
			"processed_at":  now,
		}).Error
	if err != nil {
		return fmt.Errorf("finish webhook log: %w", err)
	}
	return nil
}
