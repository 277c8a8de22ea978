package refund

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository defines the interface for refund data access.
type Repository interface {
	CreateRefund(ctx context.Context, tx *gorm.DB, refund *ManualRefund) error
	GetRefund(ctx context.Context, id uuid.UUID) (*ManualRefund, error)
	ListRefundsByPaymentIDs(ctx context.Context, paymentIDs []uuid.UUID) ([]*ManualRefund, error)
	SumRefundedByPaymentID(ctx context.Context, tx *gorm.DB, paymentID uuid.UUID) (int64, error)

	CreateNotification(ctx context.Context, tx *gorm.DB, n *Notification) error
	GetNotification(ctx context.Context, id uuid.UUID) (*Notification, error)
	ListDueNotifications(ctx context.Context, now time.Time, maxAttempts, limit int) ([]*Notification, error)
	LatestNotificationsByRefundIDs(ctx context.Context, refundIDs []uuid.UUID) (map[uuid.UUID]*Notification, error)

	// ClaimNotification bumps attempts with an optimistic guard on the
	// previous attempts value. A false return means another dispatcher got
	// there first.
	ClaimNotification(ctx context.Context, id uuid.UUID, prevAttempts int) (bool, error)
	MarkNotificationSent(ctx context.Context, id uuid.UUID, at time.Time) error
	RescheduleNotification(ctx context.Context, id uuid.UUID, lastError string, nextAt time.Time) error
	MarkNotificationError(ctx context.Context, id uuid.UUID, lastError string) error

	CreateAudit(ctx context.Context, tx *gorm.DB, entry *AuditLog) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository creates a new refund repository.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) conn(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}

func (r *repository) CreateRefund(ctx context.Context, tx *gorm.DB, refund *ManualRefund) error {
	if err := r.conn(tx).WithContext(ctx).Create(refund).Error; err != nil {
		return fmt.Errorf("create refund: %w", err)
	}
	return nil
}

func (r *repository) GetRefund(ctx context.Context, id uuid.UUID) (*ManualRefund, error) {
	var refund ManualRefund
	err := r.db.WithContext(ctx).First(&refund, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRefundNotFound
		}
		return nil, fmt.Errorf("get refund: %w", err)
	}
	return &refund, nil
}

func (r *repository) ListRefundsByPaymentIDs(ctx context.Context, paymentIDs []uuid.UUID) ([]*ManualRefund, error) {
	var refunds []*ManualRefund
	err := r.db.WithContext(ctx).
		Where("payment_id IN ?", paymentIDs).
		Order("created_at DESC").
		Find(&refunds).Error
	if err != nil {
		return nil, fmt.Errorf("list refunds by payments: %w", err)
	}
	return refunds, nil
}

func (r *repository) SumRefundedByPaymentID(ctx context.Context, tx *gorm.DB, paymentID uuid.UUID) (int64, error) {
	var total int64
	err := r.conn(tx).WithContext(ctx).
		Model(&ManualRefund{}).
		Where("payment_id = ?", paymentID).
		Select("COALESCE(SUM(amount), 0)").
		Scan(&total).Error
	if err != nil {
		return 0, fmt.Errorf("sum refunded amount: %w", err)
	}
	return total, nil
}

func (r *repository) CreateNotification(ctx context.Context, tx *gorm.DB, n *Notification) error {
	if err := r.conn(tx).WithContext(ctx).Create(n).Error; err != nil {
		return fmt.Errorf("create notification: %w", err)
	}
	return nil
}

func (r *repository) GetNotification(ctx context.Context, id uuid.UUID) (*Notification, error) {
	var n Notification
	err := r.db.WithContext(ctx).First(&n, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotificationNotFound
		}
		return nil, fmt.Errorf("get notification: %w", err)
	}
	return &n, nil
}

func (r *repository) ListDueNotifications(ctx context.Context, now time.Time, maxAttempts, limit int) ([]*Notification, error) {
	var ns []*Notification
	err := r.db.WithContext(ctx).
		Where("status = ? AND scheduled_at <= ? AND attempts < ?", NotificationPending, now, maxAttempts).
		Order("scheduled_at ASC").
		Limit(limit).
		Find(&ns).Error
	if err != nil {
		return nil, fmt.Errorf("list due notifications: %w", err)
	}
	return ns, nil
}

func (r *repository) LatestNotificationsByRefundIDs(ctx context.Context, refundIDs []uuid.UUID) (map[uuid.UUID]*Notification, error) {
	var ns []*Notification
	err := r.db.WithContext(ctx).
		Where("refund_id IN ?", refundIDs).
		Order("created_at ASC").
		Find(&ns).Error
	if err != nil {
		return nil, fmt.Errorf("list notifications by refunds: %w", err)
	}

	latest := make(map[uuid.UUID]*Notification, len(refundIDs))
	for _, n := range ns {
		latest[n.RefundID] = n
	}
	return latest, nil
}

func (r *repository) ClaimNotification(ctx context.Context, id uuid.UUID, prevAttempts int) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&Notification{}).
		Where("id = ? AND status = ? AND attempts = ?", id, NotificationPending, prevAttempts).
		Update("attempts", prevAttempts+1)
	if res.Error != nil {
		return false, fmt.Errorf("claim notification: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) MarkNotificationSent(ctx context.Context, id uuid.UUID, at time.Time) error {
	err := r.db.WithContext(ctx).
		Model(&Notification{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":     NotificationSent,
			"sent_at":    at,
			"last_error": nil,
		}).Error
	if err != nil {
		return fmt.Errorf("mark notification sent: %w", err)
	}
	return nil
}

func (r *repository) RescheduleNotification(ctx context.Context, id uuid.UUID, lastError string, nextAt time.Time) error {
	err := r.db.WithContext(ctx).
		Model(&Notification{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":       NotificationPending,
			"last_error":   lastError,
			"scheduled_at": nextAt,
		}).Error
	if err != nil {
		return fmt.Errorf("reschedule notification: %w", err)
	}
	return nil
}

func (r *repository) MarkNotificationError(ctx context.Context, id uuid.UUID, lastError string) error {
	err := r.db.WithContext(ctx).
		Model(&Notification{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":     NotificationError,
			"last_error": lastError,
		}).Error
	if err != nil {
		return fmt.Errorf("mark notification error: %w", err)
	}
	return nil
}

func (r *repository) CreateAudit(ctx context.Context, tx *gorm.DB, entry *AuditLog) error {
	if err := r.conn(tx).WithContext(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("create audit entry: %w", err)
	}
	return nil
}
