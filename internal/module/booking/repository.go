package booking

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository defines the interface for booking data access.
type Repository interface {
	GetBooking(ctx context.Context, id uuid.UUID) (*Booking, error)
	GetRegistration(ctx context.Context, id uuid.UUID) (*EventRegistration, error)

	// UpdateBookingStatus writes the status fields only if the booking is not
	// already cancelled. Returns the number of rows changed so callers can
	// tell a no-op replay from a real transition.
	UpdateBookingStatus(ctx context.Context, id uuid.UUID, status Status, paymentStatus PaymentStatus) (int64, error)
	UpdateRegistrationStatus(ctx context.Context, id uuid.UUID, status Status, paymentStatus PaymentStatus) (int64, error)

	// Payment-status-only updates, used when a payment fails without
	// cancelling the appointment itself.
	UpdateBookingPaymentStatus(ctx context.Context, id uuid.UUID, paymentStatus PaymentStatus) (int64, error)
	UpdateRegistrationPaymentStatus(ctx context.Context, id uuid.UUID, paymentStatus PaymentStatus) (int64, error)

	// CancelBooking transitions to a cancelled state and records the financial
	// credit. Guarded the same way: cancelled rows are never rewritten.
	CancelBooking(ctx context.Context, tx *gorm.DB, id uuid.UUID, status Status, credit int64) (int64, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository creates a new booking repository.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) GetBooking(ctx context.Context, id uuid.UUID) (*Booking, error) {
	var b Booking
	err := r.db.WithContext(ctx).First(&b, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get booking: %w", err)
	}
	return &b, nil
}

func (r *repository) GetRegistration(ctx context.Context, id uuid.UUID) (*EventRegistration, error) {
	var reg EventRegistration
	err := r.db.WithContext(ctx).First(&reg, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRegistrationNotFound
		}
		return nil, fmt.Errorf("get event registration: %w", err)
	}
	return &reg, nil
}

var cancelledStates = []Status{StatusCancelledByPatient, StatusCancelledByAdmin}

func (r *repository) UpdateBookingStatus(ctx context.Context, id uuid.UUID, status Status, paymentStatus PaymentStatus) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&Booking{}).
		Where("id = ? AND status NOT IN ?", id, cancelledStates).
		Where("status <> ? OR payment_status <> ?", status, paymentStatus).
		Updates(map[string]interface{}{
			"status":         status,
			"payment_status": paymentStatus,
		})
	if res.Error != nil {
		return 0, fmt.Errorf("update booking status: %w", res.Error)
	}
	return res.RowsAffected, nil
}

func (r *repository) UpdateRegistrationStatus(ctx context.Context, id uuid.UUID, status Status, paymentStatus PaymentStatus) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&EventRegistration{}).
		Where("id = ? AND status NOT IN ?", id, cancelledStates).
		Where("status <> ? OR payment_status <> ?", status, paymentStatus).
		Updates(map[string]interface{}{
			"status":         status,
			"payment_status": paymentStatus,
		})
	if res.Error != nil {
		return 0, fmt.Errorf("update event registration status: %w", res.Error)
	}
	return res.RowsAffected, nil
}

func (r *repository) UpdateBookingPaymentStatus(ctx context.Context, id uuid.UUID, paymentStatus PaymentStatus) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&Booking{}).
		Where("id = ? AND payment_status <> ?", id, paymentStatus).
		Update("payment_status", paymentStatus)
	if res.Error != nil {
		return 0, fmt.Errorf("update booking payment status: %w", res.Error)
	}
	return res.RowsAffected, nil
}

func (r *repository) UpdateRegistrationPaymentStatus(ctx context.Context, id uuid.UUID, paymentStatus PaymentStatus) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&EventRegistration{}).
		Where("id = ? AND payment_status <> ?", id, paymentStatus).
		Update("payment_status", paymentStatus)
	if res.Error != nil {
		return 0, fmt.Errorf("update event registration payment status: %w", res.Error)
	}
	return res.RowsAffected, nil
}

func (r *repository) CancelBooking(ctx context.Context, tx *gorm.DB, id uuid.UUID, status Status, credit int64) (int64, error) {
	db := r.db
	if tx != nil {
		db = tx
	}
	res := db.WithContext(ctx).
		Model(&Booking{}).
		Where("id = ? AND status NOT IN ?", id, cancelledStates).
		Updates(map[string]interface{}{
			"status":           status,
			"financial_credit": credit,
		})
	if res.Error != nil {
		return 0, fmt.Errorf("cancel booking: %w", res.Error)
	}
	return res.RowsAffected, nil
}
