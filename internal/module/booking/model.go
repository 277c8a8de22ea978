package booking

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Status represents the lifecycle state of a booking. Cancelled states are
// terminal; no transition leaves them.
type Status string

const (
	StatusPending            Status = "pending"
	StatusConfirmed          Status = "confirmed"
	StatusCancelledByPatient Status = "cancelled_by_patient"
	StatusCancelledByAdmin   Status = "cancelled_by_admin"
)

// PaymentStatus mirrors the internal payment state on the booking record so
// the booking subsystem can render it without joining payments.
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusConfirmed PaymentStatus = "confirmed"
	PaymentStatusCancelled PaymentStatus = "cancelled"
)

// Booking represents a clinic appointment. The wider booking product owns
// most of this record; this service only transitions the status fields and
// the financial credit.
type Booking struct {
	ID              uuid.UUID     `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	PatientID       uuid.UUID     `json:"patient_id" gorm:"type:uuid;not null;index"`
	ProfessionalID  uuid.UUID     `json:"professional_id" gorm:"type:uuid;not null;index"`
	Status          Status        `json:"status" gorm:"not null;default:pending"`
	PaymentStatus   PaymentStatus `json:"payment_status" gorm:"not null;default:pending"`
	BookingDate     time.Time     `json:"booking_date" gorm:"type:date;not null"`
	BookingTime     string        `json:"booking_time" gorm:"not null"` // "15:04"
	FinancialCredit int64         `json:"financial_credit" gorm:"default:0"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

// TableName returns the database table name.
func (Booking) TableName() string {
	return "bookings"
}

// IsCancelled reports whether the booking is in a terminal cancelled state.
func (b *Booking) IsCancelled() bool {
	return b.Status == StatusCancelledByPatient || b.Status == StatusCancelledByAdmin
}

// StartsAt combines the booking date and time into the appointment start.
func (b *Booking) StartsAt() (time.Time, error) {
	t, err := time.Parse("15:04", b.BookingTime)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse booking time %q: %w", b.BookingTime, err)
	}
	d := b.BookingDate
	return time.Date(d.Year(), d.Month(), d.Day(), t.Hour(), t.Minute(), 0, 0, d.Location()), nil
}

// EventRegistration is the external-reference target when a payment belongs
// to a workshop rather than an appointment. Status handling mirrors bookings.
type EventRegistration struct {
	ID            uuid.UUID     `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	EventID       uuid.UUID     `json:"event_id" gorm:"type:uuid;not null;index"`
	PatientID     uuid.UUID     `json:"patient_id" gorm:"type:uuid;not null;index"`
	Status        Status        `json:"status" gorm:"not null;default:pending"`
	PaymentStatus PaymentStatus `json:"payment_status" gorm:"not null;default:pending"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// TableName returns the database table name.
func (EventRegistration) TableName() string {
	return "event_registrations"
}

// IsCancelled reports whether the registration is cancelled.
func (r *EventRegistration) IsCancelled() bool {
	return r.Status == StatusCancelledByPatient || r.Status == StatusCancelledByAdmin
}
