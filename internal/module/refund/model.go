package refund

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// ManualRefund is an operator-initiated refund backed by uploaded proof
// evidence. The row only exists if the ledger entries and the pending
// notification were written in the same transaction.
type ManualRefund struct {
	ID            uuid.UUID      `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	PaymentID     uuid.UUID      `json:"payment_id" gorm:"type:uuid;not null;index"`
	Amount        int64          `json:"amount" gorm:"not null"`
	Currency      string         `json:"currency" gorm:"not null"`
	Reason        string         `json:"reason"`
	ProofBucket   string         `json:"proof_bucket" gorm:"not null"`
	ProofPath     string         `json:"proof_path" gorm:"not null"`
	ProofChecksum string         `json:"proof_checksum" gorm:"not null"` // SHA-256 hex
	Metadata      datatypes.JSON `json:"metadata,omitempty" gorm:"type:jsonb"`
	ProcessedBy   uuid.UUID      `json:"processed_by" gorm:"type:uuid;not null"`
	CreatedAt     time.Time      `json:"created_at"`
}

// TableName returns the database table name.
func (ManualRefund) TableName() string {
	return "payment_refunds"
}

// NotificationStatus is the delivery state of a refund notification.
type NotificationStatus string

const (
	NotificationPending NotificationStatus = "pending"
	NotificationSent    NotificationStatus = "sent"
	NotificationError   NotificationStatus = "error"
)

// Notification is a queued refund email. The dispatcher claims due pending
// rows, sends, and either marks them sent, reschedules with attempts+1, or
// parks them in error once the attempt budget is spent.
type Notification struct {
	ID             uuid.UUID                   `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	RefundID       uuid.UUID                   `json:"refund_id" gorm:"type:uuid;not null;index"`
	RecipientEmail string                      `json:"recipient_email" gorm:"not null"`
	RecipientName  string                      `json:"recipient_name"`
	CCEmails       datatypes.JSONSlice[string] `json:"cc_emails,omitempty" gorm:"type:jsonb"`
	Subject        string                      `json:"subject"`
	Message        string                      `json:"message"`
	Status         NotificationStatus          `json:"status" gorm:"not null;default:pending;index"`
	Attempts       int                         `json:"attempts" gorm:"default:0"`
	LastError      *string                     `json:"last_error,omitempty"`
	ScheduledAt    time.Time                   `json:"scheduled_at" gorm:"index"`
	SentAt         *time.Time                  `json:"sent_at,omitempty"`
	CreatedAt      time.Time                   `json:"created_at"`
	UpdatedAt      time.Time                   `json:"updated_at"`
}

// TableName returns the database table name.
func (Notification) TableName() string {
	return "payment_refund_notifications"
}

// AuditAction identifies what an audit row records.
type AuditAction string

const (
	AuditRefundCreated   AuditAction = "refund_created"
	AuditDispatchAttempt AuditAction = "dispatch_attempt"
)

// AuditLog is the append-only trail for refunds and notification sends.
type AuditLog struct {
	ID        uuid.UUID      `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	RefundID  uuid.UUID      `json:"refund_id" gorm:"type:uuid;not null;index"`
	Action    AuditAction    `json:"action" gorm:"not null"`
	ActorID   *uuid.UUID     `json:"actor_id,omitempty" gorm:"type:uuid"`
	Detail    datatypes.JSON `json:"detail,omitempty" gorm:"type:jsonb"`
	CreatedAt time.Time      `json:"created_at"`
}

// TableName returns the database table name.
func (AuditLog) TableName() string {
	return "payment_refund_audit_log"
}
