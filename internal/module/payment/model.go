package payment

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// ProviderStatus is the gateway's payment status vocabulary, stored as-is.
type ProviderStatus string

const (
	ProviderStatusApproved    ProviderStatus = "approved"
	ProviderStatusAuthorized  ProviderStatus = "authorized"
	ProviderStatusInProcess   ProviderStatus = "in_process"
	ProviderStatusRejected    ProviderStatus = "rejected"
	ProviderStatusCancelled   ProviderStatus = "cancelled"
	ProviderStatusRefunded    ProviderStatus = "refunded"
	ProviderStatusChargedBack ProviderStatus = "charged_back"
	ProviderStatusPending     ProviderStatus = "pending"
)

// IsTerminal reports whether the provider considers the payment settled one
// way or the other. Terminal states are only overwritten by refund or
// chargeback states.
func (s ProviderStatus) IsTerminal() bool {
	switch s {
	case ProviderStatusApproved, ProviderStatusRejected, ProviderStatusCancelled,
		ProviderStatusRefunded, ProviderStatusChargedBack:
		return true
	}
	return false
}

// IsSettled reports whether money actually moved.
func (s ProviderStatus) IsSettled() bool {
	return s == ProviderStatusApproved || s == ProviderStatusAuthorized
}

// Payment represents a gateway payment tracked internally. Created on
// payment creation or on first webhook sight; updated on every reconciled
// webhook; never deleted.
type Payment struct {
	ID                uuid.UUID      `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	GatewayPaymentID  string         `json:"gateway_payment_id" gorm:"uniqueIndex;not null"`
	Status            ProviderStatus `json:"status" gorm:"not null;default:pending"`
	StatusDetail      string         `json:"status_detail,omitempty"`
	Amount            int64          `json:"amount"` // In cents
	Currency          string         `json:"currency" gorm:"default:ARS"`
	ExternalReference string         `json:"external_reference" gorm:"index"`
	PayerEmail        string         `json:"payer_email,omitempty"`
	RefundedAmount    int64          `json:"refunded_amount" gorm:"default:0"`
	RawPayload        datatypes.JSON `json:"-" gorm:"type:jsonb"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
}

// TableName returns the database table name.
func (Payment) TableName() string {
	return "payments"
}

// RemainingAmount is the amount still refundable.
func (p *Payment) RemainingAmount() int64 {
	return p.Amount - p.RefundedAmount
}

// WebhookLogStatus is the processing outcome recorded on a webhook log row.
type WebhookLogStatus string

const (
	WebhookLogReceived WebhookLogStatus = "received"
	WebhookLogIgnored  WebhookLogStatus = "ignored"
	WebhookLogSuccess  WebhookLogStatus = "success"
	WebhookLogError    WebhookLogStatus = "error"
)

// WebhookLog is the append-only audit record of every webhook delivery,
// written before any processing happens.
type WebhookLog struct {
	ID               uuid.UUID        `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	RequestID        string           `json:"request_id" gorm:"index"`
	EventType        string           `json:"event_type"`
	GatewayPaymentID string           `json:"gateway_payment_id" gorm:"index"`
	Status           WebhookLogStatus `json:"status" gorm:"not null;default:received"`
	Verified         bool             `json:"verified"`
	ErrorMessage     *string          `json:"error_message,omitempty"`
	RawPayload       datatypes.JSON   `json:"-" gorm:"type:jsonb"`
	CreatedAt        time.Time        `json:"created_at"`
	ProcessedAt      *time.Time       `json:"processed_at,omitempty"`
}

// TableName returns the database table name.
func (WebhookLog) TableName() string {
	return "webhook_logs"
}
