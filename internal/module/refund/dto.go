package refund

import (
	"time"

	"github.com/google/uuid"
)

// CreateRefundRequest is the request body for a manual refund.
type CreateRefundRequest struct {
	PaymentID     uuid.UUID      `json:"payment_id" binding:"required"`
	Amount        int64          `json:"amount"` // 0 means full remaining amount
	Currency      string         `json:"currency"`
	Reason        string         `json:"reason" binding:"required"`
	ProofBase64   string         `json:"proof_base64" binding:"required"`
	ProofFilename string         `json:"proof_filename" binding:"required"`
	ProofChecksum string         `json:"proof_checksum"` // optional SHA-256 hex
	Metadata      map[string]any `json:"metadata"`

	// Notification overrides the defaults of the queued refund email. A
	// notification row is created either way; without overrides it goes to
	// the payment's payer with the rendered fallback body.
	Notification *NotificationRequest `json:"notification"`
}

// NotificationRequest carries optional overrides for the refund email.
type NotificationRequest struct {
	RecipientEmail string   `json:"recipient_email"`
	RecipientName  string   `json:"recipient_name"`
	CCEmails       []string `json:"cc_emails"`
	Subject        string   `json:"subject"`
	Message        string   `json:"message"`
}

// ProofInfo locates the stored evidence object.
type ProofInfo struct {
	Bucket   string `json:"bucket"`
	Path     string `json:"path"`
	Checksum string `json:"checksum"`
}

// CreateRefundResponse is returned after a committed refund.
type CreateRefundResponse struct {
	Refund         *ManualRefund `json:"refund"`
	Proof          ProofInfo     `json:"proof"`
	ProcessedBy    uuid.UUID     `json:"processed_by"`
	NotificationID *uuid.UUID    `json:"notification_id,omitempty"`
}

// OverviewRequest asks for refund state across payments.
type OverviewRequest struct {
	PaymentIDs []uuid.UUID `json:"payment_ids" binding:"required,min=1,max=25"`
}

// OverviewItem is one payment's refund summary.
type OverviewItem struct {
	PaymentID    uuid.UUID     `json:"payment_id"`
	Refund       *ManualRefund `json:"refund,omitempty"`
	Notification *Notification `json:"notification,omitempty"`
}

// OverviewResponse answers an overview request.
type OverviewResponse struct {
	Items []OverviewItem `json:"items"`
}

// DispatchRequest triggers a notification dispatch run.
type DispatchRequest struct {
	Limit          int        `json:"limit"`
	DryRun         bool       `json:"dry_run"`
	NotificationID *uuid.UUID `json:"notification_id,omitempty"`
}

// DispatchResult summarizes one dispatch run.
type DispatchResult struct {
	DryRun    int `json:"dry_run"`
	Sent      int `json:"sent"`
	Retried   int `json:"retried"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
	Processed int `json:"processed"`
}

// refundAuditDetail is what gets serialized into audit rows.
type refundAuditDetail struct {
	Result    string    `json:"result"`
	Attempt   int       `json:"attempt,omitempty"`
	Error     string    `json:"error,omitempty"`
	Amount    int64     `json:"amount,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
