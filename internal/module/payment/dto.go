package payment

import "github.com/google/uuid"

// CreatePaymentRequest is the request body for starting a QR payment.
type CreatePaymentRequest struct {
	Amount            int64  `json:"amount" binding:"required"`
	Currency          string `json:"currency"`
	Description       string `json:"description"`
	ExternalReference string `json:"external_reference" binding:"required"`
	PayerEmail        string `json:"payer_email" binding:"required,email"`
	PayerFirstName    string `json:"payer_first_name"`
	PayerLastName     string `json:"payer_last_name"`
}

// CreatePaymentResponse is returned after the gateway accepted the payment.
type CreatePaymentResponse struct {
	ID               uuid.UUID      `json:"id"`
	GatewayPaymentID string         `json:"gateway_payment_id"`
	Status           ProviderStatus `json:"status"`
	QRCode           string         `json:"qr_code,omitempty"`
	QRCodeBase64     string         `json:"qr_code_base64,omitempty"`
	TicketURL        string         `json:"ticket_url,omitempty"`
}

// WebhookResult is what webhook processing reports back to the handler.
type WebhookResult struct {
	LogID    uuid.UUID
	Outcome  WebhookLogStatus
	Verified bool
}
