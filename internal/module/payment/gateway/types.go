package gateway

import "time"

// Provider payment statuses. These are the gateway's vocabulary, not ours;
// mapping to internal state happens in the payment service.
const (
	StatusApproved    = "approved"
	StatusAuthorized  = "authorized"
	StatusInProcess   = "in_process"
	StatusRejected    = "rejected"
	StatusCancelled   = "cancelled"
	StatusRefunded    = "refunded"
	StatusChargedBack = "charged_back"
)

// Payment is the authoritative payment record as reported by the gateway.
type Payment struct {
	ID                int64      `json:"id"`
	Status            string     `json:"status"`
	StatusDetail      string     `json:"status_detail"`
	ExternalReference string     `json:"external_reference"`
	TransactionAmount float64    `json:"transaction_amount"`
	CurrencyID        string     `json:"currency_id"`
	PayerEmail        string     `json:"-"`
	DateCreated       *time.Time `json:"date_created,omitempty"`
	DateApproved      *time.Time `json:"date_approved,omitempty"`

	Payer struct {
		Email string `json:"email"`
	} `json:"payer"`
}

// AmountCents converts the gateway's decimal amount to integer cents.
func (p *Payment) AmountCents() int64 {
	return int64(p.TransactionAmount*100 + 0.5)
}

// CreatePaymentRequest is the body for creating a QR payment at the gateway.
type CreatePaymentRequest struct {
	TransactionAmount float64 `json:"transaction_amount"`
	Description       string  `json:"description"`
	PaymentMethodID   string  `json:"payment_method_id"`
	ExternalReference string  `json:"external_reference"`
	NotificationURL   string  `json:"notification_url,omitempty"`
	Payer             struct {
		Email     string `json:"email"`
		FirstName string `json:"first_name,omitempty"`
		LastName  string `json:"last_name,omitempty"`
	} `json:"payer"`
}

// CreatePaymentResponse is the gateway's reply for a created payment,
// including the QR data for instant-payment methods.
type CreatePaymentResponse struct {
	ID                int64  `json:"id"`
	Status            string `json:"status"`
	ExternalReference string `json:"external_reference"`

	PointOfInteraction struct {
		TransactionData struct {
			QRCode       string `json:"qr_code"`
			QRCodeBase64 string `json:"qr_code_base64"`
			TicketURL    string `json:"ticket_url"`
		} `json:"transaction_data"`
	} `json:"point_of_interaction"`
}

// WebhookNotification is the push body the gateway sends to our webhook.
type WebhookNotification struct {
	Type string `json:"type"`
	Data struct {
		ID string `json:"id"`
	} `json:"data"`
}
