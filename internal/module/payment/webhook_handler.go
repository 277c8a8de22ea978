package payment

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/clinio/server/internal/module/payment/gateway"
)

const maxWebhookBody = 1 << 20

// WebhookHandler receives gateway push notifications.
type WebhookHandler struct {
	service *Service
	logger  *zap.Logger
}

// NewWebhookHandler creates a new webhook handler.
func NewWebhookHandler(service *Service, logger *zap.Logger) *WebhookHandler {
	return &WebhookHandler{service: service, logger: logger}
}

// RegisterRoutes registers the webhook route. It sits outside the /api/v1
// group: the gateway calls it directly and it carries no operator auth.
func (h *WebhookHandler) RegisterRoutes(r *gin.Engine) {
	r.POST("/webhook", h.HandleWebhook)
}

// HandleWebhook processes a gateway notification.
//
// Response codes follow the gateway's retry contract: 200 stops retries, so
// it is returned for everything we can act on later from our own logs,
// including internal processing failures. Non-200 is reserved for requests
// we genuinely want re-delivered (reconciliation outage) or that can never
// succeed (malformed body).
func (h *WebhookHandler) HandleWebhook(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
		return
	}

	var notification gateway.WebhookNotification
	if err := json.Unmarshal(body, &notification); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed notification"})
		return
	}
	if notification.Type == "payment" && notification.Data.ID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing data.id"})
		return
	}

	requestID := c.GetHeader("x-request-id")
	signature := c.GetHeader("x-signature")

	result, err := h.service.ProcessNotification(c.Request.Context(), requestID, signature, body, &notification)
	if err != nil {
		switch {
		case errors.Is(err, ErrMalformedNotification):
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid signature"})
		case errors.Is(err, ErrMissingCredentials):
			c.JSON(http.StatusInternalServerError, gin.H{"error": "gateway not configured"})
		case errors.Is(err, ErrReconciliation):
			// The gateway will retry; by then the provider may be reachable.
			c.JSON(http.StatusBadGateway, gin.H{"error": "reconciliation failed"})
		default:
			// Internal failure: retrying the same notification will not fix
			// it, so acknowledge and leave the webhook log for operators.
			h.logger.Error("webhook processing failed",
				zap.String("request_id", requestID),
				zap.Error(err),
			)
			c.JSON(http.StatusOK, gin.H{"status": "error recorded"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": string(result.Outcome)})
}
