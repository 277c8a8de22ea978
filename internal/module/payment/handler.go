package payment

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/clinio/server/internal/module/payment/gateway"
	apperrors "github.com/clinio/server/internal/shared/errors"
)

// Handler handles HTTP requests for payments.
type Handler struct {
	service *Service
	logger  *zap.Logger
}

// NewHandler creates a new payment handler.
func NewHandler(service *Service, logger *zap.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// RegisterRoutes registers the payment routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	payments := r.Group("/payments")
	{
		payments.POST("", h.CreatePayment)
		payments.GET("/:id", h.GetPayment)
	}
}

// CreatePayment starts a QR payment at the gateway.
func (h *Handler) CreatePayment(c *gin.Context) {
	var req CreatePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		appErr := apperrors.BadRequest(err.Error())
		c.JSON(appErr.StatusCode, appErr.ToResponse())
		return
	}

	resp, err := h.service.CreatePayment(c.Request.Context(), &req)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

// GetPayment returns a payment by internal id or gateway id.
func (h *Handler) GetPayment(c *gin.Context) {
	raw := c.Param("id")

	var (
		p   *Payment
		err error
	)
	if id, parseErr := uuid.Parse(raw); parseErr == nil {
		p, err = h.service.GetPayment(c.Request.Context(), id)
	} else {
		p, err = h.service.GetPaymentByGatewayID(c.Request.Context(), raw)
	}
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *Handler) handleError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrPaymentNotFound):
		appErr := apperrors.NotFound("payment")
		c.JSON(appErr.StatusCode, appErr.ToResponse())
	case errors.Is(err, ErrInvalidAmount):
		appErr := apperrors.BadRequest(err.Error())
		c.JSON(appErr.StatusCode, appErr.ToResponse())
	case errors.Is(err, gateway.ErrUnavailable):
		appErr := apperrors.Upstream("", err)
		c.JSON(appErr.StatusCode, appErr.ToResponse())
	case errors.Is(err, ErrMissingCredentials):
		appErr := apperrors.Internal("payment gateway not configured", err)
		c.JSON(appErr.StatusCode, appErr.ToResponse())
	default:
		h.logger.Error("payment request failed", zap.Error(err))
		appErr := apperrors.Internal("payment operation failed", err)
		c.JSON(appErr.StatusCode, appErr.ToResponse())
	}
}
