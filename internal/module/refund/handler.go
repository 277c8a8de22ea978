package refund

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/clinio/server/internal/module/payment"
	apperrors "github.com/clinio/server/internal/shared/errors"
	"github.com/clinio/server/internal/utils/middleware"
)

// Handler handles HTTP requests for refunds.
type Handler struct {
	service    *Service
	dispatcher *Dispatcher
	// bcrypt hash of the cron token; empty disables the token path.
	cronTokenHash string
	logger        *zap.Logger
}

// NewHandler creates a new refund handler.
func NewHandler(service *Service, dispatcher *Dispatcher, cronTokenHash string, logger *zap.Logger) *Handler {
	return &Handler{
		service:       service,
		dispatcher:    dispatcher,
		cronTokenHash: cronTokenHash,
		logger:        logger,
	}
}

// RegisterRoutes registers the refund routes. Role middleware is applied by
// the router in app wiring; the dispatch route accepts either an operator
// JWT or the cron token, so it registers outside the role-guarded group.
func (h *Handler) RegisterRoutes(guarded, overview, open *gin.RouterGroup) {
	guarded.POST("/refunds", h.CreateRefund)
	overview.POST("/refunds/overview", h.Overview)
	open.POST("/refunds/dispatch", h.Dispatch)
}

// CreateRefund processes a manual refund with proof evidence.
func (h *Handler) CreateRefund(c *gin.Context) {
	operatorID := middleware.GetOperatorID(c)

	var req CreateRefundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		appErr := apperrors.BadRequest(err.Error())
		c.JSON(appErr.StatusCode, appErr.ToResponse())
		return
	}

	resp, err := h.service.Create(c.Request.Context(), operatorID, &req)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

// Overview returns refund state for a set of payments.
func (h *Handler) Overview(c *gin.Context) {
	var req OverviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		appErr := apperrors.BadRequest(err.Error())
		c.JSON(appErr.StatusCode, appErr.ToResponse())
		return
	}

	resp, err := h.service.Overview(c.Request.Context(), req.PaymentIDs)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Dispatch triggers a notification dispatch run. Callers authenticate with
// either the cron token header or an operator JWT.
func (h *Handler) Dispatch(c *gin.Context) {
	if !h.dispatchAuthorized(c) {
		appErr := apperrors.Unauthorized("cron token or operator token required")
		c.JSON(appErr.StatusCode, appErr.ToResponse())
		return
	}

	// Every body field is optional; a bare cron trigger sends no body at all.
	var req DispatchRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			appErr := apperrors.BadRequest(err.Error())
			c.JSON(appErr.StatusCode, appErr.ToResponse())
			return
		}
	}

	result, err := h.dispatcher.Dispatch(c.Request.Context(), &req)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *Handler) dispatchAuthorized(c *gin.Context) bool {
	if token := c.GetHeader("X-Cron-Token"); token != "" && h.cronTokenHash != "" {
		if bcrypt.CompareHashAndPassword([]byte(h.cronTokenHash), []byte(token)) == nil {
			return true
		}
		h.logger.Warn("dispatch called with invalid cron token",
			zap.String("remote_addr", c.ClientIP()),
		)
		return false
	}
	return middleware.IsAuthenticated(c)
}

func (h *Handler) handleError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrChecksumMismatch),
		errors.Is(err, ErrEmptyProof),
		errors.Is(err, ErrInvalidAmount),
		errors.Is(err, ErrAmountExceedsRemaining),
		errors.Is(err, ErrPaymentNotSettled),
		errors.Is(err, ErrCurrencyMismatch):
		appErr := apperrors.BadRequest(err.Error())
		c.JSON(appErr.StatusCode, appErr.ToResponse())
	case errors.Is(err, payment.ErrPaymentNotFound):
		appErr := apperrors.NotFound("payment")
		c.JSON(appErr.StatusCode, appErr.ToResponse())
	case errors.Is(err, ErrRefundNotFound), errors.Is(err, ErrNotificationNotFound):
		appErr := apperrors.NotFound("refund")
		c.JSON(appErr.StatusCode, appErr.ToResponse())
	default:
		h.logger.Error("refund request failed", zap.Error(err))
		appErr := apperrors.Internal("refund operation failed", err)
		c.JSON(appErr.StatusCode, appErr.ToResponse())
	}
}
