package booking

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	apperrors "github.com/clinio/server/internal/shared/errors"
	"github.com/clinio/server/internal/utils/middleware"
)

// Handler handles HTTP requests for bookings.
type Handler struct {
	service    *Service
	authorizer *middleware.RoleAuthorizer
	logger     *zap.Logger
}

// NewHandler creates a new booking handler.
func NewHandler(service *Service, authorizer *middleware.RoleAuthorizer, logger *zap.Logger) *Handler {
	return &Handler{service: service, authorizer: authorizer, logger: logger}
}

// RegisterRoutes registers the booking routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	bookings := r.Group("/bookings")
	{
		bookings.GET("/:id", h.GetBooking)
		bookings.POST("/:id/cancel", h.CancelBooking)
	}
}

// GetBooking returns a booking by id.
func (h *Handler) GetBooking(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		appErr := apperrors.BadRequest("invalid booking id")
		c.JSON(appErr.StatusCode, appErr.ToResponse())
		return
	}

	b, err := h.service.GetBooking(c.Request.Context(), id)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

// CancelBooking cancels a booking, applying the financial-credit rule.
func (h *Handler) CancelBooking(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		appErr := apperrors.BadRequest("invalid booking id")
		c.JSON(appErr.StatusCode, appErr.ToResponse())
		return
	}

	byAdmin := h.authorizer.HasAny(middleware.GetEmail(c), middleware.RoleAdmin)
	result, err := h.service.Cancel(c.Request.Context(), id, byAdmin)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *Handler) handleError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrRegistrationNotFound):
		appErr := apperrors.NotFound("booking")
		c.JSON(appErr.StatusCode, appErr.ToResponse())
	case errors.Is(err, ErrAlreadyCancelled):
		appErr := apperrors.Conflict(err.Error())
		c.JSON(appErr.StatusCode, appErr.ToResponse())
	default:
		h.logger.Error("booking request failed", zap.Error(err))
		appErr := apperrors.Internal("booking operation failed", err)
		c.JSON(appErr.StatusCode, appErr.ToResponse())
	}
}
