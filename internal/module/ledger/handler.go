package ledger

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	apperrors "github.com/clinio/server/internal/shared/errors"
)

// Handler handles HTTP requests for the ledger.
type Handler struct {
	service *Service
	logger  *zap.Logger
}

// NewHandler creates a new ledger handler.
func NewHandler(service *Service, logger *zap.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// RegisterRoutes registers the ledger routes. Writing entries is admin-only;
// balances and transaction reads are open to finance as well.
func (h *Handler) RegisterRoutes(admin, finance *gin.RouterGroup) {
	admin.POST("/ledger/entries", h.WriteEntries)
	finance.GET("/ledger/balances", h.GetBalances)
	finance.GET("/ledger/transactions/:id", h.GetTransaction)
}

// WriteEntries posts a balanced batch of ledger entries.
func (h *Handler) WriteEntries(c *gin.Context) {
	var req WriteEntriesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		appErr := apperrors.BadRequest(err.Error())
		c.JSON(appErr.StatusCode, appErr.ToResponse())
		return
	}

	inputs := make([]EntryInput, len(req.Entries))
	for i, e := range req.Entries {
		inputs[i] = EntryInput{
			AccountCode: AccountCode(e.AccountCode),
			EntryType:   EntryType(e.EntryType),
			Amount:      e.Amount,
			Description: e.Description,
			Metadata:    e.Metadata,
		}
	}

	var err error
	if req.Correction {
		err = h.service.WriteCorrection(c.Request.Context(), req.TransactionID, inputs)
	} else {
		err = h.service.Write(c.Request.Context(), req.TransactionID, inputs)
	}
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusCreated, WriteEntriesResponse{
		TransactionID: req.TransactionID,
		Entries:       len(inputs),
	})
}

// GetBalances returns the per-account balances.
func (h *Handler) GetBalances(c *gin.Context) {
	balances, err := h.service.Balances(c.Request.Context())
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, BalancesResponse{Balances: balances})
}

// GetTransaction returns the entries posted under a transaction id.
func (h *Handler) GetTransaction(c *gin.Context) {
	id := c.Param("id")
	entries, err := h.service.GetTransaction(c.Request.Context(), id)
	if err != nil {
		h.handleError(c, err)
		return
	}
	if len(entries) == 0 {
		appErr := apperrors.NotFound("ledger transaction")
		c.JSON(appErr.StatusCode, appErr.ToResponse())
		return
	}
	c.JSON(http.StatusOK, gin.H{"transaction_id": id, "entries": entries})
}

func (h *Handler) handleError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrEmptyBatch),
		errors.Is(err, ErrUnbalanced),
		errors.Is(err, ErrInvalidAccount),
		errors.Is(err, ErrInvalidEntryType),
		errors.Is(err, ErrNonPositiveAmount):
		appErr := apperrors.BadRequest(err.Error())
		c.JSON(appErr.StatusCode, appErr.ToResponse())
	case errors.Is(err, ErrDuplicateTransaction):
		appErr := apperrors.Conflict(err.Error())
		c.JSON(appErr.StatusCode, appErr.ToResponse())
	default:
		h.logger.Error("ledger request failed", zap.Error(err))
		appErr := apperrors.Internal("ledger operation failed", err)
		c.JSON(appErr.StatusCode, appErr.ToResponse())
	}
}
