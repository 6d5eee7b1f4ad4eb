package validation

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/halcyonlabs/agenttrust/internal/logging"
	"github.com/halcyonlabs/agenttrust/internal/security"
)

// EventEmitter publishes validation events.
type EventEmitter interface {
	EmitValidationSubmitted(v *Validation)
}

// Handler provides HTTP handlers for the validation registry API
type Handler struct {
	service *Service
	events  EventEmitter
}

// NewHandler creates a new validation handler
func NewHandler(service *Service, events EventEmitter) *Handler {
	return &Handler{service: service, events: events}
}

// RegisterRoutes sets up the validation routes
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/validations", h.SubmitValidation)
	r.GET("/validations/:id", h.GetValidation)

	r.GET("/agents/:id/validations", h.ListAgentValidations)
}

// SubmitValidation handles POST /validations
// No auth: any address may validate any agent.
func (h *Handler) SubmitValidation(c *gin.Context) {
	ctx := c.Request.Context()
	logger := logging.L(ctx)

	var req SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}

	if !security.IsValidEthAddress(req.ValidatorAddress) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_address",
			"message": "Validator address must be a valid Ethereum address",
		})
		return
	}

	v, err := h.service.Submit(ctx, *req.AgentID, req.ValidatorAddress, req.RequestHash,
		ResultCode(*req.ResultCode), req.EvidenceURI, req.Tag)
	if err != nil {
		switch {
		case errors.Is(err, ErrAgentNotFound):
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "not_found",
				"message": "Agent not found",
			})
		case errors.Is(err, ErrInvalidResultCode):
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_result_code",
				"message": "Result code must be 0 (pass), 1 (fail) or 2 (disputed)",
			})
		case errors.Is(err, ErrEmptyRequestHash):
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_request_hash",
				"message": "Request hash must be non-empty",
			})
		default:
			logger.Error("failed to submit validation", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{
				"error":   "internal_error",
				"message": "Failed to submit validation",
			})
		}
		return
	}

	logger.Info("validation submitted",
		"validation_id", v.ID,
		"agent_id", v.AgentID,
		"validator", v.ValidatorAddr,
		"result", v.ResultCode.String(),
	)

	if h.events != nil {
		h.events.EmitValidationSubmitted(v)
	}

	c.JSON(http.StatusCreated, v)
}

// GetValidation handles GET /validations/:id
func (h *Handler) GetValidation(c *gin.Context) {
	ctx := c.Request.Context()

	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	v, err := h.service.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrValidationNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "not_found",
				"message": "Validation not found",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to get validation",
		})
		return
	}

	c.JSON(http.StatusOK, v)
}

// ListAgentValidations handles GET /agents/:id/validations
func (h *Handler) ListAgentValidations(c *gin.Context) {
	ctx := c.Request.Context()

	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	entries, err := h.service.ListByAgent(ctx, id)
	if err != nil {
		if errors.Is(err, ErrAgentNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "not_found",
				"message": "Agent not found",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to list validations",
		})
		return
	}

	total := len(entries)
	entries = pageWindow(entries, parseIntQuery(c, "limit", 0), parseIntQuery(c, "offset", 0))

	c.JSON(http.StatusOK, gin.H{
		"validations": entries,
		"count":       total,
	})
}

// pageWindow applies an optional limit/offset window. limit 0 means
// everything, so unpaged callers see the full record.
func pageWindow(entries []*Validation, limit, offset int) []*Validation {
	if offset >= len(entries) {
		return []*Validation{}
	}
	entries = entries[offset:]
	if limit > 0 && limit < len(entries) {
		entries = entries[:limit]
	}
	return entries
}

func parseIntQuery(c *gin.Context, key string, defaultVal int) int {
	if val := c.Query(key); val != "" {
		var i int
		if _, err := fmt.Sscanf(val, "%d", &i); err == nil && i >= 0 {
			return i
		}
	}
	return defaultVal
}

func parseID(c *gin.Context, param string) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param(param), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_id",
			"message": "ID must be a non-negative integer",
		})
		return 0, false
	}
	return id, true
}
