package reputation

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/halcyonlabs/agenttrust/internal/auth"
	"github.com/halcyonlabs/agenttrust/internal/ethsig"
	"github.com/halcyonlabs/agenttrust/internal/logging"
	"github.com/halcyonlabs/agenttrust/internal/metrics"
)

// EventEmitter publishes feedback lifecycle events.
type EventEmitter interface {
	EmitFeedbackSubmitted(fb *Feedback)
	EmitFeedbackRevoked(fb *Feedback)
}

// Handler provides HTTP handlers for the feedback registry API
type Handler struct {
	service *Service
	events  EventEmitter
}

// NewHandler creates a new reputation handler
func NewHandler(service *Service, events EventEmitter) *Handler {
	return &Handler{service: service, events: events}
}

// RegisterRoutes sets up the feedback routes
func (h *Handler) RegisterRoutes(r *gin.RouterGroup, mgr *auth.Manager) {
	r.POST("/feedback", auth.RequireAuth(mgr), h.SubmitFeedback)
	r.GET("/feedback/:id", h.GetFeedback)
	r.POST("/feedback/:id/revoke", auth.RequireAuth(mgr), h.RevokeFeedback)

	r.GET("/agents/:id/feedback", h.ListAgentFeedback)
}

// SubmitFeedback handles POST /feedback
// The caller's ownership token resolves to the client identity; the body
// carries the server's signed grant.
func (h *Handler) SubmitFeedback(c *gin.Context) {
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

	cap, ok := auth.GetCapability(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{
			"error":   "client_not_registered",
			"message": "Feedback submission requires a registered client identity",
		})
		return
	}

	sig, err := ethsig.ParseSignatureHex(req.Signature)
	if err != nil {
		metrics.SignatureFailuresTotal.Inc()
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_signature",
			"message": "Signature must be 65 bytes of hex (r, s, v)",
		})
		return
	}

	fb, err := h.service.Submit(ctx, *req.ServerID, cap.IdentityID, req.DataHash, req.FeedbackURI, sig)
	if err != nil {
		switch {
		case errors.Is(err, ErrServerNotFound):
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "not_found",
				"message": "Server identity not found",
			})
		case errors.Is(err, ErrClientNotRegistered):
			c.JSON(http.StatusForbidden, gin.H{
				"error":   "client_not_registered",
				"message": "Client identity is not registered",
			})
		case errors.Is(err, ErrEmptyDataHash):
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_data_hash",
				"message": "Data hash must be non-empty",
			})
		case errors.Is(err, ethsig.ErrWrongSigner):
			metrics.SignatureFailuresTotal.Inc()
			c.JSON(http.StatusForbidden, gin.H{
				"error":   "wrong_signer",
				"message": "Signature was not produced by the server identity's owner",
			})
		case errors.Is(err, ethsig.ErrInvalidSignature), errors.Is(err, ethsig.ErrInvalidSignatureLength):
			metrics.SignatureFailuresTotal.Inc()
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_signature",
				"message": "Signature could not be verified",
			})
		default:
			logger.Error("failed to submit feedback", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{
				"error":   "internal_error",
				"message": "Failed to submit feedback",
			})
		}
		return
	}

	logger.Info("feedback submitted",
		"feedback_id", fb.ID,
		"server_id", fb.ServerID,
		"client_id", fb.ClientID,
	)

	if h.events != nil {
		h.events.EmitFeedbackSubmitted(fb)
	}

	c.JSON(http.StatusCreated, fb)
}

// GetFeedback handles GET /feedback/:id
func (h *Handler) GetFeedback(c *gin.Context) {
	ctx := c.Request.Context()

	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	fb, err := h.service.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrFeedbackNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "not_found",
				"message": "Feedback not found",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to get feedback",
		})
		return
	}

	c.JSON(http.StatusOK, fb)
}

// RevokeFeedback handles POST /feedback/:id/revoke
// The caller must hold the ownership token of the client identity that
// authored the entry.
func (h *Handler) RevokeFeedback(c *gin.Context) {
	ctx := c.Request.Context()
	logger := logging.L(ctx)

	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	caller := auth.CallerAddress(c)

	fb, err := h.service.Revoke(ctx, id, caller)
	if err != nil {
		switch {
		case errors.Is(err, ErrFeedbackNotFound):
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "not_found",
				"message": "Feedback not found",
			})
		case errors.Is(err, ErrNotFeedbackAuthor):
			c.JSON(http.StatusForbidden, gin.H{
				"error":   "forbidden",
				"message": "Only the authoring client may revoke feedback",
			})
		case errors.Is(err, ErrAlreadyRevoked):
			c.JSON(http.StatusConflict, gin.H{
				"error":   "already_revoked",
				"message": "Feedback is already revoked",
			})
		default:
			logger.Error("failed to revoke feedback", "error", err, "feedback_id", id)
			c.JSON(http.StatusInternalServerError, gin.H{
				"error":   "internal_error",
				"message": "Failed to revoke feedback",
			})
		}
		return
	}

	logger.Info("feedback revoked", "feedback_id", fb.ID, "client_id", fb.ClientID)

	if h.events != nil {
		h.events.EmitFeedbackRevoked(fb)
	}

	c.JSON(http.StatusOK, fb)
}

// ListAgentFeedback handles GET /agents/:id/feedback
// Returns every entry about the agent, revoked ones included; consumers
// decide how to weigh tombstones.
func (h *Handler) ListAgentFeedback(c *gin.Context) {
	ctx := c.Request.Context()

	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	entries, err := h.service.ListByServer(ctx, id)
	if err != nil {
		if errors.Is(err, ErrServerNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "not_found",
				"message": "Agent not found",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to list feedback",
		})
		return
	}

	total := len(entries)
	entries = pageWindow(entries, parseIntQuery(c, "limit", 0), parseIntQuery(c, "offset", 0))

	c.JSON(http.StatusOK, gin.H{
		"feedback": entries,
		"count":    total,
	})
}

// pageWindow applies an optional limit/offset window. limit 0 means
// everything, so unpaged callers see the full history.
func pageWindow(entries []*Feedback, limit, offset int) []*Feedback {
	if offset >= len(entries) {
		return []*Feedback{}
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
