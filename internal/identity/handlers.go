package identity

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/halcyonlabs/agenttrust/internal/auth"
	"github.com/halcyonlabs/agenttrust/internal/logging"
	"github.com/halcyonlabs/agenttrust/internal/security"
	"github.com/halcyonlabs/agenttrust/internal/traces"
)

// EventEmitter publishes identity lifecycle events to interested listeners.
// Implementations must be non-blocking.
type EventEmitter interface {
	EmitAgentRegistered(agent *Identity)
	EmitCardUpdated(agent *Identity)
}

// Handler provides HTTP handlers for the identity registry API
type Handler struct {
	store  Store
	tokens *auth.Manager
	events EventEmitter
}

// NewHandler creates a new identity handler
func NewHandler(store Store, tokens *auth.Manager, events EventEmitter) *Handler {
	return &Handler{store: store, tokens: tokens, events: events}
}

// RegisterRoutes sets up the identity routes
func (h *Handler) RegisterRoutes(r *gin.RouterGroup, mgr *auth.Manager) {
	r.POST("/agents", h.RegisterAgent)
	r.GET("/agents", h.ListAgents)
	r.GET("/agents/:id", h.GetAgent)
	r.PUT("/agents/:id/card", auth.RequireAuth(mgr), h.UpdateCard)

	r.GET("/owners/:address", h.GetOwnerStatus)
}

// RegisterResponse is returned from a successful registration.
// OwnershipToken is the bearer capability for the new identity and is
// never shown again.
type RegisterResponse struct {
	Agent          *Identity `json:"agent"`
	OwnershipToken string    `json:"ownershipToken"`
}

// RegisterAgent handles POST /agents
func (h *Handler) RegisterAgent(c *gin.Context) {
	ctx := c.Request.Context()
	logger := logging.L(ctx)

	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}

	if !security.IsValidEthAddress(req.Address) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_address",
			"message": "Address must be a valid Ethereum address",
		})
		return
	}

	if req.CardURI != "" && !isValidURI(req.CardURI) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_card_uri",
			"message": "Card URI must be a valid URI",
		})
		return
	}

	ctx, span := traces.StartSpan(ctx, "identity.Register", traces.OwnerAddr(req.Address))
	defer span.End()

	agent, err := h.store.Register(ctx, req.Address, req.Domain, req.CardURI)
	if err != nil {
		if errors.Is(err, ErrAlreadyRegistered) {
			c.JSON(http.StatusConflict, gin.H{
				"error":   "already_registered",
				"message": "This address already holds an identity",
			})
			return
		}
		if errors.Is(err, ErrEmptyDomain) {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_domain",
				"message": "Domain must be non-empty",
			})
			return
		}
		logger.Error("failed to register agent", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to register agent",
		})
		return
	}

	rawToken, _, err := h.tokens.Issue(ctx, agent.OwnerAddress, agent.ID)
	if err != nil {
		logger.Error("failed to issue ownership token", "error", err, "agent_id", agent.ID)
		// Unwind the registration: an identity without its token could
		// never be owned, and the address would be locked out for good.
		if rmErr := h.store.Remove(ctx, agent.ID); rmErr != nil {
			logger.Error("failed to unwind registration", "error", rmErr, "agent_id", agent.ID)
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to issue ownership token",
		})
		return
	}

	logger.Info("agent registered",
		"agent_id", agent.ID,
		"owner", agent.OwnerAddress,
		"domain", agent.Domain,
	)

	if h.events != nil {
		h.events.EmitAgentRegistered(agent)
	}

	c.JSON(http.StatusCreated, RegisterResponse{
		Agent:          agent,
		OwnershipToken: rawToken,
	})
}

// GetAgent handles GET /agents/:id
func (h *Handler) GetAgent(c *gin.Context) {
	ctx := c.Request.Context()

	id, ok := parseAgentID(c)
	if !ok {
		return
	}

	agent, err := h.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrIdentityNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "not_found",
				"message": "Agent not found",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to get agent",
		})
		return
	}

	c.JSON(http.StatusOK, agent)
}

// ListAgents handles GET /agents
func (h *Handler) ListAgents(c *gin.Context) {
	ctx := c.Request.Context()

	limit := parseIntQuery(c, "limit", 100)
	offset := parseIntQuery(c, "offset", 0)

	agents, err := h.store.List(ctx, limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to list agents",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"agents": agents,
		"count":  len(agents),
	})
}

// UpdateCard handles PUT /agents/:id/card
// The caller must present the ownership token for the identity.
func (h *Handler) UpdateCard(c *gin.Context) {
	ctx := c.Request.Context()
	logger := logging.L(ctx)

	id, ok := parseAgentID(c)
	if !ok {
		return
	}

	var req UpdateCardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}

	if !isValidURI(req.CardURI) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_card_uri",
			"message": "Card URI must be a valid URI",
		})
		return
	}

	caller := auth.CallerAddress(c)

	ctx, span := traces.StartSpan(ctx, "identity.UpdateCard", traces.AgentID(id))
	defer span.End()

	agent, err := h.store.UpdateCard(ctx, id, caller, req.CardURI)
	if err != nil {
		switch {
		case errors.Is(err, ErrIdentityNotFound):
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "not_found",
				"message": "Agent not found",
			})
		case errors.Is(err, ErrNotOwner):
			c.JSON(http.StatusForbidden, gin.H{
				"error":   "forbidden",
				"message": "Only the identity owner may update the card",
			})
		case errors.Is(err, ErrIdentityInactive):
			c.JSON(http.StatusConflict, gin.H{
				"error":   "inactive",
				"message": "Identity is not active",
			})
		default:
			logger.Error("failed to update card", "error", err, "agent_id", id)
			c.JSON(http.StatusInternalServerError, gin.H{
				"error":   "internal_error",
				"message": "Failed to update card",
			})
		}
		return
	}

	logger.Info("agent card updated", "agent_id", id, "card_uri", req.CardURI)

	if h.events != nil {
		h.events.EmitCardUpdated(agent)
	}

	c.JSON(http.StatusOK, agent)
}

// GetOwnerStatus handles GET /owners/:address
// Reports whether an address holds an identity, and which one.
func (h *Handler) GetOwnerStatus(c *gin.Context) {
	ctx := c.Request.Context()
	address := c.Param("address")

	if !security.IsValidEthAddress(address) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_address",
			"message": "Address must be a valid Ethereum address",
		})
		return
	}

	status := RegistrationStatus{Address: address}

	agent, err := h.store.ByOwner(ctx, address)
	if err == nil {
		status.Registered = true
		status.IdentityID = &agent.ID
	} else if !errors.Is(err, ErrIdentityNotFound) {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to check registration",
		})
		return
	}

	c.JSON(http.StatusOK, status)
}

// -----------------------------------------------------------------------------
// Helpers
// -----------------------------------------------------------------------------

// parseAgentID reads the :id path param. Writes the error response itself
// so callers can just bail out.
func parseAgentID(c *gin.Context) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_id",
			"message": "Agent ID must be a non-negative integer",
		})
		return 0, false
	}
	return id, true
}

func isValidURI(s string) bool {
	u, err := url.Parse(s)
	return err == nil && u.Scheme != ""
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
