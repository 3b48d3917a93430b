package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "proof-contrib-backend/internal/common/errors"
	"proof-contrib-backend/internal/common/middleware"
	"proof-contrib-backend/internal/features/verification/session"
)

type Handler struct {
	sessions *session.Service
}

func NewHandler(sessions *session.Service) *Handler {
	return &Handler{sessions: sessions}
}

func (h *Handler) RegisterRoutes(router *gin.RouterGroup) {
	v := router.Group("/verification")
	v.Use(middleware.RequireAuth())
	{
		v.POST("/start", h.Start)
		v.GET("/status", h.Status)
		v.POST("/cancel", h.Cancel)
		v.POST("/visibility", h.Visibility)
		v.POST("/recover", h.Recover)
	}
}

type startRequest struct {
	ProviderID string `json:"provider_id" binding:"required"`
	Wallet     string `json:"wallet"`
}

type visibilityRequest struct {
	Visible *bool `json:"visible" binding:"required"`
}

type recoverRequest struct {
	Fragment string `json:"fragment" binding:"required"`
	Wallet   string `json:"wallet"`
}

// @Summary Start verification
// @Description Starts a verification session for a provider. One session per user; the previous one must finish or be cancelled first.
// @Tags verification
// @Accept json
// @Produce json
// @Security TelegramInitData
// @Param request body startRequest true "Provider to verify"
// @Success 200 {object} models.SessionView "Session with request URL to render"
// @Failure 404 {object} middleware.ErrorResponse "Unknown provider"
// @Failure 409 {object} middleware.ErrorResponse "Session already in flight"
// @Router /verification/start [post]
func (h *Handler) Start(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	var req startRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(apperrors.NewValidationError("body", err.Error()))
		return
	}

	view, err := h.sessions.Start(c.Request.Context(), userID, req.ProviderID, req.Wallet)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, view)
}

// @Summary Session status
// @Description Current (or last terminal) verification session for the user. The UI polls this while awaiting the proof.
// @Tags verification
// @Produce json
// @Security TelegramInitData
// @Success 200 {object} models.SessionView
// @Failure 404 {object} middleware.ErrorResponse "No session in flight"
// @Router /verification/status [get]
func (h *Handler) Status(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	view, err := h.sessions.Status(userID)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, view)
}

// @Summary Cancel verification
// @Description Moves the current session to a terminal cancelled state. A proof arriving later is discarded.
// @Tags verification
// @Produce json
// @Security TelegramInitData
// @Success 200 {object} map[string]bool
// @Failure 404 {object} middleware.ErrorResponse "No session in flight"
// @Router /verification/cancel [post]
func (h *Handler) Cancel(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	if err := h.sessions.Cancel(userID); err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

// @Summary Report tab visibility
// @Description Tells the backend whether the verification page is foregrounded. SDK errors that fire while the tab is hidden are held back for a grace window, since backgrounding is routine on mobile.
// @Tags verification
// @Accept json
// @Produce json
// @Security TelegramInitData
// @Param request body visibilityRequest true "Page visibility"
// @Success 200 {object} map[string]bool
// @Failure 404 {object} middleware.ErrorResponse "No session in flight"
// @Router /verification/visibility [post]
func (h *Handler) Visibility(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	var req visibilityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(apperrors.NewValidationError("body", err.Error()))
		return
	}

	if err := h.sessions.SetVisibility(userID, *req.Visible); err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

// @Summary Recover redirected proof
// @Description Consumes a URL fragment left by a full-page redirect (#reclaim_proof= / #reclaim_error=) after the verification page reloaded. Provider identity is reconstructed from hints inside the proof.
// @Tags verification
// @Accept json
// @Produce json
// @Security TelegramInitData
// @Param request body recoverRequest true "Redirect fragment"
// @Success 200 {object} models.SessionView "Terminal view for the recovered attempt"
// @Failure 400 {object} middleware.ErrorResponse "Fragment not parseable"
// @Failure 422 {object} middleware.ErrorResponse "Recovered proof unusable"
// @Router /verification/recover [post]
func (h *Handler) Recover(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	var req recoverRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(apperrors.NewValidationError("body", err.Error()))
		return
	}

	view, err := h.sessions.Recover(c.Request.Context(), userID, req.Fragment, req.Wallet)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, view)
}
