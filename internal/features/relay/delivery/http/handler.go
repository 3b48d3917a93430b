package http

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "proof-contrib-backend/internal/common/errors"
	"proof-contrib-backend/internal/features/relay/models"
	"proof-contrib-backend/internal/features/relay/service"
)

type Handler struct {
	service *service.Service
}

func NewHandler(service *service.Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes mounts the relay endpoints. The callback is called by
// the attestation service, not by our clients, so it sits outside the
// identity middleware.
func (h *Handler) RegisterRoutes(router *gin.RouterGroup) {
	relay := router.Group("/relay")
	{
		relay.POST("/callback", h.Callback)
		relay.GET("/proof/:sessionId", h.Proof)
	}
}

// @Summary Receive attestation callback
// @Description Out-of-band proof delivery from the attestation service, keyed by session
// @Tags relay
// @Accept json
// @Produce json
// @Param session query string true "Verification session id"
// @Success 200 {object} models.CallbackResponse
// @Failure 400 {object} models.CallbackResponse "Invalid callback"
// @Router /relay/callback [post]
func (h *Handler) Callback(c *gin.Context) {
	sessionID := c.Query("session")

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, 4<<20))
	if err != nil {
		c.JSON(http.StatusBadRequest, models.CallbackResponse{Success: false, Message: "unreadable body"})
		return
	}

	if err := h.service.AcceptCallback(c.Request.Context(), sessionID, body); err != nil {
		status := http.StatusBadRequest
		if appErr, ok := apperrors.AsAppError(err); ok && appErr.IsInternal() {
			status = http.StatusInternalServerError
		}
		c.JSON(status, models.CallbackResponse{Success: false, Message: err.Error()})
		return
	}

	c.JSON(http.StatusOK, models.CallbackResponse{Success: true})
}

// @Summary Fetch stored proof
// @Description Returns the proof delivered for a session, if any has landed. A non-success answer means "not yet".
// @Tags relay
// @Produce json
// @Param sessionId path string true "Verification session id"
// @Success 200 {object} models.ProofResponse
// @Failure 404 {object} models.ProofResponse "No proof stored yet"
// @Router /relay/proof/{sessionId} [get]
func (h *Handler) Proof(c *gin.Context) {
	proof, err := h.service.Proof(c.Request.Context(), c.Param("sessionId"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ProofResponse{Success: false})
		return
	}
	if proof == nil {
		c.JSON(http.StatusNotFound, models.ProofResponse{Success: false})
		return
	}
	c.JSON(http.StatusOK, models.ProofResponse{Success: true, Proof: proof})
}
