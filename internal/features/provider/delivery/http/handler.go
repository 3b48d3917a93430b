package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"proof-contrib-backend/internal/features/provider/models"
	"proof-contrib-backend/internal/features/provider/registry"
)

type Handler struct {
	registry *registry.Registry
}

func NewHandler(registry *registry.Registry) *Handler {
	return &Handler{registry: registry}
}

func (h *Handler) RegisterRoutes(router *gin.RouterGroup) {
	router.GET("/providers", h.List)
}

// @Summary List providers
// @Description Catalog of providers available for verification
// @Tags providers
// @Produce json
// @Success 200 {array} models.ProviderResponse
// @Router /providers [get]
func (h *Handler) List(c *gin.Context) {
	all := h.registry.All()
	out := make([]models.ProviderResponse, 0, len(all))
	for _, s := range all {
		out = append(out, models.NewProviderResponse(s))
	}
	c.JSON(http.StatusOK, out)
}
