package container

import (
	"github.com/gin-gonic/gin"

	"github.com/mealbridge/dispatch-api/internal/service/telemetry"
	"github.com/mealbridge/dispatch-api/pkg/errors"
	"github.com/mealbridge/dispatch-api/pkg/httputil"
)

type Handler struct {
	telemetry *telemetry.Service
}

func NewHandler(telemetry *telemetry.Service) *Handler {
	return &Handler{telemetry: telemetry}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	containers := r.Group("/containers")
	{
		containers.GET("/:id/telemetry", h.GetLatestTelemetry)
	}
}

// GetLatestTelemetry returns the most recent reading a container has
// reported. Container IDs are device identifiers, not UUIDs.
func (h *Handler) GetLatestTelemetry(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		httputil.RespondWithError(c, errors.InvalidArgument("container ID is required", nil))
		return
	}

	sample, err := h.telemetry.LatestSample(c.Request.Context(), id)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, sample)
}
