package delivery

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/mealbridge/dispatch-api/internal/middleware"
	"github.com/mealbridge/dispatch-api/internal/model"
	"github.com/mealbridge/dispatch-api/internal/service/audit"
	deliverysvc "github.com/mealbridge/dispatch-api/internal/service/delivery"
	"github.com/mealbridge/dispatch-api/internal/service/handoff"
	"github.com/mealbridge/dispatch-api/pkg/errors"
	"github.com/mealbridge/dispatch-api/pkg/httputil"
)

type Handler struct {
	lifecycle *deliverysvc.Service
	handoff   *handoff.Service
	auditor   *audit.Service
}

func NewHandler(lifecycle *deliverysvc.Service, handoff *handoff.Service, auditor *audit.Service) *Handler {
	return &Handler{
		lifecycle: lifecycle,
		handoff:   handoff,
		auditor:   auditor,
	}
}

// RegisterRoutes mounts the delivery surface. The otpLimited group
// carries its own tighter rate bucket; brute-forcing a six digit code
// should run out of attempts long before it runs out of keyspace.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup, otpLimited gin.HandlerFunc) {
	deliveries := r.Group("/deliveries")
	{
		deliveries.GET("", h.ListDeliveries)
		deliveries.GET("/:id", h.GetDelivery)
		deliveries.GET("/:id/audit", h.GetAuditTrail)
		deliveries.POST("/:id/pickup", h.MarkPickedUp)
		deliveries.POST("/:id/cancel", h.Cancel)

		otp := deliveries.Group("", otpLimited)
		{
			otp.POST("/:id/otp", h.GenerateOtp)
			otp.POST("/:id/otp/verify", h.VerifyOtp)
		}
	}
}

func (h *Handler) GetDelivery(c *gin.Context) {
	deliveryID, ok := h.deliveryID(c)
	if !ok {
		return
	}

	delivery, err := h.lifecycle.Get(c.Request.Context(), deliveryID, middleware.CallerID(c))
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, delivery)
}

func (h *Handler) ListDeliveries(c *gin.Context) {
	deliveries, err := h.lifecycle.ListForVolunteer(c.Request.Context(), middleware.CallerID(c))
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, deliveries)
}

// GetAuditTrail returns the handoff audit trail to a delivery participant.
func (h *Handler) GetAuditTrail(c *gin.Context) {
	deliveryID, ok := h.deliveryID(c)
	if !ok {
		return
	}

	// Participant check rides on the same rules as reading the delivery.
	if _, err := h.lifecycle.Get(c.Request.Context(), deliveryID, middleware.CallerID(c)); err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	entries, err := h.auditor.ListForDelivery(c.Request.Context(), deliveryID)
	if err != nil {
		httputil.RespondWithError(c, errors.Internal(err))
		return
	}
	httputil.RespondWithSuccess(c, entries)
}

func (h *Handler) MarkPickedUp(c *gin.Context) {
	deliveryID, ok := h.deliveryID(c)
	if !ok {
		return
	}

	delivery, err := h.lifecycle.MarkPickedUp(c.Request.Context(), deliveryID, middleware.CallerID(c))
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, delivery)
}

func (h *Handler) Cancel(c *gin.Context) {
	deliveryID, ok := h.deliveryID(c)
	if !ok {
		return
	}

	delivery, err := h.lifecycle.Cancel(c.Request.Context(), deliveryID, middleware.CallerID(c))
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, delivery)
}

func (h *Handler) GenerateOtp(c *gin.Context) {
	deliveryID, ok := h.deliveryID(c)
	if !ok {
		return
	}

	resp, err := h.handoff.GenerateChallenge(c.Request.Context(), deliveryID, middleware.CallerID(c))
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, resp)
}

func (h *Handler) VerifyOtp(c *gin.Context) {
	deliveryID, ok := h.deliveryID(c)
	if !ok {
		return
	}

	var req model.VerifyOtpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.RespondWithError(c, errors.InvalidArgument("otp must be a six digit code", err))
		return
	}

	resp, err := h.handoff.VerifyResponse(c.Request.Context(), deliveryID, middleware.CallerID(c), req.Otp)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, resp)
}

func (h *Handler) deliveryID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httputil.RespondWithError(c, errors.InvalidArgument("invalid delivery ID", err))
		return uuid.Nil, false
	}
	return id, true
}
