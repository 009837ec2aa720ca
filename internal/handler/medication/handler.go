package medication

import (
	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/adherence-portal/internal/handler"
	"github.com/jwalitptl/adherence-portal/internal/middleware"
	"github.com/jwalitptl/adherence-portal/internal/model"
	"github.com/jwalitptl/adherence-portal/internal/service/patient"
	"github.com/jwalitptl/adherence-portal/pkg/httputil"
)

type Handler struct {
	service *patient.Service
	authMW  *middleware.AuthMiddleware
	audit   *middleware.AuditMiddleware
}

func NewHandler(service *patient.Service, authMW *middleware.AuthMiddleware, audit *middleware.AuditMiddleware) *Handler {
	return &Handler{service: service, authMW: authMW, audit: audit}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	meds := r.Group("/medications", middleware.Cache(middleware.NoStoreCacheConfig()), h.authMW.Authenticate())
	{
		meds.GET("", h.ListAvailable)
		meds.POST("/:activeId/pickup", h.audit.AuditLog(model.AuditResourceMedication, model.AuditActionUpdate), h.Pickup)
	}
}

// ListAvailable returns the prescribable medication catalog.
func (h *Handler) ListAvailable(c *gin.Context) {
	sess, ok := handler.Session(c)
	if !ok {
		return
	}
	httputil.RespondWithSuccess(c, h.service.ListAvailableMedications(c.Request.Context(), sess))
}

// Pickup marks an active prescription as collected today.
func (h *Handler) Pickup(c *gin.Context) {
	sess, ok := handler.Session(c)
	if !ok {
		return
	}
	var uri model.PickupURI
	if err := c.ShouldBindUri(&uri); err != nil {
		handler.BindError(c, err)
		return
	}
	if err := h.service.PickupMedication(c.Request.Context(), sess, uri.ActiveID); err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, gin.H{"active_id": uri.ActiveID})
}
