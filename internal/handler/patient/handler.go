package patient

import (
	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/adherence-portal/internal/handler"
	"github.com/jwalitptl/adherence-portal/internal/middleware"
	"github.com/jwalitptl/adherence-portal/internal/model"
	"github.com/jwalitptl/adherence-portal/internal/service/patient"
	"github.com/jwalitptl/adherence-portal/internal/session"
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
	doctor := h.authMW.RequireDoctor()
	readPatient := h.audit.AuditLog(model.AuditResourcePatient, "")

	patients := r.Group("/patients", middleware.Cache(middleware.NoStoreCacheConfig()), h.authMW.Authenticate())
	{
		patients.GET("", doctor, readPatient, h.ListPatients)
		patients.POST("", doctor, readPatient, h.AddPatient)
		patients.GET("/search", readPatient, h.Search)

		patients.GET("/:id", readPatient, h.GetPatient)
		patients.GET("/:id/adherence", h.audit.AuditLog(model.AuditResourceAdherence, ""), h.GetAdherence)
		patients.GET("/:id/medications", h.audit.AuditLog(model.AuditResourceMedication, ""), h.GetMedications)
		patients.GET("/:id/logs", readPatient, h.GetLogs)
		patients.GET("/:id/history", readPatient, h.GetHistory)
		patients.POST("/:id/prescriptions", doctor, h.audit.AuditLog(model.AuditResourceMedication, ""), h.Prescribe)
	}
}

// ListPatients returns the roster with each patient's compact adherence strip.
func (h *Handler) ListPatients(c *gin.Context) {
	sess, ok := handler.Session(c)
	if !ok {
		return
	}
	httputil.RespondWithSuccess(c, h.service.ListPatients(c.Request.Context(), sess))
}

func (h *Handler) Search(c *gin.Context) {
	sess, ok := handler.Session(c)
	if !ok {
		return
	}
	var q model.SearchQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		handler.BindError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, h.service.Search(c.Request.Context(), sess, q.Name))
}

func (h *Handler) AddPatient(c *gin.Context) {
	sess, ok := handler.Session(c)
	if !ok {
		return
	}
	var req model.AddPatientRequest
	if err := c.ShouldBind(&req); err != nil {
		handler.BindError(c, err)
		return
	}
	if err := h.service.AddPatient(c.Request.Context(), sess, req); err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithCreated(c, gin.H{"username": req.Username})
}

// GetPatient returns the whole patient page.
func (h *Handler) GetPatient(c *gin.Context) {
	sess, uri, ok := h.bindPatient(c)
	if !ok {
		return
	}
	page, err := h.service.GetPatientPage(c.Request.Context(), sess, uri.ID)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, page)
}

func (h *Handler) GetAdherence(c *gin.Context) {
	sess, uri, ok := h.bindPatient(c)
	if !ok {
		return
	}
	var q model.AdherenceQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		handler.BindError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, h.service.GetAdherenceGrid(c.Request.Context(), sess, uri.ID, q.Days))
}

func (h *Handler) GetMedications(c *gin.Context) {
	sess, uri, ok := h.bindPatient(c)
	if !ok {
		return
	}
	httputil.RespondWithSuccess(c, h.service.GetMedications(c.Request.Context(), sess, uri.ID))
}

func (h *Handler) GetLogs(c *gin.Context) {
	sess, uri, ok := h.bindPatient(c)
	if !ok {
		return
	}
	httputil.RespondWithSuccess(c, h.service.GetLogs(c.Request.Context(), sess, uri.ID))
}

func (h *Handler) GetHistory(c *gin.Context) {
	sess, uri, ok := h.bindPatient(c)
	if !ok {
		return
	}
	httputil.RespondWithSuccess(c, h.service.GetHistory(c.Request.Context(), sess, uri.ID))
}

func (h *Handler) Prescribe(c *gin.Context) {
	sess, uri, ok := h.bindPatient(c)
	if !ok {
		return
	}
	var req model.PrescribeRequest
	if err := c.ShouldBind(&req); err != nil {
		handler.BindError(c, err)
		return
	}
	if err := h.service.Prescribe(c.Request.Context(), sess, uri.ID, req); err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithCreated(c, req)
}

func (h *Handler) bindPatient(c *gin.Context) (*session.Session, model.PatientURI, bool) {
	var uri model.PatientURI
	sess, ok := handler.Session(c)
	if !ok {
		return nil, uri, false
	}
	if err := c.ShouldBindUri(&uri); err != nil {
		handler.BindError(c, err)
		return nil, uri, false
	}
	return sess, uri, true
}
