package auth

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/adherence-portal/internal/handler"
	"github.com/jwalitptl/adherence-portal/internal/middleware"
	"github.com/jwalitptl/adherence-portal/internal/model"
	"github.com/jwalitptl/adherence-portal/internal/service/auth"
	"github.com/jwalitptl/adherence-portal/internal/session"
	"github.com/jwalitptl/adherence-portal/pkg/httputil"
)

// CookieConfig controls the session cookie written at login.
type CookieConfig struct {
	Domain string
	Secure bool
}

type Handler struct {
	svc    *auth.Service
	authMW *middleware.AuthMiddleware
	audit  *middleware.AuditMiddleware
	cookie CookieConfig
}

func NewHandler(svc *auth.Service, authMW *middleware.AuthMiddleware, audit *middleware.AuditMiddleware, cookie CookieConfig) *Handler {
	return &Handler{svc: svc, authMW: authMW, audit: audit, cookie: cookie}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	auth := r.Group("/auth", middleware.Cache(middleware.NoStoreCacheConfig()))
	{
		auth.POST("/login", h.audit.AuditLog(model.AuditResourceSession, model.AuditActionLogin), h.Login)
		auth.POST("/logout", h.authMW.Authenticate(), h.audit.AuditLog(model.AuditResourceSession, model.AuditActionLogout), h.Logout)
		auth.GET("/session", h.authMW.Authenticate(), h.Session)
	}
}

// Login accepts JSON or form-encoded credentials.
func (h *Handler) Login(c *gin.Context) {
	var req model.LoginRequest
	if err := c.ShouldBind(&req); err != nil {
		handler.BindError(c, err)
		return
	}

	sess, token, err := h.svc.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, model.ErrInvalidCredentials) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, httputil.NewErrorResponse("Invalid username or password"))
			return
		}
		_ = c.Error(err)
		c.AbortWithStatusJSON(http.StatusBadGateway, httputil.NewErrorResponse("login service unavailable"))
		return
	}

	middleware.SetSession(c, sess)
	h.setCookie(c, token, int(time.Until(sess.ExpiresAt).Seconds()))
	httputil.RespondWithSuccess(c, sessionInfo(sess))
}

func (h *Handler) Logout(c *gin.Context) {
	sess, ok := handler.Session(c)
	if !ok {
		return
	}
	if err := h.svc.Logout(c.Request.Context(), sess); err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	h.setCookie(c, "", -1)
	httputil.RespondWithSuccess(c, model.SessionInfo{LoggedIn: false})
}

// Session reports the current login after re-checking it with the patient API.
func (h *Handler) Session(c *gin.Context) {
	sess, ok := handler.Session(c)
	if !ok {
		return
	}
	checked, err := h.svc.Check(c.Request.Context(), sess)
	if errors.Is(err, auth.ErrSessionEnded) {
		h.setCookie(c, "", -1)
		c.AbortWithStatusJSON(http.StatusUnauthorized, httputil.NewErrorResponse("session ended"))
		return
	}
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, sessionInfo(checked))
}

func (h *Handler) setCookie(c *gin.Context, value string, maxAge int) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(middleware.SessionCookie, value, maxAge, "/", h.cookie.Domain, h.cookie.Secure, true)
}

func sessionInfo(s *session.Session) model.SessionInfo {
	return model.SessionInfo{
		LoggedIn:  true,
		Username:  s.Username,
		IsDoctor:  s.IsDoctor,
		ExpiresAt: s.ExpiresAt.Unix(),
	}
}
