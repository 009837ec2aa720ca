package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/adherence-portal/internal/session"
	apperrors "github.com/jwalitptl/adherence-portal/pkg/errors"
	"github.com/jwalitptl/adherence-portal/pkg/httputil"
)

// SessionCookie carries the signed session token.
const SessionCookie = "portal_session"

type AuthMiddleware struct {
	sessions *session.Manager
}

func NewAuthMiddleware(sessions *session.Manager) *AuthMiddleware {
	return &AuthMiddleware{sessions: sessions}
}

// TokenFromRequest reads the session token from the cookie, falling back to
// a bearer Authorization header for non-browser clients.
func TokenFromRequest(c *gin.Context) string {
	if token, err := c.Cookie(SessionCookie); err == nil && token != "" {
		return token
	}
	parts := strings.SplitN(c.GetHeader("Authorization"), " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
		return strings.TrimSpace(parts[1])
	}
	return ""
}

// Authenticate loads the caller's session and places it on the request
// context. Handlers only ever read it.
func (m *AuthMiddleware) Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := TokenFromRequest(c)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, httputil.NewErrorResponse("authentication required"))
			return
		}

		s, err := m.sessions.Resolve(c.Request.Context(), token)
		if err != nil {
			if errors.Is(err, session.ErrInvalidToken) ||
				errors.Is(err, session.ErrNotFound) ||
				errors.Is(err, session.ErrExpired) {
				c.AbortWithStatusJSON(http.StatusUnauthorized, httputil.NewErrorResponse("session expired or invalid"))
				return
			}
			httputil.RespondWithError(c, apperrors.Unavailable("session store unavailable", err))
			return
		}

		SetSession(c, s)
		c.Next()
	}
}

// RequireDoctor admits only sessions with doctor privileges.
func (m *AuthMiddleware) RequireDoctor() gin.HandlerFunc {
	return func(c *gin.Context) {
		s, ok := CurrentSession(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, httputil.NewErrorResponse("authentication required"))
			return
		}
		if !s.IsDoctor {
			httputil.RespondWithError(c, apperrors.Forbidden("doctor access required"))
			return
		}
		c.Next()
	}
}

// SetSession attaches s to the request context.
func SetSession(c *gin.Context, s *session.Session) {
	c.Request = c.Request.WithContext(session.NewContext(c.Request.Context(), s))
}

// CurrentSession reads the session the auth middleware or login placed on
// the request context.
func CurrentSession(c *gin.Context) (*session.Session, bool) {
	return session.FromContext(c.Request.Context())
}
