// Package handler holds helpers shared by the HTTP handlers in its
// subpackages.
package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/adherence-portal/internal/middleware"
	"github.com/jwalitptl/adherence-portal/internal/session"
	"github.com/jwalitptl/adherence-portal/pkg/httputil"
)

// BindError hands a binding failure to the validation middleware, which
// answers with the failed fields.
func BindError(c *gin.Context, err error) {
	_ = c.Error(err).SetType(gin.ErrorTypeBind)
	c.Abort()
}

// Session returns the authenticated session, answering 401 when the route
// was mounted without the auth middleware.
func Session(c *gin.Context) (*session.Session, bool) {
	s, ok := middleware.CurrentSession(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, httputil.NewErrorResponse("authentication required"))
	}
	return s, ok
}
