package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	apperrors "github.com/jwalitptl/adherence-portal/pkg/errors"
	"github.com/jwalitptl/adherence-portal/pkg/httputil"
)

// ErrorHandler logs errors attached to the context. Handlers normally answer
// themselves; a response is written here only when none was.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}

		requestID := c.GetString(ContextRequestID)
		for _, e := range c.Errors {
			log.Error().
				Err(e.Err).
				Str("request_id", requestID).
				Str("path", c.Request.URL.Path).
				Str("method", c.Request.Method).
				Str("client_ip", c.ClientIP()).
				Interface("meta", e.Meta).
				Msg("Request error")
		}

		if c.Writer.Written() {
			return
		}

		status := http.StatusInternalServerError
		message := "internal server error"
		if appErr, ok := apperrors.As(c.Errors.Last().Err); ok {
			status = appErr.StatusCode()
			message = appErr.Message
		}
		c.JSON(status, httputil.NewErrorResponse(message))
	}
}
