package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/adherence-portal/internal/model"
	"github.com/jwalitptl/adherence-portal/pkg/messaging"
	"github.com/jwalitptl/adherence-portal/pkg/metrics"
)

const auditPublishTimeout = 2 * time.Second

// AuditMiddleware publishes an access event for every request that reaches
// patient data.
type AuditMiddleware struct {
	broker  messaging.Broker
	channel string
	metrics *metrics.Metrics
	now     func() time.Time
}

func NewAuditMiddleware(broker messaging.Broker, m *metrics.Metrics) *AuditMiddleware {
	return &AuditMiddleware{broker: broker, channel: model.AuditChannel, metrics: m, now: time.Now}
}

// WithChannel publishes to channel instead of the default audit channel.
func (m *AuditMiddleware) WithChannel(channel string) *AuditMiddleware {
	if channel != "" {
		m.channel = channel
	}
	return m
}

// AuditLog records access to resource. An empty action is derived from the
// request method.
func (m *AuditMiddleware) AuditLog(resource, action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		// Execute the handler
		c.Next()

		act := action
		if act == "" {
			act = model.AuditActionRead
			switch c.Request.Method {
			case http.MethodPost:
				act = model.AuditActionCreate
			case http.MethodPut, http.MethodPatch:
				act = model.AuditActionUpdate
			}
		}

		event := model.AccessEvent{
			ID:        uuid.NewString(),
			Time:      m.now().UTC(),
			RequestID: c.GetString(ContextRequestID),
			Action:    act,
			Resource:  resource,
			PatientID: c.Param("id"),
			Method:    c.Request.Method,
			Path:      c.Request.URL.Path,
			Status:    c.Writer.Status(),
			ClientIP:  c.ClientIP(),
		}
		if s, ok := CurrentSession(c); ok {
			event.Username = s.Username
			event.IsDoctor = s.IsDoctor
		}

		ctx, cancel := context.WithTimeout(context.WithoutCancel(c.Request.Context()), auditPublishTimeout)
		defer cancel()

		status := "published"
		if err := m.broker.Publish(ctx, m.channel, event); err != nil {
			status = "failed"
			log.Error().
				Err(err).
				Str("request_id", event.RequestID).
				Str("resource", resource).
				Msg("Failed to publish access event")
		}
		if m.metrics != nil {
			m.metrics.AuditEvents.WithLabelValues(status).Inc()
		}
	}
}
