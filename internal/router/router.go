package router

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/adherence-portal/internal/middleware"
)

type Handler interface {
	RegisterRoutes(*gin.RouterGroup)
}

// MetricsHandler records request metrics and serves the registry.
type MetricsHandler interface {
	Middleware() gin.HandlerFunc
	Handler() gin.HandlerFunc
}

type RouterConfig struct {
	Mode       string
	RateLimit  middleware.RateLimiterConfig
	CORSConfig middleware.CORSConfig
	Security   middleware.SecurityConfig
	SizeLimit  middleware.SizeLimitConfig
	Timeout    time.Duration
}

type Router struct {
	engine   *gin.Engine
	metrics  MetricsHandler
	health   Handler
	handlers []Handler
}

func NewRouter(config RouterConfig, metrics MetricsHandler, health Handler, handlers ...Handler) *Router {
	if config.Mode != "" {
		gin.SetMode(config.Mode)
	}

	engine := gin.New()
	if config.Timeout <= 0 {
		config.Timeout = middleware.DefaultTimeoutConfig().Duration
	}

	r := &Router{
		engine:   engine,
		metrics:  metrics,
		health:   health,
		handlers: handlers,
	}

	// Add core middlewares
	engine.Use(
		middleware.RequestID(),
		middleware.Logger(),
		middleware.Recovery(),
		middleware.ErrorHandler(),
		middleware.Validation(middleware.DefaultValidationConfig()),
		metrics.Middleware(),
		middleware.SecurityHeaders(config.Security),
		middleware.CORS(config.CORSConfig),
		middleware.SizeLimit(config.SizeLimit),
	)

	rateLimiter := middleware.NewRateLimiter(config.RateLimit)
	engine.Use(
		rateLimiter.RateLimit(),
		middleware.Timeout(middleware.TimeoutConfig{Duration: config.Timeout}),
	)

	return r
}

func (r *Router) Setup() {
	api := r.engine.Group("/api/v1")

	r.health.RegisterRoutes(api)
	api.GET("/health/metrics", r.metrics.Handler())

	for _, h := range r.handlers {
		h.RegisterRoutes(api)
	}
}

func (r *Router) Engine() *gin.Engine {
	return r.engine
}
