package server

import (
	"context"
	"net/http"
	"path"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	echoSwagger "github.com/swaggo/echo-swagger"

	"agentgate/config"
	"agentgate/internal/agent"
	"agentgate/internal/auditlog"
	"agentgate/internal/docs"
)

// Server wraps the Echo server
type Server struct {
	echo    *echo.Echo
	handler *Handler
}

// Config holds server configuration options
type Config struct {
	APIPrefix       string          // Prefix of the agent routes; "" or "/" mounts them at the root
	MasterKey       string          // Optional: bearer token required on the agent routes
	BodyLimit       string          // Max request body size, e.g. "1M"
	MetricsEnabled  bool            // Whether to expose the Prometheus endpoint
	MetricsEndpoint string          // HTTP path for metrics endpoint (default: /metrics)
	DocsEnabled     bool            // Serve Swagger UI at {APIPrefix}/docs
	CallLog         auditlog.Writer // Optional: call log writer
}

// New creates a new HTTP server
func New(dispatcher *agent.Dispatcher, cfg *Config) *Server {
	if cfg == nil {
		cfg = &Config{APIPrefix: config.DefaultAPIPrefix}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = errorHandler
	e.Validator = newRequestValidator()

	handler := NewHandler(dispatcher)

	prefix := config.NormalizeAPIPrefix(cfg.APIPrefix)
	metricsPath := "/metrics"
	if cfg.MetricsEndpoint != "" {
		metricsPath = path.Clean("/" + cfg.MetricsEndpoint)
	}

	bodyLimit := cfg.BodyLimit
	if bodyLimit == "" {
		bodyLimit = config.DefaultBodySizeLimit
	}

	// Global middleware stack (order matters)
	e.Use(requestIDMiddleware())
	e.Use(requestLogger())
	e.Use(middleware.Recover())
	e.Use(metricsMiddleware(metricsPath, "/health"))
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodHead, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{"*"},
	}))
	e.Use(middleware.BodyLimit(bodyLimit))

	// Public routes
	e.GET("/health", handler.Health)
	if cfg.MetricsEnabled {
		e.GET(metricsPath, echo.WrapHandler(promhttp.Handler()))
	}
	if cfg.DocsEnabled {
		docs.SwaggerInfo.BasePath = prefix
		if prefix == "" {
			docs.SwaggerInfo.BasePath = "/"
		}
		e.GET(prefix+"/docs", func(c echo.Context) error {
			return c.Redirect(http.StatusMovedPermanently, prefix+"/docs/index.html")
		})
		e.GET(prefix+"/docs/*", echoSwagger.WrapHandler)
	}

	// Agent routes
	api := e.Group(prefix)
	if cfg.CallLog != nil {
		api.Use(auditlog.Middleware(cfg.CallLog))
	}
	api.Use(AuthMiddleware(cfg.MasterKey))
	api.POST("/agent/chat", handler.Chat)
	api.POST("/agent/chat/stream", handler.ChatStream)

	return &Server{
		echo:    e,
		handler: handler,
	}
}

// Start starts the HTTP server on the given address
func (s *Server) Start(addr string) error {
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// ServeHTTP implements the http.Handler interface, allowing Server to be used with httptest
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}
