package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gridhaven/haven/internal/config"
	"github.com/gridhaven/haven/internal/logging"
	"github.com/gridhaven/haven/internal/progress"
	"github.com/gridhaven/haven/internal/service"
	"github.com/gridhaven/haven/internal/syncengine"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Deps are the components the read-only status API exposes
type Deps struct {
	Engine   *syncengine.Engine
	Progress *progress.Manager
	Health   *service.HealthRegistry
}

// Server is the HTTP status and metrics endpoint of a sync service
type Server struct {
	httpServer *http.Server
	logger     *logging.SafeLogger
}

// NewRouter builds the gin router. All endpoints are read-only; mutations go
// through the CLI or the scheduler, never HTTP.
func NewRouter(env string, deps Deps) *gin.Engine {
	if env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())

	v1 := router.Group("/v1")
	{
		v1.GET("/health", func(c *gin.Context) {
			report := deps.Health.RunChecks(c.Request.Context())
			code := http.StatusOK
			if report.Status == service.OverallError {
				code = http.StatusServiceUnavailable
			}
			c.JSON(code, report)
		})

		v1.GET("/status", func(c *gin.Context) {
			c.JSON(http.StatusOK, deps.Engine.Status())
		})

		v1.GET("/progress", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{
				"summary":    deps.Progress.GetProgressSummary(),
				"operations": deps.Progress.Snapshot(),
			})
		})
	}

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	return router
}

// New creates a server bound to the configured port
func New(cfg config.ServerConfig, deps Deps) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      NewRouter(cfg.Environment, deps),
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		logger: logging.Logger,
	}
}

// Start serves HTTP until Shutdown; it blocks, so callers run it in a
// goroutine
func (s *Server) Start() error {
	s.logger.Info("http server listening", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests and stops the listener
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
