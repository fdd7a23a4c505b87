// Package server wires the service together: configuration, logging,
// metrics, the backend client, the chat pipeline, and the HTTP router.
package server

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	apihttp "github.com/vitawell/companion/internal/api/http"
	"github.com/vitawell/companion/internal/api/middleware"
	"github.com/vitawell/companion/internal/api/ws"
	"github.com/vitawell/companion/internal/chat/coordinator"
	"github.com/vitawell/companion/internal/chat/queue"
	"github.com/vitawell/companion/internal/chat/registry"
	"github.com/vitawell/companion/internal/chat/session"
	"github.com/vitawell/companion/internal/infrastructure/config"
	"github.com/vitawell/companion/internal/infrastructure/logging"
	"github.com/vitawell/companion/internal/infrastructure/monitoring"
	"github.com/vitawell/companion/internal/transport"
	"github.com/vitawell/companion/internal/wellness"
)

// Server wraps the HTTP server and its dependencies.
type Server struct {
	httpServer *http.Server
	queue      *queue.Queue
	logger     *zap.Logger
	config     *config.Config
}

// New builds a fully wired server from configuration.
func New(cfg *config.Config) (*Server, error) {
	logger, err := logging.New(logging.Config{
		Level:       cfg.Logging.Level,
		Development: cfg.Logging.Development,
	})
	if err != nil {
		return nil, err
	}

	logger.Info("initializing companion",
		zap.String("addr", cfg.Server.Addr()),
		zap.String("backend", cfg.Backend.BaseURL),
	)

	metrics := monitoring.NewMetrics(nil)

	client := transport.New(transport.Config{
		BaseURL:           cfg.Backend.BaseURL,
		AuthToken:         cfg.Backend.AuthToken,
		Timeout:           cfg.Backend.Timeout,
		StreamTimeout:     cfg.Backend.StreamTimeout,
		MaxRetries:        cfg.Backend.MaxRetries,
		RequestsPerSecond: cfg.Backend.RequestsPerSecond,
	})

	requests := queue.NewBounded(logger, cfg.Queue.MaxPending)
	coord := coordinator.New(client, session.NewManager(), registry.New(), requests, logger)
	planner := wellness.New(client, requests, logger)
	metrics.RegisterDepthGauges(coord.ActiveStreams, coord.QueueDepth)

	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(monitoring.Middleware(metrics))
	router.Use(middleware.CORS(cfg.Server.AllowOrigins))
	if cfg.RateLimit.Enabled {
		logger.Info("rate limiting enabled",
			zap.Int("rps", cfg.RateLimit.RequestsPerSecond),
			zap.Int("burst", cfg.RateLimit.Burst),
		)
		router.Use(middleware.RateLimit(middleware.RateLimitConfig{
			RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
			Burst:             cfg.RateLimit.Burst,
		}))
	}

	handlers := apihttp.NewHandlers(coord, planner, client, metrics, logger)
	wsHandler := ws.NewHandler(coord, metrics, logger)

	router.GET("/", handlers.Root)
	router.GET("/health", handlers.Health)

	router.POST("/chat/start", handlers.StartChat)
	router.POST("/chat/messages/:id/feedback", handlers.AddFeedback)

	router.GET("/sessions", handlers.ListSessions)
	router.GET("/sessions/:id", handlers.GetSession)
	router.DELETE("/sessions/:id", handlers.DeleteSession)
	router.POST("/sessions/:id/reset", handlers.ResetSession)
	router.POST("/sessions/:id/cancel", handlers.CancelStream)
	router.POST("/sessions/:id/messages", handlers.StreamMessage)

	router.POST("/plans/meal", handlers.GenerateMealPlan)
	router.POST("/plans/workout", handlers.GenerateWorkoutPlan)

	router.GET("/stream", wsHandler.HandleConnection)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return &Server{
		httpServer: &http.Server{
			Addr:    cfg.Server.Addr(),
			Handler: router,
		},
		queue:  requests,
		logger: logger,
		config: cfg,
	}, nil
}

// Run starts serving and blocks until the listener closes.
func (s *Server) Run() error {
	s.logger.Info("starting http server", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown stops accepting work and drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down")
	s.queue.Close()
	err := s.httpServer.Shutdown(ctx)
	s.logger.Sync()
	return err
}
