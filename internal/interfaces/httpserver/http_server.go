package httpserver

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"tutor-server/services/voice-api/internal/config"
	"tutor-server/services/voice-api/internal/domain/conversation"
	"tutor-server/services/voice-api/internal/domain/lesson"
	"tutor-server/services/voice-api/internal/domain/prompt"
	"tutor-server/services/voice-api/internal/domain/quota"
	"tutor-server/services/voice-api/internal/domain/usage"
	"tutor-server/services/voice-api/internal/infrastructure/auth"
	"tutor-server/services/voice-api/internal/interfaces/httpserver/handlers"
	"tutor-server/services/voice-api/internal/interfaces/httpserver/middlewares"
)

// HTTPServer is the HTTP server for the voice API.
type HTTPServer struct {
	cfg    *config.Config
	engine *gin.Engine
	live   *handlers.LiveHandler
	log    zerolog.Logger
}

// New creates the HTTP server and registers all routes.
func New(
	cfg *config.Config,
	log zerolog.Logger,
	verifier auth.Verifier,
	quotaGate quota.Service,
	conversations conversation.Service,
	usageRepo usage.Repository,
	plans lesson.PlanSource,
	assembler *prompt.Assembler,
	baseCtx context.Context,
) *HTTPServer {
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())

	// Apply middlewares in order
	engine.Use(middlewares.RequestID())
	engine.Use(middlewares.Tracing(cfg.ServiceName))
	engine.Use(middlewares.CORS())
	engine.Use(middlewares.RequestLoggerWithLogger(log))

	registerCoreRoutes(engine, cfg, verifier)

	liveHandler := handlers.NewLiveHandler(cfg, verifier, quotaGate, conversations, plans, assembler, baseCtx, log)
	convHandler := handlers.NewConversationHandler(cfg, conversations, usageRepo, log)

	// The live endpoint does its own verification before upgrading, so it
	// can reject over HTTP and report the cause.
	engine.GET("/v1/voice/live", liveHandler.Handle)

	authed := engine.Group("/v1/voice", middlewares.RequireAuth(verifier))
	{
		authed.GET("/conversations", convHandler.List)
		authed.GET("/conversations/:id", convHandler.Get)
		authed.GET("/usage", convHandler.Usage)
	}

	return &HTTPServer{
		cfg:    cfg,
		engine: engine,
		live:   liveHandler,
		log:    log,
	}
}

// Run starts the HTTP server and blocks until context is cancelled.
func (s *HTTPServer) Run(ctx context.Context) error {
	server := &http.Server{
		Addr:    s.cfg.Addr(),
		Handler: s.engine,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", s.cfg.Addr()).Msg("HTTP server listening")
		err := server.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error().Err(err).Msg("HTTP server error")
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		s.log.Info().Msg("context cancelled, shutting down HTTP server")
	case err := <-errCh:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}

	// Shutdown does not track hijacked websocket connections; wait for the
	// live sessions to finish their teardown and usage writes.
	if err := s.live.WaitSessions(shutdownCtx); err != nil {
		s.log.Warn().Err(err).Msg("live sessions still draining at shutdown deadline")
	}

	return nil
}

func registerCoreRoutes(engine *gin.Engine, cfg *config.Config, verifier auth.Verifier) {
	engine.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"service": cfg.ServiceName,
			"status":  "ok",
		})
	})

	engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})

	// Readiness waits for the identity provider key set so that sessions
	// are never accepted before tokens can be verified.
	engine.GET("/readyz", func(c *gin.Context) {
		if !verifier.Ready() {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "waiting for key set"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	// Prometheus metrics endpoint
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))
}
