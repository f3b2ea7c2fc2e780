package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"tutor-server/services/voice-api/internal/config"
	"tutor-server/services/voice-api/internal/domain/conversation"
	"tutor-server/services/voice-api/internal/domain/prompt"
	"tutor-server/services/voice-api/internal/domain/quota"
	"tutor-server/services/voice-api/internal/infrastructure/auth"
	"tutor-server/services/voice-api/internal/infrastructure/crontab"
	"tutor-server/services/voice-api/internal/infrastructure/database"
	"tutor-server/services/voice-api/internal/infrastructure/database/repository/conversationrepo"
	"tutor-server/services/voice-api/internal/infrastructure/database/repository/usagerepo"
	"tutor-server/services/voice-api/internal/infrastructure/lessonplan"
	"tutor-server/services/voice-api/internal/infrastructure/logger"
	"tutor-server/services/voice-api/internal/infrastructure/observability"
	"tutor-server/services/voice-api/internal/interfaces/httpserver"
)

// Application holds the main application components.
type Application struct {
	httpServer *httpserver.HTTPServer
	crontab    *crontab.Crontab
	log        zerolog.Logger
}

// NewApplication creates a new application instance.
func NewApplication(httpServer *httpserver.HTTPServer, ct *crontab.Crontab, log zerolog.Logger) *Application {
	return &Application{
		httpServer: httpServer,
		crontab:    ct,
		log:        log,
	}
}

// Start runs the HTTP server and the maintenance cron until the context
// is cancelled.
func (a *Application) Start(ctx context.Context) error {
	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		return a.crontab.Run(egCtx)
	})
	eg.Go(func() error {
		return a.httpServer.Run(egCtx)
	})
	return eg.Wait()
}

func main() {
	loadEnvFiles()

	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	log, err := logger.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Setup observability
	shutdownTelemetry, err := observability.Setup(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize observability")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("failed to shutdown telemetry")
		}
	}()

	// Database and migrations
	db, err := database.Connect(database.Config{
		DatabaseURL: cfg.DatabaseURL,
		MaxIdle:     cfg.DBMaxIdleConns,
		MaxOpen:     cfg.DBMaxOpenConns,
		MaxLifetime: cfg.DBConnMaxLifetime,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	if err := database.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("failed to run migrations")
	}

	// Identity verification
	var verifier auth.Verifier
	if cfg.AuthEnabled {
		verifier, err = auth.NewJWKSVerifier(ctx, cfg.AuthJWKSURL, cfg.AuthIssuer, cfg.AuthAudience, log)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to initialize identity verifier")
		}
	} else {
		log.Warn().Msg("auth disabled, accepting unverified identities")
		verifier = auth.InsecureVerifier{}
	}

	// Repositories and domain services
	convRepo := conversationrepo.NewConversationRepository(db)
	usageRepo := usagerepo.NewUsageRepository(db)
	conversations := conversation.NewService(convRepo, usageRepo, cfg.MaxSessionDuration, cfg.StaleConversationTTL, log)
	quotaGate := quota.NewService(usageRepo, cfg.DailyQuotaSeconds, log)
	assembler := prompt.NewAssembler(cfg.ProviderDefaultVoice, cfg.ProviderDefaultSpeedX)

	plans := lessonplan.NewClient(lessonplan.Config{
		BaseURL: cfg.LessonPlanBaseURL,
		APIKey:  cfg.LessonPlanAPIKey,
		Timeout: cfg.LessonPlanTimeout,
	})

	// HTTP server. Live sessions outlive their upgrade request, so they
	// watch the signal context rather than the request context.
	httpServer := httpserver.New(cfg, log, verifier, quotaGate, conversations, usageRepo, plans, assembler, ctx)

	app := NewApplication(httpServer, crontab.NewCrontab(cfg, conversations), log)

	log.Info().
		Str("service", cfg.ServiceName).
		Int("port", cfg.HTTPPort).
		Str("environment", cfg.Environment).
		Msg("starting application")

	if err := app.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("application stopped with error")
	}

	log.Info().Msg("application exited cleanly")
}

func loadEnvFiles() {
	paths := []string{".env", "../.env", "../../.env"}
	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Overload(path); err != nil {
				fmt.Fprintf(os.Stderr, "warning: failed to load %s: %v\n", path, err)
			}
		}
	}
}
