//go:build wireinject
// +build wireinject

package main

import (
	"context"

	"github.com/google/wire"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"tutor-server/services/voice-api/internal/config"
	"tutor-server/services/voice-api/internal/domain/conversation"
	"tutor-server/services/voice-api/internal/domain/lesson"
	"tutor-server/services/voice-api/internal/domain/prompt"
	"tutor-server/services/voice-api/internal/domain/quota"
	"tutor-server/services/voice-api/internal/domain/usage"
	"tutor-server/services/voice-api/internal/infrastructure/auth"
	"tutor-server/services/voice-api/internal/infrastructure/crontab"
	"tutor-server/services/voice-api/internal/infrastructure/database"
	"tutor-server/services/voice-api/internal/infrastructure/database/repository/conversationrepo"
	"tutor-server/services/voice-api/internal/infrastructure/database/repository/usagerepo"
	"tutor-server/services/voice-api/internal/infrastructure/lessonplan"
	"tutor-server/services/voice-api/internal/interfaces/httpserver"
)

// ProviderSet is the wire provider set for the application.
var ProviderSet = wire.NewSet(
	// Infrastructure providers
	ProvideDatabase,
	ProvideConversationRepository,
	ProvideUsageRepository,
	ProvideVerifier,
	ProvidePlanSource,

	// Domain providers
	ProvideConversationService,
	ProvideQuotaService,
	ProvideAssembler,

	// Interface providers
	httpserver.New,

	// Application
	crontab.NewCrontab,
	NewApplication,
)

// ProvideDatabase connects to postgres and applies pending migrations.
func ProvideDatabase(cfg *config.Config) (*gorm.DB, error) {
	db, err := database.Connect(database.Config{
		DatabaseURL: cfg.DatabaseURL,
		MaxIdle:     cfg.DBMaxIdleConns,
		MaxOpen:     cfg.DBMaxOpenConns,
		MaxLifetime: cfg.DBConnMaxLifetime,
	})
	if err != nil {
		return nil, err
	}
	if err := database.AutoMigrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

// ProvideConversationRepository provides the conversation repository.
func ProvideConversationRepository(db *gorm.DB) conversation.Repository {
	return conversationrepo.NewConversationRepository(db)
}

// ProvideUsageRepository provides the usage-log repository.
func ProvideUsageRepository(db *gorm.DB) usage.Repository {
	return usagerepo.NewUsageRepository(db)
}

// ProvideVerifier provides the identity verifier.
func ProvideVerifier(ctx context.Context, cfg *config.Config, log zerolog.Logger) (auth.Verifier, error) {
	if !cfg.AuthEnabled {
		return auth.InsecureVerifier{}, nil
	}
	return auth.NewJWKSVerifier(ctx, cfg.AuthJWKSURL, cfg.AuthIssuer, cfg.AuthAudience, log)
}

// ProvidePlanSource provides the lesson content client.
func ProvidePlanSource(cfg *config.Config) lesson.PlanSource {
	return lessonplan.NewClient(lessonplan.Config{
		BaseURL: cfg.LessonPlanBaseURL,
		APIKey:  cfg.LessonPlanAPIKey,
		Timeout: cfg.LessonPlanTimeout,
	})
}

// ProvideConversationService provides the conversation service.
func ProvideConversationService(
	repo conversation.Repository,
	usageRepo usage.Repository,
	cfg *config.Config,
	log zerolog.Logger,
) conversation.Service {
	return conversation.NewService(repo, usageRepo, cfg.MaxSessionDuration, cfg.StaleConversationTTL, log)
}

// ProvideQuotaService provides the daily allowance gate.
func ProvideQuotaService(usageRepo usage.Repository, cfg *config.Config, log zerolog.Logger) quota.Service {
	return quota.NewService(usageRepo, cfg.DailyQuotaSeconds, log)
}

// ProvideAssembler provides the prompt assembler.
func ProvideAssembler(cfg *config.Config) *prompt.Assembler {
	return prompt.NewAssembler(cfg.ProviderDefaultVoice, cfg.ProviderDefaultSpeedX)
}

// CreateApplication creates the application with all dependencies wired.
func CreateApplication(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*Application, error) {
	wire.Build(ProviderSet)
	return nil, nil
}
