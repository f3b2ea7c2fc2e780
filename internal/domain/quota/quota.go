// Package quota enforces the per-user daily voice allowance.
package quota

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"tutor-server/services/voice-api/internal/domain/usage"
)

// Decision is the outcome of a quota check for one connection attempt.
// QuotaID names the allowance bucket the decision was made against; there
// is no stored quota record, only the rolling usage window per user.
type Decision struct {
	Allowed          bool
	QuotaID          string
	RemainingSeconds int
	UsedSeconds      int
	Reason           string
}

// Service answers whether a user may start a voice session right now.
type Service interface {
	// Check sums the user's recorded usage over the rolling 24-hour window
	// and compares it against the daily allowance. Errors are returned to
	// the caller, which must treat them as a denial.
	Check(ctx context.Context, userID string) (Decision, error)
}

type service struct {
	usageRepo    usage.Repository
	dailySeconds int
	log          zerolog.Logger
}

// NewService creates a quota service with the given daily allowance.
func NewService(usageRepo usage.Repository, dailySeconds int, log zerolog.Logger) Service {
	return &service{
		usageRepo:    usageRepo,
		dailySeconds: dailySeconds,
		log:          log.With().Str("component", "quota").Logger(),
	}
}

func (s *service) Check(ctx context.Context, userID string) (Decision, error) {
	since := time.Now().Add(-24 * time.Hour)
	quotaID := "daily:" + userID

	used, err := s.usageRepo.UserSecondsSince(ctx, userID, since)
	if err != nil {
		return Decision{}, fmt.Errorf("query usage window: %w", err)
	}

	remaining := s.dailySeconds - int(used)
	if remaining <= 0 {
		s.log.Info().
			Str("user_id", userID).
			Int64("used_seconds", used).
			Msg("daily voice quota exhausted")
		return Decision{
			Allowed:     false,
			QuotaID:     quotaID,
			UsedSeconds: int(used),
			Reason:      "daily voice limit reached",
		}, nil
	}

	return Decision{
		Allowed:          true,
		QuotaID:          quotaID,
		RemainingSeconds: remaining,
		UsedSeconds:      int(used),
	}, nil
}
