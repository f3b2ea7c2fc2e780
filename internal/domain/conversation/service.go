package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"tutor-server/services/voice-api/internal/domain/usage"
	"tutor-server/services/voice-api/internal/utils/idgen"
)

var (
	// ErrNotFound is returned when a conversation does not exist.
	ErrNotFound = errors.New("conversation not found")
	// ErrNotOwned is returned when a conversation belongs to another user.
	ErrNotOwned = errors.New("conversation not owned by user")
)

// Service defines the conversation store operations used by voice sessions
// and the read endpoints.
type Service interface {
	// GetOrCreate returns the conversation with the given public ID if it
	// exists and is owned by userID; otherwise it creates a new active
	// conversation carrying the connect-time metadata.
	GetOrCreate(ctx context.Context, publicID, userID string, meta Metadata) (*Conversation, error)

	// AppendMessage persists one completed transcript turn.
	AppendMessage(ctx context.Context, conversationID uint, role Role, content string) error

	// LogUsage writes the session's usage record, clamping the duration to
	// [0, maxSessionDuration], and marks the conversation ended. Returns the
	// clamped duration in seconds. Callers are responsible for invoking this
	// at most once per session.
	LogUsage(ctx context.Context, conv *Conversation, sessionStart time.Time, elapsed time.Duration, wasInterrupted bool) (int, error)

	// ListUserConversations returns the user's most recent conversations.
	ListUserConversations(ctx context.Context, userID string) ([]*Conversation, error)

	// GetConversation returns one conversation with its messages, enforcing
	// ownership.
	GetConversation(ctx context.Context, publicID, userID string) (*Conversation, error)

	// SweepStale ends conversations left active past the stale TTL.
	SweepStale(ctx context.Context) (int64, error)
}

type service struct {
	repo        Repository
	usageRepo   usage.Repository
	maxDuration time.Duration
	staleTTL    time.Duration
	log         zerolog.Logger
}

// NewService creates a new conversation service.
func NewService(repo Repository, usageRepo usage.Repository, maxDuration, staleTTL time.Duration, log zerolog.Logger) Service {
	return &service{
		repo:        repo,
		usageRepo:   usageRepo,
		maxDuration: maxDuration,
		staleTTL:    staleTTL,
		log:         log.With().Str("component", "conversation-service").Logger(),
	}
}

func (s *service) GetOrCreate(ctx context.Context, publicID, userID string, meta Metadata) (*Conversation, error) {
	if strings.TrimSpace(publicID) != "" {
		conv, err := s.repo.FindByPublicID(ctx, publicID)
		if err == nil && conv.UserID == userID {
			return conv, nil
		}
		if err != nil && !errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("find conversation: %w", err)
		}
		// Unknown or foreign ID: fall through and open a fresh conversation
		// rather than leaking another user's transcript.
	}

	newID, err := idgen.ConversationID()
	if err != nil {
		return nil, err
	}

	conv := &Conversation{
		PublicID: newID,
		UserID:   userID,
		Status:   StatusActive,
	}
	if meta.Topic != "" {
		conv.Topic = &meta.Topic
	}
	if meta.YearGroup != "" {
		conv.YearGroup = &meta.YearGroup
	}
	if meta.LessonPlanID != "" {
		conv.LessonPlanID = &meta.LessonPlanID
	}

	if err := s.repo.Create(ctx, conv); err != nil {
		return nil, fmt.Errorf("create conversation: %w", err)
	}

	s.log.Info().
		Str("conversation_id", conv.PublicID).
		Str("user_id", userID).
		Msg("conversation created")

	return conv, nil
}

func (s *service) AppendMessage(ctx context.Context, conversationID uint, role Role, content string) error {
	if strings.TrimSpace(content) == "" {
		return nil
	}

	msgID, err := idgen.MessageID()
	if err != nil {
		return err
	}

	msg := &Message{
		PublicID:       msgID,
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
	}
	if err := s.repo.AddMessage(ctx, msg); err != nil {
		return fmt.Errorf("append message: %w", err)
	}
	return nil
}

func (s *service) LogUsage(ctx context.Context, conv *Conversation, sessionStart time.Time, elapsed time.Duration, wasInterrupted bool) (int, error) {
	seconds := int(elapsed.Seconds())
	if seconds < 0 {
		seconds = 0
	}
	if max := int(s.maxDuration.Seconds()); seconds > max {
		seconds = max
	}

	record := &usage.Log{
		ConversationID:   conv.PublicID,
		UserID:           conv.UserID,
		SessionStart:     sessionStart,
		DurationSeconds:  seconds,
		WasInterrupted:   wasInterrupted,
		EstimatedCostUSD: usage.EstimateCost(seconds),
	}
	if err := s.usageRepo.Create(ctx, record); err != nil {
		return seconds, fmt.Errorf("log usage: %w", err)
	}

	if err := s.repo.UpdateStatus(ctx, conv.ID, StatusEnded); err != nil {
		// The usage row is the billing artifact; a failed status flip is
		// recoverable by the stale sweep.
		s.log.Warn().Err(err).Str("conversation_id", conv.PublicID).Msg("failed to end conversation")
	}

	s.log.Info().
		Str("conversation_id", conv.PublicID).
		Int("duration_seconds", seconds).
		Bool("was_interrupted", wasInterrupted).
		Msg("session usage logged")

	return seconds, nil
}

func (s *service) ListUserConversations(ctx context.Context, userID string) ([]*Conversation, error) {
	return s.repo.FindByUser(ctx, userID, 50)
}

func (s *service) GetConversation(ctx context.Context, publicID, userID string) (*Conversation, error) {
	conv, err := s.repo.FindByPublicID(ctx, publicID)
	if err != nil {
		return nil, err
	}
	if conv.UserID != userID {
		return nil, ErrNotOwned
	}

	msgs, err := s.repo.FindMessages(ctx, conv.ID)
	if err != nil {
		return nil, fmt.Errorf("load messages: %w", err)
	}
	conv.Messages = make([]Message, 0, len(msgs))
	for _, m := range msgs {
		conv.Messages = append(conv.Messages, *m)
	}
	return conv, nil
}

func (s *service) SweepStale(ctx context.Context) (int64, error) {
	cutoff := time.Now().Add(-s.staleTTL)
	n, err := s.repo.MarkStaleEnded(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("sweep stale conversations: %w", err)
	}
	if n > 0 {
		s.log.Info().Int64("count", n).Msg("stale conversations ended")
	}
	return n, nil
}
