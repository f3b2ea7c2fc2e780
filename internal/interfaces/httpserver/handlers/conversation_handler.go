package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"tutor-server/services/voice-api/internal/config"
	"tutor-server/services/voice-api/internal/domain/conversation"
	"tutor-server/services/voice-api/internal/domain/usage"
	"tutor-server/services/voice-api/internal/interfaces/httpserver/middlewares"
	"tutor-server/services/voice-api/internal/interfaces/httpserver/responses"
)

// ConversationHandler serves the read endpoints over past voice sessions.
type ConversationHandler struct {
	cfg           *config.Config
	conversations conversation.Service
	usageRepo     usage.Repository
	log           zerolog.Logger
}

// NewConversationHandler creates the conversation read handler.
func NewConversationHandler(
	cfg *config.Config,
	conversations conversation.Service,
	usageRepo usage.Repository,
	log zerolog.Logger,
) *ConversationHandler {
	return &ConversationHandler{
		cfg:           cfg,
		conversations: conversations,
		usageRepo:     usageRepo,
		log:           log.With().Str("component", "conversation-handler").Logger(),
	}
}

// List returns the caller's recent conversations.
func (h *ConversationHandler) List(c *gin.Context) {
	identity, ok := middlewares.GetIdentity(c)
	if !ok {
		responses.WriteUnauthorized(c, "missing identity")
		return
	}

	convs, err := h.conversations.ListUserConversations(c.Request.Context(), identity.UserID)
	if err != nil {
		h.log.Error().Err(err).Msg("list conversations failed")
		responses.WriteInternal(c, "could not list conversations")
		return
	}

	out := make([]responses.ConversationSummary, 0, len(convs))
	for _, conv := range convs {
		out = append(out, toSummary(conv))
	}
	c.JSON(http.StatusOK, gin.H{"conversations": out})
}

// Get returns one conversation with its transcript.
func (h *ConversationHandler) Get(c *gin.Context) {
	identity, ok := middlewares.GetIdentity(c)
	if !ok {
		responses.WriteUnauthorized(c, "missing identity")
		return
	}

	conv, err := h.conversations.GetConversation(c.Request.Context(), c.Param("id"), identity.UserID)
	if err != nil {
		switch {
		case errors.Is(err, conversation.ErrNotFound):
			responses.WriteNotFound(c, "conversation not found")
		case errors.Is(err, conversation.ErrNotOwned):
			// Indistinguishable from missing, on purpose.
			responses.WriteNotFound(c, "conversation not found")
		default:
			h.log.Error().Err(err).Msg("get conversation failed")
			responses.WriteInternal(c, "could not load conversation")
		}
		return
	}

	detail := responses.ConversationDetail{
		ConversationSummary: toSummary(conv),
		Messages:            make([]responses.MessageResponse, 0, len(conv.Messages)),
	}
	for _, msg := range conv.Messages {
		detail.Messages = append(detail.Messages, responses.MessageResponse{
			ID:        msg.PublicID,
			Role:      string(msg.Role),
			Content:   msg.Content,
			CreatedAt: msg.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, detail)
}

// Usage returns the caller's recent sessions and remaining daily allowance.
func (h *ConversationHandler) Usage(c *gin.Context) {
	identity, ok := middlewares.GetIdentity(c)
	if !ok {
		responses.WriteUnauthorized(c, "missing identity")
		return
	}
	ctx := c.Request.Context()

	used, err := h.usageRepo.UserSecondsSince(ctx, identity.UserID, time.Now().Add(-24*time.Hour))
	if err != nil {
		h.log.Error().Err(err).Msg("usage window query failed")
		responses.WriteInternal(c, "could not load usage")
		return
	}

	logs, err := h.usageRepo.FindByUser(ctx, identity.UserID, 50)
	if err != nil {
		h.log.Error().Err(err).Msg("usage list query failed")
		responses.WriteInternal(c, "could not load usage")
		return
	}

	remaining := h.cfg.DailyQuotaSeconds - int(used)
	if remaining < 0 {
		remaining = 0
	}

	out := responses.UsageResponse{
		UsedSecondsToday:      int(used),
		RemainingSecondsToday: remaining,
		Sessions:              make([]responses.UsageSession, 0, len(logs)),
	}
	for _, l := range logs {
		out.Sessions = append(out.Sessions, responses.UsageSession{
			ConversationID:  l.ConversationID,
			SessionStart:    l.SessionStart,
			DurationSeconds: l.DurationSeconds,
			WasInterrupted:  l.WasInterrupted,
			EstimatedCost:   l.EstimatedCostUSD.String(),
		})
	}
	c.JSON(http.StatusOK, out)
}

func toSummary(conv *conversation.Conversation) responses.ConversationSummary {
	s := responses.ConversationSummary{
		ID:        conv.PublicID,
		Status:    string(conv.Status),
		CreatedAt: conv.CreatedAt,
		UpdatedAt: conv.UpdatedAt,
	}
	if conv.Topic != nil {
		s.Topic = *conv.Topic
	}
	if conv.YearGroup != nil {
		s.YearGroup = *conv.YearGroup
	}
	if conv.LessonPlanID != nil {
		s.LessonPlanID = *conv.LessonPlanID
	}
	return s
}
