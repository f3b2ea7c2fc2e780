// Package handlers contains the HTTP and websocket handlers for the
// voice-api.
package handlers

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"tutor-server/services/voice-api/internal/config"
	"tutor-server/services/voice-api/internal/domain/conversation"
	"tutor-server/services/voice-api/internal/domain/lesson"
	"tutor-server/services/voice-api/internal/domain/prompt"
	"tutor-server/services/voice-api/internal/domain/quota"
	"tutor-server/services/voice-api/internal/domain/session"
	"tutor-server/services/voice-api/internal/infrastructure/auth"
	"tutor-server/services/voice-api/internal/infrastructure/metrics"
	"tutor-server/services/voice-api/internal/infrastructure/provider"
	"tutor-server/services/voice-api/internal/infrastructure/wsclient"
	"tutor-server/services/voice-api/internal/interfaces/httpserver/middlewares"
	"tutor-server/services/voice-api/internal/interfaces/httpserver/responses"
)

// LiveHandler owns the voice session websocket endpoint. Identity and quota
// are checked before the upgrade; a refused connection never reaches the
// provider.
type LiveHandler struct {
	cfg           *config.Config
	verifier      auth.Verifier
	quotaGate     quota.Service
	conversations conversation.Service
	plans         lesson.PlanSource
	assembler     *prompt.Assembler
	baseCtx       context.Context
	upgrader      websocket.Upgrader
	validate      *validator.Validate
	sessions      sync.WaitGroup
	log           zerolog.Logger
}

// ConnectRequest carries the connect-time query parameters. All fields
// are optional; a blank request starts a fresh free-form conversation.
type ConnectRequest struct {
	ConversationID string `form:"conversationId" validate:"omitempty,max=64"`
	Topic          string `form:"topic" validate:"omitempty,max=200"`
	YearGroup      string `form:"yearGroup" validate:"omitempty,max=32"`
	LessonPlanID   string `form:"lessonPlanId" validate:"omitempty,max=64"`
}

// NewLiveHandler creates the websocket session handler. Sessions run under
// baseCtx so a server shutdown tears them down gracefully.
func NewLiveHandler(
	cfg *config.Config,
	verifier auth.Verifier,
	quotaGate quota.Service,
	conversations conversation.Service,
	plans lesson.PlanSource,
	assembler *prompt.Assembler,
	baseCtx context.Context,
	log zerolog.Logger,
) *LiveHandler {
	return &LiveHandler{
		cfg:           cfg,
		verifier:      verifier,
		quotaGate:     quotaGate,
		conversations: conversations,
		plans:         plans,
		assembler:     assembler,
		baseCtx:       baseCtx,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		validate: validator.New(validator.WithRequiredStructEnabled()),
		log:      log.With().Str("component", "live-handler").Logger(),
	}
}

// Handle runs one voice session from upgrade to teardown.
func (h *LiveHandler) Handle(c *gin.Context) {
	ctx := c.Request.Context()

	token := middlewares.BearerToken(c)
	identity, err := h.verifier.Verify(ctx, token)
	if err != nil {
		metrics.RecordConnectionRejected("unauthorized")
		responses.WriteUnauthorized(c, "invalid or missing token")
		return
	}

	var req ConnectRequest
	if err := c.ShouldBindQuery(&req); err == nil {
		err = h.validate.Struct(&req)
	}
	if err != nil {
		metrics.RecordConnectionRejected("bad_request")
		responses.WriteError(c, http.StatusBadRequest, "invalid_request", "invalid connection parameters")
		return
	}

	decision, err := h.quotaGate.Check(ctx, identity.UserID)
	if err != nil {
		// The gate never fails open.
		h.log.Error().Err(err).Str("user_id", identity.UserID).Msg("quota check failed")
		metrics.RecordConnectionRejected("quota_error")
		responses.WriteForbidden(c, "session allowance could not be verified")
		return
	}
	if !decision.Allowed {
		metrics.RecordConnectionRejected("quota_exhausted")
		c.JSON(http.StatusForbidden, gin.H{
			"allowed": false,
			"error": gin.H{
				"message": decision.Reason,
				"type":    "forbidden_error",
			},
		})
		return
	}

	meta := conversation.Metadata{
		Topic:        req.Topic,
		YearGroup:    req.YearGroup,
		LessonPlanID: req.LessonPlanID,
	}

	var plan *lesson.Plan
	if meta.LessonPlanID != "" {
		plan, err = h.plans.GetPlan(ctx, meta.LessonPlanID)
		if err != nil {
			// A missing plan degrades to a free-form session rather than
			// refusing the learner.
			h.log.Warn().Err(err).Str("lesson_plan_id", meta.LessonPlanID).Msg("lesson plan unavailable")
			plan = nil
		}
	}

	conv, err := h.conversations.GetOrCreate(ctx, req.ConversationID, identity.UserID, meta)
	if err != nil {
		h.log.Error().Err(err).Msg("conversation setup failed")
		responses.WriteInternal(c, "could not start session")
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade writes its own response.
		h.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := wsclient.Wrap(conn, h.log)

	// Hijacked connections are invisible to http.Server.Shutdown, so the
	// handler keeps its own count for the shutdown wait.
	h.sessions.Add(1)
	defer h.sessions.Done()
	h.runSession(client, conv, plan, meta)
}

// WaitSessions blocks until every live session has finished tearing down,
// usage write included, or the context expires.
func (h *LiveHandler) WaitSessions(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		h.sessions.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// runSession dials the provider, applies the session configuration and
// hands control to the relay. The client socket is live at this point, so
// failures surface as wire-level error frames, not HTTP statuses.
func (h *LiveHandler) runSession(
	client *wsclient.Channel,
	conv *conversation.Conversation,
	plan *lesson.Plan,
	meta conversation.Metadata,
) {
	dialCtx, cancel := context.WithTimeout(h.baseCtx, h.cfg.ProviderDialTimeout)
	defer cancel()

	dialStart := time.Now()
	prov, err := provider.Dial(dialCtx, provider.DialConfig{
		URL:     h.cfg.ProviderURL,
		APIKey:  h.cfg.ProviderAPIKey,
		Model:   h.cfg.ProviderModel,
		Timeout: h.cfg.ProviderDialTimeout,
	}, h.log)
	if err != nil {
		h.log.Error().Err(err).Msg("provider dial failed")
		h.failSession(client, "The tutor service is unavailable right now. Please try again shortly.")
		return
	}
	metrics.ProviderDialDuration.Observe(time.Since(dialStart).Seconds())

	settings := h.assembler.Build(prompt.Params{
		Topic:     meta.Topic,
		YearGroup: meta.YearGroup,
		Plan:      plan,
	})
	update := session.SessionUpdate{
		Type: session.ProviderMsgSessionUpdate,
		Session: session.SessionParams{
			Instructions: settings.Instructions,
			Voice:        settings.Voice,
			Speed:        settings.Speed,
			Tools:        settings.Tools,
			ToolChoice:   "auto",
		},
	}
	if err := prov.SendJSON(update); err != nil {
		h.log.Error().Err(err).Msg("provider configuration failed")
		_ = prov.Close()
		h.failSession(client, "The tutor could not be configured. Please try again shortly.")
		return
	}

	seq := session.NewSequencer(plan)
	translator := session.NewTranslator(client, prov, h.conversations, conv, seq, settings.Speed, h.log)
	translator.OnToolCall(metrics.RecordToolCall)
	translator.OnBargeIn(metrics.RecordBargeIn)

	relay := session.NewRelay(session.Options{
		MaxDuration:       h.cfg.MaxSessionDuration,
		KeepaliveInterval: h.cfg.KeepaliveInterval,
	}, client, prov, h.conversations, conv, translator, h.log)

	metrics.RecordSessionStarted()
	result := relay.Run(h.baseCtx)
	metrics.RecordSessionEnded(result.Reason, result.DurationSeconds)
}

// failSession reports a fatal setup error over the live socket and closes
// it. No usage is logged: the session never became active.
func (h *LiveHandler) failSession(client *wsclient.Channel, message string) {
	notice := session.ErrorMessage{
		Type:    session.ClientMsgServerError,
		Error:   "session_setup_failed",
		Fatal:   true,
		Message: message,
	}
	if err := client.SendJSON(notice); err != nil {
		h.log.Debug().Err(err).Msg("failed to send setup error")
	}
	_ = client.Close("setup_failed")
}
