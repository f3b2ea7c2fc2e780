package session

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"tutor-server/services/voice-api/internal/domain/conversation"
)

// Close reasons reported to the client and in usage records.
const (
	ReasonClientDisconnected   = "client_disconnected"
	ReasonProviderDisconnected = "provider_disconnected"
	ReasonTimeLimit            = "time_limit"
	ReasonFatalError           = "fatal_error"
	ReasonServerShutdown       = "server_shutdown"
)

// Options are the per-session timing parameters.
type Options struct {
	MaxDuration       time.Duration
	KeepaliveInterval time.Duration
}

// Result summarizes a completed session for metrics and logging.
type Result struct {
	Reason          string
	DurationSeconds int
	Interrupted     bool
}

// Relay owns one session's pair of channels. It runs a single event loop
// selecting over client messages, provider events, the hard duration timer
// and both keepalive tickers, so all session state is touched by one
// goroutine. Teardown is idempotent: whichever exit path fires first wins,
// and the usage log is written exactly once.
type Relay struct {
	opts       Options
	client     ClientChannel
	provider   ProviderChannel
	store      conversation.Service
	conv       *conversation.Conversation
	translator *Translator
	log        zerolog.Logger

	startedAt   time.Time
	usageLogged bool
	closeOnce   sync.Once
	result      Result
}

// NewRelay wires a relay over an established pair of channels.
func NewRelay(
	opts Options,
	client ClientChannel,
	provider ProviderChannel,
	store conversation.Service,
	conv *conversation.Conversation,
	translator *Translator,
	log zerolog.Logger,
) *Relay {
	return &Relay{
		opts:       opts,
		client:     client,
		provider:   provider,
		store:      store,
		conv:       conv,
		translator: translator,
		log: log.With().
			Str("component", "relay").
			Str("conversation_id", conv.PublicID).
			Logger(),
	}
}

// Run drives the session until an exit path fires, then tears down and
// returns the session result. It blocks for the life of the session.
func (r *Relay) Run(ctx context.Context) Result {
	r.startedAt = time.Now()

	status := StatusMessage{
		Type:           ClientMsgConnectionStatus,
		Status:         "connected",
		ConversationID: r.conv.PublicID,
	}
	if err := r.client.SendJSON(status); err != nil {
		r.log.Warn().Err(err).Msg("failed to send connection status")
		r.teardown(ctx, ReasonFatalError, true)
		return r.result
	}

	durationTimer := time.NewTimer(r.opts.MaxDuration)
	defer durationTimer.Stop()
	clientKA := time.NewTicker(r.opts.KeepaliveInterval)
	defer clientKA.Stop()
	providerKA := time.NewTicker(r.opts.KeepaliveInterval)
	defer providerKA.Stop()

	r.log.Info().Dur("max_duration", r.opts.MaxDuration).Msg("session active")

	for {
		select {
		case <-ctx.Done():
			r.teardown(ctx, ReasonServerShutdown, true)
			return r.result

		case msg, ok := <-r.client.Messages():
			if !ok {
				r.teardown(ctx, ReasonClientDisconnected, true)
				return r.result
			}
			if err := r.translator.HandleClientMessage(ctx, msg); err != nil {
				if done := r.handleFault(ctx, err); done {
					return r.result
				}
			}

		case ev, ok := <-r.provider.Events():
			if !ok {
				r.teardown(ctx, ReasonProviderDisconnected, true)
				return r.result
			}
			if err := r.translator.HandleProviderEvent(ctx, ev); err != nil {
				if done := r.handleFault(ctx, err); done {
					return r.result
				}
			}

		case <-durationTimer.C:
			limit := LimitReachedMessage{
				Type:    ClientMsgLimitReached,
				Message: "You've reached today's session time limit. Great work!",
			}
			if err := r.client.SendJSON(limit); err != nil {
				r.log.Warn().Err(err).Msg("failed to send limit notice")
			}
			r.teardown(ctx, ReasonTimeLimit, false)
			return r.result

		case <-clientKA.C:
			if err := r.client.SendJSON(NewKeepalive()); err != nil {
				// A dead keepalive self-cancels; the disconnect surfaces
				// through the message channel.
				clientKA.Stop()
			}

		case <-providerKA.C:
			if err := r.provider.Ping(); err != nil {
				providerKA.Stop()
			}
		}
	}
}

// handleFault routes a translator error: recoverable faults become a
// non-fatal client notice, fatal faults end the session. Returns true when
// the session is over.
func (r *Relay) handleFault(ctx context.Context, err error) bool {
	if !IsFatal(err) {
		r.log.Warn().Err(err).Msg("recoverable session fault")
		notice := ErrorMessage{
			Type:    ClientMsgServerError,
			Error:   "session_fault",
			Fatal:   false,
			Message: "Something went wrong, but your session is still running.",
		}
		if sendErr := r.client.SendJSON(notice); sendErr != nil {
			r.teardown(ctx, ReasonFatalError, true)
			return true
		}
		return false
	}

	r.log.Error().Err(err).Msg("fatal session fault")
	notice := ErrorMessage{
		Type:    ClientMsgServerError,
		Error:   "session_fault",
		Fatal:   true,
		Message: "The session hit a problem and has to end.",
	}
	if sendErr := r.client.SendJSON(notice); sendErr != nil {
		r.log.Debug().Err(sendErr).Msg("failed to send fatal notice")
	}
	r.teardown(ctx, ReasonFatalError, true)
	return true
}

// teardown closes both channels and writes the usage log. Safe to call from
// any exit path; only the first call has any effect. Partial transcript
// buffers are discarded: only completed turns are persisted.
func (r *Relay) teardown(ctx context.Context, reason string, interrupted bool) {
	r.closeOnce.Do(func() {
		elapsed := time.Since(r.startedAt)

		closed := ClosedMessage{
			Type:     ClientMsgConnectionClosed,
			Reason:   reason,
			Code:     1000,
			WasClean: !interrupted,
			Message:  closeMessage(reason),
		}
		if err := r.client.SendJSON(closed); err != nil {
			r.log.Debug().Err(err).Msg("failed to send close notice")
		}

		if err := r.client.Close(reason); err != nil {
			r.log.Debug().Err(err).Msg("client channel close")
		}
		if err := r.provider.Close(); err != nil {
			r.log.Debug().Err(err).Msg("provider channel close")
		}

		seconds := 0
		if !r.usageLogged {
			r.usageLogged = true

			// The parent context is often already canceled on teardown
			// paths; the usage write must still land.
			logCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()

			var err error
			seconds, err = r.store.LogUsage(logCtx, r.conv, r.startedAt, elapsed, interrupted)
			if err != nil {
				r.log.Error().Err(err).Msg("usage log write failed")
			}
		}

		r.result = Result{
			Reason:          reason,
			DurationSeconds: seconds,
			Interrupted:     interrupted,
		}

		r.log.Info().
			Str("reason", reason).
			Int("duration_seconds", seconds).
			Bool("interrupted", interrupted).
			Msg("session closed")
	})
}

func closeMessage(reason string) string {
	switch reason {
	case ReasonTimeLimit:
		return "Session time limit reached."
	case ReasonServerShutdown:
		return "The server is restarting. Please reconnect in a moment."
	case ReasonProviderDisconnected:
		return "The tutor connection was lost."
	case ReasonFatalError:
		return "The session ended due to an internal error."
	default:
		return "Session ended."
	}
}
