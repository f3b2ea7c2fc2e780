package session

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/rs/zerolog"

	"tutor-server/services/voice-api/internal/domain/conversation"
)

// Translator classifies provider events and applies the per-class transform:
// forward to client, accumulate/flush transcripts, dispatch tool calls, and
// manage the responding flag for barge-in cancellation. All methods are
// invoked from the session's relay goroutine only; events are handled
// strictly in arrival order.
type Translator struct {
	client   ClientChannel
	provider ProviderChannel
	store    conversation.Service
	conv     *conversation.Conversation
	seq      *Sequencer
	log      zerolog.Logger

	assistantBuf strings.Builder
	userBuf      strings.Builder
	responding   bool
	speed        float64

	onToolCall func(name string)
	onBargeIn  func()
}

// OnToolCall registers an observer invoked for every dispatched tool call.
func (t *Translator) OnToolCall(fn func(name string)) {
	t.onToolCall = fn
}

// OnBargeIn registers an observer invoked for every cancellation sent
// because the learner spoke over an in-flight response.
func (t *Translator) OnBargeIn(fn func()) {
	t.onBargeIn = fn
}

// NewTranslator creates a translator bound to one session's channels.
func NewTranslator(
	client ClientChannel,
	provider ProviderChannel,
	store conversation.Service,
	conv *conversation.Conversation,
	seq *Sequencer,
	initialSpeed float64,
	log zerolog.Logger,
) *Translator {
	return &Translator{
		client:   client,
		provider: provider,
		store:    store,
		conv:     conv,
		seq:      seq,
		speed:    initialSpeed,
		log:      log.With().Str("component", "translator").Logger(),
	}
}

// IsResponding reports whether the provider has a response in flight.
func (t *Translator) IsResponding() bool {
	return t.responding
}

// Speed returns the current speaking speed multiplier.
func (t *Translator) Speed() float64 {
	return t.speed
}

// HandleProviderEvent processes one provider event. A nil return or a
// recoverable error leaves the session active; a fatal error tells the
// relay to tear down.
func (t *Translator) HandleProviderEvent(ctx context.Context, ev ProviderEvent) error {
	switch ev.Type {
	case ProviderEventResponseCreated:
		t.responding = true
		return t.forward(ev)

	case ProviderEventResponseDone, ProviderEventResponseCancelled:
		t.responding = false
		return t.forward(ev)

	case ProviderEventAssistantDelta:
		t.assistantBuf.WriteString(ev.Delta)
		return t.forward(ev)

	case ProviderEventAssistantDone:
		if err := t.flushAssistant(ctx, ev.Transcript); err != nil {
			return err
		}
		return t.forward(ev)

	case ProviderEventUserDelta:
		t.userBuf.WriteString(ev.Delta)
		return t.forward(ev)

	case ProviderEventUserCompleted:
		if err := t.flushUser(ctx, ev.Transcript); err != nil {
			return err
		}
		return t.forward(ev)

	case ProviderEventSpeechStarted:
		if err := t.handleBargeIn(); err != nil {
			return err
		}
		return t.forward(ev)

	case ProviderEventFunctionCallDone:
		return t.handleFunctionCall(ev)

	case ProviderEventError:
		return t.handleProviderError(ev)

	default:
		return t.forward(ev)
	}
}

// HandleClientMessage processes one message from the client channel.
// Control messages are interpreted; everything else passes through to the
// provider unmodified.
func (t *Translator) HandleClientMessage(ctx context.Context, data []byte) error {
	var in InboundMessage
	if err := json.Unmarshal(data, &in); err == nil && in.Type == InboundMsgUserMessage {
		return t.handleUserMessage(ctx, in.Text)
	}

	if err := t.provider.Send(data); err != nil {
		return Fatal("forward to provider", err)
	}
	return nil
}

// handleUserMessage injects a typed user turn: persisted like a spoken one,
// then handed to the provider with a continuation trigger.
func (t *Translator) handleUserMessage(ctx context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	if err := t.store.AppendMessage(ctx, t.conv.ID, conversation.RoleUser, text); err != nil {
		return Recoverable("persist user message", err)
	}

	if err := t.provider.SendJSON(newUserTextItem(text)); err != nil {
		return Fatal("send user item", err)
	}
	if err := t.provider.SendJSON(responseCreate{Type: ProviderMsgResponseCreate}); err != nil {
		return Fatal("send response.create", err)
	}
	return nil
}

// handleBargeIn cancels the in-flight response when the learner starts
// speaking over it. No response active means nothing to cancel.
func (t *Translator) handleBargeIn() error {
	if !t.responding {
		return nil
	}
	if err := t.provider.SendJSON(responseCancel{Type: ProviderMsgResponseCancel}); err != nil {
		return Fatal("send response.cancel", err)
	}
	if t.onBargeIn != nil {
		t.onBargeIn()
	}
	return nil
}

// handleFunctionCall runs the named tool and always acknowledges: one
// function output followed by a continuation trigger, success or not.
func (t *Translator) handleFunctionCall(ev ProviderEvent) error {
	var args map[string]any
	if ev.Arguments != "" {
		if err := json.Unmarshal([]byte(ev.Arguments), &args); err != nil {
			t.log.Warn().Err(err).Str("tool", ev.Name).Msg("malformed tool arguments")
			args = nil
		}
	}

	if t.onToolCall != nil {
		t.onToolCall(ev.Name)
	}
	output := t.runTool(ev.Name, args)

	if err := t.provider.SendJSON(newFunctionOutput(ev.CallID, output)); err != nil {
		return Fatal("send function output", err)
	}
	if err := t.provider.SendJSON(responseCreate{Type: ProviderMsgResponseCreate}); err != nil {
		return Fatal("send response.create", err)
	}
	return nil
}

// handleProviderError relays a provider-reported error as a client-safe
// notice. In-band provider errors do not close the session.
func (t *Translator) handleProviderError(ev ProviderEvent) error {
	msg := ErrorMessage{
		Type:    ClientMsgServerError,
		Error:   "provider_error",
		Fatal:   false,
		Message: "The tutor hit a temporary problem. Please keep going.",
	}
	if ev.Error != nil {
		t.log.Warn().
			Str("code", ev.Error.Code).
			Str("provider_message", ev.Error.Message).
			Msg("provider error event")
		msg.Details = ev.Error.Code
	}

	if err := t.client.SendJSON(msg); err != nil {
		return Fatal("send error notice", err)
	}
	return nil
}

func (t *Translator) flushAssistant(ctx context.Context, finalTranscript string) error {
	text := t.assistantBuf.String()
	t.assistantBuf.Reset()
	if text == "" {
		text = finalTranscript
	}
	if strings.TrimSpace(text) == "" {
		return nil
	}

	if err := t.store.AppendMessage(ctx, t.conv.ID, conversation.RoleAssistant, text); err != nil {
		return Recoverable("persist assistant turn", err)
	}
	return nil
}

func (t *Translator) flushUser(ctx context.Context, finalTranscript string) error {
	text := t.userBuf.String()
	t.userBuf.Reset()
	if text == "" {
		text = finalTranscript
	}
	if strings.TrimSpace(text) == "" {
		return nil
	}

	if err := t.store.AppendMessage(ctx, t.conv.ID, conversation.RoleUser, text); err != nil {
		return Recoverable("persist user turn", err)
	}
	return nil
}

// forward passes the raw provider frame to the client unmodified.
func (t *Translator) forward(ev ProviderEvent) error {
	if len(ev.Raw) == 0 {
		return nil
	}
	if err := t.client.Send(ev.Raw); err != nil {
		return Fatal("forward to client", err)
	}
	return nil
}

// sendMarker emits a content.marker for a sequencer reveal.
func (t *Translator) sendMarker(rev Reveal) error {
	msg := MarkerMessage{
		Type: ClientMsgContentMarker,
		Data: MarkerData{
			Type:       rev.Marker,
			StepID:     rev.StepID,
			StepTitle:  rev.StepTitle,
			BlockIndex: rev.BlockIndex,
			Summary:    rev.Summary,
			Reason:     rev.Reason,
		},
	}
	if err := t.client.SendJSON(msg); err != nil {
		return Fatal("send content marker", err)
	}
	return nil
}
