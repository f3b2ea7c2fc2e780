// Package session implements the realtime voice session core: the relay
// between a learner's websocket and the speech provider, the provider event
// translator, and the content-reveal sequencer.
package session

import (
	"encoding/json"
	"time"

	"tutor-server/services/voice-api/internal/domain/lesson"
)

// Client-facing wire message types.
const (
	ClientMsgConnectionStatus = "connection.status"
	ClientMsgContentMarker    = "content.marker"
	ClientMsgContentBlock     = "content.block"
	ClientMsgKeepalive        = "server.keepalive"
	ClientMsgLimitReached     = "session.limit_reached"
	ClientMsgServerError      = "server_error"
	ClientMsgConnectionClosed = "connection.closed"
)

// Client-to-server message types. Anything else from the client is forwarded
// to the provider unmodified.
const (
	InboundMsgUserMessage = "user_message"
)

// Provider event types (realtime API wire protocol).
const (
	ProviderEventResponseCreated     = "response.created"
	ProviderEventResponseDone        = "response.done"
	ProviderEventResponseCancelled   = "response.cancelled"
	ProviderEventAssistantDelta      = "response.audio_transcript.delta"
	ProviderEventAssistantDone       = "response.audio_transcript.done"
	ProviderEventUserDelta           = "conversation.item.input_audio_transcription.delta"
	ProviderEventUserCompleted       = "conversation.item.input_audio_transcription.completed"
	ProviderEventSpeechStarted       = "input_audio_buffer.speech_started"
	ProviderEventFunctionCallDone    = "response.function_call_arguments.done"
	ProviderEventError               = "error"
)

// Messages sent to the provider.
const (
	ProviderMsgResponseCancel = "response.cancel"
	ProviderMsgItemCreate     = "conversation.item.create"
	ProviderMsgResponseCreate = "response.create"
	ProviderMsgSessionUpdate  = "session.update"
)

// ProviderEvent is one parsed event from the provider channel. Raw carries
// the original bytes for passthrough forwarding.
type ProviderEvent struct {
	Type       string         `json:"type"`
	EventID    string         `json:"event_id,omitempty"`
	Delta      string         `json:"delta,omitempty"`
	Transcript string         `json:"transcript,omitempty"`
	CallID     string         `json:"call_id,omitempty"`
	Name       string         `json:"name,omitempty"`
	Arguments  string         `json:"arguments,omitempty"`
	Error      *ProviderError `json:"error,omitempty"`

	Raw json.RawMessage `json:"-"`
}

// ProviderError is the error payload inside a provider "error" event.
type ProviderError struct {
	Type    string `json:"type,omitempty"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// ParseProviderEvent decodes a raw provider frame, retaining the original
// bytes for passthrough.
func ParseProviderEvent(data []byte) (ProviderEvent, error) {
	var ev ProviderEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return ProviderEvent{}, err
	}
	ev.Raw = data
	return ev, nil
}

// ClientChannel is the connection to the learner's browser. Messages is
// closed when the peer disconnects.
type ClientChannel interface {
	Messages() <-chan []byte
	Send(data []byte) error
	SendJSON(v any) error
	Close(reason string) error
}

// ProviderChannel is the connection to the realtime speech provider. Events
// is closed when the provider disconnects.
type ProviderChannel interface {
	Events() <-chan ProviderEvent
	Send(data []byte) error
	SendJSON(v any) error
	Ping() error
	Close() error
}

// StatusMessage reports connection establishment to the client.
type StatusMessage struct {
	Type           string `json:"type"`
	Status         string `json:"status"`
	ConversationID string `json:"conversationId"`
}

// MarkerData is the payload of a content.marker message.
type MarkerData struct {
	Type       string `json:"type"`
	StepID     string `json:"stepId,omitempty"`
	StepTitle  string `json:"stepTitle,omitempty"`
	BlockIndex int    `json:"blockIndex"`
	Summary    string `json:"summary,omitempty"`
	Reason     string `json:"reason,omitempty"`
}

// MarkerMessage announces a step/content transition to the client.
type MarkerMessage struct {
	Type string     `json:"type"`
	Data MarkerData `json:"data"`
}

// BlockMessage delivers an ad hoc content block to the client.
type BlockMessage struct {
	Type     string               `json:"type"`
	Block    *lesson.ContentBlock `json:"block"`
	AutoShow bool                 `json:"autoShow"`
}

// KeepaliveMessage is a liveness ping to the client.
type KeepaliveMessage struct {
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp"`
}

// LimitReachedMessage tells the client the session budget is spent.
type LimitReachedMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// ErrorMessage is a structured, client-safe error notice.
type ErrorMessage struct {
	Type    string `json:"type"`
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
	Fatal   bool   `json:"fatal"`
	Message string `json:"message"`
}

// ClosedMessage is the final frame before the client channel closes.
type ClosedMessage struct {
	Type     string `json:"type"`
	Reason   string `json:"reason"`
	Code     int    `json:"code"`
	WasClean bool   `json:"wasClean"`
	Message  string `json:"message"`
}

// InboundMessage is a decoded client-to-server control message.
type InboundMessage struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// NewKeepalive builds a keepalive frame stamped with the current time.
func NewKeepalive() KeepaliveMessage {
	return KeepaliveMessage{Type: ClientMsgKeepalive, Timestamp: time.Now().UnixMilli()}
}

// functionOutputItem is the conversation.item.create payload acknowledging a
// tool call.
type functionOutputItem struct {
	Type string             `json:"type"`
	Item functionOutputBody `json:"item"`
}

type functionOutputBody struct {
	Type   string `json:"type"`
	CallID string `json:"call_id"`
	Output string `json:"output"`
}

// userTextItem is the conversation.item.create payload for an injected user
// turn.
type userTextItem struct {
	Type string       `json:"type"`
	Item userItemBody `json:"item"`
}

type userItemBody struct {
	Type    string            `json:"type"`
	Role    string            `json:"role"`
	Content []userItemContent `json:"content"`
}

type userItemContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// responseCreate asks the provider to continue generating.
type responseCreate struct {
	Type string `json:"type"`
}

// responseCancel aborts the provider's in-flight response.
type responseCancel struct {
	Type string `json:"type"`
}

// SessionUpdate reconfigures the provider session mid-flight.
type SessionUpdate struct {
	Type    string        `json:"type"`
	Session SessionParams `json:"session"`
}

// SessionParams is the provider-side session configuration.
type SessionParams struct {
	Instructions string           `json:"instructions,omitempty"`
	Voice        string           `json:"voice,omitempty"`
	Speed        float64          `json:"speed,omitempty"`
	Tools        []ToolDefinition `json:"tools,omitempty"`
	ToolChoice   string           `json:"tool_choice,omitempty"`
}

func newFunctionOutput(callID, output string) functionOutputItem {
	return functionOutputItem{
		Type: ProviderMsgItemCreate,
		Item: functionOutputBody{
			Type:   "function_call_output",
			CallID: callID,
			Output: output,
		},
	}
}

func newUserTextItem(text string) userTextItem {
	return userTextItem{
		Type: ProviderMsgItemCreate,
		Item: userItemBody{
			Type: "message",
			Role: "user",
			Content: []userItemContent{
				{Type: "input_text", Text: text},
			},
		},
	}
}
