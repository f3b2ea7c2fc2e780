package session_test

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"tutor-server/services/voice-api/internal/domain/conversation"
	"tutor-server/services/voice-api/internal/domain/session"
)

type fakeClient struct {
	mu       sync.Mutex
	msgs     chan []byte
	sentRaw  [][]byte
	sentJSON []any
	sendErr  error
	closed   bool
}

func newFakeClient() *fakeClient {
	return &fakeClient{msgs: make(chan []byte, 16)}
}

func (c *fakeClient) Messages() <-chan []byte { return c.msgs }

func (c *fakeClient) Send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sendErr != nil {
		return c.sendErr
	}
	c.sentRaw = append(c.sentRaw, data)
	return nil
}

func (c *fakeClient) SendJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sendErr != nil {
		return c.sendErr
	}
	c.sentJSON = append(c.sentJSON, v)
	return nil
}

func (c *fakeClient) Close(reason string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeClient) jsonMessages() []any {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]any, len(c.sentJSON))
	copy(out, c.sentJSON)
	return out
}

func (c *fakeClient) rawMessages() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([][]byte, len(c.sentRaw))
	copy(out, c.sentRaw)
	return out
}

type fakeProvider struct {
	mu       sync.Mutex
	events   chan session.ProviderEvent
	sentRaw  [][]byte
	sentJSON []any
	sendErr  error
	pings    int
	closed   bool
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{events: make(chan session.ProviderEvent, 16)}
}

func (p *fakeProvider) Events() <-chan session.ProviderEvent { return p.events }

func (p *fakeProvider) Send(data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.sendErr != nil {
		return p.sendErr
	}
	p.sentRaw = append(p.sentRaw, data)
	return nil
}

func (p *fakeProvider) SendJSON(v any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.sendErr != nil {
		return p.sendErr
	}
	p.sentJSON = append(p.sentJSON, v)
	return nil
}

func (p *fakeProvider) Ping() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pings++
	return nil
}

func (p *fakeProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func (p *fakeProvider) jsonMessages() []any {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]any, len(p.sentJSON))
	copy(out, p.sentJSON)
	return out
}

// jsonType extracts the "type" field of a message the fakes recorded.
func jsonType(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	var env struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(b, &env); err != nil {
		return ""
	}
	return env.Type
}

type appendedMessage struct {
	Role    conversation.Role
	Content string
}

type fakeStore struct {
	mu          sync.Mutex
	appended    []appendedMessage
	appendErr   error
	usageCalls  int
	usageResult int
}

func (s *fakeStore) GetOrCreate(ctx context.Context, publicID, userID string, meta conversation.Metadata) (*conversation.Conversation, error) {
	return &conversation.Conversation{PublicID: publicID, UserID: userID}, nil
}

func (s *fakeStore) AppendMessage(ctx context.Context, conversationID uint, role conversation.Role, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.appendErr != nil {
		return s.appendErr
	}
	s.appended = append(s.appended, appendedMessage{Role: role, Content: content})
	return nil
}

func (s *fakeStore) LogUsage(ctx context.Context, conv *conversation.Conversation, sessionStart time.Time, elapsed time.Duration, wasInterrupted bool) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.usageCalls++
	return s.usageResult, nil
}

func (s *fakeStore) ListUserConversations(ctx context.Context, userID string) ([]*conversation.Conversation, error) {
	return nil, nil
}

func (s *fakeStore) GetConversation(ctx context.Context, publicID, userID string) (*conversation.Conversation, error) {
	return nil, conversation.ErrNotFound
}

func (s *fakeStore) SweepStale(ctx context.Context) (int64, error) { return 0, nil }

func (s *fakeStore) appendedMessages() []appendedMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]appendedMessage, len(s.appended))
	copy(out, s.appended)
	return out
}

func (s *fakeStore) usageLogCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.usageCalls
}

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}
