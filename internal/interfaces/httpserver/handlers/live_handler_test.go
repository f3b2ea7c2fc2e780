package handlers_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"tutor-server/services/voice-api/internal/config"
	"tutor-server/services/voice-api/internal/domain/conversation"
	"tutor-server/services/voice-api/internal/domain/lesson"
	"tutor-server/services/voice-api/internal/domain/prompt"
	"tutor-server/services/voice-api/internal/domain/quota"
	"tutor-server/services/voice-api/internal/infrastructure/auth"
	"tutor-server/services/voice-api/internal/interfaces/httpserver/handlers"
)

// MockQuotaService is a mock implementation of quota.Service.
type MockQuotaService struct {
	CheckFunc func(ctx context.Context, userID string) (quota.Decision, error)
}

func (m *MockQuotaService) Check(ctx context.Context, userID string) (quota.Decision, error) {
	return m.CheckFunc(ctx, userID)
}

// MockConversationService is a mock implementation of conversation.Service.
// Only the methods the live handler touches carry func fields.
type MockConversationService struct {
	GetOrCreateFunc func(ctx context.Context, publicID, userID string, meta conversation.Metadata) (*conversation.Conversation, error)
}

func (m *MockConversationService) GetOrCreate(ctx context.Context, publicID, userID string, meta conversation.Metadata) (*conversation.Conversation, error) {
	return m.GetOrCreateFunc(ctx, publicID, userID, meta)
}

func (m *MockConversationService) AppendMessage(ctx context.Context, conversationID uint, role conversation.Role, content string) error {
	return nil
}

func (m *MockConversationService) LogUsage(ctx context.Context, conv *conversation.Conversation, sessionStart time.Time, elapsed time.Duration, wasInterrupted bool) (int, error) {
	return 0, nil
}

func (m *MockConversationService) ListUserConversations(ctx context.Context, userID string) ([]*conversation.Conversation, error) {
	return nil, nil
}

func (m *MockConversationService) GetConversation(ctx context.Context, publicID, userID string) (*conversation.Conversation, error) {
	return nil, conversation.ErrNotFound
}

func (m *MockConversationService) SweepStale(ctx context.Context) (int64, error) {
	return 0, nil
}

// MockPlanSource is a mock implementation of lesson.PlanSource.
type MockPlanSource struct {
	GetPlanFunc func(ctx context.Context, planID string) (*lesson.Plan, error)
}

func (m *MockPlanSource) GetPlan(ctx context.Context, planID string) (*lesson.Plan, error) {
	if m.GetPlanFunc != nil {
		return m.GetPlanFunc(ctx, planID)
	}
	return nil, nil
}

func testConfig() *config.Config {
	return &config.Config{
		ServiceName:         "voice-api",
		ProviderURL:         "ws://127.0.0.1:1",
		ProviderAPIKey:      "test-key",
		ProviderModel:       "test-model",
		ProviderDialTimeout: 500 * time.Millisecond,
		MaxSessionDuration:  time.Minute,
		KeepaliveInterval:   20 * time.Second,
		DailyQuotaSeconds:   1800,
	}
}

func newTestLiveHandler(cfg *config.Config, quotaSvc quota.Service, convs conversation.Service) *handlers.LiveHandler {
	return handlers.NewLiveHandler(
		cfg,
		auth.InsecureVerifier{},
		quotaSvc,
		convs,
		&MockPlanSource{},
		prompt.NewAssembler("alloy", 1.0),
		context.Background(),
		zerolog.Nop(),
	)
}

func allowAllQuota() *MockQuotaService {
	return &MockQuotaService{
		CheckFunc: func(ctx context.Context, userID string) (quota.Decision, error) {
			return quota.Decision{Allowed: true, QuotaID: "daily:" + userID, RemainingSeconds: 1800}, nil
		},
	}
}

func performRequest(h *handlers.LiveHandler, target string) *httptest.ResponseRecorder {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, target, nil)
	h.Handle(c)
	return w
}

func TestLiveHandler_RejectsMissingToken(t *testing.T) {
	h := newTestLiveHandler(testConfig(), allowAllQuota(), &MockConversationService{})

	w := performRequest(h, "/v1/voice/live")
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
}

func TestLiveHandler_RejectsInvalidParams(t *testing.T) {
	h := newTestLiveHandler(testConfig(), allowAllQuota(), &MockConversationService{
		GetOrCreateFunc: func(ctx context.Context, publicID, userID string, meta conversation.Metadata) (*conversation.Conversation, error) {
			t.Fatal("conversation created for an invalid request")
			return nil, nil
		},
	})

	longTopic := strings.Repeat("x", 201)
	w := performRequest(h, "/v1/voice/live?token=user-1&topic="+longTopic)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
	if !strings.Contains(w.Body.String(), "invalid_request") {
		t.Fatalf("body = %s, want an invalid_request error", w.Body.String())
	}
}

func TestLiveHandler_RejectsExhaustedQuota(t *testing.T) {
	quotaSvc := &MockQuotaService{
		CheckFunc: func(ctx context.Context, userID string) (quota.Decision, error) {
			return quota.Decision{Allowed: false, QuotaID: "daily:" + userID, Reason: "daily voice limit reached"}, nil
		},
	}
	h := newTestLiveHandler(testConfig(), quotaSvc, &MockConversationService{
		GetOrCreateFunc: func(ctx context.Context, publicID, userID string, meta conversation.Metadata) (*conversation.Conversation, error) {
			t.Fatal("conversation created despite quota denial")
			return nil, nil
		},
	})

	w := performRequest(h, "/v1/voice/live?token=user-1")
	if w.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusForbidden)
	}

	var body struct {
		Allowed bool `json:"allowed"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Allowed {
		t.Fatal("denial body claims allowed=true")
	}
}

func TestLiveHandler_SetupFailureReportedAndDrained(t *testing.T) {
	convs := &MockConversationService{
		GetOrCreateFunc: func(ctx context.Context, publicID, userID string, meta conversation.Metadata) (*conversation.Conversation, error) {
			return &conversation.Conversation{ID: 1, PublicID: "conv_test", UserID: userID}, nil
		},
	}
	// Provider endpoint is unreachable, so the session fails after the
	// upgrade and must report over the live socket.
	h := newTestLiveHandler(testConfig(), allowAllQuota(), convs)

	gin.SetMode(gin.TestMode)
	engine := gin.New()
	engine.GET("/v1/voice/live", h.Handle)
	srv := httptest.NewServer(engine)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/voice/live?token=user-1"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, frame, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var notice struct {
		Type  string `json:"type"`
		Error string `json:"error"`
		Fatal bool   `json:"fatal"`
	}
	if err := json.Unmarshal(frame, &notice); err != nil {
		t.Fatalf("decode notice: %v", err)
	}
	if notice.Error != "session_setup_failed" || !notice.Fatal {
		t.Fatalf("notice = %+v, want fatal session_setup_failed", notice)
	}

	// The handler must report all sessions finished once teardown is done.
	waitCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := h.WaitSessions(waitCtx); err != nil {
		t.Fatalf("sessions still live after teardown: %v", err)
	}
}
