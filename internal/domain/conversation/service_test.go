package conversation_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"tutor-server/services/voice-api/internal/domain/conversation"
	"tutor-server/services/voice-api/internal/domain/usage"
)

type mockRepo struct {
	CreateFunc         func(ctx context.Context, conv *conversation.Conversation) error
	FindByPublicIDFunc func(ctx context.Context, publicID string) (*conversation.Conversation, error)
	FindByUserFunc     func(ctx context.Context, userID string, limit int) ([]*conversation.Conversation, error)
	UpdateStatusFunc   func(ctx context.Context, id uint, status conversation.Status) error
	AddMessageFunc     func(ctx context.Context, msg *conversation.Message) error
	FindMessagesFunc   func(ctx context.Context, conversationID uint) ([]*conversation.Message, error)
	MarkStaleEndedFunc func(ctx context.Context, cutoff time.Time) (int64, error)
}

func (m *mockRepo) Create(ctx context.Context, conv *conversation.Conversation) error {
	return m.CreateFunc(ctx, conv)
}

func (m *mockRepo) FindByPublicID(ctx context.Context, publicID string) (*conversation.Conversation, error) {
	return m.FindByPublicIDFunc(ctx, publicID)
}

func (m *mockRepo) FindByUser(ctx context.Context, userID string, limit int) ([]*conversation.Conversation, error) {
	return m.FindByUserFunc(ctx, userID, limit)
}

func (m *mockRepo) UpdateStatus(ctx context.Context, id uint, status conversation.Status) error {
	return m.UpdateStatusFunc(ctx, id, status)
}

func (m *mockRepo) AddMessage(ctx context.Context, msg *conversation.Message) error {
	return m.AddMessageFunc(ctx, msg)
}

func (m *mockRepo) FindMessages(ctx context.Context, conversationID uint) ([]*conversation.Message, error) {
	return m.FindMessagesFunc(ctx, conversationID)
}

func (m *mockRepo) MarkStaleEnded(ctx context.Context, cutoff time.Time) (int64, error) {
	return m.MarkStaleEndedFunc(ctx, cutoff)
}

type mockUsageRepo struct {
	created []*usage.Log
}

func (m *mockUsageRepo) Create(ctx context.Context, record *usage.Log) error {
	m.created = append(m.created, record)
	return nil
}

func (m *mockUsageRepo) UserSecondsSince(ctx context.Context, userID string, since time.Time) (int64, error) {
	return 0, nil
}

func (m *mockUsageRepo) FindByUser(ctx context.Context, userID string, limit int) ([]*usage.Log, error) {
	return nil, nil
}

func newTestService(repo *mockRepo, usageRepo *mockUsageRepo) conversation.Service {
	return conversation.NewService(repo, usageRepo, 5*time.Minute, 24*time.Hour, zerolog.Nop())
}

func TestService_GetOrCreate(t *testing.T) {
	owned := &conversation.Conversation{ID: 1, PublicID: "conv-own", UserID: "user-1"}

	tests := []struct {
		name       string
		publicID   string
		userID     string
		wantNew    bool
		wantPublic string
	}{
		{name: "existing owned conversation", publicID: "conv-own", userID: "user-1", wantNew: false, wantPublic: "conv-own"},
		{name: "foreign conversation gets a fresh one", publicID: "conv-own", userID: "user-2", wantNew: true},
		{name: "unknown id gets a fresh one", publicID: "conv-missing", userID: "user-1", wantNew: true},
		{name: "empty id gets a fresh one", publicID: "", userID: "user-1", wantNew: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var created *conversation.Conversation
			repo := &mockRepo{
				FindByPublicIDFunc: func(ctx context.Context, publicID string) (*conversation.Conversation, error) {
					if publicID == "conv-own" {
						return owned, nil
					}
					return nil, conversation.ErrNotFound
				},
				CreateFunc: func(ctx context.Context, conv *conversation.Conversation) error {
					created = conv
					return nil
				},
			}
			svc := newTestService(repo, &mockUsageRepo{})

			conv, err := svc.GetOrCreate(context.Background(), tt.publicID, tt.userID, conversation.Metadata{Topic: "algebra"})
			if err != nil {
				t.Fatalf("GetOrCreate: %v", err)
			}

			if tt.wantNew {
				if created == nil {
					t.Fatal("no conversation created")
				}
				if conv.PublicID == tt.publicID && tt.publicID != "" {
					t.Fatal("reused a conversation that should have been replaced")
				}
				if conv.UserID != tt.userID {
					t.Fatalf("owner = %q, want %q", conv.UserID, tt.userID)
				}
				if conv.Status != conversation.StatusActive {
					t.Fatalf("status = %q", conv.Status)
				}
				if conv.Topic == nil || *conv.Topic != "algebra" {
					t.Fatalf("topic = %v", conv.Topic)
				}
			} else {
				if created != nil {
					t.Fatal("created a conversation unnecessarily")
				}
				if conv.PublicID != tt.wantPublic {
					t.Fatalf("publicID = %q, want %q", conv.PublicID, tt.wantPublic)
				}
			}
		})
	}
}

func TestService_LogUsageClampsDuration(t *testing.T) {
	tests := []struct {
		name    string
		elapsed time.Duration
		want    int
	}{
		{name: "normal session", elapsed: 90 * time.Second, want: 90},
		{name: "teardown delay past the cap", elapsed: 5*time.Minute + 30*time.Second, want: 300},
		{name: "clock weirdness", elapsed: -3 * time.Second, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &mockRepo{
				UpdateStatusFunc: func(ctx context.Context, id uint, status conversation.Status) error {
					if status != conversation.StatusEnded {
						t.Fatalf("status = %q, want ended", status)
					}
					return nil
				},
			}
			usageRepo := &mockUsageRepo{}
			svc := newTestService(repo, usageRepo)

			conv := &conversation.Conversation{ID: 7, PublicID: "conv-7", UserID: "user-1"}
			got, err := svc.LogUsage(context.Background(), conv, time.Now(), tt.elapsed, true)
			if err != nil {
				t.Fatalf("LogUsage: %v", err)
			}
			if got != tt.want {
				t.Fatalf("seconds = %d, want %d", got, tt.want)
			}
			if len(usageRepo.created) != 1 {
				t.Fatalf("created %d usage rows, want 1", len(usageRepo.created))
			}
			rec := usageRepo.created[0]
			if rec.DurationSeconds != tt.want || !rec.WasInterrupted {
				t.Fatalf("record = %+v", rec)
			}
		})
	}
}

func TestService_AppendMessageSkipsEmpty(t *testing.T) {
	var added int
	repo := &mockRepo{
		AddMessageFunc: func(ctx context.Context, msg *conversation.Message) error {
			added++
			return nil
		},
	}
	svc := newTestService(repo, &mockUsageRepo{})

	if err := svc.AppendMessage(context.Background(), 1, conversation.RoleAssistant, "   "); err != nil {
		t.Fatalf("AppendMessage: %v", err)
	}
	if added != 0 {
		t.Fatalf("persisted %d blank messages", added)
	}

	if err := svc.AppendMessage(context.Background(), 1, conversation.RoleAssistant, "hello"); err != nil {
		t.Fatalf("AppendMessage: %v", err)
	}
	if added != 1 {
		t.Fatalf("persisted %d messages, want 1", added)
	}
}

func TestService_GetConversationEnforcesOwnership(t *testing.T) {
	repo := &mockRepo{
		FindByPublicIDFunc: func(ctx context.Context, publicID string) (*conversation.Conversation, error) {
			return &conversation.Conversation{ID: 1, PublicID: publicID, UserID: "user-1"}, nil
		},
		FindMessagesFunc: func(ctx context.Context, conversationID uint) ([]*conversation.Message, error) {
			return []*conversation.Message{
				{PublicID: "msg-1", Role: conversation.RoleUser, Content: "hi"},
			}, nil
		},
	}
	svc := newTestService(repo, &mockUsageRepo{})

	conv, err := svc.GetConversation(context.Background(), "conv-1", "user-1")
	if err != nil {
		t.Fatalf("GetConversation: %v", err)
	}
	if len(conv.Messages) != 1 {
		t.Fatalf("messages = %d, want 1", len(conv.Messages))
	}

	if _, err := svc.GetConversation(context.Background(), "conv-1", "user-2"); !errors.Is(err, conversation.ErrNotOwned) {
		t.Fatalf("err = %v, want ErrNotOwned", err)
	}
}

func TestService_SweepStale(t *testing.T) {
	var gotCutoff time.Time
	repo := &mockRepo{
		MarkStaleEndedFunc: func(ctx context.Context, cutoff time.Time) (int64, error) {
			gotCutoff = cutoff
			return 3, nil
		},
	}
	svc := newTestService(repo, &mockUsageRepo{})

	n, err := svc.SweepStale(context.Background())
	if err != nil {
		t.Fatalf("SweepStale: %v", err)
	}
	if n != 3 {
		t.Fatalf("swept = %d, want 3", n)
	}
	if time.Since(gotCutoff) < 23*time.Hour {
		t.Fatalf("cutoff = %v, want about 24h ago", gotCutoff)
	}
}
