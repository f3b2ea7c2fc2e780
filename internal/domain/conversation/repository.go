package conversation

import (
	"context"
	"time"
)

// Repository defines data access for conversations and their messages.
type Repository interface {
	Create(ctx context.Context, conv *Conversation) error
	FindByPublicID(ctx context.Context, publicID string) (*Conversation, error)
	FindByUser(ctx context.Context, userID string, limit int) ([]*Conversation, error)
	UpdateStatus(ctx context.Context, id uint, status Status) error

	AddMessage(ctx context.Context, msg *Message) error
	FindMessages(ctx context.Context, conversationID uint) ([]*Message, error)

	// MarkStaleEnded flips conversations still active after the cutoff to
	// ended and returns how many rows changed.
	MarkStaleEnded(ctx context.Context, cutoff time.Time) (int64, error)
}
