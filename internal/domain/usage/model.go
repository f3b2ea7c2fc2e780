package usage

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Log is one finished voice session's usage record. Exactly one row is
// written per session, on teardown, regardless of which side closed first.
type Log struct {
	ID               int64           `gorm:"primaryKey;autoIncrement"`
	ConversationID   string          `gorm:"column:conversation_id;not null;index"`
	UserID           string          `gorm:"column:user_id;not null;index"`
	SessionStart     time.Time       `gorm:"column:session_start;not null"`
	DurationSeconds  int             `gorm:"column:duration_seconds;not null;default:0"`
	WasInterrupted   bool            `gorm:"column:was_interrupted;default:false"`
	EstimatedCostUSD decimal.Decimal `gorm:"column:estimated_cost_usd;type:decimal(10,6)"`
	CreatedAt        time.Time       `gorm:"column:created_at;autoCreateTime;index"`
}

// TableName returns the table name for Log.
func (Log) TableName() string {
	return "voice_usage_logs"
}

// Repository defines data access for usage logs.
type Repository interface {
	// Create stores a new usage log record.
	Create(ctx context.Context, log *Log) error

	// UserSecondsSince sums the logged seconds for a user since the given
	// time. Used by the quota gate.
	UserSecondsSince(ctx context.Context, userID string, since time.Time) (int64, error)

	// FindByUser returns the most recent usage logs for a user.
	FindByUser(ctx context.Context, userID string, limit int) ([]*Log, error)
}

// PerMinuteUSD is the estimated provider cost of one tutoring minute.
// Configured here rather than derived from provider billing; good enough
// for dashboards.
var PerMinuteUSD = decimal.NewFromFloat(0.06)

// EstimateCost returns the estimated cost of a session of the given length.
func EstimateCost(durationSeconds int) decimal.Decimal {
	if durationSeconds <= 0 {
		return decimal.Zero
	}
	minutes := decimal.NewFromInt(int64(durationSeconds)).Div(decimal.NewFromInt(60))
	return PerMinuteUSD.Mul(minutes).Round(6)
}
