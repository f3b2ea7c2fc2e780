// Package responses contains HTTP response DTOs for the voice-api.
package responses

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// ErrorResponse represents an error response body.
type ErrorResponse struct {
	Error *ErrorDetail `json:"error"`
}

// ErrorDetail contains error details.
type ErrorDetail struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code,omitempty"`
}

// WriteError writes a structured error with the given status.
func WriteError(c *gin.Context, status int, errType, message string) {
	c.JSON(status, ErrorResponse{
		Error: &ErrorDetail{Message: message, Type: errType},
	})
}

// WriteUnauthorized writes a 401 response.
func WriteUnauthorized(c *gin.Context, message string) {
	WriteError(c, http.StatusUnauthorized, "unauthorized_error", message)
}

// WriteForbidden writes a 403 response.
func WriteForbidden(c *gin.Context, message string) {
	WriteError(c, http.StatusForbidden, "forbidden_error", message)
}

// WriteNotFound writes a 404 response.
func WriteNotFound(c *gin.Context, message string) {
	WriteError(c, http.StatusNotFound, "not_found_error", message)
}

// WriteInternal writes a 500 response.
func WriteInternal(c *gin.Context, message string) {
	WriteError(c, http.StatusInternalServerError, "internal_error", message)
}

// ConversationSummary is one row in the conversation list.
type ConversationSummary struct {
	ID           string    `json:"id"`
	Status       string    `json:"status"`
	Topic        string    `json:"topic,omitempty"`
	YearGroup    string    `json:"yearGroup,omitempty"`
	LessonPlanID string    `json:"lessonPlanId,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// ConversationDetail is a conversation with its transcript.
type ConversationDetail struct {
	ConversationSummary
	Messages []MessageResponse `json:"messages"`
}

// MessageResponse is one transcript turn.
type MessageResponse struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

// UsageResponse reports a user's recent sessions and remaining allowance.
type UsageResponse struct {
	UsedSecondsToday      int            `json:"usedSecondsToday"`
	RemainingSecondsToday int            `json:"remainingSecondsToday"`
	Sessions              []UsageSession `json:"sessions"`
}

// UsageSession is one logged session.
type UsageSession struct {
	ConversationID  string    `json:"conversationId"`
	SessionStart    time.Time `json:"sessionStart"`
	DurationSeconds int       `json:"durationSeconds"`
	WasInterrupted  bool      `json:"wasInterrupted"`
	EstimatedCost   string    `json:"estimatedCostUsd"`
}
