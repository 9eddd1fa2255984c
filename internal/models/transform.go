package models

import "time"

// Transformation status values mirrored into Redis for the lifetime of a
// request.
const (
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// TransformResponse is the success body of POST /api/process. The processed
// image is delivered inline as a data URL; it is never persisted.
type TransformResponse struct {
	Success         bool   `json:"success"`
	ProcessedImage  string `json:"processedImage"`
	Message         string `json:"message"`
	CreditsDeducted bool   `json:"creditsDeducted"`
	CurrentCredits  int    `json:"currentCredits"`
	NewCredits      int    `json:"newCredits"`
}

// TransformEvent is published to Kafka for every terminal transformation
// outcome. The reconciliation worker picks up events where a generation
// succeeded but the credit write did not.
type TransformEvent struct {
	TransformID     string    `json:"transform_id"`
	UserID          string    `json:"user_id"`
	Success         bool      `json:"success"`
	CreditsDeducted bool      `json:"credits_deducted"`
	CreditsBefore   int       `json:"credits_before"`
	Error           string    `json:"error,omitempty"`
	OccurredAt      time.Time `json:"occurred_at"`
}

// NeedsReconciliation reports whether a successful generation was delivered
// without its credit decrement landing.
func (e TransformEvent) NeedsReconciliation() bool {
	return e.Success && !e.CreditsDeducted
}
