package domain

import "time"

// Purposes recorded with each accounted classification request.
const (
	AIPurposeAttribution = "event_attribution"
	AIPurposeRoster      = "roster_extraction"
)

// AIRequest is one accounted call to the classification service. Failed
// calls are recorded too, with zero token counts and the error message.
type AIRequest struct {
	ID           int64
	ChapterID    int64
	Purpose      string
	Model        string
	InputTokens  int64
	OutputTokens int64
	CostUSD      float64
	Success      bool
	ErrorMessage *string
	CreatedAt    time.Time
}
