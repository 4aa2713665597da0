package types

import (
	"fmt"
	"time"
)

// SessionStatus is the lifecycle state of a practice session.
type SessionStatus string

// Session statuses.
const (
	SessionActive    SessionStatus = "active"
	SessionInactive  SessionStatus = "inactive"
	SessionCompleted SessionStatus = "completed"
)

// SessionRecord is the running aggregate of a practice session.
type SessionRecord struct {
	ID              string          `json:"id"`
	UserID          string          `json:"user_id"`
	Title           string          `json:"title"`
	StartTime       time.Time       `json:"start_time"`
	EndTime         time.Time       `json:"end_time,omitempty"`
	Duration        time.Duration   `json:"duration"`
	AccumulatedText string          `json:"accumulated_text"`
	Entries         []FeedbackEntry `json:"entries"`
	Scores          Scores          `json:"scores"`
	OverallScore    *int            `json:"overall_score,omitempty"`
	Status          SessionStatus   `json:"status"`
}

// RepresentativeImage returns the first frame kept for the session, if any.
func (r *SessionRecord) RepresentativeImage() (Frame, bool) {
	for i := range r.Entries {
		if len(r.Entries[i].Image.Data) > 0 {
			return r.Entries[i].Image, true
		}
	}
	return Frame{}, false
}

// FormatDuration renders d as MM:SS, the format reports carry.
func FormatDuration(d time.Duration) string {
	total := int(d / time.Second)
	return fmt.Sprintf("%02d:%02d", total/60, total%60)
}

// Metrics are the sub-scores as stored on a persisted report.
type Metrics struct {
	Flexibility *int `json:"flexibility"`
	Alignment   *int `json:"alignment"`
	Smoothness  *int `json:"smoothness"`
	Energy      *int `json:"energy"`
}

// ReportFeedback is one feedback item of a persisted report.
type ReportFeedback struct {
	Text      string    `json:"text"`
	Image     string    `json:"image"`
	Timestamp time.Time `json:"timestamp"`
}

// Report is the persistable session payload exchanged with the backend
// (POST /ai-reports). ID and CreatedAt are assigned by the server.
type Report struct {
	ID           string           `json:"_id,omitempty"`
	SessionID    string           `json:"sessionId,omitempty"`
	UserID       string           `json:"userId,omitempty"`
	Title        string           `json:"title"`
	Description  string           `json:"description"`
	Feedback     []ReportFeedback `json:"feedback"`
	OverallScore *int             `json:"overallScore"`
	Summary      string           `json:"summary"`
	Duration     string           `json:"duration"`
	Exercises    int              `json:"exercises"`
	Metrics      Metrics          `json:"metrics"`
	StartTime    int64            `json:"startTime"`
	EndTime      int64            `json:"endTime"`
	Status       SessionStatus    `json:"status"`
	CreatedAt    *time.Time       `json:"createdAt,omitempty"`
}
