package types

import (
	"math"
	"time"
)

// Scores are the four numeric sub-scores derived from feedback text.
// A nil field means the value is indeterminate (the model output could not
// be parsed); values are passed through unclamped.
type Scores struct {
	Flexibility *int   `json:"flexibility"`
	Alignment   *int   `json:"alignment"`
	Smoothness  *int   `json:"smoothness"`
	Energy      *int   `json:"energy"`
	Explanation string `json:"explanation,omitempty"`
}

// Complete reports whether all four sub-scores are known.
func (s Scores) Complete() bool {
	return s.Flexibility != nil && s.Alignment != nil && s.Smoothness != nil && s.Energy != nil
}

// Indeterminate reports whether no sub-score is known.
func (s Scores) Indeterminate() bool {
	return s.Flexibility == nil && s.Alignment == nil && s.Smoothness == nil && s.Energy == nil
}

// Overall returns the 0-10 session score: the mean of the four sub-scores
// rounded to an integer, scaled to ten and rounded again. It returns nil when
// any sub-score is unknown.
func (s Scores) Overall() *int {
	if !s.Complete() {
		return nil
	}
	raw := math.Round(float64(*s.Flexibility+*s.Alignment+*s.Smoothness+*s.Energy) / 4)
	overall := int(math.Round(raw / 100 * 10))
	return &overall
}

// FeedbackEntry is one unit of generated coaching text plus its derived
// scores, tied to one batch.
type FeedbackEntry struct {
	BatchSeq  uint64    `json:"batch_seq"`
	Image     Frame     `json:"image"`
	Frames    []Frame   `json:"frames,omitempty"`
	Text      string    `json:"text"`
	Failed    bool      `json:"failed,omitempty"`
	Scores    Scores    `json:"scores"`
	Timestamp time.Time `json:"timestamp"`
}
