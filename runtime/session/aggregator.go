// Package session folds per-batch feedback into a running practice session
// and finalizes it into a persistable report.
package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	pkgerrors "github.com/AltairaLabs/barre/pkg/errors"
	"github.com/AltairaLabs/barre/runtime/logger"
	"github.com/AltairaLabs/barre/runtime/types"
)

// Errors returned by Aggregator.
var (
	// ErrNoSession is returned when no session has been started.
	ErrNoSession = errors.New("session: no session started")

	// ErrNothingToSave rejects finalizing a session without feedback or image.
	// Its message is shown to the user as is.
	ErrNothingToSave = errors.New("Please complete a session first.") //nolint:staticcheck // user-facing

	// ErrAlreadyFinalized accompanies the cached report on a repeated End.
	ErrAlreadyFinalized = errors.New("session: already finalized")
)

// Notices surfaced to the user.
const (
	TimeCompletedNotice = "Session time completed!"
	SaveErrorPrefix     = "Error saving session: "
)

// Defaults.
const (
	DefaultMaxDuration = 5 * time.Minute
	DefaultTick        = time.Second
	DefaultDescription = "Ballet practice session with AI feedback"
	defaultTitleFormat = "Ballet Practice Session - 2006-01-02"
	textSeparator      = "\n\n"
)

// Config tunes an Aggregator.
type Config struct {
	MaxDuration time.Duration
	Tick        time.Duration
	Description string
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(a *Aggregator) { a.now = now }
}

// WithExpiryHandler registers fn to be called once when a session reaches
// its maximum duration.
func WithExpiryHandler(fn func(sessionID string)) Option {
	return func(a *Aggregator) { a.onExpire = fn }
}

// Aggregator owns the current session. It is safe for concurrent use.
type Aggregator struct {
	cfg      Config
	now      func() time.Time
	onExpire func(sessionID string)

	mu        sync.Mutex
	rec       *types.SessionRecord
	finalized bool
	persisted bool
	report    types.Report
}

// New creates an aggregator.
func New(cfg Config, opts ...Option) *Aggregator {
	if cfg.MaxDuration <= 0 {
		cfg.MaxDuration = DefaultMaxDuration
	}
	if cfg.Tick <= 0 {
		cfg.Tick = DefaultTick
	}
	if cfg.Description == "" {
		cfg.Description = DefaultDescription
	}
	a := &Aggregator{cfg: cfg, now: time.Now}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Start resets all session-scoped state and begins a new active session.
func (a *Aggregator) Start(userID, title string) types.SessionRecord {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := a.now()
	if title == "" {
		title = now.Format(defaultTitleFormat)
	}
	a.rec = &types.SessionRecord{
		ID:        uuid.NewString(),
		UserID:    userID,
		Title:     title,
		StartTime: now,
		Status:    types.SessionActive,
	}
	a.finalized = false
	a.persisted = false
	a.report = types.Report{}

	logger.Info("Session started", "session_id", a.rec.ID, "user_id", userID)
	return a.snapshotLocked()
}

// Record appends entry to the session identified by sessionID. Entries for
// any other session, or arriving after finalization, are rejected.
func (a *Aggregator) Record(sessionID string, entry types.FeedbackEntry) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.rec == nil || a.rec.ID != sessionID || a.finalized {
		logger.Debug("Dropping late feedback entry", "session_id", sessionID, "batch_seq", entry.BatchSeq)
		return false
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = a.now()
	}
	a.rec.Entries = append(a.rec.Entries, entry)
	if a.rec.AccumulatedText == "" {
		a.rec.AccumulatedText = entry.Text
	} else {
		a.rec.AccumulatedText += textSeparator + entry.Text
	}
	if !entry.Scores.Indeterminate() {
		a.rec.Scores = entry.Scores
		a.rec.OverallScore = entry.Scores.Overall()
	}
	return true
}

// Tick recomputes the duration of an active session. It reports expired the
// first time the duration reaches the maximum; the session is then
// deactivated but not finalized.
func (a *Aggregator) Tick() (elapsed time.Duration, expired bool) {
	a.mu.Lock()
	if a.rec == nil || a.rec.Status != types.SessionActive {
		if a.rec != nil {
			elapsed = a.rec.Duration
		}
		a.mu.Unlock()
		return elapsed, false
	}
	elapsed = a.now().Sub(a.rec.StartTime)
	if elapsed >= a.cfg.MaxDuration {
		elapsed = a.cfg.MaxDuration
		a.rec.Status = types.SessionInactive
		expired = true
	}
	a.rec.Duration = elapsed
	id := a.rec.ID
	a.mu.Unlock()

	if expired {
		logger.Info(TimeCompletedNotice, "session_id", id)
		if a.onExpire != nil {
			a.onExpire(id)
		}
	}
	return elapsed, expired
}

// Run calls Tick on every interval until ctx is done.
func (a *Aggregator) Run(ctx context.Context) error {
	ticker := time.NewTicker(a.cfg.Tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			a.Tick()
		}
	}
}

// Active reports whether the current session accepts new batches.
func (a *Aggregator) Active() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.rec != nil && a.rec.Status == types.SessionActive
}

// Snapshot returns a copy of the current session record.
func (a *Aggregator) Snapshot() (types.SessionRecord, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.rec == nil {
		return types.SessionRecord{}, false
	}
	return a.snapshotLocked(), true
}

func (a *Aggregator) snapshotLocked() types.SessionRecord {
	rec := *a.rec
	rec.Entries = append([]types.FeedbackEntry(nil), a.rec.Entries...)
	return rec
}

// End finalizes the session and returns its report. The first successful
// call freezes the record; later calls return the same report with
// ErrAlreadyFinalized. A session without feedback or a representative image
// is left untouched and ErrNothingToSave is returned.
func (a *Aggregator) End() (types.Report, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.rec == nil {
		return types.Report{}, ErrNoSession
	}
	if a.finalized {
		return a.report, ErrAlreadyFinalized
	}
	if _, ok := a.rec.RepresentativeImage(); !ok || len(a.rec.Entries) == 0 || a.rec.AccumulatedText == "" {
		return types.Report{}, ErrNothingToSave
	}

	now := a.now()
	if a.rec.Status == types.SessionActive {
		a.rec.Duration = min(now.Sub(a.rec.StartTime), a.cfg.MaxDuration)
	}
	a.rec.EndTime = now
	a.rec.Status = types.SessionCompleted
	a.rec.OverallScore = a.rec.Scores.Overall()
	a.finalized = true
	a.report = a.buildReportLocked()

	logger.Info("Session finalized", "session_id", a.rec.ID, "entries", len(a.rec.Entries),
		"duration", types.FormatDuration(a.rec.Duration))
	return a.report, nil
}

func (a *Aggregator) buildReportLocked() types.Report {
	rec := a.rec
	feedback := make([]types.ReportFeedback, 0, len(rec.Entries))
	for i := range rec.Entries {
		e := &rec.Entries[i]
		feedback = append(feedback, types.ReportFeedback{
			Text:      e.Text,
			Image:     e.Image.DataURL(),
			Timestamp: e.Timestamp,
		})
	}
	return types.Report{
		SessionID:    rec.ID,
		UserID:       rec.UserID,
		Title:        rec.Title,
		Description:  a.cfg.Description,
		Feedback:     feedback,
		OverallScore: rec.OverallScore,
		Summary:      rec.Scores.Explanation,
		Duration:     types.FormatDuration(rec.Duration),
		Exercises:    len(rec.Entries),
		Metrics: types.Metrics{
			Flexibility: rec.Scores.Flexibility,
			Alignment:   rec.Scores.Alignment,
			Smoothness:  rec.Scores.Smoothness,
			Energy:      rec.Scores.Energy,
		},
		StartTime: rec.StartTime.UnixMilli(),
		EndTime:   rec.EndTime.UnixMilli(),
		Status:    types.SessionCompleted,
	}
}

// MarkPersisted records the report as accepted by the backend.
func (a *Aggregator) MarkPersisted(saved types.Report) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.finalized {
		return
	}
	a.persisted = true
	if saved.ID != "" {
		a.report.ID = saved.ID
		a.report.CreatedAt = saved.CreatedAt
	}
}

// Persisted reports whether the finalized report has been saved.
func (a *Aggregator) Persisted() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.persisted
}

// SaveFailed appends the failure to the accumulated text, keeping the rest of
// the session intact so the save can be retried. It returns the message.
func (a *Aggregator) SaveFailed(err error) string {
	msg := pkgerrors.UserMessage(err)
	if strings.TrimSpace(msg) == "" {
		msg = "Please try again."
	}
	msg = SaveErrorPrefix + msg

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.rec != nil {
		a.rec.AccumulatedText += textSeparator + msg
	}
	return msg
}
