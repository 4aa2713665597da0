// Package pipeline wires the capture, batching, feedback, scoring, session
// and relay components into a practice coach.
//
// A Coach owns one Aggregator and one Accumulator. Frames from the sampler
// are buffered only while a session is active; every dispatched batch runs
// generate, score, mirror and record on the accumulator's goroutine, so at
// most one model call per session is outstanding.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/AltairaLabs/barre/runtime/backend"
	"github.com/AltairaLabs/barre/runtime/batch"
	"github.com/AltairaLabs/barre/runtime/capture"
	"github.com/AltairaLabs/barre/runtime/feedback"
	"github.com/AltairaLabs/barre/runtime/logger"
	"github.com/AltairaLabs/barre/runtime/relay"
	"github.com/AltairaLabs/barre/runtime/scoring"
	"github.com/AltairaLabs/barre/runtime/session"
	"github.com/AltairaLabs/barre/runtime/statestore"
	"github.com/AltairaLabs/barre/runtime/types"
)

// DefaultDrainTimeout bounds how long EndSession waits for an in-flight batch.
const DefaultDrainTimeout = 90 * time.Second

// Overlay sources.
const (
	OverlaySourceRelay = "relay"
	OverlaySourceMesh  = "mesh"
)

// Backend is the subset of the REST collaborator the coach depends on.
type Backend interface {
	CreateReport(ctx context.Context, report types.Report) (types.Report, error)
	ListReports(ctx context.Context, userID string) ([]types.Report, error)
	DeleteReport(ctx context.Context, id string) error
	Profile(ctx context.Context) (backend.Profile, error)
	CreateChatSession(ctx context.Context, title string) (types.ChatSession, error)
	AppendChatMessage(ctx context.Context, sessionID string, msg types.ChatMessage) (types.ChatMessage, error)
	RecordAnalytics(ctx context.Context, a backend.SessionAnalytics) error
	UploadFrame(ctx context.Context, f types.Frame) (backend.Overlay, error)
}

// Observer receives coach-level notifications, typically for metrics.
type Observer interface {
	batch.Observer
	FrameCaptured(types.Frame)
	SessionSaved()
	SessionSaveFailed()
}

// Overlay is an annotated image returned by the relay or the mesh endpoint.
type Overlay struct {
	Source     string
	Data       []byte
	MIMEType   string
	ReceivedAt time.Time
}

// Config configures a Coach.
type Config struct {
	BatchSize      int
	Session        session.Config
	UserID         string
	Title          string
	IdleInterval   time.Duration
	ActiveInterval time.Duration
	// MirrorChat appends every feedback entry to a chat session on the backend.
	MirrorChat bool
	// UploadFrames posts the last frame of each batch to the mesh endpoint.
	UploadFrames bool
	DrainTimeout time.Duration
}

func (c *Config) applyDefaults() {
	if c.BatchSize <= 0 {
		c.BatchSize = batch.DefaultSize
	}
	if c.IdleInterval <= 0 {
		c.IdleInterval = capture.DefaultInterval
	}
	if c.ActiveInterval <= 0 {
		c.ActiveInterval = capture.DefaultActiveInterval
	}
	if c.DrainTimeout <= 0 {
		c.DrainTimeout = DefaultDrainTimeout
	}
}

// Deps are the explicitly constructed collaborators of a Coach. Sampler,
// Relay and Drafts are optional.
type Deps struct {
	Generator *feedback.Generator
	Extractor *scoring.Extractor
	Backend   Backend
	Drafts    statestore.Store
	Sampler   *capture.Sampler
	Relay     *relay.Channel
}

// Option configures a Coach.
type Option func(*Coach)

// WithObserver registers a metrics observer.
func WithObserver(o Observer) Option {
	return func(c *Coach) { c.observer = o }
}

// WithEntryHandler registers fn to receive every recorded feedback entry.
func WithEntryHandler(fn func(types.FeedbackEntry)) Option {
	return func(c *Coach) { c.onEntry = append(c.onEntry, fn) }
}

// WithNoticeHandler registers fn to receive user-facing notices such as the
// session time limit.
func WithNoticeHandler(fn func(string)) Option {
	return func(c *Coach) { c.onNotice = append(c.onNotice, fn) }
}

// WithOverlayHandler registers fn to receive overlay images.
func WithOverlayHandler(fn func(Overlay)) Option {
	return func(c *Coach) { c.onOverlay = append(c.onOverlay, fn) }
}

// WithSessionOptions passes options through to the session aggregator.
func WithSessionOptions(opts ...session.Option) Option {
	return func(c *Coach) { c.sessionOpts = append(c.sessionOpts, opts...) }
}

// Coach runs practice sessions end to end.
type Coach struct {
	cfg       Config
	gen       *feedback.Generator
	ext       *scoring.Extractor
	backend   Backend
	drafts    statestore.Store
	sampler   *capture.Sampler
	relay     *relay.Channel
	agg       *session.Aggregator
	acc       *batch.Accumulator
	observer  Observer
	onEntry   []func(types.FeedbackEntry)
	onNotice  []func(string)
	onOverlay []func(Overlay)

	sessionOpts []session.Option

	ctx    context.Context
	cancel context.CancelFunc

	mu            sync.Mutex
	sessionID     string
	chatSessionID string

	endMu sync.Mutex
}

// NewCoach creates a coach from cfg and deps.
func NewCoach(cfg Config, deps Deps, opts ...Option) *Coach {
	cfg.applyDefaults()
	if deps.Drafts == nil {
		deps.Drafts = statestore.NewMemoryStore()
	}
	c := &Coach{
		cfg:     cfg,
		gen:     deps.Generator,
		ext:     deps.Extractor,
		backend: deps.Backend,
		drafts:  deps.Drafts,
		sampler: deps.Sampler,
		relay:   deps.Relay,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.ctx, c.cancel = context.WithCancel(context.Background())

	sessionOpts := append([]session.Option{session.WithExpiryHandler(c.onExpired)}, c.sessionOpts...)
	c.agg = session.New(cfg.Session, sessionOpts...)

	batchOpts := []batch.Option{batch.WithContext(c.ctx)}
	if c.observer != nil {
		batchOpts = append(batchOpts, batch.WithObserver(c.observer))
	}
	c.acc = batch.New(cfg.BatchSize, c.processBatch, batchOpts...)

	if c.sampler != nil {
		c.sampler.SetInterval(cfg.IdleInterval)
		c.sampler.Subscribe(c.Feed)
	}
	return c
}

// Feed routes one sampled frame. Every frame goes to the relay; frames are
// buffered for feedback only while a session is active.
func (c *Coach) Feed(f types.Frame) {
	if c.observer != nil {
		c.observer.FrameCaptured(f)
	}
	if c.relay != nil {
		c.relay.Send(f)
	}
	if c.agg.Active() && c.acc.Active() {
		c.acc.Add(f)
	}
}

// StartSession begins a new active session and switches the sampler to the
// active capture rate. Frames left from an earlier session are discarded.
func (c *Coach) StartSession(ctx context.Context) types.SessionRecord {
	rec := c.agg.Start(c.cfg.UserID, c.cfg.Title)

	c.mu.Lock()
	c.sessionID = rec.ID
	c.chatSessionID = ""
	c.mu.Unlock()

	if c.cfg.MirrorChat && c.backend != nil {
		chat, err := c.backend.CreateChatSession(ctx, rec.Title)
		if err != nil {
			logger.Warn("Chat mirroring disabled for session", "session_id", rec.ID, "error", err)
		} else {
			c.mu.Lock()
			c.chatSessionID = chat.ID
			c.mu.Unlock()
		}
	}

	c.acc.Discard()
	c.acc.SetActive(true)
	if c.sampler != nil {
		c.sampler.SetInterval(c.cfg.ActiveInterval)
	}
	return rec
}

// EndSession stops batching, waits for the in-flight batch, finalizes the
// session and persists its report. It is idempotent: once the report is
// saved further calls return it without contacting the backend. After a
// failed save a later call retries with the same report.
func (c *Coach) EndSession(ctx context.Context) (types.Report, error) {
	c.endMu.Lock()
	defer c.endMu.Unlock()

	c.acc.SetActive(false)
	if dropped := c.acc.Discard(); dropped > 0 {
		logger.Debug("Discarded partial batch", "frames", dropped)
	}
	if c.sampler != nil {
		c.sampler.SetInterval(c.cfg.IdleInterval)
	}
	c.drain(ctx)

	report, err := c.agg.End()
	switch {
	case errors.Is(err, session.ErrAlreadyFinalized):
		if c.agg.Persisted() {
			return report, nil
		}
	case err != nil:
		c.resume()
		return types.Report{}, err
	}

	return c.persist(ctx, report)
}

// resume re-enables batching after a rejected finalize so a session that is
// still running keeps producing feedback.
func (c *Coach) resume() {
	if !c.agg.Active() {
		return
	}
	c.acc.SetActive(true)
	if c.sampler != nil {
		c.sampler.SetInterval(c.cfg.ActiveInterval)
	}
}

// drain waits for the in-flight batch, bounded by ctx and DrainTimeout.
func (c *Coach) drain(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		c.acc.Wait()
		close(done)
	}()

	timer := time.NewTimer(c.cfg.DrainTimeout)
	defer timer.Stop()
	select {
	case <-done:
	case <-ctx.Done():
		logger.Warn("Finalizing without waiting for in-flight batch", "error", ctx.Err())
	case <-timer.C:
		logger.Warn("Finalizing without waiting for in-flight batch", "timeout", c.cfg.DrainTimeout)
	}
}

// persist saves a draft, posts the report and removes the draft once the
// backend has accepted it.
func (c *Coach) persist(ctx context.Context, report types.Report) (types.Report, error) {
	ctx = logger.WithUserID(logger.WithSessionID(ctx, report.SessionID), report.UserID)
	draft, err := c.drafts.LoadDraft(ctx, report.SessionID)
	if err != nil {
		draft = statestore.NewDraft(report)
	}
	if err := c.drafts.SaveDraft(ctx, draft); err != nil {
		logger.WarnContext(ctx, "Draft save failed", "error", err)
	}

	if c.backend == nil {
		return report, errors.New("no backend configured")
	}

	saved, err := c.backend.CreateReport(ctx, report)
	if err != nil {
		msg := c.agg.SaveFailed(err)
		draft.Failed(err)
		if serr := c.drafts.SaveDraft(ctx, draft); serr != nil {
			logger.WarnContext(ctx, "Draft update failed", "error", serr)
		}
		if c.observer != nil {
			c.observer.SessionSaveFailed()
		}
		c.notify(msg)
		logger.ErrorContext(ctx, "Session save failed", "attempts", draft.Attempts, "error", err)
		return report, err
	}

	c.agg.MarkPersisted(saved)
	if err := c.drafts.DeleteDraft(ctx, report.SessionID); err != nil && !errors.Is(err, statestore.ErrNotFound) {
		logger.WarnContext(ctx, "Draft cleanup failed", "error", err)
	}
	if c.observer != nil {
		c.observer.SessionSaved()
	}

	c.recordAnalytics(ctx, saved, report)
	logger.InfoContext(ctx, "Session saved", "report_id", saved.ID)

	report.ID = saved.ID
	report.CreatedAt = saved.CreatedAt
	return report, nil
}

func (c *Coach) recordAnalytics(ctx context.Context, saved, report types.Report) {
	id := saved.ID
	if id == "" {
		id = report.SessionID
	}
	err := c.backend.RecordAnalytics(ctx, backend.SessionAnalytics{
		SessionID:      id,
		Duration:       report.Duration,
		ExerciseCount:  report.Exercises,
		FeedbackPoints: len(report.Feedback),
		OverallScore:   report.OverallScore,
	})
	if err != nil {
		logger.Warn("Session analytics not recorded", "session_id", report.SessionID, "error", err)
	}
}

// processBatch is the accumulator's processor: generate, score, mirror and
// record. It never returns an error; failures become in-band entries.
func (c *Coach) processBatch(ctx context.Context, b types.Batch) {
	c.mu.Lock()
	sessionID := c.sessionID
	chatID := c.chatSessionID
	c.mu.Unlock()
	ctx = logger.WithSessionID(ctx, sessionID)

	first, _ := b.First()
	last, _ := b.Last()

	res := c.gen.Generate(ctx, b)

	var scores types.Scores
	if !res.Failed && c.ext != nil {
		s, err := c.ext.Extract(ctx, res.Text)
		if err != nil {
			logger.WarnContext(ctx, "Scores unavailable for batch", "batch_seq", b.Seq, "error", err)
		} else {
			scores = s
		}
	}

	if chatID != "" {
		msg := types.NewFeedbackMessage(res.Text, first)
		if _, err := c.backend.AppendChatMessage(ctx, chatID, msg); err != nil {
			logger.WarnContext(ctx, "Chat mirroring failed", "batch_seq", b.Seq, "error", err)
		}
	}

	entry := types.FeedbackEntry{
		BatchSeq:  b.Seq,
		Image:     last,
		Frames:    b.Frames,
		Text:      res.Text,
		Failed:    res.Failed,
		Scores:    scores,
		Timestamp: time.Now(),
	}
	if !c.agg.Record(sessionID, entry) {
		return
	}
	for _, fn := range c.onEntry {
		fn(entry)
	}

	if c.cfg.UploadFrames && c.backend != nil {
		c.uploadFrame(ctx, last)
	}
}

func (c *Coach) uploadFrame(ctx context.Context, f types.Frame) {
	overlay, err := c.backend.UploadFrame(ctx, f)
	if err != nil {
		logger.WarnContext(ctx, "Mesh upload failed", "frame_seq", f.Seq, "error", err)
		return
	}
	c.emitOverlay(Overlay{
		Source:     OverlaySourceMesh,
		Data:       overlay.Data,
		MIMEType:   overlay.MIMEType,
		ReceivedAt: time.Now(),
	})
}

func (c *Coach) onExpired(sessionID string) {
	c.acc.SetActive(false)
	if c.sampler != nil {
		c.sampler.SetInterval(c.cfg.IdleInterval)
	}
	logger.Info("Session time limit reached", "session_id", sessionID)
	c.notify(session.TimeCompletedNotice)
}

func (c *Coach) notify(msg string) {
	for _, fn := range c.onNotice {
		fn(msg)
	}
}

func (c *Coach) emitOverlay(o Overlay) {
	for _, fn := range c.onOverlay {
		fn(o)
	}
}

// Run drives the sampler, the session timer and the relay until ctx is
// done. An exhausted relay is logged and does not stop sampling.
func (c *Coach) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	if c.sampler != nil {
		g.Go(func() error {
			return ignoreCanceled(c.sampler.Run(gctx))
		})
	}
	g.Go(func() error {
		return c.agg.Run(gctx)
	})
	if c.relay != nil {
		g.Go(func() error {
			err := c.relay.Run(gctx)
			if errors.Is(err, relay.ErrRelayExhausted) {
				logger.Error("Relay unavailable, continuing without overlays", "error", err)
				return nil
			}
			return err
		})
		g.Go(func() error {
			c.forwardRelayResults(gctx)
			return nil
		})
	}

	return g.Wait()
}

func (c *Coach) forwardRelayResults(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case res := <-c.relay.Results():
			data, err := res.Image()
			if err != nil {
				logger.Debug("Dropping undecodable relay result", "error", err)
				continue
			}
			c.emitOverlay(Overlay{
				Source:     OverlaySourceRelay,
				Data:       data,
				MIMEType:   types.MIMETypeImageJPEG,
				ReceivedAt: res.ReceivedAt,
			})
		}
	}
}

// Wait blocks until no batch is in flight.
func (c *Coach) Wait() {
	c.acc.Wait()
}

// Pending returns the number of buffered frames not yet batched.
func (c *Coach) Pending() int {
	return c.acc.Pending()
}

// Snapshot returns the current session record.
func (c *Coach) Snapshot() (types.SessionRecord, bool) {
	return c.agg.Snapshot()
}

// Tick advances the session timer once.
func (c *Coach) Tick() (time.Duration, bool) {
	return c.agg.Tick()
}

// History lists the reports of the configured user, resolving the user from
// the backend profile when none is configured.
func (c *Coach) History(ctx context.Context) ([]types.Report, error) {
	userID := c.cfg.UserID
	if userID == "" {
		profile, err := c.backend.Profile(ctx)
		if err != nil {
			return nil, fmt.Errorf("resolve user: %w", err)
		}
		userID = profile.UID
	}
	return c.backend.ListReports(ctx, userID)
}

// DeleteReport removes a saved report.
func (c *Coach) DeleteReport(ctx context.Context, id string) error {
	return c.backend.DeleteReport(ctx, id)
}

// Drafts lists reports that have not yet been accepted by the backend.
func (c *Coach) Drafts(ctx context.Context) ([]*statestore.Draft, error) {
	return c.drafts.ListDrafts(ctx, c.cfg.UserID)
}

// PushDrafts retries every stored draft and returns how many were saved.
// Failures are recorded on the draft and joined into the returned error.
func (c *Coach) PushDrafts(ctx context.Context) (int, error) {
	drafts, err := c.Drafts(ctx)
	if err != nil {
		return 0, err
	}

	pushed := 0
	var errs []error
	for _, d := range drafts {
		saved, err := c.backend.CreateReport(ctx, d.Report)
		if err != nil {
			d.Failed(err)
			if serr := c.drafts.SaveDraft(ctx, d); serr != nil {
				logger.Warn("Draft update failed", "session_id", d.ID(), "error", serr)
			}
			if c.observer != nil {
				c.observer.SessionSaveFailed()
			}
			errs = append(errs, fmt.Errorf("draft %s: %w", d.ID(), err))
			continue
		}
		if err := c.drafts.DeleteDraft(ctx, d.ID()); err != nil {
			logger.Warn("Draft cleanup failed", "session_id", d.ID(), "error", err)
		}
		if c.observer != nil {
			c.observer.SessionSaved()
		}
		logger.Info("Draft pushed", "session_id", d.ID(), "report_id", saved.ID)
		pushed++
	}
	return pushed, errors.Join(errs...)
}

// Close cancels any in-flight batch and releases the draft store.
func (c *Coach) Close() error {
	c.cancel()
	c.acc.Wait()
	return c.drafts.Close()
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}
