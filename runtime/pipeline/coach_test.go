package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/AltairaLabs/barre/pkg/errors"
	"github.com/AltairaLabs/barre/pkg/testutil"
	"github.com/AltairaLabs/barre/runtime/backend"
	"github.com/AltairaLabs/barre/runtime/feedback"
	"github.com/AltairaLabs/barre/runtime/providers/mock"
	"github.com/AltairaLabs/barre/runtime/scoring"
	"github.com/AltairaLabs/barre/runtime/session"
	"github.com/AltairaLabs/barre/runtime/statestore"
	"github.com/AltairaLabs/barre/runtime/types"
)

// fakeBackend records every call and fails CreateReport while createErrs
// has entries.
type fakeBackend struct {
	mu         sync.Mutex
	calls      []string
	created    []types.Report
	createErrs []error
	failFor    map[string]error
	messages   []types.ChatMessage
	analytics  []backend.SessionAnalytics
	listedFor  string
}

func (f *fakeBackend) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeBackend) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeBackend) count(call string) int {
	n := 0
	for _, c := range f.Calls() {
		if c == call {
			n++
		}
	}
	return n
}

func (f *fakeBackend) CreateReport(_ context.Context, r types.Report) (types.Report, error) {
	f.record("CreateReport")
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failFor[r.SessionID]; err != nil {
		return types.Report{}, err
	}
	if len(f.createErrs) > 0 {
		err := f.createErrs[0]
		f.createErrs = f.createErrs[1:]
		return types.Report{}, err
	}
	f.created = append(f.created, r)
	now := time.Now()
	r.ID = "report-" + r.SessionID
	r.CreatedAt = &now
	return r, nil
}

func (f *fakeBackend) ListReports(_ context.Context, userID string) ([]types.Report, error) {
	f.record("ListReports")
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listedFor = userID
	return []types.Report{{ID: "r-1", UserID: userID}}, nil
}

func (f *fakeBackend) DeleteReport(context.Context, string) error {
	f.record("DeleteReport")
	return nil
}

func (f *fakeBackend) Profile(context.Context) (backend.Profile, error) {
	f.record("Profile")
	return backend.Profile{UID: "uid-from-profile"}, nil
}

func (f *fakeBackend) CreateChatSession(_ context.Context, title string) (types.ChatSession, error) {
	f.record("CreateChatSession")
	return types.ChatSession{ID: "chat-1", Title: title}, nil
}

func (f *fakeBackend) AppendChatMessage(_ context.Context, _ string, msg types.ChatMessage) (types.ChatMessage, error) {
	f.record("AppendChatMessage")
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, msg)
	return msg, nil
}

func (f *fakeBackend) RecordAnalytics(_ context.Context, a backend.SessionAnalytics) error {
	f.record("RecordAnalytics")
	f.mu.Lock()
	defer f.mu.Unlock()
	f.analytics = append(f.analytics, a)
	return nil
}

func (f *fakeBackend) UploadFrame(_ context.Context, fr types.Frame) (backend.Overlay, error) {
	f.record("UploadFrame")
	return backend.Overlay{Data: []byte("overlay-" + fr.ID), MIMEType: types.MIMETypeImagePNG}, nil
}

type harness struct {
	coach    *Coach
	feedback *mock.Provider
	scoring  *mock.Provider
	backend  *fakeBackend
	drafts   *statestore.MemoryStore
}

func newHarness(t *testing.T, cfg Config, opts ...Option) *harness {
	t.Helper()
	h := &harness{
		feedback: mock.NewProvider("feedback", "gpt-4o"),
		scoring:  mock.NewProvider("scoring", "gpt-3.5-turbo"),
		backend:  &fakeBackend{},
		drafts:   statestore.NewMemoryStore(),
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = 10
	}
	cfg.UserID = "dancer-1"
	h.coach = NewCoach(cfg, Deps{
		Generator: feedback.NewGenerator(h.feedback, feedback.Config{}),
		Extractor: scoring.NewExtractor(h.scoring, scoring.Config{}),
		Backend:   h.backend,
		Drafts:    h.drafts,
	}, opts...)
	t.Cleanup(func() { _ = h.coach.Close() })
	return h
}

func (h *harness) feed(frames []types.Frame) {
	for _, f := range frames {
		h.coach.Feed(f)
	}
}

func TestCoach_TenFramesDispatchOneBatch(t *testing.T) {
	h := newHarness(t, Config{})
	h.coach.StartSession(context.Background())

	frames := testutil.Frames(10)
	h.feed(frames)
	h.coach.Wait()

	reqs := h.feedback.Requests()
	require.Len(t, reqs, 1)
	require.Len(t, reqs[0].Messages, 1)
	parts := reqs[0].Messages[0].Parts
	require.Len(t, parts, 11)
	assert.Equal(t, types.ContentTypeText, parts[0].Type)
	for i, f := range frames {
		require.NotNil(t, parts[i+1].Media)
		assert.Equal(t, f.Base64(), parts[i+1].Media.Data, "image %d out of order", i)
	}
	assert.Equal(t, 0, h.coach.Pending())

	rec, ok := h.coach.Snapshot()
	require.True(t, ok)
	require.Len(t, rec.Entries, 1)
	entry := rec.Entries[0]
	assert.Equal(t, uint64(10), entry.Image.Seq)
	assert.Equal(t, mock.DefaultFeedback, entry.Text)
	require.NotNil(t, entry.Scores.Flexibility)
	assert.Equal(t, 78, *entry.Scores.Flexibility)
	assert.Len(t, h.scoring.Requests(), 1)
}

func TestCoach_NoBatchBelowThreshold(t *testing.T) {
	h := newHarness(t, Config{})
	h.coach.StartSession(context.Background())

	h.feed(testutil.Frames(9))
	h.coach.Wait()

	assert.Empty(t, h.feedback.Requests())
	assert.Equal(t, 9, h.coach.Pending())
}

func TestCoach_FramesIgnoredWithoutSession(t *testing.T) {
	h := newHarness(t, Config{})
	h.feed(testutil.Frames(12))
	h.coach.Wait()

	assert.Empty(t, h.feedback.Requests())
	assert.Equal(t, 0, h.coach.Pending())
}

func TestCoach_SaveWithoutFeedbackRejected(t *testing.T) {
	h := newHarness(t, Config{})
	h.coach.StartSession(context.Background())
	h.feed(testutil.Frames(4))

	_, err := h.coach.EndSession(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, session.ErrNothingToSave)
	assert.Equal(t, "Please complete a session first.", err.Error())
	assert.Empty(t, h.backend.Calls())
	assert.Equal(t, 0, h.coach.Pending())

	// The session keeps running after the rejection.
	rec, ok := h.coach.Snapshot()
	require.True(t, ok)
	assert.Equal(t, types.SessionActive, rec.Status)

	h.feed(testutil.Frames(10))
	h.coach.Wait()
	assert.Len(t, h.feedback.Requests(), 1)
	assert.Equal(t, 0, h.coach.Pending())

	report, err := h.coach.EndSession(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Exercises)
	assert.Equal(t, 1, h.backend.count("CreateReport"))
}

func TestCoach_FramesNotBufferedWhileFinalizing(t *testing.T) {
	h := newHarness(t, Config{})
	h.coach.StartSession(context.Background())
	h.feed(testutil.Frames(10))
	h.coach.Wait()

	_, err := h.coach.EndSession(context.Background())
	require.NoError(t, err)

	h.feed(testutil.Frames(50))
	assert.Equal(t, 0, h.coach.Pending())
	assert.Len(t, h.feedback.Requests(), 1)
}

func TestCoach_EndSessionIdempotent(t *testing.T) {
	h := newHarness(t, Config{})
	rec := h.coach.StartSession(context.Background())
	h.feed(testutil.Frames(10))

	var wg sync.WaitGroup
	reports := make([]types.Report, 3)
	errs := make([]error, 3)
	for i := range reports {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			reports[i], errs[i] = h.coach.EndSession(context.Background())
		}(i)
	}
	wg.Wait()

	for i := range reports {
		require.NoError(t, errs[i])
		assert.Equal(t, "report-"+rec.ID, reports[i].ID)
	}
	assert.Equal(t, 1, h.backend.count("CreateReport"))
	assert.Equal(t, 1, h.backend.count("RecordAnalytics"))

	saved := h.backend.created[0]
	assert.Equal(t, 1, saved.Exercises)
	assert.Equal(t, "dancer-1", saved.UserID)
	require.NotNil(t, saved.OverallScore)
	assert.Equal(t, 8, *saved.OverallScore)
	assert.Equal(t, types.SessionCompleted, saved.Status)

	drafts, err := h.drafts.ListDrafts(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, drafts)
}

func TestCoach_SaveFailureKeepsDraftAndRetries(t *testing.T) {
	var notices []string
	h := newHarness(t, Config{}, WithNoticeHandler(func(msg string) { notices = append(notices, msg) }))
	h.backend.createErrs = []error{
		pkgerrors.New("backend", "CreateReport", errors.New("status 503")).
			WithStatusCode(503).
			WithServerMessage("Service temporarily unavailable"),
	}

	rec := h.coach.StartSession(context.Background())
	h.feed(testutil.Frames(10))

	_, err := h.coach.EndSession(context.Background())
	require.Error(t, err)
	assert.Equal(t, 503, pkgerrors.StatusCode(err))

	snap, _ := h.coach.Snapshot()
	assert.Contains(t, snap.AccumulatedText, "Error saving session: Service temporarily unavailable")
	require.Len(t, notices, 1)
	assert.Equal(t, "Error saving session: Service temporarily unavailable", notices[0])

	draft, err := h.drafts.LoadDraft(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, draft.Attempts)
	assert.Equal(t, 1, draft.Report.Exercises)

	report, err := h.coach.EndSession(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "report-"+rec.ID, report.ID)
	assert.Equal(t, 2, h.backend.count("CreateReport"))

	_, err = h.drafts.LoadDraft(context.Background(), rec.ID)
	assert.ErrorIs(t, err, statestore.ErrNotFound)
}

func TestCoach_FailedGenerationSkipsScoring(t *testing.T) {
	h := newHarness(t, Config{})
	h.feedback.WithError(errors.New("upstream 500"))
	h.coach.StartSession(context.Background())

	h.feed(testutil.Frames(10))
	h.coach.Wait()

	rec, _ := h.coach.Snapshot()
	require.Len(t, rec.Entries, 1)
	assert.True(t, rec.Entries[0].Failed)
	assert.Equal(t, feedback.FailureText, rec.Entries[0].Text)
	assert.True(t, rec.Entries[0].Scores.Indeterminate())
	assert.Empty(t, h.scoring.Requests())

	h.feed(testutil.Frames(10))
	h.coach.Wait()
	assert.Len(t, h.feedback.Requests(), 2)
}

func TestCoach_UnparseableScoresKeepEntry(t *testing.T) {
	h := newHarness(t, Config{})
	h.scoring.WithResponses("I would rate this highly!")
	h.coach.StartSession(context.Background())

	h.feed(testutil.Frames(10))
	h.coach.Wait()

	rec, _ := h.coach.Snapshot()
	require.Len(t, rec.Entries, 1)
	assert.False(t, rec.Entries[0].Failed)
	assert.True(t, rec.Entries[0].Scores.Indeterminate())
	assert.Nil(t, rec.OverallScore)
}

func TestCoach_BatchesProcessedInOrder(t *testing.T) {
	var seqs []uint64
	var mu sync.Mutex
	h := newHarness(t, Config{BatchSize: 2}, WithEntryHandler(func(e types.FeedbackEntry) {
		mu.Lock()
		seqs = append(seqs, e.BatchSeq)
		mu.Unlock()
	}))
	h.feedback.WithTokenDelay(time.Millisecond)
	h.coach.StartSession(context.Background())

	h.feed(testutil.Frames(8))
	h.coach.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []uint64{1, 2, 3, 4}, seqs)
}

func TestCoach_LateResultForReplacedSessionDropped(t *testing.T) {
	gate := make(chan struct{})
	h := newHarness(t, Config{})
	h.feedback.WithGate(gate)
	h.coach.StartSession(context.Background())
	h.feed(testutil.Frames(10))

	second := h.coach.StartSession(context.Background())
	close(gate)
	h.coach.Wait()

	rec, _ := h.coach.Snapshot()
	assert.Equal(t, second.ID, rec.ID)
	assert.Empty(t, rec.Entries)
}

func TestCoach_ChatMirroring(t *testing.T) {
	h := newHarness(t, Config{MirrorChat: true})
	h.coach.StartSession(context.Background())

	frames := testutil.Frames(10)
	h.feed(frames)
	h.coach.Wait()

	assert.Equal(t, 1, h.backend.count("CreateChatSession"))
	require.Len(t, h.backend.messages, 1)
	msg := h.backend.messages[0]
	assert.Equal(t, types.ChatRoleAI, msg.Role)
	assert.Equal(t, types.ChatKindCameraFeedback, msg.Kind)
	assert.Equal(t, mock.DefaultFeedback, msg.Text)
	assert.Equal(t, frames[0].DataURL(), msg.ImageURL)
}

func TestCoach_UploadFrames(t *testing.T) {
	var overlays []Overlay
	h := newHarness(t, Config{UploadFrames: true}, WithOverlayHandler(func(o Overlay) {
		overlays = append(overlays, o)
	}))
	h.coach.StartSession(context.Background())

	frames := testutil.Frames(10)
	h.feed(frames)
	h.coach.Wait()

	require.Len(t, overlays, 1)
	assert.Equal(t, OverlaySourceMesh, overlays[0].Source)
	assert.Equal(t, "overlay-"+frames[9].ID, string(overlays[0].Data))
}

func TestCoach_SessionExpiry(t *testing.T) {
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	var notices []string
	h := newHarness(t,
		Config{Session: session.Config{MaxDuration: time.Minute}},
		WithSessionOptions(session.WithClock(clock)),
		WithNoticeHandler(func(msg string) { notices = append(notices, msg) }),
	)
	h.coach.StartSession(context.Background())
	h.feed(testutil.Frames(10))
	h.coach.Wait()

	mu.Lock()
	now = now.Add(2 * time.Minute)
	mu.Unlock()

	elapsed, expired := h.coach.Tick()
	assert.True(t, expired)
	assert.Equal(t, time.Minute, elapsed)
	assert.Equal(t, []string{session.TimeCompletedNotice}, notices)

	h.feed(testutil.Frames(10))
	h.coach.Wait()
	assert.Len(t, h.feedback.Requests(), 1)
	assert.Equal(t, 0, h.coach.Pending())

	report, err := h.coach.EndSession(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "01:00", report.Duration)
}

func TestCoach_History(t *testing.T) {
	h := newHarness(t, Config{})
	reports, err := h.coach.History(context.Background())
	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.Equal(t, "dancer-1", h.backend.listedFor)
	assert.Zero(t, h.backend.count("Profile"))
}

func TestCoach_HistoryResolvesProfile(t *testing.T) {
	fb := &fakeBackend{}
	coach := NewCoach(Config{}, Deps{Backend: fb})
	defer coach.Close()

	_, err := coach.History(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "uid-from-profile", fb.listedFor)
	assert.Equal(t, []string{"Profile", "ListReports"}, fb.Calls())
}

func TestCoach_DeleteReport(t *testing.T) {
	h := newHarness(t, Config{})
	require.NoError(t, h.coach.DeleteReport(context.Background(), "r-1"))
	assert.Equal(t, 1, h.backend.count("DeleteReport"))
}

func TestCoach_PushDrafts(t *testing.T) {
	h := newHarness(t, Config{})
	ctx := context.Background()
	for _, id := range []string{"s-1", "s-2"} {
		require.NoError(t, h.drafts.SaveDraft(ctx, statestore.NewDraft(types.Report{SessionID: id, UserID: "dancer-1"})))
	}
	h.backend.failFor = map[string]error{"s-2": errors.New("rejected")}

	pushed, err := h.coach.PushDrafts(ctx)
	assert.Equal(t, 1, pushed)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "s-2")

	remaining, err := h.coach.Drafts(ctx)
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, "s-2", remaining[0].ID())
	assert.Equal(t, 1, remaining[0].Attempts)
	assert.Equal(t, "rejected", remaining[0].LastError)
}

type recordingObserver struct {
	mu         sync.Mutex
	frames     int
	dispatched int
	completed  int
	saved      int
	failed     int
}

func (o *recordingObserver) FrameCaptured(types.Frame) {
	o.mu.Lock()
	o.frames++
	o.mu.Unlock()
}

func (o *recordingObserver) BatchDispatched(types.Batch) {
	o.mu.Lock()
	o.dispatched++
	o.mu.Unlock()
}

func (o *recordingObserver) BatchCompleted(types.Batch, time.Duration) {
	o.mu.Lock()
	o.completed++
	o.mu.Unlock()
}

func (o *recordingObserver) SessionSaved() {
	o.mu.Lock()
	o.saved++
	o.mu.Unlock()
}

func (o *recordingObserver) SessionSaveFailed() {
	o.mu.Lock()
	o.failed++
	o.mu.Unlock()
}

func TestCoach_Observer(t *testing.T) {
	obs := &recordingObserver{}
	h := newHarness(t, Config{}, WithObserver(obs))
	h.coach.StartSession(context.Background())
	h.feed(testutil.Frames(13))
	h.coach.Wait()

	_, err := h.coach.EndSession(context.Background())
	require.NoError(t, err)

	obs.mu.Lock()
	defer obs.mu.Unlock()
	assert.Equal(t, 13, obs.frames)
	assert.Equal(t, 1, obs.dispatched)
	assert.Equal(t, 1, obs.completed)
	assert.Equal(t, 1, obs.saved)
	assert.Equal(t, 0, obs.failed)
}

func TestCoach_RunStopsOnCancel(t *testing.T) {
	h := newHarness(t, Config{Session: session.Config{Tick: 10 * time.Millisecond}})
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	assert.NoError(t, h.coach.Run(ctx))
}
