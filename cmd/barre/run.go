package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/AltairaLabs/barre/runtime/logger"
	"github.com/AltairaLabs/barre/runtime/pipeline"
	"github.com/AltairaLabs/barre/runtime/types"
	"github.com/AltairaLabs/barre/runtime/version"
)

const saveTimeout = 2 * time.Minute

func (c *cli) newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a practice session",
		Long: `Run a practice session: sample frames from --source-dir, stream feedback for
every batch and save the session report when the duration elapses or the
process is interrupted.`,
		Args: cobra.NoArgs,
		RunE: c.runSession,
	}

	cmd.Flags().Int(flagBatchSize, 0, "Frames per feedback batch")
	cmd.Flags().String(flagSourceDir, "", "Directory of images used as the camera")
	cmd.Flags().Duration(flagDuration, 0, "Session length (defaults to session.maxDuration)")

	_ = c.v.BindPFlag(keyBatchSize, cmd.Flags().Lookup(flagBatchSize))
	_ = c.v.BindPFlag(keySourceDir, cmd.Flags().Lookup(flagSourceDir))
	_ = c.v.BindPFlag(keyDuration, cmd.Flags().Lookup(flagDuration))
	return cmd
}

func (c *cli) runSession(cmd *cobra.Command, _ []string) error {
	cfg, configDir, err := c.loadConfig(cmd)
	if err != nil {
		return err
	}
	if cfg.Capture.SourceDir == "" {
		return errors.New("a frame source is required: set --source-dir or capture.sourceDir")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	out := &syncWriter{w: cmd.OutOrStdout()}
	a, err := newApp(ctx, cfg, configDir, appOptions{
		withSampler: true,
		coachOpts: []pipeline.Option{
			pipeline.WithEntryHandler(func(e types.FeedbackEntry) { printEntry(out, e) }),
			pipeline.WithNoticeHandler(func(msg string) { out.Printf("\n%s\n", msg) }),
		},
	})
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.Close(shutdownCtx); err != nil {
			logger.Warn("Shutdown incomplete", "error", err)
		}
	}()

	a.generator.AddListener(func(_ uint64, delta, _ string) { out.Printf("%s", delta) })
	a.serveMetrics(ctx)

	duration := cfg.Session.MaxDuration
	if d := c.v.GetDuration(keyDuration); d > 0 {
		duration = d
	}

	logger.Info("barre starting", version.GetBuildInfo()...)
	rec := a.coach.StartSession(ctx)
	out.Printf("Session %s started (%s, batches of %d frames)\n\n", rec.Title, duration, cfg.Batch.Size)

	runCtx, cancel := context.WithTimeout(ctx, duration)
	defer cancel()
	if err := a.coach.Run(runCtx); err != nil {
		return err
	}

	saveCtx, cancelSave := context.WithTimeout(context.Background(), saveTimeout)
	defer cancelSave()
	report, err := a.coach.EndSession(saveCtx)
	if err != nil {
		return err
	}
	printReport(out, report)
	return nil
}

func printEntry(out *syncWriter, e types.FeedbackEntry) {
	out.Printf("\n")
	if e.Scores.Indeterminate() {
		out.Printf("[batch %d] scores unavailable\n\n", e.BatchSeq)
		return
	}
	out.Printf("[batch %d] flexibility %s  alignment %s  smoothness %s  energy %s\n\n",
		e.BatchSeq, score(e.Scores.Flexibility), score(e.Scores.Alignment),
		score(e.Scores.Smoothness), score(e.Scores.Energy))
}

func printReport(out *syncWriter, r types.Report) {
	out.Printf("Saved report %s\n", r.ID)
	out.Printf("  duration:  %s\n", r.Duration)
	out.Printf("  exercises: %d\n", r.Exercises)
	out.Printf("  overall:   %s/10\n", score(r.OverallScore))
	if r.Summary != "" {
		out.Printf("  summary:   %s\n", r.Summary)
	}
}

func score(v *int) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprint(*v)
}

// syncWriter serializes output from the token listener and entry handlers.
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Printf(format string, args ...any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintf(s.w, format, args...)
}
