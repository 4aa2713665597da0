package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/AltairaLabs/barre/pkg/config"
	"github.com/AltairaLabs/barre/pkg/httputil"
	"github.com/AltairaLabs/barre/runtime/auth"
	"github.com/AltairaLabs/barre/runtime/backend"
	"github.com/AltairaLabs/barre/runtime/capture"
	"github.com/AltairaLabs/barre/runtime/feedback"
	"github.com/AltairaLabs/barre/runtime/logger"
	prommetrics "github.com/AltairaLabs/barre/runtime/metrics/prometheus"
	"github.com/AltairaLabs/barre/runtime/pipeline"
	"github.com/AltairaLabs/barre/runtime/providers"
	"github.com/AltairaLabs/barre/runtime/relay"
	"github.com/AltairaLabs/barre/runtime/scoring"
	"github.com/AltairaLabs/barre/runtime/session"
	"github.com/AltairaLabs/barre/runtime/statestore"
	"github.com/AltairaLabs/barre/runtime/telemetry"

	_ "github.com/AltairaLabs/barre/runtime/providers/mock"   // registers "mock"
	_ "github.com/AltairaLabs/barre/runtime/providers/openai" // registers "openai"
)

// loadConfig reads the config file named by --config (or the defaults) and
// applies flag and BARRE_* environment overrides on top.
func (c *cli) loadConfig(cmd *cobra.Command) (*config.Config, string, error) {
	path, _ := cmd.Flags().GetString(flagConfig)

	var cfg *config.Config
	configDir := ""
	if path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, "", err
		}
		cfg = loaded
		configDir = filepath.Dir(path)
	} else {
		cfg = config.Default()
	}

	if c.v.IsSet(keyBatchSize) {
		cfg.Batch.Size = c.v.GetInt(keyBatchSize)
	}
	if c.v.IsSet(keySourceDir) {
		cfg.Capture.SourceDir = c.v.GetString(keySourceDir)
	}
	if c.v.IsSet(keyUserID) && c.v.GetString(keyUserID) != "" {
		cfg.Session.UserID = c.v.GetString(keyUserID)
	}
	if c.v.GetBool(keyMockProvider) {
		cfg.Provider.Type = config.ProviderMock
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", err
	}

	logger.Configure(&logger.LoggingConfigSpec{
		DefaultLevel: cfg.Logging.DefaultLevel,
		Format:       cfg.Logging.Format,
		CommonFields: cfg.Logging.CommonFields,
	})
	if verbose, _ := cmd.Flags().GetBool(flagVerbose); verbose {
		logger.SetVerbose(true)
	}
	return cfg, configDir, nil
}

// app holds every component built from a configuration.
type app struct {
	cfg       *config.Config
	coach     *pipeline.Coach
	generator *feedback.Generator
	relay     *relay.Channel
	exporter  *prommetrics.Exporter
	shutdown  []func(context.Context) error
}

type appOptions struct {
	withSampler bool
	coachOpts   []pipeline.Option
}

// newApp constructs all collaborators explicitly and hands them to a Coach.
func newApp(ctx context.Context, cfg *config.Config, configDir string, opts appOptions) (*app, error) {
	a := &app{cfg: cfg}

	shutdownTracing, err := telemetry.Setup(ctx, cfg.Telemetry.Endpoint, cfg.Telemetry.ServiceName)
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}
	a.shutdown = append(a.shutdown, shutdownTracing)

	listener := prommetrics.NewMetricsListener()
	if cfg.Metrics.Addr != "" {
		a.exporter = prommetrics.NewExporter(cfg.Metrics.Addr)
	}

	feedbackProvider, err := newProvider(cfg.Provider, cfg.Provider.FeedbackModel, "feedback")
	if err != nil {
		return nil, err
	}
	scoringProvider, err := newProvider(cfg.Provider, cfg.Provider.ScoringModel, "scoring")
	if err != nil {
		return nil, err
	}

	a.generator = feedback.NewGenerator(feedbackProvider, feedback.Config{
		MaxTokens:   cfg.Provider.MaxTokens,
		Temperature: cfg.Provider.Temperature,
		ImageDetail: cfg.Provider.ImageDetail,
		Timeout:     cfg.Provider.RequestTimeout,
	}, feedback.WithObserver(listener))
	extractor := scoring.NewExtractor(scoringProvider, scoring.Config{
		MaxTokens:   cfg.Provider.ScoringMaxTokens,
		Temperature: cfg.Provider.ScoringTemperature,
		Timeout:     cfg.Provider.RequestTimeout,
	}, scoring.WithObserver(listener))

	tokens, err := auth.Resolve(ctx, cfg.Auth, configDir)
	if err != nil {
		return nil, fmt.Errorf("auth: %w", err)
	}
	client := backend.NewClient(backend.Config{
		BaseURL: cfg.Backend.URL,
		MeshURL: cfg.Backend.MeshURL,
		Timeout: cfg.Backend.Timeout,
	}, auth.NewBearerCredential(tokens))

	storeCfg := cfg.StateStore
	if storeCfg.Path != "" && !filepath.IsAbs(storeCfg.Path) && configDir != "" {
		storeCfg.Path = filepath.Join(configDir, storeCfg.Path)
	}
	drafts, err := statestore.Open(storeCfg)
	if err != nil {
		return nil, fmt.Errorf("statestore: %w", err)
	}

	deps := pipeline.Deps{
		Generator: a.generator,
		Extractor: extractor,
		Backend:   client,
		Drafts:    drafts,
	}

	if opts.withSampler {
		src, err := capture.NewDirSource(cfg.Capture.SourceDir)
		if err != nil {
			_ = drafts.Close()
			return nil, err
		}
		deps.Sampler = capture.NewSampler(src,
			capture.WithQuality(cfg.Capture.JPEGQuality),
			capture.WithMaxWidth(cfg.Capture.MaxWidth),
			capture.WithInterval(cfg.Capture.Interval),
		)
	}

	if cfg.Relay.Enabled {
		a.relay = relay.NewChannel(relay.Config{
			URL:          cfg.Relay.URL,
			UserID:       cfg.Session.UserID,
			QueueSize:    cfg.Relay.QueueSize,
			DialTimeout:  cfg.Relay.DialTimeout,
			WriteTimeout: cfg.Relay.WriteTimeout,
			Backoff: relay.BackoffPolicy{
				Base:        cfg.Relay.Backoff.Base,
				Multiplier:  cfg.Relay.Backoff.Multiplier,
				Max:         cfg.Relay.Backoff.Max,
				MaxAttempts: cfg.Relay.Backoff.MaxAttempts,
			},
			ReplayRate:  cfg.Relay.ReplayRate,
			ReplayBurst: cfg.Relay.ReplayBurst,
		}, relay.WithObserver(listener))
		deps.Relay = a.relay
	}

	coachOpts := append([]pipeline.Option{pipeline.WithObserver(listener)}, opts.coachOpts...)
	a.coach = pipeline.NewCoach(pipeline.Config{
		BatchSize: cfg.Batch.Size,
		Session: session.Config{
			MaxDuration: cfg.Session.MaxDuration,
			Tick:        cfg.Session.Tick,
			Description: cfg.Session.Description,
		},
		UserID:         cfg.Session.UserID,
		Title:          cfg.Session.Title,
		IdleInterval:   cfg.Capture.Interval,
		ActiveInterval: cfg.Capture.ActiveInterval,
		MirrorChat:     cfg.Backend.MirrorChat,
		UploadFrames:   cfg.Backend.MeshURL != "",
	}, deps, coachOpts...)

	return a, nil
}

// serveMetrics runs the exporter until ctx is done. It is a no-op when no
// metrics address is configured.
func (a *app) serveMetrics(ctx context.Context) {
	if a.exporter == nil {
		return
	}
	go func() {
		if err := a.exporter.Serve(ctx); err != nil {
			logger.Warn("Metrics exporter stopped", "error", err)
		}
	}()
}

func (a *app) Close(ctx context.Context) error {
	errs := []error{a.coach.Close()}
	for _, fn := range a.shutdown {
		errs = append(errs, fn(ctx))
	}
	return errors.Join(errs...)
}

func newProvider(cfg config.ProviderConfig, model, role string) (providers.Provider, error) {
	p, err := providers.CreateProviderFromSpec(providers.ProviderSpec{
		ID:        role,
		Type:      cfg.Type,
		Model:     model,
		BaseURL:   cfg.BaseURL,
		APIKeyEnv: cfg.APIKeyEnv,
		Defaults: providers.ProviderDefaults{
			Temperature: cfg.Temperature,
			MaxTokens:   cfg.MaxTokens,
		},
		HTTPClient: httputil.NewTracedHTTPClient(cfg.RequestTimeout, role),
	})
	if err != nil {
		return nil, fmt.Errorf("%s provider: %w", role, err)
	}
	return p, nil
}
