package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	pkgerrors "github.com/AltairaLabs/barre/pkg/errors"
)

// Default values. The capture cadence, batch size and session cap follow the
// live-practice flow: one frame per second idle, ~3 per second while a
// session runs, ten frames per feedback request, five minutes per session.
const (
	DefaultCaptureInterval       = time.Second
	DefaultActiveCaptureInterval = 300 * time.Millisecond
	DefaultJPEGQuality           = 70
	DefaultMaxWidth              = 800
	DefaultBatchSize             = 10
	DefaultSessionMaxDuration    = 5 * time.Minute
	DefaultSessionTick           = time.Second
	DefaultSessionTitle          = "Practice Session"
	DefaultSessionDescription    = "AI-analyzed dance practice session"

	DefaultBaseURL            = "https://api.openai.com/v1"
	DefaultAPIKeyEnv          = "OPENAI_API_KEY"
	DefaultFeedbackModel      = "gpt-4o"
	DefaultScoringModel       = "gpt-4"
	DefaultImageDetail        = "low"
	DefaultMaxTokens          = 700
	DefaultScoringMaxTokens   = 200
	DefaultTemperature        = 0.7
	DefaultScoringTemperature = 0.7
	DefaultRequestTimeout     = 60 * time.Second

	DefaultRelayQueueSize    = 50
	DefaultRelayDialTimeout  = 10 * time.Second
	DefaultRelayWriteTimeout = 5 * time.Second
	DefaultBackoffBase       = time.Second
	DefaultBackoffMultiplier = 2.0
	DefaultBackoffMax        = 30 * time.Second
	DefaultBackoffAttempts   = 5
	DefaultReplayRate        = 20.0
	DefaultReplayBurst       = 5

	DefaultBackendTimeout = 30 * time.Second
	DefaultTokenEnv       = "BARRE_AUTH_TOKEN"

	DefaultStateStoreTTL    = 7 * 24 * time.Hour
	DefaultStateStorePrefix = "barre"
	DefaultServiceName      = "barre"
)

// Default returns a Config with every default applied.
func Default() *Config {
	cfg := &Config{}
	cfg.ApplyDefaults()
	return cfg
}

// Load reads, schema-validates and parses a CoachConfig manifest, then applies
// defaults and semantic validation.
func Load(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, pkgerrors.New(pkgerrors.ComponentConfig, "read", err).
			WithDetails(map[string]any{"path": filename})
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, pkgerrors.New(pkgerrors.ComponentConfig, "load", err).
			WithDetails(map[string]any{"path": filename})
	}
	return cfg, nil
}

// Parse parses manifest bytes. See Load.
func Parse(data []byte) (*Config, error) {
	if err := ValidateCoachConfig(data); err != nil {
		return nil, err
	}

	var manifest Manifest
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg := &manifest.Spec
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyDefaults fills every zero-valued field with its default.
func (c *Config) ApplyDefaults() {
	p := &c.Provider
	setDefault(&p.Type, ProviderOpenAI)
	setDefault(&p.BaseURL, DefaultBaseURL)
	setDefault(&p.APIKeyEnv, DefaultAPIKeyEnv)
	setDefault(&p.FeedbackModel, DefaultFeedbackModel)
	setDefault(&p.ScoringModel, DefaultScoringModel)
	setDefault(&p.ImageDetail, DefaultImageDetail)
	setDefault(&p.MaxTokens, DefaultMaxTokens)
	setDefault(&p.ScoringMaxTokens, DefaultScoringMaxTokens)
	setDefault(&p.Temperature, DefaultTemperature)
	setDefault(&p.ScoringTemperature, DefaultScoringTemperature)
	setDefault(&p.RequestTimeout, DefaultRequestTimeout)

	setDefault(&c.Capture.Interval, DefaultCaptureInterval)
	setDefault(&c.Capture.ActiveInterval, DefaultActiveCaptureInterval)
	setDefault(&c.Capture.JPEGQuality, DefaultJPEGQuality)
	setDefault(&c.Capture.MaxWidth, DefaultMaxWidth)

	setDefault(&c.Batch.Size, DefaultBatchSize)

	setDefault(&c.Session.MaxDuration, DefaultSessionMaxDuration)
	setDefault(&c.Session.Tick, DefaultSessionTick)
	setDefault(&c.Session.Title, DefaultSessionTitle)
	setDefault(&c.Session.Description, DefaultSessionDescription)

	r := &c.Relay
	setDefault(&r.QueueSize, DefaultRelayQueueSize)
	setDefault(&r.DialTimeout, DefaultRelayDialTimeout)
	setDefault(&r.WriteTimeout, DefaultRelayWriteTimeout)
	setDefault(&r.Backoff.Base, DefaultBackoffBase)
	setDefault(&r.Backoff.Multiplier, DefaultBackoffMultiplier)
	setDefault(&r.Backoff.Max, DefaultBackoffMax)
	setDefault(&r.Backoff.MaxAttempts, DefaultBackoffAttempts)
	setDefault(&r.ReplayRate, DefaultReplayRate)
	setDefault(&r.ReplayBurst, DefaultReplayBurst)

	setDefault(&c.Backend.Timeout, DefaultBackendTimeout)
	setDefault(&c.Auth.TokenEnv, DefaultTokenEnv)

	setDefault(&c.StateStore.Type, StateStoreMemory)
	setDefault(&c.StateStore.TTL, DefaultStateStoreTTL)
	setDefault(&c.StateStore.Prefix, DefaultStateStorePrefix)

	setDefault(&c.Telemetry.ServiceName, DefaultServiceName)

	setDefault(&c.Logging.DefaultLevel, LogLevelInfo)
	setDefault(&c.Logging.Format, LogFormatText)
}

// Validate checks cross-field constraints the schema cannot express.
func (c *Config) Validate() error {
	switch {
	case c.Batch.Size < 1:
		return &ValidationError{Field: "batch.size", Message: "must be at least 1"}
	case c.Capture.JPEGQuality < 1 || c.Capture.JPEGQuality > 100:
		return &ValidationError{Field: "capture.jpegQuality", Message: "must be between 1 and 100"}
	case c.Capture.Interval <= 0 || c.Capture.ActiveInterval <= 0:
		return &ValidationError{Field: "capture.interval", Message: "must be positive"}
	case c.Session.Tick <= 0:
		return &ValidationError{Field: "session.tick", Message: "must be positive"}
	case c.Relay.Enabled && c.Relay.URL == "":
		return &ValidationError{Field: "relay.url", Message: "is required when the relay is enabled"}
	case c.Relay.Enabled && c.Session.UserID == "":
		return &ValidationError{Field: "session.userID", Message: "is required when the relay is enabled"}
	case c.Relay.Backoff.Multiplier < 1:
		return &ValidationError{Field: "relay.backoff.multiplier", Message: "must be at least 1"}
	case c.Relay.Backoff.Max < c.Relay.Backoff.Base:
		return &ValidationError{Field: "relay.backoff.max", Message: "must not be below relay.backoff.base"}
	}

	switch c.StateStore.Type {
	case StateStoreMemory:
	case StateStoreRedis:
		if c.StateStore.Addr == "" {
			return &ValidationError{Field: "statestore.addr", Message: "is required for the redis store"}
		}
	case StateStoreSQLite:
		if c.StateStore.Path == "" {
			return &ValidationError{Field: "statestore.path", Message: "is required for the sqlite store"}
		}
	default:
		return &ValidationError{
			Field:   "statestore.type",
			Message: "must be one of: memory, redis, sqlite",
			Value:   c.StateStore.Type,
		}
	}

	return c.Logging.Validate()
}

func setDefault[T comparable](field *T, def T) {
	var zero T
	if *field == zero {
		*field = def
	}
}
