package config

import "time"

// APIVersion is the manifest version accepted by Load.
const APIVersion = "barre.altairalabs.ai/v1alpha1"

// KindCoachConfig is the manifest kind of a barre configuration file.
const KindCoachConfig = "CoachConfig"

// ObjectMeta is a simplified metadata structure for barre configs.
type ObjectMeta struct {
	Name   string            `yaml:"name,omitempty"`
	Labels map[string]string `yaml:"labels,omitempty"`
}

// Manifest is the on-disk envelope of a configuration file.
type Manifest struct {
	APIVersion string     `yaml:"apiVersion"`
	Kind       string     `yaml:"kind"`
	Metadata   ObjectMeta `yaml:"metadata,omitempty"`
	Spec       Config     `yaml:"spec"`
}

// Config is the complete runtime configuration of a coaching pipeline.
type Config struct {
	Provider   ProviderConfig    `yaml:"provider"`
	Capture    CaptureConfig     `yaml:"capture"`
	Batch      BatchConfig       `yaml:"batch"`
	Session    SessionConfig     `yaml:"session"`
	Relay      RelayConfig       `yaml:"relay"`
	Backend    BackendConfig     `yaml:"backend"`
	Auth       AuthConfig        `yaml:"auth"`
	StateStore StateStoreConfig  `yaml:"statestore"`
	Metrics    MetricsConfig     `yaml:"metrics"`
	Telemetry  TelemetryConfig   `yaml:"telemetry"`
	Logging    LoggingConfigSpec `yaml:"logging"`
}

// ProviderConfig configures the vision/text completion endpoint.
type ProviderConfig struct {
	// Type selects the provider implementation: "openai" or "mock".
	Type          string `yaml:"type,omitempty"`
	BaseURL       string `yaml:"baseURL,omitempty"`
	APIKeyEnv     string `yaml:"apiKeyEnv,omitempty"`
	FeedbackModel string `yaml:"feedbackModel,omitempty"`
	ScoringModel  string `yaml:"scoringModel,omitempty"`
	// ImageDetail is passed through as the vision "detail" hint.
	ImageDetail        string        `yaml:"imageDetail,omitempty"`
	MaxTokens          int           `yaml:"maxTokens,omitempty"`
	ScoringMaxTokens   int           `yaml:"scoringMaxTokens,omitempty"`
	Temperature        float32       `yaml:"temperature,omitempty"`
	ScoringTemperature float32       `yaml:"scoringTemperature,omitempty"`
	RequestTimeout     time.Duration `yaml:"requestTimeout,omitempty"`
}

// CaptureConfig configures frame sampling.
type CaptureConfig struct {
	Interval       time.Duration `yaml:"interval,omitempty"`
	ActiveInterval time.Duration `yaml:"activeInterval,omitempty"`
	JPEGQuality    int           `yaml:"jpegQuality,omitempty"`
	MaxWidth       int           `yaml:"maxWidth,omitempty"`
	SourceDir      string        `yaml:"sourceDir,omitempty"`
}

// BatchConfig configures batch accumulation.
type BatchConfig struct {
	Size int `yaml:"size,omitempty"`
}

// SessionConfig configures session aggregation.
type SessionConfig struct {
	MaxDuration time.Duration `yaml:"maxDuration,omitempty"`
	Tick        time.Duration `yaml:"tick,omitempty"`
	UserID      string        `yaml:"userID,omitempty"`
	Title       string        `yaml:"title,omitempty"`
	Description string        `yaml:"description,omitempty"`
}

// BackoffConfig is the reconnect policy of the relay.
type BackoffConfig struct {
	Base        time.Duration `yaml:"base,omitempty"`
	Multiplier  float64       `yaml:"multiplier,omitempty"`
	Max         time.Duration `yaml:"max,omitempty"`
	MaxAttempts int           `yaml:"maxAttempts,omitempty"`
}

// RelayConfig configures the mesh overlay relay channel.
type RelayConfig struct {
	Enabled      bool          `yaml:"enabled,omitempty"`
	URL          string        `yaml:"url,omitempty"`
	QueueSize    int           `yaml:"queueSize,omitempty"`
	DialTimeout  time.Duration `yaml:"dialTimeout,omitempty"`
	WriteTimeout time.Duration `yaml:"writeTimeout,omitempty"`
	Backoff      BackoffConfig `yaml:"backoff,omitempty"`
	// ReplayRate limits queued-frame replay after a reconnect, in frames per second.
	ReplayRate  float64 `yaml:"replayRate,omitempty"`
	ReplayBurst int     `yaml:"replayBurst,omitempty"`
}

// BackendConfig configures the REST persistence backend.
type BackendConfig struct {
	URL        string        `yaml:"url,omitempty"`
	MeshURL    string        `yaml:"meshURL,omitempty"`
	Timeout    time.Duration `yaml:"timeout,omitempty"`
	MirrorChat bool          `yaml:"mirrorChat,omitempty"`
}

// AuthConfig configures where the bearer token comes from. OAuth2 takes
// precedence over TokenFile, which takes precedence over TokenEnv.
type AuthConfig struct {
	TokenEnv  string        `yaml:"tokenEnv,omitempty"`
	TokenFile string        `yaml:"tokenFile,omitempty"`
	OAuth2    *OAuth2Config `yaml:"oauth2,omitempty"`
}

// OAuth2Config configures a client-credentials token exchange.
type OAuth2Config struct {
	TokenURL        string   `yaml:"tokenURL"`
	ClientID        string   `yaml:"clientID"`
	ClientSecretEnv string   `yaml:"clientSecretEnv,omitempty"`
	Scopes          []string `yaml:"scopes,omitempty"`
}

// StateStoreConfig configures the draft report store.
type StateStoreConfig struct {
	// Type is "memory", "redis" or "sqlite".
	Type     string        `yaml:"type,omitempty"`
	Addr     string        `yaml:"addr,omitempty"`
	Password string        `yaml:"password,omitempty"`
	DB       int           `yaml:"db,omitempty"`
	Path     string        `yaml:"path,omitempty"`
	TTL      time.Duration `yaml:"ttl,omitempty"`
	Prefix   string        `yaml:"prefix,omitempty"`
}

// MetricsConfig configures the Prometheus exporter. An empty Addr disables it.
type MetricsConfig struct {
	Addr string `yaml:"addr,omitempty"`
}

// TelemetryConfig configures OTLP trace export. An empty Endpoint disables it.
type TelemetryConfig struct {
	Endpoint    string `yaml:"endpoint,omitempty"`
	ServiceName string `yaml:"serviceName,omitempty"`
}

// StateStore types.
const (
	StateStoreMemory = "memory"
	StateStoreRedis  = "redis"
	StateStoreSQLite = "sqlite"
)

// Provider types.
const (
	ProviderOpenAI = "openai"
	ProviderMock   = "mock"
)
