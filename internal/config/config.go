package config

import (
	"fmt"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds all configuration for the detection gateway
type Config struct {
	// Server configuration
	Port string `envconfig:"PORT" default:"8080"`

	// Audio pipeline configuration. The DSP parameters must match what the
	// classifier was trained on; changing them silently degrades accuracy.
	SampleRate     int     `envconfig:"SAMPLE_RATE" default:"16000"`    // Internal sample rate in Hz
	WindowSeconds  int     `envconfig:"WINDOW_SECONDS" default:"3"`     // Analysis window duration
	FrameSize      int     `envconfig:"FRAME_SIZE" default:"1024"`      // FFT frame length in samples
	HopSize        int     `envconfig:"HOP_SIZE" default:"256"`         // Hop between analysis frames
	MelBands       int     `envconfig:"MEL_BANDS" default:"64"`         // Mel filterbank size
	VADThresholdDb float64 `envconfig:"VAD_THRESHOLD_DB" default:"-40"` // Silence trim threshold in dB

	// Streaming capture configuration
	CaptureFrameSize   int `envconfig:"CAPTURE_FRAME_SIZE" default:"1024"` // Samples per capture read
	CaptureReadTimeout int `envconfig:"CAPTURE_READ_TIMEOUT" default:"2"`  // Seconds before a blocked read gives up
	ScoreInterval      int `envconfig:"SCORE_INTERVAL" default:"1024"`     // New samples accumulated between scores

	// Detection configuration
	DetectionEnabled   bool    `envconfig:"DETECTION_ENABLED" default:"true"`
	DetectionThreshold float64 `envconfig:"DETECTION_THRESHOLD" default:"0.7"` // Probability threshold for alerts
	AlertCooldown      int     `envconfig:"ALERT_COOLDOWN" default:"10"`       // Seconds between alerts per session

	// Model server configuration
	ScorerURL     string `envconfig:"SCORER_URL" default:"http://localhost:9090/v1/score"`
	ScorerTimeout int    `envconfig:"SCORER_TIMEOUT" default:"5"` // Seconds per inference request
	ModelVersion  string `envconfig:"MODEL_VERSION" default:"0.0.1"`

	// Persistence configuration
	DataDir       string `envconfig:"DATA_DIR" default:"./data"`
	StoreInMemory bool   `envconfig:"STORE_IN_MEMORY" default:"false"` // Volatile store, for development

	// Resilience configuration
	CircuitBreakerMaxFailures  int `envconfig:"CIRCUIT_BREAKER_MAX_FAILURES" default:"5"`   // Failures before opening circuit
	CircuitBreakerResetTimeout int `envconfig:"CIRCUIT_BREAKER_RESET_TIMEOUT" default:"30"` // Seconds before attempting recovery
	RetryMaxAttempts           int `envconfig:"RETRY_MAX_ATTEMPTS" default:"3"`             // Maximum retry attempts for store writes
	RetryInitialBackoff        int `envconfig:"RETRY_INITIAL_BACKOFF" default:"100"`        // Initial backoff in milliseconds

	// Observability configuration
	LogLevel       string `envconfig:"LOG_LEVEL" default:"info"`       // Log level: debug, info, warn, error
	LogPretty      bool   `envconfig:"LOG_PRETTY" default:"false"`     // Pretty print logs (for development)
	MetricsEnabled bool   `envconfig:"METRICS_ENABLED" default:"true"` // Enable Prometheus metrics
}

// Load reads configuration from environment variables
// It first attempts to load from .env file if it exists, then from environment
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// LoadFromEnv loads configuration directly from environment variables
// without attempting to load .env file (useful for containerized deployments)
func LoadFromEnv() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks configuration invariants that envconfig cannot express
func (c *Config) Validate() error {
	if c.SampleRate <= 0 {
		return fmt.Errorf("SAMPLE_RATE must be positive, got %d", c.SampleRate)
	}
	if c.WindowSeconds <= 0 {
		return fmt.Errorf("WINDOW_SECONDS must be positive, got %d", c.WindowSeconds)
	}
	if c.FrameSize <= 0 || c.HopSize <= 0 {
		return fmt.Errorf("FRAME_SIZE and HOP_SIZE must be positive, got %d/%d", c.FrameSize, c.HopSize)
	}
	if c.FrameSize > c.WindowSamples() {
		return fmt.Errorf("FRAME_SIZE %d exceeds analysis window of %d samples", c.FrameSize, c.WindowSamples())
	}
	if c.MelBands <= 0 {
		return fmt.Errorf("MEL_BANDS must be positive, got %d", c.MelBands)
	}
	if c.DetectionThreshold < 0 || c.DetectionThreshold > 1 {
		return fmt.Errorf("DETECTION_THRESHOLD must be in [0,1], got %f", c.DetectionThreshold)
	}
	if c.AlertCooldown < 0 {
		return fmt.Errorf("ALERT_COOLDOWN must not be negative, got %d", c.AlertCooldown)
	}
	if c.ScoreInterval <= 0 {
		return fmt.Errorf("SCORE_INTERVAL must be positive, got %d", c.ScoreInterval)
	}
	if c.ScorerURL == "" {
		return fmt.Errorf("SCORER_URL is required")
	}
	return nil
}

// WindowSamples returns the analysis window length in samples
func (c *Config) WindowSamples() int {
	return c.SampleRate * c.WindowSeconds
}
