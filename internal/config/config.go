// File: internal/config/config.go
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the root configuration object, assembled from defaults, an
// optional config file, environment variables, and CLI flags (in ascending
// precedence).
type Config struct {
	Logger   LoggerConfig   `mapstructure:"logger"`
	Browser  BrowserConfig  `mapstructure:"browser"`
	LLM      LLMConfig      `mapstructure:"llm"`
	Pipeline PipelineConfig `mapstructure:"pipeline"`
	Profile  ProfileConfig  `mapstructure:"profile"`
	Store    StoreConfig    `mapstructure:"store"`
}

// LoggerConfig controls the zap logger bootstrap.
type LoggerConfig struct {
	Level       string `mapstructure:"level"`
	Format      string `mapstructure:"format"` // "console" or "json"
	LogFile     string `mapstructure:"log_file"`
	MaxSize     int    `mapstructure:"max_size"` // megabytes, per lumberjack
	MaxBackups  int    `mapstructure:"max_backups"`
	MaxAge      int    `mapstructure:"max_age"` // days
	Compress    bool   `mapstructure:"compress"`
	AddSource   bool   `mapstructure:"add_source"`
	ServiceName string `mapstructure:"service_name"`
}

// BrowserConfig controls the chromedp session.
type BrowserConfig struct {
	Headless        bool          `mapstructure:"headless"`
	UserAgent       string        `mapstructure:"user_agent"`
	PageLoadTimeout time.Duration `mapstructure:"page_load_timeout"`
	ActionTimeout   time.Duration `mapstructure:"action_timeout"`
	StabilizeDelay  time.Duration `mapstructure:"stabilize_delay"`
}

// LLMModelConfig describes one model endpoint within a tier.
type LLMModelConfig struct {
	ModelName       string        `mapstructure:"model_name"`
	Temperature     float64       `mapstructure:"temperature"`
	TopP            float64       `mapstructure:"top_p"`
	TopK            int           `mapstructure:"top_k"`
	MaxOutputTokens int           `mapstructure:"max_output_tokens"`
	Timeout         time.Duration `mapstructure:"timeout"`
}

// LLMConfig selects the model provider and per-tier models.
type LLMConfig struct {
	Provider          string         `mapstructure:"provider"`
	APIKey            string         `mapstructure:"api_key"` // bound to FORMPILOT_LLM_API_KEY
	Endpoint          string         `mapstructure:"endpoint"`
	Fast              LLMModelConfig `mapstructure:"fast"`
	Powerful          LLMModelConfig `mapstructure:"powerful"`
	RequestsPerMinute int            `mapstructure:"requests_per_minute"`
}

// GroundingConfig carries the tunable weights and floors of the grounding
// cascade. The IoU/text weighting is deliberately configuration, not code.
type GroundingConfig struct {
	WeightIoU         float64 `mapstructure:"weight_iou"`
	WeightText        float64 `mapstructure:"weight_text"`
	IoUCandidateFloor float64 `mapstructure:"iou_candidate_floor"`
	IoUStrong         float64 `mapstructure:"iou_strong"`
	IoUFallbackFloor  float64 `mapstructure:"iou_fallback_floor"`
	FallbackPenalty   float64 `mapstructure:"fallback_penalty"`
}

// ConfidenceConfig holds the global confidence bands shared by grounding,
// semantic matching, and orchestrator escalation.
type ConfidenceConfig struct {
	High   float64 `mapstructure:"high"`
	Medium float64 `mapstructure:"medium"`
}

// AutonomyLevel controls how much of the action flow is gated on review.
type AutonomyLevel string

const (
	AutonomyReviewAll    AutonomyLevel = "review_all"    // gate every action batch
	AutonomyReviewSubmit AutonomyLevel = "review_submit" // gate only submission pages
	AutonomyAutonomous   AutonomyLevel = "autonomous"    // QA review still mandatory
)

// PipelineConfig controls the per-page pipeline behavior.
type PipelineConfig struct {
	Grounding             GroundingConfig  `mapstructure:"grounding"`
	Confidence            ConfidenceConfig `mapstructure:"confidence"`
	Autonomy              AutonomyLevel    `mapstructure:"autonomy"`
	SchemaPath            string           `mapstructure:"schema_path"`
	MaxAIRetries          int              `mapstructure:"max_ai_retries"`
	MaxCorrectionAttempts int              `mapstructure:"max_correction_attempts"`
	MaxPages              int              `mapstructure:"max_pages"`
}

// ProfileConfig locates the applicant profile document.
type ProfileConfig struct {
	Path string `mapstructure:"path"`
}

// StoreConfig selects the application-state persistence backend.
type StoreConfig struct {
	Backend     string `mapstructure:"backend"` // "memory" or "postgres"
	PostgresDSN string `mapstructure:"postgres_dsn"`
}

// SetDefaults registers every configuration default on the given viper
// instance. Called before any file or environment merge so that a bare
// binary runs with sane settings.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 50)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 14)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "formpilot")

	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.user_agent", "")
	v.SetDefault("browser.page_load_timeout", 45*time.Second)
	v.SetDefault("browser.action_timeout", 20*time.Second)
	v.SetDefault("browser.stabilize_delay", 1500*time.Millisecond)

	v.SetDefault("llm.provider", "gemini")
	v.SetDefault("llm.endpoint", "https://generativelanguage.googleapis.com/v1beta/models")
	v.SetDefault("llm.requests_per_minute", 30)
	v.SetDefault("llm.fast.model_name", "gemini-2.0-flash")
	v.SetDefault("llm.fast.temperature", 0.1)
	v.SetDefault("llm.fast.top_p", 0.95)
	v.SetDefault("llm.fast.top_k", 40)
	v.SetDefault("llm.fast.max_output_tokens", 8192)
	v.SetDefault("llm.fast.timeout", 60*time.Second)
	v.SetDefault("llm.powerful.model_name", "gemini-2.5-pro")
	v.SetDefault("llm.powerful.temperature", 0.2)
	v.SetDefault("llm.powerful.top_p", 0.95)
	v.SetDefault("llm.powerful.top_k", 40)
	v.SetDefault("llm.powerful.max_output_tokens", 16384)
	v.SetDefault("llm.powerful.timeout", 120*time.Second)

	v.SetDefault("pipeline.grounding.weight_iou", 0.6)
	v.SetDefault("pipeline.grounding.weight_text", 0.4)
	v.SetDefault("pipeline.grounding.iou_candidate_floor", 0.1)
	v.SetDefault("pipeline.grounding.iou_strong", 0.5)
	v.SetDefault("pipeline.grounding.iou_fallback_floor", 0.6)
	v.SetDefault("pipeline.grounding.fallback_penalty", 0.7)
	v.SetDefault("pipeline.confidence.high", 0.75)
	v.SetDefault("pipeline.confidence.medium", 0.5)
	v.SetDefault("pipeline.autonomy", string(AutonomyReviewAll))
	v.SetDefault("pipeline.schema_path", "")
	v.SetDefault("pipeline.max_ai_retries", 3)
	v.SetDefault("pipeline.max_correction_attempts", 2)
	v.SetDefault("pipeline.max_pages", 15)

	v.SetDefault("profile.path", "profile.json")

	v.SetDefault("store.backend", "memory")
	v.SetDefault("store.postgres_dsn", "")
}

// NewConfigFromViper unmarshals and validates the fully merged viper state.
// Secrets are bound to environment variables here so they never need to
// live in a config file.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	// Secret material comes from the environment only.
	if err := v.BindEnv("llm.api_key", "FORMPILOT_LLM_API_KEY", "GEMINI_API_KEY"); err != nil {
		return nil, fmt.Errorf("binding api key env: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks cross-field invariants after unmarshaling.
func (c *Config) Validate() error {
	if err := c.Logger.Validate(); err != nil {
		return err
	}
	if err := c.LLM.Validate(); err != nil {
		return err
	}
	if err := c.Pipeline.Validate(); err != nil {
		return err
	}
	return c.Store.Validate()
}

// Validate checks the logger section.
func (l *LoggerConfig) Validate() error {
	switch strings.ToLower(l.Format) {
	case "console", "json":
		return nil
	default:
		return fmt.Errorf("logger.format must be \"console\" or \"json\", got %q", l.Format)
	}
}

// Validate checks the LLM section.
func (l *LLMConfig) Validate() error {
	if l.Provider == "" {
		return fmt.Errorf("llm.provider must be set")
	}
	if l.Fast.ModelName == "" || l.Powerful.ModelName == "" {
		return fmt.Errorf("llm.fast.model_name and llm.powerful.model_name must be set")
	}
	if l.RequestsPerMinute <= 0 {
		return fmt.Errorf("llm.requests_per_minute must be positive, got %d", l.RequestsPerMinute)
	}
	return nil
}

// Validate checks the pipeline section, including the grounding weights.
func (p *PipelineConfig) Validate() error {
	g := p.Grounding
	if g.WeightIoU < 0 || g.WeightText < 0 {
		return fmt.Errorf("grounding weights must be non-negative")
	}
	sum := g.WeightIoU + g.WeightText
	if sum < 0.99 || sum > 1.01 {
		return fmt.Errorf("grounding weights must sum to 1.0, got %.3f", sum)
	}
	for name, val := range map[string]float64{
		"iou_candidate_floor": g.IoUCandidateFloor,
		"iou_strong":          g.IoUStrong,
		"iou_fallback_floor":  g.IoUFallbackFloor,
		"fallback_penalty":    g.FallbackPenalty,
	} {
		if val < 0 || val > 1 {
			return fmt.Errorf("grounding.%s must be in [0,1], got %.3f", name, val)
		}
	}
	if p.Confidence.High <= p.Confidence.Medium {
		return fmt.Errorf("confidence.high (%.2f) must exceed confidence.medium (%.2f)",
			p.Confidence.High, p.Confidence.Medium)
	}
	switch p.Autonomy {
	case AutonomyReviewAll, AutonomyReviewSubmit, AutonomyAutonomous:
	default:
		return fmt.Errorf("pipeline.autonomy must be one of review_all, review_submit, autonomous; got %q", p.Autonomy)
	}
	if p.MaxPages <= 0 {
		return fmt.Errorf("pipeline.max_pages must be positive, got %d", p.MaxPages)
	}
	return nil
}

// Validate checks the store section.
func (s *StoreConfig) Validate() error {
	switch s.Backend {
	case "memory":
		return nil
	case "postgres":
		if s.PostgresDSN == "" {
			return fmt.Errorf("store.postgres_dsn is required when store.backend is postgres")
		}
		return nil
	default:
		return fmt.Errorf("store.backend must be \"memory\" or \"postgres\", got %q", s.Backend)
	}
}
