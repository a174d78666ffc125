// internal/config/config.go
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Supported LLM providers.
const (
	ProviderGemini   = "gemini"
	ProviderGenAISDK = "genai"
)

// Vision modes controlling when snapshots carry screenshots.
const (
	VisionAlways       = "always"
	VisionOnNavigation = "on_navigation"
	VisionOnError      = "on_error"
	VisionNever        = "never"
)

// Config is the immutable root configuration. It is built once at startup
// and threaded into each component's constructor; components never consult
// viper or any other ambient source themselves.
type Config struct {
	Logger  LoggerConfig  `mapstructure:"logger" yaml:"logger"`
	Browser BrowserConfig `mapstructure:"browser" yaml:"browser"`
	Agent   AgentConfig   `mapstructure:"agent" yaml:"agent"`
	LLM     LLMConfig     `mapstructure:"llm" yaml:"llm"`
	Risk    RiskConfig    `mapstructure:"risk" yaml:"risk"`
	Session SessionConfig `mapstructure:"session" yaml:"session"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color names for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// BrowserConfig holds settings for the headless browser instance.
type BrowserConfig struct {
	Headless          bool          `mapstructure:"headless" yaml:"headless"`
	Args              []string      `mapstructure:"args" yaml:"args"`
	UserDataDir       string        `mapstructure:"user_data_dir" yaml:"user_data_dir"`
	UserAgent         string        `mapstructure:"user_agent" yaml:"user_agent"`
	ViewportWidth     int           `mapstructure:"viewport_width" yaml:"viewport_width"`
	ViewportHeight    int           `mapstructure:"viewport_height" yaml:"viewport_height"`
	IgnoreTLSErrors   bool          `mapstructure:"ignore_tls_errors" yaml:"ignore_tls_errors"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	ActionTimeout     time.Duration `mapstructure:"action_timeout" yaml:"action_timeout"`
	PostLoadWait      time.Duration `mapstructure:"post_load_wait" yaml:"post_load_wait"`
}

// AgentConfig tunes the perception-decision-action loop.
type AgentConfig struct {
	MaxIterations     int           `mapstructure:"max_iterations" yaml:"max_iterations"`
	TaskTimeout       time.Duration `mapstructure:"task_timeout" yaml:"task_timeout"`
	RecentWindow      int           `mapstructure:"recent_window" yaml:"recent_window"`
	ContextTokenLimit int           `mapstructure:"context_token_limit" yaml:"context_token_limit"`
	BudgetFraction    float64       `mapstructure:"budget_fraction" yaml:"budget_fraction"`
	VisionMode        string        `mapstructure:"vision_mode" yaml:"vision_mode"`
	MaxCostPerTask    float64       `mapstructure:"max_cost_per_task" yaml:"max_cost_per_task"`
	RequestsPerMinute int           `mapstructure:"requests_per_minute" yaml:"requests_per_minute"`

	Snapshot SnapshotConfig `mapstructure:"snapshot" yaml:"snapshot"`
}

// SnapshotConfig bounds the page abstraction builder.
type SnapshotConfig struct {
	MaxElements    int `mapstructure:"max_elements" yaml:"max_elements"`
	MaxDepth       int `mapstructure:"max_depth" yaml:"max_depth"`
	MaxTextLength  int `mapstructure:"max_text_length" yaml:"max_text_length"`
	MaxAttrLength  int `mapstructure:"max_attr_length" yaml:"max_attr_length"`
	MaxHrefLength  int `mapstructure:"max_href_length" yaml:"max_href_length"`
	MaxClassTokens int `mapstructure:"max_class_tokens" yaml:"max_class_tokens"`
	MaxByteSize    int `mapstructure:"max_byte_size" yaml:"max_byte_size"`
}

// LLMConfig selects a provider and carries the per-tier model settings.
type LLMConfig struct {
	Provider string                 `mapstructure:"provider" yaml:"provider"`
	Models   map[string]ModelConfig `mapstructure:"models" yaml:"models"`
}

// ModelConfig defines the configuration for a single LLM.
type ModelConfig struct {
	Model           string            `mapstructure:"model" yaml:"model"`
	APIKey          string            `mapstructure:"api_key" yaml:"-"`
	Endpoint        string            `mapstructure:"endpoint" yaml:"endpoint"`
	APITimeout      time.Duration     `mapstructure:"api_timeout" yaml:"api_timeout"`
	MaxTokens       int               `mapstructure:"max_tokens" yaml:"max_tokens"`
	Temperature     float32           `mapstructure:"temperature" yaml:"temperature"`
	TopP            float32           `mapstructure:"top_p" yaml:"top_p"`
	TopK            int               `mapstructure:"top_k" yaml:"top_k"`
	InputCostPer1K  float64           `mapstructure:"input_cost_per_1k" yaml:"input_cost_per_1k"`
	OutputCostPer1K float64           `mapstructure:"output_cost_per_1k" yaml:"output_cost_per_1k"`
	SafetyFilters   map[string]string `mapstructure:"safety_filters" yaml:"safety_filters"`
}

// RiskConfig drives the risk classifier. Keyword categories map a category
// name (used in verdict reasons) to its trigger vocabulary.
type RiskConfig struct {
	DangerousKeywords      map[string][]string `mapstructure:"dangerous_keywords" yaml:"dangerous_keywords"`
	SensitiveURLPatterns   []string            `mapstructure:"sensitive_url_patterns" yaml:"sensitive_url_patterns"`
	SensitiveFieldKeywords []string            `mapstructure:"sensitive_field_keywords" yaml:"sensitive_field_keywords"`
	// ConfirmMediumRisk controls the default policy for Medium verdicts:
	// true requires confirmation, false logs and proceeds.
	ConfirmMediumRisk bool `mapstructure:"confirm_medium_risk" yaml:"confirm_medium_risk"`
}

// SessionConfig controls browser state persistence across tasks.
type SessionConfig struct {
	Dir     string `mapstructure:"dir" yaml:"dir"`
	Profile string `mapstructure:"profile" yaml:"profile"`
}

// RegisterDefaults installs every default into the given viper instance so
// a partial (or absent) config file still yields a complete Config.
func RegisterDefaults(v *viper.Viper) {
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.service_name", "webpilot-cli")
	v.SetDefault("logger.max_size", 10)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 7)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.dpanic", "magenta")
	v.SetDefault("logger.colors.panic", "magenta")
	v.SetDefault("logger.colors.fatal", "red")

	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.viewport_width", 1280)
	v.SetDefault("browser.viewport_height", 800)
	v.SetDefault("browser.navigation_timeout", 30*time.Second)
	v.SetDefault("browser.action_timeout", 15*time.Second)
	v.SetDefault("browser.post_load_wait", 1500*time.Millisecond)

	v.SetDefault("agent.max_iterations", 50)
	v.SetDefault("agent.task_timeout", 5*time.Minute)
	v.SetDefault("agent.recent_window", 10)
	v.SetDefault("agent.context_token_limit", 32000)
	v.SetDefault("agent.budget_fraction", 0.70)
	v.SetDefault("agent.vision_mode", VisionOnNavigation)
	v.SetDefault("agent.max_cost_per_task", 0.0)
	v.SetDefault("agent.requests_per_minute", 30)
	v.SetDefault("agent.snapshot.max_elements", 30)
	v.SetDefault("agent.snapshot.max_depth", 6)
	v.SetDefault("agent.snapshot.max_text_length", 100)
	v.SetDefault("agent.snapshot.max_attr_length", 100)
	v.SetDefault("agent.snapshot.max_href_length", 50)
	v.SetDefault("agent.snapshot.max_class_tokens", 3)
	v.SetDefault("agent.snapshot.max_byte_size", 40960)

	v.SetDefault("llm.provider", ProviderGemini)
	v.SetDefault("llm.models.powerful.model", "gemini-2.0-flash")
	v.SetDefault("llm.models.powerful.api_timeout", 90*time.Second)
	v.SetDefault("llm.models.powerful.max_tokens", 4096)
	v.SetDefault("llm.models.powerful.temperature", 0.2)
	v.SetDefault("llm.models.fast.model", "gemini-2.0-flash-lite")
	v.SetDefault("llm.models.fast.api_timeout", 60*time.Second)
	v.SetDefault("llm.models.fast.max_tokens", 1024)
	v.SetDefault("llm.models.fast.temperature", 0.1)

	v.SetDefault("risk.dangerous_keywords", DefaultDangerousKeywords())
	v.SetDefault("risk.sensitive_url_patterns", DefaultSensitiveURLPatterns())
	v.SetDefault("risk.sensitive_field_keywords", DefaultSensitiveFieldKeywords())
	v.SetDefault("risk.confirm_medium_risk", true)

	v.SetDefault("session.dir", ".webpilot/sessions")
}

// Load unmarshals the viper state into a validated Config.
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects configurations the loop cannot run under.
func (c *Config) Validate() error {
	if c.Agent.MaxIterations <= 0 {
		return fmt.Errorf("agent.max_iterations must be positive, got %d", c.Agent.MaxIterations)
	}
	if c.Agent.RecentWindow <= 0 {
		return fmt.Errorf("agent.recent_window must be positive, got %d", c.Agent.RecentWindow)
	}
	if c.Agent.BudgetFraction <= 0 || c.Agent.BudgetFraction > 1 {
		return fmt.Errorf("agent.budget_fraction must be in (0, 1], got %f", c.Agent.BudgetFraction)
	}
	switch c.Agent.VisionMode {
	case VisionAlways, VisionOnNavigation, VisionOnError, VisionNever:
	default:
		return fmt.Errorf("agent.vision_mode %q is not one of always, on_navigation, on_error, never", c.Agent.VisionMode)
	}
	if c.Agent.Snapshot.MaxElements <= 0 {
		return fmt.Errorf("agent.snapshot.max_elements must be positive, got %d", c.Agent.Snapshot.MaxElements)
	}
	switch c.LLM.Provider {
	case ProviderGemini, ProviderGenAISDK:
	default:
		return fmt.Errorf("llm.provider %q is not supported (supported: %s, %s)", c.LLM.Provider, ProviderGemini, ProviderGenAISDK)
	}
	return nil
}

// Model returns the tier's model settings, falling back to "powerful" when
// the requested tier is not configured.
func (c *Config) Model(tier string) ModelConfig {
	if m, ok := c.LLM.Models[tier]; ok {
		return m
	}
	return c.LLM.Models["powerful"]
}

// DefaultDangerousKeywords is the built-in high-risk vocabulary, grouped by
// category so verdicts can name what tripped them.
func DefaultDangerousKeywords() map[string][]string {
	return map[string][]string{
		"payment":  {"buy", "purchase", "pay", "payment", "order", "checkout", "subscribe"},
		"deletion": {"delete", "remove", "cancel", "unsubscribe", "deactivate", "close account"},
		"send":     {"send", "submit", "post", "publish", "share", "transfer"},
		"account":  {"password", "credential", "sign up", "register", "unlink"},
	}
}

// DefaultSensitiveURLPatterns is the built-in sensitive-domain vocabulary.
func DefaultSensitiveURLPatterns() []string {
	return []string{
		"checkout", "payment", "pay.", "order", "cart",
		"billing", "subscribe", "premium", "bank", "admin",
	}
}

// DefaultSensitiveFieldKeywords marks form fields whose typed text must be
// masked in logs and prompts.
func DefaultSensitiveFieldKeywords() []string {
	return []string{
		"password", "pass", "pwd", "secret", "card",
		"credit", "cvv", "cvc", "ssn", "social", "pin",
	}
}
