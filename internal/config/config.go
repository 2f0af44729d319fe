package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/runger/clipfix/internal/format"
	"github.com/runger/clipfix/internal/lang"
)

// Config represents the clipfix configuration.
type Config struct {
	AI         AIConfig             `yaml:"ai"`
	Classify   ClassifyConfig       `yaml:"classify"`
	Formatting FormattingConfig     `yaml:"formatting"`
	Parallel   ParallelConfig       `yaml:"parallel"`
	Cache      CacheConfig          `yaml:"cache"`
	Privacy    PrivacyConfig        `yaml:"privacy"`
	Log        LogConfig            `yaml:"log"`
	Knowledge  KnowledgeConfig      `yaml:"knowledge"`
	Formatters []format.CommandSpec `yaml:"formatters,omitempty"` // Added to or replacing the built-in commands
}

// AIConfig holds generative backend settings.
type AIConfig struct {
	Enabled          bool   `yaml:"enabled"`            // Allow model classification and repair
	Provider         string `yaml:"provider"`           // auto, anthropic, openai or google
	Model            string `yaml:"model"`              // Provider-specific model
	ClaudeBinary     string `yaml:"claude_binary"`      // Claude CLI executable
	BaseURL          string `yaml:"base_url"`           // OpenAI-compatible server URL
	TimeoutMs        int    `yaml:"timeout_ms"`         // Per-repair deadline
	MaxOutputTokens  int    `yaml:"max_output_tokens"`  // Reply budget when a profile sets none
	BreakerThreshold int    `yaml:"breaker_threshold"`  // Failures before the backend is skipped
	BreakerCooldownS int    `yaml:"breaker_cooldown_s"` // Seconds before a half-open probe
}

// ClassifyConfig holds language detection settings.
type ClassifyConfig struct {
	DefaultLanguage string   `yaml:"default_language"` // Last-resort language
	SignalOrder     []string `yaml:"signal_order"`     // Specificity order of lexical signals
	AllowModel      bool     `yaml:"allow_model"`      // Ask the backend when heuristics are unsure
	TimeoutMs       int      `yaml:"timeout_ms"`       // Model classification deadline
}

// FormattingConfig holds formatter settings.
type FormattingConfig struct {
	TimeoutMs          int  `yaml:"timeout_ms"`          // Per-formatter deadline
	AnnotateFailures   bool `yaml:"annotate_failures"`   // Prefix failed segments with a comment
	FormatInterstitial bool `yaml:"format_interstitial"` // Also format text between code blocks
}

// ParallelConfig holds executor settings.
type ParallelConfig struct {
	Enabled     bool `yaml:"enabled"`      // Allow concurrent segment processing
	MinSegments int  `yaml:"min_segments"` // Smallest batch processed in parallel
	MaxWorkers  int  `yaml:"max_workers"`  // Pool cap (0 = number of CPUs)
}

// CacheConfig holds result cache settings.
type CacheConfig struct {
	Enabled        bool   `yaml:"enabled"`         // Memoize formatting results
	Persist        bool   `yaml:"persist"`         // Keep results in SQLite across runs
	MaxEntries     int    `yaml:"max_entries"`     // Entry bound for each tier
	TTLHours       int    `yaml:"ttl_hours"`       // Entry lifetime
	IncludeRepairs bool   `yaml:"include_repairs"` // Also cache repaired results
	Dir            string `yaml:"dir"`             // Overrides the default cache directory
}

// PrivacyConfig holds settings for code sent to a backend.
type PrivacyConfig struct {
	SanitizeClassification bool `yaml:"sanitize_classification"` // Mask secrets in classification prompts
	RedactRepairs          bool `yaml:"redact_repairs"`          // Swap secrets for placeholders in repair prompts
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}

// KnowledgeConfig holds knowledge profile settings.
type KnowledgeConfig struct {
	Dir string `yaml:"dir"` // Profile override directory (empty = <config dir>/knowledge)
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		AI: AIConfig{
			Enabled:          true,
			Provider:         "auto",
			ClaudeBinary:     "claude",
			TimeoutMs:        30000,
			MaxOutputTokens:  2048,
			BreakerThreshold: 3,
			BreakerCooldownS: 30,
		},
		Classify: ClassifyConfig{
			DefaultLanguage: string(lang.Python),
			SignalOrder:     []string{"go", "rust", "typescript", "python", "javascript", "bash", "sql"},
			AllowModel:      true,
			TimeoutMs:       15000,
		},
		Formatting: FormattingConfig{
			TimeoutMs:        10000,
			AnnotateFailures: true,
		},
		Parallel: ParallelConfig{
			Enabled:     true,
			MinSegments: 3,
		},
		Cache: CacheConfig{
			Enabled:        true,
			Persist:        true,
			MaxEntries:     1024,
			TTLHours:       24 * 7,
			IncludeRepairs: true,
		},
		Privacy: PrivacyConfig{
			SanitizeClassification: true,
			RedactRepairs:          true,
		},
		Log: LogConfig{
			Level: "warn",
		},
	}
}

// Path returns $CLIPFIX_CONFIG, or the default config file location.
func Path() string {
	if path := os.Getenv("CLIPFIX_CONFIG"); path != "" {
		return path
	}
	return DefaultPaths().ConfigFile()
}

// Load loads the configuration from Path.
func Load() (*Config, error) {
	return LoadFromFile(Path())
}

// LoadFromFile loads the configuration from path. A missing file yields the
// defaults.
func LoadFromFile(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.ApplyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.ApplyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// Save writes the configuration to Path.
func (c *Config) Save() error {
	return c.SaveToFile(Path())
}

// SaveToFile writes the configuration to path.
func (c *Config) SaveToFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	if !isValidProvider(c.AI.Provider) {
		return fmt.Errorf("ai.provider must be auto, anthropic, openai or google (got: %s)", c.AI.Provider)
	}
	if c.AI.TimeoutMs < 0 || c.AI.MaxOutputTokens < 0 || c.AI.BreakerThreshold < 0 || c.AI.BreakerCooldownS < 0 {
		return errors.New("ai timeouts, budgets and breaker settings must be >= 0")
	}

	if _, ok := lang.Parse(c.Classify.DefaultLanguage); !ok {
		return fmt.Errorf("classify.default_language is not a supported language (got: %s)", c.Classify.DefaultLanguage)
	}
	if _, err := c.SignalOrder(); err != nil {
		return err
	}
	if c.Classify.TimeoutMs < 0 {
		return errors.New("classify.timeout_ms must be >= 0")
	}

	if c.Formatting.TimeoutMs < 0 {
		return errors.New("formatting.timeout_ms must be >= 0")
	}
	if c.Parallel.MinSegments < 0 || c.Parallel.MaxWorkers < 0 {
		return errors.New("parallel.min_segments and parallel.max_workers must be >= 0")
	}
	if c.Cache.MaxEntries < 0 || c.Cache.TTLHours < 0 {
		return errors.New("cache.max_entries and cache.ttl_hours must be >= 0")
	}

	if !isValidLogLevel(c.Log.Level) {
		return fmt.Errorf("log.level must be debug, info, warn, or error (got: %s)", c.Log.Level)
	}

	seen := make(map[string]bool, len(c.Formatters))
	for i, f := range c.Formatters {
		if f.ID == "" || strings.TrimSpace(f.Command) == "" {
			return fmt.Errorf("formatters[%d] needs an id and a command", i)
		}
		if seen[f.ID] {
			return fmt.Errorf("formatters[%d]: duplicate id %q", i, f.ID)
		}
		seen[f.ID] = true
	}
	return nil
}

// SignalOrder returns classify.signal_order as languages.
func (c *Config) SignalOrder() ([]lang.Language, error) {
	out := make([]lang.Language, 0, len(c.Classify.SignalOrder))
	for _, name := range c.Classify.SignalOrder {
		l, ok := lang.Parse(name)
		if !ok {
			return nil, fmt.Errorf("classify.signal_order: unsupported language %q", name)
		}
		out = append(out, l)
	}
	return out, nil
}

// AITimeout returns ai.timeout_ms as a duration.
func (c *Config) AITimeout() time.Duration { return ms(c.AI.TimeoutMs) }

// ClassifyTimeout returns classify.timeout_ms as a duration.
func (c *Config) ClassifyTimeout() time.Duration { return ms(c.Classify.TimeoutMs) }

// FormatTimeout returns formatting.timeout_ms as a duration.
func (c *Config) FormatTimeout() time.Duration { return ms(c.Formatting.TimeoutMs) }

// CacheTTL returns cache.ttl_hours as a duration.
func (c *Config) CacheTTL() time.Duration { return time.Duration(c.Cache.TTLHours) * time.Hour }

func ms(v int) time.Duration { return time.Duration(v) * time.Millisecond }

func isValidLogLevel(level string) bool {
	switch level {
	case "debug", "info", "warn", "error":
		return true
	default:
		return false
	}
}

func isValidProvider(provider string) bool {
	switch provider {
	case "auto", "anthropic", "openai", "google":
		return true
	default:
		return false
	}
}

// ApplyEnvOverrides applies environment variable overrides to the config.
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("CLIPFIX_LOG_LEVEL"); v != "" {
		if isValidLogLevel(v) {
			c.Log.Level = v
		}
	}
	if v := os.Getenv("CLIPFIX_AI_PROVIDER"); v != "" {
		if isValidProvider(v) {
			c.AI.Provider = v
		}
	}
	if v := os.Getenv("CLIPFIX_AI_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.AI.Enabled = b
		}
	}
	if v := os.Getenv("CLIPFIX_CACHE_DIR"); v != "" {
		c.Cache.Dir = v
	}
}

// Get returns a configuration value by dot-separated key, e.g. "ai.provider".
func (c *Config) Get(key string) (string, error) {
	parts := strings.Split(key, ".")
	if len(parts) != 2 {
		return "", errors.New("key must be in format 'section.key'")
	}

	section, field := parts[0], parts[1]

	switch section {
	case "ai":
		return c.getAIField(field)
	case "classify":
		return c.getClassifyField(field)
	case "formatting":
		return c.getFormattingField(field)
	case "parallel":
		return c.getParallelField(field)
	case "cache":
		return c.getCacheField(field)
	case "privacy":
		return c.getPrivacyField(field)
	case "log":
		return c.getLogField(field)
	case "knowledge":
		return c.getKnowledgeField(field)
	default:
		return "", fmt.Errorf("unknown section: %s", section)
	}
}

// Set sets a configuration value by dot-separated key.
func (c *Config) Set(key, value string) error {
	parts := strings.Split(key, ".")
	if len(parts) != 2 {
		return errors.New("key must be in format 'section.key'")
	}

	section, field := parts[0], parts[1]

	switch section {
	case "ai":
		return c.setAIField(field, value)
	case "classify":
		return c.setClassifyField(field, value)
	case "formatting":
		return c.setFormattingField(field, value)
	case "parallel":
		return c.setParallelField(field, value)
	case "cache":
		return c.setCacheField(field, value)
	case "privacy":
		return c.setPrivacyField(field, value)
	case "log":
		return c.setLogField(field, value)
	case "knowledge":
		return c.setKnowledgeField(field, value)
	default:
		return fmt.Errorf("unknown section: %s", section)
	}
}

func (c *Config) getAIField(field string) (string, error) {
	switch field {
	case "enabled":
		return strconv.FormatBool(c.AI.Enabled), nil
	case "provider":
		return c.AI.Provider, nil
	case "model":
		return c.AI.Model, nil
	case "claude_binary":
		return c.AI.ClaudeBinary, nil
	case "base_url":
		return c.AI.BaseURL, nil
	case "timeout_ms":
		return strconv.Itoa(c.AI.TimeoutMs), nil
	case "max_output_tokens":
		return strconv.Itoa(c.AI.MaxOutputTokens), nil
	case "breaker_threshold":
		return strconv.Itoa(c.AI.BreakerThreshold), nil
	case "breaker_cooldown_s":
		return strconv.Itoa(c.AI.BreakerCooldownS), nil
	default:
		return "", fmt.Errorf("unknown field: ai.%s", field)
	}
}

func (c *Config) setAIField(field, value string) error {
	var err error
	switch field {
	case "enabled":
		err = setBool(&c.AI.Enabled, field, value)
	case "provider":
		if !isValidProvider(value) {
			return fmt.Errorf("invalid provider: %s (must be auto, anthropic, openai or google)", value)
		}
		c.AI.Provider = value
	case "model":
		c.AI.Model = value
	case "claude_binary":
		c.AI.ClaudeBinary = value
	case "base_url":
		c.AI.BaseURL = value
	case "timeout_ms":
		err = setNonNegative(&c.AI.TimeoutMs, field, value)
	case "max_output_tokens":
		err = setNonNegative(&c.AI.MaxOutputTokens, field, value)
	case "breaker_threshold":
		err = setNonNegative(&c.AI.BreakerThreshold, field, value)
	case "breaker_cooldown_s":
		err = setNonNegative(&c.AI.BreakerCooldownS, field, value)
	default:
		return fmt.Errorf("unknown field: ai.%s", field)
	}
	return err
}

func (c *Config) getClassifyField(field string) (string, error) {
	switch field {
	case "default_language":
		return c.Classify.DefaultLanguage, nil
	case "signal_order":
		return strings.Join(c.Classify.SignalOrder, ","), nil
	case "allow_model":
		return strconv.FormatBool(c.Classify.AllowModel), nil
	case "timeout_ms":
		return strconv.Itoa(c.Classify.TimeoutMs), nil
	default:
		return "", fmt.Errorf("unknown field: classify.%s", field)
	}
}

func (c *Config) setClassifyField(field, value string) error {
	var err error
	switch field {
	case "default_language":
		l, ok := lang.Parse(value)
		if !ok {
			return fmt.Errorf("invalid default_language: %s", value)
		}
		c.Classify.DefaultLanguage = string(l)
	case "signal_order":
		var order []string
		for _, name := range strings.Split(value, ",") {
			l, ok := lang.Parse(name)
			if !ok {
				return fmt.Errorf("invalid signal_order entry: %q", name)
			}
			order = append(order, string(l))
		}
		c.Classify.SignalOrder = order
	case "allow_model":
		err = setBool(&c.Classify.AllowModel, field, value)
	case "timeout_ms":
		err = setNonNegative(&c.Classify.TimeoutMs, field, value)
	default:
		return fmt.Errorf("unknown field: classify.%s", field)
	}
	return err
}

func (c *Config) getFormattingField(field string) (string, error) {
	switch field {
	case "timeout_ms":
		return strconv.Itoa(c.Formatting.TimeoutMs), nil
	case "annotate_failures":
		return strconv.FormatBool(c.Formatting.AnnotateFailures), nil
	case "format_interstitial":
		return strconv.FormatBool(c.Formatting.FormatInterstitial), nil
	default:
		return "", fmt.Errorf("unknown field: formatting.%s", field)
	}
}

func (c *Config) setFormattingField(field, value string) error {
	var err error
	switch field {
	case "timeout_ms":
		err = setNonNegative(&c.Formatting.TimeoutMs, field, value)
	case "annotate_failures":
		err = setBool(&c.Formatting.AnnotateFailures, field, value)
	case "format_interstitial":
		err = setBool(&c.Formatting.FormatInterstitial, field, value)
	default:
		return fmt.Errorf("unknown field: formatting.%s", field)
	}
	return err
}

func (c *Config) getParallelField(field string) (string, error) {
	switch field {
	case "enabled":
		return strconv.FormatBool(c.Parallel.Enabled), nil
	case "min_segments":
		return strconv.Itoa(c.Parallel.MinSegments), nil
	case "max_workers":
		return strconv.Itoa(c.Parallel.MaxWorkers), nil
	default:
		return "", fmt.Errorf("unknown field: parallel.%s", field)
	}
}

func (c *Config) setParallelField(field, value string) error {
	var err error
	switch field {
	case "enabled":
		err = setBool(&c.Parallel.Enabled, field, value)
	case "min_segments":
		err = setNonNegative(&c.Parallel.MinSegments, field, value)
	case "max_workers":
		err = setNonNegative(&c.Parallel.MaxWorkers, field, value)
	default:
		return fmt.Errorf("unknown field: parallel.%s", field)
	}
	return err
}

func (c *Config) getCacheField(field string) (string, error) {
	switch field {
	case "enabled":
		return strconv.FormatBool(c.Cache.Enabled), nil
	case "persist":
		return strconv.FormatBool(c.Cache.Persist), nil
	case "max_entries":
		return strconv.Itoa(c.Cache.MaxEntries), nil
	case "ttl_hours":
		return strconv.Itoa(c.Cache.TTLHours), nil
	case "include_repairs":
		return strconv.FormatBool(c.Cache.IncludeRepairs), nil
	case "dir":
		return c.Cache.Dir, nil
	default:
		return "", fmt.Errorf("unknown field: cache.%s", field)
	}
}

func (c *Config) setCacheField(field, value string) error {
	var err error
	switch field {
	case "enabled":
		err = setBool(&c.Cache.Enabled, field, value)
	case "persist":
		err = setBool(&c.Cache.Persist, field, value)
	case "max_entries":
		err = setNonNegative(&c.Cache.MaxEntries, field, value)
	case "ttl_hours":
		err = setNonNegative(&c.Cache.TTLHours, field, value)
	case "include_repairs":
		err = setBool(&c.Cache.IncludeRepairs, field, value)
	case "dir":
		c.Cache.Dir = value
	default:
		return fmt.Errorf("unknown field: cache.%s", field)
	}
	return err
}

func (c *Config) getPrivacyField(field string) (string, error) {
	switch field {
	case "sanitize_classification":
		return strconv.FormatBool(c.Privacy.SanitizeClassification), nil
	case "redact_repairs":
		return strconv.FormatBool(c.Privacy.RedactRepairs), nil
	default:
		return "", fmt.Errorf("unknown field: privacy.%s", field)
	}
}

func (c *Config) setPrivacyField(field, value string) error {
	var err error
	switch field {
	case "sanitize_classification":
		err = setBool(&c.Privacy.SanitizeClassification, field, value)
	case "redact_repairs":
		err = setBool(&c.Privacy.RedactRepairs, field, value)
	default:
		return fmt.Errorf("unknown field: privacy.%s", field)
	}
	return err
}

func (c *Config) getLogField(field string) (string, error) {
	switch field {
	case "level":
		return c.Log.Level, nil
	default:
		return "", fmt.Errorf("unknown field: log.%s", field)
	}
}

func (c *Config) setLogField(field, value string) error {
	switch field {
	case "level":
		if !isValidLogLevel(value) {
			return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", value)
		}
		c.Log.Level = value
	default:
		return fmt.Errorf("unknown field: log.%s", field)
	}
	return nil
}

func (c *Config) getKnowledgeField(field string) (string, error) {
	switch field {
	case "dir":
		return c.Knowledge.Dir, nil
	default:
		return "", fmt.Errorf("unknown field: knowledge.%s", field)
	}
}

func (c *Config) setKnowledgeField(field, value string) error {
	switch field {
	case "dir":
		c.Knowledge.Dir = value
	default:
		return fmt.Errorf("unknown field: knowledge.%s", field)
	}
	return nil
}

func setBool(dst *bool, field, value string) error {
	v, err := strconv.ParseBool(value)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", field, err)
	}
	*dst = v
	return nil
}

func setNonNegative(dst *int, field, value string) error {
	v, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", field, err)
	}
	if v < 0 {
		return fmt.Errorf("invalid %s: must be non-negative", field)
	}
	*dst = v
	return nil
}

// ListKeys returns every key accepted by Get and Set.
func ListKeys() []string {
	return []string{
		"ai.enabled",
		"ai.provider",
		"ai.model",
		"ai.claude_binary",
		"ai.base_url",
		"ai.timeout_ms",
		"ai.max_output_tokens",
		"ai.breaker_threshold",
		"ai.breaker_cooldown_s",
		"classify.default_language",
		"classify.signal_order",
		"classify.allow_model",
		"classify.timeout_ms",
		"formatting.timeout_ms",
		"formatting.annotate_failures",
		"formatting.format_interstitial",
		"parallel.enabled",
		"parallel.min_segments",
		"parallel.max_workers",
		"cache.enabled",
		"cache.persist",
		"cache.max_entries",
		"cache.ttl_hours",
		"cache.include_repairs",
		"cache.dir",
		"privacy.sanitize_classification",
		"privacy.redact_repairs",
		"log.level",
		"knowledge.dir",
	}
}
