// Package config loads and validates FeliChat's configuration.  Settings are
// layered: built-in defaults, then an optional YAML file, then FELICHAT_*
// environment variables.  API keys are never read from the file; they come
// exclusively from the environment so config files stay safe to commit.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/felichat/felichat/common/environment"
)

// Config is the full configuration tree.
type Config struct {
	Debug bool `yaml:"debug"`

	HTTP    HTTPConfig    `yaml:"http"`
	Retry   RetrySettings `yaml:"retry"`
	NLP     NLPConfig     `yaml:"nlp"`
	Image   ImageConfig   `yaml:"image"`
	Persona PersonaConfig `yaml:"persona"`
	Session SessionConfig `yaml:"session"`
	Store   StoreConfig   `yaml:"store"`
}

// HTTPConfig configures the chat HTTP surface.
type HTTPConfig struct {
	// Addr is the listen address, e.g. ":8080".
	Addr string `yaml:"addr"`
	// HealthAddr is the separate health/status listen address.
	HealthAddr string `yaml:"health_addr"`
}

// RetrySettings configures the resilient call executor shared by all
// outbound API clients.
type RetrySettings struct {
	Timeout     time.Duration `yaml:"timeout"`
	MaxAttempts int           `yaml:"max_attempts"`
	Cooldown    time.Duration `yaml:"cooldown"`
	Backoff     float64       `yaml:"backoff"`
	MaxDelay    time.Duration `yaml:"max_delay"`
}

// NLPConfig configures the chat-completion client and the token budget.
type NLPConfig struct {
	// APIKey is populated only from FELICHAT_NLP_API_KEY.
	APIKey string `yaml:"-"`

	BaseURL          string   `yaml:"base_url"`
	Model            string   `yaml:"model"`
	MaxTokens        int      `yaml:"max_tokens"`
	ReplyMaxTokens   int      `yaml:"reply_max_tokens"`
	Temperature      float64  `yaml:"temperature"`
	FrequencyPenalty float64  `yaml:"frequency_penalty"`
	PresencePenalty  float64  `yaml:"presence_penalty"`
	Stop             []string `yaml:"stop"`
}

// ImageConfig configures the text-to-image client.
type ImageConfig struct {
	// APIKey is populated only from FELICHAT_IMAGE_API_KEY.
	APIKey string `yaml:"-"`

	// Enabled turns image generation off entirely when false.
	Enabled bool   `yaml:"enabled"`
	BaseURL string `yaml:"base_url"`
	Engine  string `yaml:"engine"`
	Steps   int    `yaml:"steps"`
	Samples int    `yaml:"samples"`
}

// PersonaConfig holds the persona prompt and the prompt fragments used by
// memory compaction and reply parsing.
type PersonaConfig struct {
	InitialPrompt     string `yaml:"initial_prompt"`
	PreSummaryPrompt  string `yaml:"pre_summary_prompt"`
	PreSummaryNote    string `yaml:"pre_summary_note"`
	PostSummaryNote   string `yaml:"post_summary_note"`
	ReplyPrefix       string `yaml:"reply_prefix"`
	DescriptionMarker string `yaml:"description_marker"`
	FallbackImageText string `yaml:"fallback_image_prompt"`
}

// SessionConfig configures session lifecycle.
type SessionConfig struct {
	Cooldown    time.Duration `yaml:"cooldown"`
	MaxSessions int           `yaml:"max_sessions"`
}

// StoreConfig configures the usage ledger database.
type StoreConfig struct {
	// DatabasePath is the SQLite file path; empty disables the ledger.
	DatabasePath string `yaml:"database_path"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		HTTP: HTTPConfig{
			Addr:       ":8080",
			HealthAddr: ":8081",
		},
		Retry: RetrySettings{
			Timeout:     60 * time.Second,
			MaxAttempts: 3,
			Cooldown:    2 * time.Second,
			Backoff:     1.5,
			MaxDelay:    60 * time.Second,
		},
		NLP: NLPConfig{
			BaseURL:          "https://api.openai.com/v1",
			Model:            "gpt-3.5-turbo",
			MaxTokens:        4000,
			ReplyMaxTokens:   1000,
			Temperature:      0.8,
			FrequencyPenalty: 1,
			PresencePenalty:  1,
			Stop:             []string{"Human:", "AI:"},
		},
		Image: ImageConfig{
			Enabled: true,
			BaseURL: "https://api.stability.ai",
			Engine:  "stable-diffusion-xl-1024-v1-0",
			Steps:   30,
			Samples: 1,
		},
		Persona: PersonaConfig{
			InitialPrompt: "The following is a conversation with Kitty, an AI cat. " +
				"Kitty answers playfully, from a cat's perspective, and starts every " +
				"reply with \"Meow: \". After each reply, on a new line starting with " +
				"\"Description: \", Kitty describes a photorealistic scene matching " +
				"the reply.",
			PreSummaryPrompt: "Summarise the conversation above, keeping the " +
				"important facts and the overall tone.",
			PreSummaryNote:    "Here is a summary of the conversation so far:",
			PostSummaryNote:   "The summary ends here. The conversation continues below.",
			ReplyPrefix:       "Meow: ",
			DescriptionMarker: "Description:",
			FallbackImageText: "Photorealistic image of a cat.",
		},
		Session: SessionConfig{
			Cooldown:    30 * time.Minute,
			MaxSessions: 1000,
		},
		Store: StoreConfig{
			DatabasePath: "felichat.db",
		},
	}
}

// Load builds the configuration from defaults, the optional YAML file at
// path (skipped when path is empty), and environment overrides, then
// validates the result.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// applyEnv layers FELICHAT_* environment variables over the current values.
func (c *Config) applyEnv() {
	c.Debug = environment.BoolOr("FELICHAT_DEBUG", c.Debug)

	c.HTTP.Addr = environment.StringOr("FELICHAT_HTTP_ADDR", c.HTTP.Addr)
	c.HTTP.HealthAddr = environment.StringOr("FELICHAT_HEALTH_ADDR", c.HTTP.HealthAddr)

	c.Retry.Timeout = environment.DurationOr("FELICHAT_RETRY_TIMEOUT", c.Retry.Timeout)
	c.Retry.MaxAttempts = environment.IntOr("FELICHAT_RETRY_MAX_ATTEMPTS", c.Retry.MaxAttempts)
	c.Retry.Cooldown = environment.DurationOr("FELICHAT_RETRY_COOLDOWN", c.Retry.Cooldown)
	c.Retry.Backoff = environment.FloatOr("FELICHAT_RETRY_BACKOFF", c.Retry.Backoff)
	c.Retry.MaxDelay = environment.DurationOr("FELICHAT_RETRY_MAX_DELAY", c.Retry.MaxDelay)

	c.NLP.APIKey = environment.StringOr("FELICHAT_NLP_API_KEY", "")
	c.NLP.BaseURL = environment.StringOr("FELICHAT_NLP_BASE_URL", c.NLP.BaseURL)
	c.NLP.Model = environment.StringOr("FELICHAT_NLP_MODEL", c.NLP.Model)
	c.NLP.MaxTokens = environment.IntOr("FELICHAT_NLP_MAX_TOKENS", c.NLP.MaxTokens)
	c.NLP.ReplyMaxTokens = environment.IntOr("FELICHAT_NLP_REPLY_MAX_TOKENS", c.NLP.ReplyMaxTokens)

	c.Image.APIKey = environment.StringOr("FELICHAT_IMAGE_API_KEY", "")
	c.Image.Enabled = environment.BoolOr("FELICHAT_IMAGE_ENABLED", c.Image.Enabled)
	c.Image.BaseURL = environment.StringOr("FELICHAT_IMAGE_BASE_URL", c.Image.BaseURL)
	c.Image.Engine = environment.StringOr("FELICHAT_IMAGE_ENGINE", c.Image.Engine)

	c.Session.Cooldown = environment.DurationOr("FELICHAT_SESSION_COOLDOWN", c.Session.Cooldown)
	c.Session.MaxSessions = environment.IntOr("FELICHAT_SESSION_MAX", c.Session.MaxSessions)

	c.Store.DatabasePath = environment.StringOr("FELICHAT_DB_PATH", c.Store.DatabasePath)
}

// Validate checks the configuration for structural correctness.  It returns
// the first validation error encountered, or nil if the config is valid.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.HTTP.Addr) == "" {
		return fmt.Errorf("config: http.addr must not be empty")
	}

	if c.Retry.Timeout <= 0 {
		return fmt.Errorf("config: retry.timeout must be positive")
	}
	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("config: retry.max_attempts must be >= 1")
	}
	if c.Retry.Cooldown < 0 {
		return fmt.Errorf("config: retry.cooldown must be >= 0")
	}
	if c.Retry.Backoff < 1 {
		return fmt.Errorf("config: retry.backoff must be >= 1")
	}
	if c.Retry.MaxDelay < c.Retry.Cooldown {
		return fmt.Errorf("config: retry.max_delay must be >= retry.cooldown")
	}

	if strings.TrimSpace(c.NLP.Model) == "" {
		return fmt.Errorf("config: nlp.model must not be empty")
	}
	if c.NLP.MaxTokens <= 0 {
		return fmt.Errorf("config: nlp.max_tokens must be positive")
	}
	if c.NLP.ReplyMaxTokens <= 0 {
		return fmt.Errorf("config: nlp.reply_max_tokens must be positive")
	}
	if c.NLP.ReplyMaxTokens >= c.NLP.MaxTokens {
		return fmt.Errorf("config: nlp.reply_max_tokens (%d) must be smaller than nlp.max_tokens (%d)",
			c.NLP.ReplyMaxTokens, c.NLP.MaxTokens)
	}
	if c.NLP.Temperature < 0 || c.NLP.Temperature > 2.0 {
		return fmt.Errorf("config: nlp.temperature %.2f is outside valid range [0.0, 2.0]", c.NLP.Temperature)
	}

	if c.Image.Enabled {
		if strings.TrimSpace(c.Image.Engine) == "" {
			return fmt.Errorf("config: image.engine must not be empty")
		}
		if c.Image.Steps <= 0 {
			return fmt.Errorf("config: image.steps must be positive")
		}
	}

	if strings.TrimSpace(c.Persona.InitialPrompt) == "" {
		return fmt.Errorf("config: persona.initial_prompt must not be empty")
	}
	if strings.TrimSpace(c.Persona.PreSummaryPrompt) == "" {
		return fmt.Errorf("config: persona.pre_summary_prompt must not be empty")
	}

	if c.Session.Cooldown <= 0 {
		return fmt.Errorf("config: session.cooldown must be positive")
	}
	if c.Session.MaxSessions < 1 {
		return fmt.Errorf("config: session.max_sessions must be >= 1")
	}

	return nil
}
