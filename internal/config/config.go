package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const insecureJWTSecret = "supersecretkey"

type Config struct {
	Addr           string         `yaml:"addr"`
	JWTSecret      string         `yaml:"jwt_secret"`
	APITimeout     time.Duration  `yaml:"timeout"`
	DatabasePath   string         `yaml:"database_path"`
	TokenDuration  time.Duration  `yaml:"token_duration"`
	MigrateOnStart bool           `yaml:"migrate_on_start"`
	Workers        int            `yaml:"workers"`
	Log            LogConfig      `yaml:"log"`
	Redis          RedisConfig    `yaml:"redis"`
	Ollama         OllamaConfig   `yaml:"ollama"`
	OpenAI         OpenAIConfig   `yaml:"openai"`
	Drafting       DraftingConfig `yaml:"drafting"`
}

type LogConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// RedisConfig enables cross-process change notification when URL is set.
type RedisConfig struct {
	URL           string `yaml:"url"`
	ChannelPrefix string `yaml:"channel_prefix"`
}

type OllamaConfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
	// Retries defaults to 2 when loaded; an explicit 0 disables retrying.
	Retries                 int           `yaml:"retries"`
	Backoff                 time.Duration `yaml:"backoff"`
	CircuitFailureThreshold int           `yaml:"circuit_failure_threshold"`
	CircuitReset            time.Duration `yaml:"circuit_reset"`
}

type OpenAIConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
}

// DraftingConfig configures the AI draft generator. Provider is one of
// "ollama", "openai" or empty, in which case every draft uses the fallback.
type DraftingConfig struct {
	Provider          string        `yaml:"provider"`
	Model             string        `yaml:"model"`
	Disabled          bool          `yaml:"disabled"`
	Timeout           time.Duration `yaml:"timeout"`
	HistoryLimit      int           `yaml:"history_limit"`
	SystemInstruction string        `yaml:"system_instruction"`
	Temperature       float64       `yaml:"temperature"`
	TopP              float64       `yaml:"top_p"`
	TemplateVersion   string        `yaml:"template_version"`
	RatePerSecond     float64       `yaml:"rate_per_second"`
	Burst             int           `yaml:"burst"`
}

func LoadConfig(path string) (*Config, error) {
	// a missing .env is the normal case outside local development
	_ = godotenv.Load()

	apiTimeout := 15 * time.Second
	tokenDuration := 1 * time.Hour

	cfg := &Config{
		Addr:           getEnv("QNA_ADDR", ":8080"),
		JWTSecret:      getEnv("QNA_JWT_SECRET", insecureJWTSecret),
		APITimeout:     apiTimeout,
		DatabasePath:   getEnv("QNA_DATABASE_PATH", "qna.db"),
		TokenDuration:  tokenDuration,
		MigrateOnStart: getEnvBool("QNA_MIGRATE_ON_START"),
		Log: LogConfig{
			Level: getEnv("QNA_LOG_LEVEL", "info"),
			File:  os.Getenv("QNA_LOG_FILE"),
		},
		Redis: RedisConfig{
			URL: os.Getenv("QNA_REDIS_URL"),
		},
		Ollama: OllamaConfig{
			BaseURL: getEnv("QNA_OLLAMA_URL", "http://localhost:11434"),
			Retries: 2,
		},
		OpenAI: OpenAIConfig{
			APIKey:  os.Getenv("OPENAI_API_KEY"),
			BaseURL: os.Getenv("OPENAI_BASE_URL"),
		},
		Drafting: DraftingConfig{
			Provider: os.Getenv("QNA_DRAFT_PROVIDER"),
			Model:    os.Getenv("QNA_DRAFT_MODEL"),
		},
	}
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()

		dec := yaml.NewDecoder(f)
		if err := dec.Decode(cfg); err != nil {
			return nil, err
		}
	}

	// the kill switches win over any file setting
	if getEnvBool("GENKIT_DISABLE") || getEnvBool("QNA_DRAFT_DISABLE") {
		cfg.Drafting.Disabled = true
	}

	return cfg, nil
}

// Validate fills defaults and rejects unsafe settings.
func (c *Config) Validate() error {
	if c.Addr == "" {
		return errors.New("addr is required")
	}
	if c.DatabasePath == "" {
		return errors.New("database_path is required")
	}
	if c.JWTSecret == "" {
		return errors.New("jwt_secret is required")
	}
	if c.JWTSecret == insecureJWTSecret && os.Getenv("QNA_ENV") != "development" {
		return errors.New("jwt_secret uses the built-in default; set QNA_JWT_SECRET or QNA_ENV=development")
	}
	if c.APITimeout <= 0 {
		c.APITimeout = 15 * time.Second
	}
	if c.TokenDuration <= 0 {
		c.TokenDuration = time.Hour
	}
	if c.Workers <= 0 {
		c.Workers = 2
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Redis.ChannelPrefix == "" {
		c.Redis.ChannelPrefix = "qna:questions:"
	}

	if c.Ollama.BaseURL == "" {
		c.Ollama.BaseURL = "http://localhost:11434"
	}
	if c.Ollama.Timeout <= 0 {
		c.Ollama.Timeout = 30 * time.Second
	}
	if c.Ollama.Retries < 0 {
		c.Ollama.Retries = 0
	}
	if c.Ollama.Backoff <= 0 {
		c.Ollama.Backoff = 500 * time.Millisecond
	}
	if c.Ollama.CircuitFailureThreshold <= 0 {
		c.Ollama.CircuitFailureThreshold = 5
	}
	if c.Ollama.CircuitReset <= 0 {
		c.Ollama.CircuitReset = 30 * time.Second
	}

	d := &c.Drafting
	switch d.Provider {
	case "", "ollama", "openai":
	default:
		return fmt.Errorf("drafting.provider %q is not supported", d.Provider)
	}
	if d.Provider == "openai" && c.OpenAI.APIKey == "" && !d.Disabled {
		return errors.New("openai.api_key is required for the openai drafting provider")
	}
	if d.Provider != "" && d.Model == "" {
		switch d.Provider {
		case "ollama":
			d.Model = "llama3"
		case "openai":
			d.Model = "gpt-4o-mini"
		}
	}
	if d.Timeout <= 0 {
		d.Timeout = 60 * time.Second
	}
	if d.HistoryLimit <= 0 || d.HistoryLimit > 20 {
		d.HistoryLimit = 20
	}
	if strings.TrimSpace(d.SystemInstruction) == "" {
		d.SystemInstruction = DefaultSystemInstruction
	}
	if d.Temperature == 0 {
		d.Temperature = 0.2
	}
	if d.TopP == 0 {
		d.TopP = 0.95
	}
	if d.TemplateVersion == "" {
		d.TemplateVersion = "v1"
	}
	if d.RatePerSecond <= 0 {
		d.RatePerSecond = 1
	}
	if d.Burst <= 0 {
		d.Burst = 5
	}

	return nil
}

// DefaultSystemInstruction is sent with every drafting request.
const DefaultSystemInstruction = "Answer like a customer support agent: clear, friendly and precise."

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}

	return def
}

func getEnvBool(key string) bool {
	b, err := strconv.ParseBool(os.Getenv(key))
	return err == nil && b
}
