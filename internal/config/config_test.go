package config_test

import (
	"os"
	"testing"
	"time"

	"github.com/garnizeh/qna/internal/config"
)

func validConfig() *config.Config {
	return &config.Config{
		Addr:          ":8080",
		JWTSecret:     "strongsecret",
		APITimeout:    5 * time.Second,
		DatabasePath:  "qna.db",
		TokenDuration: 1 * time.Hour,
	}
}

func TestValidate_InsecureJWT_FailsWhenNotDevelopment(t *testing.T) {
	t.Setenv("QNA_ENV", "production")

	cfg := validConfig()
	cfg.JWTSecret = "supersecretkey"

	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected Validate to fail for insecure JWT in non-development env")
	}
}

func TestValidate_InsecureJWT_AllowsDevelopment(t *testing.T) {
	t.Setenv("QNA_ENV", "development")

	cfg := validConfig()
	cfg.JWTSecret = "supersecretkey"

	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected Validate to succeed in development env, got: %v", err)
	}
}

func TestValidate_UnknownProvider(t *testing.T) {
	cfg := validConfig()
	cfg.Drafting.Provider = "gemini"

	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected Validate to fail for an unknown drafting provider")
	}
}

func TestValidate_OpenAIRequiresKey(t *testing.T) {
	cfg := validConfig()
	cfg.Drafting.Provider = "openai"

	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected Validate to fail without openai.api_key")
	}

	cfg.Drafting.Disabled = true
	if err := cfg.Validate(); err != nil {
		t.Fatalf("disabled drafting should not need a key: %v", err)
	}
}

func TestValidate_DefaultsPopulated(t *testing.T) {
	cfg := validConfig()
	cfg.Drafting.Provider = "ollama"
	cfg.Drafting.HistoryLimit = 500

	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate failed unexpectedly: %v", err)
	}

	if cfg.Ollama.BaseURL == "" {
		t.Fatalf("expected Ollama.BaseURL to be populated, got empty")
	}
	if cfg.Ollama.Timeout <= 0 {
		t.Fatalf("expected Ollama.Timeout to be > 0")
	}
	if cfg.Drafting.Model != "llama3" {
		t.Fatalf("unexpected default model %q", cfg.Drafting.Model)
	}
	if cfg.Drafting.HistoryLimit != 20 {
		t.Fatalf("history limit must be capped at 20, got %d", cfg.Drafting.HistoryLimit)
	}
	if cfg.Drafting.SystemInstruction != config.DefaultSystemInstruction {
		t.Fatalf("expected default system instruction")
	}
	if cfg.Workers <= 0 {
		t.Fatalf("expected workers default")
	}
	if cfg.Redis.ChannelPrefix == "" {
		t.Fatalf("expected redis channel prefix default")
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("QNA_ADDR", "")
	t.Setenv("QNA_JWT_SECRET", "")
	t.Setenv("QNA_DATABASE_PATH", "")
	t.Setenv("GENKIT_DISABLE", "")
	t.Setenv("QNA_DRAFT_DISABLE", "")

	cfg, err := config.LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig returned error for empty path: %v", err)
	}

	if cfg.Addr != ":8080" {
		t.Fatalf("unexpected Addr: got %q want %q", cfg.Addr, ":8080")
	}
	if cfg.JWTSecret != "supersecretkey" {
		t.Fatalf("unexpected JWTSecret: got %q want %q", cfg.JWTSecret, "supersecretkey")
	}
	if cfg.DatabasePath != "qna.db" {
		t.Fatalf("unexpected DatabasePath: got %q want %q", cfg.DatabasePath, "qna.db")
	}
	if cfg.APITimeout != 15*time.Second {
		t.Fatalf("unexpected APITimeout: got %v want %v", cfg.APITimeout, 15*time.Second)
	}
	if cfg.Drafting.Disabled {
		t.Fatalf("drafting should be enabled by default")
	}
	if cfg.Ollama.Retries != 2 {
		t.Fatalf("unexpected Ollama.Retries: got %d want 2", cfg.Ollama.Retries)
	}
}

func TestLoadConfig_ZeroRetriesKept(t *testing.T) {
	t.Setenv("QNA_JWT_SECRET", "strongsecret")

	f, err := os.CreateTemp(t.TempDir(), "config-*.yaml")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	f.Close()

	if err := os.WriteFile(f.Name(), []byte("ollama:\n  retries: 0\n"), 0o600); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}

	cfg, err := config.LoadConfig(f.Name())
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if cfg.Ollama.Retries != 0 {
		t.Fatalf("explicit zero retries overwritten: got %d", cfg.Ollama.Retries)
	}
}

func TestLoadConfig_KillSwitch(t *testing.T) {
	t.Setenv("GENKIT_DISABLE", "true")

	cfg, err := config.LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if !cfg.Drafting.Disabled {
		t.Fatalf("GENKIT_DISABLE=true must disable drafting")
	}
}

func TestLoadConfig_FromFile(t *testing.T) {
	t.Setenv("GENKIT_DISABLE", "")
	t.Setenv("QNA_DRAFT_DISABLE", "")

	f, err := os.CreateTemp(t.TempDir(), "config-*.yaml")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	f.Close()

	content := []byte("addr: \":9090\"\njwt_secret: \"filekey\"\ntimeout: \"30s\"\ndatabase_path: \"test.db\"\ntoken_duration: \"2h\"\n" +
		"drafting:\n  provider: ollama\n  model: qwen\n  timeout: 5s\n")
	if err := os.WriteFile(f.Name(), content, 0o600); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}

	cfg, err := config.LoadConfig(f.Name())
	if err != nil {
		t.Fatalf("LoadConfig returned error for file: %v", err)
	}

	if cfg.Addr != ":9090" {
		t.Fatalf("unexpected Addr: got %q want %q", cfg.Addr, ":9090")
	}
	if cfg.JWTSecret != "filekey" {
		t.Fatalf("unexpected JWTSecret: got %q want %q", cfg.JWTSecret, "filekey")
	}
	if cfg.APITimeout != 30*time.Second {
		t.Fatalf("unexpected APITimeout: got %v want %v", cfg.APITimeout, 30*time.Second)
	}
	if cfg.TokenDuration != 2*time.Hour {
		t.Fatalf("unexpected TokenDuration: got %v want %v", cfg.TokenDuration, 2*time.Hour)
	}
	if cfg.Drafting.Provider != "ollama" || cfg.Drafting.Model != "qwen" || cfg.Drafting.Timeout != 5*time.Second {
		t.Fatalf("unexpected drafting section: %+v", cfg.Drafting)
	}
}

func TestLoadConfig_BadPath(t *testing.T) {
	if _, err := config.LoadConfig("/path/that/does/not/exist.yaml"); err == nil {
		t.Fatalf("expected error for nonexistent path, got nil")
	}
}

func TestLoadConfig_BadYAML(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "bad-*.yaml")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	f.Close()

	if err := os.WriteFile(f.Name(), []byte("::: not yaml :::"), 0o600); err != nil {
		t.Fatalf("failed to write bad yaml: %v", err)
	}

	if _, err := config.LoadConfig(f.Name()); err == nil {
		t.Fatalf("expected YAML decode error, got nil")
	}
}
