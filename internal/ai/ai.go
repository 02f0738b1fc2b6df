// Package ai drafts answers for incoming questions. A draft always comes
// back: when the collaborator is disabled, throttled, slow or returns
// nothing usable, a deterministic templated draft is produced instead.
package ai

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/garnizeh/qna/internal/config"
	"github.com/garnizeh/qna/pkg/repository"
)

// ErrDraftUnavailable is returned by collaborators that produced no usable text.
var ErrDraftUnavailable = errors.New("draft collaborator unavailable")

// package-level logger; can be replaced by callers
var logger = slog.New(slog.NewJSONHandler(os.Stdout, nil))

// SetLogger sets the logger used by internal/ai. Passing nil is a no-op.
func SetLogger(l *slog.Logger) {
	if l != nil {
		logger = l
	}
}

// Prompt is what a collaborator receives.
type Prompt struct {
	System string
	Text   string
}

// Collaborator is an external text generator.
type Collaborator interface {
	Generate(ctx context.Context, p Prompt) (string, error)
	Name() string
}

// HealthChecker is implemented by collaborators that can report whether
// their backend answers.
type HealthChecker interface {
	Health(ctx context.Context) error
}

type HistoryEntry struct {
	Role    string
	Kind    string
	Content string
}

// DraftInput is the question and its conversation so far, oldest first.
type DraftInput struct {
	Title      string
	Body       string
	Tags       []string
	AuthorName string
	History    []HistoryEntry
}

// Source tells where a draft came from.
type Source string

const (
	SourceModel    Source = "model"
	SourceFallback Source = "fallback"
)

type Draft struct {
	Text   string `json:"text"`
	Source Source `json:"source"`
	// Reason explains a fallback.
	Reason string `json:"reason,omitempty"`
}

type Drafter struct {
	collab    Collaborator
	cfg       config.DraftingConfig
	limiter   *rate.Limiter
	templates repository.TemplateRepo
}

// NewDrafter builds a drafter. collab may be nil, in which case every draft
// is the fallback; templates may be nil to always use the built-in prompt.
func NewDrafter(cfg config.DraftingConfig, collab Collaborator, templates repository.TemplateRepo) *Drafter {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.RatePerSecond <= 0 {
		cfg.RatePerSecond = 1
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 5
	}
	if cfg.TemplateVersion == "" {
		cfg.TemplateVersion = "v1"
	}
	if strings.TrimSpace(cfg.SystemInstruction) == "" {
		cfg.SystemInstruction = config.DefaultSystemInstruction
	}
	return &Drafter{
		collab:    collab,
		cfg:       cfg,
		limiter:   rate.NewLimiter(rate.Limit(cfg.RatePerSecond), cfg.Burst),
		templates: templates,
	}
}

// Enabled reports whether drafts may call the collaborator.
func (d *Drafter) Enabled() bool {
	return d.collab != nil && !d.cfg.Disabled
}

// Generate never fails: any collaborator problem yields the fallback draft.
// Over-limit calls fall back instead of waiting for a token.
func (d *Drafter) Generate(ctx context.Context, in DraftInput) Draft {
	switch {
	case d.cfg.Disabled:
		return fallback(in, "disabled")
	case d.collab == nil:
		return fallback(in, "no collaborator")
	case !d.limiter.Allow():
		logger.Warn("ai: draft rate limit reached, using fallback")
		return fallback(in, "rate limited")
	}

	text, err := d.Prompt(ctx, in)
	if err != nil {
		logger.Error("ai: render draft prompt failed", slog.Any("err", err))
		return fallback(in, "prompt")
	}

	ctx, cancel := context.WithTimeout(ctx, d.cfg.Timeout)
	defer cancel()

	start := time.Now()
	out, err := d.collab.Generate(ctx, Prompt{System: d.cfg.SystemInstruction, Text: text})
	if err != nil {
		logger.Error("ai: draft generation failed, using fallback",
			slog.String("collaborator", d.collab.Name()), slog.Duration("elapsed", time.Since(start)), slog.Any("err", err))
		return fallback(in, err.Error())
	}
	out = strings.TrimSpace(out)
	if out == "" {
		logger.Warn("ai: empty draft, using fallback", slog.String("collaborator", d.collab.Name()))
		return fallback(in, ErrDraftUnavailable.Error())
	}

	logger.Info("ai: draft generated",
		slog.String("collaborator", d.collab.Name()), slog.Int("length", len(out)), slog.Duration("elapsed", time.Since(start)))
	return Draft{Text: out, Source: SourceModel}
}

func fallback(in DraftInput, reason string) Draft {
	return Draft{Text: FallbackDraft(in), Source: SourceFallback, Reason: reason}
}
