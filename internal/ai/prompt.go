package ai

import (
	"context"
	"fmt"
	"io/fs"

	dbfs "github.com/garnizeh/qna/db"
	"github.com/garnizeh/qna/pkg/ollama"
)

// DraftTemplateName is the ai_templates name of the drafting prompt.
const DraftTemplateName = "draft"

const builtinDraftTemplate = "seed/template_draft_v1.txt"

// Prompt renders the drafting prompt for in. The stored template of the
// configured version wins over the built-in one.
func (d *Drafter) Prompt(ctx context.Context, in DraftInput) (string, error) {
	tmpl, err := d.template(ctx)
	if err != nil {
		return "", err
	}
	if in.Tags == nil {
		in.Tags = []string{}
	}
	return ollama.RenderTemplate(tmpl, in)
}

func (d *Drafter) template(ctx context.Context) (string, error) {
	if d.templates != nil {
		t, err := d.templates.GetTemplate(ctx, DraftTemplateName, d.cfg.TemplateVersion)
		if err != nil {
			logger.Warn("ai: load draft template failed, using built-in", "version", d.cfg.TemplateVersion, "err", err)
		} else if t != nil && t.TemplateTxt != "" {
			return t.TemplateTxt, nil
		}
	}

	b, err := fs.ReadFile(dbfs.SeedFiles, builtinDraftTemplate)
	if err != nil {
		return "", fmt.Errorf("read built-in draft template: %w", err)
	}
	return string(b), nil
}
