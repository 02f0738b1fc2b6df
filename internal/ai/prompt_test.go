package ai_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garnizeh/qna/internal/ai"
	imodels "github.com/garnizeh/qna/internal/models"
	"github.com/garnizeh/qna/pkg/repository"
)

type fakeTemplateRepo struct {
	tpl *imodels.Template
	err error
}

var _ repository.TemplateRepo = (*fakeTemplateRepo)(nil)

func (f *fakeTemplateRepo) CreateTemplate(ctx context.Context, name, version, text string, schemaVersion, metadata *string) (int64, error) {
	f.tpl = &imodels.Template{ID: 1, Name: name, Version: version, TemplateTxt: text}
	return 1, nil
}

func (f *fakeTemplateRepo) GetTemplate(ctx context.Context, name, version string) (*imodels.Template, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.tpl == nil || f.tpl.Name != name || f.tpl.Version != version {
		return nil, nil
	}
	return f.tpl, nil
}

func (f *fakeTemplateRepo) ListTemplates(ctx context.Context) ([]imodels.Template, error) {
	return nil, nil
}

func (f *fakeTemplateRepo) DeleteTemplate(ctx context.Context, name, version string) error {
	return nil
}

func TestPrompt_StoredTemplateWins(t *testing.T) {
	repo := &fakeTemplateRepo{}
	_, _ = repo.CreateTemplate(context.Background(), ai.DraftTemplateName, "v2", "Q: {{.Title}} by {{.AuthorName}}", nil, nil)

	cfg := drafting()
	cfg.TemplateVersion = "v2"
	out, err := ai.NewDrafter(cfg, nil, repo).Prompt(context.Background(), input())
	require.NoError(t, err)
	assert.Equal(t, "Q: Refund not received by Alice", out)
}

func TestPrompt_BuiltInFallback(t *testing.T) {
	for _, repo := range []repository.TemplateRepo{nil, &fakeTemplateRepo{}, &fakeTemplateRepo{err: errors.New("db down")}} {
		out, err := ai.NewDrafter(drafting(), nil, repo).Prompt(context.Background(), ai.DraftInput{Title: "T", Body: "B"})
		require.NoError(t, err)
		assert.Contains(t, out, "Question title: T")
		assert.Contains(t, out, "Tags: (none)")
		assert.Contains(t, out, "(no recent messages)")
	}
}

func TestPrompt_BrokenStoredTemplate(t *testing.T) {
	repo := &fakeTemplateRepo{}
	_, _ = repo.CreateTemplate(context.Background(), ai.DraftTemplateName, "v1", "{{.Nope", nil, nil)
	d := ai.NewDrafter(drafting(), &fakeCollaborator{text: "x"}, repo)

	_, err := d.Prompt(context.Background(), input())
	assert.Error(t, err)

	got := d.Generate(context.Background(), input())
	assert.Equal(t, ai.SourceFallback, got.Source)
}
