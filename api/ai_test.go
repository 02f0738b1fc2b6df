package api_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"

	"github.com/garnizeh/qna/api"
	"github.com/garnizeh/qna/internal/ai"
	imodels "github.com/garnizeh/qna/internal/models"
	"github.com/garnizeh/qna/pkg/models"
)

func TestAIAdminRoutes(t *testing.T) {
	s := newTestServer(t)
	var q models.Question
	s.do(t, models.RoleUser, "POST", "/v1/questions", map[string]any{"title": "Refund", "body": "Where is my refund?"}, &q)

	if code := s.do(t, models.RoleUser, "GET", "/v1/ai/schemas", nil, nil); code != http.StatusForbidden {
		t.Fatalf("user on admin route: %d", code)
	}
	if code := s.do(t, models.RoleGuest, "GET", "/v1/ai/schemas", nil, nil); code != http.StatusUnauthorized {
		t.Fatalf("guest on admin route: %d", code)
	}

	var schemas []imodels.Schema
	if code := s.do(t, models.RoleAdmin, "GET", "/v1/ai/schemas", nil, &schemas); code != http.StatusOK {
		t.Fatalf("list schemas: %d", code)
	}
	found := false
	for _, sc := range schemas {
		found = found || sc.Version == "message_snapshot.v1"
	}
	if !found {
		t.Fatalf("seeded snapshot schema missing: %+v", schemas)
	}

	if code := s.do(t, models.RoleAdmin, "PUT", "/v1/ai/schemas", map[string]any{"version": "x.v1", "schema_json": "not an object"}, nil); code != http.StatusBadRequest {
		t.Fatalf("invalid schema: %d", code)
	}
	if code := s.do(t, models.RoleAdmin, "PUT", "/v1/ai/schemas", map[string]any{"version": "x.v1", "schema_json": map[string]any{"type": "object"}}, nil); code != http.StatusNoContent {
		t.Fatalf("store schema: %d", code)
	}
	var reloaded struct {
		Versions []string `json:"versions"`
	}
	s.do(t, models.RoleAdmin, "POST", "/v1/ai/reload", nil, &reloaded)
	if !strings.Contains(strings.Join(reloaded.Versions, ","), "x.v1") {
		t.Fatalf("reload versions: %v", reloaded.Versions)
	}
	if code := s.do(t, models.RoleAdmin, "DELETE", "/v1/ai/schemas/x.v1", nil, nil); code != http.StatusNoContent {
		t.Fatalf("delete schema: %d", code)
	}
	if code := s.do(t, models.RoleAdmin, "GET", "/v1/ai/schemas/x.v1", nil, nil); code != http.StatusNotFound {
		t.Fatalf("deleted schema: %d", code)
	}

	if code := s.do(t, models.RoleAdmin, "PUT", "/v1/ai/templates", map[string]any{"name": "draft", "version": "v9", "template_text": "{{ .Title "}, nil); code != http.StatusBadRequest {
		t.Fatalf("unparsable template: %d", code)
	}
	if code := s.do(t, models.RoleAdmin, "PUT", "/v1/ai/templates", map[string]any{"name": "draft", "version": "v9", "template_text": "Q: {{ upper .Title }}"}, nil); code != http.StatusNoContent {
		t.Fatalf("store template: %d", code)
	}
	var tpl imodels.Template
	if code := s.do(t, models.RoleAdmin, "GET", "/v1/ai/templates/draft/v9", nil, &tpl); code != http.StatusOK || tpl.TemplateTxt != "Q: {{ upper .Title }}" {
		t.Fatalf("get template: %d %+v", code, tpl)
	}

	var draft ai.Draft
	if code := s.do(t, models.RoleAdmin, "POST", "/v1/ai/drafts/"+q.ID+"/preview", nil, &draft); code != http.StatusOK {
		t.Fatalf("preview: %d", code)
	}
	if draft.Source != ai.SourceFallback || !strings.Contains(draft.Text, ai.FallbackDisclaimer) {
		t.Fatalf("unexpected preview %+v", draft)
	}
	if code := s.do(t, models.RoleAdmin, "POST", "/v1/ai/drafts/nope/preview", nil, nil); code != http.StatusNotFound {
		t.Fatalf("preview missing: %d", code)
	}
}

type failingReloader struct{}

func (failingReloader) Reload(ctx context.Context) error { return errors.New("bad schema row") }
func (failingReloader) Versions() []string               { return nil }

func TestReloadHandlerFailure(t *testing.T) {
	h := api.NewAIHandler(failingReloader{}, nil, nil, nil)
	w := httptest.NewRecorder()
	h.ReloadHandler(w, httptest.NewRequest("POST", "/v1/ai/reload", nil))
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d body=%s", w.Code, w.Body.String())
	}
	if strings.Contains(w.Body.String(), "bad schema row") {
		t.Fatalf("internal error leaked: %s", w.Body.String())
	}
}

type stubPreviewer struct{ draft ai.Draft }

func (s stubPreviewer) Preview(ctx context.Context, qid string) (ai.Draft, error) {
	if qid != "q1" {
		return ai.Draft{}, models.ErrNotFound
	}
	return s.draft, nil
}

func TestPreviewDraftHandler(t *testing.T) {
	h := api.NewAIHandler(nil, nil, nil, stubPreviewer{draft: ai.Draft{Text: "hello", Source: ai.SourceModel}})

	req := mux.SetURLVars(httptest.NewRequest("POST", "/v1/ai/drafts/q1/preview", nil), map[string]string{"id": "q1"})
	w := httptest.NewRecorder()
	h.PreviewDraftHandler(w, req)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"text":"hello"`) {
		t.Fatalf("unexpected response %d %s", w.Code, w.Body.String())
	}

	req = mux.SetURLVars(httptest.NewRequest("POST", "/v1/ai/drafts/q2/preview", nil), map[string]string{"id": "q2"})
	w = httptest.NewRecorder()
	h.PreviewDraftHandler(w, req)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}
