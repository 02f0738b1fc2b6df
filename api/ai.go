package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"text/template"

	"github.com/gorilla/mux"
	"github.com/qri-io/jsonschema"

	"github.com/garnizeh/qna/internal/ai"
	"github.com/garnizeh/qna/pkg/models"
	"github.com/garnizeh/qna/pkg/ollama"
	"github.com/garnizeh/qna/pkg/repository"
)

// SchemaReloader refreshes the compiled schema cache after a change.
type SchemaReloader interface {
	Reload(ctx context.Context) error
	Versions() []string
}

// DraftPreviewer renders the draft a question would get, without storing it.
type DraftPreviewer interface {
	Preview(ctx context.Context, qid string) (ai.Draft, error)
}

// AIHandler serves the admin surface over drafting prompts and snapshot
// schemas.
type AIHandler struct {
	loader    SchemaReloader
	schemas   repository.SchemaRepo
	templates repository.TemplateRepo
	drafts    DraftPreviewer
}

func NewAIHandler(loader SchemaReloader, schemas repository.SchemaRepo, templates repository.TemplateRepo, drafts DraftPreviewer) *AIHandler {
	return &AIHandler{loader: loader, schemas: schemas, templates: templates, drafts: drafts}
}

func (h *AIHandler) ReloadHandler(w http.ResponseWriter, r *http.Request) {
	if err := h.loader.Reload(r.Context()); err != nil {
		writeError(w, fmt.Errorf("reload schemas: %w", err))
		return
	}
	writeJSON(w, map[string]any{"versions": h.loader.Versions()}, http.StatusOK)
}

func (h *AIHandler) ListSchemasHandler(w http.ResponseWriter, r *http.Request) {
	rows, err := h.schemas.ListSchemas(r.Context())
	if err != nil {
		writeError(w, fmt.Errorf("list schemas: %w", err))
		return
	}
	writeJSON(w, rows, http.StatusOK)
}

type schemaPayload struct {
	Version     string          `json:"version" validate:"required,max=100"`
	Description string          `json:"description,omitempty" validate:"max=500"`
	SchemaJSON  json.RawMessage `json:"schema_json" validate:"required"`
}

// CreateOrUpdateSchemaHandler validates and stores a schema, then reloads
// the cache so snapshot validation picks it up.
func (h *AIHandler) CreateOrUpdateSchemaHandler(w http.ResponseWriter, r *http.Request) {
	var p schemaPayload
	if err := decodeBody(r, &p); err != nil {
		writeError(w, err)
		return
	}

	rs := &jsonschema.Schema{}
	if err := json.Unmarshal(p.SchemaJSON, rs); err != nil {
		writeErrorStatus(w, http.StatusBadRequest, fmt.Sprintf("invalid schema json: %v", err))
		return
	}

	ctx := r.Context()
	if _, err := h.schemas.CreateSchema(ctx, p.Version, p.Description, string(p.SchemaJSON)); err != nil {
		writeError(w, fmt.Errorf("store schema: %w", err))
		return
	}
	if err := h.loader.Reload(ctx); err != nil {
		writeError(w, fmt.Errorf("reload schemas: %w", err))
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *AIHandler) GetSchemaHandler(w http.ResponseWriter, r *http.Request) {
	s, err := h.schemas.GetSchemaByVersion(r.Context(), mux.Vars(r)["version"])
	if err != nil {
		writeError(w, fmt.Errorf("get schema: %w", err))
		return
	}
	if s == nil {
		writeError(w, models.ErrNotFound)
		return
	}
	writeJSON(w, s, http.StatusOK)
}

func (h *AIHandler) DeleteSchemaHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.schemas.DeleteSchema(ctx, mux.Vars(r)["version"]); err != nil {
		writeError(w, fmt.Errorf("delete schema: %w", err))
		return
	}
	if err := h.loader.Reload(ctx); err != nil {
		writeError(w, fmt.Errorf("reload schemas: %w", err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AIHandler) ListTemplatesHandler(w http.ResponseWriter, r *http.Request) {
	rows, err := h.templates.ListTemplates(r.Context())
	if err != nil {
		writeError(w, fmt.Errorf("list templates: %w", err))
		return
	}
	writeJSON(w, rows, http.StatusOK)
}

type templatePayload struct {
	Name        string  `json:"name" validate:"required,max=100"`
	Version     string  `json:"version" validate:"required,max=100"`
	TemplateTxt string  `json:"template_text" validate:"required"`
	SchemaVer   *string `json:"schema_version,omitempty"`
}

// CreateOrUpdateTemplateHandler stores a prompt template after checking it
// parses with the prompt functions.
func (h *AIHandler) CreateOrUpdateTemplateHandler(w http.ResponseWriter, r *http.Request) {
	var p templatePayload
	if err := decodeBody(r, &p); err != nil {
		writeError(w, err)
		return
	}
	if _, err := template.New(p.Name).Funcs(ollama.PromptFuncs).Parse(p.TemplateTxt); err != nil {
		writeErrorStatus(w, http.StatusBadRequest, fmt.Sprintf("template parse error: %v", err))
		return
	}

	if _, err := h.templates.CreateTemplate(r.Context(), p.Name, p.Version, p.TemplateTxt, p.SchemaVer, nil); err != nil {
		writeError(w, fmt.Errorf("store template: %w", err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AIHandler) GetTemplateHandler(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	t, err := h.templates.GetTemplate(r.Context(), vars["name"], vars["version"])
	if err != nil {
		writeError(w, fmt.Errorf("get template: %w", err))
		return
	}
	if t == nil {
		writeError(w, models.ErrNotFound)
		return
	}
	writeJSON(w, t, http.StatusOK)
}

func (h *AIHandler) DeleteTemplateHandler(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	if err := h.templates.DeleteTemplate(r.Context(), vars["name"], vars["version"]); err != nil {
		writeError(w, fmt.Errorf("delete template: %w", err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// PreviewDraftHandler returns the draft the trigger would store for a
// question right now.
func (h *AIHandler) PreviewDraftHandler(w http.ResponseWriter, r *http.Request) {
	d, err := h.drafts.Preview(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, d, http.StatusOK)
}
