package api

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/garnizeh/qna/internal/auth"
	"github.com/garnizeh/qna/internal/events"
	"github.com/garnizeh/qna/internal/lifecycle"
	"github.com/garnizeh/qna/pkg/models"
)

type QuestionsHandler struct {
	svc    *lifecycle.Service
	broker events.Broker
}

func NewQuestionsHandler(svc *lifecycle.Service, broker events.Broker) *QuestionsHandler {
	return &QuestionsHandler{svc: svc, broker: broker}
}

type createQuestionRequest struct {
	Title string   `json:"title" validate:"required,max=200"`
	Body  string   `json:"body" validate:"required,max=10000"`
	Tags  []string `json:"tags" validate:"max=20,dive,max=40"`
}

type patchQuestionRequest struct {
	Title  *string                `json:"title" validate:"omitempty,max=200"`
	Body   *string                `json:"body" validate:"omitempty,max=10000"`
	Tags   *[]string              `json:"tags" validate:"omitempty,max=20,dive,max=40"`
	Status *models.QuestionStatus `json:"status"`
}

type listResponse[T any] struct {
	Items []T `json:"items"`
	Total int `json:"total"`
}

func (h *QuestionsHandler) ListQuestions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	status := models.QuestionStatus(q.Get("status"))
	if status != "" && !status.Valid() {
		writeErrorStatus(w, http.StatusBadRequest, "unknown status")
		return
	}
	limit := 50
	if l := q.Get("limit"); l != "" {
		v, err := strconv.Atoi(l)
		if err != nil || v <= 0 {
			writeErrorStatus(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = v
	}

	items, err := h.svc.ListQuestions(r.Context(), status, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	if items == nil {
		items = []models.Question{}
	}
	writeJSON(w, listResponse[models.Question]{Items: items, Total: len(items)}, http.StatusOK)
}

func (h *QuestionsHandler) CreateQuestion(w http.ResponseWriter, r *http.Request) {
	var req createQuestionRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	q, err := h.svc.CreateQuestion(r.Context(), auth.FromContext(r.Context()), lifecycle.QuestionInput{
		Title: req.Title,
		Body:  req.Body,
		Tags:  req.Tags,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, q, http.StatusCreated)
}

func (h *QuestionsHandler) GetQuestion(w http.ResponseWriter, r *http.Request) {
	q, err := h.svc.GetQuestion(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, q, http.StatusOK)
}

func (h *QuestionsHandler) UpdateQuestion(w http.ResponseWriter, r *http.Request) {
	var req patchQuestionRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	q, err := h.svc.UpdateQuestion(r.Context(), auth.FromContext(r.Context()), mux.Vars(r)["id"], lifecycle.QuestionPatch{
		Title:  req.Title,
		Body:   req.Body,
		Tags:   req.Tags,
		Status: req.Status,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, q, http.StatusOK)
}

func (h *QuestionsHandler) DeleteQuestion(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteQuestion(r.Context(), auth.FromContext(r.Context()), mux.Vars(r)["id"]); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *QuestionsHandler) Lock(w http.ResponseWriter, r *http.Request) {
	q, err := h.svc.Lock(r.Context(), auth.FromContext(r.Context()), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, q, http.StatusOK)
}

func (h *QuestionsHandler) Unlock(w http.ResponseWriter, r *http.Request) {
	q, err := h.svc.Unlock(r.Context(), auth.FromContext(r.Context()), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, q, http.StatusOK)
}
