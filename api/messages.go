package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/garnizeh/qna/internal/auth"
	"github.com/garnizeh/qna/internal/lifecycle"
	"github.com/garnizeh/qna/pkg/models"
)

type appendMessageRequest struct {
	Content   string      `json:"content" validate:"required,max=10000"`
	Kind      models.Kind `json:"kind" validate:"required,oneof=question answer note"`
	Draft     bool        `json:"draft"`
	InReplyTo *string     `json:"inReplyTo" validate:"omitempty,min=1"`
}

type editMessageRequest struct {
	Content string `json:"content" validate:"required,max=10000"`
}

type approveMessageRequest struct {
	Content *string `json:"content" validate:"omitempty,min=1,max=10000"`
}

// ListMessages returns the conversation as the caller may see it: admins get
// every message, users the approved ones plus their own, guests the approved.
func (h *QuestionsHandler) ListMessages(w http.ResponseWriter, r *http.Request) {
	msgs, err := h.svc.ListMessages(r.Context(), auth.FromContext(r.Context()), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	if msgs == nil {
		msgs = []models.Message{}
	}
	writeJSON(w, listResponse[models.Message]{Items: msgs, Total: len(msgs)}, http.StatusOK)
}

func (h *QuestionsHandler) AppendMessage(w http.ResponseWriter, r *http.Request) {
	var req appendMessageRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	m, err := h.svc.AppendMessage(r.Context(), auth.FromContext(r.Context()), mux.Vars(r)["id"], lifecycle.MessageInput{
		Content:   req.Content,
		Kind:      req.Kind,
		Draft:     req.Draft,
		InReplyTo: req.InReplyTo,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, m, http.StatusCreated)
}

func (h *QuestionsHandler) UpdateMessage(w http.ResponseWriter, r *http.Request) {
	var req editMessageRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	vars := mux.Vars(r)
	m, err := h.svc.UpdateMessage(r.Context(), auth.FromContext(r.Context()), vars["id"], vars["mid"], req.Content)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, m, http.StatusOK)
}

// ApproveMessage publishes a message, optionally replacing its content.
// An empty body approves as is.
func (h *QuestionsHandler) ApproveMessage(w http.ResponseWriter, r *http.Request) {
	var req approveMessageRequest
	if err := decodeOptionalBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	vars := mux.Vars(r)
	m, err := h.svc.ApproveMessage(r.Context(), auth.FromContext(r.Context()), vars["id"], vars["mid"], req.Content)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, m, http.StatusOK)
}

func (h *QuestionsHandler) RejectMessage(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	m, err := h.svc.RejectMessage(r.Context(), auth.FromContext(r.Context()), vars["id"], vars["mid"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, m, http.StatusOK)
}

func (h *QuestionsHandler) RemoveMessage(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	if err := h.svc.RemoveMessage(r.Context(), auth.FromContext(r.Context()), vars["id"], vars["mid"]); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
