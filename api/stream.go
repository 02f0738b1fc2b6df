package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/garnizeh/qna/internal/auth"
	"github.com/garnizeh/qna/internal/events"
	"github.com/garnizeh/qna/pkg/models"
)

// streamKeepAlive is the interval of ping events on an idle stream.
var streamKeepAlive = 25 * time.Second

// Stream pushes the caller-visible conversation as server-sent events: once
// on subscription and again after every committed change. A deleted question
// ends the stream with a "deleted" event.
func (h *QuestionsHandler) Stream(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := auth.FromContext(ctx)
	qid := mux.Vars(r)["id"]

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeErrorStatus(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	if _, err := h.svc.GetQuestion(ctx, qid); err != nil {
		writeError(w, err)
		return
	}

	ch, cancel, err := h.broker.Subscribe(ctx, qid)
	if err != nil {
		writeError(w, fmt.Errorf("subscribe: %w", err))
		return
	}
	defer cancel()

	setSSEHeaders(w)
	w.WriteHeader(http.StatusOK)

	// push reports whether the stream should stay open.
	push := func() bool {
		msgs, err := h.svc.ListMessages(ctx, id, qid)
		switch {
		case errors.Is(err, models.ErrNotFound):
			sseWrite(w, "deleted", map[string]string{"questionId": qid})
			flusher.Flush()
			return false
		case err != nil:
			if ctx.Err() != nil {
				return false
			}
			logger.Error("stream: list messages", slog.String("question_id", qid), slog.Any("err", err))
			sseWrite(w, "error", errorResponse{Error: "internal error"})
		default:
			if msgs == nil {
				msgs = []models.Message{}
			}
			sseWrite(w, "messages", msgs)
		}
		flusher.Flush()
		return true
	}
	if !push() {
		return
	}

	ticker := time.NewTicker(streamKeepAlive)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-ch:
			if !ok {
				return
			}
			if e.Type == events.QuestionDeleted {
				sseWrite(w, "deleted", map[string]string{"questionId": qid})
				flusher.Flush()
				return
			}
			if !push() {
				return
			}
		case <-ticker.C:
			sseWrite(w, "ping", time.Now().UTC().Format(time.RFC3339Nano))
			flusher.Flush()
		}
	}
}

func setSSEHeaders(w http.ResponseWriter) {
	headers := w.Header()
	headers.Set("Content-Type", "text/event-stream")
	headers.Set("Cache-Control", "no-cache")
	headers.Set("Connection", "keep-alive")
	headers.Set("X-Accel-Buffering", "no")
}

func sseWrite(w http.ResponseWriter, event string, data any) {
	var payload string
	switch v := data.(type) {
	case string:
		payload = v
	default:
		b, err := json.Marshal(v)
		if err != nil {
			logger.Error("stream: encode event", slog.String("event", event), slog.Any("err", err))
			return
		}
		payload = string(b)
	}
	if event != "" {
		_, _ = fmt.Fprintf(w, "event: %s\n", event)
	}
	for _, line := range strings.Split(payload, "\n") {
		_, _ = fmt.Fprintf(w, "data: %s\n", line)
	}
	_, _ = fmt.Fprint(w, "\n")
}
