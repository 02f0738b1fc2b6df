package triggers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/garnizeh/qna/internal/ai"
	"github.com/garnizeh/qna/pkg/models"
	"github.com/garnizeh/qna/pkg/repository"
)

// DefaultHistoryLimit bounds the conversation sent to the collaborator.
const DefaultHistoryLimit = 20

type Reader interface {
	repository.QuestionRepo
	repository.MessageRepo
}

// DraftWriter stores a draft after re-checking the question in a transaction.
type DraftWriter interface {
	InsertDraft(ctx context.Context, qid, content string) (*models.Message, error)
}

type Generator interface {
	Generate(ctx context.Context, in ai.DraftInput) ai.Draft
}

// DraftTrigger proposes an AI draft for questions awaiting an answer.
type DraftTrigger struct {
	reader       Reader
	writer       DraftWriter
	drafter      Generator
	historyLimit int
	logger       *slog.Logger
}

func NewDraftTrigger(reader Reader, writer DraftWriter, drafter Generator, historyLimit int, logger *slog.Logger) *DraftTrigger {
	if historyLimit <= 0 || historyLimit > DefaultHistoryLimit {
		historyLimit = DefaultHistoryLimit
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &DraftTrigger{reader: reader, writer: writer, drafter: drafter, historyLimit: historyLimit, logger: logger}
}

// Triggers reports whether a newly created message asks for a draft: an
// approved question written by a person.
func Triggers(m *models.Message) bool {
	return m.Kind == models.KindQuestion && m.Role != models.RoleAI && m.Status == models.StatusApproved
}

// skipReason returns why q gets no draft, or "" when it does.
func skipReason(q *models.Question) string {
	switch {
	case q.Status == models.QuestionLocked:
		return "locked"
	case q.HasDraftAnswer:
		return "draft exists"
	case q.Status == models.QuestionAnswered:
		return "answered"
	}
	return ""
}

// Run drafts an answer for qid. It returns (nil, nil) when a precondition
// fails or another draft won the race.
func (t *DraftTrigger) Run(ctx context.Context, qid string) (*models.Message, error) {
	log := t.logger.With(slog.String("question_id", qid))

	q, err := t.reader.GetQuestion(ctx, qid)
	if err != nil {
		return nil, fmt.Errorf("load question: %w", err)
	}
	if q == nil {
		log.Warn("draft trigger: question not found")
		return nil, nil
	}
	if reason := skipReason(q); reason != "" {
		log.Debug("draft trigger: skipped", slog.String("reason", reason))
		return nil, nil
	}

	in, err := t.input(ctx, q)
	if err != nil {
		return nil, err
	}
	d := t.drafter.Generate(ctx, in)

	m, err := t.writer.InsertDraft(ctx, qid, d.Text)
	switch {
	case errors.Is(err, models.ErrDraftExists):
		log.Debug("draft trigger: another draft landed first")
		return nil, nil
	case errors.Is(err, models.ErrNotFound):
		log.Warn("draft trigger: question removed before the draft was stored")
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("insert draft: %w", err)
	}

	log.Info("draft trigger: draft stored",
		slog.String("message_id", m.ID), slog.String("source", string(d.Source)), slog.String("reason", d.Reason))
	return m, nil
}

// Preview returns the draft Run would store, without storing it.
func (t *DraftTrigger) Preview(ctx context.Context, qid string) (ai.Draft, error) {
	q, err := t.reader.GetQuestion(ctx, qid)
	if err != nil {
		return ai.Draft{}, fmt.Errorf("load question: %w", err)
	}
	if q == nil {
		return ai.Draft{}, models.ErrNotFound
	}
	in, err := t.input(ctx, q)
	if err != nil {
		return ai.Draft{}, err
	}
	return t.drafter.Generate(ctx, in), nil
}

func (t *DraftTrigger) input(ctx context.Context, q *models.Question) (ai.DraftInput, error) {
	history, err := t.reader.ListHistory(ctx, q.ID, t.historyLimit)
	if err != nil {
		return ai.DraftInput{}, fmt.Errorf("load history: %w", err)
	}

	in := ai.DraftInput{
		Title:      q.Title,
		Body:       q.Body,
		Tags:       q.Tags,
		AuthorName: q.AuthorName,
		History:    make([]ai.HistoryEntry, 0, len(history)),
	}
	for _, m := range history {
		in.History = append(in.History, ai.HistoryEntry{Role: string(m.Role), Kind: string(m.Kind), Content: m.Content})
	}
	return in, nil
}
