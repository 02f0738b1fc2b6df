// Package lifecycle owns questions and their conversations: message writes,
// authorization and the reconciliation of each question's derived status.
// Every write and its reconciliation commit in one transaction, together with
// the trigger jobs that the write produces.
package lifecycle

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/garnizeh/qna/internal/auth"
	"github.com/garnizeh/qna/internal/events"
	imodels "github.com/garnizeh/qna/internal/models"
	"github.com/garnizeh/qna/pkg/models"
	"github.com/garnizeh/qna/pkg/repository"
)

// Job types delivered to the trigger handlers.
const (
	JobMessageCreated = "message.created"
	JobMessageUpdated = "message.updated"
)

// ChangePayload is the job payload of a message change.
type ChangePayload struct {
	QuestionID string          `json:"question_id"`
	MessageID  string          `json:"message_id"`
	Before     json.RawMessage `json:"before,omitempty"`
	After      json.RawMessage `json:"after"`
}

// AIAuthorName is the author name of generated drafts.
const AIAuthorName = "AI Draft"

type Store interface {
	repository.QuestionRepo
	repository.MessageRepo
	repository.ThreadStore
}

type Service struct {
	store  Store
	broker events.Broker
	logger *slog.Logger
	now    func() time.Time
}

type Option func(*Service)

// WithBroker publishes a change event after every committed write.
func WithBroker(b events.Broker) Option {
	return func(s *Service) { s.broker = b }
}

// WithClock replaces the wall clock.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(store Store, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{store: store, logger: logger, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// clock returns the current time at storage precision.
func (s *Service) clock() time.Time {
	return s.now().UTC().Truncate(time.Millisecond)
}

// write runs fn in a transaction and publishes the events it collected once
// the transaction committed.
func (s *Service) write(ctx context.Context, fn func(ctx context.Context, tx repository.ThreadTx, emit func(events.Event)) error) error {
	var pending []events.Event
	err := s.store.RunInTx(ctx, func(ctx context.Context, tx repository.ThreadTx) error {
		pending = pending[:0]
		return fn(ctx, tx, func(e events.Event) { pending = append(pending, e) })
	})
	if err != nil {
		return err
	}

	if s.broker == nil {
		return nil
	}
	for _, e := range pending {
		if err := s.broker.Publish(ctx, e); err != nil {
			s.logger.Warn("lifecycle: publish change failed",
				slog.String("type", string(e.Type)), slog.String("question_id", e.QuestionID), slog.Any("err", err))
		}
	}
	return nil
}

func enqueueChange(ctx context.Context, tx repository.ThreadTx, jobType string, before, after *models.Message) error {
	p := ChangePayload{QuestionID: after.QuestionID, MessageID: after.ID}
	if before != nil {
		b, err := json.Marshal(before)
		if err != nil {
			return fmt.Errorf("encode before snapshot: %w", err)
		}
		p.Before = b
	}
	a, err := json.Marshal(after)
	if err != nil {
		return fmt.Errorf("encode after snapshot: %w", err)
	}
	p.After = a

	body, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode change payload: %w", err)
	}
	if _, err := tx.Enqueue(ctx, &imodels.BackgroundJob{Type: jobType, Payload: body, Priority: 100, MaxAttempts: 5}); err != nil {
		return fmt.Errorf("enqueue %s: %w", jobType, err)
	}
	return nil
}

func requireWriter(id auth.Identity) error {
	if id.Anonymous() {
		return models.ErrUnauthenticated
	}
	if id.Role != models.RoleUser && id.Role != models.RoleAdmin {
		return models.ErrForbidden
	}
	return nil
}

func requireAdmin(id auth.Identity) error {
	if id.Anonymous() {
		return models.ErrUnauthenticated
	}
	if !id.IsAdmin() {
		return models.ErrForbidden
	}
	return nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", models.ErrInvalidArgument, fmt.Sprintf(format, args...))
}

func newID() string {
	return uuid.NewString()
}

// normalizeTags trims, drops empty entries and removes duplicates.
func normalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

func loadQuestion(ctx context.Context, tx repository.ThreadTx, qid string) (*models.Question, error) {
	q, err := tx.GetQuestion(ctx, qid)
	if err != nil {
		return nil, err
	}
	if q == nil {
		return nil, models.ErrNotFound
	}
	return q, nil
}

func loadMessage(ctx context.Context, tx repository.ThreadTx, qid, mid string) (*models.Message, error) {
	m, err := tx.GetMessage(ctx, qid, mid)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, models.ErrNotFound
	}
	return m, nil
}
