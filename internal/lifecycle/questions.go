package lifecycle

import (
	"context"
	"strings"

	"github.com/garnizeh/qna/internal/auth"
	"github.com/garnizeh/qna/internal/events"
	"github.com/garnizeh/qna/pkg/models"
	"github.com/garnizeh/qna/pkg/repository"
)

const maxListLimit = 100

type QuestionInput struct {
	Title string
	Body  string
	Tags  []string
}

// QuestionPatch holds the fields to change; nil fields are kept.
type QuestionPatch struct {
	Title  *string
	Body   *string
	Tags   *[]string
	Status *models.QuestionStatus
}

// CreateQuestion stores a question together with its opening message, which
// carries the body at turn 0.
func (s *Service) CreateQuestion(ctx context.Context, id auth.Identity, in QuestionInput) (*models.Question, error) {
	if err := requireWriter(id); err != nil {
		return nil, err
	}
	title := strings.TrimSpace(in.Title)
	body := strings.TrimSpace(in.Body)
	if title == "" || body == "" {
		return nil, invalid("title and body are required")
	}

	now := s.clock()
	q := &models.Question{
		ID:            newID(),
		Title:         title,
		Body:          body,
		Tags:          normalizeTags(in.Tags),
		AuthorUID:     id.UID,
		AuthorName:    id.DisplayName(),
		Status:        models.QuestionOpen,
		LastMessageAt: &now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	err := s.write(ctx, func(ctx context.Context, tx repository.ThreadTx, emit func(events.Event)) error {
		if err := tx.CreateQuestion(ctx, q); err != nil {
			return err
		}
		turn, err := tx.NextTurn(ctx, q.ID)
		if err != nil {
			return err
		}
		m := &models.Message{
			ID:         newID(),
			QuestionID: q.ID,
			Content:    body,
			Role:       id.Role,
			Kind:       models.KindQuestion,
			Status:     models.StatusApproved,
			Turn:       turn,
			AuthorUID:  id.UID,
			AuthorName: q.AuthorName,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if err := tx.InsertMessage(ctx, m); err != nil {
			return err
		}
		q.NextTurn = turn + 1
		emit(events.Event{Type: events.MessageCreated, QuestionID: q.ID, MessageID: m.ID, At: now})
		return enqueueChange(ctx, tx, JobMessageCreated, nil, m)
	})
	if err != nil {
		return nil, err
	}

	return q, nil
}

func (s *Service) GetQuestion(ctx context.Context, qid string) (*models.Question, error) {
	q, err := s.store.GetQuestion(ctx, qid)
	if err != nil {
		return nil, err
	}
	if q == nil {
		return nil, models.ErrNotFound
	}
	return q, nil
}

// ListQuestions returns questions newest first; an empty status lists all.
func (s *Service) ListQuestions(ctx context.Context, status models.QuestionStatus, limit int) ([]models.Question, error) {
	if status != "" && !status.Valid() {
		return nil, invalid("unknown status %q", status)
	}
	if limit <= 0 || limit > maxListLimit {
		limit = 20
	}
	return s.store.ListQuestions(ctx, status, limit)
}

// UpdateQuestion edits a question. The author or an admin may change the
// title, body and tags; only an admin may override the status.
func (s *Service) UpdateQuestion(ctx context.Context, id auth.Identity, qid string, p QuestionPatch) (*models.Question, error) {
	if err := requireWriter(id); err != nil {
		return nil, err
	}
	if p.Status != nil {
		if !id.IsAdmin() {
			return nil, models.ErrForbidden
		}
		if !p.Status.Valid() {
			return nil, invalid("unknown status %q", *p.Status)
		}
	}

	var out *models.Question
	err := s.write(ctx, func(ctx context.Context, tx repository.ThreadTx, emit func(events.Event)) error {
		q, err := loadQuestion(ctx, tx, qid)
		if err != nil {
			return err
		}
		if !id.IsAdmin() && q.AuthorUID != id.UID {
			return models.ErrForbidden
		}

		if p.Title != nil {
			t := strings.TrimSpace(*p.Title)
			if t == "" {
				return invalid("title must not be empty")
			}
			q.Title = t
		}
		if p.Body != nil {
			b := strings.TrimSpace(*p.Body)
			if b == "" {
				return invalid("body must not be empty")
			}
			q.Body = b
		}
		if p.Tags != nil {
			q.Tags = normalizeTags(*p.Tags)
		}
		if p.Status != nil {
			q.Status = *p.Status
		}

		now := s.clock()
		q.UpdatedAt = now
		if err := tx.UpdateQuestion(ctx, q); err != nil {
			return err
		}
		emit(events.Event{Type: events.QuestionUpdated, QuestionID: q.ID, At: now})
		out = q
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Lock marks the question locked; reconciliation never changes it back.
func (s *Service) Lock(ctx context.Context, id auth.Identity, qid string) (*models.Question, error) {
	st := models.QuestionLocked
	return s.UpdateQuestion(ctx, id, qid, QuestionPatch{Status: &st})
}

// Unlock lifts the lock and recomputes the status from the conversation.
func (s *Service) Unlock(ctx context.Context, id auth.Identity, qid string) (*models.Question, error) {
	if err := requireAdmin(id); err != nil {
		return nil, err
	}

	var out *models.Question
	err := s.write(ctx, func(ctx context.Context, tx repository.ThreadTx, emit func(events.Event)) error {
		q, err := loadQuestion(ctx, tx, qid)
		if err != nil {
			return err
		}
		q.Status = models.QuestionOpen
		now := s.clock()
		if err := reconcileTx(ctx, tx, q, now); err != nil {
			return err
		}
		emit(events.Event{Type: events.QuestionUpdated, QuestionID: q.ID, At: now})
		out = q
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteQuestion removes the question and its messages. Training samples
// already collected are kept.
func (s *Service) DeleteQuestion(ctx context.Context, id auth.Identity, qid string) error {
	if err := requireAdmin(id); err != nil {
		return err
	}
	return s.write(ctx, func(ctx context.Context, tx repository.ThreadTx, emit func(events.Event)) error {
		if _, err := loadQuestion(ctx, tx, qid); err != nil {
			return err
		}
		if err := tx.DeleteQuestion(ctx, qid); err != nil {
			return err
		}
		emit(events.Event{Type: events.QuestionDeleted, QuestionID: qid, At: s.clock()})
		return nil
	})
}

// Reconcile recomputes the derived fields of a question on demand.
func (s *Service) Reconcile(ctx context.Context, qid string) (*models.Question, error) {
	var out *models.Question
	err := s.write(ctx, func(ctx context.Context, tx repository.ThreadTx, emit func(events.Event)) error {
		q, err := loadQuestion(ctx, tx, qid)
		if err != nil {
			return err
		}
		now := s.clock()
		if err := reconcileTx(ctx, tx, q, now); err != nil {
			return err
		}
		emit(events.Event{Type: events.QuestionUpdated, QuestionID: q.ID, At: now})
		out = q
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
