package lifecycle

import (
	"context"
	"strings"

	"github.com/garnizeh/qna/internal/auth"
	"github.com/garnizeh/qna/internal/events"
	"github.com/garnizeh/qna/pkg/models"
	"github.com/garnizeh/qna/pkg/repository"
)

type MessageInput struct {
	Content string
	Kind    models.Kind
	// Draft keeps an admin answer unpublished until it is approved.
	Draft     bool
	InReplyTo *string
}

// initialStatus returns the status a new message is stored with. Questions
// and notes publish immediately; answers unless they are drafts.
func initialStatus(kind models.Kind, draft bool) models.MessageStatus {
	if kind == models.KindAnswer && draft {
		return models.StatusDraft
	}
	return models.StatusApproved
}

// AppendMessage adds a message to the conversation at the next turn.
//
// Answers and notes are admin-only; follow-up questions need a user or admin.
// A follow-up question reopens the thread unless it is locked, an answer
// triggers a full reconciliation and a note only moves lastMessageAt.
func (s *Service) AppendMessage(ctx context.Context, id auth.Identity, qid string, in MessageInput) (*models.Message, error) {
	if err := requireWriter(id); err != nil {
		return nil, err
	}
	if !in.Kind.Valid() {
		return nil, invalid("unknown kind %q", in.Kind)
	}
	if !models.ValidCombination(id.Role, in.Kind) {
		return nil, models.ErrForbidden
	}
	content := strings.TrimSpace(in.Content)
	if content == "" {
		return nil, invalid("content is required")
	}

	var out *models.Message
	err := s.write(ctx, func(ctx context.Context, tx repository.ThreadTx, emit func(events.Event)) error {
		q, err := loadQuestion(ctx, tx, qid)
		if err != nil {
			return err
		}
		if q.Status == models.QuestionLocked && !id.IsAdmin() {
			return models.ErrForbidden
		}
		if in.InReplyTo != nil {
			parent, err := tx.GetMessage(ctx, qid, *in.InReplyTo)
			if err != nil {
				return err
			}
			if parent == nil {
				return invalid("inReplyTo %q is not a message of this question", *in.InReplyTo)
			}
		}

		turn, err := tx.NextTurn(ctx, qid)
		if err != nil {
			return err
		}

		now := s.clock()
		m := &models.Message{
			ID:         newID(),
			QuestionID: qid,
			Content:    content,
			Role:       id.Role,
			Kind:       in.Kind,
			Status:     initialStatus(in.Kind, in.Draft),
			Turn:       turn,
			InReplyTo:  in.InReplyTo,
			AuthorUID:  id.UID,
			AuthorName: id.DisplayName(),
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if m.Status == models.StatusApproved && m.Kind == models.KindAnswer {
			uid := id.UID
			m.ApprovedAt = &now
			m.ApprovedBy = &uid
		}
		if err := tx.InsertMessage(ctx, m); err != nil {
			return err
		}
		emit(events.Event{Type: events.MessageCreated, QuestionID: qid, MessageID: m.ID, At: now})
		if err := enqueueChange(ctx, tx, JobMessageCreated, nil, m); err != nil {
			return err
		}

		q.LastMessageAt = &now
		switch m.Kind {
		case models.KindQuestion:
			if q.Status != models.QuestionLocked {
				q.Status = models.QuestionOpen
			}
			q.UpdatedAt = now
			err = tx.UpdateQuestion(ctx, q)
		case models.KindAnswer:
			if m.Status == models.StatusApproved {
				if err := s.supersede(ctx, tx, m, emit); err != nil {
					return err
				}
			}
			err = reconcileTx(ctx, tx, q, now)
		default:
			q.UpdatedAt = now
			err = tx.UpdateQuestion(ctx, q)
		}
		if err != nil {
			return err
		}

		out = m
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// InsertDraft stores a generated draft answer. It fails with
// models.ErrDraftExists when the question gained a draft in the meantime.
func (s *Service) InsertDraft(ctx context.Context, qid, content string) (*models.Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, invalid("draft content is required")
	}

	var out *models.Message
	err := s.write(ctx, func(ctx context.Context, tx repository.ThreadTx, emit func(events.Event)) error {
		q, err := loadQuestion(ctx, tx, qid)
		if err != nil {
			return err
		}
		if q.HasDraftAnswer {
			return models.ErrDraftExists
		}

		turn, err := tx.NextTurn(ctx, qid)
		if err != nil {
			return err
		}
		now := s.clock()
		m := &models.Message{
			ID:          newID(),
			QuestionID:  qid,
			Content:     content,
			Role:        models.RoleAI,
			Kind:        models.KindAnswer,
			Status:      models.StatusDraft,
			Turn:        turn,
			AIGenerated: true,
			AuthorName:  AIAuthorName,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := tx.InsertMessage(ctx, m); err != nil {
			return err
		}
		q.LastMessageAt = &now
		if err := reconcileTx(ctx, tx, q, now); err != nil {
			return err
		}

		emit(events.Event{Type: events.MessageCreated, QuestionID: qid, MessageID: m.ID, At: now})
		out = m
		return enqueueChange(ctx, tx, JobMessageCreated, nil, m)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// UpdateMessage rewrites the content of a message. Admins may edit any
// message, users only the questions they asked.
func (s *Service) UpdateMessage(ctx context.Context, id auth.Identity, qid, mid, content string) (*models.Message, error) {
	if err := requireWriter(id); err != nil {
		return nil, err
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, invalid("content is required")
	}

	return s.mutate(ctx, id, qid, mid, func(m *models.Message) error {
		if !id.IsAdmin() && (m.AuthorUID != id.UID || m.Kind != models.KindQuestion) {
			return models.ErrForbidden
		}
		m.Content = content
		return nil
	})
}

// ApproveMessage publishes a message, optionally replacing its content. An
// approved answer supersedes the answers approved before it.
func (s *Service) ApproveMessage(ctx context.Context, id auth.Identity, qid, mid string, content *string) (*models.Message, error) {
	if err := requireAdmin(id); err != nil {
		return nil, err
	}
	var replacement string
	if content != nil {
		replacement = strings.TrimSpace(*content)
		if replacement == "" {
			return nil, invalid("content must not be empty")
		}
	}

	return s.mutate(ctx, id, qid, mid, func(m *models.Message) error {
		if replacement != "" {
			m.Content = replacement
		}
		now := s.clock()
		uid := id.UID
		m.Status = models.StatusApproved
		m.ApprovedAt = &now
		m.ApprovedBy = &uid
		return nil
	})
}

// RejectMessage withdraws a message from the public conversation.
func (s *Service) RejectMessage(ctx context.Context, id auth.Identity, qid, mid string) (*models.Message, error) {
	if err := requireAdmin(id); err != nil {
		return nil, err
	}

	return s.mutate(ctx, id, qid, mid, func(m *models.Message) error {
		m.Status = models.StatusRejected
		m.ApprovedAt = nil
		m.ApprovedBy = nil
		return nil
	})
}

// mutate loads a message, applies change and stores it. Answer changes are
// reconciled in the same transaction.
func (s *Service) mutate(ctx context.Context, id auth.Identity, qid, mid string, change func(m *models.Message) error) (*models.Message, error) {
	var out *models.Message
	err := s.write(ctx, func(ctx context.Context, tx repository.ThreadTx, emit func(events.Event)) error {
		q, err := loadQuestion(ctx, tx, qid)
		if err != nil {
			return err
		}
		if q.Status == models.QuestionLocked && !id.IsAdmin() {
			return models.ErrForbidden
		}
		m, err := loadMessage(ctx, tx, qid, mid)
		if err != nil {
			return err
		}

		before := *m
		if err := change(m); err != nil {
			return err
		}
		now := s.clock()
		m.UpdatedAt = now
		if err := tx.UpdateMessage(ctx, m); err != nil {
			return err
		}
		emit(events.Event{Type: events.MessageUpdated, QuestionID: qid, MessageID: m.ID, At: now})
		if err := enqueueChange(ctx, tx, JobMessageUpdated, &before, m); err != nil {
			return err
		}

		if m.Kind == models.KindAnswer {
			if m.Status == models.StatusApproved && before.Status != models.StatusApproved {
				if err := s.supersede(ctx, tx, m, emit); err != nil {
					return err
				}
			}
			if err := reconcileTx(ctx, tx, q, now); err != nil {
				return err
			}
		}

		out = m
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// supersede marks every other approved answer of the question superseded.
func (s *Service) supersede(ctx context.Context, tx repository.ThreadTx, keep *models.Message, emit func(events.Event)) error {
	ids, err := tx.SupersedeApproved(ctx, keep.QuestionID, keep.ID)
	if err != nil {
		return err
	}
	for _, sid := range ids {
		m, err := loadMessage(ctx, tx, keep.QuestionID, sid)
		if err != nil {
			return err
		}
		emit(events.Event{Type: events.MessageUpdated, QuestionID: m.QuestionID, MessageID: m.ID, At: m.UpdatedAt})
		if err := enqueueChange(ctx, tx, JobMessageUpdated, nil, m); err != nil {
			return err
		}
	}
	return nil
}

// RemoveMessage deletes a message; removing an answer reconciles the question.
func (s *Service) RemoveMessage(ctx context.Context, id auth.Identity, qid, mid string) error {
	if err := requireAdmin(id); err != nil {
		return err
	}
	return s.write(ctx, func(ctx context.Context, tx repository.ThreadTx, emit func(events.Event)) error {
		q, err := loadQuestion(ctx, tx, qid)
		if err != nil {
			return err
		}
		m, err := loadMessage(ctx, tx, qid, mid)
		if err != nil {
			return err
		}
		if err := tx.DeleteMessage(ctx, qid, mid); err != nil {
			return err
		}
		now := s.clock()
		emit(events.Event{Type: events.MessageDeleted, QuestionID: qid, MessageID: mid, At: now})
		if m.Kind == models.KindAnswer {
			return reconcileTx(ctx, tx, q, now)
		}
		return nil
	})
}

// ListMessages returns the part of the conversation the caller may see:
// admins see everything, users the approved messages plus their own, guests
// only approved messages.
func (s *Service) ListMessages(ctx context.Context, id auth.Identity, qid string) ([]models.Message, error) {
	if _, err := s.GetQuestion(ctx, qid); err != nil {
		return nil, err
	}
	switch {
	case id.IsAdmin():
		return s.store.ListMessages(ctx, qid)
	case !id.Anonymous() && id.Role == models.RoleUser:
		return s.store.ListVisibleMessages(ctx, qid, id.UID)
	default:
		return s.store.ListApprovedMessages(ctx, qid)
	}
}
