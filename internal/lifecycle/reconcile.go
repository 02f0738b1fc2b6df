package lifecycle

import (
	"context"
	"fmt"
	"time"

	"github.com/garnizeh/qna/pkg/models"
	"github.com/garnizeh/qna/pkg/repository"
)

// Derive computes the reconciliation-owned fields of a question from the
// newest draft answer and the newest approved answer.
//
// A draft answer takes priority and makes the question pending; otherwise an
// approved answer makes it answered; otherwise it is open. A locked status is
// never replaced, although the other fields are still recomputed. The
// official answer always tracks the newest approved answer.
//
// pendingAnswerUpdatedAt records the last pending-state change, so it is kept
// when the question was already pending on a draft from the same role.
func Derive(cur models.Derived, newestDraft, newestApproved *models.Message, now time.Time) models.Derived {
	locked := cur.Status == models.QuestionLocked
	out := models.Derived{Status: cur.Status}

	if newestApproved != nil {
		id := newestApproved.ID
		out.OfficialAnswerID = &id
	}

	switch {
	case newestDraft != nil && newestDraft.IsDraftAnswer():
		role := newestDraft.Role
		at := now
		if cur.HasDraftAnswer && cur.PendingAnswerSource != nil && *cur.PendingAnswerSource == role && cur.PendingAnswerUpdatedAt != nil {
			at = *cur.PendingAnswerUpdatedAt
		}
		out.HasDraftAnswer = true
		out.PendingAnswerSource = &role
		out.PendingAnswerUpdatedAt = &at
		if !locked {
			out.Status = models.QuestionPending
		}
	case newestApproved != nil:
		if !locked {
			out.Status = models.QuestionAnswered
		}
	default:
		if !locked {
			out.Status = models.QuestionOpen
		}
	}

	return out
}

func applyDerived(q *models.Question, d models.Derived) {
	q.Status = d.Status
	q.HasDraftAnswer = d.HasDraftAnswer
	q.PendingAnswerSource = d.PendingAnswerSource
	q.PendingAnswerUpdatedAt = d.PendingAnswerUpdatedAt
	q.OfficialAnswerID = d.OfficialAnswerID
}

// reconcileTx recomputes and stores q's derived fields inside tx.
func reconcileTx(ctx context.Context, tx repository.ThreadTx, q *models.Question, now time.Time) error {
	draft, err := tx.NewestAnswer(ctx, q.ID, models.StatusDraft)
	if err != nil {
		return fmt.Errorf("reconcile %s: %w", q.ID, err)
	}
	approved, err := tx.NewestAnswer(ctx, q.ID, models.StatusApproved)
	if err != nil {
		return fmt.Errorf("reconcile %s: %w", q.ID, err)
	}

	applyDerived(q, Derive(q.Derived(), draft, approved, now))
	q.UpdatedAt = now

	return tx.UpdateQuestion(ctx, q)
}
