package sqlite

import (
	"context"
	"database/sql"

	imodels "github.com/garnizeh/qna/internal/models"
	"github.com/garnizeh/qna/pkg/models"
	"github.com/garnizeh/qna/pkg/repository"
)

// threadTx binds the question and message writes to one sql transaction.
type threadTx struct {
	tx *sql.Tx
}

var _ repository.ThreadTx = (*threadTx)(nil)

// RunInTx runs fn in a transaction. The pool holds a single connection, so fn
// must only touch storage through tx.
func (r *SQLiteRepo) RunInTx(ctx context.Context, fn func(ctx context.Context, tx repository.ThreadTx) error) error {
	return r.conn.WithTx(ctx, func(tx *sql.Tx) error {
		return fn(ctx, &threadTx{tx: tx})
	})
}

func (t *threadTx) GetQuestion(ctx context.Context, id string) (*models.Question, error) {
	return getQuestion(ctx, t.tx, id)
}

func (t *threadTx) CreateQuestion(ctx context.Context, q *models.Question) error {
	return insertQuestion(ctx, t.tx, q)
}

func (t *threadTx) UpdateQuestion(ctx context.Context, q *models.Question) error {
	return updateQuestion(ctx, t.tx, q)
}

func (t *threadTx) DeleteQuestion(ctx context.Context, id string) error {
	return deleteQuestion(ctx, t.tx, id)
}

func (t *threadTx) NextTurn(ctx context.Context, questionID string) (int64, error) {
	return nextTurn(ctx, t.tx, questionID)
}

func (t *threadTx) InsertMessage(ctx context.Context, m *models.Message) error {
	return insertMessage(ctx, t.tx, m)
}

func (t *threadTx) GetMessage(ctx context.Context, questionID, messageID string) (*models.Message, error) {
	return getMessage(ctx, t.tx, questionID, messageID)
}

func (t *threadTx) UpdateMessage(ctx context.Context, m *models.Message) error {
	return updateMessage(ctx, t.tx, m)
}

func (t *threadTx) DeleteMessage(ctx context.Context, questionID, messageID string) error {
	return deleteMessage(ctx, t.tx, questionID, messageID)
}

func (t *threadTx) NewestAnswer(ctx context.Context, questionID string, status models.MessageStatus) (*models.Message, error) {
	return newestAnswer(ctx, t.tx, questionID, status)
}

func (t *threadTx) SupersedeApproved(ctx context.Context, questionID, keepID string) ([]string, error) {
	return supersedeApproved(ctx, t.tx, questionID, keepID, now())
}

func (t *threadTx) Enqueue(ctx context.Context, j *imodels.BackgroundJob) (int64, error) {
	return enqueueJob(ctx, t.tx, j)
}
