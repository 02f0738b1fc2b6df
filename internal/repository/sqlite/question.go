package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/garnizeh/qna/internal/db"
	"github.com/garnizeh/qna/pkg/models"
)

const questionColumns = `id, title, body, tags_json, author_uid, author_name, status, has_draft_answer,
	pending_answer_source, pending_answer_updated, last_message, official_answer_id, next_turn, created, updated`

func scanQuestion(s scanner) (*models.Question, error) {
	var (
		q          models.Question
		tagsJSON   string
		authorUID  sql.NullString
		authorName sql.NullString
		status     string
		hasDraft   int
		source     sql.NullString
		pendingAt  sql.NullInt64
		lastMsg    sql.NullInt64
		official   sql.NullString
		created    int64
		updated    int64
	)
	if err := s.Scan(&q.ID, &q.Title, &q.Body, &tagsJSON, &authorUID, &authorName, &status, &hasDraft,
		&source, &pendingAt, &lastMsg, &official, &q.NextTurn, &created, &updated); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(tagsJSON), &q.Tags); err != nil {
		return nil, fmt.Errorf("decode tags of question %s: %w", q.ID, err)
	}
	q.AuthorUID = authorUID.String
	q.AuthorName = authorName.String
	q.Status = models.QuestionStatus(status)
	q.HasDraftAnswer = hasDraft != 0
	if source.Valid {
		role := models.Role(source.String)
		q.PendingAnswerSource = &role
	}
	q.PendingAnswerUpdatedAt = timePtr(pendingAt)
	q.LastMessageAt = timePtr(lastMsg)
	q.OfficialAnswerID = stringPtr(official)
	q.CreatedAt = fromMillis(created)
	q.UpdatedAt = fromMillis(updated)
	return &q, nil
}

func getQuestion(ctx context.Context, qr db.Querier, id string) (*models.Question, error) {
	q, err := scanQuestion(qr.QueryRowContext(ctx, `SELECT `+questionColumns+` FROM questions WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get question %s: %w", id, err)
	}
	return q, nil
}

func (r *SQLiteRepo) GetQuestion(ctx context.Context, id string) (*models.Question, error) {
	return getQuestion(ctx, r.conn.GetConn(), id)
}

// ListQuestions returns questions newest first; an empty status lists all.
func (r *SQLiteRepo) ListQuestions(ctx context.Context, status models.QuestionStatus, limit int) ([]models.Question, error) {
	if limit <= 0 {
		limit = 50
	}

	var (
		rows *sql.Rows
		err  error
	)
	if status == "" {
		rows, err = r.conn.QueryRows(ctx, `SELECT `+questionColumns+` FROM questions ORDER BY created DESC, id LIMIT ?`, limit)
	} else {
		rows, err = r.conn.QueryRows(ctx, `SELECT `+questionColumns+` FROM questions WHERE status = ? ORDER BY created DESC, id LIMIT ?`, string(status), limit)
	}
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	defer rows.Close()

	out := []models.Question{}
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *q)
	}

	return out, rows.Err()
}

func insertQuestion(ctx context.Context, qr db.Querier, q *models.Question) error {
	if q == nil {
		return fmt.Errorf("question is nil")
	}
	tags, err := encodeTags(q.Tags)
	if err != nil {
		return fmt.Errorf("encode tags: %w", err)
	}

	var source any
	if q.PendingAnswerSource != nil {
		source = string(*q.PendingAnswerSource)
	}

	_, err = qr.ExecContext(ctx, `INSERT INTO questions (id, title, body, tags_json, author_uid, author_name, status,
		has_draft_answer, pending_answer_source, pending_answer_updated, last_message, official_answer_id, next_turn, created, updated)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		q.ID, q.Title, q.Body, tags, q.AuthorUID, q.AuthorName, string(q.Status), boolInt(q.HasDraftAnswer),
		source, nullMillis(q.PendingAnswerUpdatedAt), nullMillis(q.LastMessageAt), nullString(q.OfficialAnswerID),
		q.NextTurn, millis(q.CreatedAt), millis(q.UpdatedAt))
	if err != nil {
		return fmt.Errorf("insert question: %w", err)
	}
	return nil
}

// updateQuestion rewrites every mutable column. next_turn is owned by nextTurn
// and is never written here.
func updateQuestion(ctx context.Context, qr db.Querier, q *models.Question) error {
	if q == nil {
		return fmt.Errorf("question is nil")
	}
	tags, err := encodeTags(q.Tags)
	if err != nil {
		return fmt.Errorf("encode tags: %w", err)
	}

	var source any
	if q.PendingAnswerSource != nil {
		source = string(*q.PendingAnswerSource)
	}

	res, err := qr.ExecContext(ctx, `UPDATE questions SET title = ?, body = ?, tags_json = ?, status = ?, has_draft_answer = ?,
		pending_answer_source = ?, pending_answer_updated = ?, last_message = ?, official_answer_id = ?, updated = ?
		WHERE id = ?`,
		q.Title, q.Body, tags, string(q.Status), boolInt(q.HasDraftAnswer), source,
		nullMillis(q.PendingAnswerUpdatedAt), nullMillis(q.LastMessageAt), nullString(q.OfficialAnswerID),
		millis(q.UpdatedAt), q.ID)
	if err != nil {
		return fmt.Errorf("update question %s: %w", q.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.ErrNotFound
	}
	return nil
}

// deleteQuestion removes the question and its messages. Training samples are
// offline records and survive.
func deleteQuestion(ctx context.Context, qr db.Querier, id string) error {
	if _, err := qr.ExecContext(ctx, `DELETE FROM messages WHERE question_id = ?`, id); err != nil {
		return fmt.Errorf("delete messages of %s: %w", id, err)
	}
	if _, err := qr.ExecContext(ctx, `DELETE FROM questions WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete question %s: %w", id, err)
	}
	return nil
}

func nextTurn(ctx context.Context, qr db.Querier, questionID string) (int64, error) {
	var turn int64
	err := qr.QueryRowContext(ctx, `UPDATE questions SET next_turn = next_turn + 1 WHERE id = ? RETURNING next_turn - 1`, questionID).Scan(&turn)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, models.ErrNotFound
		}
		return 0, fmt.Errorf("allocate turn for %s: %w", questionID, err)
	}
	return turn, nil
}
