package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/garnizeh/qna/internal/db"
	"github.com/garnizeh/qna/pkg/models"
)

const messageColumns = `id, question_id, content, role, kind, status, turn, ai_generated, in_reply_to,
	author_uid, author_name, created, updated, approved, approved_by`

// canonical conversation order
const messageOrder = ` ORDER BY turn ASC, created ASC`

func scanMessage(s scanner) (*models.Message, error) {
	var (
		m          models.Message
		role       string
		kind       string
		status     string
		aiGen      int
		inReplyTo  sql.NullString
		authorUID  sql.NullString
		authorName sql.NullString
		created    int64
		updated    int64
		approved   sql.NullInt64
		approvedBy sql.NullString
	)
	if err := s.Scan(&m.ID, &m.QuestionID, &m.Content, &role, &kind, &status, &m.Turn, &aiGen, &inReplyTo,
		&authorUID, &authorName, &created, &updated, &approved, &approvedBy); err != nil {
		return nil, err
	}
	m.Role = models.Role(role)
	m.Kind = models.Kind(kind)
	m.Status = models.MessageStatus(status)
	m.AIGenerated = aiGen != 0
	m.InReplyTo = stringPtr(inReplyTo)
	m.AuthorUID = authorUID.String
	m.AuthorName = authorName.String
	m.CreatedAt = fromMillis(created)
	m.UpdatedAt = fromMillis(updated)
	m.ApprovedAt = timePtr(approved)
	m.ApprovedBy = stringPtr(approvedBy)
	return &m, nil
}

func getMessage(ctx context.Context, qr db.Querier, questionID, messageID string) (*models.Message, error) {
	m, err := scanMessage(qr.QueryRowContext(ctx, `SELECT `+messageColumns+` FROM messages WHERE question_id = ? AND id = ?`, questionID, messageID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get message %s/%s: %w", questionID, messageID, err)
	}
	return m, nil
}

func listMessages(ctx context.Context, qr db.Querier, query string, args ...any) ([]models.Message, error) {
	rows, err := qr.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	out := []models.Message{}
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

func (r *SQLiteRepo) GetMessage(ctx context.Context, questionID, messageID string) (*models.Message, error) {
	return getMessage(ctx, r.conn.GetConn(), questionID, messageID)
}

func (r *SQLiteRepo) ListMessages(ctx context.Context, questionID string) ([]models.Message, error) {
	return listMessages(ctx, r.conn.GetConn(), `SELECT `+messageColumns+` FROM messages WHERE question_id = ?`+messageOrder, questionID)
}

func (r *SQLiteRepo) ListApprovedMessages(ctx context.Context, questionID string) ([]models.Message, error) {
	return listMessages(ctx, r.conn.GetConn(), `SELECT `+messageColumns+` FROM messages WHERE question_id = ? AND status = 'approved'`+messageOrder, questionID)
}

// ListVisibleMessages returns approved messages plus everything uid authored.
func (r *SQLiteRepo) ListVisibleMessages(ctx context.Context, questionID, uid string) ([]models.Message, error) {
	return listMessages(ctx, r.conn.GetConn(), `SELECT `+messageColumns+` FROM messages
		WHERE question_id = ? AND (status = 'approved' OR (author_uid IS NOT NULL AND author_uid <> '' AND author_uid = ?))`+messageOrder,
		questionID, uid)
}

// ListHistory returns the first limit messages of the conversation.
func (r *SQLiteRepo) ListHistory(ctx context.Context, questionID string, limit int) ([]models.Message, error) {
	if limit <= 0 {
		limit = 20
	}
	return listMessages(ctx, r.conn.GetConn(), `SELECT `+messageColumns+` FROM messages WHERE question_id = ?`+messageOrder+` LIMIT ?`, questionID, limit)
}

func insertMessage(ctx context.Context, qr db.Querier, m *models.Message) error {
	if m == nil {
		return fmt.Errorf("message is nil")
	}
	_, err := qr.ExecContext(ctx, `INSERT INTO messages (id, question_id, content, role, kind, status, turn, ai_generated, in_reply_to,
		author_uid, author_name, created, updated, approved, approved_by)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.QuestionID, m.Content, string(m.Role), string(m.Kind), string(m.Status), m.Turn, boolInt(m.AIGenerated),
		nullString(m.InReplyTo), m.AuthorUID, m.AuthorName, millis(m.CreatedAt), millis(m.UpdatedAt), nullMillis(m.ApprovedAt), nullString(m.ApprovedBy))
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

// updateMessage writes content and status fields; turn and kind are immutable.
func updateMessage(ctx context.Context, qr db.Querier, m *models.Message) error {
	if m == nil {
		return fmt.Errorf("message is nil")
	}
	res, err := qr.ExecContext(ctx, `UPDATE messages SET content = ?, status = ?, updated = ?, approved = ?, approved_by = ?
		WHERE question_id = ? AND id = ?`,
		m.Content, string(m.Status), millis(m.UpdatedAt), nullMillis(m.ApprovedAt), nullString(m.ApprovedBy), m.QuestionID, m.ID)
	if err != nil {
		return fmt.Errorf("update message %s: %w", m.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.ErrNotFound
	}
	return nil
}

func deleteMessage(ctx context.Context, qr db.Querier, questionID, messageID string) error {
	res, err := qr.ExecContext(ctx, `DELETE FROM messages WHERE question_id = ? AND id = ?`, questionID, messageID)
	if err != nil {
		return fmt.Errorf("delete message %s: %w", messageID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.ErrNotFound
	}
	return nil
}

func newestAnswer(ctx context.Context, qr db.Querier, questionID string, status models.MessageStatus) (*models.Message, error) {
	m, err := scanMessage(qr.QueryRowContext(ctx, `SELECT `+messageColumns+` FROM messages
		WHERE question_id = ? AND kind = 'answer' AND status = ?
		ORDER BY created DESC, turn DESC LIMIT 1`, questionID, string(status)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("newest %s answer of %s: %w", status, questionID, err)
	}
	return m, nil
}

func supersedeApproved(ctx context.Context, qr db.Querier, questionID, keepID string, at int64) ([]string, error) {
	rows, err := qr.QueryContext(ctx, `UPDATE messages SET status = 'superseded', updated = ?
		WHERE question_id = ? AND kind = 'answer' AND status = 'approved' AND id <> ?
		RETURNING id`, at, questionID, keepID)
	if err != nil {
		return nil, fmt.Errorf("supersede answers of %s: %w", questionID, err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
