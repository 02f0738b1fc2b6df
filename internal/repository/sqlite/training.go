package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/garnizeh/qna/pkg/models"
)

func (r *SQLiteRepo) GetTrainingSample(ctx context.Context, id string) (*models.TrainingSample, error) {
	row := r.conn.QueryRow(ctx, `SELECT id, question_id, message_id, document_json, collected FROM training_samples WHERE id = ?`, id)
	var (
		s         models.TrainingSample
		doc       string
		collected int64
	)
	if err := row.Scan(&s.ID, &s.QuestionID, &s.MessageID, &doc, &collected); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get training sample %s: %w", id, err)
	}
	s.Document = json.RawMessage(doc)
	s.CollectedAt = fromMillis(collected)
	return &s, nil
}

// MergeTrainingSample reads the stored document, lets merge combine it with
// the new one and writes the result back in a single transaction.
func (r *SQLiteRepo) MergeTrainingSample(ctx context.Context, questionID, messageID string, merge func(existing json.RawMessage) (json.RawMessage, error)) error {
	id := models.TrainingSampleID(questionID, messageID)

	return r.conn.WithTx(ctx, func(tx *sql.Tx) error {
		var existing json.RawMessage
		var doc string
		err := tx.QueryRowContext(ctx, `SELECT document_json FROM training_samples WHERE id = ?`, id).Scan(&doc)
		switch {
		case errors.Is(err, sql.ErrNoRows):
		case err != nil:
			return fmt.Errorf("read training sample %s: %w", id, err)
		default:
			existing = json.RawMessage(doc)
		}

		merged, err := merge(existing)
		if err != nil {
			return fmt.Errorf("merge training sample %s: %w", id, err)
		}

		_, err = tx.ExecContext(ctx, `INSERT INTO training_samples (id, question_id, message_id, document_json, collected)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT (id) DO UPDATE SET document_json = excluded.document_json, collected = excluded.collected`,
			id, questionID, messageID, string(merged), now())
		if err != nil {
			return fmt.Errorf("upsert training sample %s: %w", id, err)
		}
		return nil
	})
}
