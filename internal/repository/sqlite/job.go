package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/garnizeh/qna/internal/db"
	"github.com/garnizeh/qna/internal/models"
)

// jobLease bounds how long a claimed job may stay running before another
// worker may claim it again.
const jobLease = 5 * time.Minute

// Enqueue inserts a job into the jobs table and returns the new ID
func (r *SQLiteRepo) Enqueue(ctx context.Context, j *models.BackgroundJob) (int64, error) {
	return enqueueJob(ctx, r.conn.GetConn(), j)
}

func enqueueJob(ctx context.Context, qr db.Querier, j *models.BackgroundJob) (int64, error) {
	if j == nil {
		return 0, fmt.Errorf("job is nil")
	}
	if j.MaxAttempts == 0 {
		j.MaxAttempts = 5
	}
	if j.ScheduledAt.IsZero() {
		j.ScheduledAt = time.Now()
	}
	ts := now()
	q := `INSERT INTO jobs(type, payload, status, attempts, max_attempts, priority, scheduled_at, created, updated) VALUES(?,?,?,?,?,?,?,?,?)`
	res, err := qr.ExecContext(ctx, q, j.Type, string(j.Payload), "queued", j.Attempts, j.MaxAttempts, j.Priority, millis(j.ScheduledAt), ts, ts)
	if err != nil {
		return 0, fmt.Errorf("enqueue failed: %w", err)
	}

	return res.LastInsertId()
}

// FetchNext claims the next available job respecting priority and schedule.
// The claim marks the row running so concurrent workers do not pick it up;
// a running job whose lease expired is claimable again.
func (r *SQLiteRepo) FetchNext(ctx context.Context) (*models.BackgroundJob, error) {
	ts := now()
	q := `UPDATE jobs SET status = 'running', updated = ?
		WHERE id = (
			SELECT id FROM jobs
			WHERE ((status IN ('queued', 'retry') AND (next_try_at IS NULL OR next_try_at <= ?))
				OR (status = 'running' AND updated <= ?))
			AND scheduled_at <= ?
			ORDER BY priority ASC, scheduled_at ASC, id ASC LIMIT 1)
		RETURNING id, type, payload, status, attempts, max_attempts, priority, scheduled_at, next_try_at, last_error, created, updated`
	row := r.conn.QueryRow(ctx, q, ts, ts, ts-jobLease.Milliseconds(), ts)
	var (
		j           models.BackgroundJob
		payload     sql.NullString
		scheduledAt int64
		nextTry     sql.NullInt64
		lastError   sql.NullString
		created     int64
		updated     int64
	)
	if err := row.Scan(&j.ID, &j.Type, &payload, &j.Status, &j.Attempts, &j.MaxAttempts, &j.Priority, &scheduledAt, &nextTry, &lastError, &created, &updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}

		return nil, fmt.Errorf("fetch next job: %w", err)
	}

	j.ScheduledAt = fromMillis(scheduledAt)
	j.Created = fromMillis(created)
	j.Updated = fromMillis(updated)
	if payload.Valid {
		j.Payload = json.RawMessage(payload.String)
	}
	j.NextTryAt = timePtr(nextTry)
	j.LastError = lastError.String

	return &j, nil
}

// UpdateJob updates attempts, status, next_try_at, last_error
func (r *SQLiteRepo) UpdateJob(ctx context.Context, j *models.BackgroundJob) error {
	q := `UPDATE jobs SET status = ?, attempts = ?, next_try_at = ?, last_error = ?, updated = ? WHERE id = ?`
	_, err := r.conn.Exec(ctx, q, j.Status, j.Attempts, nullMillis(j.NextTryAt), j.LastError, now(), j.ID)

	return err
}

// MoveToDeadLetter moves a job to dead_letter_jobs and deletes the original
func (r *SQLiteRepo) MoveToDeadLetter(ctx context.Context, j *models.BackgroundJob) error {
	return r.conn.WithTx(ctx, func(tx *sql.Tx) error {
		insert := `INSERT INTO dead_letter_jobs(job_id, type, payload, attempts, last_error, failed_at) VALUES(?,?,?,?,?,?)`
		if _, err := tx.ExecContext(ctx, insert, j.ID, j.Type, string(j.Payload), j.Attempts, j.LastError, now()); err != nil {
			return fmt.Errorf("insert dead letter: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM jobs WHERE id = ?`, j.ID); err != nil {
			return fmt.Errorf("delete job %d: %w", j.ID, err)
		}
		return nil
	})
}
