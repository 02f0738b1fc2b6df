// Package jobs delivers queued background jobs to their handlers at least
// once, retrying failures with exponential backoff and parking jobs that keep
// failing in the dead-letter table.
package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/garnizeh/qna/internal/models"
)

// Handler processes one job. A nil error marks it done.
type Handler func(ctx context.Context, j *models.BackgroundJob) error

// ErrMaxAttempts indicates the job reached max attempts
var ErrMaxAttempts = errors.New("max attempts reached")

type permanentError struct{ err error }

func (e permanentError) Error() string { return e.err.Error() }
func (e permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying; the job goes straight to the
// dead-letter table.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanentError{err: err}
}

// IsPermanent reports whether err was wrapped with Permanent.
func IsPermanent(err error) bool {
	var pe permanentError
	return errors.As(err, &pe)
}

// Decode unmarshals the job payload into v. Decoding failures are permanent.
func Decode(j *models.BackgroundJob, v any) error {
	if err := json.Unmarshal(j.Payload, v); err != nil {
		return Permanent(err)
	}
	return nil
}

// BackoffDuration returns exponential backoff duration for attempt n
func BackoffDuration(attempt int) time.Duration {
	if attempt <= 0 {
		return time.Second
	}
	if attempt > 16 {
		attempt = 16
	}
	d := time.Duration(1<<uint(attempt)) * time.Second
	max := 5 * time.Minute
	if d > max {
		return max
	}
	return d
}
