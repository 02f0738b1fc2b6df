package jobs_test

import (
	"context"
	"errors"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	dbfs "github.com/garnizeh/qna/db"
	"github.com/garnizeh/qna/internal/db"
	"github.com/garnizeh/qna/internal/jobs"
	"github.com/garnizeh/qna/internal/models"
	"github.com/garnizeh/qna/internal/repository/sqlite"
	"github.com/garnizeh/qna/pkg/repository/mock"
)

func TestBackoffDuration(t *testing.T) {
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, time.Second},
		{1, 2 * time.Second},
		{3, 8 * time.Second},
		{9, 5 * time.Minute},
		{64, 5 * time.Minute},
	}
	for _, tt := range tests {
		if got := jobs.BackoffDuration(tt.attempt); got != tt.want {
			t.Errorf("BackoffDuration(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestPermanent(t *testing.T) {
	base := errors.New("bad payload")
	err := jobs.Permanent(base)
	if !jobs.IsPermanent(err) || !errors.Is(err, base) {
		t.Fatalf("expected a permanent error wrapping base, got %v", err)
	}
	if jobs.IsPermanent(base) {
		t.Fatalf("plain errors are not permanent")
	}
	if jobs.Permanent(nil) != nil {
		t.Fatalf("Permanent(nil) must be nil")
	}

	var v struct{ A int }
	if err := jobs.Decode(&models.BackgroundJob{Payload: []byte(`{`)}, &v); !jobs.IsPermanent(err) {
		t.Fatalf("decode failures must be permanent, got %v", err)
	}
}

func startPool(t *testing.T, q *mock.Mocks, handlers map[string]jobs.Handler) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	pool := jobs.NewWorkerPool(q.JobQueue, handlers, nil, 1)
	pool.SetPollInterval(5 * time.Millisecond)
	pool.Start(ctx)
	t.Cleanup(func() {
		pool.Stop()
		cancel()
	})
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met in time")
}

func TestWorkerPool_DeadLettersUnknownAndPermanent(t *testing.T) {
	m := mock.NewMocks()
	ctx := context.Background()
	_, _ = m.JobQueue.Enqueue(ctx, &models.BackgroundJob{Type: "unknown", MaxAttempts: 5})
	_, _ = m.JobQueue.Enqueue(ctx, &models.BackgroundJob{Type: "bad", MaxAttempts: 5})
	_, _ = m.JobQueue.Enqueue(ctx, &models.BackgroundJob{Type: "panics", MaxAttempts: 1})

	startPool(t, m, map[string]jobs.Handler{
		"bad": func(ctx context.Context, j *models.BackgroundJob) error {
			return jobs.Permanent(errors.New("malformed"))
		},
		"panics": func(ctx context.Context, j *models.BackgroundJob) error {
			panic("boom")
		},
	})

	waitFor(t, func() bool { return len(m.JobQueue.DeadJobs()) == 3 })
	dead := m.JobQueue.DeadJobs()
	if dead[0].LastError != "no handler" || dead[1].Attempts != 1 {
		t.Fatalf("unexpected dead letters: %+v %+v", dead[0], dead[1])
	}
}

func TestWorkerPool_ProcessesSQLiteQueue(t *testing.T) {
	ctx := context.Background()
	d, err := db.New(ctx, filepath.Join(t.TempDir(), "jobs.db"), nil)
	if err != nil {
		t.Fatalf("db.New: %v", err)
	}
	defer d.Close()
	if err := db.Migrate(ctx, d, dbfs.Migrations, dbfs.SeedFiles); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	repo := sqlite.New(d, nil)

	var calls int32
	handled := make(chan struct{}, 1)
	handlers := map[string]jobs.Handler{
		"test": func(ctx context.Context, j *models.BackgroundJob) error {
			if atomic.AddInt32(&calls, 1) == 1 {
				return errors.New("transient")
			}
			handled <- struct{}{}
			return nil
		},
	}
	pool := jobs.NewWorkerPool(repo, handlers, nil, 2)
	pool.SetPollInterval(10 * time.Millisecond)
	pool.Start(ctx)
	defer pool.Stop()

	id, err := repo.Enqueue(ctx, &models.BackgroundJob{Type: "test", Payload: []byte(`{"foo":"bar"}`), Priority: 10, MaxAttempts: 3})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	// the first attempt fails and is rescheduled two seconds out
	select {
	case <-handled:
	case <-time.After(5 * time.Second):
		t.Fatalf("job %d was not retried", id)
	}
	if n := atomic.LoadInt32(&calls); n != 2 {
		t.Fatalf("expected 2 calls, got %d", n)
	}
}
