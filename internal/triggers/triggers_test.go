package triggers_test

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dbfs "github.com/garnizeh/qna/db"
	"github.com/garnizeh/qna/internal/ai"
	"github.com/garnizeh/qna/internal/auth"
	"github.com/garnizeh/qna/internal/config"
	dbpkg "github.com/garnizeh/qna/internal/db"
	"github.com/garnizeh/qna/internal/jobs"
	"github.com/garnizeh/qna/internal/lifecycle"
	imodels "github.com/garnizeh/qna/internal/models"
	sqlite "github.com/garnizeh/qna/internal/repository/sqlite"
	"github.com/garnizeh/qna/internal/training"
	"github.com/garnizeh/qna/internal/triggers"
	"github.com/garnizeh/qna/pkg/models"
)

var (
	alice = auth.Identity{UID: "u-alice", Name: "Alice", Role: models.RoleUser}
	admin = auth.Identity{UID: "u-admin", Name: "Support", Role: models.RoleAdmin}
)

type stubCollaborator struct {
	calls int32
	text  string
}

func (s *stubCollaborator) Name() string { return "stub" }

func (s *stubCollaborator) Generate(ctx context.Context, p ai.Prompt) (string, error) {
	atomic.AddInt32(&s.calls, 1)
	return s.text, nil
}

type harness struct {
	repo       *sqlite.SQLiteRepo
	svc        *lifecycle.Service
	collab     *stubCollaborator
	trigger    *triggers.DraftTrigger
	dispatcher *triggers.Dispatcher
}

func newHarness(t *testing.T, collector triggers.Collector) *harness {
	t.Helper()
	ctx := context.Background()
	d, err := dbpkg.New(ctx, filepath.Join(t.TempDir(), "qna.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })
	require.NoError(t, dbpkg.Migrate(ctx, d, dbfs.Migrations, dbfs.SeedFiles))

	repo := sqlite.New(d, nil)
	svc := lifecycle.NewService(repo, nil)
	collab := &stubCollaborator{text: "Refunds take five business days."}
	drafter := ai.NewDrafter(config.DraftingConfig{Timeout: time.Second, RatePerSecond: 100, Burst: 100}, collab, repo)
	loader, err := ai.NewLoader(ctx, repo)
	require.NoError(t, err)

	if collector == nil {
		collector = training.NewCollector(repo, repo, nil)
	}
	trigger := triggers.NewDraftTrigger(repo, svc, drafter, 20, nil)
	return &harness{
		repo:       repo,
		svc:        svc,
		collab:     collab,
		trigger:    trigger,
		dispatcher: triggers.NewDispatcher(trigger, collector, loader, nil),
	}
}

// deliver runs every queued job through the dispatcher until the queue is
// empty and returns the handled jobs.
func (h *harness) deliver(t *testing.T) []*imodels.BackgroundJob {
	t.Helper()
	ctx := context.Background()
	handlers := h.dispatcher.Handlers()
	var out []*imodels.BackgroundJob
	for {
		j, err := h.repo.FetchNext(ctx)
		require.NoError(t, err)
		if j == nil {
			return out
		}
		require.NoError(t, handlers[j.Type](ctx, j))
		j.Status = "done"
		require.NoError(t, h.repo.UpdateJob(ctx, j))
		out = append(out, j)
	}
}

func (h *harness) ask(t *testing.T) *models.Question {
	t.Helper()
	q, err := h.svc.CreateQuestion(context.Background(), alice, lifecycle.QuestionInput{Title: "Refund", Body: "Where is my refund?", Tags: []string{"billing"}})
	require.NoError(t, err)
	return q
}

func TestNewQuestionGetsDraftAndSample(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	q := h.ask(t)

	handled := h.deliver(t)
	// the question, then the draft it produced
	require.Len(t, handled, 2)

	got, err := h.svc.GetQuestion(ctx, q.ID)
	require.NoError(t, err)
	assert.Equal(t, models.QuestionPending, got.Status)
	assert.True(t, got.HasDraftAnswer)
	assert.Equal(t, models.RoleAI, *got.PendingAnswerSource)

	msgs, err := h.svc.ListMessages(ctx, admin, q.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	draft := msgs[1]
	assert.Equal(t, int64(1), draft.Turn)
	assert.Equal(t, "Refunds take five business days.", draft.Content)
	assert.True(t, draft.AIGenerated)

	sample, err := h.repo.GetTrainingSample(ctx, models.TrainingSampleID(q.ID, draft.ID))
	require.NoError(t, err)
	require.NotNil(t, sample)
	var doc training.Sample
	require.NoError(t, json.Unmarshal(sample.Document, &doc))
	assert.Equal(t, models.StatusDraft, doc.LastStatus)
	assert.Len(t, doc.Conversation, 2)

	// approving updates the sample
	_, err = h.svc.ApproveMessage(ctx, admin, q.ID, draft.ID, nil)
	require.NoError(t, err)
	h.deliver(t)
	sample, err = h.repo.GetTrainingSample(ctx, models.TrainingSampleID(q.ID, draft.ID))
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(sample.Document, &doc))
	assert.Equal(t, models.StatusApproved, doc.LastStatus)
}

func TestRedeliveryDoesNotDuplicateDrafts(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	q := h.ask(t)

	j, err := h.repo.FetchNext(ctx)
	require.NoError(t, err)
	require.NoError(t, h.dispatcher.HandleCreated(ctx, j))
	require.NoError(t, h.dispatcher.HandleCreated(ctx, j))

	msgs, err := h.svc.ListMessages(ctx, admin, q.ID)
	require.NoError(t, err)
	assert.Len(t, msgs, 2)
	assert.Equal(t, int32(1), atomic.LoadInt32(&h.collab.calls))
}

func TestDraftPreconditions(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name  string
		setup func(t *testing.T, h *harness, q *models.Question)
	}{
		{"locked", func(t *testing.T, h *harness, q *models.Question) {
			_, err := h.svc.Lock(ctx, admin, q.ID)
			require.NoError(t, err)
		}},
		{"answered", func(t *testing.T, h *harness, q *models.Question) {
			_, err := h.svc.AppendMessage(ctx, admin, q.ID, lifecycle.MessageInput{Content: "done", Kind: models.KindAnswer})
			require.NoError(t, err)
		}},
		{"draft exists", func(t *testing.T, h *harness, q *models.Question) {
			_, err := h.svc.AppendMessage(ctx, admin, q.ID, lifecycle.MessageInput{Content: "wip", Kind: models.KindAnswer, Draft: true})
			require.NoError(t, err)
		}},
		{"deleted", func(t *testing.T, h *harness, q *models.Question) {
			require.NoError(t, h.svc.DeleteQuestion(ctx, admin, q.ID))
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, nil)
			q := h.ask(t)
			tt.setup(t, h, q)

			m, err := h.trigger.Run(ctx, q.ID)
			require.NoError(t, err)
			assert.Nil(t, m)
			assert.Zero(t, atomic.LoadInt32(&h.collab.calls))
		})
	}
}

func TestFollowUpOnAnsweredThreadGetsDraft(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	q := h.ask(t)
	h.deliver(t)

	msgs, err := h.svc.ListMessages(ctx, admin, q.ID)
	require.NoError(t, err)
	_, err = h.svc.ApproveMessage(ctx, admin, q.ID, msgs[1].ID, nil)
	require.NoError(t, err)
	_, err = h.svc.AppendMessage(ctx, alice, q.ID, lifecycle.MessageInput{Content: "Still nothing.", Kind: models.KindQuestion})
	require.NoError(t, err)
	h.deliver(t)

	got, err := h.svc.GetQuestion(ctx, q.ID)
	require.NoError(t, err)
	assert.Equal(t, models.QuestionPending, got.Status)
	assert.Equal(t, int32(2), atomic.LoadInt32(&h.collab.calls))
}

type racingWriter struct{}

func (racingWriter) InsertDraft(ctx context.Context, qid, content string) (*models.Message, error) {
	return nil, models.ErrDraftExists
}

func TestLostRaceIsBenign(t *testing.T) {
	h := newHarness(t, nil)
	q := h.ask(t)
	drafter := ai.NewDrafter(config.DraftingConfig{Disabled: true}, nil, nil)

	tr := triggers.NewDraftTrigger(h.repo, racingWriter{}, drafter, 0, nil)
	m, err := tr.Run(context.Background(), q.ID)
	assert.NoError(t, err)
	assert.Nil(t, m)
}

func TestPreviewUsesFallbackWhenDisabled(t *testing.T) {
	h := newHarness(t, nil)
	q := h.ask(t)
	drafter := ai.NewDrafter(config.DraftingConfig{Disabled: true}, h.collab, nil)
	tr := triggers.NewDraftTrigger(h.repo, h.svc, drafter, 0, nil)

	d, err := tr.Preview(context.Background(), q.ID)
	require.NoError(t, err)
	assert.Equal(t, ai.SourceFallback, d.Source)
	assert.Contains(t, d.Text, "Hi Alice,")
	assert.Contains(t, d.Text, ai.FallbackDisclaimer)

	_, err = tr.Preview(context.Background(), "missing")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

type failingCollector struct{ calls int32 }

func (f *failingCollector) Collect(ctx context.Context, qid, mid string) error {
	atomic.AddInt32(&f.calls, 1)
	return errors.New("disk full")
}

func TestCollectorFailuresAreSwallowed(t *testing.T) {
	fc := &failingCollector{}
	h := newHarness(t, fc)
	h.ask(t)

	h.deliver(t)
	assert.Equal(t, int32(1), atomic.LoadInt32(&fc.calls))
}

func TestMalformedPayloadsArePermanent(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	valid := `{"id":"m1","questionId":"q1","content":"x","role":"user","kind":"question","status":"approved","turn":0,"aiGenerated":false,"createdAt":"2026-01-01T00:00:00Z","updatedAt":"2026-01-01T00:00:00Z"}`
	tests := map[string]string{
		"not json":        `{`,
		"missing after":   `{"question_id":"q1","message_id":"m1"}`,
		"schema mismatch": `{"question_id":"q1","message_id":"m1","after":{"id":"m1","questionId":"q1","bogus":true}}`,
		"id mismatch":     `{"question_id":"q1","message_id":"m2","after":` + valid + `}`,
		"bad before":      `{"question_id":"q1","message_id":"m1","before":{"id":1},"after":` + valid + `}`,
	}
	for name, payload := range tests {
		t.Run(name, func(t *testing.T) {
			j := &imodels.BackgroundJob{ID: 1, Type: lifecycle.JobMessageUpdated, Payload: []byte(payload)}
			err := h.dispatcher.HandleUpdated(ctx, j)
			require.Error(t, err)
			assert.True(t, jobs.IsPermanent(err), "%v", err)
		})
	}
}

func TestTriggers(t *testing.T) {
	tests := []struct {
		m    models.Message
		want bool
	}{
		{models.Message{Kind: models.KindQuestion, Role: models.RoleUser, Status: models.StatusApproved}, true},
		{models.Message{Kind: models.KindQuestion, Role: models.RoleAdmin, Status: models.StatusApproved}, true},
		{models.Message{Kind: models.KindQuestion, Role: models.RoleAI, Status: models.StatusApproved}, false},
		{models.Message{Kind: models.KindQuestion, Role: models.RoleUser, Status: models.StatusDraft}, false},
		{models.Message{Kind: models.KindAnswer, Role: models.RoleAdmin, Status: models.StatusApproved}, false},
		{models.Message{Kind: models.KindNote, Role: models.RoleAdmin, Status: models.StatusApproved}, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, triggers.Triggers(&tt.m), "%+v", tt.m)
	}
}

func TestWorkerPoolDeliversEndToEnd(t *testing.T) {
	h := newHarness(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool := jobs.NewWorkerPool(h.repo, h.dispatcher.Handlers(), nil, 2)
	pool.SetPollInterval(10 * time.Millisecond)
	pool.Start(ctx)
	defer pool.Stop()

	q := h.ask(t)
	require.Eventually(t, func() bool {
		got, err := h.svc.GetQuestion(context.Background(), q.ID)
		return err == nil && got.HasDraftAnswer
	}, 5*time.Second, 20*time.Millisecond)
}
