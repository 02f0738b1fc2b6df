package mock

import (
	"context"
	"encoding/json"
	"sync"

	imodels "github.com/garnizeh/qna/internal/models"
	"github.com/garnizeh/qna/pkg/models"
	"github.com/garnizeh/qna/pkg/repository"
)

// Test helpers and mocks
type Mocks struct {
	UserRepo     *mockUserRepo
	JobQueue     *mockJobQueue
	TrainingRepo *mockTrainingRepo
}

var (
	_ repository.UserRepo     = (*mockUserRepo)(nil)
	_ repository.JobQueue     = (*mockJobQueue)(nil)
	_ repository.TrainingRepo = (*mockTrainingRepo)(nil)
)

func NewMocks() *Mocks {
	return &Mocks{
		UserRepo:     &mockUserRepo{users: map[string]*models.User{}},
		JobQueue:     &mockJobQueue{},
		TrainingRepo: &mockTrainingRepo{docs: map[string]json.RawMessage{}},
	}
}

type mockUserRepo struct {
	mu        sync.Mutex
	users     map[string]*models.User
	CreateErr error
	GetErr    error
}

func (m *mockUserRepo) CreateUser(ctx context.Context, u *models.User) error {
	if m.CreateErr != nil {
		return m.CreateErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if u.Role == "" {
		u.Role = models.RoleUser
	}
	cp := *u
	m.users[u.ID] = &cp
	return nil
}

func (m *mockUserRepo) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	if m.GetErr != nil {
		return nil, m.GetErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[id]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, nil
}

func (m *mockUserRepo) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	if m.GetErr != nil {
		return nil, m.GetErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

// mockJobQueue records enqueued jobs and hands them out in order.
type mockJobQueue struct {
	mu         sync.Mutex
	Jobs       []*imodels.BackgroundJob
	Dead       []*imodels.BackgroundJob
	EnqueueErr error
	next       int
}

func (m *mockJobQueue) Enqueue(ctx context.Context, j *imodels.BackgroundJob) (int64, error) {
	if m.EnqueueErr != nil {
		return 0, m.EnqueueErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *j
	cp.ID = int64(len(m.Jobs) + 1)
	cp.Status = "queued"
	m.Jobs = append(m.Jobs, &cp)
	return cp.ID, nil
}

func (m *mockJobQueue) FetchNext(ctx context.Context) (*imodels.BackgroundJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.next >= len(m.Jobs) {
		return nil, nil
	}
	j := m.Jobs[m.next]
	m.next++
	j.Status = "running"
	return j, nil
}

func (m *mockJobQueue) UpdateJob(ctx context.Context, j *imodels.BackgroundJob) error {
	return nil
}

func (m *mockJobQueue) MoveToDeadLetter(ctx context.Context, j *imodels.BackgroundJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *j
	m.Dead = append(m.Dead, &cp)
	return nil
}

// DeadJobs returns a copy of the dead-lettered jobs.
func (m *mockJobQueue) DeadJobs() []imodels.BackgroundJob {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]imodels.BackgroundJob, 0, len(m.Dead))
	for _, j := range m.Dead {
		out = append(out, *j)
	}
	return out
}

// Types returns the types of every enqueued job in order.
func (m *mockJobQueue) Types() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.Jobs))
	for _, j := range m.Jobs {
		out = append(out, j.Type)
	}
	return out
}

type mockTrainingRepo struct {
	mu       sync.Mutex
	docs     map[string]json.RawMessage
	MergeErr error
}

func (m *mockTrainingRepo) GetTrainingSample(ctx context.Context, id string) (*models.TrainingSample, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[id]
	if !ok {
		return nil, nil
	}
	return &models.TrainingSample{ID: id, Document: doc}, nil
}

func (m *mockTrainingRepo) MergeTrainingSample(ctx context.Context, questionID, messageID string, merge func(existing json.RawMessage) (json.RawMessage, error)) error {
	if m.MergeErr != nil {
		return m.MergeErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	id := models.TrainingSampleID(questionID, messageID)
	out, err := merge(m.docs[id])
	if err != nil {
		return err
	}
	m.docs[id] = out
	return nil
}
