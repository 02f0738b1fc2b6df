package repository

import (
	"context"
	"encoding/json"

	imodels "github.com/garnizeh/qna/internal/models"
	"github.com/garnizeh/qna/pkg/models"
)

// Repository interfaces for domain entities. These are the public contracts
// consumers should depend on; concrete implementations live under internal/.
// Point reads return (nil, nil) when the row does not exist.

type QuestionRepo interface {
	GetQuestion(ctx context.Context, id string) (*models.Question, error)
	ListQuestions(ctx context.Context, status models.QuestionStatus, limit int) ([]models.Question, error)
}

// MessageRepo holds the read surfaces of a question's conversation. Every list
// is ordered by turn, then creation time.
type MessageRepo interface {
	GetMessage(ctx context.Context, questionID, messageID string) (*models.Message, error)
	ListMessages(ctx context.Context, questionID string) ([]models.Message, error)
	ListApprovedMessages(ctx context.Context, questionID string) ([]models.Message, error)
	ListVisibleMessages(ctx context.Context, questionID, uid string) ([]models.Message, error)
	ListHistory(ctx context.Context, questionID string, limit int) ([]models.Message, error)
}

// ThreadTx is the set of writes available inside a transaction over one or
// more questions and their messages.
type ThreadTx interface {
	GetQuestion(ctx context.Context, id string) (*models.Question, error)
	CreateQuestion(ctx context.Context, q *models.Question) error
	UpdateQuestion(ctx context.Context, q *models.Question) error
	DeleteQuestion(ctx context.Context, id string) error

	// NextTurn atomically allocates the next turn number of a question.
	NextTurn(ctx context.Context, questionID string) (int64, error)
	InsertMessage(ctx context.Context, m *models.Message) error
	GetMessage(ctx context.Context, questionID, messageID string) (*models.Message, error)
	UpdateMessage(ctx context.Context, m *models.Message) error
	DeleteMessage(ctx context.Context, questionID, messageID string) error

	// NewestAnswer returns the most recently created answer with the given status.
	NewestAnswer(ctx context.Context, questionID string, status models.MessageStatus) (*models.Message, error)
	// SupersedeApproved marks every approved answer except keepID as superseded.
	SupersedeApproved(ctx context.Context, questionID, keepID string) ([]string, error)

	// Enqueue records a background job that becomes visible on commit.
	Enqueue(ctx context.Context, j *imodels.BackgroundJob) (int64, error)
}

// ThreadStore runs fn in a single transaction. A returned error rolls back.
type ThreadStore interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context, tx ThreadTx) error) error
}

type TrainingRepo interface {
	GetTrainingSample(ctx context.Context, id string) (*models.TrainingSample, error)
	// MergeTrainingSample reads the stored document (nil when absent), passes it
	// to merge and stores the result, all in one transaction.
	MergeTrainingSample(ctx context.Context, questionID, messageID string, merge func(existing json.RawMessage) (json.RawMessage, error)) error
}

type UserRepo interface {
	CreateUser(ctx context.Context, u *models.User) error
	GetUserByID(ctx context.Context, id string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
}

type JobQueue interface {
	Enqueue(ctx context.Context, j *imodels.BackgroundJob) (int64, error)
	FetchNext(ctx context.Context) (*imodels.BackgroundJob, error)
	UpdateJob(ctx context.Context, j *imodels.BackgroundJob) error
	MoveToDeadLetter(ctx context.Context, j *imodels.BackgroundJob) error
}

type SchemaRepo interface {
	CreateSchema(ctx context.Context, version, description, schemaJSON string) (int64, error)
	GetSchemaByVersion(ctx context.Context, version string) (*imodels.Schema, error)
	ListSchemas(ctx context.Context) ([]imodels.Schema, error)
	DeleteSchema(ctx context.Context, version string) error
}

type TemplateRepo interface {
	CreateTemplate(ctx context.Context, name, version, templateText string, schemaVersion *string, metadata *string) (int64, error)
	GetTemplate(ctx context.Context, name, version string) (*imodels.Template, error)
	ListTemplates(ctx context.Context) ([]imodels.Template, error)
	DeleteTemplate(ctx context.Context, name, version string) error
}
