// Package training turns answered conversations into denormalized samples
// for offline model training.
package training

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/garnizeh/qna/pkg/models"
	"github.com/garnizeh/qna/pkg/repository"
)

type Source interface {
	repository.QuestionRepo
	repository.MessageRepo
}

type QuestionSnapshot struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	Body       string    `json:"body"`
	Tags       []string  `json:"tags"`
	AuthorUID  *string   `json:"authorUid"`
	AuthorName *string   `json:"authorName"`
	CreatedAt  time.Time `json:"createdAt"`
}

type AnswerSnapshot struct {
	ID          string               `json:"id"`
	Content     string               `json:"content"`
	Role        models.Role          `json:"role"`
	Status      models.MessageStatus `json:"status"`
	AIGenerated bool                 `json:"aiGenerated"`
	ApprovedAt  *time.Time           `json:"approvedAt"`
	ApprovedBy  *string              `json:"approvedBy"`
	CreatedAt   time.Time            `json:"createdAt"`
	UpdatedAt   time.Time            `json:"updatedAt"`
}

type Turn struct {
	ID          string               `json:"id"`
	Kind        models.Kind          `json:"kind"`
	Role        models.Role          `json:"role"`
	Status      models.MessageStatus `json:"status"`
	Content     string               `json:"content"`
	AIGenerated bool                 `json:"aiGenerated"`
	Turn        int64                `json:"turn"`
	CreatedAt   time.Time            `json:"createdAt"`
	ApprovedAt  *time.Time           `json:"approvedAt"`
	ApprovedBy  *string              `json:"approvedBy"`
}

// Sample is the document stored under questionId_messageId.
type Sample struct {
	Question     QuestionSnapshot     `json:"question"`
	Answer       AnswerSnapshot       `json:"answer"`
	Conversation []Turn               `json:"conversation"`
	LastStatus   models.MessageStatus `json:"lastStatus"`
	CollectedAt  time.Time            `json:"collectedAt"`
}

// Build assembles the sample of answer a. Messages are ordered by turn, then
// creation time.
func Build(q *models.Question, a *models.Message, msgs []models.Message, now time.Time) Sample {
	sorted := make([]models.Message, len(msgs))
	copy(sorted, msgs)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Less(&sorted[j]) })

	conv := make([]Turn, 0, len(sorted))
	for _, m := range sorted {
		conv = append(conv, Turn{
			ID: m.ID, Kind: m.Kind, Role: m.Role, Status: m.Status, Content: m.Content,
			AIGenerated: m.AIGenerated, Turn: m.Turn, CreatedAt: m.CreatedAt,
			ApprovedAt: m.ApprovedAt, ApprovedBy: m.ApprovedBy,
		})
	}

	tags := q.Tags
	if tags == nil {
		tags = []string{}
	}

	return Sample{
		Question: QuestionSnapshot{
			ID: q.ID, Title: q.Title, Body: q.Body, Tags: tags,
			AuthorUID: optional(q.AuthorUID), AuthorName: optional(q.AuthorName), CreatedAt: q.CreatedAt,
		},
		Answer: AnswerSnapshot{
			ID: a.ID, Content: a.Content, Role: a.Role, Status: a.Status, AIGenerated: a.AIGenerated,
			ApprovedAt: a.ApprovedAt, ApprovedBy: a.ApprovedBy, CreatedAt: a.CreatedAt, UpdatedAt: now,
		},
		Conversation: conv,
		LastStatus:   a.Status,
		CollectedAt:  now,
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

type Collector struct {
	source  Source
	samples repository.TrainingRepo
	logger  *slog.Logger
	now     func() time.Time
}

func NewCollector(source Source, samples repository.TrainingRepo, logger *slog.Logger) *Collector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Collector{source: source, samples: samples, logger: logger, now: time.Now}
}

// Collect upserts the sample for answer mid of question qid. A question or
// message that no longer exists is logged and skipped.
func (c *Collector) Collect(ctx context.Context, qid, mid string) error {
	q, err := c.source.GetQuestion(ctx, qid)
	if err != nil {
		return fmt.Errorf("load question %s: %w", qid, err)
	}
	if q == nil {
		c.logger.Warn("training: question not found", slog.String("question_id", qid), slog.String("message_id", mid))
		return nil
	}
	msgs, err := c.source.ListMessages(ctx, qid)
	if err != nil {
		return fmt.Errorf("load conversation %s: %w", qid, err)
	}

	var answer *models.Message
	for i := range msgs {
		if msgs[i].ID == mid {
			answer = &msgs[i]
			break
		}
	}
	if answer == nil {
		c.logger.Warn("training: answer not found", slog.String("question_id", qid), slog.String("message_id", mid))
		return nil
	}

	doc, err := json.Marshal(Build(q, answer, msgs, c.now().UTC()))
	if err != nil {
		return fmt.Errorf("encode sample: %w", err)
	}

	var changes []ChangeRecord
	err = c.samples.MergeTrainingSample(ctx, qid, mid, func(existing json.RawMessage) (json.RawMessage, error) {
		merged, ch, err := Merge(existing, doc)
		changes = ch
		return merged, err
	})
	if err != nil {
		return err
	}

	c.logger.Info("training: sample collected",
		slog.String("question_id", qid), slog.String("message_id", mid),
		slog.String("status", string(answer.Status)), slog.Int("changes", len(changes)))
	return nil
}
