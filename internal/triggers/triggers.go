// Package triggers reacts to committed message changes delivered by the job
// queue: new questions get an AI draft and answers are collected as
// training samples. Both reactions are safe to run more than once.
package triggers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/garnizeh/qna/internal/jobs"
	"github.com/garnizeh/qna/internal/lifecycle"
	imodels "github.com/garnizeh/qna/internal/models"
	"github.com/garnizeh/qna/pkg/models"
)

// SnapshotSchema is the ai_schemas version message snapshots must match.
const SnapshotSchema = "message_snapshot.v1"

type Validator interface {
	Validate(ctx context.Context, version string, doc []byte) error
}

type Collector interface {
	Collect(ctx context.Context, qid, mid string) error
}

type Dispatcher struct {
	drafts    *DraftTrigger
	collector Collector
	validator Validator
	logger    *slog.Logger
}

// NewDispatcher wires the reactions. validator may be nil to accept any
// well-formed snapshot.
func NewDispatcher(drafts *DraftTrigger, collector Collector, validator Validator, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{drafts: drafts, collector: collector, validator: validator, logger: logger}
}

// Handlers maps the message job types onto the dispatcher.
func (d *Dispatcher) Handlers() map[string]jobs.Handler {
	return map[string]jobs.Handler{
		lifecycle.JobMessageCreated: d.HandleCreated,
		lifecycle.JobMessageUpdated: d.HandleUpdated,
	}
}

// change is a decoded and validated job payload.
type change struct {
	questionID string
	before     *models.Message
	after      models.Message
}

func (d *Dispatcher) decode(ctx context.Context, j *imodels.BackgroundJob) (*change, error) {
	var p lifecycle.ChangePayload
	if err := jobs.Decode(j, &p); err != nil {
		return nil, err
	}
	if p.QuestionID == "" || p.MessageID == "" || len(p.After) == 0 {
		return nil, jobs.Permanent(fmt.Errorf("job %d: incomplete change payload", j.ID))
	}

	c := &change{questionID: p.QuestionID}
	if err := d.snapshot(ctx, p.After, &c.after); err != nil {
		return nil, fmt.Errorf("after snapshot: %w", err)
	}
	if c.after.ID != p.MessageID || c.after.QuestionID != p.QuestionID {
		return nil, jobs.Permanent(fmt.Errorf("job %d: snapshot does not match %s/%s", j.ID, p.QuestionID, p.MessageID))
	}
	if len(p.Before) > 0 {
		c.before = &models.Message{}
		if err := d.snapshot(ctx, p.Before, c.before); err != nil {
			return nil, fmt.Errorf("before snapshot: %w", err)
		}
	}
	return c, nil
}

// snapshot validates raw against the snapshot schema and decodes it.
func (d *Dispatcher) snapshot(ctx context.Context, raw json.RawMessage, m *models.Message) error {
	if d.validator != nil {
		if err := d.validator.Validate(ctx, SnapshotSchema, raw); err != nil {
			return jobs.Permanent(err)
		}
	}
	if err := json.Unmarshal(raw, m); err != nil {
		return jobs.Permanent(err)
	}
	return nil
}

// HandleCreated drafts an answer for new questions and collects new answers.
func (d *Dispatcher) HandleCreated(ctx context.Context, j *imodels.BackgroundJob) error {
	c, err := d.decode(ctx, j)
	if err != nil {
		return err
	}

	switch {
	case Triggers(&c.after):
		if d.drafts == nil {
			return nil
		}
		if _, err := d.drafts.Run(ctx, c.questionID); err != nil {
			return err
		}
	case c.after.Kind == models.KindAnswer:
		d.collect(ctx, c)
	}
	return nil
}

// HandleUpdated collects every change of an answer.
func (d *Dispatcher) HandleUpdated(ctx context.Context, j *imodels.BackgroundJob) error {
	c, err := d.decode(ctx, j)
	if err != nil {
		return err
	}
	if c.after.Kind == models.KindAnswer {
		d.collect(ctx, c)
	}
	return nil
}

// collect never fails the job; the message write has already committed.
func (d *Dispatcher) collect(ctx context.Context, c *change) {
	if d.collector == nil {
		return
	}
	if err := d.collector.Collect(ctx, c.questionID, c.after.ID); err != nil {
		d.logger.Error("training sample collection failed",
			slog.String("question_id", c.questionID), slog.String("message_id", c.after.ID), slog.Any("err", err))
	}
}
