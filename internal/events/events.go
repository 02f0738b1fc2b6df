// Package events fans out change notifications for questions so that
// subscribers can re-read the conversation after every committed write.
package events

import (
	"context"
	"time"
)

type Type string

const (
	MessageCreated  Type = "message.created"
	MessageUpdated  Type = "message.updated"
	MessageDeleted  Type = "message.deleted"
	QuestionUpdated Type = "question.updated"
	QuestionDeleted Type = "question.deleted"
)

type Event struct {
	Type       Type      `json:"type"`
	QuestionID string    `json:"questionId"`
	MessageID  string    `json:"messageId,omitempty"`
	At         time.Time `json:"at"`
}

// Broker delivers events to the subscribers of a question. Delivery is best
// effort: a slow subscriber may miss events, never block publishers.
type Broker interface {
	Publish(ctx context.Context, e Event) error
	// Subscribe returns the event channel and a cancel func. The channel is
	// closed after cancel is called or ctx is done.
	Subscribe(ctx context.Context, questionID string) (<-chan Event, func(), error)
	Close() error
}

// subscriberBuffer is the per-subscriber backlog before events are dropped.
const subscriberBuffer = 16
