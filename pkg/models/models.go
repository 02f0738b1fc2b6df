package models

import (
	"encoding/json"
	"time"
)

// Domain models matching the database schema in db/migrations.

// Role is the author role of a message and the role claim of an identity.
type Role string

const (
	RoleGuest Role = "guest"
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
	RoleAI    Role = "ai"
)

// Valid reports whether r may author a message.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAdmin || r == RoleAI
}

// NormalizeRole maps an identity claim onto the three identity roles,
// defaulting to the least privileged one.
func NormalizeRole(s string) Role {
	switch Role(s) {
	case RoleUser, RoleAdmin:
		return Role(s)
	default:
		return RoleGuest
	}
}

type Kind string

const (
	KindQuestion Kind = "question"
	KindAnswer   Kind = "answer"
	KindNote     Kind = "note"
)

func (k Kind) Valid() bool {
	return k == KindQuestion || k == KindAnswer || k == KindNote
}

type MessageStatus string

const (
	StatusDraft      MessageStatus = "draft"
	StatusApproved   MessageStatus = "approved"
	StatusRejected   MessageStatus = "rejected"
	StatusSuperseded MessageStatus = "superseded"
)

func (s MessageStatus) Valid() bool {
	switch s {
	case StatusDraft, StatusApproved, StatusRejected, StatusSuperseded:
		return true
	}
	return false
}

type QuestionStatus string

const (
	QuestionOpen     QuestionStatus = "open"
	QuestionPending  QuestionStatus = "pending"
	QuestionAnswered QuestionStatus = "answered"
	QuestionLocked   QuestionStatus = "locked"
)

func (s QuestionStatus) Valid() bool {
	switch s {
	case QuestionOpen, QuestionPending, QuestionAnswered, QuestionLocked:
		return true
	}
	return false
}

// ValidCombination rejects role/kind pairs that cannot occur: the AI never
// asks, users never answer and only admins leave notes.
func ValidCombination(role Role, kind Kind) bool {
	if !role.Valid() || !kind.Valid() {
		return false
	}
	switch kind {
	case KindQuestion:
		return role != RoleAI
	case KindAnswer:
		return role != RoleUser
	case KindNote:
		return role == RoleAdmin
	}
	return false
}

type Question struct {
	ID                     string         `json:"id"`
	Title                  string         `json:"title"`
	Body                   string         `json:"body"`
	Tags                   []string       `json:"tags"`
	AuthorUID              string         `json:"authorUid,omitempty"`
	AuthorName             string         `json:"authorName,omitempty"`
	Status                 QuestionStatus `json:"status"`
	HasDraftAnswer         bool           `json:"hasDraftAnswer"`
	PendingAnswerSource    *Role          `json:"pendingAnswerSource"`
	PendingAnswerUpdatedAt *time.Time     `json:"pendingAnswerUpdatedAt,omitempty"`
	LastMessageAt          *time.Time     `json:"lastMessageAt,omitempty"`
	OfficialAnswerID       *string        `json:"officialAnswerId"`
	NextTurn               int64          `json:"-"`
	CreatedAt              time.Time      `json:"createdAt"`
	UpdatedAt              time.Time      `json:"updatedAt"`
}

// Derived holds the question fields owned by reconciliation.
type Derived struct {
	Status                 QuestionStatus
	HasDraftAnswer         bool
	PendingAnswerSource    *Role
	PendingAnswerUpdatedAt *time.Time
	OfficialAnswerID       *string
}

// Derived returns the reconciliation-owned fields of q.
func (q *Question) Derived() Derived {
	return Derived{
		Status:                 q.Status,
		HasDraftAnswer:         q.HasDraftAnswer,
		PendingAnswerSource:    q.PendingAnswerSource,
		PendingAnswerUpdatedAt: q.PendingAnswerUpdatedAt,
		OfficialAnswerID:       q.OfficialAnswerID,
	}
}

type Message struct {
	ID          string        `json:"id"`
	QuestionID  string        `json:"questionId"`
	Content     string        `json:"content"`
	Role        Role          `json:"role"`
	Kind        Kind          `json:"kind"`
	Status      MessageStatus `json:"status"`
	Turn        int64         `json:"turn"`
	AIGenerated bool          `json:"aiGenerated"`
	InReplyTo   *string       `json:"inReplyTo,omitempty"`
	AuthorUID   string        `json:"authorUid,omitempty"`
	AuthorName  string        `json:"authorName,omitempty"`
	CreatedAt   time.Time     `json:"createdAt"`
	UpdatedAt   time.Time     `json:"updatedAt"`
	ApprovedAt  *time.Time    `json:"approvedAt,omitempty"`
	ApprovedBy  *string       `json:"approvedBy,omitempty"`
}

// IsDraftAnswer reports whether m keeps its question pending.
func (m *Message) IsDraftAnswer() bool {
	return m.Kind == KindAnswer && m.Status == StatusDraft
}

// Less orders messages by turn, then creation time.
func (m *Message) Less(o *Message) bool {
	if m.Turn != o.Turn {
		return m.Turn < o.Turn
	}
	return m.CreatedAt.Before(o.CreatedAt)
}

type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	DisplayName  string    `json:"displayName"`
	Role         Role      `json:"role"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// TrainingSample is the denormalized record consumed by offline training.
// Document holds the merged JSON body keyed by question, answer and conversation.
type TrainingSample struct {
	ID          string          `json:"id"`
	QuestionID  string          `json:"questionId"`
	MessageID   string          `json:"messageId"`
	Document    json.RawMessage `json:"document"`
	CollectedAt time.Time       `json:"collectedAt"`
}

// TrainingSampleID returns the storage key of the sample for an answer.
func TrainingSampleID(questionID, messageID string) string {
	return questionID + "_" + messageID
}
