package board

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	ErrNoRoot               = errors.New("no workspace root bound")
	ErrNonePending          = errors.New("no unresolved human messages")
	ErrCancelled            = errors.New("cancelled")
	ErrInvalidPayload       = errors.New("invalid payload")
	ErrNotFound             = errors.New("not found")
	ErrRevisionConflict     = errors.New("revision conflict")
	ErrConfirmationRequired = errors.New("confirmation required")
)

type ConflictError struct {
	ExpectedRevision int
	CurrentRevision  int
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("revision conflict: expected %d, stored %d", e.ExpectedRevision, e.CurrentRevision)
}

func (e *ConflictError) Is(target error) bool {
	return target == ErrRevisionConflict
}

type Owner string

const (
	OwnerHuman Owner = "human"
	OwnerAI    Owner = "ai"
)

type Lane string

const (
	LaneTodo     Lane = "todo"
	LaneProgress Lane = "progress"
	LaneDone     Lane = "done"
)

type Status string

const (
	StatusTodo     Status = "todo"
	StatusProgress Status = "progress"
	StatusDone     Status = "done"
	StatusBlocked  Status = "blocked"
)

type Priority string

const (
	PriorityP0 Priority = "p0"
	PriorityP1 Priority = "p1"
	PriorityP2 Priority = "p2"
)

type Task struct {
	ID        string   `json:"id"`
	Title     string   `json:"title"`
	Note      string   `json:"note,omitempty"`
	Effort    string   `json:"effort"`
	Milestone string   `json:"milestone,omitempty"`
	Owner     Owner    `json:"owner"`
	Lane      Lane     `json:"lane"`
	Status    Status   `json:"status"`
	Priority  Priority `json:"priority"`
	CreatedAt string   `json:"createdAt"`
}

type Message struct {
	ID        string `json:"id"`
	From      Owner  `json:"from"`
	To        Owner  `json:"to"`
	Type      string `json:"type"`
	Title     string `json:"title"`
	Body      string `json:"body"`
	CreatedAt string `json:"createdAt"`
	Resolved  bool   `json:"resolved"`
	InReplyTo string `json:"inReplyTo,omitempty"`
}

// Document is the whole board for one workspace root. The on-disk file is
// the durable source of truth; in-memory copies are advisory until written.
type Document struct {
	Revision  int       `json:"revision"`
	UpdatedAt string    `json:"updatedAt"`
	Tasks     []Task    `json:"tasks"`
	Messages  []Message `json:"messages"`
}

func (d Document) Clone() Document {
	clone := d
	clone.Tasks = append([]Task(nil), d.Tasks...)
	clone.Messages = append([]Message(nil), d.Messages...)
	return clone
}

// OpType tags a view-originated operation. Dispatch is an exhaustive switch
// per tag, not a string-keyed table.
type OpType string

const (
	OpRequestState         OpType = "requestState"
	OpSaveState            OpType = "saveState"
	OpOpenStateFile        OpType = "openStateFile"
	OpProcessHumanMessages OpType = "processHumanMessages"
	OpSeedRoadmap          OpType = "seedRoadmap"
	OpAdvanceTask          OpType = "advanceTask"
	OpToggleBlocked        OpType = "toggleBlocked"
	OpValidate             OpType = "validate"
)

type Operation struct {
	Type    OpType          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type PushType string

const (
	PushState PushType = "state"
	PushInfo  PushType = "info"
)

type Push struct {
	Type    PushType `json:"type"`
	Payload any      `json:"payload"`
}

type SeedPayload struct {
	Confirm bool `json:"confirm"`
}

type TaskPayload struct {
	TaskID string `json:"taskId"`
}

type ReplyPayload struct {
	MessageID string `json:"messageId"`
	Reply     string `json:"reply"`
}

type Logger interface {
	Printf(format string, args ...any)
}
