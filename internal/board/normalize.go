package board

import (
	"encoding/json"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
)

const DefaultEffort = "n/a"

type rawDocument struct {
	Revision  json.RawMessage `json:"revision"`
	UpdatedAt json.RawMessage `json:"updatedAt"`
	Tasks     json.RawMessage `json:"tasks"`
	Messages  json.RawMessage `json:"messages"`
}

// Normalize turns arbitrary decoded input into a structurally valid
// Document. It never fails: missing or mistyped top-level fields fall back
// to defaults, and individually malformed tasks/messages are kept as far as
// they decode. Deep validation is the schema diagnostics' job, not ours.
func Normalize(raw []byte) Document {
	return NormalizeAt(raw, time.Now())
}

func NormalizeAt(raw []byte, now time.Time) Document {
	doc := Document{
		Revision:  1,
		UpdatedAt: now.UTC().Format(time.RFC3339Nano),
		Tasks:     []Task{},
		Messages:  []Message{},
	}
	var decoded rawDocument
	_ = json.Unmarshal(raw, &decoded)

	if len(decoded.Revision) > 0 {
		var revision float64
		if err := json.Unmarshal(decoded.Revision, &revision); err == nil &&
			!math.IsNaN(revision) && !math.IsInf(revision, 0) {
			doc.Revision = int(revision)
		}
	}
	if len(decoded.UpdatedAt) > 0 {
		var updatedAt string
		if err := json.Unmarshal(decoded.UpdatedAt, &updatedAt); err == nil {
			doc.UpdatedAt = updatedAt
		}
	}
	if len(decoded.Tasks) > 0 {
		var tasks []Task
		_ = json.Unmarshal(decoded.Tasks, &tasks)
		if tasks != nil {
			doc.Tasks = tasks
		}
	}
	if len(decoded.Messages) > 0 {
		var messages []Message
		_ = json.Unmarshal(decoded.Messages, &messages)
		if messages != nil {
			doc.Messages = messages
		}
	}
	return fillDefaults(doc)
}

// NormalizeDocument is the typed equivalent of Normalize, used on the write
// path where the caller already holds a Document.
func NormalizeDocument(doc Document, now time.Time) Document {
	if doc.Revision < 1 {
		doc.Revision = 1
	}
	if strings.TrimSpace(doc.UpdatedAt) == "" {
		doc.UpdatedAt = now.UTC().Format(time.RFC3339Nano)
	}
	if doc.Tasks == nil {
		doc.Tasks = []Task{}
	}
	if doc.Messages == nil {
		doc.Messages = []Message{}
	}
	return fillDefaults(doc)
}

// fillDefaults centralizes the display defaults so every consumer sees
// fully populated tasks instead of re-deriving them at render time.
func fillDefaults(doc Document) Document {
	for i := range doc.Tasks {
		task := &doc.Tasks[i]
		if task.Lane == "" {
			task.Lane = LaneTodo
		}
		if task.Status == "" {
			task.Status = statusForLane(task.Lane)
		}
		if task.Priority == "" {
			task.Priority = PriorityP1
		}
		if strings.TrimSpace(task.Effort) == "" {
			task.Effort = DefaultEffort
		}
	}
	return doc
}

func NewTaskID() string {
	return newID("task")
}

func NewMessageID() string {
	return newID("msg")
}

func newID(prefix string) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")
	return prefix + "_" + suffix[:12]
}
