package board

import (
	"context"
	"strings"
	"time"
)

// Prompter is the operator-interaction seam of the message workflow. Both
// prompts may be abandoned: ok=false means the operator cancelled, which is
// a normal early exit, not an error.
type Prompter interface {
	SelectMessage(ctx context.Context, candidates []Message) (Message, bool, error)
	PromptReply(ctx context.Context, selected Message) (string, bool, error)
}

// StaticPrompter answers both prompts from pre-supplied values, letting a
// panel envelope drive the workflow without interactive prompts. An empty
// MessageID selects the oldest pending candidate.
type StaticPrompter struct {
	MessageID string
	Reply     string
}

func (p StaticPrompter) SelectMessage(ctx context.Context, candidates []Message) (Message, bool, error) {
	if p.MessageID == "" {
		if len(candidates) == 0 {
			return Message{}, false, nil
		}
		return candidates[0], true, nil
	}
	for _, candidate := range candidates {
		if candidate.ID == p.MessageID {
			return candidate, true, nil
		}
	}
	return Message{}, false, nil
}

func (p StaticPrompter) PromptReply(ctx context.Context, selected Message) (string, bool, error) {
	reply := strings.TrimSpace(p.Reply)
	if reply == "" {
		return "", false, nil
	}
	return reply, true, nil
}

type WorkflowResult struct {
	Resolved Message
	Reply    Message
	Document Document
}

// PendingHumanMessages filters the thread down to unresolved human→ai
// messages, in document order.
func PendingHumanMessages(doc Document) []Message {
	pending := []Message{}
	for _, msg := range doc.Messages {
		if msg.From == OwnerHuman && msg.To == OwnerAI && !msg.Resolved {
			pending = append(pending, msg)
		}
	}
	return pending
}

// ProcessHumanMessages runs the resolve-and-reply workflow: pick one
// pending human→ai message, collect a reply, mark the original resolved,
// append the response, bump the revision, persist.
//
// The engine works on its snapshot from the initial read; a concurrent
// external edit between read and write loses at document granularity.
// Nothing is mutated until both prompts have completed.
func ProcessHumanMessages(ctx context.Context, store *Store, prompter Prompter) (*WorkflowResult, error) {
	doc, err := store.Read()
	if err != nil {
		return nil, err
	}
	candidates := PendingHumanMessages(doc)
	if len(candidates) == 0 {
		return nil, ErrNonePending
	}

	selected, ok, err := prompter.SelectMessage(ctx, candidates)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrCancelled
	}
	replyText, ok, err := prompter.PromptReply(ctx, selected)
	if err != nil {
		return nil, err
	}
	replyText = strings.TrimSpace(replyText)
	if !ok || replyText == "" {
		return nil, ErrCancelled
	}

	for i := range doc.Messages {
		if doc.Messages[i].ID == selected.ID {
			doc.Messages[i].Resolved = true
		}
	}
	reply := Message{
		ID:        NewMessageID(),
		From:      OwnerAI,
		To:        OwnerHuman,
		Type:      "response",
		Title:     "Re: " + selected.Title,
		Body:      replyText,
		CreatedAt: store.clock().UTC().Format(time.RFC3339Nano),
		Resolved:  false,
		InReplyTo: selected.ID,
	}
	doc.Messages = append(doc.Messages, reply)
	doc.Revision++

	written, err := store.Write(doc)
	if err != nil {
		return nil, err
	}
	return &WorkflowResult{Resolved: selected, Reply: reply, Document: written}, nil
}
