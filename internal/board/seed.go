package board

import "time"

// SeedDocument builds the illustrative starting board used on first run and
// for an explicit roadmap reset. It spans every lane, owner, and priority so
// a fresh panel has something of each kind to show.
func SeedDocument(now time.Time) Document {
	ts := now.UTC().Format(time.RFC3339Nano)
	return Document{
		Revision:  1,
		UpdatedAt: ts,
		Tasks: []Task{
			{
				ID:        NewTaskID(),
				Title:     "Sketch the board layout",
				Effort:    "2h",
				Milestone: "M1",
				Owner:     OwnerHuman,
				Lane:      LaneDone,
				Status:    StatusDone,
				Priority:  PriorityP1,
				CreatedAt: ts,
			},
			{
				ID:        NewTaskID(),
				Title:     "Wire up the state file",
				Note:      "one JSON document per workspace root",
				Effort:    "4h",
				Milestone: "M1",
				Owner:     OwnerAI,
				Lane:      LaneDone,
				Status:    StatusDone,
				Priority:  PriorityP0,
				CreatedAt: ts,
			},
			{
				ID:        NewTaskID(),
				Title:     "React to external file edits",
				Effort:    "1d",
				Milestone: "M1",
				Owner:     OwnerAI,
				Lane:      LaneProgress,
				Status:    StatusProgress,
				Priority:  PriorityP1,
				CreatedAt: ts,
			},
			{
				ID:        NewTaskID(),
				Title:     "Work through the message backlog",
				Note:      "waiting on replies from the human side",
				Effort:    DefaultEffort,
				Milestone: "M2",
				Owner:     OwnerHuman,
				Lane:      LaneProgress,
				Status:    StatusBlocked,
				Priority:  PriorityP2,
				CreatedAt: ts,
			},
			{
				ID:        NewTaskID(),
				Title:     "Ship the seeded roadmap",
				Effort:    DefaultEffort,
				Milestone: "M3",
				Owner:     OwnerAI,
				Lane:      LaneTodo,
				Status:    StatusTodo,
				Priority:  PriorityP2,
				CreatedAt: ts,
			},
		},
		Messages: []Message{
			{
				ID:        NewMessageID(),
				From:      OwnerAI,
				To:        OwnerHuman,
				Type:      "note",
				Title:     "Board is ready",
				Body:      "Seeded the roadmap. Edit cards in the panel or change board.json directly; both sides stay in sync.",
				CreatedAt: ts,
				Resolved:  false,
			},
		},
	}
}
