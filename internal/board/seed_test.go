package board

import (
	"testing"
	"time"
)

func TestSeedDocumentShape(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	doc := SeedDocument(now)

	if doc.Revision != 1 {
		t.Errorf("revision = %d, want 1", doc.Revision)
	}
	if len(doc.Tasks) != 5 {
		t.Fatalf("len(tasks) = %d, want 5", len(doc.Tasks))
	}

	lanes := map[Lane]int{}
	owners := map[Owner]int{}
	milestones := map[string]int{}
	doneByMilestone := map[string]int{}
	for _, task := range doc.Tasks {
		if task.ID == "" || task.Title == "" {
			t.Errorf("task missing id or title: %+v", task)
		}
		lanes[task.Lane]++
		owners[task.Owner]++
		milestones[task.Milestone]++
		if task.Lane == LaneDone {
			doneByMilestone[task.Milestone]++
		}
	}
	for _, lane := range []Lane{LaneTodo, LaneProgress, LaneDone} {
		if lanes[lane] == 0 {
			t.Errorf("no task in lane %q", lane)
		}
	}
	for _, owner := range []Owner{OwnerHuman, OwnerAI} {
		if owners[owner] == 0 {
			t.Errorf("no task owned by %q", owner)
		}
	}
	if len(milestones) != 3 {
		t.Errorf("milestone count = %d, want 3", len(milestones))
	}
	if doneByMilestone["M1"] != 2 {
		t.Errorf("M1 done = %d, want 2", doneByMilestone["M1"])
	}
	if doneByMilestone["M2"] != 0 {
		t.Errorf("M2 done = %d, want 0", doneByMilestone["M2"])
	}

	if len(doc.Messages) != 1 {
		t.Fatalf("len(messages) = %d, want 1", len(doc.Messages))
	}
	msg := doc.Messages[0]
	if msg.From != OwnerAI || msg.To != OwnerHuman || msg.Resolved {
		t.Errorf("seed message should be an unresolved ai to human note: %+v", msg)
	}
}

func TestSeedDocumentIsNormalizationFixedPoint(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	doc := SeedDocument(now)
	normalized := NormalizeDocument(doc.Clone(), now)
	if len(normalized.Tasks) != len(doc.Tasks) {
		t.Fatal("normalization changed the seed task count")
	}
	for i := range doc.Tasks {
		if normalized.Tasks[i] != doc.Tasks[i] {
			t.Errorf("task %d changed under normalization: %+v vs %+v", i, doc.Tasks[i], normalized.Tasks[i])
		}
	}
}
