package board

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"strings"
	"sync"
	"testing"
	"time"
)

type recordingSink struct {
	mu     sync.Mutex
	states []Document
	infos  []string
}

func (s *recordingSink) PushState(doc Document) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states = append(s.states, doc)
}

func (s *recordingSink) PushInfo(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.infos = append(s.infos, text)
}

func (s *recordingSink) stateCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.states)
}

func (s *recordingSink) lastState(t *testing.T) Document {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.states) == 0 {
		t.Fatal("no state pushed")
	}
	return s.states[len(s.states)-1]
}

func (s *recordingSink) lastInfo(t *testing.T) string {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.infos) == 0 {
		t.Fatal("no info pushed")
	}
	return s.infos[len(s.infos)-1]
}

func newTestController(t *testing.T) (*Controller, *recordingSink) {
	t.Helper()
	controller := NewController(ControllerOptions{})
	if err := controller.BindRoot(t.TempDir()); err != nil {
		t.Fatalf("BindRoot: %v", err)
	}
	t.Cleanup(controller.Close)
	sink := &recordingSink{}
	controller.RegisterSink(sink)
	return controller, sink
}

func TestHandleWithoutRootIsAdvisory(t *testing.T) {
	controller := NewController(ControllerOptions{})
	sink := &recordingSink{}
	controller.RegisterSink(sink)

	if err := controller.Handle(context.Background(), Operation{Type: OpRequestState}); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if !strings.Contains(sink.lastInfo(t), "no workspace root") {
		t.Errorf("info = %q", sink.lastInfo(t))
	}
	if sink.stateCount() != 0 {
		t.Error("state pushed with no root bound")
	}
}

func TestHandleRequestStatePushes(t *testing.T) {
	controller, sink := newTestController(t)

	if err := controller.Handle(context.Background(), Operation{Type: OpRequestState}); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	doc := sink.lastState(t)
	if doc.Revision != 1 || len(doc.Tasks) == 0 {
		t.Errorf("pushed document = %+v", doc)
	}
}

func TestHandleSaveStateBumpsRevisionAndPushes(t *testing.T) {
	controller, sink := newTestController(t)

	payload, _ := json.Marshal(Document{
		Revision: 4,
		Tasks:    []Task{{ID: "t1", Title: "saved"}},
	})
	if err := controller.Handle(context.Background(), Operation{Type: OpSaveState, Payload: payload}); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	doc := sink.lastState(t)
	if doc.Revision != 5 {
		t.Errorf("revision = %d, want 5", doc.Revision)
	}
	if len(doc.Tasks) != 1 || doc.Tasks[0].Title != "saved" {
		t.Errorf("tasks = %+v", doc.Tasks)
	}
}

func TestHandleSaveStateRejectsMissingPayload(t *testing.T) {
	controller, sink := newTestController(t)

	for _, payload := range []json.RawMessage{nil, json.RawMessage("null"), json.RawMessage("  ")} {
		if err := controller.Handle(context.Background(), Operation{Type: OpSaveState, Payload: payload}); err != nil {
			t.Fatalf("Handle: %v", err)
		}
	}
	if sink.stateCount() != 0 {
		t.Error("invalid payload still produced a state push")
	}
	if !strings.Contains(sink.lastInfo(t), "save ignored") {
		t.Errorf("info = %q", sink.lastInfo(t))
	}
}

func TestHandleSeedRequiresConfirmation(t *testing.T) {
	controller, sink := newTestController(t)

	if err := controller.Handle(context.Background(), Operation{Type: OpSeedRoadmap}); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if sink.stateCount() != 0 {
		t.Error("unconfirmed seed pushed state")
	}

	payload, _ := json.Marshal(SeedPayload{Confirm: true})
	if err := controller.Handle(context.Background(), Operation{Type: OpSeedRoadmap, Payload: payload}); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	doc := sink.lastState(t)
	if doc.Revision != 1 || len(doc.Tasks) != 5 {
		t.Errorf("seeded document = %+v", doc)
	}
}

func TestSeedResetsRevision(t *testing.T) {
	controller, _ := newTestController(t)
	ctx := context.Background()

	payload, _ := json.Marshal(Document{Revision: 9})
	if _, err := controller.Save(ctx, payload); err != nil {
		t.Fatalf("Save: %v", err)
	}
	doc, err := controller.Seed(ctx, true)
	if err != nil {
		t.Fatalf("Seed: %v", err)
	}
	if doc.Revision != 1 {
		t.Errorf("revision after seed = %d, want 1", doc.Revision)
	}
}

func TestHandleAdvanceTask(t *testing.T) {
	controller, sink := newTestController(t)
	ctx := context.Background()

	initial, err := controller.Snapshot(ctx)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	var todoID string
	for _, task := range initial.Tasks {
		if task.Lane == LaneTodo {
			todoID = task.ID
			break
		}
	}
	if todoID == "" {
		t.Fatal("seed has no todo task")
	}

	payload, _ := json.Marshal(TaskPayload{TaskID: todoID})
	if err := controller.Handle(ctx, Operation{Type: OpAdvanceTask, Payload: payload}); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	doc := sink.lastState(t)
	if doc.Revision != initial.Revision+1 {
		t.Errorf("revision = %d, want %d", doc.Revision, initial.Revision+1)
	}
	for _, task := range doc.Tasks {
		if task.ID == todoID && task.Lane != LaneProgress {
			t.Errorf("task %s lane = %q, want progress", todoID, task.Lane)
		}
	}
}

func TestHandleTaskOperationAdvisories(t *testing.T) {
	controller, sink := newTestController(t)
	ctx := context.Background()

	if err := controller.Handle(ctx, Operation{Type: OpAdvanceTask}); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if !strings.Contains(sink.lastInfo(t), "missing taskId") {
		t.Errorf("info = %q", sink.lastInfo(t))
	}

	payload, _ := json.Marshal(TaskPayload{TaskID: "task_missing"})
	if err := controller.Handle(ctx, Operation{Type: OpToggleBlocked, Payload: payload}); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if !strings.Contains(sink.lastInfo(t), "no task with id") {
		t.Errorf("info = %q", sink.lastInfo(t))
	}
}

func TestHandleProcessHumanMessagesNonePending(t *testing.T) {
	controller, sink := newTestController(t)

	payload, _ := json.Marshal(ReplyPayload{Reply: "hello"})
	if err := controller.Handle(context.Background(), Operation{Type: OpProcessHumanMessages, Payload: payload}); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	// seed has no pending human messages, only the outbound ai note
	if !strings.Contains(sink.lastInfo(t), "nothing to do") {
		t.Errorf("info = %q", sink.lastInfo(t))
	}
}

func TestHandleProcessHumanMessagesResolves(t *testing.T) {
	controller, sink := newTestController(t)
	ctx := context.Background()

	doc, _ := controller.Snapshot(ctx)
	doc.Messages = append(doc.Messages, Message{
		ID: "m_q", From: OwnerHuman, To: OwnerAI, Title: "Question", Body: "when?",
	})
	raw, _ := json.Marshal(doc)
	if _, err := controller.Save(ctx, raw); err != nil {
		t.Fatalf("Save: %v", err)
	}

	payload, _ := json.Marshal(ReplyPayload{MessageID: "m_q", Reply: "soon"})
	if err := controller.Handle(ctx, Operation{Type: OpProcessHumanMessages, Payload: payload}); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if !strings.Contains(sink.lastInfo(t), "resolved") {
		t.Errorf("info = %q", sink.lastInfo(t))
	}
	final := sink.lastState(t)
	found := false
	for _, msg := range final.Messages {
		if msg.InReplyTo == "m_q" {
			found = true
		}
	}
	if !found {
		t.Error("no reply message recorded")
	}
}

func TestHandleOpenStateFileUsesOpener(t *testing.T) {
	var opened string
	controller := NewController(ControllerOptions{
		Opener: func(location string) error {
			opened = location
			return nil
		},
	})
	if err := controller.BindRoot(t.TempDir()); err != nil {
		t.Fatalf("BindRoot: %v", err)
	}
	defer controller.Close()
	sink := &recordingSink{}
	controller.RegisterSink(sink)

	if err := controller.Handle(context.Background(), Operation{Type: OpOpenStateFile}); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if opened == "" || !strings.HasSuffix(opened, "board.json") {
		t.Errorf("opener got %q", opened)
	}
	if !strings.Contains(sink.lastInfo(t), opened) {
		t.Errorf("info = %q, want the location", sink.lastInfo(t))
	}
}

func TestHandleValidateReportsCleanDocument(t *testing.T) {
	controller, sink := newTestController(t)
	if err := controller.Handle(context.Background(), Operation{Type: OpValidate}); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if !strings.Contains(sink.lastInfo(t), "matches the schema") {
		t.Errorf("info = %q", sink.lastInfo(t))
	}
}

func TestHandleUnknownOperation(t *testing.T) {
	controller, sink := newTestController(t)
	if err := controller.Handle(context.Background(), Operation{Type: "frobnicate"}); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if !strings.Contains(sink.lastInfo(t), "unsupported operation") {
		t.Errorf("info = %q", sink.lastInfo(t))
	}
}

func TestSaveIfRevisionConflictSurfaces(t *testing.T) {
	controller, _ := newTestController(t)
	ctx := context.Background()

	doc, _ := controller.Snapshot(ctx)
	raw, _ := json.Marshal(doc)
	if _, err := controller.SaveIfRevision(ctx, raw, doc.Revision); err != nil {
		t.Fatalf("matching revision rejected: %v", err)
	}
	if _, err := controller.SaveIfRevision(ctx, raw, doc.Revision); !errors.Is(err, ErrRevisionConflict) {
		t.Fatalf("err = %v, want revision conflict", err)
	}
}

func TestBindRootRebindTearsDownOldSession(t *testing.T) {
	controller, sink := newTestController(t)
	ctx := context.Background()

	if err := controller.BindRoot(t.TempDir()); err != nil {
		t.Fatalf("rebind: %v", err)
	}
	if err := controller.Handle(ctx, Operation{Type: OpRequestState}); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	doc := sink.lastState(t)
	if doc.Revision != 1 {
		t.Errorf("fresh root should seed at revision 1, got %d", doc.Revision)
	}

	if err := controller.BindRoot(""); err != nil {
		t.Fatalf("unbind: %v", err)
	}
	if _, err := controller.Snapshot(ctx); !errors.Is(err, ErrNoRoot) {
		t.Fatalf("err = %v, want ErrNoRoot", err)
	}
}

func TestExternalEditPushesState(t *testing.T) {
	controller, sink := newTestController(t)
	ctx := context.Background()

	if _, err := controller.Snapshot(ctx); err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	before := sink.stateCount()

	store, _ := controller.currentStore()
	external := Document{Revision: 42, UpdatedAt: time.Now().UTC().Format(time.RFC3339Nano)}
	raw, _ := json.MarshalIndent(external, "", "  ")
	if err := os.WriteFile(store.Location(), raw, 0o644); err != nil {
		t.Fatalf("external write: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if sink.stateCount() > before && sink.lastState(t).Revision == 42 {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("no push after external edit; pushes=%d", sink.stateCount()-before)
}
