package board

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestReadMissingFileSeeds(t *testing.T) {
	root := t.TempDir()
	store := NewStore(root)

	doc, err := store.Read()
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if doc.Revision != 1 {
		t.Errorf("revision = %d, want 1", doc.Revision)
	}
	if len(doc.Tasks) == 0 || len(doc.Messages) == 0 {
		t.Error("seed document should carry tasks and messages")
	}

	data, err := os.ReadFile(store.Location())
	if err != nil {
		t.Fatalf("seed file not written: %v", err)
	}
	var onDisk Document
	if err := json.Unmarshal(data, &onDisk); err != nil {
		t.Fatalf("seed file not valid JSON: %v", err)
	}
	if onDisk.Revision != doc.Revision || len(onDisk.Tasks) != len(doc.Tasks) {
		t.Error("returned document diverges from the file")
	}
}

func TestReadCorruptFileSeeds(t *testing.T) {
	root := t.TempDir()
	store := NewStore(root)
	if err := os.MkdirAll(filepath.Dir(store.Location()), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(store.Location(), []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}

	doc, err := store.Read()
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(doc.Tasks) == 0 {
		t.Error("corrupt file should be replaced with seed content")
	}
	data, _ := os.ReadFile(store.Location())
	if !json.Valid(data) {
		t.Error("recovery did not rewrite the file")
	}
}

func TestReadPartialDocumentNormalizesWithoutRewrite(t *testing.T) {
	root := t.TempDir()
	store := NewStore(root)
	if err := os.MkdirAll(filepath.Dir(store.Location()), 0o755); err != nil {
		t.Fatal(err)
	}
	raw := []byte(`{"tasks":[{"id":"t1","title":"only"}]}`)
	if err := os.WriteFile(store.Location(), raw, 0o644); err != nil {
		t.Fatal(err)
	}

	doc, err := store.Read()
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(doc.Tasks) != 1 || doc.Tasks[0].ID != "t1" {
		t.Fatalf("partial document lost data: %+v", doc.Tasks)
	}
	data, _ := os.ReadFile(store.Location())
	if !bytes.Equal(data, raw) {
		t.Error("normalizing a readable file must not rewrite it")
	}
}

func TestWriteRoundTripIsFixedPoint(t *testing.T) {
	root := t.TempDir()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := NewStoreWithOptions(StoreOptions{Root: root, Clock: fixedClock(now)})

	first, err := store.Write(Document{
		Revision: 5,
		Tasks:    []Task{{ID: "t1", Title: "x", Owner: OwnerAI}},
	})
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	again, err := store.Read()
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	second, err := store.Write(again)
	if err != nil {
		t.Fatalf("second Write: %v", err)
	}
	if second.Revision != first.Revision || second.UpdatedAt != first.UpdatedAt ||
		len(second.Tasks) != len(first.Tasks) {
		t.Errorf("write is not a fixed point: %+v vs %+v", first, second)
	}
}

func TestWriteStampsUpdatedAtMonotonically(t *testing.T) {
	root := t.TempDir()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := NewStoreWithOptions(StoreOptions{Root: root, Clock: fixedClock(now)})

	future := now.Add(time.Hour).Format(time.RFC3339Nano)
	doc, err := store.Write(Document{Revision: 1, UpdatedAt: future})
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if doc.UpdatedAt != future {
		t.Errorf("updatedAt regressed below input: %q < %q", doc.UpdatedAt, future)
	}

	past := now.Add(-time.Hour).Format(time.RFC3339Nano)
	doc, err = store.Write(Document{Revision: 2, UpdatedAt: past})
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if doc.UpdatedAt != now.Format(time.RFC3339Nano) {
		t.Errorf("stale updatedAt kept: got %q, want %q", doc.UpdatedAt, now.Format(time.RFC3339Nano))
	}
}

func TestWriteOutputIsPrettyWithTrailingNewline(t *testing.T) {
	root := t.TempDir()
	store := NewStore(root)
	if _, err := store.Write(Document{Revision: 1}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	data, err := os.ReadFile(store.Location())
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.HasSuffix(data, []byte("\n")) {
		t.Error("file missing trailing newline")
	}
	if !bytes.Contains(data, []byte("\n  \"revision\"")) {
		t.Error("file is not two-space indented")
	}
}

func TestWriteIfRevisionConflict(t *testing.T) {
	root := t.TempDir()
	store := NewStore(root)
	written, err := store.Write(Document{Revision: 3})
	if err != nil {
		t.Fatalf("Write: %v", err)
	}

	_, err = store.WriteIfRevision(Document{Revision: 4}, written.Revision+1)
	if err == nil {
		t.Fatal("expected a conflict")
	}
	if !errors.Is(err, ErrRevisionConflict) {
		t.Fatalf("err = %v, want revision conflict", err)
	}
	var conflict *ConflictError
	if !errors.As(err, &conflict) || conflict.CurrentRevision != written.Revision {
		t.Fatalf("conflict detail = %+v", conflict)
	}

	doc, err := store.WriteIfRevision(Document{Revision: 4}, written.Revision)
	if err != nil {
		t.Fatalf("matching revision rejected: %v", err)
	}
	if doc.Revision != 4 {
		t.Errorf("revision = %d, want 4", doc.Revision)
	}
}

func TestWriteMirrorsSnapshot(t *testing.T) {
	root := t.TempDir()
	mirror := NewInMemoryMirror()
	store := NewStoreWithOptions(StoreOptions{Root: root, Mirror: mirror})

	written, err := store.Write(Document{Revision: 2, Tasks: []Task{{ID: "t1", Title: "x"}}})
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	snapshot, err := mirror.Load()
	if err != nil {
		t.Fatalf("mirror Load: %v", err)
	}
	if snapshot == nil || snapshot.Revision != written.Revision || len(snapshot.Tasks) != 1 {
		t.Errorf("mirror snapshot = %+v, want written copy", snapshot)
	}
}

type failingMirror struct{}

func (failingMirror) Save(Document) error      { return errors.New("mirror down") }
func (failingMirror) Load() (*Document, error) { return nil, errors.New("mirror down") }

func TestWriteSurvivesMirrorFailure(t *testing.T) {
	root := t.TempDir()
	store := NewStoreWithOptions(StoreOptions{Root: root, Mirror: failingMirror{}})
	if _, err := store.Write(Document{Revision: 1}); err != nil {
		t.Fatalf("mirror failure must not fail the write: %v", err)
	}
	if _, err := os.Stat(store.Location()); err != nil {
		t.Fatalf("file write skipped: %v", err)
	}
}
