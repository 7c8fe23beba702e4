package board

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

const (
	stateDirName  = ".boardfile"
	stateFileName = "board.json"
)

// Store owns the canonical document for one workspace root. The backing
// file is pretty-printed JSON with a trailing newline, replaced atomically
// via a temp file and rename so a concurrent Read never sees a torn write.
type Store struct {
	mu     sync.Mutex
	root   string
	path   string
	mirror MirrorBackend
	logger Logger
	clock  func() time.Time
}

type StoreOptions struct {
	Root   string
	Mirror MirrorBackend
	Logger Logger
	Clock  func() time.Time
}

func NewStore(root string) *Store {
	return NewStoreWithOptions(StoreOptions{Root: root})
}

func NewStoreWithOptions(opts StoreOptions) *Store {
	root := filepath.Clean(strings.TrimSpace(opts.Root))
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Store{
		root:   root,
		path:   filepath.Join(root, stateDirName, stateFileName),
		mirror: opts.Mirror,
		logger: opts.Logger,
		clock:  clock,
	}
}

func (s *Store) Root() string {
	return s.root
}

// Location is the deterministic path of the backing file, used for I/O and
// for identity comparisons when the active workspace root changes.
func (s *Store) Location() string {
	return s.path
}

// Read loads and decodes the backing file. A missing, unreadable, or
// unparseable file is treated as "no state yet": the seed document is
// written out and returned instead. Decode problems short of unparseable
// JSON go through the normalizer. Only the recovery write can fail.
func (s *Store) Read() (Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readLocked()
}

func (s *Store) readLocked() (Document, error) {
	data, err := os.ReadFile(s.path)
	if err != nil || !json.Valid(data) {
		return s.writeLocked(SeedDocument(s.clock()))
	}
	return NormalizeAt(data, s.clock()), nil
}

// Write normalizes the document, stamps updatedAt (never below the value
// passed in), and persists. The returned document is the new authoritative
// copy; callers must not keep using their input.
func (s *Store) Write(doc Document) (Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeLocked(doc)
}

// WriteIfRevision is the opt-in optimistic guard over the plain
// last-write-wins Write: it rejects the save when the stored revision no
// longer matches what the caller based its edit on.
func (s *Store) WriteIfRevision(doc Document, expected int) (Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, err := s.readLocked()
	if err != nil {
		return Document{}, err
	}
	if current.Revision != expected {
		return Document{}, &ConflictError{ExpectedRevision: expected, CurrentRevision: current.Revision}
	}
	return s.writeLocked(doc)
}

func (s *Store) writeLocked(doc Document) (Document, error) {
	now := s.clock().UTC()
	doc = NormalizeDocument(doc, now)
	stamp := now
	if prev, err := time.Parse(time.RFC3339Nano, doc.UpdatedAt); err == nil && prev.After(now) {
		stamp = prev.UTC()
	}
	doc.UpdatedAt = stamp.Format(time.RFC3339Nano)

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return Document{}, err
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return Document{}, err
	}
	data = append(data, '\n')
	if err := writeFileAtomic(s.path, data, 0o644); err != nil {
		return Document{}, err
	}
	if s.mirror != nil {
		if err := s.mirror.Save(doc); err != nil {
			s.logf("mirror save failed: %v", err)
		}
	}
	return doc, nil
}

func (s *Store) logf(format string, args ...any) {
	if s.logger == nil {
		return
	}
	s.logger.Printf(format, args...)
}

func writeFileAtomic(path string, data []byte, mode os.FileMode) error {
	dir := filepath.Dir(path)
	tmpFile, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmpFile.Name()
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()
	if _, err := tmpFile.Write(data); err != nil {
		_ = tmpFile.Close()
		return err
	}
	if err := tmpFile.Chmod(mode); err != nil {
		_ = tmpFile.Close()
		return err
	}
	if err := tmpFile.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		return err
	}
	committed = true
	return nil
}
