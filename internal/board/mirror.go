package board

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// MirrorBackend receives a snapshot of every successfully written document.
// Mirroring is write-behind and best-effort: the backing file stays the
// source of truth and a mirror failure never fails the write.
type MirrorBackend interface {
	Save(doc Document) error
	Load() (*Document, error)
}

type mirrorCloser interface {
	Close() error
}

func CloseMirror(mirror MirrorBackend) error {
	if closer, ok := mirror.(mirrorCloser); ok && closer != nil {
		return closer.Close()
	}
	return nil
}

type JSONFileMirror struct {
	Path string
}

func NewJSONFileMirror(path string) *JSONFileMirror {
	return &JSONFileMirror{Path: strings.TrimSpace(path)}
}

func (m *JSONFileMirror) Save(doc Document) error {
	if m == nil || strings.TrimSpace(m.Path) == "" {
		return nil
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	dir := filepath.Dir(m.Path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return writeFileAtomic(m.Path, data, 0o644)
}

func (m *JSONFileMirror) Load() (*Document, error) {
	if m == nil || strings.TrimSpace(m.Path) == "" {
		return nil, nil
	}
	data, err := os.ReadFile(m.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

type InMemoryMirror struct {
	mu       sync.Mutex
	snapshot *Document
}

func NewInMemoryMirror() *InMemoryMirror {
	return &InMemoryMirror{}
}

func (m *InMemoryMirror) Save(doc Document) error {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := doc.Clone()
	m.snapshot = &clone
	return nil
}

func (m *InMemoryMirror) Load() (*Document, error) {
	if m == nil {
		return nil, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.snapshot == nil {
		return nil, nil
	}
	clone := m.snapshot.Clone()
	return &clone, nil
}

type MirrorFactory func(dsn string) (MirrorBackend, error)

var mirrorFactoryRegistry = struct {
	mu        sync.RWMutex
	factories map[string]MirrorFactory
}{
	factories: map[string]MirrorFactory{},
}

func RegisterMirrorFactory(scheme string, factory MirrorFactory) {
	scheme = normalizeMirrorScheme(scheme)
	if scheme == "" || factory == nil {
		return
	}
	mirrorFactoryRegistry.mu.Lock()
	defer mirrorFactoryRegistry.mu.Unlock()
	mirrorFactoryRegistry.factories[scheme] = factory
}

func lookupMirrorFactory(scheme string) (MirrorFactory, bool) {
	scheme = normalizeMirrorScheme(scheme)
	mirrorFactoryRegistry.mu.RLock()
	defer mirrorFactoryRegistry.mu.RUnlock()
	factory, ok := mirrorFactoryRegistry.factories[scheme]
	return factory, ok
}

func normalizeMirrorScheme(scheme string) string {
	return strings.ToLower(strings.TrimSpace(scheme))
}

// BuildMirrorFromDSN selects a mirror backend by DSN scheme: file:// for a
// JSON snapshot, memory:// for tests, postgres:// for a database table.
// An empty DSN means no mirror.
func BuildMirrorFromDSN(dsn string) (MirrorBackend, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, nil
	}
	parsed, err := url.Parse(dsn)
	if err != nil {
		return nil, err
	}
	scheme := normalizeMirrorScheme(parsed.Scheme)
	if factory, ok := lookupMirrorFactory(scheme); ok {
		return factory(dsn)
	}
	switch scheme {
	case "", "file":
		path, pathErr := mirrorDSNPath(parsed, dsn)
		if pathErr != nil {
			return nil, pathErr
		}
		return NewJSONFileMirror(path), nil
	case "memory", "mem", "inmem":
		return NewInMemoryMirror(), nil
	case "postgres", "postgresql":
		return NewPostgresMirror(dsn)
	default:
		return nil, fmt.Errorf("unsupported mirror scheme: %s", scheme)
	}
}

func mirrorDSNPath(parsed *url.URL, dsn string) (string, error) {
	if parsed.Scheme == "" {
		return dsn, nil
	}
	path := parsed.Path
	if parsed.Host != "" {
		path = filepath.Join(parsed.Host, path)
	}
	if strings.TrimSpace(path) == "" {
		return "", fmt.Errorf("mirror DSN %q has no path", dsn)
	}
	return path, nil
}
