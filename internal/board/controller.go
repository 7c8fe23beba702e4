package board

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"
)

// Opener surfaces the backing file to the operator, typically by launching
// an editor. It is an external collaborator; nil means "report the path".
type Opener func(location string) error

// ViewSink is one connected view. Pushes replace the view's local copy
// entirely and may repeat; sinks must be idempotent under identical pushes.
type ViewSink interface {
	PushState(doc Document)
	PushInfo(text string)
}

type ControllerOptions struct {
	Mirror   MirrorBackend
	Logger   Logger
	Opener   Opener
	Prompter Prompter
	Clock    func() time.Time
}

type session struct {
	store   *Store
	watcher *Watcher
}

// Controller mediates between connected views and the document store bound
// to the current workspace root. The store/watcher pair lives in an
// explicit session rebuilt on every root change; there is no ambient
// package state.
type Controller struct {
	mu      sync.Mutex
	session *session
	sinks   map[ViewSink]struct{}
	opts    ControllerOptions
}

func NewController(opts ControllerOptions) *Controller {
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &Controller{
		sinks: map[ViewSink]struct{}{},
		opts:  opts,
	}
}

// BindRoot points the controller at a workspace root, tearing down any
// previous store/watcher pair first. An empty root unbinds.
func (c *Controller) BindRoot(root string) error {
	root = strings.TrimSpace(root)
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session != nil {
		if c.session.store.Root() == root && root != "" {
			return nil
		}
		c.session.watcher.Close()
		c.session = nil
	}
	if root == "" {
		return nil
	}
	store := NewStoreWithOptions(StoreOptions{
		Root:   root,
		Mirror: c.opts.Mirror,
		Logger: c.opts.Logger,
		Clock:  c.opts.Clock,
	})
	watcher, err := WatchLocation(store.Location(), c.onExternalChange, c.opts.Logger)
	if err != nil {
		return err
	}
	c.session = &session{store: store, watcher: watcher}
	return nil
}

func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session != nil {
		c.session.watcher.Close()
		c.session = nil
	}
}

func (c *Controller) RegisterSink(sink ViewSink) {
	if sink == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sinks[sink] = struct{}{}
}

func (c *Controller) UnregisterSink(sink ViewSink) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.sinks, sink)
}

func (c *Controller) currentStore() (*Store, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return nil, false
	}
	return c.session.store, true
}

// onExternalChange re-reads and re-pushes unconditionally; no diffing
// against the last-pushed state.
func (c *Controller) onExternalChange() {
	store, ok := c.currentStore()
	if !ok {
		return
	}
	doc, err := store.Read()
	if err != nil {
		c.logf("re-read after external change failed: %v", err)
		return
	}
	c.pushState(doc)
}

// Snapshot returns the current document, creating it from seed content if
// the backing file is missing or corrupt.
func (c *Controller) Snapshot(ctx context.Context) (Document, error) {
	store, ok := c.currentStore()
	if !ok {
		return Document{}, ErrNoRoot
	}
	return store.Read()
}

// Save normalizes a panel-supplied payload, bumps the revision, and
// persists last-write-wins. The returned document is authoritative.
func (c *Controller) Save(ctx context.Context, payload json.RawMessage) (Document, error) {
	store, ok := c.currentStore()
	if !ok {
		return Document{}, ErrNoRoot
	}
	if !payloadPresent(payload) {
		return Document{}, ErrInvalidPayload
	}
	doc := NormalizeAt(payload, c.opts.Clock())
	doc.Revision++
	return store.Write(doc)
}

// SaveIfRevision is Save with the optimistic revision guard, for callers
// that supply the revision their edit was based on.
func (c *Controller) SaveIfRevision(ctx context.Context, payload json.RawMessage, expected int) (Document, error) {
	store, ok := c.currentStore()
	if !ok {
		return Document{}, ErrNoRoot
	}
	if !payloadPresent(payload) {
		return Document{}, ErrInvalidPayload
	}
	doc := NormalizeAt(payload, c.opts.Clock())
	doc.Revision++
	return store.WriteIfRevision(doc, expected)
}

// Seed overwrites the document with fresh seed content. Destructive, so it
// demands explicit confirmation.
func (c *Controller) Seed(ctx context.Context, confirm bool) (Document, error) {
	store, ok := c.currentStore()
	if !ok {
		return Document{}, ErrNoRoot
	}
	if !confirm {
		return Document{}, ErrConfirmationRequired
	}
	return store.Write(SeedDocument(c.opts.Clock()))
}

// OpenStateFile makes sure a document exists, then hands the location to
// the configured opener.
func (c *Controller) OpenStateFile(ctx context.Context) (string, error) {
	store, ok := c.currentStore()
	if !ok {
		return "", ErrNoRoot
	}
	if _, err := store.Read(); err != nil {
		return "", err
	}
	location := store.Location()
	if c.opts.Opener != nil {
		if err := c.opts.Opener(location); err != nil {
			return location, err
		}
	}
	return location, nil
}

func (c *Controller) ProcessMessages(ctx context.Context, prompter Prompter) (*WorkflowResult, error) {
	store, ok := c.currentStore()
	if !ok {
		return nil, ErrNoRoot
	}
	if prompter == nil {
		prompter = c.opts.Prompter
	}
	if prompter == nil {
		return nil, ErrCancelled
	}
	result, err := ProcessHumanMessages(ctx, store, prompter)
	if err != nil {
		return nil, err
	}
	c.pushState(result.Document)
	return result, nil
}

func (c *Controller) Advance(ctx context.Context, taskID string) (Document, error) {
	return c.mutateTask(taskID, AdvanceTask)
}

func (c *Controller) ToggleBlocked(ctx context.Context, taskID string) (Document, error) {
	return c.mutateTask(taskID, ToggleBlocked)
}

func (c *Controller) mutateTask(taskID string, mutate func(Document, string) (Document, error)) (Document, error) {
	store, ok := c.currentStore()
	if !ok {
		return Document{}, ErrNoRoot
	}
	if strings.TrimSpace(taskID) == "" {
		return Document{}, ErrInvalidPayload
	}
	doc, err := store.Read()
	if err != nil {
		return Document{}, err
	}
	doc, err = mutate(doc, taskID)
	if err != nil {
		return Document{}, err
	}
	doc.Revision++
	return store.Write(doc)
}

// Validate runs schema diagnostics over the raw backing file.
func (c *Controller) Validate(ctx context.Context) ([]string, error) {
	store, ok := c.currentStore()
	if !ok {
		return nil, ErrNoRoot
	}
	if _, err := store.Read(); err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(store.Location())
	if err != nil {
		return nil, err
	}
	return Diagnose(raw), nil
}

// Refresh re-reads the document and pushes it to every registered view.
func (c *Controller) Refresh(ctx context.Context) (Document, error) {
	doc, err := c.Snapshot(ctx)
	if err != nil {
		return Document{}, err
	}
	c.pushState(doc)
	return doc, nil
}

// Handle dispatches one view-originated operation envelope. Recoverable
// conditions (unbound root, cancellation, bad payloads) are absorbed here
// and reported to the views as advisories; only write I/O failures
// propagate to the caller.
func (c *Controller) Handle(ctx context.Context, op Operation) error {
	if _, ok := c.currentStore(); !ok {
		c.pushInfo("no workspace root is bound; open a workspace first")
		return nil
	}

	switch op.Type {
	case OpRequestState:
		doc, err := c.Snapshot(ctx)
		if err != nil {
			return err
		}
		c.pushState(doc)
		return nil

	case OpSaveState:
		doc, err := c.Save(ctx, op.Payload)
		if err == ErrInvalidPayload {
			c.pushInfo("save ignored: payload is missing or not a document")
			return nil
		}
		if err != nil {
			return err
		}
		c.pushState(doc)
		return nil

	case OpOpenStateFile:
		location, err := c.OpenStateFile(ctx)
		if err != nil {
			return err
		}
		c.pushInfo("state file: " + location)
		return nil

	case OpProcessHumanMessages:
		var payload ReplyPayload
		if len(op.Payload) > 0 {
			_ = json.Unmarshal(op.Payload, &payload)
		}
		var prompter Prompter = c.opts.Prompter
		if payload.MessageID != "" || payload.Reply != "" {
			prompter = StaticPrompter{MessageID: payload.MessageID, Reply: payload.Reply}
		}
		result, err := c.ProcessMessages(ctx, prompter)
		switch {
		case err == ErrNonePending:
			c.pushInfo("no unresolved messages from human; nothing to do")
			return nil
		case err == ErrCancelled:
			c.pushInfo("message processing cancelled; board unchanged")
			return nil
		case err != nil:
			return err
		}
		c.pushInfo(fmt.Sprintf("resolved %q and replied", result.Resolved.Title))
		return nil

	case OpSeedRoadmap:
		var payload SeedPayload
		if len(op.Payload) > 0 {
			_ = json.Unmarshal(op.Payload, &payload)
		}
		doc, err := c.Seed(ctx, payload.Confirm)
		if err == ErrConfirmationRequired {
			c.pushInfo("seeding overwrites the whole board; resend with confirm set")
			return nil
		}
		if err != nil {
			return err
		}
		c.pushState(doc)
		return nil

	case OpAdvanceTask, OpToggleBlocked:
		var payload TaskPayload
		if len(op.Payload) > 0 {
			_ = json.Unmarshal(op.Payload, &payload)
		}
		mutate := c.Advance
		if op.Type == OpToggleBlocked {
			mutate = c.ToggleBlocked
		}
		doc, err := mutate(ctx, payload.TaskID)
		switch {
		case err == ErrInvalidPayload:
			c.pushInfo("task operation ignored: missing taskId")
			return nil
		case err == ErrNotFound:
			c.pushInfo("task operation ignored: no task with id " + payload.TaskID)
			return nil
		case err != nil:
			return err
		}
		c.pushState(doc)
		return nil

	case OpValidate:
		findings, err := c.Validate(ctx)
		if err != nil {
			return err
		}
		if len(findings) == 0 {
			c.pushInfo("document matches the schema")
		} else {
			c.pushInfo("schema findings: " + strings.Join(findings, "; "))
		}
		return nil

	default:
		c.pushInfo(fmt.Sprintf("unsupported operation: %s", op.Type))
		return nil
	}
}

func (c *Controller) pushState(doc Document) {
	doc = doc.Clone()
	for _, sink := range c.snapshotSinks() {
		sink.PushState(doc)
	}
}

func (c *Controller) pushInfo(text string) {
	for _, sink := range c.snapshotSinks() {
		sink.PushInfo(text)
	}
}

func (c *Controller) snapshotSinks() []ViewSink {
	c.mu.Lock()
	defer c.mu.Unlock()
	sinks := make([]ViewSink, 0, len(c.sinks))
	for sink := range c.sinks {
		sinks = append(sinks, sink)
	}
	return sinks
}

func (c *Controller) logf(format string, args ...any) {
	if c.opts.Logger == nil {
		return
	}
	c.opts.Logger.Printf(format, args...)
}

func payloadPresent(payload json.RawMessage) bool {
	trimmed := strings.TrimSpace(string(payload))
	return trimmed != "" && trimmed != "null"
}
