package capture

import (
	"context"
	"log/slog"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/user/neuroclaw/internal/payload"
	"github.com/user/neuroclaw/internal/types"
)

// Changes accumulated between passes are capped so a large build or
// checkout cannot balloon a single event.
const maxQueuedFSChanges = 256

type fsChange struct {
	path   string
	action string
}

// FSSensor watches directories with fsnotify and reports the file changes
// seen since the previous collection pass.
type FSSensor struct {
	watcher *fsnotify.Watcher
	done    chan struct{}

	mu      sync.Mutex
	queue   []fsChange
	dropped int
}

// NewFSSensor starts watching the given directories. Paths that cannot be
// watched are logged and skipped.
func NewFSSensor(paths []string) (*FSSensor, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	for _, path := range paths {
		if err := watcher.Add(path); err != nil {
			slog.Warn("fs watch failed", "path", path, "error", err)
		}
	}
	s := &FSSensor{watcher: watcher, done: make(chan struct{})}
	go s.pump()
	return s, nil
}

func (s *FSSensor) pump() {
	for {
		select {
		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			s.enqueue(fsChange{path: event.Name, action: fsAction(event.Op)})
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			slog.Warn("fs watcher error", "error", err)
		case <-s.done:
			return
		}
	}
}

func fsAction(op fsnotify.Op) string {
	switch {
	case op.Has(fsnotify.Create):
		return "create"
	case op.Has(fsnotify.Write):
		return "write"
	case op.Has(fsnotify.Remove):
		return "remove"
	case op.Has(fsnotify.Rename):
		return "rename"
	case op.Has(fsnotify.Chmod):
		return "chmod"
	default:
		return "unknown"
	}
}

func (s *FSSensor) enqueue(change fsChange) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) >= maxQueuedFSChanges {
		s.dropped++
		return
	}
	s.queue = append(s.queue, change)
}

func (s *FSSensor) Source() types.Source {
	return types.SourceFS
}

// Collect drains the queued changes. No changes means no data.
func (s *FSSensor) Collect(ctx context.Context) (payload.Value, error) {
	s.mu.Lock()
	queue := s.queue
	dropped := s.dropped
	s.queue = nil
	s.dropped = 0
	s.mu.Unlock()

	if len(queue) == 0 {
		return payload.Null(), nil
	}
	changes := make([]payload.Value, 0, len(queue))
	for _, change := range queue {
		changes = append(changes, payload.Object(map[string]payload.Value{
			"path":   payload.String(change.path),
			"action": payload.String(change.action),
		}))
	}
	return payload.Object(map[string]payload.Value{
		"changes": payload.Array(changes...),
		"count":   payload.Int(int64(len(queue))),
		"dropped": payload.Int(int64(dropped)),
	}), nil
}

// Close stops the watcher and the pump goroutine.
func (s *FSSensor) Close() error {
	close(s.done)
	return s.watcher.Close()
}
