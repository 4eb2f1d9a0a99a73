package metadata

import (
	"sync"

	"github.com/fsnotify/fsnotify"
)

// EventKind is one of the five change notifications spec.md §4.2 says the
// watch emits for the index engine to consume.
type EventKind int

const (
	IndexCreated EventKind = iota
	IndexModified
	IndexDeleted
	ShardAdded
	ShardRemoved
)

// Event names an index (or "<index>/<shard>" for shard-scoped kinds) and
// what changed about it.
type Event struct {
	Kind EventKind
	Key  string
}

type watcher struct {
	mu   sync.RWMutex
	subs []chan Event
}

// notify fans the event out to subscribers from whatever call made the
// change (CreateIndex, ModifyIndex, ...), playing the role that an external
// fsnotify.Watcher would play for changes made by this same process.
func (s *Store) notify(kind EventKind, key string) {
	s.watcher.mu.RLock()
	defer s.watcher.mu.RUnlock()
	for _, ch := range s.watcher.subs {
		select {
		case ch <- Event{Kind: kind, Key: key}:
		default:
			// a slow subscriber does not block metadata publication
		}
	}
}

// Watch returns a stream of metadata change events, consumed by the index
// engine to create or tear down shard replicas.
func (s *Store) Watch() <-chan Event {
	ch := make(chan Event, 256)
	s.watcher.mu.Lock()
	s.watcher.subs = append(s.watcher.subs, ch)
	s.watcher.mu.Unlock()
	return ch
}

// WatchExternal additionally arms an fsnotify watch on the indices
// directory, so changes made there by a concurrent process sharing this
// data directory (e.g. a restored backup, or manual maintenance) are also
// observed. The watch is not recursive: only entries directly under the
// indices directory are seen, and each observed change is logged, not
// turned into an Event. It is best-effort: the caller logs a failure to
// arm the watch and carries on, since the in-process notify path above
// already covers every change this Store itself makes.
func (s *Store) WatchExternal() (*fsnotify.Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(s.indicesDir()); err != nil {
		w.Close()
		return nil, err
	}
	go func() {
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				s.log.Debug().Str("path", ev.Name).Str("op", ev.Op.String()).Msg("external metadata change observed")
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				s.log.Warn().Err(err).Msg("metadata watch error")
			}
		}
	}()
	return w, nil
}
