// Package events defines the file manager's domain events and the sinks
// that receive them: an in-process SSE broadcaster and an optional
// PostgreSQL audit log.
package events

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/fruitsalade/filemanager/internal/metrics"
)

const (
	FileUploaded   = "file_uploaded"
	FileRemoved    = "file_removed"
	FolderUploaded = "folder_uploaded"
	FolderRemoved  = "folder_removed"
)

// Event is a fire-and-forget notification about a completed mutation.
type Event struct {
	Type      string `json:"type"`
	Disk      string `json:"disk"`
	Path      string `json:"path"`
	Timestamp int64  `json:"timestamp"`
}

// Sink receives events. Emit is called synchronously after the
// triggering mutation succeeded and must not block for long.
type Sink interface {
	Emit(Event)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(Event)

// Emit calls f(e).
func (f SinkFunc) Emit(e Event) { f(e) }

// Discard drops every event.
var Discard Sink = SinkFunc(func(Event) {})

// Multi fans an event out to every non-nil sink in order.
func Multi(sinks ...Sink) Sink {
	var live []Sink
	for _, s := range sinks {
		if s != nil {
			live = append(live, s)
		}
	}
	return SinkFunc(func(e Event) {
		if e.Timestamp == 0 {
			e.Timestamp = time.Now().Unix()
		}
		for _, s := range live {
			s.Emit(e)
		}
	})
}

// Broadcaster manages SSE subscribers and publishes events.
type Broadcaster struct {
	mu          sync.RWMutex
	subscribers map[chan Event]struct{}
}

// NewBroadcaster creates a new event broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		subscribers: make(map[chan Event]struct{}),
	}
}

// Subscribe adds a new subscriber and returns its event channel.
// The caller must call Unsubscribe when done.
func (b *Broadcaster) Subscribe() chan Event {
	ch := make(chan Event, 64)
	b.mu.Lock()
	b.subscribers[ch] = struct{}{}
	b.mu.Unlock()
	metrics.SetSSEConnectionsActive(int64(b.Count()))
	return ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *Broadcaster) Unsubscribe(ch chan Event) {
	b.mu.Lock()
	if _, ok := b.subscribers[ch]; ok {
		delete(b.subscribers, ch)
		close(ch)
	}
	b.mu.Unlock()
	metrics.SetSSEConnectionsActive(int64(b.Count()))
}

// Emit sends an event to all subscribers. Non-blocking: drops events
// for slow consumers.
func (b *Broadcaster) Emit(event Event) {
	if event.Timestamp == 0 {
		event.Timestamp = time.Now().Unix()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subscribers {
		select {
		case ch <- event:
		default:
			// Drop event for slow consumer
		}
	}
	metrics.RecordEvent(event.Type)
}

// Count returns the current number of subscribers.
func (b *Broadcaster) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// MarshalEvent serializes an event to JSON.
func MarshalEvent(e Event) ([]byte, error) {
	return json.Marshal(e)
}
