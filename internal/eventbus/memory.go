package eventbus

import (
	"context"
	"sort"
	"sync"

	"github.com/wonny/swingdag/internal/swing"
)

// MemorySink keeps the most recent events per session for the read API.
// Older events fall off once capacity is reached; consumers that fall
// further behind must rebuild from a snapshot.
type MemorySink struct {
	mu       sync.RWMutex
	capacity int
	logs     map[string][]swing.Event
}

// NewMemorySink creates a backlog holding up to capacity events per session.
func NewMemorySink(capacity int) *MemorySink {
	if capacity <= 0 {
		capacity = 10000
	}
	return &MemorySink{capacity: capacity, logs: make(map[string][]swing.Event)}
}

// Publish implements Sink.
func (m *MemorySink) Publish(_ context.Context, sessionID string, events []swing.Event) error {
	if len(events) == 0 {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	log := append(m.logs[sessionID], events...)
	if over := len(log) - m.capacity; over > 0 {
		log = append([]swing.Event(nil), log[over:]...)
	}
	m.logs[sessionID] = log
	return nil
}

// Since returns up to limit events with Seq > after, oldest first.
// limit <= 0 means no limit.
func (m *MemorySink) Since(sessionID string, after uint64, limit int) []swing.Event {
	m.mu.RLock()
	defer m.mu.RUnlock()

	log := m.logs[sessionID]
	i := sort.Search(len(log), func(i int) bool { return log[i].Seq > after })
	out := log[i:]
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return append([]swing.Event(nil), out...)
}

// Oldest returns the oldest retained sequence number, 0 when empty.
func (m *MemorySink) Oldest(sessionID string) uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if log := m.logs[sessionID]; len(log) > 0 {
		return log[0].Seq
	}
	return 0
}

// Len returns the number of retained events for a session.
func (m *MemorySink) Len(sessionID string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.logs[sessionID])
}
