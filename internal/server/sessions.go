package server

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/danmuck/memdev/internal/chardev"
)

var ErrSessionNotFound = errors.New("server: session not found")

// sessionEntry serializes calls on one chardev.Session, whose cursor is not
// safe for concurrent use.
type sessionEntry struct {
	mu      sync.Mutex
	id      uint64
	device  string
	opened  time.Time
	session *chardev.Session
}

// SessionInfo is the externally visible state of an open session.
type SessionInfo struct {
	ID       uint64    `json:"id"`
	Device   string    `json:"device"`
	Position int64     `json:"position"`
	Opened   time.Time `json:"opened"`
}

func (s *sessionEntry) info() SessionInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return SessionInfo{
		ID:       s.id,
		Device:   s.device,
		Position: s.session.Position(),
		Opened:   s.opened,
	}
}

type sessionTable struct {
	mu    sync.RWMutex
	next  uint64
	items map[uint64]*sessionEntry
}

func newSessionTable() *sessionTable {
	return &sessionTable{items: make(map[uint64]*sessionEntry)}
}

func (t *sessionTable) add(device string, session *chardev.Session) *sessionEntry {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.next++
	entry := &sessionEntry{
		id:      t.next,
		device:  device,
		opened:  time.Now(),
		session: session,
	}
	t.items[entry.id] = entry
	return entry
}

func (t *sessionTable) get(id uint64) (*sessionEntry, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	entry, ok := t.items[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrSessionNotFound, id)
	}
	return entry, nil
}

func (t *sessionTable) remove(id uint64) (*sessionEntry, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	entry, ok := t.items[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrSessionNotFound, id)
	}
	delete(t.items, id)
	return entry, nil
}

func (t *sessionTable) ids() []uint64 {
	t.mu.RLock()
	out := make([]uint64, 0, len(t.items))
	for id := range t.items {
		out = append(out, id)
	}
	t.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
