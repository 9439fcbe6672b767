package session

import (
	"sort"
	"sync"
	"time"
)

const DefaultTypingTimeout = 2 * time.Second

type presenceKey struct {
	room string
	conn string
}

type presenceEntry struct {
	timer *time.Timer
	gen   uint64
}

// PresenceTracker holds per-room typing state. An entry exists only while its
// connection is typing; absence means idle.
//
// Transitions must be invoked from inside the room's lane. Expiry timers re-enter
// the lane through serialize, and a timer whose generation was superseded does nothing.
type PresenceTracker struct {
	mu        sync.Mutex
	entries   map[presenceKey]*presenceEntry
	gen       uint64
	closed    bool
	timeout   time.Duration
	rooms     *RoomRegistry
	serialize func(roomID string, fn func())
	onChange  func(roomID, connID string, typing bool)
}

func NewPresenceTracker(
	rooms *RoomRegistry,
	timeout time.Duration,
	serialize func(roomID string, fn func()),
	onChange func(roomID, connID string, typing bool),
) *PresenceTracker {
	if timeout <= 0 {
		timeout = DefaultTypingTimeout
	}
	return &PresenceTracker{
		entries:   make(map[presenceKey]*presenceEntry),
		timeout:   timeout,
		rooms:     rooms,
		serialize: serialize,
		onChange:  onChange,
	}
}

// StartTyping moves the connection to typing, or re-arms its expiry if it already is.
// It reports whether a transition (and so an event) happened.
func (p *PresenceTracker) StartTyping(roomID, connID string) (bool, error) {
	if !p.rooms.IsMember(roomID, connID) {
		return false, ErrAuthorization
	}
	key := presenceKey{room: roomID, conn: connID}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return false, nil
	}
	p.gen++
	gen := p.gen
	timer := time.AfterFunc(p.timeout, func() {
		p.serialize(roomID, func() { p.expire(key, gen) })
	})
	e, already := p.entries[key]
	if already {
		e.timer.Stop()
		e.timer, e.gen = timer, gen
	} else {
		p.entries[key] = &presenceEntry{timer: timer, gen: gen}
	}
	p.mu.Unlock()

	if already {
		return false, nil
	}
	p.onChange(roomID, connID, true)
	return true, nil
}

// StopTyping moves the connection to idle; stopping an idle connection is a no-op.
func (p *PresenceTracker) StopTyping(roomID, connID string) (bool, error) {
	if !p.rooms.IsMember(roomID, connID) {
		return false, ErrAuthorization
	}
	return p.Clear(roomID, connID), nil
}

// Clear force-idles the connection without a membership check; used on leave and disconnect.
func (p *PresenceTracker) Clear(roomID, connID string) bool {
	key := presenceKey{room: roomID, conn: connID}
	p.mu.Lock()
	e, ok := p.entries[key]
	if ok {
		e.timer.Stop()
		delete(p.entries, key)
	}
	p.mu.Unlock()

	if ok {
		p.onChange(roomID, connID, false)
	}
	return ok
}

func (p *PresenceTracker) expire(key presenceKey, gen uint64) {
	p.mu.Lock()
	e, ok := p.entries[key]
	if !ok || e.gen != gen {
		p.mu.Unlock()
		return
	}
	delete(p.entries, key)
	p.mu.Unlock()

	p.onChange(key.room, key.conn, false)
}

func (p *PresenceTracker) IsTyping(roomID, connID string) (bool, error) {
	if !p.rooms.IsMember(roomID, connID) {
		return false, ErrAuthorization
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.entries[presenceKey{room: roomID, conn: connID}]
	return ok, nil
}

// Typing lists the connections currently typing in roomID.
func (p *PresenceTracker) Typing(roomID string) []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for k := range p.entries {
		if k.room == roomID {
			out = append(out, k.conn)
		}
	}
	sort.Strings(out)
	return out
}

// Close cancels every pending expiry. Later StartTyping calls are ignored.
func (p *PresenceTracker) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	for k, e := range p.entries {
		e.timer.Stop()
		delete(p.entries, k)
	}
}
