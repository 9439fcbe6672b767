package session

import (
	"sort"
	"sync"
)

// lanes serializes work per room id. A lane lives only while someone holds or waits on it.
type lanes struct {
	mu    sync.Mutex
	locks map[string]*lane
}

type lane struct {
	sync.Mutex
	refs int
}

func newLanes() *lanes { return &lanes{locks: make(map[string]*lane)} }

// acquire blocks until roomID's lane is free and returns its release func.
func (l *lanes) acquire(roomID string) func() {
	l.mu.Lock()
	ln, ok := l.locks[roomID]
	if !ok {
		ln = &lane{}
		l.locks[roomID] = ln
	}
	ln.refs++
	l.mu.Unlock()

	ln.Lock()
	return func() {
		ln.Unlock()
		l.mu.Lock()
		ln.refs--
		if ln.refs == 0 {
			delete(l.locks, roomID)
		}
		l.mu.Unlock()
	}
}

// do runs fn while holding roomID's lane.
func (l *lanes) do(roomID string, fn func()) {
	release := l.acquire(roomID)
	defer release()
	fn()
}

// doAll runs fn while holding the lanes of every distinct non-empty id. Lanes are taken
// in sorted order; callers holding a single lane never wait on a second one.
func (l *lanes) doAll(ids []string, fn func()) {
	sorted := make([]string, 0, len(ids))
	for _, id := range ids {
		if id != "" {
			sorted = append(sorted, id)
		}
	}
	sort.Strings(sorted)

	releases := make([]func(), 0, len(sorted))
	for i, id := range sorted {
		if i > 0 && id == sorted[i-1] {
			continue
		}
		releases = append(releases, l.acquire(id))
	}
	defer func() {
		for i := len(releases) - 1; i >= 0; i-- {
			releases[i]()
		}
	}()
	fn()
}

func (l *lanes) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
