package session

import (
	"sort"
	"sync"
)

// RoomRegistry holds the member set of every active room.
// A room exists only while it has at least one member.
type RoomRegistry struct {
	mu    sync.RWMutex
	rooms map[string]map[string]struct{}
}

func NewRoomRegistry() *RoomRegistry {
	return &RoomRegistry{rooms: make(map[string]map[string]struct{})}
}

func (r *RoomRegistry) Join(roomID, connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	members, ok := r.rooms[roomID]
	if !ok {
		members = make(map[string]struct{})
		r.rooms[roomID] = members
	}
	members[connID] = struct{}{}
}

// Leave removes connID and returns how many members remain.
func (r *RoomRegistry) Leave(roomID, connID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	members, ok := r.rooms[roomID]
	if !ok {
		return 0
	}
	delete(members, connID)
	if len(members) == 0 {
		delete(r.rooms, roomID)
		return 0
	}
	return len(members)
}

// Members returns the sorted member ids; an absent room has none.
func (r *RoomRegistry) Members(roomID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	members := r.rooms[roomID]
	out := make([]string, 0, len(members))
	for id := range members {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func (r *RoomRegistry) IsMember(roomID, connID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.rooms[roomID][connID]
	return ok
}

func (r *RoomRegistry) GetClientCount(roomID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms[roomID])
}

// Len is the number of active rooms.
func (r *RoomRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}
