package session

import (
	"errors"
	"sync"

	"github.com/emihleChallotteBooi/editingList/internal/models"
)

var errUnknownConnection = errors.New("unknown connection")

// Connection is one live real-time session. Values handed out by the registry are snapshots.
type Connection struct {
	ID          string
	UserID      string
	DisplayName string
	Room        string // empty when not in a room
	sink        Sink
}

func (c Connection) info() models.UserInfo {
	return models.UserInfo{UserID: c.UserID, Username: c.DisplayName, SocketID: c.ID}
}

func (c Connection) send(frame models.WSFrame) {
	if c.sink != nil {
		c.sink.Send(frame)
	}
}

// ConnectionRegistry tracks live connections and their identity and current room.
type ConnectionRegistry struct {
	mu    sync.RWMutex
	conns map[string]*Connection
}

func NewConnectionRegistry() *ConnectionRegistry {
	return &ConnectionRegistry{conns: make(map[string]*Connection)}
}

// Register adds a connection, replacing any previous one with the same id.
func (r *ConnectionRegistry) Register(id string, sink Sink) Connection {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := &Connection{ID: id, sink: sink}
	r.conns[id] = c
	return *c
}

func (r *ConnectionRegistry) SetIdentity(id, userID, displayName string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.conns[id]
	if !ok {
		return errUnknownConnection
	}
	c.UserID = userID
	c.DisplayName = displayName
	return nil
}

// SetRoom records the connection's current room; "" clears it.
func (r *ConnectionRegistry) SetRoom(id, roomID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.conns[id]
	if !ok {
		return errUnknownConnection
	}
	c.Room = roomID
	return nil
}

func (r *ConnectionRegistry) Get(id string) (Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.conns[id]
	if !ok {
		return Connection{}, false
	}
	return *c, true
}

func (r *ConnectionRegistry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.conns, id)
}

func (r *ConnectionRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// InRoom lists the ids of connections whose current room is roomID.
func (r *ConnectionRegistry) InRoom(roomID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var ids []string
	for id, c := range r.conns {
		if c.Room == roomID {
			ids = append(ids, id)
		}
	}
	return ids
}
