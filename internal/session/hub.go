package session

import (
	"context"
	"fmt"
	"time"

	"github.com/emihleChallotteBooi/editingList/internal/metrics"
	"github.com/emihleChallotteBooi/editingList/internal/models"
	"github.com/emihleChallotteBooi/editingList/internal/utils"
)

// Authenticator verifies a room token and returns who it belongs to.
type Authenticator interface {
	Verify(ctx context.Context, token string) (models.Identity, error)
}

type Options struct {
	TypingTimeout  time.Duration
	PersistTimeout time.Duration
	Observers      []UpdateObserver
	Now            func() time.Time
}

// Stats is a point-in-time view of hub occupancy.
type Stats struct {
	Rooms       int `json:"rooms"`
	Connections int `json:"connections"`
}

// Hub coordinates membership, presence and updates for all rooms.
// Every mutation of a room's state runs inside that room's lane.
type Hub struct {
	log      *utils.Logger
	auth     Authenticator
	store    Persistence
	timeout  time.Duration
	lanes    *lanes
	conns    *ConnectionRegistry
	rooms    *RoomRegistry
	presence *PresenceTracker
	updates  *Broadcaster
}

func NewHub(auth Authenticator, store Persistence, log *utils.Logger, opts Options) *Hub {
	if log == nil {
		log = utils.Nop()
	}
	if opts.PersistTimeout <= 0 {
		opts.PersistTimeout = DefaultPersistTimeout
	}
	h := &Hub{
		log:     log,
		auth:    auth,
		store:   store,
		timeout: opts.PersistTimeout,
		lanes:   newLanes(),
		conns:   NewConnectionRegistry(),
		rooms:   NewRoomRegistry(),
	}
	h.presence = NewPresenceTracker(h.rooms, opts.TypingTimeout, h.lanes.do, h.notifyTyping)
	h.updates = NewBroadcaster(h.rooms, h.conns, store, opts.PersistTimeout, opts.Now, opts.Observers, log)
	return h
}

// Connect registers a freshly opened transport connection.
func (h *Hub) Connect(connID string, sink Sink) Connection {
	c := h.conns.Register(connID, sink)
	h.reportActive()
	return c
}

// Join authenticates token and moves the connection into roomID, leaving any previous
// room once the new room's document has been fetched. The room-joined event is delivered
// to the connection's sink before any other room traffic and is also returned.
func (h *Hub) Join(ctx context.Context, connID, roomID, token string) (models.RoomJoined, error) {
	if roomID == "" {
		return models.RoomJoined{}, fmt.Errorf("%w: roomId is required", ErrMalformedMessage)
	}
	if token == "" {
		return models.RoomJoined{}, fmt.Errorf("%w: token is required", ErrAuthentication)
	}
	ident, err := h.auth.Verify(ctx, token)
	if err != nil {
		return models.RoomJoined{}, fmt.Errorf("%w: %v", ErrAuthentication, err)
	}

	conn, ok := h.conns.Get(connID)
	if !ok {
		return models.RoomJoined{}, fmt.Errorf("%w: %v", ErrAuthorization, errUnknownConnection)
	}
	prev := ""
	if conn.Room != roomID {
		prev = conn.Room
	}

	var joined models.RoomJoined
	h.lanes.doAll([]string{roomID, prev}, func() {
		joined, err = h.joinLocked(ctx, connID, roomID, prev, ident)
	})
	if err != nil {
		return models.RoomJoined{}, err
	}
	h.reportActive()
	h.log.Info("user joined room", "room", roomID, "user", ident.UserID, "conn", connID)
	return joined, nil
}

// joinLocked runs holding the lanes of roomID and prev. A failed fetch changes nothing.
func (h *Hub) joinLocked(ctx context.Context, connID, roomID, prev string, ident models.Identity) (models.RoomJoined, error) {
	if _, ok := h.conns.Get(connID); !ok {
		return models.RoomJoined{}, fmt.Errorf("%w: %v", ErrAuthorization, errUnknownConnection)
	}

	dctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()
	doc, err := h.store.GetDocument(dctx, roomID)
	if err != nil {
		h.log.Warn("fetch document failed", "room", roomID, "error", err)
		return models.RoomJoined{}, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	if doc.RoomID == "" {
		doc.RoomID = roomID
	}

	if prev != "" && h.leaveLocked(connID, prev) {
		h.log.Info("user left room", "room", prev, "conn", connID)
	}

	rejoin := h.rooms.IsMember(roomID, connID)
	_ = h.conns.SetIdentity(connID, ident.UserID, ident.Username)
	h.rooms.Join(roomID, connID)
	_ = h.conns.SetRoom(connID, roomID)

	conn, _ := h.conns.Get(connID)
	joined := models.RoomJoined{RoomID: roomID, Users: h.members(roomID), Document: doc}
	conn.send(models.WSFrame{Type: models.EventRoomJoined, Data: joined})
	if !rejoin {
		fanOut(h.rooms, h.conns, roomID, connID, models.WSFrame{Type: models.EventUserJoined, Data: conn.info()})
	}
	return joined, nil
}

// Leave takes the connection out of its current room but keeps it registered.
// Leaving while in no room is a no-op.
func (h *Hub) Leave(connID string) {
	conn, ok := h.conns.Get(connID)
	if !ok || conn.Room == "" {
		return
	}
	if h.leaveRoom(connID, conn.Room) {
		conn.send(models.WSFrame{Type: models.EventRoomLeft, Data: models.RoomLeft{RoomID: conn.Room}})
	}
	h.reportActive()
}

// Disconnect tears down everything held for the connection. Safe to call twice.
func (h *Hub) Disconnect(connID string) {
	conn, ok := h.conns.Get(connID)
	if !ok {
		return
	}
	if conn.Room != "" {
		h.leaveRoom(connID, conn.Room)
	}
	h.conns.Remove(connID)
	h.reportActive()
	h.log.Info("connection closed", "conn", connID, "user", conn.UserID)
}

// leaveRoom force-idles presence, drops membership and tells the remaining members.
func (h *Hub) leaveRoom(connID, roomID string) bool {
	left := false
	h.lanes.do(roomID, func() {
		left = h.leaveLocked(connID, roomID)
	})
	if left {
		h.log.Info("user left room", "room", roomID, "conn", connID)
	}
	return left
}

// leaveLocked runs holding roomID's lane.
func (h *Hub) leaveLocked(connID, roomID string) bool {
	conn, ok := h.conns.Get(connID)
	if ok && conn.Room == roomID {
		_ = h.conns.SetRoom(connID, "")
	}
	if !h.rooms.IsMember(roomID, connID) {
		return false
	}
	h.presence.Clear(roomID, connID)
	remaining := h.rooms.Leave(roomID, connID)
	fanOut(h.rooms, h.conns, roomID, connID, models.WSFrame{Type: models.EventUserLeft, Data: conn.info()})
	if remaining == 0 {
		h.updates.Forget(roomID)
	}
	return true
}

// SubmitUpdate resolves and applies a list update from connID.
func (h *Hub) SubmitUpdate(ctx context.Context, connID string, req models.ListUpdateRequest) (models.Update, error) {
	if req.RoomID == "" {
		return models.Update{}, fmt.Errorf("%w: roomId is required", ErrMalformedMessage)
	}
	var (
		update models.Update
		err    error
	)
	h.lanes.do(req.RoomID, func() {
		update, err = h.updates.Submit(ctx, req, connID)
	})
	return update, err
}

func (h *Hub) StartTyping(connID, roomID string) error {
	return h.typing(connID, roomID, true)
}

func (h *Hub) StopTyping(connID, roomID string) error {
	return h.typing(connID, roomID, false)
}

func (h *Hub) typing(connID, roomID string, start bool) error {
	if roomID == "" {
		return fmt.Errorf("%w: roomId is required", ErrMalformedMessage)
	}
	var err error
	h.lanes.do(roomID, func() {
		if start {
			_, err = h.presence.StartTyping(roomID, connID)
		} else {
			_, err = h.presence.StopTyping(roomID, connID)
		}
	})
	return err
}

// notifyTyping runs inside the room's lane whenever a typing transition happens.
func (h *Hub) notifyTyping(roomID, connID string, typing bool) {
	conn, ok := h.conns.Get(connID)
	if !ok {
		return
	}
	metrics.ObservePresence(typing)
	fanOut(h.rooms, h.conns, roomID, connID, models.WSFrame{Type: models.EventUserTyping, Data: models.UserTyping{
		UserID:   conn.UserID,
		Username: conn.DisplayName,
		SocketID: conn.ID,
		IsTyping: typing,
	}})
}

// Members lists who is in roomID.
func (h *Hub) Members(roomID string) []models.UserInfo {
	return h.members(roomID)
}

func (h *Hub) members(roomID string) []models.UserInfo {
	ids := h.rooms.Members(roomID)
	users := make([]models.UserInfo, 0, len(ids))
	for _, id := range ids {
		if c, ok := h.conns.Get(id); ok {
			users = append(users, c.info())
		}
	}
	return users
}

// RoomStatus reports members and the usernames of those currently typing.
func (h *Hub) RoomStatus(roomID string) models.RoomStatus {
	typing := make([]string, 0)
	for _, id := range h.presence.Typing(roomID) {
		if c, ok := h.conns.Get(id); ok {
			typing = append(typing, c.DisplayName)
		}
	}
	return models.RoomStatus{RoomID: roomID, Users: h.members(roomID), Typing: typing}
}

func (h *Hub) Stats() Stats {
	return Stats{Rooms: h.rooms.Len(), Connections: h.conns.Len()}
}

func (h *Hub) reportActive() {
	s := h.Stats()
	metrics.SetActive(s.Rooms, s.Connections)
}

// Close cancels pending presence timers.
func (h *Hub) Close() {
	h.presence.Close()
}
