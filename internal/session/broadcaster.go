package session

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/emihleChallotteBooi/editingList/internal/metrics"
	"github.com/emihleChallotteBooi/editingList/internal/models"
	"github.com/emihleChallotteBooi/editingList/internal/utils"
)

const DefaultPersistTimeout = 5 * time.Second

// Persistence is the external document store.
type Persistence interface {
	GetDocument(ctx context.Context, roomID string) (models.Document, error)
	ApplyUpdate(ctx context.Context, userID, listID string, update models.Update) error
}

// UpdateObserver is told about every update after it has been persisted and broadcast.
type UpdateObserver interface {
	UpdateApplied(ctx context.Context, update models.Update) error
}

// Broadcaster resolves, persists and fans out list updates.
//
// Conflicts are last-writer-wins per slot. Submit runs inside the room's lane, so the
// order in which updates reach it is the order in which they are applied: a later
// update to the same slot always overwrites an earlier one. The server timestamp is
// informational and never compared.
type Broadcaster struct {
	rooms     *RoomRegistry
	conns     *ConnectionRegistry
	store     Persistence
	timeout   time.Duration
	now       func() time.Time
	observers []UpdateObserver
	log       *utils.Logger

	mu     sync.Mutex
	clocks map[string]time.Time // last stamp handed out per room
}

func NewBroadcaster(
	rooms *RoomRegistry,
	conns *ConnectionRegistry,
	store Persistence,
	timeout time.Duration,
	now func() time.Time,
	observers []UpdateObserver,
	log *utils.Logger,
) *Broadcaster {
	if timeout <= 0 {
		timeout = DefaultPersistTimeout
	}
	if now == nil {
		now = time.Now
	}
	return &Broadcaster{
		rooms:     rooms,
		conns:     conns,
		store:     store,
		timeout:   timeout,
		now:       now,
		observers: observers,
		log:       log,
		clocks:    make(map[string]time.Time),
	}
}

// Submit applies req on behalf of originConnID. Must be called inside req.RoomID's lane.
func (b *Broadcaster) Submit(ctx context.Context, req models.ListUpdateRequest, originConnID string) (models.Update, error) {
	origin, ok := b.conns.Get(originConnID)
	if !ok || origin.Room != req.RoomID || !b.rooms.IsMember(req.RoomID, originConnID) {
		metrics.ObserveUpdate(string(req.Operation), "unauthorized")
		return models.Update{}, ErrAuthorization
	}
	if !req.Operation.Valid() {
		metrics.ObserveUpdate("unknown", "rejected")
		return models.Update{}, fmt.Errorf("%w: %q", ErrUnknownOperation, req.Operation)
	}
	payload, slot, err := resolve(req)
	if err != nil {
		metrics.ObserveUpdate(string(req.Operation), "malformed")
		return models.Update{}, err
	}

	update := models.Update{
		RoomID:             req.RoomID,
		ListID:             req.ListID,
		Operation:          req.Operation,
		Payload:            payload,
		Slot:               slot,
		OriginUserID:       origin.UserID,
		OriginUsername:     origin.DisplayName,
		OriginConnectionID: origin.ID,
		ServerTimestamp:    b.stamp(req.RoomID),
	}

	pctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()
	start := time.Now()
	err = b.store.ApplyUpdate(pctx, origin.UserID, req.ListID, update)
	metrics.ObservePersist(time.Since(start))
	if err != nil {
		metrics.ObserveUpdate(string(req.Operation), "persist_failed")
		b.log.Warn("persist update failed", "room", req.RoomID, "list", req.ListID, "op", req.Operation, "error", err)
		return models.Update{}, fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	fanOut(b.rooms, b.conns, req.RoomID, originConnID, models.WSFrame{Type: models.EventListUpdated, Data: update})
	origin.send(models.WSFrame{Type: models.EventUpdateConfirmed, Data: models.UpdateConfirmed{
		ListID:          update.ListID,
		Operation:       update.Operation,
		Updates:         update.Payload,
		Slot:            update.Slot,
		ServerTimestamp: update.ServerTimestamp,
	}})
	metrics.ObserveUpdate(string(req.Operation), "applied")

	for _, obs := range b.observers {
		if err := obs.UpdateApplied(ctx, update); err != nil {
			b.log.Warn("update observer failed", "room", req.RoomID, "error", err)
		}
	}
	return update, nil
}

// stamp returns the current time, nudged forward so stamps strictly increase per room.
func (b *Broadcaster) stamp(roomID string) time.Time {
	b.mu.Lock()
	defer b.mu.Unlock()
	ts := b.now()
	if last, ok := b.clocks[roomID]; ok && !ts.After(last) {
		ts = last.Add(time.Nanosecond)
	}
	b.clocks[roomID] = ts
	return ts
}

// Forget drops per-room state once the room is gone.
func (b *Broadcaster) Forget(roomID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.clocks, roomID)
}

// resolve decodes the operation payload and names the slot it addresses.
func resolve(req models.ListUpdateRequest) (models.ItemPayload, string, error) {
	var p models.ItemPayload
	if req.ListID == "" {
		return p, "", fmt.Errorf("%w: listId is required", ErrMalformedMessage)
	}
	if len(req.Updates) > 0 {
		if err := json.Unmarshal(req.Updates, &p); err != nil {
			return p, "", fmt.Errorf("%w: updates: %v", ErrMalformedMessage, err)
		}
	}

	switch req.Operation {
	case models.OpAddItem:
		if len(p.Value) == 0 {
			return p, "", fmt.Errorf("%w: add_item requires a value", ErrMalformedMessage)
		}
		return p, req.ListID + "#append", nil
	case models.OpUpdateItem, models.OpRemoveItem:
		if p.Index == nil || *p.Index < 0 {
			return p, "", fmt.Errorf("%w: %s requires a non-negative index", ErrMalformedMessage, req.Operation)
		}
		if req.Operation == models.OpUpdateItem && len(p.Value) == 0 {
			return p, "", fmt.Errorf("%w: update_item requires a value", ErrMalformedMessage)
		}
		return p, req.ListID + "#" + strconv.Itoa(*p.Index), nil
	default: // models.OpUpdate
		if p.Items == nil {
			return p, "", fmt.Errorf("%w: update requires items", ErrMalformedMessage)
		}
		return p, req.ListID + "#*", nil
	}
}

// fanOut delivers frame to every member of roomID except the given connection.
func fanOut(rooms *RoomRegistry, conns *ConnectionRegistry, roomID, except string, frame models.WSFrame) {
	for _, id := range rooms.Members(roomID) {
		if id == except {
			continue
		}
		if c, ok := conns.Get(id); ok {
			c.send(frame)
		}
	}
}
