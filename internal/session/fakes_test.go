package session

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/emihleChallotteBooi/editingList/internal/gateway"
	"github.com/emihleChallotteBooi/editingList/internal/models"
)

type fakeAuth map[string]models.Identity

func (a fakeAuth) Verify(_ context.Context, token string) (models.Identity, error) {
	id, ok := a[token]
	if !ok {
		return models.Identity{}, errors.New("bad token")
	}
	return id, nil
}

var testAuth = fakeAuth{
	"tok-a": {UserID: "ua", Username: "Alice"},
	"tok-b": {UserID: "ub", Username: "Bob"},
	"tok-c": {UserID: "uc", Username: "Carol"},
}

// memStore is an in-memory Persistence with the same item semantics as the real gateways.
type memStore struct {
	mu        sync.Mutex
	docs      map[string]models.Document // by list id
	rooms     map[string]string          // room id -> list id
	applied   []models.Update
	failApply error
	failGet   error
	delay     time.Duration
}

func newMemStore() *memStore {
	return &memStore{docs: make(map[string]models.Document), rooms: make(map[string]string)}
}

func (s *memStore) seed(roomID, listID string, items ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc := models.Document{RoomID: roomID, ListID: listID}
	for _, it := range items {
		doc.Items = append(doc.Items, json.RawMessage(it))
	}
	s.docs[listID] = doc
	s.rooms[roomID] = listID
}

func (s *memStore) GetDocument(_ context.Context, roomID string) (models.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failGet != nil {
		return models.Document{}, s.failGet
	}
	listID, ok := s.rooms[roomID]
	if !ok {
		return models.Document{RoomID: roomID, Items: []json.RawMessage{}}, nil
	}
	return s.docs[listID], nil
}

func (s *memStore) ApplyUpdate(ctx context.Context, userID, listID string, u models.Update) error {
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failApply != nil {
		return s.failApply
	}
	doc := s.docs[listID]
	items, err := gateway.ApplyToItems(doc.Items, u)
	if err != nil {
		return err
	}
	doc.ListID, doc.RoomID, doc.Items, doc.UpdatedBy = listID, u.RoomID, items, userID
	doc.Version++
	s.docs[listID] = doc
	s.rooms[u.RoomID] = listID
	s.applied = append(s.applied, u)
	return nil
}

func (s *memStore) appliedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.applied)
}

func (s *memStore) items(listID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, it := range s.docs[listID].Items {
		out = append(out, string(it))
	}
	return out
}

// capture is a Sink recording every frame; frames are also pushed to events when set.
type capture struct {
	mu     sync.Mutex
	frames []models.WSFrame
	events chan models.WSFrame
}

func newCapture() *capture { return &capture{events: make(chan models.WSFrame, 256)} }

func (c *capture) Send(frame models.WSFrame) {
	c.mu.Lock()
	c.frames = append(c.frames, frame)
	c.mu.Unlock()
	select {
	case c.events <- frame:
	default:
	}
}

func (c *capture) hook(frame models.WSFrame) { c.Send(frame) }

func (c *capture) list() []models.WSFrame {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]models.WSFrame, len(c.frames))
	copy(out, c.frames)
	return out
}

func (c *capture) ofType(typ string) []models.WSFrame {
	var out []models.WSFrame
	for _, f := range c.list() {
		if f.Type == typ {
			out = append(out, f)
		}
	}
	return out
}

// typing returns the isTyping flags of every user-typing frame received.
func (c *capture) typing() []bool {
	var out []bool
	for _, f := range c.ofType(models.EventUserTyping) {
		out = append(out, f.Data.(models.UserTyping).IsTyping)
	}
	return out
}

// waitFor blocks until a frame matching match arrives or the deadline passes.
func (c *capture) waitFor(t *testing.T, d time.Duration, match func(models.WSFrame) bool) (models.WSFrame, bool) {
	t.Helper()
	deadline := time.After(d)
	for {
		select {
		case f := <-c.events:
			if match(f) {
				return f, true
			}
		case <-deadline:
			return models.WSFrame{}, false
		}
	}
}

func isTypingFrame(want bool) func(models.WSFrame) bool {
	return func(f models.WSFrame) bool {
		if f.Type != models.EventUserTyping {
			return false
		}
		return f.Data.(models.UserTyping).IsTyping == want
	}
}

func newTestHub(t *testing.T, opts Options) (*Hub, *memStore) {
	t.Helper()
	store := newMemStore()
	h := NewHub(testAuth, store, nil, opts)
	t.Cleanup(h.Close)
	return h, store
}

// connectAndJoin registers connID with a fresh capture and joins roomID.
func connectAndJoin(t *testing.T, h *Hub, connID, roomID, token string) *capture {
	t.Helper()
	c := newCapture()
	h.Connect(connID, c)
	if _, err := h.Join(context.Background(), connID, roomID, token); err != nil {
		t.Fatalf("join %s: %v", connID, err)
	}
	return c
}

func listUpdate(roomID, listID string, op models.Operation, updates string) models.ListUpdateRequest {
	return models.ListUpdateRequest{RoomID: roomID, ListID: listID, Operation: op, Updates: json.RawMessage(updates)}
}
