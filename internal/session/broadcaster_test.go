package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/emihleChallotteBooi/editingList/internal/models"
)

type recordingObserver struct {
	mu      sync.Mutex
	updates []models.Update
	err     error
}

func (o *recordingObserver) UpdateApplied(_ context.Context, u models.Update) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.updates = append(o.updates, u)
	return o.err
}

func (o *recordingObserver) count() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.updates)
}

func TestLastWriterWinsOnSameSlot(t *testing.T) {
	h, store := newTestHub(t, Options{})
	store.seed("room", "groceries", `"milk"`)
	a := connectAndJoin(t, h, "ca", "room", "tok-a")
	b := connectAndJoin(t, h, "cb", "room", "tok-b")
	ctx := context.Background()

	u1, err := h.SubmitUpdate(ctx, "ca", listUpdate("room", "groceries", models.OpUpdateItem, `{"index":0,"value":"X"}`))
	if err != nil {
		t.Fatalf("first update: %v", err)
	}
	u2, err := h.SubmitUpdate(ctx, "cb", listUpdate("room", "groceries", models.OpUpdateItem, `{"index":0,"value":"Y"}`))
	if err != nil {
		t.Fatalf("second update: %v", err)
	}

	if u1.Slot != "groceries#0" || u2.Slot != u1.Slot {
		t.Fatalf("expected both updates on slot groceries#0, got %q and %q", u1.Slot, u2.Slot)
	}
	if !u2.ServerTimestamp.After(u1.ServerTimestamp) {
		t.Fatalf("expected later stamp for later update")
	}
	if got := store.items("groceries"); len(got) != 1 || got[0] != `"Y"` {
		t.Fatalf("expected Y to win, got %v", got)
	}

	updated := a.ofType(models.EventListUpdated)
	if len(updated) != 1 {
		t.Fatalf("expected A to see B's update once, got %d", len(updated))
	}
	last := updated[0].Data.(models.Update)
	if string(last.Payload.Value) != `"Y"` || last.OriginUserID != "ub" || last.OriginUsername != "Bob" {
		t.Fatalf("unexpected update relayed to A: %#v", last)
	}

	if n := len(b.ofType(models.EventUpdateConfirmed)); n != 1 {
		t.Fatalf("expected B to get one confirmation, got %d", n)
	}
	if n := len(b.ofType(models.EventListUpdated)); n != 1 {
		t.Fatalf("expected B to see A's update only, got %d", n)
	}
}

func TestSubmitRejectsNonMember(t *testing.T) {
	h, store := newTestHub(t, Options{})
	a := connectAndJoin(t, h, "ca", "room", "tok-a")
	outsider := connectAndJoin(t, h, "cx", "elsewhere", "tok-c")

	_, err := h.SubmitUpdate(context.Background(), "cx", listUpdate("room", "l", models.OpAddItem, `{"value":1}`))
	if !errors.Is(err, ErrAuthorization) {
		t.Fatalf("expected ErrAuthorization, got %v", err)
	}
	if store.appliedCount() != 0 {
		t.Fatalf("rejected update must not be persisted")
	}
	if len(a.ofType(models.EventListUpdated)) != 0 || len(outsider.ofType(models.EventUpdateConfirmed)) != 0 {
		t.Fatalf("rejected update must not be broadcast or confirmed")
	}
}

func TestSubmitRejectsUnknownOperation(t *testing.T) {
	h, store := newTestHub(t, Options{})
	connectAndJoin(t, h, "ca", "room", "tok-a")

	_, err := h.SubmitUpdate(context.Background(), "ca", listUpdate("room", "l", "shuffle", `{}`))
	if !errors.Is(err, ErrUnknownOperation) {
		t.Fatalf("expected ErrUnknownOperation, got %v", err)
	}
	if store.appliedCount() != 0 {
		t.Fatalf("unknown operation must not be persisted")
	}
}

func TestSubmitRejectsMalformedPayloads(t *testing.T) {
	h, store := newTestHub(t, Options{})
	connectAndJoin(t, h, "ca", "room", "tok-a")

	cases := []struct {
		name string
		req  models.ListUpdateRequest
	}{
		{"missing list id", listUpdate("room", "", models.OpAddItem, `{"value":1}`)},
		{"not json", listUpdate("room", "l", models.OpAddItem, `{value`)},
		{"add without value", listUpdate("room", "l", models.OpAddItem, `{}`)},
		{"update without index", listUpdate("room", "l", models.OpUpdateItem, `{"value":1}`)},
		{"update without value", listUpdate("room", "l", models.OpUpdateItem, `{"index":0}`)},
		{"remove with negative index", listUpdate("room", "l", models.OpRemoveItem, `{"index":-1}`)},
		{"replace without items", listUpdate("room", "l", models.OpUpdate, `{}`)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := h.SubmitUpdate(context.Background(), "ca", tc.req)
			if !errors.Is(err, ErrMalformedMessage) {
				t.Fatalf("expected ErrMalformedMessage, got %v", err)
			}
		})
	}
	if store.appliedCount() != 0 {
		t.Fatalf("malformed updates must not be persisted")
	}

	if _, err := h.SubmitUpdate(context.Background(), "ca", listUpdate("", "l", models.OpAddItem, `{"value":1}`)); !errors.Is(err, ErrMalformedMessage) {
		t.Fatalf("expected ErrMalformedMessage for missing room, got %v", err)
	}
}

func TestPersistFailureSuppressesBroadcast(t *testing.T) {
	h, store := newTestHub(t, Options{})
	a := connectAndJoin(t, h, "ca", "room", "tok-a")
	b := connectAndJoin(t, h, "cb", "room", "tok-b")
	store.failApply = errors.New("disk full")

	_, err := h.SubmitUpdate(context.Background(), "ca", listUpdate("room", "l", models.OpAddItem, `{"value":"x"}`))
	if !errors.Is(err, ErrPersistence) {
		t.Fatalf("expected ErrPersistence, got %v", err)
	}
	if len(b.ofType(models.EventListUpdated)) != 0 {
		t.Fatalf("failed update must not reach peers")
	}
	if len(a.ofType(models.EventUpdateConfirmed)) != 0 {
		t.Fatalf("failed update must not be confirmed")
	}
}

func TestPersistTimeout(t *testing.T) {
	h, store := newTestHub(t, Options{PersistTimeout: 20 * time.Millisecond})
	connectAndJoin(t, h, "ca", "room", "tok-a")
	b := connectAndJoin(t, h, "cb", "room", "tok-b")
	store.delay = time.Second

	start := time.Now()
	_, err := h.SubmitUpdate(context.Background(), "ca", listUpdate("room", "l", models.OpAddItem, `{"value":"x"}`))
	if !errors.Is(err, ErrPersistence) {
		t.Fatalf("expected ErrPersistence, got %v", err)
	}
	if time.Since(start) > 500*time.Millisecond {
		t.Fatalf("persist timeout not honored")
	}
	if len(b.ofType(models.EventListUpdated)) != 0 {
		t.Fatalf("timed out update must not reach peers")
	}
}

func TestOutOfRangeIndexIsPersistenceFailure(t *testing.T) {
	h, store := newTestHub(t, Options{})
	store.seed("room", "l", `"only"`)
	connectAndJoin(t, h, "ca", "room", "tok-a")

	_, err := h.SubmitUpdate(context.Background(), "ca", listUpdate("room", "l", models.OpRemoveItem, `{"index":3}`))
	if !errors.Is(err, ErrPersistence) {
		t.Fatalf("expected ErrPersistence, got %v", err)
	}
	if KindOf(err) != CodePersistence {
		t.Fatalf("unexpected kind %s", KindOf(err))
	}
}

func TestStampsStrictlyIncrease(t *testing.T) {
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	h, _ := newTestHub(t, Options{Now: func() time.Time { return fixed }})
	connectAndJoin(t, h, "ca", "room", "tok-a")

	var last time.Time
	for i := 0; i < 5; i++ {
		u, err := h.SubmitUpdate(context.Background(), "ca", listUpdate("room", "l", models.OpAddItem, `{"value":1}`))
		if err != nil {
			t.Fatalf("submit %d: %v", i, err)
		}
		if !u.ServerTimestamp.After(last) {
			t.Fatalf("stamp %d did not increase: %v <= %v", i, u.ServerTimestamp, last)
		}
		last = u.ServerTimestamp
	}
}

func TestObserversSeeAppliedUpdates(t *testing.T) {
	obs := &recordingObserver{err: errors.New("publish failed")}
	h, _ := newTestHub(t, Options{Observers: []UpdateObserver{obs}})
	connectAndJoin(t, h, "ca", "room", "tok-a")

	if _, err := h.SubmitUpdate(context.Background(), "ca", listUpdate("room", "l", models.OpAddItem, `{"value":1}`)); err != nil {
		t.Fatalf("observer errors must not fail the update: %v", err)
	}
	_, _ = h.SubmitUpdate(context.Background(), "ca", listUpdate("room", "l", "bogus", `{}`))

	if obs.count() != 1 {
		t.Fatalf("expected observer to see only the applied update, got %d", obs.count())
	}
}

func TestResolveSlots(t *testing.T) {
	cases := []struct {
		req  models.ListUpdateRequest
		slot string
	}{
		{listUpdate("r", "l", models.OpAddItem, `{"value":"a"}`), "l#append"},
		{listUpdate("r", "l", models.OpUpdateItem, `{"index":2,"value":"a"}`), "l#2"},
		{listUpdate("r", "l", models.OpRemoveItem, `{"index":0}`), "l#0"},
		{listUpdate("r", "l", models.OpUpdate, `{"items":[]}`), "l#*"},
	}
	for _, tc := range cases {
		_, slot, err := resolve(tc.req)
		if err != nil {
			t.Fatalf("resolve %s: %v", tc.req.Operation, err)
		}
		if slot != tc.slot {
			t.Fatalf("resolve %s: slot %q, want %q", tc.req.Operation, slot, tc.slot)
		}
	}
}
