package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/emihleChallotteBooi/editingList/internal/models"
	"github.com/emihleChallotteBooi/editingList/internal/session"
	"github.com/emihleChallotteBooi/editingList/internal/utils"
)

type Handlers struct {
	log      *utils.Logger
	hub      *session.Hub
	upgrader websocket.Upgrader
}

// NewHandlers wires HTTP and WebSocket handlers to hub. An empty origin list or "*" accepts any origin.
func NewHandlers(log *utils.Logger, hub *session.Hub, allowedOrigins []string) *Handlers {
	if log == nil {
		log = utils.Nop()
	}
	return &Handlers{
		log:      log,
		hub:      hub,
		upgrader: websocket.Upgrader{CheckOrigin: originChecker(allowedOrigins)},
	}
}

func originChecker(allowed []string) func(*http.Request) bool {
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[o] = struct{}{}
	}
	if len(set) == 0 {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}

func (h *Handlers) Health(w http.ResponseWriter, _ *http.Request) {
	_, _ = w.Write([]byte("ok"))
}

// RoomStatus reports who is in a room and who is typing.
func (h *Handlers) RoomStatus(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "roomId")
	if roomID == "" {
		utils.JSONError(w, http.StatusBadRequest, "roomId is required")
		return
	}
	utils.JSON(w, http.StatusOK, h.hub.RoomStatus(roomID))
}

func (h *Handlers) Stats(w http.ResponseWriter, _ *http.Request) {
	utils.JSON(w, http.StatusOK, h.hub.Stats())
}

/*** Collab WebSocket: one connection per client, events dispatched to the hub ***/
func (h *Handlers) CollabWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	connID := uuid.NewString()
	client := session.NewClient(conn)
	h.hub.Connect(connID, client)
	go client.WritePump()
	defer func() {
		h.hub.Disconnect(connID)
		client.Close()
	}()

	log := h.log.With("conn", connID)
	log.Info("websocket connected", "remote", r.RemoteAddr)

	client.PrepareRead()
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn("websocket read failed", "error", err)
			}
			return
		}
		var frame models.InboundFrame
		if err := json.Unmarshal(msg, &frame); err != nil {
			client.Send(session.ErrorFrame(fmt.Errorf("%w: %v", session.ErrMalformedMessage, err)))
			continue
		}
		if err := h.dispatch(r.Context(), connID, frame); err != nil {
			log.Warn("event rejected", "type", frame.Type, "code", session.KindOf(err), "error", err)
			client.Send(session.ErrorFrame(err))
		}
	}
}

func (h *Handlers) dispatch(ctx context.Context, connID string, frame models.InboundFrame) error {
	switch frame.Type {
	case models.EventJoinRoom:
		var req models.JoinRoomRequest
		if err := decode(frame.Data, &req); err != nil {
			return err
		}
		_, err := h.hub.Join(ctx, connID, req.RoomID, req.Token)
		return err

	case models.EventLeaveRoom:
		h.hub.Leave(connID)
		return nil

	case models.EventListUpdate:
		var req models.ListUpdateRequest
		if err := decode(frame.Data, &req); err != nil {
			return err
		}
		_, err := h.hub.SubmitUpdate(ctx, connID, req)
		return err

	case models.EventTypingStart, models.EventTypingStop:
		var req models.RoomRequest
		if err := decode(frame.Data, &req); err != nil {
			return err
		}
		if frame.Type == models.EventTypingStart {
			return h.hub.StartTyping(connID, req.RoomID)
		}
		return h.hub.StopTyping(connID, req.RoomID)

	default:
		return fmt.Errorf("%w: unknown event %q", session.ErrMalformedMessage, frame.Type)
	}
}

func decode(data json.RawMessage, out any) error {
	if len(data) == 0 {
		return fmt.Errorf("%w: missing data", session.ErrMalformedMessage)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: %v", session.ErrMalformedMessage, err)
	}
	return nil
}
