package models

import (
	"encoding/json"
	"time"
)

/*** Wire frames ***/
type WSFrame struct {
	Type string      `json:"type"` // see Event* constants
	Data interface{} `json:"data"`
}

// InboundFrame is a client frame whose payload is decoded once its type is known.
type InboundFrame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

const (
	// client -> server
	EventJoinRoom    = "join-room"
	EventLeaveRoom   = "leave-room"
	EventListUpdate  = "list-update"
	EventTypingStart = "typing-start"
	EventTypingStop  = "typing-stop"

	// server -> client
	EventRoomJoined      = "room-joined"
	EventRoomLeft        = "room-left"
	EventUserJoined      = "user-joined"
	EventUserLeft        = "user-left"
	EventUserTyping      = "user-typing"
	EventListUpdated     = "list-updated"
	EventUpdateConfirmed = "update-confirmed"
	EventError           = "error"
)

type Operation string

const (
	OpAddItem    Operation = "add_item"
	OpRemoveItem Operation = "remove_item"
	OpUpdateItem Operation = "update_item"
	OpUpdate     Operation = "update" // whole document
)

// Valid reports whether op is one of the known edit kinds.
func (op Operation) Valid() bool {
	switch op {
	case OpAddItem, OpRemoveItem, OpUpdateItem, OpUpdate:
		return true
	}
	return false
}

/*** Client requests ***/
type JoinRoomRequest struct {
	RoomID string `json:"roomId"`
	Token  string `json:"token"`
}

type RoomRequest struct {
	RoomID string `json:"roomId"`
}

type ListUpdateRequest struct {
	RoomID    string          `json:"roomId"`
	ListID    string          `json:"listId"`
	Operation Operation       `json:"operation"`
	Updates   json.RawMessage `json:"updates"`
	// Timestamp is accepted for compatibility and never used for ordering.
	Timestamp int64 `json:"timestamp,omitempty"`
}

// ItemPayload is the decoded "updates" field of a list-update.
type ItemPayload struct {
	Index *int              `json:"index,omitempty"`
	Value json.RawMessage   `json:"value,omitempty"`
	Items []json.RawMessage `json:"items,omitempty"`
}

// MarshalJSON writes items whenever they are set, so a cleared list stays "items":[].
func (p ItemPayload) MarshalJSON() ([]byte, error) {
	type plain ItemPayload
	out := struct {
		plain
		Items *[]json.RawMessage `json:"items,omitempty"`
	}{plain: plain(p)}
	if p.Items != nil {
		out.Items = &p.Items
	}
	return json.Marshal(out)
}

/*** Collaboration state ***/
type Identity struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
}

type UserInfo struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
	SocketID string `json:"socketId"`
}

// Document is the persisted state of one list as the persistence gateway reports it.
type Document struct {
	RoomID    string            `json:"roomId"`
	ListID    string            `json:"listId,omitempty"`
	Items     []json.RawMessage `json:"items"`
	Version   int64             `json:"version"`
	UpdatedBy string            `json:"updatedBy,omitempty"`
	UpdatedAt *time.Time        `json:"updatedAt,omitempty"`
}

// Update is a resolved edit: validated, stamped and addressed to a slot.
type Update struct {
	RoomID             string      `json:"roomId"`
	ListID             string      `json:"listId"`
	Operation          Operation   `json:"operation"`
	Payload            ItemPayload `json:"updates"`
	Slot               string      `json:"slot"`
	OriginUserID       string      `json:"userId"`
	OriginUsername     string      `json:"username"`
	OriginConnectionID string      `json:"socketId"`
	ServerTimestamp    time.Time   `json:"serverTimestamp"`
}

/*** Server events ***/
type RoomJoined struct {
	RoomID   string     `json:"roomId"`
	Users    []UserInfo `json:"users"`
	Document Document   `json:"document"`
}

type RoomLeft struct {
	RoomID string `json:"roomId"`
}

type UserTyping struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
	SocketID string `json:"socketId"`
	IsTyping bool   `json:"isTyping"`
}

type UpdateConfirmed struct {
	ListID          string      `json:"listId"`
	Operation       Operation   `json:"operation"`
	Updates         ItemPayload `json:"updates"`
	Slot            string      `json:"slot"`
	ServerTimestamp time.Time   `json:"serverTimestamp"`
}

type ErrorPayload struct {
	Message string `json:"message"`
	Code    string `json:"code"`
}

/*** HTTP ***/
type RoomStatus struct {
	RoomID string     `json:"roomId"`
	Users  []UserInfo `json:"users"`
	Typing []string   `json:"typing"`
}
