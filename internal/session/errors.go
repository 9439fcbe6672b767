package session

import (
	"errors"

	"github.com/emihleChallotteBooi/editingList/internal/models"
)

// Error kinds reported to the originating connection. None of them tears down a room.
var (
	ErrAuthentication   = errors.New("authentication failed")
	ErrAuthorization    = errors.New("not authorized for this room")
	ErrMalformedMessage = errors.New("malformed message")
	ErrUnknownOperation = errors.New("unknown operation")
	ErrPersistence      = errors.New("persistence failure")
)

const (
	CodeAuthentication   = "authentication_failure"
	CodeAuthorization    = "authorization_failure"
	CodeMalformedMessage = "malformed_message"
	CodeUnknownOperation = "unknown_operation"
	CodePersistence      = "persistence_failure"
	CodeInternal         = "internal_error"
)

// KindOf maps err to the code carried in error frames.
func KindOf(err error) string {
	switch {
	case errors.Is(err, ErrAuthentication):
		return CodeAuthentication
	case errors.Is(err, ErrAuthorization):
		return CodeAuthorization
	case errors.Is(err, ErrMalformedMessage):
		return CodeMalformedMessage
	case errors.Is(err, ErrUnknownOperation):
		return CodeUnknownOperation
	case errors.Is(err, ErrPersistence):
		return CodePersistence
	default:
		return CodeInternal
	}
}

// ErrorFrame renders err as the error event sent back to a client.
func ErrorFrame(err error) models.WSFrame {
	return models.WSFrame{
		Type: models.EventError,
		Data: models.ErrorPayload{Message: err.Error(), Code: KindOf(err)},
	}
}
