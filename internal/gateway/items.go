package gateway

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/emihleChallotteBooi/editingList/internal/models"
)

var ErrIndexOutOfRange = errors.New("item index out of range")

// ApplyToItems returns items with update applied. The input slice is not modified.
func ApplyToItems(items []json.RawMessage, update models.Update) ([]json.RawMessage, error) {
	out := make([]json.RawMessage, len(items), len(items)+1)
	copy(out, items)
	p := update.Payload

	switch update.Operation {
	case models.OpAddItem:
		return append(out, p.Value), nil
	case models.OpUpdateItem:
		i, err := index(p, len(out))
		if err != nil {
			return nil, err
		}
		out[i] = p.Value
		return out, nil
	case models.OpRemoveItem:
		i, err := index(p, len(out))
		if err != nil {
			return nil, err
		}
		return append(out[:i], out[i+1:]...), nil
	case models.OpUpdate:
		all := make([]json.RawMessage, len(p.Items))
		copy(all, p.Items)
		return all, nil
	default:
		return nil, fmt.Errorf("unsupported operation %q", update.Operation)
	}
}

func index(p models.ItemPayload, n int) (int, error) {
	if p.Index == nil || *p.Index < 0 || *p.Index >= n {
		return 0, ErrIndexOutOfRange
	}
	return *p.Index, nil
}

func decodeItems(raw string) ([]json.RawMessage, error) {
	if raw == "" {
		return []json.RawMessage{}, nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		return nil, fmt.Errorf("decode items: %w", err)
	}
	if items == nil {
		items = []json.RawMessage{}
	}
	return items, nil
}

func encodeItems(items []json.RawMessage) (string, error) {
	if items == nil {
		items = []json.RawMessage{}
	}
	b, err := json.Marshal(items)
	if err != nil {
		return "", fmt.Errorf("encode items: %w", err)
	}
	return string(b), nil
}

func emptyDocument(roomID string) models.Document {
	return models.Document{RoomID: roomID, Items: []json.RawMessage{}}
}
