package gateway

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/emihleChallotteBooi/editingList/internal/models"
)

const maxTxRetries = 3

// RedisStore keeps each list as a hash and remembers which list a room edits.
type RedisStore struct {
	rdb *redis.Client
}

func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

func listKey(listID string) string { return "collab:list:" + listID }

func roomKey(roomID string) string { return "collab:room:" + roomID + ":list" }

// GetDocument returns the list last edited in roomID, or an empty document.
func (s *RedisStore) GetDocument(ctx context.Context, roomID string) (models.Document, error) {
	listID, err := s.rdb.Get(ctx, roomKey(roomID)).Result()
	if errors.Is(err, redis.Nil) {
		return emptyDocument(roomID), nil
	}
	if err != nil {
		return models.Document{}, fmt.Errorf("failed to get room binding from Redis: %w", err)
	}

	fields, err := s.rdb.HGetAll(ctx, listKey(listID)).Result()
	if err != nil {
		return models.Document{}, fmt.Errorf("failed to get list from Redis: %w", err)
	}
	doc, err := documentFromHash(listID, fields)
	if err != nil {
		return models.Document{}, err
	}
	doc.RoomID = roomID
	return doc, nil
}

// ApplyUpdate applies update to listID inside a WATCH transaction, retrying on contention.
func (s *RedisStore) ApplyUpdate(ctx context.Context, userID, listID string, update models.Update) error {
	key := listKey(listID)
	txf := func(tx *redis.Tx) error {
		fields, err := tx.HGetAll(ctx, key).Result()
		if err != nil {
			return err
		}
		doc, err := documentFromHash(listID, fields)
		if err != nil {
			return err
		}
		items, err := ApplyToItems(doc.Items, update)
		if err != nil {
			return err
		}
		encoded, err := encodeItems(items)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, map[string]interface{}{
				"items":     encoded,
				"version":   doc.Version + 1,
				"updatedBy": userID,
				"updatedAt": update.ServerTimestamp.UTC().Format(time.RFC3339Nano),
				"roomId":    update.RoomID,
			})
			pipe.Set(ctx, roomKey(update.RoomID), listID, 0)
			return nil
		})
		return err
	}

	for i := 0; i < maxTxRetries; i++ {
		err := s.rdb.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return fmt.Errorf("apply update to %s: %w", listID, redis.TxFailedErr)
}

func documentFromHash(listID string, fields map[string]string) (models.Document, error) {
	items, err := decodeItems(fields["items"])
	if err != nil {
		return models.Document{}, err
	}
	doc := models.Document{
		RoomID:    fields["roomId"],
		ListID:    listID,
		Items:     items,
		UpdatedBy: fields["updatedBy"],
	}
	if v := fields["version"]; v != "" {
		if doc.Version, err = strconv.ParseInt(v, 10, 64); err != nil {
			return models.Document{}, fmt.Errorf("parse version: %w", err)
		}
	}
	if ts := fields["updatedAt"]; ts != "" {
		if t, err := time.Parse(time.RFC3339Nano, ts); err == nil {
			doc.UpdatedAt = &t
		}
	}
	return doc, nil
}
