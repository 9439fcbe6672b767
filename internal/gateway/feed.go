package gateway

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/emihleChallotteBooi/editingList/internal/models"
)

const DefaultUpdatesChannel = "list_updates"

// RedisFeed publishes every applied update so other services can follow list activity.
type RedisFeed struct {
	rdb     *redis.Client
	channel string
}

func NewRedisFeed(rdb *redis.Client, channel string) *RedisFeed {
	if channel == "" {
		channel = DefaultUpdatesChannel
	}
	return &RedisFeed{rdb: rdb, channel: channel}
}

func (f *RedisFeed) Channel() string { return f.channel }

func (f *RedisFeed) UpdateApplied(ctx context.Context, update models.Update) error {
	data, err := json.Marshal(update)
	if err != nil {
		return fmt.Errorf("failed to marshal update: %w", err)
	}
	return f.rdb.Publish(ctx, f.channel, data).Err()
}
