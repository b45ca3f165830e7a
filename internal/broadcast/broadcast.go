package broadcast

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/park285/chess-coordinator/internal/obslog"
)

// Broadcaster delivers coordinator events to subscribed clients.
type Broadcaster interface {
	Publish(ctx context.Context, channel string, ev Event) error
}

// SessionChannel is the pub/sub channel carrying all events of one session.
func SessionChannel(sessionID string) string { return "match:" + strings.TrimSpace(sessionID) }

// UserChannel carries out-of-session notifications for one user.
func UserChannel(userID string) string { return "user:" + strings.TrimSpace(userID) }

// RedisBroadcaster publishes events over Redis pub/sub.
type RedisBroadcaster struct {
	rdb *redis.Client
}

func NewRedisBroadcaster(rdb *redis.Client) *RedisBroadcaster {
	return &RedisBroadcaster{rdb: rdb}
}

func (b *RedisBroadcaster) Publish(ctx context.Context, channel string, ev Event) error {
	if b == nil || b.rdb == nil {
		return nil
	}
	raw, err := json.Marshal(&ev)
	if err != nil {
		return err
	}
	if err := b.rdb.Publish(ctx, channel, raw).Err(); err != nil {
		obslog.L().Warn("broadcast_publish_error",
			zap.String("channel", channel),
			zap.String("type", string(ev.Type)),
			zap.Error(err),
		)
		return err
	}
	return nil
}

// Subscribe opens a pub/sub subscription for the websocket gateway.
func (b *RedisBroadcaster) Subscribe(ctx context.Context, channels ...string) *redis.PubSub {
	return b.rdb.Subscribe(ctx, channels...)
}
