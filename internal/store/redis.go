package store

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/park285/chess-coordinator/internal/match"
)

const snapshotTTL = 24 * time.Hour

// SnapshotStore keeps session checkpoints in Redis as JSON blobs with a TTL,
// plus a per-user index so reconnecting clients can find their sessions.
type SnapshotStore struct {
	rdb *redis.Client
}

func NewSnapshotStore(rdb *redis.Client) *SnapshotStore { return &SnapshotStore{rdb: rdb} }

func keySession(id string) string { return "match:session:" + strings.TrimSpace(id) }
func keyUserIdx(uid string) string {
	return "match:index:user:" + strings.TrimSpace(uid)
}

func (s *SnapshotStore) SaveSnapshot(ctx context.Context, g *match.GameSession) error {
	if s == nil || s.rdb == nil || g == nil {
		return nil
	}
	raw, err := json.Marshal(g)
	if err != nil {
		return err
	}
	if err := s.rdb.Set(ctx, keySession(g.ID), raw, snapshotTTL).Err(); err != nil {
		return err
	}
	return s.indexPlayers(ctx, g.ID, g.WhiteID, g.BlackID)
}

func (s *SnapshotStore) LoadSnapshot(ctx context.Context, id string) (*match.GameSession, error) {
	if s == nil || s.rdb == nil {
		return nil, nil
	}
	raw, err := s.rdb.Get(ctx, keySession(id)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var g match.GameSession
	if err := json.Unmarshal(raw, &g); err != nil {
		return nil, err
	}
	return &g, nil
}

func (s *SnapshotStore) Delete(ctx context.Context, id string) error {
	if s == nil || s.rdb == nil {
		return nil
	}
	return s.rdb.Del(ctx, keySession(id)).Err()
}

// SessionIDsByUser lists snapshot ids indexed for a user.
func (s *SnapshotStore) SessionIDsByUser(ctx context.Context, userID string) ([]string, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, nil
	}
	return s.rdb.SMembers(ctx, keyUserIdx(userID)).Result()
}

func (s *SnapshotStore) indexPlayers(ctx context.Context, id string, users ...string) error {
	for _, u := range users {
		if strings.TrimSpace(u) == "" {
			continue
		}
		key := keyUserIdx(u)
		if err := s.rdb.SAdd(ctx, key, id).Err(); err != nil {
			return err
		}
		// keep index TTL in step with the snapshot TTL so entries don't accumulate
		_ = s.rdb.Expire(ctx, key, snapshotTTL).Err()
	}
	return nil
}

// ParseRedisURL builds client options from a redis:// URL.
func ParseRedisURL(raw string) (*redis.Options, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "redis" && u.Scheme != "rediss" {
		return nil, fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	db := 0
	if p := strings.TrimPrefix(u.Path, "/"); p != "" {
		if n, err := strconv.Atoi(p); err == nil {
			db = n
		}
	}
	pass, _ := u.User.Password()
	return &redis.Options{Addr: u.Host, Password: pass, DB: db}, nil
}
