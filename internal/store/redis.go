package store

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/redis/go-redis/v9"

	logx "remindbot/pkg/logx"
)

const defaultRedisKey = "remindbot:snapshot"

// redisStore keeps the whole snapshot as one JSON value, preserving the
// save-all/load-all contract (a SET is atomic, so readers never see a
// partially-written snapshot).
type redisStore struct {
	rdb *redis.Client
	log logx.Logger
	key string
}

func openRedis(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Addr) == "" {
		return nil, errors.New("storage.addr is required for redis driver")
	}
	key := strings.TrimSpace(cfg.Path)
	if key == "" {
		key = defaultRedisKey
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return &redisStore{rdb: rdb, log: log, key: key}, nil
}

func (s *redisStore) LoadAll(ctx context.Context) (Snapshot, error) {
	b, err := s.rdb.Get(ctx, s.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Snapshot{}, nil
		}
		s.log.Warn("snapshot read failed; starting empty", logx.String("key", s.key), logx.Err(err))
		return Snapshot{}, nil
	}

	var snap Snapshot
	if err := json.Unmarshal(b, &snap); err != nil {
		s.log.Warn("snapshot parse failed; starting empty", logx.String("key", s.key), logx.Err(err))
		return Snapshot{}, nil
	}
	if snap == nil {
		snap = Snapshot{}
	}
	for recipient, entries := range snap {
		for i := range entries {
			entries[i].FireAt = entries[i].FireAt.UTC()
		}
		snap[recipient] = entries
	}
	return snap, nil
}

func (s *redisStore) SaveAll(ctx context.Context, snap Snapshot) error {
	if snap == nil {
		snap = Snapshot{}
	}
	b, err := json.Marshal(normalizeUTC(snap))
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, s.key, b, 0).Err()
}

func (s *redisStore) Close() error { return s.rdb.Close() }
