package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"
)

const maxTxRetries = 8

// redisStore keeps each session as JSON under <prefix>id:<id>, the
// in-progress pointer under <prefix>active:<user>|<quiz> and a per-user set
// of session ids under <prefix>user:<user>.
type redisStore struct {
	client *redis.Client
	prefix string
}

// NewRedis constructs a redis-backed session store.
func NewRedis(cfg Config) (Store, error) {
	if cfg.Redis == nil {
		return nil, fmt.Errorf("redis configuration missing")
	}
	if cfg.Redis.Addr == "" {
		return nil, fmt.Errorf("redis address required")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Username: cfg.Redis.Username,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	prefix := cfg.Redis.Prefix
	if prefix == "" {
		prefix = "voicequiz:session:"
	}
	return &redisStore{client: client, prefix: prefix}, nil
}

func (s *redisStore) sessionKey(id string) string { return s.prefix + "id:" + id }
func (s *redisStore) activeKey(userID, quizID string) string {
	return s.prefix + "active:" + pairKey(userID, quizID)
}
func (s *redisStore) userKey(userID string) string { return s.prefix + "user:" + userID }

func (s *redisStore) Create(ctx context.Context, gs GameSession) error {
	data, err := sonic.Marshal(gs)
	if err != nil {
		return err
	}

	if gs.State == StateInProgress {
		ok, err := s.client.SetNX(ctx, s.activeKey(gs.UserID, gs.QuizID), gs.ID, 0).Result()
		if err != nil {
			return err
		}
		if !ok {
			return ErrActiveExists
		}
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.sessionKey(gs.ID), data, 0)
		pipe.SAdd(ctx, s.userKey(gs.UserID), gs.ID)
		return nil
	})
	if err != nil && gs.State == StateInProgress {
		_ = s.client.Del(ctx, s.activeKey(gs.UserID, gs.QuizID)).Err()
	}
	return err
}

func (s *redisStore) GetActive(ctx context.Context, userID, quizID string) (GameSession, error) {
	id, err := s.client.Get(ctx, s.activeKey(userID, quizID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return GameSession{}, ErrNotFound
		}
		return GameSession{}, err
	}
	return s.Get(ctx, id)
}

func (s *redisStore) Get(ctx context.Context, id string) (GameSession, error) {
	raw, err := s.client.Get(ctx, s.sessionKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return GameSession{}, ErrNotFound
		}
		return GameSession{}, err
	}
	var gs GameSession
	if err := sonic.Unmarshal(raw, &gs); err != nil {
		return GameSession{}, err
	}
	return gs, nil
}

// Update runs fn inside WATCH/MULTI on the session key and retries when
// another writer got there first.
func (s *redisStore) Update(ctx context.Context, id string, fn func(*GameSession) error) (GameSession, error) {
	key := s.sessionKey(id)
	var updated GameSession

	txf := func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return ErrNotFound
			}
			return err
		}
		var current GameSession
		if err := sonic.Unmarshal(raw, &current); err != nil {
			return err
		}
		wasActive := current.State == StateInProgress

		if err := fn(&current); err != nil {
			return err
		}
		data, err := sonic.Marshal(current)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			if wasActive && current.State != StateInProgress {
				pipe.Del(ctx, s.activeKey(current.UserID, current.QuizID))
			}
			return nil
		})
		if err == nil {
			updated = current
		}
		return err
	}

	for i := 0; i < maxTxRetries; i++ {
		err := s.client.Watch(ctx, txf, key)
		if err == nil {
			return updated, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return GameSession{}, err
	}
	return GameSession{}, fmt.Errorf("session %s: too many concurrent updates", id)
}

func (s *redisStore) ListByUser(ctx context.Context, userID string) ([]GameSession, error) {
	ids, err := s.client.SMembers(ctx, s.userKey(userID)).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []GameSession{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.sessionKey(id)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}

	out := make([]GameSession, 0, len(values))
	for _, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		var gs GameSession
		if err := sonic.UnmarshalString(raw, &gs); err != nil {
			return nil, err
		}
		out = append(out, gs)
	}
	sortNewestFirst(out)
	return out, nil
}

func (s *redisStore) Close(context.Context) error {
	return s.client.Close()
}
