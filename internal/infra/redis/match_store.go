package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"nurseconnect-quiz-service/internal/app"
	"nurseconnect-quiz-service/internal/domain"
)

var _ app.MatchStore = (*MatchStore)(nil)

// MatchStore keeps match documents in Redis so several service instances share them.
// Keys:
//
//	quiz:match:{id}           JSON document
//	quiz:match:{id}:events    pub/sub channel carrying every committed document
//	quiz:match:open:{pool}    ZSET of WAITING match ids scored by creation time
type MatchStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewMatchStore keeps documents for ttl after their last write; zero keeps them until deleted.
func NewMatchStore(client *redis.Client, ttl time.Duration) *MatchStore {
	return &MatchStore{client: client, ttl: ttl}
}

func (s *MatchStore) key(id string) string {
	return "quiz:match:" + id
}

func (s *MatchStore) channel(id string) string {
	return "quiz:match:" + id + ":events"
}

func (s *MatchStore) openKey(pool domain.PoolKey) string {
	return "quiz:match:open:" + pool.String()
}

func poolOf(m domain.Match) domain.PoolKey {
	return domain.PoolKey{Course: m.Course, Unit: m.Unit, Career: m.Career}
}

func (s *MatchStore) Create(ctx context.Context, m domain.Match) error {
	m.Version = 1
	data, err := json.Marshal(m)
	if err != nil {
		return err
	}
	ok, err := s.client.SetNX(ctx, s.key(m.ID), data, s.ttl).Result()
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("match %s already exists", m.ID)
	}
	pipe := s.client.Pipeline()
	if m.Status == domain.MatchWaiting {
		pipe.ZAdd(ctx, s.openKey(poolOf(m)), redis.Z{Score: float64(m.CreatedAt.UnixNano()), Member: m.ID})
	}
	pipe.Publish(ctx, s.channel(m.ID), data)
	_, err = pipe.Exec(ctx)
	return err
}

func (s *MatchStore) Get(ctx context.Context, id string) (domain.Match, error) {
	data, err := s.client.Get(ctx, s.key(id)).Bytes()
	if err == redis.Nil {
		return domain.Match{}, domain.ErrMatchNotFound
	}
	if err != nil {
		return domain.Match{}, err
	}
	var m domain.Match
	if err := json.Unmarshal(data, &m); err != nil {
		return domain.Match{}, fmt.Errorf("decode match %s: %w", id, err)
	}
	return m, nil
}

// Update is an optimistic WATCH/MULTI transaction on the match key.
func (s *MatchStore) Update(ctx context.Context, id string, fn func(*domain.Match) error) (domain.Match, error) {
	key := s.key(id)
	var committed domain.Match
	txf := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if err == redis.Nil {
			return domain.ErrMatchNotFound
		}
		if err != nil {
			return err
		}
		var m domain.Match
		if err := json.Unmarshal(data, &m); err != nil {
			return fmt.Errorf("decode match %s: %w", id, err)
		}
		wasWaiting := m.Status == domain.MatchWaiting
		if err := fn(&m); err != nil {
			return err
		}
		m.Version++
		next, err := json.Marshal(m)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, next, s.ttl)
			if wasWaiting && m.Status != domain.MatchWaiting {
				pipe.ZRem(ctx, s.openKey(poolOf(m)), m.ID)
			}
			pipe.Publish(ctx, s.channel(id), next)
			return nil
		})
		if err == nil {
			committed = m
		}
		return err
	}

	for attempt := 0; attempt < app.MaxUpdateAttempts; attempt++ {
		err := s.client.Watch(ctx, txf, key)
		if err == nil {
			return committed, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return domain.Match{}, err
	}
	return domain.Match{}, fmt.Errorf("%w: %w", domain.ErrMatchUnavailable, domain.ErrConcurrentMutation)
}

// Subscribe relays the match channel. The first value is the document at subscription time.
// The caller must invoke the returned cancel function to avoid leaks.
func (s *MatchStore) Subscribe(ctx context.Context, id string) (<-chan domain.Match, func(), error) {
	pubsub := s.client.Subscribe(ctx, s.channel(id))
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, nil, fmt.Errorf("subscribe match %s: %w", id, err)
	}
	current, err := s.Get(ctx, id)
	if err != nil {
		_ = pubsub.Close()
		return nil, nil, err
	}

	ch := make(chan domain.Match, 8)
	ch <- current
	go func() {
		defer close(ch)
		for msg := range pubsub.Channel() {
			var m domain.Match
			if err := json.Unmarshal([]byte(msg.Payload), &m); err != nil {
				continue
			}
			select {
			case ch <- m:
			default:
				// slow subscriber: keep only the newest snapshot
				select {
				case <-ch:
				default:
				}
				ch <- m
			}
		}
	}()

	var once sync.Once
	cancel := func() {
		once.Do(func() { _ = pubsub.Close() })
	}
	return ch, cancel, nil
}

// Open returns the WAITING matches of a pool, oldest first. Ids of matches that are gone or
// no longer waiting are pruned from the set.
func (s *MatchStore) Open(ctx context.Context, pool domain.PoolKey) ([]domain.Match, error) {
	openKey := s.openKey(pool)
	ids, err := s.client.ZRange(ctx, openKey, 0, -1).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.key(id)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}

	var out []domain.Match
	var stale []interface{}
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			stale = append(stale, ids[i])
			continue
		}
		var m domain.Match
		if err := json.Unmarshal([]byte(raw), &m); err != nil || m.Status != domain.MatchWaiting {
			stale = append(stale, ids[i])
			continue
		}
		out = append(out, m)
	}
	if len(stale) > 0 {
		_ = s.client.ZRem(ctx, openKey, stale...).Err()
	}
	return out, nil
}

func (s *MatchStore) Delete(ctx context.Context, id string) error {
	m, err := s.Get(ctx, id)
	if errors.Is(err, domain.ErrMatchNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, s.key(id))
	pipe.ZRem(ctx, s.openKey(poolOf(m)), id)
	_, err = pipe.Exec(ctx)
	return err
}
