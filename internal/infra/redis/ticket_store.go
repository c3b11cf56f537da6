package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"nurseconnect-quiz-service/internal/app"
	"nurseconnect-quiz-service/internal/domain"
)

var _ app.TicketStore = (*TicketStore)(nil)

// TicketStore keeps matchmaking tickets in Redis.
// Keys:
//
//	mm:ticket:{id}   JSON ticket
//	mm:pool:{pool}   ZSET of WAITING ticket ids scored by join time (FIFO)
//	mm:pools         SET of pool keys that ever held a ticket
type TicketStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewTicketStore keeps tickets for ttl after their last write; zero keeps them until removed.
func NewTicketStore(client *redis.Client, ttl time.Duration) *TicketStore {
	return &TicketStore{client: client, ttl: ttl}
}

func (s *TicketStore) key(id string) string {
	return "mm:ticket:" + id
}

func (s *TicketStore) poolKey(pool domain.PoolKey) string {
	return "mm:pool:" + pool.String()
}

const poolsKey = "mm:pools"

func (s *TicketStore) Put(ctx context.Context, t domain.Ticket) error {
	data, err := json.Marshal(t)
	if err != nil {
		return err
	}
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.key(t.ID), data, s.ttl)
	if t.Status == domain.TicketWaiting {
		pipe.ZAdd(ctx, s.poolKey(t.Pool()), redis.Z{Score: float64(t.JoinTime.UnixNano()), Member: t.ID})
		pipe.SAdd(ctx, poolsKey, s.poolKey(t.Pool()))
	}
	_, err = pipe.Exec(ctx)
	return err
}

func (s *TicketStore) Get(ctx context.Context, id string) (domain.Ticket, error) {
	return s.get(ctx, s.client, id)
}

func (s *TicketStore) get(ctx context.Context, c redis.Cmdable, id string) (domain.Ticket, error) {
	data, err := c.Get(ctx, s.key(id)).Bytes()
	if err == redis.Nil {
		return domain.Ticket{}, domain.ErrTicketNotFound
	}
	if err != nil {
		return domain.Ticket{}, err
	}
	var t domain.Ticket
	if err := json.Unmarshal(data, &t); err != nil {
		return domain.Ticket{}, fmt.Errorf("decode ticket %s: %w", id, err)
	}
	return t, nil
}

func (s *TicketStore) Waiting(ctx context.Context, pool domain.PoolKey) ([]domain.Ticket, error) {
	return s.waiting(ctx, s.poolKey(pool))
}

func (s *TicketStore) AllWaiting(ctx context.Context) ([]domain.Ticket, error) {
	pools, err := s.client.SMembers(ctx, poolsKey).Result()
	if err != nil {
		return nil, err
	}
	var out []domain.Ticket
	for _, key := range pools {
		tickets, err := s.waiting(ctx, key)
		if err != nil {
			return nil, err
		}
		out = append(out, tickets...)
	}
	return out, nil
}

func (s *TicketStore) waiting(ctx context.Context, poolKey string) ([]domain.Ticket, error) {
	ids, err := s.client.ZRange(ctx, poolKey, 0, -1).Result()
	if err != nil || len(ids) == 0 {
		return nil, err
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.key(id)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}
	out := make([]domain.Ticket, 0, len(values))
	var stale []interface{}
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			stale = append(stale, ids[i])
			continue
		}
		var t domain.Ticket
		if err := json.Unmarshal([]byte(raw), &t); err != nil || t.Status != domain.TicketWaiting {
			stale = append(stale, ids[i])
			continue
		}
		out = append(out, t)
	}
	if len(stale) > 0 {
		_ = s.client.ZRem(ctx, poolKey, stale...).Err()
	}
	return out, nil
}

// Transition moves a ticket from one status to another inside a WATCH transaction.
func (s *TicketStore) Transition(ctx context.Context, id string, from, to domain.TicketStatus, matchID string) (domain.Ticket, error) {
	key := s.key(id)
	var out domain.Ticket
	txf := func(tx *redis.Tx) error {
		t, err := s.get(ctx, tx, id)
		if err != nil {
			return err
		}
		if t.Status != from {
			out = t
			return domain.ErrConcurrentMutation
		}
		t.Status = to
		t.MatchID = matchID
		data, err := json.Marshal(t)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, s.ttl)
			if from == domain.TicketWaiting {
				pipe.ZRem(ctx, s.poolKey(t.Pool()), t.ID)
			}
			if to == domain.TicketWaiting {
				pipe.ZAdd(ctx, s.poolKey(t.Pool()), redis.Z{Score: float64(t.JoinTime.UnixNano()), Member: t.ID})
			}
			return nil
		})
		out = t
		return err
	}

	for attempt := 0; attempt < app.MaxUpdateAttempts; attempt++ {
		err := s.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return out, err
	}
	return domain.Ticket{}, domain.ErrConcurrentMutation
}

// Claim matches every ticket inside one WATCH transaction over all of their keys.
func (s *TicketStore) Claim(ctx context.Context, matchID string, ids ...string) ([]domain.Ticket, error) {
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.key(id)
	}
	var claimed []domain.Ticket
	txf := func(tx *redis.Tx) error {
		claimed = make([]domain.Ticket, 0, len(ids))
		for _, id := range ids {
			t, err := s.get(ctx, tx, id)
			if err != nil {
				return err
			}
			if t.Status != domain.TicketWaiting {
				return domain.ErrConcurrentMutation
			}
			t.Status = domain.TicketMatched
			t.MatchID = matchID
			claimed = append(claimed, t)
		}
		_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			for _, t := range claimed {
				data, err := json.Marshal(t)
				if err != nil {
					return err
				}
				pipe.Set(ctx, s.key(t.ID), data, s.ttl)
				pipe.ZRem(ctx, s.poolKey(t.Pool()), t.ID)
			}
			return nil
		})
		return err
	}

	for attempt := 0; attempt < app.MaxUpdateAttempts; attempt++ {
		err := s.client.Watch(ctx, txf, keys...)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return claimed, nil
	}
	return nil, domain.ErrConcurrentMutation
}

func (s *TicketStore) DeleteIfWaiting(ctx context.Context, id string) (bool, error) {
	key := s.key(id)
	removed := false
	txf := func(tx *redis.Tx) error {
		t, err := s.get(ctx, tx, id)
		if errors.Is(err, domain.ErrTicketNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if t.Status != domain.TicketWaiting {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, key)
			pipe.ZRem(ctx, s.poolKey(t.Pool()), t.ID)
			return nil
		})
		removed = err == nil
		return err
	}

	for attempt := 0; attempt < app.MaxUpdateAttempts; attempt++ {
		err := s.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return removed, err
	}
	return false, domain.ErrConcurrentMutation
}
