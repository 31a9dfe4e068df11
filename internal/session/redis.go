package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps each session in two keys, one for cart items and one for
// the selected discount. Every write refreshes the TTL of the key it touches.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

func itemsKey(key string) string {
	return fmt.Sprintf("session:%s:items", key)
}

func discountKey(key string) string {
	return fmt.Sprintf("session:%s:discount", key)
}

// getter is satisfied by *redis.Client and by *redis.Tx inside Watch.
type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func readItems(ctx context.Context, c getter, key string) ([]Item, error) {
	data, err := c.Get(ctx, itemsKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var items []Item
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("unmarshal session items failed: %w", err)
	}
	return items, nil
}

func (r *RedisStore) Items(ctx context.Context, key string) ([]Item, error) {
	return readItems(ctx, r.client, key)
}

// UpdateItems uses WATCH/MULTI so concurrent updates of one session retry
// instead of overwriting each other.
func (r *RedisStore) UpdateItems(ctx context.Context, key string, fn func(items []Item) ([]Item, error)) error {
	k := itemsKey(key)
	txf := func(tx *redis.Tx) error {
		items, err := readItems(ctx, tx, key)
		if err != nil {
			return err
		}
		updated, err := fn(items)
		if err != nil {
			return err
		}

		data, err := json.Marshal(updated)
		if err != nil {
			return fmt.Errorf("marshal session items failed: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if len(updated) == 0 {
				pipe.Del(ctx, k)
				return nil
			}
			pipe.Set(ctx, k, data, r.ttl)
			return nil
		})
		return err
	}

	for i := 0; i < maxUpdateAttempts; i++ {
		err := r.client.Watch(ctx, txf, k)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return ErrConflict
}

func (r *RedisStore) ClearItems(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, itemsKey(key)).Err(); err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return nil
}

func (r *RedisStore) Discount(ctx context.Context, key string) (*Discount, error) {
	data, err := r.client.Get(ctx, discountKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var d Discount
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("unmarshal session discount failed: %w", err)
	}
	return &d, nil
}

func (r *RedisStore) SetDiscount(ctx context.Context, key string, d Discount) error {
	data, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("marshal session discount failed: %w", err)
	}
	if err := r.client.Set(ctx, discountKey(key), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (r *RedisStore) ClearDiscount(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, discountKey(key)).Err(); err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return nil
}
