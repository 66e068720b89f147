// Package redis provides a Redis-based implementation of store.Store.
//
// Lists grow on the left: Append is LPUSH and the head of every list is its
// right end, so PopHead is (B)RPOP and MoveHead is (B)RPOPLPUSH. Both the
// ready and the reserved list share this orientation.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"jobqueue-go/internal/config"
	"jobqueue-go/internal/metrics"
	"jobqueue-go/internal/store"
)

const storeName = "redis"

// Ensure *Store implements store.Store at compile time.
var _ store.Store = (*Store)(nil)

// Store implements store.Store using Redis.
type Store struct {
	client *redis.Client
}

// NewStore creates a new Redis-backed store and verifies the connection.
func NewStore(cfg *config.RedisConfig) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr(),
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
		// Lets a cancelled caller abandon a blocking pop.
		ContextTimeoutEnabled: true,
	})

	// Verify connection
	ctx, cancel := context.WithTimeout(context.Background(), cfg.DialTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &Store{client: client}, nil
}

// NewStoreWithClient wraps an existing client.
func NewStoreWithClient(client *redis.Client) *Store {
	return &Store{client: client}
}

// --- Set Operations ---

// AddMember adds member to the set at setKey, reporting whether it was absent.
func (s *Store) AddMember(ctx context.Context, setKey, member string) (added bool, err error) {
	defer metrics.ObserveStorage(storeName, "add_member", time.Now(), &err)

	n, err := s.client.SAdd(ctx, setKey, member).Result()
	if err != nil {
		return false, fmt.Errorf("failed to add set member: %w", err)
	}

	return n == 1, nil
}

// RemoveMember removes member from the set at setKey.
func (s *Store) RemoveMember(ctx context.Context, setKey, member string) (err error) {
	defer metrics.ObserveStorage(storeName, "remove_member", time.Now(), &err)

	if err := s.client.SRem(ctx, setKey, member).Err(); err != nil {
		return fmt.Errorf("failed to remove set member: %w", err)
	}

	return nil
}

// --- List Operations ---

// Append pushes an entry onto the tail (left end) of the list.
func (s *Store) Append(ctx context.Context, listKey string, entry []byte) (err error) {
	defer metrics.ObserveStorage(storeName, "append", time.Now(), &err)

	if err := s.client.LPush(ctx, listKey, entry).Err(); err != nil {
		return fmt.Errorf("failed to append entry: %w", err)
	}

	return nil
}

// PopHead pops the head (right end) of the list.
// Blocks natively with BRPOP when block is at least one second.
func (s *Store) PopHead(ctx context.Context, listKey string, block time.Duration) (entry []byte, err error) {
	defer metrics.ObserveStorage(storeName, "pop_head", time.Now(), &err)

	if block >= time.Second {
		// BRPOP replies with [key, value]
		res, err := s.client.BRPop(ctx, block.Truncate(time.Second), listKey).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return nil, nil
			}
			return nil, fmt.Errorf("failed to pop entry: %w", err)
		}
		if len(res) != 2 {
			return nil, fmt.Errorf("failed to pop entry: unexpected reply length %d", len(res))
		}
		return []byte(res[1]), nil
	}

	data, err := s.client.RPop(ctx, listKey).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to pop entry: %w", err)
	}

	return data, nil
}

// MoveHead atomically moves the head of srcKey onto the tail of dstKey.
// Blocks natively with BRPOPLPUSH when block is at least one second.
func (s *Store) MoveHead(ctx context.Context, srcKey, dstKey string, block time.Duration) (entry []byte, err error) {
	defer metrics.ObserveStorage(storeName, "move_head", time.Now(), &err)

	var cmd *redis.StringCmd
	if block >= time.Second {
		cmd = s.client.BRPopLPush(ctx, srcKey, dstKey, block.Truncate(time.Second))
	} else {
		cmd = s.client.RPopLPush(ctx, srcKey, dstKey)
	}

	data, err := cmd.Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to move entry: %w", err)
	}

	return data, nil
}

// Range returns up to count entries starting at start, head first.
func (s *Store) Range(ctx context.Context, listKey string, start, count int64) (entries [][]byte, err error) {
	defer metrics.ObserveStorage(storeName, "range", time.Now(), &err)

	result := make([][]byte, 0)
	if start < 0 || count <= 0 {
		return result, nil
	}

	// The head is the right end, so position p maps to index -(p+1).
	values, err := s.client.LRange(ctx, listKey, -(start + count), -(start + 1)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read entries: %w", err)
	}

	for i := len(values) - 1; i >= 0; i-- {
		result = append(result, []byte(values[i]))
	}

	return result, nil
}

// RemoveByID removes the oldest entry in listKey carrying id.
// The raw entry is located first, then removed with LREM so that concurrent
// callers race on the removal and only one of them observes success.
func (s *Store) RemoveByID(ctx context.Context, listKey, id string) (removed bool, err error) {
	defer metrics.ObserveStorage(storeName, "remove_by_id", time.Now(), &err)

	values, err := s.client.LRange(ctx, listKey, 0, -1).Result()
	if err != nil {
		return false, fmt.Errorf("failed to read entries: %w", err)
	}

	for i := len(values) - 1; i >= 0; i-- {
		entryID, decodeErr := store.EntryID([]byte(values[i]))
		if decodeErr != nil || entryID != id {
			continue
		}

		n, err := s.client.LRem(ctx, listKey, -1, values[i]).Result()
		if err != nil {
			return false, fmt.Errorf("failed to remove entry: %w", err)
		}
		return n > 0, nil
	}

	return false, nil
}

// Len returns the length of the list.
func (s *Store) Len(ctx context.Context, listKey string) (n int64, err error) {
	defer metrics.ObserveStorage(storeName, "len", time.Now(), &err)

	n, err = s.client.LLen(ctx, listKey).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to get list length: %w", err)
	}

	return n, nil
}

// --- Lifecycle ---

// Blocking reports true: BRPOP and BRPOPLPUSH block server-side.
func (s *Store) Blocking() bool {
	return true
}

// Ping verifies the connection.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to ping redis: %w", err)
	}
	return nil
}

// Close closes the Redis client connection.
func (s *Store) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}
