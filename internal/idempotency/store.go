package idempotency

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// idem:order:create:{user_id}:{key} -> "pending" | order id
	KeyOrderCreate = "idem:order:create:%d:%s"

	pendingValue = "pending"
)

var (
	TTLIdempotency = 24 * time.Hour
	TTLPending     = 2 * time.Minute
)

var ErrInFlight = errors.New("request with this idempotency key is still in progress")

type State int

const (
	// StateNew means the caller now owns the key and must Complete or Release it.
	StateNew State = iota
	// StateDone means an earlier request with the key already produced an order.
	StateDone
)

// Store guards create-order requests by client-supplied key.
type Store interface {
	Begin(ctx context.Context, userID int64, key string) (State, int64, error)
	Complete(ctx context.Context, userID int64, key string, orderID int64) error
	Release(ctx context.Context, userID int64, key string) error
}

// cmdable is the subset of the redis client the store uses.
type cmdable interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

type redisStore struct {
	rdb cmdable
}

func NewRedisStore(rdb cmdable) Store {
	return &redisStore{rdb: rdb}
}

// NewClient returns a redis client for addr.
func NewClient(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
	})
}

func redisKey(userID int64, key string) string {
	return fmt.Sprintf(KeyOrderCreate, userID, key)
}

func (s *redisStore) Begin(ctx context.Context, userID int64, key string) (State, int64, error) {
	k := redisKey(userID, key)

	claimed, err := s.rdb.SetNX(ctx, k, pendingValue, TTLPending).Result()
	if err != nil {
		return 0, 0, fmt.Errorf("claim idempotency key: %w", err)
	}
	if claimed {
		return StateNew, 0, nil
	}

	val, err := s.rdb.Get(ctx, k).Result()
	if errors.Is(err, redis.Nil) {
		// expired between SETNX and GET; try once more
		claimed, err = s.rdb.SetNX(ctx, k, pendingValue, TTLPending).Result()
		if err != nil {
			return 0, 0, fmt.Errorf("claim idempotency key: %w", err)
		}
		if claimed {
			return StateNew, 0, nil
		}
		return 0, 0, ErrInFlight
	}
	if err != nil {
		return 0, 0, fmt.Errorf("read idempotency key: %w", err)
	}

	if val == pendingValue {
		return 0, 0, ErrInFlight
	}
	orderID, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("corrupt idempotency value %q: %w", val, err)
	}
	return StateDone, orderID, nil
}

func (s *redisStore) Complete(ctx context.Context, userID int64, key string, orderID int64) error {
	if err := s.rdb.Set(ctx, redisKey(userID, key), strconv.FormatInt(orderID, 10), TTLIdempotency).Err(); err != nil {
		return fmt.Errorf("complete idempotency key: %w", err)
	}
	return nil
}

func (s *redisStore) Release(ctx context.Context, userID int64, key string) error {
	if err := s.rdb.Del(ctx, redisKey(userID, key)).Err(); err != nil {
		return fmt.Errorf("release idempotency key: %w", err)
	}
	return nil
}
