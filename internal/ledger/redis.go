package ledger

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

// RedisStore keeps one string key per account. Reserve runs a Lua script so
// the check and the decrement are a single atomic step on the server; two
// concurrent callers can never both spend the last credit.
type RedisStore struct {
	client    goredis.Cmdable
	keyPrefix string
}

var _ Store = (*RedisStore)(nil)

// RedisOption configures RedisStore.
type RedisOption func(*RedisStore)

// WithKeyPrefix sets the Redis key prefix (default "ledger:account:").
func WithKeyPrefix(prefix string) RedisOption {
	return func(s *RedisStore) { s.keyPrefix = prefix }
}

// NewRedis creates a Redis-backed Store. The client must be a connected
// *goredis.Client or *goredis.ClusterClient.
func NewRedis(client goredis.Cmdable, opts ...RedisOption) *RedisStore {
	s := &RedisStore{
		client:    client,
		keyPrefix: "ledger:account:",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisStore) accountKey(key string) string { return s.keyPrefix + key }

// reserveScript atomically checks and decrements a balance.
// KEYS[1] = account key
// ARGV[1] = cost
//
// Returns {status, value}:
//
//	{ 1, remaining} = granted
//	{ 0, balance}   = insufficient, balance untouched
//	{-1, 0}         = account not found
var reserveScript = goredis.NewScript(`
local bal = redis.call("GET", KEYS[1])
if not bal then
    return {-1, 0}
end
bal = tonumber(bal)
local cost = tonumber(ARGV[1])
if bal < cost then
    return {0, bal}
end
local rem = redis.call("DECRBY", KEYS[1], cost)
return {1, rem}
`)

func (s *RedisStore) Create(ctx context.Context, initialBalance int64) (string, error) {
	key := uuid.NewString()
	if err := s.client.Set(ctx, s.accountKey(key), initialBalance, 0).Err(); err != nil {
		return "", fmt.Errorf("ledger/redis: create: %w", err)
	}
	return key, nil
}

func (s *RedisStore) Reserve(ctx context.Context, key string, cost int64) (Reservation, error) {
	vals, err := reserveScript.Run(ctx, s.client, []string{s.accountKey(key)}, cost).Int64Slice()
	if err != nil {
		return Reservation{}, fmt.Errorf("ledger/redis: reserve: %w", err)
	}
	if len(vals) != 2 {
		return Reservation{}, fmt.Errorf("ledger/redis: unexpected reserve result: %v", vals)
	}

	switch vals[0] {
	case 1:
		return Reservation{Key: key, Cost: cost, Remaining: vals[1]}, nil
	case 0:
		return Reservation{}, &InsufficientError{Balance: vals[1]}
	case -1:
		return Reservation{}, ErrNotFound
	default:
		return Reservation{}, fmt.Errorf("ledger/redis: unexpected reserve status: %d", vals[0])
	}
}

func (s *RedisStore) Balance(ctx context.Context, key string) (int64, error) {
	bal, err := s.client.Get(ctx, s.accountKey(key)).Int64()
	if err == goredis.Nil {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("ledger/redis: balance: %w", err)
	}
	return bal, nil
}
