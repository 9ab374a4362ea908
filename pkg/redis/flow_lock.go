package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// releaseIfOwner deletes the lock only when it still carries our token.
var releaseIfOwner = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// extendIfOwner resets the lock TTL only when it still carries our token.
var extendIfOwner = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// FlowLockStore serializes work on a single settlement flow across instances.
type FlowLockStore struct {
	client func() *redis.Client
}

// NewFlowLockStore creates a lock store backed by the shared client.
func NewFlowLockStore() *FlowLockStore {
	return &FlowLockStore{client: GetClient}
}

// NewFlowLockStoreWithClient creates a lock store bound to a specific client.
func NewFlowLockStoreWithClient(c *redis.Client) *FlowLockStore {
	return &FlowLockStore{client: func() *redis.Client { return c }}
}

func flowLockKey(flowID string) string {
	return fmt.Sprintf("lock:flow:%s", flowID)
}

// Acquire attempts to take the lock for flowID. It returns false when another
// holder already owns it.
func (s *FlowLockStore) Acquire(ctx context.Context, flowID, token string, ttl time.Duration) (bool, error) {
	ok, err := s.client().SetNX(ctx, flowLockKey(flowID), token, ttl).Result()
	if err != nil {
		return false, err
	}
	return ok, nil
}

// Release drops the lock if token still owns it.
func (s *FlowLockStore) Release(ctx context.Context, flowID, token string) error {
	return releaseIfOwner.Run(ctx, s.client(), []string{flowLockKey(flowID)}, token).Err()
}

// Extend pushes the lock expiry ttl into the future while token still owns
// it. It returns false once the lock has expired or changed hands.
func (s *FlowLockStore) Extend(ctx context.Context, flowID, token string, ttl time.Duration) (bool, error) {
	n, err := extendIfOwner.Run(ctx, s.client(), []string{flowLockKey(flowID)}, token, ttl.Milliseconds()).Int64()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
