package loan

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vaultlink/vaultlink/internal/game"
	"github.com/vaultlink/vaultlink/internal/item"
)

// returnsPrefix versions the pending-return keyspace.
const returnsPrefix = "loan:returns:v1:"

// ReturnQueue stores collateral owed to borrowers who were offline when a
// negotiation ended. Push must not discard items; Drain removes and returns
// everything owed to the player.
type ReturnQueue interface {
	Push(ctx context.Context, player game.PlayerID, items []item.Stack) error
	Drain(ctx context.Context, player game.PlayerID) ([]item.Stack, error)
}

// RedisQueue persists pending returns in Redis so they survive a server
// restart.
type RedisQueue struct {
	cache *redis.Client
}

// NewRedisQueue builds a Redis-backed pending-return queue.
func NewRedisQueue(cache *redis.Client) *RedisQueue {
	return &RedisQueue{cache: cache}
}

func (q *RedisQueue) Push(ctx context.Context, player game.PlayerID, items []item.Stack) error {
	encoded, err := item.EncodeStacks(items)
	if err != nil {
		return err
	}
	pushCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return q.cache.RPush(pushCtx, returnsPrefix+string(player), encoded).Err()
}

func (q *RedisQueue) Drain(ctx context.Context, player game.PlayerID) ([]item.Stack, error) {
	key := returnsPrefix + string(player)
	drainCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	var entries []string
	// Read and delete atomically so a crash between the two cannot
	// duplicate a return.
	err := q.cache.Watch(drainCtx, func(tx *redis.Tx) error {
		var err error
		entries, err = tx.LRange(drainCtx, key, 0, -1).Result()
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(drainCtx, func(pipe redis.Pipeliner) error {
			pipe.Del(drainCtx, key)
			return nil
		})
		return err
	}, key)
	if err != nil {
		return nil, err
	}

	var items []item.Stack
	for _, entry := range entries {
		stacks, err := item.DecodeStacks(entry)
		if err != nil {
			return nil, err
		}
		items = append(items, stacks...)
	}
	return items, nil
}

// MemoryQueue keeps pending returns in process memory. This preserves the
// original best-effort semantics: a restart loses the queue.
type MemoryQueue struct {
	mu      sync.Mutex
	pending map[game.PlayerID][]item.Stack
}

// NewMemoryQueue builds an in-memory pending-return queue.
func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{pending: make(map[game.PlayerID][]item.Stack)}
}

func (q *MemoryQueue) Push(_ context.Context, player game.PlayerID, items []item.Stack) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending[player] = append(q.pending[player], item.Clone(items)...)
	return nil
}

func (q *MemoryQueue) Drain(_ context.Context, player game.PlayerID) ([]item.Stack, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	items := q.pending[player]
	delete(q.pending, player)
	return items, nil
}
