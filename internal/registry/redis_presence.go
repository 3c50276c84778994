package registry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/menumaster/orderstream/internal/config"
	"github.com/menumaster/orderstream/pkg/log"
)

// RedisPresence mirrors live room keys into Redis with a TTL so peers and
// operators can see which outlets and orders have watchers on which node.
// It is advisory only: the hot routing path never consults it.
type RedisPresence struct {
	client            *redis.Client
	nodeID            string
	prefix            string
	keyTTL            time.Duration
	heartbeatInterval time.Duration

	mu          sync.RWMutex
	managedKeys map[string]struct{}
	cancel      context.CancelFunc
}

func NewRedisPresence(cfg config.RedisConfig, nodeID string) (*RedisPresence, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisPresence{
		client:            client,
		nodeID:            nodeID,
		prefix:            cfg.RegistryPrefix,
		keyTTL:            cfg.KeyTTL,
		heartbeatInterval: cfg.HeartbeatInterval,
		managedKeys:       make(map[string]struct{}),
	}, nil
}

func (r *RedisPresence) keyFor(roomKey string) string {
	return fmt.Sprintf("%s:%s", r.prefix, roomKey)
}

// RoomUp records that this node now has at least one session in the room.
func (r *RedisPresence) RoomUp(ctx context.Context, roomKey string) error {
	key := r.keyFor(roomKey)

	if err := r.client.Set(ctx, key, r.nodeID, r.keyTTL).Err(); err != nil {
		return fmt.Errorf("failed to register room: %w", err)
	}

	r.mu.Lock()
	r.managedKeys[key] = struct{}{}
	r.mu.Unlock()

	log.L().Debug().Str(log.FieldRoom, roomKey).Str(log.FieldNodeID, r.nodeID).Msg("room registered in presence")
	return nil
}

// RoomDown removes the room key once the last local session leaves.
func (r *RedisPresence) RoomDown(ctx context.Context, roomKey string) error {
	key := r.keyFor(roomKey)

	if err := r.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("failed to deregister room: %w", err)
	}

	r.mu.Lock()
	delete(r.managedKeys, key)
	r.mu.Unlock()

	log.L().Debug().Str(log.FieldRoom, roomKey).Msg("room deregistered from presence")
	return nil
}

// StartHeartbeat refreshes the TTL of every managed key until StopHeartbeat
// or ctx cancellation. Keys of a crashed node simply expire.
func (r *RedisPresence) StartHeartbeat(ctx context.Context) {
	hbCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel

	go func() {
		ticker := time.NewTicker(r.heartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-hbCtx.Done():
				return
			case <-ticker.C:
				r.refresh(hbCtx)
			}
		}
	}()
}

func (r *RedisPresence) refresh(ctx context.Context) {
	r.mu.RLock()
	keys := make([]string, 0, len(r.managedKeys))
	for key := range r.managedKeys {
		keys = append(keys, key)
	}
	r.mu.RUnlock()

	for _, key := range keys {
		if err := r.client.Expire(ctx, key, r.keyTTL).Err(); err != nil {
			log.L().Warn().Err(err).Str("key", key).Msg("failed to refresh presence key")
		}
	}
}

// StopHeartbeat stops TTL refresh.
func (r *RedisPresence) StopHeartbeat() {
	if r.cancel != nil {
		r.cancel()
	}
}

func (r *RedisPresence) Close() error {
	r.StopHeartbeat()
	return r.client.Close()
}
