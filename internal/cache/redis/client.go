package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/BroWo1/factcheck-backend/internal/analysis"
	"github.com/BroWo1/factcheck-backend/pkg/config"
	"github.com/BroWo1/factcheck-backend/pkg/logger"
)

const leasePrefix = "lease:session:"

// releaseScript deletes the lease only if it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type Client struct {
	client   *redis.Client
	leaseTTL time.Duration
}

func NewClient(cfg config.RedisConfig) (*Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := client.Ping(ctx).Result(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	leaseTTL := time.Duration(cfg.LeaseTTLSec) * time.Second
	if leaseTTL <= 0 {
		leaseTTL = 15 * time.Minute
	}

	logger.Info("Redis client initialized", zap.String("addr", cfg.Addr()))

	return &Client{client: client, leaseTTL: leaseTTL}, nil
}

func (c *Client) Close() error {
	return c.client.Close()
}

func (c *Client) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *Client) SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal cache value: %w", err)
	}

	err = c.client.Set(ctx, key, data, ttl).Err()
	if err != nil {
		return fmt.Errorf("failed to set cache key: %w", err)
	}

	logger.Debug("Value cached", zap.String("key", key), zap.Duration("ttl", ttl))
	return nil
}

func (c *Client) GetJSON(ctx context.Context, key string, dest any) (bool, error) {
	data, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to get cache key: %w", err)
	}

	err = json.Unmarshal(data, dest)
	if err != nil {
		return false, fmt.Errorf("failed to unmarshal cached value: %w", err)
	}

	logger.Debug("Cache hit", zap.String("key", key))
	return true, nil
}

// Acquire takes a cross-process lease on a session so that only one worker
// runs it. The lease expires on its own if the holder dies.
func (c *Client) Acquire(ctx context.Context, sessionID string) (func(), error) {
	key := leasePrefix + sessionID
	token := uuid.New().String()

	ok, err := c.client.SetNX(ctx, key, token, c.leaseTTL).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire session lease: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("session %s leased by another worker: %w", sessionID, analysis.ErrRunInProgress)
	}

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := releaseScript.Run(ctx, c.client, []string{key}, token).Err(); err != nil && !errors.Is(err, redis.Nil) {
			logger.Warn("Failed to release session lease", zap.String("session_id", sessionID), zap.Error(err))
		}
	}, nil
}
