package ratelimit

import (
	"time"

	"github.com/gofiber/fiber/v2"
	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// RateLimiter keeps one token bucket per client. Idle buckets expire.
type RateLimiter struct {
	buckets *gocache.Cache
	limit   rate.Limit
	burst   int
	logger  *zap.Logger
}

type Config struct {
	MaxRequestsPerMinute int
	IdleExpiry           time.Duration
	Logger               *zap.Logger
}

func New(cfg Config) *RateLimiter {
	if cfg.MaxRequestsPerMinute <= 0 {
		cfg.MaxRequestsPerMinute = 60
	}
	if cfg.IdleExpiry <= 0 {
		cfg.IdleExpiry = 10 * time.Minute
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	return &RateLimiter{
		buckets: gocache.New(cfg.IdleExpiry, cfg.IdleExpiry/2),
		limit:   rate.Every(time.Minute / time.Duration(cfg.MaxRequestsPerMinute)),
		burst:   cfg.MaxRequestsPerMinute,
		logger:  cfg.Logger,
	}
}

func (rl *RateLimiter) Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		key := c.IP()

		if !rl.allow(key) {
			rl.logger.Warn("Rate limit exceeded",
				zap.String("ip", key),
				zap.String("path", c.Path()),
			)
			c.Set(fiber.HeaderRetryAfter, "60")
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "Rate limit exceeded. Please try again later.",
			})
		}

		return c.Next()
	}
}

func (rl *RateLimiter) allow(key string) bool {
	var limiter *rate.Limiter
	if v, ok := rl.buckets.Get(key); ok {
		limiter = v.(*rate.Limiter)
	} else {
		limiter = rate.NewLimiter(rl.limit, rl.burst)
		if err := rl.buckets.Add(key, limiter, gocache.DefaultExpiration); err != nil {
			// Lost the race to another request from the same client.
			if v, ok := rl.buckets.Get(key); ok {
				limiter = v.(*rate.Limiter)
			}
		}
	}
	// Refresh expiry on every request.
	rl.buckets.SetDefault(key, limiter)

	return limiter.Allow()
}
