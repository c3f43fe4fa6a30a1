package writer

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"tradesim/config"
	"tradesim/logger"
	"tradesim/models"
)

// RedisClient is the subset of Redis used by RedisWriter. NewRedisClient
// wraps go-redis; tests use a fake.
type RedisClient interface {
	HSet(ctx context.Context, key string, values ...any) error
	Expire(ctx context.Context, key string, ttl time.Duration) error
	Close() error
}

type goRedisClient struct {
	rdb *redis.Client
}

// NewRedisClient connects and pings the configured server.
func NewRedisClient(ctx context.Context, cfg config.RedisConfig) (RedisClient, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis: ping %s: %w", cfg.Addr, err)
	}
	return &goRedisClient{rdb: rdb}, nil
}

func (c *goRedisClient) HSet(ctx context.Context, key string, values ...any) error {
	return c.rdb.HSet(ctx, key, values...).Err()
}

func (c *goRedisClient) Expire(ctx context.Context, key string, ttl time.Duration) error {
	return c.rdb.Expire(ctx, key, ttl).Err()
}

func (c *goRedisClient) Close() error {
	return c.rdb.Close()
}

// RedisWriter keeps the latest result per symbol in a hash:
//
//	Key:    {prefix}:result:{symbol}
//	Fields: symbol, slippage_pct, fees_usd, market_impact_pct, net_cost_usd,
//	        maker_probability, processing_latency_seconds, book_depth_levels,
//	        processed, updated_at
//
// Each write overwrites the hash; no history is kept.
type RedisWriter struct {
	client RedisClient
	prefix string
	ttl    time.Duration
	log    *logger.Log
}

func NewRedisWriter(client RedisClient, cfg config.RedisConfig) *RedisWriter {
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "tradesim"
	}
	return &RedisWriter{
		client: client,
		prefix: prefix,
		ttl:    cfg.TTL,
		log:    logger.GetLogger(),
	}
}

func (w *RedisWriter) Name() string { return "redis" }

func (w *RedisWriter) Key(symbol string) string {
	return fmt.Sprintf("%s:result:%s", w.prefix, symbol)
}

func (w *RedisWriter) Write(ctx context.Context, res models.ResultSnapshot) error {
	key := w.Key(res.Symbol)
	if err := w.client.HSet(ctx, key, resultFields(res)...); err != nil {
		return fmt.Errorf("redis hset %s: %w", key, err)
	}
	if w.ttl > 0 {
		if err := w.client.Expire(ctx, key, w.ttl); err != nil {
			return fmt.Errorf("redis expire %s: %w", key, err)
		}
	}
	w.log.WithComponent("redis_writer").WithFields(logger.Fields{
		"key":       key,
		"processed": res.Processed,
	}).Debug("result written to redis")
	return nil
}

func (w *RedisWriter) Close() error {
	return w.client.Close()
}
