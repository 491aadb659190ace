package counter

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"

	"github.com/gettakaro/takaro-worker/config"
)

const keyPrefix = "takaro:"

var Module = fx.Module("counter",
	fx.Provide(NewStore),
)

// NewStore picks the backing store from config. The memory driver is only
// correct for a single worker process.
func NewStore(lc fx.Lifecycle, cfg *config.Config, logger *slog.Logger) (Store, error) {
	switch cfg.Counter.Driver {
	case "memory":
		logger.Warn("COUNTER_STORE_IN_MEMORY: rate limits are not shared between processes")
		return NewMemoryStore(), nil
	case "redis", "":
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		store := NewRedisStore(rdb, keyPrefix)

		lc.Append(fx.Hook{
			OnStart: func(ctx context.Context) error {
				if err := store.Ping(ctx); err != nil {
					return fmt.Errorf("redis ping %s: %w", cfg.Redis.Addr, err)
				}
				logger.Info("COUNTER_STORE_READY", "addr", cfg.Redis.Addr)
				return nil
			},
			OnStop: func(ctx context.Context) error {
				return rdb.Close()
			},
		})
		return store, nil
	default:
		return nil, fmt.Errorf("counter: unknown driver %q", cfg.Counter.Driver)
	}
}
