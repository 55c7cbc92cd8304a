package db

import (
	"context"
	"time"

	"yoforex/internal/config"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// NewRedis connects to Redis, retrying the ping a few times while it starts.
func NewRedis(ctx context.Context, c config.RedisConfig) (*redis.Client, error) {
	zapLog := zap.L().With(zap.String("addr", c.Addr), zap.Int("db", c.DB))

	rdb := redis.NewClient(&redis.Options{
		Addr:     c.Addr,
		Password: c.Password,
		DB:       c.DB,
	})

	var err error
	for i := 0; i < 5; i++ {
		if err = rdb.Ping(ctx).Err(); err == nil {
			zapLog.Info("[Redis] connected")
			return rdb, nil
		}
		zapLog.Warn("[Redis] not ready, retrying in 3 seconds...", zap.Int("retry", i+1), zap.Error(err))
		select {
		case <-time.After(3 * time.Second):
		case <-ctx.Done():
			_ = rdb.Close()
			return nil, ctx.Err()
		}
	}
	_ = rdb.Close()
	return nil, err
}
