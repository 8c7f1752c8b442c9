// Package redisclient opens the one Redis connection pool the marketplace
// shares between the DID registry and the rate limiter.
package redisclient

import (
	"errors"
	"time"

	"chlumarket/internal/config"

	"github.com/redis/go-redis/v9"
)

func Options(cfg config.Config) (*redis.Options, error) {
	if cfg.RedisAddr == "" {
		return nil, errors.New("REDIS_ADDR is required")
	}
	return &redis.Options{
		Addr:        cfg.RedisAddr,
		Password:    cfg.RedisPassword,
		DB:          cfg.RedisDB,
		DialTimeout: 5 * time.Second,
	}, nil
}

func NewFromConfig(cfg config.Config) (*redis.Client, error) {
	opts, err := Options(cfg)
	if err != nil {
		return nil, err
	}
	return redis.NewClient(opts), nil
}
