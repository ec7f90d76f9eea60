package database

import (
	"context"
	"log"

	"github.com/redis/go-redis/v9"

	"github.com/example/exodetect/internal/config"
)

// ConnectRedis returns a Redis client when REDIS_ADDR is configured,
// or nil when it is not. Callers treat a nil client as "feature off";
// the OTP resend cooldown simply does not apply without Redis.
func ConnectRedis(cfg *config.Config) *redis.Client {
	if cfg.RedisAddr == "" {
		return nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	if err := client.Ping(context.Background()).Err(); err != nil {
		log.Printf("warning: redis unreachable, continuing without it: %v", err)
		return nil
	}

	return client
}
