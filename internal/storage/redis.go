package storage

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Rdb backs the pairing pool, the rating outbox and the alert channel.
var Rdb *redis.Client

func InitRedis(addr, password string, db int) error {
	Rdb = redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return Rdb.Ping(ctx).Err()
}

// Close releases the Redis and Postgres handles opened by the Init functions.
func Close() {
	if Rdb != nil {
		_ = Rdb.Close()
	}
	if DB != nil {
		_ = DB.Close()
	}
}
