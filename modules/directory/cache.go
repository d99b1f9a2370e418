package directory

import (
	"context"
	"net"
	"strconv"
	"time"

	"github.com/gofiber/storage/redis/v3"
)

// Cache is the subset of a fiber storage used for display names.
// redis.Storage satisfies it.
type Cache interface {
	GetWithContext(ctx context.Context, key string) ([]byte, error)
	SetWithContext(ctx context.Context, key string, val []byte, exp time.Duration) error
	DeleteWithContext(ctx context.Context, key string) error
	Close() error
}

// NewRedisCache connects the display-name cache to Redis at addr.
func NewRedisCache(addr, password string) Cache {
	host, port := parseRedisAddr(addr)
	return redis.New(redis.Config{
		Host:     host,
		Port:     port,
		Password: password,
		PoolSize: 20,
	})
}

// parseRedisAddr splits host:port, defaulting to localhost:6379.
func parseRedisAddr(addr string) (string, int) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return "localhost", 6379
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return host, 6379
	}
	if host == "" {
		host = "localhost"
	}
	return host, port
}
