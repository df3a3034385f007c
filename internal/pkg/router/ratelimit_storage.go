package router

import (
	"net"
	"strconv"

	redisstorage "github.com/gofiber/storage/redis"

	"github.com/ManuelReschke/StudyFox/internal/pkg/cache"
	"github.com/ManuelReschke/StudyFox/internal/pkg/env"
)

// NewRateLimitStorage returns a Redis-backed limiter store so rate limit
// windows survive restarts and are shared across instances.
func NewRateLimitStorage() *redisstorage.Storage {
	cacheClient := cache.GetClient()
	host := "localhost"
	port := 6379
	password := env.GetEnv("CACHE_PASSWORD", "")
	if cacheClient != nil {
		addr := cacheClient.Options().Addr
		if h, p, err := net.SplitHostPort(addr); err == nil {
			host = h
			if v, err := strconv.Atoi(p); err == nil {
				port = v
			}
		}
		if p := cacheClient.Options().Password; p != "" {
			password = p
		}
	}

	// Database 1 keeps limiter keys apart from the cache (DB 0).
	return redisstorage.New(redisstorage.Config{
		Host:     host,
		Port:     port,
		Password: password,
		Database: 1,
		Reset:    false,
	})
}
