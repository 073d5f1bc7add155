package startup

import (
	"context"

	"github.com/chatdesk/internal/logger"
	"github.com/chatdesk/internal/storage"
	"github.com/chatdesk/internal/storage/memory"
	"github.com/chatdesk/internal/storage/redis"
)

// NewSessionStore returns the Redis-backed store when a URL is configured,
// otherwise the in-memory store (dev only; sessions die with the process).
func NewSessionStore(ctx context.Context, redisURL string) (storage.SessionStore, error) {
	if redisURL == "" {
		logger.Info("no REDIS_URL set, using in-memory session store")
		return memory.New(), nil
	}
	return redis.New(ctx, redisURL)
}
