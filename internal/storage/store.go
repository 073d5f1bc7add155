package storage

import (
	"context"
	"time"
)

// SessionStore holds short-lived auth state: session secrets (for request
// signing), login rate limits, and email verification tokens.
// Implementations: redis.Client, memory.Client (for -dev without Redis).
type SessionStore interface {
	SetSessionSecret(ctx context.Context, sessionID, secret string) error
	GetSessionSecret(ctx context.Context, sessionID string) (string, error)
	DeleteSessionSecret(ctx context.Context, sessionID string) error

	CheckLoginRateLimit(ctx context.Context, email string) (allowed bool, err error)

	SetVerifyToken(ctx context.Context, token, userID string) error
	GetVerifyToken(ctx context.Context, token string) (userID string, err error)
	DeleteVerifyToken(ctx context.Context, token string) error

	Close() error
}

// TTLs and limits shared by implementations.
const (
	SessionSecretTTL     = 30 * 24 * time.Hour
	VerifyTokenTTL       = 24 * time.Hour
	LoginRateLimitWindow = 10 * time.Minute
	LoginRateLimitMax    = 10
)
