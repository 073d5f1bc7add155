package redis

import (
	"context"
	"fmt"

	"github.com/chatdesk/internal/storage"
	"github.com/redis/go-redis/v9"
)

type Client struct {
	cli *redis.Client
}

func New(ctx context.Context, url string) (*Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis parse url: %w", err)
	}
	cli := redis.NewClient(opts)
	if err := cli.Ping(ctx).Err(); err != nil {
		if closeErr := cli.Close(); closeErr != nil {
			return nil, fmt.Errorf("redis ping: %w (close: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Client{cli: cli}, nil
}

func (c *Client) Close() error {
	return c.cli.Close()
}

func (c *Client) SetSessionSecret(ctx context.Context, sessionID, secret string) error {
	return c.cli.Set(ctx, "session_secret:"+sessionID, secret, storage.SessionSecretTTL).Err()
}

func (c *Client) GetSessionSecret(ctx context.Context, sessionID string) (string, error) {
	val, err := c.cli.Get(ctx, "session_secret:"+sessionID).Result()
	if err == redis.Nil {
		return "", nil
	}
	return val, err
}

func (c *Client) DeleteSessionSecret(ctx context.Context, sessionID string) error {
	return c.cli.Del(ctx, "session_secret:"+sessionID).Err()
}

// CheckLoginRateLimit counts sign-in attempts per email inside a sliding
// window; over the limit the handler answers HTTP 429.
func (c *Client) CheckLoginRateLimit(ctx context.Context, email string) (allowed bool, err error) {
	key := "login_limit:" + email
	n, err := c.cli.Incr(ctx, key).Result()
	if err != nil {
		return false, err
	}
	if n == 1 {
		c.cli.Expire(ctx, key, storage.LoginRateLimitWindow)
	}
	return n <= int64(storage.LoginRateLimitMax), nil
}

// SetVerifyToken stores an email verification token; the token is deleted
// after first successful use.
func (c *Client) SetVerifyToken(ctx context.Context, token, userID string) error {
	return c.cli.Set(ctx, "verify:"+token, userID, storage.VerifyTokenTTL).Err()
}

func (c *Client) GetVerifyToken(ctx context.Context, token string) (string, error) {
	val, err := c.cli.Get(ctx, "verify:"+token).Result()
	if err == redis.Nil {
		return "", nil
	}
	return val, err
}

func (c *Client) DeleteVerifyToken(ctx context.Context, token string) error {
	return c.cli.Del(ctx, "verify:"+token).Err()
}
