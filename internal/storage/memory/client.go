// Package memory is the in-process SessionStore used by -dev mode, where no
// Redis is available. Entries expire lazily on read.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/chatdesk/internal/storage"
)

type item struct {
	val string
	exp time.Time
}

type Client struct {
	mu      sync.RWMutex
	secrets map[string]item
	verify  map[string]item
	limit   map[string][]time.Time
}

func New() *Client {
	return &Client{
		secrets: make(map[string]item),
		verify:  make(map[string]item),
		limit:   make(map[string][]time.Time),
	}
}

func (c *Client) Close() error { return nil }

func (c *Client) SetSessionSecret(ctx context.Context, sessionID, secret string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.secrets[sessionID] = item{val: secret, exp: time.Now().Add(storage.SessionSecretTTL)}
	return nil
}

func (c *Client) GetSessionSecret(ctx context.Context, sessionID string) (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.secrets[sessionID]
	if !ok || time.Now().After(v.exp) {
		return "", nil
	}
	return v.val, nil
}

func (c *Client) DeleteSessionSecret(ctx context.Context, sessionID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.secrets, sessionID)
	return nil
}

func (c *Client) CheckLoginRateLimit(ctx context.Context, email string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now()
	cutoff := now.Add(-storage.LoginRateLimitWindow)
	times := c.limit[email]
	i := 0
	for _, t := range times {
		if t.After(cutoff) {
			times[i] = t
			i++
		}
	}
	times = times[:i]
	if len(times) >= storage.LoginRateLimitMax {
		c.limit[email] = times
		return false, nil
	}
	c.limit[email] = append(times, now)
	return true, nil
}

func (c *Client) SetVerifyToken(ctx context.Context, token, userID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.verify[token] = item{val: userID, exp: time.Now().Add(storage.VerifyTokenTTL)}
	return nil
}

func (c *Client) GetVerifyToken(ctx context.Context, token string) (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.verify[token]
	if !ok || time.Now().After(v.exp) {
		return "", nil
	}
	return v.val, nil
}

func (c *Client) DeleteVerifyToken(ctx context.Context, token string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.verify, token)
	return nil
}
