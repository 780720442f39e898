package middleware

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"

	"payportal/internal/pkg/signature"
)

// ReplayCache stores the acknowledgement sent for a callback body.
type ReplayCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Put(ctx context.Context, key string, ack []byte) error
}

type redisReplayCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func (r *redisReplayCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	ack, err := r.client.Get(ctx, r.prefix+":"+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return ack, true, nil
}

func (r *redisReplayCache) Put(ctx context.Context, key string, ack []byte) error {
	// first writer wins; a concurrent redelivery produced the same ack anyway
	return r.client.SetNX(ctx, r.prefix+":"+key, ack, r.ttl).Err()
}

type memoryEntry struct {
	ack     []byte
	expires time.Time
}

type memoryReplayCache struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	ttl     time.Duration
	nextGC  time.Time
}

func newMemoryReplayCache(ttl time.Duration) *memoryReplayCache {
	return &memoryReplayCache{
		entries: make(map[string]memoryEntry),
		ttl:     ttl,
		nextGC:  time.Now().Add(ttl),
	}
}

func (m *memoryReplayCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	if !ok || !e.expires.After(time.Now()) {
		return nil, false, nil
	}
	return e.ack, true, nil
}

func (m *memoryReplayCache) Put(_ context.Context, key string, ack []byte) error {
	now := time.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	if e, ok := m.entries[key]; !ok || !e.expires.After(now) {
		m.entries[key] = memoryEntry{ack: append([]byte(nil), ack...), expires: now.Add(m.ttl)}
	}
	if now.After(m.nextGC) {
		for k, e := range m.entries {
			if e.expires.Before(now) {
				delete(m.entries, k)
			}
		}
		m.nextGC = now.Add(m.ttl)
	}
	return nil
}

// NewReplayCache builds a Redis replay cache and falls back to in-memory on failure.
func NewReplayCache(addr, pass string, db int, ttl time.Duration) (ReplayCache, error) {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	if addr == "" {
		return newMemoryReplayCache(ttl), nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: pass,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return newMemoryReplayCache(ttl), err
	}

	return &redisReplayCache{
		client: client,
		prefix: "payportal:callback",
		ttl:    ttl,
	}, nil
}

// CallbackReplay answers a redelivered, byte-identical callback with the
// acknowledgement already sent for it. Only 200 acknowledgements are stored,
// so rejected callbacks are always evaluated again.
func CallbackReplay(cache ReplayCache) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if cache == nil {
				return next(c)
			}

			req := c.Request()
			if req.Body == nil {
				return next(c)
			}
			rawBody, err := io.ReadAll(req.Body)
			if err != nil {
				return next(c)
			}
			req.Body = io.NopCloser(bytes.NewBuffer(rawBody))
			if len(rawBody) == 0 {
				return next(c)
			}

			key := c.Param("portal") + ":" + signature.SHA256Hex(string(rawBody))
			if ack, ok, err := cache.Get(req.Context(), key); err == nil && ok {
				c.Response().Header().Set("X-Callback-Replay", "1")
				return c.JSONBlob(http.StatusOK, ack)
			}

			record := echomw.BodyDump(func(c echo.Context, _, resBody []byte) {
				if c.Response().Status != http.StatusOK || len(resBody) == 0 {
					return
				}
				_ = cache.Put(c.Request().Context(), key, bytes.TrimSpace(resBody))
			})
			return record(next)(c)
		}
	}
}
