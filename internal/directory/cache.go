package directory

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"interview-scheduler/internal/scheduling"
)

const (
	DefaultTTL = 10 * time.Minute

	keyCandidate = "scheduler:directory:candidate:" // + candidate_id
	keyJob       = "scheduler:directory:job:"       // + job_id
)

// Cached is a read-through Redis cache in front of another Directory. Any
// Redis failure falls through to the source.
type Cached struct {
	client *redis.Client
	source scheduling.Directory
	ttl    time.Duration
	logger *zap.Logger
}

var _ scheduling.Directory = (*Cached)(nil)

func NewCached(client *redis.Client, source scheduling.Directory, ttl time.Duration, logger *zap.Logger) *Cached {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cached{client: client, source: source, ttl: ttl, logger: logger.Named("directory")}
}

// NewRedisClient builds a client with the short timeouts a best-effort cache
// wants.
func NewRedisClient(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  500 * time.Millisecond,
		WriteTimeout: 500 * time.Millisecond,
		PoolSize:     10,
	})
}

func (c *Cached) Candidate(ctx context.Context, id string) (*scheduling.Candidate, error) {
	key := keyCandidate + id
	if raw, ok := c.get(ctx, key); ok {
		var cand scheduling.Candidate
		if err := json.Unmarshal(raw, &cand); err == nil {
			return &cand, nil
		}
	}

	cand, err := c.source.Candidate(ctx, id)
	if err != nil {
		return nil, err
	}
	if raw, err := json.Marshal(cand); err == nil {
		c.set(ctx, key, raw)
	}
	return cand, nil
}

func (c *Cached) JobTitle(ctx context.Context, id string) (string, error) {
	key := keyJob + id
	if raw, ok := c.get(ctx, key); ok {
		return string(raw), nil
	}

	title, err := c.source.JobTitle(ctx, id)
	if err != nil {
		return "", err
	}
	c.set(ctx, key, []byte(title))
	return title, nil
}

func (c *Cached) get(ctx context.Context, key string) ([]byte, bool) {
	raw, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("cache get failed", zap.String("key", key), zap.Error(err))
		}
		return nil, false
	}
	return raw, true
}

func (c *Cached) set(ctx context.Context, key string, val []byte) {
	if err := c.client.Set(ctx, key, val, c.ttl).Err(); err != nil {
		c.logger.Warn("cache set failed", zap.String("key", key), zap.Error(err))
	}
}

func (c *Cached) Close() error {
	return c.client.Close()
}
