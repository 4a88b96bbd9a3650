// Package cache fronts the relational store and the vector search path
// with Redis.
//
// The cache is read-through by convention, not by mechanism: for
// relational records the caller populates after a store read that found
// data, and every mutation of a cached record must delete or overwrite
// its key in the same logical operation. Skipping an invalidation is a
// correctness bug (stale-read window), not a performance issue.
//
// A missing key is never an error. An unreachable backend surfaces as
// ErrUnavailable so callers fall back to the source of truth instead of
// treating the failure as "no data".
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/prasetya0/guildlore/internal/knowledge"
)

// ErrUnavailable indicates the cache backend could not be reached.
// Callers must fall back to the source-of-truth store.
var ErrUnavailable = errors.New("cache unavailable")

// Key prefixes, shared with the original deployment's Redis keyspace.
const (
	guildPrefix       = "guild:"
	chatPrefix        = "chat:"
	rolesPrefix       = "roles:"
	vectorQueryPrefix = "vector_query:"
)

// GuildKey returns the cache key for a guild's configuration record.
func GuildKey(guildID string) string {
	return guildPrefix + guildID
}

// ChatKey returns the cache key for a member's chat session. The key is
// scoped by guild so sessions never leak across guilds.
func ChatKey(guildID, memberID string) string {
	return chatPrefix + guildID + ":" + memberID
}

// RolesKey returns the cache key for a guild's moderator role set.
func RolesKey(guildID string) string {
	return rolesPrefix + guildID
}

// QueryKey returns the cache key for a similarity-search result. The key
// is a stable hash of the question (normalized by trimming whitespace)
// plus an optional scope such as a chat session id.
func QueryKey(scope, question string) string {
	h := sha256.New()
	h.Write([]byte(scope))
	h.Write([]byte{0})
	h.Write([]byte(strings.TrimSpace(question)))
	return vectorQueryPrefix + hex.EncodeToString(h.Sum(nil))
}

// Options controls Set behaviour, mirroring the Redis EX/NX/XX flags.
type Options struct {
	// TTL expires the key after the given duration; zero means no expiry.
	TTL time.Duration

	// IfNotExists only sets the key when it does not already exist (NX).
	IfNotExists bool

	// IfExists only sets the key when it already exists (XX).
	IfExists bool
}

// Client is the subset of *redis.Client the cache needs. Defined by the
// consumer so tests can substitute a fake.
type Client interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd
	SetXX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// Cache is a thin typed layer over Redis.
//
// Cache is safe for concurrent use by multiple goroutines.
type Cache struct {
	client Client
	logger *slog.Logger
}

// New creates a Cache. A nil logger falls back to slog.Default.
func New(client Client, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{client: client, logger: logger}
}

// Get returns the value for key. A missing key is (_, false, nil); a
// backend failure is reported as ErrUnavailable.
func (c *Cache) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := c.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("%w: get %q: %v", ErrUnavailable, key, err)
	}
	return val, true, nil
}

// Set stores value under key according to opts.
func (c *Cache) Set(ctx context.Context, key, value string, opts Options) error {
	var err error
	switch {
	case opts.IfNotExists:
		err = c.client.SetNX(ctx, key, value, opts.TTL).Err()
	case opts.IfExists:
		err = c.client.SetXX(ctx, key, value, opts.TTL).Err()
	default:
		err = c.client.Set(ctx, key, value, opts.TTL).Err()
	}
	if err != nil {
		return fmt.Errorf("%w: set %q: %v", ErrUnavailable, key, err)
	}
	return nil
}

// Delete removes key. Deleting a missing key is not an error.
func (c *Cache) Delete(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("%w: del %q: %v", ErrUnavailable, key, err)
	}
	return nil
}

// GetSimilarity returns a cached ranked result list for a vector-query
// key. A corrupted entry is dropped and reported as a miss so the caller
// re-runs the search instead of failing.
func (c *Cache) GetSimilarity(ctx context.Context, key string) ([]knowledge.Result, bool, error) {
	raw, ok, err := c.Get(ctx, key)
	if err != nil || !ok {
		return nil, false, err
	}

	var results []knowledge.Result
	if err := json.Unmarshal([]byte(raw), &results); err != nil {
		c.logger.Warn("dropping corrupted vector-query cache entry", "key", key, "error", err)
		_ = c.Delete(ctx, key)
		return nil, false, nil
	}
	return results, true, nil
}

// SetSimilarity caches a ranked result list under a vector-query key
// with a bounded TTL.
func (c *Cache) SetSimilarity(ctx context.Context, key string, results []knowledge.Result, ttl time.Duration) error {
	raw, err := json.Marshal(results)
	if err != nil {
		return fmt.Errorf("encoding similarity results: %w", err)
	}
	return c.Set(ctx, key, string(raw), Options{TTL: ttl})
}
