package guild

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/prasetya0/guildlore/internal/cache"
)

// Recorder is the store side of the service. Defined by the consumer so
// tests can substitute a fake.
type Recorder interface {
	GetGuild(ctx context.Context, guildID string) (*Config, error)
	CreateGuild(ctx context.Context, guildID, categoryID string) error
	UpdateGuild(ctx context.Context, guildID, categoryID string) error
	GetChatSession(ctx context.Context, guildID, memberID string) (*ChatSession, error)
	CreateChatSession(ctx context.Context, cs ChatSession) error
	DeleteChatSession(ctx context.Context, guildID, memberID string) error
	ListModeratorRoles(ctx context.Context, guildID string) ([]string, error)
	AddModeratorRole(ctx context.Context, guildID, roleID string) error
}

// KeyValue is the cache side of the service.
type KeyValue interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, opts cache.Options) error
	Delete(ctx context.Context, key string) error
}

// Service is the read-through layer over guild records.
//
// Reads consult the cache first and populate it after a store read that
// found data. Every mutation invalidates the corresponding key in the
// same call; a cache failure on the read path degrades to a store read
// with a warning, never to "no data".
type Service struct {
	store     Recorder
	cache     KeyValue
	recordTTL time.Duration
	logger    *slog.Logger
}

// NewService creates a Service. recordTTL bounds cached records; zero
// keeps them until invalidated. A nil logger falls back to slog.Default.
func NewService(store Recorder, kv KeyValue, recordTTL time.Duration, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, cache: kv, recordTTL: recordTTL, logger: logger}
}

// Guild returns a guild's configuration, cache first.
func (s *Service) Guild(ctx context.Context, guildID string) (*Config, error) {
	key := cache.GuildKey(guildID)

	if raw, ok := s.cacheGet(ctx, key); ok {
		var cfg Config
		if err := json.Unmarshal([]byte(raw), &cfg); err == nil {
			return &cfg, nil
		}
		s.logger.Warn("dropping corrupted guild cache entry", "key", key)
		_ = s.cache.Delete(ctx, key)
	}

	cfg, err := s.store.GetGuild(ctx, guildID)
	if err != nil {
		return nil, err
	}

	s.cachePutJSON(ctx, key, cfg)
	return cfg, nil
}

// SetupGuild creates a guild's configuration and invalidates its cache
// entry in the same logical operation.
func (s *Service) SetupGuild(ctx context.Context, guildID, categoryID string) error {
	if err := s.store.CreateGuild(ctx, guildID, categoryID); err != nil {
		return err
	}
	s.invalidate(ctx, cache.GuildKey(guildID))
	return nil
}

// UpdateGuild updates the category channel and invalidates the cache
// entry in the same logical operation.
func (s *Service) UpdateGuild(ctx context.Context, guildID, categoryID string) error {
	if err := s.store.UpdateGuild(ctx, guildID, categoryID); err != nil {
		return err
	}
	s.invalidate(ctx, cache.GuildKey(guildID))
	return nil
}

// ChatSession returns a member's chat session, cache first.
func (s *Service) ChatSession(ctx context.Context, guildID, memberID string) (*ChatSession, error) {
	key := cache.ChatKey(guildID, memberID)

	if raw, ok := s.cacheGet(ctx, key); ok {
		var cs ChatSession
		if err := json.Unmarshal([]byte(raw), &cs); err == nil {
			return &cs, nil
		}
		s.logger.Warn("dropping corrupted chat cache entry", "key", key)
		_ = s.cache.Delete(ctx, key)
	}

	cs, err := s.store.GetChatSession(ctx, guildID, memberID)
	if err != nil {
		return nil, err
	}

	s.cachePutJSON(ctx, key, cs)
	return cs, nil
}

// CreateChatSession records a member's chat session and invalidates the
// cache entry in the same logical operation.
func (s *Service) CreateChatSession(ctx context.Context, cs ChatSession) error {
	if err := s.store.CreateChatSession(ctx, cs); err != nil {
		return err
	}
	s.invalidate(ctx, cache.ChatKey(cs.GuildID, cs.MemberID))
	return nil
}

// DeleteChatSession removes a member's chat session and invalidates the
// cache entry in the same logical operation.
func (s *Service) DeleteChatSession(ctx context.Context, guildID, memberID string) error {
	if err := s.store.DeleteChatSession(ctx, guildID, memberID); err != nil {
		return err
	}
	s.invalidate(ctx, cache.ChatKey(guildID, memberID))
	return nil
}

// ModeratorRoles returns the guild's moderator role ids, cache first.
// The set is cached as a comma-joined string; an empty set is not cached
// so a later assignment becomes visible immediately.
func (s *Service) ModeratorRoles(ctx context.Context, guildID string) ([]string, error) {
	key := cache.RolesKey(guildID)

	if raw, ok := s.cacheGet(ctx, key); ok {
		return splitRoles(raw), nil
	}

	roleIDs, err := s.store.ListModeratorRoles(ctx, guildID)
	if err != nil {
		return nil, err
	}

	if len(roleIDs) > 0 {
		s.cachePut(ctx, key, strings.Join(roleIDs, ","))
	}
	return roleIDs, nil
}

// AddModeratorRole assigns a moderator role and invalidates the cached
// role set in the same logical operation.
func (s *Service) AddModeratorRole(ctx context.Context, guildID, roleID string) error {
	if err := s.store.AddModeratorRole(ctx, guildID, roleID); err != nil {
		return err
	}
	s.invalidate(ctx, cache.RolesKey(guildID))
	return nil
}

// cacheGet reads a key, degrading to a miss when the backend is down.
func (s *Service) cacheGet(ctx context.Context, key string) (string, bool) {
	raw, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		s.logger.Warn("cache read failed, falling back to store", "key", key, "error", err)
		return "", false
	}
	return raw, ok
}

func (s *Service) cachePutJSON(ctx context.Context, key string, v any) {
	raw, err := json.Marshal(v)
	if err != nil {
		s.logger.Warn("encoding cache entry failed", "key", key, "error", err)
		return
	}
	s.cachePut(ctx, key, string(raw))
}

// cachePut populates a key after a successful store read. Failures are
// logged only: the caller already holds the data.
func (s *Service) cachePut(ctx context.Context, key, value string) {
	if err := s.cache.Set(ctx, key, value, cache.Options{TTL: s.recordTTL}); err != nil {
		s.logger.Warn("cache populate failed", "key", key, "error", err)
	}
}

// invalidate removes a key after a store mutation. A failed invalidation
// is an error-level event: it opens a stale-read window.
func (s *Service) invalidate(ctx context.Context, key string) {
	if err := s.cache.Delete(ctx, key); err != nil {
		s.logger.Error("cache invalidation failed, stale reads possible", "key", key, "error", err)
	}
}

func splitRoles(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	roleIDs := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			roleIDs = append(roleIDs, p)
		}
	}
	return roleIDs
}
