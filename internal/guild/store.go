// Package guild persists guild configuration, chat sessions and
// moderator role assignments, fronted by a read-through cache.
//
// Store talks to PostgreSQL; Service composes Store with the cache and
// owns the invalidation rule: every mutation deletes the corresponding
// cache key in the same logical operation.
package guild

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB is the subset of pgxpool.Pool the store needs. Defined by the
// consumer so tests can substitute a fake.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store manages guild records in PostgreSQL.
//
// Store is safe for concurrent use by multiple goroutines.
type Store struct {
	db     DB
	logger *slog.Logger
}

// NewStore creates a Store. A nil logger falls back to slog.Default.
func NewStore(db DB, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, logger: logger}
}

// GetGuild returns a guild's configuration or ErrNotFound.
func (s *Store) GetGuild(ctx context.Context, guildID string) (*Config, error) {
	var cfg Config
	err := s.db.QueryRow(ctx,
		`SELECT guild_id, category_id FROM guilds WHERE guild_id = $1`, guildID).
		Scan(&cfg.GuildID, &cfg.CategoryID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("selecting guild %q: %w", guildID, err)
	}
	return &cfg, nil
}

// CreateGuild creates a guild's configuration through the server-side
// create_guild_data procedure, which is atomic on the database.
func (s *Store) CreateGuild(ctx context.Context, guildID, categoryID string) error {
	if _, err := s.db.Exec(ctx,
		`SELECT create_guild_data($1, $2)`, guildID, categoryID); err != nil {
		return fmt.Errorf("creating guild %q: %w", guildID, err)
	}
	s.logger.Debug("created guild config", "guild_id", guildID)
	return nil
}

// UpdateGuild updates a guild's category channel.
func (s *Store) UpdateGuild(ctx context.Context, guildID, categoryID string) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE guilds SET category_id = $2 WHERE guild_id = $1`, guildID, categoryID)
	if err != nil {
		return fmt.Errorf("updating guild %q: %w", guildID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// GetChatSession returns the member's chat session or ErrNotFound.
func (s *Store) GetChatSession(ctx context.Context, guildID, memberID string) (*ChatSession, error) {
	var cs ChatSession
	err := s.db.QueryRow(ctx,
		`SELECT guild_id, member_id, channel_id FROM chats WHERE guild_id = $1 AND member_id = $2`,
		guildID, memberID).
		Scan(&cs.GuildID, &cs.MemberID, &cs.ChannelID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("selecting chat session %q/%q: %w", guildID, memberID, err)
	}
	return &cs, nil
}

// CreateChatSession inserts a chat session. The (guild_id, member_id)
// unique constraint enforces the one-session-per-member invariant.
func (s *Store) CreateChatSession(ctx context.Context, cs ChatSession) error {
	if _, err := s.db.Exec(ctx,
		`INSERT INTO chats (guild_id, member_id, channel_id) VALUES ($1, $2, $3)`,
		cs.GuildID, cs.MemberID, cs.ChannelID); err != nil {
		return fmt.Errorf("creating chat session %q/%q: %w", cs.GuildID, cs.MemberID, err)
	}
	s.logger.Debug("created chat session",
		"guild_id", cs.GuildID, "member_id", cs.MemberID, "channel_id", cs.ChannelID)
	return nil
}

// DeleteChatSession removes a member's chat session. Deleting a missing
// session is a no-op.
func (s *Store) DeleteChatSession(ctx context.Context, guildID, memberID string) error {
	if _, err := s.db.Exec(ctx,
		`DELETE FROM chats WHERE guild_id = $1 AND member_id = $2`, guildID, memberID); err != nil {
		return fmt.Errorf("deleting chat session %q/%q: %w", guildID, memberID, err)
	}
	return nil
}

// ListModeratorRoles returns the guild's moderator role ids. An empty
// slice means no moderator roles are configured.
func (s *Store) ListModeratorRoles(ctx context.Context, guildID string) ([]string, error) {
	rows, err := s.db.Query(ctx,
		`SELECT role_id FROM guild_moderators WHERE guild_id = $1 ORDER BY role_id`, guildID)
	if err != nil {
		return nil, fmt.Errorf("listing moderator roles for %q: %w", guildID, err)
	}
	defer rows.Close()

	var roleIDs []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning moderator role: %w", err)
		}
		roleIDs = append(roleIDs, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading moderator roles: %w", err)
	}
	return roleIDs, nil
}

// AddModeratorRole assigns a moderator role through the server-side
// create_guild_moderator procedure.
func (s *Store) AddModeratorRole(ctx context.Context, guildID, roleID string) error {
	if _, err := s.db.Exec(ctx,
		`SELECT create_guild_moderator($1, $2)`, guildID, roleID); err != nil {
		return fmt.Errorf("adding moderator role %q to guild %q: %w", roleID, guildID, err)
	}
	s.logger.Debug("added moderator role", "guild_id", guildID, "role_id", roleID)
	return nil
}
