package guild

import "errors"

// ErrNotFound indicates the requested record does not exist. Absence is
// a typed result so callers can discriminate it from store failures.
var ErrNotFound = errors.New("record not found")

// Config is a guild's bot configuration: the category channel that hosts
// per-member chat channels. One row per guild, created on first setup,
// never deleted programmatically.
type Config struct {
	GuildID    string `json:"guild_id"`
	CategoryID string `json:"category_id"`
}

// ChatSession points at a member's private chat channel. At most one
// active session exists per (guild, member) pair.
type ChatSession struct {
	GuildID   string `json:"guild_id"`
	MemberID  string `json:"member_id"`
	ChannelID string `json:"channel_id"`
}
