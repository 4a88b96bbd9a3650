// Package permission gates privileged commands and channel-scoped
// synchronization.
//
// The evaluator is a pure function of its configuration: no I/O, no
// clock, no hidden state. Denial is a boolean result, never an error;
// the caller turns it into a user-visible message.
package permission

import "strings"

// Actor is the command issuer as seen by the evaluator.
type Actor struct {
	ID      string
	RoleIDs []string
}

// Evaluator decides whether an actor may perform an action and whether a
// source channel participates in lifecycle synchronization.
type Evaluator struct {
	ownerCommands      map[string]struct{}
	privilegedCommands map[string]struct{}
	allowedChannels    map[string]struct{}
}

// Config holds the string sets the evaluator is built from, consumed
// from the environment at construction time.
type Config struct {
	// OwnerCommands may only be used by the guild owner.
	OwnerCommands []string

	// PrivilegedCommands require at least one moderator role.
	PrivilegedCommands []string

	// AllowedChannels lists source channel ids whose lifecycle events
	// are synchronized; events from other channels are silently ignored.
	AllowedChannels []string
}

// New creates an Evaluator. Command names are matched case-insensitively.
func New(cfg Config) *Evaluator {
	return &Evaluator{
		ownerCommands:      lowerSet(cfg.OwnerCommands),
		privilegedCommands: lowerSet(cfg.PrivilegedCommands),
		allowedChannels:    stringSet(cfg.AllowedChannels),
	}
}

// HasPermission reports whether the actor may run commandName.
// Rules in order, first match wins:
//  1. Owner-only command: actor must be the guild owner.
//  2. Privileged command: actor must hold at least one moderator role.
//  3. Anything else is public.
func (e *Evaluator) HasPermission(actor Actor, commandName string, moderatorRoleIDs []string, ownerID string) bool {
	name := strings.ToLower(commandName)

	if _, ok := e.ownerCommands[name]; ok {
		return e.IsOwner(ownerID, actor.ID)
	}
	if _, ok := e.privilegedCommands[name]; ok {
		return intersects(actor.RoleIDs, moderatorRoleIDs)
	}
	return true
}

// IsPrivilegedCommand reports whether commandName requires a moderator
// role (owner-only commands are a separate class).
func (e *Evaluator) IsPrivilegedCommand(commandName string) bool {
	_, ok := e.privilegedCommands[strings.ToLower(commandName)]
	return ok
}

// IsOwner reports whether memberID is the guild owner.
func (e *Evaluator) IsOwner(ownerID, memberID string) bool {
	return ownerID != "" && ownerID == memberID
}

// IsAllowedChannel reports whether lifecycle events from channelID are
// synchronized. An empty id is never allowed.
func (e *Evaluator) IsAllowedChannel(channelID string) bool {
	if channelID == "" {
		return false
	}
	_, ok := e.allowedChannels[channelID]
	return ok
}

func intersects(a, b []string) bool {
	if len(a) == 0 || len(b) == 0 {
		return false
	}
	set := make(map[string]struct{}, len(b))
	for _, v := range b {
		set[v] = struct{}{}
	}
	for _, v := range a {
		if _, ok := set[v]; ok {
			return true
		}
	}
	return false
}

func lowerSet(vals []string) map[string]struct{} {
	set := make(map[string]struct{}, len(vals))
	for _, v := range vals {
		set[strings.ToLower(v)] = struct{}{}
	}
	return set
}

func stringSet(vals []string) map[string]struct{} {
	set := make(map[string]struct{}, len(vals))
	for _, v := range vals {
		set[v] = struct{}{}
	}
	return set
}
