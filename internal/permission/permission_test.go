package permission

import "testing"

func newTestEvaluator() *Evaluator {
	return New(Config{
		OwnerCommands:      []string{"setup", "update"},
		PrivilegedCommands: []string{"addrole", "fetch", "forget"},
		AllowedChannels:    []string{"forum-1", "forum-2"},
	})
}

func TestHasPermission_Matrix(t *testing.T) {
	e := newTestEvaluator()

	owner := Actor{ID: "owner-1", RoleIDs: []string{"everyone"}}
	moderator := Actor{ID: "mod-1", RoleIDs: []string{"everyone", "mods"}}
	member := Actor{ID: "member-1", RoleIDs: []string{"everyone"}}
	moderatorRoles := []string{"mods", "admins"}

	tests := []struct {
		name    string
		actor   Actor
		command string
		want    bool
	}{
		{"owner runs owner command", owner, "setup", true},
		{"moderator denied owner command", moderator, "setup", false},
		{"member denied owner command", member, "update", false},

		{"moderator runs privileged command", moderator, "addrole", true},
		{"member denied privileged command", member, "addrole", false},
		{"owner without mod role denied privileged command", owner, "fetch", false},

		{"member runs public command", member, "ask", true},
		{"moderator runs public command", moderator, "help", true},
		{"owner runs public command", owner, "ask", true},

		{"command name matching is case-insensitive", moderator, "AddRole", true},
		{"owner command case-insensitive", member, "SETUP", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := e.HasPermission(tt.actor, tt.command, moderatorRoles, "owner-1")
			if got != tt.want {
				t.Errorf("HasPermission(%s, %q) = %v, want %v",
					tt.actor.ID, tt.command, got, tt.want)
			}
		})
	}
}

func TestHasPermission_EmptyModeratorSet(t *testing.T) {
	e := newTestEvaluator()
	moderator := Actor{ID: "mod-1", RoleIDs: []string{"mods"}}

	if e.HasPermission(moderator, "addrole", nil, "owner-1") {
		t.Error("privileged command with no moderator roles configured should be denied")
	}
}

func TestHasPermission_OwnerRulesBeforePrivileged(t *testing.T) {
	// A command listed in both classes is treated as owner-only:
	// first match wins.
	e := New(Config{
		OwnerCommands:      []string{"setup"},
		PrivilegedCommands: []string{"setup"},
	})
	moderator := Actor{ID: "mod-1", RoleIDs: []string{"mods"}}

	if e.HasPermission(moderator, "setup", []string{"mods"}, "owner-1") {
		t.Error("owner-only rule must take precedence over the privileged rule")
	}
}

func TestIsOwner(t *testing.T) {
	e := newTestEvaluator()

	if !e.IsOwner("u1", "u1") {
		t.Error("IsOwner(u1, u1) = false")
	}
	if e.IsOwner("u1", "u2") {
		t.Error("IsOwner(u1, u2) = true")
	}
	if e.IsOwner("", "") {
		t.Error("empty owner id must never match")
	}
}

func TestIsAllowedChannel(t *testing.T) {
	e := newTestEvaluator()

	tests := []struct {
		channelID string
		want      bool
	}{
		{"forum-1", true},
		{"forum-2", true},
		{"general", false},
		{"", false},
	}

	for _, tt := range tests {
		if got := e.IsAllowedChannel(tt.channelID); got != tt.want {
			t.Errorf("IsAllowedChannel(%q) = %v, want %v", tt.channelID, got, tt.want)
		}
	}
}

func TestIsPrivilegedCommand(t *testing.T) {
	e := newTestEvaluator()

	if !e.IsPrivilegedCommand("Forget") {
		t.Error("IsPrivilegedCommand(Forget) = false")
	}
	if e.IsPrivilegedCommand("ask") {
		t.Error("IsPrivilegedCommand(ask) = true")
	}
}
