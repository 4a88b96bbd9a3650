package discord

import (
	"context"
	"errors"
	"fmt"

	"github.com/bwmarrin/discordgo"

	"github.com/prasetya0/guildlore/internal/guild"
	"github.com/prasetya0/guildlore/internal/permission"
	"github.com/prasetya0/guildlore/internal/sync"
)

const (
	deniedReply  = "You are not allowed to use this command."
	failureReply = "There was an error while executing this command."
)

type commandHandler func(ctx context.Context, ic *discordgo.InteractionCreate) error

func commandHandlers(b *Bot) map[string]commandHandler {
	return map[string]commandHandler{
		"ask":     b.cmdAsk,
		"setup":   b.cmdSetup,
		"update":  b.cmdUpdate,
		"addrole": b.cmdAddRole,
		"fetch":   b.cmdFetch,
		"forget":  b.cmdForget,
		"inspect": b.cmdInspect,
		"help":    b.cmdHelp,
	}
}

// onInteractionCreate dispatches a slash command: resolve the handler,
// evaluate permissions against the guild's moderator roles and owner,
// then run it. Handler errors reach the member only as a generic
// failure message.
func (b *Bot) onInteractionCreate(ctx context.Context, ic *discordgo.InteractionCreate) {
	if ic.Type != discordgo.InteractionApplicationCommand {
		return
	}
	name := ic.ApplicationCommandData().Name

	handler, ok := b.handlers[name]
	if !ok {
		b.logger.Error("no matching command", "command", name)
		b.replyFailure(ic)
		return
	}
	if ic.Member == nil || ic.Member.User == nil {
		b.logger.Error("command interaction without guild member", "command", name)
		b.replyFailure(ic)
		return
	}

	roles, err := b.guilds.ModeratorRoles(ctx, ic.GuildID)
	if err != nil {
		b.logger.Error("loading moderator roles failed", "guild_id", ic.GuildID, "error", err)
		b.replyFailure(ic)
		return
	}
	g, err := b.session.Guild(ic.GuildID)
	if err != nil {
		b.logger.Error("loading guild failed", "guild_id", ic.GuildID, "error", err)
		b.replyFailure(ic)
		return
	}

	actor := permission.Actor{ID: ic.Member.User.ID, RoleIDs: ic.Member.Roles}
	if !b.perms.HasPermission(actor, name, roles, g.OwnerID) {
		b.logger.Info("command denied", "command", name, "member_id", actor.ID)
		if err := b.respond(ic, deniedReply); err != nil {
			b.logger.Error("sending denial reply failed", "error", err)
		}
		return
	}

	b.logger.Info("command received", "command", name, "member_id", actor.ID)
	if err := handler(ctx, ic); err != nil {
		b.logger.Error("command failed", "command", name, "member_id", actor.ID, "error", err)
		b.replyFailure(ic)
	}
}

// replyFailure delivers the generic failure message whether or not the
// interaction was already acknowledged.
func (b *Bot) replyFailure(ic *discordgo.InteractionCreate) {
	if err := b.respond(ic, failureReply); err != nil {
		_ = b.editReply(ic, failureReply)
	}
}

func (b *Bot) cmdAsk(ctx context.Context, ic *discordgo.InteractionCreate) error {
	question := optString(ic, "question")
	if err := b.respond(ic, "Let me think..."); err != nil {
		return err
	}

	g, err := b.guilds.Guild(ctx, ic.GuildID)
	if errors.Is(err, guild.ErrNotFound) {
		return b.editReply(ic, "This guild has not finished initial setup. Please use `/setup` first.")
	}
	if err != nil {
		return err
	}

	memberID := ic.Member.User.ID
	cs, err := b.guilds.ChatSession(ctx, ic.GuildID, memberID)
	if errors.Is(err, guild.ErrNotFound) {
		return b.askInNewChat(ctx, ic, g, question)
	}
	if err != nil {
		return err
	}
	return b.askInExistingChat(ctx, ic, cs, question)
}

// askInNewChat creates the member's private chat channel under the
// configured category, answers there, and records the session.
func (b *Bot) askInNewChat(ctx context.Context, ic *discordgo.InteractionCreate, g *guild.Config, question string) error {
	memberID := ic.Member.User.ID
	overwrites := []*discordgo.PermissionOverwrite{
		// The @everyone role shares the guild's id.
		{ID: ic.GuildID, Type: discordgo.PermissionOverwriteTypeRole, Deny: discordgo.PermissionViewChannel},
		{ID: memberID, Type: discordgo.PermissionOverwriteTypeMember, Allow: discordgo.PermissionViewChannel},
	}
	if b.botUserID != "" {
		overwrites = append(overwrites, &discordgo.PermissionOverwrite{
			ID: b.botUserID, Type: discordgo.PermissionOverwriteTypeMember, Allow: discordgo.PermissionViewChannel,
		})
	}

	ch, err := b.session.GuildChannelCreateComplex(ic.GuildID, discordgo.GuildChannelCreateData{
		Name:                 "chat-" + memberName(ic.Member),
		Type:                 discordgo.ChannelTypeGuildText,
		ParentID:             g.CategoryID,
		PermissionOverwrites: overwrites,
	})
	if err != nil {
		return fmt.Errorf("creating chat channel: %w", err)
	}

	answer, err := b.answerer.Answer(ctx, question)
	if err != nil {
		return err
	}
	if _, err := b.session.ChannelMessageSend(ch.ID, fmt.Sprintf("<@%s> %s", memberID, answer.Text)); err != nil {
		return fmt.Errorf("sending answer: %w", err)
	}

	cs := guild.ChatSession{GuildID: ic.GuildID, MemberID: memberID, ChannelID: ch.ID}
	if err := b.guilds.CreateChatSession(ctx, cs); err != nil {
		return err
	}
	return b.editReply(ic, fmt.Sprintf("Answered in <#%s>.", ch.ID))
}

// askInExistingChat answers into the member's recorded chat channel,
// or in place when the question was asked there.
func (b *Bot) askInExistingChat(ctx context.Context, ic *discordgo.InteractionCreate, cs *guild.ChatSession, question string) error {
	answer, err := b.answerer.Answer(ctx, question)
	if err != nil {
		return err
	}

	memberID := ic.Member.User.ID
	reply := fmt.Sprintf("<@%s> %s", memberID, answer.Text)
	if ic.ChannelID == cs.ChannelID {
		return b.editReply(ic, reply)
	}
	if _, err := b.session.ChannelMessageSend(cs.ChannelID, reply); err != nil {
		return fmt.Errorf("sending answer: %w", err)
	}
	return b.editReply(ic, fmt.Sprintf("Answered in <#%s>.", cs.ChannelID))
}

func (b *Bot) cmdSetup(ctx context.Context, ic *discordgo.InteractionCreate) error {
	if err := b.respond(ic, "Processing your command..."); err != nil {
		return err
	}

	_, err := b.guilds.Guild(ctx, ic.GuildID)
	if err == nil {
		return b.editReply(ic, "You have finished initial setup for this guild. **Please use `/update` to change the guild information.**")
	}
	if !errors.Is(err, guild.ErrNotFound) {
		return err
	}

	categoryID := optString(ic, "category_id")
	if err := b.requireCategory(categoryID); err != nil {
		return b.editReply(ic, "You have selected a wrong type of channel. **Expected:** `Category` channel.")
	}
	if err := b.guilds.SetupGuild(ctx, ic.GuildID, categoryID); err != nil {
		return err
	}
	return b.editReply(ic, "You have finished initial setup for this guild.")
}

func (b *Bot) cmdUpdate(ctx context.Context, ic *discordgo.InteractionCreate) error {
	if err := b.respond(ic, "Processing your command..."); err != nil {
		return err
	}

	if _, err := b.guilds.Guild(ctx, ic.GuildID); err != nil {
		if errors.Is(err, guild.ErrNotFound) {
			return b.editReply(ic, "You have not finished initial setup for this guild. Please use `/setup` first.")
		}
		return err
	}

	categoryID := optString(ic, "category_id")
	if err := b.requireCategory(categoryID); err != nil {
		return b.editReply(ic, "You have selected a wrong type of channel. **Expected:** `Category` channel.")
	}
	if err := b.guilds.UpdateGuild(ctx, ic.GuildID, categoryID); err != nil {
		return err
	}
	return b.editReply(ic, "You have updated this guild information.")
}

func (b *Bot) cmdAddRole(ctx context.Context, ic *discordgo.InteractionCreate) error {
	if err := b.respond(ic, "Adding role..."); err != nil {
		return err
	}

	roleID := optString(ic, "role_id")
	roles, err := b.session.GuildRoles(ic.GuildID)
	if err != nil {
		return fmt.Errorf("listing guild roles: %w", err)
	}
	found := false
	for _, r := range roles {
		if r.ID == roleID {
			found = true
			break
		}
	}
	if !found {
		return b.editReply(ic, "Role is not found in this guild.")
	}

	if err := b.guilds.AddModeratorRole(ctx, ic.GuildID, roleID); err != nil {
		return err
	}
	return b.editReply(ic, "Role added.")
}

func (b *Bot) cmdFetch(ctx context.Context, ic *discordgo.InteractionCreate) error {
	if err := b.respond(ic, "Fetching selected message..."); err != nil {
		return err
	}

	channelID := optChannelID(ic, "channel")
	messageID := optString(ic, "source")

	ch, err := b.session.Channel(channelID)
	if err != nil {
		return fmt.Errorf("fetching channel %q: %w", channelID, err)
	}
	if !ch.IsThread() && ch.Type != discordgo.ChannelTypeGuildText {
		return b.editReply(ic, "You have selected a wrong type of channel. Fetch only accepts a thread or text channel.")
	}

	msg, err := b.session.ChannelMessage(ch.ID, messageID)
	if err != nil {
		return fmt.Errorf("fetching message %q: %w", messageID, err)
	}

	ev := sync.Event{
		Kind:        sync.Created,
		Item:        sync.Message,
		ParentID:    msg.ID,
		ChannelID:   ch.ID,
		Content:     msg.Content,
		Attachments: toAttachments(msg.Attachments),
	}
	if err := b.sink.Ingest(ctx, ev); err != nil {
		return err
	}
	return b.editReply(ic, "Fetch message succeeded.")
}

func (b *Bot) cmdForget(ctx context.Context, ic *discordgo.InteractionCreate) error {
	if err := b.respond(ic, "Processing your command..."); err != nil {
		return err
	}

	messageID := optString(ic, "message_id")
	n, err := b.sink.Forget(ctx, messageID)
	if err != nil {
		return err
	}
	if n == 0 {
		return b.editReply(ic, "No message found.")
	}
	return b.editReply(ic, fmt.Sprintf("Message deleted successfully. Removed %d stored chunks.", n))
}

func (b *Bot) cmdInspect(ctx context.Context, ic *discordgo.InteractionCreate) error {
	if err := b.respond(ic, "Checking the message..."); err != nil {
		return err
	}

	messageID := optString(ic, "message_id")
	n, err := b.counter.CountByParent(ctx, messageID)
	if err != nil {
		return err
	}
	if n == 0 {
		return b.editReply(ic, "No message found.")
	}
	return b.editReply(ic, fmt.Sprintf("Message found. %d chunks stored for message %s.", n, messageID))
}

// requireCategory verifies the id refers to a category channel.
func (b *Bot) requireCategory(channelID string) error {
	ch, err := b.session.Channel(channelID)
	if err != nil {
		return fmt.Errorf("fetching category channel: %w", err)
	}
	if ch.Type != discordgo.ChannelTypeGuildCategory {
		return fmt.Errorf("channel %q is not a category", channelID)
	}
	return nil
}

// memberName prefers the member's guild nickname over the username.
func memberName(m *discordgo.Member) string {
	if m.Nick != "" {
		return m.Nick
	}
	return m.User.Username
}

// optString returns the named string option or "".
func optString(ic *discordgo.InteractionCreate, name string) string {
	for _, opt := range ic.ApplicationCommandData().Options {
		if opt.Name == name && opt.Type == discordgo.ApplicationCommandOptionString {
			return opt.StringValue()
		}
	}
	return ""
}

// optChannelID returns the named channel option's id or "".
func optChannelID(ic *discordgo.InteractionCreate, name string) string {
	for _, opt := range ic.ApplicationCommandData().Options {
		if opt.Name == name && opt.Type == discordgo.ApplicationCommandOptionChannel {
			return opt.ChannelValue(nil).ID
		}
	}
	return ""
}
