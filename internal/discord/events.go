package discord

import (
	"context"

	"github.com/bwmarrin/discordgo"

	"github.com/prasetya0/guildlore/internal/sync"
)

// onThreadCreate ingests a new forum thread. The thread's starter
// message shares the thread's id, so it is fetched directly.
func (b *Bot) onThreadCreate(ctx context.Context, t *discordgo.ThreadCreate) {
	if !t.NewlyCreated || !t.IsThread() {
		return
	}
	// Cheap pre-check so non-source forums never cost a message fetch;
	// the sink gates again on its own.
	if !b.perms.IsAllowedChannel(t.ParentID) {
		return
	}

	msg, err := b.session.ChannelMessage(t.ID, t.ID)
	if err != nil {
		b.logger.Error("fetching thread starter message failed", "thread_id", t.ID, "error", err)
		return
	}

	ev := sync.Event{
		Kind:        sync.Created,
		Item:        sync.Thread,
		ParentID:    msg.ID,
		ChannelID:   t.ParentID,
		Content:     msg.Content,
		Attachments: toAttachments(msg.Attachments),
	}
	if err := b.sink.Handle(ctx, ev); err != nil {
		b.logger.Error("ingesting thread failed", "thread_id", t.ID, "error", err)
	}
}

// onThreadDelete removes the chunks of a deleted thread.
func (b *Bot) onThreadDelete(ctx context.Context, t *discordgo.ThreadDelete) {
	if !t.IsThread() {
		return
	}
	ev := sync.Event{
		Kind:      sync.Deleted,
		Item:      sync.Thread,
		ParentID:  t.ID,
		ChannelID: t.ParentID,
	}
	if err := b.sink.Handle(ctx, ev); err != nil {
		b.logger.Error("removing thread chunks failed", "thread_id", t.ID, "error", err)
	}
}

// onMessageUpdate re-ingests an edited message when it lives inside a
// thread. Edits elsewhere are ignored.
func (b *Bot) onMessageUpdate(ctx context.Context, m *discordgo.MessageUpdate) {
	if m.Author != nil && m.Author.Bot {
		return
	}

	ch, err := b.session.Channel(m.ChannelID)
	if err != nil {
		b.logger.Error("fetching channel of edited message failed", "channel_id", m.ChannelID, "error", err)
		return
	}
	if !ch.IsThread() {
		return
	}

	// MESSAGE_UPDATE payloads can be partial. An embed resolving
	// carries neither author nor content, so the full message is
	// fetched before re-ingesting.
	msg, err := b.session.ChannelMessage(m.ChannelID, m.ID)
	if err != nil {
		b.logger.Error("fetching edited message failed", "message_id", m.ID, "error", err)
		return
	}
	if msg.Author != nil && msg.Author.Bot {
		return
	}

	ev := sync.Event{
		Kind:        sync.Edited,
		Item:        sync.Message,
		ParentID:    msg.ID,
		ChannelID:   ch.ParentID,
		Content:     msg.Content,
		Attachments: toAttachments(msg.Attachments),
	}
	if err := b.sink.Handle(ctx, ev); err != nil {
		b.logger.Error("re-ingesting edited message failed", "message_id", msg.ID, "error", err)
	}
}

func toAttachments(atts []*discordgo.MessageAttachment) []sync.Attachment {
	if len(atts) == 0 {
		return nil
	}
	out := make([]sync.Attachment, 0, len(atts))
	for _, a := range atts {
		out = append(out, sync.Attachment{
			ID:          a.ID,
			Name:        a.Filename,
			URL:         a.URL,
			ContentType: a.ContentType,
		})
	}
	return out
}
