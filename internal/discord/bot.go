// Package discord is the gateway surface of the bot: it translates
// Discord events into synchronization events and slash command
// interactions into service calls.
package discord

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/prasetya0/guildlore/internal/guild"
	"github.com/prasetya0/guildlore/internal/permission"
	"github.com/prasetya0/guildlore/internal/rag"
	"github.com/prasetya0/guildlore/internal/sync"
)

// handlerTimeout bounds one event or command handler end to end.
const handlerTimeout = 60 * time.Second

// Session is the subset of the discordgo session the bot calls. The
// concrete *discordgo.Session satisfies it.
type Session interface {
	InteractionRespond(i *discordgo.Interaction, resp *discordgo.InteractionResponse, options ...discordgo.RequestOption) error
	InteractionResponseEdit(i *discordgo.Interaction, newresp *discordgo.WebhookEdit, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageSend(channelID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	Channel(channelID string, options ...discordgo.RequestOption) (*discordgo.Channel, error)
	ChannelMessage(channelID, messageID string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	Guild(guildID string, options ...discordgo.RequestOption) (*discordgo.Guild, error)
	GuildRoles(guildID string, options ...discordgo.RequestOption) ([]*discordgo.Role, error)
	GuildChannelCreateComplex(guildID string, data discordgo.GuildChannelCreateData, options ...discordgo.RequestOption) (*discordgo.Channel, error)
	ApplicationCommandBulkOverwrite(appID, guildID string, commands []*discordgo.ApplicationCommand, options ...discordgo.RequestOption) ([]*discordgo.ApplicationCommand, error)
}

// GuildDirectory is the relational record surface commands use.
type GuildDirectory interface {
	Guild(ctx context.Context, guildID string) (*guild.Config, error)
	SetupGuild(ctx context.Context, guildID, categoryID string) error
	UpdateGuild(ctx context.Context, guildID, categoryID string) error
	ChatSession(ctx context.Context, guildID, memberID string) (*guild.ChatSession, error)
	CreateChatSession(ctx context.Context, cs guild.ChatSession) error
	ModeratorRoles(ctx context.Context, guildID string) ([]string, error)
	AddModeratorRole(ctx context.Context, guildID, roleID string) error
}

// EventSink consumes content lifecycle events. Handle is the gated
// gateway path; Ingest and Forget are the ungated operator paths.
type EventSink interface {
	Handle(ctx context.Context, ev sync.Event) error
	Ingest(ctx context.Context, ev sync.Event) error
	Forget(ctx context.Context, parentID string) (int64, error)
}

// Answerer produces grounded answers for member questions.
type Answerer interface {
	Answer(ctx context.Context, question string) (rag.Answer, error)
}

// ChunkCounter reports how many chunks are stored for a source item.
type ChunkCounter interface {
	CountByParent(ctx context.Context, parentID string) (int64, error)
}

// Config holds the bot's connection settings.
type Config struct {
	Token   string
	AppID   string
	GuildID string
}

// Bot owns the gateway session and routes its events.
type Bot struct {
	cfg       Config
	session   Session
	dg        *discordgo.Session
	botUserID string

	guilds   GuildDirectory
	perms    *permission.Evaluator
	sink     EventSink
	answerer Answerer
	counter  ChunkCounter
	logger   *slog.Logger

	handlers map[string]commandHandler
}

// New assembles a Bot from its collaborators. Start must be called
// before the bot receives anything.
func New(cfg Config, guilds GuildDirectory, perms *permission.Evaluator, sink EventSink, answerer Answerer, counter ChunkCounter, logger *slog.Logger) *Bot {
	if logger == nil {
		logger = slog.Default()
	}
	b := &Bot{
		cfg:      cfg,
		guilds:   guilds,
		perms:    perms,
		sink:     sink,
		answerer: answerer,
		counter:  counter,
		logger:   logger.With("component", "discord"),
	}
	b.handlers = commandHandlers(b)
	return b
}

// Start opens the gateway connection and registers the slash commands.
func (b *Bot) Start(ctx context.Context) error {
	if b.cfg.Token == "" {
		return fmt.Errorf("discord: bot token is required")
	}

	dg, err := discordgo.New("Bot " + b.cfg.Token)
	if err != nil {
		return fmt.Errorf("discord: creating session: %w", err)
	}

	b.configure(dg)

	if err := dg.Open(); err != nil {
		return fmt.Errorf("discord: opening gateway: %w", err)
	}

	if err := b.registerCommands(); err != nil {
		dg.Close()
		return err
	}
	return nil
}

// configure wires intents and handlers and publishes the session.
// Handlers dispatch on gateway goroutines the moment the connection
// opens, so everything they read must be in place before Open.
func (b *Bot) configure(dg *discordgo.Session) {
	dg.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsMessageContent

	b.dg = dg
	b.session = dg

	dg.AddHandler(func(_ *discordgo.Session, r *discordgo.Ready) {
		b.botUserID = r.User.ID
		b.logger.Info("connected", "bot", r.User.Username, "id", r.User.ID)
	})
	dg.AddHandler(func(_ *discordgo.Session, t *discordgo.ThreadCreate) {
		b.withTimeout(func(hctx context.Context) { b.onThreadCreate(hctx, t) })
	})
	dg.AddHandler(func(_ *discordgo.Session, t *discordgo.ThreadDelete) {
		b.withTimeout(func(hctx context.Context) { b.onThreadDelete(hctx, t) })
	})
	dg.AddHandler(func(_ *discordgo.Session, m *discordgo.MessageUpdate) {
		b.withTimeout(func(hctx context.Context) { b.onMessageUpdate(hctx, m) })
	})
	dg.AddHandler(func(_ *discordgo.Session, ic *discordgo.InteractionCreate) {
		b.withTimeout(func(hctx context.Context) { b.onInteractionCreate(hctx, ic) })
	})
}

// Stop closes the gateway connection. In-flight handlers finish on
// their own goroutines.
func (b *Bot) Stop() error {
	if b.dg == nil {
		return nil
	}
	b.logger.Info("disconnecting")
	return b.dg.Close()
}

// registerCommands overwrites the application's command set so the
// deployed commands always match this build.
func (b *Bot) registerCommands() error {
	registered, err := b.session.ApplicationCommandBulkOverwrite(b.cfg.AppID, b.cfg.GuildID, commandDefinitions())
	if err != nil {
		return fmt.Errorf("discord: registering commands: %w", err)
	}
	b.logger.Info("slash commands registered", "count", len(registered))
	return nil
}

func (b *Bot) withTimeout(fn func(ctx context.Context)) {
	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()
	fn(ctx)
}

// respond sends the initial interaction reply.
func (b *Bot) respond(ic *discordgo.InteractionCreate, content string) error {
	return b.session.InteractionRespond(ic.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Content: content},
	})
}

// editReply replaces the interaction's initial reply.
func (b *Bot) editReply(ic *discordgo.InteractionCreate, content string) error {
	_, err := b.session.InteractionResponseEdit(ic.Interaction, &discordgo.WebhookEdit{
		Content: &content,
	})
	return err
}
