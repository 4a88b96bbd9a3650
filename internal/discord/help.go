package discord

import (
	"context"

	"github.com/bwmarrin/discordgo"
)

const helpOverview = `### All commands.
1. ` + "`/ask <question>`" + ` - Ask a question and receive a grounded answer.
2. ` + "`/help <command?>`" + ` - Show this list or details about one command.

### Privileged commands.
1. ` + "`/fetch <channel> <source>`" + ` - Ingest a message from a channel.
2. ` + "`/forget <message_id>`" + ` - Delete a message's stored content.
3. ` + "`/inspect <message_id>`" + ` - Check whether a message is stored.
4. ` + "`/addrole <role_id>`" + ` - Add a moderator role to this guild.

### Owner commands.
1. ` + "`/setup <category_id>`" + ` - Initial setup for this guild.
2. ` + "`/update <category_id>`" + ` - Update this guild's chat category.`

var helpDetails = map[string]string{
	"ask": "# Ask\nAsk a question and receive an answer grounded in this guild's knowledge base.\n\n**Usage**\n/ask question:<your question>\n\n-# Public command.",
	"fetch": "# Fetch\nIngest a message from a thread or text channel into the knowledge base.\n\n**Usage**\n/fetch channel:<channel> source:<message id>\n\n-# Privileged roles can execute this command.",
	"forget": "# Forget\nDelete a message's stored content from the knowledge base.\n\n**Usage**\n/forget message_id:<message id>\n\n-# Privileged roles can execute this command.",
	"inspect": "# Inspect\nCheck whether a message is stored and how many chunks it holds.\n\n**Usage**\n/inspect message_id:<message id>\n\n-# Privileged roles can execute this command.",
	"addrole": "# Addrole\nAdd a moderator role for this guild. Create the role first.\n\n**Usage**\n/addrole role_id:<role id>\n\n-# Privileged roles can execute this command.",
	"setup": "# Setup\nAssign a category channel to host the private chat channels.\n\n**Usage**\n/setup category_id:<category channel id>\n\n-# Only the guild owner can execute this command.",
	"update": "# Update\nChange the category channel hosting the private chat channels.\n\n**Usage**\n/update category_id:<category channel id>\n\n-# Only the guild owner can execute this command.",
}

func (b *Bot) cmdHelp(_ context.Context, ic *discordgo.InteractionCreate) error {
	if name := optString(ic, "command"); name != "" {
		if detail, ok := helpDetails[name]; ok {
			return b.respond(ic, detail)
		}
	}
	return b.respond(ic, helpOverview)
}

// commandDefinitions is the slash command set registered on startup.
func commandDefinitions() []*discordgo.ApplicationCommand {
	helpChoices := make([]*discordgo.ApplicationCommandOptionChoice, 0, len(helpDetails))
	for _, name := range []string{"ask", "fetch", "forget", "inspect", "addrole", "setup", "update"} {
		helpChoices = append(helpChoices, &discordgo.ApplicationCommandOptionChoice{Name: name, Value: name})
	}

	return []*discordgo.ApplicationCommand{
		{
			Name:        "ask",
			Description: "Ask me a question.",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "question",
					Description: "Please insert your question.",
					Required:    true,
				},
			},
		},
		{
			Name:        "setup",
			Description: "Setup guild information.",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "category_id",
					Description: "Category channel ID to host AI chats.",
					Required:    true,
				},
			},
		},
		{
			Name:        "update",
			Description: "Update guild information.",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "category_id",
					Description: "Category channel ID to host AI chats.",
					Required:    true,
				},
			},
		},
		{
			Name:        "addrole",
			Description: "Privileged command. Add a moderator role for this guild.",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "role_id",
					Description: "Insert role id.",
					Required:    true,
				},
			},
		},
		{
			Name:        "fetch",
			Description: "Privileged command. Fetch a message and feed it to the knowledge base.",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionChannel,
					Name:        "channel",
					Description: "Channel holding the message.",
					ChannelTypes: []discordgo.ChannelType{
						discordgo.ChannelTypeGuildPublicThread,
						discordgo.ChannelTypeGuildPrivateThread,
						discordgo.ChannelTypeGuildText,
					},
					Required: true,
				},
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "source",
					Description: "Message as source of truth.",
					Required:    true,
				},
			},
		},
		{
			Name:        "forget",
			Description: "Privileged command. Delete a message's stored content.",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "message_id",
					Description: "Message ID to delete.",
					Required:    true,
				},
			},
		},
		{
			Name:        "inspect",
			Description: "Privileged command. Check whether a message is stored.",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "message_id",
					Description: "Message ID to check.",
					Required:    true,
				},
			},
		},
		{
			Name:        "help",
			Description: "Show list of all commands.",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "command",
					Description: "Choose a command to see details about it.",
					Choices:     helpChoices,
				},
			},
		},
	}
}
