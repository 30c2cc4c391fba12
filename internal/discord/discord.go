package discord

import (
	"context"

	"github.com/foxseedlab/kikitori/internal/pipeline"
)

type FileMessage struct {
	ChannelID string
	Content   string
	Filename  string
	FileBody  []byte
}

type SlashCommandDefinition struct {
	Name        string
	Description string
}

type SlashCommandEvent struct {
	GuildID          string
	ChannelID        string
	CommandName      string
	UserID           string
	RespondEphemeral func(content string) error
}

type TranscriptParticipant struct {
	UserID      string
	DisplayName string
	IsBot       bool
}

type TranscriptMetadata struct {
	DiscordServerID         string
	DiscordServerName       string
	DiscordVoiceChannelID   string
	DiscordVoiceChannelName string
	Participants            []TranscriptParticipant
}

type Client interface {
	Connect(ctx context.Context) error
	Close() error
	// OpenRoom joins the voice channel. Participant identities are display
	// names; the bot itself and other bots are excluded.
	OpenRoom(ctx context.Context, guildID, channelID string) (pipeline.Room, error)
	SendChannelMessage(channelID, content string) error
	SendChannelMessageWithFile(msg FileMessage) error
	RegisterSlashCommandHandler(handler func(SlashCommandEvent))
	UpsertGuildSlashCommands(guildID string, defs []SlashCommandDefinition) error
	GetUserVoiceChannelID(guildID, userID string) (string, error)
	GetBotUserID() (string, error)
	ResolveTranscriptMetadata(ctx context.Context, guildID, channelID string, participantUserIDs []string) (TranscriptMetadata, error)
}
