package discord

import (
	"strings"

	"github.com/bwmarrin/discordgo"
	discordpkg "github.com/foxseedlab/kikitori/internal/discord"
)

// stateThenREST prefers the gateway cache and falls back to the REST API,
// which matters right after startup while the cache is still cold. A nil
// result means neither source had a usable value.
func stateThenREST[T any](fromState, fromREST func() (*T, error), usable func(*T) bool) *T {
	if fromState != nil {
		if v, err := fromState(); err == nil && v != nil && usable(v) {
			return v
		}
	}
	v, err := fromREST()
	if err != nil || v == nil || !usable(v) {
		return nil
	}
	return v
}

func (c *Client) hasState() bool {
	return c.session != nil && c.session.State != nil
}

func (c *Client) lookupGuild(guildID string) *discordgo.Guild {
	if c.session == nil {
		return nil
	}
	var fromState func() (*discordgo.Guild, error)
	if c.hasState() {
		fromState = func() (*discordgo.Guild, error) { return c.session.State.Guild(guildID) }
	}
	return stateThenREST(fromState,
		func() (*discordgo.Guild, error) { return c.session.Guild(guildID) },
		func(g *discordgo.Guild) bool { return g.Name != "" })
}

func (c *Client) lookupChannel(channelID string) *discordgo.Channel {
	if c.session == nil {
		return nil
	}
	var fromState func() (*discordgo.Channel, error)
	if c.hasState() {
		fromState = func() (*discordgo.Channel, error) { return c.session.State.Channel(channelID) }
	}
	return stateThenREST(fromState,
		func() (*discordgo.Channel, error) { return c.session.Channel(channelID) },
		func(ch *discordgo.Channel) bool { return ch.Name != "" })
}

func (c *Client) lookupMember(guildID, userID string) *discordgo.Member {
	if c.session == nil {
		return nil
	}
	var fromState func() (*discordgo.Member, error)
	if c.hasState() {
		fromState = func() (*discordgo.Member, error) { return c.session.State.Member(guildID, userID) }
	}
	return stateThenREST(fromState,
		func() (*discordgo.Member, error) { return c.session.GuildMember(guildID, userID) },
		func(*discordgo.Member) bool { return true })
}

// isBotUser checks the voice state payload first, then the cache, and only
// then asks the REST API.
func (c *Client) isBotUser(guildID, userID string, vs *discordgo.VoiceState) bool {
	if vs != nil && vs.Member != nil && vs.Member.User != nil {
		return vs.Member.User.Bot
	}
	if c.hasState() {
		if self := c.session.State.User; self != nil && self.ID == userID {
			return true
		}
		if m, err := c.session.State.Member(guildID, userID); err == nil && m != nil && m.User != nil {
			return m.User.Bot
		}
	}
	if c.session == nil {
		return false
	}
	u, err := c.session.User(userID)
	return err == nil && u != nil && u.Bot
}

// lookupParticipant names a user by guild nickname, then global name, then
// username. The user ID is the last resort.
func (c *Client) lookupParticipant(guildID, userID string) discordpkg.TranscriptParticipant {
	p := discordpkg.TranscriptParticipant{UserID: userID, DisplayName: userID}
	if m := c.lookupMember(guildID, userID); m != nil {
		if m.User != nil {
			p.IsBot = m.User.Bot
			p.DisplayName = preferredDiscordName(m.User.GlobalName, m.User.Username, userID)
		}
		if m.Nick != "" {
			p.DisplayName = m.Nick
		}
	}
	if p.DisplayName != userID || c.session == nil {
		return p
	}
	if u, err := c.session.User(userID); err == nil && u != nil {
		p.DisplayName = preferredDiscordName(u.GlobalName, u.Username, userID)
		p.IsBot = u.Bot
	}
	return p
}

func preferredDiscordName(globalName, username, fallback string) string {
	for _, name := range []string{globalName, username} {
		if name != "" {
			return name
		}
	}
	return fallback
}

// uniqueIDs trims IDs and drops blanks and repeats, keeping first-seen order.
func uniqueIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
