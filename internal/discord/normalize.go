package discord

import (
	"regexp"
	"slices"

	"github.com/bwmarrin/discordgo"

	"github.com/keshon/digmbot/internal/event"
	"github.com/keshon/digmbot/internal/history"
)

// Resolver looks up the human names behind Discord markup. It returns ""
// when a name is unknown.
type Resolver interface {
	UserName(guildID, userID string) string
	RoleName(guildID, roleID string) string
	ChannelName(channelID string) string
}

var (
	userMention    = regexp.MustCompile(`<@!?(\d+)>`)
	roleMention    = regexp.MustCompile(`<@&(\d+)>`)
	channelMention = regexp.MustCompile(`<#(\d+)>`)
)

// Humanize renders user, role and channel mentions in content as
// "@name", "@role" and "#channel". Unresolvable markup is left alone.
func Humanize(content, guildID string, r Resolver) string {
	content = roleMention.ReplaceAllStringFunc(content, func(m string) string {
		if name := r.RoleName(guildID, roleMention.FindStringSubmatch(m)[1]); name != "" {
			return "@" + name
		}
		return m
	})
	content = userMention.ReplaceAllStringFunc(content, func(m string) string {
		if name := r.UserName(guildID, userMention.FindStringSubmatch(m)[1]); name != "" {
			return "@" + name
		}
		return m
	})
	return channelMention.ReplaceAllStringFunc(content, func(m string) string {
		if name := r.ChannelName(channelMention.FindStringSubmatch(m)[1]); name != "" {
			return "#" + name
		}
		return m
	})
}

// IsAddressed reports whether m is meant for the bot: a direct message, a
// mention of the bot, a reply to one of its messages, or a mention of a role
// the bot holds.
func IsAddressed(m *discordgo.Message, botID string, botRoles []string) bool {
	if m.GuildID == "" {
		return true
	}
	for _, u := range m.Mentions {
		if u != nil && u.ID == botID {
			return true
		}
	}
	if ref := m.ReferencedMessage; ref != nil && ref.Author != nil && ref.Author.ID == botID {
		return true
	}
	for _, role := range m.MentionRoles {
		if slices.Contains(botRoles, role) {
			return true
		}
	}
	return false
}

// userFrom prefers the guild nickname, then the global display name.
func userFrom(u *discordgo.User, member *discordgo.Member) event.User {
	if u == nil {
		return event.User{}
	}
	out := event.User{ID: u.ID, Name: u.Username, DisplayName: u.GlobalName, Bot: u.Bot}
	if member != nil && member.Nick != "" {
		out.DisplayName = member.Nick
	}
	return out
}

// MessageFrom converts a gateway message into the canonical event payload.
func MessageFrom(m *discordgo.Message, botID string, botRoles []string, r Resolver) event.Message {
	msg := event.Message{
		ID:        m.ID,
		ChannelID: m.ChannelID,
		GuildID:   m.GuildID,
		Author:    userFrom(m.Author, m.Member),
		Content:   Humanize(m.Content, m.GuildID, r),
		Timestamp: m.Timestamp,
		Addressed: IsAddressed(m, botID, botRoles),
	}
	if m.MessageReference != nil {
		msg.ReplyToID = m.MessageReference.MessageID
	}
	if m.Author != nil && m.Member == nil && m.GuildID != "" {
		if name := r.UserName(m.GuildID, m.Author.ID); name != "" {
			msg.Author.DisplayName = name
		}
	}
	return msg
}

// historyFrom converts a fetched message into a history entry.
func historyFrom(m *discordgo.Message, guildID, botID string, r Resolver) history.Message {
	author := userFrom(m.Author, m.Member)
	if m.Member == nil && author.ID != "" {
		if name := r.UserName(guildID, author.ID); name != "" {
			author.DisplayName = name
		}
	}
	role := history.RoleUser
	if author.ID == botID {
		role = history.RoleBot
	}
	return history.Message{
		ID:         m.ID,
		AuthorID:   author.ID,
		AuthorName: author.Label(),
		Role:       role,
		Text:       Humanize(m.Content, guildID, r),
		Timestamp:  m.Timestamp,
	}
}

func reactionFrom(r *discordgo.MessageReaction) event.Reaction {
	return event.Reaction{
		GuildID:   r.GuildID,
		ChannelID: r.ChannelID,
		MessageID: r.MessageID,
		UserID:    r.UserID,
		Emoji:     r.Emoji.APIName(),
	}
}

// voiceFrom returns false for updates that do not change the channel, such
// as mute toggles.
func voiceFrom(v *discordgo.VoiceStateUpdate) (event.VoiceStateUpdated, bool) {
	if v.VoiceState == nil {
		return event.VoiceStateUpdated{}, false
	}
	ev := event.VoiceStateUpdated{
		GuildID:      v.GuildID,
		UserID:       v.UserID,
		NewChannelID: v.ChannelID,
	}
	if v.BeforeUpdate != nil {
		ev.OldChannelID = v.BeforeUpdate.ChannelID
	}
	return ev, ev.OldChannelID != ev.NewChannelID
}
