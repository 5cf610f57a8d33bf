// Package debug logs every event in a human-readable form.
package debug

import (
	"context"
	"fmt"
	"log"

	"github.com/keshon/digmbot/internal/bot"
	"github.com/keshon/digmbot/internal/config"
	"github.com/keshon/digmbot/internal/event"
)

type Plugin struct{}

func (Plugin) Name() string                { return "debug" }
func (Plugin) Usage(*config.Config) string { return "" }

func (Plugin) Handle(ctx context.Context, bctx *bot.Context, ev event.Event) (event.Outcome, error) {
	if line := Describe(ctx, bctx.Platform, ev); line != "" {
		log.Printf("[EVT] %s", line)
	}
	return event.NotHandled, nil
}

// Describe renders ev for the log, or "" for events not worth a line
// (voice state changes within one channel such as mute toggles).
func Describe(ctx context.Context, p bot.Platform, ev event.Event) string {
	switch e := ev.(type) {
	case event.Ready:
		return fmt.Sprintf("Connected to %d server(s) as %s", e.GuildCount, e.BotUser.Label())
	case event.MessageReceived:
		where := e.ChannelID
		if e.GuildID != "" {
			where = p.GuildName(ctx, e.GuildID) + "/" + e.ChannelID
		}
		return fmt.Sprintf("%s %s: %s", where, e.Author.Label(), e.Content)
	case event.ReactionAdded:
		return fmt.Sprintf("%s reacted to message %s with %q", p.DisplayName(ctx, e.GuildID, e.UserID), e.MessageID, e.Emoji)
	case event.ReactionRemoved:
		return fmt.Sprintf("%s removed reaction %q from message %s", p.DisplayName(ctx, e.GuildID, e.UserID), e.Emoji, e.MessageID)
	case event.VoiceStateUpdated:
		who := p.DisplayName(ctx, e.GuildID, e.UserID)
		switch {
		case e.OldChannelID == e.NewChannelID:
			return ""
		case e.OldChannelID == "":
			return fmt.Sprintf("%s joined VC channel %s", who, e.NewChannelID)
		case e.NewChannelID == "":
			return fmt.Sprintf("%s left VC channel %s", who, e.OldChannelID)
		default:
			return fmt.Sprintf("%s moved VC channel from %s to %s", who, e.OldChannelID, e.NewChannelID)
		}
	}
	return ""
}
