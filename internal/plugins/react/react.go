// Package react adds an emoji to messages that talk about the bot by name.
package react

import (
	"context"
	"strings"

	"github.com/keshon/digmbot/internal/bot"
	"github.com/keshon/digmbot/internal/config"
	"github.com/keshon/digmbot/internal/event"
)

const Emoji = "\U0001F440" // eyes

type Plugin struct{}

func (Plugin) Name() string                { return "react" }
func (Plugin) Usage(*config.Config) string { return "" }

// Handle never claims the event, so a message naming the bot still gets a reply.
func (Plugin) Handle(ctx context.Context, bctx *bot.Context, ev event.Event) (event.Outcome, error) {
	mr, ok := ev.(event.MessageReceived)
	if !ok {
		return event.NotHandled, nil
	}
	self := bctx.Platform.BotUser()
	if mr.Author.ID == self.ID {
		return event.NotHandled, nil
	}

	name := bctx.Platform.DisplayName(ctx, mr.GuildID, self.ID)
	if name == "" || !strings.Contains(strings.ToLower(mr.Content), strings.ToLower(name)) {
		return event.NotHandled, nil
	}
	return event.NotHandled, bctx.Platform.React(ctx, mr.ChannelID, mr.ID, Emoji)
}
