// Package history records every message, the bot's own included, into the
// channel history used for prompts.
package history

import (
	"context"

	"github.com/keshon/digmbot/internal/bot"
	"github.com/keshon/digmbot/internal/config"
	"github.com/keshon/digmbot/internal/event"
	hist "github.com/keshon/digmbot/internal/history"
)

type Plugin struct{}

func (Plugin) Name() string                { return "history" }
func (Plugin) Usage(*config.Config) string { return "" }

func (Plugin) Handle(ctx context.Context, bctx *bot.Context, ev event.Event) (event.Outcome, error) {
	mr, ok := ev.(event.MessageReceived)
	if !ok {
		return event.NotHandled, nil
	}
	bctx.History.Record(ctx, mr.ChannelID, FromEvent(mr.Message, bctx.Platform.BotUser().ID))
	return event.NotHandled, nil
}

// FromEvent converts a received message into a history entry.
func FromEvent(m event.Message, botID string) hist.Message {
	role := hist.RoleUser
	if m.Author.ID == botID {
		role = hist.RoleBot
	}
	return hist.Message{
		ID:         m.ID,
		AuthorID:   m.Author.ID,
		AuthorName: m.Author.Label(),
		Role:       role,
		Text:       m.Content,
		Timestamp:  m.Timestamp,
	}
}
