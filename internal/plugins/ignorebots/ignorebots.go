// Package ignorebots stops messages from other bots before they reach any
// command or reply plugin.
package ignorebots

import (
	"context"

	"github.com/keshon/digmbot/internal/bot"
	"github.com/keshon/digmbot/internal/config"
	"github.com/keshon/digmbot/internal/event"
)

type Plugin struct{}

func (Plugin) Name() string                { return "ignore_bots" }
func (Plugin) Usage(*config.Config) string { return "" }

func (Plugin) Handle(ctx context.Context, bctx *bot.Context, ev event.Event) (event.Outcome, error) {
	if mr, ok := ev.(event.MessageReceived); ok && mr.Author.Bot {
		return event.Handled, nil
	}
	return event.NotHandled, nil
}
