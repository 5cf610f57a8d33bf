package xkcd

import (
	"context"
	"fmt"

	"github.com/keshon/digmbot/internal/bot"
	"github.com/keshon/digmbot/internal/config"
	"github.com/keshon/digmbot/internal/event"
)

// RandomURL is a fair dice roll.
const RandomURL = "https://xkcd.com/221/"

type Plugin struct{}

func (Plugin) Name() string { return "xkcd" }

func (Plugin) Usage(cfg *config.Config) string {
	return fmt.Sprintf("%sxkcd - show random xkcd comic", cfg.General.CommandPrefix)
}

func (Plugin) Handle(ctx context.Context, bctx *bot.Context, ev event.Event) (event.Outcome, error) {
	msg, _, ok := event.IsCommand(bctx.Config.General.CommandPrefix, ev, "xkcd")
	if !ok {
		return event.NotHandled, nil
	}
	return event.Handled, bctx.Platform.Reply(ctx, msg, RandomURL)
}
