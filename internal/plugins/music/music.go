package music

import (
	"context"
	"fmt"

	"github.com/keshon/digmbot/internal/bot"
	"github.com/keshon/digmbot/internal/config"
	"github.com/keshon/digmbot/internal/event"
)

const URL = "https://www.youtube.com/watch?v=dQw4w9WgXcQ"

type Plugin struct{}

func (Plugin) Name() string { return "music" }

func (Plugin) Usage(cfg *config.Config) string {
	return fmt.Sprintf("%smusic - fetch random music from YouTube", cfg.General.CommandPrefix)
}

func (Plugin) Handle(ctx context.Context, bctx *bot.Context, ev event.Event) (event.Outcome, error) {
	msg, _, ok := event.IsCommand(bctx.Config.General.CommandPrefix, ev, "music")
	if !ok {
		return event.NotHandled, nil
	}
	return event.Handled, bctx.Platform.Reply(ctx, msg, URL)
}
