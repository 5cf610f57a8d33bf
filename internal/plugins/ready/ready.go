// Package ready consumes the gateway's ready event.
package ready

import (
	"context"
	"log"

	"github.com/keshon/digmbot/internal/bot"
	"github.com/keshon/digmbot/internal/config"
	"github.com/keshon/digmbot/internal/event"
)

type Plugin struct{}

func (Plugin) Name() string                { return "ready" }
func (Plugin) Usage(*config.Config) string { return "" }

func (Plugin) Handle(ctx context.Context, bctx *bot.Context, ev event.Event) (event.Outcome, error) {
	r, ok := ev.(event.Ready)
	if !ok {
		return event.NotHandled, nil
	}
	log.Printf("[INFO] ✅ Discord bot %v is running in %d guild(s).", r.BotUser.Label(), r.GuildCount)
	return event.Handled, nil
}
