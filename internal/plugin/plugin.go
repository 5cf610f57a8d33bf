// Package plugin runs normalized events through an ordered chain of plugins.
package plugin

import (
	"context"

	"github.com/keshon/digmbot/internal/bot"
	"github.com/keshon/digmbot/internal/config"
	"github.com/keshon/digmbot/internal/event"
)

// Plugin is one feature of the bot. Handle returns event.Handled only when
// the plugin claims the event exclusively; most plugins that act on an event
// still return event.NotHandled so later plugins see it too.
type Plugin interface {
	Name() string
	// Usage is the help line for the plugin, or "" if it has none.
	Usage(cfg *config.Config) string
	Handle(ctx context.Context, bctx *bot.Context, ev event.Event) (event.Outcome, error)
}

// Initializer is implemented by plugins that need setup once the gateway is ready.
type Initializer interface {
	Init(ctx context.Context, bctx *bot.Context) error
}
