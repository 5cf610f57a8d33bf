// Package help lists the usage line of every plugin.
package help

import (
	"context"
	"fmt"
	"strings"

	"github.com/keshon/digmbot/internal/bot"
	"github.com/keshon/digmbot/internal/config"
	"github.com/keshon/digmbot/internal/event"
)

// UsageSource is satisfied by *plugin.Dispatcher.
type UsageSource interface {
	Usages() []string
}

type Plugin struct {
	// Source is set once the dispatcher exists.
	Source UsageSource
}

func (*Plugin) Name() string { return "help" }

func (*Plugin) Usage(cfg *config.Config) string {
	return fmt.Sprintf("%shelp - you are here", cfg.General.CommandPrefix)
}

func (p *Plugin) Handle(ctx context.Context, bctx *bot.Context, ev event.Event) (event.Outcome, error) {
	msg, _, ok := event.IsCommand(bctx.Config.General.CommandPrefix, ev, "help")
	if !ok {
		return event.NotHandled, nil
	}

	var b strings.Builder
	b.WriteString("```\nCommands:\n")
	if p.Source != nil {
		for _, u := range p.Source.Usages() {
			b.WriteString(u)
			b.WriteString("\n")
		}
	}
	b.WriteString("```")

	return event.Handled, bctx.Platform.Reply(ctx, msg, b.String())
}
