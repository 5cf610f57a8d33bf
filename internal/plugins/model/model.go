// Package model lets bot owners switch the model used for chat replies
// without restarting.
package model

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"github.com/keshon/digmbot/internal/bot"
	"github.com/keshon/digmbot/internal/config"
	"github.com/keshon/digmbot/internal/event"
	"github.com/keshon/digmbot/internal/state"
)

const Verb = "model"

// Plugin must be wrapped with plugin.WithOwnerOnly(Verb).
type Plugin struct{}

func (Plugin) Name() string { return Verb }

func (Plugin) Usage(cfg *config.Config) string {
	return fmt.Sprintf("%s%s [name|reset] - show or change the chat model (owners only)", cfg.General.CommandPrefix, Verb)
}

func (Plugin) Handle(ctx context.Context, bctx *bot.Context, ev event.Event) (event.Outcome, error) {
	msg, args, ok := event.IsCommand(bctx.Config.General.CommandPrefix, ev, Verb)
	if !ok {
		return event.NotHandled, nil
	}

	name := strings.TrimSpace(args)
	switch {
	case name == "":
		current, err := bctx.Prompts.Model(config.TemplateReply)
		if err != nil {
			return event.Handled, err
		}
		return event.Handled, bctx.Platform.Reply(ctx, msg, fmt.Sprintf("Current model: `%s`", current))

	case strings.EqualFold(name, "reset"):
		if err := bctx.Persistent.Delete(state.KeyModelOverride); err != nil {
			return event.Handled, fmt.Errorf("clear model override: %w", err)
		}
		return event.Handled, bctx.Platform.Reply(ctx, msg,
			fmt.Sprintf("Model reset to `%s`", bctx.Config.LLMReply.ModelName))

	case strings.ContainsFunc(name, unicode.IsSpace):
		return event.Handled, bctx.Platform.Reply(ctx, msg, "Model names cannot contain spaces.")
	}

	err := state.Mutate(bctx.Persistent, state.KeyModelOverride, func(v *string) error {
		*v = name
		return nil
	})
	if err != nil {
		return event.Handled, fmt.Errorf("set model override: %w", err)
	}
	return event.Handled, bctx.Platform.Reply(ctx, msg, fmt.Sprintf("Model set to `%s`", name))
}
