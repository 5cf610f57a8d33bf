// Package llmreply answers messages addressed to the bot with a generated
// reply built from the channel's recent history.
package llmreply

import (
	"context"
	"errors"
	"log"

	"github.com/keshon/digmbot/internal/ai"
	"github.com/keshon/digmbot/internal/bot"
	"github.com/keshon/digmbot/internal/config"
	"github.com/keshon/digmbot/internal/event"
)

// Apology is sent when no reply could be generated.
const Apology = "Sorry, my brain is not responding right now. Try again in a bit."

type Plugin struct{}

func (Plugin) Name() string { return "llm_reply" }

func (Plugin) Usage(*config.Config) string { return "" }

func (Plugin) Handle(ctx context.Context, bctx *bot.Context, ev event.Event) (event.Outcome, error) {
	mr, ok := ev.(event.MessageReceived)
	if !ok || !mr.Addressed || mr.Author.Bot {
		return event.NotHandled, nil
	}

	text, err := bctx.Complete(ctx, config.TemplateReply, mr.Message)
	if err != nil {
		var aerr *ai.Error
		if errors.As(err, &aerr) {
			log.Printf("[WARN] Reply generation failed (%s) for %s: %v", aerr.Kind, mr.Author.Label(), err)
		} else {
			log.Printf("[ERR] Reply generation failed for %s: %v", mr.Author.Label(), err)
		}
		return event.Handled, bctx.Platform.Reply(ctx, mr.Message, Apology)
	}

	return event.Handled, bctx.Platform.Reply(ctx, mr.Message, text)
}
