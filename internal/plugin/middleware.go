package plugin

import (
	"context"
	"log"
	"slices"
	"time"

	"github.com/keshon/digmbot/internal/bot"
	"github.com/keshon/digmbot/internal/event"
)

type Middleware func(Plugin) Plugin

type handleFunc func(ctx context.Context, bctx *bot.Context, ev event.Event) (event.Outcome, error)

type wrappedPlugin struct {
	Plugin
	handle handleFunc
}

func (w *wrappedPlugin) Handle(ctx context.Context, bctx *bot.Context, ev event.Event) (event.Outcome, error) {
	return w.handle(ctx, bctx, ev)
}

func (w *wrappedPlugin) Init(ctx context.Context, bctx *bot.Context) error {
	if in, ok := w.Plugin.(Initializer); ok {
		return in.Init(ctx, bctx)
	}
	return nil
}

func wrap(p Plugin, h handleFunc) Plugin {
	return &wrappedPlugin{Plugin: p, handle: h}
}

// Apply wraps p with mws; the first middleware ends up innermost.
func Apply(p Plugin, mws ...Middleware) Plugin {
	for _, mw := range mws {
		p = mw(p)
	}
	return p
}

// WithOwnerOnly lets only bot owners through to the listed command verbs (all
// commands when none are listed). Anyone else gets the denial reply and the
// event counts as handled.
func WithOwnerOnly(verbs ...string) Middleware {
	return func(p Plugin) Plugin {
		return wrap(p, func(ctx context.Context, bctx *bot.Context, ev event.Event) (event.Outcome, error) {
			mr, ok := ev.(event.MessageReceived)
			if !ok {
				return p.Handle(ctx, bctx, ev)
			}
			verb, _, isCmd := event.Command(bctx.Config.General.CommandPrefix, mr.Content)
			if !isCmd || (len(verbs) > 0 && !slices.Contains(verbs, verb)) {
				return p.Handle(ctx, bctx, ev)
			}
			if bctx.Config.IsOwner(mr.Author.ID) {
				return p.Handle(ctx, bctx, ev)
			}
			return event.Handled, bctx.Deny(ctx, mr.Message)
		})
	}
}

// WithLogging logs every event the plugin handles or fails on.
func WithLogging() Middleware {
	return func(p Plugin) Plugin {
		return wrap(p, func(ctx context.Context, bctx *bot.Context, ev event.Event) (event.Outcome, error) {
			start := time.Now()
			out, err := p.Handle(ctx, bctx, ev)
			switch {
			case err != nil:
				log.Printf("[WARN] Plugin %s failed on %s after %v: %v", p.Name(), event.Name(ev), time.Since(start), err)
			case out == event.Handled:
				log.Printf("[CMD] Plugin %s handled %s in %v", p.Name(), event.Name(ev), time.Since(start))
			}
			return out, err
		})
	}
}
