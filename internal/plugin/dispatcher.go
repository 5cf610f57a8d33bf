package plugin

import (
	"context"
	"fmt"
	"log"
	"runtime/debug"

	"github.com/google/uuid"

	"github.com/keshon/digmbot/internal/bot"
	"github.com/keshon/digmbot/internal/event"
)

// Dispatcher owns the plugin order, fixed at construction.
type Dispatcher struct {
	bctx    *bot.Context
	plugins []Plugin
}

func NewDispatcher(bctx *bot.Context, plugins ...Plugin) *Dispatcher {
	return &Dispatcher{bctx: bctx, plugins: plugins}
}

func (d *Dispatcher) Plugins() []Plugin {
	return append([]Plugin(nil), d.plugins...)
}

// Usages returns the non-empty help lines in registration order.
func (d *Dispatcher) Usages() []string {
	var lines []string
	for _, p := range d.plugins {
		if u := d.safeUsage(p); u != "" {
			lines = append(lines, u)
		}
	}
	return lines
}

func (d *Dispatcher) safeUsage(p Plugin) (u string) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[ERR] Plugin %s panicked in Usage: %v", p.Name(), r)
			u = ""
		}
	}()
	return p.Usage(d.bctx.Config)
}

// Init runs every Initializer. Failures are logged and do not stop the others.
func (d *Dispatcher) Init(ctx context.Context) {
	for _, p := range d.plugins {
		in, ok := p.(Initializer)
		if !ok {
			continue
		}
		if err := guard(func() error { return in.Init(ctx, d.bctx) }); err != nil {
			log.Printf("[ERR] Plugin %s failed to initialize: %v", p.Name(), err)
		}
	}
}

// Dispatch hands ev to each plugin in order until one returns event.Handled.
// A plugin that errors or panics is logged and treated as not having handled
// the event. It returns the name of the handling plugin, or "".
func (d *Dispatcher) Dispatch(ctx context.Context, ev event.Event) string {
	id := uuid.NewString()

	for _, p := range d.plugins {
		var out event.Outcome
		err := guard(func() error {
			var err error
			out, err = p.Handle(ctx, d.bctx, ev)
			return err
		})
		if err != nil {
			log.Printf("[ERR] [%s] Plugin %s on %s: %v", id, p.Name(), event.Name(ev), err)
			continue
		}
		if out == event.Handled {
			log.Printf("[DEBUG] [%s] %s handled by %s", id, event.Name(ev), p.Name())
			return p.Name()
		}
	}
	return ""
}

// guard turns a panic in fn into an error.
func guard(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v\n%s", r, debug.Stack())
		}
	}()
	return fn()
}
