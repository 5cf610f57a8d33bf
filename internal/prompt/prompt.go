// Package prompt turns a template and a window of channel history into an
// LLM chat request. It performs no I/O.
package prompt

import (
	"errors"
	"fmt"
	"log"
	"regexp"

	"github.com/keshon/digmbot/internal/ai"
	"github.com/keshon/digmbot/internal/config"
	"github.com/keshon/digmbot/internal/history"
	"github.com/keshon/digmbot/internal/state"
)

// Placeholder names understood by the default templates.
const (
	PlaceholderBot  = "bot"
	PlaceholderUser = "user"
)

var ErrUnknownTemplate = errors.New("unknown prompt template")

var placeholder = regexp.MustCompile(`\{([A-Za-z0-9_]+)\}`)

// Substitute replaces every {name} whose name is in subs. Unknown
// placeholders stay as they are. Substituted values are not rescanned.
func Substitute(template string, subs map[string]string) string {
	return placeholder.ReplaceAllStringFunc(template, func(m string) string {
		if v, ok := subs[m[1:len(m)-1]]; ok {
			return v
		}
		return m
	})
}

type Assembler struct {
	cfg   *config.Config
	state *state.Persistent // optional, for the model override

	// Estimate prices the system prompt and every rendered history message
	// against the context budget.
	Estimate history.Estimator
}

func NewAssembler(cfg *config.Config, p *state.Persistent) *Assembler {
	return &Assembler{cfg: cfg, state: p, Estimate: history.CharsPerToken}
}

// Model returns the model used for key, honouring the persistent override
// for the reply template.
func (a *Assembler) Model(key string) (string, error) {
	t, ok := a.cfg.Template(key)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownTemplate, key)
	}
	if key == config.TemplateReply && a.state != nil {
		override, ok, err := state.Get[string](a.state, state.KeyModelOverride)
		if err != nil {
			log.Printf("[WARN] Ignoring unreadable model override: %v", err)
		} else if ok && override != "" {
			return override, nil
		}
	}
	return t.ModelName, nil
}

// Build assembles the request for key from an already selected window.
// The system message comes first, followed by the window in order.
func (a *Assembler) Build(key string, subs map[string]string, window []history.Message) (ai.Request, error) {
	t, ok := a.cfg.Template(key)
	if !ok {
		return ai.Request{}, fmt.Errorf("%w: %s", ErrUnknownTemplate, key)
	}
	model, err := a.Model(key)
	if err != nil {
		return ai.Request{}, err
	}

	msgs := make([]ai.Message, 0, len(window)+1)
	msgs = append(msgs, ai.Message{Role: ai.RoleSystem, Content: Substitute(t.SystemPrompt, subs)})
	for _, m := range window {
		msgs = append(msgs, render(m))
	}

	return ai.Request{
		URL:         t.ChatURL,
		Model:       model,
		Messages:    msgs,
		NumCtx:      t.ContextSize,
		Temperature: t.Temperature,
	}, nil
}

// BuildFromHistory selects the newest messages of channelID that fit what is
// left of the context budget after the system prompt, then calls Build.
// Messages are priced as rendered, author prefix included.
func (a *Assembler) BuildFromHistory(key string, subs map[string]string, hist *history.Manager, channelID string) (ai.Request, error) {
	t, ok := a.cfg.Template(key)
	if !ok {
		return ai.Request{}, fmt.Errorf("%w: %s", ErrUnknownTemplate, key)
	}
	system := Substitute(t.SystemPrompt, subs)
	budget := max(1, t.ContextSize-a.Estimate(system))
	window := history.SelectWindow(hist.Messages(channelID), budget, a.renderedCost)
	return a.Build(key, subs, window)
}

func (a *Assembler) renderedCost(m history.Message) int {
	return a.Estimate(render(m).Content)
}

func render(m history.Message) ai.Message {
	if m.Role == history.RoleBot {
		return ai.Message{Role: ai.RoleAssistant, Content: m.Text}
	}
	return ai.Message{Role: ai.RoleUser, Content: fmt.Sprintf("%s: %s", m.AuthorName, m.Text)}
}
