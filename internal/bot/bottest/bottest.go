// Package bottest provides in-memory stand-ins for the platform and the LLM
// so plugins can be exercised without Discord.
package bottest

import (
	"context"
	"errors"
	"path/filepath"
	"slices"
	"sync"
	"testing"

	"github.com/keshon/digmbot/internal/ai"
	"github.com/keshon/digmbot/internal/bot"
	"github.com/keshon/digmbot/internal/config"
	"github.com/keshon/digmbot/internal/event"
	"github.com/keshon/digmbot/internal/history"
	"github.com/keshon/digmbot/internal/prompt"
	"github.com/keshon/digmbot/internal/state"
)

type Kind string

const (
	KindSend  Kind = "send"
	KindReply Kind = "reply"
	KindDM    Kind = "dm"
	KindReact Kind = "react"
)

// Outgoing is one recorded platform side effect.
type Outgoing struct {
	Kind Kind
	To   string // channel, user or message ID
	Text string // message text or emoji
}

// Platform implements bot.Platform in memory.
type Platform struct {
	Self       event.User
	Names      map[string]string // user ID -> display name
	Guilds     map[string]string // guild ID -> name
	AFK        map[string]string // guild ID -> AFK channel ID
	VoiceUsers map[string]int    // guild ID -> non-AFK voice users
	Backlog    map[string][]history.Message
	FailDMTo   map[string]bool

	mu  sync.Mutex
	out []Outgoing
}

var _ bot.Platform = (*Platform)(nil)

var ErrDMClosed = errors.New("cannot send messages to this user")

func NewPlatform() *Platform {
	return &Platform{
		Self:       event.User{ID: "bot", Name: "digmbot", DisplayName: "Digmbot", Bot: true},
		Names:      map[string]string{},
		Guilds:     map[string]string{},
		AFK:        map[string]string{},
		VoiceUsers: map[string]int{},
		Backlog:    map[string][]history.Message{},
		FailDMTo:   map[string]bool{},
	}
}

func (p *Platform) record(o Outgoing) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.out = append(p.out, o)
}

// Outgoing returns the side effects recorded so far.
func (p *Platform) Outgoing() []Outgoing {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.out)
}

// Of returns the recorded side effects of one kind.
func (p *Platform) Of(kind Kind) []Outgoing {
	var res []Outgoing
	for _, o := range p.Outgoing() {
		if o.Kind == kind {
			res = append(res, o)
		}
	}
	return res
}

func (p *Platform) BotUser() event.User { return p.Self }

func (p *Platform) Send(_ context.Context, channelID, text string) error {
	p.record(Outgoing{Kind: KindSend, To: channelID, Text: text})
	return nil
}

func (p *Platform) Reply(_ context.Context, to event.Message, text string) error {
	p.record(Outgoing{Kind: KindReply, To: to.ID, Text: text})
	return nil
}

func (p *Platform) React(_ context.Context, _, messageID, emoji string) error {
	p.record(Outgoing{Kind: KindReact, To: messageID, Text: emoji})
	return nil
}

func (p *Platform) DirectMessage(_ context.Context, userID, text string) error {
	if p.FailDMTo[userID] {
		return ErrDMClosed
	}
	p.record(Outgoing{Kind: KindDM, To: userID, Text: text})
	return nil
}

func (p *Platform) Typing(context.Context, string) func() { return func() {} }

func (p *Platform) FetchBefore(_ context.Context, channelID, _ string, limit int) ([]history.Message, error) {
	msgs := p.Backlog[channelID]
	if len(msgs) > limit {
		msgs = msgs[:limit]
	}
	return slices.Clone(msgs), nil
}

func (p *Platform) DisplayName(_ context.Context, _, userID string) string {
	if n, ok := p.Names[userID]; ok {
		return n
	}
	if userID == p.Self.ID {
		return p.Self.Label()
	}
	return userID
}

func (p *Platform) GuildName(_ context.Context, guildID string) string {
	return p.Guilds[guildID]
}

func (p *Platform) AFKChannelID(_ context.Context, guildID string) (string, error) {
	return p.AFK[guildID], nil
}

func (p *Platform) VoiceUserCount(_ context.Context, guildID string) (int, error) {
	return p.VoiceUsers[guildID], nil
}

// LLM is a scripted ai.Completer.
type LLM struct {
	Reply string
	Err   error

	mu       sync.Mutex
	requests []ai.Request
}

func (l *LLM) Complete(_ context.Context, req ai.Request) (string, error) {
	l.mu.Lock()
	l.requests = append(l.requests, req)
	l.mu.Unlock()
	if l.Err != nil {
		return "", l.Err
	}
	return l.Reply, nil
}

func (l *LLM) Requests() []ai.Request {
	l.mu.Lock()
	defer l.mu.Unlock()
	return slices.Clone(l.requests)
}

// NewContext wires a bot.Context around a fresh state file in t.TempDir.
// The config has owner "owner" and prefix ";".
func NewContext(t testing.TB) (*bot.Context, *Platform, *LLM) {
	t.Helper()

	cfg := config.Default()
	cfg.General.BotOwners = []string{"owner"}
	cfg.General.CommandPrefix = ";"
	cfg.StatePath = filepath.Join(t.TempDir(), "state.json")

	p, err := state.OpenPersistent(cfg.StatePath)
	if err != nil {
		t.Fatalf("open state: %v", err)
	}
	t.Cleanup(func() { p.Close() })

	platform := NewPlatform()
	llm := &LLM{Reply: "generated"}

	return &bot.Context{
		Config:     cfg,
		Persistent: p,
		Volatile:   state.NewVolatile(cfg.NotificationLimit()),
		History:    history.NewManager(platform, cfg.History.ChannelMaxMessageCount, cfg.History.ChannelBackfillMessageCount),
		Platform:   platform,
		LLM:        llm,
		Prompts:    prompt.NewAssembler(cfg, p),
	}, platform, llm
}

// Message builds a MessageReceived event in channel "chan" of guild "guild".
func Message(authorID, content string) event.MessageReceived {
	return event.MessageReceived{Message: event.Message{
		ID:        "m-" + content,
		ChannelID: "chan",
		GuildID:   "guild",
		Author:    event.User{ID: authorID, Name: authorID},
		Content:   content,
	}}
}
