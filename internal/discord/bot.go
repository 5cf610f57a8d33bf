// Package discord connects the plugin dispatcher to the Discord gateway and
// implements bot.Platform on top of a discordgo session.
package discord

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/bwmarrin/discordgo"

	"github.com/keshon/digmbot/internal/event"
	"github.com/keshon/digmbot/internal/history"
	"github.com/keshon/digmbot/internal/plugin"
)

const intents = discordgo.IntentsGuilds |
	discordgo.IntentsGuildMembers |
	discordgo.IntentsGuildMessages |
	discordgo.IntentsGuildMessageReactions |
	discordgo.IntentsGuildVoiceStates |
	discordgo.IntentsDirectMessages |
	discordgo.IntentsDirectMessageReactions |
	discordgo.IntentsMessageContent

// Bot is a Discord bot
type Bot struct {
	dg *discordgo.Session

	// set by Run
	ctx        context.Context
	dispatcher *plugin.Dispatcher
	history    *history.Manager
	initOnce   sync.Once
}

// New prepares a session without connecting, so the Bot can be handed out
// as a Platform before Run.
func New(token string) (*Bot, error) {
	dg, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	dg.Identify.Intents = intents
	dg.State.TrackVoice = true
	dg.State.TrackMembers = true
	return &Bot{dg: dg}, nil
}

// Run connects, feeds every gateway event through d and blocks until ctx is
// done. h is backfilled for a channel before its first message is dispatched.
func (b *Bot) Run(ctx context.Context, d *plugin.Dispatcher, h *history.Manager) error {
	b.ctx, b.dispatcher, b.history = ctx, d, h

	b.dg.AddHandler(b.onReady)
	b.dg.AddHandler(b.onMessageCreate)
	b.dg.AddHandler(b.onMessageReactionAdd)
	b.dg.AddHandler(b.onMessageReactionRemove)
	b.dg.AddHandler(b.onVoiceStateUpdate)

	if err := b.dg.Open(); err != nil {
		return fmt.Errorf("failed to open Discord session: %w", err)
	}
	defer b.dg.Close()

	<-ctx.Done()
	log.Println("[INFO] ❎ Shutdown signal received. Cleaning up...")
	return nil
}

func (b *Bot) dispatch(ev event.Event) {
	if by := b.dispatcher.Dispatch(b.ctx, ev); by != "" {
		log.Printf("[EVT] %s handled by %s", event.Name(ev), by)
	}
}

// onReady runs plugin initializers on the first connection only; resumes
// and reconnects just dispatch the event.
func (b *Bot) onReady(s *discordgo.Session, r *discordgo.Ready) {
	b.initOnce.Do(func() {
		log.Println("[INFO] Initializing plugins...")
		b.dispatcher.Init(b.ctx)
	})
	b.dispatch(event.Ready{BotUser: userFrom(r.User, nil), GuildCount: len(r.Guilds)})
}

// onMessageCreate dispatches every message, the bot's own included, so
// they reach history.
func (b *Bot) onMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Message == nil || m.Author == nil {
		return
	}
	self := b.BotUser()
	msg := MessageFrom(m.Message, self.ID, b.botRoles(m.GuildID), b)

	b.history.EnsureBackfilled(b.ctx, m.ChannelID, m.ID)
	b.dispatch(event.MessageReceived{Message: msg})
}

func (b *Bot) onMessageReactionAdd(s *discordgo.Session, r *discordgo.MessageReactionAdd) {
	if r.MessageReaction == nil {
		return
	}
	b.dispatch(event.ReactionAdded{Reaction: reactionFrom(r.MessageReaction)})
}

func (b *Bot) onMessageReactionRemove(s *discordgo.Session, r *discordgo.MessageReactionRemove) {
	if r.MessageReaction == nil {
		return
	}
	b.dispatch(event.ReactionRemoved{Reaction: reactionFrom(r.MessageReaction)})
}

func (b *Bot) onVoiceStateUpdate(s *discordgo.Session, v *discordgo.VoiceStateUpdate) {
	ev, moved := voiceFrom(v)
	if !moved {
		return
	}
	b.dispatch(ev)
}
