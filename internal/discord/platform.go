package discord

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/bwmarrin/discordgo"

	"github.com/keshon/digmbot/internal/bot"
	"github.com/keshon/digmbot/internal/event"
	"github.com/keshon/digmbot/internal/history"
	"github.com/keshon/digmbot/pkg/retrylimit"
)

// MessageLimit is the longest message Discord accepts.
const MessageLimit = 2000

const (
	chunkDelay     = 200 * time.Millisecond
	typingInterval = 8 * time.Second
	fetchAttempts  = 3
	fetchPageSize  = 100
)

var _ bot.Platform = (*Bot)(nil)

func (b *Bot) BotUser() event.User {
	if b.dg.State == nil || b.dg.State.User == nil {
		return event.User{}
	}
	return userFrom(b.dg.State.User, nil)
}

func (b *Bot) Send(ctx context.Context, channelID, text string) error {
	return b.sendChunks(ctx, channelID, splitMessage(text, MessageLimit))
}

func (b *Bot) sendChunks(ctx context.Context, channelID string, chunks []string) error {
	for i, chunk := range chunks {
		if i > 0 {
			if err := sleep(ctx, chunkDelay); err != nil {
				return err
			}
		}
		if _, err := b.dg.ChannelMessageSend(channelID, chunk, discordgo.WithContext(ctx)); err != nil {
			return fmt.Errorf("send to %s: %w", channelID, err)
		}
	}
	return nil
}

// Reply sends the first chunk as a reply to the message and the rest as
// plain follow-ups.
func (b *Bot) Reply(ctx context.Context, to event.Message, text string) error {
	chunks := splitMessage(text, MessageLimit)
	if len(chunks) == 0 {
		return nil
	}
	ref := &discordgo.MessageReference{MessageID: to.ID, ChannelID: to.ChannelID, GuildID: to.GuildID}
	if _, err := b.dg.ChannelMessageSendReply(to.ChannelID, chunks[0], ref, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("reply to %s: %w", to.ID, err)
	}
	if len(chunks) == 1 {
		return nil
	}
	if err := sleep(ctx, chunkDelay); err != nil {
		return err
	}
	return b.sendChunks(ctx, to.ChannelID, chunks[1:])
}

func (b *Bot) React(ctx context.Context, channelID, messageID, emoji string) error {
	if err := b.dg.MessageReactionAdd(channelID, messageID, emoji, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("react on %s: %w", messageID, err)
	}
	return nil
}

func (b *Bot) DirectMessage(ctx context.Context, userID, text string) error {
	ch, err := b.dg.UserChannelCreate(userID, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("open dm with %s: %w", userID, err)
	}
	return b.Send(ctx, ch.ID, text)
}

// Typing refreshes the typing indicator every few seconds until stop is
// called or ctx ends.
func (b *Bot) Typing(ctx context.Context, channelID string) func() {
	done := make(chan struct{})
	var once sync.Once
	go b.keepTyping(ctx, channelID, done)
	return func() { once.Do(func() { close(done) }) }
}

func (b *Bot) keepTyping(ctx context.Context, channelID string, done <-chan struct{}) {
	_ = b.dg.ChannelTyping(channelID)
	ticker := time.NewTicker(typingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = b.dg.ChannelTyping(channelID)
		}
	}
}

// FetchBefore returns up to limit messages older than beforeID, newest
// first. Server errors are retried; other failures are returned as is.
func (b *Bot) FetchBefore(ctx context.Context, channelID, beforeID string, limit int) ([]history.Message, error) {
	guildID := ""
	if ch, err := b.dg.State.Channel(channelID); err == nil {
		guildID = ch.GuildID
	}
	botID := b.BotUser().ID

	var out []history.Message
	for len(out) < limit {
		page := min(limit-len(out), fetchPageSize)

		var msgs []*discordgo.Message
		err := retrylimit.Do(ctx, fetchAttempts, nil, func() error {
			var err error
			msgs, err = b.dg.ChannelMessages(channelID, page, beforeID, "", "", discordgo.WithContext(ctx))
			return restStatus(err)
		})
		if err != nil {
			return out, fmt.Errorf("fetch history of %s: %w", channelID, err)
		}

		for _, m := range msgs {
			out = append(out, historyFrom(m, guildID, botID, b))
		}
		if len(msgs) < page {
			break
		}
		beforeID = msgs[len(msgs)-1].ID
	}
	log.Printf("[HIST] Fetched %d message(s) of channel %s", len(out), channelID)
	return out, nil
}

// DisplayName looks in the state cache first and asks the API on a miss.
func (b *Bot) DisplayName(ctx context.Context, guildID, userID string) string {
	if name := b.UserName(guildID, userID); name != "" {
		return name
	}
	if guildID != "" {
		if m, err := b.dg.GuildMember(guildID, userID, discordgo.WithContext(ctx)); err == nil {
			return userFrom(m.User, m).Label()
		}
	}
	if u, err := b.dg.User(userID, discordgo.WithContext(ctx)); err == nil {
		return userFrom(u, nil).Label()
	}
	return userID
}

func (b *Bot) GuildName(ctx context.Context, guildID string) string {
	g, err := b.guild(ctx, guildID)
	if err != nil {
		log.Printf("[WARN] Failed to fetch guild %s: %v", guildID, err)
		return ""
	}
	return g.Name
}

func (b *Bot) AFKChannelID(ctx context.Context, guildID string) (string, error) {
	g, err := b.guild(ctx, guildID)
	if err != nil {
		return "", err
	}
	return g.AfkChannelID, nil
}

// VoiceUserCount counts from the state cache, which is the only place
// Discord exposes voice states to bots.
func (b *Bot) VoiceUserCount(ctx context.Context, guildID string) (int, error) {
	g, err := b.dg.State.Guild(guildID)
	if err != nil {
		return 0, fmt.Errorf("guild %s not cached: %w", guildID, err)
	}
	b.dg.State.RLock()
	defer b.dg.State.RUnlock()
	n := 0
	for _, vs := range g.VoiceStates {
		if vs.ChannelID != "" && vs.ChannelID != g.AfkChannelID {
			n++
		}
	}
	return n, nil
}

func (b *Bot) guild(ctx context.Context, guildID string) (*discordgo.Guild, error) {
	if g, err := b.dg.State.Guild(guildID); err == nil {
		return g, nil
	}
	g, err := b.dg.Guild(guildID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("fetch guild %s: %w", guildID, err)
	}
	return g, nil
}

// UserName implements Resolver from the state cache.
func (b *Bot) UserName(guildID, userID string) string {
	if guildID != "" {
		if m, err := b.dg.State.Member(guildID, userID); err == nil {
			return userFrom(m.User, m).Label()
		}
	}
	if b.dg.State.User != nil && b.dg.State.User.ID == userID {
		return userFrom(b.dg.State.User, nil).Label()
	}
	return ""
}

func (b *Bot) RoleName(guildID, roleID string) string {
	if r, err := b.dg.State.Role(guildID, roleID); err == nil {
		return r.Name
	}
	return ""
}

func (b *Bot) ChannelName(channelID string) string {
	if c, err := b.dg.State.Channel(channelID); err == nil {
		return c.Name
	}
	return ""
}

// botRoles lists the roles the bot holds in guildID.
func (b *Bot) botRoles(guildID string) []string {
	if guildID == "" || b.dg.State.User == nil {
		return nil
	}
	m, err := b.dg.State.Member(guildID, b.dg.State.User.ID)
	if err != nil {
		return nil
	}
	return m.Roles
}

// splitMessage cuts msg into chunks of at most limit bytes, preferring line
// breaks.
func splitMessage(msg string, limit int) []string {
	var result []string
	for len(msg) > limit {
		cut := strings.LastIndex(msg[:limit], "\n")
		if cut <= 0 {
			cut = runeBoundary(msg, limit)
		}
		result = append(result, strings.TrimSpace(msg[:cut]))
		msg = strings.TrimSpace(msg[cut:])
	}
	if msg != "" {
		result = append(result, msg)
	}
	return result
}

// runeBoundary backs off from i so a chunk never ends inside a rune.
func runeBoundary(s string, i int) int {
	for i > 0 && i < len(s) && !utf8.RuneStart(s[i]) {
		i--
	}
	if i == 0 {
		return 1
	}
	return i
}

// restError exposes a discordgo REST failure's HTTP status to retrylimit.
type restError struct {
	*discordgo.RESTError
}

func (e restError) StatusCode() int {
	if e.Response == nil {
		return 0
	}
	return e.Response.StatusCode
}

func (e restError) Unwrap() error { return e.RESTError }

// restStatus marks client errors as permanent so only overloads are retried.
func restStatus(err error) error {
	var re *discordgo.RESTError
	if !errors.As(err, &re) {
		return err
	}
	wrapped := restError{re}
	if !retrylimit.IsOverload(wrapped) {
		return &retrylimit.Permanent{Err: wrapped}
	}
	return wrapped
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
