// Package bot holds the Context shared by every plugin invocation and the
// Platform capabilities it exposes.
package bot

import (
	"context"
	"fmt"
	"log"

	"github.com/keshon/digmbot/internal/ai"
	"github.com/keshon/digmbot/internal/config"
	"github.com/keshon/digmbot/internal/event"
	"github.com/keshon/digmbot/internal/history"
	"github.com/keshon/digmbot/internal/prompt"
	"github.com/keshon/digmbot/internal/state"
)

// Platform is what plugins may ask of the chat platform.
type Platform interface {
	history.Fetcher

	BotUser() event.User
	Send(ctx context.Context, channelID, text string) error
	Reply(ctx context.Context, to event.Message, text string) error
	React(ctx context.Context, channelID, messageID, emoji string) error
	DirectMessage(ctx context.Context, userID, text string) error
	// Typing shows the typing indicator until stop is called.
	Typing(ctx context.Context, channelID string) (stop func())

	// DisplayName resolves the name userID goes by in guildID, cache first.
	DisplayName(ctx context.Context, guildID, userID string) string
	GuildName(ctx context.Context, guildID string) string
	// AFKChannelID returns "" when the guild has no AFK channel.
	AFKChannelID(ctx context.Context, guildID string) (string, error)
	// VoiceUserCount counts users in the guild's voice channels, AFK excluded.
	VoiceUserCount(ctx context.Context, guildID string) (int, error)
}

// DeniedFallback is sent when the denial template cannot be generated.
const DeniedFallback = "You are not allowed to do that."

// Context is shared by reference across all plugins for the whole run.
type Context struct {
	Config     *config.Config
	Persistent *state.Persistent
	Volatile   *state.Volatile
	History    *history.Manager
	Platform   Platform
	LLM        ai.Completer
	Prompts    *prompt.Assembler
}

// Substitutions returns the placeholder values for a prompt answering msg.
func (c *Context) Substitutions(ctx context.Context, msg event.Message) map[string]string {
	self := c.Platform.BotUser()
	botName := c.Platform.DisplayName(ctx, msg.GuildID, self.ID)
	if botName == "" {
		botName = self.Label()
	}
	return map[string]string{
		prompt.PlaceholderBot:  botName,
		prompt.PlaceholderUser: msg.Author.Label(),
	}
}

// Complete generates text for the template key from msg's channel history.
func (c *Context) Complete(ctx context.Context, key string, msg event.Message) (string, error) {
	req, err := c.Prompts.BuildFromHistory(key, c.Substitutions(ctx, msg), c.History, msg.ChannelID)
	if err != nil {
		return "", fmt.Errorf("build %s prompt: %w", key, err)
	}

	stop := c.Platform.Typing(ctx, msg.ChannelID)
	defer stop()
	return c.LLM.Complete(ctx, req)
}

// Deny tells the author of msg they may not do what they asked. The reply
// comes from the permission-denied template, or a fixed text if that fails;
// a denial is never silent.
func (c *Context) Deny(ctx context.Context, msg event.Message) error {
	log.Printf("[INFO] Permission denied for %s (%s) in channel %s", msg.Author.Label(), msg.Author.ID, msg.ChannelID)

	text, err := c.Complete(ctx, config.TemplatePermissionDenied, msg)
	if err != nil {
		log.Printf("[WARN] Denial prompt failed, using fallback: %v", err)
		text = DeniedFallback
	}
	return c.Platform.Reply(ctx, msg, text)
}
