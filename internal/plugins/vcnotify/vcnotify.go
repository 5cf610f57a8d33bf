// Package vcnotify DMs followers when somebody starts a voice session, i.e.
// joins voice while nobody else is there.
package vcnotify

import (
	"context"
	"fmt"
	"log"
	"slices"
	"strings"
	"time"

	"github.com/keshon/digmbot/internal/bot"
	"github.com/keshon/digmbot/internal/config"
	"github.com/keshon/digmbot/internal/event"
	"github.com/keshon/digmbot/internal/state"
	"github.com/keshon/digmbot/pkg/util"
)

const (
	verb       = "vc-notify"
	dmWorkers  = 4
	dmDeadline = 30 * time.Second
)

type Plugin struct {
	// Now is the clock used for throttling; nil means time.Now.
	Now func() time.Time
}

func (*Plugin) Name() string { return verb }

func (*Plugin) Usage(cfg *config.Config) string {
	if !cfg.VcNotify.Enabled {
		return ""
	}
	return fmt.Sprintf("%s%s <follow/unfollow> - voice channel activity notifications", cfg.General.CommandPrefix, verb)
}

func (p *Plugin) Handle(ctx context.Context, bctx *bot.Context, ev event.Event) (event.Outcome, error) {
	if !bctx.Config.VcNotify.Enabled {
		return event.NotHandled, nil
	}
	switch e := ev.(type) {
	case event.MessageReceived:
		return p.handleCommand(ctx, bctx, e)
	case event.VoiceStateUpdated:
		return event.NotHandled, p.handleVoice(ctx, bctx, e)
	}
	return event.NotHandled, nil
}

func (p *Plugin) handleCommand(ctx context.Context, bctx *bot.Context, ev event.MessageReceived) (event.Outcome, error) {
	prefix := bctx.Config.General.CommandPrefix
	msg, args, ok := event.IsCommand(prefix, ev, verb)
	if !ok {
		return event.NotHandled, nil
	}

	var reply string
	err := state.Mutate(bctx.Persistent, state.KeyVcNotifyFollowers, func(followers *[]string) error {
		following := slices.Contains(*followers, msg.Author.ID)
		switch sub := strings.ToLower(firstWord(args)); {
		case sub == "follow" && following:
			reply = "You are already subscribed to voice channel activity notifications"
		case sub == "follow":
			*followers = append(*followers, msg.Author.ID)
			reply = "You have successfully subscribed to voice channel activity notifications"
		case sub == "unfollow" && following:
			*followers = slices.DeleteFunc(*followers, func(id string) bool { return id == msg.Author.ID })
			reply = "You have successfully unsubscribed from voice channel activity notifications"
		case sub == "unfollow":
			reply = "You are not subscribed to voice channel activity notifications"
		default:
			reply = fmt.Sprintf("Invalid command. See `%shelp`", prefix)
		}
		return nil
	})
	if err != nil {
		return event.Handled, fmt.Errorf("update followers: %w", err)
	}
	return event.Handled, bctx.Platform.Reply(ctx, msg, reply)
}

// StartsSession reports whether moving from one voice channel to another
// makes the user newly available: joining voice outside the AFK channel, or
// leaving AFK for a regular channel. Moves between regular channels, leaving
// voice and mute toggles do not count. "" means "not in voice".
func StartsSession(from, to, afk string) bool {
	switch {
	case to == "" || to == afk:
		return false
	case from == "":
		return true
	default:
		return afk != "" && from == afk
	}
}

func (p *Plugin) handleVoice(ctx context.Context, bctx *bot.Context, ev event.VoiceStateUpdated) error {
	afk, err := bctx.Platform.AFKChannelID(ctx, ev.GuildID)
	if err != nil {
		return fmt.Errorf("afk channel of guild %s: %w", ev.GuildID, err)
	}
	if !StartsSession(ev.OldChannelID, ev.NewChannelID, afk) {
		return nil
	}

	count, err := bctx.Platform.VoiceUserCount(ctx, ev.GuildID)
	if err != nil {
		return fmt.Errorf("count voice users of guild %s: %w", ev.GuildID, err)
	}
	if count > 1 {
		return nil
	}

	followers, _, err := state.Get[[]string](bctx.Persistent, state.KeyVcNotifyFollowers)
	if err != nil {
		return err
	}

	now := time.Now
	if p.Now != nil {
		now = p.Now
	}
	var targets []string
	for _, id := range followers {
		if id == ev.UserID {
			continue
		}
		if bctx.Volatile.Throttle.ShouldNotify(id, now()) {
			targets = append(targets, id)
		}
	}
	if len(targets) == 0 {
		return nil
	}

	text := fmt.Sprintf("%s joined VC channel <#%s> in %s\n\nYou can opt out of these notifications by replying `%s%s unfollow`\n",
		bctx.Platform.DisplayName(ctx, ev.GuildID, ev.UserID),
		ev.NewChannelID,
		bctx.Platform.GuildName(ctx, ev.GuildID),
		bctx.Config.General.CommandPrefix, verb,
	)

	dmCtx, cancel := context.WithTimeout(ctx, dmDeadline)
	defer cancel()

	log.Printf("[INFO] Notifying %d follower(s) that %s started a voice session", len(targets), ev.UserID)
	return util.Parallel(dmCtx, targets, dmWorkers, func(ctx context.Context, id string) error {
		if err := bctx.Platform.DirectMessage(ctx, id, text); err != nil {
			return fmt.Errorf("dm %s: %w", id, err)
		}
		return nil
	})
}

func firstWord(s string) string {
	if f := strings.Fields(s); len(f) > 0 {
		return f[0]
	}
	return ""
}
