package ready

import (
	"context"
	"testing"

	"github.com/keshon/digmbot/internal/bot/bottest"
	"github.com/keshon/digmbot/internal/event"
)

func TestHandlesOnlyReady(t *testing.T) {
	bctx, platform, _ := bottest.NewContext(t)

	tests := []struct {
		ev   event.Event
		want event.Outcome
	}{
		{event.Ready{BotUser: event.User{Name: "digmbot"}, GuildCount: 3}, event.Handled},
		{bottest.Message("alice", "hello"), event.NotHandled},
		{event.ReactionAdded{Reaction: event.Reaction{UserID: "u", MessageID: "m", Emoji: "👍"}}, event.NotHandled},
		{event.VoiceStateUpdated{UserID: "u", NewChannelID: "v"}, event.NotHandled},
	}
	for _, tt := range tests {
		out, err := Plugin{}.Handle(context.Background(), bctx, tt.ev)
		if err != nil || out != tt.want {
			t.Errorf("Handle(%T) = %v, %v, want %v", tt.ev, out, err, tt.want)
		}
	}
	if out := platform.Outgoing(); len(out) != 0 {
		t.Errorf("unexpected output %v", out)
	}
}
