package react

import (
	"context"
	"testing"

	"github.com/keshon/digmbot/internal/bot/bottest"
	"github.com/keshon/digmbot/internal/event"
)

func TestReact(t *testing.T) {
	tests := []struct {
		name    string
		author  string
		content string
		react   bool
	}{
		{"names the bot", "alice", "is digmbot awake?", true},
		{"case insensitive", "alice", "DIGMBOT!", true},
		{"unrelated", "alice", "good morning", false},
		{"own message", "bot", "I am Digmbot", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bctx, platform, _ := bottest.NewContext(t)
			out, err := Plugin{}.Handle(context.Background(), bctx, bottest.Message(tt.author, tt.content))
			if err != nil || out != event.NotHandled {
				t.Fatalf("Handle() = %v, %v", out, err)
			}
			reacts := platform.Of(bottest.KindReact)
			if got := len(reacts) == 1 && reacts[0].Text == Emoji; got != tt.react {
				t.Errorf("reacted = %v, want %v", got, tt.react)
			}
		})
	}
}
