// Package event defines the canonical events the gateway adapter produces
// and plugins consume.
package event

import (
	"strings"
	"time"
	"unicode"
)

// Event is one of Ready, MessageReceived, ReactionAdded, ReactionRemoved or
// VoiceStateUpdated. The set is closed.
type Event interface {
	isEvent()
}

// Outcome tells the dispatcher whether a plugin claimed the event exclusively.
type Outcome bool

const (
	NotHandled Outcome = false
	Handled    Outcome = true
)

type User struct {
	ID          string
	Name        string
	DisplayName string
	Bot         bool
}

// Label is the name a human would use for the user.
func (u User) Label() string {
	if u.DisplayName != "" {
		return u.DisplayName
	}
	return u.Name
}

type Message struct {
	ID        string
	ChannelID string
	GuildID   string
	Author    User
	Content   string // mentions already rendered as names
	Timestamp time.Time

	// Addressed is set when the message mentions the bot, replies to one of
	// its messages or mentions a role the bot holds.
	Addressed bool
	ReplyToID string
}

type Reaction struct {
	GuildID   string
	ChannelID string
	MessageID string
	UserID    string
	Emoji     string
}

type Ready struct {
	BotUser    User
	GuildCount int
}

type MessageReceived struct {
	Message
}

type ReactionAdded struct {
	Reaction
}

type ReactionRemoved struct {
	Reaction
}

// VoiceStateUpdated reports a user's move between voice channels. An empty
// channel ID means "not in voice".
type VoiceStateUpdated struct {
	GuildID      string
	UserID       string
	OldChannelID string
	NewChannelID string
}

func (Ready) isEvent()             {}
func (MessageReceived) isEvent()   {}
func (ReactionAdded) isEvent()     {}
func (ReactionRemoved) isEvent()   {}
func (VoiceStateUpdated) isEvent() {}

// Name is a short tag for logs.
func Name(ev Event) string {
	switch ev.(type) {
	case Ready:
		return "ready"
	case MessageReceived:
		return "message"
	case ReactionAdded:
		return "reaction_add"
	case ReactionRemoved:
		return "reaction_remove"
	case VoiceStateUpdated:
		return "voice_state"
	default:
		return "unknown"
	}
}

// Command splits content of the form "<prefix><verb> <args>" into a
// lower-cased verb and the trimmed argument string.
func Command(prefix, content string) (verb, args string, ok bool) {
	content = strings.TrimSpace(content)
	if prefix == "" || !strings.HasPrefix(content, prefix) {
		return "", "", false
	}
	rest := content[len(prefix):]
	if i := strings.IndexFunc(rest, unicode.IsSpace); i >= 0 {
		verb, args = rest[:i], rest[i:]
	} else {
		verb = rest
	}
	if verb == "" {
		return "", "", false
	}
	return strings.ToLower(verb), strings.TrimSpace(args), true
}

// IsCommand reports whether msg invokes verb under prefix, returning the arguments.
func IsCommand(prefix string, ev Event, verb string) (Message, string, bool) {
	mr, ok := ev.(MessageReceived)
	if !ok {
		return Message{}, "", false
	}
	v, args, ok := Command(prefix, mr.Content)
	if !ok || v != verb {
		return Message{}, "", false
	}
	return mr.Message, args, true
}
