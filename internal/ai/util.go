package ai

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

var thinkBlock = regexp.MustCompile(`(?s)<think>.*?</think>`)

func looksLikeHTML(s string) bool {
	l := strings.ToLower(strings.TrimSpace(s))
	return strings.HasPrefix(l, "<!doctype html") || strings.Contains(l, "<html")
}

const maxLoggedBody = 200

// truncate shortens b to at most maxLoggedBody bytes without splitting a rune.
func truncate(b []byte) string {
	if len(b) <= maxLoggedBody {
		return string(b)
	}
	cut := maxLoggedBody
	for cut > 0 && !utf8.RuneStart(b[cut]) {
		cut--
	}
	return string(b[:cut]) + "..."
}

// cleanReply drops reasoning blocks and quotes wrapped around the whole reply.
func cleanReply(reply string) string {
	reply = thinkBlock.ReplaceAllString(reply, "")
	reply = strings.TrimSpace(reply)

	if len(reply) >= 2 {
		quotes := []struct{ open, close string }{
			{`"`, `"`}, {`'`, `'`}, {"“", "”"}, {"‘", "’"},
		}
		for _, q := range quotes {
			if len(reply) > len(q.open)+len(q.close) &&
				strings.HasPrefix(reply, q.open) && strings.HasSuffix(reply, q.close) {
				reply = strings.TrimSuffix(strings.TrimPrefix(reply, q.open), q.close)
				reply = strings.TrimSpace(reply)
				break
			}
		}
	}
	return reply
}
