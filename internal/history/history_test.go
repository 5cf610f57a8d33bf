package history

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type fakeFetcher struct {
	calls atomic.Int32
	msgs  []Message // newest first
	err   error
	delay time.Duration
}

func (f *fakeFetcher) FetchBefore(_ context.Context, _, _ string, limit int) ([]Message, error) {
	f.calls.Add(1)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.err != nil {
		return nil, f.err
	}
	if limit < len(f.msgs) {
		return f.msgs[:limit], nil
	}
	return f.msgs, nil
}

func msg(id, text string) Message {
	return Message{ID: id, AuthorID: "u", AuthorName: "user", Role: RoleUser, Text: text}
}

func ids(msgs []Message) string {
	parts := make([]string, len(msgs))
	for i, m := range msgs {
		parts[i] = m.ID
	}
	return strings.Join(parts, ",")
}

func TestRecordNeverExceedsCapacity(t *testing.T) {
	for _, capacity := range []int{1, 3, 10} {
		t.Run(fmt.Sprint(capacity), func(t *testing.T) {
			m := NewManager(nil, capacity, 0)
			for i := 0; i < 25; i++ {
				m.Record(context.Background(), "c", msg(fmt.Sprint(i), "x"))
				if n := m.Len("c"); n > capacity {
					t.Fatalf("after %d records Len() = %d > %d", i+1, n, capacity)
				}
			}
			got := m.Messages("c")
			if last := got[len(got)-1].ID; last != "24" {
				t.Errorf("newest message = %s, want 24", last)
			}
			if first := got[0].ID; first != fmt.Sprint(25-capacity) {
				t.Errorf("oldest message = %s, want %d", first, 25-capacity)
			}
		})
	}
}

func TestBackfillOnceChronological(t *testing.T) {
	f := &fakeFetcher{msgs: []Message{msg("3", "c"), msg("2", "b"), msg("1", "a")}}
	m := NewManager(f, 10, 50)

	m.Record(context.Background(), "c", msg("4", "d"))
	m.Record(context.Background(), "c", msg("5", "e"))
	m.EnsureBackfilled(context.Background(), "c", "")

	if n := f.calls.Load(); n != 1 {
		t.Errorf("fetcher called %d times, want 1", n)
	}
	if got := ids(m.Messages("c")); got != "1,2,3,4,5" {
		t.Errorf("history = %s, want 1,2,3,4,5", got)
	}
}

func TestBackfillConcurrentFirstSight(t *testing.T) {
	f := &fakeFetcher{msgs: []Message{msg("2", "b"), msg("1", "a")}, delay: 20 * time.Millisecond}
	m := NewManager(f, 100, 50)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			m.Record(context.Background(), "c", msg(fmt.Sprintf("live%d", i), "x"))
		}(i)
	}
	wg.Wait()

	if n := f.calls.Load(); n != 1 {
		t.Errorf("fetcher called %d times, want 1", n)
	}
	got := m.Messages("c")
	if len(got) != 12 {
		t.Fatalf("len = %d, want 12", len(got))
	}
	if got[0].ID != "1" || got[1].ID != "2" {
		t.Errorf("backfill not ahead of live messages: %s", ids(got))
	}
}

func TestBackfillCappedAtCapacity(t *testing.T) {
	f := &fakeFetcher{msgs: []Message{msg("4", ""), msg("3", ""), msg("2", ""), msg("1", "")}}
	m := NewManager(f, 3, 50)
	m.EnsureBackfilled(context.Background(), "c", "")

	if got := ids(m.Messages("c")); got != "2,3,4" {
		t.Errorf("history = %s, want 2,3,4", got)
	}
}

func TestBackfillFailureLeavesChannelEmpty(t *testing.T) {
	f := &fakeFetcher{err: errors.New("503")}
	m := NewManager(f, 10, 50)

	m.Record(context.Background(), "c", msg("9", "live"))
	m.Record(context.Background(), "c", msg("10", "live"))

	if n := f.calls.Load(); n != 1 {
		t.Errorf("failed backfill retried: %d calls", n)
	}
	if got := ids(m.Messages("c")); got != "9,10" {
		t.Errorf("history = %s", got)
	}
}

func TestRecordSkipsDuplicateID(t *testing.T) {
	m := NewManager(nil, 10, 0)
	m.Record(context.Background(), "c", msg("1", "a"))
	m.Record(context.Background(), "c", msg("1", "a"))
	if n := m.Len("c"); n != 1 {
		t.Errorf("Len() = %d, want 1", n)
	}
}

func TestWindow(t *testing.T) {
	byLen := func(s string) int { return len(s) }
	ten := strings.Repeat("x", 10)
	four := []Message{msg("1", ten), msg("2", ten), msg("3", ten), msg("4", ten)}

	tests := []struct {
		name   string
		msgs   []Message
		budget int
		want   string
	}{
		{"last two fit", four, 25, "3,4"},
		{"exact fit", four, 30, "2,3,4"},
		{"everything", four, 1000, "1,2,3,4"},
		{"only newest", four, 10, "4"},
		{"empty", nil, 10, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SelectWindow(tt.msgs, tt.budget, TextCost(byLen))
			if ids(got) != tt.want {
				t.Errorf("SelectWindow() = %s, want %s", ids(got), tt.want)
			}
		})
	}
}

func TestWindowTruncatesOversizedNewest(t *testing.T) {
	m := NewManager(nil, 10, 0)
	m.Record(context.Background(), "c", msg("1", "short"))
	m.Record(context.Background(), "c", msg("2", strings.Repeat("é", 100)))

	got := m.Window("c", 5)
	if len(got) != 1 || got[0].ID != "2" {
		t.Fatalf("Window() = %s, want only the newest message", ids(got))
	}
	if n := CharsPerToken(got[0].Text); n > 5 {
		t.Errorf("truncated text costs %d tokens, budget 5", n)
	}
	if want := strings.Repeat("é", 20); got[0].Text != want {
		t.Errorf("truncated text = %q, want %q", got[0].Text, want)
	}

	// stored history is untouched
	if all := m.Messages("c"); len([]rune(all[1].Text)) != 100 {
		t.Error("Window modified the stored message")
	}
}

func TestSelectWindowCountsFraming(t *testing.T) {
	// every message costs its text plus a fixed 10-unit header
	framed := func(m Message) int { return 10 + len(m.Text) }
	msgs := []Message{msg("1", "abcd"), msg("2", "abcd"), msg("3", "abcd")}

	tests := []struct {
		name     string
		budget   int
		want     string
		wantText string
	}{
		{"two with headers", 28, "2,3", "abcd"},
		{"one with header", 27, "3", "abcd"},
		{"newest cut to fit", 12, "3", "ab"},
		{"header alone over budget", 5, "3", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SelectWindow(msgs, tt.budget, framed)
			if ids(got) != tt.want {
				t.Fatalf("SelectWindow() = %s, want %s", ids(got), tt.want)
			}
			if last := got[len(got)-1]; last.Text != tt.wantText {
				t.Errorf("newest text = %q, want %q", last.Text, tt.wantText)
			}
		})
	}
}

func TestCharsPerTokenMonotonic(t *testing.T) {
	prev := 0
	for i := 0; i < 50; i++ {
		n := CharsPerToken(strings.Repeat("a", i))
		if n < prev {
			t.Fatalf("estimate dropped from %d to %d at length %d", prev, n, i)
		}
		prev = n
	}
	if CharsPerToken("abcde") != 2 {
		t.Errorf("CharsPerToken(abcde) = %d, want 2", CharsPerToken("abcde"))
	}
}

func TestChannels(t *testing.T) {
	m := NewManager(nil, 10, 0)
	m.Record(context.Background(), "b", msg("1", ""))
	m.Record(context.Background(), "a", msg("2", ""))
	if got := strings.Join(m.Channels(), ","); got != "a,b" {
		t.Errorf("Channels() = %s", got)
	}
}
