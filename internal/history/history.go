// Package history keeps a bounded, in-memory message log per channel. A
// channel is backfilled from the platform the first time it is seen, so the
// log survives neither restarts nor the need to persist it.
package history

import (
	"context"
	"log"
	"slices"
	"sort"
	"sync"
	"time"
	"unicode/utf8"
)

type Role string

const (
	RoleUser Role = "user"
	RoleBot  Role = "bot"
)

type Message struct {
	ID         string
	AuthorID   string
	AuthorName string
	Role       Role
	Text       string
	Timestamp  time.Time
}

// Fetcher loads channel messages older than beforeID, newest first, the way
// the platform returns them. An empty beforeID means "latest".
type Fetcher interface {
	FetchBefore(ctx context.Context, channelID, beforeID string, limit int) ([]Message, error)
}

// Estimator approximates the token cost of a text. It must be monotonic in
// the text length.
type Estimator func(text string) int

// Cost prices a message as it will be sent to the model, framing included.
type Cost func(m Message) int

// TextCost prices a message by its text alone.
func TextCost(estimate Estimator) Cost {
	return func(m Message) int { return estimate(m.Text) }
}

// CharsPerToken is the default estimator: one token per four characters, rounded up.
func CharsPerToken(text string) int {
	return (utf8.RuneCountInString(text) + 3) / 4
}

type channel struct {
	backfill sync.Once

	mu   sync.Mutex
	msgs []Message
}

type Manager struct {
	mu       sync.Mutex
	channels map[string]*channel

	fetcher  Fetcher
	capacity int
	backfill int

	// Estimate is used by Window; defaults to CharsPerToken.
	Estimate Estimator
}

// NewManager returns a Manager keeping at most capacity messages per channel
// and backfilling up to backfill messages on first sight. fetcher may be nil,
// which disables backfill.
func NewManager(fetcher Fetcher, capacity, backfill int) *Manager {
	return &Manager{
		channels: make(map[string]*channel),
		fetcher:  fetcher,
		capacity: capacity,
		backfill: backfill,
		Estimate: CharsPerToken,
	}
}

func (m *Manager) channel(id string) *channel {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch, ok := m.channels[id]
	if !ok {
		ch = &channel{}
		m.channels[id] = ch
	}
	return ch
}

// EnsureBackfilled seeds the channel with messages older than beforeID. It
// runs at most once per channel for the Manager's lifetime; concurrent callers
// wait for the first one to finish. A failed fetch is logged and the channel
// starts empty.
func (m *Manager) EnsureBackfilled(ctx context.Context, channelID, beforeID string) {
	ch := m.channel(channelID)
	ch.backfill.Do(func() {
		if m.fetcher == nil || m.backfill == 0 {
			return
		}

		fetched, err := m.fetcher.FetchBefore(ctx, channelID, beforeID, m.backfill)
		if err != nil {
			log.Printf("[HIST] Backfill of channel %s failed: %v", channelID, err)
			return
		}

		backlog := make([]Message, 0, len(fetched))
		for i := len(fetched) - 1; i >= 0; i-- {
			backlog = append(backlog, fetched[i])
		}

		ch.mu.Lock()
		ch.msgs = m.trim(append(backlog, ch.msgs...))
		ch.mu.Unlock()

		log.Printf("[HIST] Backfilled %d messages for channel %s", len(backlog), channelID)
	})
}

// Record appends msg to the channel log, evicting the oldest messages beyond
// capacity. The channel is backfilled first if it has not been yet.
func (m *Manager) Record(ctx context.Context, channelID string, msg Message) {
	m.EnsureBackfilled(ctx, channelID, msg.ID)

	ch := m.channel(channelID)
	ch.mu.Lock()
	defer ch.mu.Unlock()

	if msg.ID != "" && slices.ContainsFunc(ch.msgs, func(old Message) bool { return old.ID == msg.ID }) {
		return
	}
	ch.msgs = m.trim(append(ch.msgs, msg))
}

func (m *Manager) trim(msgs []Message) []Message {
	if over := len(msgs) - m.capacity; over > 0 {
		return slices.Clone(msgs[over:])
	}
	return msgs
}

// Messages returns a copy of the channel log, oldest first.
func (m *Manager) Messages(channelID string) []Message {
	m.mu.Lock()
	ch, ok := m.channels[channelID]
	m.mu.Unlock()
	if !ok {
		return nil
	}
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return slices.Clone(ch.msgs)
}

func (m *Manager) Len(channelID string) int {
	m.mu.Lock()
	ch, ok := m.channels[channelID]
	m.mu.Unlock()
	if !ok {
		return 0
	}
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return len(ch.msgs)
}

// Channels lists the channels seen so far.
func (m *Manager) Channels() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.channels))
	for id := range m.channels {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Window returns the most recent messages whose estimated cost fits budget,
// oldest first. The newest message is always present; if it alone exceeds
// the budget its text is cut down to fit.
func (m *Manager) Window(channelID string, budget int) []Message {
	estimate := m.Estimate
	if estimate == nil {
		estimate = CharsPerToken
	}
	return SelectWindow(m.Messages(channelID), budget, TextCost(estimate))
}

// SelectWindow is Window over an explicit message slice, priced by cost.
func SelectWindow(msgs []Message, budget int, cost Cost) []Message {
	if len(msgs) == 0 {
		return nil
	}
	if budget < 1 {
		budget = 1
	}
	if cost == nil {
		cost = TextCost(CharsPerToken)
	}

	newest := msgs[len(msgs)-1]
	if cost(newest) > budget {
		newest.Text = truncateToBudget(newest, budget, cost)
		return []Message{newest}
	}

	total := 0
	start := len(msgs)
	for i := len(msgs) - 1; i >= 0; i-- {
		c := cost(msgs[i])
		if total+c > budget {
			break
		}
		total += c
		start = i
	}
	return slices.Clone(msgs[start:])
}

// truncateToBudget returns the longest rune prefix of m.Text for which m
// still fits budget. It returns "" when the framing alone is over budget.
func truncateToBudget(m Message, budget int, cost Cost) string {
	runes := []rune(m.Text)
	lo, hi := 0, len(runes)
	for lo < hi {
		mid := (lo + hi + 1) / 2
		m.Text = string(runes[:mid])
		if cost(m) <= budget {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	return string(runes[:lo])
}
