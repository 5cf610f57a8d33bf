// Package rivals tracks player ratings and starting handicaps for a
// platform-fighter style game.
//
// Ratings are in damage percent. The difference between two ratings is the
// damage the stronger player should start with for an even match, where every
// StockValue percent counts as one stock. Ratings further apart than MaxDelta
// cannot be updated. After a match ratings move like Elo, scaled so an even
// match moves each player by KFactor/2.
//
// A user may register several players. Only the player's owner or a bot owner
// may delete a player, and only the loser's owner or a bot owner may report.
package rivals

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/keshon/digmbot/internal/bot"
	"github.com/keshon/digmbot/internal/config"
	"github.com/keshon/digmbot/internal/event"
	"github.com/keshon/digmbot/internal/state"
)

const (
	StockValue = 150
	MaxDelta   = 300
	KFactor    = 10.0
)

const verb = "rivals"

type Plugin struct{}

func (Plugin) Name() string { return verb }

func (Plugin) Usage(cfg *config.Config) string {
	return fmt.Sprintf("%s%s <subcommand> -- manage rivals ratings\n"+
		"| Subcommands:\n"+
		"| create <initial_rating> [player_name] - create a player\n"+
		"| delete <player_name> - delete a player\n"+
		"| list - list all players\n"+
		"| preview <player1> <player2> - show ratings and starting handicap\n"+
		"| report <player1> beat <player2> - report a match result (you must own the loser)",
		cfg.General.CommandPrefix, verb)
}

func (Plugin) Handle(ctx context.Context, bctx *bot.Context, ev event.Event) (event.Outcome, error) {
	msg, argStr, ok := event.IsCommand(bctx.Config.General.CommandPrefix, ev, verb)
	if !ok {
		return event.NotHandled, nil
	}

	args := strings.Fields(argStr)
	if len(args) == 0 {
		return event.Handled, bctx.Platform.Reply(ctx, msg, "Please provide a subcommand. See help for usage.")
	}

	var err error
	switch strings.ToLower(args[0]) {
	case "create":
		err = create(ctx, bctx, msg, args[1:])
	case "delete":
		err = remove(ctx, bctx, msg, args[1:])
	case "list":
		err = list(ctx, bctx, msg)
	case "preview":
		err = preview(ctx, bctx, msg, args[1:])
	case "report":
		err = report(ctx, bctx, msg, args[1:])
	default:
		err = bctx.Platform.Reply(ctx, msg, "Unknown subcommand.")
	}
	return event.Handled, err
}

// roster is the stored view of all players.
type roster struct {
	ratings map[string]int
	owners  map[string]string
}

func loadRoster(bctx *bot.Context) (roster, error) {
	ratings, _, err := state.Get[map[string]int](bctx.Persistent, state.KeyRivalsRatings)
	if err != nil {
		return roster{}, err
	}
	owners, _, err := state.Get[map[string]string](bctx.Persistent, state.KeyRivalsOwners)
	if err != nil {
		return roster{}, err
	}
	return roster{ratings: ratings, owners: owners}, nil
}

// updateRoster runs fn on the roster and commits both maps together.
func updateRoster(bctx *bot.Context, fn func(r *roster) error) error {
	return bctx.Persistent.Update(func(tx *state.Tx) error {
		ratings, _, err := state.Load[map[string]int](tx, state.KeyRivalsRatings)
		if err != nil {
			return err
		}
		owners, _, err := state.Load[map[string]string](tx, state.KeyRivalsOwners)
		if err != nil {
			return err
		}
		r := roster{ratings: ratings, owners: owners}
		if r.ratings == nil {
			r.ratings = map[string]int{}
		}
		if r.owners == nil {
			r.owners = map[string]string{}
		}
		if err := fn(&r); err != nil {
			return err
		}
		state.Store(tx, state.KeyRivalsRatings, r.ratings)
		state.Store(tx, state.KeyRivalsOwners, r.owners)
		return nil
	})
}

// errRejected aborts an update whose precondition no longer holds; the
// message is the reply for the user.
type errRejected string

func (e errRejected) Error() string { return string(e) }

// errDenied aborts an update the author may not make.
var errDenied = errors.New("not allowed to manage player")

func replyOrFail(ctx context.Context, bctx *bot.Context, msg event.Message, err error, ok string) error {
	var rej errRejected
	switch {
	case errors.Is(err, errDenied):
		return bctx.Deny(ctx, msg)
	case errors.As(err, &rej):
		return bctx.Platform.Reply(ctx, msg, string(rej))
	case err != nil:
		return err
	default:
		return bctx.Platform.Reply(ctx, msg, ok)
	}
}

func create(ctx context.Context, bctx *bot.Context, msg event.Message, args []string) error {
	if len(args) == 0 {
		return bctx.Platform.Reply(ctx, msg, "Usage: create <initial_rating> [player_name]")
	}
	rating, err := strconv.ParseUint(args[0], 10, 31)
	if err != nil {
		return bctx.Platform.Reply(ctx, msg, "Invalid initial rating: must be an integer")
	}
	name := msg.Author.Label()
	if len(args) >= 2 {
		name = args[1]
	}

	err = updateRoster(bctx, func(r *roster) error {
		if _, exists := r.ratings[name]; exists {
			return errRejected(fmt.Sprintf("Player `%s` already exists.", name))
		}
		r.ratings[name] = int(rating)
		r.owners[name] = msg.Author.ID
		return nil
	})
	return replyOrFail(ctx, bctx, msg, err, fmt.Sprintf("Player `%s` created with initial rating %d%%.", name, rating))
}

// mayManage reports whether the author owns player or is a bot owner. It
// must see the roster inside the same update that acts on the answer.
func mayManage(bctx *bot.Context, r *roster, msg event.Message, player string) bool {
	if bctx.Config.IsOwner(msg.Author.ID) {
		return true
	}
	owner, ok := r.owners[player]
	return ok && owner == msg.Author.ID
}

func remove(ctx context.Context, bctx *bot.Context, msg event.Message, args []string) error {
	if len(args) == 0 {
		return bctx.Platform.Reply(ctx, msg, "Usage: delete <player_name>")
	}
	name := args[0]

	err := updateRoster(bctx, func(r *roster) error {
		if _, ok := r.ratings[name]; !ok {
			return errRejected(fmt.Sprintf("Player `%s` not found.", name))
		}
		if !mayManage(bctx, r, msg, name) {
			return errDenied
		}
		delete(r.ratings, name)
		delete(r.owners, name)
		return nil
	})
	return replyOrFail(ctx, bctx, msg, err, fmt.Sprintf("Player `%s` has been deleted.", name))
}

func list(ctx context.Context, bctx *bot.Context, msg event.Message) error {
	r, err := loadRoster(bctx)
	if err != nil {
		return err
	}
	if len(r.ratings) == 0 {
		return bctx.Platform.Reply(ctx, msg, "No players registered yet.")
	}

	names := make([]string, 0, len(r.ratings))
	for name := range r.ratings {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if r.ratings[names[i]] != r.ratings[names[j]] {
			return r.ratings[names[i]] > r.ratings[names[j]]
		}
		return names[i] < names[j]
	})

	var b strings.Builder
	b.WriteString("Registered players:\n")
	for _, name := range names {
		fmt.Fprintf(&b, "• `%s`: %d%% (owner: <@%s>)\n", name, r.ratings[name], r.owners[name])
	}
	return bctx.Platform.Reply(ctx, msg, b.String())
}

// Handicap describes the start the stronger of two ratings should give.
func Handicap(a, b int) (stocks, percent int) {
	diff := a - b
	if diff < 0 {
		diff = -diff
	}
	return diff / StockValue, diff % StockValue
}

func preview(ctx context.Context, bctx *bot.Context, msg event.Message, args []string) error {
	if len(args) < 2 {
		return bctx.Platform.Reply(ctx, msg, "Usage: preview <player1> <player2>")
	}
	p1, p2 := args[0], args[1]

	r, err := loadRoster(bctx)
	if err != nil {
		return err
	}
	r1, ok := r.ratings[p1]
	if !ok {
		return bctx.Platform.Reply(ctx, msg, fmt.Sprintf("Player `%s` not found.", p1))
	}
	r2, ok := r.ratings[p2]
	if !ok {
		return bctx.Platform.Reply(ctx, msg, fmt.Sprintf("Player `%s` not found.", p2))
	}
	if r1 == r2 {
		return bctx.Platform.Reply(ctx, msg, fmt.Sprintf("Both `%s` and `%s` have equal ratings (%d%%). No handicap.", p1, p2, r1))
	}

	stronger := p1
	if r2 > r1 {
		stronger = p2
	}
	stocks, percent := Handicap(r1, r2)
	return bctx.Platform.Reply(ctx, msg, fmt.Sprintf(
		"Player ratings:\n• `%s`: %d%%\n• `%s`: %d%%\nHandicap: `%s` should start with %d stock(s) and %d%% extra damage.",
		p1, r1, p2, r2, stronger, stocks, percent))
}

// Rate returns the ratings after winner beat loser.
func Rate(winner, loser int) (newWinner, newLoser int) {
	expected := 1 / (1 + math.Pow(10, float64(loser-winner)/200))
	change := KFactor * (1 - expected)
	newWinner = int(math.Round(float64(winner) + change))
	newLoser = max(0, int(math.Round(float64(loser)-change)))
	return newWinner, newLoser
}

func report(ctx context.Context, bctx *bot.Context, msg event.Message, args []string) error {
	if len(args) < 3 || !strings.EqualFold(args[1], "beat") {
		return bctx.Platform.Reply(ctx, msg, "Usage: report <player1> beat <player2>")
	}
	winner, loser := args[0], args[2]
	if winner == loser {
		return bctx.Platform.Reply(ctx, msg, "Winner and loser cannot be the same player.")
	}

	var reply string
	err := updateRoster(bctx, func(r *roster) error {
		for _, name := range []string{winner, loser} {
			if _, ok := r.ratings[name]; !ok {
				return errRejected(fmt.Sprintf("Player `%s` not found.", name))
			}
		}
		if !mayManage(bctx, r, msg, loser) {
			return errDenied
		}
		w, l := r.ratings[winner], r.ratings[loser]
		if diff := w - l; diff > MaxDelta || -diff > MaxDelta {
			return errRejected("Player ratings are too far apart to update.")
		}
		nw, nl := Rate(w, l)
		r.ratings[winner], r.ratings[loser] = nw, nl
		reply = fmt.Sprintf("Match reported:\n• Winner `%s`: %d%% → %d%%\n• Loser `%s`: %d%% → %d%%", winner, w, nw, loser, l, nl)
		return nil
	})
	return replyOrFail(ctx, bctx, msg, err, reply)
}
