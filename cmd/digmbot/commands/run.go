package commands

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/keshon/digmbot/internal/ai"
	"github.com/keshon/digmbot/internal/bot"
	"github.com/keshon/digmbot/internal/config"
	"github.com/keshon/digmbot/internal/discord"
	"github.com/keshon/digmbot/internal/history"
	"github.com/keshon/digmbot/internal/plugin"
	"github.com/keshon/digmbot/internal/plugins/debug"
	"github.com/keshon/digmbot/internal/plugins/help"
	histplugin "github.com/keshon/digmbot/internal/plugins/history"
	"github.com/keshon/digmbot/internal/plugins/ignorebots"
	"github.com/keshon/digmbot/internal/plugins/llmreply"
	"github.com/keshon/digmbot/internal/plugins/model"
	"github.com/keshon/digmbot/internal/plugins/music"
	"github.com/keshon/digmbot/internal/plugins/react"
	"github.com/keshon/digmbot/internal/plugins/ready"
	"github.com/keshon/digmbot/internal/plugins/rivals"
	"github.com/keshon/digmbot/internal/plugins/vcnotify"
	"github.com/keshon/digmbot/internal/plugins/xkcd"
	"github.com/keshon/digmbot/internal/prompt"
	"github.com/keshon/digmbot/internal/state"
	"github.com/keshon/digmbot/pkg/jobmgr"
)

const (
	jobGateway     = "gateway"
	jobMaintenance = "maintenance"
)

var errNoToken = errors.New("no Discord token: set discord_token, DISCORD_TOKEN or run `digmbot state set-token`")

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Connect to Discord and serve events (default)",
		RunE:  runBot,
	}
}

// Plugins returns the plugin chain in dispatch order. The help plugin's
// Source must be set once the dispatcher exists.
func Plugins(h *help.Plugin) []plugin.Plugin {
	return []plugin.Plugin{
		debug.Plugin{},
		ready.Plugin{},
		histplugin.Plugin{},
		ignorebots.Plugin{},
		plugin.Apply(h, plugin.WithLogging()),
		plugin.Apply(xkcd.Plugin{}, plugin.WithLogging()),
		plugin.Apply(music.Plugin{}, plugin.WithLogging()),
		react.Plugin{},
		plugin.Apply(&vcnotify.Plugin{}, plugin.WithLogging()),
		plugin.Apply(rivals.Plugin{}, plugin.WithLogging()),
		plugin.Apply(model.Plugin{}, plugin.WithOwnerOnly(model.Verb), plugin.WithLogging()),
		plugin.Apply(llmreply.Plugin{}, plugin.WithLogging()),
	}
}

func runBot(cmd *cobra.Command, _ []string) error {
	log.Println("[INFO] Starting digmbot...")

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cfg.DiscordToken == "" {
		return errNoToken
	}

	store, err := state.OpenPersistent(cfg.StatePath)
	if err != nil {
		return fmt.Errorf("open state: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Println("[ERR] Failed to write final state snapshot:", err)
		}
	}()

	dc, err := discord.New(cfg.DiscordToken)
	if err != nil {
		return err
	}

	bctx := newContext(cfg, store, dc)
	h := &help.Plugin{}
	d := plugin.NewDispatcher(bctx, Plugins(h)...)
	h.Source = d

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	gatewayErr := make(chan error, 1)
	jobs := newJobs(ctx, gatewayErr)
	defer jobs.Shutdown()

	if err := jobs.Start(jobMaintenance, func(ctx context.Context) error {
		return state.RunMaintenance(ctx, cfg.Maintenance.Schedule, bctx.Volatile)
	}); err != nil {
		return err
	}
	if err := jobs.Start(jobGateway, func(ctx context.Context) error {
		return dc.Run(ctx, d, bctx.History)
	}); err != nil {
		return err
	}
	log.Printf("[INFO] %s", jobs.Status())

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	var runErr error
	select {
	case s := <-sig:
		log.Printf("[INFO] Received signal %s, shutting down...\n", s)
		cancel()
		runErr = <-gatewayErr
	case runErr = <-gatewayErr:
		cancel()
	}

	if runErr == nil {
		log.Println("[INFO] Discord bot exited cleanly")
	}
	return runErr
}

// newJobs returns the job manager for a bot run. When the gateway job ends,
// maintenance is stopped with it and the gateway's error goes to gatewayErr.
func newJobs(ctx context.Context, gatewayErr chan<- error) *jobmgr.Manager {
	var jobs *jobmgr.Manager
	jobs = jobmgr.NewManager(ctx, func(name string, err error) {
		if err != nil {
			log.Printf("[ERR] Job %s failed: %v", name, err)
		} else {
			log.Printf("[INFO] Job %s stopped", name)
		}
		if name != jobGateway {
			return
		}
		if err := jobs.Stop(jobMaintenance); err != nil {
			log.Printf("[DEBUG] %v", err)
		}
		gatewayErr <- err
	})
	return jobs
}

func newContext(cfg *config.Config, store *state.Persistent, p bot.Platform) *bot.Context {
	return &bot.Context{
		Config:     cfg,
		Persistent: store,
		Volatile:   state.NewVolatile(cfg.NotificationLimit()),
		History:    history.NewManager(p, cfg.History.ChannelMaxMessageCount, cfg.History.ChannelBackfillMessageCount),
		Platform:   p,
		LLM:        ai.NewClient(cfg.LLMTimeout(), cfg.LLMGeneral.RequestsPerSecond),
		Prompts:    prompt.NewAssembler(cfg, store),
	}
}
