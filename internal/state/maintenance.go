package state

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"
)

// RunMaintenance prunes expired throttle entries on the given cron schedule
// (e.g. "@every 1m") until ctx is done.
func RunMaintenance(ctx context.Context, schedule string, v *Volatile) error {
	c := cron.New(cron.WithParser(cron.NewParser(
		cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
	)))

	if _, err := c.AddFunc(schedule, func() {
		if n := v.Throttle.Prune(time.Now()); n > 0 {
			log.Printf("[DEBUG] Pruned %d expired notification timestamps", n)
		}
	}); err != nil {
		return fmt.Errorf("invalid maintenance schedule %q: %w", schedule, err)
	}

	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}
