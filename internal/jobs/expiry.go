// Package jobs holds the optional background jobs cmd/app can schedule.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/Metro-Ticketing-System/MTS-BackEnd/internal/logger"
	"github.com/go-co-op/gocron/v2"
)

type Sweeper interface {
	SweepExpired(ctx context.Context) (int, error)
}

// StartExpirySweep runs sweeper every interval until the returned scheduler is
// shut down. Overlapping runs are skipped.
func StartExpirySweep(ctx context.Context, sweeper Sweeper, interval time.Duration) (gocron.Scheduler, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("expiry sweep interval must be positive, got %s", interval)
	}

	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}

	_, err = sched.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			n, err := sweeper.SweepExpired(ctx)
			if err != nil {
				logger.Error("expiry sweep failed", "error", err)
				return
			}
			logger.Debug("expiry sweep finished", "expired", n)
		}),
		gocron.WithName("ticket-expiry-sweep"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		_ = sched.Shutdown()
		return nil, fmt.Errorf("schedule expiry sweep: %w", err)
	}

	sched.Start()
	logger.Info("expiry sweep scheduled", "interval", interval.String())
	return sched, nil
}
