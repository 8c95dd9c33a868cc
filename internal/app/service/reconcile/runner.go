package reconcile

import (
	"context"
	"fmt"
	"time"

	cfgpkg "github.com/fatflowers/payflow/pkg/config"

	"github.com/robfig/cron/v3"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// registerJobs schedules the reconciliation tick and the recovery sweep on
// a shared cron runner tied to the fx lifecycle.
func registerJobs(lc fx.Lifecycle, sched *Scheduler, rec *Recovery, cfg *cfgpkg.Config, log *zap.SugaredLogger) error {
	c := cron.New(cron.WithSeconds())

	reconcileEvery := cfg.Reconcile.Interval
	if reconcileEvery <= 0 {
		reconcileEvery = time.Minute
	}
	recoverEvery := cfg.Recovery.Interval
	if recoverEvery <= 0 {
		recoverEvery = 5 * time.Minute
	}

	if _, err := c.AddFunc(fmt.Sprintf("@every %s", reconcileEvery), func() {
		sched.Tick(context.Background(), time.Now())
	}); err != nil {
		return fmt.Errorf("failed to schedule reconcile job: %w", err)
	}
	if _, err := c.AddFunc(fmt.Sprintf("@every %s", recoverEvery), func() {
		rec.Run(context.Background(), time.Now())
	}); err != nil {
		return fmt.Errorf("failed to schedule recovery job: %w", err)
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Infow("starting background jobs",
				"reconcile_interval", reconcileEvery.String(),
				"recovery_interval", recoverEvery.String())
			c.Start()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Infow("stopping background jobs")
			stopCtx := c.Stop()
			select {
			case <-stopCtx.Done():
			case <-ctx.Done():
			}
			return nil
		},
	})
	return nil
}

// Module exposes the scheduler and recovery job via Fx.
var Module = fx.Options(
	fx.Provide(NewScheduler),
	fx.Provide(NewRecovery),
	fx.Invoke(registerJobs),
)
