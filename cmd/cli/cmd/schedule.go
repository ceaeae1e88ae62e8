package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"tello-renewal/api"
	"tello-renewal/core/schedule"
	"tello-renewal/internal/config"
	"tello-renewal/internal/logging"
)

const shutdownTimeout = 5 * time.Second

// scheduleCmd runs the renewal on a cron schedule
var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Run renewals on a cron schedule and serve status endpoints",
	Long: `Run as a daemon. A renewal is attempted on every trigger of schedule.cron;
each attempt logs in again with a fresh browser and mail session.

GET /health, GET /status and GET /metrics are served on schedule.addr.`,
	Args: cobra.NoArgs,
	RunE: runSchedule,
}

func runSchedule(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	cfg := config.Get()
	log := logging.Named("schedule")

	sched, err := schedule.New(cfg.Schedule.Cron, log)
	if err != nil {
		return err
	}

	srv := api.NewServer(cfg.Schedule.Addr, Version, sched.Next, logging.Named("api"))
	srvErr := make(chan error, 1)
	go func() {
		err := srv.Start()
		if err != nil {
			log.Error("Status server stopped", zap.Error(err))
			cancel()
		}
		srvErr <- err
	}()

	renewLog := logging.Named("renewal").With(zap.String("trigger", "cron"))
	_ = sched.Run(ctx, func(jobCtx context.Context) {
		res, err := renewOnce(logging.ContextWithLogger(jobCtx, renewLog), cfg, dryRun)
		srv.Record(res)
		if err != nil {
			log.Error("Scheduled renewal failed", zap.String("run_id", res.RunID), zap.Error(err))
			return
		}
		log.Info("Scheduled renewal finished", zap.String("run_id", res.RunID), zap.String("outcome", string(res.Outcome)))
	})

	shutdownCtx, stop := context.WithTimeout(context.Background(), shutdownTimeout)
	defer stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("Status server shutdown", zap.Error(err))
	}
	if err := <-srvErr; err != nil {
		return fmt.Errorf("status server: %w", err)
	}
	return nil
}
