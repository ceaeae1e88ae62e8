// Package schedule runs a job on a cron expression until its context ends.
package schedule

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	apperrors "tello-renewal/internal/errors"
)

// Job is one scheduled invocation. ctx is cancelled on shutdown.
type Job func(ctx context.Context)

// Scheduler triggers a job on a standard five field cron expression.
// A trigger that fires while the previous run is still going is skipped.
type Scheduler struct {
	spec     string
	schedule cron.Schedule
	log      *zap.Logger
}

// New validates spec.
func New(spec string, log *zap.Logger) (*Scheduler, error) {
	sched, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, apperrors.Config("invalid cron expression "+spec, err)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Scheduler{spec: spec, schedule: sched, log: log}, nil
}

// Next returns the first trigger after t.
func (s *Scheduler) Next(t time.Time) time.Time {
	return s.schedule.Next(t)
}

// Run blocks until ctx is done, then waits for a running job to return.
func (s *Scheduler) Run(ctx context.Context, job Job) error {
	logger := cronLogger{s.log.Sugar()}
	c := cron.New(
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)
	c.Schedule(s.schedule, cron.FuncJob(func() {
		s.log.Info("Starting scheduled renewal")
		job(ctx)
	}))

	c.Start()
	s.log.Info("Scheduler started",
		zap.String("cron", s.spec),
		zap.Time("next_run", s.Next(time.Now())))

	<-ctx.Done()
	s.log.Info("Shutting down scheduler...")
	<-c.Stop().Done()
	s.log.Info("Scheduler stopped")
	return nil
}

// cronLogger sends cron's own logging to zap.
type cronLogger struct {
	s *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.s.Errorw(msg, append(keysAndValues, "error", err)...)
}
