package scheduler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"reward_cycle_bot/internal/app"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// CycleStatusUpdater runs one evaluation pass over the stored cycles.
type CycleStatusUpdater interface {
	UpdateCycleStatuses(ctx context.Context) (app.TickReport, error)
}

// CycleScheduler triggers the reward cycle status pass on a cron schedule and on
// demand. At most one pass runs at a time.
type CycleScheduler struct {
	cronEngine *cron.Cron
	updater    CycleStatusUpdater
	logger     *logrus.Entry
	cronSpec   string
	timeout    time.Duration
	onPass     func(app.TickReport, error)

	running atomic.Bool
	passes  sync.WaitGroup
}

func NewCycleScheduler(
	updater CycleStatusUpdater,
	logger *logrus.Entry,
	cronSpec string, // e.g. "0 * * * *" (top of every hour, UTC)
	timeout time.Duration,
) *CycleScheduler {
	cronLogger := cronLogrus{entry: logger}
	return &CycleScheduler{
		cronEngine: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithLogger(cronLogger),
			cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
		),
		updater:  updater,
		logger:   logger,
		cronSpec: cronSpec,
		timeout:  timeout,
	}
}

// OnScheduledPass sets a callback invoked after every pass started by cron.
func (s *CycleScheduler) OnScheduledPass(fn func(app.TickReport, error)) {
	s.onPass = fn
}

// Start registers the cycle check job and starts the cron engine.
func (s *CycleScheduler) Start() error {
	s.logger.Info("Starting reward cycle scheduler...")

	_, err := s.cronEngine.AddFunc(s.cronSpec, func() {
		s.logger.Debug("Cron job triggered for reward cycle status check.")
		report, ran, err := s.RunNow(context.Background())
		if !ran {
			s.logger.Warn("Scheduled reward cycle status check skipped, a pass is still running")
			return
		}
		if err != nil {
			s.logger.WithError(err).Error("Scheduled reward cycle status check failed")
		}
		if s.onPass != nil {
			s.onPass(report, err)
		}
	})
	if err != nil {
		return fmt.Errorf("could not add reward cycle check job %q: %w", s.cronSpec, err)
	}

	s.cronEngine.Start()
	s.logger.WithField("cron_spec", s.cronSpec).Info("Reward cycle scheduler started.")
	return nil
}

// RunNow runs a pass immediately unless one is already in progress, in which case
// it returns ran == false without waiting.
func (s *CycleScheduler) RunNow(ctx context.Context) (report app.TickReport, ran bool, err error) {
	if !s.running.CompareAndSwap(false, true) {
		return app.TickReport{}, false, nil
	}
	s.passes.Add(1)
	defer func() {
		s.running.Store(false)
		s.passes.Done()
	}()

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	started := time.Now()
	report, err = s.updater.UpdateCycleStatuses(ctx)
	s.logger.WithField("duration", time.Since(started).String()).Debug("Reward cycle status pass done")
	return report, true, err
}

// Running reports whether a pass is in progress.
func (s *CycleScheduler) Running() bool {
	return s.running.Load()
}

// Stop stops the cron engine and waits for a running pass to finish.
func (s *CycleScheduler) Stop() {
	s.logger.Info("Stopping reward cycle scheduler...")
	ctx := s.cronEngine.Stop() // Stops the scheduler from adding new jobs, waits for running jobs.
	<-ctx.Done()
	s.passes.Wait()
	s.logger.Info("Reward cycle scheduler gracefully stopped.")
}

// cronLogrus routes cron's own logging to logrus.
type cronLogrus struct {
	entry *logrus.Entry
}

func (l cronLogrus) Info(msg string, keysAndValues ...interface{}) {
	l.entry.WithFields(toFields(keysAndValues)).Debug("cron: " + msg)
}

func (l cronLogrus) Error(err error, msg string, keysAndValues ...interface{}) {
	l.entry.WithError(err).WithFields(toFields(keysAndValues)).Error("cron: " + msg)
}

func toFields(keysAndValues []interface{}) logrus.Fields {
	fields := logrus.Fields{}
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		fields[fmt.Sprint(keysAndValues[i])] = keysAndValues[i+1]
	}
	return fields
}
