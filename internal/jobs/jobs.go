// Package jobs registers named jobs contributed by app modules and runs them
// on demand by trigger name ("onAppStart") or on a cron schedule
// ("cron:@every 1h").
package jobs

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// CronPrefix marks triggers that are scheduled rather than run on demand.
const CronPrefix = "cron:"

// TriggerAppStart runs once the application has finished starting.
const TriggerAppStart = "onAppStart"

var (
	// ErrInvalidJob indicates a job without a name, trigger, or run function.
	ErrInvalidJob = errors.New("job requires a name, a trigger and a run function")
	// ErrDuplicateJob indicates a job name registered twice.
	ErrDuplicateJob = errors.New("job already registered")
)

// Job is a unit of work bound to a trigger.
type Job struct {
	Trigger string
	Run     func(ctx context.Context) error
}

// Observer is notified after each job run.
type Observer func(name string, err error, elapsed time.Duration)

// Option configures a Runner.
type Option func(*Runner)

// WithObserver installs a run observer, e.g. a metrics recorder.
func WithObserver(obs Observer) Option {
	return func(r *Runner) {
		r.observer = obs
	}
}

// Runner holds registered jobs.
type Runner struct {
	logger   *zap.Logger
	observer Observer

	mu   sync.RWMutex
	jobs map[string]Job

	cron   *cron.Cron
	cancel context.CancelFunc
}

// NewRunner constructs an empty Runner.
func NewRunner(logger *zap.Logger, opts ...Option) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Runner{
		logger: logger,
		jobs:   make(map[string]Job),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds a job under name.
func (r *Runner) Register(name string, job Job) error {
	if strings.TrimSpace(name) == "" || strings.TrimSpace(job.Trigger) == "" || job.Run == nil {
		return ErrInvalidJob
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.jobs[name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateJob, name)
	}
	r.jobs[name] = job
	return nil
}

// Names returns the registered job names in sorted order.
func (r *Runner) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.jobs))
	for name := range r.jobs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RunJobs runs every job registered for trigger, in name order. The first
// failure stops the run and is returned. It reports false when no jobs are
// registered at all.
func (r *Runner) RunJobs(ctx context.Context, trigger string) (bool, error) {
	r.logger.Info("running jobs", zap.String("trigger", trigger))

	names := r.Names()
	if len(names) == 0 {
		r.logger.Info("no jobs defined")
		return false, nil
	}

	for _, name := range names {
		r.mu.RLock()
		job := r.jobs[name]
		r.mu.RUnlock()

		if job.Trigger != trigger {
			continue
		}
		if err := r.run(ctx, name, job); err != nil {
			return false, err
		}
	}

	r.logger.Info("completed running jobs", zap.String("trigger", trigger))
	return true, nil
}

func (r *Runner) run(ctx context.Context, name string, job Job) error {
	r.logger.Info("running job", zap.String("job", name))
	start := time.Now()
	err := job.Run(ctx)
	elapsed := time.Since(start)

	if r.observer != nil {
		r.observer(name, err, elapsed)
	}
	if err != nil {
		r.logger.Error("job failed", zap.String("job", name), zap.Error(err))
		return fmt.Errorf("run job %s: %w", name, err)
	}
	r.logger.Info("job completed", zap.String("job", name), zap.Duration("duration", elapsed))
	return nil
}

// Start schedules every job whose trigger starts with "cron:".
func (r *Runner) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cron != nil {
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := cron.New(cron.WithLogger(cronLogger{r.logger.Sugar()}))
	scheduled := 0
	for name, job := range r.jobs {
		spec, ok := strings.CutPrefix(job.Trigger, CronPrefix)
		if !ok {
			continue
		}
		if _, err := c.AddFunc(strings.TrimSpace(spec), func() {
			_ = r.run(ctx, name, job)
		}); err != nil {
			cancel()
			return fmt.Errorf("schedule job %s: %w", name, err)
		}
		scheduled++
	}

	c.Start()
	r.cron = c
	r.cancel = cancel
	r.logger.Info("job scheduler started", zap.Int("scheduled", scheduled))
	return nil
}

// Stop halts the scheduler and cancels the context of running cron jobs. It
// waits for them to return until ctx ends.
func (r *Runner) Stop(ctx context.Context) {
	r.mu.Lock()
	c, cancel := r.cron, r.cancel
	r.cron, r.cancel = nil, nil
	r.mu.Unlock()

	if c == nil {
		return
	}
	done := c.Stop().Done()
	cancel()
	select {
	case <-done:
	case <-ctx.Done():
	}
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	s *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.s.Errorw(msg, append(keysAndValues, "error", err)...)
}
