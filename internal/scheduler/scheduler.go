// Package scheduler runs the service's recurring jobs from an explicit cron table.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/kjstillabower/forecast-alert-service/internal/clock"
	"github.com/kjstillabower/forecast-alert-service/internal/observability"
)

var (
	// ErrUnknownJob is returned by RunNow for a name not in the table.
	ErrUnknownJob = errors.New("unknown job")
	// ErrJobPanic wraps a recovered handler panic.
	ErrJobPanic = errors.New("job panicked")
)

const defaultJobTimeout = 5 * time.Minute

// Handler is one job body. It must honour ctx.
type Handler func(ctx context.Context) error

// Job is one row of the cron table. A job may fire on several specs.
type Job struct {
	Name    string
	Specs   []string
	Handler Handler
	// Timeout bounds a single run. Zero means five minutes.
	Timeout time.Duration
}

type entry struct {
	job       Job
	schedules []cron.Schedule
}

// Scheduler evaluates every spec in one timezone.
type Scheduler struct {
	entries []*entry
	byName  map[string]*entry
	loc     *time.Location
	cron    *cron.Cron
	logger  *zap.Logger

	base   context.Context
	cancel context.CancelFunc
}

// New parses the table with the standard five-field parser. Duplicate names and
// bad specs are rejected.
func New(loc *time.Location, logger *zap.Logger, jobs ...Job) (*Scheduler, error) {
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	base, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		byName: make(map[string]*entry, len(jobs)),
		loc:    loc,
		cron:   cron.New(cron.WithLocation(loc)),
		logger: logger,
		base:   base,
		cancel: cancel,
	}

	for _, job := range jobs {
		if job.Name == "" || job.Handler == nil {
			cancel()
			return nil, fmt.Errorf("scheduler: job %q needs a name and a handler", job.Name)
		}
		if _, dup := s.byName[job.Name]; dup {
			cancel()
			return nil, fmt.Errorf("scheduler: duplicate job %q", job.Name)
		}
		if len(job.Specs) == 0 {
			cancel()
			return nil, fmt.Errorf("scheduler: job %q has no schedule", job.Name)
		}
		if job.Timeout <= 0 {
			job.Timeout = defaultJobTimeout
		}
		e := &entry{job: job}
		for _, spec := range job.Specs {
			sched, err := cron.ParseStandard(spec)
			if err != nil {
				cancel()
				return nil, fmt.Errorf("scheduler: job %q spec %q: %w", job.Name, spec, err)
			}
			e.schedules = append(e.schedules, sched)
			s.cron.Schedule(sched, cron.FuncJob(func() {
				_ = s.run(s.base, e)
			}))
		}
		s.entries = append(s.entries, e)
		s.byName[job.Name] = e
	}
	return s, nil
}

// Jobs returns the job names in table order.
func (s *Scheduler) Jobs() []string {
	names := make([]string, 0, len(s.entries))
	for _, e := range s.entries {
		names = append(names, e.job.Name)
	}
	return names
}

// Start drives the table from the wall clock. It does not block.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("scheduler started", zap.Strings("jobs", s.Jobs()), zap.String("timezone", s.loc.String()))
}

// Stop halts new firings, cancels running jobs and waits for them until ctx ends.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	s.cancel()
	select {
	case <-done.Done():
		s.logger.Info("scheduler stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("scheduler stop: %w", ctx.Err())
	}
}

// RunNow fires one job synchronously and returns its error.
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	e, ok := s.byName[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}
	return s.run(ctx, e)
}

// Advance moves clk forward to `to`, firing every job due in (clk.Now(), to] in
// chronological order with the clock set to each firing time. Jobs due at the same
// instant fire in table order. It returns the names fired.
func (s *Scheduler) Advance(ctx context.Context, clk *clock.Fake, to time.Time) []string {
	var fired []string
	cur := clk.Now()
	for ctx.Err() == nil {
		at, due := s.nextDue(cur)
		if len(due) == 0 || at.After(to) {
			break
		}
		clk.Set(at)
		for _, e := range due {
			_ = s.run(ctx, e)
			fired = append(fired, e.job.Name)
		}
		cur = at
	}
	if clk.Now().Before(to) {
		clk.Set(to)
	}
	return fired
}

// nextDue returns the earliest firing strictly after t and the entries due then.
func (s *Scheduler) nextDue(t time.Time) (time.Time, []*entry) {
	local := t.In(s.loc)
	var (
		earliest time.Time
		due      []*entry
	)
	for _, e := range s.entries {
		next := time.Time{}
		for _, sched := range e.schedules {
			n := sched.Next(local)
			if n.IsZero() {
				continue
			}
			if next.IsZero() || n.Before(next) {
				next = n
			}
		}
		switch {
		case next.IsZero():
		case earliest.IsZero() || next.Before(earliest):
			earliest, due = next, []*entry{e}
		case next.Equal(earliest):
			due = append(due, e)
		}
	}
	return earliest, due
}

// run executes one job with its timeout, recovering panics. Errors are logged and
// counted; they never stop the schedule.
func (s *Scheduler) run(ctx context.Context, e *entry) (err error) {
	name := e.job.Name
	runCtx, cancel := context.WithTimeout(ctx, e.job.Timeout)
	defer cancel()
	logger := s.logger.With(zap.String("job", name))
	start := time.Now()

	defer func() {
		result := "error"
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %s: %v", ErrJobPanic, name, r)
			result = "panic"
		}
		duration := time.Since(start)
		observability.SchedulerJobDurationSeconds.WithLabelValues(name).Observe(duration.Seconds())
		if err != nil {
			observability.SchedulerJobRunsTotal.WithLabelValues(name, result).Inc()
			logger.Error("job failed", zap.Duration("duration", duration), zap.Error(err))
			return
		}
		observability.SchedulerJobRunsTotal.WithLabelValues(name, "success").Inc()
		logger.Info("job completed", zap.Duration("duration", duration))
	}()

	logger.Debug("job started")
	return e.job.Handler(runCtx)
}
