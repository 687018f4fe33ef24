// Package scheduler runs the service's housekeeping jobs (credential refresh,
// status event pruning) on cron schedules.
package scheduler

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/rendis/actiondesk/pkg/schema"
)

const DefaultTick = 30 * time.Second

type Job struct {
	Name string
	Cron string
	// Timeout bounds one run. Zero means the run ends with the scheduler.
	Timeout time.Duration
	Run     func(ctx context.Context) error
}

// JobStatus is what Jobs reports for one job.
type JobStatus struct {
	Name          string     `json:"name"`
	Cron          string     `json:"cron"`
	LastRunAt     *time.Time `json:"last_run_at,omitempty"`
	NextRunAt     time.Time  `json:"next_run_at"`
	LastRunStatus string     `json:"last_run_status,omitempty"`
	LastError     string     `json:"last_error,omitempty"`
}

type entry struct {
	job      Job
	schedule cron.Schedule
	running  bool
	status   JobStatus
}

type Scheduler struct {
	parser cron.Parser
	logger *slog.Logger
	tick   time.Duration
	now    func() time.Time

	mu     sync.Mutex
	jobs   map[string]*entry
	cancel context.CancelFunc
	done   chan struct{}
}

type Option func(*Scheduler)

func WithTick(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.tick = d
		}
	}
}

// WithClock overrides the clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

func NewScheduler(logger *slog.Logger, opts ...Option) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Scheduler{
		parser: cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		logger: logger.With(slog.String("component", "scheduler")),
		tick:   DefaultTick,
		now:    time.Now,
		jobs:   make(map[string]*entry),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Add registers a job. Its first run is the next cron slot after now.
func (s *Scheduler) Add(job Job) error {
	if job.Name == "" || job.Run == nil {
		return schema.NewError(schema.ErrCodeValidation, "job needs a name and a run func")
	}
	schedule, err := s.parser.Parse(job.Cron)
	if err != nil {
		return schema.NewErrorf(schema.ErrCodeValidation, "job %q: bad cron %q", job.Name, job.Cron).WithCause(err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[job.Name]; ok {
		return schema.NewErrorf(schema.ErrCodeConflict, "job %q already registered", job.Name)
	}
	s.jobs[job.Name] = &entry{
		job:      job,
		schedule: schedule,
		status: JobStatus{
			Name:      job.Name,
			Cron:      job.Cron,
			NextRunAt: schedule.Next(s.now().UTC()),
		},
	}
	return nil
}

func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.done != nil {
		s.mu.Unlock()
		return schema.NewError(schema.ErrCodeConflict, "scheduler already started")
	}
	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	n := len(s.jobs)
	s.mu.Unlock()

	go s.loop(loopCtx, s.done)
	s.logger.Info("scheduler started", slog.Int("jobs", n), slog.Duration("tick", s.tick))
	return nil
}

func (s *Scheduler) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runDue(ctx)
		}
	}
}

// runDue runs, one after another, every idle job whose slot has passed.
func (s *Scheduler) runDue(ctx context.Context) {
	now := s.now().UTC()

	s.mu.Lock()
	var due []*entry
	for _, e := range s.jobs {
		if !e.running && !e.status.NextRunAt.After(now) {
			e.running = true
			due = append(due, e)
		}
	}
	s.mu.Unlock()

	sort.Slice(due, func(i, j int) bool { return due[i].job.Name < due[j].job.Name })
	for _, e := range due {
		_ = s.run(ctx, e, now)
	}
}

// RunNow runs the named job immediately, outside its schedule. It fails
// with CONFLICT while the job is already running.
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	s.mu.Lock()
	e, ok := s.jobs[name]
	switch {
	case !ok:
		s.mu.Unlock()
		return schema.NewErrorf(schema.ErrCodeNotFound, "job %q not registered", name)
	case e.running:
		s.mu.Unlock()
		return schema.NewErrorf(schema.ErrCodeConflict, "job %q already running", name)
	}
	e.running = true
	s.mu.Unlock()
	return s.run(ctx, e, s.now().UTC())
}

// run executes a job already marked running and records the result.
func (s *Scheduler) run(ctx context.Context, e *entry, now time.Time) error {
	log := s.logger.With(slog.String("job", e.job.Name))
	log.Debug("job started")

	err := s.invoke(ctx, e.job)
	if err != nil {
		log.Error("job failed", slog.String("error", err.Error()))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	ran := now
	e.running = false
	e.status.LastRunAt = &ran
	e.status.NextRunAt = e.schedule.Next(now)
	e.status.LastRunStatus = "success"
	e.status.LastError = ""
	if err != nil {
		e.status.LastRunStatus = "error"
		e.status.LastError = err.Error()
	}
	return err
}

func (s *Scheduler) invoke(ctx context.Context, job Job) (err error) {
	if job.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, job.Timeout)
		defer cancel()
	}
	defer func() {
		if r := recover(); r != nil {
			err = schema.NewErrorf(schema.ErrCodeInternal, "job %q panicked: %v", job.Name, r)
		}
	}()
	return job.Run(ctx)
}

// Jobs returns every job's status, sorted by name.
func (s *Scheduler) Jobs() []JobStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]JobStatus, 0, len(s.jobs))
	for _, e := range s.jobs {
		out = append(out, e.status)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Stop cancels the loop and waits for a run in progress to return. It is
// safe to call more than once.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	<-done
	s.logger.Info("scheduler stopped")
	return nil
}
