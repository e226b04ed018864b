// internal/scheduler/scheduler.go
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Job is a named unit of recurring work. Run receives a context that is
// cancelled when the scheduler stops.
type Job struct {
	Name     string
	Schedule string
	Run      func(ctx context.Context)
}

// Scheduler fires jobs on cron schedules. A job never overlaps with itself:
// a tick that arrives while the previous run is still going is skipped.
type Scheduler struct {
	mu      sync.Mutex
	cron    *cron.Cron
	ctx     context.Context
	cancel  context.CancelFunc
	running bool
	jobs    int
}

// cronParser accepts both standard 5-field cron expressions and 6-field
// expressions with an optional seconds field.
var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// Every returns the schedule for a fixed interval.
func Every(d time.Duration) string {
	return fmt.Sprintf("@every %s", d)
}

// Validate reports whether schedule parses.
func Validate(schedule string) error {
	_, err := cronParser.Parse(schedule)
	return err
}

// New creates an idle scheduler.
func New() *Scheduler {
	return &Scheduler{cron: newCron()}
}

func newCron() *cron.Cron {
	logger := slogLogger{}
	return cron.New(
		cron.WithParser(cronParser),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
		cron.WithLogger(logger),
	)
}

// Add registers a job. Jobs may be added before or after Start.
func (s *Scheduler) Add(job Job) error {
	if job.Run == nil {
		return fmt.Errorf("job %q has no run function", job.Name)
	}
	name, run := job.Name, job.Run

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.cron.AddFunc(job.Schedule, func() {
		ctx := s.jobContext()
		if ctx.Err() != nil {
			return
		}
		slog.Debug("cron firing job", "name", name)
		run(ctx)
	})
	if err != nil {
		return fmt.Errorf("invalid schedule %q for job %q: %w", job.Schedule, name, err)
	}
	s.jobs++
	slog.Info("scheduled job", "name", name, "schedule", job.Schedule)
	return nil
}

func (s *Scheduler) jobContext() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx == nil {
		return context.Background()
	}
	return s.ctx
}

// Len returns the number of registered jobs.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.jobs
}

// Start begins firing jobs. Calling Start on a running scheduler is a no-op.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.running = true
	s.cron.Start()
}

// Stop cancels in-flight jobs and waits for them to return. The scheduler
// keeps its jobs and can be started again.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cancel := s.cancel
	c := s.cron
	s.mu.Unlock()

	cancel()
	<-c.Stop().Done()
}

// slogLogger adapts cron's logger to the default slog logger.
type slogLogger struct{}

func (slogLogger) Info(msg string, keysAndValues ...any) {
	slog.Debug("cron: "+msg, keysAndValues...)
}

func (slogLogger) Error(err error, msg string, keysAndValues ...any) {
	slog.Error("cron: "+msg, append([]any{"error", err}, keysAndValues...)...)
}
