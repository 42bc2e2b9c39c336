package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

type job struct {
	name      string
	every     time.Duration
	immediate bool
	run       func(ctx context.Context)
}

// Supervisor owns the periodic jobs. A job never overlaps with itself and
// a panicking job is logged and scheduled again on its next tick.
type Supervisor struct {
	log  *slog.Logger
	jobs []job

	mu     sync.Mutex
	cron   *cron.Cron
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewSupervisor creates a Supervisor with no jobs.
func NewSupervisor(log *slog.Logger) *Supervisor {
	return &Supervisor{log: log}
}

// Every registers run to be called every interval once started. With
// immediate set it also runs right away on Start.
func (s *Supervisor) Every(name string, interval time.Duration, immediate bool, run func(ctx context.Context)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs = append(s.jobs, job{name: name, every: interval, immediate: immediate, run: run})
}

// Start schedules every registered job. Calling Start on a running
// Supervisor does nothing.
func (s *Supervisor) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil {
		return nil
	}

	logger := cronLogger{log: s.log}
	c := cron.New(
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)
	ctx, cancel := context.WithCancel(ctx)

	var immediate []cron.Job
	for _, j := range s.jobs {
		if j.every <= 0 {
			cancel()
			return fmt.Errorf("schedule %s: interval must be positive", j.name)
		}
		id := c.Schedule(cron.Every(j.every), cron.FuncJob(func() {
			start := time.Now()
			j.run(ctx)
			s.log.Debug("job finished", "job", j.name, "took", time.Since(start))
		}))
		s.log.Info("job scheduled", "job", j.name, "every", j.every.String())
		if j.immediate {
			immediate = append(immediate, c.Entry(id).WrappedJob)
		}
	}

	c.Start()
	for _, wj := range immediate {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			wj.Run()
		}()
	}

	s.cron = c
	s.cancel = cancel
	return nil
}

// Stop cancels the running jobs and waits for them to return.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron == nil {
		return
	}
	s.cancel()
	<-s.cron.Stop().Done()
	s.wg.Wait()
	s.cron = nil
	s.cancel = nil
}

// cronLogger routes cron's logging to slog.
type cronLogger struct {
	log *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
