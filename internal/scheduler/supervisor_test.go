package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestSupervisorRunsImmediateJobsOnce(t *testing.T) {
	var polls, flushes atomic.Int32
	s := NewSupervisor(testLogger())
	s.Every("poll", time.Hour, true, func(context.Context) { polls.Add(1) })
	s.Every("flush", time.Hour, false, func(context.Context) { flushes.Add(1) })

	ctx := context.Background()
	if err := s.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := s.Start(ctx); err != nil {
		t.Fatalf("second start: %v", err)
	}
	waitFor(t, func() bool { return polls.Load() == 1 })
	s.Stop()
	s.Stop()

	if got := polls.Load(); got != 1 {
		t.Errorf("polls = %d, want 1", got)
	}
	if got := flushes.Load(); got != 0 {
		t.Errorf("flushes = %d, want 0", got)
	}
}

func TestSupervisorRecoversPanics(t *testing.T) {
	var after atomic.Bool
	s := NewSupervisor(testLogger())
	s.Every("boom", time.Hour, true, func(context.Context) { panic("boom") })
	s.Every("ok", time.Hour, true, func(context.Context) { after.Store(true) })

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitFor(t, after.Load)
	s.Stop()
}

func TestSupervisorStopCancelsJobs(t *testing.T) {
	started := make(chan struct{})
	var cancelled atomic.Bool
	s := NewSupervisor(testLogger())
	s.Every("poll", time.Hour, true, func(ctx context.Context) {
		close(started)
		<-ctx.Done()
		cancelled.Store(true)
	})

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	<-started
	s.Stop()
	if !cancelled.Load() {
		t.Error("expected Stop to wait for the cancelled job")
	}
}

func TestSupervisorRejectsZeroInterval(t *testing.T) {
	s := NewSupervisor(testLogger())
	s.Every("poll", 0, false, func(context.Context) {})
	if err := s.Start(context.Background()); err == nil {
		t.Fatal("expected error for zero interval")
	}
}
