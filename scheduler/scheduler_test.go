package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestScheduler_RunsJobImmediatelyThenOnInterval(t *testing.T) {
	var calls int32
	s := New(Job{
		Name:     "tick",
		Interval: 10 * time.Millisecond,
		Fn: func(ctx context.Context) error {
			atomic.AddInt32(&calls, 1)
			return nil
		},
	})

	s.Start(context.Background())
	time.Sleep(35 * time.Millisecond)
	s.Stop()

	require.GreaterOrEqual(t, atomic.LoadInt32(&calls), int32(2), "job should have fired immediately and at least once more on its interval")
}

func TestScheduler_StopDrainsAllJobsBeforeReturning(t *testing.T) {
	running := make(chan struct{})
	released := make(chan struct{})
	s := New(Job{
		Name:     "slow",
		Interval: time.Hour,
		Fn: func(ctx context.Context) error {
			close(running)
			<-released
			return nil
		},
	})

	s.Start(context.Background())
	<-running

	stopped := make(chan struct{})
	go func() {
		s.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
		t.Fatal("Stop returned before the in-flight job finished")
	case <-time.After(20 * time.Millisecond):
	}

	close(released)
	<-stopped
}

func TestScheduler_RunAtGatesToMatchingMinuteOnly(t *testing.T) {
	var calls int32
	notNow := time.Now().UTC().Add(12 * time.Hour).Format("15:04")
	s := New(Job{
		Name:     "daily",
		Interval: 5 * time.Millisecond,
		RunAt:    notNow,
		Fn: func(ctx context.Context) error {
			atomic.AddInt32(&calls, 1)
			return nil
		},
	})

	s.Start(context.Background())
	time.Sleep(25 * time.Millisecond)
	s.Stop()

	require.Equal(t, int32(0), atomic.LoadInt32(&calls), "RunAt job must not fire outside its configured wall-clock minute")
}

func TestScheduler_FailingJobIsLoggedNotFatal(t *testing.T) {
	var calls int32
	s := New(Job{
		Name:     "flaky",
		Interval: 10 * time.Millisecond,
		Fn: func(ctx context.Context) error {
			atomic.AddInt32(&calls, 1)
			return context.DeadlineExceeded
		},
	})

	s.Start(context.Background())
	time.Sleep(25 * time.Millisecond)
	s.Stop()

	require.GreaterOrEqual(t, atomic.LoadInt32(&calls), int32(2), "a job returning an error must keep running on its next interval")
}
