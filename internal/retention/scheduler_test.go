package retention

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/mohammad-safakhou/enroller/config"
)

func TestRetentionSchedulerCadences(t *testing.T) {
	zone := time.FixedZone("UTC-5", -5*3600)
	s, err := NewScheduler(zone, []Job{
		{Name: "sweep", Spec: config.DefaultPrimaryCron, Run: func(context.Context) {}},
		{Name: "health", Spec: config.DefaultHealthCron, Run: func(context.Context) {}},
	}, WithSchedulerLogger(quietLogger()))
	if err != nil {
		t.Fatalf("NewScheduler: %v", err)
	}

	// Tuesday 2026-03-10 01:30 in the scheduler zone.
	after := time.Date(2026, 3, 10, 6, 30, 0, 0, time.UTC)
	next, ok := s.Next("sweep", after)
	if !ok || !next.Equal(time.Date(2026, 3, 10, 2, 0, 0, 0, zone)) {
		t.Fatalf("next sweep = %s", next)
	}
	next, ok = s.Next("health", after)
	if !ok || !next.Equal(time.Date(2026, 3, 15, 3, 0, 0, 0, zone)) {
		t.Fatalf("next health check = %s", next)
	}
	if _, ok := s.Next("missing", after); ok {
		t.Fatal("unknown job should not have a next run")
	}
}

func TestNewSchedulerRejectsBadCron(t *testing.T) {
	if _, err := NewScheduler(time.UTC, []Job{{Name: "sweep", Spec: "not a cron", Run: func(context.Context) {}}}); err == nil {
		t.Fatal("expected parse error")
	}
	if _, err := NewScheduler(time.UTC, []Job{{Name: "sweep", Spec: "0 2 * * *"}}); err == nil {
		t.Fatal("expected error for a job without a run function")
	}
}

func TestNewRetentionSchedulerRejectsBadZone(t *testing.T) {
	sw := NewSweeper(DefaultPolicy(), nil, WithSweepLogger(quietLogger()))
	if _, err := NewRetentionScheduler(config.SchedulerConfig{TimeZone: "Mars/Olympus"}, sw); err == nil {
		t.Fatal("expected time zone error")
	}
}

func TestSchedulerLockSkipsConcurrentRun(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	var runs int32
	s, err := NewScheduler(time.UTC, []Job{{Name: "sweep", Spec: "0 2 * * *", Run: func(context.Context) {
		atomic.AddInt32(&runs, 1)
	}}}, WithRedisLock(rdb, time.Minute), WithSchedulerLogger(quietLogger()))
	if err != nil {
		t.Fatalf("NewScheduler: %v", err)
	}

	if err := mr.Set(lockPrefix+"sweep", "held"); err != nil {
		t.Fatalf("seed lock: %v", err)
	}
	if err := s.RunNow(context.Background(), "sweep"); err != nil {
		t.Fatalf("RunNow: %v", err)
	}
	if atomic.LoadInt32(&runs) != 0 {
		t.Fatal("job ran while another replica held the lock")
	}

	mr.Del(lockPrefix + "sweep")
	if err := s.RunNow(context.Background(), "sweep"); err != nil {
		t.Fatalf("RunNow: %v", err)
	}
	if atomic.LoadInt32(&runs) != 1 {
		t.Fatalf("expected one run, got %d", runs)
	}
	if mr.Exists(lockPrefix + "sweep") {
		t.Fatal("lock should be released after the run")
	}
	if err := s.RunNow(context.Background(), "missing"); err == nil {
		t.Fatal("expected error for unknown job")
	}
}

func TestSchedulerRecoversFromPanic(t *testing.T) {
	s, err := NewScheduler(time.UTC, []Job{{Name: "sweep", Spec: "0 2 * * *", Run: func(context.Context) {
		panic("sweep exploded")
	}}}, WithSchedulerLogger(quietLogger()))
	if err != nil {
		t.Fatalf("NewScheduler: %v", err)
	}
	if err := s.RunNow(context.Background(), "sweep"); err != nil {
		t.Fatalf("RunNow: %v", err)
	}
}

func TestSchedulerStartStop(t *testing.T) {
	s, err := NewScheduler(time.UTC, []Job{{Name: "sweep", Spec: "0 2 * * *", Run: func(context.Context) {}}}, WithSchedulerLogger(quietLogger()))
	if err != nil {
		t.Fatalf("NewScheduler: %v", err)
	}
	s.Start(context.Background())
	done := make(chan struct{})
	go func() {
		s.Stop()
		s.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return")
	}
}
