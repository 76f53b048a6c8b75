package retention

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/gorhill/cronexpr"
	"github.com/redis/go-redis/v9"

	"github.com/mohammad-safakhou/enroller/config"
)

const lockPrefix = "sched:lock:retention:"

// Job is one cron-driven task.
type Job struct {
	Name string
	Spec string
	Run  func(ctx context.Context)
	expr *cronexpr.Expression
}

// Scheduler fires the retention jobs on their cron cadences in a fixed time
// zone. When a redis client is set, each firing takes a short-lived lock so a
// fleet of replicas runs a job once.
type Scheduler struct {
	jobs    []Job
	loc     *time.Location
	rdb     *redis.Client
	lockTTL time.Duration
	logger  *log.Logger
	now     func() time.Time

	stop chan struct{}
	wg   sync.WaitGroup
	once sync.Once
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithRedisLock enables the distributed lock.
func WithRedisLock(rdb *redis.Client, ttl time.Duration) SchedulerOption {
	return func(s *Scheduler) {
		s.rdb = rdb
		if ttl > 0 {
			s.lockTTL = ttl
		}
	}
}

func WithSchedulerLogger(l *log.Logger) SchedulerOption {
	return func(s *Scheduler) { s.logger = l }
}

func WithSchedulerClock(now func() time.Time) SchedulerOption {
	return func(s *Scheduler) { s.now = now }
}

// NewScheduler validates every job's cron expression up front.
func NewScheduler(loc *time.Location, jobs []Job, opts ...SchedulerOption) (*Scheduler, error) {
	if loc == nil {
		loc = time.UTC
	}
	s := &Scheduler{
		loc:     loc,
		lockTTL: 10 * time.Minute,
		logger:  log.New(log.Writer(), "[SCHED] ", log.LstdFlags),
		now:     time.Now,
		stop:    make(chan struct{}),
	}
	for _, j := range jobs {
		expr, err := cronexpr.Parse(strings.TrimSpace(j.Spec))
		if err != nil {
			return nil, fmt.Errorf("job %s: parse cron %q: %w", j.Name, j.Spec, err)
		}
		if j.Run == nil {
			return nil, fmt.Errorf("job %s: no run function", j.Name)
		}
		j.expr = expr
		s.jobs = append(s.jobs, j)
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// NewRetentionScheduler wires the sweep and health-check jobs from config.
func NewRetentionScheduler(cfg config.SchedulerConfig, sw *Sweeper, opts ...SchedulerOption) (*Scheduler, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	primary := cfg.PrimaryCron
	if strings.TrimSpace(primary) == "" {
		primary = config.DefaultPrimaryCron
	}
	health := cfg.HealthCron
	if strings.TrimSpace(health) == "" {
		health = config.DefaultHealthCron
	}
	jobs := []Job{
		{Name: "sweep", Spec: primary, Run: func(ctx context.Context) { sw.RunCycle(ctx) }},
		{Name: "health", Spec: health, Run: func(ctx context.Context) {
			if _, err := sw.HealthCheck(ctx); err != nil {
				sw.logger.Printf("health check failed: %v", err)
			}
		}},
	}
	return NewScheduler(loc, jobs, opts...)
}

// Next returns the next firing of the named job after t, in the scheduler's
// time zone.
func (s *Scheduler) Next(name string, after time.Time) (time.Time, bool) {
	for _, j := range s.jobs {
		if j.Name == name {
			next := j.expr.Next(after.In(s.loc))
			return next, !next.IsZero()
		}
	}
	return time.Time{}, false
}

// Start launches one goroutine per job. It returns immediately.
func (s *Scheduler) Start(ctx context.Context) {
	for _, j := range s.jobs {
		s.wg.Add(1)
		go s.loop(ctx, j)
	}
}

// Stop halts all jobs and waits for in-flight runs to return.
func (s *Scheduler) Stop() {
	s.once.Do(func() { close(s.stop) })
	s.wg.Wait()
}

func (s *Scheduler) loop(ctx context.Context, j Job) {
	defer s.wg.Done()
	for {
		now := s.now().In(s.loc)
		next := j.expr.Next(now)
		if next.IsZero() {
			s.logger.Printf("job %s has no future firing", j.Name)
			return
		}
		timer := time.NewTimer(next.Sub(now))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-s.stop:
			timer.Stop()
			return
		case <-timer.C:
			s.fire(ctx, j, next)
		}
	}
}

// fire runs j once under the lock. A panic in the job is logged and the
// schedule continues.
func (s *Scheduler) fire(ctx context.Context, j Job, at time.Time) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Printf("job %s panicked: %v", j.Name, r)
		}
	}()
	if s.rdb != nil {
		lockKey := lockPrefix + j.Name
		ok, err := s.rdb.SetNX(ctx, lockKey, at.UTC().Format(time.RFC3339), s.lockTTL).Result()
		if err != nil {
			s.logger.Printf("job %s: lock: %v", j.Name, err)
			return
		}
		if !ok {
			return
		}
		defer s.rdb.Del(context.Background(), lockKey)
	}
	s.logger.Printf("running %s (scheduled %s)", j.Name, at.Format(time.RFC3339))
	j.Run(ctx)
}

// RunNow fires the named job immediately, honouring the lock.
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	for _, j := range s.jobs {
		if j.Name == name {
			s.fire(ctx, j, s.now().In(s.loc))
			return nil
		}
	}
	return fmt.Errorf("unknown job %q", name)
}
