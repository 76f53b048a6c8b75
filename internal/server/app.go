package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mohammad-safakhou/enroller/config"
	"github.com/mohammad-safakhou/enroller/internal/archive"
	"github.com/mohammad-safakhou/enroller/internal/automation"
	"github.com/mohammad-safakhou/enroller/internal/correlator"
	"github.com/mohammad-safakhou/enroller/internal/ledger"
	"github.com/mohammad-safakhou/enroller/internal/queue"
	"github.com/mohammad-safakhou/enroller/internal/queue/natsbus"
	"github.com/mohammad-safakhou/enroller/internal/queue/streams"
	"github.com/mohammad-safakhou/enroller/internal/retention"
	"github.com/mohammad-safakhou/enroller/internal/store"
	"github.com/mohammad-safakhou/enroller/internal/telemetry"
	"github.com/mohammad-safakhou/enroller/session"
	"github.com/mohammad-safakhou/enroller/session/inmemory"
	"github.com/mohammad-safakhou/enroller/session/redisstore"
)

// backend is a ledger implementation covering every record class.
type backend interface {
	ledger.Ledger
	ledger.OrphanStore
	ledger.AuditStore
	ledger.PresetStore
}

// Options tunes Build.
type Options struct {
	// Memory keeps every record in process instead of postgres.
	Memory bool
	// Migrations is the golang-migrate source; empty skips migrating.
	Migrations string
	Version    string
}

// App is the fully wired service. Commands build one and use the parts they
// need.
type App struct {
	Config     *config.Config
	Ledger     backend
	Sessions   session.Store
	Auditor    *retention.Auditor
	Trigger    *automation.Service
	Correlator *correlator.Correlator
	Sweeper    *retention.Sweeper
	Scheduler  *retention.Scheduler
	Telemetry  *telemetry.Telemetry
	Events     queue.Publisher
	Redis      *redis.Client

	ping    func(ctx context.Context) error
	closers []func() error
	logger  *log.Logger
}

// Build connects storage, the event bus and telemetry according to cfg.
func Build(ctx context.Context, cfg *config.Config, opts Options) (*App, error) {
	a := &App{Config: cfg, logger: log.New(log.Writer(), "[APP] ", log.LstdFlags)}
	if err := a.build(ctx, opts); err != nil {
		_ = a.Close(context.Background())
		return nil, err
	}
	return a, nil
}

func (a *App) build(ctx context.Context, opts Options) error {
	cfg := a.Config
	tele, err := telemetry.Setup(ctx, cfg.Telemetry, telemetry.Options{ServiceVersion: opts.Version})
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	a.Telemetry = tele
	a.closers = append(a.closers, func() error { return tele.Shutdown(context.Background()) })

	if opts.Memory {
		a.Ledger = ledger.NewMemory()
		a.logger.Printf("using in-memory ledger; records are lost on exit")
	} else {
		dsn, err := cfg.Storage.Postgres.DSN()
		if err != nil {
			return err
		}
		if opts.Migrations != "" {
			if err := Migrate(opts.Migrations, dsn, "up", 0); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
		}
		st, err := store.NewWithDSN(ctx, dsn)
		if err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
		a.Ledger = st
		a.ping = st.Ping
		a.closers = append(a.closers, st.Close)
	}

	if cfg.Storage.Redis.Enabled() {
		rc := cfg.Storage.Redis
		a.Redis = redis.NewClient(&redis.Options{Addr: rc.Addr(), Password: rc.Password, DB: rc.DB})
		if err := a.Redis.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis connection failed (%s): %w", rc.Addr(), err)
		}
		a.closers = append(a.closers, a.Redis.Close)
	}

	switch session.StoreType(cfg.Server.SessionBackend) {
	case session.RedisStore:
		if a.Redis == nil {
			return fmt.Errorf("server.session_backend redis requires storage.redis.host")
		}
		a.Sessions = redisstore.New(a.Redis)
	default:
		a.Sessions = inmemory.NewInMemorySessionStore()
	}

	events, err := a.publisher(cfg.Events)
	if err != nil {
		return err
	}
	a.Events = events

	var archiver retention.Archiver
	if cfg.Storage.S3.Enabled() {
		s3a, err := archive.NewS3(ctx, cfg.Storage.S3)
		if err != nil {
			return fmt.Errorf("archive: %w", err)
		}
		archiver = s3a
	}

	policy := retention.NewPolicy(cfg.Retention)
	metrics := tele.Metrics
	a.Auditor = retention.NewAuditor(a.Ledger, policy, nil)

	ac := cfg.Automation.Normalize()
	client := automation.NewClient(ac.Endpoint, ac.APIKey, ac.Timeout, ac.MaxRetries, ac.Backoff).WithUserAgent(ac.UserAgent)
	a.Trigger = automation.NewService(client, a.Ledger,
		automation.WithAuditor(a.Auditor),
		automation.WithEvents(a.Events),
		automation.WithMetrics(metrics),
	)
	a.Correlator = correlator.New(a.Ledger, a.Ledger,
		correlator.WithAuditor(a.Auditor),
		correlator.WithEvents(a.Events),
		correlator.WithMetrics(metrics),
	)

	targets := []retention.Target{
		retention.RunsTarget(a.Ledger, archiver),
		retention.OrphansTarget(a.Ledger),
		retention.AuditTarget(a.Ledger),
		retention.SessionsTarget(a.Sessions),
	}
	sweepOpts := []retention.SweeperOption{
		retention.WithLedger(a.Ledger),
		retention.WithSweepAuditor(a.Auditor),
		retention.WithSweepEvents(a.Events),
		retention.WithSweepMetrics(metrics),
	}
	if cfg.Scheduler.StaleAfter > 0 {
		sweepOpts = append(sweepOpts, retention.WithStaleAfter(cfg.Scheduler.StaleAfter))
	}
	a.Sweeper = retention.NewSweeper(policy, targets, sweepOpts...)

	if cfg.Scheduler.Enabled {
		var schedOpts []retention.SchedulerOption
		if a.Redis != nil {
			schedOpts = append(schedOpts, retention.WithRedisLock(a.Redis, cfg.Scheduler.LockTTL))
		}
		sched, err := retention.NewRetentionScheduler(cfg.Scheduler, a.Sweeper, schedOpts...)
		if err != nil {
			return fmt.Errorf("scheduler: %w", err)
		}
		a.Scheduler = sched
	}
	return nil
}

func (a *App) publisher(cfg config.EventsConfig) (queue.Publisher, error) {
	switch cfg.Backend {
	case "redis":
		if a.Redis == nil {
			return nil, fmt.Errorf("events.backend redis requires storage.redis.host")
		}
		reg, err := streams.DefaultRegistry()
		if err != nil {
			return nil, err
		}
		return streams.NewPublisher(a.Redis, cfg.Stream, cfg.MaxLen).WithRegistry(reg), nil
	case "nats":
		bus, err := natsbus.New(cfg.NatsURL, cfg.Subject)
		if err != nil {
			return nil, fmt.Errorf("nats: %w", err)
		}
		a.closers = append(a.closers, func() error { bus.Close(); return nil })
		return bus, nil
	default:
		return queue.Nop{}, nil
	}
}

// Handlers mounts the HTTP surface over the wired components.
func (a *App) Handlers() Handlers {
	cfg := a.Config
	secret := []byte(cfg.Server.JWTSecret)
	if cfg.Server.AdminPasswordHash == "" {
		a.logger.Printf("warn: server.admin_password_hash not set; admin login is disabled")
	}
	return Handlers{
		Auth: &AuthHandler{
			Sessions:     a.Sessions,
			Secret:       secret,
			PasswordHash: cfg.Server.AdminPasswordHash,
			TTL:          cfg.Server.SessionTTL,
			SecureCookie: os.Getenv("ENROLLER_ENV") == "prod",
		},
		Runs:    NewRunsHandler(a.Trigger, a.Ledger, a.Ledger),
		Hooks:   NewHooksHandler(a.Correlator, cfg.Inbound.WebhookToken, cfg.Inbound.MaxBodyBytes),
		Ops:     NewOpsHandler(a.Ledger, a.Ledger, a.Ledger, a.Sweeper),
		Metrics: a.Telemetry.Handler(),
		Ping:    a.ping,
	}
}

// Serve runs the HTTP server and the retention scheduler until ctx ends.
func (a *App) Serve(ctx context.Context) error {
	if err := a.Config.Server.Validate(); err != nil {
		return err
	}
	if err := a.Config.Automation.Normalize().Validate(); err != nil {
		return err
	}
	e := NewEcho(a.Handlers())
	if a.Scheduler != nil {
		a.Scheduler.Start(ctx)
		defer a.Scheduler.Stop()
	}

	addr := a.Config.Server.Address
	if addr == "" {
		addr = ":10001"
	}
	errCh := make(chan error, 1)
	go func() {
		a.logger.Printf("listening on %s", addr)
		errCh <- e.Start(addr)
	}()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return e.Shutdown(shutdownCtx)
	}
}

// Close releases connections in reverse order of acquisition.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
