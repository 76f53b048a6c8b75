package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/mohammad-safakhou/enroller/config"
	"github.com/mohammad-safakhou/enroller/internal/queue/natsbus"
	"github.com/mohammad-safakhou/enroller/internal/queue/streams"
)

func eventsCMD(load configLoader) *cobra.Command {
	var group, name string
	var replay bool
	var events = &cobra.Command{
		Use:   "events",
		Short: "Inspect the run event bus",
	}
	tail := &cobra.Command{
		Use:   "tail",
		Short: "Print run events as they are published",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			cfg, err := load()
			if err != nil {
				return err
			}
			if name == "" {
				host, _ := os.Hostname()
				name = fmt.Sprintf("tail-%s-%d", host, os.Getpid())
			}
			out := cmd.OutOrStdout()
			switch cfg.Events.Backend {
			case "redis":
				return tailStream(ctx, cfg, group, name, replay, out)
			case "nats":
				return tailNATS(ctx, cfg, group, out)
			default:
				return fmt.Errorf("events.backend is %q; nothing to tail", cfg.Events.Backend)
			}
		},
	}
	tail.Flags().StringVar(&group, "group", "enroller-tail", "consumer group (redis) or durable name (nats)")
	tail.Flags().StringVar(&name, "name", "", "consumer name within the group (redis)")
	tail.Flags().BoolVar(&replay, "replay", false, "start from the beginning of the stream when creating the group")
	events.AddCommand(tail)
	return events
}

func tailStream(ctx context.Context, cfg *config.Config, group, name string, replay bool, w io.Writer) error {
	if !cfg.Storage.Redis.Enabled() {
		return fmt.Errorf("events.backend redis requires storage.redis.host")
	}
	rc := cfg.Storage.Redis
	client := redis.NewClient(&redis.Options{Addr: rc.Addr(), Password: rc.Password, DB: rc.DB})
	defer client.Close()

	consumer := streams.NewConsumer(client, cfg.Events.Stream, group, name)
	start := "$"
	if replay {
		start = "0"
	}
	if err := consumer.EnsureGroup(ctx, start); err != nil {
		return err
	}
	reg, err := streams.DefaultRegistry()
	if err != nil {
		return err
	}
	for {
		msgs, err := consumer.Read(ctx, 32, 5*time.Second)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		ids := make([]string, 0, len(msgs))
		for _, m := range msgs {
			env := m.Envelope
			fmt.Fprintf(w, "%s %s %s %s\n", env.OccurredAt.Format(time.RFC3339), env.EventType, env.EventID, env.Data)
			if err := reg.ValidateEnvelope(env); err != nil {
				fmt.Fprintf(w, "  ! %v\n", err)
			}
			ids = append(ids, m.ID)
		}
		if len(ids) > 0 {
			if err := consumer.Ack(ctx, ids...); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return err
			}
		}
	}
}

func tailNATS(ctx context.Context, cfg *config.Config, durable string, w io.Writer) error {
	bus, err := natsbus.New(cfg.Events.NatsURL, cfg.Events.Subject)
	if err != nil {
		return err
	}
	defer bus.Close()
	sub, err := bus.Subscribe(ctx, durable, func(_ context.Context, msg natsbus.Message) error {
		_, err := fmt.Fprintf(w, "%s %s %s %s\n", msg.OccurredAt.Format(time.RFC3339), msg.EventType, msg.EventID, msg.Data)
		return err
	})
	if err != nil {
		return err
	}
	defer sub.Close()
	<-ctx.Done()
	return nil
}
