/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/slapcommerce/backoffice/internal/bootstrap"
	"github.com/slapcommerce/backoffice/internal/config"
	"github.com/slapcommerce/backoffice/internal/infra/messaging"
	"github.com/slapcommerce/backoffice/internal/infra/persistence"
)

var outboxCmd = &cobra.Command{
	Use:   "outbox-worker",
	Short: "Relay outbox events to NATS JetStream",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			fmt.Fprintln(os.Stderr, "config error:", err)
			os.Exit(1)
		}
		log, err := bootstrap.BuildLogger(cfg)
		if err != nil {
			fmt.Fprintln(os.Stderr, "log error:", err)
			os.Exit(1)
		}

		db, err := persistence.New(cmd.Context(), persistence.Config{
			WriteDSN:          cfg.Database.WriteDSN,
			ReadDSN:           cfg.Database.ReadDSN,
			MaxConns:          cfg.Database.MaxConns,
			MinConns:          cfg.Database.MinConns,
			MaxConnLifetime:   cfg.Database.MaxConnLifetime,
			MaxConnIdleTime:   cfg.Database.MaxConnIdleTime,
			HealthCheckPeriod: cfg.Database.HealthCheckPeriod,
		})
		if err != nil {
			fmt.Fprintln(os.Stderr, "db error:", err)
			os.Exit(1)
		}
		defer db.Close()

		natsClient, err := messaging.NewNATS(cmd.Context(), cfg.NATS)
		if err != nil {
			fmt.Fprintln(os.Stderr, "nats error:", err)
			os.Exit(1)
		}
		if natsClient == nil {
			fmt.Fprintln(os.Stderr, "nats error: nats url is required")
			os.Exit(1)
		}
		defer natsClient.Close()

		relay := persistence.NewOutboxRelay(db)
		log.Infof("outbox-worker: started (batch=%d, interval=%s)", cfg.Outbox.BatchSize, cfg.Outbox.PollInterval)

		ticker := time.NewTicker(cfg.Outbox.PollInterval)
		defer ticker.Stop()

		for {
			if err := processOutbox(cmd.Context(), cfg, relay, natsClient, log); err != nil {
				log.WithError(err).Warn("outbox-worker: process failed")
			}
			select {
			case <-cmd.Context().Done():
				return
			case <-ticker.C:
			}
		}
	},
}

// processOutbox claims one batch and relays each entry. Entries that
// keep failing past max_attempts go to the dead-letter table and the
// DLQ subject.
func processOutbox(ctx context.Context, cfg config.Config, relay *persistence.OutboxStore, natsClient *messaging.NATSClient, log *logrus.Logger) error {
	events, err := relay.Claim(ctx, cfg.Outbox.BatchSize, cfg.Outbox.LockTimeout, cfg.Outbox.MaxAttempts)
	if err != nil {
		return err
	}
	for _, event := range events {
		if err := natsClient.PublishOutboxEvent(ctx, event); err != nil {
			if event.RetryCount >= cfg.Outbox.MaxAttempts {
				if derr := relay.MoveToDead(ctx, event, err.Error()); derr != nil {
					log.WithError(derr).Warn("outbox-worker: move to dead")
					continue
				}
				if cfg.NATS.DLQSubject != "" {
					if perr := natsClient.Publish(ctx, cfg.NATS.DLQSubject, event.Payload, event.IdempotencyKey+":dead"); perr != nil {
						log.WithError(perr).Warn("outbox-worker: dlq publish")
					}
				}
				continue
			}
			if ferr := relay.MarkFailed(ctx, event.ID, event.RetryCount, err.Error()); ferr != nil {
				log.WithError(ferr).Warn("outbox-worker: mark failed")
			}
			continue
		}
		if err := relay.MarkProcessed(ctx, event.ID); err != nil {
			log.WithError(err).Warn("outbox-worker: mark processed")
		}
	}
	return nil
}

func init() {
	rootCmd.AddCommand(outboxCmd)
}
