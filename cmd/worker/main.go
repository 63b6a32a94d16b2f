// Worker runs the background maintenance loops: revocation ledger and one-time
// token purges against Postgres, plus an optional forwarder that consumes auth
// events from Kafka and pushes them to Loki. Set KAFKA_BROKERS and LOKI_URL to
// enable the forwarder; the purge loops always run.
package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"auth-control-plane/internal/cleanup"
	"auth-control-plane/internal/config"
	"auth-control-plane/internal/db"
	onetimerepo "auth-control-plane/internal/onetime/repository"
	revocationrepo "auth-control-plane/internal/revocation/repository"
	"auth-control-plane/internal/telemetry/loki"
)

// Dead one-time tokens are kept around for a week so recent consumption
// history stays inspectable, then purged.
const oneTimeTokenRetention = 7 * 24 * time.Hour

func main() {
	logger := zerolog.New(os.Stderr).With().Timestamp().Str("service", "auth-control-plane-worker").Logger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("config")
	}
	if cfg.DatabaseURL == "" {
		logger.Fatal().Msg("DATABASE_URL is not set; create a .env from .env.example or set DATABASE_URL")
	}

	conn, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("db")
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
		<-quit
		logger.Info().Msg("worker: shutting down...")
		cancel()
	}()

	ledgerWorker := cleanup.NewLedgerWorker(
		revocationrepo.NewPostgresRepository(conn), cfg.LedgerCleanupInterval(), logger)
	tokenWorker := cleanup.NewOneTimeTokenWorker(
		onetimerepo.NewPostgresRepository(conn), cfg.OneTimeTokenCleanupInterval(), oneTimeTokenRetention, logger)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		ledgerWorker.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		tokenWorker.Run(ctx)
	}()

	if brokers := cfg.AuthEventsKafkaBrokersList(); len(brokers) > 0 && cfg.LokiURL != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			forwardEvents(ctx, cfg, brokers, logger)
		}()
	} else {
		logger.Info().Msg("worker: KAFKA_BROKERS or LOKI_URL unset; event forwarding disabled")
	}

	wg.Wait()
	logger.Info().Msg("worker: stopped")
}

// forwardEvents consumes auth events from Kafka and pushes each one to Loki.
// Push failures are logged and the message is skipped; the consumer group
// offset still advances, so a Loki outage never wedges the topic.
func forwardEvents(ctx context.Context, cfg *config.Config, brokers []string, logger zerolog.Logger) {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		Topic:          cfg.AuthEventsKafkaTopic,
		GroupID:        cfg.KafkaGroupID,
		MinBytes:       1,
		MaxBytes:       10e6, // 10MB
		MaxWait:        1 * time.Second,
		CommitInterval: time.Second,
	})
	defer reader.Close()

	logger.Info().
		Str("topic", cfg.AuthEventsKafkaTopic).
		Str("group", cfg.KafkaGroupID).
		Str("loki", cfg.LokiURL).
		Msg("worker: forwarding auth events")

	for {
		msg, err := reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Error().Err(err).Msg("worker: kafka read error")
			continue
		}

		pushCtx, pushCancel := context.WithTimeout(ctx, 10*time.Second)
		if err := loki.PushEventJSON(pushCtx, cfg.LokiURL, msg.Value); err != nil {
			logger.Error().Err(err).Msg("worker: loki push failed")
		}
		pushCancel()
	}
}
