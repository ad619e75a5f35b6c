// cmd/worker/main.go
//
// Standalone executor process. Run as many instances as needed; the job
// store's claim protocol keeps them from double-sending.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/streadway/amqp"

	"github.com/unclebandit/renewcast-backend/internal/config"
	"github.com/unclebandit/renewcast-backend/internal/db"
	"github.com/unclebandit/renewcast-backend/internal/events"
	"github.com/unclebandit/renewcast-backend/internal/executor"
	"github.com/unclebandit/renewcast-backend/internal/notify"
	"github.com/unclebandit/renewcast-backend/internal/plan"
	"github.com/unclebandit/renewcast-backend/internal/quota"
	"github.com/unclebandit/renewcast-backend/internal/repository"
)

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Str("component", "worker").Logger()

	if err := godotenv.Load(); err != nil {
		logger.Info().Msg("no .env file found, relying on OS environment variables")
	}
	cfg := config.Load()

	conn, err := db.Open(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer conn.Close()

	var publisher events.Publisher = events.NopPublisher{}
	if cfg.AMQPURL != "" {
		amqpConn, err := amqp.Dial(cfg.AMQPURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to RabbitMQ")
		}
		defer amqpConn.Close()

		p, err := events.NewAMQPPublisher(amqpConn, cfg.JobEventsQueue)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to set up job events queue")
		}
		defer p.Close()
		publisher = p
	}

	catalog := plan.Default()

	tenantRepo := &repository.TenantRepository{DB: conn}
	customerRepo := &repository.CustomerRepository{DB: conn}
	jobRepo := &repository.JobRepository{DB: conn}
	usageRepo := &repository.UsageRepository{DB: conn}

	tracker := quota.NewTracker(usageRepo, catalog)

	httpClient := &http.Client{Timeout: cfg.ProviderTimeout}
	dispatcher := notify.NewDispatcher(
		notify.NewEmailSender(cfg.Email, httpClient),
		notify.NewSMSSender(cfg.SMS, httpClient),
		notify.NewWhatsAppSender(cfg.WhatsApp, httpClient),
		logger,
	)

	exec := executor.New(jobRepo, customerRepo, tenantRepo, tracker, dispatcher, publisher, catalog, logger)
	exec.BatchSize = cfg.ExecutorBatchSize
	exec.DispatchTimeout = cfg.ProviderTimeout

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ticker := cron.New()
	ticker.AddFunc("@every "+cfg.ExecutorInterval.String(), func() {
		if _, err := exec.RunOnce(ctx); err != nil {
			logger.Error().Err(err).Msg("executor tick failed")
		}
	})
	ticker.Start()

	logger.Info().Dur("interval", cfg.ExecutorInterval).Msg("worker running")
	<-ctx.Done()
	<-ticker.Stop().Done()
	logger.Info().Msg("worker stopped")
}
