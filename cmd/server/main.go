// cmd/server/main.go
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/streadway/amqp"

	"github.com/unclebandit/renewcast-backend/internal/config"
	"github.com/unclebandit/renewcast-backend/internal/controller"
	"github.com/unclebandit/renewcast-backend/internal/db"
	"github.com/unclebandit/renewcast-backend/internal/events"
	"github.com/unclebandit/renewcast-backend/internal/executor"
	"github.com/unclebandit/renewcast-backend/internal/notify"
	"github.com/unclebandit/renewcast-backend/internal/plan"
	"github.com/unclebandit/renewcast-backend/internal/quota"
	"github.com/unclebandit/renewcast-backend/internal/repository"
	"github.com/unclebandit/renewcast-backend/internal/scheduler"
	"github.com/unclebandit/renewcast-backend/internal/service"
)

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	if err := godotenv.Load(); err != nil {
		logger.Info().Msg("no .env file found, relying on OS environment variables")
	}
	cfg := config.Load()

	conn, err := db.Open(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer conn.Close()
	logger.Info().Msg("connected to database")

	// Event publishing is optional; without a broker the executor still
	// runs, it just emits nothing.
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
	} else {
		logger.Warn().Msg("AMQP_URL not set, job events disabled")
	}

	catalog := plan.Default()

	tenantRepo := &repository.TenantRepository{DB: conn}
	customerRepo := &repository.CustomerRepository{DB: conn}
	ruleRepo := &repository.RuleRepository{DB: conn}
	jobRepo := &repository.JobRepository{DB: conn}
	usageRepo := &repository.UsageRepository{DB: conn}

	tracker := quota.NewTracker(usageRepo, catalog)

	httpClient := &http.Client{Timeout: cfg.ProviderTimeout}
	dispatcher := notify.NewDispatcher(
		notify.NewEmailSender(cfg.Email, httpClient),
		notify.NewSMSSender(cfg.SMS, httpClient),
		notify.NewWhatsAppSender(cfg.WhatsApp, httpClient),
		logger.With().Str("component", "dispatcher").Logger(),
	)

	sched := scheduler.New(ruleRepo, customerRepo, tenantRepo, jobRepo, catalog, cfg.SendHour,
		logger.With().Str("component", "scheduler").Logger())

	exec := executor.New(jobRepo, customerRepo, tenantRepo, tracker, dispatcher, publisher, catalog,
		logger.With().Str("component", "executor").Logger())
	exec.BatchSize = cfg.ExecutorBatchSize
	exec.DispatchTimeout = cfg.ProviderTimeout

	jobService := &service.JobService{
		TenantRepo: tenantRepo,
		JobRepo:    jobRepo,
		Quota:      tracker,
		Dispatch:   dispatcher,
		Logger:     logger.With().Str("component", "job_service").Logger(),
		Now:        time.Now,
	}

	jobController := &controller.JobController{
		JobService: jobService,
		Executor:   exec,
		Scheduler:  sched,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ticker := cron.New()
	ticker.AddFunc(cfg.SchedulerSpec, func() {
		if _, err := sched.RunOnce(ctx); err != nil {
			logger.Error().Err(err).Msg("scheduler pass failed")
		}
	})
	ticker.AddFunc("@every "+cfg.ExecutorInterval.String(), func() {
		if _, err := exec.RunOnce(ctx); err != nil {
			logger.Error().Err(err).Msg("executor tick failed")
		}
	})
	ticker.Start()

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	// Tenant-facing routes
	r.Post("/tenants/{tenantID}/jobs", jobController.CreateJob)
	r.Get("/tenants/{tenantID}/jobs", jobController.ListJobs)
	r.Get("/tenants/{tenantID}/jobs/{jobID}", jobController.GetJob)
	r.Get("/tenants/{tenantID}/usage", jobController.GetUsage)

	// Operator routes
	r.Post("/admin/executor/run", jobController.RunExecutor)
	r.Post("/admin/scheduler/run", jobController.RunScheduler)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: r}
	go func() {
		logger.Info().Str("addr", cfg.HTTPAddr).Msg("server running")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutting down")

	// Stop ticking, let the in-flight pass finish, then drain HTTP.
	<-ticker.Stop().Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
	}
}
