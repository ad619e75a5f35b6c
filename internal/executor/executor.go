// internal/executor/executor.go
package executor

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	appErrors "github.com/unclebandit/renewcast-backend/internal/errors"
	"github.com/unclebandit/renewcast-backend/internal/events"
	"github.com/unclebandit/renewcast-backend/internal/model"
	"github.com/unclebandit/renewcast-backend/internal/notify"
	"github.com/unclebandit/renewcast-backend/internal/plan"
	"github.com/unclebandit/renewcast-backend/internal/quota"
	"github.com/unclebandit/renewcast-backend/internal/repository"
)

const (
	// MaxRetries bounds how many times a failed job is put back on the
	// queue before it fails permanently.
	MaxRetries = 3

	DefaultBatchSize = 50
)

// Executor drains due jobs. Any number of executor instances may run
// concurrently; the job store's claim protocol guarantees no job is
// claimed twice.
type Executor struct {
	Jobs      repository.JobRepositoryInterface
	Customers repository.CustomerRepositoryInterface
	Tenants   repository.TenantRepositoryInterface
	Quota     *quota.Tracker
	Dispatch  *notify.Dispatcher
	Events    events.Publisher
	Catalog   *plan.Catalog

	BatchSize       int
	DispatchTimeout time.Duration

	Logger zerolog.Logger
	Now    func() time.Time
}

func New(jobs repository.JobRepositoryInterface, customers repository.CustomerRepositoryInterface,
	tenants repository.TenantRepositoryInterface, tracker *quota.Tracker, dispatcher *notify.Dispatcher,
	publisher events.Publisher, catalog *plan.Catalog, logger zerolog.Logger) *Executor {
	return &Executor{
		Jobs:            jobs,
		Customers:       customers,
		Tenants:         tenants,
		Quota:           tracker,
		Dispatch:        dispatcher,
		Events:          publisher,
		Catalog:         catalog,
		BatchSize:       DefaultBatchSize,
		DispatchTimeout: 30 * time.Second,
		Logger:          logger,
		Now:             time.Now,
	}
}

// RunOnce claims one batch of due jobs and processes each. A job's outcome
// never affects the rest of the batch. Returns the number of jobs
// processed; an error only when the claim itself fails, in which case the
// next tick retries from scratch.
func (e *Executor) RunOnce(ctx context.Context) (int, error) {
	jobs, err := e.Jobs.ClaimDue(ctx, e.Now(), e.BatchSize)
	if err != nil {
		return 0, err
	}
	if len(jobs) == 0 {
		return 0, nil
	}

	for _, job := range jobs {
		e.process(ctx, job)
	}
	return len(jobs), nil
}

func (e *Executor) process(ctx context.Context, job *model.Job) {
	logger := e.Logger.With().
		Int("job_id", job.ID).
		Int("tenant_id", job.TenantID).
		Str("channel", string(job.Channel)).
		Logger()

	tenant, err := e.Tenants.GetByID(ctx, job.TenantID)
	if err != nil {
		var notFound *appErrors.ErrTenantNotFound
		if errors.As(err, &notFound) {
			// The tenant is gone; no retry will bring it back.
			logger.Error().Err(err).Msg("tenant not found, terminating job")
			e.terminate(ctx, job, "tenant lookup failed: "+err.Error(), logger)
			return
		}
		// A store blip is not the job's fault; put it back on the queue.
		logger.Error().Err(err).Msg("tenant lookup failed, will retry")
		e.fail(ctx, job, notify.NewTransientError(err), logger)
		return
	}

	// Entitlement can change between scheduling and execution.
	if !e.Catalog.Entitled(tenant.ActivePlans, job.Channel) {
		logger.Warn().Msg("channel no longer entitled, terminating job")
		e.terminate(ctx, job, "channel no longer entitled for tenant's plans", logger)
		return
	}

	body, err := e.renderBody(ctx, job, tenant)
	if err != nil {
		logger.Error().Err(err).Msg("failed to load customer for rendering")
		e.fail(ctx, job, notify.NewTransientError(err), logger)
		return
	}

	dispatchCtx, cancel := context.WithTimeout(ctx, e.DispatchTimeout)
	providerMessageID, err := e.Dispatch.Dispatch(dispatchCtx, job, body)
	cancel()

	if err != nil {
		e.fail(ctx, job, err, logger)
		return
	}

	if err := e.Jobs.MarkSent(ctx, job.ID, providerMessageID); err != nil {
		logger.Error().Err(err).Msg("failed to mark job sent")
		return
	}
	if err := e.Quota.Record(ctx, tenant, job.Channel); err != nil {
		logger.Error().Err(err).Msg("failed to record usage")
	}
	e.publish(ctx, job, model.JobStatusSent, providerMessageID, "")
	logger.Info().Str("provider_message_id", providerMessageID).Msg("job sent")
}

// renderBody resolves the job's template against its customer and tenant.
// Ad-hoc jobs carry a literal message and no customer reference.
func (e *Executor) renderBody(ctx context.Context, job *model.Job, tenant *model.Tenant) (string, error) {
	if job.CustomerID == nil {
		return job.Message, nil
	}

	customer, err := e.Customers.GetByID(ctx, *job.CustomerID)
	if err != nil {
		return "", err
	}
	vars := notify.TemplateVars(customer, tenant, e.Now())
	return notify.RenderTemplate(notify.TemplateOrDefault(job.Message), vars), nil
}

// fail applies the retry policy to a dispatch failure. Missing contacts
// and broken provider configuration are not retryable: waiting will not
// make a phone number appear. Transient failures back off at
// 2^retry_count minutes (2, 4, 8) until the budget is spent.
func (e *Executor) fail(ctx context.Context, job *model.Job, dispatchErr error, logger zerolog.Logger) {
	if !notify.Retryable(dispatchErr) {
		if err := e.Jobs.FailPermanent(ctx, job.ID, job.RetryCount, dispatchErr.Error()); err != nil {
			logger.Error().Err(err).Msg("failed to mark job permanently failed")
			return
		}
		e.publish(ctx, job, model.JobStatusPermanentFailed, "", dispatchErr.Error())
		logger.Warn().Err(dispatchErr).Msg("job failed permanently (not retryable)")
		return
	}

	if job.RetryCount >= MaxRetries {
		if err := e.Jobs.FailPermanent(ctx, job.ID, job.RetryCount, dispatchErr.Error()); err != nil {
			logger.Error().Err(err).Msg("failed to mark job permanently failed")
			return
		}
		e.publish(ctx, job, model.JobStatusPermanentFailed, "", dispatchErr.Error())
		logger.Warn().Err(dispatchErr).Int("retry_count", job.RetryCount).Msg("retries exhausted, job failed permanently")
		return
	}

	retryCount := job.RetryCount + 1
	delay := time.Duration(1<<uint(retryCount)) * time.Minute
	nextAt := e.Now().Add(delay)

	if err := e.Jobs.RescheduleRetry(ctx, job.ID, retryCount, nextAt, dispatchErr.Error()); err != nil {
		logger.Error().Err(err).Msg("failed to reschedule job")
		return
	}
	logger.Info().
		Int("retry_count", retryCount).
		Time("next_attempt", nextAt).
		Err(dispatchErr).
		Msg("job rescheduled")
}

func (e *Executor) terminate(ctx context.Context, job *model.Job, reason string, logger zerolog.Logger) {
	if err := e.Jobs.Terminate(ctx, job.ID, reason); err != nil {
		logger.Error().Err(err).Msg("failed to terminate job")
		return
	}
	e.publish(ctx, job, model.JobStatusPermanentFailed, "", reason)
}

func (e *Executor) publish(ctx context.Context, job *model.Job, status model.JobStatus, providerMessageID, errMsg string) {
	ev := events.JobEvent{
		JobID:             job.ID,
		TenantID:          job.TenantID,
		Channel:           string(job.Channel),
		Status:            string(status),
		ProviderMessageID: providerMessageID,
		Error:             errMsg,
		OccurredAt:        e.Now(),
	}
	if err := e.Events.Publish(ctx, ev); err != nil {
		// Eventing is best effort; the job state in the store is the truth.
		e.Logger.Warn().Int("job_id", job.ID).Err(err).Msg("failed to publish job event")
	}
}
