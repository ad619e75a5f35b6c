// internal/service/job_service.go
package service

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	appErrors "github.com/unclebandit/renewcast-backend/internal/errors"
	"github.com/unclebandit/renewcast-backend/internal/model"
	"github.com/unclebandit/renewcast-backend/internal/notify"
	"github.com/unclebandit/renewcast-backend/internal/quota"
	"github.com/unclebandit/renewcast-backend/internal/repository"
)

// JobService backs the tenant-facing API: direct "send now" jobs and
// read-only projections of the job store and usage counters.
type JobService struct {
	TenantRepo repository.TenantRepositoryInterface
	JobRepo    repository.JobRepositoryInterface
	Quota      *quota.Tracker
	Dispatch   *notify.Dispatcher
	Logger     zerolog.Logger
	Now        func() time.Time
}

// CreateDirectJob sends one ad-hoc message synchronously. Quota is
// consumed before dispatch through a single atomic conditional increment,
// so concurrent calls cannot push usage past quota. The job record is an
// audit row: it is created already in a terminal status and never enters
// the queue.
func (s *JobService) CreateDirectJob(ctx context.Context, tenantID int, channel model.Channel, recipient, message string) (*model.Job, error) {
	tenant, err := s.TenantRepo.GetByID(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	if err := s.Quota.TryConsume(ctx, tenant, channel); err != nil {
		return nil, err
	}

	now := s.Now()
	job := &model.Job{
		TenantID:    tenantID,
		Channel:     channel,
		Recipient:   recipient,
		Message:     message,
		ScheduledAt: now,
		Attempts:    1,
	}

	providerMessageID, dispatchErr := s.Dispatch.Dispatch(ctx, job, message)
	if dispatchErr != nil {
		job.Status = model.JobStatusPermanentFailed
		job.LastError = dispatchErr.Error()
		if err := s.JobRepo.Insert(ctx, job); err != nil {
			s.Logger.Error().Err(err).Msg("failed to record failed direct job")
		}
		return nil, dispatchErr
	}

	job.Status = model.JobStatusSent
	job.ProviderMessageID = providerMessageID
	if err := s.JobRepo.Insert(ctx, job); err != nil {
		return nil, err
	}

	s.Logger.Info().
		Int("job_id", job.ID).
		Int("tenant_id", tenantID).
		Str("channel", string(channel)).
		Msg("direct job sent")
	return job, nil
}

// GetJob fetches one job, scoped to the tenant. A job owned by another
// tenant reads as not found.
func (s *JobService) GetJob(ctx context.Context, tenantID, jobID int) (*model.Job, error) {
	job, err := s.JobRepo.GetByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job == nil || job.TenantID != tenantID {
		return nil, appErrors.NewJobNotFound(jobID)
	}
	return job, nil
}

// ListJobs fetches a tenant's recent jobs with pagination
func (s *JobService) ListJobs(ctx context.Context, tenantID, page, pageSize int, status string) ([]model.Job, map[string]int, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}
	offset := (page - 1) * pageSize

	ptrs, total, err := s.JobRepo.ListByTenant(ctx, tenantID, offset, pageSize, status)
	if err != nil {
		return nil, nil, err
	}

	jobs := make([]model.Job, len(ptrs))
	for i, j := range ptrs {
		jobs[i] = *j
	}

	totalPages := (total + pageSize - 1) / pageSize
	pagination := map[string]int{
		"page":        page,
		"page_size":   pageSize,
		"total_count": total,
		"total_pages": totalPages,
	}

	return jobs, pagination, nil
}

// Usage reports current-month used vs quota per entitled channel.
func (s *JobService) Usage(ctx context.Context, tenantID int) ([]model.ChannelUsage, error) {
	tenant, err := s.TenantRepo.GetByID(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	return s.Quota.Snapshot(ctx, tenant)
}
