package repository

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	"github.com/unclebandit/renewcast-backend/internal/model"
)

type JobRepositoryInterface interface {
	Insert(ctx context.Context, j *model.Job) error
	InsertScheduled(ctx context.Context, j *model.Job) (bool, error)
	GetByID(ctx context.Context, id int) (*model.Job, error)
	ClaimDue(ctx context.Context, now time.Time, limit int) ([]*model.Job, error)
	MarkSent(ctx context.Context, id int, providerMessageID string) error
	RescheduleRetry(ctx context.Context, id, retryCount int, nextAt time.Time, lastError string) error
	FailPermanent(ctx context.Context, id, retryCount int, lastError string) error
	Terminate(ctx context.Context, id int, lastError string) error
	ListByTenant(ctx context.Context, tenantID, offset, limit int, status string) ([]*model.Job, int, error)
}

type JobRepository struct {
	DB *sql.DB
}

const jobColumns = `id, tenant_id, customer_id, rule_id, channel, recipient, message,
           scheduled_at, status, attempts, retry_count, last_error, provider_message_id,
           created_at, updated_at`

func scanJob(row interface{ Scan(...any) error }) (*model.Job, error) {
	var j model.Job
	err := row.Scan(
		&j.ID, &j.TenantID, &j.CustomerID, &j.RuleID, &j.Channel, &j.Recipient, &j.Message,
		&j.ScheduledAt, &j.Status, &j.Attempts, &j.RetryCount, &j.LastError, &j.ProviderMessageID,
		&j.CreatedAt, &j.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &j, nil
}

// Insert stores a job as-is. Used by the direct send-now path, which
// creates jobs in a terminal status.
func (r *JobRepository) Insert(ctx context.Context, j *model.Job) error {
	j.CreatedAt = time.Now()
	query := `
        INSERT INTO jobs (tenant_id, customer_id, rule_id, channel, recipient, message,
                          scheduled_at, status, attempts, retry_count, last_error, provider_message_id, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
        RETURNING id
    `
	return r.DB.QueryRowContext(ctx, query,
		j.TenantID, j.CustomerID, j.RuleID, j.Channel, j.Recipient, j.Message,
		j.ScheduledAt, j.Status, j.Attempts, j.RetryCount, j.LastError, j.ProviderMessageID, j.CreatedAt,
	).Scan(&j.ID)
}

// InsertScheduled inserts a pending job generated by the scheduler. The
// (tenant, customer, rule, channel, scheduled_at) key is unique, so
// re-running the scheduler over unchanged data inserts nothing; the bool
// reports whether a new row was created.
func (r *JobRepository) InsertScheduled(ctx context.Context, j *model.Job) (bool, error) {
	query := `
        INSERT INTO jobs (tenant_id, customer_id, rule_id, channel, recipient, message,
                          scheduled_at, status, attempts, retry_count, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, 'pending', 0, 0, NOW())
        ON CONFLICT (tenant_id, customer_id, rule_id, channel, scheduled_at)
            WHERE customer_id IS NOT NULL AND rule_id IS NOT NULL
            DO NOTHING
        RETURNING id
    `
	err := r.DB.QueryRowContext(ctx, query,
		j.TenantID, j.CustomerID, j.RuleID, j.Channel, j.Recipient, j.Message, j.ScheduledAt,
	).Scan(&j.ID)
	if err != nil {
		if err == sql.ErrNoRows {
			return false, nil // row already existed
		}
		return false, err
	}
	j.Status = model.JobStatusPending
	return true, nil
}

func (r *JobRepository) GetByID(ctx context.Context, id int) (*model.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE id = $1`
	j, err := scanJob(r.DB.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return j, nil
}

// ClaimDue atomically moves up to limit due pending jobs to queued and
// returns them. FOR UPDATE SKIP LOCKED makes concurrent claims disjoint: a
// second executor skips rows locked by an in-flight claim instead of
// blocking on them. The whole claim is one transaction; on error nothing
// is claimed.
func (r *JobRepository) ClaimDue(ctx context.Context, now time.Time, limit int) ([]*model.Job, error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin claim: %w", err)
	}
	defer tx.Rollback()

	query := `
        UPDATE jobs SET status = 'queued', updated_at = NOW()
        WHERE id IN (
            SELECT id FROM jobs
            WHERE status = 'pending' AND scheduled_at <= $1
            ORDER BY scheduled_at ASC
            LIMIT $2
            FOR UPDATE SKIP LOCKED
        )
        RETURNING ` + jobColumns

	rows, err := tx.QueryContext(ctx, query, now, limit)
	if err != nil {
		return nil, fmt.Errorf("claim due jobs: %w", err)
	}

	jobs := []*model.Job{}
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan claimed job: %w", err)
		}
		jobs = append(jobs, j)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit claim: %w", err)
	}

	// RETURNING does not promise row order; callers process oldest first.
	sort.SliceStable(jobs, func(i, k int) bool { return jobs[i].ScheduledAt.Before(jobs[k].ScheduledAt) })
	return jobs, nil
}

func (r *JobRepository) MarkSent(ctx context.Context, id int, providerMessageID string) error {
	query := `
        UPDATE jobs
        SET status = 'sent', provider_message_id = $1, last_error = '',
            attempts = attempts + 1, updated_at = NOW()
        WHERE id = $2
    `
	_, err := r.DB.ExecContext(ctx, query, providerMessageID, id)
	return err
}

// RescheduleRetry puts a failed job back on the queue for a later attempt.
func (r *JobRepository) RescheduleRetry(ctx context.Context, id, retryCount int, nextAt time.Time, lastError string) error {
	query := `
        UPDATE jobs
        SET status = 'pending', retry_count = $1, scheduled_at = $2, last_error = $3,
            attempts = attempts + 1, updated_at = NOW()
        WHERE id = $4
    `
	_, err := r.DB.ExecContext(ctx, query, retryCount, nextAt, lastError, id)
	return err
}

// FailPermanent records a dispatch failure that exhausted the retry budget
// or is not worth retrying. Terminal.
func (r *JobRepository) FailPermanent(ctx context.Context, id, retryCount int, lastError string) error {
	query := `
        UPDATE jobs
        SET status = 'permanent_failed', retry_count = $1, last_error = $2,
            attempts = attempts + 1, updated_at = NOW()
        WHERE id = $3
    `
	_, err := r.DB.ExecContext(ctx, query, retryCount, lastError, id)
	return err
}

// Terminate fails a job without counting a dispatch attempt, e.g. when the
// tenant lost entitlement for the channel between scheduling and execution.
func (r *JobRepository) Terminate(ctx context.Context, id int, lastError string) error {
	query := `
        UPDATE jobs
        SET status = 'permanent_failed', last_error = $1, updated_at = NOW()
        WHERE id = $2
    `
	_, err := r.DB.ExecContext(ctx, query, lastError, id)
	return err
}

// ListByTenant returns recent jobs for a tenant, newest first, with the
// total count for pagination. Status filters when non-empty.
func (r *JobRepository) ListByTenant(ctx context.Context, tenantID, offset, limit int, status string) ([]*model.Job, int, error) {
	jobs := []*model.Job{}
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE tenant_id = $1`
	args := []interface{}{tenantID}
	argPos := 2

	if status != "" {
		query += fmt.Sprintf(" AND status = $%d", argPos)
		args = append(args, status)
		argPos++
	}

	query += fmt.Sprintf(" ORDER BY id DESC LIMIT $%d OFFSET $%d", argPos, argPos+1)
	args = append(args, limit, offset)

	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, 0, err
		}
		jobs = append(jobs, j)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	countQuery := `SELECT COUNT(*) FROM jobs WHERE tenant_id = $1`
	argsCount := []interface{}{tenantID}
	if status != "" {
		countQuery += ` AND status = $2`
		argsCount = append(argsCount, status)
	}

	var total int
	if err := r.DB.QueryRowContext(ctx, countQuery, argsCount...).Scan(&total); err != nil {
		return nil, 0, err
	}

	return jobs, total, nil
}

var _ JobRepositoryInterface = (*JobRepository)(nil)
