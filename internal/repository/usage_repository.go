package repository

import (
	"context"
	"database/sql"

	"github.com/unclebandit/renewcast-backend/internal/model"
)

type UsageRepositoryInterface interface {
	Ensure(ctx context.Context, tenantID int, channel model.Channel, month string, quota int) error
	TryIncrement(ctx context.Context, tenantID int, channel model.Channel, month string) (bool, error)
	Increment(ctx context.Context, tenantID int, channel model.Channel, month string) error
	ListForTenant(ctx context.Context, tenantID int, month string) ([]model.ChannelUsage, error)
}

type UsageRepository struct {
	DB *sql.DB
}

// Ensure creates the counter row for the month if it does not exist yet,
// and refreshes the quota snapshot (plans can change between months).
func (r *UsageRepository) Ensure(ctx context.Context, tenantID int, channel model.Channel, month string, quota int) error {
	query := `
        INSERT INTO channel_usage (tenant_id, channel, month, used, quota)
        VALUES ($1, $2, $3, 0, $4)
        ON CONFLICT (tenant_id, channel, month) DO UPDATE SET quota = EXCLUDED.quota
    `
	_, err := r.DB.ExecContext(ctx, query, tenantID, channel, month, quota)
	return err
}

// TryIncrement consumes one unit of quota if any remains. The check and
// the increment are a single conditional UPDATE, so two concurrent callers
// can never both pass a full counter.
func (r *UsageRepository) TryIncrement(ctx context.Context, tenantID int, channel model.Channel, month string) (bool, error) {
	query := `
        UPDATE channel_usage
        SET used = used + 1
        WHERE tenant_id = $1 AND channel = $2 AND month = $3 AND used < quota
    `
	res, err := r.DB.ExecContext(ctx, query, tenantID, channel, month)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Increment records consumption unconditionally. Used by the executor
// after a confirmed send; the scheduled path is guarded by entitlement,
// not by a per-send quota check.
func (r *UsageRepository) Increment(ctx context.Context, tenantID int, channel model.Channel, month string) error {
	query := `
        UPDATE channel_usage
        SET used = used + 1
        WHERE tenant_id = $1 AND channel = $2 AND month = $3
    `
	_, err := r.DB.ExecContext(ctx, query, tenantID, channel, month)
	return err
}

func (r *UsageRepository) ListForTenant(ctx context.Context, tenantID int, month string) ([]model.ChannelUsage, error) {
	query := `
        SELECT tenant_id, channel, month, used, quota
        FROM channel_usage
        WHERE tenant_id = $1 AND month = $2
        ORDER BY channel
    `
	rows, err := r.DB.QueryContext(ctx, query, tenantID, month)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	usages := []model.ChannelUsage{}
	for rows.Next() {
		var u model.ChannelUsage
		if err := rows.Scan(&u.TenantID, &u.Channel, &u.Month, &u.Used, &u.Quota); err != nil {
			return nil, err
		}
		usages = append(usages, u)
	}
	return usages, rows.Err()
}

var _ UsageRepositoryInterface = (*UsageRepository)(nil)
