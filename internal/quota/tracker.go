// internal/quota/tracker.go
package quota

import (
	"context"
	"time"

	appErrors "github.com/unclebandit/renewcast-backend/internal/errors"
	"github.com/unclebandit/renewcast-backend/internal/model"
	"github.com/unclebandit/renewcast-backend/internal/plan"
	"github.com/unclebandit/renewcast-backend/internal/repository"
)

// MonthKey is the calendar-month bucket usage counters are keyed on.
// Rolling into a new month starts a fresh row; nothing is ever zeroed.
func MonthKey(t time.Time) string {
	return t.UTC().Format("2006-01")
}

// Tracker answers "can tenant T send one more message on channel C this
// month" and records consumption. Increments go through single atomic
// UPDATEs; there is no read-then-write window for concurrent callers to
// slip through.
type Tracker struct {
	Usage   repository.UsageRepositoryInterface
	Catalog *plan.Catalog
	Now     func() time.Time
}

func NewTracker(usage repository.UsageRepositoryInterface, catalog *plan.Catalog) *Tracker {
	return &Tracker{Usage: usage, Catalog: catalog, Now: time.Now}
}

// TryConsume atomically takes one unit of the tenant's quota on the
// channel. Returns ErrChannelNotEnabled when no active plan grants the
// channel, ErrQuotaExceeded when the month's counter is full.
func (t *Tracker) TryConsume(ctx context.Context, tenant *model.Tenant, channel model.Channel) error {
	quota := t.Catalog.QuotaFor(tenant.ActivePlans, channel)
	if quota == 0 {
		return appErrors.NewChannelNotEnabled(tenant.ID, string(channel))
	}

	month := MonthKey(t.Now())
	if err := t.Usage.Ensure(ctx, tenant.ID, channel, month, quota); err != nil {
		return err
	}

	ok, err := t.Usage.TryIncrement(ctx, tenant.ID, channel, month)
	if err != nil {
		return err
	}
	if !ok {
		return appErrors.NewQuotaExceeded(tenant.ID, string(channel), quota)
	}
	return nil
}

// Record counts one confirmed send against the tenant's monthly counter.
// Unconditional: the scheduled path is guarded upstream by entitlement
// filtering, not by a per-send quota check.
func (t *Tracker) Record(ctx context.Context, tenant *model.Tenant, channel model.Channel) error {
	quota := t.Catalog.QuotaFor(tenant.ActivePlans, channel)
	month := MonthKey(t.Now())
	if err := t.Usage.Ensure(ctx, tenant.ID, channel, month, quota); err != nil {
		return err
	}
	return t.Usage.Increment(ctx, tenant.ID, channel, month)
}

// Snapshot reports current-month usage against quota for every channel the
// tenant is entitled to. Channels untouched this month report zero used.
func (t *Tracker) Snapshot(ctx context.Context, tenant *model.Tenant) ([]model.ChannelUsage, error) {
	month := MonthKey(t.Now())
	stored, err := t.Usage.ListForTenant(ctx, tenant.ID, month)
	if err != nil {
		return nil, err
	}

	byChannel := map[model.Channel]model.ChannelUsage{}
	for _, u := range stored {
		byChannel[u.Channel] = u
	}

	report := []model.ChannelUsage{}
	for _, ch := range t.Catalog.EntitledChannels(tenant.ActivePlans) {
		if u, ok := byChannel[ch]; ok {
			report = append(report, u)
			continue
		}
		report = append(report, model.ChannelUsage{
			TenantID: tenant.ID,
			Channel:  ch,
			Month:    month,
			Used:     0,
			Quota:    t.Catalog.QuotaFor(tenant.ActivePlans, ch),
		})
	}
	return report, nil
}
