// internal/scheduler/scheduler.go
package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/unclebandit/renewcast-backend/internal/model"
	"github.com/unclebandit/renewcast-backend/internal/plan"
	"github.com/unclebandit/renewcast-backend/internal/repository"
)

// Scheduler materializes the jobs implied by active rules and their
// tenants' customer lists. A run is a pure generation pass: it inserts
// missing pending jobs and touches nothing else. The job store's
// uniqueness key makes running it twice over unchanged data a no-op.
type Scheduler struct {
	Rules     repository.RuleRepositoryInterface
	Customers repository.CustomerRepositoryInterface
	Tenants   repository.TenantRepositoryInterface
	Jobs      repository.JobRepositoryInterface
	Catalog   *plan.Catalog

	// SendHour is the fixed UTC hour reminders fire at.
	SendHour int

	Logger zerolog.Logger
	Now    func() time.Time
}

func New(rules repository.RuleRepositoryInterface, customers repository.CustomerRepositoryInterface,
	tenants repository.TenantRepositoryInterface, jobs repository.JobRepositoryInterface,
	catalog *plan.Catalog, sendHour int, logger zerolog.Logger) *Scheduler {
	return &Scheduler{
		Rules:     rules,
		Customers: customers,
		Tenants:   tenants,
		Jobs:      jobs,
		Catalog:   catalog,
		SendHour:  sendHour,
		Logger:    logger,
		Now:       time.Now,
	}
}

// RunOnce executes one generation pass and returns the number of jobs
// created. A failure on one rule or one customer never aborts the run for
// the others; only failing to load the rule list at all fails the pass.
func (s *Scheduler) RunOnce(ctx context.Context) (int, error) {
	rules, err := s.Rules.ListActive(ctx)
	if err != nil {
		return 0, err
	}

	created := 0
	for _, rule := range rules {
		n, err := s.runRule(ctx, rule)
		created += n
		if err != nil {
			s.Logger.Error().Int("rule_id", rule.ID).Err(err).Msg("rule pass failed, continuing")
		}
	}

	s.Logger.Info().Int("rules", len(rules)).Int("jobs_created", created).Msg("scheduler pass complete")
	return created, nil
}

func (s *Scheduler) runRule(ctx context.Context, rule *model.Rule) (int, error) {
	tenant, err := s.Tenants.GetByID(ctx, rule.TenantID)
	if err != nil {
		return 0, err
	}

	entitled := []model.Channel{}
	for _, ch := range rule.Channels {
		if !s.Catalog.Entitled(tenant.ActivePlans, ch) {
			// Not an error: the rule simply asks for more than the plans grant.
			s.Logger.Debug().
				Int("rule_id", rule.ID).
				Int("tenant_id", tenant.ID).
				Str("channel", string(ch)).
				Msg("channel not entitled, skipped")
			continue
		}
		entitled = append(entitled, ch)
	}
	if len(entitled) == 0 {
		return 0, nil
	}

	customers, err := s.Customers.ListByTenant(ctx, tenant.ID)
	if err != nil {
		return 0, err
	}

	now := s.Now()
	created := 0
	for _, customer := range customers {
		if customer.ExpiryDate == nil {
			continue
		}
		for _, leadDays := range rule.LeadDays {
			scheduledAt := s.fireTime(*customer.ExpiryDate, int(leadDays))
			if scheduledAt.Before(now) {
				continue // reminder date already passed
			}
			for _, ch := range entitled {
				recipient := recipientFor(&customer, ch)
				if recipient == "" {
					s.Logger.Debug().
						Int("customer_id", customer.ID).
						Str("channel", string(ch)).
						Msg("customer has no contact for channel, skipped")
					continue
				}

				customerID := customer.ID
				ruleID := rule.ID
				job := &model.Job{
					TenantID:    tenant.ID,
					CustomerID:  &customerID,
					RuleID:      &ruleID,
					Channel:     ch,
					Recipient:   recipient,
					Message:     rule.Template,
					ScheduledAt: scheduledAt,
				}
				isNew, err := s.Jobs.InsertScheduled(ctx, job)
				if err != nil {
					s.Logger.Error().
						Int("rule_id", rule.ID).
						Int("customer_id", customer.ID).
						Err(err).
						Msg("failed to insert job, continuing")
					continue
				}
				if isNew {
					created++
				}
			}
		}
	}
	return created, nil
}

// fireTime is the lead-day offset before expiry, normalized to the fixed
// send hour in UTC.
func (s *Scheduler) fireTime(expiry time.Time, leadDays int) time.Time {
	day := expiry.AddDate(0, 0, -leadDays)
	return time.Date(day.Year(), day.Month(), day.Day(), s.SendHour, 0, 0, 0, time.UTC)
}

func recipientFor(c *model.Customer, ch model.Channel) string {
	switch ch {
	case model.ChannelEmail:
		return c.Email
	case model.ChannelSMS, model.ChannelWhatsApp:
		return c.Phone
	}
	return ""
}
