package repository

import (
	"context"
	"database/sql"

	"github.com/lib/pq"

	"github.com/unclebandit/renewcast-backend/internal/model"
)

type RuleRepositoryInterface interface {
	ListActive(ctx context.Context) ([]*model.Rule, error)
}

type RuleRepository struct {
	DB *sql.DB
}

// ListActive fetches every rule with is_active = true, across all tenants.
func (r *RuleRepository) ListActive(ctx context.Context) ([]*model.Rule, error) {
	query := `
        SELECT id, tenant_id, lead_days, channels, template, is_active, created_at
        FROM rules
        WHERE is_active = TRUE
        ORDER BY id
    `
	rows, err := r.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	rules := []*model.Rule{}
	for rows.Next() {
		rule := &model.Rule{}
		var channels []string
		if err := rows.Scan(&rule.ID, &rule.TenantID, pq.Array(&rule.LeadDays), pq.Array(&channels), &rule.Template, &rule.IsActive, &rule.CreatedAt); err != nil {
			return nil, err
		}
		for _, ch := range channels {
			rule.Channels = append(rule.Channels, model.Channel(ch))
		}
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}

var _ RuleRepositoryInterface = (*RuleRepository)(nil)
