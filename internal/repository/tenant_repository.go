package repository

import (
	"context"
	"database/sql"

	"github.com/lib/pq"

	appErrors "github.com/unclebandit/renewcast-backend/internal/errors"
	"github.com/unclebandit/renewcast-backend/internal/model"
)

type TenantRepositoryInterface interface {
	GetByID(ctx context.Context, id int) (*model.Tenant, error)
}

type TenantRepository struct {
	DB *sql.DB
}

func (r *TenantRepository) GetByID(ctx context.Context, id int) (*model.Tenant, error) {
	query := `SELECT id, name, active_plans FROM tenants WHERE id = $1`

	var t model.Tenant
	err := r.DB.QueryRowContext(ctx, query, id).Scan(&t.ID, &t.Name, pq.Array(&t.ActivePlans))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.NewTenantNotFound(id)
		}
		return nil, err
	}
	return &t, nil
}

var _ TenantRepositoryInterface = (*TenantRepository)(nil)
