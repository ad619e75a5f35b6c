package repository

import (
	"context"
	"database/sql"

	"github.com/unclebandit/renewcast-backend/internal/model"
)

// CustomerRepositoryInterface defines methods used by the scheduler and
// executor
type CustomerRepositoryInterface interface {
	GetByID(ctx context.Context, id int) (*model.Customer, error)
	ListByTenant(ctx context.Context, tenantID int) ([]model.Customer, error)
}

// CustomerRepository is the concrete implementation
type CustomerRepository struct {
	DB *sql.DB
}

// GetByID fetches a customer by ID
func (r *CustomerRepository) GetByID(ctx context.Context, id int) (*model.Customer, error) {
	query := `
        SELECT id, tenant_id, customer_id, first_name, last_name, email, phone, expiry_date
        FROM customers
        WHERE id = $1
    `
	row := r.DB.QueryRowContext(ctx, query, id)

	var c model.Customer
	if err := row.Scan(&c.ID, &c.TenantID, &c.CustomerID, &c.FirstName, &c.LastName, &c.Email, &c.Phone, &c.ExpiryDate); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // not found
		}
		return nil, err
	}
	return &c, nil
}

// ListByTenant fetches all customers of one tenant
func (r *CustomerRepository) ListByTenant(ctx context.Context, tenantID int) ([]model.Customer, error) {
	query := `
        SELECT id, tenant_id, customer_id, first_name, last_name, email, phone, expiry_date
        FROM customers
        WHERE tenant_id = $1
    `
	rows, err := r.DB.QueryContext(ctx, query, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	customers := []model.Customer{}
	for rows.Next() {
		var c model.Customer
		if err := rows.Scan(&c.ID, &c.TenantID, &c.CustomerID, &c.FirstName, &c.LastName, &c.Email, &c.Phone, &c.ExpiryDate); err != nil {
			return nil, err
		}
		customers = append(customers, c)
	}
	return customers, rows.Err()
}

var _ CustomerRepositoryInterface = (*CustomerRepository)(nil)
