// internal/model/customer.go
package model

import "time"

// Customer is owned by the import subsystem; the core only reads it.
// Email and phone may both be empty. ExpiryDate is nil for customers the
// import did not attach a renewal date to.
type Customer struct {
	ID         int        `db:"id" json:"id"`
	TenantID   int        `db:"tenant_id" json:"tenant_id"`
	CustomerID string     `db:"customer_id" json:"customer_id"`
	FirstName  string     `db:"first_name" json:"first_name"`
	LastName   string     `db:"last_name" json:"last_name"`
	Email      string     `db:"email" json:"email"`
	Phone      string     `db:"phone" json:"phone"`
	ExpiryDate *time.Time `db:"expiry_date" json:"expiry_date,omitempty"`
}
