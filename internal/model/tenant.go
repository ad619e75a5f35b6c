// internal/model/tenant.go
package model

// Tenant is owned by the account subsystem. The core reads the active plan
// set to resolve channel entitlements and quotas.
type Tenant struct {
	ID          int      `db:"id" json:"id"`
	Name        string   `db:"name" json:"name"`
	ActivePlans []string `db:"active_plans" json:"active_plans"`
}
