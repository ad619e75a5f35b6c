// internal/model/rule.go
package model

import "time"

// Rule is a tenant-defined reminder policy: fire on the listed channels,
// LeadDays days before each customer's expiry date, using Template as the
// message body. Read-only to the core.
type Rule struct {
	ID        int       `db:"id" json:"id"`
	TenantID  int       `db:"tenant_id" json:"tenant_id"`
	LeadDays  []int64   `db:"lead_days" json:"lead_days"`
	Channels  []Channel `db:"channels" json:"channels"`
	Template  string    `db:"template" json:"template"`
	IsActive  bool      `db:"is_active" json:"is_active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
