// internal/model/job.go
package model

import "time"

type JobStatus string

const (
	JobStatusPending         JobStatus = "pending"
	JobStatusQueued          JobStatus = "queued"
	JobStatusSent            JobStatus = "sent"
	JobStatusPermanentFailed JobStatus = "permanent_failed"
)

// Job is one unit of outbound notification work. Scheduled jobs carry the
// rule and customer they were generated from; ad-hoc "send now" jobs carry
// neither.
type Job struct {
	ID                int        `db:"id" json:"id"`
	TenantID          int        `db:"tenant_id" json:"tenant_id"`
	CustomerID        *int       `db:"customer_id" json:"customer_id,omitempty"`
	RuleID            *int       `db:"rule_id" json:"rule_id,omitempty"`
	Channel           Channel    `db:"channel" json:"channel"`
	Recipient         string     `db:"recipient" json:"recipient"`
	Message           string     `db:"message" json:"message,omitempty"`
	ScheduledAt       time.Time  `db:"scheduled_at" json:"scheduled_at"`
	Status            JobStatus  `db:"status" json:"status"`
	Attempts          int        `db:"attempts" json:"attempts"`
	RetryCount        int        `db:"retry_count" json:"retry_count"`
	LastError         string     `db:"last_error" json:"last_error,omitempty"`
	ProviderMessageID string     `db:"provider_message_id" json:"provider_message_id,omitempty"`
	CreatedAt         time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt         *time.Time `db:"updated_at" json:"updated_at,omitempty"`
}
