// internal/errors/errors.go
package appErrors

import "fmt"

// ErrTenantNotFound is a sentinel error
type ErrTenantNotFound struct {
	TenantID int
}

func (e *ErrTenantNotFound) Error() string {
	return fmt.Sprintf("tenant with ID %d not found", e.TenantID)
}

// Helper constructor
func NewTenantNotFound(id int) error {
	return &ErrTenantNotFound{TenantID: id}
}

// ErrJobNotFound covers both a missing job and a job owned by another
// tenant; callers cannot tell the two apart.
type ErrJobNotFound struct {
	JobID int
}

func (e *ErrJobNotFound) Error() string {
	return fmt.Sprintf("job with ID %d not found", e.JobID)
}

func NewJobNotFound(id int) error {
	return &ErrJobNotFound{JobID: id}
}

// ErrChannelNotEnabled means none of the tenant's active plans grant the
// channel.
type ErrChannelNotEnabled struct {
	TenantID int
	Channel  string
}

func (e *ErrChannelNotEnabled) Error() string {
	return fmt.Sprintf("channel %s is not enabled for tenant %d", e.Channel, e.TenantID)
}

func NewChannelNotEnabled(tenantID int, channel string) error {
	return &ErrChannelNotEnabled{TenantID: tenantID, Channel: channel}
}

// ErrQuotaExceeded means the tenant has used up its monthly quota on the
// channel.
type ErrQuotaExceeded struct {
	TenantID int
	Channel  string
	Quota    int
}

func (e *ErrQuotaExceeded) Error() string {
	return fmt.Sprintf("quota of %d exceeded for tenant %d on channel %s", e.Quota, e.TenantID, e.Channel)
}

func NewQuotaExceeded(tenantID int, channel string, quota int) error {
	return &ErrQuotaExceeded{TenantID: tenantID, Channel: channel, Quota: quota}
}
