// internal/model/channel_usage.go
package model

// ChannelUsage is the per-tenant, per-channel counter for one calendar
// month. Month is a "2006-01" key; rows are created on first use and never
// reset, a new month simply keys a new row.
type ChannelUsage struct {
	TenantID int     `db:"tenant_id" json:"tenant_id"`
	Channel  Channel `db:"channel" json:"channel"`
	Month    string  `db:"month" json:"month"`
	Used     int     `db:"used" json:"used"`
	Quota    int     `db:"quota" json:"quota"`
}
