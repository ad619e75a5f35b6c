// internal/plan/catalog.go
package plan

import (
	"sort"

	"github.com/unclebandit/renewcast-backend/internal/model"
)

// Plan is a static subscription plan. Quotas are messages per calendar
// month on each channel the plan grants.
type Plan struct {
	ID         string
	Name       string
	PriceCents int
	Quotas     map[model.Channel]int
}

// Catalog resolves plan identifiers to quotas and entitlements. It is
// immutable after construction and safe for concurrent use.
type Catalog struct {
	plans map[string]Plan
}

func NewCatalog(plans ...Plan) *Catalog {
	m := make(map[string]Plan, len(plans))
	for _, p := range plans {
		m[p.ID] = p
	}
	return &Catalog{plans: m}
}

// Default returns the built-in plan table. Loaded once at process start;
// plans never change at runtime.
func Default() *Catalog {
	return NewCatalog(
		Plan{
			ID:         "starter",
			Name:       "Starter",
			PriceCents: 0,
			Quotas:     map[model.Channel]int{model.ChannelEmail: 200},
		},
		Plan{
			ID:         "business",
			Name:       "Business",
			PriceCents: 4900,
			Quotas: map[model.Channel]int{
				model.ChannelEmail: 2000,
				model.ChannelSMS:   500,
			},
		},
		Plan{
			ID:         "sms-addon",
			Name:       "SMS Add-on",
			PriceCents: 1500,
			Quotas:     map[model.Channel]int{model.ChannelSMS: 1000},
		},
		Plan{
			ID:         "whatsapp-addon",
			Name:       "WhatsApp Add-on",
			PriceCents: 2500,
			Quotas:     map[model.Channel]int{model.ChannelWhatsApp: 1000},
		},
	)
}

func (c *Catalog) Lookup(id string) (Plan, bool) {
	p, ok := c.plans[id]
	return p, ok
}

// QuotaFor sums the quotas every active plan grants on the channel. Plans
// combine: a bundle plus an add-on yields the sum of both. Unknown plan
// identifiers contribute nothing.
func (c *Catalog) QuotaFor(activePlans []string, channel model.Channel) int {
	total := 0
	for _, id := range activePlans {
		if p, ok := c.plans[id]; ok {
			total += p.Quotas[channel]
		}
	}
	return total
}

// EntitledChannels returns the channels the active plan set grants any
// quota on, in a stable order.
func (c *Catalog) EntitledChannels(activePlans []string) []model.Channel {
	entitled := []model.Channel{}
	for _, ch := range model.AllChannels {
		if c.QuotaFor(activePlans, ch) > 0 {
			entitled = append(entitled, ch)
		}
	}
	sort.Slice(entitled, func(i, j int) bool { return entitled[i] < entitled[j] })
	return entitled
}

// Entitled reports whether the active plan set grants the channel.
func (c *Catalog) Entitled(activePlans []string, channel model.Channel) bool {
	return c.QuotaFor(activePlans, channel) > 0
}
