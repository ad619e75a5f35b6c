// internal/model/channel.go
package model

// Channel is a messaging modality. Each channel is backed by exactly one
// external provider.
type Channel string

const (
	ChannelEmail    Channel = "email"
	ChannelSMS      Channel = "sms"
	ChannelWhatsApp Channel = "whatsapp"
)

// AllChannels lists every channel the system can dispatch on.
var AllChannels = []Channel{ChannelEmail, ChannelSMS, ChannelWhatsApp}

func (c Channel) Valid() bool {
	switch c {
	case ChannelEmail, ChannelSMS, ChannelWhatsApp:
		return true
	}
	return false
}
