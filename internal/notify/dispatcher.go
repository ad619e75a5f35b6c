// internal/notify/dispatcher.go
package notify

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/unclebandit/renewcast-backend/internal/model"
)

// Message is a rendered, ready-to-send notification.
type Message struct {
	Recipient string
	Body      string
}

// Sender delivers one message through one external provider and returns
// the provider-assigned message identifier.
type Sender interface {
	Send(ctx context.Context, msg Message) (string, error)
}

// Dispatcher routes a job to the sender for its channel. Senders are
// injected at construction so tests can substitute fakes.
type Dispatcher struct {
	senders map[model.Channel]Sender
	logger  zerolog.Logger
}

func NewDispatcher(email, sms, whatsapp Sender, logger zerolog.Logger) *Dispatcher {
	senders := map[model.Channel]Sender{}
	if email != nil {
		senders[model.ChannelEmail] = email
	}
	if sms != nil {
		senders[model.ChannelSMS] = sms
	}
	if whatsapp != nil {
		senders[model.ChannelWhatsApp] = whatsapp
	}
	return &Dispatcher{senders: senders, logger: logger}
}

// Dispatch sends the job's rendered body to its recipient. Failures come
// back classified: missing recipient and missing sender configuration are
// not retryable, provider errors are.
func (d *Dispatcher) Dispatch(ctx context.Context, job *model.Job, body string) (string, error) {
	if job.Recipient == "" {
		return "", NewMissingContactError(string(job.Channel))
	}

	sender, ok := d.senders[job.Channel]
	if !ok {
		return "", NewConfigError("no sender configured for channel " + string(job.Channel))
	}

	providerMessageID, err := sender.Send(ctx, Message{Recipient: job.Recipient, Body: body})
	if err != nil {
		d.logger.Warn().
			Int("job_id", job.ID).
			Str("channel", string(job.Channel)).
			Err(err).
			Msg("dispatch failed")
		return "", err
	}

	d.logger.Info().
		Int("job_id", job.ID).
		Str("channel", string(job.Channel)).
		Str("provider_message_id", providerMessageID).
		Msg("dispatched")
	return providerMessageID, nil
}
