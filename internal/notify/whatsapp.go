// internal/notify/whatsapp.go
package notify

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/unclebandit/renewcast-backend/internal/config"
)

// WhatsAppSender talks to the WhatsApp business messaging API.
type WhatsAppSender struct {
	cfg    config.WhatsAppProviderConfig
	client *http.Client
}

func NewWhatsAppSender(cfg config.WhatsAppProviderConfig, client *http.Client) *WhatsAppSender {
	return &WhatsAppSender{cfg: cfg, client: client}
}

func (s *WhatsAppSender) Send(ctx context.Context, msg Message) (string, error) {
	if s.cfg.BaseURL == "" || s.cfg.AuthToken == "" {
		return "", NewConfigError("whatsapp provider credentials not configured")
	}
	if s.cfg.FromNumber == "" {
		return "", NewConfigError("whatsapp sender number not configured")
	}

	payload := map[string]string{
		"from": s.cfg.FromNumber,
		"to":   msg.Recipient,
		"type": "text",
		"text": msg.Body,
	}
	headers := map[string]string{"Authorization": "Bearer " + s.cfg.AuthToken}

	status, respBody, err := postJSON(ctx, s.client, s.cfg.BaseURL+"/messages", headers, payload)
	if err != nil {
		return "", NewTransientError(err)
	}
	if status < 200 || status >= 300 {
		return "", classifyStatus("whatsapp provider", status, respBody)
	}

	var resp struct {
		MessageID string `json:"message_id"`
	}
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return "", NewTransientError(err)
	}
	return resp.MessageID, nil
}

var _ Sender = (*WhatsAppSender)(nil)
