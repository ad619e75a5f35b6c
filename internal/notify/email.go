// internal/notify/email.go
package notify

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/unclebandit/renewcast-backend/internal/config"
)

// EmailSender talks to the transactional email provider's REST API.
type EmailSender struct {
	cfg    config.EmailProviderConfig
	client *http.Client
}

func NewEmailSender(cfg config.EmailProviderConfig, client *http.Client) *EmailSender {
	return &EmailSender{cfg: cfg, client: client}
}

func (s *EmailSender) Send(ctx context.Context, msg Message) (string, error) {
	if s.cfg.BaseURL == "" || s.cfg.APIKey == "" {
		return "", NewConfigError("email provider credentials not configured")
	}
	if s.cfg.FromAddress == "" {
		return "", NewConfigError("email sender address not configured")
	}

	payload := map[string]string{
		"from":    s.cfg.FromAddress,
		"to":      msg.Recipient,
		"subject": "Renewal reminder",
		"body":    msg.Body,
	}
	headers := map[string]string{"Authorization": "Bearer " + s.cfg.APIKey}

	status, respBody, err := postJSON(ctx, s.client, s.cfg.BaseURL+"/v1/messages", headers, payload)
	if err != nil {
		return "", NewTransientError(err)
	}
	if status < 200 || status >= 300 {
		return "", classifyStatus("email provider", status, respBody)
	}

	var resp struct {
		MessageID string `json:"message_id"`
	}
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return "", NewTransientError(err)
	}
	return resp.MessageID, nil
}

var _ Sender = (*EmailSender)(nil)
