// internal/notify/sms.go
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/unclebandit/renewcast-backend/internal/config"
)

// SMSSender talks to the SMS gateway's REST API.
type SMSSender struct {
	cfg    config.SMSProviderConfig
	client *http.Client
}

func NewSMSSender(cfg config.SMSProviderConfig, client *http.Client) *SMSSender {
	return &SMSSender{cfg: cfg, client: client}
}

func (s *SMSSender) Send(ctx context.Context, msg Message) (string, error) {
	if s.cfg.BaseURL == "" || s.cfg.AccountID == "" || s.cfg.AuthToken == "" {
		return "", NewConfigError("sms provider credentials not configured")
	}
	if s.cfg.FromNumber == "" {
		return "", NewConfigError("sms sender number not configured")
	}

	payload := map[string]string{
		"from": s.cfg.FromNumber,
		"to":   msg.Recipient,
		"text": msg.Body,
	}
	headers := map[string]string{"Authorization": "Bearer " + s.cfg.AuthToken}

	url := fmt.Sprintf("%s/accounts/%s/messages", s.cfg.BaseURL, s.cfg.AccountID)
	status, respBody, err := postJSON(ctx, s.client, url, headers, payload)
	if err != nil {
		return "", NewTransientError(err)
	}
	if status < 200 || status >= 300 {
		return "", classifyStatus("sms provider", status, respBody)
	}

	var resp struct {
		SID string `json:"sid"`
	}
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return "", NewTransientError(err)
	}
	return resp.SID, nil
}

var _ Sender = (*SMSSender)(nil)
