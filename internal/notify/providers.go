// internal/notify/providers.go
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// postJSON issues one provider API call. The ctx and the client's own
// timeout both bound the call; an expired deadline surfaces as a transient
// failure at the call sites.
func postJSON(ctx context.Context, client *http.Client, url string, headers map[string]string, payload any) (int, []byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return 0, nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return resp.StatusCode, nil, err
	}
	return resp.StatusCode, respBody, nil
}

// classifyStatus turns a provider HTTP status into a classified dispatch
// error. Rejected credentials are a configuration problem; everything else
// is the provider's fault and retryable.
func classifyStatus(provider string, status int, body []byte) error {
	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		return NewConfigError(fmt.Sprintf("%s rejected credentials (status %d)", provider, status))
	}
	return NewTransientError(fmt.Errorf("%s returned status %d: %s", provider, status, body))
}
