package sender

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/aloonj/reefnotify/internal/domain"
)

// sendRequest is the JSON body posted to the external delivery service.
type sendRequest struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// sendResponse maps the delivery service's 202 Accepted response body.
type sendResponse struct {
	MessageID string `json:"messageId"`
	Status    string `json:"status"`
}

// WebhookSender delivers notifications by POSTing them to an HTTP endpoint.
// The base URL is injected from config so tests can point to a local mock.
type WebhookSender struct {
	baseURL    string
	httpClient *http.Client
}

func NewWebhookSender(baseURL string, timeout time.Duration) *WebhookSender {
	return &WebhookSender{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Send posts the job to the configured webhook URL and expects a
// 202 Accepted response with a JSON body containing messageId.
//
// 4xx responses other than 408 and 429 mean the content or recipient was
// rejected outright; those come back as PermanentError so the dispatcher
// does not burn retries on them.
func (s *WebhookSender) Send(ctx context.Context, t domain.JobType, payload json.RawMessage) (*Result, error) {
	body, err := json.Marshal(sendRequest{Type: string(t), Payload: payload})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusAccepted:
		// fall through to decode
	case resp.StatusCode >= 400 && resp.StatusCode < 500 &&
		resp.StatusCode != http.StatusRequestTimeout &&
		resp.StatusCode != http.StatusTooManyRequests:
		return nil, &PermanentError{Reason: fmt.Sprintf("delivery rejected with status %d", resp.StatusCode)}
	default:
		return nil, fmt.Errorf("unexpected delivery status: %d", resp.StatusCode)
	}

	var sendResp sendResponse
	if err := json.NewDecoder(resp.Body).Decode(&sendResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	return &Result{MessageID: sendResp.MessageID}, nil
}

// compile-time check that WebhookSender implements Sender
var _ Sender = (*WebhookSender)(nil)
