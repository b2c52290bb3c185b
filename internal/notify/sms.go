package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// SMSGatewayConfig holds the settings for the HTTP SMS gateway sender.
type SMSGatewayConfig struct {
	URL   string // gateway endpoint accepting {"to","text"} JSON
	Token string // bearer token, optional
}

// IsConfigured returns true if a gateway URL is set
func (c SMSGatewayConfig) IsConfigured() bool {
	return c.URL != ""
}

// HTTPSMSSender sends text messages through a JSON HTTP gateway.
type HTTPSMSSender struct {
	config SMSGatewayConfig
	client *http.Client
}

// NewHTTPSMSSender creates a new HTTPSMSSender
func NewHTTPSMSSender(config SMSGatewayConfig) *HTTPSMSSender {
	return &HTTPSMSSender{
		config: config,
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

type smsRequest struct {
	To   string `json:"to"`
	Text string `json:"text"`
}

type smsResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// SendSMS posts one message to the gateway. The per-attempt deadline comes
// from ctx; the client timeout is only a backstop.
func (s *HTTPSMSSender) SendSMS(ctx context.Context, to, text string) (*SendResult, error) {
	if !s.config.IsConfigured() {
		return nil, ErrNotConfigured
	}
	if to == "" {
		return nil, fmt.Errorf("recipient has no phone number")
	}

	payload, err := json.Marshal(smsRequest{To: to, Text: text})
	if err != nil {
		return nil, fmt.Errorf("failed to encode sms request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.URL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build sms request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.config.Token != "" {
		req.Header.Set("Authorization", "Bearer "+s.config.Token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, Transient(fmt.Errorf("sms gateway unreachable: %w", err))
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 500:
		return nil, Transient(fmt.Errorf("sms gateway returned %d", resp.StatusCode))
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, Transient(fmt.Errorf("sms gateway rate limited"))
	case resp.StatusCode >= 400:
		return nil, fmt.Errorf("sms gateway rejected message: status %d", resp.StatusCode)
	}

	var body smsResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		// The message was accepted; a malformed body only loses the
		// provider ID.
		return &SendResult{}, nil
	}

	return &SendResult{
		ProviderID: body.ID,
		Delivered:  body.Status == "delivered",
	}, nil
}
