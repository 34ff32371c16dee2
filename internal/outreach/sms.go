package outreach

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultTwilioBaseURL is the Twilio REST API root
const DefaultTwilioBaseURL = "https://api.twilio.com"

// TwilioConfig holds Twilio credentials for outgoing SMS
type TwilioConfig struct {
	AccountSID string `mapstructure:"account_sid"`
	AuthToken  string `mapstructure:"auth_token"`
	FromNumber string `mapstructure:"from_number"`
	BaseURL    string `mapstructure:"base_url"`
}

// Configured reports whether enough settings are present to send SMS
func (c TwilioConfig) Configured() bool {
	return c.AccountSID != "" && c.AuthToken != "" && c.FromNumber != ""
}

// TwilioSender sends SMS through the Twilio Messages API
type TwilioSender struct {
	cfg        TwilioConfig
	httpClient *http.Client
}

type twilioMessage struct {
	SID     string `json:"sid"`
	Status  string `json:"status"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// NewTwilioSender creates an SMS sender
func NewTwilioSender(cfg TwilioConfig) *TwilioSender {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultTwilioBaseURL
	}
	return &TwilioSender{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

// SendSMS sends body to the E.164 number to and returns the message SID
func (s *TwilioSender) SendSMS(ctx context.Context, to, body string) (string, error) {
	if !strings.HasPrefix(to, "+") {
		return "", fmt.Errorf("phone number %q is not in E.164 form", to)
	}

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json",
		strings.TrimRight(s.cfg.BaseURL, "/"), url.PathEscape(s.cfg.AccountSID))

	form := url.Values{}
	form.Set("To", to)
	form.Set("From", s.cfg.FromNumber)
	form.Set("Body", body)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.SetBasicAuth(s.cfg.AccountSID, s.cfg.AuthToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("twilio request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return "", fmt.Errorf("read twilio response: %w", err)
	}

	var msg twilioMessage
	if len(data) > 0 {
		if err := json.Unmarshal(data, &msg); err != nil && resp.StatusCode < 300 {
			return "", fmt.Errorf("decode twilio response: %w", err)
		}
	}

	if resp.StatusCode >= 300 {
		if msg.Message != "" {
			return "", fmt.Errorf("twilio error %d (status %d): %s", msg.Code, resp.StatusCode, msg.Message)
		}
		return "", fmt.Errorf("twilio error: status %d", resp.StatusCode)
	}
	if msg.SID == "" {
		return "", errors.New("twilio response has no message sid")
	}
	return msg.SID, nil
}
