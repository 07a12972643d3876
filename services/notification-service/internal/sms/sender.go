package sms

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

type Sender interface {
	Send(ctx context.Context, to, body string) (string, error)
	ProviderID() string
}

const DefaultTwilioURL = "https://api.twilio.com"

// TwilioSender posts to the Twilio Messages API with basic auth and a form
// body.
type TwilioSender struct {
	http       *resty.Client
	accountSID string
	from       string
}

type TwilioConfig struct {
	BaseURL    string
	AccountSID string
	AuthToken  string
	From       string
	Timeout    time.Duration
}

func NewTwilioSender(cfg TwilioConfig) *TwilioSender {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultTwilioURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &TwilioSender{
		http: resty.New().
			SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
			SetTimeout(cfg.Timeout).
			SetBasicAuth(cfg.AccountSID, cfg.AuthToken).
			SetRetryCount(2).
			SetRetryWaitTime(500 * time.Millisecond).
			AddRetryCondition(func(r *resty.Response, err error) bool {
				return err != nil || r.StatusCode() == 429 || r.StatusCode() >= 500
			}),
		accountSID: cfg.AccountSID,
		from:       cfg.From,
	}
}

func (s *TwilioSender) ProviderID() string { return "twilio" }

type twilioMessage struct {
	SID    string `json:"sid"`
	Status string `json:"status"`
}

type twilioError struct {
	Code     int    `json:"code"`
	Message  string `json:"message"`
	MoreInfo string `json:"more_info"`
}

// Send returns the Twilio message SID.
func (s *TwilioSender) Send(ctx context.Context, to, body string) (string, error) {
	var out twilioMessage
	var apiErr twilioError
	resp, err := s.http.R().
		SetContext(ctx).
		SetPathParam("sid", s.accountSID).
		SetFormData(map[string]string{"To": to, "From": s.from, "Body": body}).
		SetResult(&out).
		SetError(&apiErr).
		Post("/2010-04-01/Accounts/{sid}/Messages.json")
	if err != nil {
		return "", fmt.Errorf("twilio: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("twilio %d (code %d): %s", resp.StatusCode(), apiErr.Code, apiErr.Message)
	}
	if out.SID == "" {
		return "", fmt.Errorf("twilio: response without sid")
	}
	return out.SID, nil
}

// NoopSender accepts every message. It is the local default.
type NoopSender struct{}

func NewNoopSender() *NoopSender {
	return &NoopSender{}
}

func (s *NoopSender) ProviderID() string { return "sms-noop" }

func (s *NoopSender) Send(_ context.Context, _ string, _ string) (string, error) {
	return "noop", nil
}
