// Package sms delivers notifications through Twilio's REST API.
package sms

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"notifyd/internal/notification"
)

const (
	defaultBaseURL = "https://api.twilio.com"

	// Twilio rejects bodies over 1600 characters.
	maxBodyLen = 1600
)

var phoneRe = regexp.MustCompile(`^\+[1-9][0-9]{7,14}$`)

type Config struct {
	AccountSID string
	AuthToken  string
	FromNumber string
}

type Provider struct {
	cfg     Config
	http    *http.Client
	baseURL string
}

func New(cfg Config) *Provider {
	return &Provider{cfg: cfg, http: &http.Client{}, baseURL: defaultBaseURL}
}

func (p *Provider) Name() string { return notification.ChannelSMS }

func (p *Provider) Reachable(rcpt notification.Recipient) bool {
	return phoneRe.MatchString(strings.TrimSpace(rcpt.Phone))
}

func (p *Provider) ValidateConfig(ctx context.Context) error {
	_ = ctx
	if strings.TrimSpace(p.cfg.AccountSID) == "" || strings.TrimSpace(p.cfg.AuthToken) == "" {
		return notification.Errorf(notification.KindConfig, "sms: account credentials missing")
	}
	if !phoneRe.MatchString(p.cfg.FromNumber) {
		return notification.Errorf(notification.KindConfig, "sms: invalid from number %q", p.cfg.FromNumber)
	}
	return nil
}

func (p *Provider) Send(ctx context.Context, rcpt notification.Recipient, msg notification.Rendered) notification.AttemptResult {
	if !p.Reachable(rcpt) {
		return notification.AttemptResult{
			Channel: p.Name(),
			Message: "recipient has no valid phone number",
			Err:     notification.Errorf(notification.KindUnreachable, "sms: no phone number for recipient %s", rcpt.ID),
		}
	}

	sid, err := p.deliver(ctx, strings.TrimSpace(rcpt.Phone), msg)
	if err != nil {
		return notification.AttemptResult{
			Channel: p.Name(),
			Message: "sms delivery failed",
			Err:     err,
		}
	}
	return notification.AttemptResult{
		Success: true,
		Channel: p.Name(),
		Message: fmt.Sprintf("sms sent to %s (message sid %s)", rcpt.Phone, sid),
	}
}

func (p *Provider) deliver(ctx context.Context, to string, msg notification.Rendered) (string, error) {
	body := msg.Body
	if msg.Subject != "" {
		body = msg.Subject + "\n" + body
	}
	if len(body) > maxBodyLen {
		body = body[:maxBodyLen]
	}

	form := url.Values{}
	form.Set("To", to)
	form.Set("From", p.cfg.FromNumber)
	form.Set("Body", body)

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", p.baseURL, p.cfg.AccountSID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", notification.E(notification.KindSend, err)
	}
	req.SetBasicAuth(p.cfg.AccountSID, p.cfg.AuthToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.http.Do(req)
	if err != nil {
		return "", classifyTransport(err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode == http.StatusCreated {
		var out struct {
			SID string `json:"sid"`
		}
		_ = json.Unmarshal(raw, &out)
		return out.SID, nil
	}
	return "", classifyAPI(resp.StatusCode, raw)
}

func classifyTransport(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return notification.E(notification.KindTimeout, err)
	}
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return notification.E(notification.KindTimeout, err)
	}
	return notification.E(notification.KindSend, err)
}

func classifyAPI(status int, raw []byte) error {
	var apiErr struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	}
	_ = json.Unmarshal(raw, &apiErr)
	detail := apiErr.Message
	if detail == "" {
		detail = strings.TrimSpace(string(raw))
	}

	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return notification.Errorf(notification.KindAuth, "sms: api rejected credentials (%d): %s", status, detail)
	case status == http.StatusTooManyRequests:
		return notification.Errorf(notification.KindRateLimit, "sms: rate limited (%d): %s", status, detail)
	// 21211: invalid 'To' number, 21614: 'To' not a valid mobile number.
	case apiErr.Code == 21211 || apiErr.Code == 21614:
		return notification.Errorf(notification.KindUnreachable, "sms: api error %d: %s", apiErr.Code, detail)
	default:
		return notification.Errorf(notification.KindSend, "sms: api error (%d): %s", status, detail)
	}
}
