// Package email delivers notifications over SMTP.
package email

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/mail"
	"net/smtp"
	"net/textproto"
	"strconv"
	"strings"

	"notifyd/internal/notification"
)

type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	STARTTLS bool
}

type Provider struct {
	cfg Config
}

func New(cfg Config) *Provider {
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	return &Provider{cfg: cfg}
}

func (p *Provider) Name() string { return notification.ChannelEmail }

func (p *Provider) Reachable(rcpt notification.Recipient) bool {
	if strings.TrimSpace(rcpt.Email) == "" {
		return false
	}
	addr, err := mail.ParseAddress(rcpt.Email)
	return err == nil && addr.Address == rcpt.Email
}

// ValidateConfig checks settings statically; it does not dial the server, so
// status checks stay cheap and side-effect free.
func (p *Provider) ValidateConfig(ctx context.Context) error {
	_ = ctx
	if strings.TrimSpace(p.cfg.Host) == "" {
		return notification.Errorf(notification.KindConfig, "email: host is empty")
	}
	if p.cfg.Port <= 0 || p.cfg.Port > 65535 {
		return notification.Errorf(notification.KindConfig, "email: invalid port %d", p.cfg.Port)
	}
	if _, err := mail.ParseAddress(p.cfg.From); err != nil {
		return notification.Errorf(notification.KindConfig, "email: invalid from address %q", p.cfg.From)
	}
	if p.cfg.Username == "" || p.cfg.Password == "" {
		return notification.Errorf(notification.KindConfig, "email: username/password missing")
	}
	return nil
}

func (p *Provider) Send(ctx context.Context, rcpt notification.Recipient, msg notification.Rendered) notification.AttemptResult {
	fail := func(err error) notification.AttemptResult {
		return notification.AttemptResult{
			Channel: p.Name(),
			Message: "email delivery failed",
			Err:     classify(err),
		}
	}

	if !p.Reachable(rcpt) {
		return notification.AttemptResult{
			Channel: p.Name(),
			Message: "recipient has no valid email address",
			Err:     notification.Errorf(notification.KindUnreachable, "email: no address for recipient %s", rcpt.ID),
		}
	}

	if err := p.deliver(ctx, rcpt.Email, msg); err != nil {
		return fail(err)
	}
	return notification.AttemptResult{
		Success: true,
		Channel: p.Name(),
		Message: fmt.Sprintf("email sent to %s", rcpt.Email),
	}
}

func (p *Provider) deliver(ctx context.Context, to string, msg notification.Rendered) error {
	addr := net.JoinHostPort(p.cfg.Host, strconv.Itoa(p.cfg.Port))

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return err
	}
	defer conn.Close()
	if dl, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(dl)
	}

	c, err := smtp.NewClient(conn, p.cfg.Host)
	if err != nil {
		return err
	}
	defer c.Close()

	if p.cfg.STARTTLS {
		if ok, _ := c.Extension("STARTTLS"); !ok {
			return notification.Errorf(notification.KindConfig, "email: server %s does not support STARTTLS", p.cfg.Host)
		}
		if err := c.StartTLS(&tls.Config{ServerName: p.cfg.Host}); err != nil {
			return err
		}
	}

	if ok, _ := c.Extension("AUTH"); ok {
		auth := smtp.PlainAuth("", p.cfg.Username, p.cfg.Password, p.cfg.Host)
		if err := c.Auth(auth); err != nil {
			return err
		}
	}

	if err := c.Mail(p.cfg.From); err != nil {
		return err
	}
	if err := c.Rcpt(to); err != nil {
		return err
	}
	w, err := c.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(compose(p.cfg.From, to, msg)); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return c.Quit()
}

func compose(from, to string, msg notification.Rendered) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n", strings.ReplaceAll(msg.Subject, "\n", " "))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(msg.Body)
	b.WriteString("\r\n")
	return []byte(b.String())
}

// classify maps SMTP and transport errors onto the delivery error taxonomy.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var kerr *notification.Error
	if errors.As(err, &kerr) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return notification.E(notification.KindTimeout, err)
	}
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return notification.E(notification.KindTimeout, err)
	}
	var terr *textproto.Error
	if errors.As(err, &terr) {
		switch terr.Code {
		case 530, 534, 535, 538:
			return notification.E(notification.KindAuth, err)
		case 550, 551, 553:
			return notification.E(notification.KindUnreachable, err)
		}
	}
	return notification.E(notification.KindSend, err)
}
