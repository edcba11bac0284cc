// Package telegram delivers notifications through the Telegram Bot API.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	tele "gopkg.in/telebot.v4"

	"notifyd/internal/notification"
)

// Telegram caps message text at 4096 characters.
const textLimit = 4096

type Config struct {
	Token   string
	Timeout time.Duration
}

type Provider struct {
	cfg Config

	// The bot is created lazily: tele.NewBot performs a getMe round trip,
	// which belongs in ValidateConfig / first send, not in construction.
	mu  sync.Mutex
	bot *tele.Bot
}

func New(cfg Config) *Provider {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Provider{cfg: cfg}
}

func (p *Provider) Name() string { return notification.ChannelTelegram }

func (p *Provider) Reachable(rcpt notification.Recipient) bool {
	id := strings.TrimSpace(rcpt.TelegramChatID)
	if id == "" {
		return false
	}
	_, err := strconv.ParseInt(id, 10, 64)
	return err == nil
}

// ValidateConfig verifies the bot token against the API (getMe).
func (p *Provider) ValidateConfig(ctx context.Context) error {
	_ = ctx
	if strings.TrimSpace(p.cfg.Token) == "" {
		return notification.Errorf(notification.KindConfig, "telegram: bot token is empty")
	}
	if _, err := p.ensureBot(); err != nil {
		return err
	}
	return nil
}

func (p *Provider) ensureBot() (*tele.Bot, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.bot != nil {
		return p.bot, nil
	}
	b, err := tele.NewBot(tele.Settings{
		Token:  p.cfg.Token,
		Client: &http.Client{Timeout: p.cfg.Timeout},
	})
	if err != nil {
		return nil, classify(err)
	}
	p.bot = b
	return b, nil
}

func (p *Provider) Send(ctx context.Context, rcpt notification.Recipient, msg notification.Rendered) notification.AttemptResult {
	fail := func(message string, err error) notification.AttemptResult {
		return notification.AttemptResult{Channel: p.Name(), Message: message, Err: err}
	}

	if !p.Reachable(rcpt) {
		return fail("recipient has no telegram chat id",
			notification.Errorf(notification.KindUnreachable, "telegram: no chat id for recipient %s", rcpt.ID))
	}
	if err := ctx.Err(); err != nil {
		return fail("telegram delivery cancelled", notification.E(notification.KindTimeout, err))
	}

	bot, err := p.ensureBot()
	if err != nil {
		return fail("telegram bot unavailable", err)
	}

	chatID, _ := strconv.ParseInt(strings.TrimSpace(rcpt.TelegramChatID), 10, 64)
	m, err := bot.Send(&tele.Chat{ID: chatID}, format(msg), &tele.SendOptions{
		ParseMode:             tele.ModeMarkdown,
		DisableWebPagePreview: true,
	})
	if err != nil {
		return fail("telegram delivery failed", classify(err))
	}
	return notification.AttemptResult{
		Success: true,
		Channel: p.Name(),
		Message: fmt.Sprintf("telegram message %d sent to chat %d", m.ID, chatID),
	}
}

// format merges subject and body into one Telegram message, subject bolded.
func format(msg notification.Rendered) string {
	text := msg.Body
	if msg.Subject != "" {
		text = "*" + msg.Subject + "*\n\n" + msg.Body
	}
	rs := []rune(text)
	if len(rs) > textLimit {
		text = string(rs[:textLimit-3]) + "..."
	}
	return text
}

func classify(err error) error {
	if err == nil {
		return nil
	}
	var flood tele.FloodError
	if errors.As(err, &flood) {
		return notification.E(notification.KindRateLimit, err)
	}
	var apiErr *tele.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case http.StatusUnauthorized:
			return notification.E(notification.KindAuth, err)
		case http.StatusBadRequest:
			if strings.Contains(strings.ToLower(apiErr.Description), "chat not found") {
				return notification.E(notification.KindUnreachable, err)
			}
		}
		return notification.E(notification.KindSend, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return notification.E(notification.KindTimeout, err)
	}
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return notification.E(notification.KindTimeout, err)
	}
	return notification.E(notification.KindSend, err)
}
