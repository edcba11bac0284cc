package email

import (
	"context"
	"net/textproto"
	"strings"
	"testing"

	"notifyd/internal/notification"
)

func TestReachable(t *testing.T) {
	p := New(Config{})
	tests := []struct {
		email string
		want  bool
	}{
		{"user@example.com", true},
		{"first.last@sub.example.org", true},
		{"", false},
		{"   ", false},
		{"not-an-address", false},
		{"user@", false},
		{"Alice <user@example.com>", false}, // display names are not bare addresses
	}
	for _, tc := range tests {
		got := p.Reachable(notification.Recipient{Email: tc.email})
		if got != tc.want {
			t.Fatalf("Reachable(%q) = %v, want %v", tc.email, got, tc.want)
		}
	}
}

func TestValidateConfig(t *testing.T) {
	valid := Config{Host: "smtp.example.com", Username: "u", Password: "p", From: "noreply@example.com"}

	if err := New(valid).ValidateConfig(context.Background()); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	broken := []Config{
		{Username: "u", Password: "p", From: "noreply@example.com"},                          // no host
		{Host: "h", Port: -1, Username: "u", Password: "p", From: "noreply@example.com"},     // bad port
		{Host: "h", Username: "u", Password: "p", From: "nope"},                              // bad from
		{Host: "h", From: "noreply@example.com"},                                             // no credentials
	}
	for i, cfg := range broken {
		err := New(cfg).ValidateConfig(context.Background())
		if err == nil {
			t.Fatalf("broken config %d accepted", i)
		}
		if notification.KindOf(err) != notification.KindConfig {
			t.Fatalf("broken config %d: kind = %v, want KindConfig", i, notification.KindOf(err))
		}
	}
}

func TestDefaultPort(t *testing.T) {
	p := New(Config{Host: "h", Username: "u", Password: "p", From: "noreply@example.com"})
	if p.cfg.Port != 587 {
		t.Fatalf("default port = %d, want 587", p.cfg.Port)
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want notification.Kind
	}{
		{"auth rejected", &textproto.Error{Code: 535, Msg: "authentication failed"}, notification.KindAuth},
		{"mailbox unavailable", &textproto.Error{Code: 550, Msg: "no such user"}, notification.KindUnreachable},
		{"user not local", &textproto.Error{Code: 551, Msg: "user not local"}, notification.KindUnreachable},
		{"server error", &textproto.Error{Code: 451, Msg: "try again later"}, notification.KindSend},
		{"deadline", context.DeadlineExceeded, notification.KindTimeout},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := notification.KindOf(classify(tc.err)); got != tc.want {
				t.Fatalf("kind = %v, want %v", got, tc.want)
			}
		})
	}
	// already-classified errors pass through untouched
	pre := notification.Errorf(notification.KindConfig, "no starttls")
	if got := classify(pre); got != pre {
		t.Fatalf("classified error was re-wrapped")
	}
}

func TestSendUnreachableRecipient(t *testing.T) {
	p := New(Config{Host: "h", Username: "u", Password: "p", From: "noreply@example.com"})
	res := p.Send(context.Background(), notification.Recipient{ID: "u1"}, notification.Rendered{Subject: "s", Body: "b"})
	if res.Success {
		t.Fatalf("expected failure")
	}
	if notification.KindOf(res.Err) != notification.KindUnreachable {
		t.Fatalf("kind = %v, want KindUnreachable", notification.KindOf(res.Err))
	}
}

func TestCompose(t *testing.T) {
	raw := string(compose("from@example.com", "to@example.com",
		notification.Rendered{Subject: "multi\nline subject", Body: "body text"}))

	if !strings.Contains(raw, "From: from@example.com\r\n") {
		t.Fatalf("missing From header:\n%s", raw)
	}
	if !strings.Contains(raw, "Subject: multi line subject\r\n") {
		t.Fatalf("subject newlines must be flattened:\n%s", raw)
	}
	if !strings.HasSuffix(raw, "\r\n\r\nbody text\r\n") && !strings.Contains(raw, "\r\n\r\nbody text\r\n") {
		t.Fatalf("missing header/body separation:\n%s", raw)
	}
}
