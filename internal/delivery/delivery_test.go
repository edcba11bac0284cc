package delivery

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"notifyd/internal/notification"
	"notifyd/internal/provider"
)

// fakeProvider scripts per-call outcomes and records call counts.
type fakeProvider struct {
	name      string
	reachable func(notification.Recipient) bool
	cfgErr    error

	mu      sync.Mutex
	calls   int
	script  []notification.AttemptResult // consumed per call; last entry repeats
	panicOn int                          // 1-based call index that panics; 0 disables
}

func (f *fakeProvider) Send(ctx context.Context, rcpt notification.Recipient, msg notification.Rendered) notification.AttemptResult {
	f.mu.Lock()
	f.calls++
	n := f.calls
	var res notification.AttemptResult
	if len(f.script) > 0 {
		i := n - 1
		if i >= len(f.script) {
			i = len(f.script) - 1
		}
		res = f.script[i]
	} else {
		res = notification.AttemptResult{Success: true}
	}
	f.mu.Unlock()

	if f.panicOn != 0 && n == f.panicOn {
		panic("scripted panic")
	}
	return res
}

func (f *fakeProvider) Reachable(rcpt notification.Recipient) bool {
	if f.reachable == nil {
		return true
	}
	return f.reachable(rcpt)
}

func (f *fakeProvider) ValidateConfig(ctx context.Context) error { return f.cfgErr }
func (f *fakeProvider) Name() string                             { return f.name }

func (f *fakeProvider) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func failure(kind notification.Kind, msg string) notification.AttemptResult {
	return notification.AttemptResult{Message: msg, Err: notification.Errorf(kind, "%s", msg)}
}

func newTestService(t *testing.T, cfg Config, ps ...provider.Provider) *Service {
	t.Helper()
	reg := provider.NewRegistry()
	order := make([]string, 0, len(ps))
	for _, p := range ps {
		if err := reg.Register(p); err != nil {
			t.Fatalf("register %s: %v", p.Name(), err)
		}
		order = append(order, p.Name())
	}
	if len(cfg.ProviderOrder) == 0 {
		cfg.ProviderOrder = order
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = time.Millisecond
	}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	s, err := New(reg, cfg, log, nil, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

var testRcpt = notification.Recipient{ID: "u1", Email: "u1@example.com"}
var testMsg = notification.Message{Subject: "hi", Body: "hello"}

func TestFirstSuccessStopsAtFirstDelivery(t *testing.T) {
	p1 := &fakeProvider{name: "email"}
	p2 := &fakeProvider{name: "sms"}
	s := newTestService(t, Config{}, p1, p2)

	rep, err := s.Send(context.Background(), testRcpt, testMsg, Options{Strategy: FirstSuccess})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if !rep.Success {
		t.Fatalf("expected success, got failure: %+v", rep)
	}
	if p1.callCount() != 1 || p2.callCount() != 0 {
		t.Fatalf("calls = %d/%d, want 1/0", p1.callCount(), p2.callCount())
	}
	if len(rep.SuccessfulProviders) != 1 || rep.SuccessfulProviders[0] != "email" {
		t.Fatalf("SuccessfulProviders = %v", rep.SuccessfulProviders)
	}
}

func TestFirstSuccessFallsThroughToNextProvider(t *testing.T) {
	p1 := &fakeProvider{name: "email", script: []notification.AttemptResult{
		failure(notification.KindUnreachable, "mailbox gone"),
	}}
	p2 := &fakeProvider{name: "sms"}
	s := newTestService(t, Config{MaxRetries: 3}, p1, p2)

	rep, err := s.Send(context.Background(), testRcpt, testMsg, Options{})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if !rep.Success {
		t.Fatalf("expected success via sms")
	}
	// permanent failure: exactly one email attempt, then sms
	if p1.callCount() != 1 {
		t.Fatalf("email calls = %d, want 1", p1.callCount())
	}
	if rep.TotalAttempts != 2 {
		t.Fatalf("TotalAttempts = %d, want 2", rep.TotalAttempts)
	}
}

func TestTryAllAttemptsEveryReachableProvider(t *testing.T) {
	p1 := &fakeProvider{name: "email"}
	p2 := &fakeProvider{name: "sms"}
	p3 := &fakeProvider{name: "telegram", script: []notification.AttemptResult{
		failure(notification.KindAuth, "bad token"),
	}}
	s := newTestService(t, Config{}, p1, p2, p3)

	rep, err := s.Send(context.Background(), testRcpt, testMsg, Options{Strategy: TryAll})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if !rep.Success {
		t.Fatalf("expected success: any provider delivering makes a TryAll run successful")
	}
	if p1.callCount() != 1 || p2.callCount() != 1 || p3.callCount() != 1 {
		t.Fatalf("calls = %d/%d/%d, want 1/1/1", p1.callCount(), p2.callCount(), p3.callCount())
	}
	if len(rep.SuccessfulProviders) != 2 {
		t.Fatalf("SuccessfulProviders = %v, want [email sms]", rep.SuccessfulProviders)
	}
}

func TestFirstSuccessSkipsUnreachableProviders(t *testing.T) {
	unreachable := func(notification.Recipient) bool { return false }
	p1 := &fakeProvider{name: "telegram", reachable: unreachable}
	p2 := &fakeProvider{name: "sms", reachable: unreachable}
	p3 := &fakeProvider{name: "email"}
	s := newTestService(t, Config{}, p1, p2, p3)

	rep, err := s.Send(context.Background(), testRcpt, testMsg, Options{Strategy: FirstSuccess})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if !rep.Success {
		t.Fatalf("expected success via email")
	}
	if rep.TotalAttempts != 1 {
		t.Fatalf("TotalAttempts = %d, want 1", rep.TotalAttempts)
	}
	if len(rep.SuccessfulProviders) != 1 || rep.SuccessfulProviders[0] != "email" {
		t.Fatalf("SuccessfulProviders = %v", rep.SuccessfulProviders)
	}
}

func TestTryAllCountsEveryAttempt(t *testing.T) {
	p1 := &fakeProvider{name: "email", script: []notification.AttemptResult{
		failure(notification.KindSend, "greylisted"),
	}}
	p2 := &fakeProvider{name: "sms"}
	p3 := &fakeProvider{name: "telegram"}
	s := newTestService(t, Config{MaxRetries: 2}, p1, p2, p3)

	rep, err := s.Send(context.Background(), testRcpt, testMsg, Options{Strategy: TryAll})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if !rep.Success {
		t.Fatalf("expected success")
	}
	// 2 email retries + 1 sms + 1 telegram
	if rep.TotalAttempts != 4 {
		t.Fatalf("TotalAttempts = %d, want 4", rep.TotalAttempts)
	}
	want := []string{"sms", "telegram"}
	if len(rep.SuccessfulProviders) != len(want) {
		t.Fatalf("SuccessfulProviders = %v, want %v", rep.SuccessfulProviders, want)
	}
	for i, w := range want {
		if rep.SuccessfulProviders[i] != w {
			t.Fatalf("SuccessfulProviders = %v, want %v", rep.SuccessfulProviders, want)
		}
	}
}

func TestFailFastStopsOnPermanentError(t *testing.T) {
	p1 := &fakeProvider{name: "email", script: []notification.AttemptResult{
		failure(notification.KindAuth, "bad credentials"),
	}}
	p2 := &fakeProvider{name: "sms"}
	s := newTestService(t, Config{MaxRetries: 3}, p1, p2)

	rep, err := s.Send(context.Background(), testRcpt, testMsg, Options{Strategy: FailFast})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if rep.Success {
		t.Fatalf("expected failure")
	}
	if rep.TotalAttempts != 1 {
		t.Fatalf("TotalAttempts = %d, want 1: permanent error ends the run", rep.TotalAttempts)
	}
	if p2.callCount() != 0 {
		t.Fatalf("sms attempted after fail_fast stop")
	}
}

func TestFailFastSkipsUnreachableProviders(t *testing.T) {
	p1 := &fakeProvider{name: "email", reachable: func(notification.Recipient) bool { return false }}
	p2 := &fakeProvider{name: "sms"}
	s := newTestService(t, Config{}, p1, p2)

	rep, err := s.Send(context.Background(), testRcpt, testMsg, Options{Strategy: FailFast})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if !rep.Success {
		t.Fatalf("unreachable provider must be skipped, not treated as a failure")
	}
	if p1.callCount() != 0 {
		t.Fatalf("unreachable provider was called %d times", p1.callCount())
	}
}

func TestFailFastStopsOnExhaustedRetryBudget(t *testing.T) {
	p1 := &fakeProvider{name: "email", script: []notification.AttemptResult{
		failure(notification.KindSend, "smtp down"),
	}}
	p2 := &fakeProvider{name: "sms"}
	s := newTestService(t, Config{MaxRetries: 2}, p1, p2)

	rep, err := s.Send(context.Background(), testRcpt, testMsg, Options{Strategy: FailFast})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if rep.Success {
		t.Fatalf("expected failure")
	}
	if p1.callCount() != 2 {
		t.Fatalf("email calls = %d, want full retry budget of 2", p1.callCount())
	}
	if p2.callCount() != 0 {
		t.Fatalf("sms must not be attempted after fail_fast stop, got %d calls", p2.callCount())
	}
}

func TestFailFastSuccessThenFailureIsRunFailure(t *testing.T) {
	p1 := &fakeProvider{name: "email"}
	p2 := &fakeProvider{name: "sms", script: []notification.AttemptResult{
		failure(notification.KindUnreachable, "bad number"),
	}}
	s := newTestService(t, Config{}, p1, p2)

	rep, err := s.Send(context.Background(), testRcpt, testMsg, Options{Strategy: FailFast})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if rep.Success {
		t.Fatalf("fail_fast run with a terminal provider failure must not be successful")
	}
	if len(rep.SuccessfulProviders) != 1 || rep.SuccessfulProviders[0] != "email" {
		t.Fatalf("SuccessfulProviders = %v", rep.SuccessfulProviders)
	}
}

func TestNoReachableChannel(t *testing.T) {
	unreachable := func(notification.Recipient) bool { return false }
	p1 := &fakeProvider{name: "email", reachable: unreachable}
	p2 := &fakeProvider{name: "sms", reachable: unreachable}
	s := newTestService(t, Config{}, p1, p2)

	rep, err := s.Send(context.Background(), testRcpt, testMsg, Options{})
	if err != nil {
		t.Fatalf("an unreachable recipient is a failed report, not an operation error: %v", err)
	}
	if rep.Success {
		t.Fatalf("expected failure")
	}
	if rep.FailureReason != ReasonNoReachableChannel {
		t.Fatalf("FailureReason = %q", rep.FailureReason)
	}
	if rep.TotalAttempts != 0 {
		t.Fatalf("TotalAttempts = %d, want 0", rep.TotalAttempts)
	}
}

func TestUnresolvedPlaceholderFailsBeforeAnySend(t *testing.T) {
	p1 := &fakeProvider{name: "email"}
	s := newTestService(t, Config{}, p1)

	_, err := s.Send(context.Background(), testRcpt,
		notification.Message{Subject: "hi", Body: "hello {missing}"}, Options{})
	if err == nil {
		t.Fatalf("expected error for unresolved placeholder")
	}
	if notification.KindOf(err) != notification.KindConfig {
		t.Fatalf("kind = %v, want KindConfig", notification.KindOf(err))
	}
	if p1.callCount() != 0 {
		t.Fatalf("provider was called %d times before template validation", p1.callCount())
	}
}

func TestUnknownStrategyRejected(t *testing.T) {
	s := newTestService(t, Config{}, &fakeProvider{name: "email"})
	if _, err := s.Send(context.Background(), testRcpt, testMsg, Options{Strategy: "weird"}); err == nil {
		t.Fatalf("expected error for unknown strategy")
	}
}

func TestPermanentErrorNotRetried(t *testing.T) {
	p1 := &fakeProvider{name: "email", script: []notification.AttemptResult{
		failure(notification.KindAuth, "bad credentials"),
	}}
	s := newTestService(t, Config{MaxRetries: 5}, p1)

	rep, err := s.Send(context.Background(), testRcpt, testMsg, Options{})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if rep.Success {
		t.Fatalf("expected failure")
	}
	if p1.callCount() != 1 {
		t.Fatalf("calls = %d, want 1: auth errors must not burn retry budget", p1.callCount())
	}
}

func TestTransientErrorRetriedUntilBudget(t *testing.T) {
	p1 := &fakeProvider{name: "email", script: []notification.AttemptResult{
		failure(notification.KindRateLimit, "slow down"),
	}}
	s := newTestService(t, Config{MaxRetries: 3}, p1)

	rep, err := s.Send(context.Background(), testRcpt, testMsg, Options{})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if p1.callCount() != 3 {
		t.Fatalf("calls = %d, want 3", p1.callCount())
	}
	// attempt numbering is 1-based per provider
	for i, a := range rep.Attempts {
		if a.Number != i+1 {
			t.Fatalf("attempt %d has Number %d", i, a.Number)
		}
	}
}

func TestTransientThenSuccessWithinBudget(t *testing.T) {
	p1 := &fakeProvider{name: "email", script: []notification.AttemptResult{
		failure(notification.KindSend, "hiccup"),
		failure(notification.KindTimeout, "slow"),
		{Success: true},
	}}
	s := newTestService(t, Config{MaxRetries: 3}, p1)

	rep, err := s.Send(context.Background(), testRcpt, testMsg, Options{})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if !rep.Success {
		t.Fatalf("expected success on third attempt")
	}
	if rep.TotalAttempts != 3 {
		t.Fatalf("TotalAttempts = %d, want 3", rep.TotalAttempts)
	}
}

func TestProviderPanicIsTransientFailure(t *testing.T) {
	p1 := &fakeProvider{name: "email", panicOn: 1, script: []notification.AttemptResult{
		{Success: true},
	}}
	s := newTestService(t, Config{MaxRetries: 2}, p1)

	rep, err := s.Send(context.Background(), testRcpt, testMsg, Options{})
	if err != nil {
		t.Fatalf("panic must be contained, got error: %v", err)
	}
	if !rep.Success {
		t.Fatalf("expected success on retry after panic")
	}
	if p1.callCount() != 2 {
		t.Fatalf("calls = %d, want 2", p1.callCount())
	}
}

func TestRetryDelayHonored(t *testing.T) {
	p1 := &fakeProvider{name: "email", script: []notification.AttemptResult{
		failure(notification.KindSend, "busy"),
	}}
	delay := 30 * time.Millisecond
	s := newTestService(t, Config{MaxRetries: 3, RetryDelay: delay}, p1)

	start := time.Now()
	if _, err := s.Send(context.Background(), testRcpt, testMsg, Options{}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	// two waits between three attempts
	if took := time.Since(start); took < 2*delay {
		t.Fatalf("run took %v, want >= %v", took, 2*delay)
	}
}

func TestCancelledContextStopsRetrying(t *testing.T) {
	p1 := &fakeProvider{name: "email", script: []notification.AttemptResult{
		failure(notification.KindSend, "busy"),
	}}
	s := newTestService(t, Config{MaxRetries: 10, RetryDelay: time.Hour}, p1)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		rep, err := s.Send(ctx, testRcpt, testMsg, Options{})
		if err != nil {
			t.Errorf("Send: %v", err)
			return
		}
		if rep.Success {
			t.Errorf("expected failure after cancellation")
		}
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("Send did not return after context cancellation")
	}
	if p1.callCount() != 1 {
		t.Fatalf("calls = %d, want 1", p1.callCount())
	}
}

func TestStatus(t *testing.T) {
	tests := []struct {
		name    string
		errs    []error
		overall string
	}{
		{"all healthy", []error{nil, nil}, StatusHealthy},
		{"one failing", []error{nil, notification.Errorf(notification.KindConfig, "missing token")}, StatusDegraded},
		{"all failing", []error{
			notification.Errorf(notification.KindConfig, "no host"),
			notification.Errorf(notification.KindAuth, "bad token"),
		}, StatusUnavailable},
	}
	names := []string{"email", "sms"}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ps := make([]provider.Provider, len(tc.errs))
			for i, e := range tc.errs {
				ps[i] = &fakeProvider{name: names[i], cfgErr: e}
			}
			s := newTestService(t, Config{}, ps...)
			st := s.Status(context.Background())
			if st.Overall != tc.overall {
				t.Fatalf("Overall = %q, want %q", st.Overall, tc.overall)
			}
			if len(st.Providers) != len(tc.errs) {
				t.Fatalf("providers = %d, want %d", len(st.Providers), len(tc.errs))
			}
			for i, p := range st.Providers {
				wantAvail := tc.errs[i] == nil
				if p.Available != wantAvail {
					t.Fatalf("provider %s Available = %v", p.Channel, p.Available)
				}
			}
		})
	}
}

func TestApplyRejectsUnknownProviderOrder(t *testing.T) {
	s := newTestService(t, Config{}, &fakeProvider{name: "email"})
	if err := s.Apply(Config{ProviderOrder: []string{"email", "pager"}}); err == nil {
		t.Fatalf("expected error for unknown channel in provider order")
	}
}
