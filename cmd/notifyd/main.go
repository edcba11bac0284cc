package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"notifyd/internal/app"
	"notifyd/internal/delivery"
	"notifyd/internal/notification"
)

func main() {
	var (
		cfgPath  string
		status   bool
		sendBody string
		subject  string
		to       string
		strategy string
		history  int
	)
	flag.StringVar(&cfgPath, "config", "./config.yaml", "path to config file (yaml or json)")
	flag.BoolVar(&status, "status", false, "validate every configured provider, print status, exit")
	flag.StringVar(&sendBody, "send", "", "one-shot: send this body to -to and exit")
	flag.StringVar(&subject, "subject", "notifyd test", "subject for -send")
	flag.StringVar(&to, "to", "", "recipient for -send, e.g. \"id=ops,email=ops@example.com,phone=+15551234567,telegram=12345\"")
	flag.StringVar(&strategy, "strategy", "", "delivery strategy for -send: first_success, try_all or fail_fast")
	flag.IntVar(&history, "history", 0, "one-shot: print the last N delivery records and exit")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := app.New(cfgPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}

	switch {
	case status:
		printJSON(a.Delivery().Status(ctx))
		return
	case history > 0:
		recs, err := a.History(ctx, history)
		if err != nil {
			fmt.Fprintln(os.Stderr, "history:", err)
			os.Exit(1)
		}
		printJSON(recs)
		return
	case sendBody != "":
		if err := oneShotSend(ctx, a.Delivery(), to, subject, sendBody, strategy); err != nil {
			fmt.Fprintln(os.Stderr, "send:", err)
			os.Exit(1)
		}
		return
	}

	if err := a.Start(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "fatal start:", err)
		os.Exit(1)
	}

	<-ctx.Done()
	_ = a.Stop(context.Background())
}

func oneShotSend(ctx context.Context, d *delivery.Service, to, subject, body, strategy string) error {
	rcpt, err := parseRecipient(to)
	if err != nil {
		return err
	}
	strat, err := delivery.ParseStrategy(strategy)
	if err != nil {
		return err
	}

	report, err := d.Send(ctx, rcpt, notification.Message{Subject: subject, Body: body},
		delivery.Options{Strategy: strat})
	if err != nil {
		return err
	}
	printJSON(report)
	if !report.Success {
		os.Exit(2)
	}
	return nil
}

// parseRecipient turns "key=value,key=value" into a Recipient. Keys: id,
// name, email, phone, telegram.
func parseRecipient(spec string) (notification.Recipient, error) {
	r := notification.Recipient{ID: "cli"}
	if strings.TrimSpace(spec) == "" {
		return r, fmt.Errorf("-to is required with -send")
	}
	for _, part := range strings.Split(spec, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			return r, fmt.Errorf("bad -to part %q, want key=value", part)
		}
		v = strings.TrimSpace(v)
		switch strings.ToLower(strings.TrimSpace(k)) {
		case "id":
			r.ID = v
		case "name":
			r.Name = v
		case "email":
			r.Email = v
		case "phone":
			r.Phone = v
		case "telegram":
			r.TelegramChatID = v
		default:
			return r, fmt.Errorf("unknown -to key %q", k)
		}
	}
	return r, nil
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}
