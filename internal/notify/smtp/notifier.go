// Package smtp sends notifications through an SMTP relay.
package smtp

import (
	"context"
	"fmt"
	"net"
	"net/smtp"
	"strconv"

	"github.com/jordan-wright/email"

	"github.com/JakeFAU/assignment-webapp/internal/notify"
)

// Config addresses the relay.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// Notifier delivers notify.Message values as HTML email.
type Notifier struct {
	addr string
	auth smtp.Auth
	from string
	send func(e *email.Email, addr string, a smtp.Auth) error
}

// New constructs a Notifier. Auth is only used when Username is set.
func New(cfg Config) (*Notifier, error) {
	if cfg.Host == "" || cfg.From == "" {
		return nil, fmt.Errorf("smtp host and from address are required")
	}
	port := cfg.Port
	if port == 0 {
		port = 587
	}
	n := &Notifier{
		addr: net.JoinHostPort(cfg.Host, strconv.Itoa(port)),
		from: cfg.From,
		send: func(e *email.Email, addr string, a smtp.Auth) error { return e.Send(addr, a) },
	}
	if cfg.Username != "" {
		n.auth = smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)
	}
	return n, nil
}

// Send builds the email and hands it to the relay. The context bounds the wait.
func (n *Notifier) Send(ctx context.Context, msg notify.Message) error {
	if msg.To == "" {
		return fmt.Errorf("recipient is required")
	}
	e := email.NewEmail()
	e.From = n.from
	e.To = []string{msg.To}
	e.Subject = msg.Subject
	e.HTML = []byte(msg.HTML)

	done := make(chan error, 1)
	go func() { done <- n.send(e, n.addr, n.auth) }()
	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("smtp send to %s: %w", msg.To, err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("smtp send to %s: %w", msg.To, ctx.Err())
	}
}
