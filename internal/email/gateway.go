// Package email implements the email channel gateway over SMTP.
package email

import (
	"context"
	"fmt"
	"net"
	"time"

	gomail "github.com/wneessen/go-mail"

	"engagement_backend/platform/config"
)

const (
	channelName    = "email"
	defaultSubject = "Update on your request"
)

// Gateway delivers follow-up messages via the configured SMTP server.
type Gateway struct {
	host      string
	port      int
	username  string
	password  string
	fromName  string
	fromEmail string
}

// NewGateway returns nil when SMTP is not configured, which disables the
// email channel.
func NewGateway(cfg config.SMTPConfig) *Gateway {
	if !cfg.IsSMTPEnabled() {
		return nil
	}
	return &Gateway{
		host:      cfg.GetSMTPHost(),
		port:      cfg.GetSMTPPort(),
		username:  cfg.GetSMTPUsername(),
		password:  cfg.GetSMTPPassword(),
		fromName:  cfg.GetEmailFromName(),
		fromEmail: cfg.GetEmailFromAddress(),
	}
}

// Channel identifies this gateway to the dispatcher.
func (g *Gateway) Channel() string {
	return channelName
}

// Send delivers the body as a plain-text email and returns the generated
// message id.
func (g *Gateway) Send(ctx context.Context, destination, body string) (string, error) {
	msg := gomail.NewMsg()
	if err := msg.FromFormat(g.fromName, g.fromEmail); err != nil {
		return "", fmt.Errorf("smtp from: %w", err)
	}
	if err := msg.To(destination); err != nil {
		return "", fmt.Errorf("smtp to: %w", err)
	}
	msg.Subject(defaultSubject)
	msg.SetMessageID()
	msg.SetBodyString(gomail.TypeTextPlain, body)

	client, err := gomail.NewClient(g.host,
		gomail.WithPort(g.port),
		gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
		gomail.WithUsername(g.username),
		gomail.WithPassword(g.password),
		gomail.WithTLSPortPolicy(gomail.TLSOpportunistic),
		gomail.WithTimeout(15*time.Second),
		gomail.WithDialContextFunc(func(dctx context.Context, _ string, addr string) (net.Conn, error) {
			return (&net.Dialer{}).DialContext(dctx, "tcp4", addr)
		}),
	)
	if err != nil {
		return "", fmt.Errorf("smtp client: %w", err)
	}

	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return "", fmt.Errorf("smtp send: %w", err)
	}

	return msg.GetMessageID(), nil
}
