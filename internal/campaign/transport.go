// Package campaign sends a bulk email campaign to stored leads under a
// daily cap, pacing sends and skipping recipients that fail.
package campaign

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/gomail.v2"

	"github.com/sells-group/prospector-cli/internal/config"
	"github.com/sells-group/prospector-cli/internal/model"
	"github.com/sells-group/prospector-cli/pkg/sendgrid"
)

// Address is a sender identity.
type Address struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

// Message is one outbound email.
type Message struct {
	From      Address
	To        []string
	ReplyTo   string
	Subject   string
	HTMLBody  string
	PlainBody string
}

// Transport delivers a message and reports the provider status code.
type Transport interface {
	Send(ctx context.Context, msg Message) (int, error)
}

// SendGridTransport delivers through the SendGrid v3 API.
type SendGridTransport struct {
	client sendgrid.Client
}

// NewSendGridTransport wraps a SendGrid client.
func NewSendGridTransport(c sendgrid.Client) *SendGridTransport {
	return &SendGridTransport{client: c}
}

func (t *SendGridTransport) Send(ctx context.Context, msg Message) (int, error) {
	mail := sendgrid.Mail{
		From:      sendgrid.Address{Email: msg.From.Email, Name: msg.From.Name},
		Subject:   msg.Subject,
		PlainText: msg.PlainBody,
		HTML:      msg.HTMLBody,
	}
	for _, to := range msg.To {
		mail.To = append(mail.To, sendgrid.Address{Email: to})
	}
	if msg.ReplyTo != "" {
		mail.ReplyTo = &sendgrid.Address{Email: msg.ReplyTo}
	}

	status, err := t.client.Send(ctx, mail)
	if errors.Is(err, sendgrid.ErrMissingAPIKey) {
		return status, &model.ConfigurationError{Msg: "campaign: sendgrid api key missing (set PROSPECTOR_SENDGRID_API_KEY)"}
	}
	if err != nil {
		return status, eris.Wrap(err, "campaign: sendgrid send")
	}
	return status, nil
}

// ErrNotConfigured is returned when the SMTP relay host is missing.
var ErrNotConfigured = &model.ConfigurationError{Msg: "campaign: smtp host missing (set PROSPECTOR_SMTP_HOST)"}

// SMTPTransport delivers through an SMTP relay using gomail.
type SMTPTransport struct {
	send func(m ...*gomail.Message) error
}

// NewSMTPTransport creates an SMTP transport from relay settings.
func NewSMTPTransport(cfg config.SMTPConfig) (*SMTPTransport, error) {
	if strings.TrimSpace(cfg.Host) == "" {
		return nil, ErrNotConfigured
	}
	port := cfg.Port
	if port == 0 {
		port = 587
	}
	d := gomail.NewDialer(cfg.Host, port, cfg.Username, cfg.Password)
	return &SMTPTransport{send: d.DialAndSend}, nil
}

// Send dials the relay for each message. gomail has no context support, so
// ctx is only checked before dialing.
func (t *SMTPTransport) Send(ctx context.Context, msg Message) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, eris.Wrap(err, "campaign: smtp send")
	}
	if err := t.send(buildMIME(msg)); err != nil {
		return 0, eris.Wrap(err, "campaign: smtp send")
	}
	return http.StatusAccepted, nil
}

func buildMIME(msg Message) *gomail.Message {
	m := gomail.NewMessage()
	m.SetAddressHeader("From", msg.From.Email, msg.From.Name)
	m.SetHeader("To", msg.To...)
	if msg.ReplyTo != "" {
		m.SetHeader("Reply-To", msg.ReplyTo)
	}
	m.SetHeader("Subject", msg.Subject)
	if msg.PlainBody != "" {
		m.SetBody("text/plain", msg.PlainBody)
		m.AddAlternative("text/html", msg.HTMLBody)
	} else {
		m.SetBody("text/html", msg.HTMLBody)
	}
	return m
}

// NewTransport builds the transport named by cfg.Campaign.Transport.
func NewTransport(cfg *config.Config) (Transport, error) {
	switch cfg.Campaign.Transport {
	case "sendgrid", "":
		var opts []sendgrid.Option
		if cfg.SendGrid.BaseURL != "" {
			opts = append(opts, sendgrid.WithBaseURL(cfg.SendGrid.BaseURL))
		}
		return NewSendGridTransport(sendgrid.NewClient(cfg.SendGrid.APIKey, opts...)), nil
	case "smtp":
		t, err := NewSMTPTransport(cfg.SMTP)
		if err != nil {
			return nil, err
		}
		return t, nil
	default:
		return nil, &model.ConfigurationError{Msg: "campaign: unknown transport " + cfg.Campaign.Transport}
	}
}
