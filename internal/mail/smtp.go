package mail

import (
	"context"

	"github.com/rs/zerolog"
	gomail "github.com/wneessen/go-mail"
)

// SMTPMailer sends mail through an SMTP relay using go-mail.
type SMTPMailer struct {
	host     string
	port     int
	username string
	password string
	from     string
	log      zerolog.Logger
}

// NewSMTPMailer returns a Mailer that relays through host:port authenticating
// with username/password (plain auth, opportunistic TLS).
func NewSMTPMailer(host string, port int, username, password, from string, log zerolog.Logger) *SMTPMailer {
	return &SMTPMailer{host: host, port: port, username: username, password: password, from: from, log: log}
}

// Send renders the named template and delivers it. A new client is dialed per
// send; callers treat failures as non-fatal.
func (m *SMTPMailer) Send(ctx context.Context, to, subject, templateName string, vars map[string]string) error {
	body, err := renderTemplate(templateName, vars)
	if err != nil {
		return err
	}

	msg := gomail.NewMsg()
	if err := msg.From(m.from); err != nil {
		return err
	}
	if err := msg.To(to); err != nil {
		return err
	}
	msg.Subject(subject)
	msg.SetBodyString(gomail.TypeTextPlain, body)

	opts := []gomail.Option{
		gomail.WithPort(m.port),
		gomail.WithTLSPolicy(gomail.TLSOpportunistic),
	}
	if m.username != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(m.username),
			gomail.WithPassword(m.password),
		)
	}
	client, err := gomail.NewClient(m.host, opts...)
	if err != nil {
		return err
	}
	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return err
	}
	m.log.Debug().Str("to", to).Str("template", templateName).Msg("mail sent")
	return nil
}

// NopMailer drops mail on the floor, logging each skipped send. Used when SMTP
// is not configured (local development, CI).
type NopMailer struct {
	Log zerolog.Logger
}

func (m NopMailer) Send(ctx context.Context, to, subject, templateName string, vars map[string]string) error {
	m.Log.Info().Str("to", to).Str("template", templateName).Msg("smtp not configured; mail skipped")
	return nil
}
