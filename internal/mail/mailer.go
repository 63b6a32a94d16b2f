// Package mail delivers verification and password-reset mail. Delivery is
// best-effort from the caller's perspective: a send failure never rolls back
// the token that was mailed, since tokens can be re-requested.
package mail

import (
	"bytes"
	"context"
	"fmt"
	"text/template"
)

// Mailer sends a templated message to a single recipient.
type Mailer interface {
	Send(ctx context.Context, to, subject, templateName string, vars map[string]string) error
}

var templates = template.Must(template.New("mail").Parse(`
{{define "email_verification"}}Hello{{if .Name}} {{.Name}}{{end}},

Confirm your email address by opening the link below. The link expires in {{.TTL}}.

{{.Link}}

If you did not create this account, ignore this message.
{{end}}
{{define "password_reset"}}Hello{{if .Name}} {{.Name}}{{end}},

A password reset was requested for your account. Open the link below to choose
a new password. The link expires in {{.TTL}}.

{{.Link}}

If you did not request this, your password is unchanged and you can ignore
this message.
{{end}}`))

func renderTemplate(name string, vars map[string]string) (string, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, vars); err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return buf.String(), nil
}
