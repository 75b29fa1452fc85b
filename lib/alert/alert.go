// Package alert mails failure notices to whoever maintains the dataset.
package alert

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/smtp"
	"strings"

	"github.com/jordan-wright/email"
)

type Config struct {
	// SmtpAddr is the host:port of the smtp server, alerts are disabled
	// when it is empty.
	SmtpAddr string   `json:"smtp_addr"`
	Username string   `json:"username"`
	Password string   `json:"password"`
	From     string   `json:"from"`
	To       []string `json:"to"`
}

func (c Config) Enabled() bool {
	return c.SmtpAddr != "" && len(c.To) > 0
}

type Mailer struct {
	config Config
}

func NewMailer(config Config) Mailer {
	return Mailer{config: config}
}

func (m Mailer) Enabled() bool {
	return m.config.Enabled()
}

func (m Mailer) message(subject, body string) *email.Email {
	mail := email.NewEmail()
	from := m.config.From
	if from == "" {
		from = m.config.Username
	}
	mail.From = fmt.Sprintf("covid19au <%s>", from)
	mail.To = m.config.To
	mail.Subject = subject
	mail.Text = []byte(body)
	return mail
}

// Send mails an alert, it does nothing when alerts are disabled.
func (m Mailer) Send(ctx context.Context, subject, body string) error {
	if !m.Enabled() {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	mail := m.message(subject, body)

	var auth smtp.Auth
	if m.config.Username != "" {
		host, _, err := net.SplitHostPort(m.config.SmtpAddr)
		if err != nil {
			return fmt.Errorf("send alert: %w", err)
		}
		auth = smtp.PlainAuth("", m.config.Username, m.config.Password, host)
	}

	err := mail.Send(m.config.SmtpAddr, auth)
	if err != nil && auth != nil && strings.Contains(err.Error(), "server doesn't support AUTH") {
		err = mail.Send(m.config.SmtpAddr, nil)
	}
	if err != nil {
		return fmt.Errorf("send alert: %w", err)
	}
	return nil
}

// Failure formats the alert for a failed run.
func Failure(what string, err error) (subject string, body string) {
	subject = fmt.Sprintf("covid19au: %s failed", what)
	var lines []string
	for _, e := range unwrapJoined(err) {
		lines = append(lines, "- "+e.Error())
	}
	body = fmt.Sprintf("The %s failed:\n\n%s\n", what, strings.Join(lines, "\n"))
	return subject, body
}

func unwrapJoined(err error) []error {
	if err == nil {
		return nil
	}
	joined, ok := err.(interface{ Unwrap() []error })
	if !ok {
		return []error{err}
	}
	var out []error
	for _, e := range joined.Unwrap() {
		out = append(out, unwrapJoined(e)...)
	}
	if len(out) == 0 {
		return []error{errors.New("unknown error")}
	}
	return out
}
