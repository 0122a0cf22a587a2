// Package notify delivers out-of-band messages (OTP codes) by email.
package notify

import (
	"fmt"
	"log"
	"net/smtp"
	"strings"
)

// SMTPMailer sends through a plain SMTP relay.
type SMTPMailer struct {
	Addr string // host:port
	From string
}

func NewSMTPMailer(addr, from string) *SMTPMailer {
	return &SMTPMailer{Addr: addr, From: from}
}

func (m *SMTPMailer) Send(to, subject, body string) error {
	msg := strings.Join([]string{
		"From: " + m.From,
		"To: " + to,
		"Subject: " + subject,
		"",
		body,
	}, "\r\n")

	if err := smtp.SendMail(m.Addr, nil, m.From, []string{to}, []byte(msg)); err != nil {
		return fmt.Errorf("smtp send to %s: %v", to, err)
	}
	return nil
}

// LogMailer writes messages to the process log instead of sending them.
// Development/default fallback when no SMTP relay is configured.
type LogMailer struct{}

func (LogMailer) Send(to, subject, body string) error {
	log.Printf("[MAIL] to=%s subject=%q body=%q", to, subject, body)
	return nil
}
