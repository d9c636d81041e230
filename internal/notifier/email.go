package notifier

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"
)

type sendMailFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// EmailNotifier sends each message as a plain-text mail through an SMTP
// relay. The first line of the message becomes the subject.
type EmailNotifier struct {
	Host     string
	Port     int
	Username string
	From     string
	To       []string

	password string
	sendMail sendMailFunc
}

// NewEmailNotifier builds an SMTP client. From defaults to username and port
// to 587. Authentication is skipped when username is empty.
func NewEmailNotifier(host string, port int, username, password, from string, to []string) (*EmailNotifier, error) {
	if host == "" || len(to) == 0 {
		return nil, errors.New("email host and at least one recipient are required")
	}
	if from == "" {
		from = username
	}
	if from == "" {
		return nil, errors.New("email sender address is required")
	}
	if port == 0 {
		port = 587
	}
	return &EmailNotifier{
		Host:     host,
		Port:     port,
		Username: username,
		From:     from,
		To:       to,
		password: password,
		sendMail: smtp.SendMail,
	}, nil
}

func (e *EmailNotifier) Name() string { return "email" }

func (e *EmailNotifier) Send(ctx context.Context, message string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var auth smtp.Auth
	if e.Username != "" {
		auth = smtp.PlainAuth("", e.Username, e.password, e.Host)
	}
	addr := net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
	if err := e.sendMail(addr, auth, e.From, e.To, e.compose(message, time.Now())); err != nil {
		return fmt.Errorf("email send failed: %w", err)
	}
	return nil
}

func (e *EmailNotifier) compose(message string, now time.Time) []byte {
	subject, _, _ := strings.Cut(message, "\n")
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", e.From)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(e.To, ", "))
	fmt.Fprintf(&b, "Subject: %s\r\n", mimeHeader(strings.TrimSpace(subject)))
	fmt.Fprintf(&b, "Date: %s\r\n", now.Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	b.WriteString("Content-Transfer-Encoding: 8bit\r\n\r\n")
	b.WriteString(strings.ReplaceAll(message, "\n", "\r\n"))
	b.WriteString("\r\n")
	return []byte(b.String())
}

// mimeHeader Q-encodes subjects that are not plain ASCII.
func mimeHeader(s string) string {
	for _, r := range s {
		if r > 127 {
			return mime.QEncoding.Encode("UTF-8", s)
		}
	}
	return s
}
