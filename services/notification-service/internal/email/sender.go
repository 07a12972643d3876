package email

import (
	"context"
	"fmt"
	"mime"
	"net"
	"net/smtp"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Message struct {
	To      string
	Subject string
	Body    string
}

// SMTPSender sends plain-text mail. Auth is used only when a username is
// configured, which keeps Mailpit working locally.
type SMTPSender struct {
	host     string
	addr     string
	from     string
	username string
	password string
	now      func() time.Time
}

type Config struct {
	Host     string
	Port     string
	From     string
	Username string
	Password string
}

func NewSMTPSender(cfg Config) *SMTPSender {
	from := strings.TrimSpace(cfg.From)
	if from == "" {
		from = "no-reply@bizdash.local"
	}
	host := strings.TrimSpace(cfg.Host)
	return &SMTPSender{
		host:     host,
		addr:     net.JoinHostPort(host, strings.TrimSpace(cfg.Port)),
		from:     from,
		username: cfg.Username,
		password: cfg.Password,
		now:      time.Now,
	}
}

func (s *SMTPSender) ProviderID() string { return "smtp" }

// Send delivers msg and returns the Message-ID it was sent with. net/smtp
// has no context support, so ctx is only checked before dialing.
func (s *SMTPSender) Send(ctx context.Context, msg Message) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if strings.ContainsAny(msg.To, "\r\n") {
		return "", fmt.Errorf("invalid recipient %q", msg.To)
	}
	id := fmt.Sprintf("<%s@%s>", uuid.NewString(), domainOf(s.from))
	var auth smtp.Auth
	if s.username != "" {
		auth = smtp.PlainAuth("", s.username, s.password, s.host)
	}
	raw := BuildMessage(s.from, msg, id, s.now())
	if err := smtp.SendMail(s.addr, auth, s.from, []string{msg.To}, raw); err != nil {
		return "", err
	}
	return id, nil
}

// BuildMessage renders an RFC 5322 message with an encoded subject.
func BuildMessage(from string, msg Message, messageID string, at time.Time) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", msg.To)
	fmt.Fprintf(&b, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", msg.Subject))
	fmt.Fprintf(&b, "Date: %s\r\n", at.UTC().Format(time.RFC1123Z))
	fmt.Fprintf(&b, "Message-ID: %s\r\n", messageID)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	b.WriteString("Content-Transfer-Encoding: 8bit\r\n\r\n")
	b.WriteString(strings.ReplaceAll(strings.ReplaceAll(msg.Body, "\r\n", "\n"), "\n", "\r\n"))
	b.WriteString("\r\n")
	return []byte(b.String())
}

func domainOf(addr string) string {
	if i := strings.LastIndex(addr, "@"); i >= 0 && i < len(addr)-1 {
		return strings.TrimSuffix(addr[i+1:], ">")
	}
	return "localhost"
}
