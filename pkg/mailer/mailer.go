package mailer

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net/mail"
	"net/smtp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ErrDisabled is returned when no SMTP host is configured.
var ErrDisabled = errors.New("mailer not configured")

// Message is a single outgoing email. Text is optional and sent as the plain alternative.
type Message struct {
	To      string
	Subject string
	HTML    string
	Text    string
}

// Result reports the identifier assigned to an accepted message.
type Result struct {
	MessageID string
}

// Config holds SMTP connection settings.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	Logger   zerolog.Logger
}

// SendFunc matches smtp.SendMail.
type SendFunc func(addr string, auth smtp.Auth, from string, to []string, msg []byte) error

// SMTPMailer delivers messages through an SMTP relay.
type SMTPMailer struct {
	cfg    Config
	send   SendFunc
	now    func() time.Time
	logger zerolog.Logger
}

// NewSMTP builds a mailer. A nil send func uses smtp.SendMail.
func NewSMTP(cfg Config, send SendFunc) *SMTPMailer {
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	if send == nil {
		send = smtp.SendMail
	}
	return &SMTPMailer{
		cfg:    cfg,
		send:   send,
		now:    time.Now,
		logger: cfg.Logger.With().Str("component", "mailer").Logger(),
	}
}

// Enabled reports whether a relay is configured.
func (m *SMTPMailer) Enabled() bool {
	return strings.TrimSpace(m.cfg.Host) != ""
}

// Send delivers msg. The context is only checked before dialing because net/smtp has no cancellation.
func (m *SMTPMailer) Send(ctx context.Context, msg Message) (Result, error) {
	if !m.Enabled() {
		return Result{}, ErrDisabled
	}
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	to, err := mail.ParseAddress(msg.To)
	if err != nil {
		return Result{}, fmt.Errorf("invalid recipient %q: %w", msg.To, err)
	}
	from := m.cfg.From
	if from == "" {
		from = m.cfg.Username
	}
	sender, err := mail.ParseAddress(from)
	if err != nil {
		return Result{}, fmt.Errorf("invalid sender %q: %w", from, err)
	}

	messageID := fmt.Sprintf("<%s@%s>", uuid.NewString(), domainOf(sender.Address))
	body := m.compose(sender, to, messageID, msg)

	var auth smtp.Auth
	if m.cfg.Username != "" {
		auth = smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
	}

	addr := fmt.Sprintf("%s:%d", m.cfg.Host, m.cfg.Port)
	if err := m.send(addr, auth, sender.Address, []string{to.Address}, body); err != nil {
		return Result{}, fmt.Errorf("send email to %s: %w", to.Address, err)
	}

	m.logger.Debug().Str("message_id", messageID).Msg("email accepted by relay")
	return Result{MessageID: messageID}, nil
}

func (m *SMTPMailer) compose(from, to *mail.Address, messageID string, msg Message) []byte {
	var b strings.Builder
	b.WriteString("From: " + from.String() + "\r\n")
	b.WriteString("To: " + to.String() + "\r\n")
	b.WriteString("Subject: " + mime.QEncoding.Encode("utf-8", msg.Subject) + "\r\n")
	b.WriteString("Date: " + m.now().UTC().Format(time.RFC1123Z) + "\r\n")
	b.WriteString("Message-ID: " + messageID + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")

	if msg.Text == "" {
		b.WriteString("Content-Type: text/html; charset=UTF-8\r\n\r\n")
		b.WriteString(msg.HTML)
		return []byte(b.String())
	}

	boundary := "alt-" + strings.ReplaceAll(uuid.NewString(), "-", "")
	b.WriteString("Content-Type: multipart/alternative; boundary=\"" + boundary + "\"\r\n\r\n")
	b.WriteString("--" + boundary + "\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n\r\n")
	b.WriteString(msg.Text + "\r\n")
	b.WriteString("--" + boundary + "\r\n")
	b.WriteString("Content-Type: text/html; charset=UTF-8\r\n\r\n")
	b.WriteString(msg.HTML + "\r\n")
	b.WriteString("--" + boundary + "--\r\n")
	return []byte(b.String())
}

func domainOf(address string) string {
	if at := strings.LastIndex(address, "@"); at >= 0 && at < len(address)-1 {
		return address[at+1:]
	}
	return "localhost"
}
