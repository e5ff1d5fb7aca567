package service

import (
	"bytes"
	"context"
	_ "embed"
	"fmt"
	"html/template"
	"net"
	"net/smtp"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"roaia/internal/config"
)

//go:embed templates/email.html
var emailTemplateSource string

var emailTemplate = template.Must(template.New("email").Parse(emailTemplateSource))

// EmailContent fills the shared HTML email layout.
type EmailContent struct {
	ImageURL  string
	Header    string
	Body      template.HTML
	URL       string
	LinkTitle string
	Warning   template.HTML
}

// RenderEmail renders content into the HTML layout.
func RenderEmail(content EmailContent) (string, error) {
	var buf bytes.Buffer
	if err := emailTemplate.Execute(&buf, content); err != nil {
		return "", fmt.Errorf("render email: %w", err)
	}
	return buf.String(), nil
}

// Mailer delivers HTML email over SMTP.
type Mailer struct {
	addr     string
	host     string
	from     string
	auth     smtp.Auth
	logger   *zap.Logger
	sendMail func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func NewMailer(cfg *config.Config, logger *zap.Logger) *Mailer {
	var auth smtp.Auth
	if cfg.SMTPUsername != "" {
		auth = smtp.PlainAuth("", cfg.SMTPUsername, cfg.SMTPPassword, cfg.SMTPHost)
	}
	return &Mailer{
		addr:     net.JoinHostPort(cfg.SMTPHost, strconv.Itoa(cfg.SMTPPort)),
		host:     cfg.SMTPHost,
		from:     cfg.SMTPFrom,
		auth:     auth,
		logger:   logger,
		sendMail: smtp.SendMail,
	}
}

// Send delivers one message. net/smtp has no context support, so ctx is only
// checked before dialing.
func (m *Mailer) Send(ctx context.Context, to, subject, htmlBody string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if m.host == "" {
		return fmt.Errorf("smtp host not configured")
	}

	msg := buildMessage(m.from, to, subject, htmlBody)
	if err := m.sendMail(m.addr, m.auth, m.from, []string{to}, msg); err != nil {
		m.logger.Error("[Mailer] Send FAILED", zap.String("to", to), zap.Error(err))
		return fmt.Errorf("send mail: %w", err)
	}

	m.logger.Info("[Mailer] Send OK", zap.String("to", to), zap.String("subject", subject))
	return nil
}

func buildMessage(from, to, subject, htmlBody string) []byte {
	var b strings.Builder
	b.WriteString("From: " + from + "\r\n")
	b.WriteString("To: " + to + "\r\n")
	b.WriteString("Subject: " + subject + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(htmlBody)
	return []byte(b.String())
}
