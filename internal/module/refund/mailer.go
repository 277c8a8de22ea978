package refund

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"net/smtp"
	"strings"

	"go.uber.org/zap"
)

// Mailer delivers refund notifications.
type Mailer interface {
	Send(ctx context.Context, to string, cc []string, subject, htmlBody string) error
}

// SMTPConfig holds SMTP settings.
type SMTPConfig struct {
	Host        string
	Port        int
	User        string
	Password    string
	FromAddress string
	FromName    string
}

// SMTPMailer sends email via SMTP.
type SMTPMailer struct {
	config *SMTPConfig
	logger *zap.Logger
}

// NewSMTPMailer creates a new SMTP mailer.
func NewSMTPMailer(config *SMTPConfig, logger *zap.Logger) *SMTPMailer {
	return &SMTPMailer{config: config, logger: logger}
}

func (m *SMTPMailer) Send(ctx context.Context, to string, cc []string, subject, htmlBody string) error {
	from := m.config.FromAddress
	if m.config.FromName != "" {
		from = fmt.Sprintf("%s <%s>", m.config.FromName, m.config.FromAddress)
	}

	var ccHeader string
	if len(cc) > 0 {
		ccHeader = "Cc: " + strings.Join(cc, ", ") + "\r\n"
	}
	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\n%sSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/html; charset=UTF-8\r\n\r\n%s",
		from, to, ccHeader, subject, htmlBody)

	addr := fmt.Sprintf("%s:%d", m.config.Host, m.config.Port)

	var auth smtp.Auth
	if m.config.User != "" && m.config.Password != "" {
		auth = smtp.PlainAuth("", m.config.User, m.config.Password, m.config.Host)
	}

	recipients := append([]string{to}, cc...)
	if err := smtp.SendMail(addr, auth, m.config.FromAddress, recipients, []byte(msg)); err != nil {
		m.logger.Error("failed to send email",
			zap.String("to", to),
			zap.String("subject", subject),
			zap.Error(err),
		)
		return fmt.Errorf("send email: %w", err)
	}

	m.logger.Info("email sent", zap.String("to", to), zap.String("subject", subject))
	return nil
}

// NoOpMailer logs instead of sending. Used in development and dry runs.
type NoOpMailer struct {
	logger *zap.Logger
}

// NewNoOpMailer creates a mailer that only logs.
func NewNoOpMailer(logger *zap.Logger) *NoOpMailer {
	return &NoOpMailer{logger: logger}
}

func (m *NoOpMailer) Send(_ context.Context, to string, cc []string, subject, _ string) error {
	m.logger.Info("noop mailer: skipping send",
		zap.String("to", to),
		zap.Strings("cc", cc),
		zap.String("subject", subject),
	)
	return nil
}

// RenderFallbackMessage builds the deterministic notification body used when
// the operator did not supply one.
func RenderFallbackMessage(name string, amount int64, currency string) (string, error) {
	t, err := template.New("refund").Parse(refundEmailTemplate)
	if err != nil {
		return "", err
	}

	data := map[string]string{
		"Name":   name,
		"Amount": fmt.Sprintf("%s %.2f", currency, float64(amount)/100),
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render refund template: %w", err)
	}
	return buf.String(), nil
}

const refundEmailTemplate = `
<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <style>
        body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; }
        .container { max-width: 600px; margin: 0 auto; padding: 20px; }
        .amount { font-size: 20px; font-weight: bold; }
        .footer { margin-top: 30px; font-size: 12px; color: #666; }
    </style>
</head>
<body>
    <div class="container">
        <h1>Your refund has been processed</h1>
        <p>Hi {{.Name}},</p>
        <p>We have issued a refund of <span class="amount">{{.Amount}}</span> to your original payment method.</p>
        <p>Depending on your bank, it can take a few business days to appear on your statement.</p>
        <div class="footer">
            <p>If you have any questions, reply to this email and our team will help.</p>
        </div>
    </div>
</body>
</html>
`
