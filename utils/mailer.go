package utils

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"time"

	"gopkg.in/gomail.v2"

	"gympulse/config"
	"gympulse/models"
)

// retentionLayout wraps plain-text retention emails in a minimal HTML body.
var retentionLayout = template.Must(template.New("retention").Parse(`<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>{{.Subject}}</title>
    <style>
        body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px; }
        .content { margin: 20px 0; white-space: pre-line; }
        .footer { margin-top: 30px; font-size: 12px; color: #7f8c8d; text-align: center; }
    </style>
</head>
<body>
    <div class="content">{{.Body}}</div>
    <div class="footer">
        <p>© {{.Year}} {{.FromName}}. You receive this email as a member of our gym.</p>
    </div>
</body>
</html>`))

// SMTPChannel delivers email through an SMTP relay.
type SMTPChannel struct {
	cfg    config.SMTPConfig
	dialer *gomail.Dialer
}

func NewSMTPChannel(cfg config.SMTPConfig) *SMTPChannel {
	return &SMTPChannel{
		cfg:    cfg,
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
	}
}

func (c *SMTPChannel) Name() string { return models.ChannelEmail }

func (c *SMTPChannel) Configured() bool {
	return c.cfg.Host != "" && c.cfg.FromEmail != ""
}

func (c *SMTPChannel) Send(ctx context.Context, recipient, subject, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m, err := c.buildMessage(recipient, subject, body)
	if err != nil {
		return err
	}
	if err := c.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("error sending email: %w", err)
	}
	return nil
}

func (c *SMTPChannel) buildMessage(recipient, subject, body string) (*gomail.Message, error) {
	var html bytes.Buffer
	err := retentionLayout.Execute(&html, struct {
		Subject  string
		Body     string
		FromName string
		Year     int
	}{subject, body, c.cfg.FromName, time.Now().Year()})
	if err != nil {
		return nil, fmt.Errorf("error executing template: %w", err)
	}

	m := gomail.NewMessage()
	m.SetAddressHeader("From", c.cfg.FromEmail, c.cfg.FromName)
	m.SetHeader("To", recipient)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", body)
	m.AddAlternative("text/html", html.String())
	return m, nil
}
