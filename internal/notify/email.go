package notify

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"
)

// EmailConfig holds SMTP settings for the fallback channel.
type EmailConfig struct {
	Host       string
	Port       int
	Username   string
	Password   string
	From       string
	Recipients []string
	Subject    string
	Timeout    time.Duration
}

// EmailChannel sends the report as a plain-text email to every recipient.
type EmailChannel struct {
	cfg EmailConfig
	now func() time.Time
}

// NewEmailChannel constructs an EmailChannel.
func NewEmailChannel(cfg EmailConfig) *EmailChannel {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Subject == "" {
		cfg.Subject = "Marathon Training Daily Summary"
	}
	if cfg.From == "" {
		cfg.From = cfg.Username
	}
	return &EmailChannel{cfg: cfg, now: time.Now}
}

// Name implements Channel.
func (c *EmailChannel) Name() string { return "email" }

// Send implements Channel. It fails if any recipient was rejected.
func (c *EmailChannel) Send(ctx context.Context, text string) error {
	if c.cfg.Host == "" || c.cfg.From == "" || len(c.cfg.Recipients) == 0 {
		return ErrNotConfigured
	}
	var errs []error
	for _, to := range c.cfg.Recipients {
		if err := c.sendSMTP(ctx, to, c.buildMessage(to, text)); err != nil {
			errs = append(errs, fmt.Errorf("send to %s: %w", to, err))
		}
	}
	return errors.Join(errs...)
}

func (c *EmailChannel) buildMessage(to, text string) string {
	var msg strings.Builder
	fmt.Fprintf(&msg, "From: %s\r\n", c.cfg.From)
	fmt.Fprintf(&msg, "To: %s\r\n", to)
	fmt.Fprintf(&msg, "Subject: %s\r\n", c.cfg.Subject)
	fmt.Fprintf(&msg, "Date: %s\r\n", c.now().Format(time.RFC1123Z))
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(strings.ReplaceAll(text, "\n", "\r\n"))
	msg.WriteString("\r\n")
	return msg.String()
}

func (c *EmailChannel) sendSMTP(ctx context.Context, to, msg string) error {
	addr := net.JoinHostPort(c.cfg.Host, strconv.Itoa(c.cfg.Port))

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	dialer := &net.Dialer{Timeout: c.cfg.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("connect to smtp server: %w", err)
	}
	defer func() { _ = conn.Close() }()
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	client, err := smtp.NewClient(conn, c.cfg.Host)
	if err != nil {
		return fmt.Errorf("create smtp client: %w", err)
	}
	defer func() { _ = client.Close() }()

	if ok, _ := client.Extension("STARTTLS"); ok {
		if err := client.StartTLS(&tls.Config{ServerName: c.cfg.Host, MinVersion: tls.VersionTLS12}); err != nil {
			return fmt.Errorf("start tls: %w", err)
		}
	}
	if c.cfg.Username != "" && c.cfg.Password != "" {
		if err := client.Auth(smtp.PlainAuth("", c.cfg.Username, c.cfg.Password, c.cfg.Host)); err != nil {
			return fmt.Errorf("smtp authentication: %w", err)
		}
	}
	if err := client.Mail(c.cfg.From); err != nil {
		return fmt.Errorf("set sender: %w", err)
	}
	if err := client.Rcpt(to); err != nil {
		return fmt.Errorf("set recipient: %w", err)
	}
	writer, err := client.Data()
	if err != nil {
		return fmt.Errorf("start message: %w", err)
	}
	if _, err := writer.Write([]byte(msg)); err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("close message: %w", err)
	}
	_ = client.Quit()
	return nil
}
