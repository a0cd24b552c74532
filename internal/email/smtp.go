package email

import (
	"context"
	"crypto/tls"
	"fmt"
	"mime"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"
)

type SMTPSettings struct {
	Host     string
	Port     int
	Username string
	Password string
	// TLSMode is "tls" (implicit), "starttls" (default) or "none".
	TLSMode string
}

func (s SMTPSettings) Configured() bool {
	return s.Host != "" && s.Port > 0
}

type Message struct {
	FromName  string
	FromEmail string
	ToEmail   string
	ToName    string
	Subject   string
	TextBody  string
}

// Send delivers msg over SMTP. The context bounds the dial and, through the
// connection deadline, the whole conversation.
func Send(ctx context.Context, settings SMTPSettings, msg Message) error {
	client, err := connect(ctx, settings)
	if err != nil {
		return err
	}
	defer client.Close()

	if settings.Username != "" {
		auth := smtp.PlainAuth("", settings.Username, settings.Password, settings.Host)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("smtp auth: %w", err)
		}
	}

	if err := client.Mail(msg.FromEmail); err != nil {
		return fmt.Errorf("smtp from: %w", err)
	}
	if err := client.Rcpt(msg.ToEmail); err != nil {
		return fmt.Errorf("smtp rcpt: %w", err)
	}

	writer, err := client.Data()
	if err != nil {
		return fmt.Errorf("smtp data: %w", err)
	}
	if _, err := writer.Write([]byte(BuildMessage(msg, time.Now()))); err != nil {
		return fmt.Errorf("smtp write: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("smtp close: %w", err)
	}
	if err := client.Quit(); err != nil && !strings.Contains(err.Error(), "use of closed network connection") {
		return fmt.Errorf("smtp quit: %w", err)
	}
	return nil
}

func connect(ctx context.Context, settings SMTPSettings) (*smtp.Client, error) {
	addr := net.JoinHostPort(settings.Host, strconv.Itoa(settings.Port))
	tlsConfig := &tls.Config{ServerName: settings.Host, MinVersion: tls.VersionTLS12}

	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("smtp dial: %w", err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	mode := settings.TLSMode
	if mode == "" {
		mode = "starttls"
	}
	if mode == "tls" {
		conn = tls.Client(conn, tlsConfig)
	}

	client, err := smtp.NewClient(conn, settings.Host)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("smtp client: %w", err)
	}
	if mode == "starttls" {
		if err := client.StartTLS(tlsConfig); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("smtp starttls: %w", err)
		}
	}
	return client, nil
}

func formatAddress(name, addr string) string {
	if name == "" {
		return addr
	}
	return mime.QEncoding.Encode("utf-8", name) + " <" + addr + ">"
}

// BuildMessage renders headers and a plain text body with CRLF line endings.
func BuildMessage(msg Message, now time.Time) string {
	body := strings.ReplaceAll(msg.TextBody, "\r\n", "\n")
	body = strings.ReplaceAll(body, "\n", "\r\n")
	lines := []string{
		"From: " + formatAddress(msg.FromName, msg.FromEmail),
		"To: " + formatAddress(msg.ToName, msg.ToEmail),
		"Subject: " + mime.QEncoding.Encode("utf-8", msg.Subject),
		"Date: " + now.Format(time.RFC1123Z),
		"MIME-Version: 1.0",
		"Content-Type: text/plain; charset=utf-8",
		"",
		body,
	}
	return strings.Join(lines, "\r\n")
}
