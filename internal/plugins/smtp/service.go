package smtp

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/mail"
	gosmtp "net/smtp"
	"strings"
	"time"
)

// dialTimeout bounds connection setup when the context has no deadline.
const dialTimeout = 10 * time.Second

// ErrNotConfigured is returned by SendMail when no SMTP host is set.
var ErrNotConfigured = errors.New("smtp: not configured")

// MailService is the interface other plugins use to send email.
// This is the cross-plugin contract -- auth uses it to deliver codes.
type MailService interface {
	SendMail(ctx context.Context, to []string, subject, body string) error
	IsConfigured(ctx context.Context) bool
}

// SMTPService extends MailService with a connectivity check used at startup.
type SMTPService interface {
	MailService

	// TestConnection verifies the server accepts a handshake (and
	// credentials, when set) without sending anything.
	TestConnection(ctx context.Context) error
}

// smtpService implements SMTPService.
type smtpService struct {
	settings Settings
	now      func() time.Time
}

// NewSMTPService creates a new SMTP service. Zero-valued optional settings
// fall back to port 587, STARTTLS, and the "Campus" sender name.
func NewSMTPService(settings Settings) SMTPService {
	settings.Host = strings.TrimSpace(settings.Host)
	if settings.Port <= 0 {
		settings.Port = 587
	}
	if settings.Encryption == "" {
		settings.Encryption = EncryptionStartTLS
	}
	if settings.FromName == "" {
		settings.FromName = "Campus"
	}
	return &smtpService{settings: settings, now: time.Now}
}

// --- MailService (cross-plugin interface) ---

// IsConfigured returns true if a host and sender address are configured.
func (s *smtpService) IsConfigured(_ context.Context) bool {
	return s.settings.Host != "" && s.settings.FromAddress != ""
}

// SendMail sends a plain-text email. The context deadline, when set, bounds
// the whole SMTP conversation.
func (s *smtpService) SendMail(ctx context.Context, to []string, subject, body string) error {
	if !s.IsConfigured(ctx) {
		return ErrNotConfigured
	}
	if len(to) == 0 {
		return errors.New("smtp: no recipients")
	}

	from := mail.Address{Name: s.settings.FromName, Address: s.settings.FromAddress}
	msg := buildMessage(from, to, subject, body, s.now())

	client, err := s.connect(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	if err := s.sendMessage(client, from.Address, to, msg); err != nil {
		return err
	}

	slog.Debug("mail sent",
		slog.Int("recipients", len(to)),
		slog.String("subject", subject),
	)
	return nil
}

// --- SMTPService ---

// TestConnection performs the handshake and authentication, then quits.
func (s *smtpService) TestConnection(ctx context.Context) error {
	if s.settings.Host == "" {
		return ErrNotConfigured
	}
	client, err := s.connect(ctx)
	if err != nil {
		return err
	}
	defer client.Close()
	return client.Quit()
}

// connect dials the server according to the encryption mode and
// authenticates when a username is set.
func (s *smtpService) connect(ctx context.Context) (*gosmtp.Client, error) {
	host := s.settings.Host
	addr := net.JoinHostPort(host, fmt.Sprintf("%d", s.settings.Port))
	tlsConfig := &tls.Config{ServerName: host, MinVersion: tls.VersionTLS12}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, dialTimeout)
		defer cancel()
	}

	var (
		conn net.Conn
		err  error
	)
	if s.settings.Encryption == EncryptionSSL {
		d := &tls.Dialer{Config: tlsConfig}
		conn, err = d.DialContext(ctx, "tcp", addr)
	} else {
		var d net.Dialer
		conn, err = d.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", addr, err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	client, err := gosmtp.NewClient(conn, host)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("creating smtp client: %w", err)
	}

	if s.settings.Encryption == EncryptionStartTLS {
		if err := client.StartTLS(tlsConfig); err != nil {
			client.Close()
			return nil, fmt.Errorf("starting TLS: %w", err)
		}
	}

	if s.settings.Username != "" {
		auth := gosmtp.PlainAuth("", s.settings.Username, s.settings.Password, host)
		if err := client.Auth(auth); err != nil {
			client.Close()
			return nil, fmt.Errorf("authenticating: %w", err)
		}
	}

	return client, nil
}

// sendMessage handles MAIL FROM, RCPT TO, DATA for an existing SMTP client.
func (s *smtpService) sendMessage(client *gosmtp.Client, from string, to []string, msg string) error {
	if err := client.Mail(from); err != nil {
		return fmt.Errorf("MAIL FROM: %w", err)
	}
	for _, recipient := range to {
		if err := client.Rcpt(recipient); err != nil {
			return fmt.Errorf("RCPT TO %s: %w", recipient, err)
		}
	}
	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("DATA: %w", err)
	}
	if _, err := w.Write([]byte(msg)); err != nil {
		return fmt.Errorf("writing message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("closing data: %w", err)
	}
	return client.Quit()
}

// buildMessage renders an RFC 5322 plain-text message. CR and LF are
// stripped from header values so a subject cannot inject headers.
func buildMessage(from mail.Address, to []string, subject, body string, now time.Time) string {
	headerSafe := strings.NewReplacer("\r", "", "\n", "")

	var msg strings.Builder
	msg.WriteString(fmt.Sprintf("From: %s\r\n", from.String()))
	msg.WriteString(fmt.Sprintf("To: %s\r\n", headerSafe.Replace(strings.Join(to, ", "))))
	msg.WriteString(fmt.Sprintf("Subject: %s\r\n", headerSafe.Replace(subject)))
	msg.WriteString(fmt.Sprintf("Date: %s\r\n", now.UTC().Format(time.RFC1123Z)))
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(strings.ReplaceAll(strings.ReplaceAll(body, "\r\n", "\n"), "\n", "\r\n"))
	return msg.String()
}
