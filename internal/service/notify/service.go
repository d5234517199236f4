// internal/service/notify/service.go
package notify

import (
	"crypto/tls"
	"fmt"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"salesbridge-service/internal/config"
)

// Notifier sends operator notifications over SMTP. A failed delivery
// never fails the business flow calling it; this is the one place in
// the service where a remote call is retried.
type Notifier struct {
	smtpHost string
	smtpPort string
	username string
	password string
	from     string
	cc       []string
	logger   *zap.Logger

	attempts int
	backoff  time.Duration
}

func NewNotifier(cfg config.SMTPConfig, logger *zap.Logger) *Notifier {
	var cc []string
	for _, addr := range strings.Split(cfg.CC, ",") {
		if addr = strings.TrimSpace(addr); addr != "" {
			cc = append(cc, addr)
		}
	}
	return &Notifier{
		smtpHost: cfg.Host,
		smtpPort: strconv.Itoa(cfg.Port),
		username: cfg.Username,
		password: cfg.Password,
		from:     cfg.From,
		cc:       cc,
		logger:   logger,
		attempts: 2,
		backoff:  3 * time.Second,
	}
}

// Notify delivers a plain-text message, retrying once after a short
// pause. It reports whether the message went out; errors are logged,
// not returned, because callers treat notifications as best effort.
func (n *Notifier) Notify(to, subject, body string) bool {
	if n.smtpHost == "" || to == "" {
		return false
	}

	var lastErr error
	for attempt := 1; attempt <= n.attempts; attempt++ {
		if err := n.send(to, subject, body); err != nil {
			lastErr = err
			n.logger.Warn("notification send failed",
				zap.String("to", to),
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
			if attempt < n.attempts {
				time.Sleep(n.backoff)
			}
			continue
		}
		n.logger.Info("notification sent", zap.String("to", to), zap.String("subject", subject))
		return true
	}

	n.logger.Error("notification dropped", zap.String("to", to), zap.Error(lastErr))
	return false
}

func (n *Notifier) send(to, subject, body string) error {
	recipients := append([]string{to}, n.cc...)

	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", n.from)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	if len(n.cc) > 0 {
		fmt.Fprintf(&b, "Cc: %s\r\n", strings.Join(n.cc, ", "))
	}
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=\"utf-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(body)

	serverAddr := n.smtpHost + ":" + n.smtpPort
	auth := smtp.PlainAuth("", n.username, n.password, n.smtpHost)

	if n.smtpPort == "465" {
		// Implicit TLS
		tlsConfig := &tls.Config{ServerName: n.smtpHost}
		conn, err := tls.Dial("tcp", serverAddr, tlsConfig)
		if err != nil {
			return fmt.Errorf("tls dial failed: %w", err)
		}
		defer conn.Close()

		client, err := smtp.NewClient(conn, n.smtpHost)
		if err != nil {
			return fmt.Errorf("smtp client failed: %w", err)
		}
		defer client.Quit()

		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("auth failed: %w", err)
		}
		return n.transmit(client, recipients, []byte(b.String()))
	}

	// STARTTLS
	if err := smtp.SendMail(serverAddr, auth, n.from, recipients, []byte(b.String())); err != nil {
		return fmt.Errorf("send mail failed: %w", err)
	}
	return nil
}

func (n *Notifier) transmit(client *smtp.Client, recipients []string, msg []byte) error {
	if err := client.Mail(n.from); err != nil {
		return fmt.Errorf("MAIL FROM failed: %w", err)
	}
	for _, rcpt := range recipients {
		if err := client.Rcpt(rcpt); err != nil {
			return fmt.Errorf("RCPT TO failed: %w", err)
		}
	}
	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("DATA failed: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		return fmt.Errorf("write failed: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close failed: %w", err)
	}
	return nil
}
