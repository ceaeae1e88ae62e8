// Package email sends renewal notifications through an SMTP relay.
package email

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"mime"
	"net"
	"net/smtp"
	"net/textproto"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"tello-renewal/core/balance"
	"tello-renewal/core/renewal"
	apperrors "tello-renewal/internal/errors"
)

// NextRenewalDays is how far out the success email puts the next renewal
const NextRenewalDays = 29

const (
	successSubject = "Successfully Renewed Your Tello Plan"
	failureSubject = "Tello Auto Renewal Failed"
)

// Config holds the relay address and credentials
type Config struct {
	Server    string `mapstructure:"server"`
	Port      int    `mapstructure:"port"`
	Username  string `mapstructure:"username"`
	Password  string `mapstructure:"password"`
	FromEmail string `mapstructure:"from_email"`
}

// Addr returns host:port
func (c Config) Addr() string {
	return net.JoinHostPort(c.Server, strconv.Itoa(c.Port))
}

// smtpClient is the part of *smtp.Client used after authentication.
type smtpClient interface {
	Mail(from string) error
	Rcpt(to string) error
	Data() (io.WriteCloser, error)
	Reset() error
	Quit() error
	Close() error
}

// Mailer holds one authenticated SMTP session for the whole run.
type Mailer struct {
	cfg    Config
	log    *zap.Logger
	now    func() time.Time
	client smtpClient
}

var _ renewal.Notifier = (*Mailer)(nil)

// NewMailer creates a mailer; call Authenticate before sending.
func NewMailer(cfg Config, log *zap.Logger) *Mailer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Mailer{cfg: cfg, log: log, now: time.Now}
}

// Authenticate connects to the relay, upgrades to TLS and logs in.
func (m *Mailer) Authenticate(ctx context.Context) error {
	addr := m.cfg.Addr()

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return apperrors.Transport("dial "+addr, err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	c, err := smtp.NewClient(conn, m.cfg.Server)
	if err != nil {
		_ = conn.Close()
		return apperrors.Transport("greeting from "+addr, err)
	}
	if ok, _ := c.Extension("STARTTLS"); !ok {
		_ = c.Close()
		return apperrors.New(apperrors.TypeTransport, addr+" does not offer STARTTLS")
	}
	if err := c.StartTLS(&tls.Config{ServerName: m.cfg.Server, MinVersion: tls.VersionTLS12}); err != nil {
		_ = c.Close()
		return apperrors.Transport("starttls with "+addr, err)
	}
	if err := c.Auth(smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Server)); err != nil {
		_ = c.Close()
		var protoErr *textproto.Error
		if errors.As(err, &protoErr) {
			return apperrors.Authentication("login as "+m.cfg.Username, err)
		}
		return apperrors.Transport("auth with "+addr, err)
	}
	_ = conn.SetDeadline(time.Time{})

	m.client = c
	m.log.Info("Authenticated with mail relay", zap.String("addr", addr), zap.String("username", m.cfg.Username))
	return nil
}

// SendSuccess reports a completed renewal and the resulting balance.
func (m *Mailer) SendSuccess(ctx context.Context, recipient string, newBalance balance.Account) error {
	next := m.now().AddDate(0, 0, NextRenewalDays)
	body := fmt.Sprintf(`Hi %s,

Your Tello account was renewed successfully.
You now have %s, %s, and %s.

Next renewal is scheduled for %s.
`, recipient, newBalance.Data, newBalance.Minutes, newBalance.Texts, next.Format("January 2, 2006"))

	return m.send(ctx, recipient, successSubject, body)
}

// SendFailure asks the account owner to renew by hand.
func (m *Mailer) SendFailure(ctx context.Context, recipient string) error {
	body := fmt.Sprintf(`Hi %s,

Your Tello account failed to renew automatically.
Please log in and complete this manually ASAP before tomorrow.

%s
`, recipient, renewal.LoginURL)

	return m.send(ctx, recipient, failureSubject, body)
}

// Close ends the SMTP session.
func (m *Mailer) Close() error {
	if m.client == nil {
		return nil
	}
	err := m.client.Quit()
	if err != nil {
		_ = m.client.Close()
	}
	m.client = nil
	return err
}

func (m *Mailer) send(ctx context.Context, recipient, subject, body string) error {
	if m.client == nil {
		return apperrors.New(apperrors.TypeInternal, "mailer is not authenticated")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := compose(m.cfg.FromEmail, recipient, subject, body, m.now())

	if err := m.client.Mail(m.cfg.FromEmail); err != nil {
		return apperrors.Transport("MAIL FROM", err)
	}
	if err := m.client.Rcpt(recipient); err != nil {
		_ = m.client.Reset()
		return apperrors.Transport("RCPT TO "+recipient, err)
	}
	w, err := m.client.Data()
	if err != nil {
		_ = m.client.Reset()
		return apperrors.Transport("DATA", err)
	}
	if _, err := io.WriteString(w, msg); err != nil {
		_ = w.Close()
		return apperrors.Transport("write message", err)
	}
	if err := w.Close(); err != nil {
		return apperrors.Transport("finish message", err)
	}

	m.log.Info("Sent email", zap.String("to", recipient), zap.String("subject", subject))
	return nil
}

// compose renders a plain text RFC 5322 message with CRLF line endings.
func compose(from, to, subject, body string, date time.Time) string {
	var b strings.Builder
	header := func(k, v string) {
		b.WriteString(k)
		b.WriteString(": ")
		b.WriteString(v)
		b.WriteString("\r\n")
	}
	header("From", from)
	header("To", to)
	header("Subject", mime.QEncoding.Encode("utf-8", subject))
	header("Date", date.Format(time.RFC1123Z))
	header("MIME-Version", "1.0")
	header("Content-Type", `text/plain; charset="utf-8"`)
	header("Content-Transfer-Encoding", "8bit")
	b.WriteString("\r\n")

	body = strings.ReplaceAll(body, "\r\n", "\n")
	b.WriteString(strings.ReplaceAll(body, "\n", "\r\n"))
	return b.String()
}
