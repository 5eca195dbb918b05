package mail

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"mime/multipart"
	"net"
	"net/smtp"
	"net/textproto"
	"strconv"
	"time"
)

// SMTPConfig — параметры SMTP-сервера.
type SMTPConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	From     string
	// ImplicitTLS — TLS с момента подключения (порт 465); иначе STARTTLS,
	// если сервер его поддерживает.
	ImplicitTLS bool
}

// SMTPSender отправляет письма через SMTP.
type SMTPSender struct {
	cfg SMTPConfig
}

// NewSMTPSender создаёт отправителя.
func NewSMTPSender(cfg SMTPConfig) *SMTPSender {
	return &SMTPSender{cfg: cfg}
}

// Send открывает отдельное SMTP-соединение на письмо.
// Дедлайн контекста переносится на соединение.
func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	const op = "mail.SMTPSender.Send"

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	body, err := s.compose(msg)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("%s: dial: %w", op, err)
	}
	defer conn.Close()

	if dl, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(dl)
	}

	tlsCfg := &tls.Config{ServerName: s.cfg.Host, MinVersion: tls.VersionTLS12}
	if s.cfg.ImplicitTLS {
		conn = tls.Client(conn, tlsCfg)
	}

	c, err := smtp.NewClient(conn, s.cfg.Host)
	if err != nil {
		return fmt.Errorf("%s: client: %w", op, err)
	}
	defer c.Close()

	if !s.cfg.ImplicitTLS {
		if ok, _ := c.Extension("STARTTLS"); ok {
			if err := c.StartTLS(tlsCfg); err != nil {
				return fmt.Errorf("%s: starttls: %w", op, err)
			}
		}
	}

	if s.cfg.User != "" {
		auth := smtp.PlainAuth("", s.cfg.User, s.cfg.Password, s.cfg.Host)
		if err := c.Auth(auth); err != nil {
			return fmt.Errorf("%s: auth: %w", op, err)
		}
	}

	if err := c.Mail(s.cfg.From); err != nil {
		return fmt.Errorf("%s: mail from: %w", op, err)
	}
	if err := c.Rcpt(msg.To); err != nil {
		return fmt.Errorf("%s: rcpt: %w", op, err)
	}

	w, err := c.Data()
	if err != nil {
		return fmt.Errorf("%s: data: %w", op, err)
	}
	if _, err := w.Write(body); err != nil {
		return fmt.Errorf("%s: write: %w", op, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("%s: close data: %w", op, err)
	}

	if err := c.Quit(); err != nil {
		return fmt.Errorf("%s: quit: %w", op, err)
	}

	return nil
}

// compose собирает MIME-письмо multipart/alternative (text + html).
func (s *SMTPSender) compose(msg Message) ([]byte, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	fmt.Fprintf(&buf, "From: %s\r\n", s.cfg.From)
	fmt.Fprintf(&buf, "To: %s\r\n", msg.To)
	fmt.Fprintf(&buf, "Subject: %s\r\n", msg.Subject)
	fmt.Fprintf(&buf, "Date: %s\r\n", time.Now().Format(time.RFC1123Z))
	buf.WriteString("MIME-Version: 1.0\r\n")
	fmt.Fprintf(&buf, "Content-Type: multipart/alternative; boundary=%q\r\n\r\n", mw.Boundary())

	parts := []struct{ ctype, body string }{
		{"text/plain; charset=UTF-8", msg.Text},
		{"text/html; charset=UTF-8", msg.HTML},
	}
	for _, p := range parts {
		if p.body == "" {
			continue
		}
		pw, err := mw.CreatePart(textproto.MIMEHeader{"Content-Type": {p.ctype}})
		if err != nil {
			return nil, err
		}
		if _, err := pw.Write([]byte(p.body)); err != nil {
			return nil, err
		}
	}

	if err := mw.Close(); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}
