package mail

import (
	"bufio"
	"bytes"
	"context"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/pribylovaa/go-auth-service/internal/pkg/log"
	"github.com/stretchr/testify/require"
)

func TestVerificationMessage(t *testing.T) {
	t.Parallel()

	msg, err := VerificationMessage("alice@example.com", "https://app.test/auth/verify/abc")
	require.NoError(t, err)
	require.Equal(t, "alice@example.com", msg.To)
	require.Equal(t, "Verification email.", msg.Subject)
	require.Contains(t, msg.HTML, `href="https://app.test/auth/verify/abc"`)
	require.Contains(t, msg.Text, "https://app.test/auth/verify/abc")
}

func TestPasswordResetMessage_Escapes(t *testing.T) {
	t.Parallel()

	msg, err := PasswordResetMessage("bob@example.com", `https://app.test/x?a=1&b="2"`)
	require.NoError(t, err)
	require.NotContains(t, msg.HTML, `"2"`, "кавычки экранируются шаблоном")
	require.Contains(t, msg.HTML, "Please, use this link")
}

func TestLogSender(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	ctx := log.Into(context.Background(), slog.New(slog.NewTextHandler(&buf, nil)))

	require.NoError(t, LogSender{}.Send(ctx, Message{To: "alice@example.com", Subject: "S", Text: "T"}))
	require.Contains(t, buf.String(), "mail_logged")
	require.Contains(t, buf.String(), "al***@example.com")
	require.NotContains(t, buf.String(), "alice@")
}

// fakeSMTP — минимальный SMTP-сервер без TLS и AUTH.
// Возвращает адрес и канал с телом первого письма.
func fakeSMTP(t *testing.T) (string, <-chan string) {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	out := make(chan string, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		_ = conn.SetDeadline(time.Now().Add(5 * time.Second))

		r := bufio.NewReader(conn)
		write := func(s string) { _, _ = conn.Write([]byte(s + "\r\n")) }

		write("220 localhost ESMTP")
		for {
			line, err := r.ReadString('\n')
			if err != nil {
				return
			}
			cmd := strings.ToUpper(strings.TrimSpace(line))
			switch {
			case strings.HasPrefix(cmd, "EHLO"), strings.HasPrefix(cmd, "HELO"):
				write("250 localhost")
			case strings.HasPrefix(cmd, "MAIL"), strings.HasPrefix(cmd, "RCPT"):
				write("250 OK")
			case cmd == "DATA":
				write("354 go ahead")
				var body strings.Builder
				for {
					l, err := r.ReadString('\n')
					if err != nil {
						return
					}
					if l == ".\r\n" {
						break
					}
					body.WriteString(l)
				}
				out <- body.String()
				write("250 queued")
			case cmd == "QUIT":
				write("221 bye")
				return
			default:
				write("250 OK")
			}
		}
	}()

	return ln.Addr().String(), out
}

func TestSMTPSender_Send(t *testing.T) {
	t.Parallel()

	addr, got := fakeSMTP(t)
	host, portStr, err := net.SplitHostPort(addr)
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	s := NewSMTPSender(SMTPConfig{Host: host, Port: port, From: "noreply@app.test"})

	msg, err := VerificationMessage("alice@example.com", "https://app.test/auth/verify/abc")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.Send(ctx, msg))

	select {
	case body := <-got:
		require.Contains(t, body, "To: alice@example.com")
		require.Contains(t, body, "Subject: Verification email.")
		require.Contains(t, body, "multipart/alternative")
		require.Contains(t, body, "text/html; charset=UTF-8")
		require.Contains(t, body, "https://app.test/auth/verify/abc")
	case <-time.After(5 * time.Second):
		t.Fatal("письмо не дошло до сервера")
	}
}

func TestSMTPSender_DialError(t *testing.T) {
	t.Parallel()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().(*net.TCPAddr)
	require.NoError(t, ln.Close())

	s := NewSMTPSender(SMTPConfig{Host: "127.0.0.1", Port: addr.Port, From: "noreply@app.test"})
	err = s.Send(context.Background(), Message{To: "x@example.com", Subject: "s", Text: "t"})
	require.Error(t, err)
}

func TestSMTPSender_CanceledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := NewSMTPSender(SMTPConfig{Host: "127.0.0.1", Port: 1}).Send(ctx, Message{To: "x@example.com"})
	require.ErrorIs(t, err, context.Canceled)
}
