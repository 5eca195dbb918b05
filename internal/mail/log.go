package mail

import (
	"context"
	"log/slog"

	"github.com/pribylovaa/go-auth-service/internal/pkg/log"
	"github.com/pribylovaa/go-auth-service/internal/pkg/redact"
)

// LogSender не доставляет письма, а пишет их в лог (env=local, тесты).
type LogSender struct{}

func (LogSender) Send(ctx context.Context, msg Message) error {
	log.From(ctx).Info("mail_logged",
		slog.String("to", redact.Email(msg.To)),
		slog.String("subject", msg.Subject),
		slog.String("text", msg.Text),
	)

	return nil
}
