// mail отправляет служебные письма (подтверждение email, сброс пароля).
package mail

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
)

// Message — письмо одному получателю.
type Message struct {
	To      string
	Subject string
	Text    string
	HTML    string
}

// Sender доставляет письма. Send возвращает управление после
// завершения доставки, чтобы вызывающий видел её ошибки.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

//go:generate mockgen -destination=../mocks/mock_sender.go -package=mocks . Sender

var (
	verifyTmpl = template.Must(template.New("verify").Parse(
		`<div><h1>Please, verify your account.</h1><a href="{{.URL}}">{{.URL}}</a></div>`))
	resetTmpl = template.Must(template.New("reset").Parse(
		`<div><h1>Please, use this link to reset your password.</h1><a href="{{.URL}}">{{.URL}}</a></div>`))
)

// VerificationMessage собирает письмо со ссылкой подтверждения.
func VerificationMessage(to, url string) (Message, error) {
	return build(to, "Verification email.", "Verify your account: "+url, verifyTmpl, url)
}

// PasswordResetMessage собирает письмо со ссылкой сброса пароля.
func PasswordResetMessage(to, url string) (Message, error) {
	return build(to, "Reset password.", "Reset your password: "+url, resetTmpl, url)
}

func build(to, subject, text string, tmpl *template.Template, url string) (Message, error) {
	var body bytes.Buffer
	if err := tmpl.Execute(&body, struct{ URL string }{URL: url}); err != nil {
		return Message{}, fmt.Errorf("mail.build: %w", err)
	}

	return Message{To: to, Subject: subject, Text: text, HTML: body.String()}, nil
}
