// Package notifications reacts to integration events received through the
// inbox by sending emails.
package notifications

import (
	"context"

	"go.uber.org/zap"
)

type Email struct {
	To      string
	Subject string
	Body    string
}

type EmailSender interface {
	Send(ctx context.Context, email Email) error
}

// LogEmailSender writes emails to the log instead of delivering them.
type LogEmailSender struct {
	logger *zap.Logger
}

func NewLogEmailSender(logger *zap.Logger) *LogEmailSender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogEmailSender{logger: logger}
}

func (s *LogEmailSender) Send(_ context.Context, email Email) error {
	s.logger.Info("email sent",
		zap.String("to", email.To),
		zap.String("subject", email.Subject),
		zap.Int("body_length", len(email.Body)),
	)
	return nil
}

func welcomeEmail(to, firstName, lastName string) Email {
	return Email{
		To:      to,
		Subject: "Welcome!",
		Body:    "Hello " + firstName + " " + lastName + ", your account is ready.",
	}
}
