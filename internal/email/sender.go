package email

import (
	"context"
	"errors"
	"time"
)

// Sender define la interfaz para los correos de la cuenta.
type Sender interface {
	SendVerificationCode(ctx context.Context, toEmail, name, code string, expiresAt time.Time) error
	SendAccountCreated(ctx context.Context, toEmail, name string) error
}

type disabledSender struct {
	reason string
}

func NewDisabledSender(reason string) Sender {
	return &disabledSender{reason: reason}
}

func (s *disabledSender) SendVerificationCode(_ context.Context, _, _, _ string, _ time.Time) error {
	return s.err()
}

func (s *disabledSender) SendAccountCreated(_ context.Context, _, _ string) error {
	return s.err()
}

func (s *disabledSender) err() error {
	if s.reason == "" {
		return errors.New("email sender disabled")
	}
	return errors.New(s.reason)
}

// noopSender descarta los correos. Se usa con ENVIRONMENT=test.
type noopSender struct{}

func NewNoopSender() Sender {
	return noopSender{}
}

func (noopSender) SendVerificationCode(context.Context, string, string, string, time.Time) error {
	return nil
}

func (noopSender) SendAccountCreated(context.Context, string, string) error {
	return nil
}
