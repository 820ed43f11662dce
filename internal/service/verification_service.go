package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/scrippt-tech/scrippt-server/internal/domain"
	"github.com/scrippt-tech/scrippt-server/internal/email"
	"github.com/scrippt-tech/scrippt-server/internal/repository"
)

var (
	ErrConflict         = errors.New("account already exists")
	ErrRateLimited      = errors.New("rate limited")
	ErrEmailSendFailure = errors.New("email send failed")
	ErrInvalidEmail     = errors.New("invalid email")
)

const defaultCodeTTL = 10 * time.Minute

var validate = validator.New()

// VerificationService gestiona el código de verificación de email previo al registro.
type VerificationService struct {
	logger   *zap.Logger
	accounts repository.AccountRepository
	codes    VerificationCodeStore
	limiter  RequestLimiter
	sender   email.Sender
	ttl      time.Duration
}

func NewVerificationService(logger *zap.Logger, accounts repository.AccountRepository, codes VerificationCodeStore, limiter RequestLimiter, sender email.Sender, ttl time.Duration) *VerificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if codes == nil {
		codes = NewMemoryCodeStore()
	}
	if ttl <= 0 {
		ttl = defaultCodeTTL
	}
	return &VerificationService{
		logger:   logger,
		accounts: accounts,
		codes:    codes,
		limiter:  limiter,
		sender:   sender,
		ttl:      ttl,
	}
}

// Request emite un código nuevo para un email sin cuenta y lo envía por correo.
func (s *VerificationService) Request(ctx context.Context, emailAddr, name string) (string, error) {
	emailAddr = normalizeEmail(emailAddr)
	if !isValidEmail(emailAddr) {
		return "", ErrInvalidEmail
	}

	if _, err := s.accounts.GetByEmail(ctx, emailAddr); err == nil {
		return "", ErrConflict
	} else if !errors.Is(err, domain.ErrAccountNotFound) {
		return "", err
	}

	if s.sender == nil {
		return "", ErrEmailSendFailure
	}
	if s.limiter != nil && !s.limiter.Allow(ctx, emailAddr) {
		return "", ErrRateLimited
	}

	code, err := generateCode()
	if err != nil {
		return "", err
	}
	expiresAt := time.Now().UTC().Add(s.ttl)
	if err := s.codes.Put(ctx, emailAddr, code, s.ttl); err != nil {
		return "", fmt.Errorf("store verification code: %w", err)
	}

	if err := s.sender.SendVerificationCode(ctx, emailAddr, strings.TrimSpace(name), code, expiresAt); err != nil {
		s.logger.Warn("send verification code failed", zap.Error(err), zap.String("email", emailAddr))
		return "", ErrEmailSendFailure
	}
	s.logger.Info("verification code issued", zap.String("email", emailAddr))
	return code, nil
}

// Confirm marca el código como usado. Un código ya usado nunca vuelve a confirmar.
func (s *VerificationService) Confirm(ctx context.Context, emailAddr, code string) error {
	return s.codes.Confirm(ctx, normalizeEmail(emailAddr), strings.TrimSpace(code))
}

// IsVerified es true solo si existe un registro en estado used.
func (s *VerificationService) IsVerified(ctx context.Context, emailAddr string) (bool, error) {
	status, found, err := s.codes.Status(ctx, normalizeEmail(emailAddr))
	if err != nil {
		return false, err
	}
	return found && status == CodeUsed, nil
}

// Consume borra el registro una vez creada la cuenta.
func (s *VerificationService) Consume(ctx context.Context, emailAddr string) error {
	return s.codes.Delete(ctx, normalizeEmail(emailAddr))
}

func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func isValidEmail(email string) bool {
	return validate.Var(email, "required,email") == nil
}
