package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/scrippt-tech/scrippt-server/internal/domain"
	"github.com/scrippt-tech/scrippt-server/internal/email"
	"github.com/scrippt-tech/scrippt-server/internal/repository"
)

const (
	ProviderGoogle    = "google"
	minPasswordLength = 8
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrEmailNotVerified   = errors.New("email not verified")
	ErrInvalidName        = errors.New("name is required")
	ErrInvalidPassword    = errors.New("password must be at least 8 characters")
	ErrInvalidPath        = errors.New("invalid update path")
)

// IdentityVerifier valida tokens de un proveedor de identidad externo.
type IdentityVerifier interface {
	Verify(ctx context.Context, idToken string) (ExternalClaims, error)
}

// AuthResult es la respuesta de login, registro e intercambio con Google.
type AuthResult struct {
	AccountID string `json:"id"`
	Token     string `json:"token"`
	Created   bool   `json:"-"`
}

// CreateAccountInput son los datos de registro con contraseña.
type CreateAccountInput struct {
	Name     string
	Email    string
	Password string
}

// AccountService coordina las reglas de negocio de cuentas.
type AccountService struct {
	logger       *zap.Logger
	accounts     repository.AccountRepository
	verification *VerificationService
	tokens       *TokenService
	identity     IdentityVerifier
	sender       email.Sender
	now          func() time.Time
}

func NewAccountService(logger *zap.Logger, accounts repository.AccountRepository, verification *VerificationService, tokens *TokenService, identity IdentityVerifier, sender email.Sender) *AccountService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AccountService{
		logger:       logger,
		accounts:     accounts,
		verification: verification,
		tokens:       tokens,
		identity:     identity,
		sender:       sender,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// CreateAccount registra una cuenta con contraseña. El email debe estar verificado.
func (s *AccountService) CreateAccount(ctx context.Context, input CreateAccountInput) (AuthResult, error) {
	emailAddr := normalizeEmail(input.Email)
	name := strings.TrimSpace(input.Name)

	if _, err := s.accounts.GetByEmail(ctx, emailAddr); err == nil {
		return AuthResult{}, ErrConflict
	} else if !errors.Is(err, domain.ErrAccountNotFound) {
		return AuthResult{}, err
	}

	verified, err := s.verification.IsVerified(ctx, emailAddr)
	if err != nil {
		return AuthResult{}, err
	}
	if !verified {
		return AuthResult{}, ErrEmailNotVerified
	}

	if name == "" {
		return AuthResult{}, ErrInvalidName
	}
	if !isValidEmail(emailAddr) {
		return AuthResult{}, ErrInvalidEmail
	}
	if len(input.Password) < minPasswordLength {
		return AuthResult{}, ErrInvalidPassword
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return AuthResult{}, err
	}

	now := s.now()
	account := domain.Account{
		ID:           uuid.NewString(),
		Name:         name,
		Email:        emailAddr,
		PasswordHash: string(hash),
		Profile:      domain.NewProfile(now),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.accounts.Create(ctx, account); err != nil {
		if errors.Is(err, domain.ErrEmailTaken) {
			return AuthResult{}, ErrConflict
		}
		return AuthResult{}, err
	}

	token, err := s.tokens.IssueFor(account.ID)
	if err != nil {
		return AuthResult{}, err
	}

	if err := s.verification.Consume(ctx, emailAddr); err != nil {
		s.logger.Warn("delete verification record failed", zap.Error(err), zap.String("email", emailAddr))
	}
	if s.sender != nil {
		if err := s.sender.SendAccountCreated(ctx, emailAddr, name); err != nil {
			s.logger.Warn("send account created email failed", zap.Error(err), zap.String("email", emailAddr))
		}
	}
	s.logger.Info("account created", zap.String("account_id", account.ID), zap.String("email", emailAddr))
	return AuthResult{AccountID: account.ID, Token: token, Created: true}, nil
}

// Login autentica con email y contraseña.
func (s *AccountService) Login(ctx context.Context, emailAddr, password string) (AuthResult, error) {
	emailAddr = normalizeEmail(emailAddr)
	if emailAddr == "" || password == "" {
		return AuthResult{}, ErrInvalidCredentials
	}
	account, err := s.accounts.GetByEmail(ctx, emailAddr)
	if err != nil {
		return AuthResult{}, err
	}
	if account.PasswordHash == "" {
		return AuthResult{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)); err != nil {
		return AuthResult{}, ErrInvalidCredentials
	}
	token, err := s.tokens.IssueFor(account.ID)
	if err != nil {
		return AuthResult{}, err
	}
	return AuthResult{AccountID: account.ID, Token: token}, nil
}

// AuthenticateGoogle intercambia un ID token de Google por un token propio,
// creando la cuenta la primera vez.
func (s *AccountService) AuthenticateGoogle(ctx context.Context, idToken string) (AuthResult, error) {
	if s.identity == nil {
		return AuthResult{}, ErrUpstream
	}
	claims, err := s.identity.Verify(ctx, idToken)
	if err != nil {
		return AuthResult{}, err
	}
	emailAddr := normalizeEmail(claims.Email)
	if !isValidEmail(emailAddr) {
		return AuthResult{}, ErrInvalidEmail
	}
	if !bool(claims.EmailVerified) {
		return AuthResult{}, ErrEmailNotVerified
	}

	account, err := s.accounts.GetByEmail(ctx, emailAddr)
	if err == nil {
		token, err := s.tokens.IssueFor(account.ID)
		if err != nil {
			return AuthResult{}, err
		}
		return AuthResult{AccountID: account.ID, Token: token}, nil
	}
	if !errors.Is(err, domain.ErrAccountNotFound) {
		return AuthResult{}, err
	}

	now := s.now()
	account = domain.Account{
		ID:               uuid.NewString(),
		Name:             strings.TrimSpace(claims.Name),
		Email:            emailAddr,
		ExternalID:       claims.Subject,
		ExternalProvider: ProviderGoogle,
		Profile:          domain.NewProfile(now),
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.accounts.Create(ctx, account); err != nil {
		if errors.Is(err, domain.ErrEmailTaken) {
			return AuthResult{}, ErrConflict
		}
		return AuthResult{}, err
	}
	token, err := s.tokens.IssueFor(account.ID)
	if err != nil {
		return AuthResult{}, err
	}
	s.logger.Info("account created from google identity", zap.String("account_id", account.ID), zap.String("email", emailAddr))
	return AuthResult{AccountID: account.ID, Token: token, Created: true}, nil
}

func (s *AccountService) GetAccount(ctx context.Context, id string) (domain.Account, error) {
	return s.accounts.GetByID(ctx, id)
}

// UpdateAccount aplica ediciones de name, email o password en una sola escritura.
func (s *AccountService) UpdateAccount(ctx context.Context, id string, updates []domain.AccountUpdate) (domain.Account, error) {
	var changes domain.AccountChanges
	for _, u := range updates {
		switch domain.AccountField(strings.TrimSpace(u.Path)) {
		case domain.AccountFieldName:
			name := strings.TrimSpace(u.Value)
			if name == "" {
				return domain.Account{}, ErrInvalidName
			}
			changes.Name = &name
		case domain.AccountFieldEmail:
			emailAddr := normalizeEmail(u.Value)
			if !isValidEmail(emailAddr) {
				return domain.Account{}, ErrInvalidEmail
			}
			changes.Email = &emailAddr
		case domain.AccountFieldPassword:
			if len(u.Value) < minPasswordLength {
				return domain.Account{}, ErrInvalidPassword
			}
			hash, err := bcrypt.GenerateFromPassword([]byte(u.Value), bcrypt.DefaultCost)
			if err != nil {
				return domain.Account{}, err
			}
			hashed := string(hash)
			changes.PasswordHash = &hashed
		default:
			return domain.Account{}, ErrInvalidPath
		}
	}
	if changes.Empty() {
		return s.accounts.GetByID(ctx, id)
	}

	account, err := s.accounts.Update(ctx, id, changes, s.now())
	if errors.Is(err, domain.ErrEmailTaken) {
		return domain.Account{}, ErrConflict
	}
	return account, err
}

func (s *AccountService) DeleteAccount(ctx context.Context, id string) error {
	if err := s.accounts.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info("account deleted", zap.String("account_id", id))
	return nil
}
