package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/scrippt-tech/scrippt-server/internal/domain"
	"github.com/scrippt-tech/scrippt-server/internal/repository"
)

var (
	ErrInvalidTitle     = errors.New("document title is required")
	ErrInvalidRating    = errors.New("invalid document rating")
	ErrDocumentNotFound = domain.ErrDocumentNotFound
	ErrDocumentExists   = domain.ErrDocumentExists
)

// DocumentInput son los datos de un documento nuevo.
type DocumentInput struct {
	Title   string
	Prompt  string
	Content string
}

// DocumentService guarda, edita y borra documentos de la cuenta.
type DocumentService struct {
	logger   *zap.Logger
	accounts repository.AccountRepository
	now      func() time.Time
	newID    func() string
}

func NewDocumentService(logger *zap.Logger, accounts repository.AccountRepository) *DocumentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DocumentService{
		logger:   logger,
		accounts: accounts,
		now:      func() time.Time { return time.Now().UTC() },
		newID:    uuid.NewString,
	}
}

// Create agrega un documento con field_id nuevo y rating none.
func (s *DocumentService) Create(ctx context.Context, accountID string, in DocumentInput) (domain.Account, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return domain.Account{}, ErrInvalidTitle
	}
	now := s.now()
	doc := domain.Document{
		FieldID:   s.newID(),
		Title:     title,
		Prompt:    in.Prompt,
		Content:   in.Content,
		Rating:    domain.RatingNone,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.accounts.AddDocument(context.WithoutCancel(ctx), accountID, doc, now); err != nil {
		return domain.Account{}, err
	}
	s.logger.Info("document created", zap.String("account_id", accountID), zap.String("field_id", doc.FieldID))
	return s.accounts.GetByID(ctx, accountID)
}

// Update edita título, contenido o rating; el prompt original no cambia.
func (s *DocumentService) Update(ctx context.Context, accountID, fieldID string, changes domain.DocumentChanges) (domain.Account, error) {
	if strings.TrimSpace(fieldID) == "" {
		return domain.Account{}, ErrDocumentNotFound
	}
	if changes.Title != nil {
		title := strings.TrimSpace(*changes.Title)
		if title == "" {
			return domain.Account{}, ErrInvalidTitle
		}
		changes.Title = &title
	}
	if changes.Rating != nil && !changes.Rating.Valid() {
		return domain.Account{}, ErrInvalidRating
	}
	if err := s.accounts.UpdateDocument(context.WithoutCancel(ctx), accountID, fieldID, changes, s.now()); err != nil {
		return domain.Account{}, err
	}
	return s.accounts.GetByID(ctx, accountID)
}

func (s *DocumentService) Delete(ctx context.Context, accountID, fieldID string) (domain.Account, error) {
	if err := s.accounts.DeleteDocument(context.WithoutCancel(ctx), accountID, fieldID, s.now()); err != nil {
		return domain.Account{}, err
	}
	s.logger.Info("document deleted", zap.String("account_id", accountID), zap.String("field_id", fieldID))
	return s.accounts.GetByID(ctx, accountID)
}
