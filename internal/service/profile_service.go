package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/scrippt-tech/scrippt-server/internal/domain"
	"github.com/scrippt-tech/scrippt-server/internal/repository"
)

const DefaultCollectionLimit = 5

var (
	ErrInvalidOperation = errors.New("invalid operation")
	ErrInvalidTarget    = errors.New("invalid target")
	ErrLimitExceeded    = errors.New("collection limit exceeded")
	ErrFieldNotFound    = domain.ErrFieldNotFound
	ErrMalformedValue   = domain.ErrMalformedValue
)

// PatchError indica qué operación detuvo la lista. Las anteriores quedan aplicadas.
type PatchError struct {
	Index  int
	Op     string
	Target string
	Err    error
}

func (e *PatchError) Error() string {
	return fmt.Sprintf("patch operation %d (%s %s): %v", e.Index, e.Op, e.Target, e.Err)
}

func (e *PatchError) Unwrap() error {
	return e.Err
}

// Applied es la cantidad de operaciones confirmadas antes del fallo.
func (e *PatchError) Applied() int {
	return e.Index
}

// Code es el discriminante que se expone en la respuesta HTTP.
func (e *PatchError) Code() string {
	switch {
	case errors.Is(e.Err, ErrInvalidOperation):
		return "invalid_operation"
	case errors.Is(e.Err, ErrInvalidTarget):
		return "invalid_target"
	case errors.Is(e.Err, ErrLimitExceeded):
		return "limit_exceeded"
	case errors.Is(e.Err, ErrFieldNotFound):
		return "field_not_found"
	case errors.Is(e.Err, ErrMalformedValue):
		return "malformed_value"
	case errors.Is(e.Err, domain.ErrAccountNotFound):
		return "account_not_found"
	default:
		return "internal"
	}
}

// ProfileService aplica operaciones add/update/remove sobre el perfil.
// Cada operación se confirma por separado; no hay rollback de las anteriores.
type ProfileService struct {
	logger   *zap.Logger
	accounts repository.AccountRepository
	limit    int
	now      func() time.Time
	newID    func() string
}

func NewProfileService(logger *zap.Logger, accounts repository.AccountRepository, limit int) *ProfileService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if limit <= 0 {
		limit = DefaultCollectionLimit
	}
	return &ProfileService{
		logger:   logger,
		accounts: accounts,
		limit:    limit,
		now:      func() time.Time { return time.Now().UTC() },
		newID:    uuid.NewString,
	}
}

// Apply ejecuta las operaciones en orden y devuelve la cuenta resultante.
// Ante un fallo devuelve *PatchError con el índice de la operación fallida.
func (s *ProfileService) Apply(ctx context.Context, accountID string, ops []domain.PatchOperation) (domain.Account, error) {
	for i, op := range ops {
		if err := ctx.Err(); err != nil {
			return domain.Account{}, &PatchError{Index: i, Op: op.Op, Target: op.Target, Err: err}
		}
		if err := s.applyOne(ctx, accountID, op); err != nil {
			s.logger.Info("profile patch stopped",
				zap.String("account_id", accountID),
				zap.Int("index", i),
				zap.String("op", op.Op),
				zap.String("target", op.Target),
				zap.Error(err),
			)
			return domain.Account{}, &PatchError{Index: i, Op: op.Op, Target: op.Target, Err: err}
		}
	}
	return s.accounts.GetByID(ctx, accountID)
}

func (s *ProfileService) applyOne(ctx context.Context, accountID string, op domain.PatchOperation) error {
	kind := domain.PatchOp(op.Op)
	switch kind {
	case domain.PatchAdd, domain.PatchUpdate, domain.PatchRemove:
	default:
		return ErrInvalidOperation
	}
	target, ok := domain.ParseCollection(op.Target)
	if !ok {
		return ErrInvalidTarget
	}
	value, err := domain.DecodeProfileValue(op.Value)
	if err != nil {
		return err
	}
	if value.Item != nil && value.Item.Collection() != target {
		return fmt.Errorf("%w: %s value for %s target", ErrMalformedValue, value.Kind, target)
	}

	// La operación ya empezó: se confirma aunque el llamador cancele.
	ctx = context.WithoutCancel(ctx)
	at := s.now()

	switch kind {
	case domain.PatchAdd:
		if value.Item == nil {
			return fmt.Errorf("%w: add requires a full %s value", ErrMalformedValue, target)
		}
		item := value.Item.WithFieldID(s.newID())
		err := s.accounts.AddProfileItem(ctx, accountID, item, s.limit, at)
		if errors.Is(err, domain.ErrCollectionFull) {
			return ErrLimitExceeded
		}
		return err
	case domain.PatchUpdate:
		if value.Item == nil {
			return fmt.Errorf("%w: update requires a full %s value", ErrMalformedValue, target)
		}
		if value.Item.GetFieldID() == "" {
			return ErrFieldNotFound
		}
		return s.accounts.UpdateProfileItem(ctx, accountID, value.Item, at)
	case domain.PatchRemove:
		fieldID := value.GetFieldID()
		if fieldID == "" {
			return ErrFieldNotFound
		}
		return s.accounts.RemoveProfileItem(ctx, accountID, target, fieldID, at)
	}
	return ErrInvalidOperation
}

// ReplaceProfile importa un perfil completo con field_id nuevos en cada elemento.
// Es la única vía que no aplica el límite por colección.
func (s *ProfileService) ReplaceProfile(ctx context.Context, accountID string, profile domain.Profile) (domain.Account, error) {
	fresh := profile.WithFreshFieldIDs(s.newID)
	if err := s.accounts.ReplaceProfile(context.WithoutCancel(ctx), accountID, fresh, s.now()); err != nil {
		return domain.Account{}, err
	}
	s.logger.Info("profile replaced",
		zap.String("account_id", accountID),
		zap.Int("education", len(fresh.Education)),
		zap.Int("experience", len(fresh.Experience)),
		zap.Int("skills", len(fresh.Skills)),
	)
	return s.accounts.GetByID(ctx, accountID)
}
