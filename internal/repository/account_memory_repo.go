package repository

import (
	"context"
	"sync"
	"time"

	"github.com/scrippt-tech/scrippt-server/internal/domain"
)

// MemoryAccountRepository guarda cuentas en memoria. Se usa sin DATABASE_URL y en tests.
type MemoryAccountRepository struct {
	mu       sync.RWMutex
	accounts map[string]domain.Account
	byEmail  map[string]string
}

func NewMemoryAccountRepository() *MemoryAccountRepository {
	return &MemoryAccountRepository{
		accounts: make(map[string]domain.Account),
		byEmail:  make(map[string]string),
	}
}

func (r *MemoryAccountRepository) Create(_ context.Context, account domain.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byEmail[account.Email]; ok {
		return domain.ErrEmailTaken
	}
	account.Profile = account.Profile.Clone()
	account.Documents = account.Documents.Clone()
	r.accounts[account.ID] = account
	r.byEmail[account.Email] = account.ID
	return nil
}

func (r *MemoryAccountRepository) GetByID(_ context.Context, id string) (domain.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.get(id)
}

func (r *MemoryAccountRepository) GetByEmail(_ context.Context, email string) (domain.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byEmail[email]
	if !ok {
		return domain.Account{}, domain.ErrAccountNotFound
	}
	return r.get(id)
}

func (r *MemoryAccountRepository) get(id string) (domain.Account, error) {
	a, ok := r.accounts[id]
	if !ok {
		return domain.Account{}, domain.ErrAccountNotFound
	}
	a.Profile = a.Profile.Clone()
	a.Documents = a.Documents.Clone()
	return a, nil
}

func (r *MemoryAccountRepository) Update(_ context.Context, id string, changes domain.AccountChanges, at time.Time) (domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[id]
	if !ok {
		return domain.Account{}, domain.ErrAccountNotFound
	}
	if changes.Email != nil && *changes.Email != a.Email {
		if _, taken := r.byEmail[*changes.Email]; taken {
			return domain.Account{}, domain.ErrEmailTaken
		}
		delete(r.byEmail, a.Email)
		a.Email = *changes.Email
		r.byEmail[a.Email] = id
	}
	if changes.Name != nil {
		a.Name = *changes.Name
	}
	if changes.PasswordHash != nil {
		a.PasswordHash = *changes.PasswordHash
	}
	a.UpdatedAt = at
	r.accounts[id] = a
	return r.get(id)
}

func (r *MemoryAccountRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[id]
	if !ok {
		return domain.ErrAccountNotFound
	}
	delete(r.accounts, id)
	delete(r.byEmail, a.Email)
	return nil
}

func (r *MemoryAccountRepository) AddProfileItem(_ context.Context, id string, item domain.ProfileItem, limit int, at time.Time) error {
	return r.mutateProfile(id, at, func(p *domain.Profile) error {
		if p.Len(item.Collection()) >= limit {
			return domain.ErrCollectionFull
		}
		p.Append(item)
		return nil
	})
}

func (r *MemoryAccountRepository) UpdateProfileItem(_ context.Context, id string, item domain.ProfileItem, at time.Time) error {
	return r.mutateProfile(id, at, func(p *domain.Profile) error {
		if !p.Replace(item) {
			return domain.ErrFieldNotFound
		}
		return nil
	})
}

func (r *MemoryAccountRepository) RemoveProfileItem(_ context.Context, id string, collection domain.Collection, fieldID string, at time.Time) error {
	return r.mutateProfile(id, at, func(p *domain.Profile) error {
		if !p.Remove(collection, fieldID) {
			return domain.ErrFieldNotFound
		}
		return nil
	})
}

func (r *MemoryAccountRepository) ReplaceProfile(_ context.Context, id string, profile domain.Profile, at time.Time) error {
	return r.mutateProfile(id, at, func(p *domain.Profile) error {
		*p = profile.Clone()
		return nil
	})
}

// mutateProfile aplica fn sobre una copia y solo la guarda si no hubo error.
func (r *MemoryAccountRepository) mutateProfile(id string, at time.Time, fn func(*domain.Profile) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[id]
	if !ok {
		return domain.ErrAccountNotFound
	}
	profile := a.Profile.Clone()
	if err := fn(&profile); err != nil {
		return err
	}
	profile.UpdatedAt = at
	a.Profile = profile
	a.UpdatedAt = at
	r.accounts[id] = a
	return nil
}

func (r *MemoryAccountRepository) AddDocument(_ context.Context, id string, doc domain.Document, at time.Time) error {
	return r.mutateDocuments(id, at, func(docs domain.Documents) (domain.Documents, error) {
		if docs.HasTitle(doc.Title, "") {
			return nil, domain.ErrDocumentExists
		}
		return append(docs, doc), nil
	})
}

func (r *MemoryAccountRepository) UpdateDocument(_ context.Context, id, fieldID string, changes domain.DocumentChanges, at time.Time) error {
	return r.mutateDocuments(id, at, func(docs domain.Documents) (domain.Documents, error) {
		if changes.Title != nil && docs.HasTitle(*changes.Title, fieldID) {
			return nil, domain.ErrDocumentExists
		}
		if !docs.Apply(fieldID, changes, at) {
			return nil, domain.ErrDocumentNotFound
		}
		return docs, nil
	})
}

func (r *MemoryAccountRepository) DeleteDocument(_ context.Context, id, fieldID string, at time.Time) error {
	return r.mutateDocuments(id, at, func(docs domain.Documents) (domain.Documents, error) {
		out, ok := docs.Without(fieldID)
		if !ok {
			return nil, domain.ErrDocumentNotFound
		}
		return out, nil
	})
}

func (r *MemoryAccountRepository) mutateDocuments(id string, at time.Time, fn func(domain.Documents) (domain.Documents, error)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[id]
	if !ok {
		return domain.ErrAccountNotFound
	}
	docs, err := fn(a.Documents.Clone())
	if err != nil {
		return err
	}
	a.Documents = docs
	a.UpdatedAt = at
	r.accounts[id] = a
	return nil
}
