package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/scrippt-tech/scrippt-server/internal/domain"
)

// AccountRepository define el contrato de persistencia para cuentas.
// Cada mutación de perfil es una única actualización atómica del documento.
type AccountRepository interface {
	Create(ctx context.Context, account domain.Account) error
	GetByID(ctx context.Context, id string) (domain.Account, error)
	GetByEmail(ctx context.Context, email string) (domain.Account, error)
	Update(ctx context.Context, id string, changes domain.AccountChanges, at time.Time) (domain.Account, error)
	Delete(ctx context.Context, id string) error

	AddProfileItem(ctx context.Context, id string, item domain.ProfileItem, limit int, at time.Time) error
	UpdateProfileItem(ctx context.Context, id string, item domain.ProfileItem, at time.Time) error
	RemoveProfileItem(ctx context.Context, id string, collection domain.Collection, fieldID string, at time.Time) error
	ReplaceProfile(ctx context.Context, id string, profile domain.Profile, at time.Time) error

	AddDocument(ctx context.Context, id string, doc domain.Document, at time.Time) error
	UpdateDocument(ctx context.Context, id, fieldID string, changes domain.DocumentChanges, at time.Time) error
	DeleteDocument(ctx context.Context, id, fieldID string, at time.Time) error
}

// PgAccountRepository implementa AccountRepository usando pgxpool y una columna JSONB.
type PgAccountRepository struct {
	pool *pgxpool.Pool
}

func NewPgAccountRepository(pool *pgxpool.Pool) *PgAccountRepository {
	return &PgAccountRepository{pool: pool}
}

const accountColumns = `id, name, email, password_hash, external_id, external_provider, profile, documents, created_at, updated_at`

func (r *PgAccountRepository) Create(ctx context.Context, account domain.Account) error {
	profile, err := json.Marshal(account.Profile)
	if err != nil {
		return fmt.Errorf("encode profile: %w", err)
	}
	documents, err := json.Marshal(account.Documents)
	if err != nil {
		return fmt.Errorf("encode documents: %w", err)
	}
	const query = `
		INSERT INTO accounts (` + accountColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7::jsonb, $8::jsonb, $9, $10)
	`
	_, err = r.pool.Exec(ctx, query,
		account.ID,
		account.Name,
		account.Email,
		account.PasswordHash,
		account.ExternalID,
		account.ExternalProvider,
		string(profile),
		string(documents),
		account.CreatedAt,
		account.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return domain.ErrEmailTaken
	}
	return err
}

func (r *PgAccountRepository) GetByID(ctx context.Context, id string) (domain.Account, error) {
	const query = `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`
	return scanAccount(r.pool.QueryRow(ctx, query, id))
}

func (r *PgAccountRepository) GetByEmail(ctx context.Context, email string) (domain.Account, error) {
	const query = `SELECT ` + accountColumns + ` FROM accounts WHERE email = $1`
	return scanAccount(r.pool.QueryRow(ctx, query, email))
}

func (r *PgAccountRepository) Update(ctx context.Context, id string, changes domain.AccountChanges, at time.Time) (domain.Account, error) {
	const query = `
		UPDATE accounts SET
			name = COALESCE($2, name),
			email = COALESCE($3, email),
			password_hash = COALESCE($4, password_hash),
			updated_at = $5
		WHERE id = $1
		RETURNING ` + accountColumns
	account, err := scanAccount(r.pool.QueryRow(ctx, query, id, changes.Name, changes.Email, changes.PasswordHash, at))
	if isUniqueViolation(err) {
		return domain.Account{}, domain.ErrEmailTaken
	}
	return account, err
}

func (r *PgAccountRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM accounts WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrAccountNotFound
	}
	return nil
}

func (r *PgAccountRepository) AddProfileItem(ctx context.Context, id string, item domain.ProfileItem, limit int, at time.Time) error {
	raw, stamp, err := encodeItem(item, at)
	if err != nil {
		return err
	}
	const query = `
		UPDATE accounts SET
			profile = jsonb_set(
				jsonb_set(profile, ARRAY[$2::text], COALESCE(profile -> $2::text, '[]'::jsonb) || jsonb_build_array($3::jsonb)),
				'{date_updated}', $4::jsonb),
			updated_at = $5
		WHERE id = $1 AND jsonb_array_length(COALESCE(profile -> $2::text, '[]'::jsonb)) < $6
	`
	tag, err := r.pool.Exec(ctx, query, id, string(item.Collection()), raw, stamp, at, limit)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return r.missReason(ctx, id, domain.ErrCollectionFull)
	}
	return nil
}

func (r *PgAccountRepository) UpdateProfileItem(ctx context.Context, id string, item domain.ProfileItem, at time.Time) error {
	raw, stamp, err := encodeItem(item, at)
	if err != nil {
		return err
	}
	const query = `
		UPDATE accounts SET
			profile = jsonb_set(
				jsonb_set(profile, ARRAY[$2::text], (
					SELECT jsonb_agg(CASE WHEN t.elem ->> 'field_id' = $3::text THEN $4::jsonb ELSE t.elem END ORDER BY t.ord)
					FROM jsonb_array_elements(profile -> $2::text) WITH ORDINALITY AS t(elem, ord)
				)),
				'{date_updated}', $5::jsonb),
			updated_at = $6
		WHERE id = $1 AND EXISTS (
			SELECT 1 FROM jsonb_array_elements(COALESCE(profile -> $2::text, '[]'::jsonb)) AS e(elem)
			WHERE e.elem ->> 'field_id' = $3::text
		)
	`
	tag, err := r.pool.Exec(ctx, query, id, string(item.Collection()), item.GetFieldID(), raw, stamp, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return r.missReason(ctx, id, domain.ErrFieldNotFound)
	}
	return nil
}

func (r *PgAccountRepository) RemoveProfileItem(ctx context.Context, id string, collection domain.Collection, fieldID string, at time.Time) error {
	stamp, err := json.Marshal(at)
	if err != nil {
		return err
	}
	const query = `
		UPDATE accounts SET
			profile = jsonb_set(
				jsonb_set(profile, ARRAY[$2::text], COALESCE((
					SELECT jsonb_agg(t.elem ORDER BY t.ord)
					FROM jsonb_array_elements(profile -> $2::text) WITH ORDINALITY AS t(elem, ord)
					WHERE t.elem ->> 'field_id' <> $3::text
				), '[]'::jsonb)),
				'{date_updated}', $4::jsonb),
			updated_at = $5
		WHERE id = $1 AND EXISTS (
			SELECT 1 FROM jsonb_array_elements(COALESCE(profile -> $2::text, '[]'::jsonb)) AS e(elem)
			WHERE e.elem ->> 'field_id' = $3::text
		)
	`
	tag, err := r.pool.Exec(ctx, query, id, string(collection), fieldID, string(stamp), at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return r.missReason(ctx, id, domain.ErrFieldNotFound)
	}
	return nil
}

func (r *PgAccountRepository) ReplaceProfile(ctx context.Context, id string, profile domain.Profile, at time.Time) error {
	profile.UpdatedAt = at
	raw, err := json.Marshal(profile)
	if err != nil {
		return fmt.Errorf("encode profile: %w", err)
	}
	tag, err := r.pool.Exec(ctx,
		`UPDATE accounts SET profile = $2::jsonb, updated_at = $3 WHERE id = $1`,
		id, string(raw), at,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrAccountNotFound
	}
	return nil
}

func (r *PgAccountRepository) AddDocument(ctx context.Context, id string, doc domain.Document, at time.Time) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}
	const query = `
		UPDATE accounts SET
			documents = documents || jsonb_build_array($2::jsonb),
			updated_at = $4
		WHERE id = $1 AND NOT EXISTS (
			SELECT 1 FROM jsonb_array_elements(documents) AS e(elem)
			WHERE e.elem ->> 'title' = $3::text
		)
	`
	tag, err := r.pool.Exec(ctx, query, id, string(raw), doc.Title, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return r.missReason(ctx, id, domain.ErrDocumentExists)
	}
	return nil
}

func (r *PgAccountRepository) UpdateDocument(ctx context.Context, id, fieldID string, changes domain.DocumentChanges, at time.Time) error {
	stamp, err := json.Marshal(at)
	if err != nil {
		return err
	}
	var rating *string
	if changes.Rating != nil {
		v := string(*changes.Rating)
		rating = &v
	}
	// jsonb_strip_nulls deja fuera los campos sin cambio.
	const query = `
		UPDATE accounts SET
			documents = (
				SELECT jsonb_agg(CASE WHEN t.elem ->> 'field_id' = $2::text
					THEN t.elem || jsonb_strip_nulls(jsonb_build_object(
						'title', $3::text, 'content', $4::text, 'rating', $5::text, 'date_updated', $6::jsonb))
					ELSE t.elem END ORDER BY t.ord)
				FROM jsonb_array_elements(documents) WITH ORDINALITY AS t(elem, ord)
			),
			updated_at = $7
		WHERE id = $1
			AND EXISTS (
				SELECT 1 FROM jsonb_array_elements(documents) AS e(elem)
				WHERE e.elem ->> 'field_id' = $2::text
			)
			AND ($3::text IS NULL OR NOT EXISTS (
				SELECT 1 FROM jsonb_array_elements(documents) AS e(elem)
				WHERE e.elem ->> 'title' = $3::text AND e.elem ->> 'field_id' <> $2::text
			))
	`
	tag, err := r.pool.Exec(ctx, query, id, fieldID, changes.Title, changes.Content, rating, string(stamp), at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() > 0 {
		return nil
	}
	account, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if _, found := account.Documents.Without(fieldID); !found {
		return domain.ErrDocumentNotFound
	}
	return domain.ErrDocumentExists
}

func (r *PgAccountRepository) DeleteDocument(ctx context.Context, id, fieldID string, at time.Time) error {
	const query = `
		UPDATE accounts SET
			documents = COALESCE((
				SELECT jsonb_agg(t.elem ORDER BY t.ord)
				FROM jsonb_array_elements(documents) WITH ORDINALITY AS t(elem, ord)
				WHERE t.elem ->> 'field_id' <> $2::text
			), '[]'::jsonb),
			updated_at = $3
		WHERE id = $1 AND EXISTS (
			SELECT 1 FROM jsonb_array_elements(documents) AS e(elem)
			WHERE e.elem ->> 'field_id' = $2::text
		)
	`
	tag, err := r.pool.Exec(ctx, query, id, fieldID, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return r.missReason(ctx, id, domain.ErrDocumentNotFound)
	}
	return nil
}

// missReason distingue entre cuenta inexistente y la regla que bloqueó la actualización.
func (r *PgAccountRepository) missReason(ctx context.Context, id string, ruleErr error) error {
	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM accounts WHERE id = $1)`, id).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return domain.ErrAccountNotFound
	}
	return ruleErr
}

func scanAccount(row pgx.Row) (domain.Account, error) {
	var (
		a         domain.Account
		profile   []byte
		documents []byte
	)
	err := row.Scan(
		&a.ID,
		&a.Name,
		&a.Email,
		&a.PasswordHash,
		&a.ExternalID,
		&a.ExternalProvider,
		&profile,
		&documents,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Account{}, domain.ErrAccountNotFound
	}
	if err != nil {
		return domain.Account{}, err
	}
	if err := json.Unmarshal(profile, &a.Profile); err != nil {
		return domain.Account{}, fmt.Errorf("decode profile: %w", err)
	}
	if err := json.Unmarshal(documents, &a.Documents); err != nil {
		return domain.Account{}, fmt.Errorf("decode documents: %w", err)
	}
	return a, nil
}

func encodeItem(item domain.ProfileItem, at time.Time) (string, string, error) {
	raw, err := json.Marshal(item)
	if err != nil {
		return "", "", fmt.Errorf("encode item: %w", err)
	}
	stamp, err := json.Marshal(at)
	if err != nil {
		return "", "", err
	}
	return string(raw), string(stamp), nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
