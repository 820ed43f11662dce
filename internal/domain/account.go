package domain

import "time"

// Account es el documento de cuenta: credenciales, identidad externa y perfil.
type Account struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	Email            string    `json:"email"`
	PasswordHash     string    `json:"-"`
	ExternalID       string    `json:"-"`
	ExternalProvider string    `json:"external_provider,omitempty"`
	Profile          Profile   `json:"profile"`
	Documents        Documents `json:"documents"`
	CreatedAt        time.Time `json:"date_created"`
	UpdatedAt        time.Time `json:"date_updated"`
}

// IsExternal indica si la cuenta solo se autentica con un proveedor externo.
func (a *Account) IsExternal() bool {
	return a.PasswordHash == "" && a.ExternalProvider != ""
}

// AccountField enumera los campos editables de una cuenta.
type AccountField string

const (
	AccountFieldName     AccountField = "name"
	AccountFieldEmail    AccountField = "email"
	AccountFieldPassword AccountField = "password"
)

// AccountUpdate es el formato de cable de una edición de cuenta.
type AccountUpdate struct {
	Path  string `json:"path"`
	Value string `json:"value"`
}

// AccountChanges agrupa los cambios ya validados que se persisten juntos.
// Un puntero nil deja el campo sin cambios.
type AccountChanges struct {
	Name         *string
	Email        *string
	PasswordHash *string
}

func (c AccountChanges) Empty() bool {
	return c.Name == nil && c.Email == nil && c.PasswordHash == nil
}
