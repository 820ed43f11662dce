package domain

import "errors"

var (
	ErrAccountNotFound = errors.New("account not found")
	ErrEmailTaken      = errors.New("email already registered")
	ErrFieldNotFound   = errors.New("field not found")
	ErrCollectionFull  = errors.New("collection is full")

	ErrDocumentNotFound = errors.New("document not found")
	ErrDocumentExists   = errors.New("document already exists")
)

// ErrMalformedValue marca un valor de perfil que no se puede decodificar.
var ErrMalformedValue = errors.New("malformed profile value")
