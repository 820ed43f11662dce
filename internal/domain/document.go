package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// DocumentRating es la valoración que el usuario da a un documento guardado.
type DocumentRating string

const (
	RatingNone DocumentRating = "none"
	RatingGood DocumentRating = "good"
	RatingBad  DocumentRating = "bad"
)

func (r DocumentRating) Valid() bool {
	switch r {
	case RatingNone, RatingGood, RatingBad:
		return true
	}
	return false
}

func (r *DocumentRating) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	if v := DocumentRating(s); v.Valid() {
		*r = v
		return nil
	}
	return fmt.Errorf("unknown rating %q", s)
}

// Document es un documento guardado en la cuenta. El título es único por cuenta.
type Document struct {
	FieldID   string         `json:"field_id"`
	Title     string         `json:"title"`
	Prompt    string         `json:"prompt"`
	Content   string         `json:"content"`
	Rating    DocumentRating `json:"rating"`
	CreatedAt time.Time      `json:"date_created"`
	UpdatedAt time.Time      `json:"date_updated"`
}

// Documents serializa nil como lista vacía.
type Documents []Document

func (d Documents) MarshalJSON() ([]byte, error) {
	if d == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]Document(d))
}

func (d Documents) indexOf(fieldID string) int {
	for i := range d {
		if d[i].FieldID == fieldID {
			return i
		}
	}
	return -1
}

// HasTitle indica si otro documento (distinto de exceptID) ya usa el título.
func (d Documents) HasTitle(title, exceptID string) bool {
	for i := range d {
		if d[i].Title == title && d[i].FieldID != exceptID {
			return true
		}
	}
	return false
}

// Apply aplica cambios al documento con ese field_id. Devuelve false si no existe.
func (d Documents) Apply(fieldID string, changes DocumentChanges, at time.Time) bool {
	i := d.indexOf(fieldID)
	if i < 0 {
		return false
	}
	if changes.Title != nil {
		d[i].Title = *changes.Title
	}
	if changes.Content != nil {
		d[i].Content = *changes.Content
	}
	if changes.Rating != nil {
		d[i].Rating = *changes.Rating
	}
	d[i].UpdatedAt = at
	return true
}

// Without devuelve una copia sin el documento. Devuelve false si no existe.
func (d Documents) Without(fieldID string) (Documents, bool) {
	i := d.indexOf(fieldID)
	if i < 0 {
		return d, false
	}
	out := make(Documents, 0, len(d)-1)
	out = append(out, d[:i]...)
	return append(out, d[i+1:]...), true
}

func (d Documents) Clone() Documents {
	out := make(Documents, len(d))
	copy(out, d)
	return out
}

// DocumentChanges son las ediciones de un documento; nil deja el campo igual.
type DocumentChanges struct {
	Title   *string
	Content *string
	Rating  *DocumentRating
}
