package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// PatchOp es la acción de una operación de perfil.
type PatchOp string

const (
	PatchAdd    PatchOp = "add"
	PatchUpdate PatchOp = "update"
	PatchRemove PatchOp = "remove"
)

// PatchOperation es el formato de cable de una operación. El valor se decodifica
// al aplicarla para poder reportar el índice de la operación fallida.
type PatchOperation struct {
	Op     string          `json:"op"`
	Target string          `json:"target"`
	Value  json.RawMessage `json:"value"`
}

// ValueKind es la etiqueta de un valor de perfil.
type ValueKind string

const (
	ValueFieldID    ValueKind = "field_id"
	ValueEducation  ValueKind = "education"
	ValueExperience ValueKind = "experience"
	ValueSkills     ValueKind = "skills"
)

// ProfileValue es un valor etiquetado: un elemento completo o solo su field_id.
type ProfileValue struct {
	Kind    ValueKind
	FieldID string
	Item    ProfileItem
}

// ItemValue envuelve un elemento completo.
func ItemValue(item ProfileItem) ProfileValue {
	return ProfileValue{Kind: ValueKind(item.Collection()), Item: item}
}

// FieldIDValue envuelve solo un field_id.
func FieldIDValue(id string) ProfileValue {
	return ProfileValue{Kind: ValueFieldID, FieldID: id}
}

// GetFieldID devuelve el field_id que referencia el valor.
func (v ProfileValue) GetFieldID() string {
	if v.Item != nil {
		return v.Item.GetFieldID()
	}
	return v.FieldID
}

type taggedValue struct {
	Type  ValueKind       `json:"type"`
	Value json.RawMessage `json:"value"`
}

func (v ProfileValue) MarshalJSON() ([]byte, error) {
	var payload any
	if v.Kind == ValueFieldID {
		payload = v.FieldID
	} else {
		payload = v.Item
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(taggedValue{Type: v.Kind, Value: raw})
}

func (v *ProfileValue) UnmarshalJSON(b []byte) error {
	decoded, err := DecodeProfileValue(b)
	if err != nil {
		return err
	}
	*v = decoded
	return nil
}

// DecodeProfileValue decodifica la forma {"type": ..., "value": ...}.
func DecodeProfileValue(raw json.RawMessage) (ProfileValue, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return ProfileValue{}, fmt.Errorf("%w: missing value", ErrMalformedValue)
	}
	var tv taggedValue
	if err := json.Unmarshal(raw, &tv); err != nil {
		return ProfileValue{}, fmt.Errorf("%w: %v", ErrMalformedValue, err)
	}
	if len(tv.Value) == 0 || bytes.Equal(bytes.TrimSpace(tv.Value), []byte("null")) {
		return ProfileValue{}, fmt.Errorf("%w: missing value for type %q", ErrMalformedValue, tv.Type)
	}

	var item ProfileItem
	switch tv.Type {
	case ValueFieldID:
		var id string
		if err := json.Unmarshal(tv.Value, &id); err != nil || id == "" {
			return ProfileValue{}, fmt.Errorf("%w: field_id must be a non-empty string", ErrMalformedValue)
		}
		return FieldIDValue(id), nil
	case ValueEducation:
		var e Education
		if err := json.Unmarshal(tv.Value, &e); err != nil {
			return ProfileValue{}, fmt.Errorf("%w: %v", ErrMalformedValue, err)
		}
		item = e
	case ValueExperience:
		var e Experience
		if err := json.Unmarshal(tv.Value, &e); err != nil {
			return ProfileValue{}, fmt.Errorf("%w: %v", ErrMalformedValue, err)
		}
		item = e
	case ValueSkills:
		var s Skill
		if err := json.Unmarshal(tv.Value, &s); err != nil {
			return ProfileValue{}, fmt.Errorf("%w: %v", ErrMalformedValue, err)
		}
		item = s
	default:
		return ProfileValue{}, fmt.Errorf("%w: unknown value type %q", ErrMalformedValue, tv.Type)
	}
	return ProfileValue{Kind: tv.Type, Item: item}, nil
}
