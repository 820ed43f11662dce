package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// Collection identifica una de las listas del perfil.
type Collection string

const (
	CollectionEducation  Collection = "education"
	CollectionExperience Collection = "experience"
	CollectionSkills     Collection = "skills"
)

// Collections lista las colecciones en el orden en que se serializan.
var Collections = []Collection{CollectionEducation, CollectionExperience, CollectionSkills}

func ParseCollection(s string) (Collection, bool) {
	switch c := Collection(s); c {
	case CollectionEducation, CollectionExperience, CollectionSkills:
		return c, true
	}
	return "", false
}

// ProfileItem es un elemento de alguna colección del perfil.
// Solo Education, Experience y Skill lo implementan.
type ProfileItem interface {
	Collection() Collection
	GetFieldID() string
	WithFieldID(id string) ProfileItem
	isProfileItem()
}

type Education struct {
	FieldID      string `json:"field_id"`
	School       string `json:"school"`
	Degree       string `json:"degree"`
	FieldOfStudy string `json:"field_of_study"`
	Current      bool   `json:"current"`
	Description  string `json:"description"`
}

func (e Education) Collection() Collection { return CollectionEducation }
func (e Education) GetFieldID() string     { return e.FieldID }
func (e Education) WithFieldID(id string) ProfileItem {
	e.FieldID = id
	return e
}
func (Education) isProfileItem() {}

// ExperienceType clasifica una experiencia.
type ExperienceType string

const (
	ExperienceWork      ExperienceType = "work"
	ExperienceVolunteer ExperienceType = "volunteer"
	ExperiencePersonal  ExperienceType = "personal"
	ExperienceOther     ExperienceType = "other"
)

func (t *ExperienceType) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	switch v := ExperienceType(s); v {
	case ExperienceWork, ExperienceVolunteer, ExperiencePersonal, ExperienceOther:
		*t = v
		return nil
	}
	return fmt.Errorf("unknown experience type %q", s)
}

type Experience struct {
	FieldID     string         `json:"field_id"`
	Name        string         `json:"name"`
	Type        ExperienceType `json:"type"`
	At          string         `json:"at"`
	Current     bool           `json:"current"`
	Description string         `json:"description"`
}

func (e Experience) Collection() Collection { return CollectionExperience }
func (e Experience) GetFieldID() string     { return e.FieldID }
func (e Experience) WithFieldID(id string) ProfileItem {
	e.FieldID = id
	return e
}
func (Experience) isProfileItem() {}

type Skill struct {
	FieldID string `json:"field_id"`
	Skill   string `json:"skill"`
}

func (s Skill) Collection() Collection { return CollectionSkills }
func (s Skill) GetFieldID() string     { return s.FieldID }
func (s Skill) WithFieldID(id string) ProfileItem {
	s.FieldID = id
	return s
}
func (Skill) isProfileItem() {}

// Profile es el documento anidado de la cuenta.
type Profile struct {
	Education  []Education  `json:"education"`
	Experience []Experience `json:"experience"`
	Skills     []Skill      `json:"skills"`
	UpdatedAt  time.Time    `json:"date_updated"`
}

// NewProfile crea un perfil vacío.
func NewProfile(now time.Time) Profile {
	return Profile{
		Education:  []Education{},
		Experience: []Experience{},
		Skills:     []Skill{},
		UpdatedAt:  now,
	}
}

func (p Profile) MarshalJSON() ([]byte, error) {
	type alias Profile
	a := alias(p)
	if a.Education == nil {
		a.Education = []Education{}
	}
	if a.Experience == nil {
		a.Experience = []Experience{}
	}
	if a.Skills == nil {
		a.Skills = []Skill{}
	}
	return json.Marshal(a)
}

func (p *Profile) Len(c Collection) int {
	switch c {
	case CollectionEducation:
		return len(p.Education)
	case CollectionExperience:
		return len(p.Experience)
	case CollectionSkills:
		return len(p.Skills)
	}
	return 0
}

// Has indica si la colección contiene un elemento con ese field_id.
func (p *Profile) Has(c Collection, fieldID string) bool {
	return p.indexOf(c, fieldID) >= 0
}

func (p *Profile) indexOf(c Collection, fieldID string) int {
	switch c {
	case CollectionEducation:
		for i := range p.Education {
			if p.Education[i].FieldID == fieldID {
				return i
			}
		}
	case CollectionExperience:
		for i := range p.Experience {
			if p.Experience[i].FieldID == fieldID {
				return i
			}
		}
	case CollectionSkills:
		for i := range p.Skills {
			if p.Skills[i].FieldID == fieldID {
				return i
			}
		}
	}
	return -1
}

// Append agrega el elemento al final de su colección.
func (p *Profile) Append(item ProfileItem) {
	switch v := item.(type) {
	case Education:
		p.Education = append(p.Education, v)
	case Experience:
		p.Experience = append(p.Experience, v)
	case Skill:
		p.Skills = append(p.Skills, v)
	}
}

// Replace sustituye el elemento con el mismo field_id. Devuelve false si no existe.
func (p *Profile) Replace(item ProfileItem) bool {
	i := p.indexOf(item.Collection(), item.GetFieldID())
	if i < 0 {
		return false
	}
	switch v := item.(type) {
	case Education:
		p.Education[i] = v
	case Experience:
		p.Experience[i] = v
	case Skill:
		p.Skills[i] = v
	}
	return true
}

// Remove quita el elemento con ese field_id. Devuelve false si no existe.
func (p *Profile) Remove(c Collection, fieldID string) bool {
	i := p.indexOf(c, fieldID)
	if i < 0 {
		return false
	}
	switch c {
	case CollectionEducation:
		p.Education = append(p.Education[:i], p.Education[i+1:]...)
	case CollectionExperience:
		p.Experience = append(p.Experience[:i], p.Experience[i+1:]...)
	case CollectionSkills:
		p.Skills = append(p.Skills[:i], p.Skills[i+1:]...)
	}
	return true
}

// Clone devuelve una copia que no comparte slices con el original.
func (p Profile) Clone() Profile {
	out := Profile{
		Education:  make([]Education, len(p.Education)),
		Experience: make([]Experience, len(p.Experience)),
		Skills:     make([]Skill, len(p.Skills)),
		UpdatedAt:  p.UpdatedAt,
	}
	copy(out.Education, p.Education)
	copy(out.Experience, p.Experience)
	copy(out.Skills, p.Skills)
	return out
}

// WithFreshFieldIDs devuelve una copia con un field_id nuevo en cada elemento.
func (p Profile) WithFreshFieldIDs(newID func() string) Profile {
	out := p.Clone()
	for i := range out.Education {
		out.Education[i].FieldID = newID()
	}
	for i := range out.Experience {
		out.Experience[i].FieldID = newID()
	}
	for i := range out.Skills {
		out.Skills[i].FieldID = newID()
	}
	return out
}
