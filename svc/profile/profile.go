package profile

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Profile is the single record kept per identity.
type Profile struct {
	ID           uuid.UUID `json:"id"`
	UserID       string    `json:"user_id"`
	Name         *string   `json:"name"`
	Email        string    `json:"email"`
	Country      *string   `json:"country"`
	Bio          *string   `json:"bio"`
	AvatarURL    *string   `json:"avatar_url"`
	ProfileImage *string   `json:"profile_image"`
	BannerImage  *string   `json:"banner_image"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Clone returns a deep copy, so callers can hand out snapshots.
func (p *Profile) Clone() *Profile {
	if p == nil {
		return nil
	}
	c := *p
	c.Name = clonePtr(p.Name)
	c.Country = clonePtr(p.Country)
	c.Bio = clonePtr(p.Bio)
	c.AvatarURL = clonePtr(p.AvatarURL)
	c.ProfileImage = clonePtr(p.ProfileImage)
	c.BannerImage = clonePtr(p.BannerImage)
	return &c
}

func clonePtr[T any](v *T) *T {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

// Field is a tri-state patch value. The zero value means "no change", Set
// assigns a value and Null clears the field. Decoded from JSON, an absent key
// is "no change" and an explicit null is "clear".
type Field[T any] struct {
	present bool
	null    bool
	value   T
}

// Set returns a field that assigns v.
func Set[T any](v T) Field[T] {
	return Field[T]{present: true, value: v}
}

// Null returns a field that clears the stored value.
func Null[T any]() Field[T] {
	return Field[T]{present: true, null: true}
}

// FromPtr returns Null for nil and Set otherwise.
func FromPtr[T any](v *T) Field[T] {
	if v == nil {
		return Null[T]()
	}
	return Set(*v)
}

// IsSet reports whether the field changes the stored value.
func (f Field[T]) IsSet() bool { return f.present }

// IsNull reports whether the field clears the stored value.
func (f Field[T]) IsNull() bool { return f.present && f.null }

// Value returns the assigned value. ok is false for unset and null fields.
func (f Field[T]) Value() (v T, ok bool) {
	if !f.present || f.null {
		return v, false
	}
	return f.value, true
}

// Ptr returns the new stored value: nil for a null field.
func (f Field[T]) Ptr() *T {
	if v, ok := f.Value(); ok {
		return &v
	}
	return nil
}

// ApplyTo writes the field into dst when it is set.
func (f Field[T]) ApplyTo(dst **T) {
	if f.present {
		*dst = f.Ptr()
	}
}

func (f *Field[T]) UnmarshalJSON(data []byte) error {
	f.present = true
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		f.null = true
		var zero T
		f.value = zero
		return nil
	}
	f.null = false
	return json.Unmarshal(data, &f.value)
}

// MarshalJSON renders unset and null fields as null. Use IsSet to tell them apart.
func (f Field[T]) MarshalJSON() ([]byte, error) {
	if v, ok := f.Value(); ok {
		return json.Marshal(v)
	}
	return []byte("null"), nil
}

// Patch is a partial profile update. Fields left at their zero value are not
// touched.
type Patch struct {
	Name         Field[string] `json:"name"`
	Country      Field[string] `json:"country"`
	Bio          Field[string] `json:"bio"`
	AvatarURL    Field[string] `json:"avatar_url"`
	ProfileImage Field[string] `json:"profile_image"`
	BannerImage  Field[string] `json:"banner_image"`
}

// IsEmpty reports whether the patch changes nothing.
func (p Patch) IsEmpty() bool {
	return !p.Name.IsSet() && !p.Country.IsSet() && !p.Bio.IsSet() &&
		!p.AvatarURL.IsSet() && !p.ProfileImage.IsSet() && !p.BannerImage.IsSet()
}

// ApplyTo writes every set field into pr.
func (p Patch) ApplyTo(pr *Profile) {
	p.Name.ApplyTo(&pr.Name)
	p.Country.ApplyTo(&pr.Country)
	p.Bio.ApplyTo(&pr.Bio)
	p.AvatarURL.ApplyTo(&pr.AvatarURL)
	p.ProfileImage.ApplyTo(&pr.ProfileImage)
	p.BannerImage.ApplyTo(&pr.BannerImage)
}

// Columns lists the set fields as column name and new value pairs, in a
// stable order. Null fields map to a nil *string.
func (p Patch) Columns() []Column {
	fields := []struct {
		name  string
		field Field[string]
	}{
		{"name", p.Name},
		{"country", p.Country},
		{"bio", p.Bio},
		{"avatar_url", p.AvatarURL},
		{"profile_image", p.ProfileImage},
		{"banner_image", p.BannerImage},
	}
	cols := make([]Column, 0, len(fields))
	for _, f := range fields {
		if f.field.IsSet() {
			cols = append(cols, Column{Name: f.name, Value: f.field.Ptr()})
		}
	}
	return cols
}

// Column is one assignment of a patch.
type Column struct {
	Name  string
	Value *string
}
