package member

import (
	"strings"
	"time"
	"unicode"
)

// Member is the domain representation of a registered member profile.
// It mirrors the members table and carries no JSON annotations so it can be
// reused by different presentation layers.
type Member struct {
	ID               string
	Name             string
	Email            string
	PhoneNumber      string
	Age              int
	Place            string
	RegistrationDate time.Time
	Version          int64
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Snapshot is an immutable copy of the mutable profile fields, captured when a
// change request is submitted and kept for audit/diff display.
type Snapshot struct {
	Name        string `json:"name"`
	Email       string `json:"email"`
	PhoneNumber string `json:"phoneNumber"`
	Age         int    `json:"age"`
	Place       string `json:"place"`
}

// SnapshotOf captures the profile fields of m.
func SnapshotOf(m Member) Snapshot {
	return Snapshot{
		Name:        m.Name,
		Email:       m.Email,
		PhoneNumber: m.PhoneNumber,
		Age:         m.Age,
		Place:       m.Place,
	}
}

// UpdateRequest is a partial patch over a member profile. A nil field means
// "no change requested", never "clear the field". Age uses a pointer for the
// same reason: an explicit zero must stay distinguishable from an omitted
// value.
type UpdateRequest struct {
	Name        *string `json:"name"`
	Email       *string `json:"email"`
	PhoneNumber *string `json:"phoneNumber"`
	Age         *int    `json:"age"`
	Place       *string `json:"place"`
}

// HasChanges reports whether at least one requested field differs from the
// current member value. Emails compare case-insensitively; everything else is
// exact.
func (r UpdateRequest) HasChanges(m Member) bool {
	if r.Name != nil && *r.Name != m.Name {
		return true
	}
	if r.Email != nil && !strings.EqualFold(strings.TrimSpace(*r.Email), m.Email) {
		return true
	}
	if r.PhoneNumber != nil && *r.PhoneNumber != m.PhoneNumber {
		return true
	}
	if r.Age != nil && *r.Age != m.Age {
		return true
	}
	if r.Place != nil && *r.Place != m.Place {
		return true
	}
	return false
}

// ApplyTo returns a copy of m with every requested field applied. The input
// member is never mutated, so a failed save cannot leak a half-patched value.
// Requested emails are normalized before being set.
func (r UpdateRequest) ApplyTo(m Member) Member {
	out := m
	if r.Name != nil {
		out.Name = *r.Name
	}
	if r.Email != nil {
		out.Email = NormalizeEmail(*r.Email)
	}
	if r.PhoneNumber != nil {
		out.PhoneNumber = *r.PhoneNumber
	}
	if r.Age != nil {
		out.Age = *r.Age
	}
	if r.Place != nil {
		out.Place = *r.Place
	}
	return out
}

// Filters narrows and orders member searches. Zero values mean "no filter".
// Query matches name, email, phone and place case-insensitively.
type Filters struct {
	Query       string
	Name        string
	Email       string
	PhoneNumber string
	Place       string
	AgeMin      int
	AgeMax      int

	RegisteredOn    *time.Time
	RegisteredFrom  *time.Time
	RegisteredUntil *time.Time

	SortBy    []string
	SortOrder string
	Page      int
	PageSize  int
}

// NormalizeEmail lowercases and trims an email so it can serve as a login key.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// NormalizeName collapses repeated whitespace and title-cases each word.
func NormalizeName(name string) string {
	fields := strings.Fields(name)
	for i, f := range fields {
		fields[i] = properCase(f)
	}
	return strings.Join(fields, " ")
}

// NormalizePlace collapses repeated whitespace.
func NormalizePlace(place string) string {
	return strings.Join(strings.Fields(place), " ")
}

func properCase(word string) string {
	runes := []rune(strings.ToLower(word))
	if len(runes) == 0 {
		return word
	}
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}
