package models

import (
	"fmt"
	"strings"
)

// PrincipalType represents which identity slot a principal occupies.
// The consumer and provider slots are resolved independently, but the
// routing layer treats them as mutually exclusive for navigation.
type PrincipalType string

const (
	PrincipalConsumer PrincipalType = "consumer"
	PrincipalProvider PrincipalType = "provider"
)

// Valid returns true for a known principal type
func (t PrincipalType) Valid() bool {
	return t == PrincipalConsumer || t == PrincipalProvider
}

// EntryPath returns the login entry page for the principal type
func (t PrincipalType) EntryPath() string {
	if t == PrincipalProvider {
		return "/provider/login"
	}
	return "/login"
}

// Profile represents an authenticated identity's attributes.
// A profile without an identifier is never published; see Principal.
type Profile struct {
	ID          string `json:"id" validate:"required"`
	DisplayName string `json:"display_name"`
	Email       string `json:"email,omitempty" validate:"omitempty,email"`
	LineID      string `json:"line_id,omitempty"`
	AvatarURL   string `json:"avatar,omitempty"`
}

// HasIdentifier reports whether the profile carries a usable identifier.
// Whitespace-only identifiers count as absent.
func (p *Profile) HasIdentifier() bool {
	return p != nil && strings.TrimSpace(p.ID) != ""
}

// Principal represents the resolved identity driving what the
// application renders: Unauthenticated, or a typed profile.
type Principal struct {
	Type    PrincipalType
	Profile *Profile
}

// Unauthenticated is the zero principal.
var Unauthenticated = Principal{}

// NewPrincipal creates a typed principal for a profile
func NewPrincipal(t PrincipalType, p *Profile) Principal {
	return Principal{Type: t, Profile: p}
}

// IsAuthenticated reports whether a usable profile is present.
// A profile lacking an identifier is equivalent to Unauthenticated.
func (p Principal) IsAuthenticated() bool {
	return p.Profile.HasIdentifier()
}

// String implements fmt.Stringer for log output
func (p Principal) String() string {
	if !p.IsAuthenticated() {
		return "unauthenticated"
	}
	return fmt.Sprintf("%s(%s)", p.Type, p.Profile.ID)
}
