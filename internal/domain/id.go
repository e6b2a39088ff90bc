// Package domain holds the shared entity types, identifiers, and error
// taxonomy for the restaurant operations core. Every other package
// depends on domain; domain depends on nothing else in this module.
package domain

import (
	"database/sql/driver"
	"fmt"

	"github.com/google/uuid"
)

// ID is an opaque 128-bit identifier shared by every entity in §3.
type ID uuid.UUID

// NilID is the zero-value identifier, used to represent "unset".
var NilID = ID(uuid.Nil)

// NewID generates a fresh random identifier.
func NewID() ID {
	return ID(uuid.New())
}

// ParseID parses a canonical UUID string into an ID.
func ParseID(s string) (ID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return NilID, fmt.Errorf("parse id %q: %w", s, err)
	}
	return ID(u), nil
}

func (id ID) String() string {
	return uuid.UUID(id).String()
}

// IsNil reports whether the identifier is unset.
func (id ID) IsNil() bool {
	return id == NilID
}

// MarshalJSON implements json.Marshaler.
func (id ID) MarshalJSON() ([]byte, error) {
	return uuid.UUID(id).MarshalText()
}

// UnmarshalJSON implements json.Unmarshaler.
func (id *ID) UnmarshalJSON(b []byte) error {
	var u uuid.UUID
	if err := u.UnmarshalText(trimQuotes(b)); err != nil {
		return err
	}
	*id = ID(u)
	return nil
}

func trimQuotes(b []byte) []byte {
	if len(b) >= 2 && b[0] == '"' && b[len(b)-1] == '"' {
		return b[1 : len(b)-1]
	}
	return b
}

// Value implements driver.Valuer so IDs can be stored directly via
// database/sql (persisted as their canonical string form).
func (id ID) Value() (driver.Value, error) {
	if id.IsNil() {
		return nil, nil
	}
	return id.String(), nil
}

// Scan implements sql.Scanner.
func (id *ID) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*id = NilID
		return nil
	case string:
		parsed, err := ParseID(v)
		if err != nil {
			return err
		}
		*id = parsed
		return nil
	case []byte:
		parsed, err := ParseID(string(v))
		if err != nil {
			return err
		}
		*id = parsed
		return nil
	default:
		return fmt.Errorf("domain.ID: unsupported scan type %T", src)
	}
}
