// Package domain holds the typed identifiers shared across the controller.
//
// IDs are parsed once at trust boundaries (admin API, reader input) and
// passed around as distinct types so a tag identifier can never be confused
// with a member identifier at compile time.
package domain

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// ErrInvalidID is returned when an identifier fails canonical parsing.
var ErrInvalidID = errors.New("invalid id")

// TagID is the canonical form of an NFC tag identifier: the UID bytes as
// uppercase hex with no separators. Two TagIDs are equal iff the underlying
// byte identifiers are equal, so it is safe as a map key and in SQL equality.
type TagID string

// NFC UIDs come in single (4 byte), double (7 byte), and triple (10 byte)
// sizes per ISO 14443-3 cascade levels.
var tagIDLengths = map[int]bool{4: true, 7: true, 10: true}

// ParseTagID normalizes a reader-supplied identifier into canonical form.
// Accepted input is hex with optional ':' or '-' separators in any case,
// e.g. "aa:bb:cc:dd", "AA-BB-CC-DD" and "aabbccdd" all parse to "AABBCCDD".
func ParseTagID(raw string) (TagID, error) {
	cleaned := strings.Map(func(r rune) rune {
		if r == ':' || r == '-' {
			return -1
		}
		return r
	}, strings.TrimSpace(raw))

	b, err := hex.DecodeString(cleaned)
	if err != nil {
		return "", fmt.Errorf("%w: tag id %q is not hex", ErrInvalidID, raw)
	}
	if !tagIDLengths[len(b)] {
		return "", fmt.Errorf("%w: tag id must be 4, 7 or 10 bytes, got %d", ErrInvalidID, len(b))
	}
	return TagID(strings.ToUpper(hex.EncodeToString(b))), nil
}

// Bytes returns the underlying byte identifier.
func (t TagID) Bytes() []byte {
	b, _ := hex.DecodeString(string(t))
	return b
}

func (t TagID) String() string { return string(t) }

// MemberID identifies a member. Distinct from TagID at compile time.
type MemberID uuid.UUID

// ParseMemberID parses and validates a member ID string.
// Rejects empty input, malformed UUIDs, and the nil UUID.
func ParseMemberID(raw string) (MemberID, error) {
	u, err := uuid.Parse(raw)
	if err != nil {
		return MemberID{}, fmt.Errorf("%w: member id %q", ErrInvalidID, raw)
	}
	if u == uuid.Nil {
		return MemberID{}, fmt.Errorf("%w: member id must not be nil", ErrInvalidID)
	}
	return MemberID(u), nil
}

// NewMemberID returns a fresh random member ID.
func NewMemberID() MemberID {
	return MemberID(uuid.New())
}

func (m MemberID) String() string { return uuid.UUID(m).String() }

// IsNil reports whether the ID is the zero value.
func (m MemberID) IsNil() bool { return uuid.UUID(m) == uuid.Nil }
