package domain

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestParseTagID_Canonicalization validates the ingestion invariant:
// every accepted identifier has exactly one canonical form.
func TestParseTagID_Canonicalization(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  TagID
	}{
		{"colon separated lowercase", "aa:bb:cc:dd", "AABBCCDD"},
		{"dash separated uppercase", "AA-BB-CC-DD", "AABBCCDD"},
		{"bare hex mixed case", "aAbBcCdD", "AABBCCDD"},
		{"surrounding whitespace", "  aa:bb:cc:dd ", "AABBCCDD"},
		{"double size UID", "04:A1:B2:C3:D4:E5:F6", "04A1B2C3D4E5F6"},
		{"triple size UID", "04a1b2c3d4e5f6a7b8c9", "04A1B2C3D4E5F6A7B8C9"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseTagID(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

// TestParseTagID_Rejections validates trust boundary behavior: identifiers
// that cannot have come from a supported reader are rejected outright.
func TestParseTagID_Rejections(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"not hex", "zz:zz:zz:zz"},
		{"odd nibble count", "aabbc"},
		{"unsupported length", "aabb"},
		{"SQL injection attempt", "'; DROP TABLE tags;--"},
		{"null byte injection", "aabbccdd\x00"},
		{"oversized input", strings.Repeat("ab", 500)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseTagID(tt.input)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidID)
		})
	}
}

// TestTagID_Bytes verifies canonical form round-trips to the raw UID bytes.
func TestTagID_Bytes(t *testing.T) {
	id, err := ParseTagID("aa:bb:cc:dd")
	require.NoError(t, err)
	assert.Equal(t, []byte{0xAA, 0xBB, 0xCC, 0xDD}, id.Bytes())
}

// TestParseMemberID_Invariants validates the parsing invariant:
// member IDs must be valid, non-empty, non-nil UUIDs.
func TestParseMemberID_Invariants(t *testing.T) {
	t.Run("rejects empty string", func(t *testing.T) {
		_, err := ParseMemberID("")
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrInvalidID)
	})

	t.Run("rejects invalid format", func(t *testing.T) {
		_, err := ParseMemberID("not-a-uuid")
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrInvalidID)
	})

	t.Run("rejects nil UUID", func(t *testing.T) {
		_, err := ParseMemberID(uuid.Nil.String())
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrInvalidID)
	})

	t.Run("accepts valid UUID", func(t *testing.T) {
		validUUID := uuid.New()
		id, err := ParseMemberID(validUUID.String())
		require.NoError(t, err)
		assert.Equal(t, MemberID(validUUID), id)
	})
}

// TestTypeDistinction verifies the compiler enforces type safety.
// This is a compile-time check - if this compiles, the invariant holds.
func TestTypeDistinction(t *testing.T) {
	tagID := TagID("AABBCCDD")
	memberID := NewMemberID()

	// These would fail to compile if types were interchangeable:
	// var _ TagID = memberID   // compile error
	// var _ MemberID = tagID   // compile error

	assert.NotEqual(t, tagID.String(), memberID.String())
}
