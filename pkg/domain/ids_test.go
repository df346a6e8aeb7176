package domain

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "flock/pkg/domain-errors"
)

// TestParseID_Invariants validates the parsing invariant:
// "IDs must be positive base-10 integers that fit in int64"
func TestParseID_Invariants(t *testing.T) {
	t.Run("rejects empty string", func(t *testing.T) {
		_, err := ParseMemberID("")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("rejects zero", func(t *testing.T) {
		_, err := ParseMemberID("0")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("accepts positive id", func(t *testing.T) {
		id, err := ParseMemberID("42")
		require.NoError(t, err)
		assert.Equal(t, MemberID(42), id)
		assert.Equal(t, "42", id.String())
	})
}

func TestParseID_SecurityInvariants(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"SQL injection attempt", "1; DROP TABLE members;--", true},
		{"Negative", "-7", true},
		{"Signed positive", "+7", true},
		{"Whitespace", " 7", true},
		{"Null byte", "7\x00", true},
		{"Overflow", "9223372036854775808", true},
		{"Oversized input", strings.Repeat("9", 100), true},
		{"Max int64", "9223372036854775807", false},
		{"Valid", "7", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseChurchID(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestIsNil(t *testing.T) {
	assert.True(t, ChurchID(0).IsNil())
	assert.True(t, UserID(-1).IsNil())
	assert.False(t, ExitID(5).IsNil())
	assert.False(t, NotificationID(1).IsNil())
}
