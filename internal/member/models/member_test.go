package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "flock/pkg/domain-errors"
)

func TestMemberTransitions(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	t.Run("new member starts active", func(t *testing.T) {
		m, err := NewMember(42, 7, "Ada", "Obi", now)
		require.NoError(t, err)
		assert.Equal(t, StatusActive, m.Status)
		assert.Equal(t, "Ada Obi", m.FullName())
	})

	t.Run("rejects missing church", func(t *testing.T) {
		_, err := NewMember(42, 0, "Ada", "Obi", now)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation))
	})

	t.Run("exit requires inactive classification", func(t *testing.T) {
		m, _ := NewMember(42, 7, "Ada", "", now)
		require.Error(t, m.ApplyExit(StatusActive, now))
		require.Error(t, m.ApplyExit(Status("gone"), now))
		require.NoError(t, m.ApplyExit(StatusDeceased, now))
		assert.Equal(t, StatusDeceased, m.Status)
		assert.Equal(t, "Ada", m.FullName())
	})

	t.Run("restore resets absence streak only", func(t *testing.T) {
		m, _ := NewMember(42, 7, "Ada", "Obi", now)
		m.ConsecutiveAbsences = 6
		m.TotalAbsences = 11
		require.NoError(t, m.ApplyExit(StatusInactive, now))
		m.ApplyRestore(now.Add(time.Hour))
		assert.True(t, m.Status.IsActive())
		assert.Equal(t, 0, m.ConsecutiveAbsences)
		assert.Equal(t, 11, m.TotalAbsences)
	})
}
