package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	member "flock/internal/member/models"
	dErrors "flock/pkg/domain-errors"
)

var testNow = time.Date(2026, 5, 10, 9, 30, 0, 0, time.UTC)

func validCreate() *CreateExitRequest {
	return &CreateExitRequest{
		ChurchID:  7,
		MemberID:  42,
		ExitType:  ExitTypeDeceased,
		CreatedBy: 3,
	}
}

func TestExitTypeMemberStatus(t *testing.T) {
	cases := map[ExitType]member.Status{
		ExitTypeDeceased:     member.StatusDeceased,
		ExitTypeRelocated:    member.StatusRelocated,
		ExitTypeTransferred:  member.StatusTransferred,
		ExitTypeVoluntary:    member.StatusLeft,
		ExitTypeInactivity:   member.StatusInactive,
		ExitTypeDisciplinary: member.StatusRemoved,
		ExitTypeOther:        member.StatusInactive,
	}
	for exitType, want := range cases {
		t.Run(string(exitType), func(t *testing.T) {
			assert.True(t, exitType.IsValid())
			assert.Equal(t, want, exitType.MemberStatus())
			assert.False(t, exitType.MemberStatus().IsActive())
		})
	}

	assert.False(t, ExitType("moved_on").IsValid())
	assert.Equal(t, member.StatusInactive, ExitType("moved_on").MemberStatus())
}

func TestNewExitRecord(t *testing.T) {
	t.Run("defaults exit date to now and starts active", func(t *testing.T) {
		rec, err := NewExitRecord(validCreate(), testNow)
		require.NoError(t, err)
		assert.Equal(t, StatusActive, rec.Status)
		assert.Equal(t, testNow, rec.ExitDate)
		require.NotNil(t, rec.CreatedBy)
		assert.EqualValues(t, 3, *rec.CreatedBy)
	})

	t.Run("rejects unknown exit type", func(t *testing.T) {
		req := validCreate()
		req.ExitType = "vanished"
		_, err := NewExitRecord(req, testNow)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidPayload))
	})

	t.Run("rejects missing member", func(t *testing.T) {
		req := validCreate()
		req.MemberID = 0
		_, err := NewExitRecord(req, testNow)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidPayload))
	})
}

func TestTransitions(t *testing.T) {
	t.Run("reinstate then delete fails", func(t *testing.T) {
		rec, err := NewExitRecord(validCreate(), testNow)
		require.NoError(t, err)

		require.NoError(t, rec.Reinstate(5, testNow.Add(time.Hour)))
		assert.Equal(t, StatusReinstated, rec.Status)
		assert.True(t, rec.Status.IsTerminal())
		require.NotNil(t, rec.ReinstatedAt)

		err = rec.SoftDelete(5, testNow.Add(2*time.Hour))
		assert.True(t, dErrors.HasCode(err, dErrors.CodeConflict))
		assert.Equal(t, StatusReinstated, rec.Status)
	})

	t.Run("soft delete stamps actor", func(t *testing.T) {
		rec, err := NewExitRecord(validCreate(), testNow)
		require.NoError(t, err)

		require.NoError(t, rec.SoftDelete(9, testNow))
		assert.Equal(t, StatusDeleted, rec.Status)
		require.NotNil(t, rec.DeletedBy)
		assert.EqualValues(t, 9, *rec.DeletedBy)
	})
}

func TestApplyUpdate(t *testing.T) {
	reason := "moved abroad"
	relocated := ExitTypeRelocated
	notes := "left a forwarding address"

	t.Run("active record accepts type change", func(t *testing.T) {
		rec, err := NewExitRecord(validCreate(), testNow)
		require.NoError(t, err)

		changed, err := rec.ApplyUpdate(&UpdateExitRequest{ExitType: &relocated, ExitReason: &reason, UpdatedBy: 4}, testNow)
		require.NoError(t, err)
		assert.True(t, changed)
		assert.Equal(t, ExitTypeRelocated, rec.ExitType)
		assert.Equal(t, reason, rec.ExitReason)
	})

	t.Run("closed record accepts only notes", func(t *testing.T) {
		rec, err := NewExitRecord(validCreate(), testNow)
		require.NoError(t, err)
		require.NoError(t, rec.Reinstate(4, testNow))

		_, err = rec.ApplyUpdate(&UpdateExitRequest{ExitType: &relocated}, testNow)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeConflict))

		changed, err := rec.ApplyUpdate(&UpdateExitRequest{Notes: &notes}, testNow)
		require.NoError(t, err)
		assert.False(t, changed)
		assert.Equal(t, notes, rec.Notes)
	})
}

func TestListFilter(t *testing.T) {
	f := ListFilter{Page: 0, Limit: 1000}
	f.Normalize()
	assert.Equal(t, 1, f.Page)
	assert.Equal(t, MaxPageLimit, f.Limit)
	assert.Equal(t, 0, f.Offset())

	yes := true
	f = ListFilter{Status: StatusActive, IsSuggestion: &yes}
	rec := &ExitRecord{Status: StatusActive, IsSuggestion: true}
	assert.True(t, f.Matches(rec))
	rec.IsSuggestion = false
	assert.False(t, f.Matches(rec))
}
