package models

import (
	"time"

	id "flock/pkg/domain"
	dErrors "flock/pkg/domain-errors"
)

// Status is the authoritative active/inactive classification of a member.
// Every value other than StatusActive is an inactive sub-classification.
type Status string

const (
	StatusActive      Status = "active"
	StatusInactive    Status = "inactive"
	StatusDeceased    Status = "deceased"
	StatusRelocated   Status = "relocated"
	StatusTransferred Status = "transferred"
	StatusLeft        Status = "left"
	StatusRemoved     Status = "removed"
)

// IsValid checks if the status is one of the supported enum values.
func (s Status) IsValid() bool {
	switch s {
	case StatusActive, StatusInactive, StatusDeceased, StatusRelocated,
		StatusTransferred, StatusLeft, StatusRemoved:
		return true
	}
	return false
}

// IsActive reports whether the status is the active classification.
func (s Status) IsActive() bool {
	return s == StatusActive
}

func (s Status) String() string {
	return string(s)
}

// Member is the slice of the member profile the lifecycle engine owns.
type Member struct {
	ID                  id.MemberID `json:"id"`
	ChurchID            id.ChurchID `json:"church_id"`
	FirstName           string      `json:"first_name"`
	LastName            string      `json:"last_name"`
	Status              Status      `json:"status"`
	ConsecutiveAbsences int         `json:"consecutive_absences"`
	TotalAbsences       int         `json:"total_absences"`
	StatusChangedAt     *time.Time  `json:"status_changed_at,omitempty"`
	UpdatedAt           time.Time   `json:"updated_at"`
}

// NewMember creates an active Member with domain invariant validation.
func NewMember(memberID id.MemberID, churchID id.ChurchID, firstName, lastName string, now time.Time) (*Member, error) {
	if memberID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "member id cannot be empty")
	}
	if churchID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "church id cannot be empty")
	}
	return &Member{
		ID:        memberID,
		ChurchID:  churchID,
		FirstName: firstName,
		LastName:  lastName,
		Status:    StatusActive,
		UpdatedAt: now,
	}, nil
}

// FullName joins first and last name for notification copy.
func (m *Member) FullName() string {
	switch {
	case m.FirstName == "":
		return m.LastName
	case m.LastName == "":
		return m.FirstName
	}
	return m.FirstName + " " + m.LastName
}

// ApplyExit moves the member to an inactive classification.
func (m *Member) ApplyExit(status Status, now time.Time) error {
	if !status.IsValid() || status.IsActive() {
		return dErrors.New(dErrors.CodeInvariantViolation, "exit status must be an inactive classification")
	}
	m.Status = status
	m.StatusChangedAt = &now
	m.UpdatedAt = now
	return nil
}

// ApplyRestore returns the member to active and clears the absence streak
// that usually triggered the exit.
func (m *Member) ApplyRestore(now time.Time) {
	m.Status = StatusActive
	m.ConsecutiveAbsences = 0
	m.StatusChangedAt = &now
	m.UpdatedAt = now
}
