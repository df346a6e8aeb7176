// Package mentorship owns mentor/mentee assignments and pauses them while a
// participant is out of the church.
package mentorship

import (
	"time"

	id "flock/pkg/domain"
)

type Status string

const (
	StatusActive    Status = "active"
	StatusSuspended Status = "suspended"
	StatusCompleted Status = "completed"
)

// Assignment pairs a mentor with a mentee. SuspendedByExit names the exit
// record that suspended it, so reinstating that exit resumes it.
type Assignment struct {
	ID              int64       `json:"id"`
	ChurchID        id.ChurchID `json:"church_id"`
	MentorID        id.MemberID `json:"mentor_id"`
	MenteeID        id.MemberID `json:"mentee_id"`
	Status          Status      `json:"status"`
	SuspendedByExit *id.ExitID  `json:"suspended_by_exit,omitempty"`
	UpdatedAt       time.Time   `json:"updated_at"`
}

// Involves reports whether the member is either side of the assignment.
func (a *Assignment) Involves(memberID id.MemberID) bool {
	return a.MentorID == memberID || a.MenteeID == memberID
}
