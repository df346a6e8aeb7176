// Package milestone tracks member growth milestones and pauses pending ones
// while the member is out of the church.
package milestone

import (
	"time"

	id "flock/pkg/domain"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusPaused    Status = "paused"
	StatusCompleted Status = "completed"
)

// Record is one milestone for a member, such as baptism class or membership
// course. PausedByExit names the exit that paused it.
type Record struct {
	ID           int64       `json:"id"`
	ChurchID     id.ChurchID `json:"church_id"`
	MemberID     id.MemberID `json:"member_id"`
	Name         string      `json:"name"`
	Status       Status      `json:"status"`
	PausedByExit *id.ExitID  `json:"paused_by_exit,omitempty"`
	UpdatedAt    time.Time   `json:"updated_at"`
}
