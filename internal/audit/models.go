package audit

import (
	"time"

	"github.com/google/uuid"

	id "flock/pkg/domain"
)

// Action names a lifecycle change recorded in the audit trail.
type Action string

const (
	ActionExitCreated      Action = "exit_created"
	ActionExitUpdated      Action = "exit_updated"
	ActionMemberReinstated Action = "member_reinstated"
	ActionExitDeleted      Action = "exit_deleted"
	ActionExitRepaired     Action = "exit_repaired"
)

// Event is emitted from domain logic to capture key actions. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	ID        uuid.UUID   `json:"id"`
	Timestamp time.Time   `json:"timestamp"`
	ChurchID  id.ChurchID `json:"church_id"`
	ActorID   id.UserID   `json:"actor_id,omitempty"`
	Action    Action      `json:"action"`
	ExitID    id.ExitID   `json:"exit_id,omitempty"`
	MemberID  id.MemberID `json:"member_id,omitempty"`
	Detail    string      `json:"detail,omitempty"`
	RequestID string      `json:"request_id,omitempty"`
}
