package models

import (
	id "flock/pkg/domain"
)

// Real-time event names emitted after a lifecycle transition commits.
const (
	EventMemberExited     = "member:exited"
	EventMemberReinstated = "member:reinstated"
)

// LifecycleEvent is handed to dependent-domain hooks.
type LifecycleEvent struct {
	ChurchID id.ChurchID
	MemberID id.MemberID
	ExitID   id.ExitID
	ExitType ExitType
	ActorID  id.UserID
}

// NewLifecycleEvent describes a transition of rec made by actor.
func NewLifecycleEvent(rec *ExitRecord, actor id.UserID) LifecycleEvent {
	return LifecycleEvent{
		ChurchID: rec.ChurchID,
		MemberID: rec.MemberID,
		ExitID:   rec.ID,
		ExitType: rec.ExitType,
		ActorID:  actor,
	}
}

// LifecyclePayload is the body of member:exited and member:reinstated frames.
type LifecyclePayload struct {
	ExitID     id.ExitID   `json:"exit_id"`
	ChurchID   id.ChurchID `json:"church_id"`
	MemberID   id.MemberID `json:"member_id"`
	MemberName string      `json:"member_name,omitempty"`
	ExitType   ExitType    `json:"exit_type"`
	Status     Status      `json:"status"`
}
