package models

import (
	"time"

	member "flock/internal/member/models"
	id "flock/pkg/domain"
	dErrors "flock/pkg/domain-errors"
)

// Status is the lifecycle state of one exit record.
type Status string

const (
	StatusActive     Status = "ACTIVE"
	StatusReinstated Status = "REINSTATED"
	StatusDeleted    Status = "DELETED"
)

// IsValid checks if the status is one of the supported enum values.
func (s Status) IsValid() bool {
	switch s {
	case StatusActive, StatusReinstated, StatusDeleted:
		return true
	}
	return false
}

// IsTerminal reports whether the record can no longer transition.
func (s Status) IsTerminal() bool {
	return s == StatusReinstated || s == StatusDeleted
}

func (s Status) String() string {
	return string(s)
}

// ExitType is the reason category of an exit.
type ExitType string

const (
	ExitTypeDeceased     ExitType = "deceased"
	ExitTypeRelocated    ExitType = "relocated"
	ExitTypeTransferred  ExitType = "transferred"
	ExitTypeVoluntary    ExitType = "voluntary"
	ExitTypeInactivity   ExitType = "inactivity"
	ExitTypeDisciplinary ExitType = "disciplinary"
	ExitTypeOther        ExitType = "other"
)

var exitTypeStatus = map[ExitType]member.Status{
	ExitTypeDeceased:     member.StatusDeceased,
	ExitTypeRelocated:    member.StatusRelocated,
	ExitTypeTransferred:  member.StatusTransferred,
	ExitTypeVoluntary:    member.StatusLeft,
	ExitTypeInactivity:   member.StatusInactive,
	ExitTypeDisciplinary: member.StatusRemoved,
	ExitTypeOther:        member.StatusInactive,
}

func (t ExitType) IsValid() bool {
	_, ok := exitTypeStatus[t]
	return ok
}

// MemberStatus is the inactive classification a member receives for this
// exit type. Unknown types classify as inactive.
func (t ExitType) MemberStatus() member.Status {
	if st, ok := exitTypeStatus[t]; ok {
		return st
	}
	return member.StatusInactive
}

func (t ExitType) String() string {
	return string(t)
}

// ExitRecord documents that a member left a church. Records are never hard
// deleted; terminal statuses keep the history.
type ExitRecord struct {
	ID                id.ExitID   `json:"id"`
	ChurchID          id.ChurchID `json:"church_id"`
	MemberID          id.MemberID `json:"member_id"`
	ExitType          ExitType    `json:"exit_type"`
	ExitReason        string      `json:"exit_reason,omitempty"`
	ExitDate          time.Time   `json:"exit_date"`
	ProcessedBy       *id.UserID  `json:"processed_by,omitempty"`
	IsSuggestion      bool        `json:"is_suggestion"`
	SuggestionTrigger string      `json:"suggestion_trigger,omitempty"`
	Notes             string      `json:"notes,omitempty"`
	Status            Status      `json:"status"`
	CreatedBy         *id.UserID  `json:"created_by,omitempty"`
	UpdatedBy         *id.UserID  `json:"updated_by,omitempty"`
	ReinstatedBy      *id.UserID  `json:"reinstated_by,omitempty"`
	ReinstatedAt      *time.Time  `json:"reinstated_at,omitempty"`
	DeletedBy         *id.UserID  `json:"deleted_by,omitempty"`
	DeletedAt         *time.Time  `json:"deleted_at,omitempty"`
	CreatedAt         time.Time   `json:"created_at"`
	UpdatedAt         time.Time   `json:"updated_at"`
}

// NewExitRecord creates an ACTIVE exit record from a validated request.
func NewExitRecord(req *CreateExitRequest, now time.Time) (*ExitRecord, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	exitDate := now
	if req.ExitDate != nil {
		exitDate = *req.ExitDate
	}
	return &ExitRecord{
		ChurchID:          req.ChurchID,
		MemberID:          req.MemberID,
		ExitType:          req.ExitType,
		ExitReason:        req.ExitReason,
		ExitDate:          exitDate,
		ProcessedBy:       userRef(req.CreatedBy),
		IsSuggestion:      req.IsSuggestion,
		SuggestionTrigger: req.SuggestionTrigger,
		Notes:             req.Notes,
		Status:            StatusActive,
		CreatedBy:         userRef(req.CreatedBy),
		CreatedAt:         now,
		UpdatedAt:         now,
	}, nil
}

// IsActive reports whether the record still holds the member out.
func (e *ExitRecord) IsActive() bool {
	return e.Status == StatusActive
}

// Reinstate moves an ACTIVE record to REINSTATED.
func (e *ExitRecord) Reinstate(by id.UserID, now time.Time) error {
	if !e.IsActive() {
		return dErrors.New(dErrors.CodeConflict, "exit record is not active")
	}
	e.Status = StatusReinstated
	e.ReinstatedBy = userRef(by)
	e.ReinstatedAt = &now
	e.UpdatedBy = userRef(by)
	e.UpdatedAt = now
	return nil
}

// SoftDelete moves an ACTIVE record to DELETED.
func (e *ExitRecord) SoftDelete(by id.UserID, now time.Time) error {
	if !e.IsActive() {
		return dErrors.New(dErrors.CodeConflict, "exit record is not active")
	}
	e.Status = StatusDeleted
	e.DeletedBy = userRef(by)
	e.DeletedAt = &now
	e.UpdatedBy = userRef(by)
	e.UpdatedAt = now
	return nil
}

// ApplyUpdate edits the mutable fields. Only notes may change once the
// record is terminal. It reports whether the exit type changed.
func (e *ExitRecord) ApplyUpdate(req *UpdateExitRequest, now time.Time) (bool, error) {
	if e.Status.IsTerminal() && req.touchesExitFields() {
		return false, dErrors.New(dErrors.CodeConflict, "only notes can be edited on a closed exit record")
	}
	typeChanged := false
	if req.ExitType != nil && *req.ExitType != e.ExitType {
		e.ExitType = *req.ExitType
		typeChanged = true
	}
	if req.ExitReason != nil {
		e.ExitReason = *req.ExitReason
	}
	if req.ExitDate != nil {
		e.ExitDate = *req.ExitDate
	}
	if req.Notes != nil {
		e.Notes = *req.Notes
	}
	e.UpdatedBy = userRef(req.UpdatedBy)
	e.UpdatedAt = now
	return typeChanged, nil
}

func userRef(u id.UserID) *id.UserID {
	if u.IsNil() {
		return nil
	}
	return &u
}
