package models

import (
	"strings"
	"time"

	id "flock/pkg/domain"
	dErrors "flock/pkg/domain-errors"
)

const (
	maxReasonLength = 500
	maxNotesLength  = 4000
	// MaxBulkItems caps the ids accepted by one bulk operation.
	MaxBulkItems = 200

	DefaultPageLimit = 20
	MaxPageLimit     = 100
)

// CreateExitRequest carries the inputs of CreateExit.
type CreateExitRequest struct {
	ChurchID          id.ChurchID
	MemberID          id.MemberID
	ExitType          ExitType
	ExitReason        string
	ExitDate          *time.Time
	IsSuggestion      bool
	SuggestionTrigger string
	Notes             string
	CreatedBy         id.UserID
}

// Normalize trims free-text fields.
func (r *CreateExitRequest) Normalize() {
	r.ExitType = ExitType(strings.ToLower(strings.TrimSpace(string(r.ExitType))))
	r.ExitReason = strings.TrimSpace(r.ExitReason)
	r.SuggestionTrigger = strings.TrimSpace(r.SuggestionTrigger)
	r.Notes = strings.TrimSpace(r.Notes)
}

func (r *CreateExitRequest) Validate() error {
	if r.ChurchID.IsNil() {
		return dErrors.New(dErrors.CodeInvalidPayload, "church_id is required")
	}
	if r.MemberID.IsNil() {
		return dErrors.New(dErrors.CodeInvalidPayload, "member_id is required")
	}
	if !r.ExitType.IsValid() {
		return dErrors.New(dErrors.CodeInvalidPayload, "exit_type is invalid")
	}
	if len(r.ExitReason) > maxReasonLength {
		return dErrors.New(dErrors.CodeInvalidPayload, "exit_reason is too long")
	}
	if len(r.Notes) > maxNotesLength {
		return dErrors.New(dErrors.CodeInvalidPayload, "notes are too long")
	}
	if r.ExitDate != nil && r.ExitDate.IsZero() {
		return dErrors.New(dErrors.CodeInvalidPayload, "exit_date is invalid")
	}
	return nil
}

// UpdateExitRequest carries a partial edit; nil fields are left unchanged.
type UpdateExitRequest struct {
	ChurchID   id.ChurchID
	ExitID     id.ExitID
	ExitType   *ExitType
	ExitReason *string
	ExitDate   *time.Time
	Notes      *string
	UpdatedBy  id.UserID
}

func (r *UpdateExitRequest) Validate() error {
	if r.ChurchID.IsNil() || r.ExitID.IsNil() {
		return dErrors.New(dErrors.CodeInvalidPayload, "exit id is required")
	}
	if r.ExitType == nil && r.ExitReason == nil && r.ExitDate == nil && r.Notes == nil {
		return dErrors.New(dErrors.CodeInvalidPayload, "nothing to update")
	}
	if r.ExitType != nil && !r.ExitType.IsValid() {
		return dErrors.New(dErrors.CodeInvalidPayload, "exit_type is invalid")
	}
	if r.ExitReason != nil && len(*r.ExitReason) > maxReasonLength {
		return dErrors.New(dErrors.CodeInvalidPayload, "exit_reason is too long")
	}
	if r.Notes != nil && len(*r.Notes) > maxNotesLength {
		return dErrors.New(dErrors.CodeInvalidPayload, "notes are too long")
	}
	return nil
}

func (r *UpdateExitRequest) touchesExitFields() bool {
	return r.ExitType != nil || r.ExitReason != nil || r.ExitDate != nil
}

// ListFilter narrows ListExits. Zero values mean "any".
type ListFilter struct {
	Status       Status
	ExitType     ExitType
	MemberID     id.MemberID
	IsSuggestion *bool
	Page         int
	Limit        int
}

// Normalize clamps paging to sane bounds.
func (f *ListFilter) Normalize() {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit < 1 {
		f.Limit = DefaultPageLimit
	}
	if f.Limit > MaxPageLimit {
		f.Limit = MaxPageLimit
	}
}

func (f *ListFilter) Offset() int {
	return (f.Page - 1) * f.Limit
}

// Matches applies the filter to one record; used by the in-memory store.
func (f *ListFilter) Matches(e *ExitRecord) bool {
	if f.Status != "" && e.Status != f.Status {
		return false
	}
	if f.ExitType != "" && e.ExitType != f.ExitType {
		return false
	}
	if !f.MemberID.IsNil() && e.MemberID != f.MemberID {
		return false
	}
	if f.IsSuggestion != nil && e.IsSuggestion != *f.IsSuggestion {
		return false
	}
	return true
}

type ListResult struct {
	Exits []*ExitRecord `json:"exits"`
	Total int           `json:"total"`
	Page  int           `json:"page"`
	Limit int           `json:"limit"`
}

// Statistics summarizes exits for one church.
type Statistics struct {
	Total       int              `json:"total"`
	ByStatus    map[Status]int   `json:"by_status"`
	ByExitType  map[ExitType]int `json:"by_exit_type"`
	Suggestions int              `json:"suggestions"`
	LastThirty  int              `json:"last_30_days"`
	GeneratedAt time.Time        `json:"generated_at"`
}

// HistoryEventType names one lifecycle transition in a member's history.
type HistoryEventType string

const (
	HistoryExited      HistoryEventType = "exited"
	HistoryReinstated  HistoryEventType = "reinstated"
	HistoryExitDeleted HistoryEventType = "exit_deleted"
)

type HistoryEvent struct {
	Type       HistoryEventType `json:"type"`
	ExitID     id.ExitID        `json:"exit_id"`
	ExitType   ExitType         `json:"exit_type"`
	OccurredAt time.Time        `json:"occurred_at"`
	Actor      *id.UserID       `json:"actor,omitempty"`
}

// FixResult reports the outcome of one repair.
type FixResult struct {
	Exit  *ExitRecord `json:"exit"`
	Fixed bool        `json:"fixed"`
}

// BulkResult reports the records a bulk operation transitioned.
type BulkResult struct {
	Processed int           `json:"processed"`
	Exits     []*ExitRecord `json:"exits"`
}
