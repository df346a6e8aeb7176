package handler

import (
	"net/url"
	"strconv"
	"time"

	"flock/internal/exit/models"
	id "flock/pkg/domain"
	dErrors "flock/pkg/domain-errors"
)

type createExitBody struct {
	MemberID          id.MemberID     `json:"member_id"`
	ExitType          models.ExitType `json:"exit_type"`
	ExitReason        string          `json:"exit_reason"`
	ExitDate          *time.Time      `json:"exit_date"`
	IsSuggestion      bool            `json:"is_suggestion"`
	SuggestionTrigger string          `json:"suggestion_trigger"`
	Notes             string          `json:"notes"`
}

func (b *createExitBody) toRequest(churchID id.ChurchID, actor id.UserID) *models.CreateExitRequest {
	return &models.CreateExitRequest{
		ChurchID:          churchID,
		MemberID:          b.MemberID,
		ExitType:          b.ExitType,
		ExitReason:        b.ExitReason,
		ExitDate:          b.ExitDate,
		IsSuggestion:      b.IsSuggestion,
		SuggestionTrigger: b.SuggestionTrigger,
		Notes:             b.Notes,
		CreatedBy:         actor,
	}
}

type updateExitBody struct {
	ExitType   *models.ExitType `json:"exit_type"`
	ExitReason *string          `json:"exit_reason"`
	ExitDate   *time.Time       `json:"exit_date"`
	Notes      *string          `json:"notes"`
}

func (b *updateExitBody) toRequest(churchID id.ChurchID, exitID id.ExitID, actor id.UserID) *models.UpdateExitRequest {
	return &models.UpdateExitRequest{
		ChurchID:   churchID,
		ExitID:     exitID,
		ExitType:   b.ExitType,
		ExitReason: b.ExitReason,
		ExitDate:   b.ExitDate,
		Notes:      b.Notes,
		UpdatedBy:  actor,
	}
}

type bulkBody struct {
	IDs []id.ExitID `json:"ids"`
}

type fixAllResponse struct {
	Fixed int `json:"fixed"`
}

type inconsistenciesResponse struct {
	Exits []*models.ExitRecord `json:"exits"`
	Total int                  `json:"total"`
}

type historyResponse struct {
	MemberID id.MemberID           `json:"member_id"`
	Events   []models.HistoryEvent `json:"events"`
}

// parseListFilter reads paging and filter query parameters.
func parseListFilter(q url.Values) (models.ListFilter, error) {
	var f models.ListFilter
	var err error
	if f.Page, err = intParam(q, "page"); err != nil {
		return f, err
	}
	if f.Limit, err = intParam(q, "limit"); err != nil {
		return f, err
	}
	if v := q.Get("status"); v != "" {
		f.Status = models.Status(v)
		if !f.Status.IsValid() {
			return f, dErrors.New(dErrors.CodeInvalidPayload, "status is invalid")
		}
	}
	if v := q.Get("exit_type"); v != "" {
		f.ExitType = models.ExitType(v)
		if !f.ExitType.IsValid() {
			return f, dErrors.New(dErrors.CodeInvalidPayload, "exit_type is invalid")
		}
	}
	if v := q.Get("member_id"); v != "" {
		if f.MemberID, err = id.ParseMemberID(v); err != nil {
			return f, dErrors.Wrap(err, dErrors.CodeInvalidPayload, "member_id is invalid")
		}
	}
	if v := q.Get("is_suggestion"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return f, dErrors.New(dErrors.CodeInvalidPayload, "is_suggestion must be a boolean")
		}
		f.IsSuggestion = &b
	}
	return f, nil
}

func intParam(q url.Values, name string) (int, error) {
	v := q.Get(name)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, dErrors.New(dErrors.CodeInvalidPayload, name+" must be a non-negative integer")
	}
	return n, nil
}
