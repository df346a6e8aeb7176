package service

import (
	"context"
	"sort"

	"flock/internal/exit/models"
	id "flock/pkg/domain"
	dErrors "flock/pkg/domain-errors"
)

// MemberHistory flattens a member's exit records into lifecycle events in
// chronological order.
func (s *Service) MemberHistory(ctx context.Context, churchID id.ChurchID, memberID id.MemberID) ([]models.HistoryEvent, error) {
	exits, err := s.exits.ListByMember(ctx, churchID, memberID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load member exits")
	}

	events := make([]models.HistoryEvent, 0, len(exits)*2)
	for _, rec := range exits {
		events = append(events, models.HistoryEvent{
			Type:       models.HistoryExited,
			ExitID:     rec.ID,
			ExitType:   rec.ExitType,
			OccurredAt: rec.CreatedAt,
			Actor:      rec.CreatedBy,
		})
		switch {
		case rec.Status == models.StatusReinstated && rec.ReinstatedAt != nil:
			events = append(events, models.HistoryEvent{
				Type:       models.HistoryReinstated,
				ExitID:     rec.ID,
				ExitType:   rec.ExitType,
				OccurredAt: *rec.ReinstatedAt,
				Actor:      rec.ReinstatedBy,
			})
		case rec.Status == models.StatusDeleted && rec.DeletedAt != nil:
			events = append(events, models.HistoryEvent{
				Type:       models.HistoryExitDeleted,
				ExitID:     rec.ID,
				ExitType:   rec.ExitType,
				OccurredAt: *rec.DeletedAt,
				Actor:      rec.DeletedBy,
			})
		}
	}
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].OccurredAt.Before(events[j].OccurredAt)
	})
	return events, nil
}
