package service

import (
	"context"
	"fmt"

	"flock/internal/exit/models"
	member "flock/internal/member/models"
	notification "flock/internal/notification/models"
	"flock/internal/platform/taskqueue"
	"flock/internal/realtime"
)

// enqueueLifecycle schedules the post-commit announcement of a transition.
// The request path never waits on it; a dropped task is only logged.
func (s *Service) enqueueLifecycle(ctx context.Context, event string, rec *models.ExitRecord, m *member.Member) {
	if s.tasks == nil {
		return
	}
	exit := *rec
	var subject member.Member
	if m != nil {
		subject = *m
	}
	ok := s.tasks.Enqueue(taskqueue.Task{
		Name: event,
		Run: func(ctx context.Context) error {
			return s.announce(ctx, event, &exit, &subject)
		},
	})
	if !ok {
		s.logger.WarnContext(ctx, "lifecycle notification dropped",
			"event", event,
			"church_id", rec.ChurchID.String(),
			"exit_id", rec.ID.String())
	}
}

// announce emits the real-time lifecycle event to the church and member rooms
// and creates the church-wide in-app notification. Notifications generated
// here bypass rate limiting.
func (s *Service) announce(ctx context.Context, event string, rec *models.ExitRecord, m *member.Member) error {
	payload := models.LifecyclePayload{
		ExitID:     rec.ID,
		ChurchID:   rec.ChurchID,
		MemberID:   rec.MemberID,
		MemberName: m.FullName(),
		ExitType:   rec.ExitType,
		Status:     rec.Status,
	}
	if s.emitter != nil {
		s.emitter.EmitMany([]string{
			realtime.ChurchRoom(rec.ChurchID),
			realtime.MemberRoom(rec.MemberID),
		}, event, payload)
	}
	if s.notifier == nil {
		return nil
	}

	title, message := lifecycleCopy(event, rec, m)
	_, err := s.notifier.Create(ctx, &notification.CreateRequest{
		ChurchID: rec.ChurchID,
		Title:    title,
		Message:  message,
		Channel:  notification.ChannelInApp,
		Metadata: map[string]any{
			"event":     event,
			"exit_id":   int64(rec.ID),
			"member_id": int64(rec.MemberID),
			"exit_type": string(rec.ExitType),
		},
	}, notification.CreateOptions{Force: true})
	if err != nil {
		return fmt.Errorf("create %s notification: %w", event, err)
	}
	return nil
}

func lifecycleCopy(event string, rec *models.ExitRecord, m *member.Member) (string, string) {
	name := m.FullName()
	if name == "" {
		name = "Member " + rec.MemberID.String()
	}
	if event == models.EventMemberExited {
		if rec.IsSuggestion {
			return "Exit suggested", fmt.Sprintf("%s was suggested for exit (%s).", name, rec.ExitType)
		}
		return "Member exited", fmt.Sprintf("%s was recorded as exited (%s).", name, rec.ExitType)
	}
	if rec.Status == models.StatusDeleted {
		return "Exit record removed", fmt.Sprintf("The exit record for %s was removed and the member is active again.", name)
	}
	return "Member reinstated", fmt.Sprintf("%s was reinstated as an active member.", name)
}
