package audit

import (
	"context"

	"github.com/google/uuid"

	id "flock/pkg/domain"
	"flock/pkg/requestcontext"
)

// Store persists audit events. Postgres writes join the caller's transaction
// so an event commits or rolls back with the change it describes.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListByMember(ctx context.Context, churchID id.ChurchID, memberID id.MemberID) ([]Event, error)
}

// Publisher captures structured audit events. It is append-only and uses the
// storage layer for persistence so tests can swap sinks easily.
type Publisher struct {
	store Store
}

func NewPublisher(store Store) *Publisher {
	return &Publisher{store: store}
}

func (p *Publisher) Emit(ctx context.Context, base Event) error {
	if base.ID == uuid.Nil {
		base.ID = uuid.New()
	}
	if base.Timestamp.IsZero() {
		base.Timestamp = requestcontext.Now(ctx)
	}
	if base.RequestID == "" {
		base.RequestID = requestcontext.RequestID(ctx)
	}
	return p.store.Append(ctx, base)
}

func (p *Publisher) ListByMember(ctx context.Context, churchID id.ChurchID, memberID id.MemberID) ([]Event, error) {
	return p.store.ListByMember(ctx, churchID, memberID)
}
