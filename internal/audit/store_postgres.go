package audit

import (
	"context"
	"database/sql"
	"fmt"

	id "flock/pkg/domain"
	"flock/pkg/platform/tx"
)

// PostgresStore appends to lifecycle_audit inside the caller's transaction.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Append(ctx context.Context, event Event) error {
	query := `
		INSERT INTO lifecycle_audit (id, church_id, actor_id, action, exit_id, member_id,
			detail, request_id, created_at)
		VALUES ($1, $2, NULLIF($3::bigint, 0), $4, NULLIF($5::bigint, 0), NULLIF($6::bigint, 0), $7, $8, $9)
	`
	_, err := tx.Querier(ctx, s.db).ExecContext(ctx, query,
		event.ID,
		int64(event.ChurchID),
		int64(event.ActorID),
		string(event.Action),
		int64(event.ExitID),
		int64(event.MemberID),
		event.Detail,
		event.RequestID,
		event.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListByMember(ctx context.Context, churchID id.ChurchID, memberID id.MemberID) ([]Event, error) {
	query := `
		SELECT id, church_id, COALESCE(actor_id, 0), action, COALESCE(exit_id, 0),
			COALESCE(member_id, 0), detail, request_id, created_at
		FROM lifecycle_audit
		WHERE church_id = $1 AND member_id = $2
		ORDER BY created_at, id
	`
	rows, err := tx.Querier(ctx, s.db).QueryContext(ctx, query, int64(churchID), int64(memberID))
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var (
			e                                    Event
			churchCol, actor, exitCol, memberCol int64
			action                               string
		)
		if err := rows.Scan(&e.ID, &churchCol, &actor, &action, &exitCol, &memberCol,
			&e.Detail, &e.RequestID, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		e.ChurchID = id.ChurchID(churchCol)
		e.ActorID = id.UserID(actor)
		e.Action = Action(action)
		e.ExitID = id.ExitID(exitCol)
		e.MemberID = id.MemberID(memberCol)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit events: %w", err)
	}
	return out, nil
}
