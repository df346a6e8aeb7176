package mentorship

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	id "flock/pkg/domain"
	"flock/pkg/platform/tx"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Save(ctx context.Context, a *Assignment) error {
	query := `
		INSERT INTO mentorship_assignments (church_id, mentor_id, mentee_id, status, suspended_by_exit, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`
	var suspendedBy sql.NullInt64
	if a.SuspendedByExit != nil {
		suspendedBy = sql.NullInt64{Int64: int64(*a.SuspendedByExit), Valid: true}
	}
	err := tx.Querier(ctx, s.db).QueryRowContext(ctx, query,
		int64(a.ChurchID), int64(a.MentorID), int64(a.MenteeID), string(a.Status), suspendedBy, a.UpdatedAt,
	).Scan(&a.ID)
	if err != nil {
		return fmt.Errorf("insert mentorship assignment: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListByMember(ctx context.Context, churchID id.ChurchID, memberID id.MemberID) ([]*Assignment, error) {
	query := `
		SELECT id, church_id, mentor_id, mentee_id, status, suspended_by_exit, updated_at
		FROM mentorship_assignments
		WHERE church_id = $1 AND (mentor_id = $2 OR mentee_id = $2)
		ORDER BY id
	`
	rows, err := tx.Querier(ctx, s.db).QueryContext(ctx, query, int64(churchID), int64(memberID))
	if err != nil {
		return nil, fmt.Errorf("list mentorship assignments: %w", err)
	}
	defer rows.Close()

	var out []*Assignment
	for rows.Next() {
		var (
			a                      Assignment
			church, mentor, mentee int64
			status                 string
			suspendedBy            sql.NullInt64
		)
		if err := rows.Scan(&a.ID, &church, &mentor, &mentee, &status, &suspendedBy, &a.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan mentorship assignment: %w", err)
		}
		a.ChurchID = id.ChurchID(church)
		a.MentorID = id.MemberID(mentor)
		a.MenteeID = id.MemberID(mentee)
		a.Status = Status(status)
		if suspendedBy.Valid {
			exitID := id.ExitID(suspendedBy.Int64)
			a.SuspendedByExit = &exitID
		}
		out = append(out, &a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate mentorship assignments: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) SuspendForMember(ctx context.Context, churchID id.ChurchID, memberID id.MemberID, exitID id.ExitID, at time.Time) (int, error) {
	query := `
		UPDATE mentorship_assignments
		SET status = 'suspended', suspended_by_exit = $3, updated_at = $4
		WHERE church_id = $1 AND status = 'active' AND (mentor_id = $2 OR mentee_id = $2)
	`
	return s.exec(ctx, "suspend mentorship assignments", query, int64(churchID), int64(memberID), int64(exitID), at)
}

func (s *PostgresStore) ResumeForExit(ctx context.Context, churchID id.ChurchID, exitID id.ExitID, at time.Time) (int, error) {
	query := `
		UPDATE mentorship_assignments
		SET status = 'active', suspended_by_exit = NULL, updated_at = $3
		WHERE church_id = $1 AND status = 'suspended' AND suspended_by_exit = $2
	`
	return s.exec(ctx, "resume mentorship assignments", query, int64(churchID), int64(exitID), at)
}

func (s *PostgresStore) exec(ctx context.Context, op, query string, args ...any) (int, error) {
	res, err := tx.Querier(ctx, s.db).ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s rows affected: %w", op, err)
	}
	return int(n), nil
}
