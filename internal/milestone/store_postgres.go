package milestone

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

func (s *PostgresStore) Save(ctx context.Context, r *Record) error {
	query := `
		INSERT INTO member_milestones (church_id, member_id, name, status, paused_by_exit, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`
	var pausedBy sql.NullInt64
	if r.PausedByExit != nil {
		pausedBy = sql.NullInt64{Int64: int64(*r.PausedByExit), Valid: true}
	}
	err := tx.Querier(ctx, s.db).QueryRowContext(ctx, query,
		int64(r.ChurchID), int64(r.MemberID), r.Name, string(r.Status), pausedBy, r.UpdatedAt,
	).Scan(&r.ID)
	if err != nil {
		return fmt.Errorf("insert milestone: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListByMember(ctx context.Context, churchID id.ChurchID, memberID id.MemberID) ([]*Record, error) {
	query := `
		SELECT id, church_id, member_id, name, status, paused_by_exit, updated_at
		FROM member_milestones
		WHERE church_id = $1 AND member_id = $2
		ORDER BY id
	`
	rows, err := tx.Querier(ctx, s.db).QueryContext(ctx, query, int64(churchID), int64(memberID))
	if err != nil {
		return nil, fmt.Errorf("list milestones: %w", err)
	}
	defer rows.Close()

	var out []*Record
	for rows.Next() {
		var (
			r              Record
			church, member int64
			status         string
			pausedBy       sql.NullInt64
		)
		if err := rows.Scan(&r.ID, &church, &member, &r.Name, &status, &pausedBy, &r.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan milestone: %w", err)
		}
		r.ChurchID = id.ChurchID(church)
		r.MemberID = id.MemberID(member)
		r.Status = Status(status)
		if pausedBy.Valid {
			exitID := id.ExitID(pausedBy.Int64)
			r.PausedByExit = &exitID
		}
		out = append(out, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate milestones: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) PauseForMember(ctx context.Context, churchID id.ChurchID, memberID id.MemberID, exitID id.ExitID, at time.Time) (int, error) {
	query := `
		UPDATE member_milestones
		SET status = 'paused', paused_by_exit = $3, updated_at = $4
		WHERE church_id = $1 AND member_id = $2 AND status = 'pending'
	`
	return s.exec(ctx, "pause milestones", query, int64(churchID), int64(memberID), int64(exitID), at)
}

func (s *PostgresStore) ResumeForExit(ctx context.Context, churchID id.ChurchID, exitID id.ExitID, at time.Time) (int, error) {
	query := `
		UPDATE member_milestones
		SET status = 'pending', paused_by_exit = NULL, updated_at = $3
		WHERE church_id = $1 AND status = 'paused' AND paused_by_exit = $2
	`
	return s.exec(ctx, "resume milestones", query, int64(churchID), int64(exitID), at)
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
