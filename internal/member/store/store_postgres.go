package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"flock/internal/member/models"
	id "flock/pkg/domain"
	"flock/pkg/platform/tx"
)

// PostgresStore reads and writes the lifecycle columns of the members table.
// It joins the caller's transaction when one is carried in the context.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const memberColumns = `id, church_id, first_name, last_name, status, consecutive_absences,
		total_absences, status_changed_at, updated_at`

func (s *PostgresStore) FindByID(ctx context.Context, churchID id.ChurchID, memberID id.MemberID) (*models.Member, error) {
	query := `SELECT ` + memberColumns + ` FROM members WHERE church_id = $1 AND id = $2`
	return s.findOne(ctx, query, churchID, memberID)
}

// FindForUpdate locks the member row for the rest of the transaction so that
// concurrent lifecycle operations on one member serialize.
func (s *PostgresStore) FindForUpdate(ctx context.Context, churchID id.ChurchID, memberID id.MemberID) (*models.Member, error) {
	query := `SELECT ` + memberColumns + ` FROM members WHERE church_id = $1 AND id = $2 FOR UPDATE`
	return s.findOne(ctx, query, churchID, memberID)
}

func (s *PostgresStore) findOne(ctx context.Context, query string, churchID id.ChurchID, memberID id.MemberID) (*models.Member, error) {
	m, err := scanMember(tx.Querier(ctx, s.db).QueryRowContext(ctx, query, int64(churchID), int64(memberID)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find member: %w", err)
	}
	return m, nil
}

func (s *PostgresStore) ListByIDs(ctx context.Context, churchID id.ChurchID, memberIDs []id.MemberID) (map[id.MemberID]*models.Member, error) {
	out := make(map[id.MemberID]*models.Member, len(memberIDs))
	if len(memberIDs) == 0 {
		return out, nil
	}
	ids := make([]int64, len(memberIDs))
	for i, memberID := range memberIDs {
		ids[i] = int64(memberID)
	}
	query := `SELECT ` + memberColumns + ` FROM members WHERE church_id = $1 AND id = ANY($2)`
	rows, err := tx.Querier(ctx, s.db).QueryContext(ctx, query, int64(churchID), pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		out[m.ID] = m
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate members: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) MarkExited(ctx context.Context, churchID id.ChurchID, memberID id.MemberID, status models.Status, at time.Time) error {
	if !status.IsValid() || status.IsActive() {
		return fmt.Errorf("mark exited: invalid inactive status %q", status)
	}
	query := `
		UPDATE members
		SET status = $3, status_changed_at = $4, updated_at = $4
		WHERE church_id = $1 AND id = $2
	`
	return s.execOne(ctx, "mark member exited", query, int64(churchID), int64(memberID), string(status), at)
}

func (s *PostgresStore) Restore(ctx context.Context, churchID id.ChurchID, memberID id.MemberID, at time.Time) error {
	query := `
		UPDATE members
		SET status = 'active', consecutive_absences = 0, status_changed_at = $3, updated_at = $3
		WHERE church_id = $1 AND id = $2
	`
	return s.execOne(ctx, "restore member", query, int64(churchID), int64(memberID), at)
}

func (s *PostgresStore) execOne(ctx context.Context, op, query string, args ...any) error {
	res, err := tx.Querier(ctx, s.db).ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", op, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMember(row rowScanner) (*models.Member, error) {
	var (
		m               models.Member
		memberID        int64
		churchID        int64
		status          string
		statusChangedAt sql.NullTime
	)
	if err := row.Scan(&memberID, &churchID, &m.FirstName, &m.LastName, &status,
		&m.ConsecutiveAbsences, &m.TotalAbsences, &statusChangedAt, &m.UpdatedAt); err != nil {
		return nil, err
	}
	m.ID = id.MemberID(memberID)
	m.ChurchID = id.ChurchID(churchID)
	m.Status = models.Status(status)
	if statusChangedAt.Valid {
		t := statusChangedAt.Time
		m.StatusChangedAt = &t
	}
	return &m, nil
}
