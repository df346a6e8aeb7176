package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"flock/internal/exit/models"
	id "flock/pkg/domain"
	"flock/pkg/platform/tx"
)

// uniqueViolation is the Postgres SQLSTATE for unique_violation.
const uniqueViolation = "23505"

// PostgresStore persists exit records in member_exits. The partial unique
// index member_exits_one_active backs the one-active-exit rule.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const exitColumns = `id, church_id, member_id, exit_type, exit_reason, exit_date, processed_by,
		is_suggestion, suggestion_trigger, notes, status, created_by, updated_by,
		reinstated_by, reinstated_at, deleted_by, deleted_at, created_at, updated_at`

func (s *PostgresStore) Create(ctx context.Context, rec *models.ExitRecord) error {
	query := `
		INSERT INTO member_exits (church_id, member_id, exit_type, exit_reason, exit_date,
			processed_by, is_suggestion, suggestion_trigger, notes, status, created_by,
			created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id
	`
	var exitID int64
	err := tx.Querier(ctx, s.db).QueryRowContext(ctx, query,
		int64(rec.ChurchID), int64(rec.MemberID), string(rec.ExitType), rec.ExitReason, rec.ExitDate,
		nullUser(rec.ProcessedBy), rec.IsSuggestion, rec.SuggestionTrigger, rec.Notes,
		string(rec.Status), nullUser(rec.CreatedBy), rec.CreatedAt, rec.UpdatedAt,
	).Scan(&exitID)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateActive
		}
		return fmt.Errorf("insert exit: %w", err)
	}
	rec.ID = id.ExitID(exitID)
	return nil
}

func (s *PostgresStore) Update(ctx context.Context, rec *models.ExitRecord) error {
	query := `
		UPDATE member_exits
		SET exit_type = $3, exit_reason = $4, exit_date = $5, notes = $6, status = $7,
			updated_by = $8, reinstated_by = $9, reinstated_at = $10, deleted_by = $11,
			deleted_at = $12, updated_at = $13
		WHERE church_id = $1 AND id = $2
	`
	res, err := tx.Querier(ctx, s.db).ExecContext(ctx, query,
		int64(rec.ChurchID), int64(rec.ID), string(rec.ExitType), rec.ExitReason, rec.ExitDate,
		rec.Notes, string(rec.Status), nullUser(rec.UpdatedBy), nullUser(rec.ReinstatedBy),
		nullTime(rec.ReinstatedAt), nullUser(rec.DeletedBy), nullTime(rec.DeletedAt), rec.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateActive
		}
		return fmt.Errorf("update exit: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update exit rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, churchID id.ChurchID, exitID id.ExitID) (*models.ExitRecord, error) {
	query := `SELECT ` + exitColumns + ` FROM member_exits WHERE church_id = $1 AND id = $2`
	return s.findOne(ctx, query, churchID, exitID)
}

// FindForUpdate locks the exit row until the surrounding transaction ends.
func (s *PostgresStore) FindForUpdate(ctx context.Context, churchID id.ChurchID, exitID id.ExitID) (*models.ExitRecord, error) {
	query := `SELECT ` + exitColumns + ` FROM member_exits WHERE church_id = $1 AND id = $2 FOR UPDATE`
	return s.findOne(ctx, query, churchID, exitID)
}

func (s *PostgresStore) findOne(ctx context.Context, query string, churchID id.ChurchID, exitID id.ExitID) (*models.ExitRecord, error) {
	rec, err := scanExit(tx.Querier(ctx, s.db).QueryRowContext(ctx, query, int64(churchID), int64(exitID)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find exit: %w", err)
	}
	return rec, nil
}

func (s *PostgresStore) HasActive(ctx context.Context, churchID id.ChurchID, memberID id.MemberID) (bool, error) {
	query := `SELECT EXISTS (
		SELECT 1 FROM member_exits WHERE church_id = $1 AND member_id = $2 AND status = 'ACTIVE'
	)`
	var exists bool
	if err := tx.Querier(ctx, s.db).QueryRowContext(ctx, query, int64(churchID), int64(memberID)).Scan(&exists); err != nil {
		return false, fmt.Errorf("check active exit: %w", err)
	}
	return exists, nil
}

func (s *PostgresStore) List(ctx context.Context, churchID id.ChurchID, filter models.ListFilter) ([]*models.ExitRecord, int, error) {
	filter.Normalize()
	where, args := filterClause(churchID, filter)

	var total int
	countQuery := `SELECT COUNT(*) FROM member_exits WHERE ` + where
	if err := tx.Querier(ctx, s.db).QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count exits: %w", err)
	}

	query := fmt.Sprintf(`SELECT %s FROM member_exits WHERE %s
		ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`,
		exitColumns, where, len(args)+1, len(args)+2)
	args = append(args, filter.Limit, filter.Offset())
	exits, err := s.query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	return exits, total, nil
}

func (s *PostgresStore) ListByMember(ctx context.Context, churchID id.ChurchID, memberID id.MemberID) ([]*models.ExitRecord, error) {
	query := `SELECT ` + exitColumns + ` FROM member_exits
		WHERE church_id = $1 AND member_id = $2 ORDER BY created_at, id`
	return s.query(ctx, query, int64(churchID), int64(memberID))
}

// ListActive returns ACTIVE records, church-wide when memberID is nil. Per
// member the non-suggestion record sorts first, then newest first.
func (s *PostgresStore) ListActive(ctx context.Context, churchID id.ChurchID, memberID id.MemberID) ([]*models.ExitRecord, error) {
	query := `SELECT ` + exitColumns + ` FROM member_exits
		WHERE church_id = $1 AND status = 'ACTIVE' AND ($2::bigint = 0 OR member_id = $2::bigint)
		ORDER BY member_id, is_suggestion, created_at DESC, id DESC`
	return s.query(ctx, query, int64(churchID), int64(memberID))
}

func (s *PostgresStore) ListLatestPerMember(ctx context.Context, churchID id.ChurchID) ([]*models.ExitRecord, error) {
	query := `SELECT DISTINCT ON (member_id) ` + exitColumns + ` FROM member_exits
		WHERE church_id = $1 ORDER BY member_id, created_at DESC, id DESC`
	return s.query(ctx, query, int64(churchID))
}

func (s *PostgresStore) Statistics(ctx context.Context, churchID id.ChurchID, since time.Time) (*models.Statistics, error) {
	query := `
		SELECT status, exit_type, is_suggestion, COUNT(*),
			COUNT(*) FILTER (WHERE exit_date >= $2)
		FROM member_exits WHERE church_id = $1
		GROUP BY status, exit_type, is_suggestion
	`
	rows, err := tx.Querier(ctx, s.db).QueryContext(ctx, query, int64(churchID), since)
	if err != nil {
		return nil, fmt.Errorf("exit statistics: %w", err)
	}
	defer rows.Close()

	stats := &models.Statistics{
		ByStatus:   make(map[models.Status]int),
		ByExitType: make(map[models.ExitType]int),
	}
	for rows.Next() {
		var (
			status, exitType string
			suggestion       bool
			count, recent    int
		)
		if err := rows.Scan(&status, &exitType, &suggestion, &count, &recent); err != nil {
			return nil, fmt.Errorf("scan exit statistics: %w", err)
		}
		stats.Total += count
		stats.ByStatus[models.Status(status)] += count
		stats.ByExitType[models.ExitType(exitType)] += count
		if suggestion {
			stats.Suggestions += count
		}
		stats.LastThirty += recent
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate exit statistics: %w", err)
	}
	return stats, nil
}

func (s *PostgresStore) query(ctx context.Context, query string, args ...any) ([]*models.ExitRecord, error) {
	rows, err := tx.Querier(ctx, s.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query exits: %w", err)
	}
	defer rows.Close()
	var out []*models.ExitRecord
	for rows.Next() {
		rec, err := scanExit(rows)
		if err != nil {
			return nil, fmt.Errorf("scan exit: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate exits: %w", err)
	}
	return out, nil
}

func filterClause(churchID id.ChurchID, f models.ListFilter) (string, []any) {
	clauses := []string{"church_id = $1"}
	args := []any{int64(churchID)}
	add := func(clause string, arg any) {
		args = append(args, arg)
		clauses = append(clauses, fmt.Sprintf(clause, len(args)))
	}
	if f.Status != "" {
		add("status = $%d", string(f.Status))
	}
	if f.ExitType != "" {
		add("exit_type = $%d", string(f.ExitType))
	}
	if !f.MemberID.IsNil() {
		add("member_id = $%d", int64(f.MemberID))
	}
	if f.IsSuggestion != nil {
		add("is_suggestion = $%d", *f.IsSuggestion)
	}
	return strings.Join(clauses, " AND "), args
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanExit(row rowScanner) (*models.ExitRecord, error) {
	var (
		rec                               models.ExitRecord
		exitID, churchID, memberID        int64
		exitType, status                  string
		processedBy, createdBy, updatedBy sql.NullInt64
		reinstatedBy, deletedBy           sql.NullInt64
		reinstatedAt, deletedAt           sql.NullTime
	)
	err := row.Scan(&exitID, &churchID, &memberID, &exitType, &rec.ExitReason, &rec.ExitDate,
		&processedBy, &rec.IsSuggestion, &rec.SuggestionTrigger, &rec.Notes, &status,
		&createdBy, &updatedBy, &reinstatedBy, &reinstatedAt, &deletedBy, &deletedAt,
		&rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return nil, err
	}
	rec.ID = id.ExitID(exitID)
	rec.ChurchID = id.ChurchID(churchID)
	rec.MemberID = id.MemberID(memberID)
	rec.ExitType = models.ExitType(exitType)
	rec.Status = models.Status(status)
	rec.ProcessedBy = userFromNull(processedBy)
	rec.CreatedBy = userFromNull(createdBy)
	rec.UpdatedBy = userFromNull(updatedBy)
	rec.ReinstatedBy = userFromNull(reinstatedBy)
	rec.DeletedBy = userFromNull(deletedBy)
	rec.ReinstatedAt = timeFromNull(reinstatedAt)
	rec.DeletedAt = timeFromNull(deletedAt)
	return &rec, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

func nullUser(u *id.UserID) sql.NullInt64 {
	if u == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*u), Valid: true}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func userFromNull(v sql.NullInt64) *id.UserID {
	if !v.Valid {
		return nil
	}
	u := id.UserID(v.Int64)
	return &u
}

func timeFromNull(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time
	return &t
}
