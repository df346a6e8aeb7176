package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/lib/pq"

	"flock/internal/notification/models"
	id "flock/pkg/domain"
)

// PostgresStore persists notifications in the notifications table.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const notificationColumns = `id, church_id, user_id, member_id, title, message, channel, metadata, read, read_at, created_at`

// visibleClause matches rows addressed to the user ($2) or church broadcasts.
const visibleClause = `(user_id = $2 OR (user_id IS NULL AND member_id IS NULL))`

func (s *PostgresStore) Create(ctx context.Context, n *models.Notification) error {
	metadata, err := json.Marshal(n.Metadata)
	if err != nil {
		return fmt.Errorf("encode notification metadata: %w", err)
	}
	var userID, memberID sql.NullInt64
	if n.UserID != nil {
		userID = sql.NullInt64{Int64: int64(*n.UserID), Valid: true}
	}
	if n.MemberID != nil {
		memberID = sql.NullInt64{Int64: int64(*n.MemberID), Valid: true}
	}
	query := `
		INSERT INTO notifications (church_id, user_id, member_id, title, message, channel, metadata, read, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, false, $8)
		RETURNING id
	`
	var rowID int64
	if err := s.db.QueryRowContext(ctx, query,
		int64(n.ChurchID), userID, memberID, n.Title, n.Message, string(n.Channel), metadata, n.CreatedAt,
	).Scan(&rowID); err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	n.ID = id.NotificationID(rowID)
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, churchID id.ChurchID, notificationID id.NotificationID) (*models.Notification, error) {
	query := `SELECT ` + notificationColumns + ` FROM notifications WHERE church_id = $1 AND id = $2`
	n, err := scanNotification(s.db.QueryRowContext(ctx, query, int64(churchID), int64(notificationID)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find notification: %w", err)
	}
	return n, nil
}

func (s *PostgresStore) List(ctx context.Context, churchID id.ChurchID, userID id.UserID, filter models.ListFilter) ([]*models.Notification, int, error) {
	channels := make([]string, 0, len(filter.Channels))
	for _, c := range filter.Channels {
		channels = append(channels, string(c))
	}
	where := []string{`church_id = $1`, visibleClause, `channel = ANY($3)`}
	args := []any{int64(churchID), int64(userID), pq.Array(channels)}
	if filter.Read != nil {
		args = append(args, *filter.Read)
		where = append(where, `read = $`+strconv.Itoa(len(args)))
	}
	if filter.Search != "" {
		args = append(args, "%"+escapeLike(filter.Search)+"%")
		n := strconv.Itoa(len(args))
		where = append(where, `(title ILIKE $`+n+` OR message ILIKE $`+n+`)`)
	}
	clause := strings.Join(where, " AND ")

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM notifications WHERE `+clause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count notifications: %w", err)
	}

	args = append(args, filter.Limit, filter.Offset())
	query := `SELECT ` + notificationColumns + ` FROM notifications WHERE ` + clause +
		` ORDER BY created_at DESC, id DESC LIMIT $` + strconv.Itoa(len(args)-1) + ` OFFSET $` + strconv.Itoa(len(args))
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	out := []*models.Notification{}
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan notification: %w", err)
		}
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate notifications: %w", err)
	}
	return out, total, nil
}

func (s *PostgresStore) MarkRead(ctx context.Context, churchID id.ChurchID, notificationID id.NotificationID, at time.Time) error {
	query := `
		UPDATE notifications SET read = true, read_at = COALESCE(read_at, $3)
		WHERE church_id = $1 AND id = $2
	`
	res, err := s.db.ExecContext(ctx, query, int64(churchID), int64(notificationID), at)
	if err != nil {
		return fmt.Errorf("mark notification read: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark notification read: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) MarkAllRead(ctx context.Context, churchID id.ChurchID, userID id.UserID, at time.Time) ([]id.NotificationID, error) {
	query := `
		UPDATE notifications SET read = true, read_at = $3
		WHERE church_id = $1 AND ` + visibleClause + ` AND NOT read
		RETURNING id
	`
	rows, err := s.db.QueryContext(ctx, query, int64(churchID), int64(userID), at)
	if err != nil {
		return nil, fmt.Errorf("mark all notifications read: %w", err)
	}
	defer rows.Close()

	ids := []id.NotificationID{}
	for rows.Next() {
		var v int64
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan notification id: %w", err)
		}
		ids = append(ids, id.NotificationID(v))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate notification ids: %w", err)
	}
	slices.Sort(ids)
	return ids, nil
}

func (s *PostgresStore) Delete(ctx context.Context, churchID id.ChurchID, notificationID id.NotificationID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM notifications WHERE church_id = $1 AND id = $2`, int64(churchID), int64(notificationID))
	if err != nil {
		return fmt.Errorf("delete notification: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete notification: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanNotification(row rowScanner) (*models.Notification, error) {
	var (
		n                models.Notification
		rowID, churchID  int64
		userID, memberID sql.NullInt64
		channel          string
		metadata         []byte
		readAt           sql.NullTime
	)
	if err := row.Scan(&rowID, &churchID, &userID, &memberID, &n.Title, &n.Message, &channel, &metadata, &n.Read, &readAt, &n.CreatedAt); err != nil {
		return nil, err
	}
	n.ID = id.NotificationID(rowID)
	n.ChurchID = id.ChurchID(churchID)
	n.Channel = models.Channel(channel)
	if userID.Valid {
		v := id.UserID(userID.Int64)
		n.UserID = &v
	}
	if memberID.Valid {
		v := id.MemberID(memberID.Int64)
		n.MemberID = &v
	}
	if readAt.Valid {
		t := readAt.Time
		n.ReadAt = &t
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &n.Metadata); err != nil {
			return nil, fmt.Errorf("decode notification metadata: %w", err)
		}
	}
	return &n, nil
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// PostgresPreferences persists preferences in notification_preferences.
type PostgresPreferences struct {
	db *sql.DB
}

func NewPostgresPreferences(db *sql.DB) *PostgresPreferences {
	return &PostgresPreferences{db: db}
}

func (s *PostgresPreferences) Get(ctx context.Context, churchID id.ChurchID, userID id.UserID) (*models.Preference, error) {
	query := `SELECT channels, updated_at FROM notification_preferences WHERE church_id = $1 AND user_id = $2`
	var raw []byte
	p := models.Preference{ChurchID: churchID, UserID: userID}
	if err := s.db.QueryRowContext(ctx, query, int64(churchID), int64(userID)).Scan(&raw, &p.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find notification preference: %w", err)
	}
	if err := json.Unmarshal(raw, &p.Channels); err != nil {
		return nil, fmt.Errorf("decode notification preference: %w", err)
	}
	return &p, nil
}

func (s *PostgresPreferences) Save(ctx context.Context, p *models.Preference) error {
	raw, err := json.Marshal(p.Channels)
	if err != nil {
		return fmt.Errorf("encode notification preference: %w", err)
	}
	query := `
		INSERT INTO notification_preferences (church_id, user_id, channels, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (church_id, user_id) DO UPDATE SET channels = EXCLUDED.channels, updated_at = EXCLUDED.updated_at
	`
	if _, err := s.db.ExecContext(ctx, query, int64(p.ChurchID), int64(p.UserID), raw, p.UpdatedAt); err != nil {
		return fmt.Errorf("save notification preference: %w", err)
	}
	return nil
}
