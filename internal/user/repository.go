// Package user tracks per-user interaction counters.
package user

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/khmerdict/dictbot/internal/database"
)

//go:generate mockgen -source=repository.go -destination=../mocks/user/mock_repository.go -package=mock_user

// Repository defines operations on user usage records.
type Repository interface {
	Upsert(ctx context.Context, p Profile) error
	FindByID(ctx context.Context, userID int64) (*Record, error)
	Stats(ctx context.Context) (Summary, error)
}

// ErrNotFound is returned by FindByID for an unknown user.
var ErrNotFound = errors.New("user not found")

const (
	upsertConflict = `INSERT INTO users (user_id, first_name, username, chat_count, first_seen, last_seen)
VALUES (?, ?, ?, 1, ?, ?)
ON CONFLICT (user_id) DO UPDATE SET
    chat_count = users.chat_count + 1,
    first_name = excluded.first_name,
    username = excluded.username,
    last_seen = %s(users.last_seen, excluded.last_seen)`

	upsertDuplicateKey = `INSERT INTO users (user_id, first_name, username, chat_count, first_seen, last_seen)
VALUES (?, ?, ?, 1, ?, ?)
ON DUPLICATE KEY UPDATE
    chat_count = chat_count + 1,
    first_name = VALUES(first_name),
    username = VALUES(username),
    last_seen = GREATEST(last_seen, VALUES(last_seen))`

	selectColumns = `SELECT user_id, COALESCE(first_name, '') AS first_name, COALESCE(username, '') AS username,
    chat_count, first_seen, last_seen FROM users`
)

// DBRepository implements Repository on the users table.
type DBRepository struct {
	db  *sqlx.DB
	now func() time.Time
}

// NewDBRepository creates a new DBRepository.
func NewDBRepository(db *sqlx.DB) *DBRepository {
	return &DBRepository{db: db, now: time.Now}
}

func (r *DBRepository) upsertQuery() string {
	switch database.DialectOf(r.db) {
	case database.MySQL:
		return upsertDuplicateKey
	case database.SQLite:
		return r.db.Rebind(fmt.Sprintf(upsertConflict, "MAX"))
	default:
		return r.db.Rebind(fmt.Sprintf(upsertConflict, "GREATEST"))
	}
}

// Upsert creates the user with a count of one, or increments the count and refreshes
// the names of an existing one. It is a single statement so concurrent calls for the
// same user never lose an increment.
func (r *DBRepository) Upsert(ctx context.Context, p Profile) error {
	now := r.now().UTC().Truncate(time.Microsecond)
	var username sql.NullString
	if p.Username != "" {
		username = sql.NullString{String: p.Username, Valid: true}
	}

	if _, err := r.db.ExecContext(ctx, r.upsertQuery(), p.UserID, p.FirstName, username, now, now); err != nil {
		return fmt.Errorf("upsert user %d: %w: %w", p.UserID, database.ErrUnavailable, err)
	}
	return nil
}

// FindByID returns the record of one user.
func (r *DBRepository) FindByID(ctx context.Context, userID int64) (*Record, error) {
	var rec Record
	err := r.db.GetContext(ctx, &rec, r.db.Rebind(selectColumns+` WHERE user_id = ?`), userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("find user %d: %w", userID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find user %d: %w: %w", userID, database.ErrUnavailable, err)
	}
	return &rec, nil
}

// Stats returns the total number of users and the most recently active ones.
// Users seen at the same instant are ordered by first contact, then by id.
func (r *DBRepository) Stats(ctx context.Context) (Summary, error) {
	var summary Summary
	if err := r.db.GetContext(ctx, &summary.Total, `SELECT COUNT(*) FROM users`); err != nil {
		return Summary{}, fmt.Errorf("count users: %w: %w", database.ErrUnavailable, err)
	}

	summary.Recent = []Record{}
	query := fmt.Sprintf("%s ORDER BY last_seen DESC, first_seen ASC, user_id ASC LIMIT %d", selectColumns, RecentLimit)
	if err := r.db.SelectContext(ctx, &summary.Recent, query); err != nil {
		return Summary{}, fmt.Errorf("list recent users: %w: %w", database.ErrUnavailable, err)
	}
	return summary, nil
}
