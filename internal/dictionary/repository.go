// Package dictionary provides read access to the seeded word list and the batch writes used to seed it.
package dictionary

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/khmerdict/dictbot/internal/database"
)

//go:generate mockgen -source=repository.go -destination=../mocks/dictionary/mock_repository.go -package=mock_dictionary

// Repository defines operations on dictionary entries.
type Repository interface {
	LookupWord(ctx context.Context, word string) ([]Entry, error)
	Count(ctx context.Context) (int64, error)
	BatchCreate(ctx context.Context, entries []Entry) error
	DeleteAll(ctx context.Context) (int64, error)
	// WithinTx runs fn with a Repository bound to one transaction.
	// The transaction commits when fn returns nil and rolls back otherwise.
	WithinTx(ctx context.Context, fn func(ctx context.Context, repo Repository) error) error
}

// DBRepository implements Repository on the dictionary table.
type DBRepository struct {
	db *sqlx.DB
	// tx is set on repositories handed out by WithinTx.
	tx *sqlx.Tx
}

// NewDBRepository creates a new DBRepository.
func NewDBRepository(db *sqlx.DB) *DBRepository {
	return &DBRepository{db: db}
}

func (r *DBRepository) ext() sqlx.ExtContext {
	if r.tx != nil {
		return r.tx
	}
	return r.db
}

// LookupWord returns every entry whose word equals the trimmed input, in seeded order.
// The match is exact and case-sensitive. No match is an empty slice, not an error.
func (r *DBRepository) LookupWord(ctx context.Context, word string) ([]Entry, error) {
	word = strings.TrimSpace(word)
	entries := []Entry{}
	q := r.ext()
	query := q.Rebind("SELECT id, word, COALESCE(pos, '') AS pos, COALESCE(definition, '') AS definition " +
		"FROM dictionary WHERE word = ? ORDER BY id")
	if err := sqlx.SelectContext(ctx, q, &entries, query, word); err != nil {
		return nil, fmt.Errorf("lookup word: %w: %w", database.ErrUnavailable, err)
	}
	return entries, nil
}

// Count returns the number of seeded entries.
func (r *DBRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := sqlx.GetContext(ctx, r.ext(), &n, `SELECT COUNT(*) FROM dictionary`); err != nil {
		return 0, fmt.Errorf("count dictionary entries: %w: %w", database.ErrUnavailable, err)
	}
	return n, nil
}

// BatchCreate inserts entries using a multi-row INSERT. Outside WithinTx the
// insert runs in its own transaction. Callers split large imports into batches.
func (r *DBRepository) BatchCreate(ctx context.Context, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}
	if r.tx != nil {
		return r.insert(ctx, r.tx, entries)
	}
	return database.RunInTx(ctx, r.db, func(ctx context.Context, tx *sqlx.Tx) error {
		return r.insert(ctx, tx, entries)
	})
}

func (r *DBRepository) insert(ctx context.Context, tx *sqlx.Tx, entries []Entry) error {
	columns := []string{"word", "pos", "definition"}
	query := tx.Rebind(database.BuildMultiRowInsert("dictionary", columns, len(entries)))

	args := make([]interface{}, 0, len(entries)*len(columns))
	for _, e := range entries {
		args = append(args, e.Word, e.PartOfSpeech, e.Definition)
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert dictionary entries: %w: %w", database.ErrUnavailable, err)
	}
	return nil
}

// DeleteAll removes every entry and returns how many were removed.
func (r *DBRepository) DeleteAll(ctx context.Context) (int64, error) {
	res, err := r.ext().ExecContext(ctx, `DELETE FROM dictionary`)
	if err != nil {
		return 0, fmt.Errorf("delete dictionary entries: %w: %w", database.ErrUnavailable, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete dictionary entries: %w", err)
	}
	return n, nil
}

// WithinTx runs fn on a repository bound to a new transaction.
// Called on a repository that is already bound, fn joins the open transaction.
func (r *DBRepository) WithinTx(ctx context.Context, fn func(ctx context.Context, repo Repository) error) error {
	if r.tx != nil {
		return fn(ctx, r)
	}
	err := database.RunInTx(ctx, r.db, func(ctx context.Context, tx *sqlx.Tx) error {
		return fn(ctx, &DBRepository{db: r.db, tx: tx})
	})
	if err != nil {
		return fmt.Errorf("dictionary transaction > %w", err)
	}
	return nil
}
