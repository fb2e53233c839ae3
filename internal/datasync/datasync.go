package datasync

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/khmerdict/dictbot/internal/dictionary"
)

// DefaultBatchSize is the number of rows per INSERT.
const DefaultBatchSize = 500

// ImportResult tracks counts for an import run.
type ImportResult struct {
	RowsRead      int
	EmptySkipped  int
	Duplicates    int
	Inserted      int
	Deleted       int64
	ExistingCount int64
	// TableSkipped is set when the table already had entries and Force was not given.
	TableSkipped bool
}

// ImportOptions controls import behavior.
type ImportOptions struct {
	DryRun    bool
	Force     bool
	BatchSize int
}

// Importer normalizes dataset rows and writes them to the dictionary table.
type Importer struct {
	dictionaryRepo dictionary.Repository
	writer         io.Writer
}

// NewImporter creates a new Importer. Progress lines go to writer.
func NewImporter(dictionaryRepo dictionary.Repository, writer io.Writer) *Importer {
	return &Importer{
		dictionaryRepo: dictionaryRepo,
		writer:         writer,
	}
}

// Normalize trims words, drops rows with an empty word and drops exact
// (word, pos, definition) duplicates keeping first-seen order.
func Normalize(rows []Row) (entries []dictionary.Entry, empty, duplicates int) {
	type key struct{ word, pos, definition string }
	seen := make(map[key]struct{}, len(rows))
	entries = make([]dictionary.Entry, 0, len(rows))
	for _, row := range rows {
		word := strings.TrimSpace(row.Word)
		if word == "" {
			empty++
			continue
		}
		k := key{word, row.PartOfSpeech, row.Definition}
		if _, ok := seen[k]; ok {
			duplicates++
			continue
		}
		seen[k] = struct{}{}
		entries = append(entries, dictionary.Entry{
			Word:         word,
			PartOfSpeech: row.PartOfSpeech,
			Definition:   row.Definition,
		})
	}
	return entries, empty, duplicates
}

// Import reads source and seeds the dictionary table.
// A table that already has entries is left untouched unless opts.Force, which replaces it.
func (imp *Importer) Import(ctx context.Context, source Source, opts ImportOptions) (*ImportResult, error) {
	var result ImportResult
	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	existing, err := imp.dictionaryRepo.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("dictionaryRepo.Count > %w", err)
	}
	result.ExistingCount = existing
	if existing > 0 && !opts.Force {
		result.TableSkipped = true
		fmt.Fprintf(imp.writer, "  [SKIP]  dictionary table has %d entries, use --force to replace them\n", existing)
		return &result, nil
	}

	rows, err := source.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("source.Read > %w", err)
	}
	result.RowsRead = len(rows)

	entries, empty, duplicates := Normalize(rows)
	result.EmptySkipped = empty
	result.Duplicates = duplicates

	if opts.DryRun {
		result.Inserted = len(entries)
		fmt.Fprintf(imp.writer, "  [DRY-RUN]  would insert %d entries\n", len(entries))
		return &result, nil
	}

	// The delete and every batch share one transaction. A failed import leaves the table as it was.
	err = imp.dictionaryRepo.WithinTx(ctx, func(ctx context.Context, repo dictionary.Repository) error {
		if existing > 0 {
			deleted, err := repo.DeleteAll(ctx)
			if err != nil {
				return fmt.Errorf("dictionaryRepo.DeleteAll > %w", err)
			}
			result.Deleted = deleted
			fmt.Fprintf(imp.writer, "  [DELETE]  %d existing entries\n", deleted)
		}

		for start := 0; start < len(entries); start += batchSize {
			end := min(start+batchSize, len(entries))
			if err := repo.BatchCreate(ctx, entries[start:end]); err != nil {
				return fmt.Errorf("dictionaryRepo.BatchCreate(%d..%d) > %w", start, end, err)
			}
			result.Inserted += end - start
			fmt.Fprintf(imp.writer, "  [NEW]  %d/%d entries\n", result.Inserted, len(entries))
		}
		return nil
	})
	if err != nil {
		fmt.Fprintln(imp.writer, "  [ROLLBACK]  dictionary table left unchanged")
		return nil, err
	}

	return &result, nil
}

// PrintSummary writes a one-block summary of result.
func (r *ImportResult) PrintSummary(w io.Writer) {
	if r.TableSkipped {
		fmt.Fprintf(w, "Dictionary: skipped, %d entries already present\n", r.ExistingCount)
		return
	}
	fmt.Fprintf(w, "Dictionary: %d rows read, %d inserted, %d duplicates, %d empty words", r.RowsRead, r.Inserted, r.Duplicates, r.EmptySkipped)
	if r.Deleted > 0 {
		fmt.Fprintf(w, ", %d replaced", r.Deleted)
	}
	fmt.Fprintln(w)
}
