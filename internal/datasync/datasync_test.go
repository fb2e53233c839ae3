package datasync

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/khmerdict/dictbot/internal/dictionary"
	mock_dictionary "github.com/khmerdict/dictbot/internal/mocks/dictionary"
	"github.com/khmerdict/dictbot/internal/testutil"
)

type staticSource []Row

func (s staticSource) Read(context.Context) ([]Row, error) { return s, nil }

type failingSource struct{ err error }

func (s failingSource) Read(context.Context) ([]Row, error) { return nil, s.err }

// expectTx makes the mock run the WithinTx callback against itself.
func expectTx(repo *mock_dictionary.MockRepository) *gomock.Call {
	return repo.EXPECT().WithinTx(gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, fn func(context.Context, dictionary.Repository) error) error {
			return fn(ctx, repo)
		})
}

func TestNormalize(t *testing.T) {
	rows := []Row{
		{Word: " ទឹក ", PartOfSpeech: "នាម", Definition: "water"},
		{Word: "   ", PartOfSpeech: "នាម", Definition: "blank"},
		{Word: "ទឹក", PartOfSpeech: "នាម", Definition: "water"},
		{Word: "ទឹក", PartOfSpeech: "កិរិយា", Definition: "water"},
		{Word: "ភ្លើង", Definition: "fire"},
		{Word: "", Definition: "nothing"},
	}

	got, empty, duplicates := Normalize(rows)
	want := []dictionary.Entry{
		{Word: "ទឹក", PartOfSpeech: "នាម", Definition: "water"},
		{Word: "ទឹក", PartOfSpeech: "កិរិយា", Definition: "water"},
		{Word: "ភ្លើង", Definition: "fire"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Normalize() mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, 2, empty)
	assert.Equal(t, 1, duplicates)
}

func TestImporter_Import(t *testing.T) {
	rows := staticSource{
		{Word: "ក", Definition: "1"},
		{Word: "ខ", Definition: "2"},
		{Word: "គ", Definition: "3"},
		{Word: "ក", Definition: "1"},
		{Word: " ", Definition: "4"},
	}

	tests := []struct {
		name    string
		source  Source
		opts    ImportOptions
		setup   func(repo *mock_dictionary.MockRepository)
		want    *ImportResult
		wantErr bool
	}{
		{
			name:   "empty table is seeded in batches",
			source: rows,
			opts:   ImportOptions{BatchSize: 2},
			setup: func(repo *mock_dictionary.MockRepository) {
				repo.EXPECT().Count(gomock.Any()).Return(int64(0), nil)
				expectTx(repo)
				gomock.InOrder(
					repo.EXPECT().BatchCreate(gomock.Any(), []dictionary.Entry{
						{Word: "ក", Definition: "1"},
						{Word: "ខ", Definition: "2"},
					}).Return(nil),
					repo.EXPECT().BatchCreate(gomock.Any(), []dictionary.Entry{
						{Word: "គ", Definition: "3"},
					}).Return(nil),
				)
			},
			want: &ImportResult{RowsRead: 5, EmptySkipped: 1, Duplicates: 1, Inserted: 3},
		},
		{
			name:   "non-empty table is left untouched",
			source: rows,
			setup: func(repo *mock_dictionary.MockRepository) {
				repo.EXPECT().Count(gomock.Any()).Return(int64(44000), nil)
				repo.EXPECT().BatchCreate(gomock.Any(), gomock.Any()).Times(0)
				repo.EXPECT().DeleteAll(gomock.Any()).Times(0)
			},
			want: &ImportResult{ExistingCount: 44000, TableSkipped: true},
		},
		{
			name:   "force replaces existing entries",
			source: rows,
			opts:   ImportOptions{Force: true},
			setup: func(repo *mock_dictionary.MockRepository) {
				repo.EXPECT().Count(gomock.Any()).Return(int64(10), nil)
				expectTx(repo)
				gomock.InOrder(
					repo.EXPECT().DeleteAll(gomock.Any()).Return(int64(10), nil),
					repo.EXPECT().BatchCreate(gomock.Any(), gomock.Len(3)).Return(nil),
				)
			},
			want: &ImportResult{RowsRead: 5, EmptySkipped: 1, Duplicates: 1, Inserted: 3, Deleted: 10, ExistingCount: 10},
		},
		{
			name:   "dry run writes nothing",
			source: rows,
			opts:   ImportOptions{DryRun: true, Force: true},
			setup: func(repo *mock_dictionary.MockRepository) {
				repo.EXPECT().Count(gomock.Any()).Return(int64(10), nil)
				repo.EXPECT().WithinTx(gomock.Any(), gomock.Any()).Times(0)
				repo.EXPECT().DeleteAll(gomock.Any()).Times(0)
				repo.EXPECT().BatchCreate(gomock.Any(), gomock.Any()).Times(0)
			},
			want: &ImportResult{RowsRead: 5, EmptySkipped: 1, Duplicates: 1, Inserted: 3, ExistingCount: 10},
		},
		{
			name:   "source error",
			source: failingSource{err: errors.New("connection reset")},
			setup: func(repo *mock_dictionary.MockRepository) {
				repo.EXPECT().Count(gomock.Any()).Return(int64(0), nil)
			},
			wantErr: true,
		},
		{
			name:   "insert error",
			source: rows,
			setup: func(repo *mock_dictionary.MockRepository) {
				repo.EXPECT().Count(gomock.Any()).Return(int64(0), nil)
				expectTx(repo)
				repo.EXPECT().BatchCreate(gomock.Any(), gomock.Any()).Return(errors.New("disk full"))
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			repo := mock_dictionary.NewMockRepository(ctrl)
			tt.setup(repo)

			var out bytes.Buffer
			got, err := NewImporter(repo, &out).Import(context.Background(), tt.source, tt.opts)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Import() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestImportResult_PrintSummary(t *testing.T) {
	var out bytes.Buffer
	(&ImportResult{RowsRead: 5, Inserted: 3, Duplicates: 1, EmptySkipped: 1, Deleted: 10}).PrintSummary(&out)
	assert.Equal(t, "Dictionary: 5 rows read, 3 inserted, 1 duplicates, 1 empty words, 10 replaced\n", out.String())

	out.Reset()
	(&ImportResult{TableSkipped: true, ExistingCount: 7}).PrintSummary(&out)
	assert.Equal(t, "Dictionary: skipped, 7 entries already present\n", out.String())
}

// flakyBatchRepo fails the failOn-th BatchCreate, counting calls across transactions.
type flakyBatchRepo struct {
	dictionary.Repository
	failOn int
	calls  *int
}

func (r flakyBatchRepo) BatchCreate(ctx context.Context, entries []dictionary.Entry) error {
	*r.calls++
	if *r.calls == r.failOn {
		return errors.New("connection reset")
	}
	return r.Repository.BatchCreate(ctx, entries)
}

func (r flakyBatchRepo) WithinTx(ctx context.Context, fn func(context.Context, dictionary.Repository) error) error {
	return r.Repository.WithinTx(ctx, func(ctx context.Context, tx dictionary.Repository) error {
		return fn(ctx, flakyBatchRepo{Repository: tx, failOn: r.failOn, calls: r.calls})
	})
}

func TestImporter_Import_ForceFailureKeepsExistingTable(t *testing.T) {
	ctx := context.Background()
	repo := dictionary.NewDBRepository(testutil.OpenMigratedSQLite(t))
	require.NoError(t, repo.BatchCreate(ctx, []dictionary.Entry{
		{Word: "old1", Definition: "a"},
		{Word: "old2", Definition: "b"},
		{Word: "old3", Definition: "c"},
	}))
	replacement := staticSource{
		{Word: "new1", Definition: "1"},
		{Word: "new2", Definition: "2"},
		{Word: "new3", Definition: "3"},
		{Word: "new4", Definition: "4"},
	}

	calls := 0
	var out bytes.Buffer
	flaky := flakyBatchRepo{Repository: repo, failOn: 2, calls: &calls}
	_, err := NewImporter(flaky, &out).Import(ctx, replacement, ImportOptions{Force: true, BatchSize: 2})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
	assert.Contains(t, out.String(), "[ROLLBACK]")

	count, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)
	old, err := repo.LookupWord(ctx, "old1")
	require.NoError(t, err)
	assert.Len(t, old, 1)
	partial, err := repo.LookupWord(ctx, "new1")
	require.NoError(t, err)
	assert.Empty(t, partial)

	got, err := NewImporter(repo, &out).Import(ctx, replacement, ImportOptions{Force: true, BatchSize: 2})
	require.NoError(t, err)
	assert.Equal(t, 4, got.Inserted)
	assert.Equal(t, int64(3), got.Deleted)
	count, err = repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(4), count)
}

func TestImporter_Import_FailedSeedLeavesTableEmpty(t *testing.T) {
	ctx := context.Background()
	repo := dictionary.NewDBRepository(testutil.OpenMigratedSQLite(t))
	rows := staticSource{{Word: "ក", Definition: "1"}, {Word: "ខ", Definition: "2"}, {Word: "គ", Definition: "3"}}

	calls := 0
	var out bytes.Buffer
	_, err := NewImporter(flakyBatchRepo{Repository: repo, failOn: 2, calls: &calls}, &out).
		Import(ctx, rows, ImportOptions{BatchSize: 1})
	require.Error(t, err)

	// A rerun without force must seed instead of skipping a half-filled table.
	got, err := NewImporter(repo, &out).Import(ctx, rows, ImportOptions{BatchSize: 1})
	require.NoError(t, err)
	assert.False(t, got.TableSkipped)
	assert.Equal(t, 3, got.Inserted)
}
