package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/khmerdict/dictbot/internal/database"
	"github.com/khmerdict/dictbot/internal/datasync"
	"github.com/khmerdict/dictbot/internal/dictionary"
)

type SourceFlag string

// Set implements pflag.Value.
func (s *SourceFlag) Set(v string) error {
	for _, source := range allSources {
		if v == string(source) {
			*s = source
			return nil
		}
	}
	return fmt.Errorf("invalid source %q, valid values are %v", v, allSources)
}

// String implements pflag.Value.
func (s *SourceFlag) String() string {
	if s == nil {
		return ""
	}
	return string(*s)
}

// Type implements pflag.Value.
func (s *SourceFlag) Type() string {
	return "SourceFlag"
}

const (
	SourceHuggingFace SourceFlag = "hf"
	SourceJSONL       SourceFlag = "jsonl"
	SourceCSV         SourceFlag = "csv"
)

var (
	_          pflag.Value = (*SourceFlag)(nil)
	allSources             = []SourceFlag{SourceHuggingFace, SourceJSONL, SourceCSV}
)

type importFlags struct {
	source    SourceFlag
	dataset   string
	baseURL   string
	file      string
	force     bool
	dryRun    bool
	batchSize int
}

func (f importFlags) newSource() (datasync.Source, func() error, error) {
	noop := func() error { return nil }
	switch f.source {
	case SourceJSONL, SourceCSV:
		if f.file == "" {
			return nil, nil, fmt.Errorf("--file is required for --source %s", f.source)
		}
		if f.source == SourceJSONL {
			return datasync.NewJSONLSource(f.file), noop, nil
		}
		return datasync.NewCSVSource(f.file), noop, nil
	default:
		src := datasync.NewHFSource(f.baseURL, f.dataset)
		return src, src.Close, nil
	}
}

func newImportCommand() *cobra.Command {
	flags := importFlags{source: SourceHuggingFace}

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Seed the dictionary table from a dataset",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			source, closeSource, err := flags.newSource()
			if err != nil {
				return err
			}
			defer func() { _ = closeSource() }()

			cfg, err := loadConfig("Database")
			if err != nil {
				return err
			}
			if _, err := database.Migrate(ctx, cfg.Database); err != nil {
				return fmt.Errorf("database.Migrate() > %w", err)
			}
			db, err := openDatabase(ctx, cfg.Database)
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()

			out := cmd.OutOrStdout()
			importer := datasync.NewImporter(dictionary.NewDBRepository(db), out)
			result, err := importer.Import(ctx, source, datasync.ImportOptions{
				DryRun:    flags.dryRun,
				Force:     flags.force,
				BatchSize: flags.batchSize,
			})
			if err != nil {
				return fmt.Errorf("importer.Import() > %w", err)
			}

			fmt.Fprintln(out, "\nImport Summary:")
			if flags.dryRun {
				fmt.Fprintln(out, "  (dry-run mode, no changes made)")
			}
			result.PrintSummary(out)
			return nil
		},
	}

	cmd.Flags().Var(&flags.source, "source", fmt.Sprintf("Dataset source. Possible values are %v", allSources))
	cmd.Flags().StringVar(&flags.dataset, "dataset", datasync.DefaultDataset, "Hugging Face dataset name")
	cmd.Flags().StringVar(&flags.baseURL, "hf-base-url", datasync.DefaultHFBaseURL, "Hugging Face datasets-server URL")
	cmd.Flags().StringVar(&flags.file, "file", "", "Path of the JSON Lines or CSV file")
	cmd.Flags().BoolVar(&flags.force, "force", false, "Replace the entries of a non-empty dictionary table")
	cmd.Flags().BoolVar(&flags.dryRun, "dry-run", false, "Preview the import without modifying the database")
	cmd.Flags().IntVar(&flags.batchSize, "batch-size", datasync.DefaultBatchSize, "Rows per INSERT statement")
	return cmd
}
