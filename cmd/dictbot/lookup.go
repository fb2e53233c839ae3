package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/khmerdict/dictbot/internal/dictionary"
	"github.com/khmerdict/dictbot/internal/inference"
	"github.com/khmerdict/dictbot/internal/inference/provider"
	"github.com/khmerdict/dictbot/internal/lookup"
	"github.com/khmerdict/dictbot/internal/workerpool"
)

type ProviderFlag string

func (p *ProviderFlag) Set(val string) error {
	for _, candidate := range allProviders {
		if val == string(candidate) {
			*p = candidate
			return nil
		}
	}
	return fmt.Errorf("invalid provider: %s", val)
}

func (p ProviderFlag) String() string {
	return string(p)
}

func (p *ProviderFlag) Type() string {
	return "ProviderFlag"
}

const (
	ProviderGemini ProviderFlag = "gemini"
	ProviderOpenAI ProviderFlag = "openai"
)

var (
	_            pflag.Value = (*ProviderFlag)(nil)
	allProviders             = []ProviderFlag{ProviderGemini, ProviderOpenAI}
)

func newLookupCommand() *cobra.Command {
	var providerFlag ProviderFlag
	var localOnly bool

	cmd := &cobra.Command{
		Use:   "lookup <word>",
		Short: "Look a word up the way the bot does",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := loadConfig("Database", "AI")
			if err != nil {
				return err
			}
			if providerFlag != "" {
				cfg.AI.Provider = string(providerFlag)
			}

			db, err := openDatabase(ctx, cfg.Database)
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()

			var ai inference.Client = inference.Disabled{}
			if !localOnly {
				client, closeAI, err := provider.New(ctx, cfg.AI)
				if err != nil {
					return fmt.Errorf("provider.New() > %w", err)
				}
				defer func() { _ = closeAI() }()
				ai = client
			}

			pool := workerpool.New(1)
			defer func() { _ = pool.Close(ctx) }()

			resolver := lookup.NewService(dictionary.NewDBRepository(db), ai, pool, cfg.Database.QueryTimeout)
			return printResult(cmd.OutOrStdout(), args[0], resolver.Resolve(ctx, args[0]))
		},
	}
	cmd.Flags().Var(&providerFlag, "provider", fmt.Sprintf("AI provider to use. Possible values are %v", allProviders))
	cmd.Flags().BoolVar(&localOnly, "local", false, "Only consult the dictionary table")
	return cmd
}

// printResult writes a lookup result for a terminal. A failure is also returned as the command error.
func printResult(w io.Writer, word string, result lookup.Result) error {
	switch r := result.(type) {
	case lookup.LocalHit:
		color.New(color.FgGreen, color.Bold).Fprintf(w, "%s: %d entries from the dictionary\n", word, len(r.Entries))
		for i, e := range r.Entries {
			if e.PartOfSpeech != "" {
				fmt.Fprintf(w, "%d. (%s) %s\n", i+1, e.PartOfSpeech, e.Definition)
				continue
			}
			fmt.Fprintf(w, "%d. %s\n", i+1, e.Definition)
		}
		return nil
	case lookup.AIHit:
		color.New(color.FgYellow, color.Bold).Fprintf(w, "%s: not in the dictionary, answered by %s\n", word, r.Model)
		fmt.Fprintln(w, r.Text)
		return nil
	case lookup.Failure:
		if errors.Is(r.Err, inference.ErrDisabled) {
			color.New(color.FgRed).Fprintf(w, "%s: not in the dictionary\n", word)
			return nil
		}
		color.New(color.FgRed).Fprintf(w, "%s: lookup failed\n", word)
		return r.Err
	default:
		return fmt.Errorf("unexpected result %T", result)
	}
}
