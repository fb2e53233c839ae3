package main

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fatih/color"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/khmerdict/dictbot/internal/dictionary"
	"github.com/khmerdict/dictbot/internal/inference"
	"github.com/khmerdict/dictbot/internal/lookup"
	"github.com/khmerdict/dictbot/internal/testutil"
	"github.com/khmerdict/dictbot/internal/user"
)

func TestMain(m *testing.M) {
	color.NoColor = true
	os.Exit(m.Run())
}

func TestSetupLogger(t *testing.T) {
	tests := []struct {
		name      string
		debugMode bool
		wantLevel slog.Level
	}{
		{
			name:      "debug mode enabled",
			debugMode: true,
			wantLevel: slog.LevelDebug,
		},
		{
			name:      "debug mode disabled",
			debugMode: false,
			wantLevel: slog.LevelInfo,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setupLogger(tt.debugMode)
			logger := slog.Default()
			assert.NotNil(t, logger)
			assert.Equal(t, tt.wantLevel <= slog.LevelDebug, logger.Enabled(context.Background(), slog.LevelDebug))
		})
	}
}

func TestNewRootCommand(t *testing.T) {
	cmd := newRootCommand()

	assert.Equal(t, "dictbot", cmd.Use)
	assert.NotNil(t, cmd.PersistentFlags().Lookup("config"))
	assert.NotNil(t, cmd.PersistentFlags().Lookup("debug"))

	var names []string
	for _, sub := range cmd.Commands() {
		names = append(names, sub.Name())
	}
	assert.ElementsMatch(t, []string{"migrate", "import", "lookup", "stats", "webhook"}, names)
}

func TestNewWebhookCommand(t *testing.T) {
	cmd := newWebhookCommand()

	var names []string
	for _, sub := range cmd.Commands() {
		names = append(names, sub.Name())
	}
	assert.ElementsMatch(t, []string{"set", "info", "delete"}, names)
}

func TestSourceFlag_Set(t *testing.T) {
	tests := []struct {
		name    string
		value   string
		want    SourceFlag
		wantErr bool
	}{
		{name: "hugging face", value: "hf", want: SourceHuggingFace},
		{name: "json lines", value: "jsonl", want: SourceJSONL},
		{name: "csv", value: "csv", want: SourceCSV},
		{name: "unknown", value: "parquet", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var source SourceFlag
			err := source.Set(tt.value)
			if tt.wantErr {
				assert.Error(t, err)
				assert.Contains(t, err.Error(), "invalid source")
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.want, source)
			assert.Equal(t, tt.value, source.String())
		})
	}
}

func TestProviderFlag_Set(t *testing.T) {
	var p ProviderFlag
	require.NoError(t, p.Set("openai"))
	assert.Equal(t, ProviderOpenAI, p)
	assert.Equal(t, "ProviderFlag", p.Type())

	err := p.Set("llama")
	assert.Error(t, err)
	assert.Equal(t, ProviderOpenAI, p)
}

func TestImportFlags_NewSource(t *testing.T) {
	_, _, err := importFlags{source: SourceCSV}.newSource()
	assert.Error(t, err)

	src, closeFn, err := importFlags{source: SourceJSONL, file: "rows.jsonl"}.newSource()
	require.NoError(t, err)
	assert.NotNil(t, src)
	assert.NoError(t, closeFn())

	src, closeFn, err = importFlags{source: SourceHuggingFace}.newSource()
	require.NoError(t, err)
	assert.NotNil(t, src)
	assert.NoError(t, closeFn())
}

func TestImportCommand_SQLite(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Setenv("DATABASE_URL", "")
	t.Setenv("DATABASE_DRIVER", "")
	cfgPath := testutil.SetupTestConfig(t, dir)
	csvPath := filepath.Join(dir, "rows.csv")
	require.NoError(t, os.WriteFile(csvPath, []byte("word,pos,definition\nទឹក,នាម,water\nទឹក,នាម,water\n ,,blank\n"), 0o600))
	args := []string{"--config", cfgPath, "import", "--source", "csv", "--file", csvPath}

	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs(args)
	require.NoError(t, cmd.ExecuteContext(context.Background()))
	assert.Contains(t, out.String(), "Dictionary: 3 rows read, 1 inserted, 1 duplicates, 1 empty words")

	out.Reset()
	cmd = newRootCommand()
	cmd.SetOut(&out)
	cmd.SetArgs(args)
	require.NoError(t, cmd.ExecuteContext(context.Background()))
	assert.Contains(t, out.String(), "Dictionary: skipped, 1 entries already present")
}

func TestMigrateCommand_SQLite(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Setenv("DATABASE_URL", "")
	t.Setenv("DATABASE_DRIVER", "")
	cfgPath := testutil.SetupTestConfig(t, dir)

	run := func() string {
		cmd := newRootCommand()
		var out bytes.Buffer
		cmd.SetOut(&out)
		cmd.SetArgs([]string{"--config", cfgPath, "migrate"})
		require.NoError(t, cmd.ExecuteContext(context.Background()))
		return out.String()
	}

	assert.Contains(t, run(), "[APPLIED]  version 0 -> 1")
	assert.Contains(t, run(), "Schema is up to date (version 1)")
}

func TestPrintResult(t *testing.T) {
	tests := []struct {
		name         string
		result       lookup.Result
		wantContains []string
		wantErr      bool
	}{
		{
			name: "local hit",
			result: lookup.LocalHit{Entries: []dictionary.Entry{
				{Word: "ដៃ", PartOfSpeech: "នាម", Definition: "hand"},
				{Word: "ដៃ", Definition: "sleeve"},
			}},
			wantContains: []string{"ដៃ: 2 entries from the dictionary", "1. (នាម) hand", "2. sleeve"},
		},
		{
			name:         "ai hit",
			result:       lookup.AIHit{Text: "explanation", Model: "gemini-2.0-flash"},
			wantContains: []string{"answered by gemini-2.0-flash", "explanation"},
		},
		{
			name:         "disabled fallback is not an error",
			result:       lookup.Failure{Err: inference.ErrDisabled},
			wantContains: []string{"ដៃ: not in the dictionary"},
		},
		{
			name:         "failure",
			result:       lookup.Failure{Err: errors.New("store unavailable")},
			wantContains: []string{"ដៃ: lookup failed"},
			wantErr:      true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			err := printResult(&out, "ដៃ", tt.result)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			for _, s := range tt.wantContains {
				assert.Contains(t, out.String(), s)
			}
		})
	}
}

func TestPrintSummary(t *testing.T) {
	var out bytes.Buffer
	printSummary(&out, 44000, user.Summary{
		Total: 2,
		Recent: []user.Record{
			{FirstName: "Sok", Username: "sok", ChatCount: 5, LastSeen: time.Date(2025, 3, 1, 8, 30, 0, 0, time.UTC)},
			{FirstName: "Dara", ChatCount: 1, LastSeen: time.Date(2025, 2, 1, 8, 30, 0, 0, time.UTC)},
		},
	})
	got := out.String()
	assert.Contains(t, got, "Dictionary entries: 44000")
	assert.Contains(t, got, "Users: 2")
	assert.Contains(t, got, "Sok (@sok)")
	assert.Contains(t, got, "last seen 2025-03-01 08:30")
}

func TestPrintWebhookInfo(t *testing.T) {
	var out bytes.Buffer
	printWebhookInfo(&out, "https://bot.example.com/webhook", tgbotapi.WebhookInfo{
		URL:                "https://old.example.com/webhook",
		PendingUpdateCount: 3,
		LastErrorMessage:   "Connection refused",
	})
	got := out.String()
	assert.Contains(t, got, "Pending updates:  3")
	assert.Contains(t, got, "Last error:       Connection refused")
	assert.Contains(t, got, "is not registered")
}
