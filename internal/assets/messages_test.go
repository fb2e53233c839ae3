package assets

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadCatalog(t *testing.T) {
	tests := []struct {
		name         string
		overridePath func(t *testing.T) string

		wantHelp    string
		wantStart   string
		wantContact string
	}{
		{
			name:         "embedded catalog",
			overridePath: func(t *testing.T) string { return "" },
			wantContact:  "https://t.me/srengone",
		},
		{
			name: "override replaces only present fields",
			overridePath: func(t *testing.T) string {
				path := filepath.Join(t.TempDir(), "messages.yaml")
				require.NoError(t, os.WriteFile(path, []byte("help: custom help\ntemplates:\n  searching: \"looking up {{ .Word }}\"\n"), 0644))
				return path
			},
			wantHelp:    "custom help",
			wantContact: "https://t.me/srengone",
		},
		{
			name: "missing override falls back to embedded",
			overridePath: func(t *testing.T) string {
				return filepath.Join(t.TempDir(), "absent.yaml")
			},
			wantContact: "https://t.me/srengone",
		},
		{
			name: "invalid override falls back to embedded",
			overridePath: func(t *testing.T) string {
				path := filepath.Join(t.TempDir(), "messages.yaml")
				require.NoError(t, os.WriteFile(path, []byte("templates:\n  ai: \"{{ .Text \"\n"), 0644))
				return path
			},
			wantContact: "https://t.me/srengone",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := LoadCatalog(tt.overridePath(t))
			require.NoError(t, err)

			assert.Equal(t, tt.wantContact, got.ContactURL)
			assert.NotEmpty(t, got.Start)
			assert.NotEmpty(t, got.About)
			assert.NotEmpty(t, got.Buttons.Back)
			assert.NotEmpty(t, got.Errors.PermissionDenied)
			if tt.wantHelp != "" {
				assert.Equal(t, tt.wantHelp, got.Help)
			} else {
				assert.Contains(t, got.Help, "របៀបប្រើប្រាស់ Bot")
			}

			_, err = got.Render(TemplateAI, map[string]string{"Model": "m", "Text": "t"})
			assert.NoError(t, err)
		})
	}
}

func TestLoadCatalog_OverrideTemplate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "messages.yaml")
	require.NoError(t, os.WriteFile(path, []byte("templates:\n  searching: \"looking up {{ .Word }}\"\n"), 0644))

	got, err := LoadCatalog(path)
	require.NoError(t, err)

	text, err := got.Render(TemplateSearching, map[string]string{"Word": "ទឹក"})
	require.NoError(t, err)
	assert.Equal(t, "looking up ទឹក", text)

	text, err = got.Render(TemplateAI, map[string]string{"Model": "gemini", "Text": "answer"})
	require.NoError(t, err)
	assert.Contains(t, text, "answer")
}

func TestCatalog_Render(t *testing.T) {
	catalog, err := LoadCatalog("")
	require.NoError(t, err)

	type entry struct {
		PartOfSpeech string
		Definition   string
	}

	t.Run("local entries are numbered and escaped", func(t *testing.T) {
		got, err := catalog.Render(TemplateLocal, map[string]any{
			"Word": "ដៃ",
			"Entries": []entry{
				{PartOfSpeech: "នាម", Definition: "hand"},
				{Definition: "snake_case *word*"},
			},
		})
		require.NoError(t, err)
		assert.Contains(t, got, "*ដៃ*")
		assert.Contains(t, got, "1. _នាម_ hand")
		assert.Contains(t, got, "2. snake\\_case \\*word\\*")
	})

	t.Run("stats lists recent users", func(t *testing.T) {
		type user struct {
			FirstName string
			Username  string
			ChatCount int64
			LastSeen  time.Time
		}
		got, err := catalog.Render(TemplateStats, map[string]any{
			"Total": int64(2),
			"Recent": []user{
				{FirstName: "Sok_A", Username: "sok", ChatCount: 5, LastSeen: time.Date(2025, 3, 1, 8, 30, 0, 0, time.UTC)},
				{FirstName: "Dara", ChatCount: 1, LastSeen: time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)},
			},
		})
		require.NoError(t, err)
		assert.Contains(t, got, "*2*")
		assert.Contains(t, got, "1. Sok\\_A (@sok) · 5 សារ · 2025-03-01 08:30")
		assert.Contains(t, got, "2. Dara · 1 សារ · 2025-02-01 00:00")
	})

	t.Run("unknown template", func(t *testing.T) {
		_, err := catalog.Render("missing", nil)
		assert.Error(t, err)
	})
}

func TestCatalog_CreatorAnswer(t *testing.T) {
	catalog, err := LoadCatalog("")
	require.NoError(t, err)

	tests := []struct {
		name   string
		text   string
		want   string
		wantOK bool
	}{
		{name: "exact khmer phrase", text: "អ្នកណាបង្កើត", want: "ខ្ញុំត្រូវបានបង្កើតឡើងដោយ ស្រេង! 👨‍💻", wantOK: true},
		{name: "exact phrase with spaces", text: "  អ្នកបង្កើត ", want: "ខ្ញុំត្រូវបានបង្កើតឡើងដោយ ស្រេង! 👨‍💻", wantOK: true},
		{name: "khmer phrase inside a sentence is a lookup", text: "តើអ្នកបង្កើតជានរណា", wantOK: false},
		{name: "english phrase any case", text: "WHO CREATED YOU?", want: "Created by Sreng! 👨‍💻", wantOK: true},
		{name: "english phrase as substring", text: "hey, who are you", want: "I am a Khmer AI Dictionary Bot, powered by Sreng! 🤖", wantOK: true},
		{name: "ordinary word", text: "កសិកម្ម", wantOK: false},
		{name: "blank", text: "  ", wantOK: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := catalog.CreatorAnswer(tt.text)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
