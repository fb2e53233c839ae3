package assets

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"text/template"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"gopkg.in/yaml.v3"
)

//go:embed messages/messages.yaml
var fallbackMessages []byte

// Template names accepted by Catalog.Render.
const (
	TemplateSearching = "searching"
	TemplateLocal     = "local"
	TemplateAI        = "ai"
	TemplateStats     = "stats"
)

// MatchMode selects how a creator phrase is compared to the message text.
type MatchMode string

const (
	MatchExact    MatchMode = "exact"
	MatchContains MatchMode = "contains"
)

// Catalog is the fixed set of texts the bot answers with.
type Catalog struct {
	ContactURL string            `yaml:"contact_url"`
	Start      string            `yaml:"start"`
	Help       string            `yaml:"help"`
	About      string            `yaml:"about"`
	Buttons    Buttons           `yaml:"buttons"`
	Creator    []CreatorRule     `yaml:"creator"`
	Templates  map[string]string `yaml:"templates"`
	Errors     ErrorTexts        `yaml:"errors"`

	parsed *template.Template
}

type Buttons struct {
	Help    string `yaml:"help"`
	About   string `yaml:"about"`
	Contact string `yaml:"contact"`
	Back    string `yaml:"back"`
}

// CreatorRule answers questions about who made the bot.
type CreatorRule struct {
	Match   MatchMode `yaml:"match"`
	Phrases []string  `yaml:"phrases"`
	Answer  string    `yaml:"answer"`
}

type ErrorTexts struct {
	StoreUnavailable string `yaml:"store_unavailable"`
	AIUnavailable    string `yaml:"ai_unavailable"`
	AIDisabled       string `yaml:"ai_disabled"`
	EmptyWord        string `yaml:"empty_word"`
	PermissionDenied string `yaml:"permission_denied"`
}

// LoadCatalog returns the embedded catalog with the fields present in overridePath
// replacing the embedded ones. An unreadable or invalid override is logged and ignored.
func LoadCatalog(overridePath string) (*Catalog, error) {
	var catalog Catalog
	if err := yaml.Unmarshal(fallbackMessages, &catalog); err != nil {
		return nil, fmt.Errorf("failed to parse embedded messages: %w", err)
	}
	if err := catalog.compile(); err != nil {
		return nil, fmt.Errorf("failed to parse embedded messages: %w", err)
	}
	if overridePath == "" {
		return &catalog, nil
	}

	content, err := os.ReadFile(overridePath)
	if err != nil {
		slog.Default().Warn("failed to read a messages file",
			slog.String("path", overridePath),
			slog.Any("error", err),
		)
		return &catalog, nil
	}
	override := catalog.clone()
	if err := yaml.Unmarshal(content, &override); err != nil {
		slog.Default().Warn("failed to parse a messages file",
			slog.String("path", overridePath),
			slog.Any("error", err),
		)
		return &catalog, nil
	}
	if err := override.compile(); err != nil {
		slog.Default().Warn("failed to parse templates in a messages file",
			slog.String("path", overridePath),
			slog.Any("error", err),
		)
		return &catalog, nil
	}
	return &override, nil
}

func (c Catalog) clone() Catalog {
	out := c
	out.Templates = make(map[string]string, len(c.Templates))
	for k, v := range c.Templates {
		out.Templates[k] = v
	}
	out.parsed = nil
	return out
}

func (c *Catalog) compile() error {
	funcMap := template.FuncMap{
		"escape": func(s string) string { return tgbotapi.EscapeText(tgbotapi.ModeMarkdown, s) },
		"inc":    func(i int) int { return i + 1 },
	}
	root := template.New("messages").Funcs(funcMap)
	for _, name := range []string{TemplateSearching, TemplateLocal, TemplateAI, TemplateStats} {
		text, ok := c.Templates[name]
		if !ok || strings.TrimSpace(text) == "" {
			return fmt.Errorf("template %q is missing", name)
		}
		if _, err := root.New(name).Parse(text); err != nil {
			return fmt.Errorf("template %q: %w", name, err)
		}
	}
	c.parsed = root
	return nil
}

// Render executes one of the named templates.
func (c *Catalog) Render(name string, data any) (string, error) {
	if c.parsed == nil {
		return "", errors.New("catalog templates are not compiled")
	}
	var buf bytes.Buffer
	if err := c.parsed.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return buf.String(), nil
}

// CreatorAnswer returns the canned answer when text asks about the bot's creator.
// Matching ignores case and surrounding space; exact rules are tried before contains rules.
func (c *Catalog) CreatorAnswer(text string) (string, bool) {
	normalized := strings.ToLower(strings.TrimSpace(text))
	if normalized == "" {
		return "", false
	}
	for _, mode := range []MatchMode{MatchExact, MatchContains} {
		for _, rule := range c.Creator {
			if rule.Match != mode {
				continue
			}
			for _, phrase := range rule.Phrases {
				p := strings.ToLower(strings.TrimSpace(phrase))
				if p == "" {
					continue
				}
				if (mode == MatchExact && normalized == p) || (mode == MatchContains && strings.Contains(normalized, p)) {
					return rule.Answer, true
				}
			}
		}
	}
	return "", false
}
