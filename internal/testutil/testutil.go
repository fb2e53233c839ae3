// Package testutil provides shared test helpers for config files and migrated SQLite databases.
package testutil

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/khmerdict/dictbot/internal/config"
	"github.com/khmerdict/dictbot/internal/database"
)

// SQLiteURL returns a file DSN under tmpDir that waits on a locked database instead of failing.
func SQLiteURL(tmpDir, name string) string {
	return "file:" + filepath.Join(tmpDir, name) + "?_pragma=busy_timeout(5000)"
}

// OpenMigratedSQLite opens a fresh SQLite file database with every migration applied.
// The pool has a single connection so concurrent tests serialize on it.
func OpenMigratedSQLite(t *testing.T) *sqlx.DB {
	t.Helper()

	return OpenMigratedSQLitePool(t, 1)
}

// OpenMigratedSQLitePool is OpenMigratedSQLite with up to maxOpen connections.
// Writers contend on the file lock and wait for it through busy_timeout.
func OpenMigratedSQLitePool(t *testing.T, maxOpen int) *sqlx.DB {
	t.Helper()

	cfg := config.DatabaseConfig{
		Driver: "sqlite",
		URL:    SQLiteURL(t.TempDir(), "dictbot.db"),
	}
	_, err := database.Migrate(context.Background(), cfg)
	require.NoError(t, err)

	db, err := database.Open(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	db.SetMaxOpenConns(maxOpen)
	return db
}

// SetupTestConfig writes a complete config file pointing at a SQLite database under tmpDir.
// Returns the path to the generated config file.
func SetupTestConfig(t *testing.T, tmpDir string) string {
	t.Helper()

	configContent := fmt.Sprintf(`server:
  port: 8081
telegram:
  bot_token: "123:test"
  webhook_url: https://bot.example.com
  webhook_path: /webhook
database:
  driver: sqlite
  url: %q
admin:
  user_id: 42
`, SQLiteURL(tmpDir, "dictbot.db"))

	cfgPath := filepath.Join(tmpDir, "config.yml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(configContent), 0644))
	return cfgPath
}

// SetupTestConfigWithAPIKey adds a fake AI key to the config from SetupTestConfig.
func SetupTestConfigWithAPIKey(t *testing.T, tmpDir, provider string) string {
	t.Helper()
	cfgPath := SetupTestConfig(t, tmpDir)

	content, err := os.ReadFile(cfgPath)
	require.NoError(t, err)
	content = append(content, []byte(fmt.Sprintf("ai:\n  provider: %s\n  api_key: fake-key-for-testing\n", provider))...)
	require.NoError(t, os.WriteFile(cfgPath, content, 0644))
	return cfgPath
}
