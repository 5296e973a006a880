package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	t.Run("Test defaults", func(t *testing.T) {
		cfg, err := Load("")
		require.NoError(t, err)
		assert.Equal(t, 8080, cfg.Server.Port)
		assert.Equal(t, "release", cfg.Server.Mode)
		assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)
		assert.Equal(t, DriverMemory, cfg.Database.Driver)
		assert.True(t, cfg.Database.Migrate)
		assert.Equal(t, 8, cfg.Lottery.CodeLength)
		assert.Equal(t, ":8080", cfg.Addr())
	})

	t.Run("Test file values", func(t *testing.T) {
		path := writeConfig(t, `
server:
  port: 9090
  shutdownTimeout: 3s
database:
  driver: postgres
  dsn: postgres://lottery@localhost/lottery?sslmode=disable
  maxOpenConns: 4
lottery:
  seedDemo: true
  codeLength: 6
`)
		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, 9090, cfg.Server.Port)
		assert.Equal(t, 3*time.Second, cfg.Server.ShutdownTimeout)
		assert.Equal(t, DriverPostgres, cfg.Database.Driver)
		assert.Equal(t, 4, cfg.Database.MaxOpenConns)
		assert.True(t, cfg.Lottery.SeedDemo)
		assert.Equal(t, 6, cfg.Lottery.CodeLength)
	})

	t.Run("Test environment overrides the file", func(t *testing.T) {
		path := writeConfig(t, "server:\n  port: 9090\n")
		t.Setenv("LUCKYDRAW_SERVER_PORT", "7070")
		t.Setenv("LUCKYDRAW_LOG_VERBOSE", "true")

		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, 7070, cfg.Server.Port)
		assert.True(t, cfg.Log.Verbose)
	})

	t.Run("Test missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
		assert.Error(t, err)
	})

	t.Run("Test validation", func(t *testing.T) {
		path := writeConfig(t, `
server:
  port: 70000
database:
  driver: postgres
lottery:
  codeLength: 12
`)
		_, err := Load(path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "server.port")
		assert.Contains(t, err.Error(), "database.dsn")
		assert.Contains(t, err.Error(), "codeLength")

		t.Setenv("LUCKYDRAW_DATABASE_DRIVER", "mssql")
		_, err = Load("")
		assert.ErrorContains(t, err, `unknown database.driver "mssql"`)
	})
}
