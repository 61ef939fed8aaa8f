package main

import (
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"bugline/internal/app"
	"bugline/internal/db"
	"bugline/internal/engine"
	"bugline/internal/migrate"
	"bugline/internal/server"
)

func TestLoadConfigOverlay(t *testing.T) {
	t.Cleanup(viper.Reset)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bugline.yml"), []byte("server:\n  addr: 0.0.0.0:7000\n"), 0o644))

	viper.Set("workspace", dir)
	cfg, err := loadConfig()
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:7000", cfg.Server.Addr)
	assert.Equal(t, "http://localhost:9001/api", cfg.Client.BaseURL)

	viper.Set("base-url", "http://bugs.internal:8080/api")
	viper.Set("driver", "sqlite")
	cfg, err = loadConfig()
	require.NoError(t, err)
	assert.Equal(t, "http://bugs.internal:8080/api", cfg.Client.BaseURL)
	assert.Equal(t, "sqlite", cfg.Server.Storage.Driver)

	viper.Set("driver", "postgres")
	_, err = loadConfig()
	assert.Error(t, err)
}

func TestNewLoggerLevels(t *testing.T) {
	l, err := newLogger("warn", false)
	require.NoError(t, err)
	assert.False(t, l.Core().Enabled(zapcore.InfoLevel))

	l, err = newLogger("warn", true)
	require.NoError(t, err)
	assert.True(t, l.Core().Enabled(zapcore.DebugLevel))

	_, err = newLogger("loud", false)
	assert.Error(t, err)
}

func TestFormatPayloadIsStable(t *testing.T) {
	got := formatPayload(map[string]any{"userId": 3, "resolved": true})
	assert.Equal(t, "resolved=true userId=3", got)
	assert.Empty(t, formatPayload(nil))
}

func TestWithClientWritesStoreMetrics(t *testing.T) {
	t.Cleanup(viper.Reset)
	conn, err := db.Open(db.Config{Driver: db.DriverMemory})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	_, err = migrate.Migrate(context.Background(), conn)
	require.NoError(t, err)
	handler, err := server.New(server.Config{Engine: engine.New(conn), BasePath: "/api"})
	require.NoError(t, err)
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	dir := t.TempDir()
	out := filepath.Join(dir, "bugline.prom")
	viper.Set("workspace", dir)
	viper.Set("base-url", srv.URL+"/api")
	viper.Set("metrics-file", out)

	cmd := &cobra.Command{}
	cmd.SetContext(context.Background())
	var unresolved int
	require.NoError(t, withClient(cmd, func(c *app.Client) error {
		unresolved = len(c.UnresolvedBugs())
		c.ResolveBug(1)
		return nil
	}))
	assert.Equal(t, 4, unresolved)

	raw, err := os.ReadFile(out)
	require.NoError(t, err)
	text := string(raw)
	assert.Contains(t, text, `bugline_store_actions_total{type="api/callBegan"} 2`)
	assert.Contains(t, text, `bugline_api_call_duration_seconds_count{method="GET",outcome="success"} 1`)
	assert.Contains(t, text, `bugline_api_call_duration_seconds_count{method="PATCH",outcome="success"} 1`)
	assert.Contains(t, text, "bugline_api_calls_in_flight 0")
	assert.NotContains(t, text, "bugline_http_requests_total")
}
