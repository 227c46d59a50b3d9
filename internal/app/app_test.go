package app

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/wirechat-relay/internal/auth"
	"github.com/vovakirdan/wirechat-relay/internal/client"
	"github.com/vovakirdan/wirechat-relay/internal/config"
	"github.com/vovakirdan/wirechat-relay/internal/core"
	applog "github.com/vovakirdan/wirechat-relay/internal/log"
	"github.com/vovakirdan/wirechat-relay/internal/store/sqlite"
)

func seedUsers(t *testing.T, dbPath string, users map[string]string) {
	t.Helper()

	st, err := sqlite.New(dbPath)
	require.NoError(t, err)
	defer st.Close()

	svc := auth.NewService(st, nil)
	for name, pw := range users {
		_, err := svc.Register(context.Background(), name, pw)
		require.NoError(t, err)
	}
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()

	cfg := config.Default()
	cfg.Addr = "127.0.0.1:0"
	cfg.HTTPAddr = ""
	cfg.AcceptTimeout = 20 * time.Millisecond
	cfg.ShutdownTimeout = 2 * time.Second
	cfg.DatabasePath = filepath.Join(t.TempDir(), "chat.db")
	cfg.JWTSecret = "test-secret"
	return &cfg
}

func startApp(t *testing.T, cfg *config.Config, opts ...Option) (*App, <-chan error) {
	t.Helper()

	a, err := New(cfg, applog.Nop(), opts...)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	errc := make(chan error, 1)
	go func() { errc <- a.Run(ctx) }()

	require.Eventually(t, func() bool { return a.Addr() != nil }, 2*time.Second, 10*time.Millisecond)
	return a, errc
}

func TestAppServesAndShutsDown(t *testing.T) {
	cfg := testConfig(t)
	seedUsers(t, cfg.DatabasePath, map[string]string{"alice": "1234"})

	a, errc := startApp(t, cfg)

	ctx := context.Background()
	c, err := client.Dial(ctx, a.Addr().String(), nil)
	require.NoError(t, err)
	defer c.Close()

	token, err := c.Login(ctx, "alice", "1234")
	require.NoError(t, err)
	assert.NotEmpty(t, token, "jwt_secret is set, a token must be issued")

	a.Hub().Shutdown()

	select {
	case err := <-errc:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not return after hub shutdown")
	}

	for ev := range c.Events() {
		if ev.Code == core.ErrCodeShutdown {
			return
		}
	}
	t.Fatal("shutdown notice not received")
}

func TestAppConsoleShutdown(t *testing.T) {
	cfg := testConfig(t)

	var out strings.Builder
	_, errc := startApp(t, cfg, WithConsole(strings.NewReader("list\nshutdown\n"), &out))

	select {
	case err := <-errc:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not return after console shutdown")
	}
	assert.Contains(t, out.String(), "0 connection(s)")
}

func TestAppStopsOnCancel(t *testing.T) {
	cfg := testConfig(t)

	a, err := New(cfg, applog.Nop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- a.Run(ctx) }()

	require.Eventually(t, func() bool { return a.Addr() != nil }, 2*time.Second, 10*time.Millisecond)
	cancel()

	select {
	case err := <-errc:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	select {
	case <-a.Hub().Done():
	default:
		t.Fatal("hub must be shut down when Run returns")
	}
}

func TestAppConfigWatchChangesLogLevel(t *testing.T) {
	t.Cleanup(func() { zerolog.SetGlobalLevel(zerolog.TraceLevel) })

	cfg := testConfig(t)
	cfg.LogLevel = "info"
	applog.SetLevel(cfg.LogLevel)

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log_level: info\n"), 0o600))

	startApp(t, cfg, WithConfigWatch(path))

	// Run starts the watcher after the listener is bound, so keep rewriting
	// until a change lands.
	require.Eventually(t, func() bool {
		if err := os.WriteFile(path, []byte("log_level: error\n"), 0o600); err != nil {
			return false
		}
		return zerolog.GlobalLevel() == zerolog.ErrorLevel
	}, 3*time.Second, 50*time.Millisecond)
}
