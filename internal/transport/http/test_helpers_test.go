package http

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-relay/internal/auth"
	"github.com/vovakirdan/wirechat-relay/internal/config"
	"github.com/vovakirdan/wirechat-relay/internal/core"
	"github.com/vovakirdan/wirechat-relay/internal/store/sqlite"
)

const testAdminToken = "admin-secret"

// createTestAuthService returns an auth service over an in-memory store with alice
// and bob registered.
func createTestAuthService(t *testing.T) *auth.Service {
	t.Helper()

	st, err := sqlite.NewWithSetup(":memory:", sqlite.Migrate)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	svc := auth.NewService(st, nil)
	for name, pw := range map[string]string{"alice": "1234", "bob": "4567"} {
		if _, err := svc.Register(context.Background(), name, pw); err != nil {
			t.Fatalf("register %s: %v", name, err)
		}
	}
	return svc
}

func testConfig(adminToken string) *config.Config {
	cfg := config.Default()
	cfg.HTTPAddr = "127.0.0.1:0"
	cfg.ReadHeaderTimeout = time.Second
	cfg.AdminToken = adminToken
	return &cfg
}

func newTestHub(t *testing.T, svc *auth.Service) *core.Hub {
	t.Helper()

	hub := core.NewHub(core.Options{Credentials: svc, WriteTimeout: time.Second})
	t.Cleanup(hub.Shutdown)
	return hub
}

func disabledLogger() *zerolog.Logger {
	logger := zerolog.Nop()
	return &logger
}
