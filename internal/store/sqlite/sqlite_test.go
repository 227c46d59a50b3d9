package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/vovakirdan/wirechat-relay/internal/store"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	s, err := NewWithSetup(":memory:", Migrate)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestCreateAndGetUser(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	created, err := s.CreateUser(ctx, "alice", "hash")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	if created.ID == 0 || created.Username != "alice" || created.PasswordHash != "hash" {
		t.Fatalf("unexpected user: %+v", created)
	}

	got, err := s.GetUserByUsername(ctx, "alice")
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if got.ID != created.ID {
		t.Fatalf("expected id %d, got %d", created.ID, got.ID)
	}
}

func TestCreateUserConflict(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.CreateUser(ctx, "alice", "hash"); err != nil {
		t.Fatalf("create user: %v", err)
	}
	if _, err := s.CreateUser(ctx, "alice", "other"); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestGetUserNotFound(t *testing.T) {
	s := newTestStore(t)

	if _, err := s.GetUserByUsername(context.Background(), "ghost"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUsernamesAreCaseSensitive(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.CreateUser(ctx, "alice", "hash"); err != nil {
		t.Fatalf("create user: %v", err)
	}
	if _, err := s.GetUserByUsername(ctx, "Alice"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for different case, got %v", err)
	}
}

func TestUpdatePasswordAndList(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, name := range []string{"charlie", "alice", "bob"} {
		if _, err := s.CreateUser(ctx, name, "hash"); err != nil {
			t.Fatalf("create user %s: %v", name, err)
		}
	}

	if err := s.UpdatePassword(ctx, "bob", "new-hash"); err != nil {
		t.Fatalf("update password: %v", err)
	}
	if err := s.UpdatePassword(ctx, "ghost", "x"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	users, err := s.ListUsers(ctx)
	if err != nil {
		t.Fatalf("list users: %v", err)
	}

	expected := []string{"alice", "bob", "charlie"}
	if len(users) != len(expected) {
		t.Fatalf("expected %d users, got %d", len(expected), len(users))
	}
	for i, u := range users {
		if u.Username != expected[i] {
			t.Errorf("expected %s at index %d, got %s", expected[i], i, u.Username)
		}
		if u.Username == "bob" && u.PasswordHash != "new-hash" {
			t.Errorf("expected updated hash for bob, got %s", u.PasswordHash)
		}
	}
}

func TestNewAppliesSchemaOnDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chat.db")

	s, err := New(path)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	if _, err := s.CreateUser(context.Background(), "alice", "hash"); err != nil {
		t.Fatalf("create user: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	// Reopening must not fail on the existing schema.
	s, err = New(path)
	if err != nil {
		t.Fatalf("reopen store: %v", err)
	}
	defer s.Close()

	if _, err := s.GetUserByUsername(context.Background(), "alice"); err != nil {
		t.Fatalf("expected persisted user, got %v", err)
	}
}
