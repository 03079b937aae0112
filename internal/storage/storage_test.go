package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/picrate/picrate/internal/config"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	cfg := &config.Seen{
		Driver:     "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "test.db"),
	}

	store, err := New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestNewUnsupportedDriver(t *testing.T) {
	_, err := New(context.Background(), &config.Seen{Driver: "postgres"})
	if err == nil {
		t.Fatal("expected error for unsupported driver")
	}
}

func TestLoadSeenEmptyUser(t *testing.T) {
	store := newTestStore(t)

	filenames, err := store.LoadSeen(context.Background(), "alice")
	if err != nil {
		t.Fatalf("LoadSeen() error = %v", err)
	}
	if len(filenames) != 0 {
		t.Errorf("expected empty set for unknown user, got %v", filenames)
	}
}

func TestSaveAndLoadSeen(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	want := []string{"a.png", "b.png", "c.png"}
	if err := store.SaveSeen(ctx, "alice", want); err != nil {
		t.Fatalf("SaveSeen() error = %v", err)
	}

	got, err := store.LoadSeen(ctx, "alice")
	if err != nil {
		t.Fatalf("LoadSeen() error = %v", err)
	}
	if len(got) != len(want) {
		t.Fatalf("LoadSeen() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("LoadSeen()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestSaveSeenOverwrites(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.SaveSeen(ctx, "alice", []string{"a.png", "b.png"}); err != nil {
		t.Fatalf("SaveSeen() error = %v", err)
	}
	if err := store.SaveSeen(ctx, "alice", []string{"c.png"}); err != nil {
		t.Fatalf("SaveSeen() error = %v", err)
	}

	got, err := store.LoadSeen(ctx, "alice")
	if err != nil {
		t.Fatalf("LoadSeen() error = %v", err)
	}
	if len(got) != 1 || got[0] != "c.png" {
		t.Errorf("LoadSeen() = %v, want [c.png]", got)
	}
}

func TestSaveSeenNilSlice(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.SaveSeen(ctx, "alice", nil); err != nil {
		t.Fatalf("SaveSeen() error = %v", err)
	}
	got, err := store.LoadSeen(ctx, "alice")
	if err != nil {
		t.Fatalf("LoadSeen() error = %v", err)
	}
	if len(got) != 0 {
		t.Errorf("LoadSeen() = %v, want empty", got)
	}
}

func TestUsersIsolated(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.SaveSeen(ctx, "alice", []string{"a.png"}); err != nil {
		t.Fatalf("SaveSeen() error = %v", err)
	}

	got, err := store.LoadSeen(ctx, "bob")
	if err != nil {
		t.Fatalf("LoadSeen() error = %v", err)
	}
	if len(got) != 0 {
		t.Errorf("bob should have an empty set, got %v", got)
	}
}

func TestSeenSetMarkAndPersist(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	ss, err := LoadSeenSet(ctx, store, "alice")
	if err != nil {
		t.Fatalf("LoadSeenSet() error = %v", err)
	}

	if err := ss.MarkSeen(ctx, "b.png"); err != nil {
		t.Fatalf("MarkSeen() error = %v", err)
	}
	if err := ss.MarkSeen(ctx, "a.png"); err != nil {
		t.Fatalf("MarkSeen() error = %v", err)
	}

	if !ss.Seen("a.png") || !ss.Seen("b.png") {
		t.Error("marked filenames should read back as seen")
	}
	if ss.Seen("c.png") {
		t.Error("unmarked filename should not be seen")
	}
	if ss.Count() != 2 {
		t.Errorf("Count() = %d, want 2", ss.Count())
	}

	// Filenames come back sorted
	names := ss.Filenames()
	if len(names) != 2 || names[0] != "a.png" || names[1] != "b.png" {
		t.Errorf("Filenames() = %v, want [a.png b.png]", names)
	}

	// Reload through a fresh set to confirm persistence
	ss2, err := LoadSeenSet(ctx, store, "alice")
	if err != nil {
		t.Fatalf("LoadSeenSet() reload error = %v", err)
	}
	if ss2.Count() != 2 {
		t.Errorf("reloaded Count() = %d, want 2", ss2.Count())
	}
}

func TestSeenSetMarkIdempotent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	ss, err := LoadSeenSet(ctx, store, "alice")
	if err != nil {
		t.Fatalf("LoadSeenSet() error = %v", err)
	}

	if err := ss.MarkSeen(ctx, "a.png"); err != nil {
		t.Fatalf("MarkSeen() error = %v", err)
	}
	if err := ss.MarkSeen(ctx, "a.png"); err != nil {
		t.Fatalf("MarkSeen() repeat error = %v", err)
	}
	if ss.Count() != 1 {
		t.Errorf("Count() = %d, want 1", ss.Count())
	}
}
