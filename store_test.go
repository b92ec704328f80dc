package main

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func testStoreSession(id string) *Session {
	return &Session{
		ID:        id,
		HostToken: "host-" + id,
		Board: Board{
			Categories: []string{"Capitals"},
			Questions: [][]BoardCell{
				{{Value: 200, Question: "Capital of France", Answer: "What is Paris?"}},
			},
		},
		Players:     map[string]PlayerRecord{"p1": {Name: "Ann", Score: 100}},
		BuzzerState: BuzzerClosed,
	}
}

// Both store implementations must behave identically across the Store
// contract, so the same cases run against each.
func testStoreContract(t *testing.T, store Store) {
	t.Helper()

	ctx := context.Background()

	t.Run("missing id", func(t *testing.T) {
		if _, err := store.Get(ctx, "absent"); !errors.Is(err, ErrGameNotFound) {
			t.Fatalf("Get missing: got %v, want %v", err, ErrGameNotFound)
		}
	})

	t.Run("round trip", func(t *testing.T) {
		session := testStoreSession("roundtrip")
		if err := store.Set(ctx, session, time.Hour); err != nil {
			t.Fatalf("Set: %v", err)
		}

		got, err := store.Get(ctx, "roundtrip")
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if got.HostToken != session.HostToken {
			t.Fatalf("host token: got %q, want %q", got.HostToken, session.HostToken)
		}
		if got.Players["p1"].Score != 100 {
			t.Fatalf("score: got %d, want 100", got.Players["p1"].Score)
		}
		if len(got.Board.Questions) != 1 || got.Board.Questions[0][0].Answer != "What is Paris?" {
			t.Fatalf("board did not survive the round trip: %+v", got.Board)
		}
	})

	t.Run("get returns independent copies", func(t *testing.T) {
		if err := store.Set(ctx, testStoreSession("copies"), time.Hour); err != nil {
			t.Fatalf("Set: %v", err)
		}

		first, err := store.Get(ctx, "copies")
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		first.Started = true
		first.Players["p1"] = PlayerRecord{Name: "Ann", Score: 9000}
		first.Board.Questions[0][0].Used = true

		second, err := store.Get(ctx, "copies")
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if second.Started || second.Players["p1"].Score != 100 || second.Board.Questions[0][0].Used {
			t.Fatalf("mutation of one copy leaked into the store: %+v", second)
		}
	})

	t.Run("set replaces wholesale", func(t *testing.T) {
		if err := store.Set(ctx, testStoreSession("replace"), time.Hour); err != nil {
			t.Fatalf("Set: %v", err)
		}

		updated := testStoreSession("replace")
		updated.Started = true
		delete(updated.Players, "p1")
		if err := store.Set(ctx, updated, time.Hour); err != nil {
			t.Fatalf("Set: %v", err)
		}

		got, err := store.Get(ctx, "replace")
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if !got.Started || len(got.Players) != 0 {
			t.Fatalf("stale fields survived the rewrite: %+v", got)
		}
	})

	t.Run("expired record is gone", func(t *testing.T) {
		if err := store.Set(ctx, testStoreSession("expired"), -time.Second); err != nil {
			t.Fatalf("Set: %v", err)
		}

		if _, err := store.Get(ctx, "expired"); !errors.Is(err, ErrGameNotFound) {
			t.Fatalf("Get expired: got %v, want %v", err, ErrGameNotFound)
		}
	})

	t.Run("set refreshes ttl", func(t *testing.T) {
		if err := store.Set(ctx, testStoreSession("refresh"), -time.Second); err != nil {
			t.Fatalf("Set: %v", err)
		}
		if err := store.Set(ctx, testStoreSession("refresh"), time.Hour); err != nil {
			t.Fatalf("Set: %v", err)
		}

		if _, err := store.Get(ctx, "refresh"); err != nil {
			t.Fatalf("Get after refresh: %v", err)
		}
	})

	t.Run("delete", func(t *testing.T) {
		if err := store.Set(ctx, testStoreSession("deleted"), time.Hour); err != nil {
			t.Fatalf("Set: %v", err)
		}
		if err := store.Delete(ctx, "deleted"); err != nil {
			t.Fatalf("Delete: %v", err)
		}
		if _, err := store.Get(ctx, "deleted"); !errors.Is(err, ErrGameNotFound) {
			t.Fatalf("Get deleted: got %v, want %v", err, ErrGameNotFound)
		}
		if err := store.Delete(ctx, "deleted"); err != nil {
			t.Fatalf("Delete twice: %v", err)
		}
	})
}

func TestMemoryStore(t *testing.T) {
	store := NewMemoryStore(0)
	t.Cleanup(func() { _ = store.Close() })

	testStoreContract(t, store)
}

func TestSQLiteStore(t *testing.T) {
	store, err := OpenSQLiteStore(filepath.Join(t.TempDir(), "sessions.db"), 0)
	if err != nil {
		t.Fatalf("OpenSQLiteStore: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	testStoreContract(t, store)
}

func TestSQLiteStoreSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions.db")
	ctx := context.Background()

	store, err := OpenSQLiteStore(path, 0)
	if err != nil {
		t.Fatalf("OpenSQLiteStore: %v", err)
	}
	if err := store.Set(ctx, testStoreSession("persisted"), time.Hour); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := OpenSQLiteStore(path, 0)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	t.Cleanup(func() { _ = reopened.Close() })

	got, err := reopened.Get(ctx, "persisted")
	if err != nil {
		t.Fatalf("Get after reopen: %v", err)
	}
	if got.Players["p1"].Name != "Ann" {
		t.Fatalf("record did not survive reopen: %+v", got)
	}
}
