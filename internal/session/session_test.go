package session

import (
	"context"
	"sync"
	"testing"
	"time"
)

// stores returns a fresh instance of each Store implementation.
func stores(t *testing.T) map[string]Store {
	t.Helper()
	sqlite, err := OpenSQLite(":memory:")
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	return map[string]Store{
		"memory": NewMemoryStore(0),
		"sqlite": sqlite,
	}
}

func TestStore_HistoryAccumulatesTurns(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			defer store.Close()
			ctx := context.Background()

			if err := store.AppendTurn(ctx, "sess-1", "first question", "first answer"); err != nil {
				t.Fatalf("AppendTurn: %v", err)
			}
			if err := store.AppendTurn(ctx, "sess-1", "second question", "second answer"); err != nil {
				t.Fatalf("AppendTurn: %v", err)
			}

			msgs, err := store.History(ctx, "sess-1")
			if err != nil {
				t.Fatalf("History: %v", err)
			}
			if len(msgs) != 4 {
				t.Fatalf("got %d messages, want 4", len(msgs))
			}
			wantRoles := []Role{RoleUser, RoleAssistant, RoleUser, RoleAssistant}
			wantContent := []string{"first question", "first answer", "second question", "second answer"}
			for i, m := range msgs {
				if m.Role != wantRoles[i] {
					t.Errorf("msg %d role = %q, want %q", i, m.Role, wantRoles[i])
				}
				if m.Content != wantContent[i] {
					t.Errorf("msg %d content = %q, want %q", i, m.Content, wantContent[i])
				}
			}
		})
	}
}

func TestStore_SessionsAreIsolated(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			defer store.Close()
			ctx := context.Background()

			if err := store.AppendTurn(ctx, "sess-a", "q", "a"); err != nil {
				t.Fatalf("AppendTurn: %v", err)
			}

			msgs, err := store.History(ctx, "sess-b")
			if err != nil {
				t.Fatalf("History: %v", err)
			}
			if len(msgs) != 0 {
				t.Errorf("sess-b sees %d messages from sess-a", len(msgs))
			}
		})
	}
}

func TestStore_UnknownSessionIsEmpty(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			defer store.Close()

			msgs, err := store.History(context.Background(), "never-seen")
			if err != nil {
				t.Fatalf("History: %v", err)
			}
			if len(msgs) != 0 {
				t.Errorf("got %d messages, want 0", len(msgs))
			}
		})
	}
}

func TestStore_ResetClearsOnlyThatSession(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			defer store.Close()
			ctx := context.Background()

			if err := store.AppendTurn(ctx, "sess-a", "q", "a"); err != nil {
				t.Fatalf("AppendTurn: %v", err)
			}
			if err := store.AppendTurn(ctx, "sess-b", "q", "a"); err != nil {
				t.Fatalf("AppendTurn: %v", err)
			}

			if err := store.Reset(ctx, "sess-a"); err != nil {
				t.Fatalf("Reset: %v", err)
			}

			msgs, err := store.History(ctx, "sess-a")
			if err != nil {
				t.Fatalf("History: %v", err)
			}
			if len(msgs) != 0 {
				t.Errorf("sess-a has %d messages after reset", len(msgs))
			}

			msgs, err = store.History(ctx, "sess-b")
			if err != nil {
				t.Fatalf("History: %v", err)
			}
			if len(msgs) != 2 {
				t.Errorf("sess-b has %d messages, want 2", len(msgs))
			}
		})
	}
}

func TestStore_ResetUnknownSessionIsNoOp(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			defer store.Close()
			if err := store.Reset(context.Background(), "never-seen"); err != nil {
				t.Errorf("Reset: %v", err)
			}
		})
	}
}

func TestStore_ConcurrentAppendsKeepPairsIntact(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			defer store.Close()
			ctx := context.Background()

			const turns = 20
			var wg sync.WaitGroup
			for i := 0; i < turns; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					if err := store.AppendTurn(ctx, "sess-1", "q", "a"); err != nil {
						t.Errorf("AppendTurn: %v", err)
					}
				}()
			}
			wg.Wait()

			msgs, err := store.History(ctx, "sess-1")
			if err != nil {
				t.Fatalf("History: %v", err)
			}
			if len(msgs) != 2*turns {
				t.Fatalf("got %d messages, want %d", len(msgs), 2*turns)
			}
			// Every user message must be immediately followed by an
			// assistant message.
			for i := 0; i < len(msgs); i += 2 {
				if msgs[i].Role != RoleUser || msgs[i+1].Role != RoleAssistant {
					t.Fatalf("turn %d roles = %q, %q", i/2, msgs[i].Role, msgs[i+1].Role)
				}
			}
		})
	}
}

func TestMemoryStore_EvictsIdleSessions(t *testing.T) {
	store := NewMemoryStore(10 * time.Millisecond)
	defer store.Close()
	ctx := context.Background()

	if err := store.AppendTurn(ctx, "sess-1", "q", "a"); err != nil {
		t.Fatalf("AppendTurn: %v", err)
	}

	time.Sleep(20 * time.Millisecond)
	store.evict()

	msgs, err := store.History(ctx, "sess-1")
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(msgs) != 0 {
		t.Errorf("idle session not evicted, %d messages remain", len(msgs))
	}
}

func TestSQLiteStore_SurvivesReopen(t *testing.T) {
	path := t.TempDir() + "/history.db"

	store, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	if err := store.AppendTurn(context.Background(), "sess-1", "q", "a"); err != nil {
		t.Fatalf("AppendTurn: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	store, err = OpenSQLite(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer store.Close()

	msgs, err := store.History(context.Background(), "sess-1")
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(msgs) != 2 {
		t.Errorf("got %d messages after reopen, want 2", len(msgs))
	}
}
