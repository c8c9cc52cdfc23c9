package memory

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/smallnest/ragflow/rag"
)

func turn(role rag.Role, content string) rag.ConversationTurn {
	return rag.ConversationTurn{Role: role, Content: content}
}

// exerciseStore checks the behaviour shared by every Store.
func exerciseStore(t *testing.T, mem Store) {
	ctx := context.Background()

	for i := 1; i <= 4; i++ {
		err := mem.Append(ctx, "s1",
			turn(rag.RoleUser, fmt.Sprintf("question %d", i)),
			turn(rag.RoleAssistant, fmt.Sprintf("answer %d", i)),
		)
		if err != nil {
			t.Fatalf("Failed to append: %v", err)
		}
	}
	if err := mem.Append(ctx, "s2", turn(rag.RoleUser, "other")); err != nil {
		t.Fatalf("Failed to append: %v", err)
	}

	turns, err := mem.Recent(ctx, "s1", 3)
	if err != nil {
		t.Fatalf("Failed to get recent turns: %v", err)
	}
	if len(turns) != 3 {
		t.Fatalf("Expected 3 turns, got %d", len(turns))
	}
	if turns[0].Content != "answer 3" || turns[1].Content != "question 4" || turns[2].Content != "answer 4" {
		t.Errorf("Recent returned wrong turns: %+v", turns)
	}
	if turns[1].Role != rag.RoleUser || turns[2].Role != rag.RoleAssistant {
		t.Errorf("Roles were not preserved")
	}
	if turns[0].Timestamp.IsZero() {
		t.Errorf("Expected timestamp to be set")
	}

	turns, _ = mem.Recent(ctx, "s1", 0)
	if len(turns) != 0 {
		t.Errorf("Expected no turns for n=0, got %d", len(turns))
	}

	turns, _ = mem.Recent(ctx, "unknown", 5)
	if len(turns) != 0 {
		t.Errorf("Expected no turns for unknown session, got %d", len(turns))
	}

	stats, err := mem.GetStats(ctx)
	if err != nil {
		t.Fatalf("Failed to get stats: %v", err)
	}
	if stats.Sessions != 2 {
		t.Errorf("Expected 2 sessions, got %d", stats.Sessions)
	}

	if err := mem.Clear(ctx, "s1"); err != nil {
		t.Fatalf("Failed to clear: %v", err)
	}
	turns, _ = mem.Recent(ctx, "s1", 5)
	if len(turns) != 0 {
		t.Errorf("Expected 0 turns after clear, got %d", len(turns))
	}

	if err := mem.Append(ctx, "", turn(rag.RoleUser, "x")); err == nil {
		t.Errorf("Expected error for empty session ID")
	}
}

func TestSlidingWindowMemory(t *testing.T) {
	exerciseStore(t, NewSlidingWindowMemory(0))
}

func TestSlidingWindowMemory_Window(t *testing.T) {
	ctx := context.Background()
	mem := NewSlidingWindowMemory(2)

	mem.Append(ctx, "s", turn(rag.RoleUser, "Message 1"))
	mem.Append(ctx, "s", turn(rag.RoleUser, "Message 2"), turn(rag.RoleUser, "Message 3"))

	turns, _ := mem.Recent(ctx, "s", 10)
	if len(turns) != 2 {
		t.Fatalf("Expected 2 turns in window, got %d", len(turns))
	}
	if turns[0].Content != "Message 2" || turns[1].Content != "Message 3" {
		t.Errorf("Window contains wrong turns")
	}

	stats, _ := mem.GetStats(ctx)
	if stats.TotalTurns != 2 {
		t.Errorf("Expected 2 total turns, got %d", stats.TotalTurns)
	}
}

func TestSQLiteStore(t *testing.T) {
	store, err := NewSQLiteStore(SQLiteOptions{Path: filepath.Join(t.TempDir(), "history.db")})
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	defer store.Close()

	exerciseStore(t, store)
}

func TestSQLiteStore_Persists(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "history.db")

	store, err := NewSQLiteStore(SQLiteOptions{Path: path, TableName: "turns"})
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	if err := store.Append(ctx, "s", rag.ConversationTurn{Role: rag.RoleUser, Content: "hello", Timestamp: at}); err != nil {
		t.Fatalf("Failed to append: %v", err)
	}
	store.Close()

	reopened, err := NewSQLiteStore(SQLiteOptions{Path: path, TableName: "turns"})
	if err != nil {
		t.Fatalf("Failed to reopen store: %v", err)
	}
	defer reopened.Close()

	turns, err := reopened.Recent(ctx, "s", 5)
	if err != nil {
		t.Fatalf("Failed to get recent turns: %v", err)
	}
	if len(turns) != 1 || turns[0].Content != "hello" {
		t.Fatalf("Expected persisted turn, got %+v", turns)
	}
	if !turns[0].Timestamp.Equal(at) {
		t.Errorf("Expected timestamp %v, got %v", at, turns[0].Timestamp)
	}
}
