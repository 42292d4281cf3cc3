package sessions

import (
	"context"
	"testing"
)

func TestMemoryStore_AppendAndRecentTurns(t *testing.T) {
	store := NewMemoryStore()
	key := Key("guild-1", "chan-1", "user-1")

	for i := 0; i < 3; i++ {
		if err := store.AppendTurn(context.Background(), key, Turn{UserMessage: "hi", ReplyText: "hello"}); err != nil {
			t.Fatalf("AppendTurn() error = %v", err)
		}
	}

	turns, err := store.RecentTurns(context.Background(), key, 2)
	if err != nil {
		t.Fatalf("RecentTurns() error = %v", err)
	}
	if len(turns) != 2 {
		t.Fatalf("expected 2 most recent turns, got %d", len(turns))
	}
}

func TestMemoryStore_RecentTurnsUnknownKeyIsEmpty(t *testing.T) {
	store := NewMemoryStore()
	turns, err := store.RecentTurns(context.Background(), "missing", 5)
	if err != nil || len(turns) != 0 {
		t.Fatalf("expected empty slice for unknown key, got %v err=%v", turns, err)
	}
}

func TestMemoryStore_TrimsToMaxTurnsPerKey(t *testing.T) {
	store := NewMemoryStore()
	key := "k"
	for i := 0; i < maxTurnsPerKey+10; i++ {
		_ = store.AppendTurn(context.Background(), key, Turn{UserMessage: "m"})
	}
	turns, _ := store.RecentTurns(context.Background(), key, 0)
	if len(turns) != maxTurnsPerKey {
		t.Fatalf("expected trim to %d turns, got %d", maxTurnsPerKey, len(turns))
	}
}

func TestFormatRecentTurns(t *testing.T) {
	out := FormatRecentTurns([]Turn{{UserMessage: "hi", ReplyText: "hello"}})
	if len(out) != 2 || out[0] != "User: hi" || out[1] != "Assistant: hello" {
		t.Fatalf("unexpected format: %v", out)
	}
}
