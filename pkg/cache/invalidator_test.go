package cache

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func seededManager(t *testing.T) *Manager {
	t.Helper()
	m := NewManagerWithBackend(NewMemoryBackend(100), zerolog.Nop())
	ctx := context.Background()

	entries := map[string]string{
		"playlist:P":            "playlist P",
		"playlist:P:items":      "playlist P tracks",
		"playlist:P2":           "playlist P2",
		"playlist:Q":            "playlist Q",
		"user:alice:playlists":  "alice's lists",
		"user:bob:playlists":    "bob's lists",
		"track:T":               "track T",
		"search:artist:someone": "results",
	}
	for k, v := range entries {
		if err := m.Set(ctx, k, []byte(v), time.Minute); err != nil {
			t.Fatalf("seed %s: %v", k, err)
		}
	}
	return m
}

func TestInvalidator_PlaylistScope(t *testing.T) {
	m := seededManager(t)
	inv := NewInvalidator(m, zerolog.Nop())
	ctx := context.Background()

	if err := inv.Invalidate(ctx, "playlist", "P", "update"); err != nil {
		t.Fatalf("Invalidate failed: %v", err)
	}

	// Playlist P, its derived keys, the playlist-list keys, and search
	// results are gone.
	for _, key := range []string{"playlist:P", "playlist:P:items", "user:alice:playlists", "search:artist:someone"} {
		if _, err := m.Get(ctx, key); err != ErrCacheMiss {
			t.Errorf("%s should be invalidated, got %v", key, err)
		}
	}

	// The unrelated playlist Q is untouched, and so is P2, whose ID merely
	// shares P's prefix.
	for _, key := range []string{"playlist:Q", "playlist:P2"} {
		if _, err := m.Get(ctx, key); err != nil {
			t.Errorf("unrelated %s was cleared: %v", key, err)
		}
	}
	// So is unrelated track data.
	if _, err := m.Get(ctx, "track:T"); err != nil {
		t.Errorf("unrelated track:T was cleared: %v", err)
	}
}

func TestInvalidator_PrefixSharingTracksSurvive(t *testing.T) {
	m := NewManagerWithBackend(NewMemoryBackend(100), zerolog.Nop())
	inv := NewInvalidator(m, zerolog.Nop())
	ctx := context.Background()

	m.Set(ctx, "track:T1", []byte("track T1"), time.Minute)
	m.Set(ctx, "track:T12", []byte("track T12"), time.Minute)

	if err := inv.Invalidate(ctx, "track", "T1", "update"); err != nil {
		t.Fatalf("Invalidate failed: %v", err)
	}

	if _, err := m.Get(ctx, "track:T1"); err != ErrCacheMiss {
		t.Errorf("track:T1 should be invalidated, got %v", err)
	}
	if _, err := m.Get(ctx, "track:T12"); err != nil {
		t.Errorf("track:T12 was cleared by invalidating track T1: %v", err)
	}
}

func TestInvalidator_PlayerScope(t *testing.T) {
	m := NewManagerWithBackend(NewMemoryBackend(100), zerolog.Nop())
	inv := NewInvalidator(m, zerolog.Nop())
	ctx := context.Background()

	m.Set(ctx, "playback:u1", []byte("playing"), time.Minute)
	m.Set(ctx, "devices:u1", []byte("speaker"), time.Minute)
	m.Set(ctx, "track:T", []byte("track"), time.Minute)

	if err := inv.Invalidate(ctx, "player", "u1", "pause"); err != nil {
		t.Fatalf("Invalidate failed: %v", err)
	}

	for _, key := range []string{"playback:u1", "devices:u1"} {
		if _, err := m.Get(ctx, key); err != ErrCacheMiss {
			t.Errorf("%s should be invalidated", key)
		}
	}
	if _, err := m.Get(ctx, "track:T"); err != nil {
		t.Errorf("track:T should survive a player invalidation: %v", err)
	}
}

func TestInvalidator_UnknownTypeIsNoop(t *testing.T) {
	m := seededManager(t)
	inv := NewInvalidator(m, zerolog.Nop())
	ctx := context.Background()

	if err := inv.Invalidate(ctx, "podcast", "X", "update"); err != nil {
		t.Fatalf("Invalidate failed: %v", err)
	}
	if _, err := m.Get(ctx, "playlist:P"); err != nil {
		t.Error("unknown resource type cleared unrelated keys")
	}
	if len(inv.History()) != 0 {
		t.Error("no-op invalidation should not be recorded")
	}
}

func TestInvalidator_HistoryRecorded(t *testing.T) {
	m := seededManager(t)
	inv := NewInvalidator(m, zerolog.Nop())
	ctx := context.Background()

	if err := inv.Invalidate(ctx, "playlist", "P", "delete"); err != nil {
		t.Fatalf("Invalidate failed: %v", err)
	}

	history := inv.History()
	if len(history) != 1 {
		t.Fatalf("history length = %d, want 1", len(history))
	}
	rec := history[0]
	if rec.ResourceType != "playlist" || rec.ResourceID != "P" || rec.Operation != "delete" {
		t.Errorf("record = %+v", rec)
	}
	if len(rec.Patterns) == 0 {
		t.Error("record has no patterns")
	}
	if rec.Removed == 0 {
		t.Error("record shows nothing removed")
	}
}

func TestInvalidator_HistoryBounded(t *testing.T) {
	m := NewManagerWithBackend(NewMemoryBackend(10), zerolog.Nop())
	inv := NewInvalidator(m, zerolog.Nop())
	ctx := context.Background()

	for i := 0; i < historyLimit+20; i++ {
		if err := inv.Invalidate(ctx, "track", fmt.Sprintf("t%d", i), "update"); err != nil {
			t.Fatalf("Invalidate %d failed: %v", i, err)
		}
	}

	history := inv.History()
	if len(history) != historyLimit {
		t.Errorf("history length = %d, want %d", len(history), historyLimit)
	}
	// Oldest entries were dropped.
	if history[0].ResourceID != "t20" {
		t.Errorf("oldest retained record = %s, want t20", history[0].ResourceID)
	}
}
