package cache

import (
	"testing"
	"time"
)

func TestKey_Deterministic(t *testing.T) {
	tests := []struct {
		name     string
		category Category
		parts    []string
		want     string
	}{
		{"track", CategoryTrack, []string{"4uLU6hMCjMI75M1A2tKUQC"}, "track:4uLU6hMCjMI75M1A2tKUQC"},
		{"playlist", CategoryPlaylist, []string{"37i9dQZF1DXcBWIGoYBM5M"}, "playlist:37i9dQZF1DXcBWIGoYBM5M"},
		{"search with query parts", CategorySearch, []string{"artist", "daft punk"}, "search:artist:daft punk"},
		{"no parts", CategoryPlayback, nil, "playback"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Key(tt.category, tt.parts...); got != tt.want {
				t.Errorf("Key = %q, want %q", got, tt.want)
			}
			// Same inputs, same key: independent callers must collide.
			if again := Key(tt.category, tt.parts...); again != tt.want {
				t.Errorf("Key not deterministic: %q", again)
			}
		})
	}
}

func TestStrategyFor_VolatilityOrdering(t *testing.T) {
	// Catalog data keeps long TTLs; playback state keeps short ones.
	track := StrategyFor(CategoryTrack)
	playback := StrategyFor(CategoryPlayback)

	if track.TTL < time.Hour {
		t.Errorf("track TTL = %v, want hours", track.TTL)
	}
	if playback.TTL > time.Minute {
		t.Errorf("playback TTL = %v, want seconds", playback.TTL)
	}
}

func TestStrategyFor_UnknownCategory(t *testing.T) {
	s := StrategyFor(Category("made-up"))
	if s.TTL <= 0 {
		t.Error("unknown category needs a positive default TTL")
	}
	if s.Prefix != "made-up" {
		t.Errorf("Prefix = %q", s.Prefix)
	}
}

func TestUserPlaylistsKey(t *testing.T) {
	if got := UserPlaylistsKey("alice"); got != "user:alice:playlists" {
		t.Errorf("UserPlaylistsKey = %q", got)
	}
}

func TestStrategies_AllHavePositiveTTL(t *testing.T) {
	for _, s := range Strategies() {
		if s.TTL <= 0 {
			t.Errorf("category %s has non-positive TTL", s.Category)
		}
		if s.Prefix == "" {
			t.Errorf("category %s has empty prefix", s.Category)
		}
	}
}
