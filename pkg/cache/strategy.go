package cache

import (
	"strings"
	"time"
)

// Category is a logical resource category with a fixed TTL and key prefix.
// TTLs follow data volatility: near-immutable catalog data keeps long TTLs,
// session and playback state keeps short ones.
type Category string

const (
	CategoryTrack     Category = "track"
	CategoryAlbum     Category = "album"
	CategoryArtist    Category = "artist"
	CategoryPlaylist  Category = "playlist"
	CategoryUserLists Category = "user-playlists"
	CategoryPlayback  Category = "playback"
	CategoryDevices   Category = "devices"
	CategorySearch    Category = "search"
	CategoryProfile   Category = "profile"
)

// Strategy maps a category to its TTL and key prefix.
type Strategy struct {
	Category Category
	TTL      time.Duration
	Prefix   string
}

// strategies is the static registry. Categories are fixed at compile time.
var strategies = map[Category]Strategy{
	CategoryTrack:     {CategoryTrack, 24 * time.Hour, "track"},
	CategoryAlbum:     {CategoryAlbum, 24 * time.Hour, "album"},
	CategoryArtist:    {CategoryArtist, 12 * time.Hour, "artist"},
	CategoryPlaylist:  {CategoryPlaylist, 10 * time.Minute, "playlist"},
	CategoryUserLists: {CategoryUserLists, 5 * time.Minute, "user"},
	CategoryPlayback:  {CategoryPlayback, 5 * time.Second, "playback"},
	CategoryDevices:   {CategoryDevices, 30 * time.Second, "devices"},
	CategorySearch:    {CategorySearch, time.Hour, "search"},
	CategoryProfile:   {CategoryProfile, time.Hour, "profile"},
}

// StrategyFor returns the strategy for a category. Unknown categories get
// a conservative short TTL under a generic prefix.
func StrategyFor(category Category) Strategy {
	if s, ok := strategies[category]; ok {
		return s
	}
	return Strategy{Category: category, TTL: time.Minute, Prefix: string(category)}
}

// Key builds a deterministic cache key for a category so independent
// callers requesting the same logical resource collide on the same key.
// Format: prefix:part1:part2:…
func Key(category Category, parts ...string) string {
	s := StrategyFor(category)
	if len(parts) == 0 {
		return s.Prefix
	}
	return s.Prefix + ":" + strings.Join(parts, ":")
}

// UserPlaylistsKey is the list-of-playlists key for one user.
func UserPlaylistsKey(userID string) string {
	return Key(CategoryUserLists, userID, "playlists")
}

// Strategies returns all registered strategies, for the stats surface.
func Strategies() []Strategy {
	out := make([]Strategy, 0, len(strategies))
	for _, s := range strategies {
		out = append(out, s)
	}
	return out
}
