package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// historyLimit bounds the invalidation history ring.
const historyLimit = 100

// Invalidation records one invalidation event.
type Invalidation struct {
	Time         time.Time `json:"time"`
	ResourceType string    `json:"resource_type"`
	ResourceID   string    `json:"resource_id"`
	Operation    string    `json:"operation"`
	Patterns     []string  `json:"patterns"`
	Removed      int       `json:"removed"`
}

// Invalidator clears cache patterns in response to mutation events. Each
// resource type has a handler that knows which derived keys a mutation
// dirties; a playlist change, for example, dirties the playlist's own key,
// the owner's playlist list, and any cached search results that may embed
// it.
type Invalidator struct {
	manager *Manager
	logger  zerolog.Logger

	mu      sync.Mutex
	history []Invalidation
}

// NewInvalidator creates an invalidator backed by the given manager.
func NewInvalidator(manager *Manager, logger zerolog.Logger) *Invalidator {
	return &Invalidator{
		manager: manager,
		logger:  logger,
	}
}

// patternsFor routes a mutation to the glob patterns it dirties.
// resourceID may be empty for broad resource types.
//
// Per-resource patterns are the exact key plus a ":*" glob for derived
// keys. The colon before the wildcard keeps an ID from matching siblings
// that merely share a prefix; invalidating playlist "P" must leave
// playlist "P2" alone.
func patternsFor(resourceType, resourceID string) []string {
	switch resourceType {
	case "track":
		return scopedPatterns(CategoryTrack, resourceID)
	case "album":
		return append(scopedPatterns(CategoryAlbum, resourceID),
			Key(CategorySearch)+":*")
	case "artist":
		return append(scopedPatterns(CategoryArtist, resourceID),
			Key(CategorySearch)+":*")
	case "playlist":
		return append(scopedPatterns(CategoryPlaylist, resourceID),
			Key(CategoryUserLists)+":*:playlists",
			Key(CategorySearch)+":*")
	case "player":
		return []string{
			Key(CategoryPlayback) + ":*",
			Key(CategoryDevices) + ":*",
		}
	case "library":
		return scopedPatterns(CategoryUserLists, resourceID)
	case "profile":
		return scopedPatterns(CategoryProfile, resourceID)
	default:
		// Unknown resource types clear nothing rather than everything.
		return nil
	}
}

// scopedPatterns covers one resource: its exact key and any derived keys
// nested under it.
func scopedPatterns(category Category, resourceID string) []string {
	base := Key(category, resourceID)
	return []string{base, base + ":*"}
}

// Invalidate clears the patterns dirtied by a mutation and records the
// event. Unknown resource types are a no-op apart from a log line.
func (i *Invalidator) Invalidate(ctx context.Context, resourceType, resourceID, operation string) error {
	patterns := patternsFor(resourceType, resourceID)
	if len(patterns) == 0 {
		i.logger.Debug().Str("resource_type", resourceType).
			Msg("No invalidation patterns for resource type")
		return nil
	}

	removed := 0
	for _, pattern := range patterns {
		n, err := i.manager.Clear(ctx, pattern)
		if err != nil {
			return fmt.Errorf("invalidate %s %s: clear %q: %w", resourceType, resourceID, pattern, err)
		}
		removed += n
	}

	guardCacheInvalidationsTotal.WithLabelValues(resourceType).Inc()
	i.record(Invalidation{
		Time:         time.Now(),
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Operation:    operation,
		Patterns:     patterns,
		Removed:      removed,
	})

	i.logger.Debug().
		Str("resource_type", resourceType).
		Str("resource_id", resourceID).
		Str("operation", operation).
		Int("removed", removed).
		Msg("Cache invalidated")

	return nil
}

func (i *Invalidator) record(inv Invalidation) {
	i.mu.Lock()
	defer i.mu.Unlock()

	i.history = append(i.history, inv)
	if len(i.history) > historyLimit {
		i.history = i.history[len(i.history)-historyLimit:]
	}
}

// History returns a copy of the recorded invalidations, oldest first.
func (i *Invalidator) History() []Invalidation {
	i.mu.Lock()
	defer i.mu.Unlock()

	out := make([]Invalidation, len(i.history))
	copy(out, i.history)
	return out
}
