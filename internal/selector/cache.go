package selector

import (
	"strings"
	"sync"

	"github.com/keshon/botfleet/internal/platform"
	"github.com/keshon/botfleet/internal/ranking"
)

// ReactionCache holds reaction rankings keyed by normalized message text
// for the life of the process. Entries are never evicted.
type ReactionCache struct {
	mu      sync.RWMutex
	entries map[string][]ranking.Score
}

func NewReactionCache() *ReactionCache {
	return &ReactionCache{entries: make(map[string][]ranking.Score)}
}

// CacheKey normalizes message text: mentions stripped, whitespace trimmed.
func CacheKey(text string) string {
	return strings.TrimSpace(platform.StripMentions(text))
}

func (c *ReactionCache) Get(key string) ([]ranking.Score, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.entries[key]
	return s, ok
}

func (c *ReactionCache) Put(key string, scores []ranking.Score) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = scores
}

func (c *ReactionCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
