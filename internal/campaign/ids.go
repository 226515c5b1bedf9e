package campaign

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// IDGenerator hands out entity ids. Ids stay unix-millisecond integers for
// compatibility with existing saved documents, but the generator is strictly
// monotonic: two calls in the same millisecond never collide, unlike the
// timestamp+jitter scheme this replaces.
type IDGenerator struct {
	mu   sync.Mutex
	last int64
	now  func() time.Time
}

func NewIDGenerator() *IDGenerator {
	return &IDGenerator{now: time.Now}
}

func (g *IDGenerator) Next() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	now := g.now
	if now == nil {
		now = time.Now
	}
	id := now().UnixMilli()
	if id <= g.last {
		id = g.last + 1
	}
	g.last = id
	return id
}

var defaultIDs = NewIDGenerator()

// NewEntityID returns the next id from the process-wide generator.
func NewEntityID() int64 {
	return defaultIDs.Next()
}

// NewCombatantID returns a fresh combatant id. Combatants never outlive an
// encounter, so these are plain UUIDs with no ordering significance.
func NewCombatantID() string {
	return uuid.NewString()
}
