package gateway

import (
	"fmt"
	"sync"
	"time"
)

const maxSeq = 999999

// IDGenerator issues message IDs made of a clock tick and a sequence number
// within that tick. IDs compare in issue order as plain strings. The tick
// never moves backwards, even if the wall clock does.
type IDGenerator struct {
	mu       sync.Mutex
	lastTick int64
	seq      int
}

// Next returns the ID for a message created at t.
func (g *IDGenerator) Next(t time.Time) string {
	g.mu.Lock()
	defer g.mu.Unlock()

	tick := t.UnixNano()
	if tick <= g.lastTick {
		tick = g.lastTick
		g.seq++
		if g.seq > maxSeq {
			tick++
			g.seq = 0
		}
	} else {
		g.seq = 0
	}
	g.lastTick = tick
	return fmt.Sprintf("%019d%06d", tick, g.seq)
}
