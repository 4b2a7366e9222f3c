// internal/debate/pool.go
package debate

import (
	"sync"

	"github.com/google/uuid"
)

// poolKey identifies one of the four independent waiting lists. A ticket in
// one pool is invisible to the others.
type poolKey struct {
	Category Category
	Pace     Pace
}

// EnqueueResult is the outcome of offering a ticket to a pool: either an
// immediate pairing (both tickets consumed) or a queue position.
type EnqueueResult struct {
	Matched  bool
	Opponent *Ticket
	Position int
}

// Pool holds the open matchmaking waiting lists. Matching is
// first-found-opposite-stance in insertion order; there is no rating
// proximity. Two same-stance tickets never match.
type Pool struct {
	mu      sync.Mutex
	waiting map[poolKey][]*Ticket
}

// NewPool returns an empty matchmaking pool set.
func NewPool() *Pool {
	return &Pool{
		waiting: make(map[poolKey][]*Ticket),
	}
}

// Enqueue offers a ticket to the pool for its category and pace. If a
// waiting ticket with the complementary stance exists, the oldest such
// ticket is removed and returned as the opponent; otherwise the ticket is
// appended and its queue position returned. A paired ticket never re-enters
// any pool.
func (p *Pool) Enqueue(t *Ticket) EnqueueResult {
	p.mu.Lock()
	defer p.mu.Unlock()

	key := poolKey{Category: t.Category, Pace: t.Pace}
	queue := p.waiting[key]

	want := t.Stance.Opposite()
	for i, waiter := range queue {
		if waiter.Stance == want {
			p.waiting[key] = append(queue[:i], queue[i+1:]...)
			return EnqueueResult{Matched: true, Opponent: waiter}
		}
	}

	p.waiting[key] = append(queue, t)
	return EnqueueResult{Position: len(p.waiting[key])}
}

// Dequeue removes connID's ticket from the specified pool. Removing an
// absent ticket is a no-op; the return value reports whether anything was
// removed.
func (p *Pool) Dequeue(connID uuid.UUID, category Category, pace Pace) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.removeLocked(poolKey{Category: category, Pace: pace}, connID)
}

// DequeueAll removes connID's tickets from every pool. Used by the
// disconnect sweep.
func (p *Pool) DequeueAll(connID uuid.UUID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for key := range p.waiting {
		p.removeLocked(key, connID)
	}
}

// Waiting reports the number of tickets queued in one pool.
func (p *Pool) Waiting(category Category, pace Pace) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.waiting[poolKey{Category: category, Pace: pace}])
}

func (p *Pool) removeLocked(key poolKey, connID uuid.UUID) bool {
	queue := p.waiting[key]
	for i, waiter := range queue {
		if waiter.ConnID == connID {
			p.waiting[key] = append(queue[:i], queue[i+1:]...)
			return true
		}
	}
	return false
}
