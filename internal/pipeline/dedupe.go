package pipeline

import (
	"sync"

	"github.com/mork-fetch/fetchd/internal/token"
)

// ---------------------------------------------------------------------------
// Deduplicator — identity merge plus bounded cross-cycle seen memory
// ---------------------------------------------------------------------------

const defaultPriority = 99

// Deduper merges same-identity tokens and remembers recently announced
// mints across cycles. The seen memory is the only cross-cycle state in the
// discovery pipeline; it is capacity-bounded with oldest-first eviction.
type Deduper struct {
	priority map[string]int

	mu       sync.Mutex
	seen     map[token.Mint]struct{}
	order    []token.Mint // FIFO eviction order
	capacity int
}

// NewDeduper creates a deduplicator. priority maps source tag to rank
// (lower = preferred); capacity bounds the cross-cycle seen memory.
func NewDeduper(priority map[string]int, capacity int) *Deduper {
	if capacity <= 0 {
		capacity = 8000
	}
	return &Deduper{
		priority: priority,
		seen:     make(map[token.Mint]struct{}, capacity),
		capacity: capacity,
	}
}

// Dedupe merges tokens by mint. When the same identity arrives from several
// sources the record with the higher-priority source wins; on equal priority
// the lower risk score wins. Pure with respect to the seen memory, so
// deduping its own output is a no-op.
func (d *Deduper) Dedupe(tokens []token.Token) []token.Token {
	best := make(map[token.Mint]token.Token, len(tokens))
	var mints []token.Mint // preserve first-seen order for determinism

	for _, t := range tokens {
		cur, ok := best[t.Mint]
		if !ok {
			best[t.Mint] = t
			mints = append(mints, t.Mint)
			continue
		}
		if d.better(t, cur) {
			best[t.Mint] = t
		}
	}

	out := make([]token.Token, 0, len(best))
	for _, m := range mints {
		out = append(out, best[m])
	}
	return out
}

// better reports whether a should replace b for the same identity.
func (d *Deduper) better(a, b token.Token) bool {
	pa, pb := d.PriorityOf(a.Source), d.PriorityOf(b.Source)
	if pa != pb {
		return pa < pb
	}
	if a.RiskScore != nil && b.RiskScore != nil {
		return *a.RiskScore < *b.RiskScore
	}
	// A scored record beats an unscored one.
	return a.RiskScore != nil && b.RiskScore == nil
}

// PriorityOf returns the configured rank for a source tag.
func (d *Deduper) PriorityOf(source string) int {
	if p, ok := d.priority[source]; ok {
		return p
	}
	return defaultPriority
}

// FilterNew drops tokens whose identity was already announced in a recent
// cycle. It does not record anything; call Remember on the final output.
func (d *Deduper) FilterNew(tokens []token.Token) []token.Token {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := make([]token.Token, 0, len(tokens))
	for _, t := range tokens {
		if _, ok := d.seen[t.Mint]; ok {
			continue
		}
		out = append(out, t)
	}
	return out
}

// Remember records announced identities, evicting oldest entries beyond
// capacity.
func (d *Deduper) Remember(tokens []token.Token) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, t := range tokens {
		if _, ok := d.seen[t.Mint]; ok {
			continue
		}
		for len(d.seen) >= d.capacity {
			oldest := d.order[0]
			d.order = d.order[1:]
			delete(d.seen, oldest)
		}
		d.seen[t.Mint] = struct{}{}
		d.order = append(d.order, t.Mint)
	}
}

// SeenCount returns the current size of the seen memory.
func (d *Deduper) SeenCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.seen)
}
