package oracle

import (
	"context"
	"sync"

	"github.com/mork-fetch/fetchd/internal/token"
	"github.com/shopspring/decimal"
)

// ---------------------------------------------------------------------------
// Scripted oracle for tests and -stub mode
// ---------------------------------------------------------------------------

type step struct {
	price decimal.Decimal
	err   error
}

// Stub is a scripted Oracle. Each Price call pops the next queued step for
// the mint; the last step repeats once the script is exhausted. A mint with
// no script returns ErrUnavailable.
type Stub struct {
	mu      sync.Mutex
	scripts map[token.Mint][]step
	calls   map[token.Mint]int
}

func NewStub() *Stub {
	return &Stub{
		scripts: make(map[token.Mint][]step),
		calls:   make(map[token.Mint]int),
	}
}

// QueuePrice appends a successful price step for mint.
func (s *Stub) QueuePrice(mint token.Mint, price decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scripts[mint] = append(s.scripts[mint], step{price: price})
}

// QueuePrices appends a sequence of float prices for mint.
func (s *Stub) QueuePrices(mint token.Mint, prices ...float64) {
	for _, p := range prices {
		s.QueuePrice(mint, decimal.NewFromFloat(p))
	}
}

// QueueError appends a failing step for mint.
func (s *Stub) QueueError(mint token.Mint, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scripts[mint] = append(s.scripts[mint], step{err: err})
}

// Calls returns how many times Price was asked about mint.
func (s *Stub) Calls(mint token.Mint) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[mint]
}

// Price implements Oracle.
func (s *Stub) Price(_ context.Context, mint token.Mint) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls[mint]++
	script := s.scripts[mint]
	if len(script) == 0 {
		return decimal.Zero, ErrUnavailable
	}

	next := script[0]
	if len(script) > 1 {
		s.scripts[mint] = script[1:]
	}
	if next.err != nil {
		return decimal.Zero, next.err
	}
	return next.price, nil
}
