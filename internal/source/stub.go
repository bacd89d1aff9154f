package source

import (
	"context"
	"fmt"
	"math/rand"
	"sync"

	"github.com/mork-fetch/fetchd/internal/token"
	"github.com/mr-tron/base58"
	"github.com/shopspring/decimal"
)

// ---------------------------------------------------------------------------
// Stub adapter — scripted responses for tests and the -stub run mode
// ---------------------------------------------------------------------------

// Stub is an Adapter whose responses are scripted. Each Fetch call consumes
// the next queued response; when the queue is exhausted the last response
// repeats. Safe for concurrent use.
type Stub struct {
	name string

	mu      sync.Mutex
	queue   []stubResponse
	lookups map[string]token.RawToken
	calls   int
}

type stubResponse struct {
	records []token.RawToken
	err     error
}

// NewStub creates an empty stub adapter.
func NewStub(name string) *Stub {
	return &Stub{name: name, lookups: make(map[string]token.RawToken)}
}

func (s *Stub) Name() string { return s.name }

// QueueRecords appends a successful fetch response.
func (s *Stub) QueueRecords(records ...token.RawToken) *Stub {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue = append(s.queue, stubResponse{records: records})
	return s
}

// QueueError appends a failing fetch response.
func (s *Stub) QueueError(kind ErrorKind) *Stub {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue = append(s.queue, stubResponse{err: NewError(s.name, kind, fmt.Errorf("stubbed"))})
	return s
}

// AddLookup registers a record returned by Lookup for its mint.
func (s *Stub) AddLookup(raw token.RawToken) *Stub {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lookups[raw.Mint] = raw
	return s
}

// Calls returns how many Fetch calls the stub has served.
func (s *Stub) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func (s *Stub) Fetch(_ context.Context, limit int) ([]token.RawToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++

	if len(s.queue) == 0 {
		return nil, nil
	}
	resp := s.queue[0]
	if len(s.queue) > 1 {
		s.queue = s.queue[1:]
	}
	if resp.err != nil {
		return nil, resp.err
	}
	records := resp.records
	if len(records) > limit {
		records = records[:limit]
	}
	out := make([]token.RawToken, len(records))
	copy(out, records)
	return out, nil
}

func (s *Stub) Lookup(_ context.Context, mint string) (*token.RawToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if raw, ok := s.lookups[mint]; ok {
		return &raw, nil
	}
	return nil, nil
}

// NewSynthetic returns a stub that fabricates n plausible fresh tokens per
// fetch. Used by the -stub run mode to exercise the full pipeline offline.
func NewSynthetic(name string, n int) Adapter {
	return &synthetic{name: name, n: n, rng: rand.New(rand.NewSource(rand.Int63()))}
}

type synthetic struct {
	name string
	n    int
	mu   sync.Mutex
	rng  *rand.Rand
	seq  int
}

func (g *synthetic) Name() string { return g.name }

func (g *synthetic) Fetch(_ context.Context, limit int) ([]token.RawToken, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	n := g.n
	if n > limit {
		n = limit
	}
	out := make([]token.RawToken, 0, n)
	for i := 0; i < n; i++ {
		g.seq++
		age := g.rng.Intn(120)
		holders := 50 + g.rng.Intn(2000)
		out = append(out, token.RawToken{
			Mint:            syntheticMint(g.name, g.seq),
			Symbol:          fmt.Sprintf("TOK%d", g.seq),
			Name:            fmt.Sprintf("Synthetic Token %d", g.seq),
			AgeMinutes:      &age,
			HolderCount:     &holders,
			MarketCapUSD:    decimal.NullDecimal{Decimal: decimal.NewFromInt(int64(20000 + g.rng.Intn(500000))), Valid: true},
			LiquidityUSD:    decimal.NullDecimal{Decimal: decimal.NewFromInt(int64(5000 + g.rng.Intn(100000))), Valid: true},
			PriceUSD:        decimal.NullDecimal{Decimal: decimal.NewFromFloat(0.0001 + g.rng.Float64()*0.01), Valid: true},
			MintRenounced:   g.rng.Intn(2) == 0,
			FreezeRenounced: g.rng.Intn(2) == 0,
			Source:          g.name,
		})
	}
	return out, nil
}

func (g *synthetic) Lookup(_ context.Context, _ string) (*token.RawToken, error) {
	return nil, nil
}

// syntheticMint builds a deterministic 32-byte base58 mint address.
func syntheticMint(name string, seq int) string {
	h := uint64(seq)*2654435761 + uint64(len(name))
	buf := make([]byte, 32)
	for i := range buf {
		h = h*6364136223846793005 + 1442695040888963407
		buf[i] = byte(h >> 56)
	}
	return base58.Encode(buf)
}
