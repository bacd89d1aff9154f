package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mork-fetch/fetchd/internal/token"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// ---------------------------------------------------------------------------
// WebSocket price stream — push-based oracle with HTTP fallback
// Subscribes to per-mint trade feeds and keeps the latest observed price
// ---------------------------------------------------------------------------

// StreamConfig configures the WebSocket price stream.
type StreamConfig struct {
	Endpoint         string `yaml:"endpoint"`
	ReconnectDelayMs int    `yaml:"reconnect_delay_ms"`
	PingIntervalS    int    `yaml:"ping_interval_s"`
	// MaxAgeS is how long a streamed price stays usable before the stream
	// defers to the fallback oracle for that mint.
	MaxAgeS int `yaml:"max_age_s"`
}

// DefaultStreamConfig returns defaults for the public trade feed.
func DefaultStreamConfig() StreamConfig {
	return StreamConfig{
		Endpoint:         "wss://pumpportal.fun/api/data",
		ReconnectDelayMs: 1000,
		PingIntervalS:    30,
		MaxAgeS:          30,
	}
}

type streamPrice struct {
	price decimal.Decimal
	seen  time.Time
}

// Stream is an Oracle that serves prices from a live WebSocket feed and
// falls back to a slower oracle when the feed has nothing fresh for a mint.
type Stream struct {
	config   StreamConfig
	fallback Oracle

	mu     sync.RWMutex
	conn   *websocket.Conn
	prices map[token.Mint]streamPrice
	tracks map[token.Mint]int // subscription refcount per mint

	// Stats.
	messagesRecv atomic.Int64
	priceUpdates atomic.Int64
	reconnects   atomic.Int64
	connected    atomic.Bool
}

// NewStream creates a price stream backed by fallback for cold mints.
func NewStream(config StreamConfig, fallback Oracle) *Stream {
	if config.Endpoint == "" {
		config.Endpoint = DefaultStreamConfig().Endpoint
	}
	if config.ReconnectDelayMs <= 0 {
		config.ReconnectDelayMs = 1000
	}
	if config.MaxAgeS <= 0 {
		config.MaxAgeS = 30
	}
	return &Stream{
		config:   config,
		fallback: fallback,
		prices:   make(map[token.Mint]streamPrice),
		tracks:   make(map[token.Mint]int),
	}
}

// Price implements Oracle. A fresh streamed price wins; otherwise the
// fallback oracle is consulted.
func (s *Stream) Price(ctx context.Context, mint token.Mint) (decimal.Decimal, error) {
	maxAge := time.Duration(s.config.MaxAgeS) * time.Second

	s.mu.RLock()
	p, ok := s.prices[mint]
	s.mu.RUnlock()
	if ok && time.Since(p.seen) < maxAge {
		return p.price, nil
	}

	if s.fallback == nil {
		return decimal.Zero, ErrUnavailable
	}
	return s.fallback.Price(ctx, mint)
}

// Track subscribes the stream to a mint's trade feed. Safe to call before
// Start; pending subscriptions are sent on connect.
func (s *Stream) Track(mint token.Mint) {
	s.mu.Lock()
	s.tracks[mint]++
	first := s.tracks[mint] == 1
	conn := s.conn
	s.mu.Unlock()

	if first && conn != nil {
		s.sendSubscribe([]token.Mint{mint})
	}
}

// Untrack releases one subscription on a mint and drops its cached price
// once no holder remains.
func (s *Stream) Untrack(mint token.Mint) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tracks[mint] <= 1 {
		delete(s.tracks, mint)
		delete(s.prices, mint)
		return
	}
	s.tracks[mint]--
}

// Start runs the connect/subscribe/read loop until ctx is cancelled.
func (s *Stream) Start(ctx context.Context) {
	reconnectDelay := time.Duration(s.config.ReconnectDelayMs) * time.Millisecond
	maxDelay := 30 * time.Second

	for {
		select {
		case <-ctx.Done():
			s.disconnect()
			return
		default:
		}

		if err := s.connect(ctx); err != nil {
			log.Warn().Err(err).Msg("oracle stream: connection failed")
			s.reconnects.Add(1)
			select {
			case <-time.After(reconnectDelay):
				reconnectDelay *= 2
				if reconnectDelay > maxDelay {
					reconnectDelay = maxDelay
				}
			case <-ctx.Done():
				return
			}
			continue
		}
		reconnectDelay = time.Duration(s.config.ReconnectDelayMs) * time.Millisecond

		// Re-subscribe everything tracked before the (re)connect.
		s.mu.RLock()
		mints := make([]token.Mint, 0, len(s.tracks))
		for m := range s.tracks {
			mints = append(mints, m)
		}
		s.mu.RUnlock()
		if len(mints) > 0 {
			s.sendSubscribe(mints)
		}

		s.readLoop(ctx)
	}
}

func (s *Stream) connect(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, s.config.Endpoint, http.Header{})
	if err != nil {
		return fmt.Errorf("oracle stream: dial: %w", err)
	}

	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()
	s.connected.Store(true)

	log.Info().Str("endpoint", s.config.Endpoint).Msg("oracle stream: connected")
	return nil
}

func (s *Stream) disconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
	s.connected.Store(false)
}

func (s *Stream) sendSubscribe(mints []token.Mint) {
	keys := make([]string, len(mints))
	for i, m := range mints {
		keys[i] = string(m)
	}
	req := map[string]any{
		"method": "subscribeTokenTrade",
		"keys":   keys,
	}

	s.mu.Lock()
	conn := s.conn
	var err error
	if conn != nil {
		err = conn.WriteJSON(req)
	}
	s.mu.Unlock()

	if err != nil {
		log.Warn().Err(err).Int("mints", len(mints)).Msg("oracle stream: subscribe failed")
		return
	}
	log.Debug().Int("mints", len(mints)).Msg("oracle stream: subscribed")
}

func (s *Stream) readLoop(ctx context.Context) {
	pingInterval := time.Duration(s.config.PingIntervalS) * time.Second
	if pingInterval == 0 {
		pingInterval = 30 * time.Second
	}
	pingTicker := time.NewTicker(pingInterval)
	defer pingTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-pingTicker.C:
			s.mu.RLock()
			conn := s.conn
			s.mu.RUnlock()
			if conn != nil {
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					log.Debug().Err(err).Msg("oracle stream: ping failed")
					return
				}
			}
		default:
		}

		s.mu.RLock()
		conn := s.conn
		s.mu.RUnlock()
		if conn == nil {
			return
		}

		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				log.Info().Msg("oracle stream: connection closed normally")
			} else {
				log.Warn().Err(err).Msg("oracle stream: read error, reconnecting")
			}
			s.connected.Store(false)
			return
		}

		s.messagesRecv.Add(1)
		s.handleMessage(message)
	}
}

func (s *Stream) handleMessage(data []byte) {
	var msg struct {
		Mint     string  `json:"mint"`
		PriceUSD float64 `json:"price_usd"`
		// Bonding-curve feeds report reserves instead of a spot price.
		VSolInCurve    float64 `json:"vSolInBondingCurve"`
		VTokensInCurve float64 `json:"vTokensInBondingCurve"`
		SolPriceUSD    float64 `json:"solPriceUsd"`
	}
	if err := json.Unmarshal(data, &msg); err != nil || msg.Mint == "" {
		return
	}

	price := msg.PriceUSD
	if price <= 0 && msg.VTokensInCurve > 0 && msg.SolPriceUSD > 0 {
		price = msg.VSolInCurve / msg.VTokensInCurve * msg.SolPriceUSD
	}
	if price <= 0 {
		return
	}

	mint := token.Mint(msg.Mint)
	s.mu.Lock()
	_, tracked := s.tracks[mint]
	if tracked {
		s.prices[mint] = streamPrice{price: decimal.NewFromFloat(price), seen: time.Now()}
	}
	s.mu.Unlock()

	if tracked {
		s.priceUpdates.Add(1)
	}
}

// StreamStats is a JSON snapshot of stream health.
type StreamStats struct {
	Connected    bool  `json:"connected"`
	MessagesRecv int64 `json:"messages_recv"`
	PriceUpdates int64 `json:"price_updates"`
	Reconnects   int64 `json:"reconnects"`
	Tracked      int   `json:"tracked"`
}

func (s *Stream) Stats() StreamStats {
	s.mu.RLock()
	tracked := len(s.tracks)
	s.mu.RUnlock()
	return StreamStats{
		Connected:    s.connected.Load(),
		MessagesRecv: s.messagesRecv.Load(),
		PriceUpdates: s.priceUpdates.Load(),
		Reconnects:   s.reconnects.Load(),
		Tracked:      tracked,
	}
}
