package live

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alejandrodnm/tradebot/internal/domain"
	"github.com/alejandrodnm/tradebot/internal/ports"
)

// tickFrame is the wire format of a feed tick.
type tickFrame struct {
	Symbol    string  `json:"symbol"`
	LTP       float64 `json:"ltp"`
	Volume    int64   `json:"volume"`
	Bid       float64 `json:"bid"`
	Ask       float64 `json:"ask"`
	OI        int64   `json:"oi"`
	Timestamp int64   `json:"timestamp"` // unix millis
}

type subscribeFrame struct {
	Action  string   `json:"action"`
	Symbols []string `json:"symbols"`
}

type priceEntry struct {
	price float64
	seen  time.Time
}

// feed owns the websocket session: dial, read loop, bounded reconnect,
// price cache and staleness heartbeat. All ticks reach the handler from a
// single delivery goroutine, in arrival order.
type feed struct {
	cfg Config
	log *slog.Logger

	mu        sync.RWMutex
	conn      *websocket.Conn
	connected bool
	terminal  bool // reconnect budget exhausted, session is dead
	symbols   []string
	handler   ports.TickHandler
	prices    map[string]priceEntry

	done      chan struct{}
	closeOnce sync.Once
}

func newFeed(cfg Config, log *slog.Logger) *feed {
	return &feed{
		cfg:    cfg,
		log:    log,
		prices: make(map[string]priceEntry),
	}
}

// connect dials the feed and starts the read and heartbeat goroutines.
// Idempotent while the session is alive.
func (f *feed) connect(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.connected {
		return nil
	}
	if f.terminal {
		return fmt.Errorf("live.connect: %w: reconnect budget exhausted", domain.ErrNotConnected)
	}

	conn, err := f.dial(ctx)
	if err != nil {
		return fmt.Errorf("live.connect: %w", err)
	}

	f.conn = conn
	f.connected = true
	f.done = make(chan struct{})
	f.closeOnce = sync.Once{}

	go f.readLoop(conn)
	go f.heartbeat()

	f.log.Info("feed connected", "url", f.cfg.FeedURL)
	return nil
}

func (f *feed) dial(ctx context.Context) (*websocket.Conn, error) {
	header := http.Header{}
	header.Set("X-Api-Token", f.cfg.APIToken)
	header.Set("X-Api-Secret", f.cfg.APISecret)

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, f.cfg.FeedURL, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: status %d: %w", f.cfg.FeedURL, resp.StatusCode, err)
		}
		return nil, fmt.Errorf("dial %s: %w", f.cfg.FeedURL, err)
	}
	return conn, nil
}

// subscribe sends the subscribe frame and registers the handler.
func (f *feed) subscribe(ctx context.Context, symbols []string, handler ports.TickHandler) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.connected {
		return domain.ErrNotConnected
	}
	f.symbols = symbols
	f.handler = handler

	frame := subscribeFrame{Action: "subscribe", Symbols: symbols}
	if err := f.conn.WriteJSON(frame); err != nil {
		return fmt.Errorf("live.subscribe: %w", err)
	}
	f.log.Info("subscribed", "symbols", symbols)
	return nil
}

// readLoop consumes frames until the connection drops, then tries to
// reconnect within the configured budget.
func (f *feed) readLoop(conn *websocket.Conn) {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-f.done:
				return // cierre ordenado
			default:
			}
			f.log.Warn("feed read error", "error", err)
			if next := f.reconnect(); next != nil {
				conn = next
				continue
			}
			return
		}
		f.handleFrame(raw)
	}
}

// handleFrame parses and validates one tick. Bad frames and suspicious
// prices are dropped with a warning, never propagated.
func (f *feed) handleFrame(raw []byte) {
	var frame tickFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		f.log.Warn("malformed tick frame", "error", err)
		return
	}
	if frame.Symbol == "" {
		return
	}

	tick := domain.Tick{
		Symbol:    frame.Symbol,
		Timestamp: time.UnixMilli(frame.Timestamp),
		LTP:       frame.LTP,
		Volume:    frame.Volume,
		Bid:       frame.Bid,
		Ask:       frame.Ask,
		OI:        frame.OI,
	}

	f.mu.Lock()
	prev := f.prices[frame.Symbol].price
	if !domain.ValidTick(tick, prev, f.cfg.Bounds) {
		f.mu.Unlock()
		f.log.Warn("tick dropped by sanity check",
			"symbol", frame.Symbol, "ltp", frame.LTP, "prev", prev)
		return
	}
	f.prices[frame.Symbol] = priceEntry{price: frame.LTP, seen: time.Now()}
	handler := f.handler
	f.mu.Unlock()

	if handler != nil {
		handler(tick)
	}
}

// reconnect retries the dial with a fixed delay up to MaxReconnects times.
// Exhaustion leaves the feed in a terminal disconnected state.
func (f *feed) reconnect() *websocket.Conn {
	for attempt := 1; attempt <= f.cfg.MaxReconnects; attempt++ {
		select {
		case <-f.done:
			return nil
		case <-time.After(f.cfg.ReconnectDelay):
		}

		f.log.Info("reconnecting feed", "attempt", attempt, "max", f.cfg.MaxReconnects)
		conn, err := f.dial(context.Background())
		if err != nil {
			f.log.Warn("reconnect failed", "attempt", attempt, "error", err)
			continue
		}

		f.mu.Lock()
		f.conn = conn
		symbols := f.symbols
		f.mu.Unlock()

		if len(symbols) > 0 {
			frame := subscribeFrame{Action: "subscribe", Symbols: symbols}
			if err := conn.WriteJSON(frame); err != nil {
				f.log.Warn("resubscribe failed", "error", err)
				conn.Close()
				continue
			}
		}
		f.log.Info("feed reconnected", "attempt", attempt)
		return conn
	}

	f.mu.Lock()
	f.connected = false
	f.terminal = true
	f.closeOnce.Do(func() { close(f.done) })
	f.mu.Unlock()
	f.log.Error("feed reconnect budget exhausted, session terminated",
		"attempts", f.cfg.MaxReconnects)
	return nil
}

// heartbeat warns when a subscribed symbol stops ticking.
func (f *feed) heartbeat() {
	if f.cfg.Heartbeat <= 0 {
		return
	}
	ticker := time.NewTicker(f.cfg.Heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-f.done:
			return
		case <-ticker.C:
		}

		f.mu.RLock()
		now := time.Now()
		for _, symbol := range f.symbols {
			entry, ok := f.prices[symbol]
			if !ok {
				f.log.Warn("no ticks received yet", "symbol", symbol)
				continue
			}
			if age := now.Sub(entry.seen); age > f.cfg.Freshness {
				f.log.Warn("stale symbol", "symbol", symbol, "last_tick_age", age)
			}
		}
		f.mu.RUnlock()
	}
}

// price returns the cached price for a symbol.
func (f *feed) price(symbol string) (float64, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	entry, ok := f.prices[symbol]
	if !ok {
		return 0, false
	}
	return entry.price, true
}

func (f *feed) isConnected() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.connected
}

// close shuts the session down. Safe to call repeatedly, including after the
// reconnect budget has already torn the session down.
func (f *feed) close() {
	f.mu.Lock()
	defer f.mu.Unlock()

	// Parar siempre las goroutines de la sesión, aunque ya esté desconectada
	if f.done != nil {
		f.closeOnce.Do(func() { close(f.done) })
	}

	if !f.connected {
		return
	}
	f.connected = false
	if f.conn != nil {
		f.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		f.conn.Close()
	}
	f.log.Info("feed disconnected")
}
