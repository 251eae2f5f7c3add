// Package live implements the venue-backed broker: a websocket tick feed
// plus a rate-limited HTTP order API. Orders placed here come back PENDING;
// fills are reconciled by polling OrderStatus.
package live

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/alejandrodnm/tradebot/internal/domain"
	"github.com/alejandrodnm/tradebot/internal/ports"
)

const (
	// Order endpoints are the scarce resource; queries are cheaper.
	ordersRatePerSec = 5
	queryRatePerSec  = 20

	httpTimeout = 10 * time.Second
)

// Config agrupa todo lo que el adapter necesita del venue.
type Config struct {
	APIBase        string
	FeedURL        string
	APIToken       string
	APISecret      string
	ReconnectDelay time.Duration
	MaxReconnects  int
	Heartbeat      time.Duration
	Freshness      time.Duration
	Bounds         domain.SanityBounds
}

// LiveBroker implements ports.Broker against the real venue.
type LiveBroker struct {
	cfg  Config
	log  *slog.Logger
	http *http.Client

	ordersLimiter *rate.Limiter
	queryLimiter  *rate.Limiter

	feed *feed
}

// New creates a live broker. It does not touch the network until Connect.
func New(cfg Config, log *slog.Logger) *LiveBroker {
	return &LiveBroker{
		cfg:           cfg,
		log:           log,
		http:          &http.Client{Timeout: httpTimeout},
		ordersLimiter: rate.NewLimiter(ordersRatePerSec, 5),
		queryLimiter:  rate.NewLimiter(queryRatePerSec, 10),
		feed:          newFeed(cfg, log),
	}
}

// Connect dials the websocket feed. Idempotent.
func (b *LiveBroker) Connect(ctx context.Context) error {
	return b.feed.connect(ctx)
}

// Disconnect closes the feed. Safe to call more than once.
func (b *LiveBroker) Disconnect() { b.feed.close() }

// IsConnected reports whether the feed session is alive.
func (b *LiveBroker) IsConnected() bool { return b.feed.isConnected() }

// SubscribeTicks registers the handler and sends the subscribe frame.
func (b *LiveBroker) SubscribeTicks(ctx context.Context, symbols []string, handler ports.TickHandler) error {
	return b.feed.subscribe(ctx, symbols, handler)
}

// LivePrice returns the last cached price. Never blocks on network.
func (b *LiveBroker) LivePrice(symbol string) (float64, bool) {
	return b.feed.price(symbol)
}

type orderRequest struct {
	Symbol     string  `json:"symbol"`
	Side       string  `json:"side"`
	Quantity   int64   `json:"quantity"`
	OrderType  string  `json:"order_type"`
	LimitPrice float64 `json:"limit_price,omitempty"`
}

type orderResponse struct {
	OrderID     string  `json:"order_id"`
	Symbol      string  `json:"symbol"`
	Side        string  `json:"side"`
	Quantity    int64   `json:"quantity"`
	OrderType   string  `json:"order_type"`
	LimitPrice  float64 `json:"limit_price"`
	Status      string  `json:"status"`
	FilledPrice float64 `json:"filled_price"`
	FilledQty   int64   `json:"filled_qty"`
	CreatedAt   int64   `json:"created_at"` // unix millis
}

func (r orderResponse) toDomain() domain.Order {
	return domain.Order{
		ID:             r.OrderID,
		Symbol:         r.Symbol,
		Side:           domain.Side(r.Side),
		Quantity:       r.Quantity,
		Type:           domain.OrderType(r.OrderType),
		LimitPrice:     r.LimitPrice,
		Status:         domain.OrderStatus(r.Status),
		FilledPrice:    r.FilledPrice,
		FilledQuantity: r.FilledQty,
		CreatedAt:      time.UnixMilli(r.CreatedAt),
	}
}

// PlaceOrder submits an order to the venue. The response is PENDING; callers
// poll OrderStatus for the fill.
func (b *LiveBroker) PlaceOrder(ctx context.Context, symbol string, side domain.Side, quantity int64, orderType domain.OrderType, limitPrice float64) (domain.Order, error) {
	if !b.feed.isConnected() {
		return domain.Order{}, domain.NewExecutionError("place_order", symbol, domain.ErrNotConnected)
	}

	req := orderRequest{
		Symbol:     symbol,
		Side:       string(side),
		Quantity:   quantity,
		OrderType:  string(orderType),
		LimitPrice: limitPrice,
	}
	var resp orderResponse
	if err := b.post(ctx, b.ordersLimiter, "/orders", req, &resp); err != nil {
		return domain.Order{}, domain.NewExecutionError("place_order", symbol, err)
	}

	b.log.Info("order submitted", "order_id", resp.OrderID, "symbol", symbol,
		"side", side, "quantity", quantity, "type", orderType)
	return resp.toDomain(), nil
}

// CancelOrder cancels a pending order. The venue answers 409 when the order
// is already terminal; that maps to (false, nil).
func (b *LiveBroker) CancelOrder(ctx context.Context, orderID string) (bool, error) {
	status, err := b.do(ctx, b.ordersLimiter, http.MethodDelete, "/orders/"+orderID, nil, nil)
	if err != nil {
		return false, domain.NewExecutionError("cancel_order", orderID, err)
	}
	if status == http.StatusConflict {
		return false, nil
	}
	return true, nil
}

// OrderStatus fetches the current state of an order.
func (b *LiveBroker) OrderStatus(ctx context.Context, orderID string) (domain.Order, error) {
	var resp orderResponse
	if err := b.get(ctx, b.queryLimiter, "/orders/"+orderID, &resp); err != nil {
		return domain.Order{}, fmt.Errorf("live.OrderStatus: %s: %w", orderID, err)
	}
	return resp.toDomain(), nil
}

type positionResponse struct {
	Symbol    string  `json:"symbol"`
	Quantity  int64   `json:"quantity"`
	AvgPrice  float64 `json:"avg_price"`
	EntryTime int64   `json:"entry_time"`
}

// Positions returns the venue's view of open positions.
func (b *LiveBroker) Positions(ctx context.Context) ([]domain.Position, error) {
	var resp []positionResponse
	if err := b.get(ctx, b.queryLimiter, "/positions", &resp); err != nil {
		return nil, fmt.Errorf("live.Positions: %w", err)
	}
	out := make([]domain.Position, 0, len(resp))
	for _, p := range resp {
		out = append(out, domain.Position{
			Symbol:    p.Symbol,
			Quantity:  p.Quantity,
			AvgPrice:  p.AvgPrice,
			EntryTime: time.UnixMilli(p.EntryTime),
		})
	}
	return out, nil
}

// Balance returns the venue account balance.
func (b *LiveBroker) Balance(ctx context.Context) (domain.BalanceSnapshot, error) {
	var resp struct {
		Available float64 `json:"available"`
		Used      float64 `json:"used"`
		Total     float64 `json:"total"`
	}
	if err := b.get(ctx, b.queryLimiter, "/balance", &resp); err != nil {
		return domain.BalanceSnapshot{}, fmt.Errorf("live.Balance: %w", err)
	}
	return domain.BalanceSnapshot{Available: resp.Available, Used: resp.Used, Total: resp.Total}, nil
}

// PnL returns the venue's profit figures for the session.
func (b *LiveBroker) PnL(ctx context.Context) (domain.PnLSnapshot, error) {
	var resp struct {
		Realized   float64 `json:"realized"`
		Unrealized float64 `json:"unrealized"`
	}
	if err := b.get(ctx, b.queryLimiter, "/pnl", &resp); err != nil {
		return domain.PnLSnapshot{}, fmt.Errorf("live.PnL: %w", err)
	}
	return domain.PnLSnapshot{
		Realized:   resp.Realized,
		Unrealized: resp.Unrealized,
		Total:      resp.Realized + resp.Unrealized,
	}, nil
}

func (b *LiveBroker) get(ctx context.Context, limiter *rate.Limiter, path string, out any) error {
	_, err := b.do(ctx, limiter, http.MethodGet, path, nil, out)
	return err
}

func (b *LiveBroker) post(ctx context.Context, limiter *rate.Limiter, path string, body, out any) error {
	_, err := b.do(ctx, limiter, http.MethodPost, path, body, out)
	return err
}

// do performs one rate-limited authenticated request against the venue API.
func (b *LiveBroker) do(ctx context.Context, limiter *rate.Limiter, method, path string, body, out any) (int, error) {
	if err := limiter.Wait(ctx); err != nil {
		return 0, fmt.Errorf("rate limiter: %w", err)
	}

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("marshal body: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, b.cfg.APIBase+path, reader)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Api-Token", b.cfg.APIToken)
	req.Header.Set("X-Api-Secret", b.cfg.APISecret)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := b.http.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusConflict {
		io.Copy(io.Discard, resp.Body)
		return resp.StatusCode, nil
	}
	if resp.StatusCode >= 400 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return resp.StatusCode, fmt.Errorf("venue API %s %s: status %d: %s", method, path, resp.StatusCode, raw)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("decode response: %w", err)
		}
	}
	return resp.StatusCode, nil
}

var _ ports.Broker = (*LiveBroker)(nil)
