package storage

// sqlite.go — persistencia de ticks, órdenes, trades y eventos.
//
// Estrategia:
//   - `ticks`: alta frecuencia, se puede desactivar con record_ticks.
//   - `orders`: una fila por orden, estado final incluido.
//   - `trades`: round-trips; exit_time NULL = trade abierto.
//   - `events`: log de eventos de sistema (BOT_START, CIRCUIT_BREAKER...).
//   - Prune automático al arrancar: ticks > 7d.
// El risk gate depende de DailyRealizedPnL: es la única query cuyo fallo
// bloquea el trading.

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/alejandrodnm/tradebot/internal/domain"
	_ "modernc.org/sqlite"
)

const schema = `
-- Ticks crudos del feed
CREATE TABLE IF NOT EXISTS ticks (
    id        INTEGER PRIMARY KEY AUTOINCREMENT,
    timestamp DATETIME NOT NULL,
    symbol    TEXT     NOT NULL,
    ltp       REAL     NOT NULL,
    volume    INTEGER,
    bid       REAL,
    ask       REAL,
    oi        INTEGER
);
CREATE INDEX IF NOT EXISTS idx_ticks_symbol_time ON ticks(symbol, timestamp);

-- Órdenes enviadas al broker
CREATE TABLE IF NOT EXISTS orders (
    order_id     TEXT PRIMARY KEY,
    symbol       TEXT    NOT NULL,
    side         TEXT    NOT NULL,
    quantity     INTEGER NOT NULL,
    order_type   TEXT    NOT NULL,
    limit_price  REAL,
    status       TEXT    NOT NULL,
    filled_price REAL,
    filled_qty   INTEGER NOT NULL DEFAULT 0,
    created_at   DATETIME NOT NULL,
    strategy     TEXT
);

-- Round-trips: exit_time NULL significa trade abierto
CREATE TABLE IF NOT EXISTS trades (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    order_id    TEXT    NOT NULL,
    symbol      TEXT    NOT NULL,
    side        TEXT    NOT NULL,
    quantity    INTEGER NOT NULL,
    entry_price REAL    NOT NULL,
    exit_price  REAL,
    pnl         REAL,
    pnl_pct     REAL,
    entry_time  DATETIME NOT NULL,
    exit_time   DATETIME,
    FOREIGN KEY (order_id) REFERENCES orders(order_id)
);
CREATE INDEX IF NOT EXISTS idx_trades_symbol ON trades(symbol, exit_time);
CREATE INDEX IF NOT EXISTS idx_trades_exit   ON trades(exit_time);

-- Eventos de sistema
CREATE TABLE IF NOT EXISTS events (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    timestamp  DATETIME NOT NULL,
    event_type TEXT     NOT NULL,
    message    TEXT,
    severity   TEXT NOT NULL DEFAULT 'INFO'
);
`

const retentionTicks = 7 * 24 * time.Hour

// SQLiteStorage implementa ports.Storage usando SQLite (pure Go, sin CGo).
type SQLiteStorage struct {
	db          *sql.DB
	recordTicks bool
}

// NewSQLiteStorage abre (o crea) la base de datos en la ruta dada.
// Aplica el schema y limpia ticks antiguos.
func NewSQLiteStorage(path string, recordTicks bool) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage.NewSQLiteStorage: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1) // SQLite es single-writer
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage.NewSQLiteStorage: apply schema: %w", err)
	}

	s := &SQLiteStorage{db: db, recordTicks: recordTicks}
	s.pruneOld(context.Background())
	return s, nil
}

// RecordTick persiste un tick. No-op si record_ticks está desactivado.
func (s *SQLiteStorage) RecordTick(ctx context.Context, tick domain.Tick) error {
	if !s.recordTicks {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO ticks (timestamp, symbol, ltp, volume, bid, ask, oi) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		tick.Timestamp.UTC(), tick.Symbol, tick.LTP, tick.Volume,
		nullIfZero(tick.Bid), nullIfZero(tick.Ask), tick.OI,
	)
	if err != nil {
		return fmt.Errorf("storage.RecordTick: %w", err)
	}
	return nil
}

// RecordOrder hace upsert de la orden con su estado actual.
func (s *SQLiteStorage) RecordOrder(ctx context.Context, order domain.Order, strategy string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO orders
			(order_id, symbol, side, quantity, order_type, limit_price,
			 status, filled_price, filled_qty, created_at, strategy)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(order_id) DO UPDATE SET
			status       = excluded.status,
			filled_price = excluded.filled_price,
			filled_qty   = excluded.filled_qty
	`,
		order.ID, order.Symbol, string(order.Side), order.Quantity,
		string(order.Type), nullIfZero(order.LimitPrice), string(order.Status),
		nullIfZero(order.FilledPrice), order.FilledQuantity,
		order.CreatedAt.UTC(), strategy,
	)
	if err != nil {
		return fmt.Errorf("storage.RecordOrder: %s: %w", order.ID, err)
	}
	return nil
}

// RecordTradeOpen registra la entrada de un trade.
func (s *SQLiteStorage) RecordTradeOpen(ctx context.Context, trade domain.Trade) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO trades (order_id, symbol, side, quantity, entry_price, entry_time)
		VALUES (?, ?, ?, ?, ?, ?)
	`,
		trade.OrderID, trade.Symbol, string(trade.Side), trade.Quantity,
		trade.EntryPrice, trade.EntryTime.UTC(),
	)
	if err != nil {
		return fmt.Errorf("storage.RecordTradeOpen: %s: %w", trade.Symbol, err)
	}
	return nil
}

// RecordTradeClose cierra el trade abierto más antiguo del símbolo.
func (s *SQLiteStorage) RecordTradeClose(ctx context.Context, symbol string, exitPrice, pnl, pnlPct float64) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE trades
		SET exit_price = ?, pnl = ?, pnl_pct = ?, exit_time = ?
		WHERE id = (
			SELECT id FROM trades
			WHERE symbol = ? AND exit_time IS NULL
			ORDER BY entry_time ASC
			LIMIT 1
		)
	`, exitPrice, pnl, pnlPct, time.Now().UTC(), symbol)
	if err != nil {
		return fmt.Errorf("storage.RecordTradeClose: %s: %w", symbol, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("storage.RecordTradeClose: no open trade for %s", symbol)
	}
	return nil
}

// LogEvent registra un evento de sistema.
func (s *SQLiteStorage) LogEvent(ctx context.Context, eventType, message, severity string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO events (timestamp, event_type, message, severity) VALUES (?, ?, ?, ?)`,
		time.Now().UTC(), eventType, message, severity,
	)
	if err != nil {
		return fmt.Errorf("storage.LogEvent: %s: %w", eventType, err)
	}
	return nil
}

// DailyRealizedPnL devuelve el PnL realizado de los trades cerrados ese día.
func (s *SQLiteStorage) DailyRealizedPnL(ctx context.Context, date time.Time) (float64, error) {
	var pnl float64
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(pnl), 0) FROM trades
		WHERE DATE(exit_time) = DATE(?)
	`, date.UTC()).Scan(&pnl)
	if err != nil {
		return 0, fmt.Errorf("storage.DailyRealizedPnL: %w", err)
	}
	return pnl, nil
}

// PerformanceStats agrega los trades cerrados dentro de la ventana dada.
func (s *SQLiteStorage) PerformanceStats(ctx context.Context, window time.Duration) (domain.PerformanceStats, error) {
	cutoff := time.Now().UTC().Add(-window)

	var stats domain.PerformanceStats
	var best, worst sql.NullFloat64
	err := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN pnl > 0 THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN pnl < 0 THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN pnl > 0 THEN pnl ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN pnl < 0 THEN pnl ELSE 0 END), 0),
			COALESCE(SUM(pnl), 0),
			COALESCE(AVG(pnl), 0),
			MAX(pnl),
			MIN(pnl)
		FROM trades
		WHERE exit_time IS NOT NULL AND exit_time >= ?
	`, cutoff).Scan(
		&stats.TotalTrades, &stats.WinningTrades, &stats.LosingTrades,
		&stats.GrossProfit, &stats.GrossLoss, &stats.NetPnL, &stats.AvgPnL,
		&best, &worst,
	)
	if err != nil {
		return stats, fmt.Errorf("storage.PerformanceStats: %w", err)
	}

	stats.BestTrade = best.Float64
	stats.WorstTrade = worst.Float64
	if stats.TotalTrades > 0 {
		stats.WinRate = float64(stats.WinningTrades) / float64(stats.TotalTrades) * 100
	}
	return stats, nil
}

// Close cierra la conexión a la base de datos.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// pruneOld elimina ticks antiguos para mantener la DB ligera.
func (s *SQLiteStorage) pruneOld(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-retentionTicks)
	s.db.ExecContext(ctx, `DELETE FROM ticks WHERE timestamp < ?`, cutoff)
}

// nullIfZero convierte 0 en NULL para columnas opcionales.
func nullIfZero(v float64) any {
	if v == 0 {
		return nil
	}
	return v
}
