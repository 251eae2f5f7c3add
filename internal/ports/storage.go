package ports

import (
	"context"
	"time"

	"github.com/alejandrodnm/tradebot/internal/domain"
)

// Storage persiste ticks, órdenes, trades y eventos del sistema.
// Los fallos son no-fatales para el core, excepto DailyRealizedPnL: el risk
// gate lo necesita para decidir, así que su fallo bloquea el trading.
type Storage interface {
	// RecordTick persiste un tick (respeta el toggle de configuración).
	RecordTick(ctx context.Context, tick domain.Tick) error

	// RecordOrder persiste una orden con su estado actual.
	RecordOrder(ctx context.Context, order domain.Order, strategy string) error

	// RecordTradeOpen registra la entrada de un trade.
	RecordTradeOpen(ctx context.Context, trade domain.Trade) error

	// RecordTradeClose cierra el trade abierto del símbolo con su PnL.
	RecordTradeClose(ctx context.Context, symbol string, exitPrice, pnl, pnlPct float64) error

	// LogEvent registra un evento de sistema (BOT_START, CIRCUIT_BREAKER...).
	LogEvent(ctx context.Context, eventType, message, severity string) error

	// DailyRealizedPnL devuelve el PnL realizado del día dado.
	DailyRealizedPnL(ctx context.Context, date time.Time) (float64, error)

	// PerformanceStats agrega los trades cerrados en la ventana dada.
	PerformanceStats(ctx context.Context, window time.Duration) (domain.PerformanceStats, error)

	// Close cierra la conexión a la base de datos limpiamente.
	Close() error
}
