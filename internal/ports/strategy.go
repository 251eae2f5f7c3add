package ports

import (
	"time"

	"github.com/alejandrodnm/tradebot/internal/domain"
)

// SignalGenerator convierte un stream de precios en decisiones de trading.
// Puede mantener su propio histórico interno, pero no toca el estado del core.
type SignalGenerator interface {
	// Evaluate procesa un precio y devuelve BUY, SELL o NONE.
	Evaluate(symbol string, price float64, ts time.Time) domain.Signal

	// Name identifica la estrategia en logs y persistencia.
	Name() string
}
