package ports

import (
	"context"

	"github.com/alejandrodnm/tradebot/internal/domain"
)

// Notifier muestra el estado del bot al operador.
type Notifier interface {
	// Status imprime el snapshot periódico de la sesión.
	Status(ctx context.Context, report domain.StatusReport) error

	// Summary imprime el resumen final al apagar el bot.
	Summary(ctx context.Context, stats domain.PerformanceStats) error
}
