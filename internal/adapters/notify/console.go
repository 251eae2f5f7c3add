package notify

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/alejandrodnm/tradebot/internal/domain"
)

// Console implementa ports.Notifier escribiendo al terminal.
type Console struct {
	out io.Writer
}

// NewConsole crea un notificador que escribe a stdout.
func NewConsole() *Console {
	return &Console{out: os.Stdout}
}

// NewConsoleWriter crea un notificador para tests.
func NewConsoleWriter(w io.Writer) *Console {
	return &Console{out: w}
}

// Status imprime el bloque periódico de estado: balance, PnL, posiciones
// abiertas y el estado del risk gate.
func (c *Console) Status(_ context.Context, report domain.StatusReport) error {
	fmt.Fprintf(c.out, "\n========== STATUS %s ==========\n", report.Time.Format("15:04:05"))
	fmt.Fprintf(c.out, "  Balance:    available %.2f | used %.2f | total %.2f\n",
		report.Balance.Available, report.Balance.Used, report.Balance.Total)
	fmt.Fprintf(c.out, "  PnL:        realized %+.2f | unrealized %+.2f | total %+.2f\n",
		report.PnL.Realized, report.PnL.Unrealized, report.PnL.Total)

	if len(report.Positions) == 0 {
		fmt.Fprintf(c.out, "  Positions:  none\n")
	} else {
		tbl := tablewriter.NewWriter(c.out)
		tbl.Header("Symbol", "Qty", "Avg Price", "Notional", "Since")
		for _, pos := range report.Positions {
			tbl.Append(
				pos.Symbol,
				fmt.Sprintf("%d", pos.Quantity),
				fmt.Sprintf("%.2f", pos.AvgPrice),
				fmt.Sprintf("%.2f", pos.Notional()),
				pos.EntryTime.Format("15:04:05"),
			)
		}
		tbl.Render()
	}

	risk := report.Risk
	state := "OK"
	if risk.CircuitBreakerActive {
		state = "CIRCUIT BREAKER"
	} else if !risk.TradingAllowed {
		state = "BLOCKED"
	}
	fmt.Fprintf(c.out, "  Risk:       %s | daily PnL %+.2f | loss buffer %.2f | orders/min %d\n",
		state, risk.DailyPnL, risk.RemainingLossBuffer, risk.OrdersLastMinute)
	return nil
}

// Summary imprime el resumen final de la sesión.
func (c *Console) Summary(_ context.Context, stats domain.PerformanceStats) error {
	fmt.Fprintf(c.out, "\n========================================================\n")
	fmt.Fprintf(c.out, "  SESSION SUMMARY — %s\n", time.Now().Format("2006-01-02 15:04"))
	fmt.Fprintf(c.out, "========================================================\n\n")

	if stats.TotalTrades == 0 {
		fmt.Fprintf(c.out, "  No closed trades this session.\n")
		return nil
	}

	tbl := tablewriter.NewWriter(c.out)
	tbl.Header("Metric", "Value")
	tbl.Append("Total trades", fmt.Sprintf("%d", stats.TotalTrades))
	tbl.Append("Winners / Losers", fmt.Sprintf("%d / %d", stats.WinningTrades, stats.LosingTrades))
	tbl.Append("Win rate", fmt.Sprintf("%.1f%%", stats.WinRate))
	tbl.Append("Gross profit", fmt.Sprintf("%+.2f", stats.GrossProfit))
	tbl.Append("Gross loss", fmt.Sprintf("%+.2f", stats.GrossLoss))
	tbl.Append("Net PnL", fmt.Sprintf("%+.2f", stats.NetPnL))
	tbl.Append("Avg per trade", fmt.Sprintf("%+.2f", stats.AvgPnL))
	tbl.Append("Best trade", fmt.Sprintf("%+.2f", stats.BestTrade))
	tbl.Append("Worst trade", fmt.Sprintf("%+.2f", stats.WorstTrade))
	tbl.Render()
	return nil
}
