// Dashboard de rendimiento: lee la base de datos del bot y presenta el
// historial de trading en tablas. Solo lectura, se puede ejecutar con el
// bot en marcha.
package main

import (
	"database/sql"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/olekukonko/tablewriter"
	_ "modernc.org/sqlite"

	"github.com/alejandrodnm/tradebot/config"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	days := flag.Int("days", 7, "lookback window in days")
	recent := flag.Int("recent", 10, "number of recent trades to show")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err, "path", *configPath)
		os.Exit(1)
	}

	db, err := sql.Open("sqlite", cfg.Storage.DSN)
	if err != nil {
		slog.Error("failed to open database", "err", err, "dsn", cfg.Storage.DSN)
		os.Exit(1)
	}
	defer db.Close()

	cutoff := time.Now().UTC().AddDate(0, 0, -*days)

	fmt.Printf("\n=== TRADEBOT DASHBOARD — last %d days ===\n\n", *days)
	printOverall(db, cutoff)
	printDaily(db, cutoff)
	printPerSymbol(db, cutoff)
	printRecentTrades(db, *recent)
	printRiskParams(cfg)
}

// printOverall imprime las métricas agregadas del período.
func printOverall(db *sql.DB, cutoff time.Time) {
	var total, winners int
	var net, best, worst sql.NullFloat64
	err := db.QueryRow(`
		SELECT COUNT(*),
		       COALESCE(SUM(CASE WHEN pnl > 0 THEN 1 ELSE 0 END), 0),
		       SUM(pnl), MAX(pnl), MIN(pnl)
		FROM trades
		WHERE exit_time IS NOT NULL AND exit_time >= ?
	`, cutoff).Scan(&total, &winners, &net, &best, &worst)
	if err != nil {
		slog.Error("overall stats query failed", "err", err)
		return
	}

	fmt.Println("OVERALL")
	if total == 0 {
		fmt.Println("  no closed trades in window")
		fmt.Println()
		return
	}

	winRate := float64(winners) / float64(total) * 100
	tbl := tablewriter.NewWriter(os.Stdout)
	tbl.Header("Trades", "Win rate", "Net PnL", "Best", "Worst")
	tbl.Append(
		fmt.Sprintf("%d", total),
		fmt.Sprintf("%.1f%%", winRate),
		fmt.Sprintf("%+.2f", net.Float64),
		fmt.Sprintf("%+.2f", best.Float64),
		fmt.Sprintf("%+.2f", worst.Float64),
	)
	tbl.Render()
	fmt.Println()
}

// printDaily imprime el PnL por día.
func printDaily(db *sql.DB, cutoff time.Time) {
	rows, err := db.Query(`
		SELECT DATE(exit_time), COUNT(*), SUM(pnl)
		FROM trades
		WHERE exit_time IS NOT NULL AND exit_time >= ?
		GROUP BY DATE(exit_time)
		ORDER BY DATE(exit_time) DESC
	`, cutoff)
	if err != nil {
		slog.Error("daily stats query failed", "err", err)
		return
	}
	defer rows.Close()

	fmt.Println("DAILY")
	tbl := tablewriter.NewWriter(os.Stdout)
	tbl.Header("Date", "Trades", "PnL")
	any := false
	for rows.Next() {
		var date string
		var trades int
		var pnl float64
		if err := rows.Scan(&date, &trades, &pnl); err != nil {
			slog.Error("daily row scan failed", "err", err)
			return
		}
		tbl.Append(date, fmt.Sprintf("%d", trades), fmt.Sprintf("%+.2f", pnl))
		any = true
	}
	if any {
		tbl.Render()
	} else {
		fmt.Println("  no data")
	}
	fmt.Println()
}

// printPerSymbol imprime el rendimiento por símbolo.
func printPerSymbol(db *sql.DB, cutoff time.Time) {
	rows, err := db.Query(`
		SELECT symbol, COUNT(*),
		       COALESCE(SUM(CASE WHEN pnl > 0 THEN 1 ELSE 0 END), 0),
		       SUM(pnl), AVG(pnl)
		FROM trades
		WHERE exit_time IS NOT NULL AND exit_time >= ?
		GROUP BY symbol
		ORDER BY SUM(pnl) DESC
	`, cutoff)
	if err != nil {
		slog.Error("per-symbol query failed", "err", err)
		return
	}
	defer rows.Close()

	fmt.Println("PER SYMBOL")
	tbl := tablewriter.NewWriter(os.Stdout)
	tbl.Header("Symbol", "Trades", "Winners", "Net PnL", "Avg PnL")
	any := false
	for rows.Next() {
		var symbol string
		var trades, winners int
		var net, avg float64
		if err := rows.Scan(&symbol, &trades, &winners, &net, &avg); err != nil {
			slog.Error("per-symbol row scan failed", "err", err)
			return
		}
		tbl.Append(symbol, fmt.Sprintf("%d", trades), fmt.Sprintf("%d", winners),
			fmt.Sprintf("%+.2f", net), fmt.Sprintf("%+.2f", avg))
		any = true
	}
	if any {
		tbl.Render()
	} else {
		fmt.Println("  no data")
	}
	fmt.Println()
}

// printRecentTrades imprime los últimos trades cerrados.
func printRecentTrades(db *sql.DB, limit int) {
	rows, err := db.Query(`
		SELECT symbol, side, quantity, entry_price, exit_price, pnl, pnl_pct, exit_time
		FROM trades
		WHERE exit_time IS NOT NULL
		ORDER BY exit_time DESC
		LIMIT ?
	`, limit)
	if err != nil {
		slog.Error("recent trades query failed", "err", err)
		return
	}
	defer rows.Close()

	fmt.Println("RECENT TRADES")
	tbl := tablewriter.NewWriter(os.Stdout)
	tbl.Header("Closed", "Symbol", "Side", "Qty", "Entry", "Exit", "PnL", "PnL %")
	any := false
	for rows.Next() {
		var symbol, side string
		var qty int64
		var entry, exit, pnl, pnlPct float64
		var closedAt time.Time
		if err := rows.Scan(&symbol, &side, &qty, &entry, &exit, &pnl, &pnlPct, &closedAt); err != nil {
			slog.Error("trade row scan failed", "err", err)
			return
		}
		tbl.Append(
			closedAt.Format("01-02 15:04"),
			symbol, side,
			fmt.Sprintf("%d", qty),
			fmt.Sprintf("%.2f", entry),
			fmt.Sprintf("%.2f", exit),
			fmt.Sprintf("%+.2f", pnl),
			fmt.Sprintf("%+.2f%%", pnlPct),
		)
		any = true
	}
	if any {
		tbl.Render()
	} else {
		fmt.Println("  no data")
	}
	fmt.Println()
}

// printRiskParams imprime los límites de riesgo configurados.
func printRiskParams(cfg *config.Config) {
	fmt.Println("RISK PARAMETERS")
	tbl := tablewriter.NewWriter(os.Stdout)
	tbl.Header("Parameter", "Value")
	tbl.Append("Max position size", fmt.Sprintf("%.0f", cfg.Risk.MaxPositionSize))
	tbl.Append("Max total exposure", fmt.Sprintf("%.0f", cfg.Risk.MaxTotalExposure))
	tbl.Append("Max daily loss", fmt.Sprintf("%.0f", cfg.Risk.MaxDailyLoss))
	tbl.Append("Max orders/min", fmt.Sprintf("%d", cfg.Risk.MaxOrdersPerMin))
	tbl.Append("Stop loss", fmt.Sprintf("%.1f%%", cfg.Risk.StopLossPct*100))
	tbl.Append("Take profit", fmt.Sprintf("%.1f%%", cfg.Risk.TakeProfitPct*100))
	tbl.Append("Sizing method", cfg.Risk.SizingMethod)
	tbl.Append("Trading hours", cfg.Trading.HoursStart+"-"+cfg.Trading.HoursEnd)
	tbl.Render()
	fmt.Println()
}
