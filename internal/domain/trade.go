package domain

import "time"

// Trade representa un round-trip: entrada y (eventualmente) salida.
type Trade struct {
	OrderID    string
	Symbol     string
	Side       Side
	Quantity   int64
	EntryPrice float64
	ExitPrice  float64
	PnL        float64
	PnLPct     float64
	EntryTime  time.Time
	ExitTime   time.Time
}

// PerformanceStats agrega el rendimiento de los trades cerrados en una ventana.
type PerformanceStats struct {
	TotalTrades   int
	WinningTrades int
	LosingTrades  int
	WinRate       float64 // porcentaje 0-100
	GrossProfit   float64
	GrossLoss     float64
	NetPnL        float64
	AvgPnL        float64
	BestTrade     float64
	WorstTrade    float64
}

// RiskReport es el estado actual del risk gate para el status report.
type RiskReport struct {
	CircuitBreakerActive bool
	DailyPnL             float64
	RemainingLossBuffer  float64
	OrdersLastMinute     int
	TradingAllowed       bool
}

// StatusReport es el snapshot periódico que emite el orquestador.
type StatusReport struct {
	Time      time.Time
	Balance   BalanceSnapshot
	PnL       PnLSnapshot
	Positions []Position
	Risk      RiskReport
}
