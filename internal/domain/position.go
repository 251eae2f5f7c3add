package domain

import "time"

// Position es la exposición abierta en un símbolo. Quantity con signo:
// positiva = long, negativa = short. Una posición por símbolo.
type Position struct {
	Symbol    string
	Quantity  int64
	AvgPrice  float64
	EntryTime time.Time
}

// Long indica si la posición es larga.
func (p Position) Long() bool { return p.Quantity > 0 }

// Short indica si la posición es corta.
func (p Position) Short() bool { return p.Quantity < 0 }

// Notional devuelve el valor absoluto de la posición a su precio medio.
func (p Position) Notional() float64 {
	return abs64(float64(p.Quantity)) * p.AvgPrice
}

// UnrealizedPnL devuelve el beneficio no realizado al precio dado.
// El signo de Quantity hace el cálculo correcto para shorts.
func (p Position) UnrealizedPnL(mark float64) float64 {
	return (mark - p.AvgPrice) * float64(p.Quantity)
}

// BalanceSnapshot es una vista puntual del balance según el broker.
type BalanceSnapshot struct {
	Available float64
	Used      float64
	Total     float64
}

// PnLSnapshot agrupa el PnL realizado y no realizado de la sesión.
type PnLSnapshot struct {
	Realized   float64
	Unrealized float64
	Total      float64
}

func abs64(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
