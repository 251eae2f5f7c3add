package domain

import "time"

// Tick representa una observación de mercado: un precio con timestamp.
// Inmutable una vez producido por el broker.
type Tick struct {
	Symbol    string
	Timestamp time.Time
	LTP       float64 // last traded price
	Volume    int64
	Bid       float64 // 0 si el venue no lo reporta
	Ask       float64 // 0 si el venue no lo reporta
	OI        int64   // open interest, 0 para cash
}

// SanityBounds define los límites de validación de precios.
type SanityBounds struct {
	MinPrice      float64
	MaxPrice      float64
	MaxTickChange float64 // cambio relativo máximo entre ticks consecutivos
}

// ValidTick comprueba que el precio del tick esté dentro de los límites y que
// el cambio respecto al precio anterior no sea sospechoso. prevLTP <= 0
// significa que no hay tick previo para el símbolo.
func ValidTick(t Tick, prevLTP float64, bounds SanityBounds) bool {
	if t.LTP < bounds.MinPrice || t.LTP > bounds.MaxPrice {
		return false
	}
	if prevLTP > 0 {
		change := (t.LTP - prevLTP) / prevLTP
		if change < 0 {
			change = -change
		}
		if change > bounds.MaxTickChange {
			return false
		}
	}
	return true
}
