package domain

// Signal es la decisión de trading que emite una estrategia para un tick.
type Signal int

const (
	SignalNone Signal = iota
	SignalBuy
	SignalSell
)

// String devuelve el nombre de la señal.
func (s Signal) String() string {
	switch s {
	case SignalBuy:
		return "BUY"
	case SignalSell:
		return "SELL"
	default:
		return "NONE"
	}
}
