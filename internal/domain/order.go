package domain

import "time"

// Side es la dirección de una orden.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// OrderType es el tipo de ejecución de una orden.
type OrderType string

const (
	OrderMarket OrderType = "MARKET"
	OrderLimit  OrderType = "LIMIT"
)

// OrderStatus es el estado del ciclo de vida de una orden.
// PENDING es el único estado no terminal.
type OrderStatus string

const (
	StatusPending   OrderStatus = "PENDING"
	StatusFilled    OrderStatus = "FILLED"
	StatusRejected  OrderStatus = "REJECTED"
	StatusCancelled OrderStatus = "CANCELLED"
)

// Terminal indica si el estado es final (no admite más transiciones).
func (s OrderStatus) Terminal() bool {
	return s == StatusFilled || s == StatusRejected || s == StatusCancelled
}

// Order representa una orden enviada al broker. Se crea PENDING y solo la
// respuesta del broker la muta; los estados terminales son definitivos.
type Order struct {
	ID             string
	Symbol         string
	Side           Side
	Quantity       int64
	Type           OrderType
	LimitPrice     float64 // solo para órdenes LIMIT
	Status         OrderStatus
	FilledPrice    float64
	FilledQuantity int64
	CreatedAt      time.Time
}

// Filled indica si la orden se ejecutó completamente.
func (o Order) Filled() bool {
	return o.Status == StatusFilled
}
