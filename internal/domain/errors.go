package domain

import (
	"errors"
	"fmt"
)

// ErrNotConnected se devuelve cuando una operación requiere sesión activa.
var ErrNotConnected = errors.New("broker not connected")

// ErrNoPrice se devuelve cuando no hay precio cacheado para un símbolo.
var ErrNoPrice = errors.New("no cached price for symbol")

// ExecutionError es un fallo del backend al colocar o cancelar una orden.
// Distinto de un rechazo de validación: indica malfunción, no bloqueo.
type ExecutionError struct {
	Op     string // "place_order", "cancel_order", ...
	Symbol string
	Err    error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("execution: %s %s: %v", e.Op, e.Symbol, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// NewExecutionError envuelve un fallo del broker con su operación y símbolo.
func NewExecutionError(op, symbol string, err error) *ExecutionError {
	return &ExecutionError{Op: op, Symbol: symbol, Err: err}
}
