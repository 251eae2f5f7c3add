package strategy

// history is a fixed-capacity rolling window of prices per symbol.
type history struct {
	prices []float64
	max    int
}

func newHistory(max int) *history {
	return &history{prices: make([]float64, 0, max), max: max}
}

func (h *history) push(price float64) {
	if len(h.prices) == h.max {
		copy(h.prices, h.prices[1:])
		h.prices = h.prices[:h.max-1]
	}
	h.prices = append(h.prices, price)
}

func (h *history) len() int { return len(h.prices) }

// mean over the last n prices, excluding the trailing skip entries.
func (h *history) mean(n, skip int) float64 {
	end := len(h.prices) - skip
	start := end - n
	if start < 0 || n <= 0 {
		return 0
	}
	sum := 0.0
	for _, p := range h.prices[start:end] {
		sum += p
	}
	return sum / float64(n)
}
