package strategy

import "smcbot/internal/domain"

// Window is a bounded, append-only series of closed candles for one symbol.
// Candles must arrive in OpenTime order; duplicates and stale candles are ignored
// and the oldest candle is evicted once the window is full.
type Window struct {
	capacity int
	klines   []*domain.Kline
}

// NewWindow creates an empty window holding at most capacity candles.
func NewWindow(capacity int) *Window {
	if capacity <= 0 {
		capacity = 1
	}
	return &Window{capacity: capacity, klines: make([]*domain.Kline, 0, capacity)}
}

// Append adds k if it is newer than the last candle. It reports whether k was added.
func (w *Window) Append(k *domain.Kline) bool {
	if k == nil {
		return false
	}
	if n := len(w.klines); n > 0 && !k.OpenTime.After(w.klines[n-1].OpenTime) {
		return false
	}
	if len(w.klines) == w.capacity {
		copy(w.klines, w.klines[1:])
		w.klines = w.klines[:len(w.klines)-1]
	}
	w.klines = append(w.klines, k)
	return true
}

// Merge appends every candle in klines and returns how many were new.
func (w *Window) Merge(klines []*domain.Kline) int {
	added := 0
	for _, k := range klines {
		if w.Append(k) {
			added++
		}
	}
	return added
}

// Klines returns a copy of the window, oldest first.
func (w *Window) Klines() []*domain.Kline {
	out := make([]*domain.Kline, len(w.klines))
	copy(out, w.klines)
	return out
}

// Len returns the number of candles held.
func (w *Window) Len() int {
	return len(w.klines)
}

// Last returns the newest candle or nil.
func (w *Window) Last() *domain.Kline {
	if len(w.klines) == 0 {
		return nil
	}
	return w.klines[len(w.klines)-1]
}
