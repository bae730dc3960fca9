package strategy

import (
	"sort"
	"time"

	"smcbot/internal/domain"
)

type blockKey struct {
	formedAt  int64
	direction domain.Direction
}

// trackedBlock is an unmitigated order block carried between detection passes.
type trackedBlock struct {
	signal    domain.Signal
	checkedTo time.Time // Newest candle already applied to the block
	barsAged  int
}

// blockArena holds the live order blocks of one symbol in slots addressed by
// their formation candle. Removed slots are compacted on prune.
type blockArena struct {
	slots   []*trackedBlock
	index   map[blockKey]int
	retired map[blockKey]time.Time
}

func newBlockArena() *blockArena {
	return &blockArena{
		index:   make(map[blockKey]int),
		retired: make(map[blockKey]time.Time),
	}
}

func keyOf(sig domain.Signal) blockKey {
	return blockKey{formedAt: sig.Timestamp.UnixMilli(), direction: sig.Direction}
}

// admit adds a newly detected block unless it is already tracked or was retired.
func (a *blockArena) admit(sig domain.Signal, checkedTo time.Time) bool {
	k := keyOf(sig)
	if _, ok := a.index[k]; ok {
		return false
	}
	if _, ok := a.retired[k]; ok {
		return false
	}
	a.index[k] = len(a.slots)
	a.slots = append(a.slots, &trackedBlock{signal: sig, checkedTo: checkedTo})
	return true
}

// retire marks a slot for removal on the next prune.
func (a *blockArena) retire(i int) {
	b := a.slots[i]
	if b == nil {
		return
	}
	k := keyOf(b.signal)
	a.retired[k] = b.signal.Timestamp
	delete(a.index, k)
	a.slots[i] = nil
}

// prune compacts the slot slice and forgets retired keys older than horizon.
func (a *blockArena) prune(horizon time.Time) {
	live := a.slots[:0]
	for _, b := range a.slots {
		if b != nil {
			live = append(live, b)
		}
	}
	for i := len(live); i < len(a.slots); i++ {
		a.slots[i] = nil
	}
	a.slots = live
	for i, b := range a.slots {
		a.index[keyOf(b.signal)] = i
	}
	for k, formed := range a.retired {
		if formed.Before(horizon) {
			delete(a.retired, k)
		}
	}
}

// blocks returns the live blocks ordered by formation time.
func (a *blockArena) blocks() []domain.Signal {
	out := make([]domain.Signal, 0, len(a.slots))
	for _, b := range a.slots {
		if b != nil {
			out = append(out, b.signal)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out
}

func (a *blockArena) len() int {
	return len(a.index)
}
