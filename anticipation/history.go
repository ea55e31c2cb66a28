package anticipation

const historySize = 64

// Record stores an anticipated value alongside the counter and local time it
// was anticipated at.
type Record[T any] struct {
	Counter uint64
	Value   T
	Time    float64
	valid   bool
}

// History is a ring buffer of recent anticipations, indexed by counter, used
// to find which anticipations the authority has not confirmed yet.
type History[T any] struct {
	records     [historySize]Record[T]
	nextCounter uint64
}

// Store saves an anticipation.
func (h *History[T]) Store(counter uint64, value T, time float64) {
	h.records[counter%historySize] = Record[T]{
		Counter: counter,
		Value:   value,
		Time:    time,
		valid:   true,
	}
	if counter+1 > h.nextCounter {
		h.nextCounter = counter + 1
	}
}

// Get retrieves a record by counter. Returns false if not found or if the
// slot has been overwritten.
func (h *History[T]) Get(counter uint64) (Record[T], bool) {
	r := h.records[counter%historySize]
	if !r.valid || r.Counter != counter {
		return Record[T]{}, false
	}
	return r, true
}

// NextCounter returns the counter after the newest stored record.
func (h *History[T]) NextCounter() uint64 {
	return h.nextCounter
}

// Unacknowledged returns the stored records newer than lastAcked, oldest first.
func (h *History[T]) Unacknowledged(lastAcked uint64) []Record[T] {
	var results []Record[T]
	start := lastAcked + 1
	if h.nextCounter > historySize && start < h.nextCounter-historySize {
		start = h.nextCounter - historySize
	}
	for c := start; c < h.nextCounter; c++ {
		if r, ok := h.Get(c); ok {
			results = append(results, r)
		}
	}
	return results
}

// PredictionError measures how far the anticipation at counter was from the
// authoritative value.
func (h *History[T]) PredictionError(counter uint64, authoritative T, distance func(a, b T) float64) float64 {
	r, ok := h.Get(counter)
	if !ok {
		return 0
	}
	return distance(r.Value, authoritative)
}

// Reset forgets every record.
func (h *History[T]) Reset() {
	*h = History[T]{}
}
