// Package history implements the bounded, most-recent-first historical
// rings of emitted keycodes and occupied input positions consulted by the
// switch opcode VM (spec.md §3 "Historical keys / positions", §4.8).
package history

import "github.com/keylayer/keylayer/scancode"

// Capacity is the fixed size of each ring (spec.md: "ArrayDeques of up to 8").
const Capacity = 8

// maxTicks is the saturation ceiling for ticks-since-occurrence. The switch
// VM's own lossy tick compression (opcode package) only ever needs values
// far below this; it exists purely so a long-idle ring entry's counter
// cannot wrap.
const maxTicks = 1 << 30

// Ring is a bounded ring buffer of historical events of type T, most-recent
// first, each annotated with ticks-since-occurrence.
type Ring[T any] struct {
	items [Capacity]T
	ticks [Capacity]int
	n     int
}

// Push inserts v as the newest entry, evicting the oldest if full.
func (r *Ring[T]) Push(v T) {
	limit := r.n
	if limit == Capacity {
		limit = Capacity - 1
	}
	for i := limit; i > 0; i-- {
		r.items[i] = r.items[i-1]
		r.ticks[i] = r.ticks[i-1]
	}
	r.items[0] = v
	r.ticks[0] = 0
	if r.n < Capacity {
		r.n++
	}
}

// Tick advances every entry's ticks-since-occurrence counter by one,
// saturating at maxTicks.
func (r *Ring[T]) Tick() {
	for i := 0; i < r.n; i++ {
		if r.ticks[i] < maxTicks {
			r.ticks[i]++
		}
	}
}

// Len returns the number of valid entries currently held, <= Capacity.
func (r *Ring[T]) Len() int { return r.n }

// At returns the n-back entry (0 = most recent) and its ticks-since-
// occurrence, and whether such an entry exists.
func (r *Ring[T]) At(n int) (v T, ticks int, ok bool) {
	if n < 0 || n >= r.n {
		return v, 0, false
	}
	return r.items[n], r.ticks[n], true
}

// Rings bundles the two historical rings the engine maintains.
type Rings struct {
	Keys      Ring[scancode.Code]
	Positions Ring[scancode.Position]
}

// Tick advances both rings by one tick.
func (r *Rings) Tick() {
	r.Keys.Tick()
	r.Positions.Tick()
}

// RecordKey pushes a newly-emitted keycode into the key history.
func (r *Rings) RecordKey(c scancode.Code) { r.Keys.Push(c) }

// RecordPosition pushes a newly-occupied input position into the position
// history.
func (r *Rings) RecordPosition(p scancode.Position) { r.Positions.Push(p) }
