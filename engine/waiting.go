package engine

import (
	"github.com/keylayer/keylayer/action"
	"github.com/keylayer/keylayer/scancode"
)

type waitingKind uint8

const (
	waitHoldTap waitingKind = iota
	waitTapDanceLazy
	waitChord
)

type resolutionKind uint8

const (
	resNone resolutionKind = iota
	resTap
	resHold
	resTimeout
)

type resolution struct {
	kind   resolutionKind
	action action.Action
	extra  []pendingAction // additional positions/actions a chord decomposed into
}

// waitingState is the engine's single pending tap-hold/tap-dance/chord
// decision (spec.md §3 "Waiting").
type waitingState struct {
	kind    waitingKind
	coord   scancode.Position
	timeout int
	delay   int
	ticks   int

	ht *action.HoldTap

	td       *action.TapDance
	tapCount int

	chordDef    *action.ChordGroup
	chordActive uint64
}

func positionBit(positions []scancode.Position, pos scancode.Position) (bit uint64, ok bool) {
	for i, p := range positions {
		if p == pos {
			return 1 << uint(i), true
		}
	}
	return 0, false
}

// tick advances the waiting state by one engine tick, consulting q (the
// event queue, peeked but not mutated here except where the component
// explicitly says it consumes queued events). It returns resNone ("not
// yet") or a concrete resolution.
func (w *waitingState) tick(q *eventQueue) resolution {
	w.ticks++
	switch w.kind {
	case waitHoldTap:
		return w.tickHoldTap(q)
	case waitTapDanceLazy:
		return w.tickTapDanceLazy(q)
	case waitChord:
		return w.tickChord(q)
	}
	return resolution{}
}

func (w *waitingState) tickHoldTap(q *eventQueue) resolution {
	ht := w.ht

	// Find a same-position release already in the queue (peeked, not
	// consumed: the layout driver still needs to process it normally to
	// close out the NormalKey the Tap resolution creates).
	for _, it := range q.items {
		if it.Event.Kind == scancode.Release && it.Event.Pos == w.coord {
			effectiveSince := w.delay - it.Since
			if effectiveSince < 0 {
				effectiveSince = 0
			}
			if w.timeout > effectiveSince {
				return resolution{kind: resTap, action: ht.Tap}
			}
			return resolution{kind: resTimeout, action: ht.TimeoutAction}
		}
	}

	switch ht.Policy {
	case action.PolicyHoldOnOtherKeyPress:
		for _, it := range q.items {
			if it.Event.Kind == scancode.Press && it.Event.Pos != w.coord {
				return resolution{kind: resHold, action: ht.Hold}
			}
		}
	case action.PolicyPermissiveHold:
		pressed := map[scancode.Position]bool{}
		for _, it := range q.items {
			if it.Event.Pos == w.coord {
				continue
			}
			if it.Event.Kind == scancode.Press {
				pressed[it.Event.Pos] = true
			} else if it.Event.Kind == scancode.Release && pressed[it.Event.Pos] {
				return resolution{kind: resHold, action: ht.Hold}
			}
		}
	case action.PolicyCustom:
		if ht.Custom != nil {
			d := ht.Custom(q.views())
			if d.Resolved {
				switch d.Decision {
				case action.ResolutionTap:
					return resolution{kind: resTap, action: ht.Tap}
				case action.ResolutionHold:
					return resolution{kind: resHold, action: ht.Hold}
				case action.ResolutionTimeout:
					return resolution{kind: resTimeout, action: ht.TimeoutAction}
				}
			}
			if d.SkipTimeout {
				return resolution{}
			}
		}
	}

	if w.timeout > 0 {
		w.timeout--
	}
	if w.timeout == 0 {
		return resolution{kind: resTimeout, action: ht.TimeoutAction}
	}
	return resolution{}
}

func (w *waitingState) tickTapDanceLazy(q *eventQueue) resolution {
	resolvedAt := -1
	for i, it := range q.items {
		if it.Event.Kind == scancode.Press {
			if it.Event.Pos == w.coord {
				w.tapCount++
				if w.tapCount >= len(w.td.Actions) {
					resolvedAt = i
					break
				}
			} else {
				resolvedAt = i
				break
			}
		}
	}
	if resolvedAt == -1 && w.timeout > 0 {
		w.timeout--
	}
	timedOut := w.timeout == 0
	if resolvedAt == -1 && !timedOut {
		return resolution{}
	}

	count := w.tapCount
	if count < 1 {
		count = 1
	}
	if count > len(w.td.Actions) {
		count = len(w.td.Actions)
	}
	chosen := w.td.Actions[count-1]

	// Discard every queued event still at this position: the repeated
	// taps absorbed into the dance are not replayed individually. This is
	// a deliberate simplification of the "evict count-1 releases and all
	// presses" rule: it discards all same-position queue traffic rather
	// than surgically preserving exactly one trailing release.
	kept := q.items[:0]
	for _, it := range q.items {
		if it.Event.Pos != w.coord {
			kept = append(kept, it)
		}
	}
	q.items = kept

	return resolution{kind: resTap, action: chosen}
}

func (w *waitingState) tickChord(q *eventQueue) resolution {
	kept := q.items[:0]
	aborted := false
	for _, it := range q.items {
		bit, isMember := positionBit(w.chordDef.Positions, it.Event.Pos)
		switch {
		case it.Event.Kind == scancode.Press && isMember:
			w.chordActive |= bit
		case it.Event.Kind == scancode.Release && isMember:
			w.coord = it.Event.Pos
			aborted = true
			kept = append(kept, it)
		case it.Event.Kind == scancode.Press && !isMember:
			aborted = true
			kept = append(kept, it)
		default:
			kept = append(kept, it)
		}
	}
	q.items = kept

	if aborted {
		return w.resolveChord(false)
	}

	if act, ok := w.chordDef.Mapping[w.chordActive]; ok && w.unambiguous() {
		return resolution{kind: resTap, action: act}
	}

	if w.timeout > 0 {
		w.timeout--
	}
	if w.timeout == 0 {
		return w.resolveChord(true)
	}
	return resolution{}
}

// unambiguous reports whether no proper superset of the active bitmask
// also has a mapping (spec.md §4.4: resolve early only when unambiguous).
func (w *waitingState) unambiguous() bool {
	for mask := range w.chordDef.Mapping {
		if mask != w.chordActive && mask&w.chordActive == w.chordActive {
			return false
		}
	}
	return true
}

func (w *waitingState) resolveChord(onTimeout bool) resolution {
	if act, ok := w.chordDef.Mapping[w.chordActive]; ok {
		return resolution{kind: resTap, action: act}
	}
	return resolution{kind: resTap, action: nil, extra: decomposeChord(w.chordActive, w.coord, w.chordDef)}
}

// decomposeChord splits active into a maximal-first sequence of mapped
// sub-chords (spec.md §4.4.1), enqueuing each at origin.
func decomposeChord(active uint64, origin scancode.Position, def *action.ChordGroup) []pendingAction {
	var out []pendingAction
	remaining := active
	for remaining != 0 {
		best, bestPop := uint64(0), -1
		for s := remaining; ; s = (s - 1) & remaining {
			if s != 0 {
				if _, ok := def.Mapping[s]; ok {
					if pop := popcount(s); pop > bestPop {
						best, bestPop = s, pop
					}
				}
			}
			if s == 0 {
				break
			}
		}
		if best == 0 {
			break
		}
		out = append(out, pendingAction{Pos: origin, Action: def.Mapping[best]})
		remaining &^= best
	}
	return out
}

func popcount(v uint64) int {
	n := 0
	for v != 0 {
		n++
		v &= v - 1
	}
	return n
}

// eagerTracker is the separate tap-dance-eager bookkeeping (spec.md §4.3),
// distinct from the waiting-state slot.
type eagerTracker struct {
	coord   scancode.Position
	td      *action.TapDance
	timeout int
	counter int
}

// tick decrements timeout, reporting expired once it reaches zero or once
// the last action has been fired.
func (e *eagerTracker) tick() (expired bool) {
	if e == nil {
		return false
	}
	if e.timeout > 0 {
		e.timeout--
	}
	return e.timeout == 0 || e.counter >= len(e.td.Actions)-1
}
