// Package oneshot implements the one-shot latch (spec.md §4.5): a
// mechanism that keeps an action's underlying state active until a
// qualifying subsequent press or release.
package oneshot

import "github.com/keylayer/keylayer/action"

// Capacity bounds each of the latch's internal deques.
const Capacity = 8

// State is the one-shot latch. The zero value is a valid, inactive latch.
type State struct {
	latched   []Position
	released  []Position
	other     []Position
	timeout   int
	endPolicy action.OneShotEndPolicy
	releaseOnNextTick bool
}

// Position aliases the shared position type to avoid importing scancode
// twice under different names at call sites.
type Position = action.Position

// Active reports whether a one-shot latch is currently pending.
func (s *State) Active() bool { return len(s.latched) > 0 }

// IsLatched reports whether pos is currently held open by the latch
// (whether or not its physical release has already arrived).
func (s *State) IsLatched(pos Position) bool {
	return indexOf(s.latched, pos) >= 0
}

// Activate begins or extends the latch for pos. It returns any position
// evicted by the bounded deque overflowing, which the caller must release
// immediately as compensation (spec.md §7 "bounded queue overflow": never
// drop silently).
func (s *State) Activate(pos Position, timeout int, policy action.OneShotEndPolicy) (evicted Position, hadEviction bool) {
	s.timeout = timeout
	s.endPolicy = policy
	s.releaseOnNextTick = false
	if len(s.latched) >= Capacity {
		evicted = s.latched[0]
		s.latched = s.latched[1:]
		hadEviction = true
	}
	s.latched = append(s.latched, pos)
	return evicted, hadEviction
}

// Tick advances the countdown by one. If the countdown reaches zero or a
// repress/other event armed releaseOnNextTick, it returns the full set of
// currently-latched positions to release and clears the latch.
func (s *State) Tick() (release []Position, ended bool) {
	if !s.Active() {
		return nil, false
	}
	if s.timeout > 0 {
		s.timeout--
	}
	if s.timeout == 0 || s.releaseOnNextTick {
		release = append([]Position(nil), s.latched...)
		s.latched = nil
		s.released = nil
		s.other = nil
		s.releaseOnNextTick = false
		return release, true
	}
	return nil, false
}

// OnPressLatched handles a press observed at a position currently in the
// latched set (a "repress").
func (s *State) OnPressLatched(pos Position) {
	if s.endPolicy == action.OneShotFirstPressOrRepress || s.endPolicy == action.OneShotFirstReleaseOrRepress {
		s.releaseOnNextTick = true
	}
	if i := indexOf(s.released, pos); i >= 0 {
		s.released = append(s.released[:i], s.released[i+1:]...)
	}
}

// OnPressOther handles a press observed at a position not in the latched
// set while the latch is active.
func (s *State) OnPressOther(pos Position) {
	if len(s.other) >= Capacity {
		s.other = s.other[1:]
	}
	s.other = append(s.other, pos)
	if s.endPolicy == action.OneShotFirstPress || s.endPolicy == action.OneShotFirstPressOrRepress {
		s.releaseOnNextTick = true
	}
}

// OnRelease handles a release observed at pos. If pos is currently latched,
// the release is deferred (allow=false): the caller must not remove the
// underlying NormalKey/LayerModifier state yet. Otherwise, if pos was
// recorded as an "other" press, FirstRelease policies may arm the latch's
// end, and allow is true (the release proceeds normally).
func (s *State) OnRelease(pos Position) (allow bool) {
	if i := indexOf(s.latched, pos); i >= 0 {
		if indexOf(s.released, pos) < 0 {
			s.released = append(s.released, pos)
		}
		return false
	}
	if i := indexOf(s.other, pos); i >= 0 {
		_ = i
		if s.endPolicy == action.OneShotFirstRelease || s.endPolicy == action.OneShotFirstReleaseOrRepress {
			s.releaseOnNextTick = true
		}
	}
	return true
}

func indexOf(s []Position, p Position) int {
	for i, v := range s {
		if v == p {
			return i
		}
	}
	return -1
}
