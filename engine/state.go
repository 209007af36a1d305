// Package engine implements the layout driver of spec.md §4.1: the event
// queue, action queue, active state set, and the waiting-state machinery
// (tap-hold, tap-dance, chord-group) that together turn physical key
// events into emitted keycodes and custom events.
package engine

import (
	"github.com/keylayer/keylayer/action"
	"github.com/keylayer/keylayer/scancode"
	"github.com/keylayer/keylayer/sequence"
)

// ActiveKind classifies one ActiveEntry.
type ActiveKind uint8

const (
	KindNormalKey ActiveKind = iota
	KindLayerModifier
	KindCustom
	KindFakeKey
	KindRepeatingSequence
	KindSeqCustomPending
	KindSeqCustomActive
	KindTombstone
)

// ActiveEntry is one member of the active-state bag (spec.md §3).
type ActiveEntry struct {
	Kind              ActiveKind
	Keycode           scancode.Code
	Layer             int
	Origin            scancode.Position
	HasOrigin         bool
	ClearOnNextAction bool
	CustomValue       uint32
	Runner            *sequence.Runner // only for RepeatingSequence
}

// MaxActiveState bounds the active-state bag (spec.md §3, §7).
const MaxActiveState = 64

type activeSet struct {
	entries []ActiveEntry
}

// push appends e, refusing (ok=false) if the bag is already at capacity
// (spec.md §7 "active-state overflow": the action becomes a logical no-op).
func (s *activeSet) push(e ActiveEntry) (ok bool) {
	if len(s.entries) >= MaxActiveState {
		return false
	}
	s.entries = append(s.entries, e)
	return true
}

// sweepTombstones removes every KindTombstone entry, compacting in place.
func (s *activeSet) sweepTombstones() {
	out := s.entries[:0]
	for _, e := range s.entries {
		if e.Kind != KindTombstone {
			out = append(out, e)
		}
	}
	s.entries = out
}

// emittedKeycodes is the union of NormalKey and FakeKey keycodes
// (spec.md §3 invariant 5).
func (s *activeSet) emittedKeycodes() []scancode.Code {
	var out []scancode.Code
	for _, e := range s.entries {
		if e.Kind == KindNormalKey || e.Kind == KindFakeKey {
			out = append(out, e.Keycode)
		}
	}
	return out
}

// currentLayer is the topmost LayerModifier's layer, or base if none.
func (s *activeSet) currentLayer(base int) int {
	layer := base
	for _, e := range s.entries {
		if e.Kind == KindLayerModifier {
			layer = e.Layer
		}
	}
	return layer
}

// purgeClearOnNextAction tombstones every NormalKey flagged
// clear_on_next_action (spec.md §3 invariant 4).
func (s *activeSet) purgeClearOnNextAction() {
	for i := range s.entries {
		if s.entries[i].Kind == KindNormalKey && s.entries[i].ClearOnNextAction {
			s.entries[i].Kind = KindTombstone
		}
	}
}

// removeAtPosition tombstones NormalKey/LayerModifier/RepeatingSequence
// entries at pos, returning any Custom entry found there (for the caller
// to surface a Custom::Release).
func (s *activeSet) removeAtPosition(pos scancode.Position) (custom *ActiveEntry) {
	for i := range s.entries {
		e := &s.entries[i]
		if !e.HasOrigin || e.Origin != pos {
			continue
		}
		switch e.Kind {
		case KindNormalKey, KindLayerModifier, KindRepeatingSequence:
			e.Kind = KindTombstone
		case KindCustom:
			c := *e
			e.Kind = KindTombstone
			custom = &c
		}
	}
	return custom
}

func (s *activeSet) heldKeys() map[scancode.Code]bool {
	m := map[scancode.Code]bool{}
	for _, e := range s.entries {
		if e.Kind == KindNormalKey || e.Kind == KindFakeKey {
			m[e.Keycode] = true
		}
	}
	return m
}

func (s *activeSet) heldPositions() map[scancode.Position]bool {
	m := map[scancode.Position]bool{}
	for _, e := range s.entries {
		if e.HasOrigin && (e.Kind == KindNormalKey || e.Kind == KindLayerModifier) {
			m[e.Origin] = true
		}
	}
	return m
}

// InputEvent is one event handed to the engine via Event, or replayed
// internally at the front of the event queue.
type InputEvent struct {
	Kind scancode.EventKind
	Pos  scancode.Position
}

// Queued is one entry of the bounded event queue (spec.md §3).
type Queued struct {
	Event InputEvent
	Since int
}

// MaxEventQueue bounds the event queue (spec.md §3).
const MaxEventQueue = 32

type eventQueue struct {
	items []Queued
}

func (q *eventQueue) push(e InputEvent) (overflow bool) {
	if len(q.items) >= MaxEventQueue {
		return true
	}
	q.items = append(q.items, Queued{Event: e})
	return false
}

// pushFront injects e at the head of the queue, used by sequence-match
// dispatch (release-then-press pairs), sequence abort replay, chord-v2
// failure replay and one-shot releases.
func (q *eventQueue) pushFront(e InputEvent) {
	q.items = append([]Queued{{Event: e}}, q.items...)
}

func (q *eventQueue) pop() (Queued, bool) {
	if len(q.items) == 0 {
		return Queued{}, false
	}
	item := q.items[0]
	q.items = q.items[1:]
	return item, true
}

func (q *eventQueue) tick() {
	for i := range q.items {
		q.items[i].Since++
	}
}

func (q *eventQueue) views() []action.QueuedEventView {
	out := make([]action.QueuedEventView, len(q.items))
	for i, it := range q.items {
		out[i] = action.QueuedEventView{Pos: it.Event.Pos, Kind: it.Event.Kind, Since: it.Since}
	}
	return out
}

// MaxActionQueue bounds the action queue (spec.md §3).
const MaxActionQueue = 8

// pendingAction is one action-queue entry: an action to dispatch at a
// recorded position (chord decomposition, multi-case switches,
// MultipleActions expansion).
type pendingAction struct {
	Pos    scancode.Position
	Action action.Action
}

type actionQueue struct {
	items []pendingAction
}

func (q *actionQueue) push(p pendingAction) (ok bool) {
	if len(q.items) >= MaxActionQueue {
		return false
	}
	q.items = append(q.items, p)
	return true
}

func (q *actionQueue) pop() (pendingAction, bool) {
	if len(q.items) == 0 {
		return pendingAction{}, false
	}
	p := q.items[0]
	q.items = q.items[1:]
	return p, true
}
