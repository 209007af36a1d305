// Package chordv2 implements the alternative chord recognizer of spec.md
// §4.9: a standalone pre-queue that intercepts real-key presses before
// they reach the standard event queue, rather than living in the
// waiting-state slot the way the §4.4 chord-group mechanism does.
package chordv2

import (
	"github.com/keylayer/keylayer/action"
	"github.com/keylayer/keylayer/scancode"
)

// ReleaseBehaviour selects when an activated chord becomes eligible for
// its deferred release.
type ReleaseBehaviour uint8

const (
	OnFirstRelease ReleaseBehaviour = iota
	OnLastRelease
)

// ChordDef is one configured chord.
type ChordDef struct {
	Keys            []scancode.Code
	PendingDuration int
	DisabledLayers  []int
	Release         ReleaseBehaviour
	Action          action.Action
}

// Group is a compiled, queryable set of chord definitions.
type Group struct {
	defs    []*ChordDef
	byStart map[scancode.Code][]*ChordDef
}

// NewGroup compiles defs into a Group, indexing each candidate under every
// one of its participating keys, so tracking can start from whichever of
// them is pressed first.
func NewGroup(defs []ChordDef) *Group {
	g := &Group{byStart: map[scancode.Code][]*ChordDef{}}
	for i := range defs {
		d := defs[i]
		g.defs = append(g.defs, &d)
	}
	for _, d := range g.defs {
		for _, k := range d.Keys {
			g.byStart[k] = append(g.byStart[k], d)
		}
	}
	return g
}

func (g *Group) disabledOn(d *ChordDef, layer int) bool {
	for _, l := range d.DisabledLayers {
		if l == layer {
			return true
		}
	}
	return false
}

func (g *Group) startCandidates(code scancode.Code, layer int) []*ChordDef {
	var out []*ChordDef
	for _, d := range g.byStart[code] {
		if !g.disabledOn(d, layer) {
			out = append(out, d)
		}
	}
	return out
}

func isSuperset(keys []scancode.Code, accumulated []scancode.Code) bool {
	for _, a := range accumulated {
		found := false
		for _, k := range keys {
			if k == a {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func setEqual(a, b []scancode.Code) bool {
	return len(a) == len(b) && isSuperset(b, a) && isSuperset(a, b)
}

// MaxActiveChords bounds concurrently active chords, each needing its own
// virtual coordinate (spec.md §4.9).
const MaxActiveChords = 10

// Activation is emitted when a chord fires: the caller must dispatch Def's
// action at virtual position (scancode.RowReal, Coord).
type Activation struct {
	Def   *ChordDef
	Coord scancode.Code
}

// Retraction is emitted when an already-active chord is superseded by a
// longer one extending it (spec.md §8 scenario S6): the caller must tear
// down whatever state Coord's earlier Activation installed before honoring
// the accompanying Activation.
type Retraction struct {
	Coord scancode.Code
}

// DeferredRelease is emitted once an active chord's release-behaviour
// condition is satisfied: the caller must tear down the state Coord's
// Activation installed.
type DeferredRelease struct {
	Coord scancode.Code
}

type activeChord struct {
	def       *ChordDef
	coord     scancode.Code
	keys      []scancode.Code
	remaining map[scancode.Code]bool // OnLastRelease bookkeeping
	done      bool                   // release condition satisfied, awaiting DeferredRelease delivery
}

// Engine is the chord-v2 recognizer. The zero value is not usable; use
// NewEngine.
type Engine struct {
	group *Group

	cooldownTicks int
	cooldownLeft  int

	tracking    bool
	accumulated []scancode.Code
	candidates  []*ChordDef
	ticksSince  int

	active     []*activeChord
	freeCoords []scancode.Code
}

// NewEngine constructs an Engine over group, with cooldownTicks ticks of
// ignore-cooldown applied whenever chording fails to produce an
// activation (the "ticks-to-ignore-chord" timer of spec.md §4.9).
func NewEngine(group *Group, cooldownTicks int) *Engine {
	e := &Engine{group: group, cooldownTicks: cooldownTicks}
	for i := 0; i < MaxActiveChords; i++ {
		e.freeCoords = append(e.freeCoords, scancode.VirtualUserBase+scancode.Code(i))
	}
	return e
}

// InCooldown reports whether the engine is currently refusing to start new
// chord tracking.
func (e *Engine) InCooldown() bool { return e.cooldownLeft > 0 }

func (e *Engine) allocCoord() (scancode.Code, bool) {
	if len(e.freeCoords) == 0 {
		return 0, false
	}
	c := e.freeCoords[0]
	e.freeCoords = e.freeCoords[1:]
	return c, true
}

func (e *Engine) freeCoord(c scancode.Code) {
	e.freeCoords = append(e.freeCoords, c)
}

// ReplayEvent is one ordinary event the caller must feed back through its
// normal event queue after an in-progress chord candidate set became
// unreachable: the keys accumulated while tracking were consumed here and
// never reached the caller's queue, so they must be replayed now, in their
// original order, or they are silently lost (jtroo/kanata's keyberon
// reference, chord.rs's drain_inputs, drains its own internal queue back
// into the layout's input stream for the same reason). Release is true
// only for the trailing event of a release that itself triggered the
// failure (the key that was already physically released while still
// pending); every other replayed key is a bare press, since chordv2 has no
// record of whether an accumulated, still-tracked key has since been
// released other than the one that triggered this failure.
type ReplayEvent struct {
	Code    scancode.Code
	Release bool
}

// OnPress feeds one real-key press into the recognizer. consumed reports
// whether the recognizer claimed the event (it must not reach the normal
// event queue); if not consumed, the caller dispatches it normally.
// act and retract are non-nil only when this press causes an activation
// (possibly preceded by a retraction of a now-superseded shorter chord).
// replay is non-empty exactly when this press causes the in-progress
// candidate set to become unreachable: the caller must feed each
// ReplayEvent back through its normal event queue, in order.
func (e *Engine) OnPress(code scancode.Code, layer int) (consumed bool, retract *Retraction, act *Activation, replay []ReplayEvent) {
	if e.cooldownLeft > 0 {
		return false, nil, nil, nil
	}
	if !e.tracking {
		cands := e.group.startCandidates(code, layer)
		if len(cands) == 0 {
			return false, nil, nil, nil
		}
		e.tracking = true
		e.accumulated = []scancode.Code{code}
		e.candidates = cands
		e.ticksSince = 0
		retract, act = e.evaluate(layer, false)
		return true, retract, act, nil
	}

	e.accumulated = append(e.accumulated, code)
	var narrowed []*ChordDef
	for _, c := range e.candidates {
		if isSuperset(c.Keys, e.accumulated) {
			narrowed = append(narrowed, c)
		}
	}
	e.candidates = narrowed
	retract, act = e.evaluate(layer, false)
	if act == nil && len(e.candidates) == 0 && len(e.active) == 0 {
		// No live candidate remains and nothing has activated yet: the
		// accumulated combination can never fire. Enter cooldown and hand
		// the accumulated presses back for ordinary replay.
		replay = e.fail(nil)
	}
	return true, retract, act, replay
}

// evaluate applies the three activation priorities of spec.md §4.9 against
// the current accumulated set and candidate list, also checking whether
// any still-live candidate strictly extends an already-active chord
// (the "retract and extend" behavior of scenario S6).
func (e *Engine) evaluate(layer int, timeoutOrRelease bool) (*Retraction, *Activation) {
	// Extension check: a live candidate whose Keys are a strict superset
	// of an already-active chord's Keys, and which now exactly matches the
	// accumulated set, supersedes that active chord.
	for _, cand := range e.candidates {
		if !setEqual(e.accumulated, cand.Keys) {
			continue
		}
		for i, a := range e.active {
			if a.def == cand {
				continue
			}
			if len(cand.Keys) > len(a.keys) && isSuperset(cand.Keys, a.keys) {
				coord := a.coord
				e.active = append(e.active[:i], e.active[i+1:]...)
				e.freeCoord(coord)
				act := e.activate(cand)
				return &Retraction{Coord: coord}, act
			}
		}
	}

	// Priority 2: sole remaining candidate, all its keys present.
	if len(e.candidates) == 1 && setEqual(e.accumulated, e.candidates[0].Keys) {
		if !e.alreadyActive(e.candidates[0]) {
			return nil, e.activate(e.candidates[0])
		}
		return nil, nil
	}

	// Priority 1: any candidate whose pending_duration has elapsed and
	// which exactly matches the accumulated set.
	for _, c := range e.candidates {
		if e.ticksSince >= c.PendingDuration && setEqual(e.accumulated, c.Keys) && !e.alreadyActive(c) {
			return nil, e.activate(c)
		}
	}

	// Priority 3: only reachable from Tick/OnRelease (timeoutOrRelease).
	if timeoutOrRelease {
		for _, c := range e.candidates {
			if setEqual(e.accumulated, c.Keys) && !e.alreadyActive(c) {
				return nil, e.activate(c)
			}
		}
	}
	return nil, nil
}

func (e *Engine) alreadyActive(d *ChordDef) bool {
	for _, a := range e.active {
		if a.def == d {
			return true
		}
	}
	return false
}

func (e *Engine) activate(d *ChordDef) *Activation {
	coord, ok := e.allocCoord()
	if !ok {
		return nil
	}
	keys := append([]scancode.Code(nil), d.Keys...)
	rem := map[scancode.Code]bool{}
	for _, k := range keys {
		rem[k] = true
	}
	e.active = append(e.active, &activeChord{def: d, coord: coord, keys: keys, remaining: rem})
	return &Activation{Def: d, Coord: coord}
}

// fail abandons the in-progress tracking, entering the ignore-cooldown and
// returning the accumulated presses as ReplayEvents so the caller can feed
// them back as ordinary events instead of silently dropping them.
// releasedCode, if non-nil, is the code whose release triggered this
// failure (it has therefore already been both pressed and released); its
// ReplayEvent is appended last, after every other accumulated key's press.
func (e *Engine) fail(releasedCode *scancode.Code) []ReplayEvent {
	var replay []ReplayEvent
	for _, c := range e.accumulated {
		replay = append(replay, ReplayEvent{Code: c})
	}
	if releasedCode != nil {
		replay = append(replay, ReplayEvent{Code: *releasedCode, Release: true})
	}
	e.tracking = false
	e.accumulated = nil
	e.candidates = nil
	e.ticksSince = 0
	e.cooldownLeft = e.cooldownTicks
	return replay
}

// OnRelease feeds a real-key release into the recognizer. consumed reports
// whether code belonged to either the in-progress tracking or an active
// chord (and so was consumed here, not forwarded to the normal queue
// as-is). dr is non-nil exactly when an active chord's release condition
// is newly satisfied, in which case the caller must tear down the state at
// dr.Coord and then call Collect. replay is non-empty exactly when this
// release causes the in-progress candidate set to become unreachable; the
// caller must feed each ReplayEvent back through its normal event queue.
func (e *Engine) OnRelease(code scancode.Code, layer int) (consumed bool, dr *DeferredRelease, replay []ReplayEvent) {
	for _, a := range e.active {
		if !a.remaining[code] {
			continue
		}
		delete(a.remaining, code)
		switch a.def.Release {
		case OnFirstRelease:
			if !a.done {
				a.done = true
				return true, &DeferredRelease{Coord: a.coord}, nil
			}
		case OnLastRelease:
			if len(a.remaining) == 0 && !a.done {
				a.done = true
				return true, &DeferredRelease{Coord: a.coord}, nil
			}
		}
		return true, nil, nil
	}
	if e.tracking {
		for _, c := range e.accumulated {
			if c == code {
				_, act := e.evaluate(layer, true)
				if act == nil && len(e.active) == 0 {
					replay = e.fail(&code)
				}
				return true, nil, replay
			}
		}
	}
	return false, nil, nil
}

// Tick advances the pending_duration countdown and the ignore-cooldown.
// act is non-nil when a candidate's pending_duration elapses on this tick
// and it exactly matches the accumulated set (priority 1).
func (e *Engine) Tick() (act *Activation) {
	if e.cooldownLeft > 0 {
		e.cooldownLeft--
	}
	if !e.tracking {
		return nil
	}
	e.ticksSince++
	// Only priority 1 (pending_duration elapsed, exact match) is evaluated
	// on an ordinary tick; priority 3 ("on timeout or relevant release")
	// fires only from OnRelease, keeping the two timeout-like conditions
	// distinct (a per-candidate pending_duration vs. a release event).
	_, act = e.evaluate(0, false)
	return act
}

// Collect releases the coordinate of any active chord already marked done,
// removing it from the active set. Called by the layout driver after it
// has consumed the corresponding DeferredRelease.
func (e *Engine) Collect(coord scancode.Code) {
	for i, a := range e.active {
		if a.coord == coord && a.done {
			e.active = append(e.active[:i], e.active[i+1:]...)
			e.freeCoord(coord)
			if len(e.active) == 0 && len(e.candidates) == 0 {
				e.tracking = false
				e.accumulated = nil
			}
			return
		}
	}
}
