package engine

import (
	"sort"

	"github.com/keylayer/keylayer/action"
	"github.com/keylayer/keylayer/chordv2"
	"github.com/keylayer/keylayer/history"
	"github.com/keylayer/keylayer/keylog"
	"github.com/keylayer/keylayer/layout"
	"github.com/keylayer/keylayer/macro"
	"github.com/keylayer/keylayer/oneshot"
	"github.com/keylayer/keylayer/opcode"
	"github.com/keylayer/keylayer/scancode"
	"github.com/keylayer/keylayer/sequence"
)

// OutEvent is an emitted OS-facing keycode transition, derived every tick
// from the active-state bag's NormalKey/FakeKey union (spec.md §3
// invariant 5), never hand-emitted by individual dispatch code paths.
type OutEvent struct {
	Kind scancode.EventKind // Press or Release
	Code scancode.Code
}

// CustomEvent surfaces an action.Custom or sequence Custom step to the
// collaborator. Only one is ever returned per Tick.
type CustomEvent struct {
	Kind  scancode.EventKind // Press or Release
	Value uint32
}

type lastPressTracker struct {
	hasPos    bool
	pos       scancode.Position
	remaining int
}

// seqInstance is one active Sequence/RepeatableSequence replay.
type seqInstance struct {
	runner    *sequence.Runner
	origin    scancode.Position
	repeating bool
}

// Config wires an Engine's compiled collaborators. A nil Sequences or
// ChordV2 leaves that sub-engine disabled.
type Config struct {
	Store  *layout.Store
	Logger keylog.Logger

	MacroPressLimit int

	Sequences         *sequence.Trie
	SequenceMode      sequence.InputMode
	SequenceTimeout   int
	SequenceBacktrack bool

	ChordV2         *chordv2.Group
	ChordV2Cooldown int
}

// Engine is the layout driver of spec.md §4.1.
type Engine struct {
	store *layout.Store
	log   keylog.Logger

	queue   eventQueue
	actions actionQueue
	active  activeSet

	waiting *waitingState
	eager   *eagerTracker

	lastPress lastPressTracker

	oneshot oneshot.State
	history history.Rings
	macros  *macro.Engine

	seqMatcher *sequence.Engine
	activeSeqs []*seqInstance

	chordV2 *chordv2.Engine

	baseLayerOverride *int
	repeatable        action.Action

	prevEmitted map[scancode.Code]bool
}

// New constructs an Engine from cfg.
func New(cfg Config) *Engine {
	log := cfg.Logger
	if log == nil {
		log = keylog.NoOp
	}
	eng := &Engine{
		store:       cfg.Store,
		log:         log,
		macros:      macro.NewEngine(cfg.MacroPressLimit),
		prevEmitted: map[scancode.Code]bool{},
	}
	if cfg.Sequences != nil {
		eng.seqMatcher = sequence.NewEngine(cfg.Sequences, cfg.SequenceMode, cfg.SequenceTimeout, cfg.SequenceBacktrack)
	}
	if cfg.ChordV2 != nil {
		eng.chordV2 = chordv2.NewEngine(cfg.ChordV2, cfg.ChordV2Cooldown)
	}
	eng.macros.OnRecursionRefused(func(id uint32) {
		log.Warn("macro recursion refused", keylog.Int("id", int(id)))
	})
	return eng
}

func (eng *Engine) warn(msg string, fields ...keylog.Field) { eng.log.Warn(msg, fields...) }

func (eng *Engine) baseLayer() int {
	if eng.baseLayerOverride != nil {
		return *eng.baseLayerOverride
	}
	return eng.store.DefaultLayer()
}

// Event pushes a physical (row 0) or virtual (row 1) input event onto the
// engine. Chord-v2, when configured, intercepts row-0 events before they
// ever reach the standard queue (spec.md §4.9).
func (eng *Engine) Event(ev InputEvent) {
	if eng.chordV2 != nil && ev.Pos.Row == scancode.RowReal {
		layer := eng.active.currentLayer(eng.baseLayer())
		switch ev.Kind {
		case scancode.Press:
			consumed, retract, act, replay := eng.chordV2.OnPress(ev.Pos.Col, layer)
			if consumed {
				if retract != nil {
					eng.active.removeAtPosition(scancode.Position{Row: scancode.RowReal, Col: retract.Coord})
				}
				if act != nil {
					pos := scancode.Position{Row: scancode.RowReal, Col: act.Coord}
					if !eng.actions.push(pendingAction{Pos: pos, Action: act.Def.Action}) {
						eng.warn("action queue overflow", keylog.Int("max", MaxActionQueue))
					}
				}
				eng.replayChordV2(replay)
				return
			}
		case scancode.Release:
			consumed, dr, replay := eng.chordV2.OnRelease(ev.Pos.Col, layer)
			if consumed {
				if dr != nil {
					eng.active.removeAtPosition(scancode.Position{Row: scancode.RowReal, Col: dr.Coord})
					eng.chordV2.Collect(dr.Coord)
				}
				eng.replayChordV2(replay)
				return
			}
		}
	}

	if len(eng.queue.items) >= MaxEventQueue {
		eng.warn("event queue overflow", keylog.Int("max", MaxEventQueue))
		if eng.waiting != nil {
			eng.forceWaitingHold()
		}
		if old, ok := eng.queue.pop(); ok {
			eng.handleDequeuedEvent(old)
		}
	}
	eng.queue.push(ev)
}

// forceWaitingHold collapses the current waiting state to its hold-like
// resolution, used only on event-queue overflow (spec.md §4.1 "event").
// Tap-dance and chord waits have no real "hold" branch; they fall back to
// the same best-effort tap resolution collapseWaitingToTap uses.
func (eng *Engine) forceWaitingHold() {
	w := eng.waiting
	eng.waiting = nil
	var act action.Action
	switch w.kind {
	case waitHoldTap:
		act = w.ht.Hold
	case waitTapDanceLazy:
		act = w.td.Actions[clampCount(w.tapCount, len(w.td.Actions))-1]
	case waitChord:
		if a, ok := w.chordDef.Mapping[w.chordActive]; ok {
			act = a
		}
	}
	if act != nil {
		eng.doAction(w.coord, act, 0, false, true)
	}
}

func clampCount(count, max int) int {
	if count < 1 {
		count = 1
	}
	if count > max {
		count = max
	}
	return count
}

// Tick advances the engine by one millisecond-equivalent step, per the
// seven ordered actions of spec.md §4.1.
func (eng *Engine) Tick() ([]OutEvent, *CustomEvent) {
	if p, ok := eng.actions.pop(); ok {
		custom := eng.doAction(p.Pos, p.Action, 0, false, true)
		return eng.finish(custom)
	}

	eng.active.sweepTombstones()
	eng.queue.tick()
	if eng.lastPress.hasPos && eng.lastPress.remaining > 0 {
		eng.lastPress.remaining--
	}
	if eng.eager != nil && eng.eager.tick() {
		eng.eager = nil
	}
	releaseCustom := eng.releaseActiveSeqCustoms()
	pressCustom := eng.promotePendingSeqCustoms()

	eng.tickSequenceRunners()
	if eng.seqMatcher != nil {
		if timedOut, buffered := eng.seqMatcher.Tick(); timedOut {
			eng.replayBuffered(buffered)
		}
	}
	if eng.chordV2 != nil {
		if act := eng.chordV2.Tick(); act != nil {
			pos := scancode.Position{Row: scancode.RowReal, Col: act.Coord}
			if !eng.actions.push(pendingAction{Pos: pos, Action: act.Def.Action}) {
				eng.warn("action queue overflow", keylog.Int("max", MaxActionQueue))
			}
		}
	}
	if out, ok := eng.macros.Tick(); ok {
		switch out.Kind {
		case scancode.Press:
			eng.history.RecordKey(out.Code)
			if !eng.active.push(ActiveEntry{Kind: KindFakeKey, Keycode: out.Code}) {
				eng.warn("active state overflow", keylog.Int("max", MaxActiveState))
			}
		case scancode.Release:
			eng.removeFakeKey(out.Code)
		}
	}
	eng.history.Tick()

	if releases, ended := eng.oneshot.Tick(); ended {
		for _, p := range releases {
			eng.queue.pushFront(InputEvent{Kind: scancode.Release, Pos: p})
		}
	}

	if eng.waiting != nil {
		res := eng.waiting.tick(&eng.queue)
		if res.kind != resNone {
			w := eng.waiting
			eng.waiting = nil
			var custom *CustomEvent
			if res.action != nil {
				custom = eng.doAction(w.coord, res.action, 0, false, true)
			}
			for _, extra := range res.extra {
				if !eng.actions.push(extra) {
					eng.warn("action queue overflow", keylog.Int("max", MaxActionQueue))
				}
			}
			return eng.finish(combineCustom(custom, releaseCustom, pressCustom))
		}
		return eng.finish(combineCustom(nil, releaseCustom, pressCustom))
	}

	if q, ok := eng.queue.pop(); ok {
		custom := eng.handleDequeuedEvent(q)
		return eng.finish(combineCustom(custom, releaseCustom, pressCustom))
	}

	return eng.finish(combineCustom(nil, releaseCustom, pressCustom))
}

func combineCustom(candidates ...*CustomEvent) *CustomEvent {
	for _, c := range candidates {
		if c != nil {
			return c
		}
	}
	return nil
}

// handleDequeuedEvent implements spec.md §4.1 step 6.
func (eng *Engine) handleDequeuedEvent(q Queued) *CustomEvent {
	ev := q.Event
	if ev.Kind == scancode.Release {
		if !eng.oneshot.OnRelease(ev.Pos) {
			return nil
		}
		if custom := eng.active.removeAtPosition(ev.Pos); custom != nil {
			return &CustomEvent{Kind: scancode.Release, Value: custom.CustomValue}
		}
		return nil
	}

	if eng.eager != nil && ev.Pos.Row == scancode.RowReal {
		if ev.Pos == eng.eager.coord {
			return eng.dispatchEagerTap(ev.Pos, q.Since)
		}
		eng.eager = nil
	}

	if eng.oneshot.Active() && eng.oneshot.IsLatched(ev.Pos) {
		eng.oneshot.OnPressLatched(ev.Pos)
	}

	layer := eng.active.currentLayer(eng.baseLayer())
	act := eng.store.Resolve(layer, ev.Pos.Row, ev.Pos.Col)
	if _, isNoOp := act.(action.NoOp); isNoOp && eng.oneshot.Active() {
		eng.oneshot.OnPressOther(ev.Pos)
	}
	return eng.doAction(ev.Pos, act, q.Since, false, true)
}

// dispatchEagerTap handles a repeat press at an eager tap-dance's own
// position (spec.md §4.3 "Eager"): increments the counter and fires the
// corresponding action immediately, resetting the tracker's countdown.
func (eng *Engine) dispatchEagerTap(pos scancode.Position, delay int) *CustomEvent {
	e := eng.eager
	e.counter++
	idx := e.counter
	if idx >= len(e.td.Actions) {
		idx = len(e.td.Actions) - 1
	}
	e.timeout = e.td.Timeout
	return eng.doAction(pos, e.td.Actions[idx], delay, false, false)
}

func (eng *Engine) tickSequenceRunners() {
	if len(eng.activeSeqs) == 0 {
		return
	}
	alive := eng.activeSeqs[:0]
	for _, si := range eng.activeSeqs {
		out := si.runner.Tick()
		switch out.Kind {
		case sequence.OutPress:
			eng.history.RecordKey(out.Code)
			if !eng.active.push(ActiveEntry{Kind: KindFakeKey, Keycode: out.Code}) {
				eng.warn("active state overflow", keylog.Int("max", MaxActiveState))
			}
		case sequence.OutRelease:
			eng.removeFakeKey(out.Code)
		case sequence.OutCustom:
			eng.active.push(ActiveEntry{Kind: KindSeqCustomPending, CustomValue: out.CustomValue})
		case sequence.OutComplete:
			eng.releaseAllFakeKeys()
		}

		if si.runner.Done() {
			if si.repeating && eng.repeatingStillHeld(si) {
				si.runner.Restart()
				alive = append(alive, si)
			}
			continue
		}
		alive = append(alive, si)
	}
	eng.activeSeqs = alive
}

func (eng *Engine) removeFakeKey(code scancode.Code) {
	for i := range eng.active.entries {
		e := &eng.active.entries[i]
		if e.Kind == KindFakeKey && e.Keycode == code {
			e.Kind = KindTombstone
			return
		}
	}
}

func (eng *Engine) releaseAllFakeKeys() {
	for i := range eng.active.entries {
		if eng.active.entries[i].Kind == KindFakeKey {
			eng.active.entries[i].Kind = KindTombstone
		}
	}
}

func (eng *Engine) repeatingStillHeld(si *seqInstance) bool {
	for _, e := range eng.active.entries {
		if e.Kind == KindRepeatingSequence && e.Runner == si.runner {
			return true
		}
	}
	return false
}

func (eng *Engine) releaseActiveSeqCustoms() *CustomEvent {
	for i := range eng.active.entries {
		e := &eng.active.entries[i]
		if e.Kind == KindSeqCustomActive {
			v := e.CustomValue
			e.Kind = KindTombstone
			return &CustomEvent{Kind: scancode.Release, Value: v}
		}
	}
	return nil
}

func (eng *Engine) promotePendingSeqCustoms() *CustomEvent {
	for i := range eng.active.entries {
		e := &eng.active.entries[i]
		if e.Kind == KindSeqCustomPending {
			e.Kind = KindSeqCustomActive
			return &CustomEvent{Kind: scancode.Press, Value: e.CustomValue}
		}
	}
	return nil
}

// replayChordV2 re-injects an unreachable chord-v2 candidate's accumulated
// presses (and, if present, the trailing release that triggered the
// failure) as ordinary events at the front of the queue, in their original
// order: chord-v2 consumed these before they ever reached eng.queue, so
// without this they would be silently dropped instead of typed normally.
func (eng *Engine) replayChordV2(events []chordv2.ReplayEvent) {
	for i := len(events) - 1; i >= 0; i-- {
		e := events[i]
		kind := scancode.Press
		if e.Release {
			kind = scancode.Release
		}
		eng.queue.pushFront(InputEvent{Kind: kind, Pos: scancode.Position{Row: scancode.RowReal, Col: e.Code}})
	}
}

// replayBuffered re-injects each originally-typed key as a full tap (press
// immediately followed by release): the sequence matcher's raw buffer only
// retains the pressed codes, not their original release timing, so exact
// release timing cannot be reconstructed (spec.md §4.6 HiddenDelayType).
func (eng *Engine) replayBuffered(codes []scancode.Code) {
	events := make([]InputEvent, 0, len(codes)*2)
	for _, c := range codes {
		pos := scancode.Position{Row: scancode.RowReal, Col: c}
		events = append(events, InputEvent{Kind: scancode.Press, Pos: pos}, InputEvent{Kind: scancode.Release, Pos: pos})
	}
	for i := len(events) - 1; i >= 0; i-- {
		eng.queue.pushFront(events[i])
	}
}

// finish computes this tick's emitted-keycode diff against the active-state
// bag (spec.md §3 invariant 5), feeds newly emitted presses/releases to the
// sequence matcher (which "observes emitted key events", not raw input),
// and returns the diff alongside whichever custom event takes priority.
func (eng *Engine) finish(custom *CustomEvent) ([]OutEvent, *CustomEvent) {
	curSet := map[scancode.Code]bool{}
	for _, c := range eng.active.emittedKeycodes() {
		curSet[c] = true
	}

	var mask scancode.ModMask
	for c := range curSet {
		mask |= scancode.MaskFor(c)
	}

	var pressed, released []scancode.Code
	for c := range curSet {
		if !eng.prevEmitted[c] {
			pressed = append(pressed, c)
		}
	}
	for c := range eng.prevEmitted {
		if !curSet[c] {
			released = append(released, c)
		}
	}
	sort.Slice(pressed, func(i, j int) bool { return pressed[i] < pressed[j] })
	sort.Slice(released, func(i, j int) bool { return released[i] < released[j] })

	out := make([]OutEvent, 0, len(pressed)+len(released))
	for _, c := range released {
		out = append(out, OutEvent{Kind: scancode.Release, Code: c})
	}
	for _, c := range pressed {
		out = append(out, OutEvent{Kind: scancode.Press, Code: c})
	}

	eng.prevEmitted = curSet

	if _, recording := eng.macros.Recording(); recording {
		for _, c := range released {
			eng.macros.RecordRelease(c)
		}
		for _, c := range pressed {
			eng.macros.RecordPress(c)
		}
	}

	if eng.seqMatcher != nil {
		for _, c := range released {
			eng.seqMatcher.OnRelease(c)
		}
		for _, c := range pressed {
			outcome := eng.seqMatcher.OnPress(scancode.Canonical(c), mask)
			switch {
			case outcome.Matched:
				pos := scancode.Position{Row: outcome.Payload.Row, Col: outcome.Payload.Col}
				// Literal "release-then-press" dispatch order (spec.md §4.6):
				// pushed in reverse so the queue ends up Release-then-Press.
				eng.queue.pushFront(InputEvent{Kind: scancode.Press, Pos: pos})
				eng.queue.pushFront(InputEvent{Kind: scancode.Release, Pos: pos})
			case outcome.Aborted && outcome.ReplayBuffered != nil:
				eng.replayBuffered(outcome.ReplayBuffered)
			}
		}
	}

	return out, custom
}

func installsWaiting(act action.Action) bool {
	switch act.(type) {
	case action.HoldTap, action.TapDance, action.Chords:
		return true
	}
	return false
}

// collapseWaitingToTap resolves the current waiting state to its tap-like
// branch, used when a new tap-hold/tap-dance/chord action is about to
// overwrite the slot (spec.md §4.1.1 cleanup rule). A chord with no mapping
// for its accumulated bitmask is simply dropped rather than decomposed:
// full decomposition is reserved for the chord's own tick/abort path.
func (eng *Engine) collapseWaitingToTap() {
	w := eng.waiting
	eng.waiting = nil
	var act action.Action
	switch w.kind {
	case waitHoldTap:
		act = w.ht.Tap
	case waitTapDanceLazy:
		act = w.td.Actions[clampCount(w.tapCount, len(w.td.Actions))-1]
	case waitChord:
		if a, ok := w.chordDef.Mapping[w.chordActive]; ok {
			act = a
		}
	}
	if act != nil {
		eng.doAction(w.coord, act, 0, false, true)
	}
}

func (eng *Engine) opcodeContext(layer int) opcode.Context {
	held := eng.active.heldKeys()
	heldPos := eng.active.heldPositions()
	return opcode.Context{
		HeldKey:   func(c scancode.Code) bool { return held[c] },
		HeldPos:   func(p scancode.Position) bool { return heldPos[p] },
		Layer:     layer,
		BaseLayer: eng.baseLayer(),
		HistKey:   eng.history.Keys.At,
		HistPos:   eng.history.Positions.At,
	}
}

// doAction implements spec.md §4.1.1. recordRepeat is false for recursive
// calls that must not overwrite the outer action's repeatable recording
// (Fork's chosen branch, a tap-hold-interval's immediate tap, OneShot's
// inner action, Repeat's re-dispatch).
func (eng *Engine) doAction(pos scancode.Position, act action.Action, delay int, isOneshot, recordRepeat bool) *CustomEvent {
	if eng.waiting != nil && installsWaiting(act) {
		eng.collapseWaitingToTap()
	}
	eng.active.purgeClearOnNextAction()
	layer := eng.active.currentLayer(eng.baseLayer())

	switch a := act.(type) {
	case action.NoOp:
		return nil
	case action.Trans:
		return nil

	case action.KeyCode:
		if recordRepeat {
			eng.repeatable = act
		}
		eng.history.RecordKey(a.Code)
		eng.history.RecordPosition(pos)
		if !eng.active.push(ActiveEntry{Kind: KindNormalKey, Keycode: a.Code, Layer: layer, Origin: pos, HasOrigin: true}) {
			eng.warn("active state overflow", keylog.Int("max", MaxActiveState))
		}
		if !isOneshot && eng.oneshot.Active() {
			eng.oneshot.OnPressOther(pos)
		}
		return nil

	case action.MultipleKeyCodes:
		if recordRepeat {
			eng.repeatable = act
		}
		clear := !isOneshot
		eng.history.RecordPosition(pos)
		for _, c := range a.Codes {
			eng.history.RecordKey(c)
			if !eng.active.push(ActiveEntry{Kind: KindNormalKey, Keycode: c, Layer: layer, Origin: pos, HasOrigin: true, ClearOnNextAction: clear}) {
				eng.warn("active state overflow", keylog.Int("max", MaxActiveState))
			}
		}
		if !isOneshot && eng.oneshot.Active() {
			eng.oneshot.OnPressOther(pos)
		}
		return nil

	case action.MultipleActions:
		if recordRepeat {
			eng.repeatable = act
		}
		for _, sub := range a.Actions {
			if !eng.actions.push(pendingAction{Pos: pos, Action: sub}) {
				eng.warn("action queue overflow", keylog.Int("max", MaxActionQueue))
			}
		}
		return nil

	case action.Layer:
		eng.active.push(ActiveEntry{Kind: KindLayerModifier, Layer: a.N, Origin: pos, HasOrigin: true})
		return nil

	case action.DefaultLayer:
		n := a.N
		eng.baseLayerOverride = &n
		return nil

	case action.HoldTap:
		if recordRepeat {
			eng.repeatable = act
		}
		if a.TapHoldInterval > 0 && eng.lastPress.hasPos && eng.lastPress.pos == pos && eng.lastPress.remaining > 0 {
			eng.lastPress = lastPressTracker{hasPos: true, pos: pos, remaining: a.TapHoldInterval}
			return eng.doAction(pos, a.Tap, delay, isOneshot, false)
		}
		eng.waiting = &waitingState{kind: waitHoldTap, coord: pos, timeout: a.Timeout, delay: delay, ht: &a}
		eng.lastPress = lastPressTracker{hasPos: true, pos: pos, remaining: a.TapHoldInterval}
		return nil

	case action.TapDance:
		if recordRepeat {
			eng.repeatable = act
		}
		if a.Policy == action.TapDanceEager {
			eng.eager = &eagerTracker{coord: pos, td: &a, timeout: a.Timeout}
			return eng.doAction(pos, a.Actions[0], delay, isOneshot, false)
		}
		eng.waiting = &waitingState{kind: waitTapDanceLazy, coord: pos, timeout: a.Timeout, delay: delay, td: &a, tapCount: 1}
		return nil

	case action.Chords:
		if recordRepeat {
			eng.repeatable = act
		}
		w := &waitingState{kind: waitChord, coord: pos, timeout: a.Group.Timeout, delay: delay, chordDef: a.Group}
		if bit, ok := positionBit(a.Group.Positions, pos); ok {
			w.chordActive = bit
		}
		eng.waiting = w
		return nil

	case action.OneShot:
		if recordRepeat {
			eng.repeatable = act
		}
		custom := eng.doAction(pos, a.Inner, delay, true, false)
		evicted, had := eng.oneshot.Activate(pos, a.Timeout, a.EndPolicy)
		if had {
			eng.queue.pushFront(InputEvent{Kind: scancode.Release, Pos: evicted})
		}
		return custom

	case action.Sequence:
		if recordRepeat {
			eng.repeatable = act
		}
		eng.activeSeqs = append(eng.activeSeqs, &seqInstance{runner: sequence.NewRunner(a.Events), origin: pos})
		return nil

	case action.RepeatableSequence:
		if recordRepeat {
			eng.repeatable = act
		}
		runner := sequence.NewRunner(a.Events)
		eng.activeSeqs = append(eng.activeSeqs, &seqInstance{runner: runner, origin: pos, repeating: true})
		eng.active.push(ActiveEntry{Kind: KindRepeatingSequence, Origin: pos, HasOrigin: true, Runner: runner})
		return nil

	case action.CancelSequences:
		eng.activeSeqs = nil
		eng.releaseAllFakeKeys()
		return nil

	case action.Repeat:
		if eng.repeatable != nil {
			return eng.doAction(pos, eng.repeatable, delay, isOneshot, false)
		}
		return nil

	case action.Fork:
		eng.repeatable = act
		held := eng.active.heldKeys()
		branch := a.Left
		for _, t := range a.RightTriggers {
			if held[t] {
				branch = a.Right
				break
			}
		}
		return eng.doAction(pos, branch, delay, isOneshot, false)

	case action.Switch:
		if recordRepeat {
			eng.repeatable = act
		}
		ctx := eng.opcodeContext(layer)
		for _, c := range a.Cases {
			ok, err := opcode.Eval(c.Opcodes, ctx)
			if err != nil {
				eng.warn("switch opcode evaluation failed", keylog.Str("error", err.Error()))
				continue
			}
			if !ok {
				continue
			}
			if !eng.actions.push(pendingAction{Pos: pos, Action: c.Action}) {
				eng.warn("action queue overflow", keylog.Int("max", MaxActionQueue))
			}
			if c.Termination == action.Break {
				break
			}
		}
		return nil

	case action.ReleaseState:
		switch a.Kind {
		case action.ReleaseKeyCode:
			for i := range eng.active.entries {
				e := &eng.active.entries[i]
				if e.Kind == KindNormalKey && e.Keycode == a.Code {
					e.Kind = KindTombstone
					break
				}
			}
		case action.ReleaseLayer:
			for i := range eng.active.entries {
				e := &eng.active.entries[i]
				if e.Kind == KindLayerModifier && e.Layer == a.LayerN {
					e.Kind = KindTombstone
					break
				}
			}
		}
		return nil

	case action.Custom:
		if recordRepeat {
			eng.repeatable = act
		}
		eng.active.push(ActiveEntry{Kind: KindCustom, CustomValue: a.Value, Origin: pos, HasOrigin: true})
		return &CustomEvent{Kind: scancode.Press, Value: a.Value}

	case action.RecordMacro:
		eng.macros.ToggleRecord(a.ID)
		return nil

	case action.StopMacro:
		eng.macros.StopRecord()
		return nil

	case action.PlayMacro:
		if _, recording := eng.macros.Recording(); recording {
			eng.macros.RecordNestedPlay(a.ID)
		}
		eng.macros.Play(a.ID)
		return nil
	}
	return nil
}
