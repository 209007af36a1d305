// Package macro implements the dynamic macro record/replay engine
// (spec.md §4.7): record live input between two RecordMacro actions,
// replay it on PlayMacro, with a saturating press limit and recursion
// guard. It is independent of the configured Sequence trie (package
// sequence), which matches fixed, pre-compiled patterns rather than
// ad-hoc user recordings.
package macro

import "github.com/keylayer/keylayer/scancode"

// ItemKind classifies one step of a recorded macro.
type ItemKind uint8

const (
	ItemPress ItemKind = iota
	ItemRelease
	ItemDelay
	// ItemPlay records that, during this recording, another macro was
	// invoked by the user (composition); replaying it recurses into that
	// macro's own item list, subject to the recursion guard.
	ItemPlay
)

// Item is one recorded step.
type Item struct {
	Kind    ItemKind
	Code    scancode.Code
	Delay   int
	MacroID uint32
}

// Out is a synthesized event the engine must inject, produced by Tick.
type Out struct {
	Kind scancode.EventKind // Press or Release
	Code scancode.Code
}

// DefaultPressLimitMultiple is the conventional multiple of a "max presses"
// bound for the per-recording press ceiling. Nothing in this package
// applies it: NewEngine takes the final ceiling directly.
const DefaultPressLimitMultiple = 2

// Engine owns all recorded macros plus at most one active recording and a
// stack of in-progress replays (a stack so that a composed ItemPlay can
// recurse into a nested macro's items without losing the outer replay's
// position).
type Engine struct {
	macros     map[uint32][]Item
	rec        *recording
	stack      []frame
	active     map[uint32]bool
	pressLimit int

	onRecursionRefused func(id uint32)
}

type recording struct {
	id         uint32
	items      []Item
	pressed    []scancode.Code // currently-down keys, in press order
	pressCount int
}

type frame struct {
	id    uint32
	items []Item
	idx   int
	delay int
}

// NewEngine constructs a macro engine. pressLimit <= 0 disables the
// saturating limit (not recommended in production, only for tests).
func NewEngine(pressLimit int) *Engine {
	return &Engine{
		macros:     map[uint32][]Item{},
		active:     map[uint32]bool{},
		pressLimit: pressLimit,
	}
}

// Recording reports whether a recording is in progress, and under which id.
func (e *Engine) Recording() (id uint32, ok bool) {
	if e.rec == nil {
		return 0, false
	}
	return e.rec.id, true
}

// ToggleRecord implements the RecordMacro(id) action (spec.md §4.7).
//
// If nothing is recording, starts recording under id. If already recording
// under id, saves and stops. If already recording under a different id,
// saves the current recording and starts a new one under id.
//
// The physical keypress that dispatches RecordMacro itself is never passed
// to RecordPress/RecordRelease by the caller (the engine special-cases the
// RecordMacro/StopMacro/PlayMacro actions rather than routing them through
// the generic "record any key" hook), so the saved buffer never needs its
// own trailing trigger press stripped out after the fact.
func (e *Engine) ToggleRecord(id uint32) {
	if e.rec == nil {
		e.rec = &recording{id: id}
		return
	}
	if e.rec.id == id {
		e.saveRecording()
		return
	}
	e.saveRecording()
	e.rec = &recording{id: id}
}

// StopRecord implements the StopMacro action.
func (e *Engine) StopRecord() {
	if e.rec != nil {
		e.saveRecording()
	}
}

func (e *Engine) saveRecording() {
	r := e.rec
	e.rec = nil
	for _, c := range r.pressed {
		r.items = append(r.items, Item{Kind: ItemRelease, Code: c})
	}
	e.macros[r.id] = r.items
}

// RecordPress feeds a real key press into the in-progress recording, if
// any. Returns true if a runaway-recording auto-stop was triggered.
func (e *Engine) RecordPress(c scancode.Code) (autoStopped bool) {
	if e.rec == nil {
		return false
	}
	e.rec.items = append(e.rec.items, Item{Kind: ItemPress, Code: c})
	e.rec.pressed = append(e.rec.pressed, c)
	e.rec.pressCount++
	if e.pressLimit > 0 && e.rec.pressCount >= e.pressLimit {
		e.saveRecording()
		return true
	}
	return false
}

// RecordRelease feeds a real key release into the in-progress recording,
// if any.
func (e *Engine) RecordRelease(c scancode.Code) {
	if e.rec == nil {
		return
	}
	e.rec.items = append(e.rec.items, Item{Kind: ItemRelease, Code: c})
	for i, p := range e.rec.pressed {
		if p == c {
			e.rec.pressed = append(e.rec.pressed[:i], e.rec.pressed[i+1:]...)
			break
		}
	}
}

// RecordNestedPlay records that, mid-recording, the user invoked another
// macro (composition), so replaying this recording will recurse into it.
func (e *Engine) RecordNestedPlay(id uint32) {
	if e.rec == nil {
		return
	}
	e.rec.items = append(e.rec.items, Item{Kind: ItemPlay, MacroID: id})
}

// OnRecursionRefused registers a callback invoked whenever Play or a nested
// ItemPlay is refused because the target macro is already active.
func (e *Engine) OnRecursionRefused(f func(id uint32)) { e.onRecursionRefused = f }

// Play implements the PlayMacro(id) action: begins replay of the recorded
// macro id, unless id is already actively replaying (recursion guard,
// spec.md §7/§8 property 7), in which case it is a silent no-op (refused
// and logged by the caller via OnRecursionRefused).
func (e *Engine) Play(id uint32) (started bool) {
	items, ok := e.macros[id]
	if !ok {
		return false
	}
	if e.active[id] {
		if e.onRecursionRefused != nil {
			e.onRecursionRefused(id)
		}
		return false
	}
	e.pushFrame(id, items)
	return true
}

func (e *Engine) pushFrame(id uint32, items []Item) {
	e.active[id] = true
	e.stack = append(e.stack, frame{id: id, items: items})
}

// Replaying reports whether any macro is currently replaying.
func (e *Engine) Replaying() bool { return len(e.stack) > 0 }

// Tick advances replay by exactly one item-budget, matching the rest of
// the engine's one-thing-per-tick discipline. It returns at most one
// synthesized event to inject.
func (e *Engine) Tick() (out Out, ok bool) {
	for len(e.stack) > 0 {
		top := &e.stack[len(e.stack)-1]
		if top.delay > 0 {
			top.delay--
			return Out{}, false
		}
		if top.idx >= len(top.items) {
			delete(e.active, top.id)
			e.stack = e.stack[:len(e.stack)-1]
			continue
		}
		item := top.items[top.idx]
		top.idx++
		switch item.Kind {
		case ItemPress:
			return Out{Kind: scancode.Press, Code: item.Code}, true
		case ItemRelease:
			return Out{Kind: scancode.Release, Code: item.Code}, true
		case ItemDelay:
			top.delay = item.Delay
			return Out{}, false
		case ItemPlay:
			nested, exists := e.macros[item.MacroID]
			if !exists {
				continue
			}
			if e.active[item.MacroID] {
				if e.onRecursionRefused != nil {
					e.onRecursionRefused(item.MacroID)
				}
				continue
			}
			e.pushFrame(item.MacroID, nested)
			continue
		}
	}
	return Out{}, false
}

// Saved returns the recorded item list for id, if any (for tests and
// inspection tooling).
func (e *Engine) Saved(id uint32) ([]Item, bool) {
	items, ok := e.macros[id]
	return items, ok
}
