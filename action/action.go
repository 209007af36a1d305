// Package action defines the tagged union of Actions a compiled layout
// assigns to a position, per spec.md §3, plus the small set of supporting
// value types (Position, Case, Decision policies) shared by the engine and
// its sub-engines.
package action

import "github.com/keylayer/keylayer/scancode"

// Position is the address of a physical or virtual key: row 0 is real
// input, row 1 is virtual (synthesized) input.
type Position = scancode.Position

// Action is the sealed tagged union of everything a layout cell can hold.
// Concrete implementations are the exported structs below, one per variant; the
// interface exists purely to let layout.Store hold them uniformly.
type Action interface {
	isAction()
}

// NoOp emits nothing and blocks transparency at this cell.
type NoOp struct{}

func (NoOp) isAction() {}

// Trans defers to the default layer at the same position.
type Trans struct{}

func (Trans) isAction() {}

// KeyCode presses k while the physical key is held.
type KeyCode struct {
	Code scancode.Code
}

func (KeyCode) isAction() {}

// MultipleKeyCodes presses every code in Codes; each is tagged
// clear-on-next-action so a following action releases them.
type MultipleKeyCodes struct {
	Codes []scancode.Code
}

func (MultipleKeyCodes) isAction() {}

// MultipleActions executes each action in order, at the same position.
type MultipleActions struct {
	Actions []Action
}

func (MultipleActions) isAction() {}

// Layer pushes layer N on the active-layers stack while held.
type Layer struct {
	N int
}

func (Layer) isAction() {}

// DefaultLayer replaces the base layer.
type DefaultLayer struct {
	N int
}

func (DefaultLayer) isAction() {}

// HoldTapPolicy selects how a HoldTap action arbitrates between its tap and
// hold resolutions.
type HoldTapPolicy uint8

const (
	// PolicyDefault resolves to Tap on a same-position release within
	// Timeout, else to TimeoutAction once Timeout elapses.
	PolicyDefault HoldTapPolicy = iota
	// PolicyHoldOnOtherKeyPress additionally resolves to Hold as soon as
	// any other press is observed while pending.
	PolicyHoldOnOtherKeyPress
	// PolicyPermissiveHold additionally resolves to Hold once some other
	// key is observed to have been pressed and released while pending.
	PolicyPermissiveHold
	// PolicyCustom delegates to a caller-supplied decision function.
	PolicyCustom
)

// CustomDecision is the verdict returned by a PolicyCustom function: either
// a forced resolution, or "not yet" (optionally skipping the timeout check
// for this tick).
type CustomDecision struct {
	Resolved     bool
	Decision     HoldTapResolution
	SkipTimeout  bool
}

// HoldTapResolution names which of HoldTap's three branches fired.
type HoldTapResolution uint8

const (
	ResolutionNone HoldTapResolution = iota
	ResolutionTap
	ResolutionHold
	ResolutionTimeout
)

// QueuedEventView is the read-only view of the event queue a PolicyCustom
// function may inspect, mirroring what the tap-hold tick handler itself
// sees.
type QueuedEventView struct {
	Pos   Position
	Kind  scancode.EventKind
	Since int // ticks elapsed since this event was enqueued
}

// CustomPolicyFunc is a pure inspection of the currently queued events.
type CustomPolicyFunc func(queue []QueuedEventView) CustomDecision

// HoldTap installs a waiting state that arbitrates between Tap and Hold.
type HoldTap struct {
	Timeout         int
	Hold            Action
	Tap             Action
	TimeoutAction   Action
	Policy          HoldTapPolicy
	Custom          CustomPolicyFunc // only consulted when Policy == PolicyCustom
	TapHoldInterval int
}

func (HoldTap) isAction() {}

// TapDancePolicy selects lazy or eager tap-dance resolution.
type TapDancePolicy uint8

const (
	TapDanceLazy TapDancePolicy = iota
	TapDanceEager
)

// TapDance groups N actions keyed by consecutive-tap count.
type TapDance struct {
	Timeout int
	Actions []Action
	Policy  TapDancePolicy
}

func (TapDance) isAction() {}

// ChordGroup is an immutable, compiled chord table: a mapping from a
// participating-key bitmask to the action it resolves to.
type ChordGroup struct {
	// Positions enumerates the chord-group's member positions; bit i of a
	// mask corresponds to Positions[i].
	Positions []Position
	// Mapping maps an exact participating-key bitmask to its action. Not
	// every bitmask need be present: an absent mask has no direct action
	// and must be decomposed (spec.md §4.4.1).
	Mapping map[uint64]Action
	Timeout int
}

// Chords installs a chord waiting state keyed by Group.
type Chords struct {
	Group *ChordGroup
}

func (Chords) isAction() {}

// OneShotEndPolicy selects when a one-shot latch releases.
type OneShotEndPolicy uint8

const (
	OneShotFirstPress OneShotEndPolicy = iota
	OneShotFirstRelease
	OneShotFirstPressOrRepress
	OneShotFirstReleaseOrRepress
)

// OneShot executes Inner and latches it active until a qualifying
// subsequent event.
type OneShot struct {
	Timeout    int
	Inner      Action
	EndPolicy  OneShotEndPolicy
}

func (OneShot) isAction() {}

// SeqEventKind classifies one step of a recorded Sequence/macro.
type SeqEventKind uint8

const (
	SeqPress SeqEventKind = iota
	SeqRelease
	SeqTap
	SeqDelay
	SeqComplete
	SeqCustom
)

// SeqEvent is one step of a Sequence, RepeatableSequence, or recorded
// dynamic macro.
type SeqEvent struct {
	Kind  SeqEventKind
	Code  scancode.Code // for Press/Release/Tap
	Delay int           // for Delay
	Value uint32        // for Custom
}

// Sequence enqueues a synthetic press/release/tap/delay sequence.
type Sequence struct {
	Events []SeqEvent
}

func (Sequence) isAction() {}

// RepeatableSequence behaves like Sequence but re-fires while its
// originating physical key remains held.
type RepeatableSequence struct {
	Events []SeqEvent
}

func (RepeatableSequence) isAction() {}

// CancelSequences aborts all in-flight sequences and releases their
// synthetic (FakeKey) holds.
type CancelSequences struct{}

func (CancelSequences) isAction() {}

// Repeat re-executes the most recently executed "repeatable" action.
type Repeat struct{}

func (Repeat) isAction() {}

// Fork dispatches Right if any currently-held keycode is in RightTriggers,
// else Left.
type Fork struct {
	Left          Action
	Right         Action
	RightTriggers []scancode.Code
}

func (Fork) isAction() {}

// CaseTermination controls whether Switch evaluation continues past a
// matched case.
type CaseTermination uint8

const (
	Break CaseTermination = iota
	Fallthrough
)

// Case is one guarded branch of a Switch.
type Case struct {
	Opcodes     []uint16
	Action      Action
	Termination CaseTermination
}

// Switch evaluates each Case's opcode program in order; every case whose
// guard is true has its action enqueued, and evaluation stops after the
// first matched case whose Termination is Break.
type Switch struct {
	Cases []Case
}

func (Switch) isAction() {}

// ReleaseStateKind selects what ReleaseState removes.
type ReleaseStateKind uint8

const (
	ReleaseKeyCode ReleaseStateKind = iota
	ReleaseLayer
)

// ReleaseState removes a matching held state (a NormalKey with the given
// keycode, or a LayerModifier with the given layer index).
type ReleaseState struct {
	Kind    ReleaseStateKind
	Code    scancode.Code
	LayerN  int
}

func (ReleaseState) isAction() {}

// Custom surfaces a press/release pair as a custom event to the
// custom-action collaborator. Value is an opaque token: the collaborator
// decides what it means.
type Custom struct {
	Value uint32
}

func (Custom) isAction() {}

// RecordMacro/StopMacro/PlayMacro are the three dynamic-macro actions
// (spec.md §4.7).
type RecordMacro struct{ ID uint32 }

func (RecordMacro) isAction() {}

type StopMacro struct{}

func (StopMacro) isAction() {}

type PlayMacro struct{ ID uint32 }

func (PlayMacro) isAction() {}
