// Package config assembles the compiled collaborators an engine.Engine
// needs (layout.Store, sequence.Trie, chordv2.Group, and the handful of
// scalar tuning knobs) behind a chained-method Builder, the seam a real
// S-expression/TOML layout parser would sit behind instead of hand-built
// layer tables.
package config

import (
	"fmt"

	"github.com/keylayer/keylayer/action"
	"github.com/keylayer/keylayer/chordv2"
	"github.com/keylayer/keylayer/engine"
	"github.com/keylayer/keylayer/keylog"
	"github.com/keylayer/keylayer/layout"
	"github.com/keylayer/keylayer/sequence"
)

// Builder accumulates layers, the sequence trie, chord-v2 groups, and
// engine tuning knobs, then compiles them into a ready engine.Engine via
// Build.
// The zero value is not usable; use NewBuilder.
type Builder struct {
	layers       [][2][]action.Action
	defaultLayer int
	width        int

	macroPressLimit int

	seqTrie      *sequence.Trie
	seqMode      sequence.InputMode
	seqTimeout   int
	seqBacktrack bool

	chordV2Defs     []chordv2.ChordDef
	chordV2Cooldown int

	logger keylog.Logger

	err error
}

// NewBuilder starts a Builder for a keyboard with the given physical
// column count; every layer added via Layer must supply exactly width
// real-row actions (the virtual row is sized to match automatically).
func NewBuilder(width int) *Builder {
	return &Builder{width: width, macroPressLimit: 8}
}

// Layer appends a new layer, compiled from real (row 0) actions. virtual
// (row 1), if non-nil, supplies the layer's synthetic-coordinate actions
// (e.g. sequence-trie or chord-v2 fake-key taps); a nil virtual row is
// padded with action.NoOp{}.
func (b *Builder) Layer(real []action.Action, virtual []action.Action) *Builder {
	if b.err != nil {
		return b
	}
	if len(real) != b.width {
		b.err = fmt.Errorf("config: layer %d has %d real-row actions, want %d", len(b.layers), len(real), b.width)
		return b
	}
	v := make([]action.Action, b.width)
	copy(v, virtual)
	r := make([]action.Action, b.width)
	copy(r, real)
	b.layers = append(b.layers, [2][]action.Action{r, v})
	return b
}

// DefaultLayer sets the base layer index (spec.md §3 invariant 6).
func (b *Builder) DefaultLayer(n int) *Builder {
	b.defaultLayer = n
	return b
}

// MacroPressLimit overrides the dynamic-macro recording cap (default 8).
func (b *Builder) MacroPressLimit(n int) *Builder {
	b.macroPressLimit = n
	return b
}

// Sequences wires the sequence-pattern trie and its matching mode.
func (b *Builder) Sequences(trie *sequence.Trie, mode sequence.InputMode, timeout int, backtrack bool) *Builder {
	b.seqTrie = trie
	b.seqMode = mode
	b.seqTimeout = timeout
	b.seqBacktrack = backtrack
	return b
}

// ChordV2 wires the standalone pre-queue chord recognizer's definitions
// and its post-failure ignore-cooldown.
func (b *Builder) ChordV2(cooldownTicks int, defs ...chordv2.ChordDef) *Builder {
	b.chordV2Defs = append(b.chordV2Defs, defs...)
	b.chordV2Cooldown = cooldownTicks
	return b
}

// Logger overrides the default no-op logger.
func (b *Builder) Logger(l keylog.Logger) *Builder {
	b.logger = l
	return b
}

// Build compiles the accumulated layers and collaborators into a ready
// engine.Engine. Any error recorded by an earlier chained call, or
// surfaced by layout.New, is returned here.
func (b *Builder) Build() (*engine.Engine, error) {
	if b.err != nil {
		return nil, b.err
	}
	if len(b.layers) == 0 {
		return nil, fmt.Errorf("config: at least one layer is required")
	}
	store, err := layout.New(b.layers, b.defaultLayer)
	if err != nil {
		return nil, err
	}
	cfg := engine.Config{
		Store:             store,
		Logger:            b.logger,
		MacroPressLimit:   b.macroPressLimit,
		Sequences:         b.seqTrie,
		SequenceMode:      b.seqMode,
		SequenceTimeout:   b.seqTimeout,
		SequenceBacktrack: b.seqBacktrack,
	}
	if len(b.chordV2Defs) > 0 {
		cfg.ChordV2 = chordv2.NewGroup(b.chordV2Defs)
		cfg.ChordV2Cooldown = b.chordV2Cooldown
	}
	return engine.New(cfg), nil
}
