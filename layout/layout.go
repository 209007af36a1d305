// Package layout holds the immutable, compiled layers[L][R][C]Action table
// an engine.Engine dispatches against (spec.md §3). It is built once, by
// config.Builder (or any equivalent compiler, such as a real S-expression
// parser), and never mutated afterwards.
package layout

import (
	"fmt"

	"github.com/keylayer/keylayer/action"
	"github.com/keylayer/keylayer/scancode"
)

// MaxColumns bounds the number of columns per row, per spec.md §6.
const MaxColumns = 1024

// Store is an immutable three-dimensional table of Actions, indexed by
// layer, row (real=0/virtual=1), and column.
type Store struct {
	layers       [][2][]action.Action
	defaultLayer int
}

// New builds a Store from a fully-populated layers slice. layers[l][r] must
// all share the same length, <= MaxColumns. Cells left as a zero
// action.Action (nil) are treated as action.NoOp{} by At.
func New(layers [][2][]action.Action, defaultLayer int) (*Store, error) {
	if len(layers) == 0 {
		return nil, fmt.Errorf("layout: at least one layer is required")
	}
	if defaultLayer < 0 || defaultLayer >= len(layers) {
		return nil, fmt.Errorf("layout: default layer %d out of range [0,%d)", defaultLayer, len(layers))
	}
	width := len(layers[0][0])
	for li, l := range layers {
		for r := 0; r < 2; r++ {
			if len(l[r]) != width {
				return nil, fmt.Errorf("layout: layer %d row %d has %d columns, want %d", li, r, len(l[r]), width)
			}
		}
	}
	if width > MaxColumns {
		return nil, fmt.Errorf("layout: %d columns exceeds max %d", width, MaxColumns)
	}
	cp := make([][2][]action.Action, len(layers))
	for li, l := range layers {
		for r := 0; r < 2; r++ {
			row := make([]action.Action, len(l[r]))
			copy(row, l[r])
			cp[li][r] = row
		}
	}
	return &Store{layers: cp, defaultLayer: defaultLayer}, nil
}

// NumLayers returns the compiled layer count.
func (s *Store) NumLayers() int { return len(s.layers) }

// DefaultLayer returns the base layer index applied when no LayerModifier
// is active (spec.md §3 invariant 6).
func (s *Store) DefaultLayer() int { return s.defaultLayer }

// At returns the compiled action for (layer, row, col). An out-of-range
// column, or a never-set cell, returns action.NoOp{}.
func (s *Store) At(layer int, row scancode.Row, col scancode.Code) action.Action {
	if layer < 0 || layer >= len(s.layers) {
		return action.NoOp{}
	}
	r := s.layers[layer][row]
	if int(col) < 0 || int(col) >= len(r) {
		return action.NoOp{}
	}
	a := r[col]
	if a == nil {
		return action.NoOp{}
	}
	return a
}

// Resolve looks up (layer, row, col), following a single Trans redirect to
// the default layer, matching the layout driver's press-time lookup rule
// (spec.md §4.1 step 6 "Press").
func (s *Store) Resolve(layer int, row scancode.Row, col scancode.Code) action.Action {
	a := s.At(layer, row, col)
	if _, ok := a.(action.Trans); ok {
		return s.At(s.defaultLayer, row, col)
	}
	return a
}
