// Command keylayerdemo wires a two-layer keyboard remap, a chord-v2 combo,
// and an in-memory fake input source into a keylayer engine, driving it for
// a fixed tick budget and printing every emitted OS-level key event.
package main

import (
	"fmt"

	"github.com/joeycumines/stumpy"

	"github.com/keylayer/keylayer/action"
	"github.com/keylayer/keylayer/chordv2"
	"github.com/keylayer/keylayer/config"
	"github.com/keylayer/keylayer/engine"
	"github.com/keylayer/keylayer/keylog"
	"github.com/keylayer/keylayer/scancode"
)

// script is one scripted tick of the demo: zero or more physical events
// followed by a single engine.Tick call.
type script struct {
	events []engine.InputEvent
}

func press(col scancode.Code) engine.InputEvent {
	return engine.InputEvent{Kind: scancode.Press, Pos: scancode.Position{Row: scancode.RowReal, Col: col}}
}

func release(col scancode.Code) engine.InputEvent {
	return engine.InputEvent{Kind: scancode.Release, Pos: scancode.Position{Row: scancode.RowReal, Col: col}}
}

func main() {
	log := keylog.NewStumpy(stumpy.WithWriter(&discard{}))

	// Column 0: a hold-tap (tap types 'a', hold shifts to layer 1).
	// Column 1: 'b'. Column 2/3: chord-v2 "d"+"y" combo emitting Enter.
	const width = 4
	layer0 := []action.Action{
		action.HoldTap{
			Timeout: 20,
			Tap:     action.KeyCode{Code: scancode.KeyA},
			Hold:    action.Layer{N: 1},
			Policy:  action.PolicyDefault,
		},
		action.KeyCode{Code: scancode.KeyB},
		action.KeyCode{Code: scancode.KeyD},
		action.KeyCode{Code: scancode.KeyY},
	}
	layer1 := []action.Action{
		action.Trans{},
		action.KeyCode{Code: scancode.KeyB},
		action.Trans{},
		action.Trans{},
	}

	eng, err := config.NewBuilder(width).
		Layer(layer0, nil).
		Layer(layer1, nil).
		DefaultLayer(0).
		ChordV2(3, chordv2.ChordDef{
			// chord-v2 matches the physical column code, not the emitted keycode.
			Keys:   []scancode.Code{scancode.Code(2), scancode.Code(3)},
			Action: action.KeyCode{Code: scancode.KeyEnter},
		}).
		Logger(log).
		Build()
	if err != nil {
		fmt.Println("config error:", err)
		return
	}

	demo := []script{
		{events: []engine.InputEvent{press(0)}},
		{events: []engine.InputEvent{release(0)}},
		{},
		{events: []engine.InputEvent{press(2)}},
		{events: []engine.InputEvent{press(3)}},
		{},
		{},
		{events: []engine.InputEvent{release(2)}},
		{events: []engine.InputEvent{release(3)}},
	}

	for tick, step := range demo {
		for _, ev := range step.events {
			eng.Event(ev)
		}
		outs, custom := eng.Tick()
		for _, out := range outs {
			fmt.Printf("tick %d: %v %v\n", tick, out.Kind, out.Code)
		}
		if custom != nil {
			fmt.Printf("tick %d: custom %v %v\n", tick, custom.Kind, custom.Value)
		}
	}
}

// discard swallows stumpy's JSON event output; the demo only prints the
// engine's own emitted-keycode stream.
type discard struct{}

func (*discard) Write(p []byte) (int, error) { return len(p), nil }
