package macro_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/keylayer/keylayer/macro"
	"github.com/keylayer/keylayer/scancode"
)

func drain(t *testing.T, e *macro.Engine, maxTicks int) []macro.Out {
	t.Helper()
	var out []macro.Out
	for i := 0; i < maxTicks && e.Replaying(); i++ {
		o, ok := e.Tick()
		if ok {
			out = append(out, o)
		}
	}
	return out
}

func TestRoundTripRecordAndPlay(t *testing.T) {
	e := macro.NewEngine(0)
	e.ToggleRecord(1)
	e.RecordPress(scancode.KeyA)
	e.RecordPress(scancode.KeyB)
	e.RecordRelease(scancode.KeyA)
	e.RecordRelease(scancode.KeyB)
	e.ToggleRecord(1) // stop & save

	items, ok := e.Saved(1)
	require.True(t, ok)
	require.Len(t, items, 4)

	started := e.Play(1)
	require.True(t, started)

	out := drain(t, e, 10)
	require.Equal(t, []macro.Out{
		{Kind: scancode.Press, Code: scancode.KeyA},
		{Kind: scancode.Press, Code: scancode.KeyB},
		{Kind: scancode.Release, Code: scancode.KeyA},
		{Kind: scancode.Release, Code: scancode.KeyB},
	}, out)
}

func TestUnbalancedRecordingGetsSyntheticReleases(t *testing.T) {
	e := macro.NewEngine(0)
	e.ToggleRecord(2)
	e.RecordPress(scancode.KeyA)
	e.ToggleRecord(2) // stop while A is still "held"

	items, _ := e.Saved(2)
	require.Len(t, items, 2)
	require.Equal(t, macro.ItemRelease, items[1].Kind)
	require.Equal(t, scancode.KeyA, items[1].Code)
}

func TestRecursionGuardRefusesSelfPlay(t *testing.T) {
	e := macro.NewEngine(0)
	e.ToggleRecord(3)
	e.RecordNestedPlay(3) // macro 3 invokes itself mid-recording
	e.ToggleRecord(3)

	var refused []uint32
	e.OnRecursionRefused(func(id uint32) { refused = append(refused, id) })

	started := e.Play(3)
	require.True(t, started)
	drain(t, e, 10)
	require.Equal(t, []uint32{3}, refused, "self-invocation must be refused exactly once")
}

func TestPressLimitAutoStops(t *testing.T) {
	e := macro.NewEngine(2)
	e.ToggleRecord(4)
	auto1 := e.RecordPress(scancode.KeyA)
	require.False(t, auto1)
	auto2 := e.RecordPress(scancode.KeyB)
	require.True(t, auto2, "second press should hit the limit and auto-stop")
	_, recording := e.Recording()
	require.False(t, recording)
}
