package chordv2_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/keylayer/keylayer/action"
	"github.com/keylayer/keylayer/chordv2"
	"github.com/keylayer/keylayer/scancode"
)

func TestSoleCandidateActivatesAssoonAsAllKeysPresent(t *testing.T) {
	group := chordv2.NewGroup([]chordv2.ChordDef{
		{Keys: []scancode.Code{scancode.KeyA, scancode.KeyB}, PendingDuration: 50, Release: chordv2.OnFirstRelease, Action: action.NoOp{}},
	})
	e := chordv2.NewEngine(group, 20)

	consumed, retract, act, replay := e.OnPress(scancode.KeyA, 0)
	require.True(t, consumed)
	require.Nil(t, retract)
	require.Nil(t, act)
	require.Nil(t, replay)

	consumed, retract, act, replay = e.OnPress(scancode.KeyB, 0)
	require.True(t, consumed)
	require.Nil(t, retract)
	require.NotNil(t, act)
	require.Nil(t, replay)

	consumed, dr, replay := e.OnRelease(scancode.KeyA, 0)
	require.True(t, consumed)
	require.NotNil(t, dr)
	require.Equal(t, act.Coord, dr.Coord)
	require.Nil(t, replay)
}

func TestOnLastReleaseWaitsForAllParticipants(t *testing.T) {
	group := chordv2.NewGroup([]chordv2.ChordDef{
		{Keys: []scancode.Code{scancode.KeyA, scancode.KeyB}, Release: chordv2.OnLastRelease, Action: action.NoOp{}},
	})
	e := chordv2.NewEngine(group, 20)
	e.OnPress(scancode.KeyA, 0)
	_, _, act, _ := e.OnPress(scancode.KeyB, 0)
	require.NotNil(t, act)

	_, dr, _ := e.OnRelease(scancode.KeyA, 0)
	require.Nil(t, dr, "first of two participants releasing must not yet trigger")
	_, dr, _ = e.OnRelease(scancode.KeyB, 0)
	require.NotNil(t, dr, "last participant releasing must trigger the deferred release")
}

func TestExtendToLongerChordRetractsShorterActivation(t *testing.T) {
	day := chordv2.ChordDef{Keys: []scancode.Code{scancode.KeyD, scancode.KeyY}, PendingDuration: 5, Release: chordv2.OnFirstRelease, Action: action.NoOp{}}
	monday := chordv2.ChordDef{Keys: []scancode.Code{scancode.KeyD, scancode.KeyY, scancode.Key1}, PendingDuration: 100, Release: chordv2.OnFirstRelease, Action: action.NoOp{}}
	group := chordv2.NewGroup([]chordv2.ChordDef{day, monday})
	e := chordv2.NewEngine(group, 20)

	e.OnPress(scancode.KeyD, 0)
	_, _, act, _ := e.OnPress(scancode.KeyY, 0)
	require.Nil(t, act, "two live candidates remain; neither is sole nor has its duration elapsed")

	for i := 0; i < 5; i++ {
		act = e.Tick()
	}
	require.NotNil(t, act, "day's pending_duration has elapsed and it exactly matches {d,y}")
	require.Equal(t, &day, act.Def)
	dayCoord := act.Coord

	consumed, retract, act2, replay := e.OnPress(scancode.Key1, 0)
	require.True(t, consumed)
	require.NotNil(t, retract)
	require.Equal(t, dayCoord, retract.Coord)
	require.NotNil(t, act2)
	require.Equal(t, &monday, act2.Def)
	require.Nil(t, replay, "extending into a longer chord is not a failure; nothing should be replayed")
}

func TestUnreachableComboEntersCooldown(t *testing.T) {
	group := chordv2.NewGroup([]chordv2.ChordDef{
		{Keys: []scancode.Code{scancode.KeyA, scancode.KeyB}, Release: chordv2.OnFirstRelease, Action: action.NoOp{}},
	})
	e := chordv2.NewEngine(group, 3)

	e.OnPress(scancode.KeyA, 0)
	consumed, _, act, replay := e.OnPress(scancode.KeyC, 0)
	require.True(t, consumed)
	require.Nil(t, act)
	require.True(t, e.InCooldown())
	require.Equal(t, []chordv2.ReplayEvent{{Code: scancode.KeyA}, {Code: scancode.KeyC}}, replay,
		"both the earlier accumulated 'a' press and the non-participating 'c' press that broke the chord must be handed back for ordinary replay, not dropped")

	consumed, _, _, _ = e.OnPress(scancode.KeyD, 0)
	require.False(t, consumed, "engine must not claim new presses during cooldown")
}

// TestUnreachableComboReplaysMultipleAccumulatedPresses covers the same
// failure as TestUnreachableComboEntersCooldown but with more than one
// accumulated key, confirming replay order matches press order.
func TestUnreachableComboReplaysMultipleAccumulatedPresses(t *testing.T) {
	group := chordv2.NewGroup([]chordv2.ChordDef{
		{Keys: []scancode.Code{scancode.KeyA, scancode.KeyB, scancode.KeyC}, Release: chordv2.OnFirstRelease, Action: action.NoOp{}},
	})
	e := chordv2.NewEngine(group, 3)

	_, _, _, replay := e.OnPress(scancode.KeyA, 0)
	require.Nil(t, replay)
	_, _, _, replay = e.OnPress(scancode.KeyB, 0)
	require.Nil(t, replay, "still a live candidate with two of three keys down")

	consumed, _, act, replay := e.OnPress(scancode.KeyD, 0)
	require.True(t, consumed)
	require.Nil(t, act)
	require.True(t, e.InCooldown())
	require.Equal(t, []chordv2.ReplayEvent{{Code: scancode.KeyA}, {Code: scancode.KeyB}, {Code: scancode.KeyD}}, replay,
		"the two earlier accumulated presses and the press that broke the chord must all replay in original order")
}

// TestUnreachableComboOnReleaseReplaysWithTrailingRelease covers failure
// detected from OnRelease (an accumulated, still-tracked key is released
// before the chord could ever complete): the replay must reproduce the
// press for every accumulated key (the released one included) plus the
// release that triggered
// the failure, so the net effect on the caller's queue is indistinguishable
// from chordv2 never having intercepted these keys at all.
func TestUnreachableComboOnReleaseReplaysWithTrailingRelease(t *testing.T) {
	group := chordv2.NewGroup([]chordv2.ChordDef{
		{Keys: []scancode.Code{scancode.KeyA, scancode.KeyB, scancode.KeyC}, Release: chordv2.OnFirstRelease, Action: action.NoOp{}},
	})
	e := chordv2.NewEngine(group, 3)

	e.OnPress(scancode.KeyA, 0)
	e.OnPress(scancode.KeyB, 0)

	consumed, _, replay := e.OnRelease(scancode.KeyA, 0)
	require.True(t, consumed)
	require.True(t, e.InCooldown())
	require.Equal(t, []chordv2.ReplayEvent{{Code: scancode.KeyA}, {Code: scancode.KeyB}, {Code: scancode.KeyA, Release: true}}, replay,
		"every accumulated key replays as a press, in order, followed by the release that triggered the failure")
}
