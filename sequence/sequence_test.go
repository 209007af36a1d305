package sequence_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/keylayer/keylayer/action"
	"github.com/keylayer/keylayer/scancode"
	"github.com/keylayer/keylayer/sequence"
)

func TestTrieMatchesExactPath(t *testing.T) {
	trie := sequence.NewTrie()
	tokA := sequence.ComposeToken(scancode.KeyA, 0)
	tokB := sequence.ComposeToken(scancode.KeyB, 0)
	tokC := sequence.ComposeToken(scancode.KeyC, 0)
	trie.Insert([]sequence.Token{tokA, tokB, tokC}, sequence.Payload{Row: scancode.RowReal, Col: scancode.KeyX})

	eng := sequence.NewEngine(trie, sequence.VisibleBackspaced, 100, false)
	require.False(t, eng.OnPress(scancode.KeyA, 0).Matched)
	require.False(t, eng.OnPress(scancode.KeyB, 0).Matched)
	out := eng.OnPress(scancode.KeyC, 0)
	require.True(t, out.Matched)
	require.Equal(t, scancode.KeyX, out.Payload.Col)
	require.False(t, eng.Active())
}

func TestTrieTimesOutAndResets(t *testing.T) {
	trie := sequence.NewTrie()
	tokA := sequence.ComposeToken(scancode.KeyA, 0)
	tokB := sequence.ComposeToken(scancode.KeyB, 0)
	trie.Insert([]sequence.Token{tokA, tokB}, sequence.Payload{Row: scancode.RowReal, Col: scancode.KeyX})

	eng := sequence.NewEngine(trie, sequence.VisibleBackspaced, 2, false)
	eng.OnPress(scancode.KeyA, 0)
	require.True(t, eng.Active())

	timedOut, _ := eng.Tick()
	require.False(t, timedOut)
	timedOut, _ = eng.Tick()
	require.True(t, timedOut)
	require.False(t, eng.Active())
}

func TestUnreachablePressAbortsInHiddenDelayTypeAndBuffersReplay(t *testing.T) {
	trie := sequence.NewTrie()
	tokA := sequence.ComposeToken(scancode.KeyA, 0)
	tokB := sequence.ComposeToken(scancode.KeyB, 0)
	trie.Insert([]sequence.Token{tokA, tokB}, sequence.Payload{Row: scancode.RowReal, Col: scancode.KeyX})

	eng := sequence.NewEngine(trie, sequence.HiddenDelayType, 100, false)
	eng.OnPress(scancode.KeyA, 0)
	out := eng.OnPress(scancode.KeyZ, 0)
	require.True(t, out.Aborted)
	require.Equal(t, []scancode.Code{scancode.KeyA, scancode.KeyZ}, out.ReplayBuffered)
	require.False(t, eng.Active())
}

func TestBacktrackDropRecoversAfterLeadingNoise(t *testing.T) {
	trie := sequence.NewTrie()
	tokA := sequence.ComposeToken(scancode.KeyA, 0)
	tokB := sequence.ComposeToken(scancode.KeyB, 0)
	tokC := sequence.ComposeToken(scancode.KeyC, 0)
	tokD := sequence.ComposeToken(scancode.KeyD, 0)
	trie.Insert([]sequence.Token{tokA, tokB, tokD}, sequence.Payload{Row: scancode.RowReal, Col: scancode.KeyY})
	trie.Insert([]sequence.Token{tokC}, sequence.Payload{Row: scancode.RowReal, Col: scancode.KeyX})

	eng := sequence.NewEngine(trie, sequence.VisibleBackspaced, 100, true)
	eng.OnPress(scancode.KeyA, 0)
	eng.OnPress(scancode.KeyB, 0)
	// C does not continue the A-B-D path; dropping the leading A, B tokens
	// leaves [C], which matches the second pattern on its own.
	out := eng.OnPress(scancode.KeyC, 0)
	require.True(t, out.Matched)
	require.Equal(t, scancode.KeyX, out.Payload.Col)
}

func TestRunnerReplaysPressTapDelayRelease(t *testing.T) {
	r := sequence.NewRunner([]action.SeqEvent{
		{Kind: action.SeqPress, Code: scancode.KeyA},
		{Kind: action.SeqDelay, Delay: 2},
		{Kind: action.SeqTap, Code: scancode.KeyB},
		{Kind: action.SeqRelease, Code: scancode.KeyA},
	})

	out := r.Tick()
	require.Equal(t, sequence.RunnerOut{Kind: sequence.OutPress, Code: scancode.KeyA}, out)

	out = r.Tick() // consumes delay tick 1
	require.Equal(t, sequence.RunnerOut{}, out)
	out = r.Tick() // consumes delay tick 2
	require.Equal(t, sequence.RunnerOut{}, out)

	out = r.Tick() // SeqTap: press now, release queued for next tick
	require.Equal(t, sequence.RunnerOut{Kind: sequence.OutPress, Code: scancode.KeyB}, out)
	require.False(t, r.Done())

	out = r.Tick() // tapped release
	require.Equal(t, sequence.RunnerOut{Kind: sequence.OutRelease, Code: scancode.KeyB}, out)

	out = r.Tick() // final release
	require.Equal(t, sequence.RunnerOut{Kind: sequence.OutRelease, Code: scancode.KeyA}, out)
	require.True(t, r.Done())
}

func TestRunnerCustomAndComplete(t *testing.T) {
	r := sequence.NewRunner([]action.SeqEvent{
		{Kind: action.SeqCustom, Value: 42},
		{Kind: action.SeqComplete},
	})
	out := r.Tick()
	require.Equal(t, sequence.RunnerOut{Kind: sequence.OutCustom, CustomValue: 42}, out)
	out = r.Tick()
	require.Equal(t, sequence.RunnerOut{Kind: sequence.OutComplete}, out)
	require.True(t, r.Done())
}
