package search

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTracker_ShortTermsNeverQuery(t *testing.T) {
	tr := NewTracker(2)

	for _, term := range []string{"", "J", " J ", "é"} {
		_, ok := tr.Input(term)
		require.False(t, ok, "term %q must not schedule a query", term)
	}
}

// Inputs at t, t+50ms and t+350ms with a 300ms quiet period: the timers for
// the first two inputs are superseded before they can issue anything, so
// exactly one query fires, with the value typed at t+350ms.
func TestTracker_DebounceFiresOnceWithLatestValue(t *testing.T) {
	tr := NewTracker(2)

	// t
	g1, ok := tr.Input("Ja")
	require.True(t, ok)
	// t+50ms
	g2, ok := tr.Input("Jan")
	require.True(t, ok)
	// t+300ms: the timer scheduled for g1 elapses
	_, fired := tr.Fire(g1)
	require.False(t, fired)
	// t+350ms: new input lands before the g2 timer is handled
	g3, ok := tr.Input("Jane")
	require.True(t, ok)
	_, fired = tr.Fire(g2)
	require.False(t, fired)

	// t+650ms
	term, fired := tr.Fire(g3)
	require.True(t, fired)
	require.Equal(t, "Jane", term)

	_, fired = tr.Fire(g3)
	require.False(t, fired, "a generation fires at most once")
}

func TestTracker_ShortInputCancelsPending(t *testing.T) {
	tr := NewTracker(2)

	g, ok := tr.Input("Jane")
	require.True(t, ok)
	_, ok = tr.Input("J")
	require.False(t, ok)

	_, fired := tr.Fire(g)
	require.False(t, fired)
}

// Q1 is issued, then Q2; Q2's response arrives first and Q1's later.
// Only Q2 may be displayed.
func TestTracker_StaleResponseDiscarded(t *testing.T) {
	tr := NewTracker(2)

	q1 := tr.Begin()
	q2 := tr.Begin()

	require.True(t, tr.Accept(q2))
	require.False(t, tr.Accept(q1))
}

func TestTracker_ResetInvalidatesInFlight(t *testing.T) {
	tr := NewTracker(2)

	g, _ := tr.Input("Jane")
	term, _ := tr.Fire(g)
	require.Equal(t, "Jane", term)
	seq := tr.Begin()

	g2, _ := tr.Input("Janet")
	tr.Reset()

	require.False(t, tr.Accept(seq))
	_, fired := tr.Fire(g2)
	require.False(t, fired)
}

func TestTracker_ClearingDiscardsInFlight(t *testing.T) {
	tr := NewTracker(2)

	g, _ := tr.Input("Jane")
	_, _ = tr.Fire(g)
	seq := tr.Begin()

	_, ok := tr.Input("")
	require.False(t, ok)
	require.False(t, tr.Accept(seq), "results must not reappear after the input was cleared")
}
