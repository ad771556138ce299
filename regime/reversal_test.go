package regime

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestReversalState_BottomBlockClearsAfterWindow(t *testing.T) {
	state := ReversalState{BottomReversalArmedAt: time.Now().UTC().Add(-5 * time.Hour)}
	require.False(t, state.BottomShortBlocked(time.Now().UTC()), "4h block should have expired")
}

func TestReversalState_BottomBlockActiveWithinWindow(t *testing.T) {
	state := ReversalState{BottomReversalArmedAt: time.Now().UTC().Add(-1 * time.Hour)}
	require.True(t, state.BottomShortBlocked(time.Now().UTC()))
}

func TestReversalState_NoBlockWhenNeverArmed(t *testing.T) {
	state := ReversalState{}
	require.False(t, state.BottomShortBlocked(time.Now().UTC()))
	require.False(t, state.TopLongBlocked(time.Now().UTC()))
}

func TestIndexSpreadOK(t *testing.T) {
	require.True(t, indexSpreadOK([]int{10, 11, 12}))
	require.False(t, indexSpreadOK([]int{5, 10}))
}
