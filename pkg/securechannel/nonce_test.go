package securechannel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendNonceAdvancesAndEncodesCounter(t *testing.T) {
	var n sendNonce
	c0, nonce0, err := n.next()
	require.NoError(t, err)
	assert.Equal(t, uint64(0), c0)
	assert.Equal(t, counterNonce(0), nonce0)

	c1, nonce1, err := n.next()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), c1)
	assert.Equal(t, counterNonce(1), nonce1)
	assert.NotEqual(t, nonce0, nonce1)
}

func TestSendNonceAbortsAtMax(t *testing.T) {
	n := sendNonce{counter: maxSendCounter}
	_, _, err := n.next()
	require.Error(t, err)
}

func TestReplayWindowAcceptsFirstAndInOrder(t *testing.T) {
	var w replayWindow
	require.NoError(t, w.checkAndRecord(0))
	require.NoError(t, w.checkAndRecord(1))
	require.NoError(t, w.checkAndRecord(2))
}

func TestReplayWindowRejectsDuplicate(t *testing.T) {
	var w replayWindow
	require.NoError(t, w.checkAndRecord(5))
	assert.False(t, w.wouldAccept(5))
	err := w.checkAndRecord(5)
	assert.Error(t, err)
}

func TestReplayWindowAcceptsOutOfOrderWithinWindow(t *testing.T) {
	var w replayWindow
	require.NoError(t, w.checkAndRecord(10))
	require.NoError(t, w.checkAndRecord(8))
	assert.False(t, w.wouldAccept(8))
	require.NoError(t, w.checkAndRecord(9))
}

func TestReplayWindowRejectsTooOldCounter(t *testing.T) {
	var w replayWindow
	require.NoError(t, w.checkAndRecord(100))
	assert.False(t, w.wouldAccept(100-nonceWindowSize))
}

func TestReplayWindowDoesNotMutateOnPeek(t *testing.T) {
	var w replayWindow
	require.NoError(t, w.checkAndRecord(3))
	// Repeated peeks must not themselves record anything: the window's
	// accept/reject answer for 4 must stay the same regardless of how
	// many times wouldAccept is called without record.
	assert.True(t, w.wouldAccept(4))
	assert.True(t, w.wouldAccept(4))
	assert.True(t, w.wouldAccept(4))
}

func TestReplayWindowSlidesForwardOnBigJump(t *testing.T) {
	var w replayWindow
	require.NoError(t, w.checkAndRecord(5))
	require.NoError(t, w.checkAndRecord(5+nonceWindowSize+1))
	// the old counter is now far outside the window and must not be
	// reachable again
	assert.False(t, w.wouldAccept(5))
}
