package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitForImmersive(t *testing.T, sess *Session, want bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if sess.State().ImmersiveMode == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("immersive mode never became %v", want)
}

func TestImmersiveModeAfterIdle(t *testing.T) {
	ctrl, _, _, _, _ := newTestController()
	ctrl.IdleDelay = 20 * time.Millisecond

	sess, err := ctrl.Join(context.Background(), "demo", "")
	require.NoError(t, err)
	assert.False(t, sess.State().ImmersiveMode)

	waitForImmersive(t, sess, true)
}

func TestActivityLeavesImmersiveAndRestartsCountdown(t *testing.T) {
	ctrl, _, _, _, _ := newTestController()
	ctrl.IdleDelay = 20 * time.Millisecond

	sess, err := ctrl.Join(context.Background(), "demo", "")
	require.NoError(t, err)
	waitForImmersive(t, sess, true)

	sess.Activity()
	assert.False(t, sess.State().ImmersiveMode)

	// The countdown restarts after activity.
	waitForImmersive(t, sess, true)
}

func TestTeardownStopsIdleCountdown(t *testing.T) {
	ctrl, _, _, _, _ := newTestController()
	ctrl.IdleDelay = 20 * time.Millisecond

	sess, err := ctrl.Join(context.Background(), "demo", "")
	require.NoError(t, err)
	sess.Teardown()

	time.Sleep(60 * time.Millisecond)
	assert.False(t, sess.State().ImmersiveMode, "stopped timer must not fire")
}
