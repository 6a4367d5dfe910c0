package app

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/domain"
)

func TestNewStoreDefaults(t *testing.T) {
	snap := NewStore().Snapshot()

	assert.Equal(t, core.StatusNotStarted, snap.Status)
	assert.True(t, snap.MicEnabled)
	assert.True(t, snap.CameraEnabled)
	assert.False(t, snap.ScreenShareEnabled)
	assert.False(t, snap.ImmersiveMode)
	assert.Empty(t, snap.RemoteStreams)
	assert.Nil(t, snap.LastError)
}

func TestStatusOnlyMovesForward(t *testing.T) {
	s := NewStore()

	require.True(t, s.BeginNegotiation())
	assert.False(t, s.BeginNegotiation(), "negotiation must not restart")

	s.MarkConnected()
	assert.Equal(t, core.StatusConnected, s.Snapshot().Status)

	// Connected is terminal for failures.
	s.MarkFailed(errors.New("late failure"))
	assert.Equal(t, core.StatusConnected, s.Snapshot().Status)
	assert.Nil(t, s.Snapshot().LastError)
}

func TestMarkFailedIsTerminal(t *testing.T) {
	s := NewStore()
	s.BeginNegotiation()
	s.MarkFailed(errors.New("rejected"))

	snap := s.Snapshot()
	assert.Equal(t, core.StatusFailed, snap.Status)
	require.NotNil(t, snap.LastError)
	assert.Contains(t, snap.LastError.Message, "rejected")

	s.MarkConnected()
	assert.Equal(t, core.StatusFailed, s.Snapshot().Status)
}

func TestSetParticipantRecordsGrant(t *testing.T) {
	s := NewStore()
	s.SetParticipant(domain.Participant{
		ConferenceID:   "conf-1",
		ConferenceCode: "123456",
		ParticipantID:  "part-1",
		PhoneNumber:    "+15550100",
	})

	snap := s.Snapshot()
	assert.Equal(t, domain.ConferenceID("conf-1"), snap.ConferenceID)
	assert.Equal(t, "123456", snap.ConferenceCode)
	assert.Equal(t, domain.ParticipantID("part-1"), snap.ParticipantID)
	assert.Equal(t, "+15550100", snap.PhoneNumber)
}

func TestRemoteStreamLifecycle(t *testing.T) {
	s := NewStore()

	s.StreamAvailable(core.StreamHandle{EndpointID: "ep-1", Alias: "alice"})
	s.StreamAvailable(core.StreamHandle{EndpointID: "ep-2", Alias: "bob"})
	assert.Len(t, s.Snapshot().RemoteStreams, 2)

	// Overwrite on repeated availability of the same endpoint.
	s.StreamAvailable(core.StreamHandle{EndpointID: "ep-1", Alias: "alice-renego"})
	snap := s.Snapshot()
	assert.Len(t, snap.RemoteStreams, 2)
	assert.Equal(t, "alice-renego", snap.RemoteStreams["ep-1"].Alias)

	s.StreamUnavailable("ep-1")
	assert.Len(t, s.Snapshot().RemoteStreams, 1)

	// Unknown ids are a no-op.
	s.StreamUnavailable("ep-404")
	assert.Len(t, s.Snapshot().RemoteStreams, 1)
}

func TestSpotlightClickSemantics(t *testing.T) {
	s := NewStore()
	s.StreamAvailable(core.StreamHandle{EndpointID: "ep-1"})
	s.StreamAvailable(core.StreamHandle{EndpointID: "ep-2"})

	s.ToggleSpotlight("ep-1")
	assert.Equal(t, "ep-1", s.Snapshot().SpotlightID)

	// Clicking another tile moves the spotlight.
	s.ToggleSpotlight("ep-2")
	assert.Equal(t, "ep-2", s.Snapshot().SpotlightID)

	// Clicking the spotlighted tile clears it.
	s.ToggleSpotlight("ep-2")
	assert.Empty(t, s.Snapshot().SpotlightID)
}

func TestSpotlightClearsWithDepartedStream(t *testing.T) {
	s := NewStore()
	s.StreamAvailable(core.StreamHandle{EndpointID: "ep-1"})
	s.ToggleSpotlight("ep-1")

	s.StreamUnavailable("ep-1")
	snap := s.Snapshot()
	assert.Empty(t, snap.SpotlightID)
	assert.Empty(t, snap.RemoteStreams)
}

func TestRecordErrorOverwrites(t *testing.T) {
	s := NewStore()

	s.RecordError(errors.New("first"))
	s.RecordError(errors.New("second"))
	snap := s.Snapshot()
	require.NotNil(t, snap.LastError)
	assert.Equal(t, "second", snap.LastError.Message)

	s.DismissError()
	assert.Nil(t, s.Snapshot().LastError)
}

func TestSnapshotIsolation(t *testing.T) {
	s := NewStore()
	s.StreamAvailable(core.StreamHandle{EndpointID: "ep-1"})

	snap := s.Snapshot()
	delete(snap.RemoteStreams, "ep-1")

	assert.Len(t, s.Snapshot().RemoteStreams, 1, "snapshot mutation must not reach the store")
}
