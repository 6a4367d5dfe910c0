package app

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/domain"
)

// Store holds the SessionState behind a mutex. All writes go through the
// named transitions below; transitions run to completion, one at a time,
// which is what keeps the invariants on the state record checkable.
type Store struct {
	mu    sync.Mutex
	state core.SessionState
}

func NewStore() *Store {
	return &Store{
		state: core.SessionState{
			Status:        core.StatusNotStarted,
			MicEnabled:    true,
			CameraEnabled: true,
			RemoteStreams: make(map[string]core.StreamHandle),
		},
	}
}

// Snapshot returns a copy safe to read without holding the lock.
// The remote map is copied; handles are shared read-only.
func (s *Store) Snapshot() core.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Store) snapshotLocked() core.SessionState {
	snap := s.state
	snap.RemoteStreams = make(map[string]core.StreamHandle, len(s.state.RemoteStreams))
	for id, h := range s.state.RemoteStreams {
		snap.RemoteStreams[id] = h
	}
	return snap
}

// BeginNegotiation moves NotStarted → Negotiating. Any other starting
// point is a programming error; terminal states are never reused.
func (s *Store) BeginNegotiation() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Status != core.StatusNotStarted {
		return false
	}
	s.state.Status = core.StatusNegotiating
	return true
}

// SetParticipant records the identifiers from the join grant.
func (s *Store) SetParticipant(p domain.Participant) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.ConferenceID = p.ConferenceID
	s.state.ConferenceCode = p.ConferenceCode
	s.state.ParticipantID = p.ParticipantID
	s.state.PhoneNumber = p.PhoneNumber
}

// MarkConnected moves Negotiating → Connected.
func (s *Store) MarkConnected() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Status != core.StatusNegotiating {
		return
	}
	s.state.Status = core.StatusConnected
}

// MarkFailed is terminal and records the failure for display.
func (s *Store) MarkFailed(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Status == core.StatusConnected || s.state.Status == core.StatusFailed {
		return
	}
	s.state.Status = core.StatusFailed
	s.state.LastError = &core.SessionError{Message: err.Error(), At: time.Now()}
	log.Error().Str("module", "app.store").Err(err).Msg("session failed")
}

// SetLocalStream replaces the local user-media handle. Callers release
// the previous platform stream before installing the new one.
func (s *Store) SetLocalStream(h *core.StreamHandle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.LocalStream = h
}

// StreamAvailable inserts or overwrites the remote entry. Overwrite
// covers a renegotiated stream reusing its endpoint id.
func (s *Store) StreamAvailable(h core.StreamHandle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.RemoteStreams[h.EndpointID] = h
	log.Info().Str("module", "app.store").Str("endpoint", h.EndpointID).Msg("stream available")
}

// StreamUnavailable removes the remote entry. Unknown ids are a no-op.
// If the removed id was spotlighted, the spotlight clears in the same
// step so no dangling reference survives.
func (s *Store) StreamUnavailable(endpointID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.state.RemoteStreams[endpointID]; !ok {
		return
	}
	delete(s.state.RemoteStreams, endpointID)
	if s.state.SpotlightID == endpointID {
		s.state.SpotlightID = ""
	}
	log.Info().Str("module", "app.store").Str("endpoint", endpointID).Msg("stream unavailable")
}

// ToggleSpotlight implements tile-click semantics: clicking the
// spotlighted tile clears it, clicking any other tile moves it there.
func (s *Store) ToggleSpotlight(endpointID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.SpotlightID == endpointID {
		s.state.SpotlightID = ""
		return
	}
	s.state.SpotlightID = endpointID
}

func (s *Store) SetMicEnabled(enabled bool) core.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.MicEnabled = enabled
	return s.snapshotLocked()
}

func (s *Store) SetCameraEnabled(enabled bool) core.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.CameraEnabled = enabled
	return s.snapshotLocked()
}

func (s *Store) SetScreenShareEnabled(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.ScreenShareEnabled = enabled
}

func (s *Store) SetScreenShareStream(h *core.StreamHandle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.ScreenShareStream = h
}

func (s *Store) SetImmersive(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.ImmersiveMode = enabled
}

// RecordError overwrites the surfaced error without touching the rest
// of the session. Used for non-fatal toggle-phase failures.
func (s *Store) RecordError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.LastError = &core.SessionError{Message: err.Error(), At: time.Now()}
	log.Warn().Str("module", "app.store").Err(err).Msg("session error recorded")
}

func (s *Store) DismissError() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.LastError = nil
}
