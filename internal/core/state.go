package core

import (
	"time"

	"github.com/dkeye/Meet/internal/domain"
)

// ConnectionStatus only moves forward: NotStarted → Negotiating →
// {Connected | Failed}. A new join attempt gets a fresh SessionState.
type ConnectionStatus int

const (
	StatusNotStarted ConnectionStatus = iota
	StatusNegotiating
	StatusConnected
	StatusFailed
)

func (s ConnectionStatus) String() string {
	switch s {
	case StatusNotStarted:
		return "not_started"
	case StatusNegotiating:
		return "negotiating"
	case StatusConnected:
		return "connected"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// SessionError is the latest surfaced error; overwritten, not accumulated.
type SessionError struct {
	Message string
	At      time.Time
}

// SessionState is the single source of truth for one conference session.
type SessionState struct {
	ConferenceID   domain.ConferenceID
	ConferenceCode string
	ParticipantID  domain.ParticipantID
	PhoneNumber    string

	Status ConnectionStatus

	// At most one local non-screen-share stream exists at a time;
	// a new one fully replaces the previous.
	LocalStream *StreamHandle
	// RemoteStreams holds exactly the endpoints the engine currently
	// reports available, keyed by endpoint id.
	RemoteStreams map[string]StreamHandle

	MicEnabled         bool
	CameraEnabled      bool
	ScreenShareEnabled bool
	ScreenShareStream  *StreamHandle

	SpotlightID   string
	ImmersiveMode bool

	LastError *SessionError
}
