package app

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/domain"
)

const defaultIdleDelay = 3 * time.Second

// ParticipantCreator is the backend's participant-creation endpoint.
type ParticipantCreator interface {
	CreateParticipant(ctx context.Context, slug, versionHint string) (*domain.Participant, error)
}

// DeviceService is the slice of the device registry the controller needs.
type DeviceService interface {
	ResolveConstraints(ctx context.Context) (core.MediaConstraints, error)
	SavePreference(pref domain.DevicePreference) error
}

// TURNConfigSource supplies the stored TURN override, if any.
type TURNConfigSource interface {
	LoadTURNServer() (*domain.TURNServer, error)
}

// Controller turns a conference slug into a joined session and owns the
// lifecycle of the one active session at a time.
type Controller struct {
	Backend ParticipantCreator
	Engine  core.Engine
	Capture core.DisplayCapturer
	Devices DeviceService
	TURN    TURNConfigSource

	// IdleDelay is the immersive-mode countdown; zero means the default 3s.
	IdleDelay time.Duration

	tracer trace.Tracer

	mu      sync.Mutex
	current *Session
}

func NewController(backend ParticipantCreator, engine core.Engine, capture core.DisplayCapturer, devices DeviceService, turn TURNConfigSource) *Controller {
	return &Controller{
		Backend: backend,
		Engine:  engine,
		Capture: capture,
		Devices: devices,
		TURN:    turn,
		tracer:  otel.Tracer("meet-controller"),
	}
}

// Session is one join attempt's live state and its attached resources.
// Terminal sessions are discarded, never reused.
type Session struct {
	ctrl  *Controller
	store *Store
	idle  *idleTimer

	// shareBusy enforces at most one screen-share publish/unpublish in
	// flight; late toggles are picked up by re-reading state after the
	// in-flight operation settles.
	shareMu   sync.Mutex
	shareBusy bool
}

// State returns a snapshot of the session's current state.
func (s *Session) State() core.SessionState {
	return s.store.Snapshot()
}

// Current returns the active session, if any.
func (c *Controller) Current() *Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Teardown releases the session's local streams, stops its timers and
// disconnects the engine. The engine treats disconnect as implicit
// cancellation of its own pending work.
func (s *Session) Teardown() {
	s.idle.stop()

	ctx := context.Background()
	snap := s.store.Snapshot()
	if snap.ScreenShareStream != nil {
		s.releaseStream(ctx, snap.ScreenShareStream)
		s.store.SetScreenShareStream(nil)
	}
	if snap.LocalStream != nil {
		s.releaseStream(ctx, snap.LocalStream)
		s.store.SetLocalStream(nil)
	}
	if err := s.ctrl.Engine.Disconnect(); err != nil {
		log.Warn().Str("module", "app.session").Err(err).Msg("engine disconnect")
	}
	log.Info().Str("module", "app.session").Str("participant", string(snap.ParticipantID)).Msg("session torn down")
}

// releaseStream unpublishes a handle and fully releases its platform
// stream. Always completes before the next publish of the same role starts.
func (s *Session) releaseStream(ctx context.Context, h *core.StreamHandle) {
	if err := s.ctrl.Engine.Unpublish(ctx, h); err != nil {
		log.Warn().Str("module", "app.session").Str("endpoint", h.EndpointID).Err(err).Msg("unpublish")
	}
	if h.Raw != nil {
		if err := h.Raw.Close(); err != nil {
			log.Warn().Str("module", "app.session").Err(err).Msg("release platform stream")
		}
	}
}
