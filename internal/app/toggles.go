package app

import (
	"context"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/domain"
)

// SetMicEnabled flips the mic flag. The engine call is made only while a
// local stream exists; otherwise the flag is applied when one is published.
func (s *Session) SetMicEnabled(enabled bool) {
	snap := s.store.SetMicEnabled(enabled)
	if snap.LocalStream == nil {
		return
	}
	if err := s.ctrl.Engine.SetMicEnabled(enabled); err != nil {
		log.Warn().Str("module", "app.toggles").Err(err).Msg("set mic enabled")
	}
}

// SetCameraEnabled flips the camera flag, targeting the local stream.
func (s *Session) SetCameraEnabled(enabled bool) {
	snap := s.store.SetCameraEnabled(enabled)
	if snap.LocalStream == nil {
		return
	}
	if err := s.ctrl.Engine.SetCameraEnabled(enabled, snap.LocalStream); err != nil {
		log.Warn().Str("module", "app.toggles").Err(err).Msg("set camera enabled")
	}
}

// applyMediaFlags pushes flags that were toggled before a local stream
// existed onto a freshly published handle.
func (s *Session) applyMediaFlags(h *core.StreamHandle) {
	snap := s.store.Snapshot()
	if !snap.MicEnabled {
		if err := s.ctrl.Engine.SetMicEnabled(false); err != nil {
			log.Warn().Str("module", "app.toggles").Err(err).Msg("apply mic flag")
		}
	}
	if !snap.CameraEnabled {
		if err := s.ctrl.Engine.SetCameraEnabled(false, h); err != nil {
			log.Warn().Str("module", "app.toggles").Err(err).Msg("apply camera flag")
		}
	}
}

// SetScreenShareEnabled records the desired screen-share state and
// reconciles. Reconciliation is state-driven: the flag may flip any number
// of times while an operation is in flight; whoever holds the single
// flight re-reads the state after each operation settles.
func (s *Session) SetScreenShareEnabled(ctx context.Context, enabled bool) {
	s.store.SetScreenShareEnabled(enabled)
	s.reconcileScreenShare(ctx)
}

func (s *Session) reconcileScreenShare(ctx context.Context) {
	s.shareMu.Lock()
	if s.shareBusy {
		s.shareMu.Unlock()
		return
	}
	s.shareBusy = true
	s.shareMu.Unlock()

	for {
		snap := s.store.Snapshot()
		switch {
		case snap.ScreenShareEnabled && snap.ScreenShareStream == nil:
			s.startScreenShare(ctx)
		case !snap.ScreenShareEnabled && snap.ScreenShareStream != nil:
			s.releaseStream(ctx, snap.ScreenShareStream)
			s.store.SetScreenShareStream(nil)
			log.Info().Str("module", "app.toggles").Str("endpoint", snap.ScreenShareStream.EndpointID).Msg("unpublished screenshare")
		default:
			s.shareMu.Lock()
			s.shareBusy = false
			s.shareMu.Unlock()
			// A toggle that saw shareBusy between the snapshot above and
			// the flag clearing would otherwise be lost; re-check and take
			// the flight back up if state disagrees again.
			snap = s.store.Snapshot()
			if snap.ScreenShareEnabled == (snap.ScreenShareStream != nil) {
				return
			}
			s.shareMu.Lock()
			if s.shareBusy {
				s.shareMu.Unlock()
				return
			}
			s.shareBusy = true
			s.shareMu.Unlock()
		}
	}
}

func (s *Session) startScreenShare(ctx context.Context) {
	ctx, span := s.ctrl.tracer.Start(ctx, "session.startScreenShare")
	defer span.End()

	raw, err := s.ctrl.Capture.CaptureDisplay(ctx)
	if err != nil {
		s.store.SetScreenShareEnabled(false)
		s.store.RecordError(&domain.ScreenCaptureError{Cause: err})
		return
	}
	h, err := s.ctrl.Engine.PublishStream(ctx, raw, "", core.RoleScreenShare)
	if err != nil {
		_ = raw.Close()
		s.store.SetScreenShareEnabled(false)
		s.store.RecordError(&domain.PublishError{Cause: err})
		return
	}
	s.store.SetScreenShareStream(h)
	log.Info().Str("module", "app.toggles").Str("endpoint", h.EndpointID).Msg("published screenshare")
}

// ApplyDeviceSelection is the settings re-publish flow: unpublish old,
// persist the new preference, resolve constraints, publish new. The old
// stream is fully released before the new publish begins, so at most one
// user-media publish is ever active. On failure the session is left with
// no local stream plus a surfaced error, never a half-updated handle.
func (s *Session) ApplyDeviceSelection(ctx context.Context, pref domain.DevicePreference) error {
	ctx, span := s.ctrl.tracer.Start(ctx, "session.ApplyDeviceSelection", trace.WithAttributes(
		attribute.String("audio_device", pref.AudioDeviceID),
		attribute.String("video_device", pref.VideoDeviceID),
	))
	defer span.End()

	snap := s.store.Snapshot()
	if snap.LocalStream != nil {
		s.releaseStream(ctx, snap.LocalStream)
		s.store.SetLocalStream(nil)
	}

	if err := s.ctrl.Devices.SavePreference(pref); err != nil {
		log.Warn().Str("module", "app.toggles").Err(err).Msg("persist device preference")
	}

	constraints, err := s.ctrl.Devices.ResolveConstraints(ctx)
	if err != nil {
		perr := &domain.PublishError{Cause: err}
		s.store.RecordError(perr)
		return perr
	}
	h, err := s.ctrl.Engine.Publish(ctx, constraints, "", core.RoleUserMedia)
	if err != nil {
		perr := &domain.PublishError{Cause: err}
		s.store.RecordError(perr)
		return perr
	}
	s.store.SetLocalStream(h)
	s.applyMediaFlags(h)
	log.Info().Str("module", "app.toggles").Str("endpoint", h.EndpointID).Msg("republished local stream")
	return nil
}
