package app

import (
	"context"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/domain"
)

// Join performs the slug→session handshake. Steps, strictly ordered:
// tear down any prior session, create the participant, connect the
// engine, register stream handlers, resolve device constraints, publish
// user media. Publish failure is non-fatal: a user without camera or mic
// can still observe the conference.
//
// Each call creates a fresh session; negotiation failures leave it in a
// terminal Failed state and are also returned.
func (c *Controller) Join(ctx context.Context, slug, versionHint string) (*Session, error) {
	ctx, span := c.tracer.Start(ctx, "controller.Join", trace.WithAttributes(
		attribute.String("conference.slug", slug),
	))
	defer span.End()

	delay := c.IdleDelay
	if delay <= 0 {
		delay = defaultIdleDelay
	}

	c.mu.Lock()
	if c.current != nil {
		c.current.Teardown()
	}
	sess := &Session{ctrl: c, store: NewStore()}
	sess.idle = newIdleTimer(delay, func() { sess.store.SetImmersive(true) })
	c.current = sess
	c.mu.Unlock()

	sess.store.BeginNegotiation()
	log.Info().Str("module", "app.negotiate").Str("slug", slug).Msg("joining conference")

	grant, err := c.Backend.CreateParticipant(ctx, slug, versionHint)
	if err != nil {
		sess.store.MarkFailed(err)
		return sess, err
	}
	sess.store.SetParticipant(*grant)

	opts := core.ConnectOptions{WebsocketURL: grant.WebsocketURL}
	if c.TURN != nil {
		if turn, terr := c.TURN.LoadTURNServer(); terr != nil {
			log.Warn().Str("module", "app.negotiate").Err(terr).Msg("load TURN override")
		} else {
			opts.TURN = turn
		}
	}

	// Registered before the connect round-trip: the engine may announce
	// already-published streams while the connection is being established,
	// and those must land in the remote map. Once per session, never
	// re-registered on state updates, which would cause duplicate delivery.
	sess.registerStreamHandlers()

	if err := c.Engine.Connect(ctx, core.Credential{DeviceToken: grant.DeviceToken}, opts); err != nil {
		cerr := &domain.EngineConnectError{Cause: err}
		sess.store.MarkFailed(cerr)
		return sess, cerr
	}

	sess.store.MarkConnected()
	sess.idle.reset()
	log.Info().
		Str("module", "app.negotiate").
		Str("conference", string(grant.ConferenceID)).
		Str("participant", string(grant.ParticipantID)).
		Msg("engine connected")

	sess.publishUserMedia(ctx)
	return sess, nil
}

// publishUserMedia resolves constraints and publishes the primary local
// stream. Failures are recorded as soft errors; the session stays up.
func (s *Session) publishUserMedia(ctx context.Context) {
	constraints, err := s.ctrl.Devices.ResolveConstraints(ctx)
	if err != nil {
		s.store.RecordError(&domain.PublishError{Cause: err})
		return
	}
	h, err := s.ctrl.Engine.Publish(ctx, constraints, "", core.RoleUserMedia)
	if err != nil {
		s.store.RecordError(&domain.PublishError{Cause: err})
		log.Warn().Str("module", "app.negotiate").Err(err).Msg("publishing skipped")
		return
	}
	s.store.SetLocalStream(h)
	s.applyMediaFlags(h)
	log.Info().Str("module", "app.negotiate").Str("endpoint", h.EndpointID).Msg("local stream published")
}
