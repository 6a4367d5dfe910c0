package app

// registerStreamHandlers subscribes the session to the engine's two
// notification channels for the lifetime of the connection. Both handlers
// are plain state transitions; ordering is arrival order, handlers run to
// completion one at a time.
func (s *Session) registerStreamHandlers() {
	s.ctrl.Engine.OnStreamAvailable(s.store.StreamAvailable)
	s.ctrl.Engine.OnStreamUnavailable(s.store.StreamUnavailable)
}
