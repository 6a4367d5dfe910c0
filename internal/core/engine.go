package core

import (
	"context"

	"github.com/dkeye/Meet/internal/domain"
)

// StreamRole tags a published stream so the engine can tell the primary
// user-media publish apart from a screen share.
type StreamRole string

const (
	RoleUserMedia   StreamRole = "usermedia"
	RoleScreenShare StreamRole = "screenshare"
)

// RawStream is the platform-owned media source behind a local handle.
// Closing it releases the capture devices.
type RawStream interface {
	ID() string
	Close() error
}

// StreamHandle represents one published or subscribed media flow.
// Local and remote handles share this shape; remote handles carry no Raw.
type StreamHandle struct {
	EndpointID string
	Alias      string
	MediaKinds map[domain.MediaKind]struct{}
	Raw        RawStream
}

// HasKind reports whether the handle carries the given media kind.
func (h *StreamHandle) HasKind(k domain.MediaKind) bool {
	_, ok := h.MediaKinds[k]
	return ok
}

// Kinds builds a MediaKinds set from the listed kinds.
func Kinds(ks ...domain.MediaKind) map[domain.MediaKind]struct{} {
	out := make(map[domain.MediaKind]struct{}, len(ks))
	for _, k := range ks {
		out[k] = struct{}{}
	}
	return out
}

// MediaConstraints selects which inputs to capture for a publish.
// An empty device id with the kind enabled means "platform default".
type MediaConstraints struct {
	Audio         bool
	AudioDeviceID string
	Video         bool
	VideoDeviceID string
}

// Credential is the one-time device credential from the join grant.
type Credential struct {
	DeviceToken string
}

// ConnectOptions carry the optional alternate signaling URL from the
// backend response and the stored TURN override, if any.
type ConnectOptions struct {
	WebsocketURL string
	TURN         *domain.TURNServer
}

// Engine is the RTC capability surface the controller consumes.
// It is an external collaborator; the controller never reaches below it.
type Engine interface {
	Connect(ctx context.Context, cred Credential, opts ConnectOptions) error
	// Publish captures media per constraints and publishes it under role.
	Publish(ctx context.Context, c MediaConstraints, alias string, role StreamRole) (*StreamHandle, error)
	// PublishStream publishes an already captured stream (screen share path).
	PublishStream(ctx context.Context, raw RawStream, alias string, role StreamRole) (*StreamHandle, error)
	Unpublish(ctx context.Context, h *StreamHandle) error
	SetMicEnabled(enabled bool) error
	SetCameraEnabled(enabled bool, h *StreamHandle) error
	Disconnect() error
	// OnStreamAvailable/OnStreamUnavailable must be registered exactly once
	// per live connection; the engine delivers events until Disconnect.
	OnStreamAvailable(func(StreamHandle))
	OnStreamUnavailable(func(endpointID string))
}

// DeviceSource enumerates the platform's media inputs.
type DeviceSource interface {
	AudioInputs(ctx context.Context) ([]domain.Device, error)
	VideoInputs(ctx context.Context) ([]domain.Device, error)
}

// MediaProber performs the dummy acquire-then-release permission check
// that must precede enumeration. Returns domain.ErrPermissionDenied when
// the platform refuses access.
type MediaProber interface {
	ProbeMediaAccess(ctx context.Context) error
}

// DisplayCapturer acquires a display-capture stream for screen share.
type DisplayCapturer interface {
	CaptureDisplay(ctx context.Context) (RawStream, error)
}
