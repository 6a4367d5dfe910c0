package rtc

// Wire messages for the engine signaling socket. Requests carry a
// requestId the server echoes back; unsolicited events carry none.

type clientMessage struct {
	Type        string `json:"type"`
	RequestID   string `json:"requestId,omitempty"`
	DeviceToken string `json:"deviceToken,omitempty"`
	Role        string `json:"role,omitempty"`
	Alias       string `json:"alias,omitempty"`
	SDP         string `json:"sdp,omitempty"`
	EndpointID  string `json:"endpointId,omitempty"`
	Enabled     bool   `json:"enabled,omitempty"`
}

type serverMessage struct {
	Type       string   `json:"type"`
	RequestID  string   `json:"requestId,omitempty"`
	Error      string   `json:"error,omitempty"`
	SDP        string   `json:"sdp,omitempty"`
	EndpointID string   `json:"endpointId,omitempty"`
	Alias      string   `json:"alias,omitempty"`
	MediaKinds []string `json:"mediaKinds,omitempty"`
}

const (
	msgConnect     = "connect"
	msgConnected   = "connected"
	msgPublish     = "publish"
	msgPublished   = "published"
	msgUnpublish   = "unpublish"
	msgUnpublished = "unpublished"
	msgMicState    = "mic_state"
	msgCameraState = "camera_state"
	msgError       = "error"

	msgStreamAvailable   = "stream_available"
	msgStreamUnavailable = "stream_unavailable"
)
