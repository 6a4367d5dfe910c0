// Package domain contains entity without logic, just meta-data
package domain

// MediaKind distinguishes the two input kinds a device can provide.
type MediaKind string

const (
	MediaKindAudio MediaKind = "audio"
	MediaKindVideo MediaKind = "video"
)

// Device is one enumerated media input. Immutable once enumerated;
// a fresh enumeration may invalidate previously chosen ids.
type Device struct {
	ID    string    `json:"deviceId"`
	Label string    `json:"label"`
	Kind  MediaKind `json:"kind"`
}

// DeviceList is the result of one enumeration pass.
type DeviceList struct {
	AudioDevices []Device
	VideoDevices []Device
}

// HasAudio reports whether id is a currently known audio input.
func (l DeviceList) HasAudio(id string) bool {
	for _, d := range l.AudioDevices {
		if d.ID == id {
			return true
		}
	}
	return false
}

// HasVideo reports whether id is a currently known video input.
func (l DeviceList) HasVideo(id string) bool {
	for _, d := range l.VideoDevices {
		if d.ID == id {
			return true
		}
	}
	return false
}

// DevicePreference is the user's remembered input choice.
// Empty fields mean "use platform default".
type DevicePreference struct {
	AudioDeviceID string `json:"audioDeviceId,omitempty"`
	VideoDeviceID string `json:"videoDeviceId,omitempty"`
}

// Empty reports whether the preference selects nothing at all.
func (p DevicePreference) Empty() bool {
	return p.AudioDeviceID == "" && p.VideoDeviceID == ""
}

// TURNServer is an optional user-supplied TURN override.
// Absence means "use engine defaults".
type TURNServer struct {
	URLs       string `json:"urls"`
	Username   string `json:"username"`
	Credential string `json:"credential"`
	RelayOnly  bool   `json:"-"`
}
