package domain

type (
	ConferenceID  string
	ParticipantID string
)

// Participant is the grant issued by the backend for one join attempt:
// identifiers plus the one-time device credential for the engine connect.
type Participant struct {
	ConferenceID   ConferenceID  `json:"conferenceId"`
	ConferenceCode string        `json:"conferenceCode"`
	ParticipantID  ParticipantID `json:"participantId"`
	DeviceToken    string        `json:"deviceToken"`
	PhoneNumber    string        `json:"phoneNumber"`
	WebsocketURL   string        `json:"websocketUrl,omitempty"`
}
