package backend

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/Meet/internal/domain"
)

func TestCreateConference(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/conferences", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "standup", body["name"])

		json.NewEncoder(w).Encode(map[string]string{"slug": "abc123"})
	}))
	defer srv.Close()

	slug, err := NewClient(srv.URL).CreateConference(context.Background(), "standup")
	require.NoError(t, err)
	assert.Equal(t, "abc123", slug)
}

func TestCreateParticipant(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/conferences/abc123/participants", r.URL.Path)
		assert.Equal(t, "2.4.0", r.URL.Query().Get("version"))

		json.NewEncoder(w).Encode(map[string]string{
			"conferenceId":   "conf-1",
			"conferenceCode": "123456",
			"participantId":  "part-1",
			"deviceToken":    "token-1",
			"phoneNumber":    "+15550100",
			"websocketUrl":   "ws://engine.test/ws",
		})
	}))
	defer srv.Close()

	p, err := NewClient(srv.URL).CreateParticipant(context.Background(), "abc123", "2.4.0")
	require.NoError(t, err)
	assert.Equal(t, domain.ConferenceID("conf-1"), p.ConferenceID)
	assert.Equal(t, "123456", p.ConferenceCode)
	assert.Equal(t, domain.ParticipantID("part-1"), p.ParticipantID)
	assert.Equal(t, "token-1", p.DeviceToken)
	assert.Equal(t, "ws://engine.test/ws", p.WebsocketURL)
}

func TestCreateParticipantOmitsEmptyVersion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.False(t, r.URL.Query().Has("version"))
		json.NewEncoder(w).Encode(map[string]string{"participantId": "part-1"})
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).CreateParticipant(context.Background(), "abc123", "")
	require.NoError(t, err)
}

func TestCreateParticipantRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		w.Write([]byte("conference has ended"))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).CreateParticipant(context.Background(), "abc123", "")
	require.Error(t, err)

	var rejected *domain.JoinRejectedError
	require.ErrorAs(t, err, &rejected)
	assert.Equal(t, http.StatusConflict, rejected.Status)
	assert.Equal(t, "conference has ended", rejected.Message)
	assert.Contains(t, err.Error(), "409")
}
