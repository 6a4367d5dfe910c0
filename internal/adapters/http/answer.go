package http

import (
	"fmt"
	"strings"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

// answerOffer accepts a publisher's offer on a fresh peer connection and
// returns the gathered answer SDP. The dev server terminates the media
// and drops the packets; it does not relay RTP.
func answerOffer(offerSDP string) (string, *webrtc.PeerConnection, error) {
	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{
			{URLs: []string{"stun:stun.l.google.com:19302"}},
		},
	})
	if err != nil {
		return "", nil, fmt.Errorf("new peer connection: %w", err)
	}

	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		log.Debug().
			Str("module", "adapters.http").
			Str("kind", track.Kind().String()).
			Msg("track arrived")
		buf := make([]byte, 1500)
		for {
			if _, _, err := track.Read(buf); err != nil {
				return
			}
		}
	})

	offer := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: offerSDP}
	if err := pc.SetRemoteDescription(offer); err != nil {
		pc.Close()
		return "", nil, fmt.Errorf("apply offer: %w", err)
	}

	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		pc.Close()
		return "", nil, fmt.Errorf("create answer: %w", err)
	}
	gatherComplete := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(answer); err != nil {
		pc.Close()
		return "", nil, fmt.Errorf("set local description: %w", err)
	}
	<-gatherComplete

	return pc.LocalDescription().SDP, pc, nil
}

type publishedStream struct {
	endpointID string
	alias      string
	kinds      []string
	pc         *webrtc.PeerConnection
}

// sdpKinds reports which media sections the offer carries.
func sdpKinds(sdp string) []string {
	var kinds []string
	for _, line := range strings.Split(sdp, "\n") {
		switch {
		case strings.HasPrefix(line, "m=audio"):
			kinds = append(kinds, "audio")
		case strings.HasPrefix(line, "m=video"):
			kinds = append(kinds, "video")
		}
	}
	return kinds
}
