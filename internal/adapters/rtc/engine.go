// Package rtc implements the engine capability surface over a signaling
// websocket and pion PeerConnections, one per published stream role.
package rtc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/domain"
)

var (
	ErrNotConnected  = errors.New("engine not connected")
	ErrAlreadyOpen   = errors.New("engine already connected")
	ErrUnknownStream = errors.New("unknown stream handle")
)

// publication is one live published role: its peer connection plus the
// senders used for mute/unmute via ReplaceTrack.
type publication struct {
	endpointID  string
	pc          *webrtc.PeerConnection
	audioSender *webrtc.RTPSender
	videoSender *webrtc.RTPSender
	audioTrack  webrtc.TrackLocal
	videoTrack  webrtc.TrackLocal
}

type Engine struct {
	defaultURL string
	api        *webrtc.API
	codecs     codecSelector

	mu      sync.Mutex
	conn    *websocket.Conn
	turn    *domain.TURNServer
	pending map[string]chan serverMessage
	pubs    map[core.StreamRole]*publication
	done    chan struct{}

	onAvailable   func(core.StreamHandle)
	onUnavailable func(string)
}

// NewEngine builds the adapter; signalURL is the default signaling
// endpoint, overridable per connect by the backend response.
func NewEngine(signalURL string) (*Engine, error) {
	codecs, api, err := newMediaAPI()
	if err != nil {
		return nil, fmt.Errorf("media api: %w", err)
	}
	return &Engine{
		defaultURL: signalURL,
		api:        api,
		codecs:     codecs,
		pending:    make(map[string]chan serverMessage),
		pubs:       make(map[core.StreamRole]*publication),
	}, nil
}

func (e *Engine) Connect(ctx context.Context, cred core.Credential, opts core.ConnectOptions) error {
	e.mu.Lock()
	if e.conn != nil {
		e.mu.Unlock()
		return ErrAlreadyOpen
	}
	e.mu.Unlock()

	wsURL := e.defaultURL
	if opts.WebsocketURL != "" {
		wsURL = opts.WebsocketURL
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", wsURL, err)
	}

	e.mu.Lock()
	e.conn = conn
	e.turn = opts.TURN
	e.done = make(chan struct{})
	e.mu.Unlock()

	go e.readLoop(conn)

	if _, err := e.roundTrip(ctx, clientMessage{Type: msgConnect, DeviceToken: cred.DeviceToken}); err != nil {
		e.teardownConn()
		return err
	}
	log.Info().Str("module", "rtc").Str("url", wsURL).Msg("engine connected")
	return nil
}

func (e *Engine) OnStreamAvailable(fn func(core.StreamHandle)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onAvailable = fn
}

func (e *Engine) OnStreamUnavailable(fn func(string)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onUnavailable = fn
}

func (e *Engine) Publish(ctx context.Context, c core.MediaConstraints, alias string, role core.StreamRole) (*core.StreamHandle, error) {
	raw, err := e.captureUserMedia(c)
	if err != nil {
		return nil, err
	}
	h, err := e.publishCapture(ctx, raw, alias, role)
	if err != nil {
		_ = raw.Close()
		return nil, err
	}
	return h, nil
}

func (e *Engine) PublishStream(ctx context.Context, raw core.RawStream, alias string, role core.StreamRole) (*core.StreamHandle, error) {
	cs, ok := raw.(*captureStream)
	if !ok {
		return nil, fmt.Errorf("stream %s was not captured by this engine", raw.ID())
	}
	return e.publishCapture(ctx, cs, alias, role)
}

func (e *Engine) publishCapture(ctx context.Context, raw *captureStream, alias string, role core.StreamRole) (*core.StreamHandle, error) {
	pc, err := e.api.NewPeerConnection(e.webrtcConfig())
	if err != nil {
		return nil, fmt.Errorf("new peer connection: %w", err)
	}

	pub := &publication{pc: pc}
	kinds := make(map[domain.MediaKind]struct{})
	for _, track := range raw.webrtcTracks() {
		sender, err := pc.AddTrack(track)
		if err != nil {
			pc.Close()
			return nil, fmt.Errorf("add track: %w", err)
		}
		switch track.Kind() {
		case webrtc.RTPCodecTypeAudio:
			pub.audioSender, pub.audioTrack = sender, track
			kinds[domain.MediaKindAudio] = struct{}{}
		case webrtc.RTPCodecTypeVideo:
			pub.videoSender, pub.videoTrack = sender, track
			kinds[domain.MediaKindVideo] = struct{}{}
		}
	}

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		pc.Close()
		return nil, fmt.Errorf("create offer: %w", err)
	}
	gatherComplete := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(offer); err != nil {
		pc.Close()
		return nil, fmt.Errorf("set local description: %w", err)
	}
	<-gatherComplete

	reply, err := e.roundTrip(ctx, clientMessage{
		Type:  msgPublish,
		Role:  string(role),
		Alias: alias,
		SDP:   pc.LocalDescription().SDP,
	})
	if err != nil {
		pc.Close()
		return nil, err
	}
	if err := pc.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeAnswer,
		SDP:  reply.SDP,
	}); err != nil {
		pc.Close()
		return nil, fmt.Errorf("apply answer: %w", err)
	}

	pub.endpointID = reply.EndpointID
	e.mu.Lock()
	e.pubs[role] = pub
	e.mu.Unlock()

	log.Info().Str("module", "rtc").Str("role", string(role)).Str("endpoint", pub.endpointID).Msg("published")
	return &core.StreamHandle{
		EndpointID: pub.endpointID,
		Alias:      alias,
		MediaKinds: kinds,
		Raw:        raw,
	}, nil
}

func (e *Engine) Unpublish(ctx context.Context, h *core.StreamHandle) error {
	e.mu.Lock()
	var role core.StreamRole
	var pub *publication
	for r, p := range e.pubs {
		if p.endpointID == h.EndpointID {
			role, pub = r, p
			break
		}
	}
	if pub != nil {
		delete(e.pubs, role)
	}
	e.mu.Unlock()
	if pub == nil {
		return ErrUnknownStream
	}

	_, err := e.roundTrip(ctx, clientMessage{Type: msgUnpublish, EndpointID: pub.endpointID})
	pub.pc.Close()
	log.Info().Str("module", "rtc").Str("endpoint", pub.endpointID).Msg("unpublished")
	return err
}

// SetMicEnabled mutes/unmutes the user-media audio sender. ReplaceTrack
// with nil stops sending without renegotiation, matching track.enabled
// semantics in a browser.
func (e *Engine) SetMicEnabled(enabled bool) error {
	e.mu.Lock()
	pub := e.pubs[core.RoleUserMedia]
	e.mu.Unlock()
	if pub == nil || pub.audioSender == nil {
		return nil
	}
	var track webrtc.TrackLocal
	if enabled {
		track = pub.audioTrack
	}
	if err := pub.audioSender.ReplaceTrack(track); err != nil {
		return fmt.Errorf("replace audio track: %w", err)
	}
	e.notify(clientMessage{Type: msgMicState, Enabled: enabled, EndpointID: pub.endpointID})
	return nil
}

func (e *Engine) SetCameraEnabled(enabled bool, h *core.StreamHandle) error {
	e.mu.Lock()
	var pub *publication
	for _, p := range e.pubs {
		if h != nil && p.endpointID == h.EndpointID {
			pub = p
			break
		}
	}
	e.mu.Unlock()
	if pub == nil || pub.videoSender == nil {
		return nil
	}
	var track webrtc.TrackLocal
	if enabled {
		track = pub.videoTrack
	}
	if err := pub.videoSender.ReplaceTrack(track); err != nil {
		return fmt.Errorf("replace video track: %w", err)
	}
	e.notify(clientMessage{Type: msgCameraState, Enabled: enabled, EndpointID: pub.endpointID})
	return nil
}

func (e *Engine) Disconnect() error {
	e.mu.Lock()
	for role, pub := range e.pubs {
		pub.pc.Close()
		delete(e.pubs, role)
	}
	e.mu.Unlock()
	e.teardownConn()
	log.Info().Str("module", "rtc").Msg("engine disconnected")
	return nil
}

func (e *Engine) webrtcConfig() webrtc.Configuration {
	cfg := webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{
			{URLs: []string{"stun:stun.l.google.com:19302"}},
		},
	}
	e.mu.Lock()
	turn := e.turn
	e.mu.Unlock()
	if turn != nil {
		cfg.ICEServers = append(cfg.ICEServers, webrtc.ICEServer{
			URLs:       strings.Split(turn.URLs, ","),
			Username:   turn.Username,
			Credential: turn.Credential,
		})
		if turn.RelayOnly {
			cfg.ICETransportPolicy = webrtc.ICETransportPolicyRelay
		}
	}
	return cfg
}

// roundTrip sends a request and waits for the reply with the same id.
// No timeout of its own; cancellation comes from ctx or disconnect.
func (e *Engine) roundTrip(ctx context.Context, msg clientMessage) (serverMessage, error) {
	msg.RequestID = uuid.NewString()
	ch := make(chan serverMessage, 1)

	e.mu.Lock()
	if e.conn == nil {
		e.mu.Unlock()
		return serverMessage{}, ErrNotConnected
	}
	e.pending[msg.RequestID] = ch
	done := e.done
	err := e.conn.WriteJSON(msg)
	e.mu.Unlock()
	if err != nil {
		e.dropPending(msg.RequestID)
		return serverMessage{}, fmt.Errorf("write %s: %w", msg.Type, err)
	}

	select {
	case <-ctx.Done():
		e.dropPending(msg.RequestID)
		return serverMessage{}, ctx.Err()
	case <-done:
		return serverMessage{}, ErrNotConnected
	case reply := <-ch:
		if reply.Type == msgError {
			return serverMessage{}, fmt.Errorf("engine rejected %s: %s", msg.Type, reply.Error)
		}
		return reply, nil
	}
}

// notify is fire-and-forget; state messages have no reply.
func (e *Engine) notify(msg clientMessage) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.conn == nil {
		return
	}
	if err := e.conn.WriteJSON(msg); err != nil {
		log.Warn().Str("module", "rtc").Str("type", msg.Type).Err(err).Msg("notify write")
	}
}

func (e *Engine) readLoop(conn *websocket.Conn) {
	defer e.teardownConn()
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			log.Info().Str("module", "rtc").Err(err).Msg("signal socket closed")
			return
		}
		e.handleServerMessage(data)
	}
}

func (e *Engine) handleServerMessage(data []byte) {
	var msg serverMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		log.Error().Str("module", "rtc").Err(err).Msg("bad server message")
		return
	}

	if msg.RequestID != "" {
		e.mu.Lock()
		ch, ok := e.pending[msg.RequestID]
		if ok {
			delete(e.pending, msg.RequestID)
		}
		e.mu.Unlock()
		if ok {
			ch <- msg
		}
		return
	}

	switch msg.Type {
	case msgStreamAvailable:
		e.mu.Lock()
		fn := e.onAvailable
		e.mu.Unlock()
		if fn == nil {
			return
		}
		kinds := make(map[domain.MediaKind]struct{}, len(msg.MediaKinds))
		for _, k := range msg.MediaKinds {
			kinds[domain.MediaKind(k)] = struct{}{}
		}
		fn(core.StreamHandle{EndpointID: msg.EndpointID, Alias: msg.Alias, MediaKinds: kinds})
	case msgStreamUnavailable:
		e.mu.Lock()
		fn := e.onUnavailable
		e.mu.Unlock()
		if fn != nil {
			fn(msg.EndpointID)
		}
	default:
		log.Warn().Str("module", "rtc").Str("type", msg.Type).Msg("unknown server message")
	}
}

func (e *Engine) dropPending(id string) {
	e.mu.Lock()
	delete(e.pending, id)
	e.mu.Unlock()
}

func (e *Engine) teardownConn() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.conn == nil {
		return
	}
	e.conn.Close()
	e.conn = nil
	e.turn = nil
	close(e.done)
	e.pending = make(map[string]chan serverMessage)
}
