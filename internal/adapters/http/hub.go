package http

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

type conference struct {
	id   string
	code string
	slug string
	name string

	mu           sync.RWMutex
	participants map[string]*participant
}

func (c *conference) addParticipant(p *participant) {
	c.mu.Lock()
	c.participants[p.id] = p
	c.mu.Unlock()
}

func (c *conference) others(exclude string) []*participant {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*participant, 0, len(c.participants))
	for id, p := range c.participants {
		if id != exclude {
			out = append(out, p)
		}
	}
	return out
}

type participant struct {
	id    string
	token string
	conf  *conference

	mu      sync.Mutex
	conn    *engineConn
	streams map[string]*publishedStream
}

// inbound mirrors what the client engine sends, outbound what it reads.
type inbound struct {
	Type        string `json:"type"`
	RequestID   string `json:"requestId,omitempty"`
	DeviceToken string `json:"deviceToken,omitempty"`
	Role        string `json:"role,omitempty"`
	Alias       string `json:"alias,omitempty"`
	SDP         string `json:"sdp,omitempty"`
	EndpointID  string `json:"endpointId,omitempty"`
	Enabled     bool   `json:"enabled,omitempty"`
}

type outbound struct {
	Type       string   `json:"type"`
	RequestID  string   `json:"requestId,omitempty"`
	Error      string   `json:"error,omitempty"`
	SDP        string   `json:"sdp,omitempty"`
	EndpointID string   `json:"endpointId,omitempty"`
	Alias      string   `json:"alias,omitempty"`
	MediaKinds []string `json:"mediaKinds,omitempty"`
}

type engineConn struct {
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

func newEngineConn(conn *websocket.Conn) *engineConn {
	return &engineConn{conn: conn, send: make(chan []byte, 32)}
}

func (c *engineConn) Close() {
	c.once.Do(func() {
		close(c.send)
		c.conn.Close()
	})
}

// TrySend drops the message when the buffer is full; a stalled
// participant must not block the fanout.
func (c *engineConn) TrySend(data []byte) bool {
	defer func() { recover() }()
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (s *Server) writePump(ctx context.Context, c *engineConn) {
	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "adapters.http").Msg("writePump ctx done")
			return
		case data, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
				log.Error().Err(err).Str("module", "adapters.http").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "adapters.http").Msg("writePump write error")
				return
			}
		}
	}
}

// HandleEngine upgrades the signaling socket. The first message must be
// connect with a valid device token; everything else is rejected until
// the connection is bound to a participant.
func (s *Server) HandleEngine(ctx context.Context, c *gin.Context) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "adapters.http").Msg("upgrade failed")
		return
	}
	conn := newEngineConn(ws)
	go s.writePump(ctx, conn)

	var p *participant
	defer func() {
		if p != nil {
			s.dropParticipantConn(p)
		}
		conn.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		_, data, err := ws.ReadMessage()
		if err != nil {
			log.Info().Err(err).Str("module", "adapters.http").Msg("engine socket closed")
			return
		}

		var msg inbound
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Error().Err(err).Str("module", "adapters.http").Msg("bad engine message")
			continue
		}

		if p == nil {
			if msg.Type != "connect" {
				s.sendJSON(conn, outbound{Type: "error", RequestID: msg.RequestID, Error: "not connected"})
				continue
			}
			s.mu.RLock()
			bound, ok := s.tokens[msg.DeviceToken]
			s.mu.RUnlock()
			if !ok {
				s.sendJSON(conn, outbound{Type: "error", RequestID: msg.RequestID, Error: "unknown device token"})
				continue
			}
			p = bound
			p.mu.Lock()
			p.conn = conn
			p.mu.Unlock()
			s.sendJSON(conn, outbound{Type: "connected", RequestID: msg.RequestID})
			s.replayStreams(p, conn)
			log.Info().Str("module", "adapters.http").Str("participant", p.id).Msg("engine bound")
			continue
		}

		s.handleEngineMessage(p, conn, msg)
	}
}

func (s *Server) handleEngineMessage(p *participant, conn *engineConn, msg inbound) {
	switch msg.Type {
	case "publish":
		s.handlePublish(p, conn, msg)
	case "unpublish":
		s.handleUnpublish(p, conn, msg)
	case "mic_state", "camera_state":
		log.Debug().
			Str("module", "adapters.http").
			Str("participant", p.id).
			Str("type", msg.Type).
			Bool("enabled", msg.Enabled).
			Msg("media state")
	default:
		log.Warn().Str("module", "adapters.http").Str("type", msg.Type).Msg("unknown engine message")
		s.sendJSON(conn, outbound{Type: "error", RequestID: msg.RequestID, Error: "unknown message type"})
	}
}

func (s *Server) handlePublish(p *participant, conn *engineConn, msg inbound) {
	answer, pc, err := answerOffer(msg.SDP)
	if err != nil {
		log.Error().Err(err).Str("module", "adapters.http").Msg("answer offer")
		s.sendJSON(conn, outbound{Type: "error", RequestID: msg.RequestID, Error: err.Error()})
		return
	}

	st := &publishedStream{
		endpointID: uuid.NewString(),
		alias:      msg.Alias,
		kinds:      sdpKinds(msg.SDP),
		pc:         pc,
	}
	p.mu.Lock()
	p.streams[st.endpointID] = st
	p.mu.Unlock()

	s.sendJSON(conn, outbound{
		Type:       "published",
		RequestID:  msg.RequestID,
		EndpointID: st.endpointID,
		SDP:        answer,
	})

	s.fanout(p, outbound{
		Type:       "stream_available",
		EndpointID: st.endpointID,
		Alias:      st.alias,
		MediaKinds: st.kinds,
	})
	log.Info().
		Str("module", "adapters.http").
		Str("participant", p.id).
		Str("endpoint", st.endpointID).
		Str("alias", st.alias).
		Msg("stream published")
}

func (s *Server) handleUnpublish(p *participant, conn *engineConn, msg inbound) {
	p.mu.Lock()
	st, ok := p.streams[msg.EndpointID]
	if ok {
		delete(p.streams, msg.EndpointID)
	}
	p.mu.Unlock()
	if !ok {
		s.sendJSON(conn, outbound{Type: "error", RequestID: msg.RequestID, Error: "unknown endpoint"})
		return
	}

	st.pc.Close()
	s.sendJSON(conn, outbound{Type: "unpublished", RequestID: msg.RequestID, EndpointID: st.endpointID})
	s.fanout(p, outbound{Type: "stream_unavailable", EndpointID: st.endpointID})
	log.Info().Str("module", "adapters.http").Str("endpoint", st.endpointID).Msg("stream unpublished")
}

// replayStreams announces every live stream of the conference's other
// participants to a freshly bound socket, so a late joiner sees the
// conference as it already is.
func (s *Server) replayStreams(p *participant, conn *engineConn) {
	for _, other := range p.conf.others(p.id) {
		other.mu.Lock()
		for _, st := range other.streams {
			s.sendJSON(conn, outbound{
				Type:       "stream_available",
				EndpointID: st.endpointID,
				Alias:      st.alias,
				MediaKinds: st.kinds,
			})
		}
		other.mu.Unlock()
	}
}

// dropParticipantConn tears down everything the participant published
// when its socket goes away.
func (s *Server) dropParticipantConn(p *participant) {
	p.mu.Lock()
	p.conn = nil
	streams := p.streams
	p.streams = make(map[string]*publishedStream)
	p.mu.Unlock()

	for _, st := range streams {
		st.pc.Close()
		s.fanout(p, outbound{Type: "stream_unavailable", EndpointID: st.endpointID})
	}
	log.Info().Str("module", "adapters.http").Str("participant", p.id).Msg("engine unbound")
}

func (s *Server) fanout(from *participant, msg outbound) {
	b, err := json.Marshal(msg)
	if err != nil {
		log.Error().Err(err).Str("module", "adapters.http").Msg("fanout marshal")
		return
	}
	for _, other := range from.conf.others(from.id) {
		other.mu.Lock()
		conn := other.conn
		other.mu.Unlock()
		if conn != nil {
			conn.TrySend(b)
		}
	}
}

func (s *Server) sendJSON(c *engineConn, v outbound) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "adapters.http").Msg("sendJSON marshal")
		return
	}
	c.TrySend(b)
}
