// Package http is the development backend: the two conference REST
// endpoints plus the engine signaling socket, enough to exercise the
// client end to end without external infrastructure.
package http

import (
	"context"
	"fmt"
	"math/rand/v2"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Meet/internal/config"
)

type Server struct {
	cfg *config.Config

	mu          sync.RWMutex
	conferences map[string]*conference // by slug
	tokens      map[string]*participant
}

func NewServer(cfg *config.Config) *Server {
	return &Server{
		cfg:         cfg,
		conferences: make(map[string]*conference),
		tokens:      make(map[string]*participant),
	}
}

func SetupRouter(ctx context.Context, cfg *config.Config, srv *Server) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	r.POST("/conferences", srv.handleCreateConference)
	r.POST("/conferences/:slug/participants", srv.handleCreateParticipant)
	r.GET("/ws/engine", func(c *gin.Context) {
		srv.HandleEngine(ctx, c)
	})

	log.Info().Str("module", "adapters.http").Msg("router setup")
	return r
}

func (s *Server) handleCreateConference(c *gin.Context) {
	var req struct {
		Name string `json:"name"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.String(http.StatusBadRequest, "bad request body")
		return
	}

	conf := &conference{
		id:           uuid.NewString(),
		code:         fmt.Sprintf("%06d", rand.IntN(1_000_000)),
		slug:         uuid.NewString()[:8],
		name:         req.Name,
		participants: make(map[string]*participant),
	}

	s.mu.Lock()
	s.conferences[conf.slug] = conf
	s.mu.Unlock()

	log.Info().Str("module", "adapters.http").Str("slug", conf.slug).Str("name", conf.name).Msg("conference created")
	c.JSON(http.StatusOK, gin.H{"slug": conf.slug})
}

func (s *Server) handleCreateParticipant(c *gin.Context) {
	slug := c.Param("slug")

	s.mu.Lock()
	conf, ok := s.conferences[slug]
	if !ok {
		s.mu.Unlock()
		c.String(http.StatusNotFound, "conference %s not found", slug)
		return
	}
	p := &participant{
		id:      uuid.NewString(),
		token:   uuid.NewString(),
		conf:    conf,
		streams: make(map[string]*publishedStream),
	}
	s.tokens[p.token] = p
	s.mu.Unlock()

	conf.addParticipant(p)

	log.Info().
		Str("module", "adapters.http").
		Str("slug", slug).
		Str("participant", p.id).
		Str("version", c.Query("version")).
		Msg("participant created")

	c.JSON(http.StatusOK, gin.H{
		"conferenceId":   conf.id,
		"conferenceCode": conf.code,
		"participantId":  p.id,
		"deviceToken":    p.token,
		"phoneNumber":    s.cfg.PhoneNumber,
		"websocketUrl":   "ws://" + c.Request.Host + "/ws/engine",
	})
}
