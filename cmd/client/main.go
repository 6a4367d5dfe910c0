package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Meet/internal/adapters/backend"
	"github.com/dkeye/Meet/internal/adapters/rtc"
	"github.com/dkeye/Meet/internal/app"
	"github.com/dkeye/Meet/internal/config"
	"github.com/dkeye/Meet/internal/devices"
	"github.com/dkeye/Meet/internal/storage"
	"github.com/dkeye/Meet/pkg/telemetry"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	slug := flag.String("slug", "", "conference slug to join; empty creates a new conference")
	name := flag.String("name", "", "conference name when creating")
	version := flag.String("version", "", "client version hint sent on join")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	tp, err := telemetry.InitTracer(ctx, cfg.OTELEndpoint)
	if err != nil {
		log.Warn().Err(err).Msg("tracing disabled")
	}
	if tp != nil {
		defer tp.Shutdown(context.Background())
	}

	store, err := storage.Open(cfg.DataDir)
	if err != nil {
		log.Fatal().Err(err).Msg("open settings store")
	}
	defer store.Close()

	engine, err := rtc.NewEngine(cfg.SignalURL)
	if err != nil {
		log.Fatal().Err(err).Msg("init engine")
	}

	registry := devices.NewRegistry(engine, engine, store)
	client := backend.NewClient(cfg.BackendURL)
	ctrl := app.NewController(client, engine, engine, registry, store)
	ctrl.IdleDelay = cfg.IdleDelay

	target := *slug
	if target == "" {
		target, err = client.CreateConference(ctx, *name)
		if err != nil {
			log.Fatal().Err(err).Msg("create conference")
		}
		log.Info().Str("slug", target).Msg("conference created")
	}

	session, err := ctrl.Join(ctx, target, *version)
	if err != nil {
		log.Fatal().Err(err).Str("slug", target).Msg("join failed")
	}

	state := session.State()
	log.Info().
		Str("conference", string(state.ConferenceID)).
		Str("participant", string(state.ParticipantID)).
		Str("code", state.ConferenceCode).
		Msg("joined")

	<-ctx.Done()
	session.Teardown()
	log.Info().Msg("client exited")
}
