package main

import (
	"context"
	"crypto/tls"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/avelin/peercall/internal/adapters/media"
	"github.com/avelin/peercall/internal/adapters/rtc"
	signalws "github.com/avelin/peercall/internal/adapters/signal"
	"github.com/avelin/peercall/internal/app"
	"github.com/avelin/peercall/internal/config"
	"github.com/avelin/peercall/internal/core"
	"github.com/avelin/peercall/internal/domain"
)

func main() {
	var (
		callFlag   = flag.Bool("call", false, "send the offer once connected (the other side waits)")
		localFlag  = flag.String("local", "", "local participant name (overrides config)")
		remoteFlag = flag.String("remote", "", "remote participant name (overrides config)")
		insecure   = flag.Bool("insecure", true, "accept the relay's self-signed certificate")
	)
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Error().Err(err).Msg("failed to load config")
	}
	if *localFlag != "" {
		cfg.LocalName = *localFlag
	}
	if *remoteFlag != "" {
		cfg.RemoteName = *remoteFlag
	}

	local, err := domain.NewPeerName(cfg.LocalName)
	if err != nil {
		log.Fatal().Err(err).Msg("local name")
	}
	remote, err := domain.NewPeerName(cfg.RemoteName)
	if err != nil {
		log.Fatal().Err(err).Msg("remote name")
	}

	source, err := media.NewSource()
	if err != nil {
		log.Fatal().Err(err).Msg("media source")
	}

	if *insecure {
		websocket.DefaultDialer.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	var session *app.Session
	client := signalws.NewClient(cfg.RelayURL, func(data core.Frame) {
		session.OnSignalingMessage(data)
	})

	session = app.NewSession(app.SessionConfig{
		Local:       local,
		Remote:      remote,
		STUNServers: cfg.STUNServers,
	}, client.Send, source, rtc.FactoryWithAPI(source.API()))

	session.Events().Subscribe(app.EventConnectionState, func(v any) {
		log.Info().Str("module", "peer").Interface("state", v).Msg("connection state")
	})
	session.Events().Subscribe(app.EventRemoteStream, func(any) {
		log.Info().Str("module", "peer").Msg("remote stream updated")
	})
	session.Events().Subscribe(app.EventLocalStream, func(any) {
		log.Info().Str("module", "peer").Msg("local stream ready")
	})

	go client.Run(ctx)

	if err := session.Init(); err != nil {
		log.Fatal().Err(err).Msg("session init")
	}
	if *callFlag {
		if err := session.StartCall(); err != nil {
			log.Fatal().Err(err).Msg("start call")
		}
	}

	<-ctx.Done()
	log.Info().Msg("leaving")
	session.Leave(true)
	client.Close()
}
