package main

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"cardtable/internal/config"
	"cardtable/internal/game"
	"cardtable/internal/gateway"
	"cardtable/internal/logging"
	"cardtable/internal/session"
	"cardtable/internal/store"
	"cardtable/internal/ws"
)

func main() {
	cfg, err := config.LoadApp()
	if err != nil {
		panic(err)
	}
	logging.Init(cfg.Log)

	manager := session.NewManager(session.Options{
		HeartbeatInterval: cfg.Server.HeartbeatInterval(),
		HeartbeatTimeout:  cfg.Server.HeartbeatTimeout(),
		ReconnectGrace:    cfg.Server.ReconnectGrace(),
		DefaultCapacity:   cfg.Server.DefaultCapacity,
	}, game.New)

	var st *store.Store
	if cfg.Server.PostgresDSN != "" {
		st, err = store.New(cfg.Server.PostgresDSN)
		if err != nil {
			log.Fatal().Err(err).Msg("store init failed")
		}
		if err := st.Ping(context.Background()); err != nil {
			log.Fatal().Err(err).Msg("db ping failed")
		}
		if err := st.EnsureSchema(context.Background()); err != nil {
			log.Fatal().Err(err).Msg("ensure schema failed")
		}
		manager.SetArchiver(st)
	}

	wsServer := ws.NewServer(manager, cfg.Server.ListenerSendBuffer)
	gw := gateway.New(manager, cfg.Server.EventBufferCapacity)
	r := newRouter(manager, wsServer, gw, st)

	// hooks are all registered by now, the monitor may start ticking
	manager.StartMonitor(context.Background())

	server := &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	log.Info().Str("addr", cfg.Server.HTTPAddr).Msg("http listening")
	log.Fatal().Err(server.ListenAndServe()).Msg("server stopped")
}
