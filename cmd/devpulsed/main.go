package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/devpulse/server/internal/alert"
	"github.com/devpulse/server/internal/api"
	"github.com/devpulse/server/internal/conflict"
	"github.com/devpulse/server/internal/config"
	"github.com/devpulse/server/internal/hub"
	"github.com/devpulse/server/internal/ingest"
	"github.com/devpulse/server/internal/retention"
	"github.com/devpulse/server/internal/store"
	"github.com/devpulse/server/internal/webhook"
)

// shutdownGrace bounds how long the HTTP server waits for in-flight
// requests to finish on SIGINT/SIGTERM before giving up.
const shutdownGrace = 10 * time.Second

func main() {
	configPath := flag.String("config", "", "Path to config file (defaults to the XDG config directory)")
	port := flag.Int("port", 0, "Override server port")
	dbPath := flag.String("db", "", "Override SQLite database path")
	flag.Parse()

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	cfgPath := *configPath
	if cfgPath == "" {
		cfgPath = config.DefaultConfigPath()
	}
	cfg, err := config.LoadOrDefault(cfgPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfgPath).Msg("load config")
	}
	cfg.ApplyEnv()
	if *port > 0 {
		cfg.Server.Port = *port
	}
	if *dbPath != "" {
		cfg.Store.Path = *dbPath
	}

	s, err := store.Open(cfg.Store.Path, log)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.Store.Path).Msg("open store")
	}
	defer s.Close()

	h := hub.New()
	cd := conflict.New(time.Duration(cfg.Conflict.WindowMinutes) * time.Minute)
	ae := alert.New(cfg.Alert)
	// Rebuild the alert window from the events already stored for it.
	startedAt := time.Now()
	recent, err := s.Aggregate(context.Background(), store.AggregateMetrics, store.AggregateParams{
		Start: startedAt.Add(-time.Duration(cfg.Alert.WindowMinutes) * time.Minute).UnixMilli(),
		End:   startedAt.UnixMilli() + 1,
	})
	if err != nil {
		log.Warn().Err(err).Msg("rebuild alert state")
	}
	for _, e := range recent {
		ae.RecordEvent(e.HookEventType, time.UnixMilli(e.Timestamp))
	}
	wd := webhook.New(s, log)
	rm := retention.New(s, cfg.Store.Path, log)
	proc := ingest.New(s, cd, ae, h, wd, log)
	srv := api.New(cfg, s, proc, h, wd, rm, ae, cd, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		rm.Tick(ctx, cfg.RetentionCleanupInterval())
	}()

	httpSrv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: srv.Router(),
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info().Msg("shutting down")
		cancel()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer shutdownCancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("graceful shutdown")
		}
		wg.Wait()
	}()

	log.Info().Str("addr", httpSrv.Addr).Str("db", cfg.Store.Path).Msg("devpulsed listening")
	if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal().Err(err).Msg("server error")
	}
}
