// README: Entry point; loads config, wires components, starts HTTP server and workers.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"aegis/internal/config"
	"aegis/internal/events"
	httptransport "aegis/internal/http"
	"aegis/internal/infra"
	"aegis/internal/maps"
	"aegis/internal/modules/dispatch"
	"aegis/internal/modules/incident"
	"aegis/internal/modules/responder"
	"aegis/internal/persistence"
	"aegis/internal/webhook"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		os.Stderr.WriteString("config: " + err.Error() + "\n")
		os.Exit(1)
	}

	log := infra.NewLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Durable snapshot store: Postgres when configured, in-memory otherwise.
	var store persistence.Store = persistence.NewMemory()
	if cfg.DB.DSN != "" {
		dbPool, err := infra.NewDB(ctx, cfg.DB.DSN)
		if err != nil {
			log.WithError(err).Fatal("connect postgres")
		}
		defer dbPool.Close()
		pg := persistence.NewPostgres(dbPool, log)
		pg.Start(ctx)
		store = pg
	}

	bus := events.NewBus(cfg.Bus.Buffer)
	incidents := incident.NewStore(store)
	responders := responder.NewRegistry(store)

	// Rehydrate engine state from the last snapshots.
	incs, rs, err := store.LoadAll(ctx)
	if err != nil {
		log.WithError(err).Fatal("rehydrate state")
	}
	incidents.Load(incs)
	responders.Load(rs)

	dispatchSvc := dispatch.NewService(incidents, responders, bus, dispatch.Config{
		MatchRadiusMeters: cfg.Dispatch.MatchRadiusMeters,
		CandidateLimit:    cfg.Dispatch.CandidateLimit,
	}, log)

	var geocoder maps.Geocoder
	if cfg.Maps.APIKey != "" {
		geocoder, err = maps.NewGoogleGeocoder(cfg.Maps.APIKey)
		if err != nil {
			log.WithError(err).Fatal("maps init")
		}
	}

	var verifier infra.TokenVerifier
	if cfg.Firebase.ProjectID != "" {
		verifier, err = infra.NewFirebaseVerifier(ctx, cfg.Firebase.ProjectID, cfg.Firebase.CredentialsFile)
		if err != nil {
			log.WithError(err).Fatal("firebase init")
		}
	} else {
		log.Warn("no firebase project configured, running unauthenticated")
	}

	// Webhook egress: bus -> redis queue -> delivery worker.
	if cfg.Webhook.URL != "" {
		redisClient := infra.NewRedis(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		defer redisClient.Close()
		publisher := webhook.NewRedisPublisher(redisClient)
		go webhook.Relay(ctx, bus.Subscribe(), publisher, log)
		webhook.NewWorker(redisClient, log, webhook.WorkerConfig{
			URL:        cfg.Webhook.URL,
			Secret:     cfg.Webhook.Secret,
			Timeout:    cfg.Webhook.Timeout,
			MaxRetries: cfg.Webhook.MaxRetries,
			BaseDelay:  cfg.Webhook.BaseDelay,
		}).Start(ctx)
	}

	handler := httptransport.NewRouter(httptransport.RouterDeps{
		Dispatch: dispatchSvc,
		Bus:      bus,
		Geocoder: geocoder,
		Verifier: verifier,
		Log:      log,
	})

	server := &http.Server{Addr: cfg.HTTP.Addr, Handler: handler}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	log.WithField("addr", cfg.HTTP.Addr).Info("aegis dispatch engine listening")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.WithError(err).Fatal("http server")
	}
}
