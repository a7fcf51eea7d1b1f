package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/budsapp/buds-sync-core/internal/api"
	"github.com/budsapp/buds-sync-core/internal/config"
	"github.com/budsapp/buds-sync-core/internal/identity"
	"github.com/budsapp/buds-sync-core/internal/jarsync"
	"github.com/budsapp/buds-sync-core/internal/logger"
	"github.com/budsapp/buds-sync-core/internal/relay"
	"github.com/budsapp/buds-sync-core/internal/store"
)

func main() {
	cfgPath := os.Getenv("SYNCD_CONFIG")
	if cfgPath == "" {
		cfgPath = "configs/syncd.yaml"
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	lg := logger.New(cfg.LogLevel)
	ctx := context.Background()

	passphrase := os.Getenv(cfg.Device.KeystorePassEnv)
	keys, err := identity.LoadOrGenerate(cfg.Device.KeystorePath, passphrase)
	if err != nil {
		lg.Fatal().Err(err).Msg("load device keys")
	}
	defer keys.Close()

	st, err := store.Open(cfg.Storage.Path, lg)
	if err != nil {
		lg.Fatal().Err(err).Msg("open store")
	}
	defer st.Close()

	tokens := relay.NewEnvTokenProvider(cfg.Relay.TokenEnv)
	relayClient := relay.NewClient(cfg.Relay.Endpoint, tokens, lg)

	tuning := jarsync.Tuning{
		MaxRetries:          cfg.Sync.MaxRetries,
		MaxQueueAgeMs:       cfg.Sync.MaxQueueAgeMs,
		BackfillLockTTLMs:   cfg.Sync.BackfillLockTTLMs,
		QueueDrainLockTTLMs: cfg.Sync.QueueDrainLockTTLMs,
		BackfillBackoffMs:   cfg.Sync.BackfillBackoffMs,
		FetchLimit:          cfg.Sync.FetchLimit,
	}
	engine := jarsync.New(st, relayClient, tuning, lg)

	housekeeper := jarsync.NewHousekeeper(engine, cfg.Relay.PollInterval.Duration)
	go housekeeper.Run(ctx)

	reaper := jarsync.NewReaper(engine, cfg.Sync.ReaperInterval.Duration)
	go reaper.Run(ctx)

	mux := api.Router(cfg, engine)
	srv := &http.Server{
		Addr:              cfg.Device.Listen,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	lg.Info().Str("device", cfg.Device.ID).Str("member", cfg.Device.MemberID).Msgf("syncd listening on %s", cfg.Device.Listen)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		lg.Fatal().Err(err).Msg("server failed")
	}
}
