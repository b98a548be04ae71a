package server

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"inapp-message-engine/internal/api"
	"inapp-message-engine/internal/config"
	"inapp-message-engine/internal/delivery"
	"inapp-message-engine/internal/engine"
	"inapp-message-engine/internal/fetch"
	"inapp-message-engine/internal/listener"
	"inapp-message-engine/internal/observability"
	"inapp-message-engine/internal/richcontent"
	"inapp-message-engine/internal/storage"
)

func Run(cfg config.Config) {
	rootCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Storage
	assets, err := storage.NewAssetStore(cfg.Storage.Dir)
	if err != nil {
		log.Fatal().Err(err).Msg("init asset store")
	}

	var (
		msgStore    delivery.MessageStore
		statusStore delivery.StatusStore
		pg          *storage.PgStore
	)
	switch cfg.Storage.Driver {
	case "postgres":
		pg, err = storage.NewPgStore(rootCtx, cfg)
		if err != nil {
			log.Fatal().Err(err).Msg("init postgres store")
		}
		defer pg.Close()
		msgStore = pg.Messages()
		statusStore = pg.Statuses()
	default:
		cacheStore, err := storage.NewMessageCache(cfg.Storage.Dir)
		if err != nil {
			log.Fatal().Err(err).Msg("init message cache")
		}
		ledger, err := storage.NewLedger(cfg.Storage.Dir, cfg.LedgerRetention())
		if err != nil {
			log.Fatal().Err(err).Msg("init ledger")
		}
		msgStore = cacheStore
		statusStore = ledger
	}

	// Collaborators
	client := fetch.NewClient(cfg)
	presenter := delivery.NewImmediatePresenter()

	// Engine + orchestrator
	eng := engine.NewSelectionEngine(assets, client, richcontent.Collector{})
	mgr := delivery.NewManager(delivery.Deps{
		Cache:     msgStore,
		Statuses:  statusStore,
		Assets:    assets,
		Engine:    eng,
		Fetcher:   client,
		Presenter: presenter,
		Telemetry: observability.PromSink{},
	}, delivery.Options{
		CacheMaxAge: cfg.CacheMaxAge(),
		PendingTTL:  cfg.PendingTTL(),
	})
	defer mgr.Close()

	// HTTP
	h := api.NewHandler(mgr, presenter)
	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      api.Router(h),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 20 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Definition-change listener (postgres driver only)
	if pg != nil {
		go listener.ListenAndRefresh(rootCtx, pg, mgr, cfg.Listener.Channel, cfg.Backoff())
	}

	go func() {
		log.Info().Str("addr", cfg.Server.Addr).Msg("http server starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server crashed")
		}
	}()

	waitForSignal()
	log.Info().Msg("shutdown...")

	shCtx, shCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shCancel()
	cancel() // stop background goroutines
	_ = srv.Shutdown(shCtx)
}

func waitForSignal() {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c
}
