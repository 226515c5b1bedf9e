// Command campkeeper runs the local campaign daemon: the document store, the
// attachment blob store, the loopback API the browser UI talks to, and, when
// a remote is configured, the sync reconciler and document file watcher.
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/campkeeper/campkeeper/internal/blobstore"
	"github.com/campkeeper/campkeeper/internal/campaign"
	"github.com/campkeeper/campkeeper/internal/httpapi"
	"github.com/campkeeper/campkeeper/internal/remotesync"
)

type config struct {
	Addr         string        `env:"CAMPKEEPER_ADDR" envDefault:"127.0.0.1:7474"`
	DocumentFile string        `env:"CAMPKEEPER_DOCUMENT_FILE" envDefault:"campaign.json"`
	BlobFile     string        `env:"CAMPKEEPER_BLOB_FILE" envDefault:"campaign-files.db"`
	CampaignID   string        `env:"CAMPKEEPER_CAMPAIGN_ID" envDefault:"default"`
	WatchFile    bool          `env:"CAMPKEEPER_WATCH_FILE" envDefault:"true"`
	PushTimeout  time.Duration `env:"CAMPKEEPER_PUSH_TIMEOUT" envDefault:"15s"`

	// Remote selection: a hub URL takes precedence; a Postgres DSN is the
	// self-hosted alternative. Neither set means the daemon runs offline.
	HubURL      string `env:"CAMPKEEPER_HUB_URL"`
	HubToken    string `env:"CAMPKEEPER_HUB_TOKEN"`
	PostgresDSN string `env:"CAMPKEEPER_POSTGRES_DSN"`
}

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("skipping .env: %v", err)
	}
	var cfg config
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	logger := log.New(os.Stderr, "campkeeper: ", log.LstdFlags)

	store := campaign.NewStore(campaign.StoreOptions{
		Path:   cfg.DocumentFile,
		Logger: logger,
	})

	blobs, err := blobstore.Open(cfg.BlobFile)
	if err != nil {
		log.Fatalf("failed to open blob store: %v", err)
	}
	defer blobs.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if n, err := store.MigrateEmbeddedFiles(ctx, blobs); err != nil {
		logger.Printf("embedded file migration incomplete: %v", err)
	} else if n > 0 {
		logger.Printf("moved %d embedded file(s) into the blob store", n)
	}

	remote, err := buildRemote(cfg, logger)
	if err != nil {
		log.Fatalf("failed to configure remote: %v", err)
	}

	var reconciler *remotesync.Reconciler
	if remote != nil {
		reconciler, err = remotesync.New(remotesync.Options{
			Store:       store,
			Remote:      remote,
			Logger:      logger,
			PushTimeout: cfg.PushTimeout,
			OnStateChange: func(s remotesync.State) {
				logger.Printf("sync state: %s", s)
			},
		})
		if err != nil {
			log.Fatalf("failed to build reconciler: %v", err)
		}
		go func() {
			if err := reconciler.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Printf("reconciler stopped: %v", err)
			}
		}()
	}

	if cfg.WatchFile {
		watcher, err := remotesync.NewFileWatcher(cfg.DocumentFile, store, logger, func(doc campaign.Document) {
			if !store.Save(doc) {
				logger.Printf("failed to persist externally edited document")
			}
		})
		if err != nil {
			log.Fatalf("failed to build document watcher: %v", err)
		}
		go func() {
			if err := watcher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Printf("document watcher stopped: %v", err)
			}
		}()
	}

	syncState := func() string { return "" }
	if reconciler != nil {
		syncState = func() string { return string(reconciler.State()) }
	}
	api, err := httpapi.NewLocalServer(httpapi.LocalConfig{
		Store:     store,
		Blobs:     blobs,
		SyncState: syncState,
		Logger:    logger,
	})
	if err != nil {
		log.Fatalf("failed to build local API: %v", err)
	}

	srv := &http.Server{Addr: cfg.Addr, Handler: api}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Printf("campaign %s listening on %s", cfg.CampaignID, cfg.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("server failed: %v", err)
	}
}

func buildRemote(cfg config, logger campaign.Logger) (remotesync.RemoteStore, error) {
	switch {
	case cfg.HubURL != "":
		return remotesync.NewHubClient(remotesync.HubClientOptions{
			BaseURL:    cfg.HubURL,
			CampaignID: cfg.CampaignID,
			Token:      cfg.HubToken,
			Logger:     logger,
		})
	case cfg.PostgresDSN != "":
		return remotesync.NewPostgresRemoteStore(cfg.PostgresDSN, cfg.CampaignID, logger)
	default:
		return nil, nil
	}
}
