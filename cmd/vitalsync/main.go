package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	_ "golang.org/x/crypto/x509roots/fallback" // Embed CA certs for scratch container

	healthapiadapter "github.com/openvitals/vitalsync/internal/adapter/driven/healthapi"
	"github.com/openvitals/vitalsync/internal/adapter/driven/secrets"
	sqliteadapter "github.com/openvitals/vitalsync/internal/adapter/driven/sqlite"
	httphandler "github.com/openvitals/vitalsync/internal/adapter/driving/http"
	"github.com/openvitals/vitalsync/internal/application"
	"github.com/openvitals/vitalsync/internal/cache"
	"github.com/openvitals/vitalsync/internal/config"
	"github.com/openvitals/vitalsync/internal/crypto"
	"github.com/openvitals/vitalsync/internal/domain/port/driven"
	"github.com/openvitals/vitalsync/internal/session"
)

// deviceIDKey is the SecureStore key holding the per-installation device id.
const deviceIDKey = "vitalsync_device_id"

func main() {
	if err := run(); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load configuration (fail fast on missing required env vars).
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	slog.Info("config loaded",
		"api_base_url", cfg.APIBaseURL,
		"db_path", cfg.DBPath,
		"sync_interval", cfg.SyncInterval,
		"fetch_limit", cfg.FetchLimit,
	)

	// 2. Setup signal-based context (SIGINT, SIGTERM).
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Pick the secure store: kernel keyring when available, file fallback.
	secureStore := newSecureStore(cfg.SecretsPath)

	// 4. Open database (dual reader/writer with WAL mode) and migrate.
	db, err := sqliteadapter.NewDB(cfg.DBPath)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			slog.Error("error closing database", "error", closeErr)
		}
	}()

	if err := sqliteadapter.RunMigrations(db.Writer); err != nil {
		return err
	}
	slog.Info("database ready", "path", cfg.DBPath)

	// 5. Wire the crypto stack and encrypted cache.
	keyManager := crypto.NewKeyManager(secureStore)
	if _, err := keyManager.GetOrCreateKey(ctx); err != nil {
		return err
	}
	encCache := cache.New(secureStore, keyManager)

	// 6. Remote API client and session.
	apiClient, err := healthapiadapter.NewClient(cfg.APIBaseURL)
	if err != nil {
		return err
	}

	deviceID, err := loadOrCreateDeviceID(ctx, secureStore)
	if err != nil {
		return err
	}

	sess := session.New(apiClient, secureStore, deviceID, cfg.DevicePlatform)

	// 7. Bootstrap the session from an externally obtained identity token,
	// unless a stored credential already works.
	if cfg.HasIdentityToken() {
		if _, ok := sess.GetAccessToken(ctx); !ok {
			if err := sess.ExchangeIdentityToken(ctx, cfg.IdentityProvider, cfg.IdentityToken); err != nil {
				slog.Error("identity token exchange failed", "error", err)
			}
		}
	}

	// 8. Create and start the sync service.
	labStore := sqliteadapter.NewLabRepo(db)
	syncSvc := application.NewSyncService(
		sess,
		apiClient,
		labStore,
		encCache,
		cfg.OwnerID,
		cfg.SyncInterval,
		cfg.FetchLimit,
	)
	go syncSvc.Start(ctx)

	// 9. Operational HTTP surface.
	handler := httphandler.NewHandler(syncSvc, slog.Default())
	mux := http.NewServeMux()
	httphandler.RegisterRoutes(mux, handler)

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           httphandler.ApplyMiddleware(mux, slog.Default()),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		slog.Info("http server starting", "addr", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server error", "error", err)
		}
	}()

	slog.Info("vitalsync started",
		"listen_addr", cfg.ListenAddr,
		"sync_interval", cfg.SyncInterval,
	)

	// 10. Wait for shutdown signal; the sync service observes cancellation at
	// its next checkpoint rather than being killed mid-write.
	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("http server shutdown error", "error", err)
	}

	slog.Info("shutdown complete")
	return nil
}

// newSecureStore prefers the kernel keyring and falls back to the
// permission-restricted file store, then to memory as a last resort.
func newSecureStore(secretsPath string) driven.SecureStore {
	if ks, err := secrets.NewKeyringStore(); err == nil {
		slog.Info("secure store: kernel keyring")
		return ks
	}

	fs, err := secrets.NewFileStore(secretsPath)
	if err == nil {
		slog.Info("secure store: file", "path", secretsPath)
		return fs
	}

	slog.Error("secure store: file store unavailable, secrets will not survive restart", "error", err)
	return secrets.NewMemoryStore()
}

// loadOrCreateDeviceID returns the stable per-installation device identifier,
// generating and persisting one on first run.
func loadOrCreateDeviceID(ctx context.Context, store driven.SecureStore) (string, error) {
	id, found, err := store.Get(ctx, deviceIDKey)
	if err == nil && found && id != "" {
		return id, nil
	}

	id = uuid.NewString()
	if err := store.Set(ctx, deviceIDKey, id); err != nil {
		return "", err
	}
	slog.Info("device id generated")
	return id, nil
}
