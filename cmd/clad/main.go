package main

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/activation"
	sddaemon "github.com/coreos/go-systemd/v22/daemon"

	"github.com/cmdline-assistant/clad/internal/api"
	"github.com/cmdline-assistant/clad/internal/backend"
	"github.com/cmdline-assistant/clad/internal/cache"
	"github.com/cmdline-assistant/clad/internal/config"
	"github.com/cmdline-assistant/clad/internal/creds"
	"github.com/cmdline-assistant/clad/internal/dbusx"
	"github.com/cmdline-assistant/clad/internal/history"
	"github.com/cmdline-assistant/clad/internal/service"
	"github.com/cmdline-assistant/clad/internal/session"
	"github.com/cmdline-assistant/clad/internal/sysinfo"
	"github.com/cmdline-assistant/clad/internal/telemetry"
	"github.com/cmdline-assistant/clad/internal/version"
)

const modelID = "assistant"

func main() {
	cfg, err := config.Load(config.Path())
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	setupLogger(cfg.Logging.Level)

	slog.Info("starting clad", "version", version.Version)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTelemetry, err := telemetry.Init(ctx, "clad", cfg.Telemetry.OTLPEndpoint)
	if err != nil {
		slog.Error("failed to initialize telemetry", "error", err)
		os.Exit(1)
	}

	backendClient, err := backend.New(cfg.Backend)
	if err != nil {
		slog.Error("failed to build backend client", "error", err)
		os.Exit(1)
	}

	// a broken history store degrades history operations but never chat
	var store history.Store
	cred, err := creds.Resolve(cfg.Database)
	if err != nil {
		slog.Error("history disabled: credential resolution failed", "error", err)
	} else {
		store, err = history.Open(cfg.Database, cred)
		if err != nil {
			slog.Error("history disabled: store unavailable", "type", cfg.Database.Type, "error", err)
			store = nil
		} else {
			defer store.Close()
			slog.Info("history store ready", "type", cfg.Database.Type)
		}
	}

	var answerCache cache.Cache
	if cfg.Cache.Enabled {
		if cfg.Cache.RedisURL != "" {
			answerCache, err = cache.NewRedisCache(cfg.Cache.RedisURL)
			if err != nil {
				slog.Warn("failed to connect to redis for cache, using in-memory", "error", err)
				answerCache = cache.NewInMemoryCache()
			} else {
				slog.Info("using redis answer cache")
			}
		} else {
			answerCache = cache.NewInMemoryCache()
			slog.Info("using in-memory answer cache")
		}
	}

	svc := service.New(service.Config{
		Backend:  backendClient,
		Enricher: sysinfo.NewEnricher(),
		Sessions: session.NewManager(),
		Store:    store,
		Cache:    answerCache,
		CacheTTL: cfg.Cache.TTL(),
	})

	idle := newIdleTimer(cfg.Daemon.IdleExit())

	bus, busErr := dbusx.Connect(svc, idle.Touch)
	if busErr != nil {
		slog.Warn("dbus service unavailable", "error", busErr)
	} else {
		defer bus.Close()
	}

	var srv *http.Server
	if cfg.HTTP.Enabled {
		listener, err := httpListener(cfg.HTTP.Address)
		if err != nil {
			slog.Error("failed to listen", "addr", cfg.HTTP.Address, "error", err)
			os.Exit(1)
		}

		handler := api.NewHandler(api.HandlerConfig{
			Service:    svc,
			ModelID:    modelID,
			OnActivity: idle.Touch,
		})

		srv = &http.Server{
			Handler:      handler,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 120 * time.Second,
			IdleTimeout:  120 * time.Second,
		}

		go func() {
			slog.Info("http server listening", "addr", listener.Addr().String())
			if err := srv.Serve(listener); err != nil && err != http.ErrServerClosed {
				slog.Error("http server error", "error", err)
				os.Exit(1)
			}
		}()
	}

	if busErr != nil && srv == nil {
		slog.Error("no transport available: dbus failed and http disabled")
		os.Exit(1)
	}

	sddaemon.SdNotify(false, sddaemon.SdNotifyReady)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		slog.Info("shutting down on signal")
	case <-idle.Expired():
		slog.Info("shutting down after idle window", "idle", cfg.Daemon.IdleExit())
	}

	sddaemon.SdNotify(false, sddaemon.SdNotifyStopping)

	if srv != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(ctx, 30*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("http server forced to shutdown", "error", err)
		}
	}

	if err := shutdownTelemetry(context.Background()); err != nil {
		slog.Warn("telemetry shutdown failed", "error", err)
	}

	slog.Info("daemon stopped")
}

// httpListener prefers a socket passed in by systemd socket activation and
// falls back to the configured local address.
func httpListener(addr string) (net.Listener, error) {
	listeners, err := activation.Listeners()
	if err == nil && len(listeners) > 0 && listeners[0] != nil {
		slog.Info("using systemd-activated socket")
		return listeners[0], nil
	}
	return net.Listen("tcp", addr)
}

func setupLogger(level string) {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})
	slog.SetDefault(slog.New(handler))
}
