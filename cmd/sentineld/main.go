// Command sentineld is the process entrypoint embedding the observer
// orchestrator as a standalone daemon: it loads configuration, wires the
// configured LLM provider and observations store, mounts the orchestrator's
// two hooks against a small in-process HTTP coordinator, and (when built
// with -tags enterprise and event_bridge.enabled is set) also starts the
// Kafka consumer bridge. Grounded on cmd/orchestrator/main.go's
// getenv/getenvInt/getenvDuration helper style and structured startup
// logging chain.
package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"sentinel/internal/config"
	"sentinel/internal/hook"
	"sentinel/internal/llm"
	"sentinel/internal/llm/providers"
	"sentinel/internal/observability"
	"sentinel/internal/store"
)

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getenvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("sentineld")
	}
}

func run() error {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "warning: failed to load .env: %v\n", err)
	}

	configPath := getenv("SENTINEL_CONFIG", "config.yaml")
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	observability.InitLogger(cfg.Observability.LogPath, cfg.Observability.LogLevel)

	baseCtx := context.Background()

	tr := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: 7 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		ForceAttemptHTTP2:     true,
		TLSHandshakeTimeout:   7 * time.Second,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   20,
		IdleConnTimeout:       90 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
	}
	httpClient := observability.NewHTTPClient(&http.Client{Transport: tr})

	provider, err := providers.Build(*cfg, httpClient)
	if err != nil {
		return fmt.Errorf("build llm provider: %w", err)
	}
	registry := llm.NewRegistry()
	registry.Register(cfg.LLMProvider.Provider, provider)

	st, err := store.Build(cfg.Store)
	if err != nil {
		return fmt.Errorf("build observations store: %w", err)
	}
	if closer, ok := st.(interface{ Close() error }); ok {
		defer func() {
			if cerr := closer.Close(); cerr != nil {
				log.Error().Err(cerr).Msg("store_close_failed")
			}
		}()
	}

	baseDir := getenv("SENTINEL_OBSERVER_DIR", ".")
	orchestrator := hook.New(cfg, registry, st, baseDir)

	coordinator := newHTTPCoordinator()
	if err := orchestrator.Mount(coordinator, cfg); err != nil {
		return fmt.Errorf("mount orchestrator: %w", err)
	}

	addr := getenv("SENTINEL_LISTEN_ADDR", ":8099")
	srv := &http.Server{
		Addr:              addr,
		Handler:           coordinator,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, cancel := signal.NotifyContext(baseCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	bridgeErrCh := make(chan error, 1)
	if cfg.EventBridge.Enabled {
		go func() { bridgeErrCh <- startEventBridge(ctx, cfg.EventBridge, orchestrator) }()
	}

	srvErrCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("sentineld_listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			srvErrCh <- err
			return
		}
		srvErrCh <- nil
	}()

	select {
	case <-ctx.Done():
	case err := <-srvErrCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	case err := <-bridgeErrCh:
		if err != nil {
			log.Error().Err(err).Msg("event_bridge_stopped")
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http_server_shutdown_failed")
	}

	log.Info().Msg("sentineld_stopped")
	return nil
}
