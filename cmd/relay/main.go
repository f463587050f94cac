package main

import (
	"context"
	stderrors "errors"
	"fmt"
	"game-relay/auth"
	"game-relay/gateway"
	"game-relay/moderation"
	"game-relay/observability"
	"game-relay/ratelimit"
	"game-relay/repositories"
	"game-relay/runtime"
	"game-relay/services"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Netflix/go-env"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/database"
	sdkhttp "github.com/mama165/sdk-go/http"
	"github.com/mama165/sdk-go/logs"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Exit codes to provide meaningful status to the service manager.
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Relay terminated with error: %v\n", err)
	}
	os.Exit(code)
}

// run wires every component and owns the server lifecycle, so deferred
// cleanups run before the process exits.
func run() (int, error) {
	// 1. Configuration & Logger
	_ = godotenv.Load()
	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	charReplacement, err := config.CharacterRune()
	if err != nil {
		return exitConfig, err
	}
	mode, err := config.Mode()
	if err != nil {
		return exitConfig, err
	}
	log := logs.GetLoggerFromString(config.LogLevel)

	keys := auth.NewKeyRing(config.SecretKeys, log)
	if keys.Len() == 0 {
		return exitConfig, fmt.Errorf("SECRET_KEYS holds no usable key")
	}

	censor, err := newModerator(config, charReplacement, log)
	if err != nil {
		return exitConfig, err
	}

	// 2. Database (BadgerDB)
	db, err := database.LoadBadger(config.BadgerFilepath)
	if err != nil {
		return exitRuntime, fmt.Errorf("database opening failed: %w", err)
	}
	defer func() {
		log.Info("Closing BadgerDB...")
		_ = db.Close()
	}()

	// 3. Metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewMetrics(registry)

	// 4. Core
	store := repositories.NewStore(db, log)
	tickets := runtime.NewTicketStore()
	sessions := runtime.NewRegistry(tickets, log, metrics)
	notifier := services.NewNotifier(store, sessions, censor, log, metrics)
	groups := services.NewGroupService(store, sessions, notifier, censor, services.GroupOptions{
		Mode:                   mode,
		KickRequiresMembership: config.KickRequiresMembership,
	}, log, metrics)
	router := services.NewRouter(sessions, censor, log, metrics)
	limiter := ratelimit.New(config.RateLimitRPS, config.RateLimitBurst, 10*time.Minute)

	ws := gateway.NewServer(sessions, groups, router, notifier, limiter, gateway.Options{
		BufferSize:       config.ConnectionBufferSize,
		HandshakeTimeout: config.HandshakeTimeout,
	}, log, metrics)

	// 5. HTTP Server
	mux := http.NewServeMux()
	mux.Handle("/ticket", auth.NewTicketHandler(keys, tickets, store, log, metrics))
	mux.Handle("/ws", ws)
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", sdkhttp.JSON(func(http.ResponseWriter, *http.Request) *sdkhttp.Response {
		return sdkhttp.OK(map[string]any{"status": "ok", "sessions": sessions.Count()})
	}))
	server := &http.Server{
		Addr:              config.Address(),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	// 6. Context & Signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errChan := make(chan error, 1)
	go func() {
		log.Info("Starting relay", "address", server.Addr, "invite_mode", mode, "at", time.Now().UTC())
		if err := server.ListenAndServe(); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("http server error: %w", err)
		}
	}()

	// 7. Wait for Stop or Error
	select {
	case <-ctx.Done():
		log.Info("Shutting down gracefully...")
	case err = <-errChan:
		return exitRuntime, err
	}

	// 8. Final Cleanup
	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.ShutdownTimeout)
	defer cancel()
	ws.CloseAll()
	if err = server.Shutdown(shutdownCtx); err != nil {
		return exitRuntime, fmt.Errorf("http server shutdown: %w", err)
	}
	log.Info("Relay stopped cleanly")
	return exitOK, nil
}

// newModerator builds the censor from CENSORED_WORDS_FILE. Without a file
// every message is delivered unchanged.
func newModerator(config Config, char rune, log *slog.Logger) (*moderation.Moderator, error) {
	var words []string
	if config.CensoredWordsFile != "" {
		loaded, err := moderation.LoadWords(config.CensoredWordsFile)
		if err != nil {
			return nil, fmt.Errorf("censored words: %w", err)
		}
		words = loaded
		log.Info("Censored words loaded", "path", config.CensoredWordsFile, "count", len(words))
	}
	return moderation.NewModerator(words, char, log)
}
