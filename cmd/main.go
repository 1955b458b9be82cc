package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cwrk-planet/classroom-service/config"
	"github.com/cwrk-planet/classroom-service/internal/presence"
	"github.com/cwrk-planet/classroom-service/internal/registry"
	"github.com/cwrk-planet/classroom-service/internal/router"
	"github.com/cwrk-planet/classroom-service/internal/token"
	httpx "github.com/cwrk-planet/classroom-service/internal/transport/http"
	"github.com/cwrk-planet/classroom-service/internal/transport/ws"
	"github.com/cwrk-planet/classroom-service/pkg/logger"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	// --- config ---
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger.Init(logger.Config{
		Env:       logger.Env(cfg.Logging.Env),
		Service:   cfg.Logging.Service,
		Version:   cfg.Logging.Version,
		Backend:   logger.Backend(cfg.Logging.Backend),
		AddSource: cfg.Logging.AddSource,
		Debug:     cfg.Logging.Debug,
	})
	slog.Info("starting classroom-service",
		"env", cfg.Logging.Env, "version", cfg.Logging.Version)

	// --- session core ---
	reg := registry.New(cfg.Relay.SendBuffer)
	dir := presence.NewDirectory()
	rt := router.New(reg, dir)
	dir.Subscribe(rt.HandlePresence)
	// cleanup по conn id: обрыв сети никогда не присылает leave
	reg.OnClose(func(connID string) { dir.Remove(connID) })

	minter := token.NewMinter(cfg.Token.AppID, cfg.Token.AppCertificate, cfg.TokenTTL())
	if cfg.Token.AppCertificate == "" {
		slog.Warn("no app certificate configured, sessions will be credential-less")
	}

	// --- HTTP API (token + roster) ---
	handler := httpx.NewHandler(minter, dir)
	apiSrv := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      httpx.NewRouter(handler),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// --- relay (event bus) ---
	wsServer := ws.NewServer(reg, rt)
	relayRouter := chi.NewRouter()
	relayRouter.Get("/ws", wsServer.HandleWS)
	relaySrv := &http.Server{
		Addr:    cfg.Relay.Addr,
		Handler: relayRouter,
		// websocket живет дольше любых таймаутов — только Read на upgrade
		ReadHeaderTimeout: 10 * time.Second,
	}

	// --- run both listeners ---
	errCh := make(chan error, 2)

	go func() {
		slog.Info("http listen", "addr", cfg.HTTP.Addr)
		if err := apiSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	go func() {
		slog.Info("relay listen", "addr", cfg.Relay.Addr)
		if err := relaySrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// --- graceful shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	exitCode := 0
	select {
	case sig := <-sigCh:
		slog.Info("shutdown signal", "sig", sig)
	case err := <-errCh:
		// невозможность слушать сокет — единственная фатальная ошибка
		slog.Error("listener failed", "err", err)
		exitCode = 1
	}

	ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = relaySrv.Shutdown(ctxShutdown)
	_ = apiSrv.Shutdown(ctxShutdown)
	slog.Info("stopped")
	os.Exit(exitCode)
}
