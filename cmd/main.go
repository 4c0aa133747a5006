// Package main provides the entry point for the venom relay.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/diegocamara89/meu-venom-bot/internal/backup"
	"github.com/diegocamara89/meu-venom-bot/internal/config"
	"github.com/diegocamara89/meu-venom-bot/internal/configstore"
	"github.com/diegocamara89/meu-venom-bot/internal/dispatch"
	"github.com/diegocamara89/meu-venom-bot/internal/gateway"
	"github.com/diegocamara89/meu-venom-bot/internal/handler"
	"github.com/diegocamara89/meu-venom-bot/internal/logger"
	"github.com/diegocamara89/meu-venom-bot/internal/registry"
	"github.com/diegocamara89/meu-venom-bot/internal/relay"
	"github.com/diegocamara89/meu-venom-bot/internal/watcher"
	"github.com/diegocamara89/meu-venom-bot/internal/whitelist"
)

// app holds the config-backed services shared by the server and the CLI.
type app struct {
	store     *configstore.Store
	whitelist *whitelist.Whitelist
	webhooks  *registry.Registry
	backups   *backup.Manager
}

func newApp(cfg *config.Config, log *zap.Logger) (*app, error) {
	store, err := configstore.New(cfg.ConfigDir, log)
	if err != nil {
		return nil, err
	}

	a := &app{
		store:     store,
		whitelist: whitelist.New(store, log),
		webhooks:  registry.New(store, log),
	}
	if err := a.reload(); err != nil {
		return nil, err
	}

	a.backups, err = backup.New(store, cfg.BackupDir, log,
		backup.WithOwner(configstore.Whitelist, a.whitelist),
		backup.WithOwner(configstore.Webhooks, a.webhooks))
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (a *app) reload() error {
	return errors.Join(a.whitelist.Load(), a.webhooks.Load())
}

// Run is the testable entrypoint for the application.
func Run(ctx context.Context) error {
	return serve(ctx, config.Load())
}

func serve(ctx context.Context, cfg *config.Config) error {
	log := logger.New(cfg.Env, cfg.LogLevel)
	defer func() { _ = log.Sync() }()
	log.Info("Starting venom relay", zap.String("addr", cfg.Addr))

	a, err := newApp(cfg, log)
	if err != nil {
		log.Error("failed to load config documents", zap.Error(err))
		return err
	}

	gw := gateway.New(cfg.GatewayURL, cfg.GatewayTimeout, cfg.MediaMaxBytes, log)
	engine := dispatch.New(a.whitelist, a.webhooks, gw, dispatch.Config{
		Timeout: cfg.DeliveryTimeout,
		Secret:  cfg.WebhookSecret,
	}, log)
	rl := relay.New(engine, gw, log)

	h := handler.New(log, handler.NewValidator(), handler.Deps{
		Whitelist:     a.whitelist,
		Webhooks:      a.webhooks,
		Backups:       a.backups,
		Gateway:       gw,
		Relay:         rl,
		InboundSecret: cfg.InboundSecret,
	})

	srv := &http.Server{
		Addr:         cfg.Addr,
		Handler:      h.Routes(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: cfg.GatewayTimeout + 10*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	if cfg.BackupSchedule != "" {
		sched, err := backup.NewScheduler(a.backups, cfg.BackupSchedule, log)
		if err != nil {
			return err
		}
		sched.Start()
		defer sched.Stop()
	}

	if cfg.WatchConfig {
		w, err := watcher.New(cfg.ConfigDir, map[string]watcher.ReloadFunc{
			configstore.Whitelist: a.whitelist.Load,
			configstore.Webhooks:  a.webhooks.Load,
		}, log)
		if err != nil {
			return err
		}
		if err := w.Start(); err != nil {
			return err
		}
		defer func() { _ = w.Stop() }()
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		log.Error("server error", zap.Error(err))
		return fmt.Errorf("server error: %w", err)
	}

	log.Info("Shutting down server")
	ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctxShutdown)

	// Let accepted inbound messages finish their fan-out.
	rl.Wait()
	return nil
}

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
