package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"securechat/internal/chat"
	"securechat/internal/config"
	"securechat/internal/crypt"
	"securechat/internal/handlers/pages"
	"securechat/internal/server"
	"securechat/internal/store"
)

const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "securechat: %v\n", err)
	}
	os.Exit(code)
}

func run() (int, error) {
	cfg, err := config.Load()
	if err != nil {
		return exitConfig, err
	}
	log := cfg.NewLogger(os.Stderr)
	cfg.LogSummary(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(ctx, store.Options{
		Driver:       cfg.StoreDriver,
		DSN:          cfg.DSN,
		BadgerPath:   cfg.BadgerPath,
		PollInterval: cfg.PollInterval,
	}, log)
	if err != nil {
		return exitRuntime, fmt.Errorf("store: %w", err)
	}
	defer func() {
		if err := st.Close(); err != nil {
			log.WithError(err).Error("closing store failed")
		}
	}()

	cipher, err := crypt.NewCipher(cfg.EncryptionKey, cfg.CipherScheme, log)
	if err != nil {
		return exitConfig, err
	}
	svc := chat.NewService(st, cipher, log, chat.WithMaxLength(cfg.MaxMessageLen))

	p, err := pages.New(cfg.MaxMessageLen, log)
	if err != nil {
		return exitRuntime, err
	}

	srv := server.NewServer(cfg.Addr(), svc, p, cfg.AllowedOrigins, log)
	if err := srv.Run(ctx, cfg.ShutdownTimeout); err != nil {
		return exitRuntime, fmt.Errorf("server error: %w", err)
	}
	return exitOK, nil
}
