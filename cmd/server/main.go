package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"stockflow/backend/internal/auth"
	"stockflow/backend/internal/catalog"
	"stockflow/backend/internal/config"
	"stockflow/backend/internal/credit"
	"stockflow/backend/internal/gateway"
	"stockflow/backend/internal/gateway/localfs"
	"stockflow/backend/internal/gateway/pgmirror"
	"stockflow/backend/internal/gateway/redisnotify"
	"stockflow/backend/internal/httpapi"
	"stockflow/backend/internal/ledger"
	"stockflow/backend/internal/sales"
)

func main() {
	cfg := config.Load()
	if err := validateSecurityConfig(cfg); err != nil {
		log.Fatalf("invalid security configuration: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	closers := make([]func() error, 0, 2)

	local, err := localfs.New(cfg.DataDir)
	if err != nil {
		log.Fatalf("data dir: %v", err)
	}
	log.Printf("store: local files in %s", cfg.DataDir)

	var mirror gateway.Mirror
	var outbox *gateway.Outbox
	if cfg.MirrorDatabaseURL != "" {
		pg, err := pgmirror.New(ctx, cfg.MirrorDatabaseURL)
		if err != nil {
			log.Fatalf("postgres mirror unavailable (%v) and MIRROR_DATABASE_URL is set; refusing to start without it", err)
		}
		mirror = pg
		outbox = gateway.NewOutbox(pg, cfg.MirrorQueueSize, cfg.MirrorMaxRetries)
		closers = append(closers, pg.Close)
		log.Println("mirror: postgres")
	} else {
		log.Println("mirror: disabled")
	}

	var signalBus gateway.Signal
	var notifier *redisnotify.Notifier
	if cfg.RedisAddr != "" {
		n := redisnotify.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := n.Ping(ctx); err != nil {
			log.Printf("redis unavailable (%v), change signals stay in-process", err)
		} else {
			signalBus = n
			notifier = n
			closers = append(closers, n.Close)
			log.Println("change signal: redis")
		}
	} else {
		log.Println("change signal: in-process only")
	}

	gw := gateway.New(local, mirror, signalBus, outbox)
	if notifier != nil {
		notifier.Listen(context.Background(), gw.Broadcast)
	}

	engine := ledger.New(gw)
	cat := catalog.New(gw)
	authMgr := auth.NewManager(cfg.AuthSecret, time.Duration(cfg.AccessTokenTTLMinutes)*time.Minute, local, mirror, outbox)
	api := httpapi.New(gw, cat, sales.NewService(gw, engine, cat), credit.NewService(gw, engine), authMgr, cfg.AllowedOrigin)

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("stockflow backend listening on %s", cfg.Address())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
	if outbox != nil {
		outbox.Close()
	}
	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			log.Printf("close error: %v", err)
		}
	}

	log.Println("server stopped")
}

func validateSecurityConfig(cfg config.Config) error {
	if len(cfg.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be set and at least 32 characters")
	}
	return nil
}
